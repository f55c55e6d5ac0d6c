package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Source layout: flat")

	target := filepath.Join(t.TempDir(), "reel.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	require.NoError(t, err)
	requireContains(t, out, "Wrote sample configuration")

	_, err = os.Stat(target)
	require.NoError(t, err)

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	require.ErrorContains(t, err, "already exists")

	_, _, err = runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "")
	require.NoError(t, err)
}

func TestConfigValidateRejectsBadLayout(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Paths.Layout = "nested"
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	require.ErrorContains(t, err, "paths.layout")
}
