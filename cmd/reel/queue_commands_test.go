package main

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"reel/internal/queue"
	"reel/internal/testsupport"
)

func TestQueueListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "Queue is empty")
}

func TestEnqueueDirectThenList(t *testing.T) {
	env := setupCLITestEnv(t)
	disc := filepath.Join(testsupport.SeriesSource(env.cfg), "Show", "S01", "disc01")
	testsupport.Touch(t, disc, "t00.mkv")

	out, _, err := runCLI(t, []string{"enqueue", "--direct", disc}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "Queued job")
	requireContains(t, out, filepath.Join(env.cfg.Paths.SeriesDest, "Show", "S01", "disc01"))

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "pending"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, disc)
	requireContains(t, out, "pending")

	jobs, err := env.store.List(context.Background(), queue.StatusPending)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestEnqueueRejectsUnmappedDirectory(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"enqueue", "--direct", t.TempDir()}, env.configPath)
	require.Error(t, err)
}

func TestQueueListRejectsUnknownStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"queue", "list", "--status", "paused"}, env.configPath)
	require.ErrorContains(t, err, "unknown status")
}

func TestQueueRetryClearAndRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	failed := testsupport.NewJob(t, env.store, "/raw/Serien/A/S01/disc01")
	require.NoError(t, env.store.Fail(ctx, failed.ID, "vaapi busy"))
	pending := testsupport.NewJob(t, env.store, "/raw/Serien/B/S01/disc01")

	out, _, err := runCLI(t, []string{"queue", "list", "--status", "failed"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "vaapi busy")

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "Retrying 1 job(s)")

	out, _, err = runCLI(t, []string{"queue", "retry"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "No failed jobs to retry")

	out, _, err = runCLI(t, []string{"queue", "remove", "999"}, env.configPath)
	require.ErrorContains(t, err, "job 999 not found")
	require.Empty(t, out)

	_, _, err = runCLI(t, []string{"queue", "remove", "abc"}, env.configPath)
	require.ErrorContains(t, err, "invalid job id")

	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "Removed 0 failed jobs")

	_, _, err = runCLI(t, []string{"queue", "clear", "--failed", "--completed"}, env.configPath)
	require.Error(t, err)

	id := strconv.FormatInt(failed.ID, 10)
	out, _, err = runCLI(t, []string{"queue", "remove", id}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "Removed job "+id)

	out, _, err = runCLI(t, []string{"queue", "clear"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "Removed 1 jobs")

	job, err := env.store.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestQueueHealth(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewJob(t, env.store, "/raw/Serien/A/S01/disc01")

	out, _, err := runCLI(t, []string{"queue", "health"}, env.configPath)
	require.NoError(t, err)
	requireContains(t, out, "pending")
	requireContains(t, out, "Integrity: yes")
	requireContains(t, out, env.store.Path())
}
