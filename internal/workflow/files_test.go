package workflow_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel/internal/testsupport"
	"reel/internal/workflow"
)

func TestListMediaFilesRecursesAndSorts(t *testing.T) {
	dir := t.TempDir()
	testsupport.Touch(t, dir,
		"b.mkv",
		"a.MKV",
		"extras/c.mkv",
		"AB_t01.mkv",
		".a.partial.mkv",
		".hidden/d.mkv",
		"cover.jpg",
	)

	files, err := workflow.ListMediaFiles(dir, []string{".mkv"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.MKV", "b.mkv", filepath.Join("extras", "c.mkv")}, files)
}

func TestListMediaFilesSubset(t *testing.T) {
	files, err := workflow.ListMediaFiles(t.TempDir(), []string{".mkv"}, []string{"z.mkv", "a.mkv", "a.mkv", "x.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.mkv", "z.mkv"}, files)
}

func TestListMediaFilesMissingDir(t *testing.T) {
	_, err := workflow.ListMediaFiles(filepath.Join(t.TempDir(), "gone"), []string{".mkv"}, nil)
	require.Error(t, err)
}

func TestIsTempRip(t *testing.T) {
	assert.True(t, workflow.IsTempRip("B1_t00.mkv"))
	assert.False(t, workflow.IsTempRip("title_t00.mkv"))
	assert.False(t, workflow.IsTempRip("B1_t00.mp4"))
}
