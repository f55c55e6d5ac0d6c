package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"reel/internal/config"
	"reel/internal/protocol"
	"reel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob enqueues a series job for sourcePath using the store.
func NewJob(t testing.TB, store *queue.Store, sourcePath string) *queue.Job {
	t.Helper()

	job, err := store.Enqueue(context.Background(), queue.Job{
		Version:    protocol.SupportedVersion,
		SourcePath: sourcePath,
		DestDir:    filepath.Join("/out", filepath.Base(sourcePath)),
		Mode:       protocol.ModeSeries,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
