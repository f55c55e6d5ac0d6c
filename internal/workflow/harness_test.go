package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"reel/internal/config"
	"reel/internal/hwlock"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/pathmap"
	"reel/internal/protocol"
	"reel/internal/queue"
	"reel/internal/retry"
	"reel/internal/status"
	"reel/internal/testsupport"
	"reel/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	t       *testing.T
	cfg     *config.Config
	store   *queue.Store
	bus     *testsupport.RecordingBus
	encoder *testsupport.FakeEncoder
	metrics *metrics.Metrics
	manager *workflow.Manager
}

func newHarness(t *testing.T, outcome testsupport.EncodeFunc, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	mapper, err := pathmap.New(cfg.Paths)
	require.NoError(t, err)

	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	m := metrics.New()
	start, done, failed := cfg.Topics()
	publisher := status.NewPublisher(rec, status.Topics{Start: start, Done: done, Error: failed}, time.Second, logging.NewNop(), m)
	encoder := testsupport.NewFakeEncoder(outcome)

	manager, err := workflow.NewManager(workflow.Deps{
		Config:    cfg,
		Store:     store,
		Mapper:    mapper,
		Encoder:   encoder,
		Lock:      hwlock.New(cfg.Hardware.LockPath, cfg.LockPollInterval()),
		Retry:     retry.NewPolicy(cfg.Hardware.MaxRetries, 0, 0),
		Publisher: publisher,
		Metrics:   m,
		Logger:    logging.NewNop(),
	}, workflow.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	return &harness{t: t, cfg: cfg, store: store, bus: rec, encoder: encoder, metrics: m, manager: manager}
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.manager.Start(context.Background()))
	h.t.Cleanup(h.manager.Stop)
}

// seriesDir creates <source>/Serien/<rel> with the given files.
func (h *harness) seriesDir(rel string, files ...string) string {
	h.t.Helper()
	dir := filepath.Join(testsupport.SeriesSource(h.cfg), rel)
	require.NoError(h.t, os.MkdirAll(dir, 0o755))
	testsupport.Touch(h.t, dir, files...)
	return dir
}

func (h *harness) announce(dir string, mode protocol.Mode, files ...string) *queue.Job {
	h.t.Helper()
	job, err := h.manager.Enqueue(context.Background(), protocol.RipDoneEvent{
		Version:    protocol.SupportedVersion,
		SourcePath: dir,
		Mode:       mode,
		Files:      files,
	})
	require.NoError(h.t, err)
	return job
}

// waitIdle waits until no job is pending or processing.
func (h *harness) waitIdle() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		jobs, err := h.store.List(context.Background(), queue.StatusPending, queue.StatusProcessing)
		return err == nil && len(jobs) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func (h *harness) seriesOut(rel string) string {
	return filepath.Join(h.cfg.Paths.SeriesDest, rel)
}
