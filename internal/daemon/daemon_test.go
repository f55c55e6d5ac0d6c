package daemon_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel/internal/config"
	"reel/internal/daemon"
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

type fixture struct {
	cfg     *config.Config
	bus     *testsupport.RecordingBus
	store   *queue.Store
	daemon  *daemon.Daemon
	encoder *testsupport.FakeEncoder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mapper, err := pathmap.New(cfg.Paths)
	require.NoError(t, err)
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	m := metrics.New()
	start, done, failed := cfg.Topics()
	encoder := testsupport.NewFakeEncoder(nil)

	mgr, err := workflow.NewManager(workflow.Deps{
		Config:    cfg,
		Store:     store,
		Mapper:    mapper,
		Encoder:   encoder,
		Lock:      hwlock.New(cfg.Hardware.LockPath, cfg.LockPollInterval()),
		Retry:     retry.NewPolicy(cfg.Hardware.MaxRetries, 0, 0),
		Publisher: status.NewPublisher(rec, status.Topics{Start: start, Done: done, Error: failed}, time.Second, nil, m),
		Metrics:   m,
		Logger:    logging.NewNop(),
	}, workflow.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	d, err := daemon.New(cfg, store, rec, mgr, m, logging.NewNop())
	require.NoError(t, err)
	return &fixture{cfg: cfg, bus: rec, store: store, daemon: d, encoder: encoder}
}

func (f *fixture) run(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.daemon.Run(ctx) }()
	require.Eventually(t, f.daemon.Running, time.Second, 5*time.Millisecond)
	return cancel, errCh
}

func TestDaemonProcessesInboundAnnouncements(t *testing.T) {
	f := newFixture(t)
	cancel, errCh := f.run(t)

	dir := filepath.Join(testsupport.SeriesSource(f.cfg), "Foo", "S01", "disc01")
	testsupport.Touch(t, dir, "t00.mkv")
	payload, err := protocol.RipDoneEvent{Version: protocol.SupportedVersion, SourcePath: dir}.Encode()
	require.NoError(t, err)

	require.NoError(t, f.bus.Publish(context.Background(), f.cfg.Bus.InboundTopic, payload))

	output := filepath.Join(f.cfg.Paths.SeriesDest, "Foo", "S01", "disc01", "t00.mkv")
	require.Eventually(t, func() bool { return pathmap.OutputExists(output) }, 5*time.Second, 10*time.Millisecond)

	st := f.daemon.Status(context.Background())
	assert.True(t, st.Running)
	assert.Equal(t, f.cfg.DaemonLockPath(), st.LockFilePath)

	cancel()
	require.NoError(t, <-errCh)
	assert.False(t, f.daemon.Running())
}

func TestDaemonIgnoresGarbage(t *testing.T) {
	f := newFixture(t)
	cancel, errCh := f.run(t)

	require.NoError(t, f.bus.Publish(context.Background(), f.cfg.Bus.InboundTopic, []byte("not json")))
	time.Sleep(50 * time.Millisecond)
	assert.True(t, f.daemon.Running())

	cancel()
	require.NoError(t, <-errCh)
	jobs, err := f.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	f := newFixture(t)
	other := flock.New(f.cfg.DaemonLockPath())
	ok, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = other.Unlock() })

	err = f.daemon.Run(context.Background())
	require.True(t, errors.Is(err, daemon.ErrAlreadyRunning), "got %v", err)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := daemon.New(nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}
