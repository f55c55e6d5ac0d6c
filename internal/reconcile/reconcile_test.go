package reconcile_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/pathmap"
	"reel/internal/protocol"
	"reel/internal/reconcile"
	"reel/internal/testsupport"
)

func newReconciler(t *testing.T, cfg *config.Config, rec *testsupport.RecordingBus, m *metrics.Metrics) *reconcile.Reconciler {
	t.Helper()
	mapper, err := pathmap.New(cfg.Paths)
	require.NoError(t, err)
	return reconcile.New(mapper, rec, cfg, logging.NewNop(), reconcile.WithMetrics(m))
}

func TestPreviewNeverPublishes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	source := filepath.Join(testsupport.SeriesSource(cfg), "Foo", "S01", "disc01")
	testsupport.Touch(t, source, "t00.mkv")

	report, err := newReconciler(t, cfg, rec, nil).Run(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, report.Announcements, 1)
	assert.Zero(t, report.Published)
	assert.Empty(t, rec.Messages())
	assert.NoDirExists(t, cfg.Paths.SeriesDest)
}

func TestRunAnnouncesOnlyDirectoriesWithMissingOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	m := metrics.New()

	series := testsupport.SeriesSource(cfg)
	done := filepath.Join(series, "Done", "S01", "disc01")
	partial := filepath.Join(series, "Foo", "S02", "disc07")
	testsupport.Touch(t, done, "t00.mkv")
	testsupport.Touch(t, cfg.Paths.SeriesDest, "Done/S01/disc01/t00.mkv")
	testsupport.Touch(t, partial, "t00.mkv", "t01.mkv", "B1_t02.mkv", "info.nfo")
	testsupport.Touch(t, cfg.Paths.SeriesDest, "Foo/S02/disc07/t00.mkv")

	movies := testsupport.MovieSource(cfg)
	testsupport.Touch(t, movies, "Heat/Heat.mkv")

	report, err := newReconciler(t, cfg, rec, m).Run(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, report.Announcements, 2)
	assert.Equal(t, 2, report.Published)
	assert.Equal(t, []string{filepath.Join(partial, "B1_t02.mkv")}, report.SkippedTemp)

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		assert.Equal(t, cfg.Bus.InboundTopic, msg.Topic)
	}

	seriesEvt, err := protocol.DecodeRipDone(msgs[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, partial, seriesEvt.SourcePath)
	assert.Equal(t, protocol.ModeSeries, seriesEvt.Mode)
	assert.Equal(t, "Foo", seriesEvt.Series)
	assert.Equal(t, "S02", seriesEvt.Season)
	assert.Equal(t, "disc07", seriesEvt.Disc)
	assert.Equal(t, protocol.SourceDVD, seriesEvt.SourceType)
	assert.Equal(t, []string{filepath.Join(partial, "t01.mkv")}, seriesEvt.Files)
	require.NoError(t, seriesEvt.Validate(protocol.SupportedVersion))

	movieEvt, err := protocol.DecodeRipDone(msgs[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.ModeMovie, movieEvt.Mode)
	assert.Equal(t, filepath.Join(movies, "Heat"), movieEvt.SourcePath)
	assert.Empty(t, movieEvt.Series)

	expected := `
# HELP reel_reconcile_announcements_total Directories re-announced by the reconciler.
# TYPE reel_reconcile_announcements_total counter
reel_reconcile_announcements_total{mode="movie"} 1
reel_reconcile_announcements_total{mode="series"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "reel_reconcile_announcements_total"))
}

func TestMovieOutputsAreCheckedFlat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	testsupport.Touch(t, testsupport.MovieSource(cfg), "Heat/Heat.mkv")
	testsupport.Touch(t, cfg.Paths.MovieDest, "Heat.mkv")

	report, err := newReconciler(t, cfg, rec, nil).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Announcements)
}

func TestSplitLayoutUsesRootAndMarkerSourceType(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSplitLayout())
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })

	blu := filepath.Join(cfg.Paths.SourceBase, "bluray", "Serien", "Foo", "S01", "disc01")
	marked := filepath.Join(cfg.Paths.SourceBase, "dvd", "Serien", "Bar", "S01", "disc01")
	testsupport.Touch(t, blu, "t00.mkv")
	testsupport.Touch(t, marked, "t00.mkv")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.SourceBase, "dvd", "Serien", "Bar", pathmap.SourceTypeMarker), []byte("bluray\n"), 0o644))

	report, err := newReconciler(t, cfg, rec, nil).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Announcements, 2)

	byPath := map[string]protocol.SourceType{}
	for _, ann := range report.Announcements {
		byPath[ann.Event.SourcePath] = ann.Event.SourceType
	}
	assert.Equal(t, protocol.SourceBluray, byPath[blu])
	assert.Equal(t, protocol.SourceBluray, byPath[marked])
}

func TestRunStopsOnPublishFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	testsupport.Touch(t, testsupport.SeriesSource(cfg), "Foo/S01/disc01/t00.mkv")
	rec.FailNext(1)

	report, err := newReconciler(t, cfg, rec, nil).Run(context.Background(), false)
	require.ErrorIs(t, err, testsupport.ErrPublishRefused)
	assert.Zero(t, report.Published)
}
