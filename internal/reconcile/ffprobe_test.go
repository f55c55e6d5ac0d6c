package reconcile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel/internal/logging"
	"reel/internal/pathmap"
	"reel/internal/protocol"
	"reel/internal/reconcile"
	"reel/internal/testsupport"
)

type fakeHeights map[string]int

func (f fakeHeights) Height(_ context.Context, path string) (int, error) {
	h, ok := f[filepath.Base(path)]
	if !ok {
		return 0, errors.New("invalid data found when processing input")
	}
	return h, nil
}

type scriptedExecutor struct {
	lines []string
	err   error
	args  []string
}

func (s *scriptedExecutor) Run(_ context.Context, binary string, args []string, onLine func(string)) error {
	s.args = append([]string{binary}, args...)
	for _, line := range s.lines {
		onLine(line)
	}
	return s.err
}

func TestClassifyHeight(t *testing.T) {
	cases := map[int]protocol.SourceType{
		0:    "",
		480:  protocol.SourceDVD,
		576:  protocol.SourceDVD,
		600:  "",
		720:  protocol.SourceBluray,
		1080: protocol.SourceBluray,
		2160: protocol.SourceBluray,
	}
	for height, want := range cases {
		assert.Equal(t, want, reconcile.ClassifyHeight(height), "height %d", height)
	}
}

func TestFFprobeReadsFirstHeight(t *testing.T) {
	exec := &scriptedExecutor{lines: []string{"", "1080", "720"}}
	height, err := reconcile.NewFFprobe("/opt/ff/ffprobe", exec).Height(context.Background(), "/rips/t00.mkv")
	require.NoError(t, err)
	assert.Equal(t, 1080, height)
	assert.Equal(t, "/opt/ff/ffprobe", exec.args[0])
	assert.Equal(t, "/rips/t00.mkv", exec.args[len(exec.args)-1])
	assert.Contains(t, exec.args, "stream=height")
}

func TestFFprobeFailures(t *testing.T) {
	failing := &scriptedExecutor{lines: []string{"moov atom not found"}, err: errors.New("exit status 1")}
	_, err := reconcile.NewFFprobe("", failing).Height(context.Background(), "/rips/t00.mkv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moov atom not found")
	assert.Equal(t, "ffprobe", failing.args[0])

	empty := &scriptedExecutor{lines: []string{"N/A"}}
	_, err = reconcile.NewFFprobe("", empty).Height(context.Background(), "/rips/t00.mkv")
	require.Error(t, err)
}

func TestUnreadableRipsAreDropped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	series := testsupport.SeriesSource(cfg)
	mixed := filepath.Join(series, "Foo", "S01", "disc01")
	broken := filepath.Join(series, "Foo", "S01", "disc02")
	testsupport.Touch(t, mixed, "t00.mkv", "t01.mkv")
	testsupport.Touch(t, broken, "t05.mkv")

	mapper, err := pathmap.New(cfg.Paths)
	require.NoError(t, err)
	heights := fakeHeights{"t01.mkv": 480}

	report, err := reconcile.New(mapper, rec, cfg, logging.NewNop(),
		reconcile.WithHeightReader(heights),
	).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Announcements, 1)
	evt := report.Announcements[0].Event
	assert.Equal(t, mixed, evt.SourcePath)
	assert.Equal(t, []string{filepath.Join(mixed, "t01.mkv")}, evt.Files)
	assert.Equal(t, protocol.SourceDVD, evt.SourceType)
	assert.Equal(t, []string{
		filepath.Join(mixed, "t00.mkv"),
		filepath.Join(broken, "t05.mkv"),
	}, report.Unreadable)

	allowed, err := reconcile.New(mapper, rec, cfg, logging.NewNop(),
		reconcile.WithHeightReader(heights),
		reconcile.WithAllowUnreadable(true),
	).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, allowed.Announcements, 2)
	assert.Len(t, allowed.Announcements[0].Event.Files, 2)
	assert.Equal(t, []string{filepath.Join(broken, "t05.mkv")}, allowed.Announcements[1].Event.Files)
	assert.Len(t, allowed.Unreadable, 2)
}

func TestSourceTypePrecedence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.DefaultSourceType = string(protocol.SourceDVD)
	rec := testsupport.NewRecordingBus()
	t.Cleanup(func() { _ = rec.Close() })
	movies := testsupport.MovieSource(cfg)
	testsupport.Touch(t, movies, "HD/HD.mkv", "Marked/Marked.mkv", "Odd/Odd.mkv")
	require.NoError(t, os.WriteFile(filepath.Join(movies, "Marked", pathmap.SourceTypeMarker), []byte("dvd\n"), 0o644))

	mapper, err := pathmap.New(cfg.Paths)
	require.NoError(t, err)
	report, err := reconcile.New(mapper, rec, cfg, logging.NewNop(),
		reconcile.WithHeightReader(fakeHeights{"HD.mkv": 1080, "Marked.mkv": 1080, "Odd.mkv": 640}),
	).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Announcements, 3)

	byDir := map[string]protocol.SourceType{}
	for _, ann := range report.Announcements {
		byDir[filepath.Base(ann.Event.SourcePath)] = ann.Event.SourceType
	}
	assert.Equal(t, protocol.SourceBluray, byDir["HD"])
	assert.Equal(t, protocol.SourceDVD, byDir["Marked"])
	assert.Equal(t, protocol.SourceDVD, byDir["Odd"])
}
