package protocol_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reel/internal/protocol"
)

func TestDecodeRipDoneAcceptsLegacyPathKey(t *testing.T) {
	evt, err := protocol.DecodeRipDone([]byte(`{"version":1,"path":"/raw/Serien/Foo/S01","mode":"Series"}`))
	require.NoError(t, err)
	assert.Equal(t, "/raw/Serien/Foo/S01", evt.SourcePath)
	assert.Equal(t, protocol.ModeSeries, evt.Mode)
}

func TestDecodeRipDonePrefersSourcePath(t *testing.T) {
	evt, err := protocol.DecodeRipDone([]byte(`{"version":1,"path":"/old","source_path":"/new"}`))
	require.NoError(t, err)
	assert.Equal(t, "/new", evt.SourcePath)
}

func TestDecodeRipDoneRejectsGarbage(t *testing.T) {
	_, err := protocol.DecodeRipDone([]byte(`not json`))
	require.ErrorIs(t, err, protocol.ErrInvalidEvent)

	_, err = protocol.DecodeRipDone([]byte(`{"source_path":"/raw/x"}`))
	require.ErrorIs(t, err, protocol.ErrInvalidEvent, "missing version must be rejected")
}

func TestValidateRejectsVersionMismatch(t *testing.T) {
	evt := protocol.RipDoneEvent{Version: 2, SourcePath: "/raw/Filme/Movie", Mode: protocol.ModeMovie}
	err := evt.Validate(protocol.SupportedVersion)
	require.ErrorIs(t, err, protocol.ErrUnsupportedVersion)
	require.ErrorIs(t, err, protocol.ErrInvalidEvent)
}

func TestValidateDefaultsModeAndNormalizesFiles(t *testing.T) {
	evt := protocol.RipDoneEvent{
		Version:    1,
		SourcePath: "/raw/Serien/Foo/S01/",
		SourceType: "BluRay",
		Files:      []string{"/raw/Serien/Foo/S01/e01.mkv", "sub/e02.mkv"},
	}
	require.NoError(t, evt.Validate(1))
	assert.Equal(t, protocol.ModeSeries, evt.Mode)
	assert.Equal(t, protocol.SourceBluray, evt.SourceType)
	assert.Equal(t, "/raw/Serien/Foo/S01", evt.SourcePath)
	assert.Equal(t, []string{"e01.mkv", "sub/e02.mkv"}, evt.Files)
}

func TestValidateRejectsBadFields(t *testing.T) {
	cases := map[string]protocol.RipDoneEvent{
		"empty path":     {Version: 1},
		"relative path":  {Version: 1, SourcePath: "raw/Serien"},
		"unknown mode":   {Version: 1, SourcePath: "/raw", Mode: "anime"},
		"unknown source": {Version: 1, SourcePath: "/raw", SourceType: "hddvd"},
		"escaping file":  {Version: 1, SourcePath: "/raw/a", Files: []string{"/raw/b/x.mkv"}},
		"dotdot file":    {Version: 1, SourcePath: "/raw/a", Files: []string{"../x.mkv"}},
	}
	for name, evt := range cases {
		t.Run(name, func(t *testing.T) {
			err := evt.Validate(1)
			require.Error(t, err)
			assert.True(t, errors.Is(err, protocol.ErrInvalidEvent))
		})
	}
}

func TestStatusEventsCarryVersion(t *testing.T) {
	start := protocol.NewStart(3, 9, "/in.mkv", "/out.mkv")
	failed := protocol.NewError(3, 9, "/in.mkv", "/out.mkv", "boom")

	assert.Equal(t, protocol.PhaseStart, start.Phase)
	assert.Equal(t, 3, start.Version)
	assert.NotZero(t, start.Timestamp)
	assert.Equal(t, "boom", failed.ErrorDetail)

	payload, err := failed.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"error_detail":"boom"`)
	assert.Contains(t, string(payload), `"phase":"error"`)

	done, err := protocol.NewDone(3, 9, "/in.mkv", "/out.mkv").Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(done), "error_detail")
}
