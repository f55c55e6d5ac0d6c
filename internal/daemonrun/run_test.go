package daemonrun

import (
	"context"
	"strings"
	"testing"

	"reel/internal/logging"
	"reel/internal/testsupport"
)

func TestRunPreflightPassesWithStubbedFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := runPreflight(context.Background(), logging.NewNop(), cfg); err != nil {
		t.Fatalf("expected preflight to pass, got %v", err)
	}
}

func TestRunPreflightFailsWithoutFFmpeg(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Encoder.Binary = "reel-test-missing-ffmpeg"
	err := runPreflight(context.Background(), logging.NewNop(), cfg)
	if err == nil || !strings.Contains(err.Error(), "FFmpeg") {
		t.Fatalf("expected missing ffmpeg error, got %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}
