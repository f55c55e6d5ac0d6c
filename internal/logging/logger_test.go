package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg, "session-1")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from daemon", logging.String("k", "v"))

	content, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("expected one json record, got %q: %v", content, err)
	}
	if record["msg"] != "hello from daemon" || record["k"] != "v" {
		t.Fatalf("unexpected record: %v", record)
	}
	if record["session_id"] != "session-1" {
		t.Fatalf("expected session id, got %v", record["session_id"])
	}
	if record["level"] != "info" {
		t.Fatalf("expected lowercase level, got %v", record["level"])
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "worker").Info("message without caller", logging.Int64(logging.FieldJobID, 7))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
	if !strings.Contains(line, "INFO worker: message without caller [job #7]") {
		t.Fatalf("unexpected console layout: %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerQuotesValuesAndFiltersLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", logging.String("path", "/media/raw/My Show"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(content)
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, `path="/media/raw/My Show"`) {
		t.Fatalf("expected quoted path, got %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithJobID(ctx, 123)
	ctx = services.WithStage(ctx, "encode")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WithContext(ctx, logger).Info("contextual log")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldJobID] != float64(123) {
		t.Fatalf("job_id = %v", record[logging.FieldJobID])
	}
	if record[logging.FieldStage] != "encode" {
		t.Fatalf("stage = %v", record[logging.FieldStage])
	}
	if record[logging.FieldCorrelationID] != "req-xyz" {
		t.Fatalf("correlation_id = %v", record[logging.FieldCorrelationID])
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logging.WarnWithContext(logger, "publish failed", "status_publish_failed", logging.String(logging.FieldImpact, "status event lost"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record[logging.FieldEventType] != "status_publish_failed" {
		t.Fatalf("event_type = %v", record[logging.FieldEventType])
	}
	if record[logging.FieldErrorHint] == nil {
		t.Fatal("expected default error hint")
	}
	if record[logging.FieldImpact] != "status event lost" {
		t.Fatalf("impact should keep caller value, got %v", record[logging.FieldImpact])
	}
}

func TestErrorWithContextLabelsErrorKind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	busy := services.Wrap(services.ErrHardwareBusy, "encode", "ffmpeg", "vaapi device busy", errors.New("exit status 1"))
	logging.ErrorWithContext(logger, "file failed", "encode_failed", logging.Error(busy))
	logging.ErrorWithContext(logger, "file failed", "encode_failed",
		logging.Error(busy),
		logging.String(logging.FieldErrorKind, "caller"),
	)
	logging.WarnWithContext(logger, "nothing to classify", "noop")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected three records, got %q", buf.String())
	}
	want := []any{"hardware_busy", "caller", nil}
	for i, line := range lines {
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("decode record %d: %v", i, err)
		}
		if record[logging.FieldErrorKind] != want[i] {
			t.Fatalf("record %d: error_kind = %v, want %v", i, record[logging.FieldErrorKind], want[i])
		}
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	sampler := logging.NewProgressSampler(25)
	var emitted []float64
	for _, pct := range []float64{-1, 0, 3, 24, 25, 40, 51, 99, 100, 100} {
		if sampler.ShouldLog(pct) {
			emitted = append(emitted, pct)
		}
	}
	want := []float64{0, 25, 51, 99, 100}
	if len(emitted) != len(want) {
		t.Fatalf("emitted %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted %v, want %v", emitted, want)
		}
	}

	sampler.Reset()
	if !sampler.ShouldLog(10) {
		t.Fatal("expected emit after reset")
	}
}
