package encoding

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/protocol"
	"reel/internal/retry"
	"reel/internal/services"
)

// Request describes one file to encode.
type Request struct {
	Input      string
	Output     string
	SourceType protocol.SourceType
}

// Encoder produces Output from Input or returns an error.
type Encoder interface {
	Encode(ctx context.Context, req Request) error
}

// Option configures the FFmpeg client.
type Option func(*FFmpeg)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(f *FFmpeg) {
		if exec != nil {
			f.exec = exec
		}
	}
}

// WithLogger attaches a logger for progress and diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *FFmpeg) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// FFmpeg drives the ffmpeg CLI.
type FFmpeg struct {
	binary    string
	device    string
	codec     string
	qp        int
	extraArgs []string
	exec      Executor
	logger    *slog.Logger
}

// NewFFmpeg constructs the hardware encoder client.
func NewFFmpeg(enc config.Encoder, hw config.Hardware, opts ...Option) (*FFmpeg, error) {
	binary := strings.TrimSpace(enc.Binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	codec := strings.TrimSpace(enc.VideoCodec)
	if codec == "" {
		return nil, errors.New("video codec required")
	}
	f := &FFmpeg{
		binary:    binary,
		device:    strings.TrimSpace(hw.Device),
		codec:     codec,
		qp:        enc.QP,
		extraArgs: append([]string(nil), enc.ExtraArgs...),
		exec:      commandExecutor{},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Encode runs ffmpeg for req. The destination appears only on success.
func (f *FFmpeg) Encode(ctx context.Context, req Request) error {
	if req.Input == "" || req.Output == "" {
		return services.Wrap(services.ErrValidation, "encode", "", "input and output are required", nil)
	}
	if _, err := os.Stat(req.Input); err != nil {
		return &EncodeError{Kind: retry.Permanent, Reason: "input unavailable", Err: services.Wrap(services.ErrNotFound, "encode", "stat input", req.Input, err)}
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return &EncodeError{Kind: retry.Permanent, Reason: "create output directory", Err: err}
	}

	partial := PartialPath(req.Output)
	if err := os.Remove(partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &EncodeError{Kind: retry.Permanent, Reason: "remove stale partial output", Err: err}
	}

	args := f.buildArgs(req.Input, partial)
	f.logger.Debug("ffmpeg command",
		logging.String("binary", f.binary),
		logging.String("args", strings.Join(args, " ")),
		logging.String("source_type", string(req.SourceType)),
	)

	progress := newProgressTracker(f.logger, req.Input)
	tail := newLineTail(stderrTailLines)
	runErr := f.exec.Run(ctx, f.binary, args, func(line string) {
		if progress.observe(line) {
			return
		}
		tail.add(line)
	})
	if runErr != nil {
		_ = os.Remove(partial)
		return classify(runErr, tail.String())
	}

	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(partial)
		return &EncodeError{Kind: retry.Permanent, Reason: "ffmpeg produced no output", Tail: tail.String(), Err: services.ErrExternalTool}
	}
	if err := os.Rename(partial, req.Output); err != nil {
		_ = os.Remove(partial)
		return &EncodeError{Kind: retry.Permanent, Reason: "finalize output", Err: err}
	}
	return nil
}

// PartialPath returns the temporary file ffmpeg writes for output.
func PartialPath(output string) string {
	dir, name := filepath.Split(output)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+partialSuffix+ext)
}

const partialSuffix = ".partial"

// IsPartial reports whether name is an in-progress output file.
func IsPartial(name string) bool {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, ".") {
		return false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasSuffix(stem, partialSuffix)
}

var _ Encoder = (*FFmpeg)(nil)
