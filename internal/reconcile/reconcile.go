package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"reel/internal/bus"
	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/metrics"
	"reel/internal/pathmap"
	"reel/internal/protocol"
	"reel/internal/workflow"
)

// Announcement is one directory that needs (re)processing.
type Announcement struct {
	Event protocol.RipDoneEvent
	// Missing lists the absolute source files whose output does not exist.
	Missing []string
}

// Report summarizes a scan.
type Report struct {
	Announcements []Announcement
	// SkippedTemp lists unfinished MakeMKV files that were ignored.
	SkippedTemp []string
	// Unreadable lists rips ffprobe could not read. They are left out of
	// announcements unless unreadable files are allowed.
	Unreadable []string
	// Published counts announcements delivered by Run.
	Published int
}

// Reconciler scans source roots for missing outputs.
type Reconciler struct {
	mapper    *pathmap.Mapper
	publisher bus.Publisher
	topic     string
	version   int
	exts      []string
	metrics   *metrics.Metrics
	heights   HeightReader
	allowUnreadable  bool
	logger    *slog.Logger
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithMetrics counts published announcements.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// WithHeightReader checks every missing file before it is announced. Files
// the reader fails on are dropped, and the first height read decides the
// disc format when no marker file names it.
func WithHeightReader(h HeightReader) Option {
	return func(r *Reconciler) { r.heights = h }
}

// WithAllowUnreadable keeps files the height reader fails on.
func WithAllowUnreadable(allow bool) Option {
	return func(r *Reconciler) { r.allowUnreadable = allow }
}

// New builds a reconciler. publisher may be nil when only previews are run.
func New(mapper *pathmap.Mapper, publisher bus.Publisher, cfg *config.Config, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		mapper:    mapper,
		publisher: publisher,
		topic:     cfg.Bus.InboundTopic,
		version:   cfg.Bus.PayloadVersion,
		exts:      cfg.Paths.MediaExtensions,
		logger:    logging.NewComponentLogger(logger, "reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scan walks the series and movie subtrees of every source root. It never
// writes anything.
func (r *Reconciler) Scan(ctx context.Context) (Report, error) {
	var report Report
	for _, root := range r.mapper.SourceRoots() {
		for _, sub := range []struct {
			mode protocol.Mode
			dir  string
		}{
			{protocol.ModeSeries, r.mapper.SeriesDir(root)},
			{protocol.ModeMovie, r.mapper.MovieDir(root)},
		} {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if err := r.scanSubtree(ctx, root, sub.mode, sub.dir, &report); err != nil {
				return report, err
			}
		}
	}
	slices.Sort(report.SkippedTemp)
	slices.Sort(report.Unreadable)

	r.logger.Info("scan finished",
		logging.Int("directories", len(report.Announcements)),
		logging.Int("skipped_temp", len(report.SkippedTemp)),
		logging.Int("unreadable", len(report.Unreadable)),
	)
	return report, nil
}

// Run scans and, unless preview is set, publishes one announcement per
// directory. A publish failure stops the run.
func (r *Reconciler) Run(ctx context.Context, preview bool) (Report, error) {
	report, err := r.Scan(ctx)
	if err != nil {
		return report, err
	}
	for _, ann := range report.Announcements {
		payload, err := ann.Event.Encode()
		if err != nil {
			return report, fmt.Errorf("encode announcement for %s: %w", ann.Event.SourcePath, err)
		}
		if preview {
			r.logger.Info("would announce",
				logging.String(logging.FieldDirectory, ann.Event.SourcePath),
				logging.String("mode", string(ann.Event.Mode)),
				logging.Int("missing", len(ann.Missing)),
				logging.String("payload", string(payload)),
			)
			continue
		}
		if r.publisher == nil {
			return report, errors.New("reconcile: no publisher configured")
		}
		if err := r.publisher.Publish(ctx, r.topic, payload); err != nil {
			return report, fmt.Errorf("publish announcement for %s: %w", ann.Event.SourcePath, err)
		}
		report.Published++
		r.metrics.Announced(string(ann.Event.Mode))
		r.logger.Info("announced",
			logging.String(logging.FieldDirectory, ann.Event.SourcePath),
			logging.String("mode", string(ann.Event.Mode)),
			logging.Int("missing", len(ann.Missing)),
			logging.String("topic", r.topic),
		)
	}
	return report, nil
}

func (r *Reconciler) scanSubtree(ctx context.Context, root pathmap.Root, mode protocol.Mode, base string, report *Report) error {
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		r.logger.Info("source subtree absent; skipping",
			logging.String(logging.FieldDirectory, base),
			logging.String("mode", string(mode)),
		)
		return nil
	}

	byDir := make(map[string][]string)
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == base {
				return err
			}
			logging.WarnWithContext(r.logger, "unreadable entry skipped", "reconcile_walk_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "files below this path are not re-announced"),
			)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if workflow.IsTempRip(d.Name()) {
			report.SkippedTemp = append(report.SkippedTemp, path)
			return nil
		}
		if workflow.IsMediaFile(d.Name(), r.exts) {
			dir := filepath.Dir(path)
			byDir[dir] = append(byDir[dir], path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", base, err)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)

	for _, dir := range dirs {
		ann, ok, err := r.inspect(ctx, root, mode, base, dir, byDir[dir], report)
		if err != nil {
			return err
		}
		if ok {
			report.Announcements = append(report.Announcements, ann)
		}
	}
	return nil
}

// inspect builds the announcement for dir when at least one readable file
// lacks an output.
func (r *Reconciler) inspect(ctx context.Context, root pathmap.Root, mode protocol.Mode, base, dir string, files []string, report *Report) (Announcement, bool, error) {
	res, err := r.mapper.Resolve(dir, mode)
	if err != nil {
		return Announcement{}, false, fmt.Errorf("resolve %s: %w", dir, err)
	}
	slices.Sort(files)
	var missing []string
	for _, file := range files {
		output, err := r.mapper.OutputPath(res, dir, file)
		if err != nil {
			return Announcement{}, false, err
		}
		if !pathmap.OutputExists(output) {
			missing = append(missing, file)
		}
	}
	if len(missing) == 0 {
		return Announcement{}, false, nil
	}
	missing, height, err := r.readyFiles(ctx, missing, report)
	if err != nil {
		return Announcement{}, false, err
	}
	if len(missing) == 0 {
		r.logger.Info("no readable rips; directory skipped",
			logging.String(logging.FieldDirectory, dir),
		)
		return Announcement{}, false, nil
	}

	evt := protocol.RipDoneEvent{
		Version:    r.version,
		SourcePath: dir,
		Mode:       mode,
		SourceType: r.sourceType(dir, root, height),
		Files:      missing,
	}
	if mode == protocol.ModeSeries {
		evt.Series, evt.Season, evt.Disc = seriesParts(base, dir)
	}
	return Announcement{Event: evt, Missing: missing}, true, nil
}

// readyFiles drops files the height reader fails on, unless they are allowed,
// and returns the first height it read.
func (r *Reconciler) readyFiles(ctx context.Context, files []string, report *Report) ([]string, int, error) {
	if r.heights == nil {
		return files, 0, nil
	}
	ready := make([]string, 0, len(files))
	sample := 0
	for _, file := range files {
		height, err := r.heights.Height(ctx, file)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		if err != nil {
			report.Unreadable = append(report.Unreadable, file)
			if r.allowUnreadable {
				logging.WarnWithContext(r.logger, "ffprobe failed; announcing anyway", "reconcile_ffprobe_failed",
					logging.String("path", file),
					logging.Error(err),
				)
				ready = append(ready, file)
				continue
			}
			logging.WarnWithContext(r.logger, "ffprobe failed; rip skipped", "reconcile_ffprobe_failed",
				logging.String("path", file),
				logging.Error(err),
				logging.String(logging.FieldImpact, "file is not announced until it can be read"),
				logging.String(logging.FieldErrorHint, "finish the rip or rerun with --allow-ffprobe-failures"),
			)
			continue
		}
		if sample == 0 {
			sample = height
		}
		ready = append(ready, file)
	}
	return ready, sample, nil
}

// sourceType prefers a marker file, then the sampled height, then the root's
// configured type.
func (r *Reconciler) sourceType(dir string, root pathmap.Root, height int) protocol.SourceType {
	if marked := pathmap.DetectSourceType(dir, root.Dir, ""); marked != "" {
		return marked
	}
	if byHeight := ClassifyHeight(height); byHeight != "" {
		return byHeight
	}
	return root.SourceType
}

// seriesParts reads <series>/<season>/<disc> from the path below base.
func seriesParts(base, dir string) (series, season, disc string) {
	rel, err := filepath.Rel(base, dir)
	if err != nil || rel == "." {
		return "", "", ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 0 {
		series = parts[0]
	}
	if len(parts) > 1 {
		season = parts[1]
	}
	if len(parts) > 2 {
		disc = parts[len(parts)-1]
	}
	return series, season, disc
}
