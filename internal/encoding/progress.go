package encoding

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reel/internal/logging"
)

var reDuration = regexp.MustCompile(`Duration: (\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// progressTracker consumes ffmpeg -progress output and logs sampled
// percentages once the input duration is known.
type progressTracker struct {
	logger   *slog.Logger
	input    string
	duration time.Duration
	sampler  *logging.ProgressSampler
}

func newProgressTracker(logger *slog.Logger, input string) *progressTracker {
	return &progressTracker{logger: logger, input: input, sampler: logging.NewProgressSampler(10)}
}

// observe handles one output line and reports whether it was a progress
// line that should not be kept as diagnostic output.
func (p *progressTracker) observe(line string) bool {
	if p.duration == 0 {
		if m := reDuration.FindStringSubmatch(line); m != nil {
			p.duration = parseClock(m[1], m[2], m[3])
		}
	}
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok || strings.ContainsAny(key, " \t") {
		return false
	}
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		us, err := strconv.ParseInt(value, 10, 64)
		if err == nil && p.duration > 0 {
			p.report(float64(time.Duration(us)*time.Microsecond) / float64(p.duration) * 100)
		}
		return true
	case "progress":
		if value == "end" {
			p.report(100)
		}
		return true
	case "frame", "fps", "bitrate", "total_size", "out_time", "dup_frames", "drop_frames", "speed", "stream_0_0_q":
		return true
	default:
		return false
	}
}

func (p *progressTracker) report(percent float64) {
	if !p.sampler.ShouldLog(percent) {
		return
	}
	p.logger.Info("encode progress",
		logging.String("input", p.input),
		logging.Float64("percent", float64(int(percent*10))/10),
	)
}

func parseClock(h, m, s string) time.Duration {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.ParseFloat(s, 64)
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds*float64(time.Second))
}
