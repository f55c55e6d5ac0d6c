package deps

import (
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"
)

// ResolveFFmpegPath returns the absolute path of the configured ffmpeg
// binary, or the configured name when it cannot be found on PATH.
func ResolveFFmpegPath(configured string) string {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = defaultFFmpeg
	}
	if resolved, err := exec.LookPath(name); err == nil {
		return resolved
	}
	return name
}

// ResolveFFprobePath finds ffprobe next to a configured ffmpeg path, falling
// back to the one on PATH.
func ResolveFFprobePath(ffmpegBinary string) string {
	name := strings.TrimSpace(ffmpegBinary)
	if strings.ContainsRune(name, filepath.Separator) {
		sibling := filepath.Join(filepath.Dir(name), defaultFFprobe)
		if resolved, err := exec.LookPath(sibling); err == nil {
			return resolved
		}
	}
	if resolved, err := exec.LookPath(defaultFFprobe); err == nil {
		return resolved
	}
	return defaultFFprobe
}

// Requirements lists the binaries the encoder worker and rescan execute.
func Requirements(ffmpegBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ResolveFFmpegPath(ffmpegBinary),
			Description: "Required for VAAPI encoding",
		},
		{
			Name:        "FFprobe",
			Command:     ResolveFFprobePath(ffmpegBinary),
			Description: "Used by rescan to skip rips that cannot be read yet",
			Optional:    true,
		},
	}
}
