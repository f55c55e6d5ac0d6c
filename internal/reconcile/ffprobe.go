package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"reel/internal/encoding"
	"reel/internal/protocol"
)

// HeightReader reports the height of the first video stream of a media file.
// An error means the file cannot be read yet.
type HeightReader interface {
	Height(ctx context.Context, path string) (int, error)
}

// FFprobe reads stream heights with the ffprobe binary.
type FFprobe struct {
	binary string
	exec   encoding.Executor
}

// NewFFprobe returns a reader running binary. A nil exec runs real processes.
func NewFFprobe(binary string, exec encoding.Executor) *FFprobe {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if exec == nil {
		exec = encoding.NewCommandExecutor()
	}
	return &FFprobe{binary: binary, exec: exec}
}

// Height implements HeightReader.
func (f *FFprobe) Height(ctx context.Context, path string) (int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=height",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	height := 0
	var output []string
	err := f.exec.Run(ctx, f.binary, args, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		if height == 0 {
			if value, convErr := strconv.Atoi(line); convErr == nil && value > 0 {
				height = value
				return
			}
		}
		output = append(output, line)
	})
	if err != nil {
		if len(output) > 0 {
			return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, output[len(output)-1])
		}
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	if height == 0 {
		return 0, fmt.Errorf("ffprobe %s: %w", path, errNoVideoHeight)
	}
	return height, nil
}

var errNoVideoHeight = errors.New("no video stream height reported")

// ClassifyHeight maps a video height to a disc format. Heights between SD
// and HD are ambiguous and yield an empty type.
func ClassifyHeight(height int) protocol.SourceType {
	switch {
	case height <= 0:
		return ""
	case height <= 576:
		return protocol.SourceDVD
	case height >= 720:
		return protocol.SourceBluray
	default:
		return ""
	}
}
