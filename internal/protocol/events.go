package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SupportedVersion is the rip-done payload version this build understands.
const SupportedVersion = 1

var (
	// ErrInvalidEvent marks announcements rejected before queuing.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrUnsupportedVersion marks announcements with a foreign payload version.
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", ErrInvalidEvent)
)

// Mode selects the destination tree for a job.
type Mode string

const (
	ModeSeries Mode = "series"
	ModeMovie  Mode = "movie"
)

// ParseMode normalizes a wire mode. Empty defaults to series.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(ModeSeries):
		return ModeSeries, nil
	case string(ModeMovie):
		return ModeMovie, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidEvent, value)
	}
}

// SourceType names the disc format a rip came from.
type SourceType string

const (
	SourceDVD    SourceType = "dvd"
	SourceBluray SourceType = "bluray"
)

// ParseSourceType normalizes a source type. Empty is allowed and means unknown.
func ParseSourceType(value string) (SourceType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case string(SourceDVD):
		return SourceDVD, nil
	case string(SourceBluray):
		return SourceBluray, nil
	default:
		return "", fmt.Errorf("%w: unknown source type %q", ErrInvalidEvent, value)
	}
}

// RipDoneEvent announces a freshly ripped directory.
type RipDoneEvent struct {
	Version    int        `json:"version"`
	SourcePath string     `json:"source_path"`
	Mode       Mode       `json:"mode,omitempty"`
	Series     string     `json:"series,omitempty"`
	Season     string     `json:"season,omitempty"`
	Disc       string     `json:"disc,omitempty"`
	SourceType SourceType `json:"source_type,omitempty"`
	// Files optionally narrows the job to these files inside SourcePath.
	Files []string `json:"files,omitempty"`
}

// ripDoneWire accepts the legacy "path" key next to "source_path".
type ripDoneWire struct {
	Version    *int     `json:"version"`
	SourcePath string   `json:"source_path"`
	Path       string   `json:"path"`
	Mode       string   `json:"mode"`
	Series     string   `json:"series"`
	Season     string   `json:"season"`
	Disc       string   `json:"disc"`
	SourceType string   `json:"source_type"`
	Files      []string `json:"files"`
}

// DecodeRipDone parses a broker payload. Enum fields are normalized but not
// validated; call Validate before acting on the event.
func DecodeRipDone(payload []byte) (RipDoneEvent, error) {
	var wire ripDoneWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return RipDoneEvent{}, fmt.Errorf("%w: decode json: %w", ErrInvalidEvent, err)
	}
	if wire.Version == nil {
		return RipDoneEvent{}, fmt.Errorf("%w: missing version", ErrInvalidEvent)
	}
	source := strings.TrimSpace(wire.SourcePath)
	if source == "" {
		source = strings.TrimSpace(wire.Path)
	}
	return RipDoneEvent{
		Version:    *wire.Version,
		SourcePath: source,
		Mode:       Mode(strings.ToLower(strings.TrimSpace(wire.Mode))),
		Series:     strings.TrimSpace(wire.Series),
		Season:     strings.TrimSpace(wire.Season),
		Disc:       strings.TrimSpace(wire.Disc),
		SourceType: SourceType(strings.ToLower(strings.TrimSpace(wire.SourceType))),
		Files:      wire.Files,
	}, nil
}

// Encode renders the event as JSON.
func (e RipDoneEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Validate checks the event against the supported version and normalizes
// mode, source type, and the optional file subset (made relative to
// SourcePath). The receiver is updated in place.
func (e *RipDoneEvent) Validate(supportedVersion int) error {
	if e.Version != supportedVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, e.Version, supportedVersion)
	}
	if e.SourcePath == "" {
		return fmt.Errorf("%w: source_path is required", ErrInvalidEvent)
	}
	if !filepath.IsAbs(e.SourcePath) {
		return fmt.Errorf("%w: source_path must be absolute, got %q", ErrInvalidEvent, e.SourcePath)
	}
	e.SourcePath = filepath.Clean(e.SourcePath)

	mode, err := ParseMode(string(e.Mode))
	if err != nil {
		return err
	}
	e.Mode = mode

	sourceType, err := ParseSourceType(string(e.SourceType))
	if err != nil {
		return err
	}
	e.SourceType = sourceType

	if len(e.Files) == 0 {
		e.Files = nil
		return nil
	}
	files := make([]string, 0, len(e.Files))
	for _, file := range e.Files {
		rel, err := relativeInside(e.SourcePath, file)
		if err != nil {
			return err
		}
		files = append(files, rel)
	}
	e.Files = files
	return nil
}

func relativeInside(base, file string) (string, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return "", fmt.Errorf("%w: empty entry in files", ErrInvalidEvent)
	}
	rel := file
	if filepath.IsAbs(file) {
		var err error
		rel, err = filepath.Rel(base, filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("%w: file %q: %w", ErrInvalidEvent, file, err)
		}
	}
	rel = filepath.Clean(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: file %q is outside %s", ErrInvalidEvent, file, base)
	}
	return rel, nil
}

// Phase is the lifecycle step reported for one file.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseDone  Phase = "done"
	PhaseError Phase = "error"
)

// StatusEvent reports progress of one media file.
type StatusEvent struct {
	Version     int    `json:"version"`
	Phase       Phase  `json:"phase"`
	InputPath   string `json:"input_path"`
	OutputPath  string `json:"output_path"`
	ErrorDetail string `json:"error_detail,omitempty"`
	JobID       int64  `json:"job_id,omitempty"`
	Timestamp   int64  `json:"ts"`
}

func newStatus(phase Phase, version int, jobID int64, input, output string) StatusEvent {
	return StatusEvent{
		Version:    version,
		Phase:      phase,
		InputPath:  input,
		OutputPath: output,
		JobID:      jobID,
		Timestamp:  time.Now().Unix(),
	}
}

// NewStart builds a start event.
func NewStart(version int, jobID int64, input, output string) StatusEvent {
	return newStatus(PhaseStart, version, jobID, input, output)
}

// NewDone builds a done event.
func NewDone(version int, jobID int64, input, output string) StatusEvent {
	return newStatus(PhaseDone, version, jobID, input, output)
}

// NewError builds an error event carrying detail.
func NewError(version int, jobID int64, input, output, detail string) StatusEvent {
	evt := newStatus(PhaseError, version, jobID, input, output)
	evt.ErrorDetail = detail
	return evt
}

// Encode renders the event as JSON.
func (e StatusEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeStatus parses a status payload.
func DecodeStatus(payload []byte) (StatusEvent, error) {
	var evt StatusEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return StatusEvent{}, fmt.Errorf("decode status: %w", err)
	}
	return evt, nil
}
