package encoding

import (
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"syscall"

	"reel/internal/retry"
	"reel/internal/services"
)

const stderrTailLines = 12

// Patterns are matched against the tail of ffmpeg output. Permanent patterns
// win when both match.
var (
	rePermanent = regexp.MustCompile(
		`(?i)Invalid data found when processing input|` +
			`No such file or directory|` +
			`Permission denied|` +
			`No space left on device|` +
			`Unknown encoder|Encoder not found|` +
			`Decoder \(codec .*\) not found|` +
			`moov atom not found|EBML header parsing failed|` +
			`Stream map .* matches no streams`)

	reTransient = regexp.MustCompile(
		`(?i)Failed to initiali[sz]e VAAPI|` +
			`vaInitialize failed|` +
			`Device creation failed|` +
			`Failed to create a VAAPI device|` +
			`Device setup failed for decoder|` +
			`hwaccel initiali[sz]ation returned error|` +
			`Failed to sync surface|` +
			`Device or resource busy|` +
			`Resource temporarily unavailable|` +
			`Cannot allocate memory|` +
			`Error while opening encoder .*vaapi`)
)

// MatchTransient reports whether output describes a hardware or contention
// problem that may clear on its own.
func MatchTransient(output string) bool { return reTransient.MatchString(output) }

// MatchPermanent reports whether output describes a defect in the input or
// environment that a repeat cannot fix.
func MatchPermanent(output string) bool { return rePermanent.MatchString(output) }

// EncodeError describes a failed encode attempt.
type EncodeError struct {
	Kind     retry.FailureKind
	Reason   string
	ExitCode int
	Tail     string
	Err      error
}

func (e *EncodeError) Error() string {
	var b strings.Builder
	b.WriteString("ffmpeg ")
	b.WriteString(e.Kind.String())
	b.WriteString(" failure")
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if last := lastLine(e.Tail); last != "" {
		b.WriteString(": ")
		b.WriteString(last)
	}
	return b.String()
}

// FailureKind implements retry.Classifier.
func (e *EncodeError) FailureKind() retry.FailureKind { return e.Kind }

// Unwrap exposes the cause and the services marker matching Kind.
func (e *EncodeError) Unwrap() []error {
	marker := services.ErrExternalTool
	if e.Kind == retry.Transient {
		marker = services.ErrTransient
	}
	if e.Err == nil {
		return []error{marker}
	}
	return []error{marker, e.Err}
}

func classify(runErr error, tail string) *EncodeError {
	encErr := &EncodeError{Kind: retry.Permanent, Tail: tail, Err: runErr, ExitCode: -1}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		encErr.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			encErr.Kind = retry.Transient
			encErr.Reason = fmt.Sprintf("killed by signal %s", status.Signal())
			return encErr
		}
	}

	switch {
	case MatchPermanent(tail):
		encErr.Reason = "input or environment rejected"
	case MatchTransient(tail):
		encErr.Kind = retry.Transient
		encErr.Reason = "hardware device unavailable"
	default:
		encErr.Reason = "unclassified error"
	}
	return encErr
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}

// lineTail keeps the most recent diagnostic lines.
type lineTail struct {
	max   int
	lines []string
}

func newLineTail(max int) *lineTail { return &lineTail{max: max} }

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string { return strings.Join(t.lines, "\n") }
