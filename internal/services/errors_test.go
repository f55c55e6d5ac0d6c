package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"reel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "encode", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"encode", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
		kind string
	}{
		{"nil", nil, false, ""},
		{"busy", services.Wrap(services.ErrHardwareBusy, "encode", "lock", "held", nil), true, "hardware_busy"},
		{"timeout", fmt.Errorf("outer: %w", services.Wrap(services.ErrTimeout, "", "", "slow", nil)), true, "timeout"},
		{"transient", services.Wrap(services.ErrTransient, "encode", "", "", nil), true, "transient"},
		{"tool", services.Wrap(services.ErrExternalTool, "encode", "ffmpeg", "exit 1", nil), false, "external_tool"},
		{"validation", services.Wrap(services.ErrValidation, "", "", "", nil), false, "validation"},
		{"plain", errors.New("plain"), false, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable = %v, want %v", got, tc.want)
			}
			if got := services.Kind(tc.err); got != tc.kind {
				t.Fatalf("Kind = %q, want %q", got, tc.kind)
			}
		})
	}
}
