package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be reported, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[2].Detail)
	}
	if missing := Missing(results); len(missing) != 2 {
		t.Fatalf("expected two missing requirements, got %d", len(missing))
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	statuses := []Status{{Name: "ffprobe", Optional: true}, {Name: "ffmpeg", Available: true}}
	if missing := Missing(statuses); len(missing) != 0 {
		t.Fatalf("expected nothing missing, got %#v", missing)
	}
}

func TestResolveFFmpegPathFromPATH(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := writeStub(t, binDir, "ffmpeg")
	t.Setenv("PATH", binDir)

	if got := ResolveFFmpegPath(""); got != ffmpegPath {
		t.Fatalf("expected %q, got %q", ffmpegPath, got)
	}
	if got := ResolveFFmpegPath("  ffmpeg "); got != ffmpegPath {
		t.Fatalf("expected trimmed name to resolve, got %q", got)
	}
}

func TestResolveFFmpegPathNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	if got := ResolveFFmpegPath("ffmpeg-vaapi"); got != "ffmpeg-vaapi" {
		t.Fatalf("expected configured name back, got %q", got)
	}
	statuses := CheckBinaries(Requirements("ffmpeg-vaapi"))
	if statuses[0].Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
	if len(Missing(statuses)) != 1 {
		t.Fatal("expected ffmpeg to be the only missing requirement")
	}
}

func TestResolveFFprobePathPrefersSibling(t *testing.T) {
	pathDir := t.TempDir()
	onPath := writeStub(t, pathDir, "ffprobe")
	t.Setenv("PATH", pathDir)

	customDir := t.TempDir()
	ffmpeg := writeStub(t, customDir, "ffmpeg")
	sibling := writeStub(t, customDir, "ffprobe")
	if got := ResolveFFprobePath(ffmpeg); got != sibling {
		t.Fatalf("expected sibling %q, got %q", sibling, got)
	}
	if got := ResolveFFprobePath("ffmpeg"); got != onPath {
		t.Fatalf("expected PATH lookup %q, got %q", onPath, got)
	}
	if got := ResolveFFprobePath(filepath.Join(t.TempDir(), "ffmpeg")); got != onPath {
		t.Fatalf("expected PATH fallback %q, got %q", onPath, got)
	}
}
