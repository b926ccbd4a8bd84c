package sandbox

import (
	"path/filepath"
	"testing"
)

func TestOutputFilePath(t *testing.T) {
	got := OutputFilePath("/data/output", "scene_abc123.py")
	want := filepath.Join("/data/output", "videos", "scene_abc123", "1080p60", "output.mp4")
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestOutputFilePath_NoExtension(t *testing.T) {
	got := OutputFilePath("/out", "scene")
	want := filepath.Join("/out", "videos", "scene", "1080p60", "output.mp4")
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
