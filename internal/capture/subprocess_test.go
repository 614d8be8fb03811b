package capture

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// writeFakeTool installs a shell script under dir/name that writes a fixed
// payload to its last argument (the output path), mimicking how
// idevicescreenshot/pymobiledevice3 are invoked.
func writeFakeTool(t *testing.T, dir, name, payload string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts are POSIX shell only")
	}

	script := "#!/bin/sh\nfor a; do :; done\necho -n '" + payload + "' > \"$a\"\n"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writeFakeTool: %v", err)
	}
}

func TestDiscoverToolFindsOverrideDir(t *testing.T) {
	dir := t.TempDir()
	writeFakeTool(t, dir, "idevicescreenshot", "x")
	t.Setenv(ToolOverrideEnvVar, dir)

	path, ok := discoverTool("idevicescreenshot")
	if !ok {
		t.Fatal("expected discoverTool to find the override-dir binary")
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("discovered path = %q, want dir %q", path, dir)
	}
}

func TestDiscoverToolMissing(t *testing.T) {
	t.Setenv(ToolOverrideEnvVar, t.TempDir())
	t.Setenv("PATH", t.TempDir())

	_, ok := discoverTool("definitely-not-a-real-tool-xyz")
	if ok {
		t.Fatal("expected discoverTool to report not found")
	}
}

func TestSubprocessBackendCapturesViaIdeviceScreenshot(t *testing.T) {
	dir := t.TempDir()
	writeFakeTool(t, dir, "idevicescreenshot", "fake-tiff-bytes")
	t.Setenv(ToolOverrideEnvVar, dir)

	b := NewSubprocessBackend(ToolIdeviceScreenshot, "", nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	data, err := b.CaptureFrame(context.Background())
	if err != nil {
		t.Fatalf("CaptureFrame: %v", err)
	}
	if string(data) != "fake-tiff-bytes" {
		t.Fatalf("CaptureFrame bytes = %q, want %q", data, "fake-tiff-bytes")
	}
}

func TestSubprocessBackendAutoStickyAfterFirstSuccess(t *testing.T) {
	dir := t.TempDir()
	writeFakeTool(t, dir, "pymobiledevice3", "png-bytes")
	t.Setenv(ToolOverrideEnvVar, dir)

	b := NewSubprocessBackend(ToolAuto, "", nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	if _, err := b.CaptureFrame(context.Background()); err != nil {
		t.Fatalf("first CaptureFrame: %v", err)
	}
	if b.stickyTool != ToolPymobiledevice3 {
		t.Fatalf("stickyTool = %q, want %q", b.stickyTool, ToolPymobiledevice3)
	}

	if _, err := b.CaptureFrame(context.Background()); err != nil {
		t.Fatalf("second CaptureFrame: %v", err)
	}
}

func TestSubprocessBackendAllToolsFailed(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ToolOverrideEnvVar, dir)
	t.Setenv("PATH", dir)

	b := NewSubprocessBackend(ToolAuto, "", nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	_, err := b.CaptureFrame(context.Background())
	if err == nil {
		t.Fatal("expected all-tools-failed error")
	}
}

func TestSubprocessBackendUniqueFilenamesPerFrame(t *testing.T) {
	dir := t.TempDir()
	writeFakeTool(t, dir, "idevicescreenshot", "x")
	t.Setenv(ToolOverrideEnvVar, dir)

	b := NewSubprocessBackend(ToolIdeviceScreenshot, "", nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	for i := 0; i < 3; i++ {
		if _, err := b.CaptureFrame(context.Background()); err != nil {
			t.Fatalf("CaptureFrame[%d]: %v", i, err)
		}
	}
	if b.frameSeq.Load() != 3 {
		t.Fatalf("frameSeq = %d, want 3", b.frameSeq.Load())
	}
}
