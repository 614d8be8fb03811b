package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HandleConsolidated/xtool/internal/capture"
)

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load(\"\") = %+v, want Default()", cfg)
	}
}

func TestLoadOverridesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xtool-preview.toml")
	contents := "port = 9000\nfps = 12\ncapture_tool = \"idevicescreenshot\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 || cfg.FPS != 12 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Tool() != capture.ToolIdeviceScreenshot {
		t.Fatalf("Tool() = %q, want idevicescreenshot", cfg.Tool())
	}
	if cfg.JPEGQuality != DefaultJPEGQuality {
		t.Fatalf("JPEGQuality = %d, want default %d unchanged by partial file", cfg.JPEGQuality, DefaultJPEGQuality)
	}
}

func TestToolDefaultsToAutoForUnknownValue(t *testing.T) {
	cfg := Default()
	cfg.CaptureTool = "something-else"
	if cfg.Tool() != capture.ToolAuto {
		t.Fatalf("Tool() = %q, want auto", cfg.Tool())
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
