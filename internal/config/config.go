// Package config loads the preview pipeline's TOML configuration file:
// the pieces of server/device/capture setup that are not CLI flags (the
// CLI front-end itself lives elsewhere and owns flag parsing).
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/HandleConsolidated/xtool/internal/capture"
)

const (
	DefaultPort = 8034
	DefaultFPS  = 5
	DefaultJPEGQuality = 80
)

// Config is the on-disk shape of a preview config file.
type Config struct {
	Port        int    `toml:"port"`
	FPS         int    `toml:"fps"`
	JPEGQuality int    `toml:"jpeg_quality"`
	CaptureTool string `toml:"capture_tool"`
	ToolDir     string `toml:"tool_dir"`
}

// Default returns the baseline configuration before any file or flag
// overrides are applied.
func Default() Config {
	return Config{
		Port:        DefaultPort,
		FPS:         DefaultFPS,
		JPEGQuality: DefaultJPEGQuality,
		CaptureTool: string(capture.ToolAuto),
	}
}

// Load reads a TOML config file at path, applying its values on top of
// Default(). An empty path is not an error: Default() is returned
// unchanged. A path naming a file that cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Tool resolves the configured capture tool preference, defaulting to
// ToolAuto for an unrecognized or empty value.
func (c Config) Tool() capture.Tool {
	switch capture.Tool(c.CaptureTool) {
	case capture.ToolIdeviceScreenshot:
		return capture.ToolIdeviceScreenshot
	case capture.ToolPymobiledevice3:
		return capture.ToolPymobiledevice3
	default:
		return capture.ToolAuto
	}
}
