package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/HandleConsolidated/xtool/internal/xerrors"
)

// SubprocessBackend spawns an external CLI tool per frame, writing its
// output to a per-process temp directory. On ToolAuto, the first tool that
// succeeds is sticky for the backend's lifetime.
type SubprocessBackend struct {
	preference Tool
	udid       string
	logger     *zap.Logger

	tempDir    string
	frameSeq   atomic.Uint64
	stickyTool Tool // "" until a tool has succeeded once under ToolAuto
}

// NewSubprocessBackend creates a backend that prefers the given tool
// (ToolAuto lets the backend pick whichever succeeds first).
func NewSubprocessBackend(preference Tool, udid string, logger *zap.Logger) *SubprocessBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubprocessBackend{preference: preference, udid: udid, logger: logger}
}

// Start creates the backend's per-process temp directory.
func (b *SubprocessBackend) Start(ctx context.Context) error {
	dir, err := os.MkdirTemp("", fmt.Sprintf("xtool-preview-%d-", os.Getpid()))
	if err != nil {
		return xerrors.Wrap(xerrors.ResourceMissing, "failed to create capture temp directory", err)
	}
	b.tempDir = dir
	return nil
}

// Stop removes the temp directory.
func (b *SubprocessBackend) Stop() error {
	if b.tempDir == "" {
		return nil
	}
	err := os.RemoveAll(b.tempDir)
	b.tempDir = ""
	return err
}

// CaptureFrame runs the preferred (or sticky) tool and returns its output
// bytes.
func (b *SubprocessBackend) CaptureFrame(ctx context.Context) ([]byte, error) {
	outputPath := filepath.Join(b.tempDir, fmt.Sprintf("frame-%d", b.frameSeq.Add(1)))

	switch {
	case b.preference == ToolIdeviceScreenshot:
		return b.captureWithIdeviceScreenshot(ctx, outputPath)
	case b.preference == ToolPymobiledevice3:
		return b.captureWithPymobiledevice3(ctx, outputPath)
	case b.stickyTool == ToolIdeviceScreenshot:
		return b.captureWithIdeviceScreenshot(ctx, outputPath)
	case b.stickyTool == ToolPymobiledevice3:
		return b.captureWithPymobiledevice3(ctx, outputPath)
	default:
		return b.captureAuto(ctx, outputPath)
	}
}

// captureAuto tries idevicescreenshot first (faster, no interpreter), then
// pymobiledevice3; whichever succeeds becomes sticky.
func (b *SubprocessBackend) captureAuto(ctx context.Context, outputPath string) ([]byte, error) {
	if data, err := b.captureWithIdeviceScreenshot(ctx, outputPath); err == nil {
		b.stickyTool = ToolIdeviceScreenshot
		return data, nil
	}

	if data, err := b.captureWithPymobiledevice3(ctx, outputPath); err == nil {
		b.stickyTool = ToolPymobiledevice3
		return data, nil
	}

	return nil, xerrors.New(xerrors.ResourceMissing,
		"all-tools-failed: start the developer tunnel and retry")
}

func (b *SubprocessBackend) captureWithIdeviceScreenshot(ctx context.Context, outputPath string) ([]byte, error) {
	path, ok := discoverTool(string(ToolIdeviceScreenshot))
	if !ok {
		return nil, xerrors.New(xerrors.ResourceMissing, "idevicescreenshot not found")
	}

	args := []string{}
	if b.udid != "" {
		args = append(args, "-u", b.udid)
	}
	args = append(args, outputPath)

	if err := b.run(ctx, path, args); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.TransientCaptureFailure, "failed to read capture output", err)
	}
	return data, nil
}

func (b *SubprocessBackend) captureWithPymobiledevice3(ctx context.Context, outputPath string) ([]byte, error) {
	path, ok := discoverTool(string(ToolPymobiledevice3))
	if !ok {
		return nil, xerrors.New(xerrors.ResourceMissing, "pymobiledevice3 not found")
	}

	args := []string{"developer", "dvt", "screenshot", outputPath}
	if b.udid != "" {
		args = append(args, "--udid", b.udid)
	}

	if err := b.run(ctx, path, args); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.TransientCaptureFailure, "failed to read capture output", err)
	}
	return data, nil
}

func (b *SubprocessBackend) run(ctx context.Context, path string, args []string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		b.logger.Debug("capture tool failed",
			zap.String("tool", path),
			zap.ByteString("output", output),
			zap.Error(err),
		)
		return xerrors.Wrap(xerrors.SubprocessFailure, string(output), err)
	}
	return nil
}
