// Package capture abstracts the external sources that yield one raw image
// blob per call: subprocess-based CLI tools and, where available, an
// in-process device RPC session.
package capture

import "context"

// Backend is the capability every capture source implements: start once,
// capture repeatedly, stop once.
type Backend interface {
	// Start prepares the backend (e.g. creates its temp directory, mounts
	// a developer disk image). Not required to be idempotent.
	Start(ctx context.Context) error

	// CaptureFrame yields one raw image blob, or an error tagged with one
	// of the xerrors kinds.
	CaptureFrame(ctx context.Context) ([]byte, error)

	// Stop releases any resources the backend holds.
	Stop() error
}

// Tool identifies which CLI tool a subprocess backend prefers.
type Tool string

// Supported capture tools and the "let the backend decide" sentinel.
const (
	ToolAuto              Tool = "auto"
	ToolIdeviceScreenshot Tool = "idevicescreenshot"
	ToolPymobiledevice3   Tool = "pymobiledevice3"
)
