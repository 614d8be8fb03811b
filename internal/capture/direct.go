package capture

import (
	"context"

	"go.uber.org/zap"

	"github.com/HandleConsolidated/xtool/internal/ddi"
	"github.com/HandleConsolidated/xtool/internal/xerrors"
)

// ScreenshotSession is the narrow device-RPC surface the direct backend
// needs: a handshake, a screenshot service, and per-frame capture. Real
// implementations speak the device's lockdown/AFC-style mux protocol;
// none ships in this module (see DESIGN.md), and no test exercises
// DirectBackend.
type ScreenshotSession interface {
	Handshake(ctx context.Context) error
	StartScreenshotService(ctx context.Context) error
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// SessionDialer opens a ScreenshotSession against a device over a shared
// mux. DirectBackend calls this once in Start.
type SessionDialer func(ctx context.Context, udid string) (ScreenshotSession, error)

// DirectBackend speaks a device RPC protocol directly instead of shelling
// out to a CLI tool. It is gated behind platform build configuration in
// real deployments (the mux transport is platform-specific); here it is
// gated behind having a SessionDialer at all.
type DirectBackend struct {
	dial   SessionDialer
	udid   string
	cache  *ddi.Cache
	logger *zap.Logger

	session ScreenshotSession
}

// NewDirectBackend creates a backend that dials sessions with dial. cache
// may be nil to skip the developer-disk-image mount attempt.
func NewDirectBackend(dial SessionDialer, udid string, cache *ddi.Cache, logger *zap.Logger) *DirectBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectBackend{dial: dial, udid: udid, cache: cache, logger: logger}
}

// Start attempts to mount the device's developer disk image (swallowing
// any failure so the subsequent handshake can surface a clearer error),
// then dials and handshakes a session.
func (b *DirectBackend) Start(ctx context.Context) error {
	if b.cache != nil {
		if err := b.cache.EnsureMounted(ctx, b.udid); err != nil {
			b.logger.Warn("developer disk image mount attempt failed, continuing",
				zap.String("udid", b.udid), zap.Error(err))
		}
	}

	if b.dial == nil {
		return xerrors.New(xerrors.ResourceMissing,
			"no device RPC transport is registered for this platform")
	}

	session, err := b.dial(ctx, b.udid)
	if err != nil {
		return xerrors.Wrap(xerrors.ProtocolFailure, "dial failed", err)
	}

	if err := session.Handshake(ctx); err != nil {
		_ = session.Close()
		return xerrors.Wrap(xerrors.ProtocolFailure, "handshake failed", err)
	}

	if err := session.StartScreenshotService(ctx); err != nil {
		_ = session.Close()
		return xerrors.Wrap(xerrors.ProtocolFailure, "screenshot service start failed", err)
	}

	b.session = session
	return nil
}

// CaptureFrame asks the open session for one frame.
func (b *DirectBackend) CaptureFrame(ctx context.Context) ([]byte, error) {
	if b.session == nil {
		return nil, xerrors.New(xerrors.ProtocolFailure, "session not started")
	}
	data, err := b.session.Capture(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.TransientCaptureFailure, "capture failed", err)
	}
	return data, nil
}

// Stop releases the session, if any.
func (b *DirectBackend) Stop() error {
	if b.session == nil {
		return nil
	}
	err := b.session.Close()
	b.session = nil
	return err
}
