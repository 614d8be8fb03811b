//go:build windows

package server

import (
	"context"
	"net"
)

// listen binds addr. Windows doesn't need the SO_REUSEADDR dance the unix
// build uses to dodge TIME_WAIT, so this is a plain listen.
func listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
