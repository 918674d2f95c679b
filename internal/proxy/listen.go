package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenTCP opens a TCP listener whose accepted connections carry the given
// keepalive configuration. The kernel applies it at accept time, so no
// wrapper listener is needed.
func ListenTCP(ctx context.Context, network, addr string, keepAlive net.KeepAliveConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: keepAlive}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return ln, nil
}
