package proxy

import (
	"context"
	"net"
)

// Forwarder establishes outbound connections on behalf of the SOCKS5
// server.
type Forwarder interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}
