package proxy

import (
	"context"
	"fmt"
	"net"
)

type directForwarder struct {
	cfg      Config
	resolver *Resolver
}

// NewDirectForwarder dials targets directly, resolving domain names through
// resolver first. A nil resolver falls back to the system resolver inside
// net.Dialer.
func NewDirectForwarder(cfg Config, resolver *Resolver) Forwarder {
	return &directForwarder{cfg: cfg, resolver: resolver}
}

func (f *directForwarder) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if f.resolver != nil {
		host, port, err := net.SplitHostPort(address)
		if err == nil && net.ParseIP(host) == nil {
			ip, rerr := f.resolver.Resolve(ctx, host)
			if rerr != nil {
				return nil, fmt.Errorf("resolve %s: %w", host, rerr)
			}
			address = net.JoinHostPort(ip.String(), port)
		}
	}

	dd := net.Dialer{Timeout: f.cfg.DialTimeout}

	conn, err := dd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(f.cfg.KeepAlive)
	}

	return conn, nil
}
