package proxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/txthinking/socks5"
)

type socks5Forwarder struct {
	cfg       Config
	proxyAddr string
	username  string
	password  string
}

// NewSOCKS5Forwarder chains outbound connections through another SOCKS5
// proxy at proxyAddr.
func NewSOCKS5Forwarder(cfg Config, proxyAddr, username, password string) Forwarder {
	return &socks5Forwarder{cfg: cfg, proxyAddr: proxyAddr, username: username, password: password}
}

func (f *socks5Forwarder) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	_ = ctx
	if network != "tcp" {
		return nil, fmt.Errorf("socks5 upstream dial %s %s: unsupported network", network, address)
	}

	tcpTimeout := 0
	if f.cfg.DialTimeout > 0 {
		tcpTimeout = int(time.Duration(f.cfg.DialTimeout).Seconds())
		if tcpTimeout <= 0 {
			tcpTimeout = 1
		}
	}

	client, err := socks5.NewClient(f.proxyAddr, f.username, f.password, tcpTimeout, 0)
	if err != nil {
		return nil, fmt.Errorf("socks5 upstream init: %w", err)
	}

	c, err := client.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("socks5 upstream dial %s %s: %w", network, address, err)
	}
	return c, nil
}
