package proxy

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/txthinking/socks5"

	"github.com/perplexes/tailproxy/internal/testutil"
)

func TestSOCKS5ConnectDirect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	cfg := Config{DialTimeout: 2 * time.Second}
	cfg.Forward = NewDirectForwarder(cfg, nil)

	ln, err := ListenTCP(ctx, "tcp", "127.0.0.1:0", net.KeepAliveConfig{Enable: false})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := NewSOCKS5Server(ctx, cfg)
	go func() { _ = srv.Serve(ln) }()

	client, err := socks5.NewClient(ln.Addr().String(), "", "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}

	c, err := client.Dial("tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	testutil.AssertEcho(t, c, c, []byte("hello"))
}

func TestSOCKS5ConnectRefusedDestination(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Grab a destination port with nothing behind it.
	deadLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := deadLn.Addr().String()
	_ = deadLn.Close()

	cfg := Config{DialTimeout: time.Second}
	cfg.Forward = NewDirectForwarder(cfg, nil)

	ln, err := ListenTCP(ctx, "tcp", "127.0.0.1:0", net.KeepAliveConfig{Enable: false})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := NewSOCKS5Server(ctx, cfg)
	go func() { _ = srv.Serve(ln) }()

	client, err := socks5.NewClient(ln.Addr().String(), "", "", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Dial("tcp", deadAddr); err == nil {
		t.Fatal("expected connect failure for dead destination")
	}
}
