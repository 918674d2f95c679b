package socks5

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

func TestClientHandshakeWireFormat(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		wantRequest []byte
	}{
		{
			name:   "ipv4",
			target: "192.0.2.7:443",
			wantRequest: []byte{
				0x05, 0x01, 0x00, // VER CMD RSV
				0x01,         // ATYP IPv4
				192, 0, 2, 7, // DST.ADDR
				0x01, 0xbb,   // DST.PORT 443
			},
		},
		{
			name:   "ipv6",
			target: "[2001:db8::1]:8080",
			wantRequest: append(append([]byte{
				0x05, 0x01, 0x00,
				0x04, // ATYP IPv6
			}, net.ParseIP("2001:db8::1").To16()...), 0x1f, 0x90),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				greeting := make([]byte, 3)
				if _, err := io.ReadFull(serverConn, greeting); err != nil {
					return err
				}
				if !bytes.Equal(greeting, []byte{0x05, 0x01, 0x00}) {
					t.Errorf("greeting = %#v, want 05 01 00", greeting)
				}
				if _, err := serverConn.Write([]byte{0x05, 0x00}); err != nil {
					return err
				}

				req := make([]byte, len(tt.wantRequest))
				if _, err := io.ReadFull(serverConn, req); err != nil {
					return err
				}
				if !bytes.Equal(req, tt.wantRequest) {
					t.Errorf("request = %#v, want %#v", req, tt.wantRequest)
				}

				_, err := serverConn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
				return err
			})

			if err := ClientHandshake(clientConn, netip.MustParseAddrPort(tt.target)); err != nil {
				t.Fatal(err)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClientNegotiateRejectedMethod(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		greeting := make([]byte, 3)
		if _, err := io.ReadFull(serverConn, greeting); err != nil {
			return err
		}
		// No acceptable methods.
		_, err := serverConn.Write([]byte{0x05, 0xff})
		return err
	})

	err := ClientNegotiate(clientConn)
	if !errors.Is(err, unix.ECONNREFUSED) {
		t.Fatalf("err = %v, want ECONNREFUSED", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientConnectRejectedAndShortReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
	}{
		{name: "rep_refused", reply: []byte{0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0}},
		{name: "short_reply", reply: []byte{0x05, 0x00, 0x00}},
		{name: "bad_version", reply: []byte{0x04, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				req := make([]byte, 10)
				if _, err := io.ReadFull(serverConn, req); err != nil {
					return err
				}
				if _, err := serverConn.Write(tt.reply); err != nil {
					return err
				}
				return serverConn.Close()
			})

			err := ClientConnect(clientConn, netip.MustParseAddrPort("198.51.100.1:80"))
			if !errors.Is(err, unix.ECONNREFUSED) {
				t.Fatalf("err = %v, want ECONNREFUSED", err)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClientConnectUnsupportedTarget(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	err := ClientConnect(clientConn, netip.AddrPort{})
	if !errors.Is(err, unix.EAFNOSUPPORT) {
		t.Fatalf("err = %v, want EAFNOSUPPORT", err)
	}
}

func TestClientHandshakeAgainstServerHelpers(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		if err := ServerNegotiateNoAuth(serverConn); err != nil {
			return err
		}
		req, err := ServerReadRequest(serverConn)
		if err != nil {
			return err
		}
		if req.Cmd != 0x01 {
			t.Errorf("cmd = %d, want CONNECT", req.Cmd)
		}
		return WriteSuccessReply(serverConn, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 12345})
	})

	if err := ClientHandshake(clientConn, netip.MustParseAddrPort("203.0.113.9:22")); err != nil {
		t.Fatal(err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
