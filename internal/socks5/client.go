package socks5

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/sys/unix"
)

// ClientHandshake drives a complete no-auth SOCKS5 handshake over rw:
// method negotiation followed by a CONNECT to target. On success the
// transport carries the proxied payload transparently. On any failure the
// transport is in an undefined state and must be discarded by the caller.
func ClientHandshake(rw io.ReadWriter, target netip.AddrPort) error {
	if err := ClientNegotiate(rw); err != nil {
		return err
	}
	return ClientConnect(rw, target)
}

// ClientNegotiate sends the 3-byte greeting offering only the "no
// authentication" method and validates the 2-byte reply. A proxy that
// selects any other method is treated as having refused the connection.
func ClientNegotiate(rw io.ReadWriter) error {
	if _, err := txsocks5.NewNegotiationRequest([]byte{txsocks5.MethodNone}).WriteTo(rw); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(rw)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", unix.ECONNREFUSED)
	}
	if neg.Method != txsocks5.MethodNone {
		return fmt.Errorf("proxy selected method 0x%02x: %w", neg.Method, unix.ECONNREFUSED)
	}
	return nil
}

// ClientConnect sends a CONNECT request for target and validates the reply.
// Only IPv4 and IPv6 targets are encodable; anything else fails with
// EAFNOSUPPORT before any bytes are written.
func ClientConnect(rw io.ReadWriter, target netip.AddrPort) error {
	atyp, addr, err := encodeAddr(target.Addr())
	if err != nil {
		return err
	}
	port := binary.BigEndian.AppendUint16(nil, target.Port())

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, addr, port).WriteTo(rw); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	// The reply's bound address is consumed as part of parsing but its
	// contents are irrelevant to the shim; only VER and REP matter.
	rep, err := txsocks5.NewReplyFrom(rw)
	if err != nil {
		return fmt.Errorf("read reply: %w", unix.ECONNREFUSED)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("proxy reply 0x%02x: %w", rep.Rep, unix.ECONNREFUSED)
	}
	return nil
}

func encodeAddr(addr netip.Addr) (byte, []byte, error) {
	switch {
	case addr.Is4():
		a := addr.As4()
		return txsocks5.ATYPIPv4, a[:], nil
	case addr.Is6():
		// Includes 4-in-6 mapped addresses: an AF_INET6 sockaddr is
		// relayed as the 16 bytes the application supplied.
		a := addr.As16()
		return txsocks5.ATYPIPv6, a[:], nil
	default:
		return 0, nil, fmt.Errorf("target %s: %w", addr, unix.EAFNOSUPPORT)
	}
}
