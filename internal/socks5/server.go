package socks5

import (
	"fmt"
	"io"
	"net"

	txsocks5 "github.com/txthinking/socks5"
)

// CmdConnect is the SOCKS5 CONNECT command value.
const CmdConnect = txsocks5.CmdConnect

// ServerNegotiateNoAuth answers a client greeting by selecting the "no
// authentication" method, refusing clients that do not offer it.
func ServerNegotiateNoAuth(rw io.ReadWriter) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(rw)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if !containsMethod(neg.Methods, txsocks5.MethodNone) {
		// RFC 1928: 0xFF indicates no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(rw)
		return fmt.Errorf("client does not offer no-auth")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(rw); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ServerReadRequest reads and parses the client's command request.
func ServerReadRequest(rw io.ReadWriter) (*txsocks5.Request, error) {
	req, err := txsocks5.NewRequestFrom(rw)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	return req, nil
}

// WriteSuccessReply writes a SOCKS5 success reply using localAddr as the
// bound address.
func WriteSuccessReply(rw io.ReadWriter, localAddr net.Addr) error {
	a, addr, port, err := txsocks5.ParseAddress(localAddr.String())
	if err != nil {
		return fmt.Errorf("parse local address %q: %w", localAddr.String(), err)
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(rw); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}

// WriteCommandNotSupportedReply writes a SOCKS5 reply indicating that the
// requested command is not supported.
func WriteCommandNotSupportedReply(rw io.ReadWriter, atyp byte) {
	_, _ = newZeroAddrReply(txsocks5.RepCommandNotSupported, atyp).WriteTo(rw)
}

// WriteConnectionRefusedReply writes a SOCKS5 reply indicating the
// destination connection was refused.
func WriteConnectionRefusedReply(rw io.ReadWriter, atyp byte) {
	_, _ = newZeroAddrReply(txsocks5.RepConnectionRefused, atyp).WriteTo(rw)
}

func newZeroAddrReply(rep, atyp byte) *txsocks5.Reply {
	if atyp == txsocks5.ATYPIPv6 {
		return txsocks5.NewReply(rep, txsocks5.ATYPIPv6, []byte(net.IPv6zero), []byte{0x00, 0x00})
	}
	return txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00})
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
