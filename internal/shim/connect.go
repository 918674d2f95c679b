package shim

import (
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/perplexes/tailproxy/internal/socks5"
)

// proxyConnectTimeout bounds the wait for the hop to the proxy when the
// kernel reports the connect as in progress.
const proxyConnectTimeout = 30 * time.Second

// Connect intercepts a connect attempt on fd toward sa.
//
// Datagram and other non-stream sockets pass through untouched, as do
// stream connects to IPv4 loopback (local traffic is never proxied; the
// IPv6 loopback is deliberately not exempted). Eligible connects are
// redirected to the configured SOCKS5 proxy: the socket is forced into
// blocking mode for the handshake, connected to the proxy, and the CONNECT
// for the caller's original destination is relayed. The caller's blocking
// mode is restored on every exit path.
func (s *Shim) Connect(fd int, sa unix.Sockaddr) error {
	if s.sys.Connect == nil {
		return unix.ENOSYS
	}

	if !s.isStream(fd) {
		return s.sys.Connect(fd, sa)
	}

	var target netip.AddrPort
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		if sa.Addr[0] == 127 { // 127.0.0.0/8
			return s.sys.Connect(fd, sa)
		}
		target = netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		target = netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	default:
		return unix.EAFNOSUPPORT
	}

	s.verbosef("intercepting connect to %s", target)

	// The SOCKS5 exchange is a synchronous read/write sequence; the
	// caller's non-blocking contract concerns its destination, not the
	// internal proxy hop.
	flags, err := s.sys.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	wasNonblocking := err == nil && flags&unix.O_NONBLOCK != 0
	if wasNonblocking {
		_, _ = s.sys.FcntlInt(uintptr(fd), unix.F_SETFL, flags&^unix.O_NONBLOCK)
		defer func() {
			_, _ = s.sys.FcntlInt(uintptr(fd), unix.F_SETFL, flags)
		}()
	}

	proxy := s.proxyAddr
	switch err := s.sys.Connect(fd, &proxy); err {
	case nil:
	case unix.EINPROGRESS:
		// Surfaced by some kernels even after the switch to blocking
		// mode; wait for the connect to settle.
		if err := s.waitProxyConnect(fd); err != nil {
			s.verbosef("proxy connect: %v", err)
			return err
		}
	default:
		s.verbosef("proxy connect: %v", err)
		return err
	}

	if err := socks5.ClientHandshake(fdConn{fd: fd, sys: s.sys}, target); err != nil {
		s.verbosef("socks5 handshake with %s:%d: %v", s.cfg.ProxyHost, s.cfg.ProxyPort, err)
		return err
	}

	return nil
}

// waitProxyConnect waits up to proxyConnectTimeout for fd to become
// writable, then checks the socket's pending error. Poll failures and
// expiry both count as a connect timeout.
func (s *Shim) waitProxyConnect(fd int) error {
	pfds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := s.sys.Poll(pfds, int(proxyConnectTimeout/time.Millisecond))
	if err != nil || n == 0 {
		return unix.ETIMEDOUT
	}

	soerr, err := s.sys.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}
