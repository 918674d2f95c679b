package shim

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Shim holds one interception domain: configuration, the resolved-symbol
// table, the listener table, and the control-channel notifier. A process
// normally has exactly one (see Enable); tests construct their own.
type Shim struct {
	cfg       Config
	sys       *Sys
	proxyAddr unix.SockaddrInet4

	table    listenerTable
	notifier notifier
}

// New constructs a Shim from cfg. A nil sys means the real implementations.
func New(cfg Config, sys *Sys) *Shim {
	if sys == nil {
		sys = DefaultSys()
	}
	s := &Shim{cfg: cfg, sys: sys}
	s.proxyAddr = proxySockaddr(cfg)
	s.notifier.addr = cfg.ControlSocket
	return s
}

func proxySockaddr(cfg Config) unix.SockaddrInet4 {
	sa := unix.SockaddrInet4{Port: cfg.ProxyPort, Addr: [4]byte{127, 0, 0, 1}}
	if addr, err := netip.ParseAddr(cfg.ProxyHost); err == nil && addr.Is4() {
		sa.Addr = addr.As4()
	}
	return sa
}

var processShim = sync.OnceValue(func() *Shim {
	s := New(ConfigFromEnv(), nil)
	if s.cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[tailproxy] shim initialized: proxy=%s:%d export=%v\n",
			s.cfg.ProxyHost, s.cfg.ProxyPort, s.cfg.ExportListeners)
	}
	return s
})

// Enable initializes and returns the process-wide shim. It is idempotent
// and safe to call from every intercepted entry point concurrently; the
// attachment layer calls it once eagerly at load time and the package-level
// entry points call it defensively.
func Enable() *Shim {
	return processShim()
}

// Package-level entry points operating on the process-wide shim.

func Connect(fd int, sa unix.Sockaddr) error { return Enable().Connect(fd, sa) }
func Bind(fd int, sa unix.Sockaddr) error    { return Enable().Bind(fd, sa) }
func Listen(fd, backlog int) error           { return Enable().Listen(fd, backlog) }
func Close(fd int) error                     { return Enable().Close(fd) }

// Errno maps an error returned by a shim entry point to the errno the
// intercepted caller should observe. Errors that do not carry an errno
// (unexpected internal failures) are reported as EIO.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

func (s *Shim) verbosef(format string, args ...any) {
	if s.cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[tailproxy] "+format+"\n", args...)
	}
}

// isStream reports whether fd is a connection-oriented stream socket. Any
// classification failure counts as "not a stream": the call then passes
// through untouched, which is the safe direction.
func (s *Shim) isStream(fd int) bool {
	typ, err := s.sys.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	return err == nil && typ == unix.SOCK_STREAM
}
