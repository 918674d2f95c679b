package shim

import "golang.org/x/sys/unix"

var loopback6 = [16]byte{15: 1} // ::1

// Bind intercepts a bind attempt on fd toward sa.
//
// With export tracking disabled everything passes through. Otherwise stream
// sockets are recorded in the listener table, and any non-loopback IPv4 or
// IPv6 address is rewritten to the loopback of the same family with the
// requested port (and, for IPv6, scope) preserved. The caller is not told
// the address changed; the external exporter is the only sanctioned path to
// wider exposure.
func (s *Shim) Bind(fd int, sa unix.Sockaddr) error {
	if s.sys.Bind == nil {
		return unix.ENOSYS
	}
	if !s.cfg.ExportListeners || !s.isStream(fd) {
		return s.sys.Bind(fd, sa)
	}

	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		s.table.track(fd, familyTCP4)
		if sa.Addr[0] == 127 {
			return s.sys.Bind(fd, sa)
		}
		rewritten := *sa
		rewritten.Addr = [4]byte{127, 0, 0, 1}
		s.verbosef("rewriting bind %v:%d to loopback", sa.Addr, sa.Port)
		return s.sys.Bind(fd, &rewritten)

	case *unix.SockaddrInet6:
		s.table.track(fd, familyTCP6)
		if sa.Addr == loopback6 {
			return s.sys.Bind(fd, sa)
		}
		rewritten := *sa
		rewritten.Addr = loopback6
		s.verbosef("rewriting bind [%v]:%d to loopback", sa.Addr, sa.Port)
		return s.sys.Bind(fd, &rewritten)

	default:
		return s.sys.Bind(fd, sa)
	}
}
