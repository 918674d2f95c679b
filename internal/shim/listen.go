package shim

import "golang.org/x/sys/unix"

// Listen intercepts a listen attempt on fd. The real listen always runs
// first; only on success, with export tracking enabled and fd recorded as a
// tracked stream socket, does the shim mark the descriptor as an active
// listener, read back the port the kernel actually assigned, and announce
// it on the control channel. A repeat listen on the same descriptor is
// forwarded but not re-announced, so one listener produces exactly one
// LISTEN for its eventual CLOSE to pair with.
func (s *Shim) Listen(fd, backlog int) error {
	if s.sys.Listen == nil {
		return unix.ENOSYS
	}
	if err := s.sys.Listen(fd, backlog); err != nil {
		return err
	}
	if !s.cfg.ExportListeners {
		return nil
	}

	port := s.boundPort(fd)
	fam, transitioned := s.table.markListening(fd, port)
	if transitioned && port != 0 {
		s.verbosef("listener active on %s port %d", fam, port)
		s.notifier.publish("LISTEN", fam, port)
	}
	return nil
}

// Close intercepts a close on fd. If the descriptor was an active listener
// with a known port its CLOSE is announced; the table entry is cleared
// unconditionally before the real close runs, so the kernel cannot hand the
// descriptor number to an unrelated socket while stale state remains.
func (s *Shim) Close(fd int) error {
	if s.sys.Close == nil {
		return unix.ENOSYS
	}
	if s.cfg.ExportListeners {
		if e := s.table.clear(fd); e.listening && e.port != 0 {
			s.verbosef("listener closed on %s port %d", e.fam, e.port)
			s.notifier.publish("CLOSE", e.fam, e.port)
		}
	}
	return s.sys.Close(fd)
}

// boundPort reads the port fd is actually bound to; 0 means unknown.
func (s *Shim) boundPort(fd int) uint16 {
	if s.sys.Getsockname == nil {
		return 0
	}
	sa, err := s.sys.Getsockname(fd)
	if err != nil {
		return 0
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return uint16(sa.Port)
	case *unix.SockaddrInet6:
		return uint16(sa.Port)
	default:
		return 0
	}
}
