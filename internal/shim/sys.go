package shim

import (
	"context"
	"net"

	"golang.org/x/sys/unix"
)

// Sys is the resolved-symbol table: one reference per underlying call the
// shim forwards to. It is populated once at initialization and read-only
// afterward. A nil entry for an intercepted call kind means that facility
// could not be resolved; every interception of it fails with ENOSYS rather
// than recursing into the shim.
//
// The helper entries (Getsockname, GetsockoptInt, FcntlInt, Poll, Read,
// Write) support the connect and listen paths and are always set by
// DefaultSys; tests may substitute them.
type Sys struct {
	Connect     func(fd int, sa unix.Sockaddr) error
	Bind        func(fd int, sa unix.Sockaddr) error
	Listen      func(fd, backlog int) error
	Close       func(fd int) error
	Getsockname func(fd int) (unix.Sockaddr, error)

	GetsockoptInt func(fd, level, opt int) (int, error)
	FcntlInt      func(fd uintptr, cmd, arg int) (int, error)
	Poll          func(fds []unix.PollFd, timeout int) (int, error)
	Read          func(fd int, p []byte) (int, error)
	Write         func(fd int, p []byte) (int, error)

	LookupHost func(ctx context.Context, host string) ([]string, error)
	LookupPort func(ctx context.Context, network, service string) (int, error)
}

// DefaultSys returns the symbol table wired to the real implementations.
func DefaultSys() *Sys {
	return &Sys{
		Connect:     unix.Connect,
		Bind:        unix.Bind,
		Listen:      unix.Listen,
		Close:       unix.Close,
		Getsockname: unix.Getsockname,

		GetsockoptInt: unix.GetsockoptInt,
		FcntlInt:      unix.FcntlInt,
		Poll:          unix.Poll,
		Read:          unix.Read,
		Write:         unix.Write,

		LookupHost: net.DefaultResolver.LookupHost,
		LookupPort: net.DefaultResolver.LookupPort,
	}
}
