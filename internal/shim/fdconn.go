package shim

import (
	"io"

	"golang.org/x/sys/unix"
)

// fdConn adapts a connected, blocking file descriptor to io.ReadWriter for
// the handshake codec. Handshake traffic is a handful of small messages, so
// writes are all-or-nothing: a short write is an error, not a retry.
type fdConn struct {
	fd  int
	sys *Sys
}

func (c fdConn) Read(p []byte) (int, error) {
	for {
		n, err := c.sys.Read(c.fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

func (c fdConn) Write(p []byte) (int, error) {
	n, err := c.sys.Write(c.fd, p)
	if err != nil {
		return 0, err
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
