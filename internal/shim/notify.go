package shim

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// notifyTimeout bounds both the lazy control-socket dial and each send, so
// a slow or absent consumer costs an intercepted call at most a small,
// fixed latency.
const notifyTimeout = 250 * time.Millisecond

// notifier delivers listener lifecycle lines over the control socket,
// fire-and-forget. The connection is established lazily on the first
// publish; any dial or send failure drops the message and resets the
// connection so the next publish retries from scratch. There is no queue,
// no retry loop, and no error surfaced to the intercepted caller.
type notifier struct {
	mu   sync.Mutex
	addr string
	conn net.Conn
}

func (n *notifier) publish(event string, fam family, port uint16) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.addr == "" {
		return
	}
	if n.conn == nil {
		conn, err := net.DialTimeout("unix", n.addr, notifyTimeout)
		if err != nil {
			return
		}
		n.conn = conn
	}

	_ = n.conn.SetWriteDeadline(time.Now().Add(notifyTimeout))
	if _, err := fmt.Fprintf(n.conn, "%s %s %d\n", event, fam, port); err != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
}
