package proxy

import (
	"context"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional shuttles bytes between app and peer until both
// directions drain or ctx is canceled. When one direction hits EOF its
// destination is half-closed so the far end sees the shutdown while the
// other direction keeps flowing. Both connections are closed before it
// returns.
func CopyBidirectional(ctx context.Context, app, peer net.Conn, ioTimeout time.Duration) error {
	if ioTimeout > 0 {
		dl := time.Now().Add(ioTimeout)
		_ = app.SetDeadline(dl)
		_ = peer.SetDeadline(dl)
	}

	defer app.Close()
	defer peer.Close()

	// Cancelation unblocks both copies by closing the connections under
	// them; the deferred Closes above make the repeat harmless.
	stop := context.AfterFunc(ctx, func() {
		_ = app.Close()
		_ = peer.Close()
	})
	defer stop()

	g := errgroup.Group{}
	g.Go(func() error { return copyHalf(app, peer) })
	g.Go(func() error { return copyHalf(peer, app) })

	return g.Wait()
}

func copyHalf(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	if tc, ok := dst.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return err
}
