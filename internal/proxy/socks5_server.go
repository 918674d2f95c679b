package proxy

import (
	"context"
	"log"
	"net"

	"github.com/perplexes/tailproxy/internal/socks5"
)

// SOCKS5Server is the loopback proxy intercepted applications are routed
// through. No-auth only, CONNECT only.
type SOCKS5Server struct {
	ctx context.Context
	cfg Config
}

func NewSOCKS5Server(ctx context.Context, cfg Config) *SOCKS5Server {
	return &SOCKS5Server{ctx: ctx, cfg: cfg}
}

// Serve accepts and handles proxy clients until ln closes. It returns nil
// when the server's context has been canceled.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(c)
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if err := socks5.ServerNegotiateNoAuth(conn); err != nil {
		if s.cfg.Verbose {
			log.Printf("socks5: negotiate with %s: %v", conn.RemoteAddr(), err)
		}
		return
	}

	req, err := socks5.ServerReadRequest(conn)
	if err != nil {
		if s.cfg.Verbose {
			log.Printf("socks5: request from %s: %v", conn.RemoteAddr(), err)
		}
		return
	}

	if req.Cmd != socks5.CmdConnect {
		socks5.WriteCommandNotSupportedReply(conn, req.Atyp)
		return
	}

	dst := req.Address()

	up, err := s.cfg.Forward.Dial(s.ctx, "tcp", dst)
	if err != nil {
		if s.cfg.Verbose {
			log.Printf("socks5: dial %s: %v", dst, err)
		}
		socks5.WriteConnectionRefusedReply(conn, req.Atyp)
		return
	}
	defer up.Close()

	if err := socks5.WriteSuccessReply(conn, up.LocalAddr()); err != nil {
		return
	}

	if s.cfg.Verbose {
		log.Printf("socks5: relaying %s <-> %s", conn.RemoteAddr(), dst)
	}

	_ = CopyBidirectional(s.ctx, conn, up, s.cfg.IOTimeout)
}
