package exporter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/perplexes/tailproxy/internal/proxy"
)

// Config holds exporter settings.
type Config struct {
	// ControlSocket is the unix socket path the shim publishes to.
	ControlSocket string

	// BindHost is the address exported listeners bind on.
	BindHost string

	// AllowPorts and DenyPorts are comma separated port specs such as
	// "80,443,8000-8999". Deny wins; an empty allow spec allows everything.
	AllowPorts string
	DenyPorts  string

	// MaxExports caps the number of simultaneously exported ports.
	MaxExports int

	DialTimeout time.Duration
	IOTimeout   time.Duration
	KeepAlive   net.KeepAliveConfig
	Verbose     bool
}

// Manager owns the control socket and the set of exported ports.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	exports map[int]*portExport
}

type portExport struct {
	port   int
	refs   int
	ln     net.Listener
	cancel context.CancelFunc
}

// New creates a Manager. Call Run to start serving.
func New(cfg Config) *Manager {
	if cfg.MaxExports <= 0 {
		cfg.MaxExports = 32
	}
	if cfg.BindHost == "" {
		cfg.BindHost = "0.0.0.0"
	}

	return &Manager{
		cfg:     cfg,
		exports: make(map[int]*portExport),
	}
}

// Run serves the control socket until ctx is canceled, then tears down all
// exports. A stale socket file from a previous run is removed first.
func (m *Manager) Run(ctx context.Context) error {
	_ = os.Remove(m.cfg.ControlSocket)

	if dir := filepath.Dir(m.cfg.ControlSocket); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("control socket directory: %w", err)
		}
	}

	ln, err := net.Listen("unix", m.cfg.ControlSocket)
	if err != nil {
		return fmt.Errorf("control socket listen: %w", err)
	}

	if err := os.Chmod(m.cfg.ControlSocket, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("control socket permissions: %w", err)
	}

	if m.cfg.Verbose {
		log.Printf("exporter: control socket listening on %s", m.cfg.ControlSocket)
	}

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer m.stopAll()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if m.cfg.Verbose {
				log.Printf("exporter: control accept: %v", err)
			}
			continue
		}

		go m.handleControlConn(ctx, conn)
	}
}

func (m *Manager) handleControlConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		m.handleLine(ctx, sc.Text())
	}
}

// handleLine processes one lifecycle line, e.g. "LISTEN tcp4 8080".
// Malformed lines are ignored; the feed is advisory.
func (m *Manager) handleLine(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		if strings.TrimSpace(line) != "" && m.cfg.Verbose {
			log.Printf("exporter: malformed control line %q", line)
		}
		return
	}

	// fields[1] carries the address family; forwarding tries both loopbacks
	// so only the port matters here.
	port, err := strconv.Atoi(fields[2])
	if err != nil || port < 1 || port > 65535 {
		if m.cfg.Verbose {
			log.Printf("exporter: bad port in control line %q", line)
		}
		return
	}

	switch fields[0] {
	case "LISTEN":
		m.handleListen(ctx, port)
	case "CLOSE":
		m.handleClose(port)
	default:
		if m.cfg.Verbose {
			log.Printf("exporter: unknown control command %q", fields[0])
		}
	}
}

func (m *Manager) handleListen(ctx context.Context, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.allowed(port) {
		if m.cfg.Verbose {
			log.Printf("exporter: port %d not allowed by policy", port)
		}
		return
	}

	if exp, ok := m.exports[port]; ok {
		exp.refs++
		return
	}

	if len(m.exports) >= m.cfg.MaxExports {
		log.Printf("exporter: not exporting port %d: limit of %d reached", port, m.cfg.MaxExports)
		return
	}

	if err := m.startExport(ctx, port); err != nil {
		log.Printf("exporter: export port %d: %v", port, err)
	}
}

func (m *Manager) handleClose(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.exports[port]
	if !ok {
		return
	}

	exp.refs--
	if exp.refs <= 0 {
		m.stopExport(exp)
	}
}

// startExport opens the external listener for port and begins accepting.
// Caller holds m.mu.
func (m *Manager) startExport(ctx context.Context, port int) error {
	addr := net.JoinHostPort(m.cfg.BindHost, strconv.Itoa(port))

	ln, err := proxy.ListenTCP(ctx, "tcp", addr, m.cfg.KeepAlive)
	if err != nil {
		return err
	}

	expCtx, cancel := context.WithCancel(ctx)
	exp := &portExport{port: port, refs: 1, ln: ln, cancel: cancel}
	m.exports[port] = exp

	if m.cfg.Verbose {
		log.Printf("exporter: exporting port %d on %s", port, addr)
	}

	go m.acceptLoop(expCtx, exp)

	return nil
}

// stopExport tears down one export. Caller holds m.mu.
func (m *Manager) stopExport(exp *portExport) {
	if m.cfg.Verbose {
		log.Printf("exporter: stopping export of port %d", exp.port)
	}

	exp.cancel()
	exp.ln.Close()
	delete(m.exports, exp.port)
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, exp := range m.exports {
		m.stopExport(exp)
	}
}

func (m *Manager) acceptLoop(ctx context.Context, exp *portExport) {
	for {
		conn, err := exp.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			if m.cfg.Verbose {
				log.Printf("exporter: accept on port %d: %v", exp.port, err)
			}
			continue
		}

		go m.forward(ctx, conn, exp.port)
	}
}

// forward connects to the loopback side of port and shuttles bytes. The shim
// may have confined the listener to either loopback family, so the IPv4
// address is tried first and the IPv6 one on failure.
func (m *Manager) forward(ctx context.Context, conn net.Conn, port int) {
	dialer := net.Dialer{Timeout: m.cfg.DialTimeout, KeepAliveConfig: m.cfg.KeepAlive}

	local, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		local, err = dialer.DialContext(ctx, "tcp", fmt.Sprintf("[::1]:%d", port))
	}
	if err != nil {
		if m.cfg.Verbose {
			log.Printf("exporter: local port %d unreachable: %v", port, err)
		}
		conn.Close()
		return
	}

	if m.cfg.Verbose {
		log.Printf("exporter: forwarding %s to local port %d", conn.RemoteAddr(), port)
	}

	if err := proxy.CopyBidirectional(ctx, conn, local, m.cfg.IOTimeout); err != nil && m.cfg.Verbose {
		log.Printf("exporter: forward for port %d ended: %v", port, err)
	}
}
