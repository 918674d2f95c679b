package exporter

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/perplexes/tailproxy/internal/testutil"
)

// startManager runs a Manager on a control socket in a temp dir and returns
// the manager config used plus the control socket path.
func startManager(t *testing.T, mutate func(*Config)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "control.sock")

	cfg := Config{
		ControlSocket: path,
		BindHost:      "127.0.0.2",
		DialTimeout:   2 * time.Second,
		IOTimeout:     5 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	m := New(cfg)
	go func() {
		if err := m.Run(ctx); err != nil {
			t.Errorf("manager run: %v", err)
		}
	}()

	waitForSocket(t, path)

	return path
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("control socket %s never came up", path)
}

// dialControl opens a persistent control connection. Lines written on one
// connection are processed in order.
func dialControl(t *testing.T, path string) net.Conn {
	t.Helper()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial control socket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

func sendLine(t *testing.T, conn net.Conn, format string, args ...any) {
	t.Helper()

	if _, err := fmt.Fprintf(conn, format+"\n", args...); err != nil {
		t.Fatalf("write control line: %v", err)
	}
}

// dialExported polls the exported address until a connection succeeds.
func dialExported(t *testing.T, addr string) net.Conn {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("exported address %s never accepted", addr)
	return nil
}

// waitUnexported polls until connections to the exported address fail.
func waitUnexported(t *testing.T, addr string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		conn.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("exported address %s still accepting", addr)
}

func localEchoPort(t *testing.T) int {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ln := testutil.StartEchoTCPServer(t, ctx)
	return ln.Addr().(*net.TCPAddr).Port
}

func TestExportLifecycle(t *testing.T) {
	port := localEchoPort(t)
	control := dialControl(t, startManager(t, nil))

	sendLine(t, control, "LISTEN tcp4 %d", port)

	exported := fmt.Sprintf("127.0.0.2:%d", port)
	conn := dialExported(t, exported)
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("hello through export"))

	sendLine(t, control, "CLOSE tcp4 %d", port)
	waitUnexported(t, exported)
}

func TestExportRefCounting(t *testing.T) {
	port := localEchoPort(t)
	control := dialControl(t, startManager(t, nil))

	sendLine(t, control, "LISTEN tcp4 %d", port)
	sendLine(t, control, "LISTEN tcp4 %d", port)
	sendLine(t, control, "CLOSE tcp4 %d", port)

	exported := fmt.Sprintf("127.0.0.2:%d", port)
	conn := dialExported(t, exported)
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("still exported"))

	sendLine(t, control, "CLOSE tcp4 %d", port)
	waitUnexported(t, exported)
}

func TestExportDeniedPort(t *testing.T) {
	port := localEchoPort(t)
	control := dialControl(t, startManager(t, func(cfg *Config) {
		cfg.DenyPorts = "1-65535"
	}))

	sendLine(t, control, "LISTEN tcp4 %d", port)

	time.Sleep(100 * time.Millisecond)
	if conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.2:%d", port)); err == nil {
		conn.Close()
		t.Fatalf("denied port %d was exported", port)
	}
}

func TestExportLimit(t *testing.T) {
	first := localEchoPort(t)
	second := localEchoPort(t)
	control := dialControl(t, startManager(t, func(cfg *Config) {
		cfg.MaxExports = 1
	}))

	sendLine(t, control, "LISTEN tcp4 %d", first)
	sendLine(t, control, "LISTEN tcp4 %d", second)

	conn := dialExported(t, fmt.Sprintf("127.0.0.2:%d", first))
	conn.Close()

	time.Sleep(100 * time.Millisecond)
	if conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.2:%d", second)); err == nil {
		conn.Close()
		t.Fatalf("port %d exported beyond the limit", second)
	}
}

func TestMalformedControlLinesIgnored(t *testing.T) {
	port := localEchoPort(t)
	control := dialControl(t, startManager(t, nil))

	sendLine(t, control, "")
	sendLine(t, control, "LISTEN")
	sendLine(t, control, "LISTEN tcp4 nonsense")
	sendLine(t, control, "FROB tcp4 80")
	sendLine(t, control, "LISTEN tcp4 %d", port)

	conn := dialExported(t, fmt.Sprintf("127.0.0.2:%d", port))
	defer conn.Close()

	testutil.AssertEcho(t, conn, conn, []byte("survived the noise"))
}
