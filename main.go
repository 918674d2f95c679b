package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/perplexes/tailproxy/internal/config"
	"github.com/perplexes/tailproxy/internal/exporter"
	"github.com/perplexes/tailproxy/internal/proxy"
	"github.com/perplexes/tailproxy/internal/shim"
)

func main() {
	err := run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.ExitCode())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		proxyListen   = pflag.String("proxy-listen", "127.0.0.1:1080", "SOCKS5 proxy listen address")
		upstream      = pflag.String("upstream", "direct://", "Upstream forwarding target URL: direct:// | socks5://[user:pass@]host:port")
		configFile    = pflag.String("config", "", "Path to ini configuration file")
		controlSocket = pflag.String("control-socket", "", "Unix socket path for listener lifecycle announcements. Empty picks a per-process default when exporting.")
		export        = pflag.Bool("export", false, "Expose the spawned command's listeners on --export-bind")
		exportBind    = pflag.String("export-bind", "0.0.0.0", "Address exported listeners bind on")
		exportAllow   = pflag.String("export-allow-ports", "", "Ports eligible for export (e.g. 80,443,8000-8999). Empty allows all.")
		exportDeny    = pflag.String("export-deny-ports", "", "Ports never exported")
		exportMax     = pflag.Int("export-max", 32, "Maximum number of simultaneously exported ports")
		dnsServers    = pflag.String("dns", "", "Comma-separated DNS servers (host:port) for resolving domain targets. Empty uses /etc/resolv.conf.")
		dialTimeout   = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		tcpKeepAlive  = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		verbose       = pflag.Bool("verbose", false, "Enable per-connection logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			return err
		}
	}

	// Flags set explicitly on the command line win over the config file.
	flagChanged := pflag.CommandLine.Changed
	if flagChanged("proxy-listen") {
		cfg.ProxyListen = *proxyListen
	}
	if flagChanged("upstream") {
		cfg.Upstream = *upstream
	}
	if flagChanged("control-socket") {
		cfg.ControlSocket = *controlSocket
	}
	if flagChanged("export") {
		cfg.ExportListeners = *export
	}
	if flagChanged("export-bind") {
		cfg.ExportBind = *exportBind
	}
	if flagChanged("export-allow-ports") {
		cfg.ExportAllowPorts = *exportAllow
	}
	if flagChanged("export-deny-ports") {
		cfg.ExportDenyPorts = *exportDeny
	}
	if flagChanged("export-max") {
		cfg.ExportMax = *exportMax
	}
	if flagChanged("dial-timeout") {
		cfg.DialTimeout = *dialTimeout
	}
	if flagChanged("verbose") {
		cfg.Verbose = *verbose
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	if cfg.ExportListeners && cfg.ControlSocket == "" {
		cfg.ControlSocket = filepath.Join(os.TempDir(), fmt.Sprintf("tailproxy-%d.sock", os.Getpid()))
	}

	resolver, err := buildResolver(*dnsServers, cfg.DialTimeout)
	if err != nil {
		return err
	}

	pcfg := proxy.Config{
		DialTimeout: cfg.DialTimeout,
		KeepAlive:   ka,
		Verbose:     cfg.Verbose,
	}
	pcfg.Forward, err = proxy.NewForwarder(pcfg, resolver, cfg.Upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Canceled when a spawned command exits, so the proxy shuts down with it.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := proxy.ListenTCP(ctx, "tcp", cfg.ProxyListen, ka)
	if err != nil {
		return fmt.Errorf("proxy listen: %w", err)
	}
	srv := proxy.NewSOCKS5Server(ctx, pcfg)
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil {
			return fmt.Errorf("socks5 serve: %w", err)
		}
		return nil
	})
	log.Printf("socks5 proxy listening on %s", cfg.ProxyListen)

	if cfg.ControlSocket != "" {
		em := exporter.New(exporter.Config{
			ControlSocket: cfg.ControlSocket,
			BindHost:      cfg.ExportBind,
			AllowPorts:    cfg.ExportAllowPorts,
			DenyPorts:     cfg.ExportDenyPorts,
			MaxExports:    cfg.ExportMax,
			DialTimeout:   cfg.DialTimeout,
			KeepAlive:     ka,
			Verbose:       cfg.Verbose,
		})

		g.Go(func() error {
			if err := em.Run(ctx); err != nil {
				return fmt.Errorf("exporter: %w", err)
			}
			return nil
		})
	}

	if args := pflag.Args(); len(args) > 0 {
		g.Go(func() error {
			defer cancel()
			return runCommand(ctx, cfg, args)
		})
	}

	err = g.Wait()

	log.Print("shutting down")
	return err
}

// runCommand executes args under the interception environment, mirroring
// stdio. The child's exit error is returned as-is so main can propagate the
// exit code.
func runCommand(ctx context.Context, cfg config.Config, args []string) error {
	host, port, err := net.SplitHostPort(cfg.ProxyListen)
	if err != nil {
		return fmt.Errorf("invalid proxy listen address %q: %w", cfg.ProxyListen, err)
	}

	env := os.Environ()
	env = append(env,
		shim.EnvProxyHost+"="+host,
		shim.EnvProxyPort+"="+port,
	)
	if cfg.Verbose {
		env = append(env, shim.EnvVerbose+"=1")
	}
	if cfg.ExportListeners {
		env = append(env,
			shim.EnvExport+"=1",
			shim.EnvControlSocket+"="+cfg.ControlSocket,
		)
	}

	if lib := preloadLibrary(); lib != "" {
		env = append(env, "LD_PRELOAD="+lib)
		if cfg.Verbose {
			log.Printf("running %s with LD_PRELOAD=%s", args[0], lib)
		}
	} else {
		log.Printf("libtailproxy.so not found next to the binary; %s runs without fd-level interception", args[0])
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// preloadLibrary locates the interception library installed alongside the
// binary, or returns "" if it is not there.
//
// libtailproxy.so is not produced by this module's build. It is a small
// c-shared bridge, built and shipped separately, that interposes the
// hosting process's connect/bind/listen/close calls and forwards them to
// internal/shim. Without it the child still runs, just without
// interception.
func preloadLibrary() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}

	lib := filepath.Join(filepath.Dir(exe), "libtailproxy.so")
	if _, err := os.Stat(lib); err != nil {
		return ""
	}

	return lib
}

func buildResolver(servers string, timeout time.Duration) (*proxy.Resolver, error) {
	if servers == "" {
		r, err := proxy.NewSystemResolver(timeout)
		if err != nil {
			// No resolv.conf is survivable; net.Dialer resolves instead.
			log.Printf("system resolver unavailable (%v), using default resolution", err)
			return nil, nil
		}
		return r, nil
	}

	list := strings.Split(servers, ",")
	for i, s := range list {
		s = strings.TrimSpace(s)
		if _, _, err := net.SplitHostPort(s); err != nil {
			return nil, fmt.Errorf("invalid --dns server %q: %w", s, err)
		}
		list[i] = s
	}

	return proxy.NewResolver(list, timeout), nil
}

// parseTCPKeepAlive parses "on", "off", or "keepidle:keepintvl:keepcnt"
// with the first two fields in whole seconds.
func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	switch s = strings.TrimSpace(strings.ToLower(s)); s {
	case "":
		return net.KeepAliveConfig{}, errors.New("empty")
	case "on":
		return net.KeepAliveConfig{Enable: true}, nil
	case "off":
		return net.KeepAliveConfig{}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}

	var vals [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n <= 0 {
			return net.KeepAliveConfig{}, fmt.Errorf("field %d of %q: want a positive integer", i+1, s)
		}
		vals[i] = n
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     time.Duration(vals[0]) * time.Second,
		Interval: time.Duration(vals[1]) * time.Second,
		Count:    vals[2],
	}, nil
}
