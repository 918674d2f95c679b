package shim

import (
	"os"
	"strconv"
)

// Environment variables read by ConfigFromEnv. The supervisor injects these
// into the hosted process; anything unset falls back to a default.
const (
	EnvProxyHost     = "TAILPROXY_HOST"
	EnvProxyPort     = "TAILPROXY_PORT"
	EnvVerbose       = "TAILPROXY_VERBOSE"
	EnvExport        = "TAILPROXY_EXPORT"
	EnvControlSocket = "TAILPROXY_CONTROL_SOCKET"
)

const (
	DefaultProxyHost = "127.0.0.1"
	DefaultProxyPort = 1080
)

// Config is the process-wide interception configuration. It is resolved
// once, before the first intercepted call completes, and never mutated
// afterward.
type Config struct {
	// ProxyHost and ProxyPort locate the SOCKS5 proxy that outbound
	// connects are redirected through. ProxyHost must be an IPv4 literal;
	// anything else falls back to loopback.
	ProxyHost string
	ProxyPort int

	// Verbose enables one-line diagnostics on stderr.
	Verbose bool

	// ExportListeners gates bind rewriting, listener tracking, and
	// lifecycle publishing.
	ExportListeners bool

	// ControlSocket is the unix socket path lifecycle notifications are
	// sent to. Empty means notifications are silently dropped.
	ControlSocket string
}

// ConfigFromEnv resolves the shim configuration from the environment.
// Malformed values are ignored in favor of defaults; configuration problems
// must never break the hosting process.
func ConfigFromEnv() Config {
	cfg := Config{
		ProxyHost: DefaultProxyHost,
		ProxyPort: DefaultProxyPort,
	}

	if v := os.Getenv(EnvProxyHost); v != "" {
		cfg.ProxyHost = v
	}
	if v := os.Getenv(EnvProxyPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p < 1<<16 {
			cfg.ProxyPort = p
		}
	}
	cfg.Verbose = os.Getenv(EnvVerbose) != ""
	cfg.ExportListeners = os.Getenv(EnvExport) != ""
	cfg.ControlSocket = os.Getenv(EnvControlSocket)

	return cfg
}
