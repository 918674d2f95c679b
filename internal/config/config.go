package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"
)

// Config holds everything the proxy and exporter need to start.
type Config struct {
	// ProxyListen is the host:port the SOCKS5 proxy listens on.
	ProxyListen string

	// Upstream is where outbound connections are forwarded: direct:// or
	// socks5://[user:pass@]host:port.
	Upstream string

	// ControlSocket is the unix socket path the shim publishes listener
	// lifecycle lines to. Empty disables the exporter.
	ControlSocket string

	// ExportListeners enables bind rewriting and listener announcement in
	// spawned commands.
	ExportListeners bool

	// ExportBind is the address exported listeners bind on.
	ExportBind string

	// ExportAllowPorts and ExportDenyPorts are port specs such as
	// "80,443,8000-8999".
	ExportAllowPorts string
	ExportDenyPorts  string

	// ExportMax caps the number of simultaneously exported ports.
	ExportMax int

	// DialTimeout bounds outbound dials made on behalf of clients.
	DialTimeout time.Duration

	Verbose bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ProxyListen: "127.0.0.1:1080",
		Upstream:    "direct://",
		ExportBind:  "0.0.0.0",
		ExportMax:   32,
		DialTimeout: 10 * time.Second,
	}
}

// Load reads an ini file and overlays it on the defaults. Keys live in the
// top level section:
//
//	proxy_listen       = 127.0.0.1:1080
//	upstream           = direct://
//	control_socket     = /run/tailproxy/control.sock
//	export_listeners   = true
//	export_bind        = 0.0.0.0
//	export_allow_ports = 80,443,8000-8999
//	export_deny_ports  = 22
//	export_max         = 32
//	dial_timeout       = 10s
//	verbose            = false
func Load(path string) (Config, error) {
	c := Default()

	f, err := ini.Load(path)
	if err != nil {
		return c, fmt.Errorf("load config %s: %w", path, err)
	}

	sec := f.Section("")

	if v := strings.TrimSpace(sec.Key("proxy_listen").String()); v != "" {
		c.ProxyListen = v
	}
	if v := strings.TrimSpace(sec.Key("upstream").String()); v != "" {
		c.Upstream = v
	}
	if v := strings.TrimSpace(sec.Key("control_socket").String()); v != "" {
		c.ControlSocket = v
	}
	if v, err := sec.Key("export_listeners").Bool(); err == nil {
		c.ExportListeners = v
	}
	if v := strings.TrimSpace(sec.Key("export_bind").String()); v != "" {
		c.ExportBind = v
	}
	if v := strings.TrimSpace(sec.Key("export_allow_ports").String()); v != "" {
		c.ExportAllowPorts = v
	}
	if v := strings.TrimSpace(sec.Key("export_deny_ports").String()); v != "" {
		c.ExportDenyPorts = v
	}
	if v, err := sec.Key("export_max").Int(); err == nil && v > 0 {
		c.ExportMax = v
	}
	if v := strings.TrimSpace(sec.Key("dial_timeout").String()); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("config %s: dial_timeout: %w", path, err)
		}
		c.DialTimeout = d
	}
	if v, err := sec.Key("verbose").Bool(); err == nil {
		c.Verbose = v
	}

	return c, nil
}
