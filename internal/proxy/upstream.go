package proxy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NewForwarder parses an upstream URL and constructs the Forwarder for it.
//
// Supported schemes:
//   - direct://
//   - socks5://[user:pass@]host:port
//
// A socks5 URL missing a port gets 1080.
func NewForwarder(cfg Config, resolver *Resolver, upstream string) (Forwarder, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid url: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid url: missing scheme")
	case "direct":
		return NewDirectForwarder(cfg, resolver), nil
	case "socks5":
		if host := u.Hostname(); host != "" && u.Port() == "" {
			u.Host = net.JoinHostPort(host, "1080")
		}

		var user, pass string
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
		}

		return NewSOCKS5Forwarder(cfg, u.Host, user, pass), nil
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}
