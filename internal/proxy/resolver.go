package proxy

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const resolvConfPath = "/etc/resolv.conf"

// Resolver answers A/AAAA lookups for domain targets in SOCKS5 CONNECT
// requests against an explicit server list, so the proxy's own resolution
// path stays independent of whatever the hosted application's libc does.
type Resolver struct {
	servers []string // host:port
	client  *dns.Client
}

// NewResolver queries the given servers (host:port) in order.
func NewResolver(servers []string, timeout time.Duration) *Resolver {
	return &Resolver{
		servers: servers,
		client:  &dns.Client{Timeout: timeout},
	}
}

// NewSystemResolver builds a Resolver from resolv.conf.
func NewSystemResolver(timeout time.Duration) (*Resolver, error) {
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resolvConfPath, err)
	}
	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return NewResolver(servers, timeout), nil
}

// Resolve returns the first A (preferred) or AAAA answer for host. A
// failed A query does not abort the AAAA attempt, so an IPv6-only name
// still resolves; its error is surfaced only when no answer arrives at
// all.
func (r *Resolver) Resolve(ctx context.Context, host string) (net.IP, error) {
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ip, err := r.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		if ip != nil {
			return ip, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no address records for %q", host)
}

func (r *Resolver) query(ctx context.Context, host string, qtype uint16) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			lastErr = err
			continue
		}
		for _, ans := range in.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				return rr.A, nil
			case *dns.AAAA:
				return rr.AAAA, nil
			}
		}
		return nil, nil // authoritative empty answer
	}
	if lastErr != nil {
		return nil, fmt.Errorf("query %q: %w", host, lastErr)
	}
	return nil, fmt.Errorf("no DNS servers configured")
}
