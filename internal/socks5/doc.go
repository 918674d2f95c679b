// Package socks5 provides the small, shared SOCKS5 handshake implementation
// used by tailproxy.
//
// It wraps the low-level protocol types in github.com/txthinking/socks5 to
// keep tailproxy-specific behavior in one place. The client side speaks the
// exact dialect the interception shim needs: the "no authentication" method
// only, the CONNECT command only, and numeric IPv4/IPv6 targets only (the
// shim always carries a resolved address, so the domain address type is
// never emitted).
//
// The server-side helpers carry the request/reply handling for the local
// proxy server; this is not a general-purpose SOCKS5 implementation.
package socks5
