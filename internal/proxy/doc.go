// Package proxy implements the local SOCKS5 proxy server that intercepted
// applications are routed through, plus shared connection plumbing
// (keepalive listeners, bidirectional copy) used by the exporter as well.
//
// The server accepts the no-auth method only and the CONNECT command only.
// Outbound connections go through a Forwarder; the direct forwarder
// resolves domain targets with the package's DNS resolver and dials the
// resulting address.
package proxy
