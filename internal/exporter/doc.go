// Package exporter consumes the shim's listener lifecycle feed and manages
// external exposure of the announced ports.
//
// The shim confines every application listener to loopback; the exporter is
// the only sanctioned path back out. It accepts connections on a control
// unix socket, reads "LISTEN tcp4 8080" / "CLOSE tcp4 8080" lines, and for
// each allowed port opens a listener on the configured bind address that
// forwards accepted connections to the loopback port. Ports are refcounted
// so several descriptors listening on the same port share one export.
//
// The feed is a best-effort hint stream: lines may be missing or duplicated
// and the exporter tolerates both.
package exporter
