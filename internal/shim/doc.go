// Package shim implements the transparent TCP interception core of
// tailproxy.
//
// The shim sits between an application and the kernel's socket calls. Its
// entry points (Connect, Bind, Listen, Close, LookupHost, LookupPort)
// operate on raw file descriptors plus unix.Sockaddr values, so any
// attachment mechanism that can observe the hosting process's socket calls
// (a preload bridge, a ptrace supervisor, a seccomp-notify agent) can route
// them here. Once routed:
//
//   - Outbound connects on stream sockets are silently redirected through a
//     local SOCKS5 proxy; the caller sees an ordinary connected socket.
//   - Binds on stream sockets are rewritten to the loopback address of the
//     same family, confining would-be public listeners to local-only reach.
//   - Listener lifecycle transitions are announced over a best-effort
//     control socket as "LISTEN tcp4 8080" / "CLOSE tcp4 8080" lines, so an
//     external manager can arrange wider exposure explicitly.
//   - Name resolution calls pass through untouched.
//
// The shim runs in-line on whichever application thread made the call; it
// owns no goroutines. The only shared mutable state is the listener table,
// guarded by a single mutex; initialization is guarded by a once. Nothing
// the shim does may abort the hosting process.
//
// The underlying calls live in a Sys table so tests can substitute them and
// so an unresolved facility degrades to ENOSYS instead of recursing.
package shim
