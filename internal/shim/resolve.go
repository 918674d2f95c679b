package shim

import (
	"context"

	"golang.org/x/sys/unix"
)

// The resolver entry points are pure passthroughs: interception exists only
// so the attachment layer has a single place to route every call through,
// and so an unresolved underlying facility reports cleanly instead of
// recursing.

// LookupHost forwards a host resolution unchanged.
func (s *Shim) LookupHost(ctx context.Context, host string) ([]string, error) {
	if s.sys.LookupHost == nil {
		return nil, unix.ENOSYS
	}
	return s.sys.LookupHost(ctx, host)
}

// LookupPort forwards a service resolution unchanged.
func (s *Shim) LookupPort(ctx context.Context, network, service string) (int, error) {
	if s.sys.LookupPort == nil {
		return 0, unix.ENOSYS
	}
	return s.sys.LookupPort(ctx, network, service)
}

// Package-level passthroughs on the process-wide shim.

func LookupHost(ctx context.Context, host string) ([]string, error) {
	return Enable().LookupHost(ctx, host)
}

func LookupPort(ctx context.Context, network, service string) (int, error) {
	return Enable().LookupPort(ctx, network, service)
}
