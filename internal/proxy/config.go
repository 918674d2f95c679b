package proxy

import (
	"net"
	"time"
)

type Config struct {
	DialTimeout time.Duration
	IOTimeout   time.Duration

	KeepAlive net.KeepAliveConfig

	Forward Forwarder

	Verbose bool
}
