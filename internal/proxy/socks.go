// Package proxy builds HTTP clients that egress through a SOCKS5 tunnel, for
// deployments where the cloud APIs are not directly reachable.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
)

// callTimeout caps one cloud request end to end; TTS audio downloads are the
// slowest caller.
const callTimeout = 120 * time.Second

// NewSocksClient returns an http.Client whose connections are dialed through
// the SOCKS5 proxy at addr.
func NewSocksClient(addr string) (*http.Client, error) {
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks dialer %s: %w", addr, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   callTimeout,
	}, nil
}
