// Package httpc holds the network clients used to reach the live service.
// Use these instead of http.DefaultClient or websocket.DefaultDialer so
// connect and handshake timeouts are always set.
package httpc

import (
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Default timeouts for outbound connections.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultKeepAlive        = 30 * time.Second
	DefaultIdleConnTimeout  = 90 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

var netDialer = &net.Dialer{
	Timeout:   DefaultConnectTimeout,
	KeepAlive: DefaultKeepAlive,
}

// Client is the shared HTTP client for SDK calls.
//
// It has no overall Timeout: the genai SDK upgrades live sessions through
// it, and those stay open for minutes. Use NewClient for bounded calls.
var Client = &http.Client{
	Transport: newTransport(),
}

// NewClient creates an HTTP client with an overall request timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: newTransport(),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           netDialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// WebSocketDialer returns a websocket dialer sharing the client's connect
// and keepalive settings.
func WebSocketDialer() *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		NetDialContext:    netDialer.DialContext,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		EnableCompression: false,
	}
}
