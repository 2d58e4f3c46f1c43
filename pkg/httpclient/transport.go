// Package httpclient provides the scanner's only path to the network: a
// pooled *http.Client factory and Client, the rate-limited request sender
// that every discovery worker and probe shares.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/waftester/webscan/pkg/duration"
)

// TransportConfig holds connection-level settings.
type TransportConfig struct {
	// InsecureSkipVerify skips TLS verification (default: true for scanning)
	InsecureSkipVerify bool

	// Proxy is an http, https, socks5 or socks5h proxy URL (optional)
	Proxy string

	// MaxIdleConns is the idle pool size across hosts (default: 100)
	MaxIdleConns int

	// MaxConnsPerHost bounds connections to the target (default: 25)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections stay pooled (default: 90s)
	IdleConnTimeout time.Duration

	// DialTimeout bounds TCP connect (default: 10s)
	DialTimeout time.Duration

	// TLSHandshakeTimeout bounds the handshake (default: 10s)
	TLSHandshakeTimeout time.Duration
}

// DefaultTransportConfig returns defaults tuned for scanning one target.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		InsecureSkipVerify:  true,
		MaxIdleConns:        100,
		MaxConnsPerHost:     25,
		IdleConnTimeout:     duration.IdleConnTimeout,
		DialTimeout:         duration.DialTimeout,
		TLSHandshakeTimeout: duration.TLSHandshake,
	}
}

// NewHTTPClient builds a pooled client that never follows redirects: the
// scanner classifies redirect responses itself. The client has no overall
// timeout; Client applies one per request through the context.
func NewHTTPClient(cfg TransportConfig) (*http.Client, error) {
	def := DefaultTransportConfig()
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = def.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.TLSHandshakeTimeout == 0 {
		cfg.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: duration.KeepAlive,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		DialContext:         dialer.DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // scanners hit self-signed targets
		},
	}

	if cfg.Proxy != "" {
		if err := applyProxy(transport, cfg.Proxy, cfg.DialTimeout); err != nil {
			return nil, fmt.Errorf("httpclient: %w", err)
		}
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}
