package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// ErrProxy is returned for malformed or unsupported proxy URLs.
var ErrProxy = errors.New("httpclient: invalid proxy")

// ParseProxyURL validates a proxy URL. A missing scheme defaults to http.
// Supported schemes: http, https, socks5, socks5h.
func ParseProxyURL(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxy, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrProxy, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrProxy)
	}
	return u, nil
}

// applyProxy routes transport through raw. HTTP proxies use CONNECT via
// the standard transport; SOCKS proxies replace the dialer.
func applyProxy(transport *http.Transport, raw string, dialTimeout time.Duration) error {
	u, err := ParseProxyURL(raw)
	if err != nil {
		return err
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" {
		transport.Proxy = http.ProxyURL(u)
		return nil
	}

	// x/net/proxy resolves names on the proxy for both socks5 and socks5h
	// when given a hostname, so the scheme only needs normalising.
	socksURL := *u
	socksURL.Scheme = "socks5"
	d, err := proxy.FromURL(&socksURL, &net.Dialer{Timeout: dialTimeout})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProxy, err)
	}
	transport.Proxy = nil
	transport.DialContext = contextDialer(d)
	return nil
}

func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type result struct {
			conn net.Conn
			err  error
		}
		ch := make(chan result, 1)
		go func() {
			c, err := d.Dial(network, addr)
			ch <- result{c, err}
		}()
		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			go func() {
				if r := <-ch; r.conn != nil {
					_ = r.conn.Close()
				}
			}()
			return nil, ctx.Err()
		}
	}
}
