// Package target models the scanned web application: a base URL and the
// origin derived from it. A Target is immutable once parsed and is shared
// by reference across every component of a scan session.
package target

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Sentinel errors for target parsing.
var (
	ErrEmptyTarget       = errors.New("target: empty URL")
	ErrUnsupportedScheme = errors.New("target: scheme must be http or https")
	ErrMissingHost       = errors.New("target: missing host")
)

// Target is a parsed base URL plus its origin.
type Target struct {
	base   *url.URL
	scheme string
	host   string
	port   string
}

// Parse validates raw and returns a Target. A missing scheme defaults to
// https; a missing port is filled from the scheme.
func Parse(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, ErrEmptyTarget
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("target: parse %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Target{}, ErrMissingHost
	}
	port := u.Port()
	if port == "" {
		port = defaultPort(scheme)
	}

	base := &url.URL{
		Scheme:   scheme,
		Host:     u.Host,
		Path:     u.Path,
		RawQuery: u.RawQuery,
	}
	if base.Path == "" {
		base.Path = "/"
	}

	return Target{base: base, scheme: scheme, host: host, port: port}, nil
}

// MustParse is like Parse but panics on error. Intended for tests.
func MustParse(raw string) Target {
	t, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return t
}

func defaultPort(scheme string) string {
	if scheme == "http" {
		return "80"
	}
	return "443"
}

// Scheme returns the lowercased scheme.
func (t Target) Scheme() string { return t.scheme }

// Host returns the lowercased hostname without port.
func (t Target) Host() string { return t.host }

// Port returns the explicit or scheme-default port.
func (t Target) Port() string { return t.port }

// HostPort returns host:port, suitable for dialing.
func (t Target) HostPort() string { return net.JoinHostPort(t.host, t.port) }

// IsZero reports whether t was never parsed.
func (t Target) IsZero() bool { return t.base == nil }

// Origin returns scheme://host[:port], omitting default ports.
func (t Target) Origin() string {
	if t.port == defaultPort(t.scheme) {
		return t.scheme + "://" + t.host
	}
	return t.scheme + "://" + net.JoinHostPort(t.host, t.port)
}

// BasePath returns the path component of the base URL, always ending in "/".
func (t Target) BasePath() string {
	if t.base == nil {
		return "/"
	}
	p := t.base.Path
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// String returns the base URL.
func (t Target) String() string {
	if t.base == nil {
		return ""
	}
	return t.base.String()
}

// URL returns a copy of the base URL.
func (t Target) URL() *url.URL {
	if t.base == nil {
		return &url.URL{}
	}
	u := *t.base
	return &u
}

// Key identifies the target for per-target caches.
func (t Target) Key() string {
	return t.Origin() + t.BasePath()
}

// Resolve returns the absolute URL for ref. Absolute refs are returned
// unchanged; relative refs are joined onto the base path, and a leading
// "/" anchors at the origin root.
func (t Target) Resolve(ref string) *url.URL {
	base := t.URL()
	base.RawQuery = ""
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	r, err := url.Parse(ref)
	if err != nil {
		// Payload-bearing refs may not parse; keep them literal in the path.
		u := *base
		u.Path = base.Path + strings.TrimPrefix(ref, "/")
		return &u
	}
	return base.ResolveReference(r)
}

// SameOrigin reports whether u points to the same scheme, host and port.
func (t Target) SameOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = t.scheme
	}
	port := u.Port()
	if port == "" {
		port = defaultPort(scheme)
	}
	return scheme == t.scheme && strings.EqualFold(u.Hostname(), t.host) && port == t.port
}
