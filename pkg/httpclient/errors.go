package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Sentinel errors for network failure classes.
// Callers should use errors.Is() to check for these.
var (
	// ErrTimeout indicates the per-request deadline passed.
	ErrTimeout = errors.New("httpclient: request timed out")

	// ErrConnRefused indicates the connection was refused, reset or unroutable.
	ErrConnRefused = errors.New("httpclient: connection refused")

	// ErrDNS indicates a DNS resolution failure for the target host.
	ErrDNS = errors.New("httpclient: DNS resolution failed")

	// ErrTLS indicates a TLS handshake or certificate verification failure.
	ErrTLS = errors.New("httpclient: TLS handshake failed")

	// ErrNetwork covers transport failures that fit no other class.
	ErrNetwork = errors.New("httpclient: network failure")
)

// ErrorKind classifies a NetworkError.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConnRefused ErrorKind = "connection-refused"
	KindTLS         ErrorKind = "tls-error"
	KindDNS         ErrorKind = "dns-failure"
	KindOther       ErrorKind = "other"
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindConnRefused:
		return ErrConnRefused
	case KindTLS:
		return ErrTLS
	case KindDNS:
		return ErrDNS
	default:
		return ErrNetwork
	}
}

// NetworkError is returned by Client.Send when no response was obtained.
type NetworkError struct {
	Kind   ErrorKind
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("httpclient: %s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

// Unwrap exposes both the class sentinel and the underlying cause.
func (e *NetworkError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

// Retryable reports whether err is a connection-level failure that may be
// retried once. Timeouts and TLS failures are never retryable.
func Retryable(err error) bool {
	var ne *NetworkError
	if !errors.As(err, &ne) {
		return false
	}
	return ne.Kind == KindDNS || ne.Kind == KindConnRefused
}

// IsNetworkError reports whether err carries a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// KindOf returns the kind of a NetworkError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return ""
}

// classify maps a transport error to an ErrorKind.
func classify(err error) ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindDNS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return KindConnRefused
	}

	var certErr *tls.CertificateVerificationError
	var recErr tls.RecordHeaderError
	var alertErr tls.AlertError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	if errors.As(err, &certErr) || errors.As(err, &recErr) || errors.As(err, &alertErr) ||
		errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return KindTLS
	}
	if strings.Contains(err.Error(), "tls: ") {
		return KindTLS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnRefused
	}
	return KindOther
}
