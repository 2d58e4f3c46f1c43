// Package duration provides canonical time constants for the scanner.
//
// Usage:
//
//	budget.Timeout = duration.RequestTimeout
//	if elapsed > duration.SlowResponse {
//
// Timeout and Delay fields outside this package reference these constants
// instead of literal `N * time.Second` expressions.
package duration

import "time"

// ============================================================================
// HTTP CLIENT TIMEOUTS
// ============================================================================

const (
	// RequestTimeout is the default per-request timeout (10s)
	RequestTimeout = 10 * time.Second

	// Reachability bounds the pre-scan reachability check (15s)
	Reachability = 15 * time.Second

	// DialTimeout bounds TCP connect (10s)
	DialTimeout = 10 * time.Second

	// KeepAlive is the TCP keep-alive period (30s)
	KeepAlive = 30 * time.Second

	// IdleConnTimeout closes idle pooled connections (90s)
	IdleConnTimeout = 90 * time.Second

	// TLSHandshake bounds the TLS handshake (10s)
	TLSHandshake = 10 * time.Second
)

// ============================================================================
// TIMING-BASED DETECTION
// ============================================================================

const (
	// SQLiDelay is the delay induced by time-based SQL payloads (5s)
	SQLiDelay = 5 * time.Second

	// SlowResponse marks a response as slow in summaries (5s)
	SlowResponse = 5 * time.Second
)

// ============================================================================
// RATE ADAPTATION
// ============================================================================

const (
	// ThrottleRecovery is how long the limiter must see no throttling
	// before stepping its rate back up (5s)
	ThrottleRecovery = 5 * time.Second
)

// ============================================================================
// TELEMETRY / SERVERS
// ============================================================================

const (
	// ShutdownTimeout bounds exporter and metrics server shutdown (5s)
	ShutdownTimeout = 5 * time.Second

	// ExporterConnect bounds the OTLP exporter dial (10s)
	ExporterConnect = 10 * time.Second

	// ServerRead is the read timeout for the metrics and MCP HTTP servers (5s)
	ServerRead = 5 * time.Second

	// ServerWrite is the write timeout for the metrics and MCP HTTP servers (10s)
	ServerWrite = 10 * time.Second
)
