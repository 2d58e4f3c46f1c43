// Package defaults provides canonical default values for the scanner.
// Packages reference these constants instead of hardcoding numbers so
// that the CLI, config files and library callers agree on one baseline.
//
// Usage:
//
//	cfg.Workers = defaults.ConcurrencyMedium
//	req.Header.Set("Content-Type", defaults.ContentTypeForm)
package defaults

import "fmt"

// Version is the current webscan version.
const Version = "0.9.2"

// ToolName is used for service names, user agents and MCP registration.
const ToolName = "webscan"

// ============================================================================
// SCAN BUDGET
// ============================================================================

const (
	// RequestsPerSecond is the default global admission ceiling (40)
	RequestsPerSecond = 40

	// MaxDepth is the default recursion depth for discovery (2)
	MaxDepth = 2

	// MaxRequests is the default total request cap for a scan (10000)
	MaxRequests = 10000

	// Burst is the default limiter burst. One token keeps the ceiling strict.
	Burst = 1
)

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================

const (
	// ConcurrencyMinimal is for strictly sequential checks (1)
	ConcurrencyMinimal = 1

	// ConcurrencyLow is for auth and session checks (5)
	ConcurrencyLow = 5

	// ConcurrencyMedium is for standard probing (10)
	ConcurrencyMedium = 10

	// ConcurrencyMax caps discovery workers regardless of the rate ceiling (64)
	ConcurrencyMax = 64
)

// ============================================================================
// BODY / BUFFER SIZES
// ============================================================================

const (
	// MaxBodySize caps the response body kept for classification (1MB)
	MaxBodySize = 1024 * 1024

	// EvidenceExcerpt is the maximum evidence snippet stored on a finding (512)
	EvidenceExcerpt = 512

	// ChannelSmall is for result channels between workers and collectors (100)
	ChannelSmall = 100
)

// ============================================================================
// CALIBRATION / DETECTION THRESHOLDS
// ============================================================================

const (
	// CalibrationProbes is the number of random-path probes (3)
	CalibrationProbes = 3

	// LengthTolerance is the relative body-length band for baseline matches (5%)
	LengthTolerance = 0.05

	// MinLengthSlack is the absolute length slack applied to tiny bodies (8)
	MinLengthSlack = 8

	// DelayFactor is the share of the induced delay that counts as a hit (0.8)
	DelayFactor = 0.8

	// LikelyTrials is the number of timing hits that make a finding likely (2)
	LikelyTrials = 2

	// ConfirmTrials is the number of timing hits that confirm a finding (3)
	ConfirmTrials = 3

	// SimilarityThreshold separates "same page" from "different page" (0.9)
	SimilarityThreshold = 0.9
)

// ============================================================================
// HTTP CONTENT TYPES
// ============================================================================

const (
	// ContentTypeJSON is application/json
	ContentTypeJSON = "application/json"

	// ContentTypeForm is application/x-www-form-urlencoded
	ContentTypeForm = "application/x-www-form-urlencoded"

	// ContentTypeHTML is text/html
	ContentTypeHTML = "text/html"
)

// ============================================================================
// USER AGENTS
// ============================================================================

const (
	// UAMinimal is the default scanner user agent
	UAMinimal = "webscan/" + Version

	// UAGoogleBot impersonates a search crawler for auth-bypass checks
	UAGoogleBot = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// UserAgent returns the scanner user agent with an optional context suffix.
func UserAgent(context string) string {
	if context == "" {
		return UAMinimal
	}
	return fmt.Sprintf("webscan/%s (%s)", Version, context)
}

// Exit codes for the CLI.
const (
	ExitSuccess       = 0 // Scan completed, nothing found
	ExitFindings      = 1 // Scan completed with findings
	ExitUserError     = 2 // Invalid arguments or configuration
	ExitNetworkError  = 3 // Target unreachable
	ExitInternalError = 4 // Unexpected internal error
	ExitInterrupted   = 5 // Scan cancelled before completion
)
