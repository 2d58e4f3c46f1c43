// Package iohelper provides bounded body reading and evidence excerpts.
// Response bodies are capped so that a hostile or huge response cannot
// exhaust memory during classification.
package iohelper

import (
	"io"
	"strings"
	"unicode/utf8"
)

// Body size limits.
const (
	// SmallMaxBodySize is for reachability and calibration probes (8KB)
	SmallMaxBodySize int64 = 8 * 1024

	// DefaultMaxBodySize is for classification of scan responses (1MB)
	DefaultMaxBodySize int64 = 1024 * 1024

	// drainLimit bounds how much of an unread body is discarded for
	// connection reuse.
	drainLimit = 64 * 1024
)

// ReadCapped reads at most maxSize bytes from r. truncated reports whether
// the body was longer than the cap. A nil reader yields an empty body.
func ReadCapped(r io.Reader, maxSize int64) (body []byte, truncated bool, err error) {
	if r == nil {
		return []byte{}, false, nil
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	// Read one extra byte to detect truncation without a second pass.
	body, err = io.ReadAll(io.LimitReader(r, maxSize+1))
	if int64(len(body)) > maxSize {
		return body[:maxSize], true, err
	}
	return body, false, err
}

// DrainAndClose discards a bounded remainder of r and closes it so the
// underlying connection can be reused. Safe to defer.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, drainLimit))
	if rc, ok := r.(io.ReadCloser); ok {
		_ = rc.Close()
	}
	return nil
}

// Excerpt returns s cut to at most n bytes on a rune boundary, with "..."
// appended when cut.
func Excerpt(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Around returns the window of s spanning radius bytes on each side of the
// first occurrence of needle. It returns "" when needle is absent.
func Around(s, needle string, radius int) string {
	idx := strings.Index(s, needle)
	if idx < 0 {
		return ""
	}
	return Window(s, idx, idx+len(needle), radius)
}

// Window returns s[start-radius : end+radius] clamped to s and aligned to
// rune boundaries.
func Window(s string, start, end, radius int) string {
	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	hi := end + radius
	if hi > len(s) {
		hi = len(s)
	}
	for lo > 0 && !utf8.RuneStart(s[lo]) {
		lo--
	}
	for hi < len(s) && !utf8.RuneStart(s[hi]) {
		hi++
	}
	return s[lo:hi]
}
