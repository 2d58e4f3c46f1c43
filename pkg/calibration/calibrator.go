// Package calibration learns what a target's "not found" looks like before
// discovery starts, so that soft-404 pages are not reported as hits.
package calibration

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/target"
)

// ErrCalibrationDegraded is returned alongside a degraded Signature when no
// calibration probe got a response. It is informational: callers continue
// with literal status classification.
var ErrCalibrationDegraded = errors.New("calibration: degraded, no baseline")

// Config tunes probe count and matching tolerance.
type Config struct {
	// Probes is the number of random high-entropy paths. One extra path
	// with a random extension is always sent.
	Probes int `json:"probes" yaml:"probes"`

	// LengthTolerance is the relative length band, 0.05 = ±5%.
	LengthTolerance float64 `json:"length_tolerance" yaml:"length_tolerance"`

	// MinLengthSlack is the minimum absolute band in bytes.
	MinLengthSlack int `json:"min_length_slack" yaml:"min_length_slack"`
}

// DefaultConfig returns the default calibration settings.
func DefaultConfig() Config {
	return Config{
		Probes:          defaults.CalibrationProbes,
		LengthTolerance: defaults.LengthTolerance,
		MinLengthSlack:  defaults.MinLengthSlack,
	}
}

// Calibrator computes and caches one Signature per target. A Calibrator
// belongs to a single scan session.
type Calibrator struct {
	client httpclient.Sender
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	ready chan struct{}
	sig   *Signature
	err   error
}

// Option configures a Calibrator.
type Option func(*Calibrator)

// WithConfig overrides the default settings.
func WithConfig(cfg Config) Option {
	return func(c *Calibrator) { c.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Calibrator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Calibrator that sends its probes through client.
func New(client httpclient.Sender, opts ...Option) *Calibrator {
	c := &Calibrator{
		client:  client,
		config:  DefaultConfig(),
		logger:  slog.Default(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.Probes < 1 {
		c.config.Probes = 1
	}
	return c
}

// Calibrate returns the Signature for t, computing it on first use.
// Concurrent callers for the same target wait for a single computation.
//
// A degraded Signature is returned together with ErrCalibrationDegraded.
// If ctx ends before calibration completes, the context error is returned
// and nothing is cached.
func (c *Calibrator) Calibrate(ctx context.Context, t target.Target) (*Signature, error) {
	key := t.Key()

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		c.entries[key] = e
		c.mu.Unlock()

		e.sig, e.err = c.compute(ctx, t)
		if e.sig == nil {
			// Cancelled: let the next caller try again.
			c.mu.Lock()
			delete(c.entries, key)
			c.mu.Unlock()
		}
		close(e.ready)
		return e.sig, e.err
	}
	c.mu.Unlock()

	select {
	case <-e.ready:
		if e.sig == nil {
			return c.Calibrate(ctx, t)
		}
		return e.sig, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cached returns the stored Signature for t without sending anything.
func (c *Calibrator) Cached(t target.Target) (*Signature, bool) {
	c.mu.Lock()
	e, ok := c.entries[t.Key()]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.sig, e.sig != nil
	default:
		return nil, false
	}
}

// Invalidate drops the cached Signature for t.
func (c *Calibrator) Invalidate(t target.Target) {
	c.mu.Lock()
	delete(c.entries, t.Key())
	c.mu.Unlock()
}

type probeResult struct {
	status   int
	length   int
	hash     [2]uint64
	location string
}

func (c *Calibrator) compute(ctx context.Context, t target.Target) (*Signature, error) {
	paths := make([]string, 0, c.config.Probes+1)
	for range c.config.Probes {
		paths = append(paths, randomToken())
	}
	paths = append(paths, randomToken()+"."+randomExtension())

	var (
		results []probeResult
		lastErr error
	)
	for _, p := range paths {
		u := t.Resolve(p).String()
		resp, err := c.client.Send(ctx, &httpclient.Request{
			Method: http.MethodGet,
			URL:    u,
			Tag:    "calibration",
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			lastErr = err
			c.logger.Debug("calibration probe failed",
				slog.String("url", u),
				slog.String("error", err.Error()))
			continue
		}
		norm := Normalize(resp.Body, u)
		results = append(results, probeResult{
			status:   resp.StatusCode,
			length:   len(norm),
			hash:     hashBody(norm),
			location: normalizeLocation(resp.Location(), u),
		})
	}

	if len(results) == 0 {
		c.logger.Warn("calibration degraded",
			slog.String("target", t.String()),
			slog.Int("probes", len(paths)))
		return &Signature{Degraded: true, config: c.config},
			fmt.Errorf("%w: %d/%d probes failed: %w", ErrCalibrationDegraded, len(paths), len(paths), lastErr)
	}

	sig := buildSignature(results, c.config)
	c.logger.Debug("calibrated",
		slog.String("target", t.String()),
		slog.String("signature", sig.String()))
	return sig, nil
}

func randomToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func randomExtension() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = letters[int(buf[i])%len(letters)]
	}
	return string(buf)
}
