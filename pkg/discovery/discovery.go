// Package discovery finds exposed paths by requesting wordlist candidates
// against a target and recursing into directories, breadth first.
//
// Every candidate response is compared against the target's calibrated
// "not found" signature, so catch-all hosts produce no findings.
package discovery

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/waftester/webscan/pkg/calibration"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/target"
	"github.com/waftester/webscan/pkg/workerpool"
)

// Config tunes classification and concurrency.
type Config struct {
	// Workers bounds concurrent requests. All workers share the client's
	// limiter.
	Workers int `json:"workers" yaml:"workers"`

	// IgnoreStatus lists status codes that are never hits.
	IgnoreStatus []int `json:"ignore_status" yaml:"ignore_status"`

	// Method used for candidate requests.
	Method string `json:"method" yaml:"method"`
}

// DefaultIgnoreStatus returns 400, 404, 429 and every 5xx except 500.
func DefaultIgnoreStatus() []int {
	codes := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusTooManyRequests}
	for c := 501; c <= 599; c++ {
		codes = append(codes, c)
	}
	return codes
}

// DefaultConfig returns defaults sized for the default request rate.
func DefaultConfig() Config {
	return Config{
		Workers:      workerpool.WorkersFor(defaults.RequestsPerSecond),
		IgnoreStatus: DefaultIgnoreStatus(),
		Method:       http.MethodGet,
	}
}

// Engine runs discovery. It is safe for concurrent use; each Discover call
// yields an independent Run.
type Engine struct {
	client     httpclient.Sender
	calibrator *calibration.Calibrator
	config     Config
	logger     *slog.Logger
	ignore     map[int]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default config.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithWorkers overrides the worker count.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.config.Workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine. The calibrator is normally shared by the whole
// scan session so a target is calibrated only once.
func New(client httpclient.Sender, cal *calibration.Calibrator, opts ...Option) *Engine {
	e := &Engine{
		client:     client,
		calibrator: cal,
		config:     DefaultConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.calibrator == nil {
		e.calibrator = calibration.New(client, calibration.WithLogger(e.logger))
	}
	if e.config.Workers <= 0 {
		e.config.Workers = defaults.ConcurrencyMinimal
	}
	if e.config.Method == "" {
		e.config.Method = http.MethodGet
	}
	if e.config.IgnoreStatus == nil {
		e.config.IgnoreStatus = DefaultIgnoreStatus()
	}
	e.ignore = make(map[int]struct{}, len(e.config.IgnoreStatus))
	for _, c := range e.config.IgnoreStatus {
		e.ignore[c] = struct{}{}
	}
	return e
}

// Stats describes one completed or interrupted run.
type Stats struct {
	Requests     int64         `json:"requests"`
	Hits         int64         `json:"hits"`
	Filtered     int64         `json:"filtered"`
	Errors       int64         `json:"errors"`
	DepthReached int           `json:"depth_reached"`
	Truncated    bool          `json:"truncated"`
	Degraded     bool          `json:"degraded"`
	Cancelled    bool          `json:"cancelled"`
	Duration     time.Duration `json:"duration,format:nano"`
}

// Run is a lazily evaluated discovery over one target. Nothing is sent
// until All is iterated.
type Run struct {
	engine   *Engine
	ctx      context.Context
	target   target.Target
	words    []string
	exts     []string
	maxDepth int

	mu    sync.Mutex
	stats Stats
}

// Discover prepares a discovery of t. Each word is requested bare and with
// each extension; extensions without a leading dot get one. maxDepth 0
// disables recursion.
func (e *Engine) Discover(ctx context.Context, t target.Target, words, exts []string, maxDepth int) *Run {
	exts = append([]string{""}, exts...)
	return &Run{
		engine:   e,
		ctx:      ctx,
		target:   t,
		words:    slices.Clone(words),
		exts:     exts,
		maxDepth: max(0, maxDepth),
	}
}

// Stats returns the statistics of the most recent iteration.
func (r *Run) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Run) setStats(s Stats) {
	r.mu.Lock()
	r.stats = s
	r.mu.Unlock()
}

// Findings drains All into a slice.
func (r *Run) Findings() []finding.Finding {
	var out []finding.Finding
	for f := range r.All() {
		out = append(out, f)
	}
	return out
}

// Paths returns the distinct request paths the candidate set expands to at
// one directory level.
func (r *Run) Paths() []string {
	return candidates(r.words, r.exts)
}

// Target returns the run's target.
func (r *Run) Target() target.Target { return r.target }
