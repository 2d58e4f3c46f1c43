// Package scan ties the engine together: a Session owns the shared client,
// limiter, counter, calibrator and aggregator of one scan, checks that the
// target answers, then runs the selected capabilities concurrently and
// reports the deduplicated findings with a summary.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/waftester/webscan/pkg/aggregate"
	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/calibration"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/target"
)

// maxGapMessages caps the gap descriptions kept in a summary.
const maxGapMessages = 50

// Request selects the capabilities of a Run. An empty Capabilities list
// runs every capability whose inputs are present in Params.
type Request struct {
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Params       `json:",inline" yaml:",inline"`
}

// Summary describes a finished or interrupted scan.
type Summary struct {
	Total        int                        `json:"total"`
	Duplicates   int                        `json:"duplicates"`
	ByCategory   map[finding.Category]int   `json:"by_category"`
	ByConfidence map[finding.Confidence]int `json:"by_confidence"`
	BySeverity   map[finding.Severity]int   `json:"by_severity"`

	Requests            int64         `json:"requests"`
	Truncated           bool          `json:"truncated"`
	CalibrationDegraded bool          `json:"calibration_degraded"`
	CoverageGaps        int           `json:"coverage_gaps"`
	Gaps                []string      `json:"gaps,omitempty"`
	Cancelled           bool          `json:"cancelled"`
	Capabilities        []string      `json:"capabilities"`
	Duration            time.Duration `json:"duration,format:nano"`
}

// Report is the result of a Run.
type Report struct {
	SessionID string            `json:"session_id"`
	Target    string            `json:"target"`
	Started   time.Time         `json:"started"`
	Findings  []finding.Finding `json:"findings"`
	Summary   Summary           `json:"summary"`
}

// Session is one scan's shared state. Several sessions can run in one
// process; nothing is shared between them.
type Session struct {
	id         string
	budget     budget.Budget
	client     *httpclient.Client
	calibrator *calibration.Calibrator
	agg        *aggregate.Aggregator
	config     Config
	logger     *slog.Logger
	tracer     trace.Tracer

	transport     httpclient.TransportConfig
	clientOptions []httpclient.Option
	observers     []aggregate.Observer

	gaps      atomic.Int64
	truncated atomic.Bool
	degraded  atomic.Bool
	gapMu     sync.Mutex
	gapMsgs   []string
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger handed to every component.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer records a span per run and per capability.
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithConfig sets the per-component tuning.
func WithConfig(cfg Config) Option {
	return func(s *Session) { s.config = cfg }
}

// WithTransport sets proxy and TLS options for the session's client.
func WithTransport(tc httpclient.TransportConfig) Option {
	return func(s *Session) { s.transport = tc }
}

// WithClientOptions passes options to the session's client, e.g. a
// metrics observer.
func WithClientOptions(opts ...httpclient.Option) Option {
	return func(s *Session) { s.clientOptions = append(s.clientOptions, opts...) }
}

// WithClient uses c instead of building a client from the budget. The
// budget's cap and rate are then whatever c was built with.
func WithClient(c *httpclient.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithObservers are notified of every finding the session retains.
func WithObservers(obs ...aggregate.Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, obs...) }
}

// NewSession validates b and builds the session's client, calibrator and
// aggregator.
func NewSession(b budget.Budget, opts ...Option) (*Session, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		id:        uuid.NewString(),
		budget:    b,
		config:    DefaultConfig(),
		logger:    slog.Default(),
		tracer:    noop.NewTracerProvider().Tracer(""),
		transport: httpclient.DefaultTransportConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("session", s.id))
	if s.client == nil {
		c, err := httpclient.NewForBudget(b, s.transport, append([]httpclient.Option{httpclient.WithLogger(s.logger)}, s.clientOptions...)...)
		if err != nil {
			return nil, err
		}
		s.client = c
	}
	s.calibrator = calibration.New(s.client,
		calibration.WithConfig(s.config.Calibration),
		calibration.WithLogger(s.logger))
	s.agg = aggregate.New(s.observers...)
	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Client returns the session's rate-limited client.
func (s *Session) Client() *httpclient.Client { return s.client }

// Findings returns a snapshot of the deduplicated findings so far.
func (s *Session) Findings() []finding.Finding { return s.agg.Results() }

// Run checks that the target answers, then runs the selected capabilities
// concurrently under the shared limiter. Cancelling ctx stops new requests;
// the report then holds the partial results and Summary.Cancelled is set.
// The only error besides invalid input is ErrTargetUnreachable.
func (s *Session) Run(ctx context.Context, req Request) (*Report, error) {
	started := time.Now()
	tg, err := target.Parse(req.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	caps, err := s.selectCapabilities(req)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("target", tg.String()),
		attribute.StringSlice("capabilities", names(caps)),
	))
	defer span.End()

	if err := s.checkReachable(ctx, tg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var wg sync.WaitGroup
	for _, c := range caps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.invoke(ctx, c, tg, req.Params); err != nil {
				s.logger.Warn("capability skipped",
					slog.String("capability", c.Name),
					slog.String("error", err.Error()))
			}
		}()
	}
	wg.Wait()

	report := &Report{
		SessionID: s.id,
		Target:    tg.String(),
		Started:   started,
		Findings:  s.agg.Results(),
		Summary:   s.Summary(),
	}
	report.Summary.Cancelled = ctx.Err() != nil
	report.Summary.Capabilities = names(caps)
	report.Summary.Duration = time.Since(started)
	span.SetAttributes(
		attribute.Int("findings", report.Summary.Total),
		attribute.Int64("requests", report.Summary.Requests),
		attribute.Bool("truncated", report.Summary.Truncated),
	)
	return report, nil
}

// Invoke runs one capability against p.Target and returns its findings.
// The findings are also retained by the session's aggregator.
func (s *Session) Invoke(ctx context.Context, name string, p Params) ([]finding.Finding, error) {
	c, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}
	tg, err := target.Parse(p.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return s.invoke(ctx, c, tg, p)
}

func (s *Session) invoke(ctx context.Context, c Capability, tg target.Target, p Params) ([]finding.Finding, error) {
	ctx, span := s.tracer.Start(ctx, "scan.capability", trace.WithAttributes(
		attribute.String("capability", c.Name),
		attribute.String("category", string(c.Category)),
	))
	defer span.End()

	var (
		mu  sync.Mutex
		out []finding.Finding
	)
	emit := Emit(func(f finding.Finding) {
		s.agg.Submit(f)
		mu.Lock()
		out = append(out, f)
		mu.Unlock()
	})
	if err := c.Invoke(ctx, s, tg, p, emit); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("findings", len(out)))
	return out, nil
}

// Summary returns the current counts and flags.
func (s *Session) Summary() Summary {
	counts := s.agg.Counts()
	s.gapMu.Lock()
	msgs := slices.Clone(s.gapMsgs)
	s.gapMu.Unlock()
	return Summary{
		Total:               counts.Total,
		Duplicates:          counts.Duplicates,
		ByCategory:          counts.ByCategory,
		ByConfidence:        counts.ByConfidence,
		BySeverity:          counts.BySeverity,
		Requests:            s.client.Counter().Issued(),
		Truncated:           s.truncated.Load() || s.client.Counter().Exhausted(),
		CalibrationDegraded: s.degraded.Load(),
		CoverageGaps:        int(s.gaps.Load()),
		Gaps:                msgs,
	}
}

// gap records a check that could not complete.
func (s *Session) gap(check string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, budget.ErrExhausted) {
		s.truncated.Store(true)
	}
	s.gaps.Add(1)
	s.gapMu.Lock()
	if len(s.gapMsgs) < maxGapMessages {
		s.gapMsgs = append(s.gapMsgs, fmt.Sprintf("%s: %v", check, err))
	}
	s.gapMu.Unlock()
	s.logger.Debug("coverage gap",
		slog.String("check", check),
		slog.String("error", err.Error()))
}

// checkReachable sends one request to the target. Only a network error
// aborts; any HTTP status means something answered.
func (s *Session) checkReachable(ctx context.Context, tg target.Target) error {
	_, err := s.client.Send(ctx, &httpclient.Request{URL: tg.String(), Tag: "scan/reachability"})
	var ne *httpclient.NetworkError
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %s: %w", ErrTargetUnreachable, tg.Origin(), err)
	}
	if err != nil {
		// Budget or cancellation: the capabilities will see it too.
		s.gap("reachability", err)
	}
	return nil
}

func (s *Session) selectCapabilities(req Request) ([]Capability, error) {
	if len(req.Capabilities) == 0 {
		var out []Capability
		for _, c := range Capabilities() {
			if c.Applicable(req.Params) {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("%w: nothing to run for the given params", ErrInvalidParams)
		}
		return out, nil
	}
	out := make([]Capability, 0, len(req.Capabilities))
	for _, name := range req.Capabilities {
		c, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
		}
		if !c.Applicable(req.Params) {
			return nil, fmt.Errorf("%w: %s is missing its inputs", ErrInvalidParams, name)
		}
		out = append(out, c)
	}
	return out, nil
}

func names(caps []Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = c.Name
	}
	return out
}
