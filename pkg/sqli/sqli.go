// Package sqli detects SQL injection through database error messages,
// boolean response divergence and induced response delays.
package sqli

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/duration"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// Technique is one detection method.
type Technique string

const (
	ErrorBased   Technique = "error-based"
	BooleanBased Technique = "boolean-based"
	TimeBased    Technique = "time-based"
)

// Techniques returns every technique in the order they run.
func Techniques() []Technique {
	return []Technique{ErrorBased, BooleanBased, TimeBased}
}

// DBMS identifies a database engine by its error dialect.
type DBMS string

const (
	MySQL      DBMS = "mysql"
	PostgreSQL DBMS = "postgresql"
	MSSQL      DBMS = "mssql"
	Oracle     DBMS = "oracle"
	SQLite     DBMS = "sqlite"
	Generic    DBMS = "generic"
)

// Config tunes detection thresholds.
type Config struct {
	Techniques []Technique `json:"techniques" yaml:"techniques"`

	// Delay is the sleep requested by time-based payloads.
	Delay time.Duration `json:"delay,format:nano" yaml:"delay"`

	// DelayFactor is the fraction of Delay a trial must add over the
	// baseline latency to count as a hit.
	DelayFactor float64 `json:"delay_factor" yaml:"delay_factor"`

	// LikelyTrials and ConfirmTrials are the consecutive hits needed for
	// each confidence. Trials stop at the first miss.
	LikelyTrials  int `json:"likely_trials" yaml:"likely_trials"`
	ConfirmTrials int `json:"confirm_trials" yaml:"confirm_trials"`

	// BaselineSamples is the number of unmodified requests whose median
	// latency is the baseline.
	BaselineSamples int `json:"baseline_samples" yaml:"baseline_samples"`

	// SimilarityThreshold separates "same page" from "different page" in
	// boolean-based comparisons.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		Techniques:          Techniques(),
		Delay:               duration.SQLiDelay,
		DelayFactor:         defaults.DelayFactor,
		LikelyTrials:        defaults.LikelyTrials,
		ConfirmTrials:       defaults.ConfirmTrials,
		BaselineSamples:     3,
		SimilarityThreshold: defaults.SimilarityThreshold,
	}
}

// Tester runs SQL injection checks against injection points.
type Tester struct {
	client         httpclient.Sender
	config         Config
	logger         *slog.Logger
	requestTimeout time.Duration
}

// Option configures a Tester.
type Option func(*Tester)

// WithConfig replaces the default config.
func WithConfig(cfg Config) Option {
	return func(t *Tester) { t.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tester) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithRequestTimeout tells the tester the client's per-request timeout.
// A Delay above half of it is lowered to half, so a delayed response still
// arrives before the client gives up on it.
func WithRequestTimeout(d time.Duration) Option {
	return func(t *Tester) { t.requestTimeout = d }
}

// New creates a Tester.
func New(client httpclient.Sender, opts ...Option) *Tester {
	t := &Tester{client: client, config: DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	if len(t.config.Techniques) == 0 {
		t.config.Techniques = Techniques()
	}
	t.config.BaselineSamples = max(1, t.config.BaselineSamples)
	t.config.LikelyTrials = max(1, t.config.LikelyTrials)
	t.config.ConfirmTrials = max(t.config.LikelyTrials, t.config.ConfirmTrials)
	if limit := t.requestTimeout / 2; limit > 0 && t.config.Delay > limit {
		t.logger.Warn("sqli delay lowered to fit the request timeout",
			slog.Duration("delay", t.config.Delay),
			slog.Duration("timeout", t.requestTimeout),
			slog.Duration("using", limit))
		t.config.Delay = limit
	}
	return t
}

// Delay returns the sleep time-based payloads request.
func (t *Tester) Delay() time.Duration { return t.config.Delay }

// Probe tests one injection point. Techniques run cheapest first and the
// scan of a point stops at the first confirmed finding.
func (t *Tester) Probe(ctx context.Context, tg target.Target, p probe.InjectionPoint) ([]finding.Finding, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	base, err := t.send(ctx, tg, p, p.Original, "sqli/baseline")
	if err != nil {
		return nil, probe.Gap("sqli", err)
	}

	var out []finding.Finding
	for _, tech := range t.config.Techniques {
		var (
			f   *finding.Finding
			err error
		)
		switch tech {
		case ErrorBased:
			f, err = t.errorBased(ctx, tg, p, base)
		case BooleanBased:
			f, err = t.booleanBased(ctx, tg, p, base)
		case TimeBased:
			f, err = t.timeBased(ctx, tg, p)
		default:
			continue
		}
		if err != nil {
			t.logger.Debug("sqli check incomplete",
				slog.String("point", p.Display()),
				slog.String("technique", string(tech)),
				slog.String("error", err.Error()))
			return nil, probe.Gap("sqli/"+string(tech), err)
		}
		if f == nil {
			continue
		}
		out = append(out, *f)
		if f.Confidence == finding.Confirmed {
			break
		}
	}
	return out, nil
}

func (t *Tester) send(ctx context.Context, tg target.Target, p probe.InjectionPoint, value, tag string) (*httpclient.Response, error) {
	return t.client.Send(ctx, probe.Build(tg, p, value, tag))
}

func (t *Tester) newFinding(tg target.Target, p probe.InjectionPoint, tech Technique, conf finding.Confidence, payload string, resp *httpclient.Response, detail string, tags ...string) *finding.Finding {
	f := finding.Finding{
		Category:    finding.SQLInjection,
		Confidence:  conf,
		Technique:   string(tech),
		URL:         tg.Resolve(p.Path).String(),
		Path:        p.EndpointPath(tg),
		Parameter:   p.Parameter,
		Description: string(tech) + " SQL injection in " + p.Display(),
		Evidence: finding.Evidence{
			Payload: payload,
			Detail:  detail,
		},
		Tags: slices.Concat([]string{string(tech)}, tags),
	}
	if resp != nil {
		f.StatusCode = resp.StatusCode
		f.Evidence.Request = resp.Request.String()
		f.Evidence.Response = resp.Summary(defaults.EvidenceExcerpt)
	}
	f = finding.New(f)
	return &f
}

// isTimeout reports a per-request timeout, which time-based trials treat
// as a miss rather than a gap.
func isTimeout(err error) bool {
	return errors.Is(err, httpclient.ErrTimeout)
}
