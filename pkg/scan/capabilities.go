package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/waftester/webscan/pkg/accesscontrol"
	"github.com/waftester/webscan/pkg/brokenauth"
	"github.com/waftester/webscan/pkg/discovery"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/idor"
	"github.com/waftester/webscan/pkg/lfi"
	"github.com/waftester/webscan/pkg/openredirect"
	"github.com/waftester/webscan/pkg/params"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/session"
	"github.com/waftester/webscan/pkg/sqli"
	"github.com/waftester/webscan/pkg/target"
	"github.com/waftester/webscan/pkg/wordlist"
	"github.com/waftester/webscan/pkg/workerpool"
	"github.com/waftester/webscan/pkg/xss"
)

// Capability names.
const (
	CapDiscover            = "discover"
	CapCommonFiles         = "common-files"
	CapAPIEndpoints        = "api-endpoints"
	CapParams              = "params"
	CapHeaders             = "headers"
	CapSQLi                = "sqli"
	CapXSS                 = "xss"
	CapLFI                 = "lfi"
	CapOpenRedirect        = "open-redirect"
	CapAuthBypass          = "auth-bypass"
	CapIDOR                = "idor"
	CapSession             = "session"
	CapPrivilegeEscalation = "privilege-escalation"
)

// Emit receives each finding a capability produces.
type Emit func(finding.Finding)

// InvokeFunc runs a capability. Per-check failures are recorded on the
// session as coverage gaps; a returned error means the capability could
// not start.
type InvokeFunc func(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error

// Capability is one independently invocable check.
type Capability struct {
	Name        string           `json:"name"`
	Category    finding.Category `json:"category"`
	Description string           `json:"description"`
	Invoke      InvokeFunc       `json:"-"`

	// Applicable reports whether p carries this capability's inputs.
	Applicable func(p Params) bool `json:"-"`
}

var capabilities = []Capability{
	{
		Name:        CapDiscover,
		Category:    finding.ExposedPath,
		Description: "Wordlist content discovery with soft-404 calibration and recursion up to the budget's depth",
		Invoke:      invokeDiscover,
		Applicable:  Params.hasWords,
	},
	{
		Name:        CapCommonFiles,
		Category:    finding.ExposedPath,
		Description: "Sweep for sensitive well-known files such as .git/config, .env and backups",
		Invoke:      sweep(CapCommonFiles, wordlist.CommonFiles),
		Applicable:  always,
	},
	{
		Name:        CapAPIEndpoints,
		Category:    finding.ExposedPath,
		Description: "Probe common API, documentation and health endpoints",
		Invoke:      sweep(CapAPIEndpoints, wordlist.APIPaths),
		Applicable:  always,
	},
	{
		Name:        CapParams,
		Category:    finding.ExposedPath,
		Description: "Hidden query and form parameters, found by bisecting chunks of candidate names",
		Invoke:      endpoints(CapParams, (*params.Discoverer).Discover),
		Applicable:  hasParamEndpoints,
	},
	{
		Name:        CapHeaders,
		Category:    finding.ExposedPath,
		Description: "Forwarding, rewrite and method-override headers that change the response",
		Invoke:      endpoints(CapHeaders, (*params.Discoverer).Headers),
		Applicable:  hasParamEndpoints,
	},
	{
		Name:        CapSQLi,
		Category:    finding.SQLInjection,
		Description: "Error-based, boolean-based and time-based SQL injection",
		Invoke: points(CapSQLi, func(s *Session) pointProber {
			return sqli.New(s.client,
				sqli.WithConfig(s.config.SQLi),
				sqli.WithRequestTimeout(s.budget.Timeout),
				sqli.WithLogger(s.logger))
		}),
		Applicable: hasPoints,
	},
	{
		Name:        CapXSS,
		Category:    finding.XSSReflected,
		Description: "Context-aware reflected cross-site scripting",
		Invoke: points(CapXSS, func(s *Session) pointProber {
			return xss.New(s.client, xss.WithLogger(s.logger))
		}),
		Applicable: hasPoints,
	},
	{
		Name:        CapLFI,
		Category:    finding.LFI,
		Description: "Path traversal and local file inclusion against known sentinel files",
		Invoke: points(CapLFI, func(s *Session) pointProber {
			return lfi.New(s.client, lfi.WithConfig(s.config.LFI), lfi.WithLogger(s.logger))
		}),
		Applicable: hasPoints,
	},
	{
		Name:        CapOpenRedirect,
		Category:    finding.OpenRedirect,
		Description: "Open redirect via Location, Refresh and meta refresh to a canary host",
		Invoke: points(CapOpenRedirect, func(s *Session) pointProber {
			return openredirect.New(s.client, openredirect.WithConfig(s.config.OpenRedirect), openredirect.WithLogger(s.logger))
		}),
		Applicable: hasPoints,
	},
	{
		Name:        CapAuthBypass,
		Category:    finding.AuthBypass,
		Description: "Protected endpoints reachable without or with tampered credentials",
		Invoke:      invokeAuthBypass,
		Applicable:  func(p Params) bool { return len(p.AuthEndpoints) > 0 },
	},
	{
		Name:        CapIDOR,
		Category:    finding.IDOR,
		Description: "Object IDs walkable under one identity",
		Invoke:      invokeIDOR,
		Applicable:  func(p Params) bool { return len(p.IDOR) > 0 },
	},
	{
		Name:        CapSession,
		Category:    finding.SessionWeakness,
		Description: "Session cookie flags, token strength, predictability and fixation",
		Invoke:      invokeSession,
		Applicable:  func(p Params) bool { return len(p.Sessions) > 0 },
	},
	{
		Name:        CapPrivilegeEscalation,
		Category:    finding.PrivilegeEscalation,
		Description: "Low-privilege credentials accepted on admin endpoints",
		Invoke:      invokePrivilege,
		Applicable:  func(p Params) bool { return p.Privilege != nil },
	},
}

// Capabilities returns the dispatch table in a stable order.
func Capabilities() []Capability {
	return slices.Clone(capabilities)
}

// Lookup returns the named capability.
func Lookup(name string) (Capability, bool) {
	for _, c := range capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return Capability{}, false
}

// Names returns the capability names in table order.
func Names() []string {
	return names(capabilities)
}

func always(Params) bool { return true }

func hasPoints(p Params) bool { return len(p.Points) > 0 }

func hasParamEndpoints(p Params) bool { return len(p.ParamEndpoints) > 0 }

func invokeDiscover(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error {
	words, exts, err := resolveWords(p)
	if err != nil {
		return err
	}
	return s.discover(ctx, CapDiscover, tg, words, exts, s.budget.MaxDepth, emit)
}

// sweep requests a fixed list at the target's base path without recursion.
func sweep(name string, list func() []string) InvokeFunc {
	return func(ctx context.Context, s *Session, tg target.Target, _ Params, emit Emit) error {
		return s.discover(ctx, name, tg, list(), nil, 0, emit)
	}
}

// resolveWords picks Words, then Wordlist, then Profile.
func resolveWords(p Params) ([]string, []string, error) {
	exts := p.Extensions
	switch {
	case len(p.Words) > 0:
		return p.Words, exts, nil
	case p.Wordlist != "":
		wl, err := wordlist.Load(p.Wordlist)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		return wl.Words, exts, nil
	case p.Profile != "":
		prof := wordlist.LookupProfile(p.Profile)
		if len(exts) == 0 {
			exts = prof.Extensions
		}
		return prof.Words, exts, nil
	}
	return nil, nil, fmt.Errorf("%w: discover needs words, a wordlist or a profile", ErrInvalidParams)
}

func (s *Session) discover(ctx context.Context, check string, tg target.Target, words, exts []string, depth int, emit Emit) error {
	cfg := s.config.Discovery
	if cfg.Workers <= 0 {
		cfg.Workers = workerpool.WorkersFor(s.budget.RequestsPerSecond)
	}
	eng := discovery.New(s.client, s.calibrator,
		discovery.WithConfig(cfg),
		discovery.WithLogger(s.logger))
	run := eng.Discover(ctx, tg, words, exts, depth)
	for f := range run.All() {
		emit(f)
	}
	st := run.Stats()
	if st.Degraded {
		s.degraded.Store(true)
	}
	if st.Truncated {
		s.truncated.Store(true)
	}
	if st.Errors > 0 {
		s.gap(check, fmt.Errorf("%d of %d requests failed", st.Errors, st.Requests))
	}
	s.logger.Info("discovery finished",
		slog.String("check", check),
		slog.Int64("requests", st.Requests),
		slog.Int64("hits", st.Hits),
		slog.Int64("filtered", st.Filtered),
		slog.Int("depth", st.DepthReached))
	return nil
}

// pointProber is the shape shared by the injection probes.
type pointProber interface {
	Probe(ctx context.Context, tg target.Target, p probe.InjectionPoint) ([]finding.Finding, error)
}

func points(name string, build func(*Session) pointProber) InvokeFunc {
	return func(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error {
		if len(p.Points) == 0 {
			return fmt.Errorf("%w: %s needs at least one injection point", ErrInvalidParams, name)
		}
		pr := build(s)
		workerpool.ForEach(ctx, workerpool.WorkersFor(s.budget.RequestsPerSecond), p.Points, func(ctx context.Context, pt probe.InjectionPoint) {
			fs, err := pr.Probe(ctx, tg, pt)
			s.collect(name+" "+pt.Display(), fs, err, emit)
		})
		return nil
	}
}

// endpoints runs one params search per endpoint.
func endpoints(name string, search func(*params.Discoverer, context.Context, target.Target, params.Endpoint) ([]finding.Finding, error)) InvokeFunc {
	return func(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error {
		if len(p.ParamEndpoints) == 0 {
			return fmt.Errorf("%w: %s needs at least one endpoint", ErrInvalidParams, name)
		}
		d := params.New(s.client, params.WithConfig(s.config.Params), params.WithLogger(s.logger))
		workerpool.ForEach(ctx, workerpool.WorkersFor(s.budget.RequestsPerSecond), p.ParamEndpoints, func(ctx context.Context, ep params.Endpoint) {
			fs, err := search(d, ctx, tg, ep)
			s.collect(name+" "+ep.Path, fs, err, emit)
		})
		return nil
	}
}

func invokeAuthBypass(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error {
	if len(p.AuthEndpoints) == 0 {
		return fmt.Errorf("%w: auth-bypass needs endpoints", ErrInvalidParams)
	}
	opts := []brokenauth.Option{brokenauth.WithLogger(s.logger)}
	if len(s.config.AuthTechniques) > 0 {
		opts = append(opts, brokenauth.WithTechniques(s.config.AuthTechniques...))
	}
	t := brokenauth.New(s.client, opts...)
	for _, ep := range p.AuthEndpoints {
		if ctx.Err() != nil {
			break
		}
		fs, err := t.Probe(ctx, tg, ep)
		s.collect(CapAuthBypass+" "+ep.Path, fs, err, emit)
	}
	return nil
}

func invokeIDOR(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error {
	if len(p.IDOR) == 0 {
		return fmt.Errorf("%w: idor needs at least one request", ErrInvalidParams)
	}
	opts := []idor.Option{idor.WithLogger(s.logger)}
	if s.config.IDORThreshold > 0 {
		opts = append(opts, idor.WithThreshold(s.config.IDORThreshold))
	}
	t := idor.New(s.client, opts...)
	for _, r := range p.IDOR {
		if ctx.Err() != nil {
			break
		}
		fs, err := t.Probe(ctx, tg, r)
		s.collect(CapIDOR+" "+r.Point.Display(), fs, err, emit)
	}
	return nil
}

func invokeSession(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error {
	if len(p.Sessions) == 0 {
		return fmt.Errorf("%w: session needs at least one request", ErrInvalidParams)
	}
	t := session.New(s.client, session.WithConfig(s.config.Session), session.WithLogger(s.logger))
	for _, r := range p.Sessions {
		if ctx.Err() != nil {
			break
		}
		fs, err := t.Probe(ctx, tg, r)
		s.collect(CapSession+" "+r.Path, fs, err, emit)
	}
	return nil
}

func invokePrivilege(ctx context.Context, s *Session, tg target.Target, p Params, emit Emit) error {
	if p.Privilege == nil {
		return fmt.Errorf("%w: privilege-escalation needs a low-privilege identity", ErrInvalidParams)
	}
	t := accesscontrol.New(s.client, accesscontrol.WithLogger(s.logger))
	fs, err := t.Probe(ctx, tg, *p.Privilege)
	if errors.Is(err, probe.ErrInvalidPoint) {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	s.collect(CapPrivilegeEscalation, fs, err, emit)
	return nil
}

// collect emits a probe's findings or records its gap.
func (s *Session) collect(check string, fs []finding.Finding, err error, emit Emit) {
	if err != nil {
		s.gap(check, err)
		return
	}
	for _, f := range fs {
		emit(f)
	}
}
