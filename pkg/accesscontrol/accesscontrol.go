// Package accesscontrol detects vertical privilege escalation: a
// low-privilege identity reaching administrative endpoints that refuse
// anonymous requests.
package accesscontrol

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// Endpoint is an administrative resource.
type Endpoint struct {
	Path   string `json:"path" yaml:"path"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
}

// AdminEndpoints returns common administrative paths.
func AdminEndpoints() []Endpoint {
	paths := []string{
		"/admin",
		"/admin/dashboard",
		"/admin/users",
		"/admin/settings",
		"/admin/config",
		"/admin/logs",
		"/api/admin",
		"/api/v1/admin",
		"/api/admin/users",
		"/management",
		"/manager",
		"/console",
		"/dashboard/admin",
		"/control-panel",
		"/backend",
		"/superadmin",
	}
	out := make([]Endpoint, len(paths))
	for i, p := range paths {
		out[i] = Endpoint{Path: p}
	}
	return out
}

// Request pairs the endpoints with the identities to compare.
type Request struct {
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`

	// Low is the low-privilege identity under test.
	Low probe.Identity `json:"low" yaml:"low"`

	// High is an optional administrator identity whose view of each
	// endpoint is the reference.
	High probe.Identity `json:"high" yaml:"high"`
}

// Tester checks endpoints for privilege escalation.
type Tester struct {
	client httpclient.Sender
	logger *slog.Logger
}

// Option configures a Tester.
type Option func(*Tester)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tester) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Tester.
func New(client httpclient.Sender, opts ...Option) *Tester {
	t := &Tester{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Probe checks every endpoint. An endpoint counts only when it denies the
// anonymous request and serves content to the low identity. With a High
// reference the finding is confirmed when both identities see the same
// page; otherwise it is likely.
func (t *Tester) Probe(ctx context.Context, tg target.Target, r Request) ([]finding.Finding, error) {
	if r.Low.IsAnonymous() {
		return nil, fmt.Errorf("%w: low-privilege identity has no credentials", probe.ErrInvalidPoint)
	}
	endpoints := r.Endpoints
	if len(endpoints) == 0 {
		endpoints = AdminEndpoints()
	}

	var out []finding.Finding
	for _, ep := range endpoints {
		f, err := t.check(ctx, tg, ep, r)
		if err != nil {
			return nil, probe.Gap("accesscontrol", err)
		}
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (t *Tester) check(ctx context.Context, tg target.Target, ep Endpoint, r Request) (*finding.Finding, error) {
	u := tg.Resolve(ep.Path).String()

	anon, err := t.client.Send(ctx, probe.Identity{}.Request(ep.Method, u, "accesscontrol/anonymous"))
	if err != nil {
		return nil, err
	}
	if !probe.Denied(anon) || probe.Accessible(anon) {
		// Missing, broken or public: not a privilege boundary.
		return nil, nil
	}

	low, err := t.client.Send(ctx, r.Low.Request(ep.Method, u, "accesscontrol/low"))
	if err != nil {
		return nil, err
	}
	if !probe.Accessible(low) {
		return nil, nil
	}

	conf := finding.Likely
	detail := fmt.Sprintf("anonymous=%d %s=%d", anon.StatusCode, r.Low.Label(), low.StatusCode)
	if !r.High.IsAnonymous() {
		high, err := t.client.Send(ctx, r.High.Request(ep.Method, u, "accesscontrol/high"))
		if err != nil {
			return nil, err
		}
		sim := probe.Similarity(low.Body, high.Body)
		detail += fmt.Sprintf(" %s=%d similarity=%.2f", r.High.Label(), high.StatusCode, sim)
		if probe.Accessible(high) && probe.Similar(low.Body, high.Body) {
			conf = finding.Confirmed
		}
	}
	t.logger.Debug("privilege escalation",
		slog.String("endpoint", ep.Path),
		slog.String("confidence", string(conf)))

	path := tg.Resolve(ep.Path).Path
	f := finding.New(finding.Finding{
		Category:    finding.PrivilegeEscalation,
		Confidence:  conf,
		Technique:   "vertical",
		URL:         u,
		Path:        path,
		StatusCode:  low.StatusCode,
		Description: fmt.Sprintf("%s identity reaches administrative endpoint %s", r.Low.Label(), path),
		Evidence: finding.Evidence{
			Request:  low.Request.String(),
			Response: low.Summary(defaults.EvidenceExcerpt),
			Detail:   detail,
		},
	})
	return &f, nil
}
