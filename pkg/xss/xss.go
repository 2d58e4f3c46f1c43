// Package xss detects reflected Cross-Site Scripting. A random marker is
// first sent alone to find where the parameter is reflected; payloads
// suited to that context are then checked for verbatim (unescaped) echo.
package xss

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/iohelper"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// markerPlaceholder is replaced by the per-probe marker in payload templates.
const markerPlaceholder = "{m}"

// Payload is a template carrying the marker, built for one context.
type Payload struct {
	Template    string
	Context     Context
	Description string
}

// Render substitutes the marker into the template.
func (p Payload) Render(marker string) string {
	return strings.ReplaceAll(p.Template, markerPlaceholder, marker)
}

var payloads = []Payload{
	{`<svg/onload={m}>`, ContextHTML, "svg onload"},
	{`<img src=x onerror={m}>`, ContextHTML, "img onerror"},
	{`<script>{m}</script>`, ContextHTML, "script tag"},

	{`"><svg/onload={m}>`, ContextAttribute, "double quote breakout"},
	{`'><svg/onload={m}>`, ContextAttribute, "single quote breakout"},
	{`" autofocus onfocus={m} x="`, ContextAttribute, "double quote event handler"},
	{`' autofocus onfocus={m} x='`, ContextAttribute, "single quote event handler"},

	{`</script><svg/onload={m}>`, ContextScript, "script block breakout"},
	{`';{m}//`, ContextScript, "single quote string breakout"},
	{`";{m}//`, ContextScript, "double quote string breakout"},
}

// Payloads returns the payloads for c, or all payloads when c is empty.
func Payloads(c Context) []Payload {
	var out []Payload
	for _, p := range payloads {
		if c == "" || p.Context == c {
			out = append(out, p)
		}
	}
	return out
}

// Tester checks injection points for reflected XSS.
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

// Probe reports at most one confirmed finding per point: the first payload
// echoed verbatim. Points that do not reflect the bare marker cost one
// request.
func (t *Tester) Probe(ctx context.Context, tg target.Target, p probe.InjectionPoint) ([]finding.Finding, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	marker := newMarker()

	resp, err := t.client.Send(ctx, probe.Build(tg, p, marker, "xss/marker"))
	if err != nil {
		return nil, probe.Gap("xss", err)
	}
	contexts := Contexts(resp.Body, marker)
	if len(contexts) == 0 {
		return nil, nil
	}
	t.logger.Debug("xss marker reflected",
		slog.String("point", p.Display()),
		slog.Any("contexts", contexts))

	for _, c := range candidateContexts(contexts) {
		for _, pl := range Payloads(c) {
			value := pl.Render(marker)
			resp, err := t.client.Send(ctx, probe.Build(tg, p, value, "xss/"+string(c)))
			if err != nil {
				return nil, probe.Gap("xss", err)
			}
			body := resp.BodyString()
			if !strings.Contains(body, value) {
				continue
			}
			f := finding.New(finding.Finding{
				Category:    finding.XSSReflected,
				Confidence:  finding.Confirmed,
				Technique:   "reflected",
				URL:         tg.Resolve(p.Path).String(),
				Path:        p.EndpointPath(tg),
				Parameter:   p.Parameter,
				StatusCode:  resp.StatusCode,
				Description: fmt.Sprintf("reflected XSS in %s (%s context, %s)", p.Display(), c, pl.Description),
				Evidence: finding.Evidence{
					Payload:  value,
					Request:  resp.Request.String(),
					Response: resp.Summary(defaults.EvidenceExcerpt),
					Detail:   fmt.Sprintf("context=%s reflection=%q", c, iohelper.Around(body, value, 60)),
				},
				Tags: []string{"context:" + string(c)},
			})
			return []finding.Finding{f}, nil
		}
	}
	return nil, nil
}

// candidateContexts puts the observed contexts first and falls back to the
// HTML payloads, which also fire when a filter only handles one quote style.
func candidateContexts(seen []Context) []Context {
	out := append([]Context(nil), seen...)
	for _, c := range out {
		if c == ContextHTML {
			return out
		}
	}
	return append(out, ContextHTML)
}

func newMarker() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return "wsx" + hex.EncodeToString(b)
}
