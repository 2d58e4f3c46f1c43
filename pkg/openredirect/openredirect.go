// Package openredirect detects open redirects: parameters that send the
// browser to an arbitrary off-origin host through a 3xx Location, a
// Refresh header or a meta refresh tag.
package openredirect

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// DefaultCanaryHost is a reserved name that never resolves.
const DefaultCanaryHost = "webscan-canary.example"

// Vector is how the redirect was delivered.
type Vector string

const (
	VectorLocation    Vector = "location"
	VectorRefresh     Vector = "refresh-header"
	VectorMetaRefresh Vector = "meta-refresh"
)

// Payload is one redirect value built around the canary host.
type Payload struct {
	Name  string
	Value string
}

// Payloads returns the redirect payloads for canary, plain forms first.
func Payloads(canary string) []Payload {
	return []Payload{
		{"absolute-https", "https://" + canary + "/"},
		{"absolute-http", "http://" + canary + "/"},
		{"protocol-relative", "//" + canary + "/"},
		{"backslash-relative", `\\` + canary + "/"},
		{"slash-backslash", `/\` + canary + "/"},
		{"userinfo", "https://trusted.example@" + canary + "/"},
		{"encoded-slashes", "https:%2f%2f" + canary + "/"},
		{"leading-whitespace", " https://" + canary + "/"},
		{"triple-slash", "///" + canary + "/"},
	}
}

// Config sets the canary host.
type Config struct {
	CanaryHost string `json:"canary_host" yaml:"canary_host"`
}

// DefaultConfig uses DefaultCanaryHost.
func DefaultConfig() Config {
	return Config{CanaryHost: DefaultCanaryHost}
}

// Tester checks injection points for open redirects.
type Tester struct {
	client httpclient.Sender
	config Config
	logger *slog.Logger
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

// New creates a Tester.
func New(client httpclient.Sender, opts ...Option) *Tester {
	t := &Tester{client: client, config: DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	if t.config.CanaryHost == "" {
		t.config.CanaryHost = DefaultCanaryHost
	}
	return t
}

// Probe sends each payload until one lands on the canary host. A 3xx
// Location is confirmed; Refresh headers and meta refresh tags are likely
// because they depend on the client honoring them.
func (t *Tester) Probe(ctx context.Context, tg target.Target, p probe.InjectionPoint) ([]finding.Finding, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var likely *finding.Finding
	for _, pl := range Payloads(t.config.CanaryHost) {
		resp, err := t.client.Send(ctx, probe.Build(tg, p, pl.Value, "openredirect/"+pl.Name))
		if err != nil {
			return nil, probe.Gap("openredirect", err)
		}
		vector, dest, ok := t.redirectsToCanary(tg, resp)
		if !ok {
			continue
		}
		conf := finding.Likely
		if vector == VectorLocation {
			conf = finding.Confirmed
		}
		f := finding.New(finding.Finding{
			Category:    finding.OpenRedirect,
			Confidence:  conf,
			Technique:   string(vector),
			URL:         tg.Resolve(p.Path).String(),
			Path:        p.EndpointPath(tg),
			Parameter:   p.Parameter,
			StatusCode:  resp.StatusCode,
			Description: fmt.Sprintf("open redirect in %s via %s", p.Display(), vector),
			Evidence: finding.Evidence{
				Payload:  pl.Value,
				Request:  resp.Request.String(),
				Response: resp.Summary(defaults.EvidenceExcerpt),
				Detail:   fmt.Sprintf("payload=%s destination=%s", pl.Name, dest),
			},
		})
		if conf == finding.Confirmed {
			return []finding.Finding{f}, nil
		}
		if likely == nil {
			likely = &f
		}
	}
	if likely != nil {
		return []finding.Finding{*likely}, nil
	}
	return nil, nil
}

func (t *Tester) redirectsToCanary(tg target.Target, resp *httpclient.Response) (Vector, string, bool) {
	if resp.IsRedirect() {
		if loc := resp.Location(); loc != "" && t.offOrigin(tg, resp.Request.URL, loc) {
			return VectorLocation, loc, true
		}
	}
	if refresh := resp.Header.Get("Refresh"); refresh != "" {
		if dest, ok := RefreshTarget(refresh); ok && t.offOrigin(tg, resp.Request.URL, dest) {
			return VectorRefresh, dest, true
		}
	}
	for _, dest := range MetaRefreshTargets(resp.Body) {
		if t.offOrigin(tg, resp.Request.URL, dest) {
			return VectorMetaRefresh, dest, true
		}
	}
	return "", "", false
}

// offOrigin reports whether dest, resolved the way a browser would against
// the request URL, lands on the canary host.
func (t *Tester) offOrigin(tg target.Target, base, dest string) bool {
	u, ok := ResolveLocation(base, dest)
	if !ok || tg.SameOrigin(u) {
		return false
	}
	host := strings.ToLower(u.Hostname())
	canary := strings.ToLower(t.config.CanaryHost)
	return host == canary || strings.HasSuffix(host, "."+canary)
}

// ResolveLocation resolves a redirect destination against base. Leading
// whitespace is dropped and backslashes in the scheme-relative prefix are
// treated as slashes, matching browser URL parsing.
func ResolveLocation(base, dest string) (*url.URL, bool) {
	dest = strings.TrimLeft(dest, " \t\r\n\x00")
	if unescaped, err := url.PathUnescape(dest); err == nil && strings.Contains(strings.ToLower(dest), "%2f") {
		dest = unescaped
	}
	i := 0
	for i < len(dest) && (dest[i] == '/' || dest[i] == '\\') {
		i++
	}
	if i > 0 {
		dest = strings.Repeat("/", min(i, 2)) + dest[i:]
	}
	if j := strings.Index(dest, ":"); j > 0 && isScheme(dest[:j]) {
		rest := dest[j+1:]
		k := 0
		for k < len(rest) && (rest[k] == '/' || rest[k] == '\\') {
			k++
		}
		if k > 0 {
			dest = dest[:j+1] + "//" + rest[k:]
		}
	}
	b, err := url.Parse(base)
	if err != nil {
		return nil, false
	}
	ref, err := url.Parse(dest)
	if err != nil {
		return nil, false
	}
	return b.ResolveReference(ref), true
}

func isScheme(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}
