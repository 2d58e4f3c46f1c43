// Package session checks session cookies for weak attributes, guessable
// values and fixation across login.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// Issue is one failed checklist item.
type Issue string

const (
	MissingSecure   Issue = "missing-secure"
	MissingHttpOnly Issue = "missing-httponly"
	WeakSameSite    Issue = "weak-samesite"
	ShortToken      Issue = "short-token"
	LowEntropy      Issue = "low-entropy"
	Predictable     Issue = "predictable-sequence"
	Fixation        Issue = "session-fixation"
)

// confidence ranks issues: guessable or fixable sessions are exploitable
// as observed, weak tokens probably are, missing flags are hardening gaps.
func (i Issue) confidence() finding.Confidence {
	switch i {
	case Predictable, Fixation:
		return finding.Confirmed
	case ShortToken, LowEntropy:
		return finding.Likely
	default:
		return finding.Informational
	}
}

// Request names the pages that issue sessions.
type Request struct {
	// Path is requested Samples times to collect fresh session tokens.
	Path string `json:"path" yaml:"path"`

	// LoginPath and Credentials enable the fixation check: the pre-login
	// session is presented to a login POST and must be replaced.
	LoginPath   string     `json:"login_path,omitempty" yaml:"login_path,omitempty"`
	Credentials url.Values `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// CookieNames overrides session cookie detection by name.
	CookieNames []string `json:"cookie_names,omitempty" yaml:"cookie_names,omitempty"`
}

// Config holds the checklist thresholds.
type Config struct {
	Samples        int     `json:"samples" yaml:"samples"`
	MinTokenLength int     `json:"min_token_length" yaml:"min_token_length"`
	MinEntropyBits float64 `json:"min_entropy_bits" yaml:"min_entropy_bits"`
}

// DefaultConfig collects three tokens and requires 16 characters and 64
// bits of estimated entropy.
func DefaultConfig() Config {
	return Config{Samples: 3, MinTokenLength: 16, MinEntropyBits: 64}
}

// Tester checks session handling.
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
	t.config.Samples = max(1, t.config.Samples)
	return t
}

// observed is everything learned about one cookie name.
type observed struct {
	first  *http.Cookie
	values []string
	resp   *httpclient.Response
	issues []Issue
	detail []string
}

func (o *observed) add(i Issue, format string, args ...any) {
	if slices.Contains(o.issues, i) {
		return
	}
	o.issues = append(o.issues, i)
	o.detail = append(o.detail, string(i)+": "+fmt.Sprintf(format, args...))
}

// Probe reports one finding per session cookie that fails any check.
func (t *Tester) Probe(ctx context.Context, tg target.Target, r Request) ([]finding.Finding, error) {
	if r.Path == "" {
		return nil, fmt.Errorf("%w: empty path", probe.ErrInvalidPoint)
	}
	page := tg.Resolve(r.Path)

	cookies := map[string]*observed{}
	var order []string
	for range t.config.Samples {
		resp, err := t.client.Send(ctx, probe.Identity{}.Request(http.MethodGet, page.String(), "session/sample"))
		if err != nil {
			return nil, probe.Gap("session", err)
		}
		for _, c := range resp.Cookies {
			if !t.isSession(c.Name, r.CookieNames) || c.Value == "" {
				continue
			}
			o, ok := cookies[c.Name]
			if !ok {
				o = &observed{first: c, resp: resp}
				cookies[c.Name] = o
				order = append(order, c.Name)
			}
			o.values = append(o.values, c.Value)
		}
	}

	for _, name := range order {
		t.checkAttributes(tg, cookies[name])
		t.checkValues(cookies[name])
	}

	if r.LoginPath != "" && len(r.Credentials) > 0 {
		if err := t.checkFixation(ctx, tg, r, cookies, &order); err != nil {
			return nil, probe.Gap("session", err)
		}
	}

	var out []finding.Finding
	for _, name := range order {
		o := cookies[name]
		if len(o.issues) == 0 {
			continue
		}
		out = append(out, t.newFinding(tg, name, o))
	}
	return out, nil
}

func (t *Tester) checkAttributes(tg target.Target, o *observed) {
	c := o.first
	if tg.Scheme() == "https" && !c.Secure {
		o.add(MissingSecure, "cookie sent over https without Secure")
	}
	if !c.HttpOnly {
		o.add(MissingHttpOnly, "cookie readable from scripts")
	}
	switch c.SameSite {
	case http.SameSiteNoneMode:
		o.add(WeakSameSite, "SameSite=None")
	case 0, http.SameSiteDefaultMode:
		o.add(WeakSameSite, "SameSite not set")
	}
}

func (t *Tester) checkValues(o *observed) {
	v := o.first.Value
	if len(v) < t.config.MinTokenLength {
		o.add(ShortToken, "%d characters, want at least %d", len(v), t.config.MinTokenLength)
	}
	if bits := EntropyBits(o.values); bits < t.config.MinEntropyBits {
		o.add(LowEntropy, "about %.0f bits, want at least %.0f", bits, t.config.MinEntropyBits)
	}
	if len(o.values) >= 3 {
		if reason, ok := PredictableSequence(o.values); ok {
			o.add(Predictable, "%s across %d tokens", reason, len(o.values))
		}
	}
}

// checkFixation fetches the login page for a pre-login session, then posts
// the credentials presenting that session. The session is fixed when the
// login succeeds without issuing a new value.
func (t *Tester) checkFixation(ctx context.Context, tg target.Target, r Request, cookies map[string]*observed, order *[]string) error {
	login := tg.Resolve(r.LoginPath).String()
	pre, err := t.client.Send(ctx, probe.Identity{}.Request(http.MethodGet, login, "session/pre-login"))
	if err != nil {
		return err
	}
	var session *http.Cookie
	for _, c := range pre.Cookies {
		if t.isSession(c.Name, r.CookieNames) && c.Value != "" {
			session = c
			break
		}
	}
	if session == nil {
		return nil
	}

	req := probe.Identity{Cookies: []*http.Cookie{{Name: session.Name, Value: session.Value}}}.
		Request(http.MethodPost, login, "session/login")
	req.Body = []byte(r.Credentials.Encode())
	req.ContentType = defaults.ContentTypeForm
	resp, err := t.client.Send(ctx, req)
	if err != nil {
		return err
	}
	if !loginSucceeded(resp) {
		t.logger.Debug("session fixation check skipped: login failed",
			slog.String("login", login),
			slog.Int("status", resp.StatusCode))
		return nil
	}
	for _, c := range resp.Cookies {
		if c.Name == session.Name && c.Value != session.Value && c.Value != "" {
			return nil
		}
	}

	o, ok := cookies[session.Name]
	if !ok {
		o = &observed{first: session, values: []string{session.Value}, resp: resp}
		cookies[session.Name] = o
		*order = append(*order, session.Name)
	}
	o.resp = resp
	o.add(Fixation, "pre-login value %s still valid after login (status %d)", mask(session.Value), resp.StatusCode)
	return nil
}

func loginSucceeded(resp *httpclient.Response) bool {
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false
	case resp.IsRedirect():
		return !strings.Contains(strings.ToLower(resp.Location()), "login")
	case resp.IsSuccess():
		return !probe.LooksLikeLogin(resp.Body) && !probe.LooksDenied(resp.Body)
	}
	return false
}

var sessionNameHints = []string{
	"sess", "sid", "token", "auth", "jwt", "jsessionid", "phpsessid", "connect.sid", "asp.net_sessionid",
}

func (t *Tester) isSession(name string, explicit []string) bool {
	if len(explicit) > 0 {
		return slices.ContainsFunc(explicit, func(n string) bool { return strings.EqualFold(n, name) })
	}
	lower := strings.ToLower(name)
	for _, h := range sessionNameHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func (t *Tester) newFinding(tg target.Target, name string, o *observed) finding.Finding {
	best := o.issues[0]
	for _, i := range o.issues[1:] {
		if i.confidence().Rank() > best.confidence().Rank() {
			best = i
		}
	}
	tags := make([]string, len(o.issues))
	for i, is := range o.issues {
		tags[i] = string(is)
	}
	u, _ := url.Parse(o.resp.Request.URL)
	path := tg.Resolve("/").Path
	if u != nil {
		path = u.Path
	}
	return finding.New(finding.Finding{
		Category:    finding.SessionWeakness,
		Confidence:  best.confidence(),
		Technique:   string(best),
		URL:         o.resp.Request.URL,
		Path:        path,
		Parameter:   name,
		StatusCode:  o.resp.StatusCode,
		Description: fmt.Sprintf("session cookie %s: %s", name, strings.Join(tags, ", ")),
		Evidence: finding.Evidence{
			Request:  o.resp.Request.String(),
			Response: o.resp.Summary(defaults.EvidenceExcerpt),
			Detail:   strings.Join(o.detail, "; ") + "; samples=" + strings.Join(maskAll(o.values), ","),
		},
		Tags: tags,
	})
}

// mask keeps a token recognizable in evidence without storing it whole.
func mask(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:6] + "..." + v[len(v)-2:]
}

func maskAll(vs []string) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = mask(v)
	}
	return out
}
