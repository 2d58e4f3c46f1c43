// Package params finds inputs an endpoint reacts to without advertising
// them: hidden query or form parameters, found by sending candidate names
// in chunks and bisecting every chunk that changes the response, and
// request headers that change routing or access decisions.
package params

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
	"github.com/waftester/webscan/pkg/wordlist"
)

// Source is where a candidate name came from.
type Source string

const (
	SourceWordlist Source = "wordlist"
	SourcePassive  Source = "passive" // form fields of the baseline page
)

// Endpoint is one request whose inputs are searched.
type Endpoint struct {
	// Method defaults to GET, or POST for form endpoints.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	Path   string `json:"path" yaml:"path"`

	// Location is query (default) or form.
	Location probe.Location `json:"location,omitempty" yaml:"location,omitempty"`

	// Extra holds known parameters, sent unchanged with every request.
	Extra  url.Values  `json:"extra,omitempty" yaml:"extra,omitempty"`
	Header http.Header `json:"header,omitempty" yaml:"header,omitempty"`
}

// Validate checks that the endpoint can be built.
func (ep Endpoint) Validate() error {
	if ep.Path == "" {
		return fmt.Errorf("%w: empty path", probe.ErrInvalidPoint)
	}
	switch ep.location() {
	case probe.Query, probe.Form:
		return nil
	}
	return fmt.Errorf("%w: parameters are searched in query or form, not %q", probe.ErrInvalidPoint, ep.Location)
}

func (ep Endpoint) location() probe.Location {
	if ep.Location == "" {
		return probe.Query
	}
	return ep.Location
}

func (ep Endpoint) method() string {
	if ep.Method != "" {
		return strings.ToUpper(ep.Method)
	}
	if ep.location() == probe.Form {
		return http.MethodPost
	}
	return http.MethodGet
}

// request builds ep with add merged over Extra and hdr set over Header.
func (ep Endpoint) request(tg target.Target, add url.Values, hdr http.Header, tag string) *httpclient.Request {
	vals := url.Values{}
	for k, vs := range ep.Extra {
		vals[k] = slices.Clone(vs)
	}
	for k, vs := range add {
		vals[k] = vs
	}
	req := &httpclient.Request{Method: ep.method(), Header: ep.Header.Clone(), Tag: tag}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	u := tg.Resolve(ep.Path)
	if ep.location() == probe.Form {
		req.Body = []byte(vals.Encode())
		req.ContentType = defaults.ContentTypeForm
	} else if len(vals) > 0 {
		q := u.Query()
		for k, vs := range vals {
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}
	req.URL = u.String()
	return req
}

// Config tunes parameter discovery.
type Config struct {
	// ChunkSize is how many names go into one request before bisection.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// Threshold is the body similarity below which a response counts as
	// changed. Status changes always count.
	Threshold float64 `json:"threshold" yaml:"threshold"`

	// Words replaces the built-in parameter names when set.
	Words []string `json:"words,omitempty" yaml:"words,omitempty"`
}

// DefaultConfig sends 64 names per request and uses the shared similarity
// threshold.
func DefaultConfig() Config {
	return Config{ChunkSize: 64, Threshold: defaults.SimilarityThreshold}
}

// Discoverer searches endpoints for hidden parameters and headers.
type Discoverer struct {
	client httpclient.Sender
	config Config
	logger *slog.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithConfig replaces the default config.
func WithConfig(cfg Config) Option {
	return func(d *Discoverer) { d.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Discoverer.
func New(client httpclient.Sender, opts ...Option) *Discoverer {
	d := &Discoverer{client: client, config: DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	def := DefaultConfig()
	if d.config.ChunkSize <= 0 {
		d.config.ChunkSize = def.ChunkSize
	}
	if d.config.Threshold <= 0 || d.config.Threshold > 1 {
		d.config.Threshold = def.Threshold
	}
	return d
}

// baseline is the reference response of an endpoint plus what its noise
// looks like.
type baseline struct {
	resp *httpclient.Response

	// echoes is set when the endpoint reflects any parameter value, so
	// reflection says nothing about a particular name.
	echoes bool
}

// changed reports whether resp differs from the baseline once the
// parameters this request added are removed from both bodies.
func (d *Discoverer) changed(b *baseline, resp *httpclient.Response, add url.Values) bool {
	if resp.StatusCode != b.resp.StatusCode {
		return true
	}
	if b.resp.Location() != resp.Location() {
		return true
	}
	sent := sentText(add)
	return probe.Similarity(strip(b.resp.Body, sent), strip(resp.Body, sent)) < d.config.Threshold
}

// sentText lists what a page echoing the request could repeat: the encoded
// parameters, then each value.
func sentText(add url.Values) []string {
	out := []string{add.Encode()}
	for _, vs := range add {
		out = append(out, vs...)
	}
	return out
}

func strip(body []byte, sent []string) []byte {
	out := body
	for _, v := range sent {
		if v == "" {
			continue
		}
		out = bytes.ReplaceAll(out, []byte(v), nil)
	}
	return out
}

// Discover finds hidden parameters of ep. Each finding is informational:
// the parameter exists and is worth injection testing, nothing more.
// An endpoint whose response changes for any unknown parameter yields no
// findings.
func (d *Discoverer) Discover(ctx context.Context, tg target.Target, ep Endpoint) ([]finding.Finding, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	base, err := d.client.Send(ctx, ep.request(tg, nil, nil, "params/baseline"))
	if err != nil {
		return nil, probe.Gap("params", err)
	}
	b := &baseline{resp: base}

	// Unknown names must leave the page alone or nothing can be told apart.
	junk := url.Values{}
	echo := token()
	junk.Set("ws"+token(), echo)
	junk.Set("ws"+token(), token())
	ctrl, err := d.client.Send(ctx, ep.request(tg, junk, nil, "params/control"))
	if err != nil {
		return nil, probe.Gap("params", err)
	}
	if d.changed(b, ctrl, junk) {
		d.logger.Info("endpoint reacts to unknown parameters, skipped",
			slog.String("path", ep.Path),
			slog.Int("baseline_status", base.StatusCode),
			slog.Int("control_status", ctrl.StatusCode))
		return nil, nil
	}
	b.echoes = reflects(ctrl.Body, echo)

	cands := d.candidates(base.Body, ep)
	run := &search{d: d, tg: tg, ep: ep, b: b, canary: token()}
	for chunk := range slices.Chunk(cands, d.config.ChunkSize) {
		if err := run.bisect(ctx, chunk); err != nil {
			return nil, probe.Gap("params", err)
		}
	}
	d.logger.Debug("parameter discovery finished",
		slog.String("path", ep.Path),
		slog.Int("candidates", len(cands)),
		slog.Int("requests", run.requests),
		slog.Int("found", len(run.found)))
	return run.found, nil
}

type candidate struct {
	name   string
	source Source
}

// candidates lists passive names first, then the wordlist, without names
// the endpoint already sends.
func (d *Discoverer) candidates(body []byte, ep Endpoint) []candidate {
	words := d.config.Words
	if len(words) == 0 {
		words = wordlist.ParamNames()
	}
	seen := map[string]bool{}
	for k := range ep.Extra {
		seen[k] = true
	}
	var out []candidate
	add := func(name string, src Source) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, candidate{name: name, source: src})
	}
	for _, name := range FormFields(body) {
		add(name, SourcePassive)
	}
	for _, name := range words {
		add(name, SourceWordlist)
	}
	return out
}

var fieldName = regexp.MustCompile(`(?i)<(?:input|select|textarea)\b[^>]*?\bname\s*=\s*["']?([A-Za-z0-9_.\-\[\]]+)`)

// FormFields returns the names of the form fields in body, in order.
func FormFields(body []byte) []string {
	var out []string
	for _, m := range fieldName.FindAllSubmatch(body, -1) {
		name := string(m[1])
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// search is one endpoint's bisection state.
type search struct {
	d        *Discoverer
	tg       target.Target
	ep       Endpoint
	b        *baseline
	canary   string
	requests int
	found    []finding.Finding
}

// value is the canary sent for name.
func (s *search) value(name string) string {
	return s.canary + strconv.Itoa(len(name)) + strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, name)
}

// bisect sends chunk and splits it until every name that changes or echoes
// into the response stands alone.
func (s *search) bisect(ctx context.Context, chunk []candidate) error {
	if len(chunk) == 0 {
		return nil
	}
	add := url.Values{}
	for _, c := range chunk {
		add.Set(c.name, s.value(c.name))
	}
	resp, err := s.d.client.Send(ctx, s.ep.request(s.tg, add, nil, "params/chunk"))
	if err != nil {
		return err
	}
	s.requests++
	if !s.d.changed(s.b, resp, add) && !s.reflected(resp, add) {
		return nil
	}
	if len(chunk) == 1 {
		s.report(chunk[0], add.Get(chunk[0].name), resp)
		return nil
	}
	mid := len(chunk) / 2
	if err := s.bisect(ctx, chunk[:mid]); err != nil {
		return err
	}
	return s.bisect(ctx, chunk[mid:])
}

// reflected reports whether resp echoes one of the canaries of add. It is
// always false on endpoints that echo every parameter.
func (s *search) reflected(resp *httpclient.Response, add url.Values) bool {
	if s.b.echoes {
		return false
	}
	for _, vs := range add {
		if reflects(resp.Body, vs[0]) {
			return true
		}
	}
	return false
}

func (s *search) report(c candidate, value string, resp *httpclient.Response) {
	loc := s.ep.location()
	tags := []string{"location:" + string(loc), "source:" + string(c.source)}
	if s.reflected(resp, url.Values{c.name: {value}}) {
		tags = append(tags, "reflected")
	}
	s.found = append(s.found, finding.New(finding.Finding{
		Category:    finding.ExposedPath,
		Severity:    finding.Info,
		Confidence:  finding.Informational,
		Technique:   "hidden-parameter",
		URL:         s.tg.Resolve(s.ep.Path).String(),
		Path:        s.tg.Resolve(s.ep.Path).Path,
		Parameter:   c.name,
		StatusCode:  resp.StatusCode,
		Description: fmt.Sprintf("%s parameter %q is read by %s %s", loc, c.name, s.ep.method(), s.ep.Path),
		Evidence: finding.Evidence{
			Payload:  c.name + "=" + value,
			Request:  resp.Request.String(),
			Response: resp.Summary(defaults.EvidenceExcerpt),
			Detail:   diff(s.b.resp, resp),
		},
		Tags: tags,
	}))
}

func reflects(body []byte, value string) bool {
	return value != "" && bytes.Contains(body, []byte(value))
}

func diff(base, resp *httpclient.Response) string {
	return fmt.Sprintf("status %d->%d length %d->%d", base.StatusCode, resp.StatusCode, len(base.Body), len(resp.Body))
}

func token() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
