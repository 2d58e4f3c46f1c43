// Package probe holds the plumbing shared by the vulnerability probes:
// injection points, request building, response comparison and the probe
// function type used by the capability table.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/target"
)

// ErrInvalidPoint is returned for an injection point that cannot be built.
var ErrInvalidPoint = errors.New("probe: invalid injection point")

// Location is where a payload is placed in the request.
type Location string

const (
	Query  Location = "query"
	Form   Location = "form"
	Path   Location = "path"
	Header Location = "header"
	Cookie Location = "cookie"
)

// Locations returns every supported location.
func Locations() []Location {
	return []Location{Query, Form, Path, Header, Cookie}
}

// IsValid reports whether l is a known location.
func (l Location) IsValid() bool {
	return slices.Contains(Locations(), l)
}

// InjectionPoint names one input of one endpoint.
type InjectionPoint struct {
	// Method defaults to GET, or POST for form points.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// Path is relative to the target base or an absolute URL on the same
	// origin. For Path points it contains the placeholder "{Parameter}".
	Path string `json:"path" yaml:"path"`

	Parameter string   `json:"parameter" yaml:"parameter"`
	Location  Location `json:"location" yaml:"location"`

	// Original is the benign value used for baseline requests.
	Original string `json:"original,omitempty" yaml:"original,omitempty"`

	// Extra holds the other parameters of the request, sent unchanged in
	// the same location as the payload (query or form).
	Extra url.Values `json:"extra,omitempty" yaml:"extra,omitempty"`

	// Header and Cookies are sent with every request, e.g. credentials.
	// A Cookie point sends the payload verbatim when it consists of
	// cookie-octets only (quotes, spaces, commas, semicolons and
	// backslashes excluded); otherwise it is query-escaped.
	Header  http.Header    `json:"header,omitempty" yaml:"header,omitempty"`
	Cookies []*http.Cookie `json:"-" yaml:"-"`
}

// Validate checks that the point can be built.
func (p InjectionPoint) Validate() error {
	if p.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPoint)
	}
	if p.Parameter == "" {
		return fmt.Errorf("%w: empty parameter", ErrInvalidPoint)
	}
	if !p.Location.IsValid() {
		return fmt.Errorf("%w: unknown location %q", ErrInvalidPoint, p.Location)
	}
	if p.Location == Path && !strings.Contains(p.Path, p.placeholder()) {
		return fmt.Errorf("%w: path %q has no %s placeholder", ErrInvalidPoint, p.Path, p.placeholder())
	}
	return nil
}

func (p InjectionPoint) placeholder() string { return "{" + p.Parameter + "}" }

// Display renders the point for findings and logs.
func (p InjectionPoint) Display() string {
	return fmt.Sprintf("%s %s [%s:%s]", p.method(), p.Path, p.Location, p.Parameter)
}

func (p InjectionPoint) method() string {
	if p.Method != "" {
		return strings.ToUpper(p.Method)
	}
	if p.Location == Form {
		return http.MethodPost
	}
	return http.MethodGet
}

// EndpointPath returns the request path without placeholders, suitable as
// a finding path.
func (p InjectionPoint) EndpointPath(t target.Target) string {
	u := t.Resolve(p.Path)
	return u.Path
}

// Build returns a request carrying value at the point. tag names the check.
func Build(t target.Target, p InjectionPoint, value, tag string) *httpclient.Request {
	raw := p.Path
	if p.Location == Path {
		raw = strings.ReplaceAll(raw, p.placeholder(), url.PathEscape(value))
	}
	u := t.Resolve(raw)

	req := &httpclient.Request{
		Method: p.method(),
		Header: p.Header.Clone(),
		Tag:    tag,
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Cookies = slices.Clone(p.Cookies)

	if p.Location != Form && len(p.Extra) > 0 {
		q := u.Query()
		for k, vs := range p.Extra {
			q[k] = slices.Clone(vs)
		}
		u.RawQuery = q.Encode()
	}

	switch p.Location {
	case Query:
		q := u.Query()
		q.Set(p.Parameter, value)
		u.RawQuery = q.Encode()
	case Form:
		form := url.Values{}
		for k, vs := range p.Extra {
			form[k] = slices.Clone(vs)
		}
		form.Set(p.Parameter, value)
		req.Body = []byte(form.Encode())
		req.ContentType = defaults.ContentTypeForm
	case Header:
		req.Header.Set(p.Parameter, value)
	case Cookie:
		req.Cookies = append(req.Cookies, &http.Cookie{Name: p.Parameter, Value: cookieValue(value)})
	}
	req.URL = u.String()
	return req
}

// rawMarker stands in for a pre-encoded value while the request is built.
const rawMarker = "wsRAWvalue7f3c"

// BuildEncoded is Build for a value already in wire form. Query, form and
// path points carry it verbatim so its escapes reach the server exactly
// as written. Header and cookie points carry the decoded value; ok is
// false when that value cannot be sent there.
func BuildEncoded(t target.Target, p InjectionPoint, encoded, tag string) (req *httpclient.Request, ok bool) {
	switch p.Location {
	case Header, Cookie:
		v, err := url.PathUnescape(encoded)
		if err != nil || strings.ContainsAny(v, "\x00\r\n") {
			return nil, false
		}
		return Build(t, p, v, tag), true
	}
	req = Build(t, p, rawMarker, tag)
	if p.Location == Form {
		req.Body = bytes.Replace(req.Body, []byte(rawMarker), []byte(encoded), 1)
	} else {
		req.URL = strings.Replace(req.URL, rawMarker, encoded, 1)
	}
	return req, true
}

func cookieValue(v string) string {
	for i := 0; i < len(v); i++ {
		if !isCookieOctet(v[i]) {
			return url.QueryEscape(v)
		}
	}
	return v
}

// isCookieOctet follows RFC 6265 section 4.1.1.
func isCookieOctet(b byte) bool {
	switch {
	case b == 0x21,
		b >= 0x23 && b <= 0x2B,
		b >= 0x2D && b <= 0x3A,
		b >= 0x3C && b <= 0x5B,
		b >= 0x5D && b <= 0x7E:
		return true
	}
	return false
}

// Func is the signature every probe exposes. A non-nil error means the
// check could not complete (network failure, exhausted budget or
// cancellation); the findings are nil in that case.
type Func func(ctx context.Context, t target.Target, p InjectionPoint) ([]finding.Finding, error)

// Gap annotates a coverage-gap error with the check that hit it. errors.Is
// still matches the underlying network, budget or context error.
func Gap(check string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", check, err)
}

// Similarity scores two bodies between 0 (disjoint) and 1 (identical) by
// comparing their word multisets.
func Similarity(a, b []byte) float64 {
	if bytes.Equal(a, b) {
		return 1
	}
	wa, wb := bytes.Fields(a), bytes.Fields(b)
	if len(wa) == 0 || len(wb) == 0 {
		if len(wa) == len(wb) {
			// Both whitespace only; fall back to length.
			return 1 - LengthDelta(a, b)
		}
		return 0
	}
	counts := make(map[string]int, len(wa))
	for _, w := range wa {
		counts[string(w)]++
	}
	common := 0
	for _, w := range wb {
		if counts[string(w)] > 0 {
			counts[string(w)]--
			common++
		}
	}
	return 2 * float64(common) / float64(len(wa)+len(wb))
}

// Similar reports whether a and b are near-identical (Similarity at or
// above defaults.SimilarityThreshold).
func Similar(a, b []byte) bool {
	return Similarity(a, b) >= defaults.SimilarityThreshold
}

// LengthDelta is the relative length difference of a and b, in [0, 1].
func LengthDelta(a, b []byte) float64 {
	la, lb := len(a), len(b)
	if la == lb {
		return 0
	}
	larger := max(la, lb)
	d := la - lb
	if d < 0 {
		d = -d
	}
	return float64(d) / float64(larger)
}
