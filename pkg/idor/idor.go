// Package idor detects insecure direct object references: object IDs that
// a single identity can walk through to read other users' records.
package idor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// maxListedIDs caps the IDs named in a finding's detail.
const maxListedIDs = 20

// Request describes one object endpoint and the IDs to walk.
type Request struct {
	// Point places the ID (path placeholder or query parameter) and
	// carries the caller's credentials in its Header and Cookies.
	Point probe.InjectionPoint `json:"point" yaml:"point"`

	IDs []string `json:"ids" yaml:"ids"`

	// OwnID is the object the identity legitimately owns, if known.
	OwnID string `json:"own_id,omitempty" yaml:"own_id,omitempty"`
}

// Range returns the decimal IDs start..end inclusive.
func Range(start, end int) []string {
	if end < start {
		return nil
	}
	out := make([]string, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

// Neighbors returns IDs around a numeric original: the n values on each
// side plus a few common low IDs. Non-numeric originals yield nil.
func Neighbors(original string, n int) []string {
	num, err := strconv.Atoi(original)
	if err != nil {
		return nil
	}
	var out []string
	for i := -n; i <= n; i++ {
		if i != 0 && num+i >= 0 {
			out = append(out, strconv.Itoa(num+i))
		}
	}
	for _, common := range []int{0, 1, 2} {
		s := strconv.Itoa(common)
		if common != num && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Tester walks object IDs under one identity.
type Tester struct {
	client    httpclient.Sender
	threshold float64
	logger    *slog.Logger
}

// Option configures a Tester.
type Option func(*Tester)

// WithThreshold sets the similarity above which two records count as the
// same page.
func WithThreshold(v float64) Option {
	return func(t *Tester) {
		if v > 0 && v <= 1 {
			t.threshold = v
		}
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
	t := &Tester{client: client, threshold: defaults.SimilarityThreshold, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type record struct {
	id   string
	resp *httpclient.Response
	body []byte // with the ID's own reflections removed
}

// Probe requests every ID. Two or more accessible records that differ from
// each other are likely an IDOR; with OwnID set, any accessible record
// other than the owner's is confirmed. Identical pages for every ID (a
// generic template, a soft error) are not distinct records.
func (t *Tester) Probe(ctx context.Context, tg target.Target, r Request) ([]finding.Finding, error) {
	p := r.Point
	if p.Original == "" && len(r.IDs) > 0 {
		p.Original = r.IDs[0]
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var own *record
	if r.OwnID != "" {
		rec, err := t.fetch(ctx, tg, p, r.OwnID)
		if err != nil {
			return nil, probe.Gap("idor", err)
		}
		if rec != nil {
			own = rec
		}
	}

	var distinct []record
	for _, id := range r.IDs {
		if id == r.OwnID {
			continue
		}
		rec, err := t.fetch(ctx, tg, p, id)
		if err != nil {
			return nil, probe.Gap("idor", err)
		}
		if rec == nil || t.sameAsAny(rec, distinct) || (own != nil && t.same(rec, own)) {
			continue
		}
		distinct = append(distinct, *rec)
	}

	var conf finding.Confidence
	switch {
	case own != nil && len(distinct) >= 1:
		conf = finding.Confirmed
	case len(distinct) >= 2:
		conf = finding.Likely
	default:
		return nil, nil
	}

	ids := make([]string, 0, len(distinct))
	for _, rec := range distinct {
		ids = append(ids, rec.id)
	}
	listed := ids[:min(len(ids), maxListedIDs)]
	detail := fmt.Sprintf("identity=%s accessible=%d ids=%s", identityLabel(p), len(ids), strings.Join(listed, ","))
	if own != nil {
		detail += " own=" + own.id
	}
	t.logger.Debug("idor records accessible",
		slog.String("point", p.Display()),
		slog.Int("count", len(ids)))

	first := distinct[0].resp
	f := finding.New(finding.Finding{
		Category:    finding.IDOR,
		Confidence:  conf,
		Technique:   "id-enumeration",
		URL:         first.Request.URL,
		Path:        p.EndpointPath(tg),
		Parameter:   p.Parameter,
		StatusCode:  first.StatusCode,
		Description: fmt.Sprintf("%d objects readable through %s by one identity", len(ids), p.Display()),
		Evidence: finding.Evidence{
			Payload:  distinct[0].id,
			Request:  first.Request.String(),
			Response: first.Summary(defaults.EvidenceExcerpt),
			Detail:   detail,
		},
	})
	return []finding.Finding{f}, nil
}

// fetch returns nil for IDs that are denied, missing or empty.
func (t *Tester) fetch(ctx context.Context, tg target.Target, p probe.InjectionPoint, id string) (*record, error) {
	resp, err := t.client.Send(ctx, probe.Build(tg, p, id, "idor"))
	if err != nil {
		return nil, err
	}
	if !probe.Accessible(resp) {
		return nil, nil
	}
	return &record{id: id, resp: resp, body: bytes.ReplaceAll(resp.Body, []byte(id), nil)}, nil
}

func (t *Tester) same(a, b *record) bool {
	return probe.Similarity(a.body, b.body) >= t.threshold
}

func (t *Tester) sameAsAny(rec *record, seen []record) bool {
	for i := range seen {
		if t.same(rec, &seen[i]) {
			return true
		}
	}
	return false
}

func identityLabel(p probe.InjectionPoint) string {
	id := probe.Identity{Header: p.Header, Cookies: p.Cookies}
	return id.Label()
}
