package calibration

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/waftester/webscan/pkg/httpclient"
)

// Trait is one "not found" shape observed during calibration.
type Trait struct {
	Status int `json:"status"`

	// Length is the median normalized body length of the group.
	Length int `json:"length"`

	// Hash is the murmur3 digest of the normalized body. Only set when
	// every probe in the group produced the same body.
	Hash    [2]uint64 `json:"-"`
	HasHash bool      `json:"has_hash"`

	// Location is the normalized redirect target shared by the group,
	// empty when the group is not a redirect or the targets differ.
	Location string `json:"location,omitempty"`

	Samples int `json:"samples"`
}

// Signature is the immutable baseline for one target.
type Signature struct {
	Traits []Trait `json:"traits"`

	// Degraded is set when no calibration probe got a response. A degraded
	// signature never matches.
	Degraded bool `json:"degraded"`

	config Config
}

// Matches reports whether resp looks like the target's "not found" page.
// The response's own request path is stripped from the body before
// comparison, mirroring how calibration probes were normalized.
func (s *Signature) Matches(resp *httpclient.Response) bool {
	if s == nil || s.Degraded || resp == nil {
		return false
	}
	var reqURL string
	if resp.Request != nil {
		reqURL = resp.Request.URL
	}

	var (
		norm     []byte
		hash     [2]uint64
		computed bool
	)
	for _, tr := range s.Traits {
		if tr.Status != resp.StatusCode {
			continue
		}
		if tr.Location != "" && normalizeLocation(resp.Location(), reqURL) != tr.Location {
			continue
		}
		if !computed {
			norm = Normalize(resp.Body, reqURL)
			hash = hashBody(norm)
			computed = true
		}
		if tr.HasHash && tr.Hash == hash {
			return true
		}
		if s.withinBand(len(norm), tr.Length) {
			return true
		}
	}
	return false
}

// MatchesLocation reports whether a redirect to loc from reqURL has the same
// target as a calibrated redirect trait.
func (s *Signature) MatchesLocation(status int, loc, reqURL string) bool {
	if s == nil || s.Degraded {
		return false
	}
	norm := normalizeLocation(loc, reqURL)
	for _, tr := range s.Traits {
		if tr.Status == status && tr.Location != "" && tr.Location == norm {
			return true
		}
	}
	return false
}

func (s *Signature) withinBand(length, baseline int) bool {
	slack := int(float64(baseline) * s.config.LengthTolerance)
	slack = max(slack, s.config.MinLengthSlack)
	d := length - baseline
	if d < 0 {
		d = -d
	}
	return d <= slack
}

// String describes the signature for logs.
func (s *Signature) String() string {
	if s == nil {
		return "<nil>"
	}
	if s.Degraded {
		return "degraded (literal status classification)"
	}
	parts := make([]string, 0, len(s.Traits))
	for _, tr := range s.Traits {
		p := fmt.Sprintf("%d/%dB", tr.Status, tr.Length)
		if tr.HasHash {
			p += fmt.Sprintf("/%016x", tr.Hash[0])
		}
		if tr.Location != "" {
			p += " -> " + tr.Location
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

// Normalize strips every reflection of the request path from body: the full
// path, its escaped forms, the last segment and the segment without its
// extension. Reflections shorter than 3 bytes are left alone.
func Normalize(body []byte, rawURL string) []byte {
	out := body
	for _, r := range reflections(rawURL) {
		out = bytes.ReplaceAll(out, []byte(r), nil)
	}
	return out
}

func reflections(rawURL string) []string {
	if rawURL == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	p := u.Path
	seg := path.Base(p)
	stem := strings.TrimSuffix(seg, path.Ext(seg))

	candidates := []string{
		u.EscapedPath(),
		url.QueryEscape(p),
		html.EscapeString(p),
		p,
		url.PathEscape(seg),
		seg,
		stem,
	}
	var out []string
	for _, c := range candidates {
		if len(c) < 3 || c == "/" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	// Longest first so the full path is removed before its segments.
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func normalizeLocation(loc, reqURL string) string {
	if loc == "" {
		return ""
	}
	return string(Normalize([]byte(loc), reqURL))
}

func hashBody(b []byte) [2]uint64 {
	h1, h2 := murmur3.Sum128(b)
	return [2]uint64{h1, h2}
}

func buildSignature(results []probeResult, cfg Config) *Signature {
	groups := make(map[int][]probeResult)
	var order []int
	for _, r := range results {
		if _, ok := groups[r.status]; !ok {
			order = append(order, r.status)
		}
		groups[r.status] = append(groups[r.status], r)
	}

	sig := &Signature{config: cfg}
	for _, status := range order {
		group := groups[status]
		lengths := make([]int, len(group))
		sameHash, sameLoc := true, true
		for i, g := range group {
			lengths[i] = g.length
			if g.hash != group[0].hash {
				sameHash = false
			}
			if g.location != group[0].location {
				sameLoc = false
			}
		}
		tr := Trait{
			Status:  status,
			Length:  median(lengths),
			Samples: len(group),
		}
		if sameHash {
			tr.Hash = group[0].hash
			tr.HasHash = true
		}
		if sameLoc {
			tr.Location = group[0].location
		}
		sig.Traits = append(sig.Traits, tr)
	}
	return sig
}

func median(vals []int) int {
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
