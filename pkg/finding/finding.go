package finding

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/iohelper"
)

// Evidence holds short excerpts that justify a finding.
type Evidence struct {
	Payload  string `json:"payload,omitempty"`
	Request  string `json:"request,omitempty"`
	Response string `json:"response,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Finding is one reported result. Treat it as a value: once built with New
// it is never modified, and the aggregator owns it after submission.
type Finding struct {
	ID          string     `json:"id"`
	Category    Category   `json:"category"`
	Severity    Severity   `json:"severity"`
	Confidence  Confidence `json:"confidence"`
	Technique   string     `json:"technique,omitempty"`
	URL         string     `json:"url"`
	Path        string     `json:"path"`
	Parameter   string     `json:"parameter,omitempty"`
	StatusCode  int        `json:"status_code,omitempty"`
	Description string     `json:"description,omitempty"`
	Evidence    Evidence   `json:"evidence"`
	Tags        []string   `json:"tags,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Key identifies duplicates: same category, path and parameter.
type Key struct {
	Category  Category
	Path      string
	Parameter string
}

// Key returns the deduplication key of f.
func (f Finding) Key() Key {
	return Key{Category: f.Category, Path: f.Path, Parameter: f.Parameter}
}

// New completes f: assigns an ID and timestamp when missing, fills the
// default severity, clips evidence excerpts and copies Tags so that the
// caller's slice can be reused.
func New(f Finding) Finding {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	if !f.Severity.IsValid() {
		f.Severity = f.Category.DefaultSeverity()
	}
	if f.Path == "" {
		f.Path = "/"
	}
	f.Evidence.Request = iohelper.Excerpt(f.Evidence.Request, defaults.EvidenceExcerpt)
	f.Evidence.Response = iohelper.Excerpt(f.Evidence.Response, defaults.EvidenceExcerpt)
	f.Tags = slices.Clone(f.Tags)
	return f
}

// Outranks reports whether f should replace other as the retained
// duplicate: higher confidence wins, and on equal confidence the earlier
// timestamp wins.
func (f Finding) Outranks(other Finding) bool {
	if r1, r2 := f.Confidence.Rank(), other.Confidence.Rank(); r1 != r2 {
		return r1 > r2
	}
	return f.Timestamp.Before(other.Timestamp)
}
