// Package output renders scan reports for machines: a single JSON document,
// or JSONL with one finding per line followed by a summary line.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/waftester/webscan/pkg/aggregate"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/jsonutil"
	"github.com/waftester/webscan/pkg/scan"
)

// ErrUnknownFormat is returned by ParseFormat.
var ErrUnknownFormat = errors.New("output: unknown format")

// Format selects the encoding.
type Format string

const (
	JSON  Format = "json"
	JSONL Format = "jsonl"
)

// Formats returns every supported format.
func Formats() []Format { return []Format{JSON, JSONL} }

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case JSON, JSONL:
		return f, nil
	case "ndjson":
		return JSONL, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Record types of JSONL lines.
const (
	RecordFinding = "finding"
	RecordSummary = "summary"
)

// Record is one JSONL line.
type Record struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Target    string           `json:"target,omitempty"`
	Replaced  bool             `json:"replaced,omitempty"`
	Finding   *finding.Finding `json:"finding,omitempty"`
	Summary   *scan.Summary    `json:"summary,omitempty"`
}

// Write encodes r to w in format f.
func Write(w io.Writer, f Format, r *scan.Report) error {
	switch f {
	case JSON:
		data, err := jsonutil.MarshalIndent(r, "  ")
		if err != nil {
			return fmt.Errorf("output: encode report: %w", err)
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	case JSONL:
		enc := jsonutil.NewLineEncoder(w)
		for i := range r.Findings {
			if err := enc.Encode(Record{Type: RecordFinding, SessionID: r.SessionID, Target: r.Target, Finding: &r.Findings[i]}); err != nil {
				return fmt.Errorf("output: encode finding: %w", err)
			}
		}
		sum := r.Summary
		if err := enc.Encode(Record{Type: RecordSummary, SessionID: r.SessionID, Target: r.Target, Summary: &sum}); err != nil {
			return fmt.Errorf("output: encode summary: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

// WriteFile writes r to path, or to stdout when path is "" or "-".
func WriteFile(path string, f Format, r *scan.Report) (err error) {
	if path == "" || path == "-" {
		return Write(os.Stdout, f, r)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(file, f, r)
}

// Stream writes each retained finding as a JSONL line the moment the
// aggregator accepts it. A finding that displaces a weaker duplicate is
// written again with Replaced set.
type Stream struct {
	mu        sync.Mutex
	enc       *jsonutil.LineEncoder
	sessionID string
	err       error
}

var _ aggregate.Observer = (*Stream)(nil)

// NewStream returns a Stream writing to w.
func NewStream(w io.Writer) *Stream {
	return &Stream{enc: jsonutil.NewLineEncoder(w)}
}

// SetSession labels subsequent lines with the session ID.
func (s *Stream) SetSession(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

// FindingAccepted writes f.
func (s *Stream) FindingAccepted(f finding.Finding, replaced bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = s.enc.Encode(Record{Type: RecordFinding, SessionID: s.sessionID, Replaced: replaced, Finding: &f})
}

// Finish writes the summary line and returns the first write error.
func (s *Stream) Finish(r *scan.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	sum := r.Summary
	return s.enc.Encode(Record{Type: RecordSummary, SessionID: r.SessionID, Target: r.Target, Summary: &sum})
}
