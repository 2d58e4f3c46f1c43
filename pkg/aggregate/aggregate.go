// Package aggregate collects findings from discovery workers and probes
// into one deduplicated, ordered result set.
//
// Findings are deduplicated by (category, path, parameter). The retained
// finding for a key is the highest-confidence one, ties going to the
// earliest timestamp; it keeps the position of the first submission for
// that key, so Results follows submission order.
package aggregate

import (
	"sync"

	"github.com/waftester/webscan/pkg/finding"
)

// Observer is notified about every finding the aggregator retains.
// replaced is true when it displaced an earlier duplicate.
type Observer interface {
	FindingAccepted(f finding.Finding, replaced bool)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(f finding.Finding, replaced bool)

// FindingAccepted calls fn.
func (fn ObserverFunc) FindingAccepted(f finding.Finding, replaced bool) { fn(f, replaced) }

// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu        sync.Mutex
	items     []finding.Finding
	index     map[finding.Key]int
	submitted int
	rejected  int
	observers []Observer
}

// New creates an empty aggregator.
func New(observers ...Observer) *Aggregator {
	return &Aggregator{
		index:     make(map[finding.Key]int),
		observers: observers,
	}
}

// Submit offers f. It reports whether f was retained, either as a new
// entry or as the replacement of a weaker duplicate. Findings with an
// unknown category or confidence are dropped.
func (a *Aggregator) Submit(f finding.Finding) bool {
	if !f.Category.IsValid() || !f.Confidence.IsValid() {
		a.mu.Lock()
		a.rejected++
		a.mu.Unlock()
		return false
	}

	a.mu.Lock()
	a.submitted++
	key := f.Key()
	idx, seen := a.index[key]
	switch {
	case !seen:
		a.index[key] = len(a.items)
		a.items = append(a.items, f)
	case f.Outranks(a.items[idx]):
		a.items[idx] = f
	default:
		a.mu.Unlock()
		return false
	}
	observers := a.observers
	a.mu.Unlock()

	for _, o := range observers {
		o.FindingAccepted(f, seen)
	}
	return true
}

// Results returns a snapshot of the retained findings in submission order.
func (a *Aggregator) Results() []finding.Finding {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]finding.Finding, len(a.items))
	copy(out, a.items)
	return out
}

// Len returns the number of retained findings.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Counts summarizes the retained findings.
type Counts struct {
	Total        int                        `json:"total"`
	Submitted    int                        `json:"submitted"`
	Duplicates   int                        `json:"duplicates"`
	Rejected     int                        `json:"rejected,omitempty"`
	ByCategory   map[finding.Category]int   `json:"by_category"`
	ByConfidence map[finding.Confidence]int `json:"by_confidence"`
	BySeverity   map[finding.Severity]int   `json:"by_severity"`
}

// Counts returns per-category, per-confidence and per-severity totals.
func (a *Aggregator) Counts() Counts {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := Counts{
		Total:        len(a.items),
		Submitted:    a.submitted,
		Duplicates:   a.submitted - len(a.items),
		Rejected:     a.rejected,
		ByCategory:   make(map[finding.Category]int),
		ByConfidence: make(map[finding.Confidence]int),
		BySeverity:   make(map[finding.Severity]int),
	}
	for _, f := range a.items {
		c.ByCategory[f.Category]++
		c.ByConfidence[f.Confidence]++
		c.BySeverity[f.Severity]++
	}
	return c
}
