package finding

import (
	"fmt"
	"strings"
)

// Confidence expresses how strongly the evidence supports a finding.
type Confidence string

const (
	// Confirmed means the decision rule matched unambiguously.
	Confirmed Confidence = "confirmed"

	// Likely means the signal matched but could have another explanation.
	Likely Confidence = "likely"

	// Informational marks a lead worth a human look, not a vulnerability.
	Informational Confidence = "informational"
)

// Rank orders confidences: Confirmed=3, Likely=2, Informational=1, unknown=0.
func (c Confidence) Rank() int {
	switch c {
	case Confirmed:
		return 3
	case Likely:
		return 2
	case Informational:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether c is a recognized confidence.
func (c Confidence) IsValid() bool { return c.Rank() > 0 }

// String returns the confidence name.
func (c Confidence) String() string { return string(c) }

// Confidences returns every confidence from strongest to weakest.
func Confidences() []Confidence {
	return []Confidence{Confirmed, Likely, Informational}
}

// ParseConfidence accepts the canonical name in any case.
func ParseConfidence(s string) (Confidence, error) {
	c := Confidence(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownConfidence, s)
	}
	return c, nil
}
