package finding

import (
	"fmt"
	"slices"
	"strings"
)

// Severity is the impact of a finding if it holds, independent of how
// sure the scanner is about it.
type Severity string

const (
	Critical Severity = "critical" // sqli, auth bypass, privilege escalation
	High     Severity = "high"     // lfi, idor
	Medium   Severity = "medium"   // xss, open redirect, weak sessions
	Low      Severity = "low"      // exposed paths
	Info     Severity = "info"
)

// Severities returns every severity from most to least severe.
func Severities() []Severity {
	return []Severity{Critical, High, Medium, Low, Info}
}

// IsValid reports whether s is one of Severities. Names are lower case.
func (s Severity) IsValid() bool { return slices.Contains(Severities(), s) }

// Outranks reports whether s is more severe than o. Unknown severities
// rank below Info.
func (s Severity) Outranks(o Severity) bool {
	return severityRank(s) > severityRank(o)
}

func severityRank(s Severity) int {
	i := slices.Index(Severities(), s)
	if i < 0 {
		return 0
	}
	return len(Severities()) - i
}

func (s Severity) String() string { return string(s) }

// ParseSeverity accepts the canonical name in any case.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, v)
	}
	return s, nil
}
