package finding

import (
	"fmt"
	"strings"
)

// Category is the class of a finding.
type Category string

const (
	ExposedPath         Category = "exposed-path"
	SQLInjection        Category = "sql-injection"
	XSSReflected        Category = "xss-reflected"
	LFI                 Category = "lfi"
	OpenRedirect        Category = "open-redirect"
	AuthBypass          Category = "auth-bypass"
	IDOR                Category = "idor"
	SessionWeakness     Category = "session-weakness"
	PrivilegeEscalation Category = "privilege-escalation"
)

// categories lists every category in reporting order with its default
// severity.
var categories = []struct {
	c Category
	s Severity
}{
	{ExposedPath, Low},
	{SQLInjection, Critical},
	{XSSReflected, Medium},
	{LFI, High},
	{OpenRedirect, Medium},
	{AuthBypass, Critical},
	{IDOR, High},
	{SessionWeakness, Medium},
	{PrivilegeEscalation, Critical},
}

// Categories returns every category in reporting order.
func Categories() []Category {
	out := make([]Category, len(categories))
	for i, e := range categories {
		out[i] = e.c
	}
	return out
}

// IsValid reports whether c is one of the fixed categories.
func (c Category) IsValid() bool {
	for _, e := range categories {
		if e.c == c {
			return true
		}
	}
	return false
}

// DefaultSeverity returns the severity assigned when a probe sets none.
func (c Category) DefaultSeverity() Severity {
	for _, e := range categories {
		if e.c == c {
			return e.s
		}
	}
	return Info
}

// String returns the category name.
func (c Category) String() string { return string(c) }

// ParseCategory accepts the canonical name in any case.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}
