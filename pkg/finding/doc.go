// Package finding provides the shared finding types emitted by discovery
// and every vulnerability probe: Category, Confidence, Severity and the
// immutable Finding record consumed by the aggregator.
//
// Usage:
//
//	f := finding.New(finding.Finding{
//	    Category:   finding.SQLInjection,
//	    Confidence: finding.Confirmed,
//	    Technique:  "error-based",
//	    URL:        resp.Request.URL,
//	    Path:       "/item",
//	    Parameter:  "id",
//	})
package finding
