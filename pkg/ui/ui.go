// Package ui renders scan progress and reports for people: a banner, one
// line per finding and a summary table. Machine output lives in package
// output.
package ui

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/scan"
)

const bannerArt = `
                 __                          
 _      _____   / /_  ______________ _____  
| | /| / / _ \ / __ \/ ___/ ___/ __ ` + "`" + `/ __ \ 
| |/ |/ /  __// /_/ (__  ) /__/ /_/ / / / / 
|__/|__/\___//_.___/____/\___/\__,_/_/ /_/  
`

// maxDetail caps the detail shown per finding line.
const maxDetail = 100

// Printer writes human-readable output to one stream. Finding may be
// called from several goroutines.
type Printer struct {
	mu      sync.Mutex
	w       io.Writer
	r       *lipgloss.Renderer
	st      styles
	unicode bool
	silent  bool
}

// Option configures a Printer.
type Option func(*Printer)

// WithNoColor forces plain output.
func WithNoColor(noColor bool) Option {
	return func(p *Printer) {
		if noColor {
			p.r.SetColorProfile(colorProfile(p.w, true))
		}
	}
}

// WithSilent suppresses the banner and per-finding lines; summaries are
// still printed.
func WithSilent(silent bool) Option {
	return func(p *Printer) { p.silent = silent }
}

// NewPrinter returns a Printer for w, detecting color and glyph support.
func NewPrinter(w io.Writer, opts ...Option) *Printer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(colorProfile(w, false))
	p := &Printer{w: w, r: r, unicode: unicodeCapable(w)}
	for _, opt := range opts {
		opt(p)
	}
	p.st = newStyles(p.r)
	return p
}

// Icon returns unicode when the stream can render it, ascii otherwise.
func (p *Printer) Icon(unicode, ascii string) string {
	if p.unicode {
		return unicode
	}
	return ascii
}

// Banner prints the tool banner and version.
func (p *Printer) Banner() {
	if p.silent {
		return
	}
	for _, line := range strings.Split(bannerArt, "\n") {
		if strings.TrimSpace(line) != "" {
			fmt.Fprintln(p.w, p.st.banner.Render(line))
		}
	}
	fmt.Fprintf(p.w, "%38s\n\n", p.st.version.Render("v"+defaults.Version))
}

// Options prints settings as aligned ":: Name : Value" lines, in order.
func (p *Printer) Options(pairs ...[2]string) {
	if p.silent {
		return
	}
	for _, kv := range pairs {
		if kv[1] == "" {
			continue
		}
		fmt.Fprintf(p.w, " :: %s : %s\n", p.st.label.Render(fmt.Sprintf("%-16s", kv[0])), p.st.value.Render(kv[1]))
	}
	fmt.Fprintln(p.w, p.st.muted.Render(strings.Repeat("_", 48)))
	fmt.Fprintln(p.w)
}

// Finding prints one line:
//
//	[critical] [sql-injection] [confirmed] GET /item [id] time-based
func (p *Printer) Finding(f finding.Finding) {
	if p.silent {
		return
	}
	line := p.findingLine(f)
	p.mu.Lock()
	fmt.Fprintln(p.w, line)
	p.mu.Unlock()
}

func (p *Printer) findingLine(f finding.Finding) string {
	br := func(s string) string { return p.st.muted.Render("[") + s + p.st.muted.Render("]") }
	parts := []string{
		br(severityStyle(p.r, f.Severity).Render(string(f.Severity))),
		br(p.st.value.Render(string(f.Category))),
		br(confidenceStyle(p.r, f.Confidence).Render(string(f.Confidence))),
		p.st.url.Render(f.Path),
	}
	if f.Parameter != "" {
		parts = append(parts, br(f.Parameter))
	}
	if f.Technique != "" {
		parts = append(parts, p.st.muted.Render(f.Technique))
	}
	line := strings.Join(parts, " ")
	if d := f.Evidence.Detail; d != "" {
		line += "\n      " + p.st.muted.Render(p.Icon("→ ", "-> ")+truncate(d, maxDetail))
	}
	return line
}

// Report prints every finding followed by the summary.
// Findings are listed most severe first, in submission order within a
// severity.
func (p *Printer) Report(r *scan.Report) {
	fs := slices.Clone(r.Findings)
	slices.SortStableFunc(fs, func(a, b finding.Finding) int {
		switch {
		case a.Severity.Outranks(b.Severity):
			return -1
		case b.Severity.Outranks(a.Severity):
			return 1
		}
		return 0
	})
	for _, f := range fs {
		p.Finding(f)
	}
	p.Summary(r)
}

// Summary prints the counts table and the scan flags.
func (p *Printer) Summary(r *scan.Report) {
	s := r.Summary
	fmt.Fprintln(p.w, p.st.section.Render("Summary"))
	fmt.Fprintf(p.w, "  %s %s\n", p.st.label.Render("Target  "), p.st.url.Render(r.Target))
	fmt.Fprintf(p.w, "  %s %s\n", p.st.label.Render("Session "), r.SessionID)
	fmt.Fprintf(p.w, "  %s %d in %s\n", p.st.label.Render("Requests"), s.Requests, s.Duration.Round(time.Millisecond))
	fmt.Fprintln(p.w)

	if s.Total == 0 {
		fmt.Fprintln(p.w, p.st.ok.Render(p.Icon("✓ ", "[+] ")+"No findings"))
	} else {
		fmt.Fprintln(p.w, p.table(r))
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, p.st.value.Render(fmt.Sprintf("%d findings (%d duplicates merged)", s.Total, s.Duplicates)))
		if line := p.severityLine(s.BySeverity); line != "" {
			fmt.Fprintf(p.w, "%s %s\n", p.st.label.Render("By severity"), line)
		}
	}
	for _, w := range warnings(s) {
		fmt.Fprintln(p.w, p.st.warn.Render(p.Icon("⚠ ", "[!] ")+w))
	}
}

func (p *Printer) severityLine(counts map[finding.Severity]int) string {
	var parts []string
	for _, sev := range finding.Severities() {
		if n := counts[sev]; n > 0 {
			parts = append(parts, severityStyle(p.r, sev).Render(fmt.Sprintf("%s %d", sev, n)))
		}
	}
	return strings.Join(parts, ", ")
}

func warnings(s scan.Summary) []string {
	var out []string
	if s.Cancelled {
		out = append(out, "Scan cancelled: results are partial")
	}
	if s.Truncated {
		out = append(out, "Request cap reached: coverage is truncated")
	}
	if s.CalibrationDegraded {
		out = append(out, "Soft-404 calibration degraded: exposed-path findings may include noise")
	}
	if s.CoverageGaps > 0 {
		out = append(out, fmt.Sprintf("%d checks could not complete (coverage gaps)", s.CoverageGaps))
	}
	return out
}

// table renders category rows against confidence columns.
func (p *Printer) table(r *scan.Report) string {
	const catWidth, colWidth = 22, 14
	confs := finding.Confidences()

	cells := make(map[finding.Category]map[finding.Confidence]int)
	for _, f := range r.Findings {
		if cells[f.Category] == nil {
			cells[f.Category] = make(map[finding.Confidence]int)
		}
		cells[f.Category][f.Confidence]++
	}

	var b strings.Builder
	b.WriteString(p.st.header.Render(pad("category", catWidth)))
	for _, c := range confs {
		b.WriteString(p.st.header.Render(pad(string(c), colWidth)))
	}
	for _, cat := range finding.Categories() {
		row, ok := cells[cat]
		if !ok {
			continue
		}
		b.WriteString("\n")
		b.WriteString(severityStyle(p.r, cat.DefaultSeverity()).Render(pad(string(cat), catWidth)))
		for _, c := range confs {
			b.WriteString(p.st.value.Render(pad(fmt.Sprint(row[c]), colWidth)))
		}
	}
	b.WriteString("\n")
	b.WriteString(p.st.label.Render(pad("total", catWidth)))
	for _, c := range confs {
		b.WriteString(p.st.value.Render(pad(fmt.Sprint(r.Summary.ByConfidence[c]), colWidth)))
	}
	return b.String()
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n-1] + " "
	}
	return s + strings.Repeat(" ", n-len(s))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
