package discovery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/calibration"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/wordlist"
	"github.com/waftester/webscan/pkg/workerpool"
)

type runState struct {
	start     time.Time
	requests  atomic.Int64
	hits      atomic.Int64
	filtered  atomic.Int64
	errors    atomic.Int64
	depth     atomic.Int32
	truncated atomic.Bool
	degraded  atomic.Bool
}

func (s *runState) snapshot(cancelled bool) Stats {
	return Stats{
		Requests:     s.requests.Load(),
		Hits:         s.hits.Load(),
		Filtered:     s.filtered.Load(),
		Errors:       s.errors.Load(),
		DepthReached: int(s.depth.Load()),
		Truncated:    s.truncated.Load(),
		Degraded:     s.degraded.Load(),
		Cancelled:    cancelled,
		Duration:     time.Since(s.start),
	}
}

type task struct {
	dir   string // absolute directory path ending in "/"
	cand  string
	depth int
}

// All returns the run's findings as a lazy sequence. Each call starts a
// fresh search (the calibration signature is reused). Breaking out of the
// loop stops dispatch of further requests; requests already on the wire
// finish before All returns.
func (r *Run) All() iter.Seq[finding.Finding] {
	return func(yield func(finding.Finding) bool) {
		ctx, cancel := context.WithCancel(r.ctx)
		defer cancel()

		st := &runState{start: time.Now()}
		out := make(chan finding.Finding, defaults.ChannelSmall)
		go func() {
			defer close(out)
			r.execute(ctx, st, out)
		}()

		stopped := false
		for f := range out {
			if stopped {
				continue
			}
			if !yield(f) {
				stopped = true
				cancel()
			}
		}
		r.setStats(st.snapshot(r.ctx.Err() != nil))
	}
}

func (r *Run) execute(ctx context.Context, st *runState, out chan<- finding.Finding) {
	e := r.engine
	sig, err := e.calibrator.Calibrate(ctx, r.target)
	if sig == nil {
		return
	}
	if err != nil {
		e.logger.Warn("discovery continuing without soft-404 filtering",
			slog.String("target", r.target.String()),
			slog.String("error", err.Error()))
	}
	st.degraded.Store(sig.Degraded)

	cands := candidates(r.words, r.exts)
	base := r.target.BasePath()
	visited := map[string]struct{}{base: {}}
	level := []string{base}

	for depth := 0; depth <= r.maxDepth && len(level) > 0; depth++ {
		if ctx.Err() != nil || st.truncated.Load() {
			return
		}
		st.depth.Store(int32(depth))

		tasks := make([]task, 0, len(level)*len(cands))
		for _, dir := range level {
			for _, c := range cands {
				tasks = append(tasks, task{dir: dir, cand: c, depth: depth})
			}
		}

		var (
			mu   sync.Mutex
			next []string
		)
		workerpool.ForEach(ctx, e.config.Workers, tasks, func(ctx context.Context, tk task) {
			if ctx.Err() != nil || st.truncated.Load() {
				return
			}
			f, dir, ok := r.check(ctx, sig, tk, st)
			if !ok {
				return
			}
			out <- f
			if dir == "" || tk.depth >= r.maxDepth {
				return
			}
			mu.Lock()
			if _, seen := visited[dir]; !seen {
				visited[dir] = struct{}{}
				next = append(next, dir)
			}
			mu.Unlock()
		})

		sort.Strings(next)
		level = next
		e.logger.Debug("discovery level done",
			slog.String("target", r.target.String()),
			slog.Int("depth", depth),
			slog.Int("next", len(next)))
	}
}

// check requests one candidate. It returns the finding, the directory to
// recurse into (empty if none) and whether the response was a hit.
func (r *Run) check(ctx context.Context, sig *calibration.Signature, tk task, st *runState) (finding.Finding, string, bool) {
	e := r.engine
	p := tk.dir + tk.cand
	u := r.target.Resolve(p).String()

	resp, err := e.client.Send(ctx, &httpclient.Request{
		Method: e.config.Method,
		URL:    u,
		Tag:    "discovery",
	})
	if err != nil {
		switch {
		case errors.Is(err, budget.ErrExhausted):
			st.truncated.Store(true)
		case ctx.Err() != nil:
		default:
			st.requests.Add(1)
			st.errors.Add(1)
			e.logger.Debug("discovery request failed",
				slog.String("url", u),
				slog.String("error", err.Error()))
		}
		return finding.Finding{}, "", false
	}
	st.requests.Add(1)

	conf, technique, ok := e.classify(resp, sig)
	if !ok {
		st.filtered.Add(1)
		return finding.Finding{}, "", false
	}
	st.hits.Add(1)

	var dir string
	if conf != finding.Informational {
		dir = directoryOf(tk, resp, u)
	}

	tags := interestingTags(resp)
	if dir != "" {
		tags = append(tags, "directory")
	}
	f := finding.New(finding.Finding{
		Category:    finding.ExposedPath,
		Confidence:  conf,
		Technique:   technique,
		URL:         u,
		Path:        p,
		StatusCode:  resp.StatusCode,
		Description: describe(p, resp),
		Evidence: finding.Evidence{
			Request:  resp.Request.String(),
			Response: resp.Summary(defaults.EvidenceExcerpt),
			Detail:   fmt.Sprintf("depth=%d length=%d", tk.depth, len(resp.Body)),
		},
		Tags: tags,
	})
	return f, dir, true
}

// classify decides whether resp is a hit and how confident it is.
func (e *Engine) classify(resp *httpclient.Response, sig *calibration.Signature) (finding.Confidence, string, bool) {
	if _, ignored := e.ignore[resp.StatusCode]; ignored {
		return "", "", false
	}
	if sig.Matches(resp) {
		return "", "", false
	}
	switch {
	case resp.IsSuccess():
		return finding.Confirmed, "status", true
	case resp.IsRedirect():
		if sig.MatchesLocation(resp.StatusCode, resp.Location(), resp.Request.URL) {
			return "", "", false
		}
		return finding.Likely, "redirect", true
	case resp.StatusCode >= 100 && resp.StatusCode < 200:
		return "", "", false
	case sig != nil && sig.Degraded:
		// Without a baseline only 2xx and 3xx count.
		return "", "", false
	default:
		return finding.Informational, "interesting-status", true
	}
}

// directoryOf returns the directory path to recurse into for a hit, or "".
func directoryOf(tk task, resp *httpclient.Response, reqURL string) string {
	p := tk.dir + tk.cand
	if strings.HasSuffix(tk.cand, "/") {
		return p
	}
	if resp.IsRedirect() {
		if loc := resp.Location(); loc != "" {
			base, err := url.Parse(reqURL)
			if err == nil {
				if ref, err := base.Parse(loc); err == nil && ref.Host == base.Host && ref.Path == p+"/" {
					return p + "/"
				}
			}
		}
		return ""
	}
	if path.Ext(tk.cand) == "" && wordlist.IsDirectoryWord(tk.cand) {
		return p + "/"
	}
	return ""
}

func candidates(words, exts []string) []string {
	exts = wordlist.NormalizeExtensions(exts)
	out := make([]string, 0, len(words)*len(exts))
	for _, w := range words {
		w = strings.TrimLeft(strings.TrimSpace(w), "/")
		if w == "" {
			continue
		}
		if strings.HasSuffix(w, "/") {
			out = append(out, w)
			continue
		}
		for _, ext := range exts {
			out = append(out, w+ext)
		}
	}
	return wordlist.Dedupe(out)
}

func describe(p string, resp *httpclient.Response) string {
	switch {
	case resp.IsRedirect():
		return fmt.Sprintf("%s redirects (%d) to %s", p, resp.StatusCode, resp.Location())
	case resp.IsSuccess():
		return fmt.Sprintf("%s is accessible (%d, %d bytes)", p, resp.StatusCode, len(resp.Body))
	default:
		return fmt.Sprintf("%s exists but answered %d", p, resp.StatusCode)
	}
}
