package scan

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/params"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/testutil"
)

// site serves "/", /admin, /backup.bak and two search endpoints; one
// echoes the query raw and one escapes it. Everything else is a real 404.
func site() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "<html><body>welcome home</body></html>")
	})
	mux.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>admin console index</body></html>")
	})
	mux.HandleFunc("/backup.bak", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "-- dump of production data --")
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><p>Results for %s</p></body></html>", r.URL.Query().Get("q"))
	})
	mux.HandleFunc("/safe", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><p>Results for %s</p></body></html>", html.EscapeString(r.URL.Query().Get("q")))
	})
	return mux
}

func testBudget() budget.Budget {
	return budget.Budget{
		RequestsPerSecond: 1000,
		Timeout:           2 * time.Second,
		MaxDepth:          1,
	}
}

func newSession(t *testing.T, b budget.Budget) *Session {
	t.Helper()
	s, err := NewSession(b, WithClient(testutil.NewClient(t, testutil.ClientOptions{MaxRequests: b.MaxRequests})))
	require.NoError(t, err)
	return s
}

func TestRun_DiscoverAndXSS(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	s := newSession(t, testBudget())

	report, err := s.Run(context.Background(), Request{
		Capabilities: []string{CapDiscover, CapXSS},
		Params: Params{
			Target:     tg.String(),
			Words:      []string{"admin", "backup"},
			Extensions: []string{".bak"},
			Points: []probe.InjectionPoint{
				{Path: "/search", Parameter: "q", Location: probe.Query, Original: "shoes"},
				{Path: "/safe", Parameter: "q", Location: probe.Query, Original: "shoes"},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, s.ID(), report.SessionID)
	assert.False(t, report.Summary.Cancelled)
	assert.False(t, report.Summary.Truncated)
	assert.Equal(t, []string{CapDiscover, CapXSS}, report.Summary.Capabilities)
	assert.Positive(t, report.Summary.Requests)

	paths := map[string]finding.Confidence{}
	var xss []finding.Finding
	for _, f := range report.Findings {
		switch f.Category {
		case finding.ExposedPath:
			paths[f.Path] = f.Confidence
		case finding.XSSReflected:
			xss = append(xss, f)
		}
	}
	assert.Contains(t, paths, "/backup.bak")
	assert.Contains(t, paths, "/admin")
	require.Len(t, xss, 1, "only the raw echo is reported")
	assert.Equal(t, finding.Confirmed, xss[0].Confidence)
	assert.Equal(t, "/search", xss[0].Path)

	assert.Equal(t, len(report.Findings), report.Summary.Total)
	assert.Equal(t, 1, report.Summary.ByCategory[finding.XSSReflected])
}

func TestRun_UnreachableTarget(t *testing.T) {
	dead := testutil.DeadTarget(t)
	s := newSession(t, testBudget())

	report, err := s.Run(context.Background(), Request{
		Capabilities: []string{CapCommonFiles},
		Params:       Params{Target: dead.String()},
	})
	require.ErrorIs(t, err, ErrTargetUnreachable)
	assert.Nil(t, report)
}

func TestRun_TruncatedAtCap(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	b := testBudget()
	b.MaxRequests = 12
	s := newSession(t, b)

	words := make([]string, 200)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	report, err := s.Run(context.Background(), Request{
		Capabilities: []string{CapDiscover},
		Params:       Params{Target: tg.String(), Words: words},
	})
	require.NoError(t, err)
	assert.True(t, report.Summary.Truncated)
	assert.LessOrEqual(t, report.Summary.Requests, int64(12))
}

func TestRun_CancelledReturnsPartialReport(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	s := newSession(t, testBudget())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.Run(ctx, Request{
		Capabilities: []string{CapDiscover},
		Params:       Params{Target: tg.String(), Words: []string{"admin"}},
	})
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, report.Summary.Cancelled)
	assert.Empty(t, report.Findings)
}

func TestRun_DefaultSelectionNeedsOnlyTarget(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	s := newSession(t, testBudget())

	report, err := s.Run(context.Background(), Request{Params: Params{Target: tg.String()}})
	require.NoError(t, err)
	assert.Equal(t, []string{CapCommonFiles, CapAPIEndpoints}, report.Summary.Capabilities)
}

func TestRun_UnknownCapability(t *testing.T) {
	s := newSession(t, testBudget())
	_, err := s.Run(context.Background(), Request{
		Capabilities: []string{"nope"},
		Params:       Params{Target: "http://127.0.0.1:1"},
	})
	require.ErrorIs(t, err, ErrUnknownCapability)
}

func TestRun_SelectedCapabilityNeedsInputs(t *testing.T) {
	s := newSession(t, testBudget())
	_, err := s.Run(context.Background(), Request{
		Capabilities: []string{CapSQLi},
		Params:       Params{Target: "http://127.0.0.1:1"},
	})
	require.ErrorIs(t, err, ErrInvalidParams)
	assert.Zero(t, s.Client().Counter().Issued(), "rejected before any request")
}

func TestRun_InvalidTarget(t *testing.T) {
	s := newSession(t, testBudget())
	_, err := s.Run(context.Background(), Request{Params: Params{Target: "ftp://example.com"}})
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestInvoke_SingleCapability(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	s := newSession(t, testBudget())

	fs, err := s.Invoke(context.Background(), CapXSS, Params{
		Target: tg.String(),
		Points: []probe.InjectionPoint{{Path: "/search", Parameter: "q", Location: probe.Query}},
	})
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.XSSReflected, fs[0].Category)
	assert.Len(t, s.Findings(), 1, "invoked findings are aggregated")
}

func TestInvoke_ParamsAndHeaders(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get("X-Original-URL") == "/admin":
			fmt.Fprint(w, "<html><body>admin console index with user management</body></html>")
		case r.URL.Query().Has("debug"):
			fmt.Fprint(w, "<pre>DEBUG stack trace handler.go:42 DB_HOST=db.internal</pre>")
		default:
			fmt.Fprint(w, "<html><body><h1>Quarterly report</h1><p>Revenue grew in every region this quarter.</p></body></html>")
		}
	}))
	s := newSession(t, testBudget())
	p := Params{Target: tg.String(), ParamEndpoints: []params.Endpoint{{Path: "/report"}}}

	fs, err := s.Invoke(context.Background(), CapParams, p)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.ExposedPath, fs[0].Category)
	assert.Equal(t, "debug", fs[0].Parameter)

	fs, err = s.Invoke(context.Background(), CapHeaders, p)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "X-Original-URL", fs[0].Parameter)

	_, err = s.Invoke(context.Background(), CapHeaders, Params{Target: tg.String()})
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestInvoke_Errors(t *testing.T) {
	s := newSession(t, testBudget())

	_, err := s.Invoke(context.Background(), "nope", Params{Target: "http://127.0.0.1:1"})
	require.ErrorIs(t, err, ErrUnknownCapability)

	_, err = s.Invoke(context.Background(), CapSQLi, Params{Target: "http://127.0.0.1:1"})
	require.ErrorIs(t, err, ErrInvalidParams)

	_, err = s.Invoke(context.Background(), CapDiscover, Params{Target: "http://127.0.0.1:1"})
	require.ErrorIs(t, err, ErrInvalidParams)
}

func TestInvoke_ProbeGapIsRecorded(t *testing.T) {
	dead := testutil.DeadTarget(t)
	s := newSession(t, testBudget())

	fs, err := s.Invoke(context.Background(), CapLFI, Params{
		Target: dead.String(),
		Points: []probe.InjectionPoint{{Path: "/view", Parameter: "file", Location: probe.Query}},
	})
	require.NoError(t, err)
	assert.Empty(t, fs)

	sum := s.Summary()
	assert.Equal(t, 1, sum.CoverageGaps)
	require.Len(t, sum.Gaps, 1)
	assert.Contains(t, sum.Gaps[0], "lfi")
}

func TestSessions_AreIndependent(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	a := newSession(t, testBudget())
	b := newSession(t, testBudget())
	assert.NotEqual(t, a.ID(), b.ID())

	_, err := a.Invoke(context.Background(), CapCommonFiles, Params{Target: tg.String()})
	require.NoError(t, err)

	assert.Positive(t, a.Summary().Requests)
	assert.Zero(t, b.Summary().Requests)
}

func TestNewSession_RejectsInvalidBudget(t *testing.T) {
	_, err := NewSession(budget.Budget{})
	require.ErrorIs(t, err, budget.ErrInvalidBudget)
}

func TestCapabilities_StableTable(t *testing.T) {
	want := []string{
		CapDiscover, CapCommonFiles, CapAPIEndpoints, CapParams, CapHeaders,
		CapSQLi, CapXSS, CapLFI, CapOpenRedirect,
		CapAuthBypass, CapIDOR, CapSession, CapPrivilegeEscalation,
	}
	assert.Equal(t, want, Names())
	assert.Equal(t, Names(), Names())

	covered := map[finding.Category]bool{}
	for _, c := range Capabilities() {
		assert.NotEmpty(t, c.Description, c.Name)
		assert.NotNil(t, c.Invoke, c.Name)
		assert.NotNil(t, c.Applicable, c.Name)
		assert.True(t, c.Category.IsValid(), c.Name)
		covered[c.Category] = true
	}
	for _, cat := range finding.Categories() {
		assert.True(t, covered[cat], "no capability reports %s", cat)
	}
}

func TestCapabilities_ReturnsCopy(t *testing.T) {
	caps := Capabilities()
	caps[0].Name = "mutated"
	c, ok := Lookup(CapDiscover)
	require.True(t, ok)
	assert.Equal(t, CapDiscover, c.Name)
}

func TestRun_RecordsSpans(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	s, err := NewSession(testBudget(),
		WithClient(testutil.NewClient(t, testutil.ClientOptions{})),
		WithTracer(tp.Tracer("test")))
	require.NoError(t, err)

	_, err = s.Run(context.Background(), Request{
		Capabilities: []string{CapCommonFiles, CapAPIEndpoints},
		Params:       Params{Target: tg.String()},
	})
	require.NoError(t, err)

	counts := map[string]int{}
	for _, sp := range rec.Ended() {
		counts[sp.Name()]++
	}
	assert.Equal(t, 1, counts["scan.run"])
	assert.Equal(t, 2, counts["scan.capability"])
}
