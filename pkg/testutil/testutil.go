// Package testutil provides shared test helpers: clients wired to httptest
// targets, failure-injecting writers, goroutine leak and deadlock checks.
package testutil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/ratelimit"
	"github.com/waftester/webscan/pkg/target"
)

// ErrFault is the sentinel error returned by fault injection helpers.
var ErrFault = errors.New("injected fault")

// testTimeout keeps failing tests fast.
const testTimeout = 2 * time.Second

// ClientOptions tunes NewClient. Zero values pick fast test defaults.
type ClientOptions struct {
	RPS         float64
	MaxRequests int64
	Timeout     time.Duration
	Options     []httpclient.Option
}

// NewClient returns a rate-limited client suitable for httptest targets.
func NewClient(t testing.TB, o ClientOptions) *httpclient.Client {
	t.Helper()
	if o.RPS == 0 {
		o.RPS = 1000
	}
	if o.Timeout == 0 {
		o.Timeout = testTimeout
	}
	hc, err := httpclient.NewHTTPClient(httpclient.DefaultTransportConfig())
	if err != nil {
		t.Fatalf("http client: %v", err)
	}
	return httpclient.New(hc, ratelimit.NewPerSecond(o.RPS), budget.NewCounter(o.MaxRequests), o.Timeout, o.Options...)
}

// Serve starts an httptest server for h, registers its shutdown with t and
// returns the parsed target.
func Serve(t testing.TB, h http.Handler) (target.Target, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	tg, err := target.Parse(srv.URL)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	return tg, srv
}

// DeadTarget returns a target whose port refuses connections.
func DeadTarget(t testing.TB) target.Target {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	raw := srv.URL
	srv.Close()
	tg, err := target.Parse(raw)
	if err != nil {
		t.Fatalf("target: %v", err)
	}
	return tg
}

// FailingWriter is an io.Writer that fails after Limit bytes written.
// If Limit is 0, every Write call fails immediately.
type FailingWriter struct {
	written int
	Limit   int
}

func (w *FailingWriter) Write(p []byte) (int, error) {
	if w.written+len(p) > w.Limit {
		remaining := w.Limit - w.written
		if remaining > 0 {
			w.written += remaining
			return remaining, ErrFault
		}
		return 0, ErrFault
	}
	w.written += len(p)
	return len(p), nil
}

// GoroutineTracker captures goroutine count before/after a test to detect leaks.
type GoroutineTracker struct {
	before int
}

// TrackGoroutines snapshots the current goroutine count. Call CheckLeaks after.
func TrackGoroutines() *GoroutineTracker {
	runtime.Gosched()
	return &GoroutineTracker{before: runtime.NumGoroutine()}
}

// CheckLeaks waits briefly for goroutines to drain, then fails the test if
// more goroutines are running than when tracking started.
func (g *GoroutineTracker) CheckLeaks(t testing.TB, tolerance int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		runtime.Gosched()
		if runtime.NumGoroutine() <= g.before+tolerance {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	if after := runtime.NumGoroutine(); after > g.before+tolerance {
		t.Errorf("goroutine leak: before=%d after=%d tolerance=%d", g.before, after, tolerance)
	}
}

// AssertTimeout runs fn and fails if it doesn't complete within d.
func AssertTimeout(t testing.TB, name string, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s: timed out after %v (possible deadlock)", name, d)
	}
}

// RunConcurrently runs fn count times across goroutines and waits for all to finish.
func RunConcurrently(count int, fn func(i int)) {
	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func(idx int) {
			defer wg.Done()
			<-start
			fn(idx)
		}(i)
	}
	close(start)
	wg.Wait()
}
