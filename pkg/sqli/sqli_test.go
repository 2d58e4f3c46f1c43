package sqli

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/webscan/pkg/duration"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/testutil"
)

var point = probe.InjectionPoint{Path: "/item", Parameter: "id", Location: probe.Query, Original: "1"}

func fastConfig(techs ...Technique) Config {
	cfg := DefaultConfig()
	cfg.Techniques = techs
	cfg.Delay = 300 * time.Millisecond
	return cfg
}

func sleepyHandler(limit int32) http.HandlerFunc {
	var slept atomic.Int32
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("id"), "SLEEP(") && (limit == 0 || slept.Add(1) <= limit) {
			time.Sleep(300 * time.Millisecond)
		}
		fmt.Fprint(w, "<html><body>item page</body></html>")
	}
}

func TestTimeBased_Confirmed(t *testing.T) {
	tg, _ := testutil.Serve(t, sleepyHandler(0))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(TimeBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.SQLInjection, fs[0].Category)
	assert.Equal(t, finding.Confirmed, fs[0].Confidence)
	assert.Equal(t, string(TimeBased), fs[0].Technique)
	assert.Contains(t, fs[0].Evidence.Payload, "SLEEP(0.3)")
	assert.Contains(t, fs[0].Evidence.Detail, "trials=3/3")
	assert.Contains(t, fs[0].Tags, "dbms:mysql")
}

func TestTimeBased_TwoHitsIsLikely(t *testing.T) {
	tg, _ := testutil.Serve(t, sleepyHandler(2))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(TimeBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.Likely, fs[0].Confidence)
}

func TestTimeBased_NoDelay(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "static")
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(TimeBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

// obedientSleep sleeps for whatever SLEEP(n) asks.
func obedientSleep(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("id")
	if i := strings.Index(v, "SLEEP("); i >= 0 {
		rest := v[i+len("SLEEP("):]
		if j := strings.IndexByte(rest, ')'); j > 0 {
			if sec, err := strconv.ParseFloat(rest[:j], 64); err == nil {
				time.Sleep(time.Duration(sec * float64(time.Second)))
			}
		}
	}
	fmt.Fprint(w, "<html><body>item page</body></html>")
}

func TestTimeBased_DelayFitsRequestTimeout(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(obedientSleep))
	cfg := fastConfig(TimeBased)
	cfg.Delay = 500 * time.Millisecond
	timeout := 450 * time.Millisecond
	tester := New(testutil.NewClient(t, testutil.ClientOptions{Timeout: timeout}),
		WithConfig(cfg), WithRequestTimeout(timeout))
	assert.Equal(t, 225*time.Millisecond, tester.Delay())

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.Confirmed, fs[0].Confidence)
	assert.Contains(t, fs[0].Evidence.Payload, "SLEEP(0.225)")
}

func TestNew_DelayKeptWithinTimeout(t *testing.T) {
	tester := New(nil, WithConfig(DefaultConfig()), WithRequestTimeout(duration.RequestTimeout))
	assert.Equal(t, duration.SQLiDelay, tester.Delay())

	tester = New(nil, WithConfig(DefaultConfig()))
	assert.Equal(t, duration.SQLiDelay, tester.Delay(), "no timeout known, no clamp")
}

func mysqlErrorHandler(w http.ResponseWriter, r *http.Request) {
	if strings.ContainsAny(r.URL.Query().Get("id"), `'"`) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "You have an error in your SQL syntax; check the manual that corresponds to your MySQL server version")
		return
	}
	fmt.Fprint(w, "item 1")
}

func TestErrorBased_MySQL(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(mysqlErrorHandler))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(ErrorBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.Confirmed, fs[0].Confidence)
	assert.Equal(t, string(ErrorBased), fs[0].Technique)
	assert.Equal(t, "1'", fs[0].Evidence.Payload)
	assert.Equal(t, http.StatusInternalServerError, fs[0].StatusCode)
	assert.Contains(t, fs[0].Tags, "dbms:mysql")
	assert.Equal(t, "id", fs[0].Parameter)
	assert.NotEmpty(t, fs[0].ID)
}

func TestErrorBased_BaselineAlreadyErrors(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Warning: mysqli_connect(): too many connections")
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(ErrorBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

const (
	productPage = "<html><h1>Product 1</h1><p>Blue widget with a sturdy handle and two spare parts, ships in two days.</p></html>"
	emptyPage   = "<html><h1>Catalogue</h1><p>No products matched.</p></html>"
	invalidPage = "<html><h1>Bad request</h1><p>id must be numeric</p></html>"
)

// numericSQL behaves like `SELECT ... WHERE id = <value>`.
func numericSQL(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("id")
	switch {
	case v == "1", v == "1 AND 1=1", v == "1 AND 2>1":
		fmt.Fprint(w, productPage)
	case strings.HasPrefix(v, "1 AND "):
		fmt.Fprint(w, emptyPage)
	default:
		fmt.Fprint(w, invalidPage)
	}
}

func TestBooleanBased_Confirmed(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(numericSQL))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(BooleanBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.Confirmed, fs[0].Confidence)
	assert.Equal(t, string(BooleanBased), fs[0].Technique)
	assert.Contains(t, fs[0].Evidence.Detail, "context=numeric")
}

func TestBooleanBased_JunkMatchesFalsePage(t *testing.T) {
	// Only the original value and the true payloads find the item; junk
	// and false payloads share the "no results" page.
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id") {
		case "1", "1 AND 1=1", "1 AND 2>1":
			fmt.Fprint(w, productPage)
		default:
			fmt.Fprint(w, emptyPage)
		}
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(BooleanBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestBooleanBased_ReflectionIsNotInjection(t *testing.T) {
	// Echoing the value changes the page for every input, so the true
	// payload never reproduces the baseline.
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<p>You searched for %s</p>", r.URL.Query().Get("id"))
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(fastConfig(BooleanBased)))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestProbe_StopsAtFirstConfirmed(t *testing.T) {
	var hits atomic.Int32
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		mysqlErrorHandler(w, r)
	}))
	cfg := fastConfig(Techniques()...)
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}), WithConfig(cfg))

	fs, err := tester.Probe(context.Background(), tg, point)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, string(ErrorBased), fs[0].Technique)
	// baseline plus the first error payload
	assert.EqualValues(t, 2, hits.Load())
}

func TestProbe_NetworkGap(t *testing.T) {
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), testutil.DeadTarget(t), point)
	require.Error(t, err)
	assert.Nil(t, fs)
	assert.True(t, httpclient.IsGap(err))
}

func TestProbe_InvalidPoint(t *testing.T) {
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))
	_, err := tester.Probe(context.Background(), testutil.DeadTarget(t), probe.InjectionPoint{Path: "/x", Location: probe.Query})
	assert.ErrorIs(t, err, probe.ErrInvalidPoint)
}

func TestMatchError(t *testing.T) {
	tests := []struct {
		body string
		dbms DBMS
		ok   bool
	}{
		{"ERROR:  syntax error at or near \"'\"", PostgreSQL, true},
		{"ORA-01756: quoted string not properly terminated", Oracle, true},
		{"Unclosed quotation mark after the character string ''.", MSSQL, true},
		{"SQLite3::SQLException: unrecognized token", SQLite, true},
		{"java.sql.SQLException: bad", Generic, true},
		{"<html>welcome back</html>", "", false},
	}
	for _, tt := range tests {
		dbms, excerpt, ok := MatchError(tt.body)
		assert.Equal(t, tt.ok, ok, tt.body)
		assert.Equal(t, tt.dbms, dbms, tt.body)
		if ok {
			assert.NotEmpty(t, excerpt)
		}
	}
}
