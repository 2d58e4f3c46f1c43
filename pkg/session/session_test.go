package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/testutil"
)

func strongToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func strongCookie(w http.ResponseWriter) string {
	v := strongToken()
	http.SetCookie(w, &http.Cookie{Name: "SESSIONID", Value: v, HttpOnly: true, Secure: true, SameSite: http.SameSiteStrictMode})
	return v
}

func TestProbe_SequentialTokens(t *testing.T) {
	var n atomic.Int64
	n.Store(1000)
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", fmt.Sprintf("SESSIONID=sess%d; Path=/", n.Add(1)))
		w.Header().Add("Set-Cookie", "theme=dark; Path=/")
		fmt.Fprint(w, "home")
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Path: "/"})
	require.NoError(t, err)
	require.Len(t, fs, 1, "only session cookies are checked")
	f := fs[0]
	assert.Equal(t, finding.SessionWeakness, f.Category)
	assert.Equal(t, finding.Confirmed, f.Confidence)
	assert.Equal(t, "SESSIONID", f.Parameter)
	assert.Equal(t, string(Predictable), f.Technique)
	assert.Subset(t, f.Tags, []string{"missing-httponly", "weak-samesite", "short-token", "low-entropy", "predictable-sequence"})
	assert.NotContains(t, f.Tags, "missing-secure", "plain http target")
	assert.Contains(t, f.Evidence.Detail, "constant increment of 1")
}

func TestProbe_StrongSessionIsClean(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		strongCookie(w)
		fmt.Fprint(w, "home")
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Path: "/"})
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestProbe_MissingFlagsAreInformational(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: strongToken(), SameSite: http.SameSiteNoneMode, Secure: true})
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Path: "/"})
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.Informational, fs[0].Confidence)
	assert.ElementsMatch(t, []string{"missing-httponly", "weak-samesite"}, fs[0].Tags)
}

// loginApp issues a session on GET /login and accepts admin/secret.
func loginApp(regenerate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" {
			fmt.Fprint(w, "home")
			return
		}
		if r.Method == http.MethodGet {
			strongCookie(w)
			fmt.Fprint(w, `<form method="post"><input type="password" name="password"></form>`)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("user") != "admin" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, "bad credentials")
			return
		}
		if regenerate {
			strongCookie(w)
		}
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	}
}

var creds = map[string][]string{"user": {"admin"}, "password": {"secret"}}

func TestProbe_Fixation(t *testing.T) {
	tg, _ := testutil.Serve(t, loginApp(false))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Path: "/", LoginPath: "/login", Credentials: creds})
	require.NoError(t, err)
	require.Len(t, fs, 1)
	f := fs[0]
	assert.Equal(t, finding.Confirmed, f.Confidence)
	assert.Equal(t, string(Fixation), f.Technique)
	assert.Equal(t, "/login", f.Path)
	assert.Equal(t, http.StatusFound, f.StatusCode)
}

func TestProbe_RegeneratedSessionIsClean(t *testing.T) {
	tg, _ := testutil.Serve(t, loginApp(true))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Path: "/", LoginPath: "/login", Credentials: creds})
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestProbe_FailedLoginSkipsFixation(t *testing.T) {
	tg, _ := testutil.Serve(t, loginApp(false))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	bad := map[string][]string{"user": {"admin"}, "password": {"wrong"}}
	fs, err := tester.Probe(context.Background(), tg, Request{Path: "/", LoginPath: "/login", Credentials: bad})
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestProbe_NetworkGap(t *testing.T) {
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), testutil.DeadTarget(t), Request{Path: "/"})
	require.Error(t, err)
	assert.Nil(t, fs)
	assert.True(t, httpclient.IsGap(err))
}

func TestEntropyBits(t *testing.T) {
	assert.InDelta(t, 128, EntropyBits([]string{"0123456789abcdef0123456789abcdef"}), 0.01)
	assert.Less(t, EntropyBits([]string{"sess1001", "sess1002", "sess1003"}), 16.0)
	assert.Zero(t, EntropyBits(nil))
	assert.Zero(t, EntropyBits([]string{"same", "same"}), "nothing varies")
}

func TestPredictableSequence(t *testing.T) {
	tests := []struct {
		values []string
		ok     bool
	}{
		{[]string{"abc", "abc", "abc"}, true},
		{[]string{"u10", "u20", "u30"}, true},
		{[]string{"u10", "u20", "u35"}, false},
		{[]string{"7f3a9c0d11e2aa01", "7f3a9c0d11e2aa02", "7f3a9c0d11e2aa9f"}, true},
		{[]string{strongToken(), strongToken(), strongToken()}, false},
	}
	for _, tt := range tests {
		_, ok := PredictableSequence(tt.values)
		assert.Equal(t, tt.ok, ok, "%v", tt.values)
	}
}
