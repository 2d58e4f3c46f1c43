package params

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/openredirect"
	"github.com/waftester/webscan/pkg/testutil"
)

var admin = Endpoint{Path: "/admin"}

func TestHeaders_ForwardedForBypass(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-For") != "127.0.0.1" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, catalogPage)
	}))
	d := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := d.Headers(context.Background(), tg, admin)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	f := fs[0]
	assert.Equal(t, finding.ExposedPath, f.Category)
	assert.Equal(t, finding.Informational, f.Confidence)
	assert.Equal(t, "header-override", f.Technique)
	assert.Equal(t, "X-Forwarded-For", f.Parameter)
	assert.Equal(t, http.StatusOK, f.StatusCode)
	assert.Equal(t, "X-Forwarded-For: 127.0.0.1", f.Evidence.Payload)
	assert.Contains(t, f.Evidence.Detail, "status 403->200")
	assert.Equal(t, []string{"location:header"}, f.Tags)
}

func TestHeaders_ReportsEachHeaderOnce(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-HTTP-Method-Override") != "" {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		fmt.Fprint(w, catalogPage)
	}))
	d := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := d.Headers(context.Background(), tg, admin)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "X-HTTP-Method-Override", fs[0].Parameter)
	assert.Equal(t, "X-HTTP-Method-Override: PUT", fs[0].Evidence.Payload)
}

func TestHeaders_ForwardedHostReflected(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = r.Host
		}
		http.Redirect(w, r, "http://"+host+"/login", http.StatusFound)
	}))
	d := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := d.Headers(context.Background(), tg, admin)
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, "X-Forwarded-Host", fs[0].Parameter)
	assert.Contains(t, fs[0].Tags, "reflected")
}

func TestHeaders_StaticPageReportsNothing(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, catalogPage)
	}))
	d := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := d.Headers(context.Background(), tg, admin)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestHeaders_EndpointRejectingUnknownHeaders(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name := range r.Header {
			if strings.HasPrefix(name, "X-") {
				http.Error(w, "unexpected header", http.StatusBadRequest)
				return
			}
		}
		fmt.Fprint(w, catalogPage)
	}))
	d := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := d.Headers(context.Background(), tg, admin)
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestHeaders_DeadTargetIsGap(t *testing.T) {
	d := New(testutil.NewClient(t, testutil.ClientOptions{}))
	fs, err := d.Headers(context.Background(), testutil.DeadTarget(t), admin)
	require.Error(t, err)
	assert.Nil(t, fs)
	assert.True(t, httpclient.IsGap(err))
}

func TestHeaderCases(t *testing.T) {
	cases := HeaderCases()
	names := map[string]int{}
	for _, hc := range cases {
		assert.NotEmpty(t, hc.Value, hc.Name)
		names[hc.Name]++
	}
	assert.Equal(t, 2, names["X-HTTP-Method-Override"])
	assert.Contains(t, cases, HeaderCase{"X-Forwarded-Host", openredirect.DefaultCanaryHost})
}
