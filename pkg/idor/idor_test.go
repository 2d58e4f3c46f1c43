package idor

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
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/testutil"
)

var users = map[string]string{
	"1": `{"id":1,"name":"alice","email":"alice@corp.example","role":"user"}`,
	"2": `{"id":2,"name":"bob","email":"bob@corp.example","role":"user"}`,
	"3": `{"id":3,"name":"carol","email":"carol@corp.example","role":"admin"}`,
}

var userPoint = probe.InjectionPoint{
	Path:      "/api/users/{id}",
	Parameter: "id",
	Location:  probe.Path,
	Header:    http.Header{"Authorization": {"Bearer alice"}},
}

func userAPI(enforce bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/users/")
		body, ok := users[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if enforce && !(id == "1" && r.Header.Get("Authorization") == "Bearer alice") {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":"forbidden"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}
}

func TestProbe_WalkableIDsAreLikely(t *testing.T) {
	tg, _ := testutil.Serve(t, userAPI(false))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Point: userPoint, IDs: Range(1, 5)})
	require.NoError(t, err)
	require.Len(t, fs, 1)
	f := fs[0]
	assert.Equal(t, finding.IDOR, f.Category)
	assert.Equal(t, finding.Likely, f.Confidence)
	assert.Equal(t, "id", f.Parameter)
	assert.Contains(t, f.Evidence.Detail, "accessible=3 ids=1,2,3")
	assert.Contains(t, f.Evidence.Detail, "identity=authenticated")
}

func TestProbe_OwnIDConfirms(t *testing.T) {
	tg, _ := testutil.Serve(t, userAPI(false))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Point: userPoint, IDs: []string{"1", "2"}, OwnID: "1"})
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, finding.Confirmed, fs[0].Confidence)
	assert.Equal(t, "2", fs[0].Evidence.Payload)
	assert.Contains(t, fs[0].Evidence.Detail, "own=1")
	assert.Contains(t, fs[0].URL, "/api/users/2")
}

func TestProbe_EnforcedOwnershipIsNone(t *testing.T) {
	tg, _ := testutil.Serve(t, userAPI(true))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Point: userPoint, IDs: Range(1, 5), OwnID: "1"})
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestProbe_GenericPageIsNotDistinct(t *testing.T) {
	tg, _ := testutil.Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><h1>Profile %s</h1><p>This profile is private.</p></html>", r.URL.Query().Get("uid"))
	}))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	point := probe.InjectionPoint{Path: "/profile", Parameter: "uid", Location: probe.Query}
	fs, err := tester.Probe(context.Background(), tg, Request{Point: point, IDs: Range(10, 15)})
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestProbe_SingleRecordIsNone(t *testing.T) {
	tg, _ := testutil.Serve(t, userAPI(false))
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), tg, Request{Point: userPoint, IDs: []string{"3", "4", "5"}})
	require.NoError(t, err)
	assert.Empty(t, fs)
}

func TestProbe_NetworkGap(t *testing.T) {
	tester := New(testutil.NewClient(t, testutil.ClientOptions{}))

	fs, err := tester.Probe(context.Background(), testutil.DeadTarget(t), Request{Point: userPoint, IDs: Range(1, 2)})
	require.Error(t, err)
	assert.Nil(t, fs)
	assert.True(t, httpclient.IsGap(err))
}

func TestRange(t *testing.T) {
	assert.Equal(t, []string{"7", "8", "9"}, Range(7, 9))
	assert.Nil(t, Range(3, 1))
}

func TestNeighbors(t *testing.T) {
	assert.Equal(t, []string{"3", "4", "6", "7", "0", "1", "2"}, Neighbors("5", 2))
	assert.Equal(t, []string{"0", "2"}, Neighbors("1", 1))
	assert.Nil(t, Neighbors("abc", 2))
}
