package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/webscan/pkg/httpclient"
)

func TestNewClientAndServe(t *testing.T) {
	tg, _ := Serve(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	c := NewClient(t, ClientOptions{MaxRequests: 1})

	resp, err := c.Send(context.Background(), &httpclient.Request{URL: tg.Resolve("/").String()})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.BodyString())
	assert.Equal(t, int64(0), c.Counter().Remaining())
}

func TestDeadTarget(t *testing.T) {
	c := NewClient(t, ClientOptions{})
	_, err := c.Send(context.Background(), &httpclient.Request{URL: DeadTarget(t).Resolve("/").String()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpclient.ErrConnRefused))
}

func TestFailingWriter(t *testing.T) {
	w := &FailingWriter{Limit: 4}
	n, err := w.Write([]byte("abcdef"))
	assert.Equal(t, 4, n)
	assert.ErrorIs(t, err, ErrFault)
}

func TestRunConcurrently(t *testing.T) {
	var n atomic.Int32
	AssertTimeout(t, "run", time.Second, func() {
		RunConcurrently(20, func(int) { n.Add(1) })
	})
	assert.Equal(t, int32(20), n.Load())
}
