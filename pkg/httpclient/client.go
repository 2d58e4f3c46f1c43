package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/iohelper"
	"github.com/waftester/webscan/pkg/ratelimit"
	"github.com/waftester/webscan/pkg/retry"
)

// Request is one outbound probe. It is built fresh for every attempt and
// must not be modified after it is passed to Send.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Cookies     []*http.Cookie
	Body        []byte
	ContentType string

	// Tag names the check that produced the request (e.g. "sqli/time").
	Tag string
}

// Response is a classified-then-discarded view of a target response.
type Response struct {
	StatusCode int
	Header     http.Header
	Cookies    []*http.Cookie
	Body       []byte
	Truncated  bool
	Elapsed    time.Duration
	Request    *Request
}

// String renders the request line, e.g. "GET http://host/path".
func (r *Request) String() string {
	m := r.Method
	if m == "" {
		m = http.MethodGet
	}
	if len(r.Body) == 0 {
		return m + " " + r.URL
	}
	return m + " " + r.URL + "\n\n" + string(r.Body)
}

// Summary renders the status line followed by the first n bytes of body.
func (r *Response) Summary(n int) string {
	return fmt.Sprintf("HTTP %d %s\n\n%s", r.StatusCode, http.StatusText(r.StatusCode), iohelper.Excerpt(string(r.Body), n))
}

// BodyString returns the body as a string.
func (r *Response) BodyString() string { return string(r.Body) }

// Location returns the redirect target header, if any.
func (r *Response) Location() string { return r.Header.Get("Location") }

// IsRedirect reports a 3xx status.
func (r *Response) IsRedirect() bool { return r.StatusCode >= 300 && r.StatusCode < 400 }

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Words returns the whitespace-separated word count of the body.
func (r *Response) Words() int { return len(bytes.Fields(r.Body)) }

// Lines returns the number of lines in the body.
func (r *Response) Lines() int {
	if len(r.Body) == 0 {
		return 0
	}
	return bytes.Count(r.Body, []byte{'\n'}) + 1
}

// Sender is the subset of Client used by calibration, discovery and the
// probes. Tests substitute their own.
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Observer receives one callback per network attempt. status is 0 when
// err is non-nil.
type Observer interface {
	ObserveRequest(tag string, status int, elapsed time.Duration, err error)
}

// Client is the rate-limited client shared by every component of a scan.
// All admission control happens here: the budget counter is consulted
// first, then the limiter, then the request is sent with the per-request
// timeout.
type Client struct {
	http      *http.Client
	limiter   *ratelimit.Limiter
	counter   *budget.Counter
	timeout   time.Duration
	maxBody   int64
	userAgent string
	headers   http.Header
	observer  Observer
	logger    *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMaxBody sets the body cap (default 1MB).
func WithMaxBody(n int64) Option {
	return func(c *Client) { c.maxBody = n }
}

// WithUserAgent overrides the default user agent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHeaders adds headers to every request unless the request sets them.
func WithHeaders(h http.Header) Option {
	return func(c *Client) { c.headers = h.Clone() }
}

// WithObserver attaches a request observer (metrics).
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger used for transport-level debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New wraps hc with admission control. limiter and counter are shared
// with nobody else unless the caller does so on purpose; one scan session
// owns one of each.
func New(hc *http.Client, limiter *ratelimit.Limiter, counter *budget.Counter, timeout time.Duration, opts ...Option) *Client {
	if hc == nil {
		hc, _ = NewHTTPClient(DefaultTransportConfig())
	}
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	if counter == nil {
		counter = budget.NewCounter(0)
	}
	c := &Client{
		http:      hc,
		limiter:   limiter,
		counter:   counter,
		timeout:   timeout,
		maxBody:   iohelper.DefaultMaxBodySize,
		userAgent: defaults.UAMinimal,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewForBudget builds the transport, limiter and counter from b.
func NewForBudget(b budget.Budget, tc TransportConfig, opts ...Option) (*Client, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	hc, err := NewHTTPClient(tc)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(&ratelimit.Config{
		RequestsPerSecond: b.RequestsPerSecond,
		Burst:             defaults.Burst,
	})
	return New(hc, limiter, budget.NewCounter(b.MaxRequests), b.Timeout, opts...), nil
}

// Limiter returns the shared admission limiter.
func (c *Client) Limiter() *ratelimit.Limiter { return c.limiter }

// Counter returns the shared request counter.
func (c *Client) Counter() *budget.Counter { return c.counter }

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Send issues req and returns the response, or:
//   - ctx.Err() when ctx is done before dispatch,
//   - budget.ErrExhausted when the request cap is reached,
//   - a *NetworkError when no response could be obtained.
//
// DNS and connection failures are retried once, immediately. Timeouts are
// not retried. Cancelling ctx stops new dispatch but does not abort a
// request already on the wire; only the per-request timeout does that.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	var resp *Response
	err := retry.Do(ctx, retry.Once(Retryable), func() error {
		r, err := c.attempt(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.counter.Remaining() == 0 {
		// Fast path: do not queue on the limiter for a slot that cannot exist.
		return nil, c.counter.Acquire()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := c.counter.Acquire(); err != nil {
		return nil, err
	}

	reqCtx := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, c.timeout)
		defer cancel()
	}

	httpReq, err := c.build(reqCtx, req)
	if err != nil {
		// Malformed request: nothing was sent.
		return nil, &NetworkError{Kind: KindOther, Method: req.Method, URL: req.URL, Err: err}
	}

	start := time.Now()
	hr, err := c.http.Do(httpReq)
	if err != nil {
		ne := &NetworkError{Kind: classify(err), Method: httpReq.Method, URL: req.URL, Err: err}
		c.observe(req.Tag, 0, time.Since(start), ne)
		c.logger.Debug("request failed",
			slog.String("tag", req.Tag),
			slog.String("kind", string(ne.Kind)),
			slog.String("url", req.URL))
		return nil, ne
	}
	defer iohelper.DrainAndClose(hr.Body)

	body, truncated, rerr := iohelper.ReadCapped(hr.Body, c.maxBody)
	elapsed := time.Since(start)
	if rerr != nil && len(body) == 0 {
		ne := &NetworkError{Kind: classify(rerr), Method: httpReq.Method, URL: req.URL, Err: rerr}
		c.observe(req.Tag, 0, elapsed, ne)
		return nil, ne
	}
	if rerr != nil {
		truncated = true
	}

	if hr.StatusCode == http.StatusTooManyRequests || hr.StatusCode == http.StatusServiceUnavailable {
		c.limiter.OnThrottle()
	} else {
		c.limiter.OnSuccess()
	}
	c.observe(req.Tag, hr.StatusCode, elapsed, nil)

	return &Response{
		StatusCode: hr.StatusCode,
		Header:     hr.Header,
		Cookies:    hr.Cookies(),
		Body:       body,
		Truncated:  truncated,
		Elapsed:    elapsed,
		Request:    req,
	}, nil
}

func (c *Client) build(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for k, vals := range c.headers {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vals := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if host := httpReq.Header.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}
	for _, ck := range req.Cookies {
		httpReq.AddCookie(ck)
	}
	return httpReq, nil
}

func (c *Client) observe(tag string, status int, elapsed time.Duration, err error) {
	if c.observer != nil {
		c.observer.ObserveRequest(tag, status, elapsed, err)
	}
}

// IsGap reports whether err means a check could not complete: a network
// failure, an exhausted budget or a cancelled scan. Such errors are
// coverage gaps, never evidence.
func IsGap(err error) bool {
	return err != nil && (IsNetworkError(err) ||
		errors.Is(err, budget.ErrExhausted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded))
}
