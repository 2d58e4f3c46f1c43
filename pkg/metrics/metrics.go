// Package metrics exposes scan activity for Prometheus scraping.
//
// A Collector observes the shared HTTP client (one callback per attempt)
// and the finding aggregator (one callback per retained finding). Each
// Collector owns its registry, so several sessions in one process never
// share series.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/waftester/webscan/pkg/aggregate"
	"github.com/waftester/webscan/pkg/duration"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
)

// Namespace prefixes every series.
const Namespace = "webscan"

// DefaultPath is where Serve exposes the registry.
const DefaultPath = "/metrics"

// Compile-time interface checks.
var (
	_ httpclient.Observer = (*Collector)(nil)
	_ aggregate.Observer  = (*Collector)(nil)
)

// Collector holds the scan series.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	findingsTotal   *prometheus.CounterVec
	replacedTotal   *prometheus.CounterVec

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "HTTP attempts sent to targets, by check and status class",
		},
		[]string{"check", "status"},
	)
	c.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "request_errors_total",
			Help:      "Attempts that produced no response, by error kind",
		},
		[]string{"check", "kind"},
	)
	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from dispatch to response body read",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"check"},
	)
	c.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "findings_total",
			Help:      "Findings retained by the aggregator",
		},
		[]string{"category", "confidence", "severity"},
	)
	c.replacedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "findings_replaced_total",
			Help:      "Retained findings that displaced a lower-ranked duplicate",
		},
		[]string{"category"},
	)

	c.registry.MustRegister(
		c.requestsTotal,
		c.errorsTotal,
		c.requestDuration,
		c.findingsTotal,
		c.replacedTotal,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveRequest records one network attempt.
func (c *Collector) ObserveRequest(tag string, status int, elapsed time.Duration, err error) {
	check := checkLabel(tag)
	if err != nil {
		kind := string(httpclient.KindOf(err))
		if kind == "" {
			kind = "other"
		}
		c.errorsTotal.WithLabelValues(check, kind).Inc()
		c.requestsTotal.WithLabelValues(check, "error").Inc()
		return
	}
	c.requestsTotal.WithLabelValues(check, statusClass(status)).Inc()
	c.requestDuration.WithLabelValues(check).Observe(elapsed.Seconds())
}

// FindingAccepted records one retained finding.
func (c *Collector) FindingAccepted(f finding.Finding, replaced bool) {
	c.findingsTotal.WithLabelValues(string(f.Category), string(f.Confidence), string(f.Severity)).Inc()
	if replaced {
		c.replacedTotal.WithLabelValues(string(f.Category)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes the registry at DefaultPath on addr until Close is called.
// The listener is bound before Serve returns, so bind errors surface here.
func (c *Collector) Serve(addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server != nil {
		return errors.New("metrics: already serving")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle(DefaultPath, c.Handler())
	c.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  duration.ServerRead,
		WriteTimeout: duration.ServerWrite,
	}
	c.addr = ln.Addr().String()

	srv := c.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	logger.Info("metrics listening", slog.String("addr", c.addr), slog.String("path", DefaultPath))
	return nil
}

// Addr returns the bound address after Serve, or "".
func (c *Collector) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Close shuts the metrics server down, if running.
func (c *Collector) Close() error {
	c.mu.Lock()
	srv := c.server
	c.server = nil
	c.addr = ""
	c.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// checkLabel keeps the first tag segment ("sqli/time" -> "sqli") so the
// label set stays bounded.
func checkLabel(tag string) string {
	if tag == "" {
		return "unknown"
	}
	check, _, _ := strings.Cut(tag, "/")
	return check
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}
