package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/waftester/webscan/pkg/config"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/metrics"
	"github.com/waftester/webscan/pkg/scan"
	"github.com/waftester/webscan/pkg/tracing"
	"github.com/waftester/webscan/pkg/ui"
)

// env is the ambient machinery of one command: logger, printer,
// optional metrics endpoint and trace exporter.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	printer *ui.Printer
	metrics *metrics.Collector
	tracing *tracing.Provider
}

func (a *app) newLogger() *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
}

// start sets up the env for cfg. Close must be called when done.
func (a *app) start(ctx context.Context, cfg config.Config) (*env, error) {
	rt := &env{
		cfg:     cfg,
		logger:  a.newLogger(),
		printer: ui.NewPrinter(a.stderr, ui.WithNoColor(a.noColor), ui.WithSilent(a.silent)),
	}

	if cfg.Metrics.Addr != "" {
		rt.metrics = metrics.New()
		if err := rt.metrics.Serve(cfg.Metrics.Addr, rt.logger); err != nil {
			return nil, fmt.Errorf("%w: metrics: %w", config.ErrInvalidConfig, err)
		}
	}

	tp, err := tracing.New(ctx, tracing.Options{
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
		Headers:  cfg.Tracing.Headers,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	rt.tracing = tp
	return rt, nil
}

// sessionOptions wires the env into a scan session.
func (rt *env) sessionOptions(extra ...scan.Option) []scan.Option {
	opts := []scan.Option{
		scan.WithLogger(rt.logger),
		scan.WithConfig(rt.cfg.Tuning),
		scan.WithTransport(rt.cfg.Transport()),
		scan.WithClientOptions(rt.cfg.ClientOptions()...),
		scan.WithTracer(rt.tracing.Tracer()),
	}
	if rt.metrics != nil {
		opts = append(opts,
			scan.WithClientOptions(httpclient.WithObserver(rt.metrics)),
			scan.WithObservers(rt.metrics))
	}
	return append(opts, extra...)
}

// Close flushes traces and stops the metrics endpoint.
func (rt *env) Close() {
	if rt.tracing != nil {
		if err := rt.tracing.Shutdown(context.Background()); err != nil {
			rt.logger.Warn("trace flush failed", slog.Any("error", err))
		}
	}
	if rt.metrics != nil {
		if err := rt.metrics.Close(); err != nil {
			rt.logger.Warn("metrics shutdown failed", slog.Any("error", err))
		}
	}
}

// openReport returns the writer for the report and a close func. Empty
// and "-" mean w.
func openReport(path string, w io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return w, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: output: %w", config.ErrInvalidConfig, err)
	}
	return f, f.Close, nil
}

// joinClose records a close error without hiding an earlier one.
func joinClose(err *error, closeFn func() error) {
	if cerr := closeFn(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}

func (rt *env) metricsAddr() string {
	if rt.metrics == nil {
		return ""
	}
	return "http://" + rt.metrics.Addr() + metrics.DefaultPath
}
