package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waftester/webscan/pkg/aggregate"
	"github.com/waftester/webscan/pkg/config"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/output"
	"github.com/waftester/webscan/pkg/output/exitcode"
	"github.com/waftester/webscan/pkg/scan"
)

func (a *app) scanCmd() *cobra.Command {
	var (
		in   inputFlags
		caps []string
	)
	cmd := &cobra.Command{
		Use:   "scan [target]",
		Short: "Run a scan session",
		Long: `Runs the selected capabilities concurrently against the target under one
rate limit and request cap. With no --capability, every capability whose
inputs are present runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return fail(err)
			}
			req := cfg.Scan
			if err := in.apply(cmd, args, &req.Params); err != nil {
				return fail(err)
			}
			if len(caps) > 0 {
				req.Capabilities = caps
			}
			return a.run(cmd.Context(), cfg, req)
		},
	}
	in.register(cmd, true, true)
	cmd.Flags().StringSliceVarP(&caps, "capability", "c", nil, "Capabilities to run: "+strings.Join(scan.Names(), ", "))
	return cmd
}

// run executes one session for req and writes the report. The returned
// error carries the exit code.
func (a *app) run(parent context.Context, cfg config.Config, req scan.Request) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", config.ErrInvalidConfig, err))
	}
	rt, err := a.start(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer rt.Close()

	w, closeReport, err := openReport(cfg.Output.Path, a.stdout)
	if err != nil {
		return fail(err)
	}
	defer joinClose(&err, closeReport)

	live := aggregate.ObserverFunc(func(f finding.Finding, replaced bool) {
		if !replaced {
			rt.printer.Finding(f)
		}
	})
	extra := []scan.Option{scan.WithObservers(live)}
	var stream *output.Stream
	if format == output.JSONL {
		stream = output.NewStream(w)
		extra = append(extra, scan.WithObservers(stream))
	}

	sess, err := scan.NewSession(cfg.Budget, rt.sessionOptions(extra...)...)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", config.ErrInvalidConfig, err))
	}
	if stream != nil {
		stream.SetSession(sess.ID())
	}

	rt.printer.Banner()
	rt.printer.Options(
		[2]string{"Target", req.Target},
		[2]string{"Capabilities", strings.Join(req.Capabilities, ", ")},
		[2]string{"Rate", fmt.Sprintf("%g req/s", cfg.Budget.RequestsPerSecond)},
		[2]string{"Request cap", capString(cfg.Budget.MaxRequests)},
		[2]string{"Proxy", cfg.Network.Proxy},
		[2]string{"Metrics", rt.metricsAddr()},
		[2]string{"Session", sess.ID()},
	)

	report, err := sess.Run(ctx, req)
	if err != nil {
		return fail(err)
	}
	rt.printer.Summary(report)

	if stream != nil {
		err = stream.Finish(report)
	} else {
		err = output.Write(w, format, report)
	}
	if err != nil {
		return fail(fmt.Errorf("writing report: %w", err))
	}

	m := exitcode.New(cfg.Output.FailOn)
	m.RecordReport(report)
	if code, _ := m.ExitCode(); code != exitcode.Success {
		return &exitError{code: code}
	}
	return nil
}

func capString(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
