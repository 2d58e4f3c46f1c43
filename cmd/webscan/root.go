package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/waftester/webscan/pkg/config"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/duration"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/output/exitcode"
)

// app holds the global flags and the output streams of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	configPath  string
	verbose     bool
	noColor     bool
	silent      bool
	outputPath  string
	format      string
	failOn      string
	rate        float64
	timeout     time.Duration
	maxRequests int64
	maxDepth    int
	proxy       string
	userAgent   string
	headers     []string
	insecure    bool
	metricsAddr string
	otlp        string
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code exitcode.Code
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return e.code.Describe()
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, getenv: os.Getenv}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return int(exitcode.Success)
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "error: %v\n", ee.err)
		}
		return int(ee.code)
	}
	// Flag parsing and argument errors.
	fmt.Fprintf(stderr, "error: %v\n", err)
	return int(exitcode.Configuration)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     defaults.ToolName,
		Short:   "Web vulnerability scanner with soft-404 aware discovery",
		Version: defaults.Version,
		Long: `webscan discovers content and probes for common web vulnerabilities
(SQL injection, reflected XSS, file inclusion, open redirects, broken
access control and weak sessions) against a single target, under one
rate limit and request cap.`,
		Example: `  webscan scan https://app.example.com
  webscan scan -c discover,xss -w builtin:common-dirs -e .bak https://app.example.com
  webscan probe sqli --point "query:/item:id=1" https://app.example.com
  webscan scan --config profile.yaml -o report.jsonl --format jsonl
  webscan mcp --http :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML scan profile")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Debug logging")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	pf.BoolVarP(&a.silent, "silent", "s", false, "Only print the summary")
	pf.StringVarP(&a.outputPath, "output", "o", "", `Report file ("-" for stdout)`)
	pf.StringVar(&a.format, "format", "", "Report format: json, jsonl")
	pf.StringVar(&a.failOn, "fail-on", "", "Lowest confidence that fails the run: confirmed, likely, informational")
	pf.Float64VarP(&a.rate, "rate", "r", defaults.RequestsPerSecond, "Requests per second")
	pf.DurationVar(&a.timeout, "timeout", duration.RequestTimeout, "Per-request timeout")
	pf.Int64Var(&a.maxRequests, "max-requests", 0, "Request cap for the whole scan (0 = unlimited)")
	pf.IntVarP(&a.maxDepth, "max-depth", "R", defaults.MaxDepth, "Discovery recursion depth")
	pf.StringVar(&a.proxy, "proxy", "", "HTTP or SOCKS5 proxy URL")
	pf.StringVar(&a.userAgent, "user-agent", "", "User-Agent header")
	pf.StringArrayVarP(&a.headers, "header", "H", nil, `Extra header "Name: value" (repeatable)`)
	pf.BoolVarP(&a.insecure, "insecure", "k", true, "Skip TLS certificate verification")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	pf.StringVar(&a.otlp, "otlp-endpoint", "", "Export traces to this OTLP/gRPC collector")

	root.AddCommand(
		a.scanCmd(),
		a.discoverCmd(),
		a.probeCmd(),
		a.mcpCmd(),
		a.capabilitiesCmd(),
	)
	return root
}

// loadConfig builds the effective profile: the file (or defaults), then
// the environment, then every flag the user set explicitly.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if a.configPath != "" {
		loaded, err := config.Load(a.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv(a.getenv)

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Path = a.outputPath
	}
	if flags.Changed("format") {
		cfg.Output.Format = a.format
	}
	if flags.Changed("fail-on") {
		c, err := finding.ParseConfidence(a.failOn)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: --fail-on: %w", config.ErrInvalidConfig, err)
		}
		cfg.Output.FailOn = c
	}
	if flags.Changed("rate") {
		cfg.Budget.RequestsPerSecond = a.rate
	}
	if flags.Changed("timeout") {
		cfg.Budget.Timeout = a.timeout
	}
	if flags.Changed("max-requests") {
		cfg.Budget.MaxRequests = a.maxRequests
	}
	if flags.Changed("max-depth") {
		cfg.Budget.MaxDepth = a.maxDepth
	}
	if flags.Changed("proxy") {
		cfg.Network.Proxy = a.proxy
	}
	if flags.Changed("user-agent") {
		cfg.Network.UserAgent = a.userAgent
	}
	if flags.Changed("insecure") {
		cfg.Network.InsecureSkipVerify = a.insecure
	}
	if len(a.headers) > 0 {
		if cfg.Network.Headers == nil {
			cfg.Network.Headers = make(map[string]string)
		}
		for _, h := range a.headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return config.Config{}, fmt.Errorf("%w: --header %q: want \"Name: value\"", config.ErrInvalidConfig, h)
			}
			cfg.Network.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if flags.Changed("otlp-endpoint") {
		cfg.Tracing.Endpoint = a.otlp
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// fail converts err into an exitError using the exit code rules.
func fail(err error) error {
	m := exitcode.New(finding.Likely)
	m.RecordError(err)
	code, _ := m.ExitCode()
	return &exitError{code: code, err: err}
}
