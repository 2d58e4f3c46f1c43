// Package config loads scan profiles from YAML. A profile holds the scan
// request, the budget, component tuning and the ambient settings (proxy,
// output, metrics, tracing). CLI flags and environment variables are
// applied on top of the loaded file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/output"
	"github.com/waftester/webscan/pkg/scan"
)

// Environment variables read by ApplyEnv.
const (
	EnvProxy        = "WEBSCAN_PROXY"
	EnvOTLPEndpoint = "WEBSCAN_OTLP_ENDPOINT"
)

// Config is one scan profile.
type Config struct {
	Version string `json:"version" yaml:"version"`

	Scan   scan.Request  `json:"scan" yaml:"scan"`
	Budget budget.Budget `json:"budget" yaml:"budget"`
	Tuning scan.Config   `json:"tuning" yaml:"tuning"`

	Network Network `json:"network" yaml:"network"`
	Output  Output  `json:"output" yaml:"output"`
	Metrics Metrics `json:"metrics" yaml:"metrics"`
	Tracing Tracing `json:"tracing" yaml:"tracing"`
}

// Network holds connection settings.
type Network struct {
	Proxy              string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	UserAgent          string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// Headers are sent with every request, e.g. a scan identification
	// header agreed with the target's owner.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Output selects the report encoding and the CI failure threshold.
type Output struct {
	Format string `json:"format" yaml:"format"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`

	// FailOn is the lowest confidence that makes the run exit non-zero.
	FailOn finding.Confidence `json:"fail_on" yaml:"fail_on"`
}

// Metrics enables the Prometheus endpoint when Addr is set.
type Metrics struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Tracing enables OTLP export when Endpoint is set.
type Tracing struct {
	Endpoint string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure bool              `json:"insecure" yaml:"insecure"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Default returns a profile with every default filled in and no target.
func Default() Config {
	return Config{
		Version: "1",
		Budget:  budget.Default(),
		Tuning:  scan.DefaultConfig(),
		Network: Network{InsecureSkipVerify: true},
		Output:  Output{Format: string(output.JSON), FailOn: finding.Likely},
	}
}

// Load reads a profile from path on top of Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML profile on top of Default. Unknown keys are
// rejected so that typos do not silently disable a check.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("config: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ApplyEnv overrides the proxy and OTLP endpoint from the environment.
// getenv is os.Getenv outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvProxy)); v != "" {
		c.Network.Proxy = v
	}
	if v := strings.TrimSpace(getenv(EnvOTLPEndpoint)); v != "" {
		c.Tracing.Endpoint = v
	}
}

// Validate checks every section. The target itself is checked when the
// scan starts, since discover and probe commands may supply it later.
func (c Config) Validate() error {
	var errs []error
	if err := c.Budget.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.Scan.Capabilities {
		if _, ok := scan.Lookup(name); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", scan.ErrUnknownCapability, name))
		}
	}
	if c.Network.Proxy != "" {
		if _, err := httpclient.ParseProxyURL(c.Network.Proxy); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := output.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Output.FailOn != "" && !c.Output.FailOn.IsValid() {
		errs = append(errs, fmt.Errorf("fail_on: unknown confidence %q", c.Output.FailOn))
	}
	if t := c.Tuning.Calibration.LengthTolerance; t < 0 || t >= 1 {
		errs = append(errs, fmt.Errorf("tuning.calibration.length_tolerance must be in [0,1), got %v", t))
	}
	if f := c.Tuning.SQLi.DelayFactor; f <= 0 || f > 1 {
		errs = append(errs, fmt.Errorf("tuning.sqli.delay_factor must be in (0,1], got %v", f))
	}
	if s := c.Tuning.SQLi; s.LikelyTrials <= 0 || s.ConfirmTrials < s.LikelyTrials {
		errs = append(errs, fmt.Errorf("tuning.sqli: need 0 < likely_trials <= confirm_trials, got %d/%d", s.LikelyTrials, s.ConfirmTrials))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Transport returns the client transport settings.
func (c Config) Transport() httpclient.TransportConfig {
	tc := httpclient.DefaultTransportConfig()
	tc.Proxy = c.Network.Proxy
	tc.InsecureSkipVerify = c.Network.InsecureSkipVerify
	return tc
}

// ClientOptions returns the client options implied by the network section.
func (c Config) ClientOptions() []httpclient.Option {
	var opts []httpclient.Option
	if c.Network.UserAgent != "" {
		opts = append(opts, httpclient.WithUserAgent(c.Network.UserAgent))
	}
	if len(c.Network.Headers) > 0 {
		h := make(http.Header, len(c.Network.Headers))
		for k, v := range c.Network.Headers {
			h.Set(k, v)
		}
		opts = append(opts, httpclient.WithHeaders(h))
	}
	return opts
}
