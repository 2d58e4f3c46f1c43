// Package exitcode maps scan outcomes to process exit codes for CI/CD
// pipelines.
//
// Exit codes:
//   - 0: scan completed, nothing at or above the fail threshold
//   - 1: findings at or above the fail threshold
//   - 2: invalid arguments or configuration
//   - 3: target unreachable
//   - 4: internal error
//   - 5: scan interrupted
package exitcode

import (
	"errors"
	"sync"

	"github.com/waftester/webscan/pkg/config"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/scan"
)

// Code is a process exit code.
type Code int

const (
	Success       Code = defaults.ExitSuccess
	Findings      Code = defaults.ExitFindings
	Configuration Code = defaults.ExitUserError
	Target        Code = defaults.ExitNetworkError
	Internal      Code = defaults.ExitInternalError
	Interrupted   Code = defaults.ExitInterrupted
)

var codeDescriptions = map[Code]string{
	Success:       "Scan completed with nothing at or above the fail threshold",
	Findings:      "Findings at or above the fail threshold were reported",
	Configuration: "Invalid arguments or configuration",
	Target:        "Target is unreachable",
	Internal:      "Unexpected internal error",
	Interrupted:   "Scan was interrupted before completion",
}

// Describe returns a human-readable description of c.
func (c Code) Describe() string {
	if d, ok := codeDescriptions[c]; ok {
		return d
	}
	return "unknown exit code"
}

// Manager accumulates outcomes and picks the exit code.
type Manager struct {
	failOn finding.Confidence

	mu          sync.Mutex
	failing     int
	configError bool
	targetError bool
	internal    bool
	interrupted bool
}

// New creates a Manager. Findings ranked below failOn do not fail the
// run; an invalid failOn means Likely.
func New(failOn finding.Confidence) *Manager {
	if !failOn.IsValid() {
		failOn = finding.Likely
	}
	return &Manager{failOn: failOn}
}

// RecordFinding counts f if it reaches the fail threshold.
func (m *Manager) RecordFinding(f finding.Finding) {
	if f.Confidence.Rank() < m.failOn.Rank() {
		return
	}
	m.mu.Lock()
	m.failing++
	m.mu.Unlock()
}

// RecordReport counts every finding of r and notes interruption.
func (m *Manager) RecordReport(r *scan.Report) {
	if r == nil {
		return
	}
	for _, f := range r.Findings {
		m.RecordFinding(f)
	}
	if r.Summary.Cancelled {
		m.SetInterrupted()
	}
}

// RecordError classifies a failed run.
func (m *Manager) RecordError(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case errors.Is(err, scan.ErrTargetUnreachable):
		m.targetError = true
	case errors.Is(err, scan.ErrInvalidParams),
		errors.Is(err, scan.ErrUnknownCapability),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, config.ErrNotFound):
		m.configError = true
	default:
		m.internal = true
	}
}

// SetInterrupted marks the run as interrupted.
func (m *Manager) SetInterrupted() {
	m.mu.Lock()
	m.interrupted = true
	m.mu.Unlock()
}

// Failing returns the number of findings at or above the threshold.
func (m *Manager) Failing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failing
}

// ExitCode returns the code and its description.
//
// Priority order (highest to lowest):
//  1. Configuration error
//  2. Target unreachable
//  3. Internal error
//  4. Interrupted
//  5. Findings
//  6. Success
func (m *Manager) ExitCode() (Code, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	code := Success
	switch {
	case m.configError:
		code = Configuration
	case m.targetError:
		code = Target
	case m.internal:
		code = Internal
	case m.interrupted:
		code = Interrupted
	case m.failing > 0:
		code = Findings
	}
	return code, code.Describe()
}
