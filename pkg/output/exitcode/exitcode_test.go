package exitcode

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waftester/webscan/pkg/config"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/scan"
)

func f(c finding.Confidence) finding.Finding {
	return finding.New(finding.Finding{Category: finding.ExposedPath, Confidence: c})
}

func TestExitCode_Findings(t *testing.T) {
	tests := []struct {
		name   string
		failOn finding.Confidence
		seen   []finding.Confidence
		want   Code
	}{
		{"nothing", finding.Likely, nil, Success},
		{"informational below likely", finding.Likely, []finding.Confidence{finding.Informational}, Success},
		{"likely fails", finding.Likely, []finding.Confidence{finding.Likely}, Findings},
		{"confirmed threshold ignores likely", finding.Confirmed, []finding.Confidence{finding.Likely}, Success},
		{"confirmed threshold", finding.Confirmed, []finding.Confidence{finding.Confirmed}, Findings},
		{"invalid threshold means likely", "", []finding.Confidence{finding.Likely}, Findings},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.failOn)
			for _, c := range tt.seen {
				m.RecordFinding(f(c))
			}
			code, desc := m.ExitCode()
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, desc)
		})
	}
}

func TestRecordError(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{fmt.Errorf("wrap: %w", scan.ErrTargetUnreachable), Target},
		{scan.ErrInvalidParams, Configuration},
		{scan.ErrUnknownCapability, Configuration},
		{fmt.Errorf("%w: bad rate", config.ErrInvalidConfig), Configuration},
		{fmt.Errorf("%w: profile.yaml", config.ErrNotFound), Configuration},
		{errors.New("boom"), Internal},
	}
	for _, tt := range tests {
		m := New(finding.Likely)
		m.RecordError(tt.err)
		code, _ := m.ExitCode()
		assert.Equal(t, tt.want, code, tt.err.Error())
	}
}

func TestPriority(t *testing.T) {
	m := New(finding.Likely)
	m.RecordFinding(f(finding.Confirmed))
	m.SetInterrupted()
	code, _ := m.ExitCode()
	assert.Equal(t, Interrupted, code)

	m.RecordError(scan.ErrTargetUnreachable)
	code, _ = m.ExitCode()
	assert.Equal(t, Target, code)
}

func TestRecordReport(t *testing.T) {
	m := New(finding.Likely)
	m.RecordReport(&scan.Report{
		Findings: []finding.Finding{f(finding.Likely), f(finding.Informational)},
	})
	assert.Equal(t, 1, m.Failing())
	code, _ := m.ExitCode()
	assert.Equal(t, Findings, code)

	m.RecordReport(nil)
	m.RecordReport(&scan.Report{Summary: scan.Summary{Cancelled: true}})
	code, _ = m.ExitCode()
	assert.Equal(t, Interrupted, code)
}

func TestConcurrentRecording(t *testing.T) {
	m := New(finding.Likely)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordFinding(f(finding.Confirmed))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, m.Failing())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Target is unreachable", Target.Describe())
	assert.Equal(t, "unknown exit code", Code(99).Describe())
}
