package sqli

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

type boolPair struct {
	context string
	truthy  string
	falsy   string
}

// boolPairs append a tautology or a contradiction to the original value.
var boolPairs = []boolPair{
	{"numeric", " AND 1=1", " AND 1=2"},
	{"numeric", " AND 2>1", " AND 2<1"},
	{"string", "' AND '1'='1", "' AND '1'='2"},
	{"string", "' AND 'a'='a", "' AND 'a'='b"},
}

// booleanBased reports when a true predicate reproduces the baseline page,
// a false one changes it, and a neutral value of no SQL meaning reproduces
// neither of them. One agreeing pair is likely, two are
// confirmed.
func (t *Tester) booleanBased(ctx context.Context, tg target.Target, p probe.InjectionPoint, base *httpclient.Response) (*finding.Finding, error) {
	thr := t.config.SimilarityThreshold

	control, err := t.send(ctx, tg, p, p.Original+neutralSuffix(), "sqli/boolean-control")
	if err != nil {
		return nil, err
	}

	var (
		agreed   []boolPair
		lastResp *httpclient.Response
		lastSim  float64
	)
	for _, pair := range boolPairs {
		if len(agreed) > 0 && agreed[0].context != pair.context {
			// Only a pair from the same quoting context can corroborate.
			break
		}
		tr, err := t.send(ctx, tg, p, p.Original+pair.truthy, "sqli/boolean-true")
		if err != nil {
			return nil, err
		}
		if probe.Similarity(tr.Body, base.Body) < thr || tr.StatusCode != base.StatusCode {
			continue
		}
		fr, err := t.send(ctx, tg, p, p.Original+pair.falsy, "sqli/boolean-false")
		if err != nil {
			return nil, err
		}
		sim := probe.Similarity(tr.Body, fr.Body)
		if sim >= thr && tr.StatusCode == fr.StatusCode {
			continue
		}
		if probe.Similarity(control.Body, tr.Body) >= thr && control.StatusCode == tr.StatusCode {
			// Any junk value yields the "true" page; the divergence is
			// the false payload breaking something else.
			continue
		}
		if probe.Similarity(control.Body, fr.Body) >= thr && control.StatusCode == fr.StatusCode {
			// Junk yields the "false" page: the application rejects
			// anything but the original value and the true payload only
			// survives by matching it loosely.
			continue
		}
		agreed = append(agreed, pair)
		lastResp, lastSim = fr, sim
		if len(agreed) >= 2 {
			break
		}
	}

	switch len(agreed) {
	case 0:
		return nil, nil
	case 1:
		return t.newFinding(tg, p, BooleanBased, finding.Likely, p.Original+agreed[0].falsy, lastResp,
			fmt.Sprintf("context=%s true/false similarity=%.2f", agreed[0].context, lastSim)), nil
	default:
		return t.newFinding(tg, p, BooleanBased, finding.Confirmed, p.Original+agreed[1].falsy, lastResp,
			fmt.Sprintf("context=%s pairs=%d true/false similarity=%.2f", agreed[0].context, len(agreed), lastSim)), nil
	}
}

func neutralSuffix() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
