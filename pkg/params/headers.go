package params

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/httpclient"
	"github.com/waftester/webscan/pkg/openredirect"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/target"
)

// HeaderCase is one header value that proxies or frameworks commonly
// trust for routing, client address or method decisions.
type HeaderCase struct {
	Name  string
	Value string
}

// HeaderCases returns the headers tried by Headers, grouped by name.
func HeaderCases() []HeaderCase {
	return []HeaderCase{
		{"X-Forwarded-For", "127.0.0.1"},
		{"X-Real-IP", "127.0.0.1"},
		{"X-Client-IP", "127.0.0.1"},
		{"X-Originating-IP", "127.0.0.1"},
		{"X-Custom-IP-Authorization", "127.0.0.1"},
		{"X-Original-URL", "/admin"},
		{"X-Rewrite-URL", "/admin"},
		{"X-HTTP-Method-Override", http.MethodPut},
		{"X-HTTP-Method-Override", http.MethodDelete},
		{"X-Host", "localhost"},
		{"X-Forwarded-Host", openredirect.DefaultCanaryHost},
	}
}

// Headers sends ep once per header case and reports the headers that
// change the response. A header is reported once, for its first value
// that has an effect. Findings are informational.
func (d *Discoverer) Headers(ctx context.Context, tg target.Target, ep Endpoint) ([]finding.Finding, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	base, err := d.client.Send(ctx, ep.request(tg, nil, nil, "headers/baseline"))
	if err != nil {
		return nil, probe.Gap("headers", err)
	}
	b := &baseline{resp: base}

	name, value := "X-Ws-"+token(), token()
	ctrl, err := d.client.Send(ctx, ep.request(tg, nil, http.Header{name: {value}}, "headers/control"))
	if err != nil {
		return nil, probe.Gap("headers", err)
	}
	if d.changed(b, ctrl, url.Values{name: {value}}) {
		d.logger.Info("endpoint reacts to unknown headers, skipped",
			slog.String("path", ep.Path),
			slog.Int("baseline_status", base.StatusCode),
			slog.Int("control_status", ctrl.StatusCode))
		return nil, nil
	}

	var out []finding.Finding
	done := map[string]bool{}
	for _, hc := range HeaderCases() {
		if done[hc.Name] {
			continue
		}
		hdr := http.Header{}
		hdr.Set(hc.Name, hc.Value)
		resp, err := d.client.Send(ctx, ep.request(tg, nil, hdr, "headers/"+strings.ToLower(hc.Name)))
		if err != nil {
			return nil, probe.Gap("headers", err)
		}
		if !d.changed(b, resp, url.Values{hc.Name: {hc.Value}}) {
			continue
		}
		done[hc.Name] = true
		out = append(out, headerFinding(tg, ep, hc, base, resp))
	}
	return out, nil
}

func headerFinding(tg target.Target, ep Endpoint, hc HeaderCase, base, resp *httpclient.Response) finding.Finding {
	tags := []string{"location:" + string(probe.Header)}
	if strings.Contains(resp.Location(), hc.Value) || reflects(resp.Body, hc.Value) && !reflects(base.Body, hc.Value) {
		tags = append(tags, "reflected")
	}
	u := tg.Resolve(ep.Path)
	return finding.New(finding.Finding{
		Category:    finding.ExposedPath,
		Severity:    finding.Info,
		Confidence:  finding.Informational,
		Technique:   "header-override",
		URL:         u.String(),
		Path:        u.Path,
		Parameter:   hc.Name,
		StatusCode:  resp.StatusCode,
		Description: fmt.Sprintf("header %s: %s changes the response of %s %s", hc.Name, hc.Value, ep.method(), ep.Path),
		Evidence: finding.Evidence{
			Payload:  hc.Name + ": " + hc.Value,
			Request:  resp.Request.String(),
			Response: resp.Summary(defaults.EvidenceExcerpt),
			Detail:   diff(base, resp),
		},
		Tags: tags,
	})
}
