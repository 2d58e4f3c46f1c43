package main

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waftester/webscan/pkg/config"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/jsonutil"
	"github.com/waftester/webscan/pkg/output"
	"github.com/waftester/webscan/pkg/output/exitcode"
	"github.com/waftester/webscan/pkg/params"
	"github.com/waftester/webscan/pkg/probe"
	"github.com/waftester/webscan/pkg/scan"
	"github.com/waftester/webscan/pkg/testutil"
)

func site() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "<html><body>welcome home</body></html>")
	})
	mux.HandleFunc("/admin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>admin console index</body></html>")
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><p>Results for %s</p></body></html>", r.URL.Query().Get("q"))
	})
	return mux
}

// run executes the CLI and returns the exit code and both streams.
func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	t.Setenv("WEBSCAN_PROXY", "")
	t.Setenv("WEBSCAN_OTLP_ENDPOINT", "")
	var stdout, stderr bytes.Buffer
	code := execute(append(args, "--no-color"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, stdout, _ := run(t, "--version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, defaults.Version)
}

func TestCapabilitiesCommand(t *testing.T) {
	code, stdout, _ := run(t, "capabilities")
	require.Equal(t, 0, code)
	for _, c := range scan.Capabilities() {
		assert.Contains(t, stdout, c.Name)
	}
	assert.Contains(t, stdout, "sql-injection")
}

func TestDiscover_WritesReportAndFailsOnFindings(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	path := filepath.Join(t.TempDir(), "report.json")

	code, _, stderr := run(t, "discover", "--words", "admin,missing", "--rate", "1000", "-o", path, tg.String())
	assert.Equal(t, int(exitcode.Findings), code, stderr)
	assert.Contains(t, stderr, "/admin")
	assert.Contains(t, stderr, "Summary")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report scan.Report
	require.NoError(t, jsonutil.Unmarshal(data, &report))
	assert.Equal(t, []string{scan.CapDiscover}, report.Summary.Capabilities)

	var paths []string
	for _, f := range report.Findings {
		assert.Equal(t, finding.ExposedPath, f.Category)
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{"/admin"}, paths)
}

func TestDiscover_NoFindingsSucceeds(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	code, stdout, stderr := run(t, "discover", "--words", "missing", "--rate", "1000", "--silent", tg.String())
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "No findings")
	assert.True(t, jsonutil.Valid([]byte(stdout)), "report goes to stdout by default")
}

func TestParamsCommand_FindsSearchParameter(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	path := filepath.Join(t.TempDir(), "report.json")

	code, _, stderr := run(t, "probe", "params", "--param-path", "/search", "--fail-on", "informational", "--rate", "1000", "-o", path, tg.String())
	assert.Equal(t, int(exitcode.Findings), code, stderr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report scan.Report
	require.NoError(t, jsonutil.Unmarshal(data, &report))
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "q", report.Findings[0].Parameter)
	assert.Equal(t, finding.Informational, report.Findings[0].Confidence)
}

func TestParseParamPath(t *testing.T) {
	ep, err := parseParamPath("/search")
	require.NoError(t, err)
	assert.Equal(t, params.Endpoint{Path: "/search"}, ep)

	ep, err = parseParamPath("FORM:/login")
	require.NoError(t, err)
	assert.Equal(t, params.Endpoint{Path: "/login", Location: probe.Form}, ep)

	ep, err = parseParamPath("http://app.example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "http://app.example.com/a", ep.Path)

	_, err = parseParamPath("cookie:/x")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestProbe_XSSStreamsJSONL(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	code, stdout, stderr := run(t, "probe", "xss", "-p", "query:/search:q=shoes", "--format", "jsonl", "--rate", "1000", tg.String())
	assert.Equal(t, int(exitcode.Findings), code, stderr)

	var records []output.Record
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		var r output.Record
		require.NoError(t, jsonutil.Unmarshal(sc.Bytes(), &r))
		records = append(records, r)
	}
	require.Len(t, records, 2)
	assert.Equal(t, output.RecordFinding, records[0].Type)
	assert.Equal(t, finding.XSSReflected, records[0].Finding.Category)
	assert.Equal(t, output.RecordSummary, records[1].Type)
	assert.Equal(t, 1, records[1].Summary.Total)
	assert.Equal(t, records[0].SessionID, records[1].SessionID)
}

func TestScan_ProfileFile(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	dir := t.TempDir()
	profile := filepath.Join(dir, "profile.yaml")
	report := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(profile, []byte(fmt.Sprintf(`
scan:
  target: %s
  capabilities: [discover]
  words: [admin]
budget:
  requests_per_second: 1000
  max_depth: 0
output:
  path: %s
  fail_on: confirmed
`, tg.String(), report)), 0o600))

	code, _, stderr := run(t, "scan", "--config", profile)
	assert.Equal(t, int(exitcode.Findings), code, stderr)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var r scan.Report
	require.NoError(t, jsonutil.Unmarshal(data, &r))
	assert.Equal(t, 1, r.Summary.Total)
}

func TestExitCodes(t *testing.T) {
	tg, _ := testutil.Serve(t, site())
	dead := testutil.DeadTarget(t)

	tests := []struct {
		name string
		args []string
		want exitcode.Code
	}{
		{"unreachable target", []string{"scan", "-c", "common-files", dead.String()}, exitcode.Target},
		{"unknown probe", []string{"probe", "nope", tg.String()}, exitcode.Configuration},
		{"discovery name as probe", []string{"probe", "discover", tg.String()}, exitcode.Configuration},
		{"bad point", []string{"probe", "sqli", "-p", "query-search-q", tg.String()}, exitcode.Configuration},
		{"probe without inputs", []string{"probe", "sqli", tg.String()}, exitcode.Configuration},
		{"bad param path", []string{"probe", "params", "--param-path", "header:/x", tg.String()}, exitcode.Configuration},
		{"missing target", []string{"scan", "-c", "common-files"}, exitcode.Configuration},
		{"unknown capability", []string{"scan", "-c", "nope", tg.String()}, exitcode.Configuration},
		{"bad mode", []string{"discover", "--mode", "crawl", tg.String()}, exitcode.Configuration},
		{"bad fail-on", []string{"scan", "--fail-on", "maybe", tg.String()}, exitcode.Configuration},
		{"bad format", []string{"scan", "--format", "xml", tg.String()}, exitcode.Configuration},
		{"bad header", []string{"scan", "-H", "no-colon", tg.String()}, exitcode.Configuration},
		{"missing profile", []string{"scan", "--config", filepath.Join(t.TempDir(), "none.yaml")}, exitcode.Configuration},
		{"unknown flag", []string{"scan", "--bogus"}, exitcode.Configuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			assert.Equal(t, int(tt.want), code, stderr)
			assert.Contains(t, stderr, "error:")
		})
	}
}

func TestParsePoint(t *testing.T) {
	tests := []struct {
		in      string
		want    probe.InjectionPoint
		wantErr bool
	}{
		{in: "query:/search:q=shoes", want: probe.InjectionPoint{Path: "/search", Parameter: "q", Location: probe.Query, Original: "shoes"}},
		{in: "FORM:/login:user", want: probe.InjectionPoint{Path: "/login", Parameter: "user", Location: probe.Form}},
		{in: "path:/item/{id}:id=7", want: probe.InjectionPoint{Path: "/item/{id}", Parameter: "id", Location: probe.Path, Original: "7"}},
		{in: "path:/item:id", wantErr: true},
		{in: "body:/x:y", wantErr: true},
		{in: "query", wantErr: true},
		{in: "query:/search", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePoint(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
