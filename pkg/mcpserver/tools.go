package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/waftester/webscan/pkg/aggregate"
	"github.com/waftester/webscan/pkg/finding"
	"github.com/waftester/webscan/pkg/scan"
	"github.com/waftester/webscan/pkg/wordlist"
)

// discoveryTools are served by the discover tool; every other capability
// is served by probe.
var discoveryTools = []string{scan.CapDiscover, scan.CapCommonFiles, scan.CapAPIEndpoints}

func probeNames() []string {
	var out []string
	for _, name := range scan.Names() {
		if !slices.Contains(discoveryTools, name) {
			out = append(out, name)
		}
	}
	return out
}

func (s *Server) registerTools() {
	s.addCapabilitiesTool()
	s.addScanTool()
	s.addDiscoverTool()
	s.addProbeTool()
}

// Schema fragments shared by the tools.
var (
	targetSchema = map[string]any{
		"type":        "string",
		"description": "Base URL of the application, http:// or https://. Paths are resolved against it.",
	}
	wordsSchema = map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": "Path segments to try. Takes precedence over 'wordlist' and 'profile'.",
	}
	extensionsSchema = map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": "Extensions appended to every word, e.g. [\".bak\", \".php\"]. The bare word is always tried.",
	}
	pointsSchema = map[string]any{
		"type":        "array",
		"description": "Injection points for sqli, xss, lfi and open-redirect.",
		"items": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"method":    map[string]any{"type": "string"},
				"path":      map[string]any{"type": "string", "description": "Relative path; for path points it contains {parameter}."},
				"parameter": map[string]any{"type": "string"},
				"location":  map[string]any{"type": "string", "enum": []string{"query", "form", "path", "header", "cookie"}},
				"original":  map[string]any{"type": "string", "description": "Benign value used for baselines."},
				"extra":     map[string]any{"type": "object", "description": "Other parameters sent unchanged."},
				"header":    map[string]any{"type": "object", "description": "Headers sent with every request."},
			},
			"required": []string{"path", "parameter", "location"},
		},
	}
	// Parameter search, auth, IDOR, session and privilege inputs are passed
	// through as-is.
	passthroughSchema = map[string]any{
		"param_endpoints": map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": "Endpoints searched by params and headers: {path, method, location: query|form, extra}."},
		"auth_endpoints":  map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": "Protected endpoints for auth-bypass: {path, method, login_path}."},
		"idor":            map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": "Requests carrying an object identifier for idor."},
		"sessions":        map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": "Login or token-issuing requests for session."},
		"privilege":       map[string]any{"type": "object", "description": "Privileged request plus low-privilege identity for privilege-escalation."},
	}
)

func paramsProperties(extra map[string]any) map[string]any {
	props := map[string]any{
		"target":     targetSchema,
		"words":      wordsSchema,
		"wordlist":   map[string]any{"type": "string", "description": "Wordlist file path, or builtin:<name>."},
		"profile":    map[string]any{"type": "string", "description": "Built-in discovery profile.", "enum": wordlist.ProfileNames()},
		"extensions": extensionsSchema,
		"points":     pointsSchema,
	}
	for k, v := range passthroughSchema {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// ---------------------------------------------------------------------------
// capabilities
// ---------------------------------------------------------------------------

func (s *Server) addCapabilitiesTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "capabilities",
			Title: "List Capabilities",
			Description: `Lists every check webscan can run: name, finding category, default severity and what it needs.

Sends no traffic. Use the names with 'scan' (capabilities field), 'discover' or 'probe'.`,
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				OpenWorldHint:  boolPtr(false),
				Title:          "List Capabilities",
			},
		},
		s.handleCapabilities,
	)
}

type capabilityInfo struct {
	Name        string           `json:"name"`
	Category    finding.Category `json:"category"`
	Severity    finding.Severity `json:"severity"`
	Description string           `json:"description"`
	Tool        string           `json:"tool"`
}

func (s *Server) handleCapabilities(_ context.Context, _ *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caps := scan.Capabilities()
	out := make([]capabilityInfo, 0, len(caps))
	for _, c := range caps {
		tool := "probe"
		if slices.Contains(discoveryTools, c.Name) {
			tool = "discover"
		}
		out = append(out, capabilityInfo{
			Name:        c.Name,
			Category:    c.Category,
			Severity:    c.Category.DefaultSeverity(),
			Description: c.Description,
			Tool:        tool,
		})
	}
	return jsonResult(out)
}

// ---------------------------------------------------------------------------
// scan
// ---------------------------------------------------------------------------

func (s *Server) addScanTool() {
	props := paramsProperties(map[string]any{
		"capabilities": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string", "enum": scan.Names()},
			"description": "Capabilities to run. Empty runs every capability whose inputs are present.",
		},
	})
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "scan",
			Title: "Run Scan Session",
			Description: `Runs a scan session against one target and returns the full report.

The target must answer first; otherwise the call fails with 'target unreachable'. Capabilities run concurrently under one rate limit and request cap. A truncated or degraded scan still returns a report with the flags set in 'summary'.

EXAMPLE INPUTS:
• Default sweep: {"target": "https://app.example.com"}
• Discovery with extensions: {"target": "https://app.example.com", "capabilities": ["discover"], "profile": "small", "extensions": [".bak"]}
• Injection: {"target": "https://app.example.com", "capabilities": ["sqli", "xss"], "points": [{"path": "/item", "parameter": "id", "location": "query", "original": "1"}]}`,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": props,
				"required":   []string{"target"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:    false,
				DestructiveHint: boolPtr(false),
				OpenWorldHint:   boolPtr(true),
				Title:           "Run Scan Session",
			},
		},
		s.handleScan,
	)
}

func (s *Server) handleScan(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args scan.Request
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	sess, err := s.newSession(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("cannot start session: %v", err)), nil
	}
	logToSession(ctx, req, logInfo, fmt.Sprintf("scan session %s started for %s", sess.ID(), args.Target))

	report, err := sess.Run(ctx, args)
	if err != nil {
		return toolError(err), nil
	}
	notifyProgress(ctx, req, 1, 1, fmt.Sprintf("%d findings", report.Summary.Total))
	return jsonResult(report)
}

// ---------------------------------------------------------------------------
// discover
// ---------------------------------------------------------------------------

func (s *Server) addDiscoverTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "discover",
			Title: "Discover Content",
			Description: `Finds reachable paths on the target, filtering soft-404 responses.

MODES (capability):
• discover: recursive wordlist discovery (words, wordlist or profile required)
• common-files: fixed sweep of well-known files (.git/HEAD, .env, backups)
• api-endpoints: fixed sweep of API and documentation paths

Returns exposed-path findings and the session summary.`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"capability": map[string]any{"type": "string", "enum": discoveryTools, "default": scan.CapDiscover},
					"target":     targetSchema,
					"words":      wordsSchema,
					"wordlist":   map[string]any{"type": "string", "description": "Wordlist file path, or builtin:<name>."},
					"profile":    map[string]any{"type": "string", "enum": wordlist.ProfileNames()},
					"extensions": extensionsSchema,
				},
				"required": []string{"target"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:   true,
				IdempotentHint: true,
				OpenWorldHint:  boolPtr(true),
				Title:          "Discover Content",
			},
		},
		s.handleDiscover,
	)
}

type invokeArgs struct {
	Capability string `json:"capability"`
	scan.Params `json:",inline"`
}

type invokeResult struct {
	SessionID  string            `json:"session_id"`
	Capability string            `json:"capability"`
	Findings   []finding.Finding `json:"findings"`
	Summary    scan.Summary      `json:"summary"`
}

func (s *Server) handleDiscover(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args invokeArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Capability == "" {
		args.Capability = scan.CapDiscover
	}
	if !slices.Contains(discoveryTools, args.Capability) {
		return errorResult(fmt.Sprintf("%q is not a discovery capability", args.Capability),
			"Use one of: discover, common-files, api-endpoints.",
			"Use the 'probe' tool for vulnerability checks."), nil
	}
	return s.invoke(ctx, req, args)
}

// ---------------------------------------------------------------------------
// probe
// ---------------------------------------------------------------------------

func (s *Server) addProbeTool() {
	s.mcp.AddTool(
		&mcp.Tool{
			Name:  "probe",
			Title: "Run Vulnerability Probe",
			Description: `Runs one vulnerability probe over caller-supplied inputs.

INPUTS PER CAPABILITY:
• sqli, xss, lfi, open-redirect: 'points'
• params, headers: 'param_endpoints'
• auth-bypass: 'auth_endpoints'
• idor: 'idor'
• session: 'sessions'
• privilege-escalation: 'privilege'

A probe that could not complete is reported in summary.coverage_gaps; it is not an error.`,
			InputSchema: map[string]any{
				"type": "object",
				"properties": paramsProperties(map[string]any{
					"capability": map[string]any{"type": "string", "enum": probeNames()},
				}),
				"required": []string{"capability", "target"},
			},
			Annotations: &mcp.ToolAnnotations{
				ReadOnlyHint:    false,
				DestructiveHint: boolPtr(false),
				OpenWorldHint:   boolPtr(true),
				Title:           "Run Vulnerability Probe",
			},
		},
		s.handleProbe,
	)
}

func (s *Server) handleProbe(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args invokeArgs
	if err := parseArgs(req, &args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if slices.Contains(discoveryTools, args.Capability) {
		return errorResult(fmt.Sprintf("%q is a discovery capability", args.Capability),
			"Use the 'discover' tool for it."), nil
	}
	return s.invoke(ctx, req, args)
}

func (s *Server) invoke(ctx context.Context, req *mcp.CallToolRequest, args invokeArgs) (*mcp.CallToolResult, error) {
	sess, err := s.newSession(ctx, req)
	if err != nil {
		return errorResult(fmt.Sprintf("cannot start session: %v", err)), nil
	}
	fs, err := sess.Invoke(ctx, args.Capability, args.Params)
	if err != nil {
		return toolError(err), nil
	}
	summary := sess.Summary()
	if summary.CoverageGaps > 0 {
		logToSession(ctx, req, logWarning, summary.Gaps)
	}
	if fs == nil {
		fs = []finding.Finding{}
	}
	return jsonResult(invokeResult{
		SessionID:  sess.ID(),
		Capability: args.Capability,
		Findings:   fs,
		Summary:    summary,
	})
}

// newSession builds a fresh session for one call. Findings are streamed
// to the client as log messages while the call runs.
func (s *Server) newSession(ctx context.Context, req *mcp.CallToolRequest) (*scan.Session, error) {
	var n atomic.Int64
	notify := aggregate.ObserverFunc(func(f finding.Finding, replaced bool) {
		if !replaced {
			n.Add(1)
		}
		logToSession(ctx, req, logInfo, map[string]any{
			"category":   f.Category,
			"confidence": f.Confidence,
			"path":       f.Path,
			"parameter":  f.Parameter,
		})
		notifyProgress(ctx, req, float64(n.Load()), 0, fmt.Sprintf("%s %s", f.Category, f.Path))
	})
	opts := append(slices.Clone(s.config.SessionOptions),
		scan.WithLogger(s.logger),
		scan.WithObservers(notify))
	return scan.NewSession(s.config.Budget, opts...)
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, scan.ErrTargetUnreachable):
		return errorResult(err.Error(),
			"Check that the target URL is correct and the host is up.",
			"Check proxy settings if the target is only reachable through one.")
	case errors.Is(err, scan.ErrUnknownCapability):
		return errorResult(err.Error(), "Call 'capabilities' for the valid names.")
	case errors.Is(err, scan.ErrInvalidParams):
		return errorResult(err.Error(),
			"'target' must be an absolute http(s) URL.",
			"Each capability needs its inputs; see the 'probe' tool description.")
	default:
		return errorResult(err.Error())
	}
}
