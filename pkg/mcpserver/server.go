package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/waftester/webscan/pkg/budget"
	"github.com/waftester/webscan/pkg/defaults"
	"github.com/waftester/webscan/pkg/jsonutil"
	"github.com/waftester/webscan/pkg/scan"
)

// The SDK defines LoggingLevel as a bare string type.
const (
	logInfo    mcp.LoggingLevel = "info"
	logWarning mcp.LoggingLevel = "warning"
)

const serverInstructions = `webscan runs web vulnerability checks against a single target.

Start with 'capabilities' to see what can be run. 'scan' runs a full
session (by default every capability whose inputs are present). 'discover'
and 'probe' run one capability. Every call gets its own request budget.

Findings carry a confidence: confirmed, likely or informational. Treat
informational findings as leads, not vulnerabilities.`

// Config holds MCP server configuration.
type Config struct {
	// Budget applies to every tool call separately.
	Budget budget.Budget

	// SessionOptions are passed to every scan session, e.g. transport
	// settings, tuning or a metrics observer.
	SessionOptions []scan.Option

	Logger *slog.Logger
}

// Server wraps the MCP server with the scan tools.
type Server struct {
	mcp    *mcp.Server
	config Config
	logger *slog.Logger
	ready  atomic.Bool
}

// New creates a server with every tool registered. A nil or zero config
// uses the default budget.
func New(cfg *Config) *Server {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Budget == (budget.Budget{}) {
		c.Budget = budget.Default()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	s := &Server{config: c, logger: c.Logger.With(slog.String("component", "mcp"))}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    defaults.ToolName,
			Title:   "webscan MCP Server",
			Version: defaults.Version,
		},
		&mcp.ServerOptions{Instructions: serverInstructions},
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// MarkReady makes /health report ready.
func (s *Server) MarkReady() { s.ready.Store(true) }

// IsReady reports whether MarkReady was called.
func (s *Server) IsReady() bool { return s.ready.Load() }

// RunStdio serves over stdin/stdout until ctx is done or the client
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler returns the HTTP transport:
//
//   - /health  readiness probe (GET, HEAD)
//   - /sse     legacy SSE transport
//   - /mcp, /  streamable HTTP transport
func (s *Server) HTTPHandler() http.Handler {
	get := func(*http.Request) *mcp.Server { return s.mcp }
	streamable := mcp.NewStreamableHTTPHandler(get, &mcp.StreamableHTTPOptions{})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/sse", mcp.NewSSEHandler(get, nil))
	mux.Handle("/mcp", streamable)
	mux.Handle("/", streamable)

	return s.wrap(mux)
}

type health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	status, body := http.StatusOK, health{Status: "ok", Service: defaults.ToolName + "-mcp"}
	if !s.IsReady() {
		status, body.Status = http.StatusServiceUnavailable, "starting"
	}
	data, _ := jsonutil.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

var (
	baseHeaders = map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}
	corsHeaders = map[string]string{
		"Access-Control-Allow-Methods":  "GET, POST, DELETE, OPTIONS",
		"Access-Control-Allow-Headers":  "Accept, Authorization, Content-Type, Last-Event-ID, Mcp-Session-Id, MCP-Protocol-Version",
		"Access-Control-Expose-Headers": "Mcp-Session-Id, MCP-Protocol-Version",
		"Access-Control-Max-Age":        "86400",
	}
)

// wrap applies response headers, answers CORS preflights for browser
// clients and turns handler panics into a JSON 500.
func (s *Server) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")
		for k, v := range baseHeaders {
			h.Set(k, v)
		}
		if origin := r.Header.Get("Origin"); origin != "" {
			h.Set("Access-Control-Allow-Origin", origin)
			for k, v := range corsHeaders {
				h.Set(k, v)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("mcp http handler panicked",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"status":"error","service":"` + defaults.ToolName + `-mcp"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// notifyProgress is a no-op unless the client sent a progress token.
func notifyProgress(ctx context.Context, req *mcp.CallToolRequest, progress, total float64, message string) {
	token := req.Params.GetProgressToken()
	if token == nil || req.Session == nil {
		return
	}
	_ = req.Session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

func logToSession(ctx context.Context, req *mcp.CallToolRequest, level mcp.LoggingLevel, data any) {
	if req.Session == nil {
		return
	}
	_ = req.Session.Log(ctx, &mcp.LoggingMessageParams{
		Level:  level,
		Logger: defaults.ToolName,
		Data:   data,
	})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := jsonutil.MarshalIndent(v, "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return textResult(string(data)), nil
}

// errorResult reports a tool failure in-band so the caller can correct
// its input, with optional recovery steps.
func errorResult(msg string, recovery ...string) *mcp.CallToolResult {
	type errResponse struct {
		Error         string   `json:"error"`
		RecoverySteps []string `json:"recovery_steps,omitempty"`
	}
	text := msg
	if data, err := jsonutil.MarshalIndent(errResponse{Error: msg, RecoverySteps: recovery}, "  "); err == nil {
		text = string(data)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func boolPtr(b bool) *bool { return &b }

func parseArgs(req *mcp.CallToolRequest, dst any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := jsonutil.Unmarshal(req.Params.Arguments, dst); err != nil {
		return fmt.Errorf("parsing tool arguments: %w", err)
	}
	return nil
}
