// Package mcpserver exposes the scan capability table as Model Context
// Protocol tools so that an external orchestrator can drive scans.
//
// # Tools
//
//   - capabilities: the stable capability table, no traffic
//   - scan:         a full scan session, returns the report
//   - discover:     content discovery, common files or API endpoints
//   - probe:        one vulnerability probe over caller-supplied inputs
//
// Every call runs in its own scan session with the configured budget, so
// concurrent calls never share a request cap or limiter. Inputs and
// outputs are JSON; the server makes no decisions of its own.
//
// # Transports
//
//   - stdio: the default, for local integrations
//   - HTTP:  streamable HTTP plus legacy SSE, with a /health probe
//
// # Usage
//
//	srv := mcpserver.New(&mcpserver.Config{Budget: budget.Default()})
//	err := srv.RunStdio(ctx)
package mcpserver
