// Package mcp hosts agent sessions on the Streamable HTTP transport.
//
// # Overview
//
// Agents (Claude Code, Cursor, custom clients) connect to a single endpoint:
//
//   - POST /mcp - JSON-RPC messages (initialize, tools/list, tools/call, ...)
//   - GET /mcp - server-to-client notification stream for an open session
//   - DELETE /mcp - terminate a session
//
// Sessions are keyed by the Mcp-Session-Id header. A session is created only
// by an initialize request that carries no session ID; the new ID is returned
// in the Mcp-Session-Id response header and must accompany every later request.
//
// Protocol framing, tool listing and tool dispatch are handled by the
// go-sdk runtime. This package owns the mapping from session IDs to
// transports and the error envelopes returned when no session matches.
//
// # Errors
//
// A POST without a usable session that is not an initialize request gets
// HTTP 400 with JSON-RPC error -32000 "Bad Request: No valid session ID
// provided". GET and DELETE with an unknown or missing session get HTTP 400
// "Invalid or missing session ID". A panic while handling a request is
// recovered and answered with HTTP 500 and JSON-RPC error -32603; other
// sessions are unaffected.
//
// # Usage
//
//	srv, err := mcp.NewServer(mcp.Config{Server: b.Server(), Logger: logger})
//	mux := http.NewServeMux()
//	srv.RegisterRoutes(mux)
//
// Point an agent at it:
//
//	{
//	  "mcpServers": {
//	    "feedback": {"url": "http://localhost:7423/mcp"}
//	  }
//	}
package mcp
