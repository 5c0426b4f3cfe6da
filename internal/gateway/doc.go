// Package gateway wires the mcp-feedback components into one process.
//
// # Overview
//
// The gateway is the explicit context object of the server. It owns every
// component and hands each one the collaborators it needs:
//
//	Gateway
//	├── invocation.Store      records, ordering, waiter signalling
//	├── observer.Broadcaster  lifecycle events for surfaces and the auditor
//	├── broker.Broker         the two tools and the ask/suspend/format protocol
//	├── mcp.Server            agent sessions on /mcp
//	├── surface.Handler       human surfaces on /ui/ws
//	├── supervisor.Supervisor the listener: bind, fallback, restart
//	└── store.SQLiteStore     optional audit ledger
//
// # HTTP Surface
//
// A single listener serves every route:
//
//   - POST/GET/DELETE /mcp - agent endpoint (Streamable HTTP)
//   - GET /ui/ws - human surface websocket
//   - GET /api/tool-calls - invocations, most recent first (?status=pending)
//   - GET /api/audit - audit ledger entries (?invocation_id=, ?limit=)
//   - GET /health - liveness check
//   - GET /health/ready - readiness check
//   - GET / - built-in browser UI speaking the /ui/ws protocol
//
// Surface websockets are hijacked connections, so a restart of the
// listener (port change, restartServer) leaves them open and they receive
// the portChanged event for the new address.
//
// # Settings
//
// The gateway implements surface.Controller. UpdateSettings validates the
// new values, persists them to the config file when one is known, and then
// applies them live: enabled tools and waiting policy on the broker, the
// auto-restart flag and port on the supervisor.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, gateway.Options{ConfigPath: path, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled, then shuts down
package gateway
