// Package supervisor runs the HTTP listener for the agent endpoint.
//
// The supervisor moves through stopped, starting, running and stopping.
// Start binds the configured port; when that port is taken it keeps trying
// random ports between 7424 and 9999 until one binds, and announces the
// result with a single port-changed event. Stop closes every agent session
// before shutting the listener down, so long-waiting tool calls do not hold
// shutdown open. Restart is Stop, a short delay, then Start.
//
// All lifecycle operations are serialized: a Restart racing an UpdatePort
// runs one after the other, never interleaved.
package supervisor
