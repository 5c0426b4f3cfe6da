// Package observer pushes invocation lifecycle events to human-facing surfaces.
//
// Any number of observers may be attached at once; every event is delivered
// to each of them. Delivery is best-effort: an observer whose buffer is full
// misses the event, and events published while nobody is attached are
// dropped. A surface that attaches late catches up by listing the invocation
// store.
//
// Event types:
//
//   - tool-call: a new invocation was created (data: invocation.Record)
//   - tool-call-updated: an invocation completed or was cancelled
//   - port-changed: the agent endpoint is now listening on a new port
//     (data: PortChange)
package observer
