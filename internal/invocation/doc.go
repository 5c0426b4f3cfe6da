// Package invocation tracks tool calls that are waiting on a human.
//
// # Overview
//
// Every call to a human-input tool becomes a Record in the Store. A record is
// created pending and leaves that state exactly once, either completed by a
// human response or cancelled. The Store is the only shared mutable state of
// the feedback core; everything else receives copies.
//
// # Records
//
//	type Record struct {
//	    ID           string     // UUID, unique for the process lifetime
//	    Tool         ToolName   // request-user-feedback | get-user-confirmation
//	    Arguments    Arguments  // FeedbackArgs or ConfirmationArgs
//	    CreatedAt    time.Time
//	    Status       Status     // pending -> completed | cancelled
//	    Result       *string    // set iff completed
//	    UserFeedback string     // raw human response
//	}
//
// # Waiting
//
// Each record owns a done channel that Resolve and Cancel close while holding
// the store lock. Wait selects on it, so a suspended tool call wakes as soon as
// the human answers, without polling:
//
//	rec := store.Create(invocation.FeedbackArgs{Message: "ping"})
//	go store.Resolve(rec.ID, "pong")
//	final, err := store.Wait(ctx, rec.ID)
//
// # At-most-once
//
// Resolve succeeds only while a record is pending. A second Resolve (or a
// Resolve racing a Cancel) returns false and leaves the first answer intact.
//
// # Capacity
//
// NewStore(maxEntries) bounds history. When full, the oldest record that is no
// longer pending is evicted. Pending records are never evicted, so the store
// may exceed the cap while many calls are outstanding.
package invocation
