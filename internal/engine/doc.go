// Package engine implements the client-side conversation sync loop.
//
// The engine reconciles three sources into one local view: the bulk message
// fetch of the active conversation, the live push stream, and the user's own
// mutations (send, edit, delete, mark-read, clear).
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Host callbacks (OnPushPayload, OnActivate, OnInteraction, OnUserSend, ...)
// enqueue events. Run dequeues them one at a time; only that goroutine
// touches the session, the conversation store, the unread ledger and the
// recent list.
//
// I/O As Tasks:
// Every REST call, upload and socket send runs through a Dispatcher. Its
// result comes back as a Completion event, so a slow request never blocks
// the loop and never mutates state from another goroutine.
//
// Generation Tokens:
// Each activation takes a new epoch and each bulk load a new load generation
// from the Clock. Completions carry the token they were issued with and are
// discarded when it no longer matches (StaleStateFailure). Push changes for
// the active conversation that land while its load is in flight are applied
// immediately and also kept in a replay log, which is re-applied on top of
// the loaded snapshot.
//
// Read Receipts:
// The receipt state moves Unmarked → Marking → Marked and resets on every
// activation. A mark-read call is issued only after the user has interacted
// and the first unread message is visible; at most one succeeds per
// activation. A failed call returns the state to Unmarked.
//
// No Optimistic Insert:
// A sent message appears only when the server echoes it as a create event.
// Creates are idempotent by message id, so a repeated echo is harmless.
package engine
