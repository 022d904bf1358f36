// Package harness runs scripted conversation scenarios against the real sync
// engine.
//
// A scenario describes what the server holds, a sequence of host inputs and
// the expected outcome. The harness wires the engine to a scripted backend
// (REST, push transport and upload endpoint in one), a recording sink and a
// manual dispatcher, so every request completes exactly when a step says so.
// Everything the engine does toward the outside (requests, sends,
// notifications, unread changes, divider moves and errors) is appended to a
// trace that can be compared against a golden file.
//
// # Scenario Format
//
//	name: mark_read_once
//	description: "Scrolling twice marks the conversation read once"
//	user: { id: "1", username: me }
//	server:
//	  recents:
//	    - { conversation: "direct:2", name: bob }
//	  messages:
//	    "direct:2":
//	      - { id: "10", sender: "2", content: hi, at: "2024-01-01T10:00:00Z" }
//	  fail:
//	    mark_read: [1]
//	  echo: true
//	viewport:
//	  visible: ["10"]
//	steps:
//	  - do: activate
//	    conversation: "direct:2"
//	    name: bob
//	  - do: settle
//	  - do: interact
//	    interaction: scroll
//	assertions:
//	  - type: receipt
//	    state: marked
//
// # Steps
//
//   - bootstrap: fetch the current user and recent list
//   - activate: open a conversation (conversation, name)
//   - push: deliver a push payload (event, or raw for undecodable bytes)
//   - interact: scroll, click or send gesture; visible replaces the viewport
//   - send: submit content and files through the composer
//   - edit, delete: mutate a message by id
//   - clear: clear the active conversation
//   - complete: run the oldest pending task called task
//   - settle: run tasks until nothing is pending
//   - advance: move the wall clock by duration
//
// Every step drains the engine queue afterwards. A step with expect_error
// fails the scenario unless it produced an error of that kind.
//
// # Assertion Types
//
//   - messages: ordered ids (and optionally contents) of a conversation
//   - unread: unread count of a conversation, or the total badge
//   - day_boundaries: day separators drawn in a conversation
//   - trace_count: occurrences of a trace event type and op
//   - receipt: read-receipt state of the active activation
//   - sent: a command written to the push transport contains payload
//   - recent_order: the recent list, top first
//   - notice: a notification with level and message substring
//   - errors: the failure kinds raised, in order
package harness
