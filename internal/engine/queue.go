package engine

import (
	"sync"

	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

// EventType tags what an Event asks the loop to do.
type EventType int

const (
	// EventTypeBootstrap loads the current user and the recent list.
	EventTypeBootstrap EventType = iota + 1
	// EventTypePush carries one raw push payload.
	EventTypePush
	// EventTypeActivate makes a conversation active.
	EventTypeActivate
	// EventTypeInteraction records a scroll, click or send in the active view.
	EventTypeInteraction
	// EventTypeSend submits a draft through the composer.
	EventTypeSend
	// EventTypeEdit asks the server to edit a message.
	EventTypeEdit
	// EventTypeDelete asks the server to delete a message.
	EventTypeDelete
	// EventTypeClear asks the server to clear the active conversation.
	EventTypeClear
	// EventTypeCompletion carries the result of a dispatched I/O task.
	EventTypeCompletion
)

func (t EventType) String() string {
	switch t {
	case EventTypeBootstrap:
		return "bootstrap"
	case EventTypePush:
		return "push"
	case EventTypeActivate:
		return "activate"
	case EventTypeInteraction:
		return "interaction"
	case EventTypeSend:
		return "send"
	case EventTypeEdit:
		return "edit"
	case EventTypeDelete:
		return "delete"
	case EventTypeClear:
		return "clear"
	case EventTypeCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// Interaction is a user gesture inside the active conversation.
type Interaction string

const (
	InteractionScroll Interaction = "scroll"
	InteractionClick  Interaction = "click"
	InteractionSend   Interaction = "send"
)

// Draft is a message as the user submitted it, before uploads.
type Draft struct {
	Content string
	Files   []upload.File
}

// Mutation identifies the message an edit or delete targets.
type Mutation struct {
	MessageID model.ID
	Content   string
}

// Event is one unit of work for the loop.
type Event struct {
	Type        EventType
	Payload     []byte
	Target      *model.Conversation
	Interaction Interaction
	Draft       *Draft
	Mutation    *Mutation
	Completion  *Completion
}

// eventQueue is the loop's unbounded FIFO inbox. Transport readers and task
// goroutines push into it and must never block, so it grows instead.
// A one-slot signal channel wakes the loop; it is closed with the queue.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

// push appends e and reports false once the queue is closed.
func (q *eventQueue) push(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.events = append(q.events, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop takes the oldest event without waiting.
func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}, false
	}
	e := q.events[0]
	q.events[0] = Event{}
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return e, true
}

// ready fires after a push. Several pushes may share one signal.
func (q *eventQueue) ready() <-chan struct{} { return q.signal }

func (q *eventQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
}

func (q *eventQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
