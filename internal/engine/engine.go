package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/ledger"
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

// Engine is the single-writer conversation sync loop.
//
// CRITICAL: All state (session, store, ledger, recent list) is mutated only
// by the goroutine running Run or Drain. Host callbacks (OnPushPayload,
// OnActivate, OnUserSend, ...) only enqueue events and are safe from any
// goroutine.
//
// Thread-safety model:
//   - On*/Bootstrap: safe from any goroutine
//   - Run/Drain: must be called from exactly one goroutine at a time
//   - Session/Messages/Days/Unread/Recent: loop goroutine only, or after
//     Drain returns in tests
type Engine struct {
	api      API
	sender   Sender
	sink     Sink
	uploader Uploader
	viewport Viewport
	cache    RecentCache
	dispatch Dispatcher
	ids      IDGenerator
	clock    *Clock
	metrics  *Metrics
	logger   *slog.Logger

	restMutations bool

	queue   *eventQueue
	ctx     context.Context
	session Session
	store   *convstore.Store
	ledger  *ledger.Ledger
	recents *ledger.Recents

	// replay holds live changes applied to the active conversation while
	// its bulk load is in flight.
	replay []replayEntry

	// early holds push payloads that arrived before the user was known.
	early [][]byte

	recentsLoaded bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithUser sets the signed-in user up front, e.g. from the bearer token's
// subject, so push events can be processed before bootstrap completes.
func WithUser(id model.ID) EngineOption {
	return func(e *Engine) { e.session.UserID = id }
}

// WithUploader sets the attachment pipeline. Without one, drafts with files
// are rejected.
func WithUploader(u Uploader) EngineOption {
	return func(e *Engine) { e.uploader = u }
}

// WithViewport sets the visibility oracle. Default: AllVisible.
func WithViewport(v Viewport) EngineOption {
	return func(e *Engine) { e.viewport = v }
}

// WithCache sets the recent-list cache.
func WithCache(c RecentCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithDispatcher sets how I/O tasks run. Default: GoDispatcher.
func WithDispatcher(d Dispatcher) EngineOption {
	return func(e *Engine) { e.dispatch = d }
}

// WithIDGenerator sets the activation id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) { e.ids = g }
}

// WithClock sets the generation clock.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithRESTMutations routes edit and delete through the REST endpoints
// instead of the push transport.
func WithRESTMutations() EngineOption {
	return func(e *Engine) { e.restMutations = true }
}

// New creates an Engine that fetches through api, sends through sender and
// renders into sink.
func New(api API, sender Sender, sink Sink, opts ...EngineOption) *Engine {
	e := &Engine{
		api:      api,
		sender:   sender,
		sink:     sink,
		viewport: AllVisible{},
		dispatch: GoDispatcher{},
		ids:      UUIDv7Generator{},
		clock:    NewClock(),
		logger:   slog.Default(),
		queue:    newEventQueue(),
		ctx:      context.Background(),
		store:    convstore.New(),
		ledger:   ledger.New(),
		recents:  ledger.NewRecents(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Enqueue submits an event for processing by the loop.
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.push(ev)
}

// Bootstrap fetches the current user and the recent list.
func (e *Engine) Bootstrap() bool {
	return e.Enqueue(Event{Type: EventTypeBootstrap})
}

// OnPushPayload hands one raw push message to the ingestor.
func (e *Engine) OnPushPayload(data []byte) bool {
	payload := make([]byte, len(data))
	copy(payload, data)
	return e.Enqueue(Event{Type: EventTypePush, Payload: payload})
}

// OnActivate makes conv the active conversation.
func (e *Engine) OnActivate(conv model.Conversation) bool {
	return e.Enqueue(Event{Type: EventTypeActivate, Target: &conv})
}

// OnInteraction records a user gesture in the active conversation.
func (e *Engine) OnInteraction(kind Interaction) bool {
	return e.Enqueue(Event{Type: EventTypeInteraction, Interaction: kind})
}

// OnUserSend submits a message to the active conversation.
func (e *Engine) OnUserSend(content string, files ...upload.File) bool {
	return e.Enqueue(Event{Type: EventTypeSend, Draft: &Draft{Content: content, Files: files}})
}

// OnEdit asks the server to replace the content of message id.
func (e *Engine) OnEdit(id model.ID, content string) bool {
	return e.Enqueue(Event{Type: EventTypeEdit, Mutation: &Mutation{MessageID: id, Content: content}})
}

// OnDelete asks the server to delete message id.
func (e *Engine) OnDelete(id model.ID) bool {
	return e.Enqueue(Event{Type: EventTypeDelete, Mutation: &Mutation{MessageID: id}})
}

// OnClear asks the server to clear the active conversation.
func (e *Engine) OnClear() bool {
	return e.Enqueue(Event{Type: EventTypeClear})
}

// Run starts the event loop. It blocks until ctx is cancelled or Stop is
// called.
//
// ERROR HANDLING: a failed event is logged with its context and processing
// continues. Nothing that happens to one event stops the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.ctx = ctx
	e.logger.Info("engine starting", "user", e.session.UserID)

	for {
		event, ok := e.queue.pop()
		if ok {
			if err := e.processEvent(ctx, event); err != nil {
				e.logEventError(event, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.queue.close()
			return ctx.Err()

		case <-e.queue.ready():
			// The signal channel closes with the queue. A coalesced signal
			// can also fire with nothing left to dequeue.
			if e.queue.size() == 0 && e.stopped() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain processes queued events until the queue is empty, without waiting
// for more. Errors are logged as in Run and also returned, joined.
func (e *Engine) Drain(ctx context.Context) error {
	e.ctx = ctx
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		event, ok := e.queue.pop()
		if !ok {
			return errors.Join(errs...)
		}
		if err := e.processEvent(ctx, event); err != nil {
			e.logEventError(event, err)
			errs = append(errs, err)
		}
	}
}

// Stop closes the queue; Run returns once it is empty.
func (e *Engine) Stop() {
	e.queue.close()
}

func (e *Engine) stopped() bool {
	return e.queue.isClosed()
}

// processEvent routes an event to its handler.
// CRITICAL: loop goroutine only.
func (e *Engine) processEvent(ctx context.Context, event Event) error {
	switch event.Type {
	case EventTypeBootstrap:
		e.bootstrap()
		return nil

	case EventTypePush:
		return e.ingest(event.Payload)

	case EventTypeActivate:
		if event.Target == nil {
			return fmt.Errorf("activate event missing target")
		}
		return e.activate(*event.Target)

	case EventTypeInteraction:
		e.interact(event.Interaction)
		return nil

	case EventTypeSend:
		if event.Draft == nil {
			return fmt.Errorf("send event missing draft")
		}
		return e.submit(*event.Draft)

	case EventTypeEdit, EventTypeDelete:
		if event.Mutation == nil {
			return fmt.Errorf("%s event missing mutation", event.Type)
		}
		action := model.ActionEdit
		if event.Type == EventTypeDelete {
			action = model.ActionDelete
		}
		return e.mutate(action, *event.Mutation)

	case EventTypeClear:
		return e.clear()

	case EventTypeCompletion:
		if event.Completion == nil {
			return fmt.Errorf("completion event missing result")
		}
		return e.complete(ctx, event.Completion)

	default:
		return fmt.Errorf("unknown event type: %d", event.Type)
	}
}

// complete routes a task result to its handler.
func (e *Engine) complete(ctx context.Context, c *Completion) error {
	switch c.Kind {
	case CompletionUser:
		return e.onUser(c)
	case CompletionRecents, CompletionCachedRecents:
		return e.onRecents(c)
	case CompletionLoad:
		return e.onLoad(c)
	case CompletionMarkRead:
		return e.onMarkRead(c)
	case CompletionClear:
		return e.onCleared(c)
	case CompletionUpload:
		return e.onUploaded(c)
	case CompletionSend:
		return e.onSent(c)
	case CompletionMutation:
		return e.onMutated(c)
	default:
		return fmt.Errorf("unknown completion kind: %d", c.Kind)
	}
}

// run hands task to the dispatcher. The task's completion, when non-nil,
// re-enters the queue.
func (e *Engine) run(name string, task func(ctx context.Context) *Completion) {
	ctx := e.ctx
	e.dispatch.Dispatch(name, func() {
		c := task(ctx)
		if c == nil {
			return
		}
		if !e.queue.push(Event{Type: EventTypeCompletion, Completion: c}) {
			e.logger.Debug("completion dropped: engine stopped", "task", name)
		}
	})
}

// logEventError logs a failed event at a level matching its failure kind.
func (e *Engine) logEventError(event Event, err error) {
	attrs := []any{
		"event_type", event.Type.String(),
		"conversation", e.session.Active.Key(),
		"activation", e.session.ActivationID,
		"error", err,
	}
	if event.Completion != nil {
		attrs = append(attrs, "task", event.Completion.Kind.String())
	}

	kind, ok := failureKind(err)
	switch {
	case !ok:
		e.logger.Error("event processing failed", attrs...)
	case kind == StaleStateFailure:
		e.logger.Debug("stale completion discarded", attrs...)
	case kind == ValidationFailure:
		e.logger.Info("event rejected", attrs...)
	default:
		e.logger.Warn("event failed", attrs...)
	}
}

// Session returns a copy of the session context.
func (e *Engine) Session() Session {
	return e.session
}

// Messages returns the ordered messages held for ref.
func (e *Engine) Messages(ref model.ConversationRef) []model.Message {
	return e.store.Messages(ref)
}

// Days returns the day grouping of ref.
func (e *Engine) Days(ref model.ConversationRef) []convstore.DayGroup {
	return e.store.Days(ref)
}

// Unread returns the unread count of ref.
func (e *Engine) Unread(ref model.ConversationRef) int {
	return e.ledger.Get(ref)
}

// UnreadTotal returns the global unread badge.
func (e *Engine) UnreadTotal() int {
	return e.ledger.Total()
}

// Recent returns the recent list with unread counts.
func (e *Engine) Recent() []model.RecentEntry {
	return e.recents.Entries(e.ledger)
}
