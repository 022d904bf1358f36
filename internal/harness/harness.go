package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/convsync/internal/config"
	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/testutil"
	"github.com/roach88/convsync/internal/upload"
)

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine     *engine.Engine
	dispatcher *engine.ManualDispatcher
	backend    *backend
	rec        *recorder
	viewport   *viewport
	now        *testutil.ManualTime
	logger     *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the engine. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each scenario gets a fresh engine, backend and wall clock, and activation
// ids come from a sequence, so the same scenario always yields the same
// trace.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := newHarness(scenario, opts...)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		kinds, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Do, err)
		}
		if step.ExpectError != "" && !slices.Contains(kinds, engine.FailureKind(step.ExpectError)) {
			result.AddError(fmt.Sprintf("steps[%d] (%s): expected %s, got %v", i, step.Do, step.ExpectError, kinds))
		}
	}

	result.Trace = h.rec.trace
	result.State = h.state()

	actx := &AssertionContext{Engine: h.engine, Sent: h.backend.sent}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(s *Scenario, opts ...Option) (*Harness, error) {
	if s.User.ID == "" {
		s.User = UserSpec{ID: "1", Username: "me"}
	}

	h := &Harness{
		dispatcher: engine.NewManualDispatcher(),
		rec:        newRecorder(),
		viewport:   newViewport(s.Viewport),
		now:        testutil.NewManualTime(testutil.Epoch),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	b, err := newBackend(s, h.rec, h.now.Now)
	if err != nil {
		return nil, err
	}
	h.backend = b

	pipeline := upload.New(b,
		upload.WithOrphanLedger(upload.NewMemoryOrphans()),
		upload.WithNow(h.now.Now),
		upload.WithLogger(h.logger),
	)

	engineOpts := []engine.EngineOption{
		engine.WithDispatcher(h.dispatcher),
		engine.WithViewport(h.viewport),
		engine.WithUploader(pipeline),
		engine.WithIDGenerator(testutil.NewSequenceIDs("act")),
		engine.WithLogger(h.logger),
	}
	if !s.DeferUser {
		engineOpts = append(engineOpts, engine.WithUser(model.ID(s.User.ID)))
	}
	if s.Mutations == config.MutationsREST {
		engineOpts = append(engineOpts, engine.WithRESTMutations())
	}

	h.engine = engine.New(b, b, h.rec, engineOpts...)
	b.deliver = h.engine.OnPushPayload
	return h, nil
}

// execute applies one step and drains the queue. It returns the failure
// kinds the step raised.
func (h *Harness) execute(ctx context.Context, st Step) ([]engine.FailureKind, error) {
	switch st.Do {
	case StepBootstrap:
		h.engine.Bootstrap()

	case StepActivate:
		ref, err := model.ParseConversationKey(st.Conversation)
		if err != nil {
			return nil, err
		}
		h.engine.OnActivate(model.Conversation{Ref: ref, Name: st.Name})

	case StepPush:
		payload := []byte(st.Raw)
		if st.Event != nil {
			data, err := json.Marshal(st.Event)
			if err != nil {
				return nil, fmt.Errorf("encode event: %w", err)
			}
			payload = data
			if ev, err := model.DecodePushEvent(data); err == nil {
				h.backend.observe(ev)
			}
		}
		h.engine.OnPushPayload(payload)

	case StepInteract:
		if st.Visible != nil {
			h.viewport.set(st.Visible)
		}
		h.engine.OnInteraction(engine.Interaction(st.Interaction))

	case StepSend:
		files := make([]upload.File, len(st.Files))
		for i, f := range st.Files {
			files[i] = upload.File{Name: f.Name, Data: []byte(f.Content)}
		}
		h.engine.OnUserSend(st.Content, files...)

	case StepEdit:
		h.engine.OnEdit(model.ID(st.Message), st.Content)

	case StepDelete:
		h.engine.OnDelete(model.ID(st.Message))

	case StepClear:
		h.engine.OnClear()

	case StepComplete:
		kinds := h.drain(ctx)
		if !h.dispatcher.RunNamed(st.Task) {
			return nil, fmt.Errorf("no pending %s task; pending: %v", st.Task, h.dispatcher.Pending())
		}
		return append(kinds, h.drain(ctx)...), nil

	case StepSettle:
		return h.settle(ctx), nil

	case StepAdvance:
		d, err := config.ParseDuration(st.Duration)
		if err != nil {
			return nil, err
		}
		h.now.Advance(d.Std())

	default:
		return nil, fmt.Errorf("unknown step %q", st.Do)
	}

	return h.drain(ctx), nil
}

// drain processes queued events without running pending tasks.
func (h *Harness) drain(ctx context.Context) []engine.FailureKind {
	return h.rec.recordErrors(h.engine.Drain(ctx))
}

// settle alternates between draining the queue and running tasks until both
// are empty.
func (h *Harness) settle(ctx context.Context) []engine.FailureKind {
	var kinds []engine.FailureKind
	for {
		kinds = append(kinds, h.drain(ctx)...)
		if !h.dispatcher.RunNext() {
			return kinds
		}
	}
}

func (h *Harness) state() State {
	s := h.engine.Session()
	st := State{
		Active:      s.Active.Key(),
		Receipt:     s.Receipt.String(),
		Recent:      []string{},
		UnreadTotal: h.engine.UnreadTotal(),
	}
	for _, entry := range h.engine.Recent() {
		st.Recent = append(st.Recent, entry.Ref.Key())
	}
	return st
}
