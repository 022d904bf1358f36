package harness

import (
	"errors"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
)

// recorder is the engine's sink. It appends every effect to the trace,
// numbering events from a clock so golden files are stable.
type recorder struct {
	seq    *engine.Clock
	trace  []TraceEvent
	recent []model.RecentEntry
}

func newRecorder() *recorder {
	return &recorder{seq: engine.NewClock(), trace: []TraceEvent{}}
}

func (r *recorder) add(ev TraceEvent) {
	ev.Seq = r.seq.Tick()
	r.trace = append(r.trace, ev)
}

// RenderConversation is not traced; assertions read the store instead.
func (r *recorder) RenderConversation(model.ConversationRef, []convstore.DayGroup) {}

func (r *recorder) ShowUnreadDivider(ref model.ConversationRef, before model.ID) {
	r.add(TraceEvent{Type: EventDivider, Op: "show", Conversation: ref.Key(), Detail: before.String()})
}

func (r *recorder) HideUnreadDivider(ref model.ConversationRef) {
	r.add(TraceEvent{Type: EventDivider, Op: "hide", Conversation: ref.Key()})
}

func (r *recorder) UpdateUnread(ref model.ConversationRef, count, _ int) {
	r.add(TraceEvent{Type: EventUnread, Conversation: ref.Key(), Count: &count})
}

func (r *recorder) RenderRecent(entries []model.RecentEntry) {
	r.recent = entries
}

func (r *recorder) Notify(level engine.Level, message string) {
	r.add(TraceEvent{Type: EventNotify, Op: string(level), Detail: message})
}

// recordErrors appends one error event per failure in err and returns the
// failure kinds in order.
func (r *recorder) recordErrors(err error) []engine.FailureKind {
	var kinds []engine.FailureKind
	for _, e := range flatten(err) {
		var se *engine.SyncError
		if !errors.As(e, &se) {
			r.add(TraceEvent{Type: EventError, Detail: e.Error()})
			continue
		}
		r.add(TraceEvent{Type: EventError, Op: se.Op, Conversation: se.Conversation.Key(), Detail: string(se.Kind)})
		kinds = append(kinds, se.Kind)
	}
	return kinds
}

// flatten expands joined errors into their leaves.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

// viewport reports the scenario's visible ids, or everything when unset.
type viewport struct {
	all     bool
	visible map[model.ID]bool
}

func newViewport(spec *ViewportSpec) *viewport {
	v := &viewport{all: spec == nil}
	if spec != nil {
		v.set(spec.Visible)
	}
	return v
}

func (v *viewport) set(ids []string) {
	v.all = false
	v.visible = make(map[model.ID]bool, len(ids))
	for _, id := range ids {
		v.visible[model.ID(id)] = true
	}
}

func (v *viewport) IsVisible(_ model.ConversationRef, id model.ID) bool {
	return v.all || v.visible[id]
}
