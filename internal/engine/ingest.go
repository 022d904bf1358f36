package engine

import (
	"errors"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/model"
)

// ingest applies one push payload.
//
// Creates for a conversation that is not on screen only touch the unread
// ledger and the recent list. Changes for the active conversation go to the
// store and re-render it. Malformed payloads are dropped with a diagnostic;
// they never reach the store.
func (e *Engine) ingest(payload []byte) error {
	if e.session.UserID.IsZero() {
		e.early = append(e.early, payload)
		return nil
	}

	ev, err := model.DecodePushEvent(payload)
	if err != nil {
		e.metrics.event("unknown", "dropped")
		e.sink.Notify(LevelWarning, "Received an update this client does not understand.")
		return newProtocolError("ingest", err)
	}
	if err := ev.Validate(); err != nil {
		e.metrics.event(ev.Action.String(), "dropped")
		se := newValidationError("ingest", model.ConversationRef{}, "malformed push event")
		se.Err = err
		return se
	}

	me := e.session.UserID
	ref := ev.Conversation(me)
	if ref.IsZero() {
		e.metrics.event(ev.Action.String(), "dropped")
		return newValidationError("ingest", ref, "push event names no conversation")
	}
	msg := ev.Message(ref)

	if ev.Action == model.ActionCreate {
		e.trackRecent(ev, ref, msg)
	}

	if !e.session.IsActive(ref) {
		e.metrics.event(ev.Action.String(), "inactive")
		return nil
	}

	if e.session.Loading {
		e.replay = append(e.replay, replayEntry{
			generation: e.session.LoadGeneration,
			action:     ev.Action,
			message:    msg,
		})
	}

	outcome, err := e.store.Apply(ref, ev.Action, msg)
	if errors.Is(err, convstore.ErrMessageNotFound) {
		e.metrics.event(ev.Action.String(), "not_found")
		if e.session.Loading {
			// The snapshot may still contain it; the replay log retries.
			return nil
		}
		e.logger.Warn("push event targets unknown message",
			"conversation", ref.Key(),
			"action", ev.Action.String(),
			"message_id", msg.ID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	e.metrics.event(ev.Action.String(), outcome.String())
	e.logger.Debug("push event applied",
		"conversation", ref.Key(),
		"action", ev.Action.String(),
		"message_id", msg.ID,
		"outcome", outcome.String(),
	)

	e.render()
	e.recomputeDivider()
	e.maybeMarkRead()
	return nil
}

// trackRecent moves ref to the top of the recent list and counts the message
// as unread when it is foreign, unread and not on screen.
func (e *Engine) trackRecent(ev model.PushEvent, ref model.ConversationRef, msg model.Message) {
	conv := model.Conversation{Ref: ref}
	switch {
	case ref.IsGroup():
		conv.Name = ev.GroupName
	case !msg.IsFrom(e.session.UserID):
		conv.Name = ev.Username
		conv.AvatarURL = ev.AvatarURL
	}
	added := e.recents.Ensure(conv)
	e.recents.Touch(ref)

	counted := false
	if !e.session.IsActive(ref) && !msg.IsFrom(e.session.UserID) && !msg.IsRead {
		n := e.ledger.Increment(ref)
		total := e.ledger.Total()
		e.sink.UpdateUnread(ref, n, total)
		e.metrics.setUnread(total)
		counted = true
	}

	e.renderRecent()
	if added || counted {
		e.saveRecents()
	}
}
