package engine

import (
	"context"
)

// interact records a gesture inside the active conversation.
func (e *Engine) interact(kind Interaction) {
	if e.session.Active.IsZero() {
		return
	}
	if !e.session.HasInteracted {
		e.logger.Debug("first interaction",
			"conversation", e.session.Active.Key(),
			"activation", e.session.ActivationID,
			"kind", string(kind),
		)
	}
	e.session.HasInteracted = true
	e.recomputeDivider()
	e.maybeMarkRead()
}

// recomputeDivider places the unread divider before the first unread message
// of the active conversation, or hides it when nothing is unread.
func (e *Engine) recomputeDivider() {
	ref := e.session.Active
	if ref.IsZero() {
		return
	}

	first, ok := e.store.FirstUnread(ref, e.session.UserID)
	if !ok {
		if e.session.DividerShown {
			e.session.DividerShown = false
			e.session.DividerBefore = ""
			e.sink.HideUnreadDivider(ref)
		}
		return
	}

	if e.session.DividerShown && e.session.DividerBefore == first.ID {
		return
	}
	e.session.DividerShown = true
	e.session.DividerBefore = first.ID
	e.sink.ShowUnreadDivider(ref, first.ID)
}

// maybeMarkRead issues one mark-read call when the user has interacted, the
// first unread message is on screen and no call is in flight or has
// succeeded during this activation.
func (e *Engine) maybeMarkRead() {
	s := &e.session
	if s.Active.IsZero() || s.Receipt != ReceiptUnmarked || !s.HasInteracted {
		return
	}
	first, ok := e.store.FirstUnread(s.Active, s.UserID)
	if !ok || !e.viewport.IsVisible(s.Active, first.ID) {
		return
	}

	s.Receipt = ReceiptMarking
	ref, epoch := s.Active, s.Epoch
	e.logger.Debug("marking conversation read",
		"conversation", ref.Key(),
		"activation", s.ActivationID,
		"first_unread", first.ID,
	)
	e.metrics.markRead("requested")

	e.run(CompletionMarkRead.String(), func(ctx context.Context) *Completion {
		err := e.api.MarkRead(ctx, ref)
		return &Completion{Kind: CompletionMarkRead, Ref: ref, Epoch: epoch, Err: err}
	})
}

func (e *Engine) onMarkRead(c *Completion) error {
	if !e.session.IsActive(c.Ref) || c.Epoch != e.session.Epoch {
		e.metrics.stale(c.Kind)
		return newStaleError("mark_read", c.Ref, c.Epoch, e.session.Epoch)
	}

	if c.Err != nil {
		e.session.Receipt = ReceiptUnmarked
		e.metrics.markRead("failed")
		e.sink.Notify(LevelWarning, "Could not mark messages as read.")
		return newNetworkError("mark_read", c.Ref, c.Err)
	}

	e.session.Receipt = ReceiptMarked
	e.session.HasMarkedAsRead = true
	e.metrics.markRead("succeeded")

	e.store.MarkRead(c.Ref, e.session.UserID)
	if e.ledger.Reset(c.Ref, e.clock.Tick()) {
		e.sink.UpdateUnread(c.Ref, 0, e.ledger.Total())
		e.metrics.setUnread(e.ledger.Total())
	}
	e.render()
	e.recomputeDivider()

	// Refresh isRead flags from the server.
	e.requestLoad()
	return nil
}
