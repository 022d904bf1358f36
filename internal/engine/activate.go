package engine

import (
	"context"
	"errors"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/model"
)

// bootstrap requests the current user and, when a cache is configured, the
// cached recent list so something is on screen before the network answers.
func (e *Engine) bootstrap() {
	e.run(CompletionUser.String(), func(ctx context.Context) *Completion {
		user, err := e.api.CurrentUser(ctx)
		return &Completion{Kind: CompletionUser, User: user, Err: err}
	})

	if e.cache != nil {
		asOf := e.clock.Tick()
		e.run(CompletionCachedRecents.String(), func(ctx context.Context) *Completion {
			entries, err := e.cache.LoadRecents(ctx)
			return &Completion{Kind: CompletionCachedRecents, Recents: entries, Generation: asOf, Err: err}
		})
	}
}

func (e *Engine) onUser(c *Completion) error {
	if c.Err != nil {
		e.sink.Notify(LevelDanger, "Could not load your profile.")
		return newNetworkError("current_user", model.ConversationRef{}, c.Err)
	}

	if !e.session.UserID.IsZero() && e.session.UserID != c.User.ID {
		e.logger.Warn("signed-in user differs from token subject",
			"token_user", e.session.UserID,
			"user", c.User.ID,
		)
	}
	e.session.UserID = c.User.ID
	e.logger.Info("signed in", "user", c.User.ID, "username", c.User.Username)

	asOf := e.clock.Tick()
	e.run(CompletionRecents.String(), func(ctx context.Context) *Completion {
		entries, err := e.api.RecentConversations(ctx)
		return &Completion{Kind: CompletionRecents, Recents: entries, Generation: asOf, Err: err}
	})

	// Payloads that arrived before the user was known could not be routed.
	early := e.early
	e.early = nil
	var errs []error
	for _, payload := range early {
		if err := e.ingest(payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) onRecents(c *Completion) error {
	if c.Kind == CompletionCachedRecents {
		if c.Err != nil {
			e.logger.Warn("recent cache unavailable", "error", c.Err)
			return nil
		}
		if e.recentsLoaded {
			return nil
		}
	} else if c.Err != nil {
		e.sink.Notify(LevelWarning, "Could not load recent chats.")
		return newNetworkError("recent_conversations", model.ConversationRef{}, c.Err)
	}

	// Counts for conversations read since the request went out are stale.
	convs := make([]model.Conversation, len(c.Recents))
	for i, entry := range c.Recents {
		convs[i] = entry.Conversation
		if !e.ledger.Seed(entry.Ref, entry.UnreadCount, c.Generation) && entry.UnreadCount > e.ledger.Get(entry.Ref) {
			e.logger.Debug("stale unread count dropped",
				"conversation", entry.Ref.Key(),
				"count", entry.UnreadCount,
				"generation", c.Generation,
				"current", e.clock.Last(),
			)
		}
	}
	e.recents.Replace(convs)
	// The active conversation was read on screen.
	if !e.session.Active.IsZero() {
		e.ledger.Reset(e.session.Active, e.clock.Tick())
		e.recents.Ensure(model.Conversation{Ref: e.session.Active, Name: e.session.ActiveName})
	}
	e.renderRecent()
	e.metrics.setUnread(e.ledger.Total())

	if c.Kind == CompletionRecents {
		e.recentsLoaded = true
		e.saveRecents()
	}
	return nil
}

// activate switches the active conversation to conv.
//
// Both generation tokens are replaced, so completions issued for the previous
// activation are discarded when they arrive.
func (e *Engine) activate(conv model.Conversation) error {
	if conv.Ref.IsZero() {
		return newValidationError("activate", conv.Ref, "conversation id is required")
	}

	prev := e.session.Active
	if !prev.IsZero() && prev != conv.Ref {
		e.store.Drop(prev)
	}
	e.replay = nil

	e.session.activate(conv, e.ids.Generate(), e.clock.Epoch())
	e.logger.Info("conversation activated",
		"conversation", conv.Ref.Key(),
		"activation", e.session.ActivationID,
		"epoch", e.session.Epoch,
	)

	if e.ledger.Reset(conv.Ref, e.session.Epoch) {
		e.sink.UpdateUnread(conv.Ref, 0, e.ledger.Total())
		e.metrics.setUnread(e.ledger.Total())
	}
	e.recents.Ensure(conv)
	e.renderRecent()

	e.requestLoad()
	return nil
}

// requestLoad issues a bulk load of the active conversation under a new load
// generation. Live changes that land before it completes go to the replay log.
func (e *Engine) requestLoad() {
	ref := e.session.Active
	gen := e.clock.Load()
	e.session.LoadGeneration = gen
	e.session.Loading = true
	e.replay = e.replay[:0]

	e.run(CompletionLoad.String(), func(ctx context.Context) *Completion {
		msgs, err := e.api.Messages(ctx, ref)
		return &Completion{Kind: CompletionLoad, Ref: ref, Generation: gen, Messages: msgs, Err: err}
	})
}

func (e *Engine) onLoad(c *Completion) error {
	if !e.session.IsActive(c.Ref) || c.Generation != e.session.LoadGeneration {
		e.metrics.stale(c.Kind)
		return newStaleError("load_messages", c.Ref, c.Generation, e.session.LoadGeneration)
	}

	e.session.Loading = false
	replay := e.replay
	e.replay = nil

	if c.Err != nil {
		e.sink.Notify(LevelWarning, "Could not load messages.")
		return newNetworkError("load_messages", c.Ref, c.Err)
	}

	e.store.Load(c.Ref, c.Messages)
	for _, entry := range replay {
		if entry.generation != c.Generation {
			continue
		}
		if _, err := e.store.Apply(c.Ref, entry.action, entry.message); err != nil && !errors.Is(err, convstore.ErrMessageNotFound) {
			e.logger.Warn("replay failed", "conversation", c.Ref.Key(), "message_id", entry.message.ID, "error", err)
		}
	}

	e.logger.Debug("conversation loaded",
		"conversation", c.Ref.Key(),
		"generation", c.Generation,
		"messages", e.store.Len(c.Ref),
		"replayed", len(replay),
	)

	e.render()
	e.recomputeDivider()
	e.maybeMarkRead()
	return nil
}

// clear asks the server to delete the active conversation's history.
func (e *Engine) clear() error {
	ref := e.session.Active
	if ref.IsZero() {
		e.sink.Notify(LevelWarning, "Select a chat first.")
		return newValidationError("clear_conversation", ref, "no active conversation")
	}

	epoch := e.session.Epoch
	e.run(CompletionClear.String(), func(ctx context.Context) *Completion {
		err := e.api.ClearConversation(ctx, ref)
		return &Completion{Kind: CompletionClear, Ref: ref, Epoch: epoch, Err: err}
	})
	return nil
}

func (e *Engine) onCleared(c *Completion) error {
	if !e.session.IsActive(c.Ref) || c.Epoch != e.session.Epoch {
		e.metrics.stale(c.Kind)
		return newStaleError("clear_conversation", c.Ref, c.Epoch, e.session.Epoch)
	}
	if c.Err != nil {
		e.sink.Notify(LevelWarning, "Could not clear the chat.")
		return newNetworkError("clear_conversation", c.Ref, c.Err)
	}

	e.store.Load(c.Ref, nil)
	e.replay = nil
	if e.ledger.Reset(c.Ref, e.clock.Tick()) {
		e.sink.UpdateUnread(c.Ref, 0, e.ledger.Total())
		e.metrics.setUnread(e.ledger.Total())
	}
	e.sink.Notify(LevelSuccess, "Chat cleared.")
	e.render()
	e.recomputeDivider()
	return nil
}

func (e *Engine) render() {
	if e.session.Active.IsZero() {
		return
	}
	e.sink.RenderConversation(e.session.Active, e.store.Days(e.session.Active))
}

func (e *Engine) renderRecent() {
	e.sink.RenderRecent(e.recents.Entries(e.ledger))
}

// saveRecents persists the recent list in the background.
func (e *Engine) saveRecents() {
	if e.cache == nil {
		return
	}
	entries := e.recents.Entries(e.ledger)
	e.run("save_recents", func(ctx context.Context) *Completion {
		if err := e.cache.SaveRecents(ctx, entries); err != nil {
			e.logger.Warn("save recents failed", "error", err)
		}
		return nil
	})
}
