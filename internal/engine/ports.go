package engine

import (
	"context"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

// API is the REST surface the engine calls. Implemented by api.Client.
type API interface {
	CurrentUser(ctx context.Context) (model.User, error)
	RecentConversations(ctx context.Context) ([]model.RecentEntry, error)
	Messages(ctx context.Context, ref model.ConversationRef) ([]model.Message, error)
	MarkRead(ctx context.Context, ref model.ConversationRef) error
	ClearConversation(ctx context.Context, ref model.ConversationRef) error
	EditMessage(ctx context.Context, id model.ID, content string) error
	DeleteMessage(ctx context.Context, id model.ID) error
}

// Sender writes outbound commands to the push transport.
// Implemented by transport.WebSocket and transport.NATS.
type Sender interface {
	Send(ctx context.Context, payload any) error
}

// Uploader turns local files into server attachments.
// Implemented by upload.Pipeline.
type Uploader interface {
	Upload(ctx context.Context, files []upload.File) (upload.Batch, error)
	Abandon(ctx context.Context, batch upload.Batch)
}

// RecentCache persists the recent list between runs. Implemented by
// cache.Store.
type RecentCache interface {
	LoadRecents(ctx context.Context) ([]model.RecentEntry, error)
	SaveRecents(ctx context.Context, entries []model.RecentEntry) error
}

// Level is the severity of a user notification. The values match the flash
// classes the web client uses.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Sink receives everything the engine wants rendered. Calls are made from
// the loop goroutine, one at a time.
type Sink interface {
	RenderConversation(ref model.ConversationRef, days []convstore.DayGroup)
	ShowUnreadDivider(ref model.ConversationRef, before model.ID)
	HideUnreadDivider(ref model.ConversationRef)
	UpdateUnread(ref model.ConversationRef, count, total int)
	RenderRecent(entries []model.RecentEntry)
	Notify(level Level, message string)
}

// Viewport reports which messages of the active conversation are on screen.
type Viewport interface {
	IsVisible(ref model.ConversationRef, id model.ID) bool
}

// AllVisible is a Viewport that treats every message as visible.
type AllVisible struct{}

// IsVisible always returns true.
func (AllVisible) IsVisible(model.ConversationRef, model.ID) bool { return true }
