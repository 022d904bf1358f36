package engine

import (
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

// CompletionKind identifies which task produced a Completion.
type CompletionKind int

const (
	CompletionUser CompletionKind = iota + 1
	CompletionRecents
	CompletionCachedRecents
	CompletionLoad
	CompletionMarkRead
	CompletionClear
	CompletionUpload
	CompletionSend
	CompletionMutation
)

func (k CompletionKind) String() string {
	switch k {
	case CompletionUser:
		return "current_user"
	case CompletionRecents:
		return "recent_conversations"
	case CompletionCachedRecents:
		return "cached_recents"
	case CompletionLoad:
		return "load_messages"
	case CompletionMarkRead:
		return "mark_read"
	case CompletionClear:
		return "clear_conversation"
	case CompletionUpload:
		return "upload"
	case CompletionSend:
		return "send"
	case CompletionMutation:
		return "mutation"
	default:
		return "unknown"
	}
}

// Completion is the result of a dispatched task, delivered back to the loop.
type Completion struct {
	Kind CompletionKind
	Ref  model.ConversationRef

	// Epoch is set for mark-read and clear; Generation for loads and for
	// recent lists, where it is the token current when the request was issued.
	Epoch      int64
	Generation int64

	Err error

	User     model.User
	Recents  []model.RecentEntry
	Messages []model.Message

	// Content and Batch carry a draft from the upload step to the send step.
	Content string
	Batch   upload.Batch

	// Action is set for mutation completions.
	Action model.Action
}
