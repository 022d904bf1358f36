package engine

import (
	"github.com/roach88/convsync/internal/model"
)

// ReceiptState is the read-receipt state of the active conversation.
type ReceiptState int

const (
	// ReceiptUnmarked: no mark-read call is in flight or has succeeded.
	ReceiptUnmarked ReceiptState = iota
	// ReceiptMarking: a mark-read call is in flight.
	ReceiptMarking
	// ReceiptMarked: a mark-read call succeeded during this activation.
	ReceiptMarked
)

func (s ReceiptState) String() string {
	switch s {
	case ReceiptMarking:
		return "marking"
	case ReceiptMarked:
		return "marked"
	default:
		return "unmarked"
	}
}

// Session is the mutable context shared by the ingestor, the read-receipt
// coordinator and the composer. Exactly one exists per engine and only the
// loop goroutine writes it.
type Session struct {
	// UserID is the signed-in user. Empty until bootstrap resolves it.
	UserID model.ID

	// Active is the conversation on screen; zero when none is.
	Active model.ConversationRef

	// ActiveName is the display name the host activated Active with.
	ActiveName string

	// ActivationID correlates the log lines of one activation.
	ActivationID string

	// Epoch changes on every activation. Mark-read and clear completions
	// carry the epoch they were issued under.
	Epoch int64

	// LoadGeneration changes on every bulk load request.
	LoadGeneration int64

	// Loading is true while a bulk load for Active is in flight.
	Loading bool

	HasInteracted   bool
	HasMarkedAsRead bool
	Receipt         ReceiptState

	// DividerShown reports whether the unread divider is drawn, and
	// DividerBefore names the message it precedes.
	DividerShown  bool
	DividerBefore model.ID
}

// IsActive reports whether ref is the active conversation.
func (s *Session) IsActive(ref model.ConversationRef) bool {
	return !s.Active.IsZero() && s.Active == ref
}

// activate resets every per-activation field for conv.
func (s *Session) activate(conv model.Conversation, activationID string, epoch int64) {
	s.Active = conv.Ref
	s.ActiveName = conv.Name
	s.ActivationID = activationID
	s.Epoch = epoch
	s.Loading = false
	s.HasInteracted = false
	s.HasMarkedAsRead = false
	s.Receipt = ReceiptUnmarked
	s.DividerShown = false
	s.DividerBefore = ""
}

// replayEntry is a live change applied while a bulk load was in flight. The
// log is re-applied on top of the loaded snapshot.
type replayEntry struct {
	generation int64
	action     model.Action
	message    model.Message
}
