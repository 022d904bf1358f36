package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingMessageID is returned when an edit or delete event has no id.
var ErrMissingMessageID = errors.New("missing message id")

// ErrMissingSender is returned when a create event has no sender.
var ErrMissingSender = errors.New("missing sender id")

// PushEvent is a message record as the server sends it, both on the push
// channel and in bulk message responses.
type PushEvent struct {
	Action     Action       `json:"action"`
	ID         ID           `json:"id,omitempty"`
	MessageID  ID           `json:"messageId,omitempty"`
	SenderID   ID           `json:"senderId"`
	ReceiverID ID           `json:"receiverId,omitempty"`
	GroupID    ID           `json:"groupId,omitempty"`
	GroupName  string       `json:"groupName,omitempty"`
	Username   string       `json:"username,omitempty"`
	AvatarURL  string       `json:"avatarUrl,omitempty"`
	Content    *string      `json:"content"`
	Files      []Attachment `json:"files,omitempty"`
	Timestamp  Timestamp    `json:"timestamp"`
	IsRead     bool         `json:"isRead"`
}

// DecodePushEvent decodes one push payload. A missing action tag is a create.
func DecodePushEvent(data []byte) (PushEvent, error) {
	ev := PushEvent{Action: ActionCreate}
	if err := json.Unmarshal(data, &ev); err != nil {
		return PushEvent{}, fmt.Errorf("decode push event: %w", err)
	}
	if ev.Action == 0 {
		ev.Action = ActionCreate
	}
	return ev, nil
}

// DecodeMessages decodes a bulk message response.
func DecodeMessages(data []byte) ([]PushEvent, error) {
	var events []PushEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	for i := range events {
		if events[i].Action == 0 {
			events[i].Action = ActionCreate
		}
	}
	return events, nil
}

// TargetID returns the id of the message the event refers to. messageId
// takes precedence over id.
func (e PushEvent) TargetID() ID {
	if e.MessageID != "" {
		return e.MessageID
	}
	return e.ID
}

// Validate checks the fields the action requires.
func (e PushEvent) Validate() error {
	switch e.Action {
	case ActionCreate:
		if e.SenderID.IsZero() {
			return ErrMissingSender
		}
	case ActionEdit, ActionDelete:
		if e.TargetID().IsZero() {
			return fmt.Errorf("%s event: %w", e.Action, ErrMissingMessageID)
		}
	default:
		return &UnknownActionError{Tag: e.Action.String()}
	}
	return nil
}

// Conversation resolves the conversation the event belongs to, as seen by
// user me. Group events are keyed by group id. Direct events are keyed by
// whichever participant is not me.
func (e PushEvent) Conversation(me ID) ConversationRef {
	if !e.GroupID.IsZero() {
		return Group(e.GroupID)
	}
	if e.SenderID == me {
		return Direct(e.ReceiverID)
	}
	return Direct(e.SenderID)
}

// Text returns the content, collapsing null to "".
func (e PushEvent) Text() string {
	if e.Content == nil {
		return ""
	}
	return *e.Content
}

// Message converts the event into a Message of conversation ref.
func (e PushEvent) Message(ref ConversationRef) Message {
	var files []Attachment
	if len(e.Files) > 0 {
		files = make([]Attachment, len(e.Files))
		for i, f := range e.Files {
			files[i] = Attachment{URL: f.URL, Kind: ParseAttachmentKind(string(f.Kind))}
		}
	}
	return Message{
		ID:           e.TargetID(),
		Conversation: ref,
		SenderID:     e.SenderID,
		SenderName:   e.Username,
		AvatarURL:    e.AvatarURL,
		Content:      e.Text(),
		Attachments:  files,
		Timestamp:    e.Timestamp.Time,
		IsRead:       e.IsRead,
	}
}
