package model

// SendCommand is the outbound payload that asks the server to create a
// message. Exactly one of ReceiverID and GroupID is set. Content is nil when
// the message has no text and Files is nil when it has no attachments.
type SendCommand struct {
	Content    *string      `json:"content"`
	ReceiverID *ID          `json:"receiverId"`
	GroupID    *ID          `json:"groupId"`
	Files      []Attachment `json:"files"`
}

// MutationCommand is the outbound payload for edit and delete.
type MutationCommand struct {
	Action     Action  `json:"action"`
	MessageID  ID      `json:"messageId"`
	ReceiverID *ID     `json:"receiverId"`
	GroupID    *ID     `json:"groupId"`
	Content    *string `json:"content,omitempty"`
}

// Target splits a conversation reference into the receiver/group pair used
// by outbound commands.
func Target(ref ConversationRef) (receiver *ID, group *ID) {
	id := ref.ID
	if ref.IsGroup() {
		return nil, &id
	}
	return &id, nil
}
