package model

import (
	"strings"
	"time"
)

// AttachmentKind is the coarse media class of an attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentFile  AttachmentKind = "file"
)

// ParseAttachmentKind maps a server fileType or a MIME type to an
// AttachmentKind. Anything that is not an image or a video is a file.
func ParseAttachmentKind(s string) AttachmentKind {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "image" || strings.HasPrefix(s, "image/"):
		return AttachmentImage
	case s == "video" || strings.HasPrefix(s, "video/"):
		return AttachmentVideo
	default:
		return AttachmentFile
	}
}

// Attachment is a file already stored on the server.
type Attachment struct {
	URL  string         `json:"fileUrl"`
	Kind AttachmentKind `json:"fileType"`
}

// Message is a single message of a conversation.
//
// Only Content and IsRead change after a message is created. An empty Content
// is valid when the message carries attachments.
type Message struct {
	ID           ID
	Conversation ConversationRef
	SenderID     ID
	SenderName   string
	AvatarURL    string
	Content      string
	Attachments  []Attachment
	Timestamp    time.Time
	IsRead       bool
}

// HasText reports whether the message has a text body.
func (m Message) HasText() bool {
	return m.Content != ""
}

// IsFrom reports whether the message was sent by user.
func (m Message) IsFrom(user ID) bool {
	return m.SenderID == user
}

// Day returns the UTC calendar date of the message as YYYY-MM-DD.
func (m Message) Day() string {
	return m.Timestamp.UTC().Format(time.DateOnly)
}
