package model

import (
	"fmt"
	"strings"
)

// Kind distinguishes direct conversations from group conversations.
type Kind string

const (
	// KindDirect is a one-to-one conversation keyed by the peer's user id.
	KindDirect Kind = "direct"
	// KindGroup is a group conversation keyed by the group id.
	KindGroup Kind = "group"
)

// ConversationRef identifies a conversation. It is comparable and safe to use
// as a map key.
type ConversationRef struct {
	Kind Kind
	ID   ID
}

// Direct returns the reference of the direct conversation with peer.
func Direct(peer ID) ConversationRef {
	return ConversationRef{Kind: KindDirect, ID: peer}
}

// Group returns the reference of the group conversation id.
func Group(id ID) ConversationRef {
	return ConversationRef{Kind: KindGroup, ID: id}
}

// IsZero reports whether the reference names no conversation.
func (r ConversationRef) IsZero() bool {
	return r.ID == ""
}

// IsGroup reports whether the reference is a group conversation.
func (r ConversationRef) IsGroup() bool {
	return r.Kind == KindGroup
}

// Key renders the reference as "direct:<id>" or "group:<id>".
func (r ConversationRef) Key() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Kind) + ":" + string(r.ID)
}

// String implements fmt.Stringer.
func (r ConversationRef) String() string {
	return r.Key()
}

// ParseConversationKey parses the output of ConversationRef.Key.
func ParseConversationKey(key string) (ConversationRef, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return ConversationRef{}, fmt.Errorf("invalid conversation key %q", key)
	}
	switch Kind(kind) {
	case KindDirect, KindGroup:
		return ConversationRef{Kind: Kind(kind), ID: ID(id)}, nil
	default:
		return ConversationRef{}, fmt.Errorf("invalid conversation kind %q", kind)
	}
}

// Conversation is the display identity of a conversation.
type Conversation struct {
	Ref       ConversationRef
	Name      string
	AvatarURL string
}

// RecentEntry is one row of the recent-chats list.
type RecentEntry struct {
	Conversation
	UnreadCount int
}

// User is the authenticated user or a search result.
type User struct {
	ID        ID     `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
