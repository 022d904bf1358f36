package ledger

import "github.com/roach88/convsync/internal/model"

// Recents is the recent-chats list, most recently active first.
type Recents struct {
	entries []model.Conversation
}

// NewRecents creates an empty list.
func NewRecents() *Recents {
	return &Recents{}
}

// Replace swaps the whole list, dropping duplicate refs after their first
// occurrence.
func (r *Recents) Replace(convs []model.Conversation) {
	seen := make(map[model.ConversationRef]struct{}, len(convs))
	r.entries = r.entries[:0]
	for _, c := range convs {
		if _, dup := seen[c.Ref]; dup || c.Ref.IsZero() {
			continue
		}
		seen[c.Ref] = struct{}{}
		r.entries = append(r.entries, c)
	}
}

// Ensure adds conv at the top of the list when it is not present. Known
// entries keep their position; an empty name or avatar on a known entry is
// filled in. It reports whether the entry was added.
func (r *Recents) Ensure(conv model.Conversation) bool {
	if i := r.index(conv.Ref); i >= 0 {
		if r.entries[i].Name == "" {
			r.entries[i].Name = conv.Name
		}
		if r.entries[i].AvatarURL == "" {
			r.entries[i].AvatarURL = conv.AvatarURL
		}
		return false
	}
	r.entries = append([]model.Conversation{conv}, r.entries...)
	return true
}

// Touch moves ref to the top of the list. It reports whether ref was present.
func (r *Recents) Touch(ref model.ConversationRef) bool {
	i := r.index(ref)
	if i < 0 {
		return false
	}
	if i == 0 {
		return true
	}
	entry := r.entries[i]
	copy(r.entries[1:i+1], r.entries[:i])
	r.entries[0] = entry
	return true
}

// Entries returns the list joined with the unread counts of l.
func (r *Recents) Entries(l *Ledger) []model.RecentEntry {
	out := make([]model.RecentEntry, len(r.entries))
	for i, c := range r.entries {
		out[i] = model.RecentEntry{Conversation: c}
		if l != nil {
			out[i].UnreadCount = l.Get(c.Ref)
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Recents) Len() int {
	return len(r.entries)
}

func (r *Recents) index(ref model.ConversationRef) int {
	for i := range r.entries {
		if r.entries[i].Ref == ref {
			return i
		}
	}
	return -1
}
