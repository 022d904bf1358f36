package convstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/convsync/internal/model"
)

// ErrMessageNotFound is returned by Apply when an edit or delete targets an
// id that is not in the conversation.
var ErrMessageNotFound = errors.New("message not found")

// Outcome reports what Apply did to the conversation.
type Outcome int

const (
	// OutcomeInserted means a new message was added.
	OutcomeInserted Outcome = iota + 1
	// OutcomeUpdated means an existing message's content was replaced.
	OutcomeUpdated
	// OutcomeRemoved means a message was deleted.
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	default:
		return "none"
	}
}

// DayGroup is the run of messages sharing one UTC calendar date.
type DayGroup struct {
	Date     string // YYYY-MM-DD
	Messages []model.Message
}

type conversation struct {
	messages []model.Message
	days     []DayGroup // nil until computed
}

// Store maps conversations to their ordered message lists.
type Store struct {
	convs map[model.ConversationRef]*conversation
}

// New creates an empty store.
func New() *Store {
	return &Store{convs: make(map[model.ConversationRef]*conversation)}
}

// Load replaces the message list of ref with msgs, sorted ascending by
// timestamp. Ties keep the input order. Duplicate ids in msgs collapse to
// the first occurrence.
func (s *Store) Load(ref model.ConversationRef, msgs []model.Message) {
	seen := make(map[model.ID]struct{}, len(msgs))
	sorted := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.ID.IsZero() {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		m.Conversation = ref
		sorted = append(sorted, m)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	s.convs[ref] = &conversation{messages: sorted}
}

// Apply merges one live change into ref.
//
// A create whose id is absent (or empty) is inserted in timestamp order; a
// create whose id is present overwrites the content. Edit replaces the
// content. Delete removes the message. Edit and delete of an absent id
// return ErrMessageNotFound and change nothing.
func (s *Store) Apply(ref model.ConversationRef, action model.Action, msg model.Message) (Outcome, error) {
	c := s.conv(ref)
	msg.Conversation = ref

	idx := c.indexOf(msg.ID)
	switch action {
	case model.ActionCreate:
		if idx >= 0 {
			c.messages[idx].Content = msg.Content
			c.days = nil
			return OutcomeUpdated, nil
		}
		c.insert(msg)
		return OutcomeInserted, nil

	case model.ActionEdit:
		if idx < 0 {
			return 0, fmt.Errorf("edit %s in %s: %w", msg.ID, ref, ErrMessageNotFound)
		}
		c.messages[idx].Content = msg.Content
		c.days = nil
		return OutcomeUpdated, nil

	case model.ActionDelete:
		if idx < 0 {
			return 0, fmt.Errorf("delete %s in %s: %w", msg.ID, ref, ErrMessageNotFound)
		}
		c.messages = append(c.messages[:idx], c.messages[idx+1:]...)
		c.days = nil
		return OutcomeRemoved, nil

	default:
		return 0, fmt.Errorf("apply to %s: unsupported action %s", ref, action)
	}
}

// MarkRead flags every message of ref not sent by user as read.
func (s *Store) MarkRead(ref model.ConversationRef, user model.ID) int {
	c, ok := s.convs[ref]
	if !ok {
		return 0
	}
	n := 0
	for i := range c.messages {
		if !c.messages[i].IsRead && !c.messages[i].IsFrom(user) {
			c.messages[i].IsRead = true
			n++
		}
	}
	if n > 0 {
		c.days = nil
	}
	return n
}

// Messages returns a copy of the ordered message list of ref.
func (s *Store) Messages(ref model.ConversationRef) []model.Message {
	c, ok := s.convs[ref]
	if !ok {
		return []model.Message{}
	}
	out := make([]model.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages held for ref.
func (s *Store) Len(ref model.ConversationRef) int {
	if c, ok := s.convs[ref]; ok {
		return len(c.messages)
	}
	return 0
}

// Drop forgets ref.
func (s *Store) Drop(ref model.ConversationRef) {
	delete(s.convs, ref)
}

// Days returns the messages of ref grouped by UTC calendar date, oldest day
// first. The result is cached until ref changes; callers must not modify it.
func (s *Store) Days(ref model.ConversationRef) []DayGroup {
	c, ok := s.convs[ref]
	if !ok {
		return []DayGroup{}
	}
	if c.days == nil {
		c.days = groupByDay(c.messages)
	}
	return c.days
}

// FirstUnread returns the earliest message of ref that was not sent by user
// and is not read.
func (s *Store) FirstUnread(ref model.ConversationRef, user model.ID) (model.Message, bool) {
	c, ok := s.convs[ref]
	if !ok {
		return model.Message{}, false
	}
	for _, m := range c.messages {
		if !m.IsRead && !m.IsFrom(user) {
			return m, true
		}
	}
	return model.Message{}, false
}

func (s *Store) conv(ref model.ConversationRef) *conversation {
	c, ok := s.convs[ref]
	if !ok {
		c = &conversation{}
		s.convs[ref] = c
	}
	return c
}

func (c *conversation) indexOf(id model.ID) int {
	if id.IsZero() {
		return -1
	}
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// insert places msg after the last message whose timestamp is not after it.
func (c *conversation) insert(msg model.Message) {
	pos := sort.Search(len(c.messages), func(i int) bool {
		return c.messages[i].Timestamp.After(msg.Timestamp)
	})
	c.messages = append(c.messages, model.Message{})
	copy(c.messages[pos+1:], c.messages[pos:])
	c.messages[pos] = msg
	c.days = nil
}
