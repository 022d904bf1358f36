// Package ledger tracks per-conversation unread counts and the ordered list
// of recent conversations.
//
// Counts only go up through Increment and Seed, and only come down through
// Reset, which sets a conversation back to zero. Seed fills in server-side
// counts at startup and never lowers a count already tracked.
//
// Reset and Seed are stamped with generation tokens. A server count observed
// at token t describes the conversation as of t, so it is dropped for any
// conversation reset after t: the user has read it since.
//
// Neither type is safe for concurrent use; the engine owns both.
package ledger

import "github.com/roach88/convsync/internal/model"

// Ledger maps conversations to their unread counts.
type Ledger struct {
	counts  map[model.ConversationRef]int
	resetAt map[model.ConversationRef]int64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		counts:  make(map[model.ConversationRef]int),
		resetAt: make(map[model.ConversationRef]int64),
	}
}

// Increment adds one unread message to ref and returns the new count.
func (l *Ledger) Increment(ref model.ConversationRef) int {
	l.counts[ref]++
	return l.counts[ref]
}

// Reset sets the count of ref to zero at token at. It reports whether the
// count changed.
func (l *Ledger) Reset(ref model.ConversationRef, at int64) bool {
	if at > l.resetAt[ref] {
		l.resetAt[ref] = at
	}
	if l.counts[ref] == 0 {
		return false
	}
	delete(l.counts, ref)
	return true
}

// Seed records count for ref as observed at token asOf. It is ignored when
// count is not positive, when ref was reset after asOf, or when ref is
// already tracked with a higher count. It reports whether the count changed.
func (l *Ledger) Seed(ref model.ConversationRef, count int, asOf int64) bool {
	if count <= 0 || l.resetAt[ref] > asOf || count <= l.counts[ref] {
		return false
	}
	l.counts[ref] = count
	return true
}

// Get returns the unread count of ref.
func (l *Ledger) Get(ref model.ConversationRef) int {
	return l.counts[ref]
}

// Total returns the sum of all unread counts, shown as the global badge.
func (l *Ledger) Total() int {
	total := 0
	for _, n := range l.counts {
		total += n
	}
	return total
}
