package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/engine"
	"github.com/roach88/convsync/internal/model"
)

// DefaultPageSize is how many messages the terminal shows at once.
const DefaultPageSize = 20

// Terminal renders engine output as plain text and doubles as the engine's
// viewport: the visible messages are the last page of the active
// conversation, shifted up by the scroll offset.
//
// Thread-safety: the engine calls the Sink methods from its loop goroutine
// while the REPL scrolls from another, so every method takes the lock.
type Terminal struct {
	mu       sync.Mutex
	w        io.Writer
	me       model.ID
	pageSize int

	active  model.ConversationRef
	ids     []model.ID // active conversation, oldest first
	offset  int        // messages scrolled up from the bottom
	divider model.ID
	recent  []model.RecentEntry
}

// NewTerminal writes to w. Messages from me are labelled "me".
func NewTerminal(w io.Writer, me model.ID, pageSize int) *Terminal {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Terminal{w: w, me: me, pageSize: pageSize}
}

func (t *Terminal) RenderConversation(ref model.ConversationRef, days []convstore.DayGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ref != t.active {
		t.active, t.offset, t.divider = ref, 0, ""
	}
	t.ids = t.ids[:0]
	for _, d := range days {
		for _, m := range d.Messages {
			t.ids = append(t.ids, m.ID)
		}
	}
	t.clampOffset()

	lo, hi := t.window()
	fmt.Fprintf(t.w, "=== %s ===\n", ref)
	i := 0
	for _, d := range days {
		dayShown := false
		for _, m := range d.Messages {
			if i >= lo && i < hi {
				if !dayShown {
					fmt.Fprintf(t.w, "--- %s ---\n", d.Date)
					dayShown = true
				}
				if m.ID == t.divider {
					fmt.Fprintln(t.w, "----- new messages -----")
				}
				fmt.Fprintln(t.w, t.formatMessage(m))
			}
			i++
		}
	}
	if lo > 0 {
		fmt.Fprintf(t.w, "(%d earlier, /scroll up to see them)\n", lo)
	}
}

func (t *Terminal) formatMessage(m model.Message) string {
	who := m.SenderName
	if m.IsFrom(t.me) {
		who = "me"
	} else if who == "" {
		who = m.SenderID.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%s %s:", m.Timestamp.Local().Format("15:04"), m.ID, who)
	if m.HasText() {
		b.WriteString(" " + m.Content)
	}
	for _, a := range m.Attachments {
		fmt.Fprintf(&b, " <%s %s>", a.Kind, a.URL)
	}
	return b.String()
}

func (t *Terminal) ShowUnreadDivider(ref model.ConversationRef, before model.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ref != t.active {
		return
	}
	t.divider = before
	fmt.Fprintf(t.w, "----- new messages from #%s -----\n", before)
}

func (t *Terminal) HideUnreadDivider(ref model.ConversationRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ref == t.active {
		t.divider = ""
	}
}

func (t *Terminal) UpdateUnread(ref model.ConversationRef, count, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if count > 0 {
		fmt.Fprintf(t.w, "* %s: %d unread (%d total)\n", ref, count, total)
	}
}

func (t *Terminal) RenderRecent(entries []model.RecentEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recent = append(t.recent[:0], entries...)
}

func (t *Terminal) Notify(level engine.Level, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "[%s] %s\n", level, message)
}

// PrintRecent writes the last recent list the engine rendered.
func (t *Terminal) PrintRecent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	writeRecent(t.w, t.recent)
}

// Recent returns a copy of the last recent list the engine rendered.
func (t *Terminal) Recent() []model.RecentEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.RecentEntry(nil), t.recent...)
}

// Printf writes a line for the REPL under the same lock as engine output.
func (t *Terminal) Printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format, args...)
}

// Scroll moves the page by delta messages; positive scrolls up towards older
// messages. It reports whether the window moved.
func (t *Terminal) Scroll(delta int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	before := t.offset
	t.offset += delta
	t.clampOffset()
	return t.offset != before
}

// IsVisible implements engine.Viewport.
func (t *Terminal) IsVisible(ref model.ConversationRef, id model.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ref != t.active {
		return false
	}
	lo, hi := t.window()
	for _, v := range t.ids[lo:hi] {
		if v == id {
			return true
		}
	}
	return false
}

// window returns the [lo, hi) range of t.ids on screen. Caller holds mu.
func (t *Terminal) window() (int, int) {
	hi := len(t.ids) - t.offset
	lo := max(hi-t.pageSize, 0)
	return lo, hi
}

// clampOffset keeps at least one page on screen. Caller holds mu.
func (t *Terminal) clampOffset() {
	limit := max(len(t.ids)-t.pageSize, 0)
	t.offset = min(max(t.offset, 0), limit)
}

func writeRecent(w io.Writer, entries []model.RecentEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No recent chats.")
		return
	}
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Ref.ID.String()
		}
		if e.UnreadCount > 0 {
			fmt.Fprintf(w, "%-16s %s (%d)\n", e.Ref, name, e.UnreadCount)
			continue
		}
		fmt.Fprintf(w, "%-16s %s\n", e.Ref, name)
	}
}
