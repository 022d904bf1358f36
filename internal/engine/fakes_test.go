package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/convsync/internal/convstore"
	"github.com/roach88/convsync/internal/model"
	"github.com/roach88/convsync/internal/upload"
)

var errUnavailable = errors.New("service unavailable")

type fakeAPI struct {
	mu sync.Mutex

	user        model.User
	userErr     error
	recents     []model.RecentEntry
	messages    map[model.ConversationRef][]model.Message
	markReadErr []error // consumed one per call
	clearErr    error

	loads     []model.ConversationRef
	markReads []model.ConversationRef
	clears    []model.ConversationRef
	edits     []model.ID
	deletes   []model.ID
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		user:     model.User{ID: "1", Username: "me"},
		messages: make(map[model.ConversationRef][]model.Message),
	}
}

func (f *fakeAPI) CurrentUser(context.Context) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.userErr
}

func (f *fakeAPI) RecentConversations(context.Context) ([]model.RecentEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recents, nil
}

func (f *fakeAPI) Messages(_ context.Context, ref model.ConversationRef) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, ref)
	msgs := make([]model.Message, len(f.messages[ref]))
	copy(msgs, f.messages[ref])
	return msgs, nil
}

func (f *fakeAPI) MarkRead(_ context.Context, ref model.ConversationRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReads = append(f.markReads, ref)
	if len(f.markReadErr) > 0 {
		err := f.markReadErr[0]
		f.markReadErr = f.markReadErr[1:]
		return err
	}
	for i := range f.messages[ref] {
		f.messages[ref][i].IsRead = true
	}
	return nil
}

func (f *fakeAPI) ClearConversation(_ context.Context, ref model.ConversationRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears = append(f.clears, ref)
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.messages, ref)
	return nil
}

func (f *fakeAPI) EditMessage(_ context.Context, id model.ID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, id)
	return nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, id model.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *fakeAPI) markReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markReads)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []any
	err  error
}

func (f *fakeSender) Send(_ context.Context, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeUploader struct {
	err       error
	calls     int
	abandoned int
}

func (f *fakeUploader) Upload(_ context.Context, files []upload.File) (upload.Batch, error) {
	f.calls++
	if f.err != nil {
		return upload.Batch{}, f.err
	}
	var b upload.Batch
	for _, file := range files {
		b.Items = append(b.Items, upload.Item{
			Name:       file.Name,
			Attachment: model.Attachment{URL: "/uploads/" + file.Name, Kind: model.AttachmentFile},
		})
	}
	return b, nil
}

func (f *fakeUploader) Abandon(context.Context, upload.Batch) {
	f.abandoned++
}

type notice struct {
	level   Level
	message string
}

type recordingSink struct {
	mu      sync.Mutex
	renders map[model.ConversationRef]int
	days    map[model.ConversationRef][]convstore.DayGroup
	divider map[model.ConversationRef]model.ID
	unread  map[model.ConversationRef]int
	total   int
	recent  []model.RecentEntry
	notices []notice
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		renders: make(map[model.ConversationRef]int),
		days:    make(map[model.ConversationRef][]convstore.DayGroup),
		divider: make(map[model.ConversationRef]model.ID),
		unread:  make(map[model.ConversationRef]int),
	}
}

func (s *recordingSink) RenderConversation(ref model.ConversationRef, days []convstore.DayGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renders[ref]++
	s.days[ref] = days
}

func (s *recordingSink) ShowUnreadDivider(ref model.ConversationRef, before model.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.divider[ref] = before
}

func (s *recordingSink) HideUnreadDivider(ref model.ConversationRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.divider, ref)
}

func (s *recordingSink) UpdateUnread(ref model.ConversationRef, count, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[ref] = count
	s.total = total
}

func (s *recordingSink) RenderRecent(entries []model.RecentEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = entries
}

func (s *recordingSink) Notify(level Level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice{level: level, message: message})
}

func (s *recordingSink) renderCount(ref model.ConversationRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders[ref]
}

func (s *recordingSink) noticeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notices)
}

// visibleSet reports only the listed ids as visible.
type visibleSet map[model.ID]bool

func (v visibleSet) IsVisible(_ model.ConversationRef, id model.ID) bool {
	return v[id]
}

type testRig struct {
	engine     *Engine
	api        *fakeAPI
	sender     *fakeSender
	sink       *recordingSink
	dispatcher *ManualDispatcher
}

func newRig(t *testing.T, opts ...EngineOption) *testRig {
	t.Helper()
	r := &testRig{
		api:        newFakeAPI(),
		sender:     &fakeSender{},
		sink:       newRecordingSink(),
		dispatcher: NewManualDispatcher(),
	}
	base := []EngineOption{WithUser("1"), WithDispatcher(r.dispatcher)}
	r.engine = New(r.api, r.sender, r.sink, append(base, opts...)...)
	return r
}

// drain processes queued events without running pending tasks.
func (r *testRig) drain(t *testing.T) error {
	t.Helper()
	return r.engine.Drain(context.Background())
}

// settle alternates between draining the queue and running tasks until both
// are empty. It returns every event error seen.
func (r *testRig) settle(t *testing.T) error {
	t.Helper()
	var errs []error
	for {
		if err := r.drain(t); err != nil {
			errs = append(errs, err)
		}
		if !r.dispatcher.RunNext() {
			return errors.Join(errs...)
		}
	}
}

// runTask runs the oldest pending task called name and drains its completion.
func (r *testRig) runTask(t *testing.T, name string) error {
	t.Helper()
	require.True(t, r.dispatcher.RunNamed(name), "no pending %s task; pending: %v", name, r.dispatcher.Pending())
	return r.drain(t)
}
