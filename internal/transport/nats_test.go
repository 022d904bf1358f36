package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/convsync/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNATS struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]nats.MsgHandler
	flushErr  error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeNATS() *fakeNATS {
	return &fakeNATS{
		published: make(map[string][][]byte),
		handlers:  make(map[string]nats.MsgHandler),
		closed:    make(chan struct{}),
	}
}

func (f *fakeNATS) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subj] = append(f.published[subj], data)
	return nil
}

func (f *fakeNATS) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[subj] = cb
	return nil, nil
}

func (f *fakeNATS) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return nats.ErrNoDeadlineContext
	}
	return f.flushErr
}

func (f *fakeNATS) Close() {
	f.closeOnce.Do(func() { close(f.closed) })
}

func (f *fakeNATS) deliver(subj, data string) bool {
	f.mu.Lock()
	cb := f.handlers[subj]
	f.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(&nats.Msg{Subject: subj, Data: []byte(data)})
	return true
}

func TestNATS_Subjects(t *testing.T) {
	n := newNATS(newFakeNATS(), "", "42", nil, discard())
	assert.Equal(t, "chat.user.42", n.InboxSubject())
	assert.Equal(t, "chat.send.42", n.SendSubject())
}

func TestNATS_ListenDeliversInbox(t *testing.T) {
	fake := newFakeNATS()
	n := newNATS(fake, "acme", "1", fake.closed, discard())

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() { done <- n.Listen(context.Background(), func(b []byte) { got <- string(b) }) }()

	require.Eventually(t, func() bool { return fake.deliver("acme.user.1", `{"id": 9}`) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"id": 9}`, <-got)

	require.NoError(t, n.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Listen did not return after Close")
	}
}

func TestNATS_ListenStopsOnCancel(t *testing.T) {
	fake := newFakeNATS()
	n := newNATS(fake, "chat", "1", fake.closed, discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Listen(ctx, func([]byte) {}), context.Canceled)
}

func TestNATS_Send(t *testing.T) {
	fake := newFakeNATS()
	n := newNATS(fake, "chat", "1", fake.closed, discard())

	group := model.ID("7")
	require.NoError(t, n.Send(context.Background(), model.SendCommand{GroupID: &group}))
	require.Len(t, fake.published["chat.send.1"], 1)
	assert.JSONEq(t, `{"content": null, "receiverId": null, "groupId": 7, "files": null}`, string(fake.published["chat.send.1"][0]))

	fake.flushErr = errors.New("permissions violation")
	err := n.Send(context.Background(), model.SendCommand{GroupID: &group})
	assert.ErrorContains(t, err, "permissions violation")
}

func TestConnectNATS_RequiresUser(t *testing.T) {
	_, err := ConnectNATS(nats.DefaultURL, "chat", "")
	assert.Error(t, err)
}
