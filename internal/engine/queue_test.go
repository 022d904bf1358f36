package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	require.True(t, q.push(Event{Type: EventTypePush}))
	require.True(t, q.push(Event{Type: EventTypeActivate}))
	assert.Equal(t, 2, q.size())

	first, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, EventTypePush, first.Type)

	second, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, EventTypeActivate, second.Type)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestEventQueue_SignalCoalesces(t *testing.T) {
	q := newEventQueue()
	q.push(Event{Type: EventTypePush})
	q.push(Event{Type: EventTypePush})

	select {
	case <-q.ready():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.ready():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.push(Event{Type: EventTypeClear})
	q.close()
	q.close()

	assert.True(t, q.isClosed())
	assert.False(t, q.push(Event{Type: EventTypePush}), "closed queue rejects events")

	ev, ok := q.pop()
	require.True(t, ok, "events queued before Close are still delivered")
	assert.Equal(t, EventTypeClear, ev.Type)

	<-q.ready() // signal left by the push
	_, open := <-q.ready()
	assert.False(t, open)
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "push", EventTypePush.String())
	assert.Equal(t, "completion", EventTypeCompletion.String())
}
