package sysqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKindIsState(t *testing.T) {
	assert.True(t, EventTimeout.IsState())
	assert.True(t, EventDone.IsState())
	assert.True(t, EventKilled.IsState())
	assert.True(t, EventAllDone.IsState())
	assert.True(t, EventAllKilled.IsState())
	assert.False(t, EventStopTC.IsState())
	assert.False(t, EventKillTC.IsState())
}

func TestPostAndSnapshotPreservesOrder(t *testing.T) {
	q := New()
	q.Post(EventTimeout, "t1")
	q.Post(EventDone, "ptc1")

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, Event{Kind: EventTimeout, Sender: "t1"}, snap[0])
	assert.Equal(t, Event{Kind: EventDone, Sender: "ptc1"}, snap[1])
}

func TestSnapshotDoesNotConsume(t *testing.T) {
	q := New()
	q.Post(EventDone, "ptc1")
	_ = q.Snapshot()
	assert.Len(t, q.Snapshot(), 1, "snapshot must leave the queue untouched")
}

func TestConsumeRemovesExactlyOneMatch(t *testing.T) {
	q := New()
	q.Post(EventStopTC, "mtc")
	q.Post(EventStopTC, "mtc")

	q.Consume(EventStopTC, "mtc")
	assert.Len(t, q.Snapshot(), 1, "consume removes at most one matching event")
}

func TestRemoveDropsStaleTimeout(t *testing.T) {
	q := New()
	q.Post(EventTimeout, "t1")
	q.Post(EventDone, "ptc1")

	q.Remove(EventTimeout, "t1")

	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, EventDone, snap[0].Kind)
}

func TestRemoveNoMatchIsNoop(t *testing.T) {
	q := New()
	q.Post(EventDone, "ptc1")
	q.Remove(EventTimeout, "does-not-exist")
	assert.Len(t, q.Snapshot(), 1)
}

func TestListenerSignalledOnPost(t *testing.T) {
	q := New()
	n := NewListener()
	q.RegisterListener(n)

	q.Post(EventDone, "ptc1")

	select {
	case <-n:
	default:
		t.Fatal("expected listener to be signalled on post")
	}
}

func TestListenerRefCountingSharesOneHandle(t *testing.T) {
	q := New()
	n := NewListener()
	q.RegisterListener(n)
	q.RegisterListener(n)

	q.UnregisterListener(n)
	assert.Equal(t, 1, q.listeners[n], "two registrations require two unregisters")

	q.UnregisterListener(n)
	_, stillPresent := q.listeners[n]
	assert.False(t, stillPresent)
}

func TestNotifierSignalDoesNotBlockWhenFull(t *testing.T) {
	n := NewListener()
	n.Signal()
	n.Signal() // must not block even though the channel is already full
	n.Acknowledge()
	select {
	case <-n:
		t.Fatal("acknowledge should have drained the pending signal")
	default:
	}
}
