package ttcn3

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testerman-project/testerman-core/internal/ttcn3/sysqueue"
)

func TestTimerStartPostsTimeoutOnExpiry(t *testing.T) {
	q := sysqueue.New()
	timer := NewTimer("t1", q)
	timer.Start(10 * time.Millisecond)

	require.Eventually(t, func() bool {
		for _, ev := range q.Snapshot() {
			if ev.Kind == sysqueue.EventTimeout && ev.Sender == "t1" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestTimerStartDropsStalePendingTimeout(t *testing.T) {
	q := sysqueue.New()
	q.Post(sysqueue.EventTimeout, "t1")

	timer := NewTimer("t1", q)
	timer.Start(time.Hour)

	for _, ev := range q.Snapshot() {
		if ev.Kind == sysqueue.EventTimeout && ev.Sender == "t1" {
			t.Fatal("expected the stale timeout event to be removed on restart")
		}
	}
}

func TestTimerStopCancelsPendingExpiry(t *testing.T) {
	q := sysqueue.New()
	timer := NewTimer("t1", q)
	timer.Start(20 * time.Millisecond)
	timer.Stop()

	time.Sleep(40 * time.Millisecond)
	for _, ev := range q.Snapshot() {
		if ev.Kind == sysqueue.EventTimeout {
			t.Fatal("stopped timer must not post a timeout")
		}
	}
	assert.Equal(t, time.Duration(0), timer.Read())
}

func TestTimerReadReturnsElapsedWhileRunning(t *testing.T) {
	q := sysqueue.New()
	timer := NewTimer("t1", q)
	timer.Start(time.Hour)
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Read(), time.Duration(0))
}

func TestTimerName(t *testing.T) {
	timer := NewTimer("guard", sysqueue.New())
	assert.Equal(t, "guard", timer.Name())
}
