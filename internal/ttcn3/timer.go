package ttcn3

import (
	"sync"
	"time"

	"github.com/testerman-project/testerman-core/internal/ttcn3/sysqueue"
)

// Timer posts a timeout event to its owning TC's system queue on
// expiry.
type Timer struct {
	mu      sync.Mutex
	name    string
	queue   *sysqueue.Queue
	running bool
	start   time.Time
	timer   *time.Timer
}

// NewTimer constructs a Timer bound to the system queue it posts to.
func NewTimer(name string, queue *sysqueue.Queue) *Timer {
	return &Timer{name: name, queue: queue}
}

// Start cancels any pending expiry, atomically drops any stale timeout
// event for this timer from the system queue, and schedules a new one.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}
	t.queue.Remove(sysqueue.EventTimeout, t.name)

	t.running = true
	t.start = time.Now()
	t.timer = time.AfterFunc(d, func() {
		t.queue.Post(sysqueue.EventTimeout, t.name)
	})
}

// Stop unregisters any pending expiry.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.running = false
}

// Read returns the elapsed running time, or 0 if not running.
func (t *Timer) Read() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return 0
	}
	return time.Since(t.start)
}

// Name returns the timer's name, used to match queue events against it.
func (t *Timer) Name() string { return t.name }
