package tacs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// writeTimeout bounds how long a single Frame write may block, so one
// slow peer cannot stall the broker's dispatch goroutines.
const writeTimeout = 5 * time.Second

// Channel is one long-lived Ia or Xa connection — an Agent, a Probe's
// owning Agent, or a northbound client/TE. It multiplexes requests it
// issues (tracked by txn id, resolved when the peer's Response frame
// arrives) with requests the peer issues against it (dispatched to a
// Handler) and unsolicited Notifications.
type Channel struct {
	ID   string
	conn *websocket.Conn
	ctx  context.Context

	mu      sync.Mutex
	pending map[string]chan Frame

	// subscriptions this channel has registered with the broker, used
	// to purge on disconnect.
	Subscriptions map[string]bool
}

// NewChannel wraps an accepted WebSocket connection.
func NewChannel(ctx context.Context, conn *websocket.Conn) *Channel {
	return &Channel{
		ID:            uuid.New().String(),
		conn:          conn,
		ctx:           ctx,
		pending:       make(map[string]chan Frame),
		Subscriptions: make(map[string]bool),
	}
}

// Send writes f to the peer with a bounded write deadline.
func (c *Channel) Send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// ErrChannelTimeout is returned by Request when the peer does not
// answer within the broker's configured transaction timeout.
var ErrChannelTimeout = errors.New("tacs: transaction timed out")

// Request sends f (a request frame) and blocks until the matching
// Response frame (same txn id) arrives or timeout elapses.
func (c *Channel) Request(f Frame, timeout time.Duration) (Frame, error) {
	wait := make(chan Frame, 1)
	c.mu.Lock()
	c.pending[f.TxnID] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.TxnID)
		c.mu.Unlock()
	}()

	if err := c.Send(f); err != nil {
		return Frame{}, err
	}

	select {
	case resp := <-wait:
		return resp, nil
	case <-time.After(timeout):
		return Frame{}, ErrChannelTimeout
	case <-c.ctx.Done():
		return Frame{}, c.ctx.Err()
	}
}

// deliverResponse routes an incoming Response frame to the goroutine
// blocked in Request, if any is still waiting.
func (c *Channel) deliverResponse(f Frame) bool {
	c.mu.Lock()
	wait, ok := c.pending[f.TxnID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case wait <- f:
	default:
	}
	return true
}

// Handler processes an incoming Request or Notification frame read off
// a channel's read loop.
type Handler func(c *Channel, f Frame)

// Run drives the channel's read loop until the socket closes or ctx is
// done, dispatching Response frames to waiting Request calls and
// everything else to onFrame. Blocks; call in its own goroutine.
func (c *Channel) Run(onFrame Handler, onClose func(*Channel)) {
	defer func() {
		if onClose != nil {
			onClose(c)
		}
	}()
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("tacs: malformed frame", "channel_id", c.ID, "error", err)
			continue
		}
		if f.Kind == KindResponse && c.deliverResponse(f) {
			continue
		}
		onFrame(c, f)
	}
}

// Close closes the underlying socket.
func (c *Channel) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
