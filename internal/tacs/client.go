package tacs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Client is a northbound (Ia) connection used by a TE process to
// address probes: lock/unlock, TRI-MAP/TRI-UNMAP/TRI-SEND requests,
// and a subscription feed for the TRI-ENQUEUE-MSG/LOG notifications
// the broker proxies back from the southbound side.
type Client struct {
	channel      *Channel
	timeout      time.Duration
	txnCounter   atomic.Uint64
	notify       func(Frame)
}

// DialClient opens a northbound connection to the broker at url and
// starts its read loop; incoming Request/Notification frames (i.e.
// PROBE-EVENT and proxied TRI-ENQUEUE-MSG/LOG notifications) are
// handed to onNotify.
func DialClient(ctx context.Context, url string, timeout time.Duration, onNotify func(Frame)) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing tacs ia endpoint: %w", err)
	}
	ch := NewChannel(ctx, conn)
	cl := &Client{channel: ch, timeout: timeout, notify: onNotify}
	go ch.Run(func(c *Channel, f Frame) {
		if cl.notify != nil {
			cl.notify(f)
		}
	}, nil)
	return cl, nil
}

func (c *Client) nextTxnID() string {
	return fmt.Sprintf("%s-%d", c.channel.ID, c.txnCounter.Add(1))
}

// call issues method against uri with body and blocks for the response.
func (c *Client) call(method, uri string, body any) (Frame, error) {
	req, err := NewRequest(c.nextTxnID(), method, uri, body)
	if err != nil {
		return Frame{}, err
	}
	return c.channel.Request(req, c.timeout)
}

// Lock acquires the exclusive lock on probeURI.
func (c *Client) Lock(probeURI string) error {
	resp, err := c.call("LOCK", probeURI, nil)
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return fmt.Errorf("lock %s: %s", probeURI, resp.Reason)
	}
	return nil
}

// Unlock releases the lock on probeURI.
func (c *Client) Unlock(probeURI string) error {
	resp, err := c.call("UNLOCK", probeURI, nil)
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return fmt.Errorf("unlock %s: %s", probeURI, resp.Reason)
	}
	return nil
}

// Subscribe registers interest in uri's notifications (probe events or
// a probe's own TRI-ENQUEUE-MSG/LOG traffic).
func (c *Client) Subscribe(uri string) error {
	resp, err := c.call("SUBSCRIBE", uri, nil)
	if err != nil {
		return err
	}
	if resp.Status != StatusOK {
		return fmt.Errorf("subscribe %s: %s", uri, resp.Reason)
	}
	return nil
}

// triRequest issues a TRI-* method against a probe uri with an
// arbitrary JSON-marshalable payload, returning the raw response body.
func (c *Client) triRequest(method, probeURI string, payload any) (json.RawMessage, error) {
	resp, err := c.call(method, probeURI, payload)
	if err != nil {
		return nil, err
	}
	if resp.Status != StatusOK {
		return nil, fmt.Errorf("%s %s: %s", method, probeURI, resp.Reason)
	}
	return resp.Body, nil
}

// Close closes the underlying channel.
func (c *Client) Close() { c.channel.Close() }

// uuidURI builds a fresh probe/agent-scoped uri, used by callers that
// need to mint a new client-owned identifier.
func uuidURI(scheme string) string { return scheme + uuid.New().String() }
