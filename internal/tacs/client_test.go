package tacs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/testerman-project/testerman-core/internal/ttcn3"
)

func TestClientLockSendAndProbeAdapter(t *testing.T) {
	tb := newTestBroker(t)
	agentConn := dial(t, tb.south)
	registerAgentAndProbe(t, agentConn, "agent:1", "probe:x", "http")

	url := "ws" + tb.north.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var notifications []Frame
	client, err := DialClient(ctx, url, 2*time.Second, func(f Frame) { notifications = append(notifications, f) })
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.Lock("probe:x"))

	adapter := NewProbeAdapter(client, "probe:x")

	done := make(chan error, 1)
	go func() { done <- adapter.Send(ttcn3.ScalarValue("hello")) }()

	proxied := readFrame(t, agentConn)
	require.Equal(t, "TRI-SEND", proxied.Method)
	send(t, agentConn, Frame{Kind: KindResponse, TxnID: proxied.TxnID, Status: StatusOK, Reason: "OK", Body: []byte(`null`)})

	require.NoError(t, <-done)
	require.NoError(t, client.Unlock("probe:x"))
}

func TestClientLockConflictSurfacesAsError(t *testing.T) {
	tb := newTestBroker(t)
	agentConn := dial(t, tb.south)
	registerAgentAndProbe(t, agentConn, "agent:1", "probe:x", "http")

	url := "ws" + tb.north.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	holder := dial(t, tb.north)
	resp := roundTrip(t, holder, Frame{Kind: KindRequest, TxnID: "t1", Method: "LOCK", URI: "probe:x"})
	require.Equal(t, StatusOK, resp.Status)

	client, err := DialClient(ctx, url, 2*time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.Error(t, client.Lock("probe:x"))
}
