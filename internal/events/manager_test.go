package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T) (*Manager, *Bus, *httptest.Server) {
	t.Helper()
	bus := NewBus()
	manager := NewManager(bus)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		manager.HandleConnection(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	return manager, bus, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestHandleConnectionSendsHandshake(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
}

func TestSubscribeConfirmsAndRegistersWithBus(t *testing.T) {
	manager, bus, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // handshake

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "job:1"})
	msg := readJSON(t, conn)
	assert.Equal(t, "subscription.confirmed", msg["type"])
	assert.Equal(t, "job:1", msg["channel"])

	require.Eventually(t, func() bool { return bus.subscriberCount("job:1") == 1 }, time.Second, time.Millisecond)
	_ = manager
}

func TestSubscribeAutoCatchesUpPriorEvents(t *testing.T) {
	_, bus, server := setupTestManager(t)
	require.NoError(t, bus.PublishJobEvent(1, map[string]string{"state": "running"}))

	conn := connectWS(t, server)
	readJSON(t, conn) // handshake

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "job:1"})
	readJSON(t, conn) // subscription.confirmed

	event := readJSON(t, conn)
	assert.Equal(t, "event", event["type"])
	assert.Equal(t, "job:1", event["channel"])
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	_, bus, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn) // handshake

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "job:1"})
	readJSON(t, conn) // subscription.confirmed

	require.Eventually(t, func() bool { return bus.subscriberCount("job:1") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, bus.PublishJobEvent(1, map[string]string{"state": "done"}))

	event := readJSON(t, conn)
	assert.Equal(t, "event", event["type"])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	_, bus, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "job:1"})
	readJSON(t, conn)
	require.Eventually(t, func() bool { return bus.subscriberCount("job:1") == 1 }, time.Second, time.Millisecond)

	writeJSON(t, conn, ClientMessage{Action: "unsubscribe", Channel: "job:1"})
	require.Eventually(t, func() bool { return bus.subscriberCount("job:1") == 0 }, time.Second, time.Millisecond)
}

func TestPingPong(t *testing.T) {
	_, _, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "ping"})
	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestDisconnectRemovesAllSubscriptions(t *testing.T) {
	manager, bus, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	writeJSON(t, conn, ClientMessage{Action: "subscribe", Channel: "job:1"})
	readJSON(t, conn)
	require.Eventually(t, func() bool { return bus.subscriberCount("job:1") == 1 }, time.Second, time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return bus.subscriberCount("job:1") == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return manager.ActiveConnections() == 0 }, time.Second, time.Millisecond)
}
