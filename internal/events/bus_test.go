package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobChannelNaming(t *testing.T) {
	assert.Equal(t, "job:42", JobChannel(42))
}

func TestPublishAppendsToChannelLog(t *testing.T) {
	b := NewBus()
	ev1, err := b.Publish("job:1", map[string]string{"state": "running"})
	require.NoError(t, err)
	ev2, err := b.Publish("job:1", map[string]string{"state": "done"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), ev1.ID)
	assert.Equal(t, int64(2), ev2.ID)

	events, hasMore := b.catchup("job:1", 0)
	require.Len(t, events, 2)
	assert.False(t, hasMore)
}

func TestCatchupOnlyReturnsEventsAfterSinceID(t *testing.T) {
	b := NewBus()
	first, _ := b.Publish("job:1", "a")
	_, _ = b.Publish("job:1", "b")

	events, _ := b.catchup("job:1", first.ID)
	require.Len(t, events, 1)
	assert.Equal(t, "b", string(events[0].Payload[1:len(events[0].Payload)-1]))
}

func TestCatchupReportsOverflowBeyondLimit(t *testing.T) {
	b := NewBus()
	for i := 0; i < catchupLimit+5; i++ {
		_, _ = b.Publish("job:1", i)
	}
	events, hasMore := b.catchup("job:1", 0)
	assert.Len(t, events, catchupLimit)
	assert.True(t, hasMore)
}

func TestPublishJobEventMirrorsToSystemJobs(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.PublishJobEvent(7, map[string]any{"id": 7}))

	perJob, _ := b.catchup(JobChannel(7), 0)
	assert.Len(t, perJob, 1)
	mirrored, _ := b.catchup(SystemJobsChannel, 0)
	assert.Len(t, mirrored, 1)
}

func TestPublishProbeEventGoesToSystemProbes(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.PublishProbeEvent(map[string]string{"reason": "agent-registered"}))

	events, _ := b.catchup(SystemProbesChannel, 0)
	require.Len(t, events, 1)
}

func TestSubscribeUnsubscribeTrackSubscriberCount(t *testing.T) {
	b := NewBus()
	c := &Connection{id: "c1"}
	b.subscribe("job:1", c)
	assert.Equal(t, 1, b.subscriberCount("job:1"))

	b.unsubscribe("job:1", "c1")
	assert.Equal(t, 0, b.subscriberCount("job:1"))
}
