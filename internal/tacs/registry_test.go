package tacs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockIdempotentForSameOwner(t *testing.T) {
	r := NewRegistry()
	r.RegisterProbe(&Probe{URI: "probe:x"})

	require.NoError(t, r.Lock("probe:x", "client-a"))
	require.NoError(t, r.Lock("probe:x", "client-a"))

	p, ok := r.Probe("probe:x")
	require.True(t, ok)
	assert.Len(t, p.Locks, 1)
}

func TestLockConflictsWithAnotherClient(t *testing.T) {
	r := NewRegistry()
	r.RegisterProbe(&Probe{URI: "probe:x"})

	require.NoError(t, r.Lock("probe:x", "client-a"))
	err := r.Lock("probe:x", "client-b")
	assert.ErrorIs(t, err, ErrLockConflict)
}

func TestUnlockRequiresOwnership(t *testing.T) {
	r := NewRegistry()
	r.RegisterProbe(&Probe{URI: "probe:x"})
	require.NoError(t, r.Lock("probe:x", "client-a"))

	err := r.Unlock("probe:x", "client-b")
	assert.ErrorIs(t, err, ErrNotLockOwner)

	require.NoError(t, r.Unlock("probe:x", "client-a"))
	p, _ := r.Probe("probe:x")
	assert.Empty(t, p.Locks)
}

func TestDisconnectReleasesLocksAndClearsAfterRelock(t *testing.T) {
	r := NewRegistry()
	r.RegisterProbe(&Probe{URI: "probe:x"})
	require.NoError(t, r.Lock("probe:x", "client-a"))

	released := r.PurgeChannel("client-a")
	assert.Equal(t, []string{"probe:x"}, released)

	require.NoError(t, r.Lock("probe:x", "client-b"))
}

func TestUnregisterAgentCascadesProbes(t *testing.T) {
	r := NewRegistry()
	r.RegisterAgent(&Agent{URI: "agent:1"})
	r.RegisterProbe(&Probe{URI: "probe:x", AgentURI: "agent:1"})
	r.RegisterProbe(&Probe{URI: "probe:y", AgentURI: "agent:1"})
	r.RegisterProbe(&Probe{URI: "probe:z", AgentURI: "agent:2"})

	probes, ok := r.UnregisterAgent("agent:1")
	require.True(t, ok)
	assert.Len(t, probes, 2)

	_, stillThere := r.Probe("probe:z")
	assert.True(t, stillThere)
	_, gone := r.Probe("probe:x")
	assert.False(t, gone)
}

func TestSubscriptionPurgeOnDisconnect(t *testing.T) {
	r := NewRegistry()
	c := &Channel{ID: "client-a", Subscriptions: make(map[string]bool)}
	r.Subscribe("system:probes", c)
	assert.Len(t, r.Subscribers("system:probes"), 1)

	r.PurgeChannel("client-a")
	assert.Empty(t, r.Subscribers("system:probes"))
}
