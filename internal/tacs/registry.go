package tacs

import (
	"fmt"
	"sync"
)

// Agent is a registered Agent.
type Agent struct {
	URI            string
	Contact        string
	UserAgent      string
	SupportedProbes []string
	Channel        *Channel
}

// Probe is a registered Probe. Locks records which client channel ids
// currently hold the exclusive lock. The invariant that a locked
// probe has exactly one lock-owning client at any time means it never
// holds more than one entry; kept as a set to make re-lock-by-owner
// idempotence trivial to express.
type Probe struct {
	URI      string
	Name     string
	Type     string
	Contact  string
	AgentURI string
	Locks    map[string]bool
}

// Registry owns the agent table, the probe table, the subscription
// table and the set of connected northbound client channels.
type Registry struct {
	mu sync.RWMutex

	agents map[string]*Agent
	probes map[string]*Probe
	subs   map[string]map[string]*Channel // uri -> channel id -> channel
	ia     map[string]*Channel            // iaClients, keyed by channel id
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		probes: make(map[string]*Probe),
		subs:   make(map[string]map[string]*Channel),
		ia:     make(map[string]*Channel),
	}
}

// RegisterClient records c as a connected northbound client.
func (r *Registry) RegisterClient(c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ia[c.ID] = c
}

// RegisterAgent adds or replaces an Agent entry.
func (r *Registry) RegisterAgent(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.URI] = a
}

// Agent looks up an agent by uri.
func (r *Registry) Agent(uri string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[uri]
	return a, ok
}

// Agents returns every registered agent.
func (r *Registry) Agents() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	return out
}

// UnregisterAgent removes an agent and every probe it owns, returning
// the removed probes so the caller can emit the cascade of
// probe-unregistered events.
func (r *Registry) UnregisterAgent(uri string) (probes []*Probe, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok = r.agents[uri]; !ok {
		return nil, false
	}
	delete(r.agents, uri)
	for pURI, p := range r.probes {
		if p.AgentURI == uri {
			probes = append(probes, p)
			delete(r.probes, pURI)
		}
	}
	return probes, true
}

// RegisterProbe adds or replaces a Probe entry.
func (r *Registry) RegisterProbe(p *Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Locks == nil {
		p.Locks = make(map[string]bool)
	}
	r.probes[p.URI] = p
}

// Probe looks up a probe by uri.
func (r *Registry) Probe(uri string) (*Probe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.probes[uri]
	return p, ok
}

// Probes returns every registered probe.
func (r *Registry) Probes() []*Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Probe, 0, len(r.probes))
	for _, p := range r.probes {
		out = append(out, p)
	}
	return out
}

// UnregisterProbe removes a single probe.
func (r *Registry) UnregisterProbe(uri string) (*Probe, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.probes[uri]
	if ok {
		delete(r.probes, uri)
	}
	return p, ok
}

// ErrLockConflict is returned by Lock when another channel already
// holds the probe's lock.
var ErrLockConflict = fmt.Errorf("tacs: probe locked by another client")

// ErrProbeNotFound is returned when a probe uri is unknown.
var ErrProbeNotFound = fmt.Errorf("tacs: probe not found")

// Lock acquires uri's exclusive lock for channelID. Succeeds
// idempotently if channelID already holds it.
func (r *Registry) Lock(uri, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.probes[uri]
	if !ok {
		return ErrProbeNotFound
	}
	for owner := range p.Locks {
		if owner != channelID {
			return ErrLockConflict
		}
	}
	p.Locks[channelID] = true
	return nil
}

// ErrNotLockOwner is returned by Unlock when the requesting channel
// does not hold uri's lock.
var ErrNotLockOwner = fmt.Errorf("tacs: channel does not hold this probe's lock")

// Unlock releases uri's lock, only if channelID is the current holder.
func (r *Registry) Unlock(uri, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.probes[uri]
	if !ok {
		return ErrProbeNotFound
	}
	if !p.Locks[channelID] {
		return ErrNotLockOwner
	}
	delete(p.Locks, channelID)
	return nil
}

// ReleaseAllLocks releases every lock channelID holds across all
// probes, returning the uris that were released.
func (r *Registry) ReleaseAllLocks(channelID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released []string
	for uri, p := range r.probes {
		if p.Locks[channelID] {
			delete(p.Locks, channelID)
			released = append(released, uri)
		}
	}
	return released
}

// Subscribe registers c as a subscriber of uri.
func (r *Registry) Subscribe(uri string, c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[uri] == nil {
		r.subs[uri] = make(map[string]*Channel)
	}
	r.subs[uri][c.ID] = c
	c.Subscriptions[uri] = true
}

// Unsubscribe removes channelID from uri's subscriber set.
func (r *Registry) Unsubscribe(uri, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[uri]; ok {
		delete(s, channelID)
		if len(s) == 0 {
			delete(r.subs, uri)
		}
	}
}

// Subscribers returns a snapshot of uri's current subscriber channels.
// The broker dispatches notifications against this snapshot after
// releasing the lock.
func (r *Registry) Subscribers(uri string) []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.subs[uri]
	out := make([]*Channel, 0, len(subs))
	for _, c := range subs {
		out = append(out, c)
	}
	return out
}

// PurgeChannel removes channelID from the client table, every
// subscription and every lock it held.
func (r *Registry) PurgeChannel(channelID string) (releasedLocks []string) {
	r.mu.Lock()
	delete(r.ia, channelID)
	var channelURIs []string
	for uri, subs := range r.subs {
		if _, ok := subs[channelID]; ok {
			channelURIs = append(channelURIs, uri)
		}
	}
	r.mu.Unlock()

	for _, uri := range channelURIs {
		r.Unsubscribe(uri, channelID)
	}
	return r.ReleaseAllLocks(channelID)
}
