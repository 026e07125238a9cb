package ttcn3

import (
	"fmt"
	"sync"
)

// Probe is the outbound adapter a mapped port forwards encoded values
// to; implemented by the TACS client stub in production,
// and by a fake in tests.
type Probe interface {
	Send(value Value) error
}

// message is one enqueued (payload, sender) pair.
type message struct {
	Value  Value
	Sender *Component
}

// Port is a named message endpoint owned by a Component: a queue, a
// connection set of peer ports, an optional TSI mapping (exclusive
// with connections), and a notifier signalled on every enqueue (spec
// §3/§4.2 Port).
type Port struct {
	mu       sync.Mutex
	name     string
	owner    *Component
	started  bool
	queue    []message
	peers    []*Port
	mapped   Probe
	notifier chan struct{}
}

// NewPort constructs a stopped, unmapped, unconnected port.
func NewPort(name string, owner *Component) *Port {
	return &Port{name: name, owner: owner, notifier: make(chan struct{}, 1)}
}

// Name returns the port's name.
func (p *Port) Name() string { return p.name }

// Start (re)initialises the queue and notifier, and marks the port open.
func (p *Port) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	p.queue = nil
	p.drainNotifierLocked()
}

// Stop closes the port; further Send calls silently drop.
func (p *Port) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
}

// Clear empties the queue without affecting start state.
func (p *Port) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = nil
}

func (p *Port) drainNotifierLocked() {
	select {
	case <-p.notifier:
	default:
	}
}

// Connect establishes a symmetric, bi-directional intra-test
// connection between p and other, enforcing TTCN-3's connect/map
// restrictions.
func (p *Port) Connect(other *Port) error {
	p.mu.Lock()
	other.mu.Lock()
	defer other.mu.Unlock()
	defer p.mu.Unlock()

	if p.mapped != nil || other.mapped != nil {
		return fmt.Errorf("cannot connect a mapped port")
	}
	for _, peer := range p.peers {
		if peer.owner == other.owner {
			return fmt.Errorf("ports of this component pair are already connected")
		}
	}
	p.peers = append(p.peers, other)
	other.peers = append(other.peers, p)
	return nil
}

// Map binds p to a TSI probe, mutually exclusive with any connection.
func (p *Port) Map(probe Probe) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.peers) > 0 {
		return fmt.Errorf("cannot map a connected port")
	}
	p.mapped = probe
	return nil
}

// Unmap removes any TSI probe binding.
func (p *Port) Unmap() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mapped = nil
}

// Send evaluates tmpl to a concrete value, then forwards it to the
// mapped probe or enqueues it to connected peers filtered by to (spec
// §4.2 Port.send). Returns false without effect if the port was never
// started.
func (p *Port) Send(tmpl Template, to *Component) (bool, error) {
	p.mu.Lock()
	started := p.started
	probe := p.mapped
	peers := append([]*Port(nil), p.peers...)
	sender := p.owner
	p.mu.Unlock()

	if !started {
		return false, nil
	}

	value, err := tmpl.Value()
	if err != nil {
		return false, err
	}

	if probe != nil {
		return true, probe.Send(value)
	}
	for _, peer := range peers {
		if to != nil && peer.owner != to {
			continue
		}
		peer.enqueue(value, sender)
	}
	return true, nil
}

func (p *Port) enqueue(v Value, sender *Component) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.queue = append(p.queue, message{Value: v, Sender: sender})
	select {
	case p.notifier <- struct{}{}:
	default:
	}
}

// Notifier returns the channel signalled on every enqueue, consumed by
// alt's blocking wait.
func (p *Port) Notifier() <-chan struct{} { return p.notifier }

// Pop removes and returns at most one queued message.
func (p *Port) Pop() (message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return message{}, false
	}
	m := p.queue[0]
	p.queue = p.queue[1:]
	return m, true
}
