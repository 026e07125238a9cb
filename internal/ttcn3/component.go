package ttcn3

import (
	"fmt"
	"sync"

	"github.com/testerman-project/testerman-core/internal/ttcn3/sysqueue"
)

// ComponentState is a TestComponent's life-cycle state.
type ComponentState string

// Component state constants.
const (
	ComponentInactive ComponentState = "inactive"
	ComponentRunning  ComponentState = "running"
	ComponentPaused   ComponentState = "paused"
	ComponentKilled   ComponentState = "killed"
	ComponentStopped  ComponentState = "stopped"
)

// Behaviour is the user-supplied function run by a started PTC.
type Behaviour func(tc *Component)

// Component is a TTCN-3 test component: the MTC, a PTC, or the
// synthetic "system" component.
type Component struct {
	mu      sync.Mutex
	name    string
	isMTC   bool
	alive   bool
	started bool
	state   ComponentState
	verdict Verdict
	parent  *Component
	ports   map[string]*Port
	queue   *sysqueue.Queue

	group *group
	done  chan struct{}
}

// group tracks an MTC and its PTCs so aggregate done/killed events can
// be computed.
type group struct {
	mu   sync.Mutex
	mtc  *Component
	ptcs []*Component
}

// NewMTC constructs the MTC for a test case execution, with its own
// system event queue.
func NewMTC() *Component {
	mtc := &Component{
		name:  "mtc",
		isMTC: true,
		alive: true,
		state: ComponentRunning,
		ports: make(map[string]*Port),
		queue: sysqueue.New(),
	}
	mtc.group = &group{mtc: mtc}
	return mtc
}

// NewSystem constructs the lazily-populated "system" component holding
// TSI ports.
func NewSystem() *Component {
	return &Component{name: "system", ports: make(map[string]*Port), queue: sysqueue.New()}
}

// NewPTC allocates an inactive, never-started PTC belonging to the same
// group as parent's MTC. alive reflects the component type's
// declared alive-ness: a non-alive PTC's Stop merges into Kill instead
// of a plain stop.
func (c *Component) NewPTC(name string, alive bool) *Component {
	ptc := &Component{
		name:   name,
		alive:  alive,
		state:  ComponentInactive,
		ports:  make(map[string]*Port),
		queue:  sysqueue.New(),
		parent: c.group.mtc,
		group:  c.group,
	}
	c.group.mu.Lock()
	c.group.ptcs = append(c.group.ptcs, ptc)
	c.group.mu.Unlock()
	return ptc
}

// Name returns the component's name.
func (c *Component) Name() string { return c.name }

// Queue returns this component's system event queue.
func (c *Component) Queue() *sysqueue.Queue { return c.queue }

// Port returns (creating lazily) the named port on this component.
func (c *Component) Port(name string) *Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.ports[name]; ok {
		return p
	}
	p := NewPort(name, c)
	c.ports[name] = p
	return p
}

// State returns the component's current life-cycle state.
func (c *Component) State() ComponentState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Verdict returns the component's current verdict.
func (c *Component) Verdict() Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verdict
}

// SetVerdict merges v into the component's verdict via the lattice.
func (c *Component) SetVerdict(v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdict = c.verdict.Merge(v)
}

// Start transitions an inactive or previously-stopped PTC to running
// and schedules behaviour in its own goroutine. Only valid on a
// non-MTC component. A non-alive component may only ever be started
// once; an alive one may be restarted after it has stopped, so long
// as it isn't currently running.
func (c *Component) Start(behaviour Behaviour) error {
	c.mu.Lock()
	if c.isMTC {
		c.mu.Unlock()
		return fmt.Errorf("cannot start the MTC")
	}
	if c.state == ComponentRunning || (c.started && !c.alive) {
		c.mu.Unlock()
		return fmt.Errorf("component %s is not alive or already running", c.name)
	}
	c.group.mtc.queue.Remove(sysqueue.EventDone, c.name)
	c.group.mtc.queue.Remove(sysqueue.EventAllDone, "")
	c.state = ComponentRunning
	c.started = true
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		behaviour(c)
		c.Stop()
	}()
	return nil
}

// Stop transitions an alive component to stopped, posting a done event
// (and propagating verdict to the MTC), unless the component has
// already been killed.
func (c *Component) Stop() {
	c.mu.Lock()
	if c.state == ComponentKilled || c.state == ComponentStopped {
		c.mu.Unlock()
		return
	}
	if !c.alive {
		c.mu.Unlock()
		c.killLocked()
		return
	}
	c.state = ComponentStopped
	v := c.verdict
	c.mu.Unlock()

	if !c.isMTC {
		c.group.mtc.SetVerdict(v)
	}
	c.group.mtc.queue.Post(sysqueue.EventDone, c.name)
	c.postAggregateIfDone()
}

// Kill terminates the component violently: posts both done and killed,
// transitions to killed, terminal.
func (c *Component) Kill() {
	c.killLocked()
}

func (c *Component) killLocked() {
	c.mu.Lock()
	if c.state == ComponentKilled {
		c.mu.Unlock()
		return
	}
	c.state = ComponentKilled
	c.mu.Unlock()

	c.group.mtc.queue.Post(sysqueue.EventDone, c.name)
	c.group.mtc.queue.Post(sysqueue.EventKilled, c.name)
	c.postAggregateIfDone()
	c.postAggregateIfKilled()
}

// postAggregateIfDone posts all_done once no alive, not-done sibling
// remains in the group.
func (c *Component) postAggregateIfDone() {
	g := c.group
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ptc := range g.ptcs {
		if ptc.State() != ComponentStopped && ptc.State() != ComponentKilled {
			return
		}
	}
	g.mtc.queue.Post(sysqueue.EventAllDone, "")
}

func (c *Component) postAggregateIfKilled() {
	g := c.group
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ptc := range g.ptcs {
		if ptc.State() != ComponentKilled {
			return
		}
	}
	g.mtc.queue.Post(sysqueue.EventAllKilled, "")
}

// RequestStop posts a stop-tc event to this component's own system
// queue, interrupting an alt currently blocked in it and unwinding it
// with ErrStopRequested. sender identifies who is requesting the stop
// (e.g. "mtc" for a component stopping itself, "external" for a
// cancellation raised outside the test case).
func (c *Component) RequestStop(sender string) {
	c.queue.Post(sysqueue.EventStopTC, sender)
}

// RequestKill posts a kill-tc event to this component's own system
// queue, interrupting an alt currently blocked in it and unwinding it
// with ErrKillRequested.
func (c *Component) RequestKill(sender string) {
	c.queue.Post(sysqueue.EventKillTC, sender)
}

// Join blocks until the component's behaviour goroutine has returned.
func (c *Component) Join() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}
