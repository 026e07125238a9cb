package ttcn3

import (
	"context"
	"log/slog"

	"github.com/testerman-project/testerman-core/internal/ttcn3/sysqueue"
)

// AdapterConfig names the currently installed test adapter
// configuration: the set of TSI ports exposed by the "system"
// component and how they bind to probes.
type AdapterConfig struct {
	Name string
	Bind func(system *Component)
}

// defaultAdapterConfig is installed when none has been configured yet.
var defaultAdapterConfig = AdapterConfig{Name: "default", Bind: func(*Component) {}}

// TestCase holds everything TestCase.execute needs to run one user
// testcase body to completion.
type TestCase struct {
	Name    string
	Adapter *AdapterConfig
	Body    func(mtc, system *Component) error
}

// Execute orchestrates a single testcase run: builds the MTC and
// system component, binds the adapter, resets state, runs Body, and
// always finalises — even on a stop/kill raised from within an alt —
// returning the MTC's final verdict. ctx is the external-cancellation
// boundary: the caller embedding this runtime in a running TE cancels
// ctx (e.g. in response to the OS signal its process receives for a
// job-control cancel or kill) to interrupt an alt blocked in the MTC.
func (tc *TestCase) Execute(ctx context.Context) Verdict {
	mtc := NewMTC()
	system := NewSystem()

	adapter := tc.Adapter
	if adapter == nil {
		adapter = &defaultAdapterConfig
	}
	adapter.Bind(system)

	mtc.queue = sysqueue.New()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			mtc.RequestKill("external")
		case <-done:
		}
	}()

	err := tc.Body(mtc, system)
	close(done)
	finalize(mtc, system)

	if err != nil {
		slog.Warn("testcase body terminated abnormally", "testcase", tc.Name, "error", err)
		if err == ErrStopRequested || err == ErrKillRequested {
			mtc.SetVerdict(VerdictError)
		}
	}

	return mtc.Verdict()
}

// finalize stops every PTC, joins them, finalises every port, unmaps
// every TSI port, and triggers a SA reset. Timers are not stopped here:
// the group keeps no record of the timers its components start.
func finalize(mtc, system *Component) {
	mtc.group.mu.Lock()
	ptcs := append([]*Component(nil), mtc.group.ptcs...)
	mtc.group.mu.Unlock()

	for _, ptc := range ptcs {
		ptc.Stop()
	}
	for _, ptc := range ptcs {
		ptc.Join()
	}

	finalizePorts(mtc)
	for _, ptc := range ptcs {
		finalizePorts(ptc)
	}
	unmapPorts(system)

	triSAReset(system)
}

func finalizePorts(c *Component) {
	c.mu.Lock()
	ports := make([]*Port, 0, len(c.ports))
	for _, p := range c.ports {
		ports = append(ports, p)
	}
	c.mu.Unlock()
	for _, p := range ports {
		p.Stop()
	}
}

func unmapPorts(system *Component) {
	system.mu.Lock()
	ports := make([]*Port, 0, len(system.ports))
	for _, p := range system.ports {
		ports = append(ports, p)
	}
	system.mu.Unlock()
	for _, p := range ports {
		p.Unmap()
	}
}

// triSAReset is the test-adapter-side reset hook fired at the end of
// every testcase, named after the original's triSAReset trigger. It
// does nothing, and AdapterConfig has no field through which an adapter
// can attach reset logic to it.
func triSAReset(system *Component) {}
