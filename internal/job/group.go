package job

// GroupJob is a pseudo-container job: a parallel sibling whose children
// run relative to the owning Campaign rather than to the group itself.
// It never forks a TE and completes once all its children have finished.
type GroupJob struct {
	Base
}

// NewGroupJob constructs a GroupJob.
func NewGroupJob(base Base) *GroupJob {
	return &GroupJob{Base: base}
}

// Prepare is a no-op: a group has no artefact of its own.
func (g *GroupJob) Prepare() error {
	g.SetState(StateWaiting)
	return nil
}

// PreRun is a no-op.
func (g *GroupJob) PreRun() error { return nil }

// Run executes every child on the unconditional branch as a parallel
// sub-run and waits for all of them, then completes with result 0
// unless cancelled (mirrored from Campaign semantics; a group's own
// verdict is never observed — only its children's branch outcomes
// matter to the owning campaign).
func (g *GroupJob) Run(inputSession map[string]string) error {
	children := g.Children(BranchUnconditional)
	results := make(chan error, len(children))
	for _, child := range children {
		child := child
		go func() {
			if err := child.Prepare(); err != nil {
				results <- err
				return
			}
			if err := child.PreRun(); err != nil {
				results <- err
				return
			}
			results <- child.Run(inputSession)
		}()
	}
	for range children {
		<-results
	}

	if g.State() == StateCancelling {
		g.SetResult(ResultCancelled)
		g.SetState(StateCancelled)
		return nil
	}
	g.SetResult(ResultComplete)
	g.SetState(StateComplete)
	return nil
}

// HandleSignal only honors Cancel and Kill, propagated to every child.
func (g *GroupJob) HandleSignal(sig Signal) error {
	if g.State().IsTerminal() {
		return nil
	}
	switch sig {
	case SignalCancel, SignalKill:
		g.SetState(StateCancelling)
		for _, child := range g.Children(BranchUnconditional) {
			_ = child.HandleSignal(sig)
		}
	}
	return nil
}
