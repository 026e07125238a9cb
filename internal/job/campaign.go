package job

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// ChildFactory builds a concrete, registered Job for one parsed
// campaign node. Implemented by the scheduler package, which owns the
// job-id generator and registry; kept as an interface here
// so the job package has no dependency on the scheduler.
type ChildFactory interface {
	NewChild(node *CampaignNode, parent Job, inputSession map[string]string) (Job, error)
	Register(child Job)
}

// CampaignJob orchestrates a tree of ATSes and sub-campaigns, selecting
// the next branch by child result.
type CampaignJob struct {
	Base

	source  string
	factory ChildFactory
	roots   []*CampaignNode

	cancelRequested atomic.Bool
}

// NewCampaignJob constructs a CampaignJob from its raw source text.
func NewCampaignJob(base Base, source string, factory ChildFactory) *CampaignJob {
	return &CampaignJob{
		Base:    base,
		source:  source,
		factory: factory,
	}
}

// Prepare parses the campaign source without pre-fetching child
// sources.
func (c *CampaignJob) Prepare() error {
	roots, err := ParseCampaign(strings.NewReader(c.source))
	if err != nil {
		c.SetResult(ResultPreparationBase)
		c.SetState(StateError)
		return fmt.Errorf("parsing campaign: %w", err)
	}
	c.roots = roots
	c.SetState(StateWaiting)
	return nil
}

// PreRun does nothing: the campaign's log path is left as set with
// SetLogPath and is not computed here. Children compute their own
// during their PreRun.
func (c *CampaignJob) PreRun() error {
	return nil
}

// Run walks the parsed tree in order, selecting branches by child
// result and propagating output sessions.
//
// A Campaign with an empty body returns result 0 and state Complete
// immediately.
func (c *CampaignJob) Run(inputSession map[string]string) error {
	log, err := OpenLog(c.LogPath())
	if err != nil {
		return err
	}

	c.SetState(StateRunning)

	var groupTasks []chan error
	if _, err := c.runNodes(c.roots, log, inputSession, &groupTasks); err != nil {
		return err
	}

	for _, done := range groupTasks {
		<-done
	}

	if c.State() == StateCancelling {
		c.SetResult(ResultCancelled)
		c.SetState(StateCancelled)
		return nil
	}
	// A campaign's result is always 0 unless cancelled, regardless of
	// children's results.
	c.SetResult(ResultComplete)
	c.SetState(StateComplete)
	return nil
}

// runNodes runs every node in nodes in sequence, recursing fully into
// each one's own branch-selected children before moving to the next
// sibling, threading the output session from one node to the next.
func (c *CampaignJob) runNodes(nodes []*CampaignNode, log *Log, session map[string]string, groupTasks *[]chan error) (map[string]string, error) {
	for _, node := range nodes {
		if c.cancelRequested.Load() {
			c.SetState(StateCancelling)
			return session, nil
		}
		var err error
		session, err = c.runNode(node, log, session, groupTasks)
		if err != nil {
			return session, err
		}
	}
	return session, nil
}

// runNode runs a single campaign node to completion, then recurses
// into whichever of its own children its result selects.
func (c *CampaignJob) runNode(node *CampaignNode, log *Log, session map[string]string, groupTasks *[]chan error) (map[string]string, error) {
	if node.Type == TypeGroup {
		done := make(chan error, 1)
		groupJob, err := c.factory.NewChild(node, c, session)
		if err != nil {
			return session, err
		}
		c.factory.Register(groupJob)
		go func() {
			if err := groupJob.Prepare(); err != nil {
				done <- err
				return
			}
			done <- groupJob.Run(session)
		}()
		*groupTasks = append(*groupTasks, done)
		return session, nil
	}

	child, err := c.factory.NewChild(node, c, session)
	if err != nil {
		return session, err
	}
	c.factory.Register(child)

	if err := child.Prepare(); err != nil {
		_ = log.WriteEvent("child.prepare.error", node.Path)
	}
	if child.State() != StateError {
		_ = child.PreRun()
		_ = child.Run(session)
	}

	code, _ := child.Result()
	_ = log.WriteInclude(child.LogPath(), child.ID(), code)

	nextSession := child.OutputSession()
	if code != ResultComplete && len(nextSession) == 0 {
		nextSession = session
	}
	session = nextSession

	return c.runNodes(nextBranch(node, branchFor(code)), log, session, groupTasks)
}

// nextBranch selects the child list to continue on: a node's own
// Children(branch) if any were attached during parsing, or none.
func nextBranch(node *CampaignNode, branch Branch) []*CampaignNode {
	var matched []*CampaignNode
	for _, child := range node.Children {
		if child.Branch == branch {
			matched = append(matched, child)
		}
	}
	return matched
}

// HandleSignal implements Job.HandleSignal for campaigns: Cancel
// switches state and breaks the run loop on the next iteration.
func (c *CampaignJob) HandleSignal(sig Signal) error {
	if c.State().IsTerminal() {
		return nil
	}
	switch sig {
	case SignalCancel:
		if c.State() == StateWaiting {
			c.SetResult(ResultCancelled)
			c.SetState(StateCancelled)
			return nil
		}
		c.cancelRequested.Store(true)
	case SignalKill:
		c.SetState(StateCancelling)
	}
	return nil
}
