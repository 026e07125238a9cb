// Package job implements the Testerman job model: the typed job
// hierarchy (ATS, Campaign, Group), their life-cycle state machine,
// signal handling, session-parameter merging and TE packaging.
package job

import (
	"sync"
	"time"
)

// Type identifies the concrete kind of a Job.
type Type string

// Job type constants.
const (
	TypeATS      Type = "ats"
	TypeCampaign Type = "campaign"
	TypeGroup    Type = "group"
)

// State is a job's position in its life-cycle state machine.
type State string

// Job state constants.
const (
	StateInitializing State = "initializing"
	StateWaiting       State = "waiting"
	StateRunning       State = "running"
	StateKilling       State = "killing"
	StateCancelling    State = "cancelling"
	StatePaused        State = "paused"
	StateComplete      State = "complete"
	StateCancelled     State = "cancelled"
	StateKilled        State = "killed"
	StateError         State = "error"
	StateCrashed       State = "crashed"
)

// terminalStates are absorbing: once reached, a job never leaves them.
var terminalStates = map[State]bool{
	StateComplete:  true,
	StateCancelled: true,
	StateKilled:    true,
	StateError:     true,
	StateCrashed:   true,
}

// IsTerminal reports whether s is one of the absorbing states.
func (s State) IsTerminal() bool { return terminalStates[s] }

// Result code taxonomy.
const (
	ResultComplete       = 0
	ResultCancelled       = 1
	ResultKilled          = 2
	ResultCrash           = 3
	ResultPreparationBase = 20 // 20-29 reserved for preparation errors
)

// Branch identifies one of a job's three child branches.
type Branch string

// Branch constants.
const (
	BranchSuccess       Branch = "success"
	BranchError         Branch = "error"
	BranchUnconditional Branch = "unconditional"
)

// Job is the common interface implemented by AtsJob, CampaignJob and GroupJob.
//
// Every operation that mutates state goes through Base, which owns the
// mutex guarding state transitions.
type Job interface {
	ID() int64
	Name() string
	Kind() Type
	Owner() string
	State() State
	SetState(State)
	Result() (code int, ok bool)
	SetResult(code int)
	Parent() Job
	SetParent(Job)
	Children(Branch) []Job
	AddChild(Branch, Job)
	ScheduledAt() time.Time
	StartTime() (time.Time, bool)
	StopTime() (time.Time, bool)

	// Prepare builds whatever artefacts the job needs to run and
	// transitions to Waiting or Error. Synchronous — errors are
	// reported directly to the caller.
	Prepare() error

	// PreRun computes final paths (artefact/log locations) once the
	// job has been scheduled to start.
	PreRun() error

	// Run executes the job to completion. inputSession is the
	// merged session inherited from the parent (or caller, for a
	// root job). Run blocks until the job reaches a terminal state; a
	// paused ATS job keeps Run blocked until its TE exits.
	Run(inputSession map[string]string) error

	// HandleSignal applies one of the five abstract signals (pause,
	// resume, cancel, kill, action-performed). Idempotent with respect
	// to terminal states.
	HandleSignal(sig Signal) error

	// OutputSession returns the session produced on completion, if any.
	OutputSession() map[string]string

	// LogPath returns the path of this job's append-only XML log file.
	LogPath() string
}

// Base is embedded by every concrete job type and implements the
// fields and bookkeeping common to all of them.
type Base struct {
	mu sync.Mutex

	id          int64
	name        string
	kind        Type
	owner       string
	sourcePath  string
	scheduledAt time.Time

	initialSession map[string]string
	mapping        map[string]string

	state  State
	result int
	hasResult bool

	outputSession map[string]string
	logPath       string

	startTime time.Time
	hasStart  bool
	stopTime  time.Time
	hasStop   bool

	parent Job

	success       []Job
	error_        []Job
	unconditional []Job
}

// NewBase constructs the common fields shared by every job type.
func NewBase(id int64, name string, kind Type, owner, sourcePath string, scheduledAt time.Time, initialSession, mapping map[string]string) Base {
	return Base{
		id:             id,
		name:           name,
		kind:           kind,
		owner:          owner,
		sourcePath:     sourcePath,
		scheduledAt:    scheduledAt,
		initialSession: cloneMap(initialSession),
		mapping:        cloneMap(mapping),
		state:          StateInitializing,
	}
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ID returns the job's unique, monotonically increasing identifier.
func (b *Base) ID() int64 { return b.id }

// Name returns the job's human-readable name.
func (b *Base) Name() string { return b.name }

// Kind returns the job's type tag.
func (b *Base) Kind() Type { return b.kind }

// Owner returns the owning username.
func (b *Base) Owner() string { return b.owner }

// SourcePath returns the repository-relative source path.
func (b *Base) SourcePath() string { return b.sourcePath }

// ScheduledAt returns the wall-clock time this job was scheduled to start.
func (b *Base) ScheduledAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scheduledAt
}

// SetScheduledAt updates the job's scheduled start time, used by
// reschedule() while the job is still Waiting.
func (b *Base) SetScheduledAt(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scheduledAt = t
}

// State returns the job's current state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetState transitions the job to a new state, recording start/stop
// timestamps on the relevant edges. Terminal states are absorbing: once
// set, SetState on an already-terminal job is a silent no-op so that a
// terminal job's stop-time is set exactly once.
func (b *Base) SetState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.IsTerminal() {
		return
	}
	b.state = s
	if s == StateRunning && !b.hasStart {
		b.startTime = time.Now()
		b.hasStart = true
	}
	if s.IsTerminal() && !b.hasStop {
		b.stopTime = time.Now()
		b.hasStop = true
	}
}

// RestoreState sets the job's state together with explicit start/stop
// timestamps, bypassing SetState's automatic now()-stamping. Used only
// when reconstructing a job from persisted state after a restart, where
// the original timestamps must be preserved rather than overwritten
// with the restart time.
func (b *Base) RestoreState(s State, start time.Time, hasStart bool, stop time.Time, hasStop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
	b.startTime = start
	b.hasStart = hasStart
	b.stopTime = stop
	b.hasStop = hasStop
}

// Result returns the final result code and whether one has been set.
func (b *Base) Result() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result, b.hasResult
}

// SetResult records the final result code.
func (b *Base) SetResult(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result = code
	b.hasResult = true
}

// Parent returns the parent job, or nil for a root job.
func (b *Base) Parent() Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.parent
}

// SetParent sets the parent job.
func (b *Base) SetParent(p Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.parent = p
}

// Children returns the children registered on the given branch.
func (b *Base) Children(branch Branch) []Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch branch {
	case BranchSuccess:
		return append([]Job(nil), b.success...)
	case BranchError:
		return append([]Job(nil), b.error_...)
	default:
		return append([]Job(nil), b.unconditional...)
	}
}

// AddChild appends a child job to the given branch, in order.
func (b *Base) AddChild(branch Branch, child Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch branch {
	case BranchSuccess:
		b.success = append(b.success, child)
	case BranchError:
		b.error_ = append(b.error_, child)
	default:
		b.unconditional = append(b.unconditional, child)
	}
}

// StartTime returns the time the job transitioned to Running, if any.
func (b *Base) StartTime() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startTime, b.hasStart
}

// StopTime returns the time the job reached a terminal state, if any.
func (b *Base) StopTime() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopTime, b.hasStop
}

// OutputSession returns the session produced on completion, if any.
func (b *Base) OutputSession() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneMap(b.outputSession)
}

// SetOutputSession records the session produced on completion.
func (b *Base) SetOutputSession(s map[string]string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputSession = cloneMap(s)
}

// LogPath returns the job's append-only log file path.
func (b *Base) LogPath() string { return b.logPath }

// SetLogPath sets the job's append-only log file path.
func (b *Base) SetLogPath(p string) { b.logPath = p }

// InitialSession returns the session bindings the job was constructed with.
func (b *Base) InitialSession() map[string]string { return cloneMap(b.initialSession) }

// Mapping returns the session-parameter mapping expression bindings.
func (b *Base) Mapping() map[string]string { return cloneMap(b.mapping) }

// branchFor selects the branch a child should run on given the parent's
// result code: success on 0, error otherwise.
func branchFor(resultCode int) Branch {
	if resultCode == ResultComplete {
		return BranchSuccess
	}
	return BranchError
}
