package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBase(id int64) Base {
	return NewBase(id, "test", TypeATS, "alice", "test.ats", time.Now(), nil, nil)
}

func TestStateIsTerminal(t *testing.T) {
	assert.True(t, StateComplete.IsTerminal())
	assert.True(t, StateCrashed.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
	assert.False(t, StateWaiting.IsTerminal())
}

func TestSetStateAbsorbsTerminal(t *testing.T) {
	b := newTestBase(1)
	b.SetState(StateComplete)
	b.SetState(StateRunning) // must be ignored
	assert.Equal(t, StateComplete, b.State())
}

func TestSetStateRecordsStartAndStopOnce(t *testing.T) {
	b := newTestBase(1)
	b.SetState(StateRunning)
	start1, ok := b.StartTime()
	assert.True(t, ok)

	b.SetState(StateComplete)
	stop1, ok := b.StopTime()
	assert.True(t, ok)

	// Further state changes are no-ops on a terminal job, so the
	// timestamps must not move even if SetState is called again.
	b.SetState(StateRunning)
	start2, _ := b.StartTime()
	stop2, _ := b.StopTime()
	assert.Equal(t, start1, start2)
	assert.Equal(t, stop1, stop2)
}

func TestResultRoundTrip(t *testing.T) {
	b := newTestBase(1)
	_, ok := b.Result()
	assert.False(t, ok)

	b.SetResult(ResultComplete)
	code, ok := b.Result()
	assert.True(t, ok)
	assert.Equal(t, ResultComplete, code)
}

// stubJob is a minimal Job used only to exercise Base's child
// bookkeeping in isolation from any concrete job type.
type stubJob struct{ Base }

func (s *stubJob) Prepare() error               { return nil }
func (s *stubJob) PreRun() error                { return nil }
func (s *stubJob) Run(map[string]string) error  { return nil }
func (s *stubJob) HandleSignal(Signal) error     { return nil }

func TestChildrenByBranch(t *testing.T) {
	b := newTestBase(1)
	child := &stubJob{Base: newTestBase(2)}
	b.AddChild(BranchSuccess, child)
	b.AddChild(BranchError, child)

	assert.Len(t, b.Children(BranchSuccess), 1)
	assert.Len(t, b.Children(BranchError), 1)
	assert.Empty(t, b.Children(BranchUnconditional))
}

func TestBranchForResultCode(t *testing.T) {
	assert.Equal(t, BranchSuccess, branchFor(ResultComplete))
	assert.Equal(t, BranchError, branchFor(ResultCancelled))
	assert.Equal(t, BranchError, branchFor(3))
}

func TestRestoreStatePreservesTimestamps(t *testing.T) {
	b := newTestBase(1)
	start := time.Now().Add(-time.Hour)
	stop := time.Now().Add(-time.Minute)
	b.RestoreState(StateCrashed, start, true, stop, true)

	assert.Equal(t, StateCrashed, b.State())
	gotStart, ok := b.StartTime()
	assert.True(t, ok)
	assert.True(t, gotStart.Equal(start))
	gotStop, ok := b.StopTime()
	assert.True(t, ok)
	assert.True(t, gotStop.Equal(stop))
}
