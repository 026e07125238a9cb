package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testerman-project/testerman-core/internal/job"
)

// instantJob is a Job test double that completes synchronously inside
// Run, used to exercise the scheduler's scan/submit/signal plumbing
// without needing a real TE process.
type instantJob struct {
	job.Base
	prepareErr error
	runCalled  chan struct{}
}

func newInstantJob(id int64) *instantJob {
	base := job.NewBase(id, "suite", job.TypeATS, "alice", "suite.ats", time.Now(), nil, nil)
	return &instantJob{Base: base, runCalled: make(chan struct{}, 1)}
}

func (j *instantJob) Prepare() error {
	if j.prepareErr != nil {
		j.SetState(job.StateError)
		return j.prepareErr
	}
	j.SetState(job.StateWaiting)
	return nil
}
func (j *instantJob) PreRun() error { return nil }
func (j *instantJob) Run(map[string]string) error {
	j.SetState(job.StateRunning)
	j.SetResult(job.ResultComplete)
	j.SetState(job.StateComplete)
	select {
	case j.runCalled <- struct{}{}:
	default:
	}
	return nil
}
func (j *instantJob) HandleSignal(job.Signal) error { return nil }

func TestSchedulerSubmitRunsReadyJob(t *testing.T) {
	sched := New(NewRegistry(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	j := newInstantJob(1)
	require.NoError(t, sched.Submit(j))

	select {
	case <-j.runCalled:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not run by the scheduler")
	}
	assert.Equal(t, job.StateComplete, j.State())
}

func TestSchedulerSubmitPropagatesPrepareError(t *testing.T) {
	sched := New(NewRegistry(), nil)
	j := newInstantJob(1)
	j.prepareErr = assertErr{}
	err := sched.Submit(j)
	assert.Error(t, err)
	assert.Equal(t, job.StateError, j.State())
}

func TestSchedulerSendSignalUnknownJob(t *testing.T) {
	sched := New(NewRegistry(), nil)
	err := sched.SendSignal(999, job.SignalCancel)
	assert.Error(t, err)
}

func TestSchedulerRescheduleDelaysExecution(t *testing.T) {
	sched := New(NewRegistry(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sched.Start(ctx))
	defer sched.Stop()

	// Submit directly onto the registry with a far-future schedule so no
	// race exists between the scan loop and the Reschedule call below.
	j := newInstantJob(1)
	j.SetScheduledAt(time.Now().Add(time.Hour))
	sched.Registry.Register(j)
	require.NoError(t, j.Prepare())

	require.NoError(t, sched.Reschedule(j.ID(), time.Now().Add(2*time.Hour)))

	select {
	case <-j.runCalled:
		t.Fatal("job ran despite being rescheduled into the future")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSchedulerPurge(t *testing.T) {
	r := NewRegistry()
	old := newRegJob(1, job.StateComplete)
	old.RestoreState(job.StateComplete, time.Time{}, false, time.Now().Add(-48*time.Hour), true)
	r.Register(old)

	sched := New(r, nil)
	n, err := sched.Purge(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type assertErr struct{}

func (assertErr) Error() string { return "prepare failed" }
