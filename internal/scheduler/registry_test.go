package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testerman-project/testerman-core/internal/job"
)

func newRegJob(id int64, state job.State) *historicalJob {
	base := job.NewBase(id, "suite", job.TypeATS, "alice", "suite.ats", time.Now(), nil, nil)
	hj := &historicalJob{Base: base}
	hj.SetState(state)
	return hj
}

func TestRegistryNextIDMonotonic(t *testing.T) {
	r := NewRegistry()
	first := r.NextID()
	second := r.NextID()
	assert.Equal(t, first+1, second)
}

func TestRegistryAdvanceOnlyMovesForward(t *testing.T) {
	r := NewRegistry()
	r.Advance(10)
	assert.Equal(t, int64(11), r.NextID())

	r.Advance(5) // must not move the generator backward
	assert.Equal(t, int64(13), r.NextID())
}

func TestRegistryGetAndAll(t *testing.T) {
	r := NewRegistry()
	j1 := newRegJob(1, job.StateComplete)
	j2 := newRegJob(2, job.StateComplete)
	r.Register(j1)
	r.Register(j2)

	got, ok := r.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ID())
	assert.Len(t, r.All(), 2)

	_, ok = r.Get(99)
	assert.False(t, ok)
}

func TestRegistrySanitizeOnRestart(t *testing.T) {
	r := NewRegistry()
	running := newRegJob(1, job.StateRunning)
	killing := newRegJob(2, job.StateKilling)
	done := newRegJob(3, job.StateComplete)
	r.Register(running)
	r.Register(killing)
	r.Register(done)

	r.SanitizeOnRestart()

	assert.Equal(t, job.StateCrashed, running.State())
	assert.Equal(t, job.StateKilled, killing.State())
	assert.Equal(t, job.StateComplete, done.State())
}

func TestRegistryPurgeRemovesOldTerminalJobs(t *testing.T) {
	r := NewRegistry()
	old := newRegJob(1, job.StateComplete)
	old.RestoreState(job.StateComplete, time.Time{}, false, time.Now().Add(-48*time.Hour), true)
	r.Register(old)

	recent := newRegJob(2, job.StateComplete)
	recent.RestoreState(job.StateComplete, time.Time{}, false, time.Now(), true)
	r.Register(recent)

	removed := r.Purge(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := r.Get(1)
	assert.False(t, ok)
	_, ok = r.Get(2)
	assert.True(t, ok)
}

func TestRegistryPurgeRespectsNonTerminalAncestor(t *testing.T) {
	r := NewRegistry()
	parent := newRegJob(1, job.StateRunning)
	r.Register(parent)

	child := newRegJob(2, job.StateComplete)
	child.RestoreState(job.StateComplete, time.Time{}, false, time.Now().Add(-48*time.Hour), true)
	child.SetParent(parent)
	r.Register(child)

	removed := r.Purge(24 * time.Hour)
	assert.Equal(t, 0, removed)
}
