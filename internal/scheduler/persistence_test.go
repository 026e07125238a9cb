package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testerman-project/testerman-core/internal/job"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.gob")
	store := NewStore(path)

	r := NewRegistry()
	parent := newRegJob(1, job.StateComplete)
	parent.SetResult(job.ResultComplete)
	r.Register(parent)

	child := newRegJob(2, job.StateCancelled)
	child.SetResult(job.ResultCancelled)
	child.SetParent(parent)
	r.Register(child)

	require.NoError(t, store.Save(r))

	loaded := NewRegistry()
	require.NoError(t, store.Load(loaded))

	gotParent, ok := loaded.Get(1)
	require.True(t, ok)
	assert.Equal(t, job.StateComplete, gotParent.State())

	gotChild, ok := loaded.Get(2)
	require.True(t, ok)
	assert.Equal(t, job.StateCancelled, gotChild.State())
	require.NotNil(t, gotChild.Parent())
	assert.Equal(t, int64(1), gotChild.Parent().ID())

	// id generator must resume past the highest persisted id.
	assert.Equal(t, int64(3), loaded.NextID())
}

func TestStoreLoadMissingFileIsNotAnError(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist.gob"))
	r := NewRegistry()
	require.NoError(t, store.Load(r))
	assert.Empty(t, r.All())
}

func TestHistoricalJobCannotBeRePreparedOrRerun(t *testing.T) {
	hj := fromRecord(record{ID: 1, Name: "suite", Kind: job.TypeATS, State: job.StateCrashed, ScheduledAt: time.Now()})
	assert.Error(t, hj.Prepare())
	assert.Error(t, hj.Run(nil))
	assert.NoError(t, hj.PreRun())
	assert.NoError(t, hj.HandleSignal(job.SignalCancel))
}
