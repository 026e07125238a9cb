package scheduler

import (
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/testerman-project/testerman-core/internal/job"
)

// record is the gob-encodable snapshot of one job, used only to
// reconstruct the registry's bookkeeping (ids, states, results,
// ancestry) across a restart. Persisted jobs are never resumed or
// re-run — the queue file exists purely so job history survives a
// process restart.
type record struct {
	ID            int64
	Name          string
	Kind          job.Type
	Owner         string
	SourcePath    string
	ScheduledAt   time.Time
	State         job.State
	Result        int
	HasResult     bool
	OutputSession map[string]string
	LogPath       string
	StartTime     time.Time
	HasStart      bool
	StopTime      time.Time
	HasStop       bool
	ParentID      int64
	HasParent     bool
}

// Store persists the job table to a single fixed file via encoding/gob,
// a flat-file format appropriate for a single-process server — job
// persistence here is never used for cross-process communication, so
// no relational store is required.
type Store struct {
	path string
}

// NewStore binds a Store to a fixed file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes every job currently in registry to the store file,
// overwriting any previous content.
func (s *Store) Save(registry *Registry) error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating job store %s: %w", tmp, err)
	}

	records := make([]record, 0)
	for _, j := range registry.All() {
		records = append(records, toRecord(j))
	}

	enc := gob.NewEncoder(f)
	if err := enc.Encode(records); err != nil {
		f.Close()
		return fmt.Errorf("encoding job store: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the store file (if it exists) and registers a
// historicalJob for every persisted record, restoring timestamps,
// results and parent linkage exactly as saved. It then advances the
// registry's id generator past the highest restored id.
func (s *Store) Load(registry *Registry) error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening job store %s: %w", s.path, err)
	}
	defer f.Close()

	var records []record
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&records); err != nil {
		return fmt.Errorf("decoding job store: %w", err)
	}

	var maxID int64
	for _, rec := range records {
		registry.Register(fromRecord(rec))
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	registry.Advance(maxID)

	for _, rec := range records {
		if !rec.HasParent {
			continue
		}
		child, ok := registry.Get(rec.ID)
		if !ok {
			continue
		}
		if parent, ok := registry.Get(rec.ParentID); ok {
			child.SetParent(parent)
		}
	}
	return nil
}

func toRecord(j job.Job) record {
	rec := record{
		ID:            j.ID(),
		Name:          j.Name(),
		Kind:          j.Kind(),
		Owner:         j.Owner(),
		ScheduledAt:   j.ScheduledAt(),
		State:         j.State(),
		OutputSession: j.OutputSession(),
		LogPath:       j.LogPath(),
	}
	if sp, ok := j.(interface{ SourcePath() string }); ok {
		rec.SourcePath = sp.SourcePath()
	}
	if code, ok := j.Result(); ok {
		rec.Result = code
		rec.HasResult = true
	}
	if t, ok := j.StartTime(); ok {
		rec.StartTime = t
		rec.HasStart = true
	}
	if t, ok := j.StopTime(); ok {
		rec.StopTime = t
		rec.HasStop = true
	}
	if parent := j.Parent(); parent != nil {
		rec.ParentID = parent.ID()
		rec.HasParent = true
	}
	return rec
}

// historicalJob implements job.Job for a record loaded from the store.
// It is never Prepared or Run again — its Prepare/PreRun/Run/HandleSignal
// methods are inert, since historical entries exist only so API callers
// can still look up a job's outcome after a restart.
type historicalJob struct {
	job.Base
}

func fromRecord(rec record) *historicalJob {
	base := job.NewBase(rec.ID, rec.Name, rec.Kind, rec.Owner, rec.SourcePath, rec.ScheduledAt, nil, nil)
	hj := &historicalJob{Base: base}
	hj.RestoreState(rec.State, rec.StartTime, rec.HasStart, rec.StopTime, rec.HasStop)
	if rec.HasResult {
		hj.SetResult(rec.Result)
	}
	hj.SetOutputSession(rec.OutputSession)
	hj.SetLogPath(rec.LogPath)
	return hj
}

func (h *historicalJob) Prepare() error { return fmt.Errorf("historical job %d cannot be re-prepared", h.ID()) }
func (h *historicalJob) PreRun() error  { return nil }
func (h *historicalJob) Run(map[string]string) error {
	return fmt.Errorf("historical job %d cannot be re-run", h.ID())
}
func (h *historicalJob) HandleSignal(job.Signal) error { return nil }
