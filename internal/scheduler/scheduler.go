package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/testerman-project/testerman-core/internal/job"
)

// defaultScanInterval is the periodic readiness-scan period: the
// scheduler wakes up once a second and also whenever explicitly nudged.
const defaultScanInterval = 1 * time.Second

// Scheduler owns the Registry and drives the readiness scan: every
// Waiting job whose ScheduledAt has elapsed is handed to a goroutine
// that runs it to completion.
type Scheduler struct {
	Registry *Registry
	Store    *Store

	scanInterval time.Duration
	wake         chan struct{}
	stopCh       chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	running map[int64]bool
	mu      sync.Mutex
}

// New constructs a Scheduler bound to registry and an (optional) Store
// for persistence; store may be nil to run purely in-memory.
func New(registry *Registry, store *Store) *Scheduler {
	return &Scheduler{
		Registry:     registry,
		Store:        store,
		scanInterval: defaultScanInterval,
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
		running:      make(map[int64]bool),
	}
}

// Start begins the scan loop and recovers persisted state, sanitizing
// any job found in a non-terminal, non-restartable state.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.Store != nil {
		if err := s.Store.Load(s.Registry); err != nil {
			return err
		}
		s.Registry.SanitizeOnRestart()
		if err := s.persist(); err != nil {
			slog.Error("failed to persist sanitized job state on startup", "error", err)
		}
	}

	s.wg.Add(1)
	go s.loop(ctx)

	slog.Info("scheduler started", "scan_interval", s.scanInterval)
	return nil
}

// Stop signals the scan loop to exit and waits for it.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// Wake nudges the scan loop to run immediately instead of waiting for
// the next tick.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.scanInterval)
	defer ticker.Stop()

	for {
		s.scan()
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
		case <-s.wake:
		}
	}
}

// scan starts a runner goroutine for every ready, unstarted root job.
func (s *Scheduler) scan() {
	now := time.Now()
	for _, j := range s.Registry.RootJobs() {
		if j.State() != job.StateWaiting || j.ScheduledAt().After(now) {
			continue
		}
		s.mu.Lock()
		if s.running[j.ID()] {
			s.mu.Unlock()
			continue
		}
		s.running[j.ID()] = true
		s.mu.Unlock()

		s.wg.Add(1)
		go s.runJob(j)
	}
}

func (s *Scheduler) runJob(j job.Job) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.running, j.ID())
		s.mu.Unlock()
	}()

	if err := j.PreRun(); err != nil {
		slog.Error("job pre-run failed", "job_id", j.ID(), "error", err)
		j.SetState(job.StateError)
		j.SetResult(job.ResultPreparationBase)
		return
	}
	if err := j.Run(j.OutputSession()); err != nil {
		slog.Error("job run returned an error", "job_id", j.ID(), "error", err)
	}
	if err := s.persist(); err != nil {
		slog.Error("failed to persist job state after run", "job_id", j.ID(), "error", err)
	}
}

func (s *Scheduler) persist() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Save(s.Registry)
}

// Submit registers a new job, prepares it synchronously, and wakes the
// scan loop so a successfully prepared job is picked up immediately.
func (s *Scheduler) Submit(j job.Job) error {
	s.Registry.Register(j)
	err := j.Prepare()
	if perr := s.persist(); perr != nil {
		slog.Error("failed to persist job state after submit", "job_id", j.ID(), "error", perr)
	}
	s.Wake()
	return err
}

// SendSignal looks up a job and forwards the abstract signal to it.
func (s *Scheduler) SendSignal(id int64, sig job.Signal) error {
	j, ok := s.Registry.Get(id)
	if !ok {
		return NotFoundError(id)
	}
	err := j.HandleSignal(sig)
	s.Wake()
	return err
}

// Reschedule changes a waiting job's scheduled start time and wakes the
// scan loop. Only meaningful while the job is still Waiting.
func (s *Scheduler) Reschedule(id int64, at time.Time) error {
	j, ok := s.Registry.Get(id)
	if !ok {
		return NotFoundError(id)
	}
	if rs, ok := j.(interface{ SetScheduledAt(time.Time) }); ok {
		rs.SetScheduledAt(at)
	}
	s.Wake()
	return nil
}

// Purge removes terminal job trees older than olderThan and persists
// the resulting table.
func (s *Scheduler) Purge(olderThan time.Duration) (int, error) {
	n := s.Registry.Purge(olderThan)
	return n, s.persist()
}
