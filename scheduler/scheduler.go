// ABOUTME: Periodic sync scheduler driving full-cache refreshes
// ABOUTME: Guards against overlapping runs and exposes run history and status
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/models"
)

// DefaultInterval is the fixed wall-clock gap between scheduled refreshes.
const DefaultInterval = 10 * time.Minute

// historySize bounds the retained run-history ring.
const historySize = 20

// Syncer is the refresh entry point the scheduler drives (the sync cache).
type Syncer interface {
	Refresh(ctx context.Context, accountID string) ([]models.JobSummary, error)
}

// RunResult records one sync run (or a skipped attempt).
type RunResult struct {
	ID        string        `json:"id"`
	Skipped   bool          `json:"skipped"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	JobCount  int           `json:"job_count"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Status is the scheduler's externally visible state.
type Status struct {
	Scheduled     bool        `json:"scheduled"`
	Running       bool        `json:"running"`
	RunCount      int         `json:"run_count"`
	LastRun       *RunResult  `json:"last_run,omitempty"`
	NextRunInSecs int64       `json:"next_run_in_seconds"`
	History       []RunResult `json:"history,omitempty"`
}

// Scheduler drives periodic, non-overlapping refreshes for one account.
type Scheduler struct {
	syncer    Syncer
	accountID string
	interval  time.Duration
	log       *zap.Logger

	mu        sync.Mutex
	scheduled bool
	running   bool
	stop      chan struct{}
	runCount  int
	lastRun   *RunResult
	history   []RunResult
}

// New creates a scheduler over the given syncer. A non-positive interval
// falls back to DefaultInterval.
func New(syncer Syncer, accountID string, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		syncer:    syncer,
		accountID: accountID,
		interval:  interval,
		log:       log.Named("scheduler"),
	}
}

// Start performs one immediate refresh and arms the interval timer. Calling
// Start while scheduled is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.scheduled {
		s.mu.Unlock()
		return
	}
	s.scheduled = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.log.Info("scheduler started",
		zap.String("account_id", s.accountID),
		zap.Duration("interval", s.interval))

	s.Sync(ctx)
	go s.loop(ctx, stop)
}

func (s *Scheduler) loop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sync(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop disarms the timer. An in-flight run is not cancelled.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.scheduled {
		return
	}
	s.scheduled = false
	close(s.stop)
	s.log.Info("scheduler stopped")
}

// Sync performs one refresh unless a run is already in flight, in which case
// it returns immediately with a skipped result. This guard only protects the
// scheduler's own runs; it does not serialize refreshes triggered elsewhere.
func (s *Scheduler) Sync(ctx context.Context) RunResult {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Debug("sync already in progress, skipping")
		return RunResult{Skipped: true, StartedAt: time.Now()}
	}
	s.running = true
	s.mu.Unlock()

	result := RunResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}

	jobs, err := s.syncer.Refresh(ctx, s.accountID)
	result.Duration = time.Since(result.StartedAt)
	if err != nil {
		result.Error = err.Error()
		s.log.Warn("scheduled refresh failed",
			zap.String("account_id", s.accountID),
			zap.Error(err))
	} else {
		result.Success = true
		result.JobCount = len(jobs)
		s.log.Info("scheduled refresh complete",
			zap.String("account_id", s.accountID),
			zap.Int("jobs", len(jobs)),
			zap.Duration("duration", result.Duration))
	}

	s.mu.Lock()
	s.running = false
	s.runCount++
	s.lastRun = &result
	s.history = append(s.history, result)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.mu.Unlock()

	return result
}

// Status reports current state, last run, run count, and time until the next
// scheduled run.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Scheduled: s.scheduled,
		Running:   s.running,
		RunCount:  s.runCount,
		History:   append([]RunResult{}, s.history...),
	}
	if s.lastRun != nil {
		last := *s.lastRun
		status.LastRun = &last
		if s.scheduled {
			next := s.interval - time.Since(last.StartedAt)
			if next < 0 {
				next = 0
			}
			status.NextRunInSecs = int64(next.Seconds())
		}
	}
	return status
}
