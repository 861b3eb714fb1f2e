// ABOUTME: Order monitor watching the sync cache for newly appeared jobs
// ABOUTME: Evaluates each job at most once per process lifetime and dispatches notifications
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/models"
	"github.com/harperreed/fieldwatch/notify"
)

// DefaultInterval is the fixed gap between check passes.
const DefaultInterval = 60 * time.Second

// JobSource is the monitor's view of the sync cache. The monitor never
// bypasses the cache's own freshness logic.
type JobSource interface {
	Refresh(ctx context.Context, accountID string) ([]models.JobSummary, error)
	JobDetail(ctx context.Context, accountID, jobID string) (*models.JobDetail, error)
}

// GeometrySource fetches requested geometry for a job.
type GeometrySource interface {
	GetRequestedGeometry(ctx context.Context, accountID, jobID string) (*geojson.FeatureCollection, error)
}

// NotificationLog records dispatched notifications. Optional.
type NotificationLog interface {
	LogNotification(accountID, jobID, trigger, reason string, recipients []string) (string, error)
}

// PassStats summarizes one check pass.
type PassStats struct {
	StartedAt time.Time `json:"started_at"`
	Checked   int       `json:"checked"`
	NewlySeen int       `json:"newly_seen"`
	Notified  int       `json:"notified"`
	Skipped   int       `json:"skipped"`
	Error     string    `json:"error,omitempty"`
}

// Status is the monitor's externally visible state.
type Status struct {
	Running         bool       `json:"running"`
	SeenCount       int        `json:"seen_count"`
	IntervalSeconds int64      `json:"interval_seconds"`
	PassCount       int        `json:"pass_count"`
	LastPass        *PassStats `json:"last_pass,omitempty"`
}

// Monitor polls the cache for jobs not yet in its seen set and runs each
// through the notification decision engine exactly once per process lifetime.
type Monitor struct {
	jobs      JobSource
	geo       GeometrySource
	engine    *notify.Engine
	mailer    notify.Mailer // nil when no transport is configured
	notelog   NotificationLog
	accountID string
	interval  time.Duration
	log       *zap.Logger

	mu        sync.Mutex
	running   bool
	stop      chan struct{}
	seen      map[string]struct{}
	passCount int
	lastPass  *PassStats
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithMailer attaches an outbound email transport.
func WithMailer(m notify.Mailer) Option {
	return func(mon *Monitor) { mon.mailer = m }
}

// WithNotificationLog attaches a notification audit log.
func WithNotificationLog(l NotificationLog) Option {
	return func(mon *Monitor) { mon.notelog = l }
}

// WithInterval overrides the check-pass interval.
func WithInterval(d time.Duration) Option {
	return func(mon *Monitor) {
		if d > 0 {
			mon.interval = d
		}
	}
}

// New creates a monitor for one account.
func New(jobs JobSource, geo GeometrySource, engine *notify.Engine, accountID string, log *zap.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		jobs:      jobs,
		geo:       geo,
		engine:    engine,
		accountID: accountID,
		interval:  DefaultInterval,
		log:       log.Named("monitor"),
		seen:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start performs one immediate check pass and arms the interval timer.
// Calling Start while running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	if m.engine.Enabled() && m.mailer == nil {
		m.log.Warn("notifications enabled but no email transport configured; decisions will be logged only")
	}
	m.log.Info("monitor started",
		zap.String("account_id", m.accountID),
		zap.Duration("interval", m.interval))

	m.CheckPass(ctx)
	go m.loop(ctx, stop)
}

func (m *Monitor) loop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckPass(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop disarms the timer. The seen set is retained.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
	m.log.Info("monitor stopped")
}

// CheckPass runs one monitoring pass. Per-job failures (detail, geometry,
// send) are isolated to that job; nothing here aborts the remainder of the
// pass or the process.
func (m *Monitor) CheckPass(ctx context.Context) PassStats {
	stats := PassStats{StartedAt: time.Now()}
	defer m.recordPass(&stats)

	if !m.engine.Enabled() {
		m.log.Debug("notifications disabled, skipping pass")
		return stats
	}

	jobs, err := m.jobs.Refresh(ctx, m.accountID)
	if err != nil {
		stats.Error = err.Error()
		m.log.Warn("refresh failed, skipping pass",
			zap.String("account_id", m.accountID),
			zap.Error(err))
		return stats
	}
	stats.Checked = len(jobs)

	// Notification dispatch is sequential on purpose: send failures stay
	// isolated per job and outbound rate stays predictable.
	for _, job := range jobs {
		if !m.markSeen(job.ID) {
			continue
		}
		stats.NewlySeen++
		m.evaluate(ctx, job.ID, &stats)
	}
	return stats
}

// markSeen adds the id to the seen set before evaluation so a job is
// evaluated at most once regardless of evaluation outcome or failure.
// Returns false if the id was already present.
func (m *Monitor) markSeen(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[jobID]; ok {
		return false
	}
	m.seen[jobID] = struct{}{}
	return true
}

func (m *Monitor) evaluate(ctx context.Context, jobID string, stats *PassStats) {
	detail, err := m.jobs.JobDetail(ctx, m.accountID, jobID)
	if err != nil {
		stats.Skipped++
		m.log.Warn("detail fetch failed, job will not be retried",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}

	features, err := m.geo.GetRequestedGeometry(ctx, m.accountID, jobID)
	if err != nil {
		stats.Skipped++
		m.log.Warn("geometry fetch failed, job will not be retried",
			zap.String("job_id", jobID),
			zap.Error(err))
		return
	}

	dec := m.engine.ShouldNotify(detail, features)
	m.log.Debug("job evaluated",
		zap.String("job_id", jobID),
		zap.Bool("notify", dec.Notify),
		zap.String("reason", dec.Reason))
	if !dec.Notify {
		return
	}

	recipients := m.engine.Recipients(detail.Contractor)
	if len(recipients) == 0 {
		m.log.Debug("no recipients resolved", zap.String("job_id", jobID))
		return
	}

	if m.mailer == nil {
		return
	}

	subject, body := notify.ComposeMessage(detail, dec, m.engine.Message(dec.Trigger))
	if err := m.mailer.Send(ctx, recipients, subject, body); err != nil {
		m.log.Warn("notification send failed",
			zap.String("job_id", jobID),
			zap.Strings("recipients", recipients),
			zap.Error(err))
		return
	}
	stats.Notified++

	if m.notelog != nil {
		if _, err := m.notelog.LogNotification(m.accountID, jobID, string(dec.Trigger), dec.Reason, recipients); err != nil {
			m.log.Warn("notification log write failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}
}

func (m *Monitor) recordPass(stats *PassStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passCount++
	m.lastPass = stats
}

// Reset clears the seen set so already-processed jobs are re-evaluated on the
// next pass. Operator escape hatch, not used in normal operation.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = make(map[string]struct{})
	m.log.Info("seen set reset")
}

// Status reports running state, seen-set size, and pass accounting.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		Running:         m.running,
		SeenCount:       len(m.seen),
		IntervalSeconds: int64(m.interval.Seconds()),
		PassCount:       m.passCount,
	}
	if m.lastPass != nil {
		last := *m.lastPass
		status.LastPass = &last
	}
	return status
}
