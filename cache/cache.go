// ABOUTME: Incremental per-account sync cache mirroring upstream job state
// ABOUTME: Owns the from-date polling protocol, detail-fetch fan-out, and merge algorithm
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/fieldwatch/models"
	"github.com/harperreed/fieldwatch/upstream"
)

const (
	// overlapWindow is subtracted from the last-sync timestamp before polling.
	// Tolerates clock skew and near-boundary writes upstream; without it jobs
	// modified between two poll windows can be missed silently.
	overlapWindow = 5 * time.Minute

	// shortCircuitWindow bounds how old a non-empty cache may be for an empty
	// modified-list response to skip the transform-and-merge pass.
	shortCircuitWindow = 5 * time.Minute

	// initialLookback seeds a brand-new account state so the first refresh
	// behaves as a full historical pull.
	initialLookback = 90 * 24 * time.Hour

	// detailFetchLimit bounds the detail-fetch fan-out per refresh.
	detailFetchLimit = 8
)

// RecordStore receives the merged job state after each successful refresh.
// Implementations are expected to be plain CRUD keyed by job id.
type RecordStore interface {
	UpsertJobRecords(accountID string, jobs []models.JobSummary) error
	DeleteJobRecords(accountID string, jobIDs []string) error
}

// accountState is the cached mirror for one account.
type accountState struct {
	lastSync time.Time
	jobs     map[string]models.JobSummary
	details  map[string]*models.JobDetail
}

// Stats reports cache health for one account.
type Stats struct {
	AccountID          string    `json:"account_id"`
	JobCount           int       `json:"job_count"`
	DetailCacheSize    int       `json:"detail_cache_size"`
	LastSync           time.Time `json:"last_sync"`
	CacheAgeSeconds    int64     `json:"cache_age_seconds"`
	ShortCircuitInSecs int64     `json:"short_circuit_in_seconds"`
}

// SyncCache answers "what are the current jobs for account X" with minimal
// upstream traffic.
//
// The mutex guards the account map and per-account state mutation only; it
// does not serialize whole refreshes. Two concurrent Refresh calls for the
// same account may both poll upstream and the later merge wins. The scheduler
// guards its own runs; request-triggered refreshes are not serialized against
// it.
type SyncCache struct {
	client upstream.Client
	store  RecordStore // optional
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	accounts map[string]*accountState
}

// Option configures a SyncCache.
type Option func(*SyncCache)

// WithRecordStore attaches a persistent job-record store.
func WithRecordStore(store RecordStore) Option {
	return func(c *SyncCache) { c.store = store }
}

// WithClock overrides the cache's clock (tests drive logical time with this).
func WithClock(now func() time.Time) Option {
	return func(c *SyncCache) { c.now = now }
}

// New creates a SyncCache over the given upstream client.
func New(client upstream.Client, log *zap.Logger, opts ...Option) *SyncCache {
	c := &SyncCache{
		client:   client,
		log:      log.Named("cache"),
		now:      time.Now,
		accounts: make(map[string]*accountState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// state returns the account's state, lazily creating it seeded far enough in
// the past that the first refresh pulls full history.
func (c *SyncCache) state(accountID string) *accountState {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.accounts[accountID]
	if !ok {
		st = &accountState{
			lastSync: c.now().Add(-initialLookback),
			jobs:     make(map[string]models.JobSummary),
			details:  make(map[string]*models.JobDetail),
		}
		c.accounts[accountID] = st
	}
	return st
}

// Refresh polls upstream for jobs modified since the last sync (minus the
// overlap window), re-fetches details only where the cached copy is missing or
// stale, merges, and returns the transformed job list. A modified-list failure
// leaves prior state untouched; individual detail-fetch failures are logged
// and that job proceeds with summary-only data this cycle.
func (c *SyncCache) Refresh(ctx context.Context, accountID string) ([]models.JobSummary, error) {
	st := c.state(accountID)

	c.mu.Lock()
	lastSync := st.lastSync
	cached := len(st.jobs)
	c.mu.Unlock()

	from := lastSync.Add(-overlapWindow)
	modified, err := c.client.ListModifiedJobs(ctx, accountID, from, true)
	if err != nil {
		return nil, errors.Wrapf(err, "list modified jobs for account %s", accountID)
	}

	now := c.now()
	if len(modified) == 0 && cached > 0 && now.Sub(lastSync) < shortCircuitWindow {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.transform(st), nil
	}

	// Decide which details are stale or missing.
	c.mu.Lock()
	var toFetch []models.JobSummary
	for _, job := range modified {
		if job.Deleted {
			continue
		}
		detail, ok := st.details[job.ID]
		if !ok || !detail.ModifiedDate.Equal(job.ModifiedDate) {
			toFetch = append(toFetch, job)
		}
	}
	c.mu.Unlock()

	fetched := c.fetchDetails(ctx, accountID, toFetch)

	// Merge. No partial commit: the batch has fully settled by now.
	c.mu.Lock()
	var deleted []string
	for _, job := range modified {
		if job.Deleted {
			delete(st.jobs, job.ID)
			delete(st.details, job.ID)
			deleted = append(deleted, job.ID)
			continue
		}
		st.jobs[job.ID] = job
	}
	for id, detail := range fetched {
		st.details[id] = detail
	}
	st.lastSync = now
	result := c.transform(st)
	c.mu.Unlock()

	c.persist(accountID, result, deleted)

	c.log.Debug("refresh complete",
		zap.String("account_id", accountID),
		zap.Int("modified", len(modified)),
		zap.Int("details_fetched", len(fetched)),
		zap.Int("jobs", len(result)))
	return result, nil
}

// fetchDetails fetches the given jobs' details concurrently. Failures are
// per-item: a failed fetch is logged and omitted from the result, never
// aborting siblings.
func (c *SyncCache) fetchDetails(ctx context.Context, accountID string, jobs []models.JobSummary) map[string]*models.JobDetail {
	if len(jobs) == 0 {
		return nil
	}

	var mu sync.Mutex
	fetched := make(map[string]*models.JobDetail, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(detailFetchLimit)
	for _, job := range jobs {
		g.Go(func() error {
			detail, err := c.client.GetJobDetail(ctx, accountID, job.ID)
			if err != nil {
				c.log.Warn("detail fetch failed, continuing with summary data",
					zap.String("account_id", accountID),
					zap.String("job_id", job.ID),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			fetched[job.ID] = detail
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	return fetched
}

// transform builds the returned job list, overlaying detail-cache fields onto
// each summary. Detail fields win where both exist. Caller holds c.mu.
func (c *SyncCache) transform(st *accountState) []models.JobSummary {
	out := make([]models.JobSummary, 0, len(st.jobs))
	for id, job := range st.jobs {
		if detail, ok := st.details[id]; ok {
			job.Products = detail.Products
			job.Notes = detail.Notes
			job.Address = detail.Address
			job.RTS = detail.RTS
			if detail.Customer != "" {
				job.Customer = detail.Customer
			}
			if detail.Contractor != "" {
				job.Contractor = detail.Contractor
			}
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// persist writes the merged state through to the record store, if attached.
// Store failures are logged, never surfaced: persistence is an audit trail,
// not part of the refresh contract.
func (c *SyncCache) persist(accountID string, jobs []models.JobSummary, deleted []string) {
	if c.store == nil {
		return
	}
	if err := c.store.UpsertJobRecords(accountID, jobs); err != nil {
		c.log.Warn("job record upsert failed", zap.String("account_id", accountID), zap.Error(err))
	}
	if err := c.store.DeleteJobRecords(accountID, deleted); err != nil {
		c.log.Warn("job record delete failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

// JobDetail fetches a single job's detail live from upstream, bypassing the
// cache. Callers use this when guaranteed-current data matters more than
// traffic.
func (c *SyncCache) JobDetail(ctx context.Context, accountID, jobID string) (*models.JobDetail, error) {
	detail, err := c.client.GetJobDetail(ctx, accountID, jobID)
	if err != nil {
		return nil, errors.Wrapf(err, "get detail for job %s", jobID)
	}
	return detail, nil
}

// Clear drops cached state for one account.
func (c *SyncCache) Clear(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.accounts, accountID)
}

// ClearAll drops cached state for every account.
func (c *SyncCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = make(map[string]*accountState)
}

// Stats reports job counts, detail-cache size, cache age, and seconds until
// the short-circuit window closes for an account. Unknown accounts report
// zeros.
func (c *SyncCache) Stats(accountID string) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{AccountID: accountID}
	st, ok := c.accounts[accountID]
	if !ok {
		return stats
	}

	age := c.now().Sub(st.lastSync)
	stats.JobCount = len(st.jobs)
	stats.DetailCacheSize = len(st.details)
	stats.LastSync = st.lastSync
	stats.CacheAgeSeconds = int64(age.Seconds())
	if remaining := shortCircuitWindow - age; remaining > 0 {
		stats.ShortCircuitInSecs = int64(remaining.Seconds())
	}
	return stats
}
