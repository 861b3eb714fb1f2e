// ABOUTME: Tests for the incremental sync cache
// ABOUTME: Covers first-sync population, short-circuit, staleness-driven detail fetch, and deletion merge
package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/models"
)

// fakeClient is a scriptable upstream client.
type fakeClient struct {
	mu          sync.Mutex
	modified    []models.JobSummary
	listErr     error
	detailErr   map[string]error
	details     map[string]*models.JobDetail
	listCalls   int
	detailCalls int
	lastSince   time.Time
}

func (f *fakeClient) ListModifiedJobs(_ context.Context, _ string, since time.Time, _ bool) ([]models.JobSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastSince = since
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.modified, nil
}

func (f *fakeClient) GetJobDetail(_ context.Context, _ string, jobID string) (*models.JobDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls++
	if err := f.detailErr[jobID]; err != nil {
		return nil, err
	}
	if d, ok := f.details[jobID]; ok {
		copied := *d
		return &copied, nil
	}
	return &models.JobDetail{ID: jobID}, nil
}

func (f *fakeClient) GetRequestedGeometry(context.Context, string, string) (*geojson.FeatureCollection, error) {
	return geojson.NewFeatureCollection(), nil
}

func (f *fakeClient) GetWorkedGeometry(context.Context, string, string, bool) (*geojson.FeatureCollection, error) {
	return geojson.NewFeatureCollection(), nil
}

func (f *fakeClient) setModified(jobs ...models.JobSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modified = jobs
}

func (f *fakeClient) counts() (list, detail int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.detailCalls
}

func job(id string, modified time.Time) models.JobSummary {
	return models.JobSummary{ID: id, Name: "job " + id, Area: 10, ModifiedDate: modified}
}

func TestFirstRefreshPullsFullHistory(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{}
	client.setModified(job("a", base), job("b", base), job("c", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return base }))

	jobs, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// First poll reaches back ~90 days (plus the overlap window).
	assert.True(t, client.lastSince.Before(base.Add(-89*24*time.Hour)))

	_, details := client.counts()
	assert.Equal(t, 3, details, "all three details fetched on first sync")

	stats := cache.Stats("123")
	assert.Equal(t, 3, stats.JobCount)
	assert.Equal(t, 3, stats.DetailCacheSize)
}

func TestEmptyModifiedListShortCircuits(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	client := &fakeClient{}
	client.setModified(job("a", base), job("b", base), job("c", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return now }))

	first, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)

	// One second later upstream reports nothing modified.
	now = base.Add(1 * time.Second)
	client.setModified()

	second, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, first, second, "short-circuit returns a structurally equal list")

	_, details := client.counts()
	assert.Equal(t, 3, details, "no detail re-fetch on short-circuit")
}

func TestEmptyListPastWindowStillMerges(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	client := &fakeClient{}
	client.setModified(job("a", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return now }))
	_, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)

	// Past the short-circuit window the cache advances lastSync even on an
	// empty modified list.
	now = base.Add(10 * time.Minute)
	client.setModified()
	jobs, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
	assert.Equal(t, int64(0), cache.Stats("123").CacheAgeSeconds)
}

func TestDetailRefetchOnlyWhenStale(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	client := &fakeClient{
		details: map[string]*models.JobDetail{
			"a": {ID: "a", ModifiedDate: base},
		},
	}
	client.setModified(job("a", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return now }))
	_, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	_, details := client.counts()
	require.Equal(t, 1, details)

	// Same job reappears unchanged: cached detail is current, no re-fetch.
	now = now.Add(time.Minute)
	_, err = cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	_, details = client.counts()
	assert.Equal(t, 1, details)

	// Job modified upstream: detail is stale, one re-fetch.
	now = now.Add(time.Minute)
	client.setModified(job("a", base.Add(time.Hour)))
	clientDetail := &models.JobDetail{ID: "a", ModifiedDate: base.Add(time.Hour), Notes: "updated"}
	client.mu.Lock()
	client.details = map[string]*models.JobDetail{"a": clientDetail}
	client.mu.Unlock()

	jobs, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	_, details = client.counts()
	assert.Equal(t, 2, details)
	assert.Equal(t, "updated", jobs[0].Notes, "detail fields overlay the summary")
}

func TestDeletedJobRemovedFromListAndDetailCache(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	client := &fakeClient{}
	client.setModified(job("a", base), job("b", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return now }))
	_, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	deleted := job("a", base.Add(time.Minute))
	deleted.Deleted = true
	client.setModified(deleted)

	jobs, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "b", jobs[0].ID)

	stats := cache.Stats("123")
	assert.Equal(t, 1, stats.JobCount)
	assert.Equal(t, 1, stats.DetailCacheSize, "deleted job dropped from detail cache too")
}

func TestListFailureLeavesCacheUntouched(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	client := &fakeClient{}
	client.setModified(job("a", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return now }))
	_, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	before := cache.Stats("123")

	now = now.Add(time.Minute)
	client.mu.Lock()
	client.listErr = errors.New("upstream down")
	client.mu.Unlock()

	_, err = cache.Refresh(context.Background(), "123")
	require.Error(t, err)

	after := cache.Stats("123")
	assert.Equal(t, before.LastSync, after.LastSync, "failed refresh must not advance lastSync")
	assert.Equal(t, before.JobCount, after.JobCount)
}

func TestDetailFailureDoesNotAbortRefresh(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{
		detailErr: map[string]error{"b": errors.New("boom")},
	}
	client.setModified(job("a", base), job("b", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return base }))
	jobs, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err, "individual detail failure is not a cycle-level failure")
	assert.Len(t, jobs, 2)

	stats := cache.Stats("123")
	assert.Equal(t, 2, stats.JobCount)
	assert.Equal(t, 1, stats.DetailCacheSize, "only the successful fetch lands in the detail cache")
}

func TestClearDropsAccountState(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeClient{}
	client.setModified(job("a", base))

	cache := New(client, zap.NewNop(), WithClock(func() time.Time { return base }))
	_, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)

	cache.Clear("123")
	assert.Equal(t, 0, cache.Stats("123").JobCount)

	_, err = cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	cache.ClearAll()
	assert.Equal(t, 0, cache.Stats("123").JobCount)
}

// recordingStore captures persistence calls.
type recordingStore struct {
	mu       sync.Mutex
	upserted map[string]int
	deleted  []string
}

func (r *recordingStore) UpsertJobRecords(_ string, jobs []models.JobSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upserted == nil {
		r.upserted = make(map[string]int)
	}
	for _, j := range jobs {
		r.upserted[j.ID]++
	}
	return nil
}

func (r *recordingStore) DeleteJobRecords(_ string, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, ids...)
	return nil
}

func TestRefreshPersistsMergedState(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	client := &fakeClient{}
	client.setModified(job("a", base))

	store := &recordingStore{}
	cache := New(client, zap.NewNop(),
		WithClock(func() time.Time { return now }),
		WithRecordStore(store))

	_, err := cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, 1, store.upserted["a"])

	now = now.Add(time.Minute)
	deleted := job("a", base.Add(time.Minute))
	deleted.Deleted = true
	client.setModified(deleted)

	_, err = cache.Refresh(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, store.deleted)
}
