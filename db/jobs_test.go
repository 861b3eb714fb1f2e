// ABOUTME: Tests for the job-record store
// ABOUTME: Covers upsert semantics, first-seen preservation, deletion, and the notification log
package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/fieldwatch/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := OpenDatabase(filepath.Join(t.TempDir(), "fieldwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func summary(id, name string) models.JobSummary {
	return models.JobSummary{
		ID:           id,
		Name:         name,
		Contractor:   "AcmeCo",
		Area:         12.5,
		Status:       models.StatusOpen,
		ModifiedDate: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestUpsertAndGetJobRecord(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	require.NoError(t, store.UpsertJobRecords("123", []models.JobSummary{summary("a", "North 40")}))

	rec, err := store.GetJobRecord("a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "North 40", rec.Name)
	assert.Equal(t, "123", rec.AccountID)
	assert.Equal(t, "AcmeCo", rec.Contractor)
	assert.Equal(t, "a", rec.Summary.ID)
	assert.False(t, rec.FirstSeenAt.IsZero())
}

func TestUpsertPreservesFirstSeen(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	require.NoError(t, store.UpsertJobRecords("123", []models.JobSummary{summary("a", "North 40")}))
	first, err := store.GetJobRecord("a")
	require.NoError(t, err)

	require.NoError(t, store.UpsertJobRecords("123", []models.JobSummary{summary("a", "North 40 (renamed)")}))
	second, err := store.GetJobRecord("a")
	require.NoError(t, err)

	assert.Equal(t, "North 40 (renamed)", second.Name)
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
}

func TestGetJobRecordMissing(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	rec, err := store.GetJobRecord("nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteJobRecords(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	require.NoError(t, store.UpsertJobRecords("123", []models.JobSummary{
		summary("a", "North 40"),
		summary("b", "South 20"),
	}))
	require.NoError(t, store.DeleteJobRecords("123", []string{"a"}))

	rec, err := store.GetJobRecord("a")
	require.NoError(t, err)
	assert.Nil(t, rec)

	records, err := store.ListJobRecords("123")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].JobID)
}

func TestListJobRecordsScopedToAccount(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	require.NoError(t, store.UpsertJobRecords("123", []models.JobSummary{summary("a", "North 40")}))
	require.NoError(t, store.UpsertJobRecords("456", []models.JobSummary{summary("b", "South 20")}))

	records, err := store.ListJobRecords("123")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].JobID)
}

func TestNotificationLog(t *testing.T) {
	store := NewJobStore(setupTestDB(t))

	id, err := store.LogNotification("123", "a", "zero_area", "job area is zero", []string{"ops@x.com", "acme@x.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = store.LogNotification("123", "b", "nogo_zone", "nogo template type present", []string{"ops@x.com"})
	require.NoError(t, err)

	records, err := store.ListNotifications("123", 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first (ULIDs sort by creation time).
	assert.Equal(t, "b", records[0].JobID)
	assert.Equal(t, []string{"ops@x.com", "acme@x.com"}, records[1].Recipients)

	empty, err := store.ListNotifications("other", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
