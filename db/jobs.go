// ABOUTME: Job-record store backed by SQLite
// ABOUTME: Upserts mirrored job state per account and records dispatched notifications
package db

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/oklog/ulid/v2"

	"github.com/harperreed/fieldwatch/models"
)

// JobStore persists historical job records keyed by job id, plus an audit log
// of dispatched notifications.
type JobStore struct {
	db *sql.DB
}

// NewJobStore wraps an open database in a JobStore.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// JobRecord is the persisted form of a mirrored job.
type JobRecord struct {
	JobID       string            `json:"job_id"`
	AccountID   string            `json:"account_id"`
	Name        string            `json:"name"`
	Customer    string            `json:"customer,omitempty"`
	Contractor  string            `json:"contractor,omitempty"`
	Area        float64           `json:"area"`
	Status      string            `json:"status,omitempty"`
	OrderNumber string            `json:"order_number,omitempty"`
	Summary     models.JobSummary `json:"summary"`
	FirstSeenAt time.Time         `json:"first_seen_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NotificationRecord is one entry in the notification audit log.
type NotificationRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	AccountID  string    `json:"account_id"`
	Trigger    string    `json:"trigger"`
	Reason     string    `json:"reason,omitempty"`
	Recipients []string  `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

// UpsertJobRecords inserts or replaces one record per job, preserving
// first_seen_at for jobs already on file.
func (s *JobStore) UpsertJobRecords(accountID string, jobs []models.JobSummary) error {
	if len(jobs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin upsert transaction")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO job_records (job_id, account_id, name, customer, contractor, area, status, order_number, modified_date, due_date, payload, first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(job_id) DO UPDATE SET
			account_id = excluded.account_id,
			name = excluded.name,
			customer = excluded.customer,
			contractor = excluded.contractor,
			area = excluded.area,
			status = excluded.status,
			order_number = excluded.order_number,
			modified_date = excluded.modified_date,
			due_date = excluded.due_date,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return errors.Wrap(err, "prepare upsert")
	}
	defer func() { _ = stmt.Close() }()

	for _, job := range jobs {
		payload, err := json.Marshal(job)
		if err != nil {
			return errors.Wrapf(err, "marshal job %s", job.ID)
		}
		if _, err := stmt.Exec(job.ID, accountID, job.Name, job.Customer, job.Contractor,
			job.Area, job.Status, job.OrderNumber, job.ModifiedDate, job.DueDate, string(payload)); err != nil {
			return errors.Wrapf(err, "upsert job %s", job.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit upsert transaction")
	}
	return nil
}

// DeleteJobRecords removes the records for the given job ids.
func (s *JobStore) DeleteJobRecords(accountID string, jobIDs []string) error {
	if len(jobIDs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin delete transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range jobIDs {
		if _, err := tx.Exec(`DELETE FROM job_records WHERE job_id = ? AND account_id = ?`, id, accountID); err != nil {
			return errors.Wrapf(err, "delete job %s", id)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit delete transaction")
	}
	return nil
}

// GetJobRecord returns the record for a job id, or nil if none exists.
func (s *JobStore) GetJobRecord(jobID string) (*JobRecord, error) {
	var rec JobRecord
	var payload string
	err := s.db.QueryRow(`
		SELECT job_id, account_id, name, customer, contractor, area, status, order_number, payload, first_seen_at, updated_at
		FROM job_records
		WHERE job_id = ?
	`, jobID).Scan(&rec.JobID, &rec.AccountID, &rec.Name, &rec.Customer, &rec.Contractor,
		&rec.Area, &rec.Status, &rec.OrderNumber, &payload, &rec.FirstSeenAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get job record %s", jobID)
	}

	if err := json.Unmarshal([]byte(payload), &rec.Summary); err != nil {
		return nil, errors.Wrapf(err, "decode payload for job %s", jobID)
	}
	return &rec, nil
}

// ListJobRecords returns all records for an account ordered by update recency.
func (s *JobStore) ListJobRecords(accountID string) ([]JobRecord, error) {
	rows, err := s.db.Query(`
		SELECT job_id, account_id, name, customer, contractor, area, status, order_number, payload, first_seen_at, updated_at
		FROM job_records
		WHERE account_id = ?
		ORDER BY updated_at DESC
	`, accountID)
	if err != nil {
		return nil, errors.Wrapf(err, "list job records for account %s", accountID)
	}
	defer func() { _ = rows.Close() }()

	var records []JobRecord
	for rows.Next() {
		var rec JobRecord
		var payload string
		if err := rows.Scan(&rec.JobID, &rec.AccountID, &rec.Name, &rec.Customer, &rec.Contractor,
			&rec.Area, &rec.Status, &rec.OrderNumber, &payload, &rec.FirstSeenAt, &rec.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan job record")
		}
		if err := json.Unmarshal([]byte(payload), &rec.Summary); err != nil {
			return nil, errors.Wrapf(err, "decode payload for job %s", rec.JobID)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate job records")
	}
	return records, nil
}

// LogNotification appends an entry to the notification audit log and returns
// its id.
func (s *JobStore) LogNotification(accountID, jobID, trigger, reason string, recipients []string) (string, error) {
	id := ulid.Make().String()

	_, err := s.db.Exec(`
		INSERT INTO notification_log (id, job_id, account_id, trigger_type, reason, recipients, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, id, jobID, accountID, trigger, reason, strings.Join(recipients, ","))
	if err != nil {
		return "", errors.Wrapf(err, "log notification for job %s", jobID)
	}
	return id, nil
}

// ListNotifications returns the notification log for an account, newest first.
func (s *JobStore) ListNotifications(accountID string, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, job_id, account_id, trigger_type, reason, recipients, sent_at
		FROM notification_log
		WHERE account_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "list notifications for account %s", accountID)
	}
	defer func() { _ = rows.Close() }()

	var records []NotificationRecord
	for rows.Next() {
		var rec NotificationRecord
		var recipients string
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.AccountID, &rec.Trigger, &rec.Reason, &recipients, &rec.SentAt); err != nil {
			return nil, errors.Wrap(err, "scan notification record")
		}
		if recipients != "" {
			rec.Recipients = strings.Split(recipients, ",")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate notification records")
	}
	return records, nil
}
