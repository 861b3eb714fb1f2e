// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation for job records and the notification log
package db

import (
	"database/sql"

	"github.com/cockroachdb/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_records (
	job_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	name TEXT NOT NULL,
	customer TEXT,
	contractor TEXT,
	area REAL NOT NULL DEFAULT 0,
	status TEXT,
	order_number TEXT,
	modified_date DATETIME,
	due_date DATETIME,
	payload TEXT NOT NULL,
	first_seen_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_records_account_id ON job_records(account_id);
CREATE INDEX IF NOT EXISTS idx_job_records_contractor ON job_records(contractor);

CREATE TABLE IF NOT EXISTS notification_log (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	account_id TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	reason TEXT,
	recipients TEXT NOT NULL,
	sent_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notification_log_job_id ON notification_log(job_id);
CREATE INDEX IF NOT EXISTS idx_notification_log_account_id ON notification_log(account_id);
`

// InitSchema creates all tables and indexes if they do not exist.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "initialize schema")
	}
	return nil
}
