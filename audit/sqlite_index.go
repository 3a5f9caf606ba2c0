package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const auditIndexSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  event_type TEXT NOT NULL,
  user_id TEXT,
  conversation_id TEXT,
  request_id TEXT,
  guardrail_name TEXT,
  decision TEXT,
  reason TEXT,
  confidence REAL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_records_user ON audit_records(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_records_conversation ON audit_records(conversation_id);
CREATE INDEX IF NOT EXISTS idx_audit_records_event_type ON audit_records(event_type);
`

// SQLiteIndex is an optional, additive queryable mirror of the audit
// log: every record written to the JSON-Lines destination is also
// inserted here, so Query can be served from an index instead of
// re-scanning the log file. The log file remains the source of record
// (spec §6.5); this is a query accelerator, not a replacement.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create sqlite index directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(auditIndexSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: initialize sqlite index schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Insert mirrors one record into the index.
func (s *SQLiteIndex) Insert(r Record) error {
	if s == nil || s.db == nil {
		return nil
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("audit: encode sqlite index payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO audit_records
		 (timestamp, event_type, user_id, conversation_id, request_id, guardrail_name, decision, reason, confidence, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(time.RFC3339Nano), string(r.EventType), r.UserID, r.ConversationID, r.RequestID,
		r.GuardrailName, string(r.Decision), r.Reason, r.Confidence, string(payload),
	)
	if err != nil {
		return fmt.Errorf("audit: insert sqlite index row: %w", err)
	}
	return nil
}

// Query serves QueryFilter from the index rather than the log file.
func (s *SQLiteIndex) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := "SELECT payload FROM audit_records WHERE 1=1"
	var args []any
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.ConversationID != "" {
		query += " AND conversation_id = ?"
		args = append(args, filter.ConversationID)
	}
	if filter.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, string(filter.EventType))
	}
	if filter.LastHour {
		query += " AND timestamp >= ?"
		args = append(args, time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano))
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query sqlite index: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("audit: scan sqlite index row: %w", err)
		}
		var r Record
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate sqlite index rows: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
