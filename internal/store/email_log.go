package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Alchemy-Risen/weekly-reality-check/internal/model"
)

type EmailLogStore struct {
	db *sql.DB
}

func NewEmailLogStore(db *sql.DB) *EmailLogStore {
	return &EmailLogStore{db: db}
}

// Create appends an email audit row. Metadata is stored as JSON.
func (s *EmailLogStore) Create(userID int64, emailType string, metadata map[string]any) error {
	meta := "{}"
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal email metadata: %w", err)
		}
		meta = string(b)
	}
	_, err := s.db.Exec(
		`INSERT INTO email_logs (user_id, email_type, metadata) VALUES (?, ?, ?)`,
		userID, emailType, meta,
	)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// ListByUser returns the audit trail for a user, newest first. Nothing in
// the request path reads these; this exists for tests and operator queries.
func (s *EmailLogStore) ListByUser(userID int64) ([]model.EmailLog, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, email_type, metadata, created_at FROM email_logs WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	var logs []model.EmailLog
	for rows.Next() {
		var l model.EmailLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.EmailType, &l.Metadata, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate email logs: %w", err)
	}
	return logs, nil
}
