// Package rowstore is the MySQL-backed authoritative session store:
// users(user_id, username, created_at) and
// sessions(session_id, user_id, name, created_at, updated_at, is_active).
package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trpc-group/compliance-rag/session"
	"github.com/trpc-group/compliance-rag/storage/mysql"
)

// Store is the row-store tier of the session service.
type Store struct {
	client mysql.Client
}

// New wraps an existing MySQL client.
func New(client mysql.Client) *Store {
	return &Store{client: client}
}

// Schema is the DDL this store expects at startup. Migrations are run
// externally; this is documentation of the expected shape.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
  user_id VARCHAR(64) PRIMARY KEY,
  username VARCHAR(255) NOT NULL,
  created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS sessions (
  session_id VARCHAR(64) PRIMARY KEY,
  user_id VARCHAR(64) NOT NULL,
  name VARCHAR(255) NOT NULL,
  created_at DATETIME NOT NULL,
  updated_at DATETIME NOT NULL,
  is_active TINYINT(1) NOT NULL DEFAULT 1,
  INDEX idx_sessions_user (user_id)
);
`

// CreateSession upserts the user row and inserts a new session row,
// returning the generated session id.
func (s *Store) CreateSession(ctx context.Context, userID, name string) (string, error) {
	sessionID := uuid.New().String()
	now := time.Now().UTC()

	return sessionID, s.client.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (user_id, username, created_at) VALUES (?, ?, ?)
			 ON DUPLICATE KEY UPDATE user_id = user_id`,
			userID, userID, now,
		); err != nil {
			return fmt.Errorf("rowstore: upsert user: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (session_id, user_id, name, created_at, updated_at, is_active)
			 VALUES (?, ?, ?, ?, ?, 1)`,
			sessionID, userID, name, now, now,
		); err != nil {
			return fmt.Errorf("rowstore: insert session: %w", err)
		}
		return nil
	})
}

// ListActiveSessions returns every active session for userID.
func (s *Store) ListActiveSessions(ctx context.Context, userID string) ([]session.Session, error) {
	var out []session.Session
	err := s.client.Query(ctx, func(rows *sql.Rows) error {
		for rows.Next() {
			var sess session.Session
			if err := rows.Scan(&sess.SessionID, &sess.Name, &sess.CreatedAt); err != nil {
				return err
			}
			sess.UserID = userID
			sess.Active = true
			out = append(out, sess)
		}
		return nil
	}, `SELECT session_id, name, created_at FROM sessions WHERE user_id = ? AND is_active = 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rowstore: list sessions: %w", err)
	}
	return out, nil
}

// GetSession returns one session, or ok=false if it doesn't exist for
// that user.
func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (session.Session, bool, error) {
	var sess session.Session
	found := false
	err := s.client.Query(ctx, func(rows *sql.Rows) error {
		if rows.Next() {
			var active bool
			if err := rows.Scan(&sess.SessionID, &sess.Name, &sess.CreatedAt, &active); err != nil {
				return err
			}
			sess.UserID = userID
			sess.Active = active
			found = true
		}
		return nil
	}, `SELECT session_id, name, created_at, is_active FROM sessions WHERE user_id = ? AND session_id = ?`,
		userID, sessionID)
	if err != nil {
		return session.Session{}, false, fmt.Errorf("rowstore: get session: %w", err)
	}
	return sess, found, nil
}

// RenameSession updates a session's display name.
func (s *Store) RenameSession(ctx context.Context, userID, sessionID, name string) error {
	_, err := s.client.ExecContext(ctx,
		`UPDATE sessions SET name = ?, updated_at = ? WHERE user_id = ? AND session_id = ?`,
		name, time.Now().UTC(), userID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("rowstore: rename session: %w", err)
	}
	return nil
}

// DeleteSession soft-deletes a session. Idempotent: deleting an
// already-inactive or missing session is not an error.
func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.client.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0, updated_at = ? WHERE user_id = ? AND session_id = ?`,
		time.Now().UTC(), userID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("rowstore: delete session: %w", err)
	}
	return nil
}
