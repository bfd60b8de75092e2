// Package session defines the session/message domain types and the
// three-tier Service contract composing cache, row store, and text index.
package session

import (
	"context"
	"time"
)

// Role is a message's speaker.
type Role string

// Roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is one conversation thread owned by a user.
type Session struct {
	SessionID string
	UserID    string
	Name      string
	CreatedAt time.Time
	Active    bool
}

// Message is one append-only turn within a Session.
type Message struct {
	SessionID string
	UserID    string
	Role      Role
	Content   string
	Timestamp time.Time
	Order     int
}

// Service is the narrow three-tier session/message contract the
// orchestrator and the HTTP layer depend on.
type Service interface {
	// CreateSession creates a new session for userID, returning its id.
	CreateSession(ctx context.Context, userID, name string) (string, error)
	// ListSessions returns every active session for userID.
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	// GetSession returns one session, or ok=false if it doesn't exist or
	// belongs to a different user.
	GetSession(ctx context.Context, userID, sessionID string) (Session, bool, error)
	// RenameSession updates a session's display name.
	RenameSession(ctx context.Context, userID, sessionID, name string) error
	// DeleteSession soft-deletes a session. Idempotent.
	DeleteSession(ctx context.Context, userID, sessionID string) error
	// AppendMessage appends one message to a session.
	AppendMessage(ctx context.Context, userID, sessionID string, role Role, content string) error
	// GetMessages returns every message of a session, ordered by
	// (timestamp, order) ascending.
	GetMessages(ctx context.Context, userID, sessionID string) ([]Message, error)
	// DeleteMessages clears a session's messages without deleting the
	// session itself.
	DeleteMessages(ctx context.Context, userID, sessionID string) error
}
