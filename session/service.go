package session

import (
	"context"
	"time"

	"github.com/trpc-group/compliance-rag/log"
)

// CacheTier is the subset of session/cache.Cache the Service needs.
type CacheTier interface {
	PutSession(ctx context.Context, userID, sessionID, name string, createdAt time.Time) error
	RemoveSession(ctx context.Context, userID, sessionID string) error
	Sessions(ctx context.Context, userID string) (map[string]Session, bool, error)
	AppendMessage(ctx context.Context, msg Message) error
	Messages(ctx context.Context, userID, sessionID string) ([]Message, bool, error)
	ReplaceMessages(ctx context.Context, userID, sessionID string, messages []Message) error
	DeleteMessages(ctx context.Context, userID, sessionID string) error
	// NextOrder atomically returns the next monotonic sequence number for a
	// session's messages, starting at 0. It breaks ties when two messages
	// land on the same millisecond timestamp, so a cache-miss read-through
	// sorted by (Timestamp, Order) never reorders a user/assistant pair.
	NextOrder(ctx context.Context, userID, sessionID string) (int, error)
}

// RowStoreTier is the subset of session/rowstore.Store the Service needs.
type RowStoreTier interface {
	CreateSession(ctx context.Context, userID, name string) (string, error)
	ListActiveSessions(ctx context.Context, userID string) ([]Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (Session, bool, error)
	RenameSession(ctx context.Context, userID, sessionID, name string) error
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// TextIndexTier is the subset of session/textindex.Index the Service needs.
type TextIndexTier interface {
	IndexMessage(ctx context.Context, msg Message) error
	Messages(ctx context.Context, userID, sessionID string) ([]Message, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// threeTierService composes the cache, row store, and text index into the
// write-through Service contract.
type threeTierService struct {
	cache CacheTier
	rows  RowStoreTier
	text  TextIndexTier
}

var _ Service = (*threeTierService)(nil)

// NewService builds a Service over the three storage tiers.
func NewService(cache CacheTier, rows RowStoreTier, text TextIndexTier) Service {
	return &threeTierService{cache: cache, rows: rows, text: text}
}

// CreateSession: row store write is fatal; cache/index failures warn.
func (s *threeTierService) CreateSession(ctx context.Context, userID, name string) (string, error) {
	sessionID, err := s.rows.CreateSession(ctx, userID, name)
	if err != nil {
		return "", err
	}
	createdAt := time.Now().UTC()
	if err := s.cache.PutSession(ctx, userID, sessionID, name, createdAt); err != nil {
		log.Warnf("session: cache put after create failed for %s/%s: %v", userID, sessionID, err)
	}
	return sessionID, nil
}

// ListSessions reads the cache hash first; on miss, reads the row store
// and refills the cache.
func (s *threeTierService) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	cached, ok, err := s.cache.Sessions(ctx, userID)
	if err == nil && ok {
		out := make([]Session, 0, len(cached))
		for _, sess := range cached {
			out = append(out, sess)
		}
		return out, nil
	}

	sessions, err := s.rows.ListActiveSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		if err := s.cache.PutSession(ctx, userID, sess.SessionID, sess.Name, sess.CreatedAt); err != nil {
			log.Warnf("session: cache refill failed for %s/%s: %v", userID, sess.SessionID, err)
		}
	}
	return sessions, nil
}

// GetSession reads the row store directly; it is the authoritative source
// for session existence and metadata.
func (s *threeTierService) GetSession(ctx context.Context, userID, sessionID string) (Session, bool, error) {
	return s.rows.GetSession(ctx, userID, sessionID)
}

// RenameSession updates the row store and invalidates the stale cache
// entry by rewriting it.
func (s *threeTierService) RenameSession(ctx context.Context, userID, sessionID, name string) error {
	if err := s.rows.RenameSession(ctx, userID, sessionID, name); err != nil {
		return err
	}
	if err := s.cache.PutSession(ctx, userID, sessionID, name, time.Now().UTC()); err != nil {
		log.Warnf("session: cache rename refresh failed for %s/%s: %v", userID, sessionID, err)
	}
	return nil
}

// DeleteSession soft-deletes the row, removes the cache entry, and
// best-effort deletes from the index. Idempotent.
func (s *threeTierService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if err := s.rows.DeleteSession(ctx, userID, sessionID); err != nil {
		return err
	}
	if err := s.cache.RemoveSession(ctx, userID, sessionID); err != nil {
		log.Warnf("session: cache remove failed for %s/%s: %v", userID, sessionID, err)
	}
	if err := s.cache.DeleteMessages(ctx, userID, sessionID); err != nil {
		log.Warnf("session: cache message clear failed for %s/%s: %v", userID, sessionID, err)
	}
	if err := s.text.DeleteSession(ctx, userID, sessionID); err != nil {
		log.Warnf("session: index delete failed for %s/%s: %v", userID, sessionID, err)
	}
	return nil
}

// AppendMessage: cache write is fatal; index write is warn-and-continue.
func (s *threeTierService) AppendMessage(ctx context.Context, userID, sessionID string, role Role, content string) error {
	order, err := s.cache.NextOrder(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	msg := Message{
		SessionID: sessionID, UserID: userID, Role: role,
		Content: content, Timestamp: time.Now().UTC(), Order: order,
	}
	if err := s.cache.AppendMessage(ctx, msg); err != nil {
		return err
	}
	if err := s.text.IndexMessage(ctx, msg); err != nil {
		log.Warnf("session: index append failed for %s/%s: %v", userID, sessionID, err)
	}
	return nil
}

// GetMessages reads the cache list first; on miss, reads the text index
// and refills the cache with a fresh TTL.
func (s *threeTierService) GetMessages(ctx context.Context, userID, sessionID string) ([]Message, error) {
	cached, ok, err := s.cache.Messages(ctx, userID, sessionID)
	if err == nil && ok {
		return cached, nil
	}

	messages, err := s.text.Messages(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.ReplaceMessages(ctx, userID, sessionID, messages); err != nil {
		log.Warnf("session: cache refill failed for %s/%s: %v", userID, sessionID, err)
	}
	return messages, nil
}

// DeleteMessages clears a session's messages from both the cache and the
// text index without deleting the session itself.
func (s *threeTierService) DeleteMessages(ctx context.Context, userID, sessionID string) error {
	if err := s.cache.DeleteMessages(ctx, userID, sessionID); err != nil {
		log.Warnf("session: cache message clear failed for %s/%s: %v", userID, sessionID, err)
	}
	return s.text.DeleteSession(ctx, userID, sessionID)
}
