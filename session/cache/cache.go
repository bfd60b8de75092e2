// Package cache implements the Redis-backed L1 tier of the session store:
// a per-user session hash and a per-session message list, both refreshed
// with a 24-hour TTL on every write and read-through.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trpc-group/compliance-rag/session"
)

// DefaultTTL is the refresh TTL applied to session hashes and message
// lists on every access, per the persisted-state layout.
const DefaultTTL = 24 * time.Hour

// sessionMeta is the JSON payload stored in the sessions hash.
type sessionMeta struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// messageEntry is the JSON payload stored in the messages list.
type messageEntry struct {
	Role      session.Role `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Order     int          `json:"order"`
}

// Cache is the Redis L1 tier.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New wraps an existing Redis client.
func New(client redis.UniversalClient) *Cache {
	return &Cache{client: client, ttl: DefaultTTL}
}

func sessionsKey(userID string) string { return fmt.Sprintf("sessions:%s", userID) }
func messagesKey(userID, sessionID string) string {
	return fmt.Sprintf("messages:%s:%s", userID, sessionID)
}
func orderKey(userID, sessionID string) string {
	return fmt.Sprintf("messages:%s:%s:order", userID, sessionID)
}

// PutSession writes one session's metadata into the user's session hash.
func (c *Cache) PutSession(ctx context.Context, userID, sessionID, name string, createdAt time.Time) error {
	payload, err := json.Marshal(sessionMeta{Name: name, CreatedAt: createdAt})
	if err != nil {
		return err
	}
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, sessionsKey(userID), sessionID, payload)
	pipe.Expire(ctx, sessionsKey(userID), c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// RemoveSession deletes one session from the user's session hash.
func (c *Cache) RemoveSession(ctx context.Context, userID, sessionID string) error {
	return c.client.HDel(ctx, sessionsKey(userID), sessionID).Err()
}

// Sessions returns every cached session for userID. ok is false on a
// cache miss (empty hash), signaling the caller should read through.
func (c *Cache) Sessions(ctx context.Context, userID string) (map[string]session.Session, bool, error) {
	raw, err := c.client.HGetAll(ctx, sessionsKey(userID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	out := make(map[string]session.Session, len(raw))
	for sessionID, payload := range raw {
		var meta sessionMeta
		if err := json.Unmarshal([]byte(payload), &meta); err != nil {
			return nil, false, fmt.Errorf("session/cache: decode session %s: %w", sessionID, err)
		}
		out[sessionID] = session.Session{
			SessionID: sessionID,
			UserID:    userID,
			Name:      meta.Name,
			CreatedAt: meta.CreatedAt,
			Active:    true,
		}
	}
	c.client.Expire(ctx, sessionsKey(userID), c.ttl)
	return out, true, nil
}

// NextOrder atomically increments and returns a per-session sequence
// counter via Redis INCR, so concurrent appends to the same session never
// collide. The returned order is 0-based.
func (c *Cache) NextOrder(ctx context.Context, userID, sessionID string) (int, error) {
	key := orderKey(userID, sessionID)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()) - 1, nil
}

// AppendMessage pushes one message onto a session's message list and
// refreshes its TTL.
func (c *Cache) AppendMessage(ctx context.Context, msg session.Message) error {
	payload, err := json.Marshal(messageEntry{
		Role: msg.Role, Content: msg.Content, Timestamp: msg.Timestamp, Order: msg.Order,
	})
	if err != nil {
		return err
	}
	key := messagesKey(msg.UserID, msg.SessionID)
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// Messages returns every cached message for a session, oldest first.
// ok is false on a cache miss (empty list).
func (c *Cache) Messages(ctx context.Context, userID, sessionID string) ([]session.Message, bool, error) {
	key := messagesKey(userID, sessionID)
	raw, err := c.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	out := make([]session.Message, 0, len(raw))
	for _, payload := range raw {
		var entry messageEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, false, fmt.Errorf("session/cache: decode message: %w", err)
		}
		out = append(out, session.Message{
			SessionID: sessionID, UserID: userID,
			Role: entry.Role, Content: entry.Content,
			Timestamp: entry.Timestamp, Order: entry.Order,
		})
	}
	c.client.Expire(ctx, key, c.ttl)
	return out, true, nil
}

// ReplaceMessages overwrites a session's cached message list, used to
// refill the cache after a read-through from the search index.
func (c *Cache) ReplaceMessages(ctx context.Context, userID, sessionID string, messages []session.Message) error {
	key := messagesKey(userID, sessionID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(messages) > 0 {
		entries := make([]any, len(messages))
		for i, m := range messages {
			payload, err := json.Marshal(messageEntry{
				Role: m.Role, Content: m.Content, Timestamp: m.Timestamp, Order: m.Order,
			})
			if err != nil {
				return err
			}
			entries[i] = payload
		}
		pipe.RPush(ctx, key, entries...)
	}
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteMessages clears a session's cached message list.
func (c *Cache) DeleteMessages(ctx context.Context, userID, sessionID string) error {
	return c.client.Del(ctx, messagesKey(userID, sessionID)).Err()
}

// Ping checks cache connectivity for the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
