// Package textindex is the search-index tier of the session store: the
// conversation_history document index, authoritative for message content
// and the source of cache read-through refills.
package textindex

import (
	"context"
	"fmt"
	"time"

	"github.com/trpc-group/compliance-rag/session"
	"github.com/trpc-group/compliance-rag/textindex"
)

// Index is the conversation_history tier.
type Index struct {
	adapter   textindex.Adapter
	indexName string
}

// New wraps a textindex.Adapter, targeting the named index.
func New(adapter textindex.Adapter, indexName string) *Index {
	return &Index{adapter: adapter, indexName: indexName}
}

type doc struct {
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id"`
	MessageID    string    `json:"message_id"`
	Role         string    `json:"role"`
	Content      string    `json:"content"`
	Timestamp    time.Time `json:"timestamp"`
	MessageOrder int       `json:"message_order"`
}

// IndexMessage indexes one message, keyed by a monotonically ordered id.
func (idx *Index) IndexMessage(ctx context.Context, msg session.Message) error {
	id := fmt.Sprintf("msg_%s_%d", msg.SessionID, msg.Timestamp.UnixMilli())
	d := doc{
		UserID: msg.UserID, SessionID: msg.SessionID, MessageID: id,
		Role: string(msg.Role), Content: msg.Content,
		Timestamp: msg.Timestamp, MessageOrder: msg.Order,
	}
	return idx.adapter.IndexDoc(ctx, idx.indexName, id, d)
}

// Messages returns every message for (userID, sessionID) ordered by
// (timestamp, message_order) ascending.
func (idx *Index) Messages(ctx context.Context, userID, sessionID string) ([]session.Message, error) {
	query := map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{
				{"term": map[string]any{"user_id": userID}},
				{"term": map[string]any{"session_id": sessionID}},
			},
		},
	}
	hits, err := idx.adapter.Search(ctx, idx.indexName, query, 10000)
	if err != nil {
		return nil, fmt.Errorf("session/textindex: search: %w", err)
	}

	out := make([]session.Message, 0, len(hits))
	for _, h := range hits {
		out = append(out, session.Message{
			SessionID: sessionID, UserID: userID,
			Role:      session.Role(stringField(h.Source, "role")),
			Content:   stringField(h.Source, "content"),
			Timestamp: timeField(h.Source, "timestamp"),
			Order:     intField(h.Source, "message_order"),
		})
	}
	sortByTimestampThenOrder(out)
	return out, nil
}

// DeleteSession removes every indexed message for a session. Idempotent.
func (idx *Index) DeleteSession(ctx context.Context, userID, sessionID string) error {
	query := map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{
				{"term": map[string]any{"user_id": userID}},
				{"term": map[string]any{"session_id": sessionID}},
			},
		},
	}
	return idx.adapter.DeleteByQuery(ctx, idx.indexName, query)
}

func sortByTimestampThenOrder(messages []session.Message) {
	for i := 1; i < len(messages); i++ {
		j := i
		for j > 0 && less(messages[j], messages[j-1]) {
			messages[j], messages[j-1] = messages[j-1], messages[j]
			j--
		}
	}
}

func less(a, b session.Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Order < b.Order
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func timeField(m map[string]any, key string) time.Time {
	v, _ := m[key].(string)
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
