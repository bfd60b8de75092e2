// Package elasticsearch implements textindex.Adapter on top of the
// Elasticsearch storage client.
package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/trpc-group/compliance-rag/apperr"
	"github.com/trpc-group/compliance-rag/retry"
	"github.com/trpc-group/compliance-rag/storage/elasticsearch"
	"github.com/trpc-group/compliance-rag/textindex"
)

const searchRetryAttempts = 3

var _ textindex.Adapter = (*Adapter)(nil)

// Adapter implements textindex.Adapter using an elasticsearch.Client.
type Adapter struct {
	client elasticsearch.Client
}

// New wraps an existing Elasticsearch client.
func New(client elasticsearch.Client) *Adapter {
	return &Adapter{client: client}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string          `json:"_id"`
			Score  float64         `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// withoutProxy clears HTTP(S)_PROXY env vars for the duration of fn and
// restores them afterward, so Elasticsearch calls never route through a
// process-wide proxy configured for unrelated outbound traffic.
func withoutProxy(fn func() error) error {
	keys := []string{"HTTP_PROXY", "HTTPS_PROXY", "http_proxy", "https_proxy"}
	saved := make(map[string]string, len(keys))
	had := make(map[string]bool, len(keys))
	for _, k := range keys {
		v, ok := os.LookupEnv(k)
		saved[k], had[k] = v, ok
		os.Unsetenv(k)
	}
	defer func() {
		for _, k := range keys {
			if had[k] {
				os.Setenv(k, saved[k])
			}
		}
	}()
	return fn()
}

func decodeHits(body []byte) ([]textindex.Hit, error) {
	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("textindex/elasticsearch: decode response: %w", err)
	}
	out := make([]textindex.Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		var source map[string]any
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &source); err != nil {
				return nil, fmt.Errorf("textindex/elasticsearch: decode source: %w", err)
			}
		}
		out = append(out, textindex.Hit{ID: h.ID, Score: h.Score, Source: source})
	}
	return out, nil
}

// Search implements textindex.Adapter with a BM25-style lexical query.
// Transient failures are retried per retry.Simple.
func (a *Adapter) Search(ctx context.Context, index string, query map[string]any, size int) ([]textindex.Hit, error) {
	body := map[string]any{"query": query, "size": size}
	var hits []textindex.Hit
	err := retry.DoErr(ctx, retry.Simple(searchRetryAttempts), "textindex/elasticsearch.Search", func(ctx context.Context) error {
		return withoutProxy(func() error {
			raw, err := a.client.Search(ctx, index, body)
			if err != nil {
				return apperr.New(apperr.KindTextIndex, "search", retry.IsTransientNetworkError(err), err)
			}
			parsed, err := decodeHits(raw)
			if err != nil {
				return err
			}
			hits = parsed
			return nil
		})
	})
	return hits, err
}

// Knn implements textindex.Adapter with a dense-vector script_score query,
// ranking documents by cosine similarity between vector and field. Transient
// failures are retried per retry.Simple.
func (a *Adapter) Knn(ctx context.Context, index, field string, vector []float32, size int) ([]textindex.Hit, error) {
	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"script_score": map[string]any{
				"query": map[string]any{"match_all": map[string]any{}},
				"script": map[string]any{
					"source": fmt.Sprintf("cosineSimilarity(params.query_vector, '%s') + 1.0", field),
					"params": map[string]any{"query_vector": vector},
				},
			},
		},
	}
	var hits []textindex.Hit
	err := retry.DoErr(ctx, retry.Simple(searchRetryAttempts), "textindex/elasticsearch.Knn", func(ctx context.Context) error {
		return withoutProxy(func() error {
			raw, err := a.client.Search(ctx, index, body)
			if err != nil {
				return apperr.New(apperr.KindTextIndex, "knn", retry.IsTransientNetworkError(err), err)
			}
			parsed, err := decodeHits(raw)
			if err != nil {
				return err
			}
			hits = parsed
			return nil
		})
	})
	return hits, err
}

// IndexDoc implements textindex.Adapter.
func (a *Adapter) IndexDoc(ctx context.Context, index, id string, doc any) error {
	return withoutProxy(func() error {
		return a.client.IndexDocument(ctx, index, id, doc)
	})
}

// DeleteDoc implements textindex.Adapter.
func (a *Adapter) DeleteDoc(ctx context.Context, index, id string) error {
	return withoutProxy(func() error {
		return a.client.DeleteDocument(ctx, index, id)
	})
}

// DeleteByQuery implements textindex.Adapter.
func (a *Adapter) DeleteByQuery(ctx context.Context, index string, query map[string]any) error {
	return withoutProxy(func() error {
		return a.client.DeleteByQuery(ctx, index, map[string]any{"query": query})
	})
}
