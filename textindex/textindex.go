// Package textindex defines the narrow Elasticsearch-backed search interface
// shared by the graph retriever's fewshot lookup, the text retriever's hybrid
// search, and the session conversation-history store.
package textindex

import "context"

// Hit is one search result row.
type Hit struct {
	ID     string
	Score  float64
	Source map[string]any
}

// Adapter is the narrow text-index operation set used across the system.
type Adapter interface {
	// Search runs a lexical (BM25-style) query over index, returning the
	// top size hits ordered by descending score.
	Search(ctx context.Context, index string, query map[string]any, size int) ([]Hit, error)
	// Knn runs a dense-vector similarity query over index against vector,
	// returning the top size hits ordered by descending score.
	Knn(ctx context.Context, index, field string, vector []float32, size int) ([]Hit, error)
	// IndexDoc upserts a document by id.
	IndexDoc(ctx context.Context, index, id string, doc any) error
	// DeleteDoc deletes a document by id.
	DeleteDoc(ctx context.Context, index, id string) error
	// DeleteByQuery deletes every document matching query.
	DeleteByQuery(ctx context.Context, index string, query map[string]any) error
}
