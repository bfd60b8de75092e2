// Package embedding defines the narrow embedding-vector interface used by
// the text retriever's dense search leg.
package embedding

import "context"

// Embedder turns text into dense vectors for vector search.
type Embedder interface {
	// Embed returns one vector per input text, in the same order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the length of vectors this Embedder produces.
	Dimensions() int
}
