// Package text implements the hybrid BM25+vector knowledge retriever.
package text

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/trpc-group/compliance-rag/embedding"
	"github.com/trpc-group/compliance-rag/knowledge"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/textindex"
)

const (
	defaultTopK         = 5
	overfetchMultiplier = 3
	lexicalWeight       = 0.4
	vectorWeight        = 0.6
	vectorField         = "content_vector"
	contentField        = "content"
)

// Retriever runs the hybrid lexical+vector search protocol against one
// Elasticsearch-backed knowledge index.
type Retriever struct {
	index    string
	adapter  textindex.Adapter
	embedder embedding.Embedder
	topK     int
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK overrides the default top-K of 5.
func WithTopK(k int) Option {
	return func(r *Retriever) { r.topK = k }
}

// New builds a Retriever over one index.
func New(adapter textindex.Adapter, embedder embedding.Embedder, index string, opts ...Option) *Retriever {
	r := &Retriever{index: index, adapter: adapter, embedder: embedder, topK: defaultTopK}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs the hybrid search protocol. It never returns an error to
// the caller: embedding failure degrades to lexical-only, index failure
// yields an empty result.
func (r *Retriever) Retrieve(ctx context.Context, question string) []knowledge.Knowledge {
	overfetch := r.topK * overfetchMultiplier

	var vector []float32
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		log.Warnf("text retriever: embedding failed, degrading to lexical-only: %v", err)
	} else if len(vectors) > 0 {
		vector = vectors[0]
	}

	var lexicalHits, vectorHits []textindex.Hit
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := r.adapter.Search(gctx, r.index, map[string]any{
			"match": map[string]any{contentField: question},
		}, overfetch)
		if err != nil {
			log.Warnf("text retriever: lexical search failed: %v", err)
			return nil
		}
		lexicalHits = hits
		return nil
	})

	if vector != nil {
		g.Go(func() error {
			hits, err := r.adapter.Knn(gctx, r.index, vectorField, vector, overfetch)
			if err != nil {
				log.Warnf("text retriever: vector search failed: %v", err)
				return nil
			}
			vectorHits = hits
			return nil
		})
	}
	_ = g.Wait()

	fused := fuse(lexicalHits, vectorHits)
	if len(fused) > r.topK {
		fused = fused[:r.topK]
	}
	return fused
}

// fuse normalizes each hit-set's scores to [0,1] by max-score division,
// combines by weighted sum, de-duplicates by id, and returns score-sorted
// descending.
func fuse(lexical, vector []textindex.Hit) []knowledge.Knowledge {
	lexicalNorm := normalize(lexical)
	vectorNorm := normalize(vector)

	type acc struct {
		hit   textindex.Hit
		score float64
	}
	combined := map[string]*acc{}

	for id, hit := range lexicalNorm {
		combined[id] = &acc{hit: hit.hit, score: hit.score * lexicalWeight}
	}
	for id, hit := range vectorNorm {
		if existing, ok := combined[id]; ok {
			existing.score += hit.score * vectorWeight
		} else {
			combined[id] = &acc{hit: hit.hit, score: hit.score * vectorWeight}
		}
	}

	out := make([]knowledge.Knowledge, 0, len(combined))
	for id, a := range combined {
		out = append(out, toKnowledge(id, a.hit, a.score))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

type normalizedHit struct {
	hit   textindex.Hit
	score float64
}

func normalize(hits []textindex.Hit) map[string]normalizedHit {
	out := map[string]normalizedHit{}
	if len(hits) == 0 {
		return out
	}
	max := hits[0].Score
	for _, h := range hits {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		max = 1
	}
	for _, h := range hits {
		out[h.ID] = normalizedHit{hit: h, score: h.Score / max}
	}
	return out
}

func toKnowledge(id string, hit textindex.Hit, score float64) knowledge.Knowledge {
	title, _ := hit.Source["title"].(string)
	content, _ := hit.Source["content"].(string)
	return knowledge.Knowledge{
		ID:       id,
		Title:    title,
		Content:  content,
		Score:    score,
		Source:   knowledge.SourceText,
		Metadata: hit.Source,
	}
}
