// Package openai provides an embedding.Embedder backed by the OpenAI
// embeddings API.
package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/trpc-group/compliance-rag/apperr"
	"github.com/trpc-group/compliance-rag/embedding"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/retry"
)

var _ embedding.Embedder = (*Embedder)(nil)

const (
	// DefaultModel is the default OpenAI embedding model.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions is the default embedding dimension for text-embedding-3-small.
	DefaultDimensions = 1536
	// DefaultEncodingFormat is the default encoding format for embeddings.
	DefaultEncodingFormat = "float"

	textEmbedding3Prefix = "text-embedding-3"

	embedRetryAttempts = 3
)

// Embedder implements embedding.Embedder for the OpenAI embeddings API.
type Embedder struct {
	client         openai.Client
	model          string
	dimensions     int
	encodingFormat string
	apiKey         string
	baseURL        string
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model to use.
func WithModel(model string) Option { return func(e *Embedder) { e.model = model } }

// WithDimensions sets the embedding vector length. Only honored for
// text-embedding-3 and later models.
func WithDimensions(dimensions int) Option {
	return func(e *Embedder) { e.dimensions = dimensions }
}

// WithEncodingFormat sets the response encoding: "float" or "base64".
func WithEncodingFormat(format string) Option {
	return func(e *Embedder) { e.encodingFormat = format }
}

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(apiKey string) Option { return func(e *Embedder) { e.apiKey = apiKey } }

// WithBaseURL sets an OpenAI-compatible base URL.
func WithBaseURL(baseURL string) Option { return func(e *Embedder) { e.baseURL = baseURL } }

// New builds an Embedder with the given options.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		model:          DefaultModel,
		dimensions:     DefaultDimensions,
		encodingFormat: DefaultEncodingFormat,
	}
	for _, opt := range opts {
		opt(e)
	}

	var clientOpts []option.RequestOption
	if e.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(e.apiKey))
	}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	e.client = openai.NewClient(clientOpts...)
	return e
}

// Dimensions implements embedding.Embedder.
func (e *Embedder) Dimensions() int { return e.dimensions }

// Embed implements embedding.Embedder, batching all texts into one request.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormat(e.encodingFormat),
	}
	if isTextEmbedding3Model(e.model) {
		request.Dimensions = openai.Int(int64(e.dimensions))
	}

	var out [][]float32
	err := retry.DoErr(ctx, retry.Simple(embedRetryAttempts), "embedding/openai.Embed", func(ctx context.Context) error {
		resp, err := e.client.Embeddings.New(ctx, request)
		if err != nil {
			return apperr.New(apperr.KindLLM, "embed", retry.IsTransientNetworkError(err), err)
		}
		if len(resp.Data) == 0 {
			log.Warn("embedding/openai: received empty embedding response")
			return nil
		}
		vecs := make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for i, f := range d.Embedding {
				vec[i] = float32(f)
			}
			vecs[d.Index] = vec
		}
		out = vecs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("embedding/openai: create embeddings: %w", err)
	}
	return out, nil
}

func isTextEmbedding3Model(model string) bool {
	return strings.HasPrefix(model, textEmbedding3Prefix)
}
