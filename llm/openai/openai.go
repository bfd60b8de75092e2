// Package openai implements llm.Model against an OpenAI-compatible chat
// completions endpoint.
package openai

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/trpc-group/compliance-rag/apperr"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/retry"
)

const defaultChannelBufferSize = 64

// streamReconnectAttempts bounds how many times StreamChat re-establishes
// a fresh stream after a transient failure that occurred before any
// content had been forwarded to the caller. Once any content has been
// sent, a retry would duplicate it for the client, so the attempt is
// surfaced as a terminal error instead.
const streamReconnectAttempts = 3

// completeRetryAttempts bounds Complete's retries of the underlying
// non-streaming call.
const completeRetryAttempts = 3

// Model implements llm.Model for the OpenAI chat completions API.
type Model struct {
	client            openai.Client
	name              string
	channelBufferSize int
}

// Option configures a Model.
type Option func(*options)

type options struct {
	APIKey            string
	BaseURL           string
	ChannelBufferSize int
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option { return func(o *options) { o.APIKey = key } }

// WithBaseURL sets an OpenAI-compatible base URL.
func WithBaseURL(url string) Option { return func(o *options) { o.BaseURL = url } }

// WithChannelBufferSize sets the StreamChat channel buffer size.
func WithChannelBufferSize(n int) Option { return func(o *options) { o.ChannelBufferSize = n } }

// New builds a Model named name (the default chat model to use).
func New(name string, opts ...Option) *Model {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []openaiopt.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}

	bufSize := o.ChannelBufferSize
	if bufSize <= 0 {
		bufSize = defaultChannelBufferSize
	}

	return &Model{
		client:            openai.NewClient(clientOpts...),
		name:               name,
		channelBufferSize: bufSize,
	}
}

// Info implements llm.Model.
func (m *Model) Info() llm.Info {
	return llm.Info{Provider: "openai", Name: m.name}
}

func (m *Model) buildParams(req llm.Request) openai.ChatCompletionNewParams {
	modelName := req.Model
	if modelName == "" {
		modelName = m.name
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelName),
		Messages: convertMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	params.Temperature = openai.Float(req.Temperature)
	return params
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// StreamChat implements llm.Model. A connection failure that occurs before
// any content has reached the caller re-establishes a fresh stream, up to
// streamReconnectAttempts; once content has been forwarded, failures are
// surfaced as a terminal error frame instead, since retrying would
// duplicate content already delivered.
func (m *Model) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llm/openai: request has no messages")
	}
	params := m.buildParams(req)
	out := make(chan llm.Delta, m.channelBufferSize)

	go func() {
		defer close(out)
		policy := retry.Simple(streamReconnectAttempts)
		var sentAny bool

		for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
			if ctx.Err() != nil {
				return
			}
			stream := m.client.Chat.Completions.NewStreaming(ctx, params)

			for stream.Next() {
				chunk := stream.Current()
				if len(chunk.Choices) == 0 {
					continue
				}
				content := chunk.Choices[0].Delta.Content
				if content == "" {
					continue
				}
				sentAny = true
				select {
				case out <- llm.Delta{Content: content}:
				case <-ctx.Done():
					stream.Close()
					return
				}
			}
			streamErr := stream.Err()
			stream.Close()
			if streamErr == nil {
				return
			}

			wrapped := apperr.New(apperr.KindLLM, "stream_chat", retry.IsTransientNetworkError(streamErr), streamErr)
			if sentAny || attempt == policy.MaxAttempts || !policy.ShouldRetry(wrapped) {
				log.Errorf("llm/openai: stream error: %v", streamErr)
				select {
				case out <- llm.Delta{Done: true, Err: streamErr}:
				case <-ctx.Done():
				}
				return
			}

			delay := policy.NextDelay(attempt)
			log.Warnf("llm/openai: stream_chat attempt %d/%d failed before any content: %v, retrying in %s", attempt, policy.MaxAttempts, streamErr, delay)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()

	return out, nil
}

// Complete implements llm.Model. Transient failures are retried per
// retry.Simple.
func (m *Model) Complete(ctx context.Context, req llm.Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("llm/openai: request has no messages")
	}
	params := m.buildParams(req)

	var content string
	err := retry.DoErr(ctx, retry.Simple(completeRetryAttempts), "llm/openai.Complete", func(ctx context.Context) error {
		resp, err := m.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return apperr.New(apperr.KindLLM, "complete", retry.IsTransientNetworkError(err), err)
		}
		if len(resp.Choices) == 0 {
			return nil
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
