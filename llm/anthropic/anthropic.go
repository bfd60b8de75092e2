// Package anthropic implements llm.Model against the Anthropic Messages API,
// used as the alternate LLM provider.
package anthropic

import (
	"context"
	"errors"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/trpc-group/compliance-rag/apperr"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/retry"
)

const defaultMaxTokens = 2000

// streamReconnectAttempts bounds how many times StreamChat re-establishes
// a fresh stream after a transient failure that occurred before any
// content had been forwarded to the caller.
const streamReconnectAttempts = 3

// completeRetryAttempts bounds Complete's retries of the underlying
// non-streaming call.
const completeRetryAttempts = 3

// Model implements llm.Model for Anthropic Claude Messages.
type Model struct {
	client    sdk.Client
	name      string
	maxTokens int
}

// Option configures a Model.
type Option func(*options)

type options struct {
	APIKey    string
	MaxTokens int
}

// WithAPIKey sets the Anthropic API key.
func WithAPIKey(key string) Option { return func(o *options) { o.APIKey = key } }

// WithMaxTokens sets the default max-tokens ceiling when a request omits one.
func WithMaxTokens(n int) Option { return func(o *options) { o.MaxTokens = n } }

// New builds a Model for the given Claude model identifier.
func New(name string, opts ...Option) *Model {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	var clientOpts []option.RequestOption
	if o.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(o.APIKey))
	}
	maxTokens := o.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Model{
		client:    sdk.NewClient(clientOpts...),
		name:      name,
		maxTokens: maxTokens,
	}
}

// Info implements llm.Model.
func (m *Model) Info() llm.Info {
	return llm.Info{Provider: "anthropic", Name: m.name}
}

func (m *Model) buildParams(req llm.Request) (sdk.MessageNewParams, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = m.name
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}

	var system []sdk.TextBlockParam
	var conversation []sdk.MessageParam
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			if msg.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: msg.Content})
			}
		case llm.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(msg.Content)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(msg.Content)))
		}
	}
	if len(conversation) == 0 {
		return sdk.MessageNewParams{}, errors.New("llm/anthropic: request has no user/assistant messages")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelName),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
		Temperature: sdk.Float(req.Temperature),
	}
	if len(system) > 0 {
		params.System = system
	}
	return params, nil
}

// StreamChat implements llm.Model. A connection failure that occurs before
// any content has reached the caller re-establishes a fresh stream, up to
// streamReconnectAttempts; once content has been forwarded, failures are
// surfaced as a terminal error frame instead, since retrying would
// duplicate content already delivered.
func (m *Model) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	params, err := m.buildParams(req)
	if err != nil {
		return nil, err
	}
	out := make(chan llm.Delta, 64)

	go func() {
		defer close(out)
		policy := retry.Simple(streamReconnectAttempts)
		var sentAny bool

		for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
			if ctx.Err() != nil {
				return
			}
			stream := m.client.Messages.NewStreaming(ctx, params)

			for stream.Next() {
				event := stream.Current()
				delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent)
				if !ok {
					continue
				}
				text, ok := delta.Delta.AsAny().(sdk.TextDelta)
				if !ok || text.Text == "" {
					continue
				}
				sentAny = true
				select {
				case out <- llm.Delta{Content: text.Text}:
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
				log.Errorf("llm/anthropic: stream error: %v", streamErr)
				select {
				case out <- llm.Delta{Done: true, Err: streamErr}:
				case <-ctx.Done():
				}
				return
			}

			delay := policy.NextDelay(attempt)
			log.Warnf("llm/anthropic: stream_chat attempt %d/%d failed before any content: %v, retrying in %s", attempt, policy.MaxAttempts, streamErr, delay)
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
	params, err := m.buildParams(req)
	if err != nil {
		return "", err
	}

	var content string
	retryErr := retry.DoErr(ctx, retry.Simple(completeRetryAttempts), "llm/anthropic.Complete", func(ctx context.Context) error {
		msg, err := m.client.Messages.New(ctx, params)
		if err != nil {
			return apperr.New(apperr.KindLLM, "complete", retry.IsTransientNetworkError(err), err)
		}
		var out string
		for _, block := range msg.Content {
			if text, ok := block.AsAny().(sdk.TextBlock); ok {
				out += text.Text
			}
		}
		content = out
		return nil
	})
	if retryErr != nil {
		return "", retryErr
	}
	return content, nil
}
