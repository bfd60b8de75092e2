// Package llm defines the narrow model interface used by the intent
// router, both retrievers, the prompt-driven answering path, and the
// citation matcher.
package llm

import "context"

// Role is a chat message role.
type Role string

// Roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Request configures one LLM call. MaxTokens bounds the response length;
// Temperature 0 requests deterministic output.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// Delta is one streamed token chunk. Err is set, with Done=true, when the
// upstream call fails mid-stream; the channel is closed immediately after.
type Delta struct {
	Content string
	Done    bool
	Err     error
}

// Info describes a Model implementation.
type Info struct {
	Provider string
	Name     string
}

// Model is the narrow LLM adapter interface. StreamChat must be cancellable
// mid-stream: closing ctx stops the upstream call and closes the channel.
type Model interface {
	// StreamChat streams response tokens as they arrive.
	StreamChat(ctx context.Context, req Request) (<-chan Delta, error)
	// Complete blocks until the full response is available.
	Complete(ctx context.Context, req Request) (string, error)
	// Info returns static metadata about the model.
	Info() Info
}
