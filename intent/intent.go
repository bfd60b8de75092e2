// Package intent classifies a user question into a RoutingDecision via one
// LLM call with a fixed system prompt.
package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/session"
)

// RoutingDecision selects which retrieval path the orchestrator runs.
type RoutingDecision string

// Routing decisions.
const (
	Graph  RoutingDecision = "graph"
	Text   RoutingDecision = "text"
	Hybrid RoutingDecision = "hybrid"
	None   RoutingDecision = "none"
)

var decisionPattern = regexp.MustCompile(`(?i)^(graph|text|hybrid|none)\b`)

// Router classifies a question into a RoutingDecision.
type Router struct {
	model        llm.Model
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// New builds a Router over an llm.Model.
func New(model llm.Model, systemPrompt string, temperature float64, maxTokens int) *Router {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &Router{model: model, systemPrompt: systemPrompt, temperature: temperature, maxTokens: maxTokens}
}

// Route classifies question given up to the last two turns of history.
// On any LLM failure or unparseable output it degrades to None rather
// than raising, per the failure policy: routing never blocks retrieval.
func (r *Router) Route(ctx context.Context, question string, recent []session.Message) RoutingDecision {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: r.systemPrompt}}
	for _, m := range lastTwoTurns(recent) {
		role := llm.RoleUser
		if m.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: question})

	reply, err := r.model.Complete(ctx, llm.Request{
		Messages:    messages,
		Temperature: r.temperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		log.Warnf("intent: router LLM call failed, degrading to none: %v", err)
		return None
	}
	return parseDecision(reply)
}

func parseDecision(reply string) RoutingDecision {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := decisionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch strings.ToLower(m[1]) {
		case "graph":
			return Graph
		case "text":
			return Text
		case "hybrid":
			return Hybrid
		case "none":
			return None
		}
	}
	return None
}

// lastTwoTurns returns at most the last 4 messages (two user+assistant
// pairs) from recent, oldest first.
func lastTwoTurns(recent []session.Message) []session.Message {
	const maxMessages = 4
	if len(recent) <= maxMessages {
		return recent
	}
	return recent[len(recent)-maxMessages:]
}
