package anthropic_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/llm/anthropic"
)

func TestNew_Info(t *testing.T) {
	m := anthropic.New("claude-3-5-sonnet-latest", anthropic.WithAPIKey("test-key"))
	info := m.Info()
	require.Equal(t, "anthropic", info.Provider)
	require.Equal(t, "claude-3-5-sonnet-latest", info.Name)
}

func TestStreamChat_NoMessages(t *testing.T) {
	m := anthropic.New("claude-3-5-sonnet-latest", anthropic.WithAPIKey("test-key"))
	_, err := m.StreamChat(t.Context(), llm.Request{})
	require.Error(t, err)
}

func TestComplete_NoMessages(t *testing.T) {
	m := anthropic.New("claude-3-5-sonnet-latest", anthropic.WithAPIKey("test-key"))
	_, err := m.Complete(t.Context(), llm.Request{})
	require.Error(t, err)
}

func TestStreamChat_SystemOnlyIsRejected(t *testing.T) {
	m := anthropic.New("claude-3-5-sonnet-latest", anthropic.WithAPIKey("test-key"))
	_, err := m.StreamChat(t.Context(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: "system prompt only"}},
	})
	require.Error(t, err)
}
