package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trpc-group/compliance-rag/intent"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/session"
)

type fakeModel struct {
	reply string
	err   error
	got   llm.Request
}

func (f *fakeModel) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeModel) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.got = req
	return f.reply, f.err
}

func (f *fakeModel) Info() llm.Info { return llm.Info{} }

func TestRoute_ParsesEachDecision(t *testing.T) {
	cases := map[string]intent.RoutingDecision{
		"graph\n":                     intent.Graph,
		"Text":                        intent.Text,
		"HYBRID because reasons":      intent.Hybrid,
		"none":                        intent.None,
		"  graph  ":                   intent.Graph,
	}
	for reply, want := range cases {
		r := intent.New(&fakeModel{reply: reply}, "sys", 0, 500)
		got := r.Route(context.Background(), "some question", nil)
		require.Equal(t, want, got, "reply=%q", reply)
	}
}

func TestRoute_UnparseableDegradesToNone(t *testing.T) {
	r := intent.New(&fakeModel{reply: "I'm not sure what you mean"}, "sys", 0, 500)
	got := r.Route(context.Background(), "q", nil)
	require.Equal(t, intent.None, got)
}

func TestRoute_LLMFailureDegradesToNone(t *testing.T) {
	r := intent.New(&fakeModel{err: errors.New("timeout")}, "sys", 0, 500)
	got := r.Route(context.Background(), "q", nil)
	require.Equal(t, intent.None, got)
}

func TestRoute_EmptyAndNonChineseInputsStillSurject(t *testing.T) {
	r := intent.New(&fakeModel{reply: "text"}, "sys", 0, 500)
	for _, q := range []string{"", "hello world", "日本語のテスト"} {
		got := r.Route(context.Background(), q, nil)
		require.Contains(t, []intent.RoutingDecision{intent.Graph, intent.Text, intent.Hybrid, intent.None}, got)
	}
}

func TestRoute_LimitsHistoryToLastTwoTurns(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleUser, Content: "turn1-user"},
		{Role: session.RoleAssistant, Content: "turn1-assistant"},
		{Role: session.RoleUser, Content: "turn2-user"},
		{Role: session.RoleAssistant, Content: "turn2-assistant"},
		{Role: session.RoleUser, Content: "turn3-user"},
		{Role: session.RoleAssistant, Content: "turn3-assistant"},
	}
	fm := &fakeModel{reply: "none"}
	r := intent.New(fm, "sys", 0, 500)
	got := r.Route(context.Background(), "q", history)
	require.Equal(t, intent.None, got)
	// system prompt + last 4 history messages + question
	require.Len(t, fm.got.Messages, 6)
	require.Equal(t, "turn2-user", fm.got.Messages[1].Content)
}
