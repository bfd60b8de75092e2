package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trpc-group/compliance-rag/frame"
	"github.com/trpc-group/compliance-rag/intent"
	"github.com/trpc-group/compliance-rag/knowledge"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/orchestrator"
	"github.com/trpc-group/compliance-rag/session"
)

type fakeRouter struct{ decision intent.RoutingDecision }

func (f *fakeRouter) Route(ctx context.Context, question string, recent []session.Message) intent.RoutingDecision {
	return f.decision
}

type fakeGraphRetriever struct{ frames []frame.Frame }

func (f *fakeGraphRetriever) Retrieve(ctx context.Context, question string) <-chan frame.Frame {
	ch := make(chan frame.Frame, len(f.frames))
	for _, fr := range f.frames {
		ch <- fr
	}
	close(ch)
	return ch
}

type fakeTextRetriever struct{ hits []knowledge.Knowledge }

func (f *fakeTextRetriever) Retrieve(ctx context.Context, question string) []knowledge.Knowledge {
	return f.hits
}

type fakePromptBuilder struct{}

func (fakePromptBuilder) Build(history []session.Message, question, knowledgeStr string) string {
	return "PROMPT:" + question + "|" + knowledgeStr
}

type capturingPromptBuilder struct {
	gotQuestion *string
}

func (c capturingPromptBuilder) Build(history []session.Message, question, knowledgeStr string) string {
	if c.gotQuestion != nil {
		*c.gotQuestion = question
	}
	return "PROMPT:" + question + "|" + knowledgeStr
}

type fakeAnswerModel struct {
	tokens []string
	err    error
}

func (f *fakeAnswerModel) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.Delta, len(f.tokens))
	for _, tok := range f.tokens {
		ch <- llm.Delta{Content: tok}
	}
	close(ch)
	return ch, nil
}

func (f *fakeAnswerModel) Complete(ctx context.Context, req llm.Request) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeAnswerModel) Info() llm.Info { return llm.Info{} }

type fakeCitationMatcher struct {
	cited []knowledge.Knowledge
	err   error
}

func (f *fakeCitationMatcher) Match(ctx context.Context, finalAnswer string, candidates []knowledge.Knowledge) ([]knowledge.Knowledge, error) {
	return f.cited, f.err
}

type fakeSessionStore struct {
	appended []string
	failUser bool
}

func (f *fakeSessionStore) AppendMessage(ctx context.Context, userID, sessionID string, role session.Role, content string) error {
	if f.failUser && role == session.RoleUser {
		return errors.New("store down")
	}
	f.appended = append(f.appended, string(role)+":"+content)
	return nil
}

func drain(t *testing.T, ch <-chan frame.Frame) []frame.Frame {
	t.Helper()
	var out []frame.Frame
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range ch {
			out = append(out, f)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out draining orchestrator output")
	}
	return out
}

func waitForPersist(store *fakeSessionStore) {
	for i := 0; i < 100 && len(store.appended) < 2; i++ {
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun_TextOnly_StreamsAnswerAndPersists(t *testing.T) {
	store := &fakeSessionStore{}
	o := orchestrator.New(
		&fakeRouter{}, &fakeGraphRetriever{}, &fakeTextRetriever{hits: []knowledge.Knowledge{{ID: "k1", Title: "T", Content: "C"}}},
		fakePromptBuilder{}, &fakeAnswerModel{tokens: []string{"hello", " world"}},
		&fakeCitationMatcher{cited: []knowledge.Knowledge{{ID: "k1", Title: "T", Content: "C"}}},
		store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeTextOnly,
	})
	require.NoError(t, err)
	frames := drain(t, ch)

	require.Equal(t, frame.Think, frames[0].Type)
	var dataContent string
	var sawKnowledge bool
	for _, f := range frames[1:] {
		switch f.Type {
		case frame.Data:
			dataContent += f.Content
		case frame.Knowledge:
			sawKnowledge = true
		}
	}
	require.Equal(t, "hello world", dataContent)
	require.True(t, sawKnowledge)

	waitForPersist(store)
	require.Len(t, store.appended, 2)
	require.Equal(t, "user:q", store.appended[0])
}

func TestRun_GraphOnly_ForwardsAllFrames(t *testing.T) {
	store := &fakeSessionStore{}
	graphFrames := []frame.Frame{frame.Think("图谱推理过程"), frame.Data("图谱总结")}
	o := orchestrator.New(
		&fakeRouter{}, &fakeGraphRetriever{frames: graphFrames}, &fakeTextRetriever{},
		fakePromptBuilder{}, &fakeAnswerModel{}, &fakeCitationMatcher{}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeGraphOnly,
	})
	require.NoError(t, err)
	frames := drain(t, ch)

	require.Equal(t, frame.Think, frames[0].Type)
	require.Equal(t, frame.Think, frames[1].Type)
	require.Equal(t, "图谱推理过程", frames[1].Content)
	require.Equal(t, frame.Data, frames[2].Type)
	require.Equal(t, "图谱总结", frames[2].Content)
}

func TestRun_Hybrid_GraphDecision_StripsThink(t *testing.T) {
	store := &fakeSessionStore{}
	graphFrames := []frame.Frame{frame.Think("图谱推理"), frame.Data("图谱总结")}
	o := orchestrator.New(
		&fakeRouter{decision: intent.Graph}, &fakeGraphRetriever{frames: graphFrames}, &fakeTextRetriever{},
		fakePromptBuilder{}, &fakeAnswerModel{}, &fakeCitationMatcher{}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeHybrid,
	})
	require.NoError(t, err)
	frames := drain(t, ch)

	for _, f := range frames {
		require.NotEqual(t, "图谱推理", f.Content)
	}
	var sawSummary bool
	for _, f := range frames {
		if f.Type == frame.Data && f.Content == "图谱总结" {
			sawSummary = true
		}
	}
	require.True(t, sawSummary)
}

func TestRun_Hybrid_HybridDecision_AugmentsQuestionWithScratch(t *testing.T) {
	store := &fakeSessionStore{}
	graphFrames := []frame.Frame{frame.Think("图谱推理"), frame.Data("业务信息摘要")}
	textRetriever := &fakeTextRetriever{}
	o := orchestrator.New(
		&fakeRouter{decision: intent.Hybrid}, &fakeGraphRetriever{frames: graphFrames}, textRetriever,
		fakePromptBuilder{}, &fakeAnswerModel{tokens: []string{"final"}}, &fakeCitationMatcher{}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "原始问题", Mode: orchestrator.ModeHybrid,
	})
	require.NoError(t, err)
	frames := drain(t, ch)

	var sawGraphThink, sawGraphData, sawFinal bool
	for _, f := range frames {
		if f.Content == "图谱推理" {
			sawGraphThink = true
		}
		if f.Content == "业务信息摘要" {
			sawGraphData = true
		}
		if f.Content == "final" {
			sawFinal = true
		}
	}
	require.True(t, sawGraphThink, "hybrid decision forwards graph's full framed output")
	require.True(t, sawGraphData)
	require.True(t, sawFinal)
}

func TestRun_Hybrid_HybridDecision_AugmentedQuestionIsContiguousConcatenation(t *testing.T) {
	store := &fakeSessionStore{}
	graphFrames := []frame.Frame{frame.Data("业务信息摘要")}
	textRetriever := &fakeTextRetriever{}
	var gotQuestion string
	o := orchestrator.New(
		&fakeRouter{decision: intent.Hybrid}, &fakeGraphRetriever{frames: graphFrames}, textRetriever,
		capturingPromptBuilder{gotQuestion: &gotQuestion}, &fakeAnswerModel{tokens: []string{"final"}}, &fakeCitationMatcher{}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "原始问题", Mode: orchestrator.ModeHybrid,
	})
	require.NoError(t, err)
	drain(t, ch)

	// The augmented question fed to PromptBuilder.Build must be the question,
	// the prefix, and the scratch content concatenated with no separator -
	// spec §4.1/§8.4 require one contiguous substring.
	require.Equal(t, "原始问题"+"以下是检索到的具体业务信息："+"业务信息摘要", gotQuestion)
}

func TestRun_Hybrid_NoneDecision_BehavesLikeTextOnly(t *testing.T) {
	store := &fakeSessionStore{}
	o := orchestrator.New(
		&fakeRouter{decision: intent.None}, &fakeGraphRetriever{}, &fakeTextRetriever{},
		fakePromptBuilder{}, &fakeAnswerModel{tokens: []string{"answer"}}, &fakeCitationMatcher{}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeHybrid,
	})
	require.NoError(t, err)
	frames := drain(t, ch)

	var sawAnswer bool
	for _, f := range frames {
		if f.Content == "answer" {
			sawAnswer = true
		}
	}
	require.True(t, sawAnswer)
}

func TestRun_AnswerModelFailure_EmitsErrorFrame(t *testing.T) {
	store := &fakeSessionStore{}
	o := orchestrator.New(
		&fakeRouter{}, &fakeGraphRetriever{}, &fakeTextRetriever{},
		fakePromptBuilder{}, &fakeAnswerModel{err: errors.New("llm down")}, &fakeCitationMatcher{}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeTextOnly,
	})
	require.NoError(t, err)
	frames := drain(t, ch)

	var sawError bool
	for _, f := range frames {
		if f.Type == frame.Error {
			sawError = true
		}
	}
	require.True(t, sawError)
}

func TestRun_CitationFailure_EmitsNoKnowledgeFramesButDoesNotError(t *testing.T) {
	store := &fakeSessionStore{}
	o := orchestrator.New(
		&fakeRouter{}, &fakeGraphRetriever{}, &fakeTextRetriever{hits: []knowledge.Knowledge{{ID: "k1"}}},
		fakePromptBuilder{}, &fakeAnswerModel{tokens: []string{"answer"}},
		&fakeCitationMatcher{err: errors.New("matcher down")}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeTextOnly,
	})
	require.NoError(t, err)
	frames := drain(t, ch)

	for _, f := range frames {
		require.NotEqual(t, frame.Knowledge, f.Type)
	}
}

func TestRun_ClientDisconnect_SkipsPersistence(t *testing.T) {
	store := &fakeSessionStore{}
	o := orchestrator.New(
		&fakeRouter{}, &fakeGraphRetriever{}, &fakeTextRetriever{},
		fakePromptBuilder{}, &fakeAnswerModel{tokens: []string{"a", "b", "c"}}, &fakeCitationMatcher{}, store,
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch, err := o.Run(ctx, orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeTextOnly,
	})
	require.NoError(t, err)
	for range ch {
	}
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, store.appended)
}

func TestRun_PersistenceFailureIsLoggedNotFatal(t *testing.T) {
	store := &fakeSessionStore{failUser: true}
	o := orchestrator.New(
		&fakeRouter{}, &fakeGraphRetriever{}, &fakeTextRetriever{},
		fakePromptBuilder{}, &fakeAnswerModel{tokens: []string{"a"}}, &fakeCitationMatcher{}, store,
	)
	ch, err := o.Run(context.Background(), orchestrator.Request{
		UserID: "u1", SessionID: "s1", Question: "q", Mode: orchestrator.ModeTextOnly,
	})
	require.NoError(t, err)
	frames := drain(t, ch)
	require.NotEmpty(t, frames)
}
