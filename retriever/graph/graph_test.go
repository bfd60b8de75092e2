package graph_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trpc-group/compliance-rag/frame"
	"github.com/trpc-group/compliance-rag/llm"
	graphretriever "github.com/trpc-group/compliance-rag/retriever/graph"
	"github.com/trpc-group/compliance-rag/textindex"
)

type stubModel struct {
	reply string
	err   error
}

func (s *stubModel) StreamChat(ctx context.Context, req llm.Request) (<-chan llm.Delta, error) {
	return nil, errors.New("not implemented")
}

func (s *stubModel) Complete(ctx context.Context, req llm.Request) (string, error) {
	return s.reply, s.err
}

func (s *stubModel) Info() llm.Info { return llm.Info{} }

type fakeTextIndex struct {
	hits []textindex.Hit
	err  error
}

func (f *fakeTextIndex) Search(ctx context.Context, index string, query map[string]any, size int) ([]textindex.Hit, error) {
	return f.hits, f.err
}
func (f *fakeTextIndex) Knn(ctx context.Context, index, field string, vector []float32, size int) ([]textindex.Hit, error) {
	return nil, nil
}
func (f *fakeTextIndex) IndexDoc(ctx context.Context, index, id string, doc any) error { return nil }
func (f *fakeTextIndex) DeleteDoc(ctx context.Context, index, id string) error         { return nil }
func (f *fakeTextIndex) DeleteByQuery(ctx context.Context, index string, query map[string]any) error {
	return nil
}

type fakeGraph struct {
	rows []map[string]any
	err  error
}

func (f *fakeGraph) Execute(ctx context.Context, stmt string, params map[string]any) ([]map[string]any, error) {
	return f.rows, f.err
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
		t.Fatal("timed out draining retriever output")
	}
	return out
}

func TestRetrieve_IntentMiss_EmitsThinkAndEmptyData(t *testing.T) {
	r := graphretriever.New(
		&stubModel{reply: "否"},
		&stubModel{},
		&stubModel{},
		&fakeTextIndex{},
		&fakeGraph{},
		"qa_system", "intent-prompt", "query-prompt", "summary-prompt",
	)
	frames := drain(t, r.Retrieve(context.Background(), "今天天气如何"))
	require.Len(t, frames, 2)
	require.Equal(t, frame.Think, frames[0].Type)
	require.Equal(t, frame.Data, frames[1].Type)
	require.Equal(t, "", frames[1].Content)
}

func TestRetrieve_IntentFailure_DegradesGracefully(t *testing.T) {
	r := graphretriever.New(
		&stubModel{err: errors.New("llm down")},
		&stubModel{},
		&stubModel{},
		&fakeTextIndex{},
		&fakeGraph{},
		"qa_system", "intent-prompt", "query-prompt", "summary-prompt",
	)
	frames := drain(t, r.Retrieve(context.Background(), "某集成商与哪些单位存在关系"))
	require.Len(t, frames, 2)
	require.Equal(t, frame.Think, frames[0].Type)
	require.Equal(t, frame.Data, frames[1].Type)
}

func TestRetrieve_FullPipeline_EmitsThinkSummaryAndAppendix(t *testing.T) {
	intentModel := &stubModel{reply: "是"}
	queryModel := &stubModel{reply: "MATCH (n) RETURN n LIMIT 10"}
	summaryModel := &stubModel{reply: "共找到 2 条相关记录。"}
	textIndex := &fakeTextIndex{hits: []textindex.Hit{
		{ID: "ex1", Source: map[string]any{"question": "谁和谁有关系", "answer": "MATCH (a)-[r]->(b) RETURN a,b"}},
	}}
	rows := []map[string]any{{"name": "unit-a"}, {"name": "unit-b"}}
	graphEngine := &fakeGraph{rows: rows}

	r := graphretriever.New(intentModel, queryModel, summaryModel, textIndex, graphEngine,
		"qa_system", "intent-prompt", "query-prompt", "summary-prompt")

	frames := drain(t, r.Retrieve(context.Background(), "某集成商与哪些单位存在关系"))
	require.Len(t, frames, 3)
	require.Equal(t, frame.Think, frames[0].Type)
	require.Equal(t, frame.Data, frames[1].Type)
	require.Equal(t, "共找到 2 条相关记录。", frames[1].Content)
	require.Equal(t, frame.Data, frames[2].Type)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(frames[2].Content), &decoded))
	require.Len(t, decoded, 2)
}

func TestRetrieve_QueryGenerationFailure_EmitsEmptyData(t *testing.T) {
	r := graphretriever.New(
		&stubModel{reply: "是"},
		&stubModel{err: errors.New("generation failed")},
		&stubModel{},
		&fakeTextIndex{},
		&fakeGraph{},
		"qa_system", "intent-prompt", "query-prompt", "summary-prompt",
	)
	frames := drain(t, r.Retrieve(context.Background(), "某集成商与哪些单位存在关系"))
	require.Len(t, frames, 2)
	require.Equal(t, "", frames[1].Content)
}

func TestRetrieve_GraphExecutionFailure_EmitsEmptyData(t *testing.T) {
	r := graphretriever.New(
		&stubModel{reply: "是"},
		&stubModel{reply: "MATCH (n) RETURN n"},
		&stubModel{},
		&fakeTextIndex{},
		&fakeGraph{err: errors.New("neo4j down")},
		"qa_system", "intent-prompt", "query-prompt", "summary-prompt",
	)
	frames := drain(t, r.Retrieve(context.Background(), "某集成商与哪些单位存在关系"))
	// generated-statement think, failure think, empty data
	require.Len(t, frames, 3)
	require.Equal(t, "", frames[2].Content)
}

func TestRetrieve_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := graphretriever.New(
		&stubModel{reply: "是"},
		&stubModel{reply: "MATCH (n) RETURN n"},
		&stubModel{reply: "summary"},
		&fakeTextIndex{},
		&fakeGraph{rows: []map[string]any{{"a": 1}}},
		"qa_system", "intent-prompt", "query-prompt", "summary-prompt",
	)
	ch := r.Retrieve(ctx, "某集成商与哪些单位存在关系")
	for range ch {
	}
}
