// Package graph implements the GraphRetriever: a five-step pipeline that
// translates a question into a graph-query-language statement, executes
// it, and streams framed reasoning plus a summary.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trpc-group/compliance-rag/frame"
	"github.com/trpc-group/compliance-rag/graphengine"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/localcache"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/textindex"
)

const (
	defaultFewshotK  = 3
	defaultRowCap    = 100
	fewshotTextField = "question"
	queryTemperature = 0
	bufferSize       = 8

	// defaultFewshotCacheCapacity and defaultFewshotCacheTTL bound the
	// cache-aside layer in front of the few-shot example lookup: the same
	// question (or a retry of it) skips the text-index round trip.
	defaultFewshotCacheCapacity = 512
	defaultFewshotCacheTTL      = 10 * time.Minute
)

// Example is one (question, query-language statement) few-shot pair.
type Example struct {
	Question string
	Query    string
}

// Retriever runs the parse-intent -> fewshot -> generate-query -> execute
// -> summarize pipeline, emitting its own frame stream. A Retriever's
// output is finite and non-restartable: one Retrieve call drains to
// completion and closes its channel.
type Retriever struct {
	intentModel    llm.Model
	queryModel     llm.Model
	summaryModel   llm.Model
	textIndex      textindex.Adapter
	graphEngine    graphengine.Adapter
	exampleIndex   string
	intentPrompt   string
	queryPrompt    string
	summaryPrompt  string
	fewshotK       int
	rowCap         int
	fewshotCache   *localcache.Cache
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithFewshotK overrides the default few-shot example count of 3.
func WithFewshotK(k int) Option {
	return func(r *Retriever) { r.fewshotK = k }
}

// WithRowCap overrides the default row cap of 100.
func WithRowCap(cap int) Option {
	return func(r *Retriever) { r.rowCap = cap }
}

// WithFewshotCache overrides the default few-shot example cache.
func WithFewshotCache(cache *localcache.Cache) Option {
	return func(r *Retriever) { r.fewshotCache = cache }
}

// New builds a Retriever. The three model arguments may all point at the
// same llm.Model; they are distinguished because each call site can be
// configured with its own scenario (model name, temperature, max tokens)
// independently.
func New(intentModel, queryModel, summaryModel llm.Model, textIndex textindex.Adapter, graphEngine graphengine.Adapter, exampleIndex, intentPrompt, queryPrompt, summaryPrompt string, opts ...Option) *Retriever {
	r := &Retriever{
		intentModel: intentModel, queryModel: queryModel, summaryModel: summaryModel,
		textIndex: textIndex, graphEngine: graphEngine, exampleIndex: exampleIndex,
		intentPrompt: intentPrompt, queryPrompt: queryPrompt, summaryPrompt: summaryPrompt,
		fewshotK: defaultFewshotK, rowCap: defaultRowCap,
		fewshotCache: localcache.New(defaultFewshotCacheCapacity, defaultFewshotCacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs the pipeline and returns a channel of frames: a think
// preamble describing steps 1-3, a data block with the summary, and
// optionally a structured JSON appendix of rows as a further data frame.
// A failed few-shot lookup is logged and the pipeline continues without
// examples; any other step's failure degrades to a think note and an empty
// data frame rather than raising — the caller always sees knowledge=[] on
// failure.
func (r *Retriever) Retrieve(ctx context.Context, question string) <-chan frame.Frame {
	out := make(chan frame.Frame, bufferSize)
	go func() {
		defer close(out)
		r.run(ctx, question, out)
	}()
	return out
}

func (r *Retriever) run(ctx context.Context, question string, out chan<- frame.Frame) {
	touches, err := r.parseIntent(ctx, question)
	if err != nil {
		r.emitThink(ctx, out, fmt.Sprintf("图谱意图解析失败：%v", err))
		r.emitEmpty(ctx, out)
		return
	}
	if !touches {
		r.emitThink(ctx, out, "该问题不涉及图谱实体，跳过图谱检索。")
		r.emitEmpty(ctx, out)
		return
	}

	examples, err := r.fewshotExamples(ctx, question)
	if err != nil {
		log.Warnf("graph retriever: fewshot lookup failed: %v", err)
		examples = nil
	}

	query, err := r.generateQuery(ctx, question, examples)
	if err != nil || strings.TrimSpace(query) == "" {
		r.emitThink(ctx, out, fmt.Sprintf("图查询生成失败：%v", err))
		r.emitEmpty(ctx, out)
		return
	}

	r.emitThink(ctx, out, fmt.Sprintf("已解析为图谱查询，生成查询语句：%s", query))

	rows, err := r.graphEngine.Execute(ctx, query, nil)
	if err != nil {
		r.emitThink(ctx, out, fmt.Sprintf("图谱查询执行失败：%v", err))
		r.emitEmpty(ctx, out)
		return
	}
	if len(rows) > r.rowCap {
		rows = rows[:r.rowCap]
	}

	summary, err := r.summarize(ctx, question, rows)
	if err != nil {
		r.emitThink(ctx, out, fmt.Sprintf("图谱结果总结失败：%v", err))
		r.emitEmpty(ctx, out)
		return
	}
	if !send(ctx, out, frame.Data(summary)) {
		return
	}

	if len(rows) > 0 {
		if appendix, err := json.Marshal(rows); err == nil {
			send(ctx, out, frame.Data(string(appendix)))
		}
	}
}

func (r *Retriever) parseIntent(ctx context.Context, question string) (bool, error) {
	reply, err := r.intentModel.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: r.intentPrompt},
			{Role: llm.RoleUser, Content: question},
		},
		Temperature: 0,
		MaxTokens:   20,
	})
	if err != nil {
		return false, err
	}
	reply = strings.TrimSpace(reply)
	return strings.Contains(reply, "是") || strings.Contains(strings.ToLower(reply), "yes"), nil
}

func (r *Retriever) fewshotExamples(ctx context.Context, question string) ([]Example, error) {
	lookup := func(ctx context.Context) ([]Example, error) {
		hits, err := r.textIndex.Search(ctx, r.exampleIndex, map[string]any{
			"match": map[string]any{fewshotTextField: question},
		}, r.fewshotK)
		if err != nil {
			return nil, err
		}
		examples := make([]Example, 0, len(hits))
		for _, h := range hits {
			q, _ := h.Source[fewshotTextField].(string)
			stmt, _ := h.Source["answer"].(string)
			if q == "" || stmt == "" {
				continue
			}
			examples = append(examples, Example{Question: q, Query: stmt})
		}
		return examples, nil
	}
	if r.fewshotCache == nil {
		return lookup(ctx)
	}
	return localcache.Memoize(r.fewshotCache, "graph_fewshot", r.exampleIndex, question, lookup)(ctx)
}

func (r *Retriever) generateQuery(ctx context.Context, question string, examples []Example) (string, error) {
	var b strings.Builder
	for _, ex := range examples {
		fmt.Fprintf(&b, "问题：%s\n查询：%s\n\n", ex.Question, ex.Query)
	}
	b.WriteString("问题：")
	b.WriteString(question)
	b.WriteString("\n查询：")

	return r.queryModel.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: r.queryPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
		Temperature: queryTemperature,
		MaxTokens:   800,
	})
}

func (r *Retriever) summarize(ctx context.Context, question string, rows []map[string]any) (string, error) {
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		rowsJSON = []byte("[]")
	}
	return r.summaryModel.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: r.summaryPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("问题：%s\n查询结果：%s", question, string(rowsJSON))},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	})
}

func (r *Retriever) emitThink(ctx context.Context, out chan<- frame.Frame, content string) {
	send(ctx, out, frame.Think(content))
}

func (r *Retriever) emitEmpty(ctx context.Context, out chan<- frame.Frame) {
	send(ctx, out, frame.Data(""))
}

func send(ctx context.Context, out chan<- frame.Frame, f frame.Frame) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
