// Package orchestrator implements the streaming query pipeline: for one
// user question it routes intent, fans out to the graph and/or text
// retrievers, builds the augmented prompt, streams the answering LLM,
// runs post-stream citation matching, and persists the transcript.
package orchestrator

import (
	"context"
	"strings"

	"github.com/trpc-group/compliance-rag/frame"
	"github.com/trpc-group/compliance-rag/intent"
	"github.com/trpc-group/compliance-rag/knowledge"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/log"
	"github.com/trpc-group/compliance-rag/session"
)

// Mode selects which scene the orchestrator runs for one request.
type Mode string

// Modes.
const (
	ModeHybrid    Mode = "hybrid"
	ModeGraphOnly Mode = "graph_only"
	ModeTextOnly  Mode = "text_only"
)

const (
	bufferSize         = 16
	knowledgeAugPrefix = "以下是检索到的具体业务信息："
)

// Request is one incoming question.
type Request struct {
	UserID    string
	SessionID string
	Question  string
	Mode      Mode
	History   []session.Message
}

// GraphRetriever runs the graph retrieval pipeline, emitting its own
// finite, non-restartable frame stream.
type GraphRetriever interface {
	Retrieve(ctx context.Context, question string) <-chan frame.Frame
}

// TextRetriever runs the hybrid lexical+vector retrieval synchronously.
type TextRetriever interface {
	Retrieve(ctx context.Context, question string) []knowledge.Knowledge
}

// IntentRouter classifies a question into a RoutingDecision.
type IntentRouter interface {
	Route(ctx context.Context, question string, recent []session.Message) intent.RoutingDecision
}

// CitationMatcher identifies which candidates were actually cited.
type CitationMatcher interface {
	Match(ctx context.Context, finalAnswer string, candidates []knowledge.Knowledge) ([]knowledge.Knowledge, error)
}

// PromptBuilder renders the augmented answering-LLM prompt.
type PromptBuilder interface {
	Build(history []session.Message, question, knowledgeStr string) string
}

// SessionStore is the subset of session.Service the orchestrator needs
// for post-stream persistence.
type SessionStore interface {
	AppendMessage(ctx context.Context, userID, sessionID string, role session.Role, content string) error
}

// Orchestrator composes the intent router, both retrievers, the prompt
// builder, the answering model, the citation matcher, and the session
// store into the end-to-end streaming pipeline.
type Orchestrator struct {
	router    IntentRouter
	graph     GraphRetriever
	text      TextRetriever
	prompt    PromptBuilder
	answer    llm.Model
	citation  CitationMatcher
	sessions  SessionStore
	temperature float64
	maxTokens   int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAnswerParams overrides the answering model's temperature/max tokens.
func WithAnswerParams(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) {
		o.temperature = temperature
		o.maxTokens = maxTokens
	}
}

// New builds an Orchestrator.
func New(router IntentRouter, graphRetriever GraphRetriever, textRetriever TextRetriever, prompt PromptBuilder, answer llm.Model, citation CitationMatcher, sessions SessionStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		router: router, graph: graphRetriever, text: textRetriever,
		prompt: prompt, answer: answer, citation: citation, sessions: sessions,
		temperature: 0.3, maxTokens: 2000,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run produces the ordered Frame sequence for one request. The returned
// channel closes when the sequence terminates; persistence of the user
// and assistant turns is scheduled after normal closure only — a client
// disconnect (ctx canceled mid-stream) skips persistence entirely.
func (o *Orchestrator) Run(ctx context.Context, req Request) (<-chan frame.Frame, error) {
	out := make(chan frame.Frame, bufferSize)
	go func() {
		var acc strings.Builder
		completed := o.dispatch(ctx, req, out, &acc)
		close(out)
		if !completed {
			return
		}
		o.persist(req, acc.String())
	}()
	return out, nil
}

// dispatch runs the mode-specific scene. It returns false if the stream
// was interrupted by context cancellation (client disconnect).
func (o *Orchestrator) dispatch(ctx context.Context, req Request, out chan<- frame.Frame, acc *strings.Builder) bool {
	switch req.Mode {
	case ModeTextOnly:
		if !o.emit(ctx, out, acc, frame.Think("正在检索相关文本知识...")) {
			return false
		}
		return o.runTextOnly(ctx, req.History, req.Question, out, acc)

	case ModeGraphOnly:
		if !o.emit(ctx, out, acc, frame.Think("正在执行图谱检索...")) {
			return false
		}
		return o.forwardGraph(ctx, o.graph.Retrieve(ctx, req.Question), out, acc, false, nil)

	case ModeHybrid:
		return o.runHybrid(ctx, req, out, acc)

	default:
		if !o.emit(ctx, out, acc, frame.Think("正在检索相关文本知识...")) {
			return false
		}
		return o.runTextOnly(ctx, req.History, req.Question, out, acc)
	}
}

func (o *Orchestrator) runHybrid(ctx context.Context, req Request, out chan<- frame.Frame, acc *strings.Builder) bool {
	decision := o.router.Route(ctx, req.Question, req.History)

	if !o.emit(ctx, out, acc, frame.Think("已判定检索策略："+string(decision))) {
		return false
	}

	switch decision {
	case intent.Graph:
		return o.forwardGraph(ctx, o.graph.Retrieve(ctx, req.Question), out, acc, true, nil)

	case intent.Hybrid:
		var scratch strings.Builder
		if !o.forwardGraph(ctx, o.graph.Retrieve(ctx, req.Question), out, acc, false, &scratch) {
			return false
		}
		augmented := req.Question
		if scratch.Len() > 0 {
			augmented = req.Question + knowledgeAugPrefix + scratch.String()
		}
		return o.runTextOnly(ctx, req.History, augmented, out, acc)

	default: // intent.Text, intent.None
		return o.runTextOnly(ctx, req.History, req.Question, out, acc)
	}
}

// forwardGraph forwards frames from a graph retriever's own stream. If
// dropThink is set, frames of type Think are consumed but never forwarded
// (their content does not reach the client or the persisted transcript).
// If scratch is non-nil, every forwarded Data frame's content is also
// appended to it.
func (o *Orchestrator) forwardGraph(ctx context.Context, in <-chan frame.Frame, out chan<- frame.Frame, acc *strings.Builder, dropThink bool, scratch *strings.Builder) bool {
	for f := range in {
		if dropThink && f.Type == frame.Think {
			continue
		}
		if scratch != nil && f.Type == frame.Data {
			scratch.WriteString(f.Content)
		}
		if !o.emit(ctx, out, acc, f) {
			drainFrames(in)
			return false
		}
	}
	return true
}

// drainFrames consumes the remainder of a channel so its producer
// goroutine is never blocked on a send after the consumer has given up.
func drainFrames(in <-chan frame.Frame) {
	for range in {
	}
}

// runTextOnly retrieves text knowledge, builds the augmented prompt,
// streams the answering LLM, and runs post-stream citation matching.
func (o *Orchestrator) runTextOnly(ctx context.Context, history []session.Message, question string, out chan<- frame.Frame, acc *strings.Builder) bool {
	hits := o.text.Retrieve(ctx, question)
	knowledgeStr := renderKnowledge(hits)
	rendered := o.prompt.Build(history, question, knowledgeStr)

	deltas, err := o.answer.StreamChat(ctx, llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: rendered}},
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
	})
	if err != nil {
		return o.emit(ctx, out, acc, frame.Err("回答生成失败："+err.Error()))
	}

	var finalReply strings.Builder
	for d := range deltas {
		if d.Err != nil {
			return o.emit(ctx, out, acc, frame.Err("回答生成失败："+d.Err.Error()))
		}
		if d.Content == "" {
			continue
		}
		finalReply.WriteString(d.Content)
		if !o.emit(ctx, out, acc, frame.Data(d.Content)) {
			return false
		}
	}

	cited, err := o.citation.Match(ctx, finalReply.String(), hits)
	if err != nil {
		log.Warnf("orchestrator: citation matching failed: %v", err)
		return true
	}
	for _, c := range cited {
		if !o.emit(ctx, out, acc, frame.Know(renderCitation(c))) {
			return false
		}
	}
	return true
}

func renderKnowledge(hits []knowledge.Knowledge) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(h.Title)
		b.WriteString("\n")
		b.WriteString(h.Content)
	}
	return b.String()
}

func renderCitation(k knowledge.Knowledge) string {
	if k.Title == "" {
		return k.Content
	}
	return k.Title + "：" + k.Content
}

// persist appends the user question and assembled assistant answer to
// the session store. Failures are logged, never surfaced: the response
// has already been delivered to the client.
func (o *Orchestrator) persist(req Request, assistantContent string) {
	ctx := context.Background()
	if err := o.sessions.AppendMessage(ctx, req.UserID, req.SessionID, session.RoleUser, req.Question); err != nil {
		log.Errorf("orchestrator: persisting user message failed for %s/%s: %v", req.UserID, req.SessionID, err)
	}
	if err := o.sessions.AppendMessage(ctx, req.UserID, req.SessionID, session.RoleAssistant, assistantContent); err != nil {
		log.Errorf("orchestrator: persisting assistant message failed for %s/%s: %v", req.UserID, req.SessionID, err)
	}
}

// emit sends f to out, accumulating its content into acc regardless of
// mode, and reports whether the send succeeded before ctx was canceled.
func (o *Orchestrator) emit(ctx context.Context, out chan<- frame.Frame, acc *strings.Builder, f frame.Frame) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- f:
		acc.WriteString(f.Content)
		return true
	case <-ctx.Done():
		return false
	}
}
