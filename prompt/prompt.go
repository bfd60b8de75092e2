// Package prompt builds the augmented prompt sent to the answering LLM,
// sanitizing and bounding history and knowledge blocks per the template
// contract.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/trpc-group/compliance-rag/session"
)

const (
	// HistoryCharLimit bounds the rendered history block.
	HistoryCharLimit = 60000
	// KnowledgeCharLimit bounds the rendered knowledge block.
	KnowledgeCharLimit = 8000
	// PromptCharCeiling is the overall character ceiling before the
	// fixed safety margin is subtracted.
	PromptCharCeiling = 98304
	// PromptSafetyMargin is subtracted from PromptCharCeiling to get the
	// final truncation bound.
	PromptSafetyMargin = 200
	// maxHistoryMessages caps history to the last two turns (up to 4
	// messages: user+assistant pairs).
	maxHistoryMessages = 4

	defaultEncoding = "cl100k_base"
)

var tagStripPattern = regexp.MustCompile(`(?s)<think>.*?</think>|<knowledge>.*?</knowledge>`)

const template = `%s

以下是历史对话，请基于上下文回答用户的新问题。

--- 历史对话开始 ---
%s
--- 历史对话结束 ---

--- 相关知识 ---
%s
--- 知识结束 ---

用户: %s

助手:`

// Builder renders the answering-LLM prompt from system prompt, history,
// question, and knowledge.
type Builder struct {
	systemPrompt string
	encoding     *tiktoken.Tiktoken
}

// New builds a Builder. Build truncates by character (rune) count only;
// the cl100k_base encoding loaded here backs EstimateTokens alone, which
// reports ok=false if the encoding cannot be loaded.
func New(systemPrompt string) *Builder {
	enc, _ := tiktoken.GetEncoding(defaultEncoding)
	return &Builder{systemPrompt: systemPrompt, encoding: enc}
}

// Build renders the full prompt for one answering-LLM call.
func (b *Builder) Build(history []session.Message, question, knowledgeStr string) string {
	historyBlock := truncate(renderHistory(history), HistoryCharLimit)
	knowledgeBlock := truncate(knowledgeStr, KnowledgeCharLimit)

	full := fmt.Sprintf(template, b.systemPrompt, historyBlock, knowledgeBlock, question)
	return truncate(full, PromptCharCeiling-PromptSafetyMargin)
}

// renderHistory sanitizes and joins the last two turns of history.
func renderHistory(history []session.Message) string {
	recent := history
	if len(recent) > maxHistoryMessages {
		recent = recent[len(recent)-maxHistoryMessages:]
	}
	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		sanitized := sanitize(m.Content)
		speaker := "用户"
		if m.Role == session.RoleAssistant {
			speaker = "助手"
		}
		lines = append(lines, speaker+": "+sanitized)
	}
	return strings.Join(lines, "\n")
}

// sanitize strips embedded <think>...</think> and <knowledge>...</knowledge>
// blocks from a message before it is folded into the history block.
func sanitize(content string) string {
	return tagStripPattern.ReplaceAllString(content, "")
}

// truncate cuts s to at most limit characters (runes), keeping the prefix.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	if limit < 0 {
		limit = 0
	}
	return string(runes[:limit])
}

// EstimateTokens counts tokens in text using the cl100k_base encoding. It
// returns ok=false if the encoding failed to load at construction time.
func (b *Builder) EstimateTokens(text string) (count int, ok bool) {
	if b.encoding == nil {
		return 0, false
	}
	return len(b.encoding.Encode(text, nil, nil)), true
}
