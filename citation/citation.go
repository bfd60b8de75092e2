// Package citation matches an assistant's final answer against the
// candidate knowledge set it was given, returning only the subset that
// was actually referenced.
package citation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/trpc-group/compliance-rag/knowledge"
	"github.com/trpc-group/compliance-rag/llm"
	"github.com/trpc-group/compliance-rag/log"
)

const (
	contentPreviewLimit = 500
	maxTokens           = 1000
	temperature         = 0
)

const systemPrompt = `你是一个引用核对助手。给定助手的最终回答和候选知识列表，` +
	`请判断回答中实际引用了哪些候选知识，只输出被引用知识的 id，每行一个，不要输出其他内容。` +
	`如果没有任何知识被引用，输出 none。`

var idLinePattern = regexp.MustCompile(`(?m)^\s*([A-Za-z0-9_\-:.]+)\s*$`)

// Matcher identifies cited knowledge via one LLM call.
type Matcher struct {
	model llm.Model
}

// New builds a Matcher over an llm.Model.
func New(model llm.Model) *Matcher {
	return &Matcher{model: model}
}

// Match returns the subset of candidates actually cited in finalAnswer,
// truncating each hit's content to 500 characters for the knowledge-frame
// payload. On any failure it returns (nil, nil) — citation is never fatal.
func (m *Matcher) Match(ctx context.Context, finalAnswer string, candidates []knowledge.Knowledge) ([]knowledge.Knowledge, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	reply, err := m.model.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildUserPrompt(finalAnswer, candidates)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		log.Warnf("citation: matcher LLM call failed, emitting no citations: %v", err)
		return nil, nil
	}

	cited := parseCitedIDs(reply)
	if len(cited) == 0 {
		return nil, nil
	}

	out := make([]knowledge.Knowledge, 0, len(cited))
	for _, c := range candidates {
		if !cited[c.ID] {
			continue
		}
		hit := c
		hit.Content = truncate(hit.Content, contentPreviewLimit)
		out = append(out, hit)
	}
	return out, nil
}

func buildUserPrompt(finalAnswer string, candidates []knowledge.Knowledge) string {
	var b strings.Builder
	b.WriteString("助手回答：\n")
	b.WriteString(finalAnswer)
	b.WriteString("\n\n候选知识：\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "id=%s title=%s content=%s\n", c.ID, c.Title, truncate(c.Content, contentPreviewLimit))
	}
	return b.String()
}

func parseCitedIDs(reply string) map[string]bool {
	if strings.TrimSpace(strings.ToLower(reply)) == "none" {
		return nil
	}
	out := map[string]bool{}
	for _, m := range idLinePattern.FindAllStringSubmatch(reply, -1) {
		id := strings.TrimSpace(m[1])
		if id == "" || strings.EqualFold(id, "none") {
			continue
		}
		out[id] = true
	}
	return out
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
