// Package contextbuild assembles token-budgeted prompts for the LLM: the
// system prompt with schema, derived tables, and session memory, plus as
// much conversation history as fits.
package contextbuild

import (
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/orbital-ai/orbital/internal/types"
	"github.com/orbital-ai/orbital/pkg/llm"
)

const (
	// memoryShare caps the memory section at a fraction of the input budget
	// so a chatty session cannot crowd out the conversation itself.
	memoryShare = 0.2

	// maxListedDerived caps how many derived tables the system prompt lists.
	maxListedDerived = 10
)

// Engine assembles token-budgeted prompts.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
	tmpl      *template.Template
}

// New creates a context engine. model selects the tokenizer; maxTokens is
// the model's context window and reserve is held back for the response.
// promptTemplate overrides DefaultPrompt when non-empty.
func New(model string, maxTokens, reserve int, promptTemplate string) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	if promptTemplate == "" {
		promptTemplate = DefaultPrompt
	}
	tmpl, err := template.New("system").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
		tmpl:      tmpl,
	}, nil
}

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// PromptData feeds the system prompt template.
type PromptData struct {
	Time          string
	SessionName   string
	Schema        string
	DerivedTables string
	Memory        string
}

// Build assembles the prompt for one turn: the rendered system prompt, the
// longest suffix of the conversation that fits the budget, and the new user
// message. History is trimmed oldest-first by whole messages, never split;
// the user message is never trimmed and its tokens count against the budget.
func (e *Engine) Build(
	session *types.Session,
	userText string,
	datasets []*types.Dataset,
	derived []types.DerivedTable,
) ([]llm.Message, *types.TokenUsage, error) {
	inputBudget := e.maxTokens - e.reserve

	data := PromptData{
		Time:          time.Now().Format(time.RFC3339),
		SessionName:   session.Name,
		Schema:        schemaSummary(datasets),
		DerivedTables: derivedSummary(derived),
		Memory:        e.memorySummary(&session.Memory, int(float64(inputBudget)*memoryShare)),
	}

	var sb strings.Builder
	if err := e.tmpl.Execute(&sb, data); err != nil {
		return nil, nil, fmt.Errorf("render system prompt: %w", err)
	}
	sysPrompt := sb.String()
	sysTokens := e.countTokens(sysPrompt)
	userTokens := 0
	if userText != "" {
		userTokens = e.countTokens(userText) + 4
	}
	budget := inputBudget - sysTokens - userTokens

	history := historyMessages(session.Messages)

	// Walk backwards so the most recent exchange always survives trimming.
	used := 0
	keepFrom := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		msgTokens := e.countTokens(history[i].Content) + 4
		if used+msgTokens > budget {
			break
		}
		used += msgTokens
		keepFrom = i
	}

	messages := make([]llm.Message, 0, 2+len(history)-keepFrom)
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	messages = append(messages, history[keepFrom:]...)
	if userText != "" {
		messages = append(messages, llm.Message{Role: "user", Content: userText})
	}

	usage := &types.TokenUsage{
		InputTokens:  sysTokens + used + userTokens,
		ContextLimit: e.maxTokens,
	}
	return messages, usage, nil
}

// historyMessages converts persisted session messages to LLM messages.
// Tool traces from earlier turns are not replayed; the assistant text
// already summarizes what they found.
func historyMessages(msgs []types.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case types.RoleUser:
			out = append(out, llm.Message{Role: "user", Content: m.Content})
		case types.RoleAssistant:
			out = append(out, llm.Message{Role: "assistant", Content: m.Content})
		}
	}
	return out
}

func schemaSummary(datasets []*types.Dataset) string {
	var sb strings.Builder
	for _, ds := range datasets {
		fmt.Fprintf(&sb, "Dataset %q:\n", ds.Name)
		for _, t := range ds.Tables {
			cols := make([]string, 0, len(t.Columns))
			for _, c := range t.Columns {
				cols = append(cols, fmt.Sprintf("%s %s", c.Name, c.Type))
			}
			fmt.Fprintf(&sb, "- %s (%d rows): %s\n", t.Name, t.RowCount, strings.Join(cols, ", "))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func derivedSummary(derived []types.DerivedTable) string {
	if len(derived) == 0 {
		return ""
	}
	listed := derived
	extra := 0
	if len(listed) > maxListedDerived {
		extra = len(listed) - maxListedDerived
		listed = listed[:maxListedDerived]
	}
	var sb strings.Builder
	for _, d := range listed {
		cols := make([]string, 0, len(d.Columns))
		for _, c := range d.Columns {
			cols = append(cols, c.Name)
		}
		fmt.Fprintf(&sb, "- %s (%d rows): %s\n", d.Name, d.RowCount, strings.Join(cols, ", "))
	}
	if extra > 0 {
		fmt.Fprintf(&sb, "(and %d more)\n", extra)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// memorySummary renders session memory, dropping the oldest entries across
// all categories when the section exceeds its token cap.
func (e *Engine) memorySummary(mem *types.Memory, tokenCap int) string {
	type entry struct {
		category string
		types.MemoryEntry
	}
	var all []entry
	for _, cat := range []struct {
		label   string
		entries []types.MemoryEntry
	}{
		{"Facts", mem.Facts},
		{"Preferences", mem.Preferences},
		{"Corrections", mem.Corrections},
		{"Conclusions", mem.Conclusions},
	} {
		for _, me := range cat.entries {
			all = append(all, entry{category: cat.label, MemoryEntry: me})
		}
	}
	if len(all) == 0 {
		return ""
	}
	sort.SliceStable(all, func(a, b int) bool {
		return all[a].AddedAt.Before(all[b].AddedAt)
	})

	render := func(entries []entry) string {
		byCat := map[string][]string{}
		for _, en := range entries {
			byCat[en.category] = append(byCat[en.category], en.Content)
		}
		var sb strings.Builder
		for _, label := range []string{"Facts", "Preferences", "Corrections", "Conclusions"} {
			lines := byCat[label]
			if len(lines) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "%s:\n", label)
			for _, line := range lines {
				fmt.Fprintf(&sb, "- %s\n", line)
			}
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	out := render(all)
	for len(all) > 1 && e.countTokens(out) > tokenCap {
		all = all[1:]
		out = render(all)
	}
	return out
}
