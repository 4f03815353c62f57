// Package tools implements the executors behind the agent's tool calls.
// Each executor receives already-validated arguments, performs its side
// effect through the session-scoped loader or the stores, and returns an
// observation for the model plus any structured payloads (charts, graphs,
// query results) destined for the final message.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

// Env carries the per-turn dependencies executors run against. A fresh Env
// is assembled for every turn so the loader always reflects the session's
// current dataset attachments.
type Env struct {
	SessionID types.SessionID
	Loader    *data.Loader
	Sessions  types.SessionStore
	Artifacts types.ArtifactStore
}

// Result is what one tool execution produced. Output is the observation fed
// back to the model; structured payloads accumulate onto the turn's final
// assistant message.
type Result struct {
	Output       string
	Charts       []types.ChartSpec
	Graphs       []types.GraphSpec
	QueryResults []types.QueryResult
}

// Executor runs one tool. Mutating executors get the longer write timeout.
type Executor interface {
	Name() string
	Mutating() bool
	Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error)
}

// Set maps tool names to executors. ask_user has no executor on purpose:
// the orchestrator intercepts it before dispatch.
type Set map[string]Executor

// NewSet builds the full executor set.
func NewSet() Set {
	s := Set{}
	for _, e := range []Executor{
		&SchemaExecutor{},
		&StatsExecutor{},
		&SQLExecutor{},
		&ChartExecutor{},
		&GraphExecutor{},
		&ModelExecutor{},
		&ForecastExecutor{},
		&MemoryExecutor{},
		&ReportExecutor{},
	} {
		s[e.Name()] = e
	}
	return s
}

// Get returns the executor for name, or nil for unknown and intercepted
// tools.
func (s Set) Get(name string) Executor {
	if name == registry.ToolAskUser {
		return nil
	}
	return s[name]
}

// jsonOutput marshals v for the model observation. Marshal failures become
// part of the observation rather than failing the tool.
func jsonOutput(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to encode result: %s"}`, err)
	}
	return string(raw)
}

// Argument helpers. Validation has already run, so these only normalize
// JSON's float64/any typing and fill defaults.

func argString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func argFloat(args map[string]any, key string, def float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return def
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argStringSlice(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// humanize turns a column name into a display label: "order_total" becomes
// "Order Total".
func humanize(col string) string {
	words := strings.FieldsFunc(col, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// columnSet indexes the column names of a result set for existence checks.
func columnSet(cols []string) map[string]struct{} {
	out := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		out[c] = struct{}{}
	}
	return out
}

// asFloat coerces SQLite's dynamic values to float64 where possible.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
