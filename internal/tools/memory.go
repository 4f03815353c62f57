package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

// MemoryExecutor implements update_memory. Memory writes bypass the turn's
// optimistic-concurrency path on purpose: they are commutative appends and
// removals, safe against concurrent turns.
type MemoryExecutor struct{}

func (e *MemoryExecutor) Name() string   { return registry.ToolUpdateMemory }
func (e *MemoryExecutor) Mutating() bool { return true }

func (e *MemoryExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	action := argString(args, "action", "")
	category := argString(args, "category", "")
	content := strings.TrimSpace(argString(args, "content", ""))
	if content == "" {
		return nil, fmt.Errorf("memory content cannot be empty")
	}

	switch action {
	case "add":
		err := env.Sessions.AppendMemory(ctx, env.SessionID, category, types.MemoryEntry{
			Content: content,
			AddedAt: time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		return &Result{Output: fmt.Sprintf("Remembered %s: %s", category, content)}, nil
	case "remove":
		if err := env.Sessions.RemoveMemory(ctx, env.SessionID, category, content); err != nil {
			return nil, err
		}
		return &Result{Output: fmt.Sprintf("Removed %s: %s", category, content)}, nil
	}
	return nil, fmt.Errorf("unknown memory action %q", action)
}
