package tools

import (
	"context"

	"github.com/orbital-ai/orbital/internal/registry"
)

// StatsExecutor implements get_stats: per-column profile of one table.
type StatsExecutor struct{}

func (e *StatsExecutor) Name() string   { return registry.ToolGetStats }
func (e *StatsExecutor) Mutating() bool { return false }

func (e *StatsExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	table := argString(args, "table", "")
	stats, err := env.Loader.TableStats(ctx, table)
	if err != nil {
		return nil, err
	}
	return &Result{Output: jsonOutput(stats)}, nil
}
