package tools

import (
	"context"

	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

// SQLExecutor implements run_sql. The loader does the heavy lifting: short
// name resolution, access validation, derived-prefix rewriting, and the
// result row cap.
type SQLExecutor struct{}

func (e *SQLExecutor) Name() string { return registry.ToolRunSQL }

// Mutating because CREATE TABLE AS SELECT rides through the same tool.
func (e *SQLExecutor) Mutating() bool { return true }

func (e *SQLExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	res, err := env.Loader.ExecuteSQL(ctx, argString(args, "sql", ""))
	if err != nil {
		return nil, err
	}

	out := &Result{Output: jsonOutput(res)}
	if len(res.Data) > 0 {
		out.QueryResults = append(out.QueryResults, types.QueryResult{
			Data:     res.Data,
			Columns:  res.Columns,
			RowCount: res.RowCount,
		})
	}
	return out, nil
}
