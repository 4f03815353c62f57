package tools

import (
	"context"

	"github.com/orbital-ai/orbital/internal/registry"
)

// SchemaExecutor implements get_schema: the full view of dataset and derived
// tables visible to the session.
type SchemaExecutor struct{}

func (e *SchemaExecutor) Name() string   { return registry.ToolGetSchema }
func (e *SchemaExecutor) Mutating() bool { return false }

func (e *SchemaExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	schema, err := env.Loader.GetSchema(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Output: jsonOutput(schema)}, nil
}
