package tools

import (
	"context"
	"fmt"

	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

const (
	defaultGraphEdgeLimit = 500
	maxGraphEdgeLimit     = 5000
	maxGraphNodes         = 200
)

// GraphExecutor implements create_graph: each row of the edge table becomes
// one edge. Oversized graphs are rejected outright rather than sampled; a
// sampled network silently misrepresents connectivity.
type GraphExecutor struct{}

func (e *GraphExecutor) Name() string   { return registry.ToolCreateGraph }
func (e *GraphExecutor) Mutating() bool { return false }

func (e *GraphExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	table := argString(args, "table", "")
	source := argString(args, "source", "")
	target := argString(args, "target", "")
	weight := argString(args, "weight", "")
	layout := argString(args, "layout", "force")

	limit := argInt(args, "limit", defaultGraphEdgeLimit)
	if limit < 1 {
		limit = defaultGraphEdgeLimit
	}
	if limit > maxGraphEdgeLimit {
		limit = maxGraphEdgeLimit
	}

	rows, cols, err := env.Loader.GetRows(ctx, table, limit, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %q has no rows to graph", table)
	}

	present := columnSet(cols)
	need := []string{source, target}
	if weight != "" {
		need = append(need, weight)
	}
	for _, col := range need {
		if _, ok := present[col]; !ok {
			return nil, fmt.Errorf("column %q not found in table %q", col, table)
		}
	}

	seen := map[string]struct{}{}
	var nodes []map[string]any
	addNode := func(v any) string {
		id := fmt.Sprint(v)
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			nodes = append(nodes, map[string]any{"id": id})
		}
		return id
	}

	edges := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		src, tgt := row[source], row[target]
		if src == nil || tgt == nil {
			continue
		}
		edge := map[string]any{
			"source": addNode(src),
			"target": addNode(tgt),
		}
		if weight != "" {
			if w, ok := asFloat(row[weight]); ok {
				edge["weight"] = w
			}
		}
		edges = append(edges, edge)
	}

	if len(nodes) > maxGraphNodes {
		return nil, fmt.Errorf(
			"graph would have %d distinct nodes (max %d). Aggregate the data first, e.g. GROUP BY the node columns or filter to the strongest edges",
			len(nodes), maxGraphNodes,
		)
	}

	title := argString(args, "title", "")
	if title == "" {
		title = fmt.Sprintf("%s to %s network", humanize(source), humanize(target))
	}

	spec := types.GraphSpec{
		Type:   "network",
		Title:  title,
		Nodes:  nodes,
		Edges:  edges,
		Layout: layout,
	}

	return &Result{
		Output: jsonOutput(map[string]any{
			"message": fmt.Sprintf("Created graph '%s' with %d nodes and %d edges", title, len(nodes), len(edges)),
			"nodes":   len(nodes),
			"edges":   len(edges),
		}),
		Graphs: []types.GraphSpec{spec},
	}, nil
}
