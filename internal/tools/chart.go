package tools

import (
	"context"
	"fmt"

	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

const (
	defaultChartFetchLimit = 100
	maxChartFetchLimit     = 1000
	defaultTopN            = 10
	maxTopN                = 20
	otherBucketLabel       = "Other"
)

// ChartExecutor implements create_chart. It fetches rows, applies the
// category capping policy, and emits a declarative ChartSpec; rendering is
// entirely the client's problem.
type ChartExecutor struct{}

func (e *ChartExecutor) Name() string   { return registry.ToolCreateChart }
func (e *ChartExecutor) Mutating() bool { return false }

func (e *ChartExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	spec, err := buildChart(ctx, env, args)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Created %s chart '%s' with %d data points", spec.Type, spec.Title, spec.Meta.RowsReturned)
	if spec.Meta.GroupedOther {
		summary += fmt.Sprintf(" (%d tail rows grouped into '%s')", spec.Meta.TailRows, otherBucketLabel)
	} else if spec.Meta.Truncated {
		summary += fmt.Sprintf(" (truncated from %d rows, showing top %d)", spec.Meta.RowsReturned+spec.Meta.TailRows, spec.Meta.TopN)
	}
	return &Result{
		Output: jsonOutput(map[string]any{"message": summary, "meta": spec.Meta}),
		Charts: []types.ChartSpec{*spec},
	}, nil
}

// buildChart assembles a ChartSpec from validated create_chart arguments.
// Shared with create_report's embedded chart sections.
func buildChart(ctx context.Context, env *Env, args map[string]any) (*types.ChartSpec, error) {
	table := argString(args, "table", "")
	chartType := argString(args, "chart_type", "")
	x := argString(args, "x", "")
	y := argString(args, "y", "")
	color := argString(args, "color", "")
	series := argStringSlice(args, "series")

	fetchLimit := argInt(args, "limit", defaultChartFetchLimit)
	if fetchLimit < 1 {
		fetchLimit = defaultChartFetchLimit
	}
	if fetchLimit > maxChartFetchLimit {
		fetchLimit = maxChartFetchLimit
	}

	topN := argInt(args, "top_n", defaultTopN)
	if topN < 1 {
		topN = defaultTopN
	}
	if topN > maxTopN {
		topN = maxTopN
	}
	// Tail bucketing is on unless the caller opts out; capped categorical
	// charts show top-N plus an aggregate row, not a silent cut.
	groupOther := argBool(args, "group_other", true)

	rows, cols, err := env.Loader.GetRows(ctx, table, fetchLimit, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("table %q has no rows to chart", table)
	}

	present := columnSet(cols)
	need := []string{x, y}
	if color != "" {
		need = append(need, color)
	}
	need = append(need, series...)
	for _, col := range need {
		if _, ok := present[col]; !ok {
			return nil, fmt.Errorf("column %q not found in table %q", col, table)
		}
	}

	keep := []string{x, y}
	if color != "" {
		keep = append(keep, color)
	}
	keep = append(keep, series...)
	chartData := projectRows(rows, keep)

	meta := types.ChartMeta{
		TopN:       topN,
		FetchLimit: fetchLimit,
	}

	// Line and area charts are continuous series: never drop points from
	// the middle of a trend.
	capCategories := chartType != "line" && chartType != "area"
	if capCategories && len(chartData) > topN {
		tail := chartData[topN:]
		chartData = chartData[:topN]
		meta.TailRows = len(tail)

		if groupOther && tailIsNumeric(tail, y) {
			other := map[string]any{x: otherBucketLabel, y: sumColumn(tail, y)}
			if color != "" {
				other[color] = otherBucketLabel
			}
			chartData = append(chartData, other)
			meta.GroupedOther = true
		} else {
			meta.Truncated = true
		}
	}
	meta.RowsReturned = len(chartData)

	title := argString(args, "title", "")
	if title == "" {
		title = fmt.Sprintf("%s by %s", humanize(y), humanize(x))
	}

	spec := &types.ChartSpec{
		Type:   chartType,
		Title:  title,
		Data:   chartData,
		X:      x,
		Y:      y,
		XLabel: argString(args, "x_label", humanize(x)),
		YLabel: argString(args, "y_label", humanize(y)),
		Color:  color,
		Series: series,
		Dashed: argStringSlice(args, "dashed"),
		Meta:   meta,
	}

	if raw, ok := args["reference_lines"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			spec.ReferenceLines = append(spec.ReferenceLines, types.ReferenceLine{
				Axis:  argString(m, "axis", ""),
				Value: m["value"],
				Label: argString(m, "label", ""),
			})
		}
	}

	return spec, nil
}

func projectRows(rows []map[string]any, keep []string) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		projected := make(map[string]any, len(keep))
		for _, col := range keep {
			projected[col] = row[col]
		}
		out = append(out, projected)
	}
	return out
}

// tailIsNumeric reports whether every non-null y value in the tail can be
// summed. Non-numeric tails fall back to plain truncation.
func tailIsNumeric(rows []map[string]any, y string) bool {
	for _, row := range rows {
		v := row[y]
		if v == nil {
			continue
		}
		if _, ok := asFloat(v); !ok {
			return false
		}
	}
	return true
}

func sumColumn(rows []map[string]any, y string) float64 {
	var total float64
	for _, row := range rows {
		if f, ok := asFloat(row[y]); ok {
			total += f
		}
	}
	return total
}
