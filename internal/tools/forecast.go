package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

const (
	defaultHorizon = 12
	maxHorizon     = 120
)

// ForecastExecutor implements forecast: linear trend plus an optional
// additive seasonal pattern over an ordered numeric column. The result is
// saved as a derived table and returned as a line chart with the forecast
// dashed.
type ForecastExecutor struct{}

func (e *ForecastExecutor) Name() string   { return registry.ToolForecast }
func (e *ForecastExecutor) Mutating() bool { return true }

func (e *ForecastExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	table := argString(args, "table", "")
	orderBy := argString(args, "order_by", "")
	valueCol := argString(args, "value", "")

	horizon := argInt(args, "horizon", defaultHorizon)
	if horizon < 1 {
		horizon = defaultHorizon
	}
	if horizon > maxHorizon {
		horizon = maxHorizon
	}
	seasonLength := argInt(args, "season_length", 0)

	rows, cols, err := env.Loader.GetRows(ctx, table, 0, 0)
	if err != nil {
		return nil, err
	}
	present := columnSet(cols)
	for _, col := range []string{orderBy, valueCol} {
		if _, ok := present[col]; !ok {
			return nil, fmt.Errorf("column %q not found in table %q", col, table)
		}
	}

	type point struct{ t, v float64 }
	var series []point
	for _, row := range rows {
		t, okT := asFloat(row[orderBy])
		v, okV := asFloat(row[valueCol])
		if okT && okV {
			series = append(series, point{t, v})
		}
	}
	if len(series) < 3 {
		return nil, fmt.Errorf("need at least 3 numeric points to forecast, have %d", len(series))
	}
	sort.Slice(series, func(a, b int) bool { return series[a].t < series[b].t })

	// Least squares trend over the order column.
	n := float64(len(series))
	var sumT, sumV, sumTT, sumTV float64
	for _, p := range series {
		sumT += p.t
		sumV += p.v
		sumTT += p.t * p.t
		sumTV += p.t * p.v
	}
	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return nil, fmt.Errorf("order column %q has no variation", orderBy)
	}
	slope := (n*sumTV - sumT*sumV) / denom
	intercept := (sumV - slope*sumT) / n

	// Additive seasonal pattern from the trend residuals, by position.
	seasonal := make([]float64, 0)
	if seasonLength >= 2 && len(series) >= 2*seasonLength {
		sums := make([]float64, seasonLength)
		counts := make([]float64, seasonLength)
		for i, p := range series {
			phase := i % seasonLength
			sums[phase] += p.v - (intercept + slope*p.t)
			counts[phase]++
		}
		seasonal = make([]float64, seasonLength)
		for i := range seasonal {
			seasonal[i] = sums[i] / counts[i]
		}
	}
	seasonalAt := func(i int) float64 {
		if len(seasonal) == 0 {
			return 0
		}
		return seasonal[i%len(seasonal)]
	}

	// Future order values continue at the series' mean step.
	step := (series[len(series)-1].t - series[0].t) / (n - 1)
	if step <= 0 {
		step = 1
	}
	lastT := series[len(series)-1].t

	forecastTable := valueCol + "_forecast"
	tableRows := make([][]any, 0, len(series)+horizon)
	chartData := make([]map[string]any, 0, len(series)+horizon)
	for i, p := range series {
		fitted := intercept + slope*p.t + seasonalAt(i)
		tableRows = append(tableRows, []any{p.t, p.v, fitted})
		chartData = append(chartData, map[string]any{orderBy: p.t, valueCol: p.v, "forecast": fitted})
	}
	for i := 1; i <= horizon; i++ {
		t := lastT + step*float64(i)
		predicted := intercept + slope*t + seasonalAt(len(series)+i-1)
		tableRows = append(tableRows, []any{t, nil, predicted})
		chartData = append(chartData, map[string]any{orderBy: t, valueCol: nil, "forecast": predicted})
	}

	colsInfo := []types.ColumnInfo{
		{Name: orderBy, Type: "REAL"},
		{Name: valueCol, Type: "REAL"},
		{Name: "forecast", Type: "REAL"},
	}
	if err := env.Loader.RegisterRows(ctx, forecastTable, colsInfo, tableRows); err != nil {
		return nil, fmt.Errorf("save forecast: %w", err)
	}

	title := fmt.Sprintf("%s Forecast", humanize(valueCol))
	chart := types.ChartSpec{
		Type:   "line",
		Title:  title,
		Data:   chartData,
		X:      orderBy,
		Y:      valueCol,
		XLabel: humanize(orderBy),
		YLabel: humanize(valueCol),
		Series: []string{valueCol, "forecast"},
		Dashed: []string{"forecast"},
		ReferenceLines: []types.ReferenceLine{
			{Axis: "x", Value: lastT, Label: "Forecast start"},
		},
		Meta: types.ChartMeta{
			TopN:         defaultTopN,
			RowsReturned: len(chartData),
			FetchLimit:   len(chartData),
		},
	}

	msg := fmt.Sprintf(
		"Forecast %d points ahead for '%s' (trend slope %.4f per %s unit). Saved to table '%s'.",
		horizon, valueCol, slope, orderBy, forecastTable,
	)
	if len(seasonal) > 0 {
		msg += fmt.Sprintf(" Seasonal pattern of length %d applied.", seasonLength)
	}
	return &Result{
		Output: jsonOutput(map[string]any{
			"message":        msg,
			"forecast_table": forecastTable,
			"horizon":        horizon,
			"slope":          slope,
		}),
		Charts: []types.ChartSpec{chart},
	}, nil
}
