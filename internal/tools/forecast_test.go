package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"testing"
)

func TestForecastLinearTrend(t *testing.T) {
	inserts := make([]string, 0, 24)
	for i := 0; i < 24; i++ {
		inserts = append(inserts, fmt.Sprintf(
			`INSERT INTO %%q VALUES (%d, %d.0)`, i, 100+5*i,
		))
	}
	env := testEnv(t, "revenue", `CREATE TABLE %q (month INTEGER, amount REAL)`, inserts...)
	exec := &ForecastExecutor{}
	ctx := context.Background()

	res, err := exec.Execute(ctx, env, map[string]any{
		"table": "revenue", "order_by": "month", "value": "amount", "horizon": float64(6),
	})
	if err != nil {
		t.Fatal(err)
	}

	var out struct {
		Table   string  `json:"forecast_table"`
		Horizon int     `json:"horizon"`
		Slope   float64 `json:"slope"`
	}
	if err := json.Unmarshal([]byte(res.Output), &out); err != nil {
		t.Fatal(err)
	}
	if out.Horizon != 6 {
		t.Errorf("expected horizon 6, got %d", out.Horizon)
	}
	if math.Abs(out.Slope-5) > 1e-6 {
		t.Errorf("expected slope 5, got %v", out.Slope)
	}

	rows, _, err := env.Loader.GetRows(ctx, "amount_forecast", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 30 {
		t.Fatalf("expected 24 fitted + 6 future rows, got %d", len(rows))
	}

	// Future rows carry a NULL actual and a forecast continuing the trend.
	last := rows[len(rows)-1]
	if last["amount"] != nil {
		t.Errorf("future row should have null actual, got %v", last["amount"])
	}
	mo, _ := asFloat(last["month"])
	if mo != 29 {
		t.Errorf("expected last forecast month 29, got %v", mo)
	}
	fc, _ := asFloat(last["forecast"])
	if math.Abs(fc-(100+5*29)) > 1e-6 {
		t.Errorf("expected forecast %v, got %v", 100+5*29, fc)
	}
}

func TestForecastChartShape(t *testing.T) {
	inserts := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		inserts = append(inserts, fmt.Sprintf(`INSERT INTO %%q VALUES (%d, %d.0)`, i, 10*i))
	}
	env := testEnv(t, "series", `CREATE TABLE %q (t INTEGER, v REAL)`, inserts...)
	exec := &ForecastExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "series", "order_by": "t", "value": "v", "horizon": float64(4),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Charts) != 1 {
		t.Fatalf("expected 1 chart, got %d", len(res.Charts))
	}
	chart := res.Charts[0]
	if chart.Type != "line" {
		t.Errorf("expected line chart, got %q", chart.Type)
	}
	if len(chart.Dashed) != 1 || chart.Dashed[0] != "forecast" {
		t.Errorf("expected forecast series dashed, got %v", chart.Dashed)
	}
	if len(chart.ReferenceLines) != 1 || chart.ReferenceLines[0].Axis != "x" {
		t.Errorf("expected x reference line at forecast start, got %v", chart.ReferenceLines)
	}
	if got, _ := asFloat(chart.ReferenceLines[0].Value); got != 11 {
		t.Errorf("expected forecast start at last observed t=11, got %v", got)
	}
	if len(chart.Data) != 16 {
		t.Errorf("expected 12 fitted + 4 future points, got %d", len(chart.Data))
	}
}

func TestForecastSeasonalPattern(t *testing.T) {
	// Flat series with a repeating +10/-10 swing of period 4.
	season := []float64{10, -10, 0, 0}
	inserts := make([]string, 0, 16)
	for i := 0; i < 16; i++ {
		inserts = append(inserts, fmt.Sprintf(
			`INSERT INTO %%q VALUES (%d, %v)`, i, 100+season[i%4],
		))
	}
	env := testEnv(t, "series", `CREATE TABLE %q (t INTEGER, v REAL)`, inserts...)
	exec := &ForecastExecutor{}
	ctx := context.Background()

	_, err := exec.Execute(ctx, env, map[string]any{
		"table": "series", "order_by": "t", "value": "v",
		"horizon": float64(4), "season_length": float64(4),
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, _, err := env.Loader.GetRows(ctx, "v_forecast", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	// The four future points repeat the seasonal swing.
	future := rows[16:]
	for i, row := range future {
		fc, _ := asFloat(row["forecast"])
		want := 100 + season[i%4]
		if math.Abs(fc-want) > 3.0 {
			t.Errorf("future point %d: expected about %v, got %v", i, want, fc)
		}
	}
}

func TestForecastTooFewPoints(t *testing.T) {
	env := testEnv(t, "series",
		`CREATE TABLE %q (t INTEGER, v REAL)`,
		`INSERT INTO %q VALUES (1, 10.0)`,
		`INSERT INTO %q VALUES (2, 20.0)`,
	)
	exec := &ForecastExecutor{}

	_, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "series", "order_by": "t", "value": "v",
	})
	if err == nil {
		t.Fatal("expected error with fewer than 3 points")
	}
}

func TestForecastConstantOrderColumn(t *testing.T) {
	env := testEnv(t, "series",
		`CREATE TABLE %q (t INTEGER, v REAL)`,
		`INSERT INTO %q VALUES (1, 10.0)`,
		`INSERT INTO %q VALUES (1, 20.0)`,
		`INSERT INTO %q VALUES (1, 30.0)`,
	)
	exec := &ForecastExecutor{}

	_, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "series", "order_by": "t", "value": "v",
	})
	if err == nil {
		t.Fatal("expected error for order column without variation")
	}
}
