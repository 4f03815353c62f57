package tools

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
)

func seedCategories(n int) []string {
	inserts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		// Descending values so row order matches "top" order.
		inserts = append(inserts, fmt.Sprintf(
			`INSERT INTO %%q VALUES ('cat-%02d', %d)`, i, (n-i)*10,
		))
	}
	return inserts
}

func TestChartCapsWithOtherBucketByDefault(t *testing.T) {
	env := testEnv(t, "sales",
		`CREATE TABLE %q (category TEXT, revenue REAL)`,
		seedCategories(25)...,
	)
	exec := &ChartExecutor{}

	// 25 categories with default arguments: top 10 plus an Other row.
	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "sales", "chart_type": "bar", "x": "category", "y": "revenue",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Charts) != 1 {
		t.Fatalf("expected 1 chart, got %d", len(res.Charts))
	}
	spec := res.Charts[0]
	if len(spec.Data) != 11 {
		t.Fatalf("expected 10 categories plus Other, got %d", len(spec.Data))
	}
	if !spec.Meta.GroupedOther {
		t.Error("expected grouped_other flag")
	}
	if spec.Meta.Truncated {
		t.Error("grouped chart should not also be truncated")
	}
	if spec.Meta.TailRows != 15 {
		t.Errorf("expected 15 tail rows, got %d", spec.Meta.TailRows)
	}
	if spec.Meta.TopN != 10 {
		t.Errorf("expected top_n 10, got %d", spec.Meta.TopN)
	}

	last := spec.Data[len(spec.Data)-1]
	if last["category"] != "Other" {
		t.Fatalf("expected Other bucket last, got %v", last["category"])
	}
	// Tail values are (15..1)*10.
	want := 0.0
	for i := 1; i <= 15; i++ {
		want += float64(i) * 10
	}
	got, _ := asFloat(last["revenue"])
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("expected Other sum %v, got %v", want, got)
	}
}

func TestChartGroupOtherOptOut(t *testing.T) {
	env := testEnv(t, "sales",
		`CREATE TABLE %q (category TEXT, revenue REAL)`,
		seedCategories(25)...,
	)
	exec := &ChartExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "sales", "chart_type": "bar", "x": "category", "y": "revenue",
		"group_other": false,
	})
	if err != nil {
		t.Fatal(err)
	}
	spec := res.Charts[0]
	if len(spec.Data) != 10 {
		t.Fatalf("expected a plain top-10 cut, got %d rows", len(spec.Data))
	}
	if !spec.Meta.Truncated {
		t.Error("expected truncated flag")
	}
	if spec.Meta.GroupedOther {
		t.Error("opted-out chart must not carry an Other bucket")
	}
	for _, row := range spec.Data {
		if row["category"] == "Other" {
			t.Fatal("no Other row expected when group_other is false")
		}
	}
}

func TestChartNonNumericTailFallsBackToTruncation(t *testing.T) {
	env := testEnv(t, "sales",
		`CREATE TABLE %q (category TEXT, code TEXT)`,
		func() []string {
			out := make([]string, 0, 15)
			for i := 0; i < 15; i++ {
				out = append(out, fmt.Sprintf(`INSERT INTO %%q VALUES ('cat-%02d', 'c%d')`, i, i))
			}
			return out
		}()...,
	)
	exec := &ChartExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "sales", "chart_type": "bar", "x": "category", "y": "code",
	})
	if err != nil {
		t.Fatal(err)
	}
	spec := res.Charts[0]
	if len(spec.Data) != 10 || !spec.Meta.Truncated || spec.Meta.GroupedOther {
		t.Errorf("text y cannot be summed; expected plain truncation, got %d rows meta %+v", len(spec.Data), spec.Meta)
	}
}

func TestChartLineSkipsCapping(t *testing.T) {
	env := testEnv(t, "series",
		`CREATE TABLE %q (day INTEGER, value REAL)`,
		func() []string {
			out := make([]string, 0, 30)
			for i := 0; i < 30; i++ {
				out = append(out, fmt.Sprintf(`INSERT INTO %%q VALUES (%d, %d)`, i, i*2))
			}
			return out
		}()...,
	)
	exec := &ChartExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "series", "chart_type": "line", "x": "day", "y": "value",
	})
	if err != nil {
		t.Fatal(err)
	}
	spec := res.Charts[0]
	if len(spec.Data) != 30 {
		t.Fatalf("line chart should keep all 30 points, got %d", len(spec.Data))
	}
	if spec.Meta.Truncated || spec.Meta.GroupedOther {
		t.Error("line chart should never be capped")
	}
}

func TestChartDefaultTitle(t *testing.T) {
	env := testEnv(t, "sales",
		`CREATE TABLE %q (region TEXT, order_total REAL)`,
		`INSERT INTO %q VALUES ('east', 10)`,
	)
	exec := &ChartExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "sales", "chart_type": "bar", "x": "region", "y": "order_total",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Charts[0].Title != "Order Total by Region" {
		t.Errorf("unexpected default title %q", res.Charts[0].Title)
	}
}

func TestChartUnknownColumn(t *testing.T) {
	env := testEnv(t, "sales",
		`CREATE TABLE %q (region TEXT, revenue REAL)`,
		`INSERT INTO %q VALUES ('east', 10)`,
	)
	exec := &ChartExecutor{}

	_, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "sales", "chart_type": "bar", "x": "region", "y": "profit",
	})
	if err == nil {
		t.Fatal("expected error for unknown column")
	}
	if !strings.Contains(err.Error(), "profit") {
		t.Errorf("expected offending column in error, got %v", err)
	}
}

func TestChartEmptyTable(t *testing.T) {
	env := testEnv(t, "sales", `CREATE TABLE %q (region TEXT, revenue REAL)`)
	exec := &ChartExecutor{}

	_, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "sales", "chart_type": "bar", "x": "region", "y": "revenue",
	})
	if err == nil {
		t.Fatal("expected error for empty table")
	}
}

func TestChartTopNClamped(t *testing.T) {
	env := testEnv(t, "sales",
		`CREATE TABLE %q (category TEXT, revenue REAL)`,
		seedCategories(30)...,
	)
	exec := &ChartExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "sales", "chart_type": "bar", "x": "category", "y": "revenue",
		"top_n": float64(50), "group_other": false,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Charts[0].Meta.TopN != maxTopN {
		t.Errorf("expected top_n clamped to %d, got %d", maxTopN, res.Charts[0].Meta.TopN)
	}
	if len(res.Charts[0].Data) != maxTopN {
		t.Errorf("expected %d points, got %d", maxTopN, len(res.Charts[0].Data))
	}
}
