package data

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/orbital-ai/orbital/internal/types"
)

func TestTableStatsNullRatio(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "readings", `CREATE TABLE %q (value REAL, label TEXT)`)
	ctx := context.Background()
	phys := ds.Tables[0].PhysicalName

	// 38 rows, 5 of them with a NULL value.
	for i := 0; i < 38; i++ {
		v := any(float64(i))
		if i < 5 {
			v = nil
		}
		if _, err := engine.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %q VALUES (?, ?)`, phys), v, fmt.Sprintf("label-%d", i%3),
		); err != nil {
			t.Fatal(err)
		}
	}

	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})
	stats, err := loader.TableStats(ctx, "readings")
	if err != nil {
		t.Fatal(err)
	}

	if stats.RowCount != 38 {
		t.Fatalf("expected 38 rows, got %d", stats.RowCount)
	}
	vs := stats.Stats["value"]
	if vs.NullCount != 5 {
		t.Errorf("expected 5 nulls, got %d", vs.NullCount)
	}
	want := 5.0 / 38.0
	if math.Abs(vs.NullRatio-want) > 1e-9 {
		t.Errorf("expected null ratio %v, got %v", want, vs.NullRatio)
	}

	// Repeating the call against the unchanged table gives identical results.
	again, err := loader.TableStats(ctx, "readings")
	if err != nil {
		t.Fatal(err)
	}
	if again.Stats["value"].NullRatio != vs.NullRatio {
		t.Error("stats should be stable across calls")
	}
}

func TestTableStatsNumericAndText(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "sales",
		`CREATE TABLE %q (amount REAL, region TEXT)`,
		`INSERT INTO %q VALUES (10, 'east'), (20, 'east'), (30, 'west')`,
	)
	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})

	stats, err := loader.TableStats(context.Background(), "sales")
	if err != nil {
		t.Fatal(err)
	}

	amount := stats.Stats["amount"]
	if amount.Min != 10.0 || amount.Max != 30.0 {
		t.Errorf("expected min 10 max 30, got %v %v", amount.Min, amount.Max)
	}
	if amount.Mean == nil || *amount.Mean != 20.0 {
		t.Errorf("expected mean 20, got %v", amount.Mean)
	}
	if amount.DistinctCount != 3 {
		t.Errorf("expected 3 distinct amounts, got %d", amount.DistinctCount)
	}

	region := stats.Stats["region"]
	if region.TopValues["east"] != 2 {
		t.Errorf("expected east count 2, got %v", region.TopValues)
	}
	if region.Mean != nil {
		t.Error("text column should not report a mean")
	}
}

func TestTableStatsEmptyTable(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "empty", `CREATE TABLE %q (x INTEGER)`)
	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})

	stats, err := loader.TableStats(context.Background(), "empty")
	if err != nil {
		t.Fatal(err)
	}
	if stats.RowCount != 0 {
		t.Fatalf("expected 0 rows, got %d", stats.RowCount)
	}
	if stats.Stats["x"].NullRatio != 0 {
		t.Errorf("empty table should report zero null ratio, got %v", stats.Stats["x"].NullRatio)
	}
}
