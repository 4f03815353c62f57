package data

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/orbital-ai/orbital/internal/types"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

// seedDataset creates a physical dataset table and returns a Dataset pointing
// at it under the given short name.
func seedDataset(t *testing.T, engine *Engine, short, ddl string, inserts ...string) *types.Dataset {
	t.Helper()
	ctx := context.Background()
	id := types.NewDatasetID()
	phys := DatasetTablePrefix(id) + short

	if _, err := engine.db.ExecContext(ctx, fmt.Sprintf(ddl, phys)); err != nil {
		t.Fatal(err)
	}
	for _, ins := range inserts {
		if _, err := engine.db.ExecContext(ctx, fmt.Sprintf(ins, phys)); err != nil {
			t.Fatal(err)
		}
	}
	return &types.Dataset{
		ID:   id,
		Name: short,
		Tables: []types.TableInfo{
			{Name: short, PhysicalName: phys},
		},
	}
}

func TestExecuteSQLSelect(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "orders",
		`CREATE TABLE %q (id INTEGER, amount REAL)`,
		`INSERT INTO %q VALUES (1, 10.5), (2, 20.0)`,
	)
	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})

	res, err := loader.ExecuteSQL(context.Background(), "SELECT id, amount FROM orders ORDER BY id")
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount != 2 {
		t.Fatalf("expected 2 rows, got %d", res.RowCount)
	}
	if res.Data[0]["id"] != int64(1) {
		t.Errorf("expected id 1, got %v", res.Data[0]["id"])
	}
	if res.Truncated {
		t.Error("small result should not be truncated")
	}
}

func TestExecuteSQLTruncatesLargeResults(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "big", `CREATE TABLE %q (n INTEGER)`)
	ctx := context.Background()
	phys := ds.Tables[0].PhysicalName
	for i := 0; i < MaxResultRows+1; i++ {
		if _, err := engine.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %q VALUES (%d)`, phys, i)); err != nil {
			t.Fatal(err)
		}
	}
	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})

	res, err := loader.ExecuteSQL(ctx, "SELECT n FROM big")
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount != MaxResultRows {
		t.Fatalf("expected %d rows, got %d", MaxResultRows, res.RowCount)
	}
	if !res.Truncated {
		t.Error("expected truncation flag")
	}
	if res.Message == "" {
		t.Error("expected truncation message")
	}
}

func TestExecuteSQLCreateTableLandsUnderDerivedPrefix(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "orders",
		`CREATE TABLE %q (id INTEGER, amount REAL)`,
		`INSERT INTO %q VALUES (1, 10.5), (2, 20.0)`,
	)
	sessionID := types.NewSessionID()
	loader := NewLoader(engine, sessionID, []*types.Dataset{ds})
	ctx := context.Background()

	res, err := loader.ExecuteSQL(ctx, "CREATE TABLE totals AS SELECT SUM(amount) AS total FROM orders")
	if err != nil {
		t.Fatal(err)
	}
	if res.CreatedTable != "totals" {
		t.Fatalf("expected created table totals, got %q", res.CreatedTable)
	}

	derived, err := loader.ListDerivedTables(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(derived) != 1 || derived[0].Name != "totals" {
		t.Fatalf("expected one derived table named totals, got %v", derived)
	}
	if !strings.HasPrefix(derived[0].PhysicalName, DerivedTablePrefix(sessionID)) {
		t.Errorf("derived table %q missing session prefix", derived[0].PhysicalName)
	}

	// The derived table is queryable by short name in a later statement.
	sel, err := loader.ExecuteSQL(ctx, "SELECT total FROM totals")
	if err != nil {
		t.Fatal(err)
	}
	if sel.RowCount != 1 {
		t.Fatalf("expected 1 row from derived table, got %d", sel.RowCount)
	}
}

func TestExecuteSQLCreateRewritesOnlyTheTableName(t *testing.T) {
	engine := testEngine(t)
	loader := NewLoader(engine, types.NewSessionID(), nil)
	ctx := context.Background()

	// A one-letter name also occurs inside the "create" keyword itself;
	// only the identifier after CREATE TABLE may be rewritten.
	res, err := loader.ExecuteSQL(ctx, "create table a as select 1 as x")
	if err != nil {
		t.Fatal(err)
	}
	if res.CreatedTable != "a" {
		t.Fatalf("expected created table a, got %q", res.CreatedTable)
	}
	sel, err := loader.ExecuteSQL(ctx, "SELECT x FROM a")
	if err != nil {
		t.Fatal(err)
	}
	if sel.RowCount != 1 {
		t.Fatalf("expected 1 row, got %d", sel.RowCount)
	}

	// The table name recurring as a column alias stays untouched.
	res, err = loader.ExecuteSQL(ctx, "create table tally as select 1 as tally")
	if err != nil {
		t.Fatal(err)
	}
	if res.CreatedTable != "tally" {
		t.Fatalf("expected created table tally, got %q", res.CreatedTable)
	}
	sel, err = loader.ExecuteSQL(ctx, "SELECT * FROM tally")
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Columns) != 1 || sel.Columns[0] != "tally" {
		t.Fatalf("expected column alias preserved, got %v", sel.Columns)
	}
}

func TestExecuteSQLDeniesForeignTables(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "orders", `CREATE TABLE %q (id INTEGER)`)
	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})

	_, err := loader.ExecuteSQL(context.Background(), "SELECT * FROM customers")
	if err == nil {
		t.Fatal("expected access error for unattached table")
	}
	if !strings.Contains(err.Error(), "access denied to tables") {
		t.Errorf("expected access denied error, got %v", err)
	}
	if !strings.Contains(err.Error(), "customers") {
		t.Errorf("expected offending table name in error, got %v", err)
	}
}

func TestExecuteSQLDeniesOtherSessionsDerivedTables(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "orders",
		`CREATE TABLE %q (id INTEGER)`,
		`INSERT INTO %q VALUES (1)`,
	)
	ctx := context.Background()

	other := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})
	if _, err := other.ExecuteSQL(ctx, "CREATE TABLE private_calc AS SELECT * FROM orders"); err != nil {
		t.Fatal(err)
	}
	otherDerived, err := other.ListDerivedTables(ctx)
	if err != nil {
		t.Fatal(err)
	}

	mine := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})
	_, err = mine.ExecuteSQL(ctx, fmt.Sprintf("SELECT * FROM %s", otherDerived[0].PhysicalName))
	if err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("expected access denied for foreign derived table, got %v", err)
	}
}

func TestExecuteSQLAllowsCTENames(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "orders",
		`CREATE TABLE %q (id INTEGER, amount REAL)`,
		`INSERT INTO %q VALUES (1, 10.5), (2, 20.0)`,
	)
	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})

	res, err := loader.ExecuteSQL(context.Background(),
		"WITH big_orders AS (SELECT * FROM orders WHERE amount > 15) SELECT COUNT(*) AS n FROM big_orders")
	if err != nil {
		t.Fatal(err)
	}
	if res.Data[0]["n"] != int64(1) {
		t.Errorf("expected count 1, got %v", res.Data[0]["n"])
	}
}

func TestResolveDerivedWinsOverDataset(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "orders",
		`CREATE TABLE %q (id INTEGER)`,
		`INSERT INTO %q VALUES (1)`,
	)
	sessionID := types.NewSessionID()
	loader := NewLoader(engine, sessionID, []*types.Dataset{ds})
	ctx := context.Background()

	// Shadow the dataset table with a derived table of the same short name.
	phys := DerivedTablePrefix(sessionID) + "orders"
	if _, err := engine.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q (id INTEGER)`, phys)); err != nil {
		t.Fatal(err)
	}

	resolved, err := loader.Resolve(ctx, "orders")
	if err != nil {
		t.Fatal(err)
	}
	if resolved != phys {
		t.Errorf("expected derived table to win, got %q", resolved)
	}
}

func TestResolveUnknownTable(t *testing.T) {
	engine := testEngine(t)
	loader := NewLoader(engine, types.NewSessionID(), nil)
	_, err := loader.Resolve(context.Background(), "ghosts")
	if err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestRegisterRowsReplacesPrevious(t *testing.T) {
	engine := testEngine(t)
	loader := NewLoader(engine, types.NewSessionID(), nil)
	ctx := context.Background()

	cols := []types.ColumnInfo{{Name: "x", Type: "INTEGER"}}
	if err := loader.RegisterRows(ctx, "scratch", cols, [][]any{{int64(1)}, {int64(2)}}); err != nil {
		t.Fatal(err)
	}
	if err := loader.RegisterRows(ctx, "scratch", cols, [][]any{{int64(9)}}); err != nil {
		t.Fatal(err)
	}

	rows, _, err := loader.GetRows(ctx, "scratch", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["x"] != int64(9) {
		t.Fatalf("expected replacement table with one row, got %v", rows)
	}
}

func TestGetSchemaListsBothKinds(t *testing.T) {
	engine := testEngine(t)
	ds := seedDataset(t, engine, "orders",
		`CREATE TABLE %q (id INTEGER, amount REAL)`,
		`INSERT INTO %q VALUES (1, 10.5)`,
	)
	loader := NewLoader(engine, types.NewSessionID(), []*types.Dataset{ds})
	ctx := context.Background()

	if _, err := loader.ExecuteSQL(ctx, "CREATE TABLE summary AS SELECT SUM(amount) AS total FROM orders"); err != nil {
		t.Fatal(err)
	}

	schema, err := loader.GetSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	orders, ok := schema.Tables["orders"]
	if !ok {
		t.Fatal("expected orders in dataset tables")
	}
	if orders.RowCount != 1 {
		t.Errorf("expected row count 1, got %d", orders.RowCount)
	}
	if orders.Dtypes["id"] != "INTEGER" {
		t.Errorf("expected INTEGER id, got %s", orders.Dtypes["id"])
	}
	if _, ok := schema.DerivedTables["summary"]; !ok {
		t.Fatal("expected summary in derived tables")
	}
}

func TestExtractCreatedTable(t *testing.T) {
	cases := []struct {
		stmt string
		want string
	}{
		{"CREATE TABLE foo AS SELECT 1", "foo"},
		{"create table bar (x INTEGER)", "bar"},
		{"CREATE TABLE IF NOT EXISTS baz AS SELECT 1", "baz"},
		{`CREATE TABLE "quoted" AS SELECT 1`, "quoted"},
		{"SELECT * FROM foo", ""},
	}
	for _, c := range cases {
		if got := extractCreatedTable(c.stmt); got != c.want {
			t.Errorf("extractCreatedTable(%q) = %q, want %q", c.stmt, got, c.want)
		}
	}
}
