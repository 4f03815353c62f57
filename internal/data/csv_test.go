package data

import (
	"strings"
	"testing"
)

func TestSanitizeTableName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Orders.csv", "orders"},
		{"Q3 Sales Report.csv", "q3_sales_report"},
		{"/tmp/upload/2024-sales.csv", "_2024_sales"},
		{"weird---name__.CSV", "weird_name"},
		{"...", "unnamed_table"},
	}
	for _, c := range cases {
		if got := SanitizeTableName(c.in); got != c.want {
			t.Errorf("SanitizeTableName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseCSVTypeInference(t *testing.T) {
	input := strings.Join([]string{
		"id,price,active,city,mixed",
		"1,9.99,true,Boston,42",
		"2,12.50,false,Chicago,hello",
		"3,3,true,Denver,7",
	}, "\n")

	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		"id":     "INTEGER",
		"price":  "REAL",
		"active": "BOOLEAN",
		"city":   "TEXT",
		"mixed":  "TEXT",
	}
	for _, col := range table.Columns {
		if want[col.Name] != col.Type {
			t.Errorf("column %q: expected type %s, got %s", col.Name, want[col.Name], col.Type)
		}
	}
	if len(table.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(table.Rows))
	}
	if table.Rows[0][0] != int64(1) {
		t.Errorf("expected int64 id, got %T %v", table.Rows[0][0], table.Rows[0][0])
	}
	if table.Rows[0][1] != 9.99 {
		t.Errorf("expected float price, got %v", table.Rows[0][1])
	}
	if table.Rows[1][2] != false {
		t.Errorf("expected bool active, got %v", table.Rows[1][2])
	}
}

func TestParseCSVEmptyCellsBecomeNull(t *testing.T) {
	input := "a,b\n1,\n,2\n"
	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if table.Rows[0][1] != nil {
		t.Errorf("expected nil for empty cell, got %v", table.Rows[0][1])
	}
	if table.Rows[1][0] != nil {
		t.Errorf("expected nil for empty cell, got %v", table.Rows[1][0])
	}
	// Empty cells do not widen the inferred type.
	for _, col := range table.Columns {
		if col.Type != "INTEGER" {
			t.Errorf("column %q: expected INTEGER, got %s", col.Name, col.Type)
		}
	}
}

func TestParseCSVAllEmptyColumnIsText(t *testing.T) {
	input := "a,b\n1,\n2,\n"
	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if table.Columns[1].Type != "TEXT" {
		t.Errorf("expected TEXT for empty column, got %s", table.Columns[1].Type)
	}
}

func TestParseCSVBlankHeaderNames(t *testing.T) {
	input := "a,,c\n1,2,3\n"
	table, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if table.Columns[1].Name != "column_2" {
		t.Errorf("expected generated name column_2, got %q", table.Columns[1].Name)
	}
}

func TestParseCSVEmptyFile(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}
