package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/orbital-ai/orbital/internal/types"
)

const (
	// MaxUploadBytes caps accepted CSV uploads.
	MaxUploadBytes = 50 * 1024 * 1024
	// MaxUploadColumns caps column counts on upload.
	MaxUploadColumns = 500
)

var nonIdentRe = regexp.MustCompile(`[^a-z0-9_]`)
var multiUnderscoreRe = regexp.MustCompile(`_+`)

// SanitizeTableName converts a filename into a valid table identifier.
func SanitizeTableName(filename string) string {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	name = strings.ToLower(name)
	name = nonIdentRe.ReplaceAllString(name, "_")
	name = multiUnderscoreRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name != "" && unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	if name == "" {
		name = "unnamed_table"
	}
	return name
}

// CSVTable is a parsed, type-inferred CSV file.
type CSVTable struct {
	Columns []types.ColumnInfo
	Rows    [][]any // values already converted per inferred column type
}

// ParseCSV reads and type-infers a CSV stream. The first record is the
// header. Empty cells become NULL.
func ParseCSV(r io.Reader) (*CSVTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSV file is empty or has no columns")
	}
	if err != nil {
		return nil, fmt.Errorf("parse CSV header: %w", err)
	}
	if len(header) > MaxUploadColumns {
		return nil, fmt.Errorf("too many columns (%d), maximum is %d", len(header), MaxUploadColumns)
	}

	var raw [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse CSV row %d: %w", len(raw)+2, err)
		}
		raw = append(raw, record)
	}

	cols := make([]types.ColumnInfo, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		cols[i] = types.ColumnInfo{Name: name, Type: inferColumnType(raw, i)}
	}

	rows := make([][]any, len(raw))
	for r, record := range raw {
		row := make([]any, len(cols))
		for c := range cols {
			cell := ""
			if c < len(record) {
				cell = strings.TrimSpace(record[c])
			}
			row[c] = convertCell(cell, cols[c].Type)
		}
		rows[r] = row
	}

	return &CSVTable{Columns: cols, Rows: rows}, nil
}

// inferColumnType inspects every non-empty value in a column and picks the
// narrowest type that fits all of them: INTEGER, REAL, BOOLEAN, else TEXT.
func inferColumnType(rows [][]string, col int) string {
	sawValue := false
	isInt, isReal, isBool := true, true, true
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		sawValue = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isReal {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isReal = false
			}
		}
		if isBool {
			switch strings.ToLower(v) {
			case "true", "false":
			default:
				isBool = false
			}
		}
		if !isInt && !isReal && !isBool {
			return "TEXT"
		}
	}
	if !sawValue {
		return "TEXT"
	}
	switch {
	case isBool:
		return "BOOLEAN"
	case isInt:
		return "INTEGER"
	case isReal:
		return "REAL"
	}
	return "TEXT"
}

func convertCell(v, colType string) any {
	if v == "" {
		return nil
	}
	switch colType {
	case "INTEGER":
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case "REAL":
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case "BOOLEAN":
		return strings.EqualFold(v, "true")
	}
	return v
}

// LoadTable writes a parsed CSV into the given physical table, replacing any
// existing table with that name. Returns the number of rows written.
func (e *Engine) LoadTable(ctx context.Context, physical string, t *CSVTable) (int64, error) {
	colDefs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		colDefs[i] = fmt.Sprintf("%q %s", c.Name, c.Type)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, physical)); err != nil {
		return 0, fmt.Errorf("drop existing table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q (%s)`, physical, strings.Join(colDefs, ", "))); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", len(t.Columns)), ",") + ")"
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q VALUES %s`, physical, placeholders))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int64(len(t.Rows)), nil
}
