// Package data is the relational query engine behind the data tools. One
// SQLite database holds dataset tables (`_dataset_<id>_<name>`), session
// derived tables (`_derived_<session>_<name>`), and nothing else the agent
// can see. Agents write SQL using short names; the engine rewrites them to
// physical names and enforces that a session only touches tables from its
// attached datasets plus its own derived tables.
package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/orbital-ai/orbital/internal/types"
	_ "modernc.org/sqlite"
)

// MaxResultRows caps how many rows a SELECT returns to the model. Larger
// results still land fully in derived tables via CREATE TABLE AS.
const MaxResultRows = 200

// Engine owns the shared SQLite handle.
type Engine struct {
	db *sql.DB
}

// Open opens (or creates) the database with WAL mode for cross-session
// concurrency.
func Open(path string) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Engine{db: db}, nil
}

// DB exposes the underlying handle for the metadata store, which shares the
// database file.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Close closes the database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}

// DatasetTablePrefix returns the physical-name prefix for a dataset's tables.
func DatasetTablePrefix(id types.DatasetID) string {
	return "_dataset_" + sanitizeIdent(string(id)) + "_"
}

// DerivedTablePrefix returns the physical-name prefix for a session's
// derived tables.
func DerivedTablePrefix(id types.SessionID) string {
	return "_derived_" + sanitizeIdent(string(id)) + "_"
}

// sanitizeIdent makes a UUID usable inside a SQL identifier.
func sanitizeIdent(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}

// AllDerivedTables returns the physical names of every derived table in the
// store, across all sessions. Used by maintenance to find orphans.
func (e *Engine) AllDerivedTables(ctx context.Context) ([]string, error) {
	return e.tablesWithPrefix(ctx, "_derived_")
}

// tablesWithPrefix lists physical table names starting with prefix.
func (e *Engine) tablesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name`,
		prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TableColumns returns column names and declared types for a physical table.
func (e *Engine) TableColumns(ctx context.Context, physical string) ([]types.ColumnInfo, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, physical))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	var cols []types.ColumnInfo
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scan column info: %w", err)
		}
		if ctype == "" {
			ctype = "TEXT"
		}
		cols = append(cols, types.ColumnInfo{Name: name, Type: strings.ToUpper(ctype)})
	}
	return cols, rows.Err()
}

// TableRowCount returns the row count of a physical table.
func (e *Engine) TableRowCount(ctx context.Context, physical string) (int64, error) {
	var count int64
	err := e.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, physical)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// DropTable drops a physical table if it exists.
func (e *Engine) DropTable(ctx context.Context, physical string) error {
	_, err := e.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, physical))
	return err
}

// CopyTable copies src into dst (schema and rows). Used by derived-table
// promotion: the origin table keeps existing afterwards.
func (e *Engine) CopyTable(ctx context.Context, src, dst string) error {
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %q AS SELECT * FROM %q`, dst, src)); err != nil {
		return fmt.Errorf("copy table: %w", err)
	}
	return nil
}

// readRows scans all rows of a result set into []map keyed by column name,
// up to limit rows (limit <= 0 means unlimited). Returns data, columns, and
// whether the limit cut the result short.
func readRows(rows *sql.Rows, limit int) ([]map[string]any, []string, bool, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, false, fmt.Errorf("result columns: %w", err)
	}

	var data []map[string]any
	truncated := false
	for rows.Next() {
		if limit > 0 && len(data) >= limit {
			truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, false, fmt.Errorf("scan row: %w", err)
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			record[col] = normalizeValue(values[i])
		}
		data = append(data, record)
	}
	return data, cols, truncated, rows.Err()
}

// normalizeValue converts driver-level values to JSON-friendly ones.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}
