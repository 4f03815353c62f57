package data

import (
	"context"
	"fmt"
)

// ColumnStats summarizes one column for get_stats.
type ColumnStats struct {
	Dtype         string         `json:"dtype"`
	NullCount     int64          `json:"null_count"`
	NullRatio     float64        `json:"null_ratio"`
	DistinctCount int64          `json:"distinct_count"`
	Min           any            `json:"min,omitempty"`
	Max           any            `json:"max,omitempty"`
	Mean          *float64       `json:"mean,omitempty"`
	TopValues     map[string]int `json:"top_values,omitempty"`
}

// TableStats is the get_stats result.
type TableStats struct {
	Table    string                 `json:"table"`
	RowCount int64                  `json:"row_count"`
	Columns  []string               `json:"columns"`
	Stats    map[string]ColumnStats `json:"stats"`
}

const topValueLimit = 5

// TableStats computes per-column statistics for a short-named table: null
// count and ratio, distinct count, min/max/mean for numeric columns, and top
// values for text columns. Reads only aggregates, so repeated calls against
// an unchanged table return identical results.
func (l *Loader) TableStats(ctx context.Context, table string) (*TableStats, error) {
	phys, err := l.Resolve(ctx, table)
	if err != nil {
		return nil, err
	}

	cols, err := l.engine.TableColumns(ctx, phys)
	if err != nil {
		return nil, err
	}
	rowCount, err := l.engine.TableRowCount(ctx, phys)
	if err != nil {
		return nil, err
	}

	stats := &TableStats{
		Table:    table,
		RowCount: rowCount,
		Columns:  make([]string, 0, len(cols)),
		Stats:    make(map[string]ColumnStats, len(cols)),
	}

	for _, col := range cols {
		stats.Columns = append(stats.Columns, col.Name)

		cs := ColumnStats{Dtype: col.Type}

		var nonNull, distinct int64
		err := l.engine.db.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT COUNT(%q), COUNT(DISTINCT %q) FROM %q`, col.Name, col.Name, phys,
		)).Scan(&nonNull, &distinct)
		if err != nil {
			return nil, fmt.Errorf("column aggregates for %q: %w", col.Name, err)
		}
		cs.NullCount = rowCount - nonNull
		if rowCount > 0 {
			cs.NullRatio = float64(cs.NullCount) / float64(rowCount)
		}
		cs.DistinctCount = distinct

		if isNumericType(col.Type) {
			var min, max any
			var mean *float64
			err := l.engine.db.QueryRowContext(ctx, fmt.Sprintf(
				`SELECT MIN(%q), MAX(%q), AVG(%q) FROM %q`, col.Name, col.Name, col.Name, phys,
			)).Scan(&min, &max, &mean)
			if err != nil {
				return nil, fmt.Errorf("numeric stats for %q: %w", col.Name, err)
			}
			cs.Min = normalizeValue(min)
			cs.Max = normalizeValue(max)
			cs.Mean = mean
		} else {
			top, err := l.topValues(ctx, phys, col.Name)
			if err != nil {
				return nil, err
			}
			cs.TopValues = top
		}

		stats.Stats[col.Name] = cs
	}

	return stats, nil
}

func (l *Loader) topValues(ctx context.Context, phys, col string) (map[string]int, error) {
	rows, err := l.engine.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT %q, COUNT(*) FROM %q WHERE %q IS NOT NULL GROUP BY %q ORDER BY COUNT(*) DESC, %q LIMIT %d`,
		col, phys, col, col, col, topValueLimit,
	))
	if err != nil {
		return nil, fmt.Errorf("top values for %q: %w", col, err)
	}
	defer rows.Close()

	top := map[string]int{}
	for rows.Next() {
		var value any
		var count int
		if err := rows.Scan(&value, &count); err != nil {
			return nil, fmt.Errorf("scan top value: %w", err)
		}
		top[fmt.Sprintf("%v", normalizeValue(value))] = count
	}
	return top, rows.Err()
}

func isNumericType(t string) bool {
	switch t {
	case "INTEGER", "REAL", "BIGINT", "DOUBLE PRECISION", "NUMERIC", "FLOAT", "INT":
		return true
	}
	return false
}
