package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/orbital-ai/orbital/internal/types"
)

// CreateDataset records dataset metadata. The backing tables must already
// exist; their descriptors travel in ds.Tables.
func (s *Store) CreateDataset(ctx context.Context, ds *types.Dataset) error {
	if ds.ID == "" {
		ds.ID = types.NewDatasetID()
	}
	if strings.TrimSpace(ds.Name) == "" {
		return fmt.Errorf("dataset name cannot be empty")
	}
	if ds.Owner == "" {
		ds.Owner = "anonymous"
	}
	if ds.Visibility == "" {
		ds.Visibility = types.VisibilityPrivate
	}
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	tables, err := json.Marshal(ds.Tables)
	if err != nil {
		return fmt.Errorf("marshal tables: %w", err)
	}

	var derivedFrom any
	if ds.DerivedFrom != "" {
		derivedFrom = ds.DerivedFrom
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, name, created_by, visibility, derived_from, tables, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ds.ID), ds.Name, ds.Owner, string(ds.Visibility), derivedFrom,
		string(tables), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert dataset: %w", err)
	}
	return nil
}

// GetDataset returns a dataset by ID or types.ErrNotFound.
func (s *Store) GetDataset(ctx context.Context, id types.DatasetID) (*types.Dataset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, visibility, derived_from, tables, created_at, updated_at
		 FROM datasets WHERE id = ?`, string(id),
	)
	return scanDataset(row)
}

func scanDataset(row rowScanner) (*types.Dataset, error) {
	var ds types.Dataset
	var idStr, visibility, rawTables, createdAt, updatedAt string
	var derivedFrom sql.NullString
	err := row.Scan(&idStr, &ds.Name, &ds.Owner, &visibility, &derivedFrom, &rawTables, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("dataset: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan dataset: %w", err)
	}

	if err := json.Unmarshal([]byte(rawTables), &ds.Tables); err != nil {
		return nil, fmt.Errorf("unmarshal dataset tables: %w", err)
	}
	ds.ID = types.DatasetID(idStr)
	ds.Visibility = types.Visibility(visibility)
	ds.DerivedFrom = derivedFrom.String
	ds.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	ds.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &ds, nil
}

// ListDatasets returns datasets visible to owner: their own plus public ones.
// An empty owner lists everything.
func (s *Store) ListDatasets(ctx context.Context, owner string) ([]*types.Dataset, error) {
	query := `SELECT id, name, created_by, visibility, derived_from, tables, created_at, updated_at
	          FROM datasets`
	var args []any
	if owner != "" {
		query += ` WHERE created_by = ? OR visibility = 'public'`
		args = append(args, owner)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []*types.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

// UpdateDataset changes name and/or visibility. Nil fields keep their value.
func (s *Store) UpdateDataset(ctx context.Context, id types.DatasetID, name *string, visibility *types.Visibility) (*types.Dataset, error) {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339Nano)}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return nil, fmt.Errorf("dataset name cannot be empty")
		}
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*name))
	}
	if visibility != nil {
		if *visibility != types.VisibilityPrivate && *visibility != types.VisibilityPublic {
			return nil, fmt.Errorf("invalid visibility %q", *visibility)
		}
		sets = append(sets, "visibility = ?")
		args = append(args, string(*visibility))
	}
	args = append(args, string(id))

	res, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("dataset: %w", types.ErrNotFound)
	}
	return s.GetDataset(ctx, id)
}

// SetDatasetTables replaces the stored table descriptors, e.g. after a
// derived table is promoted into the dataset.
func (s *Store) SetDatasetTables(ctx context.Context, id types.DatasetID, tables []types.TableInfo) error {
	raw, err := json.Marshal(tables)
	if err != nil {
		return fmt.Errorf("marshal tables: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET tables = ?, updated_at = ? WHERE id = ?`,
		string(raw), time.Now().UTC().Format(time.RFC3339Nano), string(id),
	)
	if err != nil {
		return fmt.Errorf("update dataset tables: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dataset: %w", types.ErrNotFound)
	}
	return nil
}

// DeleteDataset removes dataset metadata. Physical tables are dropped by the
// caller through the engine.
func (s *Store) DeleteDataset(ctx context.Context, id types.DatasetID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("dataset: %w", types.ErrNotFound)
	}
	return nil
}
