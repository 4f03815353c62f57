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

// CreateArtifact persists a visualization or report snapshot.
func (s *Store) CreateArtifact(ctx context.Context, a *types.Artifact) error {
	if a.ID == "" {
		a.ID = types.NewArtifactID()
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("artifact name cannot be empty")
	}
	if len(a.Visualization) == 0 {
		a.Visualization = json.RawMessage("{}")
	}
	if len(a.DataSnapshot) == 0 {
		a.DataSnapshot = json.RawMessage("{}")
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, session_id, name, description, visualization, data_snapshot, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.SessionID), a.Name, a.Description,
		string(a.Visualization), string(a.DataSnapshot), a.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// GetArtifact returns an artifact by ID or types.ErrNotFound.
func (s *Store) GetArtifact(ctx context.Context, id types.ArtifactID) (*types.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, name, description, visualization, data_snapshot, created_at
		 FROM artifacts WHERE id = ?`, string(id),
	)
	return scanArtifact(row)
}

func scanArtifact(row rowScanner) (*types.Artifact, error) {
	var a types.Artifact
	var idStr, sessionID, visualization, snapshot, createdAt string
	err := row.Scan(&idStr, &sessionID, &a.Name, &a.Description, &visualization, &snapshot, &createdAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	a.ID = types.ArtifactID(idStr)
	a.SessionID = types.SessionID(sessionID)
	a.Visualization = json.RawMessage(visualization)
	a.DataSnapshot = json.RawMessage(snapshot)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &a, nil
}

// ListArtifacts returns artifacts newest first. A non-empty sessionID
// restricts the listing to that session.
func (s *Store) ListArtifacts(ctx context.Context, sessionID types.SessionID) ([]*types.Artifact, error) {
	query := `SELECT id, session_id, name, description, visualization, data_snapshot, created_at
	          FROM artifacts`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, string(sessionID))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*types.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
