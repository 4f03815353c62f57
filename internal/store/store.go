// Package store persists session, dataset, and artifact metadata in SQLite.
// It shares the database file with the query engine but owns its own tables;
// the agent's SQL can never reach them because they carry no dataset or
// derived prefix.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/orbital-ai/orbital/internal/types"
)

// Store implements types.SessionStore and types.ArtifactStore plus the
// dataset metadata CRUD behind the REST surface.
type Store struct {
	db *sql.DB
	// Serializes session read-modify-write cycles within this process to
	// avoid SQLITE_BUSY churn; the version column still protects against
	// other writers.
	sessionMu sync.Mutex
}

// New creates a Store over the shared database handle and initializes its
// schema.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT 'Untitled Session',
		created_by TEXT NOT NULL DEFAULT 'anonymous',
		data TEXT NOT NULL DEFAULT '{}',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT 'anonymous',
		visibility TEXT NOT NULL DEFAULT 'private',
		derived_from TEXT,
		tables TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		visualization TEXT NOT NULL DEFAULT '{}',
		data_snapshot TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// sessionData is the JSON document stored in the sessions.data column.
type sessionData struct {
	Messages []types.Message   `json:"messages"`
	Datasets []types.DatasetID `json:"datasets"`
	Memory   types.Memory      `json:"memory"`
	Insights []types.Insight   `json:"insights"`
}

func newSessionData() sessionData {
	return sessionData{
		Messages: []types.Message{},
		Datasets: []types.DatasetID{},
		Memory:   types.NewMemory(),
		Insights: []types.Insight{},
	}
}

// CreateSession creates a named session owned by owner.
func (s *Store) CreateSession(ctx context.Context, name, owner string) (*types.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled Session"
	}
	if owner == "" {
		owner = "anonymous"
	}

	id := types.NewSessionID()
	now := time.Now().UTC()
	raw, err := json.Marshal(newSessionData())
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_by, data, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		string(id), name, owner, string(raw), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return s.GetSession(ctx, id)
}

// GetSession returns the full session or types.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id types.SessionID) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, data, version, created_at, updated_at FROM sessions WHERE id = ?`,
		string(id),
	)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var sess types.Session
	var idStr, rawData, createdAt, updatedAt string
	err := row.Scan(&idStr, &sess.Name, &sess.Owner, &rawData, &sess.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	var data sessionData
	if err := json.Unmarshal([]byte(rawData), &data); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}

	sess.ID = types.SessionID(idStr)
	sess.Messages = data.Messages
	sess.Datasets = data.Datasets
	sess.Memory = data.Memory
	sess.Insights = data.Insights
	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &sess, nil
}

// ListSessions returns summaries ordered by most recently updated.
func (s *Store) ListSessions(ctx context.Context) ([]types.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.name, s.created_by, s.data, s.version, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM artifacts a WHERE a.session_id = s.id)
		 FROM sessions s ORDER BY s.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []types.SessionSummary
	for rows.Next() {
		var sess types.Session
		var idStr, rawData, createdAt, updatedAt string
		var artifactCount int
		if err := rows.Scan(&idStr, &sess.Name, &sess.Owner, &rawData, &sess.Version, &createdAt, &updatedAt, &artifactCount); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		var data sessionData
		if err := json.Unmarshal([]byte(rawData), &data); err != nil {
			return nil, fmt.Errorf("unmarshal session data: %w", err)
		}

		userCount := 0
		for _, m := range data.Messages {
			if m.Role == types.RoleUser {
				userCount++
			}
		}
		created, _ := time.Parse(time.RFC3339Nano, createdAt)
		updated, _ := time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, types.SessionSummary{
			ID:               types.SessionID(idStr),
			Name:             sess.Name,
			Owner:            sess.Owner,
			CreatedAt:        created,
			UpdatedAt:        updated,
			MessageCount:     len(data.Messages),
			UserMessageCount: userCount,
			DatasetCount:     len(data.Datasets),
			ArtifactCount:    artifactCount,
		})
	}
	return out, rows.Err()
}

// RenameSession updates the display name.
func (s *Store) RenameSession(ctx context.Context, id types.SessionID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339Nano), string(id),
	)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return requireUpdated(res)
}

// DeleteSession removes a session and its artifacts. Derived tables are the
// caller's responsibility (the engine owns them).
func (s *Store) DeleteSession(ctx context.Context, id types.SessionID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := requireUpdated(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE session_id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete session artifacts: %w", err)
	}
	return tx.Commit()
}

// DeleteEmptySessions removes sessions with no user messages and returns
// their IDs so callers can drop any stray derived tables.
func (s *Store) DeleteEmptySessions(ctx context.Context) ([]types.SessionID, error) {
	summaries, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []types.SessionID
	for _, sum := range summaries {
		if sum.UserMessageCount > 0 {
			continue
		}
		if err := s.DeleteSession(ctx, sum.ID); err != nil {
			return deleted, err
		}
		deleted = append(deleted, sum.ID)
	}
	return deleted, nil
}

// ListSessionIDs returns every session ID. Used by maintenance to find
// orphaned derived tables.
func (s *Store) ListSessionIDs(ctx context.Context) ([]types.SessionID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []types.SessionID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.SessionID(id))
	}
	return ids, rows.Err()
}

// AppendMessages appends messages iff the stored version equals
// expectedVersion. The whole batch commits or none of it does. Returns the
// updated session on success, types.ErrVersionConflict on a losing race.
func (s *Store) AppendMessages(ctx context.Context, id types.SessionID, messages []types.Message, expectedVersion int64) (*types.Session, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	return s.mutateSession(ctx, id, &expectedVersion, func(data *sessionData) error {
		data.Messages = append(data.Messages, messages...)
		return nil
	})
}

// AppendMemory adds an entry to the given memory category.
func (s *Store) AppendMemory(ctx context.Context, id types.SessionID, category string, entry types.MemoryEntry) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	_, err := s.mutateSession(ctx, id, nil, func(data *sessionData) error {
		entries := data.Memory.Entries(category)
		if entries == nil {
			return fmt.Errorf("unknown memory category %q", category)
		}
		*entries = append(*entries, entry)
		return nil
	})
	return err
}

// RemoveMemory removes all entries with matching content from the category.
func (s *Store) RemoveMemory(ctx context.Context, id types.SessionID, category, content string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	_, err := s.mutateSession(ctx, id, nil, func(data *sessionData) error {
		entries := data.Memory.Entries(category)
		if entries == nil {
			return fmt.Errorf("unknown memory category %q", category)
		}
		kept := (*entries)[:0]
		for _, e := range *entries {
			if e.Content != content {
				kept = append(kept, e)
			}
		}
		*entries = kept
		return nil
	})
	return err
}

// AttachDataset adds a dataset reference to the session.
func (s *Store) AttachDataset(ctx context.Context, id types.SessionID, datasetID types.DatasetID) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	_, err := s.mutateSession(ctx, id, nil, func(data *sessionData) error {
		for _, existing := range data.Datasets {
			if existing == datasetID {
				return nil
			}
		}
		data.Datasets = append(data.Datasets, datasetID)
		return nil
	})
	return err
}

// DetachDataset removes a dataset reference from the session.
func (s *Store) DetachDataset(ctx context.Context, id types.SessionID, datasetID types.DatasetID) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	_, err := s.mutateSession(ctx, id, nil, func(data *sessionData) error {
		kept := data.Datasets[:0]
		for _, existing := range data.Datasets {
			if existing != datasetID {
				kept = append(kept, existing)
			}
		}
		data.Datasets = kept
		return nil
	})
	return err
}

// AddInsight records an insight on the session.
func (s *Store) AddInsight(ctx context.Context, id types.SessionID, insight types.Insight) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	_, err := s.mutateSession(ctx, id, nil, func(data *sessionData) error {
		data.Insights = append(data.Insights, insight)
		return nil
	})
	return err
}

// ListAttachedDatasets resolves the session's dataset references. Missing
// datasets (deleted since attach) are skipped.
func (s *Store) ListAttachedDatasets(ctx context.Context, id types.SessionID) ([]*types.Dataset, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Dataset, 0, len(sess.Datasets))
	for _, dsID := range sess.Datasets {
		ds, err := s.GetDataset(ctx, dsID)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}

// mutateSession runs a read-modify-write cycle in one transaction. When
// expectedVersion is non-nil the write only commits if the stored version
// still matches; either way the version increments on success.
func (s *Store) mutateSession(ctx context.Context, id types.SessionID, expectedVersion *int64, mutate func(*sessionData) error) (*types.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var rawData string
	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT data, version FROM sessions WHERE id = ?`, string(id),
	).Scan(&rawData, &version)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session: %w", types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if expectedVersion != nil && version != *expectedVersion {
		return nil, fmt.Errorf("expected version %d, have %d: %w", *expectedVersion, version, types.ErrVersionConflict)
	}

	var data sessionData
	if err := json.Unmarshal([]byte(rawData), &data); err != nil {
		return nil, fmt.Errorf("unmarshal session data: %w", err)
	}

	if err := mutate(&data); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal session data: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET data = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		string(updated), time.Now().UTC().Format(time.RFC3339Nano), string(id), version,
	)
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("concurrent update: %w", types.ErrVersionConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, id)
}

func requireUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session: %w", types.ErrNotFound)
	}
	return nil
}
