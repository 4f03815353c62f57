package maintenance

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/store"
	"github.com/orbital-ai/orbital/internal/types"
)

func tableExists(t *testing.T, engine *data.Engine, name string) bool {
	t.Helper()
	var n int
	err := engine.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n > 0
}

func createDerived(t *testing.T, engine *data.Engine, id types.SessionID, short string) string {
	t.Helper()
	physical := data.DerivedTablePrefix(id) + short
	_, err := engine.DB().ExecContext(context.Background(),
		fmt.Sprintf(`CREATE TABLE %q (x INTEGER)`, physical))
	if err != nil {
		t.Fatal(err)
	}
	return physical
}

func TestRunOnce(t *testing.T) {
	engine, err := data.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	st, err := store.New(engine.DB())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// A live session with a user message and a derived table.
	live, err := st.CreateSession(ctx, "live", "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = st.AppendMessages(ctx, live.ID, []types.Message{
		{ID: types.NewMessageID(), Role: types.RoleUser, Content: "hi", At: time.Now().UTC()},
	}, live.Version)
	if err != nil {
		t.Fatal(err)
	}
	liveTable := createDerived(t, engine, live.ID, "totals")

	// An empty session with a derived table.
	empty, err := st.CreateSession(ctx, "empty", "")
	if err != nil {
		t.Fatal(err)
	}
	emptyTable := createDerived(t, engine, empty.ID, "scratch")

	// A derived table whose session was already deleted.
	orphanTable := createDerived(t, engine, types.NewSessionID(), "leftover")

	j := New(st, engine, nil)
	if err := j.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := st.GetSession(ctx, empty.ID); err == nil {
		t.Error("empty session should be deleted")
	}
	if _, err := st.GetSession(ctx, live.ID); err != nil {
		t.Errorf("live session should survive: %v", err)
	}
	if tableExists(t, engine, emptyTable) {
		t.Error("empty session's derived table should be dropped")
	}
	if tableExists(t, engine, orphanTable) {
		t.Error("orphan derived table should be dropped")
	}
	if !tableExists(t, engine, liveTable) {
		t.Error("live session's derived table should survive")
	}
}

func TestRunOnceIdempotent(t *testing.T) {
	engine, err := data.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	st, err := store.New(engine.DB())
	if err != nil {
		t.Fatal(err)
	}
	j := New(st, engine, nil)
	ctx := context.Background()
	if err := j.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if err := j.RunOnce(ctx); err != nil {
		t.Fatalf("second pass over a clean database failed: %v", err)
	}
}
