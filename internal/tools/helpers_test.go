package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/store"
	"github.com/orbital-ai/orbital/internal/types"
)

// testEnv builds an Env over a throwaway SQLite database with one dataset
// table seeded from ddl/inserts (both receive the physical name via %q).
func testEnv(t *testing.T, short, ddl string, inserts ...string) *Env {
	t.Helper()
	engine, err := data.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { engine.Close() })

	st, err := store.New(engine.DB())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	sess, err := st.CreateSession(ctx, "test", "")
	if err != nil {
		t.Fatal(err)
	}

	var datasets []*types.Dataset
	if short != "" {
		id := types.NewDatasetID()
		phys := data.DatasetTablePrefix(id) + short
		if _, err := engine.DB().ExecContext(ctx, fmt.Sprintf(ddl, phys)); err != nil {
			t.Fatal(err)
		}
		for _, ins := range inserts {
			if _, err := engine.DB().ExecContext(ctx, fmt.Sprintf(ins, phys)); err != nil {
				t.Fatal(err)
			}
		}
		datasets = []*types.Dataset{{
			ID:     id,
			Name:   short,
			Tables: []types.TableInfo{{Name: short, PhysicalName: phys}},
		}}
	}

	return &Env{
		SessionID: sess.ID,
		Loader:    data.NewLoader(engine, sess.ID, datasets),
		Sessions:  st,
		Artifacts: st,
	}
}
