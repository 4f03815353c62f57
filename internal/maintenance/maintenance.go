// Package maintenance runs scheduled cleanup: sessions nobody wrote to and
// derived tables whose session is gone.
package maintenance

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/store"
)

// Janitor owns the cron schedule and the cleanup passes.
type Janitor struct {
	store  *store.Store
	engine *data.Engine
	cron   *cron.Cron
	log    *slog.Logger
}

// New creates a Janitor.
func New(st *store.Store, engine *data.Engine, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	return &Janitor{
		store:  st,
		engine: engine,
		cron:   cron.New(),
		log:    log,
	}
}

// Start schedules the cleanup with a cron spec (e.g. "0 3 * * *" for daily
// at 3am) and starts the scheduler.
func (j *Janitor) Start(spec string) error {
	_, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := j.RunOnce(ctx); err != nil {
			j.log.Error("maintenance run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunOnce performs one cleanup pass: delete sessions with no user messages,
// drop their derived tables, then sweep derived tables whose session no
// longer exists.
func (j *Janitor) RunOnce(ctx context.Context) error {
	deleted, err := j.store.DeleteEmptySessions(ctx)
	if err != nil {
		return err
	}
	for _, id := range deleted {
		if err := j.dropDerivedFor(ctx, data.DerivedTablePrefix(id)); err != nil {
			return err
		}
	}

	orphans, err := j.sweepOrphans(ctx)
	if err != nil {
		return err
	}
	j.log.Info("maintenance complete", "sessions_deleted", len(deleted), "orphan_tables_dropped", orphans)
	return nil
}

func (j *Janitor) dropDerivedFor(ctx context.Context, prefix string) error {
	all, err := j.engine.AllDerivedTables(ctx)
	if err != nil {
		return err
	}
	for _, name := range all {
		if strings.HasPrefix(name, prefix) {
			if err := j.engine.DropTable(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// sweepOrphans drops derived tables not owned by any live session.
func (j *Janitor) sweepOrphans(ctx context.Context) (int, error) {
	ids, err := j.store.ListSessionIDs(ctx)
	if err != nil {
		return 0, err
	}
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		live = append(live, data.DerivedTablePrefix(id))
	}

	all, err := j.engine.AllDerivedTables(ctx)
	if err != nil {
		return 0, err
	}
	dropped := 0
	for _, name := range all {
		owned := false
		for _, prefix := range live {
			if strings.HasPrefix(name, prefix) {
				owned = true
				break
			}
		}
		if owned {
			continue
		}
		if err := j.engine.DropTable(ctx, name); err != nil {
			return dropped, err
		}
		dropped++
	}
	return dropped, nil
}
