// Package sync orchestrates a full run: for every configured form it
// extracts the window's sessions, flattens and spools them, and loads the
// batch incrementally into the warehouse. Forms are isolated; one form
// failing does not stop the others.
package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datarmony/zukosync/pkg/config"
	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/flatten"
	"github.com/datarmony/zukosync/pkg/metrics"
	"github.com/datarmony/zukosync/pkg/notify"
	"github.com/datarmony/zukosync/pkg/spool"
	"github.com/datarmony/zukosync/pkg/warehouse"
	"github.com/datarmony/zukosync/pkg/zuko"
)

// Fetcher streams raw sessions for one form within a window.
type Fetcher interface {
	FetchSessions(ctx context.Context, formUUID string, window zuko.Window, fn func(zuko.Session) error) (int, error)
}

// Runner executes sync runs over the configured forms.
type Runner struct {
	config   *config.Config
	fetcher  Fetcher
	loader   *warehouse.IncrementalLoader
	notifier notify.Notifier
	logger   *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRunner wires a runner from its collaborators.
func NewRunner(cfg *config.Config, fetcher Fetcher, wh warehouse.Warehouse, notifier notify.Notifier, logger *zap.Logger) *Runner {
	return &Runner{
		config:   cfg,
		fetcher:  fetcher,
		loader:   warehouse.NewIncrementalLoader(wh, logger),
		notifier: notifier,
		logger:   logger.With(zap.String("component", "runner")),
		now:      time.Now,
	}
}

// Run syncs every configured form sequentially and reports a summary.
// The returned error covers run-level setup only; per-form failures are
// recorded in the summary instead.
func (r *Runner) Run(ctx context.Context) (*notify.RunSummary, error) {
	started := r.now()
	from, to := r.config.Sync.Window(started)
	window := zuko.Window{From: from, To: to}

	// Leftovers from a crashed run must not leak into this one.
	if err := spool.Clean(r.config.Sync.TempDir); err != nil {
		return nil, err
	}

	summary := &notify.RunSummary{
		StartedAt: started,
		Window: fmt.Sprintf("%s to %s",
			from.Format(time.RFC3339), to.Format(time.RFC3339)),
	}

	r.logger.Info("starting sync run",
		zap.Int("forms", len(r.config.Sync.Forms)),
		zap.String("window", summary.Window))

	for _, form := range r.config.Sync.Forms {
		result := r.syncForm(ctx, form, window)
		summary.Results = append(summary.Results, result)

		status := "success"
		if result.Err != nil {
			status = "failure"
			metrics.RecordFormFailure(form.Name, string(errors.TypeOf(result.Err)))
			r.logger.Error("form sync failed",
				zap.String("form", form.Name),
				zap.Error(result.Err))
		}
		metrics.ObserveFormDuration(form.Name, status, result.Duration)

		if ctx.Err() != nil {
			break
		}
	}

	summary.Duration = r.now().Sub(started)
	metrics.ObserveRunDuration(summary.Duration)

	if err := r.notifier.Notify(summary); err != nil {
		// A lost email must not fail an otherwise good run.
		r.logger.Error("failed to send run summary", zap.Error(err))
	}

	r.logger.Info("sync run finished",
		zap.Duration("duration", summary.Duration),
		zap.Bool("failed", summary.Failed()))
	return summary, nil
}

// syncForm runs one form's extract, flatten, spool, load cycle.
func (r *Runner) syncForm(ctx context.Context, form config.Form, window zuko.Window) notify.FormResult {
	started := r.now()
	result := notify.FormResult{Form: form.Name}
	log := r.logger.With(zap.String("form", form.Name))

	writer, err := spool.NewWriter(r.config.Sync.TempDir, form.Name)
	if err != nil {
		result.Err = err
		result.Duration = r.now().Sub(started)
		return result
	}

	dropped := 0
	fetched, err := r.fetcher.FetchSessions(ctx, form.UUID, window, func(s zuko.Session) error {
		row, ferr := flatten.Flatten(s)
		if ferr != nil {
			if errors.IsType(ferr, errors.ErrorTypeFlatten) {
				dropped++
				log.Warn("dropping unkeyed record", zap.Error(ferr))
				return nil
			}
			return ferr
		}
		return writer.Write(row)
	})
	result.Fetched = fetched
	result.Dropped = dropped
	metrics.RecordSessionsFetched(form.Name, fetched)
	metrics.RecordDropped(form.Name, dropped)

	if err != nil {
		writer.Abort()
		result.Err = err
		result.Duration = r.now().Sub(started)
		return result
	}

	batch, err := writer.Close()
	if err != nil {
		result.Err = err
		result.Duration = r.now().Sub(started)
		return result
	}
	defer func() {
		if derr := batch.Discard(); derr != nil {
			log.Warn("failed to discard batch file", zap.Error(derr))
		}
	}()

	outcome, err := r.loader.Load(ctx, form.Name, batch)
	if err != nil {
		result.Err = err
		result.Duration = r.now().Sub(started)
		return result
	}

	result.Outcome = outcome
	result.Duration = r.now().Sub(started)
	metrics.RecordLoad(form.Name, outcome.RowsInserted, outcome.RowsSkipped)

	log.Info("form synced",
		zap.Int("fetched", fetched),
		zap.Int("dropped", dropped),
		zap.String("action", string(outcome.Action)),
		zap.Int("inserted", outcome.RowsInserted),
		zap.Int("skipped", outcome.RowsSkipped))
	return result
}
