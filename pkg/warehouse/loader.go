package warehouse

import (
	"context"

	"go.uber.org/zap"

	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/flatten"
	"github.com/datarmony/zukosync/pkg/spool"
)

// IncrementalLoader applies one batch to one destination table. The same
// batch can be loaded any number of times; rows whose id the table
// already holds are never inserted again.
type IncrementalLoader struct {
	warehouse Warehouse
	logger    *zap.Logger
}

// NewIncrementalLoader wraps a warehouse with incremental load semantics.
func NewIncrementalLoader(wh Warehouse, logger *zap.Logger) *IncrementalLoader {
	return &IncrementalLoader{
		warehouse: wh,
		logger:    logger.With(zap.String("component", "incremental_loader")),
	}
}

// Load reconciles the batch against the table:
//
//   - table absent, batch empty: create a placeholder table so later runs
//     find a consistent destination
//   - table absent, batch has rows: create the table from the batch's
//     columns and load everything
//   - table present, batch has rows: append only rows whose id is new
//   - table present, batch empty: nothing to do
//
// A batch carrying columns the existing table lacks is rejected rather
// than silently dropping data.
func (l *IncrementalLoader) Load(ctx context.Context, table string, batch *spool.Batch) (*Outcome, error) {
	info, err := l.warehouse.Describe(ctx, table)
	if err != nil {
		return nil, err
	}

	log := l.logger.With(
		zap.String("table", table),
		zap.String("table_state", info.State.String()),
		zap.Int("batch_rows", batch.RowCount))

	if info.State == TableAbsent {
		if batch.RowCount == 0 {
			if err := l.warehouse.CreateTable(ctx, table, []string{flatten.IDKey}); err != nil {
				return nil, err
			}
			log.Info("created placeholder table for empty batch")
			return &Outcome{Table: table, Action: ActionCreatedEmpty}, nil
		}

		if err := l.warehouse.CreateTable(ctx, table, batch.Columns); err != nil {
			return nil, err
		}
		if err := l.warehouse.Insert(ctx, table, batch.Columns, batch.Each); err != nil {
			return nil, err
		}
		log.Info("created table and loaded batch", zap.Int("rows", batch.RowCount))
		return &Outcome{Table: table, Action: ActionCreatedLoaded, RowsInserted: batch.RowCount}, nil
	}

	if batch.RowCount == 0 {
		log.Info("empty batch against existing table, nothing to load")
		return &Outcome{Table: table, Action: ActionNoop}, nil
	}

	if missing := missingColumns(info.Columns, batch.Columns); len(missing) > 0 {
		return nil, errors.New(errors.ErrorTypeSchemaConflict,
			"batch has columns the destination table lacks").
			WithDetail("table", table).
			WithDetail("missing_columns", missing)
	}

	existing, err := l.warehouse.ExistingIDs(ctx, table)
	if err != nil {
		return nil, err
	}

	newRows := 0
	if err := batch.Each(func(row flatten.FlatRow) error {
		if _, seen := existing[row[flatten.IDKey]]; !seen {
			newRows++
		}
		return nil
	}); err != nil {
		return nil, err
	}
	skipped := batch.RowCount - newRows

	if newRows == 0 {
		log.Info("all batch rows already present", zap.Int("skipped", skipped))
		return &Outcome{Table: table, Action: ActionNoop, RowsSkipped: skipped}, nil
	}

	onlyNew := func(yield func(flatten.FlatRow) error) error {
		return batch.Each(func(row flatten.FlatRow) error {
			if _, seen := existing[row[flatten.IDKey]]; seen {
				return nil
			}
			return yield(row)
		})
	}
	if err := l.warehouse.Insert(ctx, table, info.Columns, onlyNew); err != nil {
		return nil, err
	}

	log.Info("appended new rows",
		zap.Int("inserted", newRows),
		zap.Int("skipped", skipped))
	return &Outcome{Table: table, Action: ActionAppended, RowsInserted: newRows, RowsSkipped: skipped}, nil
}

// missingColumns returns batch columns absent from the table's column set.
// The table being a superset is fine; those values load as empty strings.
func missingColumns(tableColumns, batchColumns []string) []string {
	have := make(map[string]struct{}, len(tableColumns))
	for _, c := range tableColumns {
		have[c] = struct{}{}
	}

	var missing []string
	for _, c := range batchColumns {
		if _, ok := have[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}
