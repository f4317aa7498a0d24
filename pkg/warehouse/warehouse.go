// Package warehouse loads spooled session batches into the destination
// incrementally: rows are keyed by id and only rows the destination has
// not seen before are appended.
package warehouse

import (
	"context"

	"github.com/datarmony/zukosync/pkg/flatten"
)

// TableState describes whether a destination table exists and holds rows.
type TableState int

const (
	TableAbsent TableState = iota
	TableEmpty
	TableHasRows
)

func (s TableState) String() string {
	switch s {
	case TableAbsent:
		return "absent"
	case TableEmpty:
		return "empty"
	case TableHasRows:
		return "has_rows"
	default:
		return "unknown"
	}
}

// TableInfo is the observed shape of a destination table.
type TableInfo struct {
	State   TableState
	Columns []string
}

// RowSource streams rows to an insert. The yield callback is invoked once
// per row; its error aborts the stream.
type RowSource func(yield func(flatten.FlatRow) error) error

// Warehouse abstracts the destination so loading logic can be exercised
// without a live backend.
type Warehouse interface {
	// Describe reports the table's state and column set. An absent table
	// is not an error.
	Describe(ctx context.Context, table string) (*TableInfo, error)

	// CreateTable creates the table with a string column per name.
	CreateTable(ctx context.Context, table string, columns []string) error

	// ExistingIDs returns every id value currently stored in the table.
	ExistingIDs(ctx context.Context, table string) (map[string]struct{}, error)

	// Insert appends rows to the table. Values are written in the given
	// column order; a row missing a column contributes an empty value.
	Insert(ctx context.Context, table string, columns []string, rows RowSource) error

	// Close releases the underlying connection.
	Close() error
}

// Action identifies which branch of the load decision was taken.
type Action string

const (
	// ActionCreatedEmpty means the table did not exist and the batch had
	// no rows, so a placeholder table was created.
	ActionCreatedEmpty Action = "created_empty"

	// ActionCreatedLoaded means the table was created and the full batch
	// loaded into it.
	ActionCreatedLoaded Action = "created_loaded"

	// ActionAppended means previously unseen rows were appended to an
	// existing table.
	ActionAppended Action = "appended"

	// ActionNoop means nothing needed loading.
	ActionNoop Action = "noop"
)

// Outcome summarizes one load operation.
type Outcome struct {
	Table        string
	Action       Action
	RowsInserted int
	RowsSkipped  int
}
