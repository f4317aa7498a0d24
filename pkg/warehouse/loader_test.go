package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/flatten"
	"github.com/datarmony/zukosync/pkg/spool"
)

type fakeTable struct {
	columns []string
	rows    []flatten.FlatRow
}

type fakeWarehouse struct {
	tables  map[string]*fakeTable
	inserts int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{tables: make(map[string]*fakeTable)}
}

func (f *fakeWarehouse) Describe(_ context.Context, table string) (*TableInfo, error) {
	t, ok := f.tables[table]
	if !ok {
		return &TableInfo{State: TableAbsent}, nil
	}
	state := TableHasRows
	if len(t.rows) == 0 {
		state = TableEmpty
	}
	return &TableInfo{State: state, Columns: append([]string(nil), t.columns...)}, nil
}

func (f *fakeWarehouse) CreateTable(_ context.Context, table string, columns []string) error {
	f.tables[table] = &fakeTable{columns: append([]string(nil), columns...)}
	return nil
}

func (f *fakeWarehouse) ExistingIDs(_ context.Context, table string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	for _, row := range f.tables[table].rows {
		ids[row[flatten.IDKey]] = struct{}{}
	}
	return ids, nil
}

func (f *fakeWarehouse) Insert(_ context.Context, table string, columns []string, rows RowSource) error {
	f.inserts++
	t := f.tables[table]
	return rows(func(row flatten.FlatRow) error {
		stored := make(flatten.FlatRow, len(columns))
		for _, col := range columns {
			stored[col] = row[col]
		}
		t.rows = append(t.rows, stored)
		return nil
	})
}

func (f *fakeWarehouse) Close() error { return nil }

func makeBatch(t *testing.T, rows ...flatten.FlatRow) *spool.Batch {
	t.Helper()
	w, err := spool.NewWriter(t.TempDir(), "test")
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	batch, err := w.Close()
	require.NoError(t, err)
	return batch
}

func TestLoadCreatesPlaceholderForEmptyBatch(t *testing.T) {
	fw := newFakeWarehouse()
	loader := NewIncrementalLoader(fw, zap.NewNop())

	outcome, err := loader.Load(context.Background(), "signup_form", makeBatch(t))
	require.NoError(t, err)
	assert.Equal(t, ActionCreatedEmpty, outcome.Action)
	assert.Equal(t, []string{"id"}, fw.tables["signup_form"].columns)
	assert.Empty(t, fw.tables["signup_form"].rows)
	assert.Equal(t, 0, fw.inserts)
}

func TestLoadCreatesAndLoadsFullBatch(t *testing.T) {
	fw := newFakeWarehouse()
	loader := NewIncrementalLoader(fw, zap.NewNop())

	batch := makeBatch(t,
		flatten.FlatRow{"id": "s1", "a": "1"},
		flatten.FlatRow{"id": "s2", "b": "2"},
	)
	outcome, err := loader.Load(context.Background(), "signup_form", batch)
	require.NoError(t, err)
	assert.Equal(t, ActionCreatedLoaded, outcome.Action)
	assert.Equal(t, 2, outcome.RowsInserted)
	assert.Equal(t, []string{"a", "b", "id"}, fw.tables["signup_form"].columns)
	require.Len(t, fw.tables["signup_form"].rows, 2)
}

func TestLoadAppendsOnlyNewRows(t *testing.T) {
	fw := newFakeWarehouse()
	fw.tables["signup_form"] = &fakeTable{
		columns: []string{"a", "id"},
		rows:    []flatten.FlatRow{{"a": "1", "id": "s1"}},
	}
	loader := NewIncrementalLoader(fw, zap.NewNop())

	batch := makeBatch(t,
		flatten.FlatRow{"id": "s1", "a": "1"},
		flatten.FlatRow{"id": "s2", "a": "2"},
	)
	outcome, err := loader.Load(context.Background(), "signup_form", batch)
	require.NoError(t, err)
	assert.Equal(t, ActionAppended, outcome.Action)
	assert.Equal(t, 1, outcome.RowsInserted)
	assert.Equal(t, 1, outcome.RowsSkipped)
	require.Len(t, fw.tables["signup_form"].rows, 2)
	assert.Equal(t, "s2", fw.tables["signup_form"].rows[1]["id"])
}

func TestLoadIsIdempotent(t *testing.T) {
	fw := newFakeWarehouse()
	loader := NewIncrementalLoader(fw, zap.NewNop())

	batch := makeBatch(t,
		flatten.FlatRow{"id": "s1"},
		flatten.FlatRow{"id": "s2"},
	)

	first, err := loader.Load(context.Background(), "signup_form", batch)
	require.NoError(t, err)
	assert.Equal(t, ActionCreatedLoaded, first.Action)

	second, err := loader.Load(context.Background(), "signup_form", batch)
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, second.Action)
	assert.Equal(t, 0, second.RowsInserted)
	assert.Equal(t, 2, second.RowsSkipped)
	assert.Len(t, fw.tables["signup_form"].rows, 2)
}

func TestLoadEmptyBatchExistingTable(t *testing.T) {
	fw := newFakeWarehouse()
	fw.tables["signup_form"] = &fakeTable{columns: []string{"id"}}
	loader := NewIncrementalLoader(fw, zap.NewNop())

	outcome, err := loader.Load(context.Background(), "signup_form", makeBatch(t))
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, outcome.Action)
	assert.Equal(t, 0, fw.inserts)
}

func TestLoadRejectsUnknownBatchColumns(t *testing.T) {
	fw := newFakeWarehouse()
	fw.tables["signup_form"] = &fakeTable{
		columns: []string{"id"},
		rows:    []flatten.FlatRow{{"id": "s1"}},
	}
	loader := NewIncrementalLoader(fw, zap.NewNop())

	batch := makeBatch(t, flatten.FlatRow{"id": "s2", "surprise": "x"})
	_, err := loader.Load(context.Background(), "signup_form", batch)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaConflict))
	assert.Equal(t, 0, fw.inserts)
	assert.Len(t, fw.tables["signup_form"].rows, 1)
}

func TestLoadTableSupersetOfBatch(t *testing.T) {
	fw := newFakeWarehouse()
	fw.tables["signup_form"] = &fakeTable{
		columns: []string{"extra", "id"},
		rows:    []flatten.FlatRow{{"extra": "x", "id": "s1"}},
	}
	loader := NewIncrementalLoader(fw, zap.NewNop())

	batch := makeBatch(t, flatten.FlatRow{"id": "s2"})
	outcome, err := loader.Load(context.Background(), "signup_form", batch)
	require.NoError(t, err)
	assert.Equal(t, ActionAppended, outcome.Action)
	require.Len(t, fw.tables["signup_form"].rows, 2)
	assert.Equal(t, "", fw.tables["signup_form"].rows[1]["extra"])
}
