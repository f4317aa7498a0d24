package spool

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/flatten"
)

// Each streams the batch's rows back as FlatRows, one at a time, keyed by
// the header row. Empty batches yield nothing.
func (b *Batch) Each(fn func(flatten.FlatRow) error) error {
	if b.RowCount == 0 {
		return nil
	}

	f, err := os.Open(b.Path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to open batch file")
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to read batch header")
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeSpool, "failed to read batch row")
		}

		row := make(flatten.FlatRow, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}
