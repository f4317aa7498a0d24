// Package spool accumulates flattened rows on disk and materializes them
// into CSV batches with a stable, sorted union header.
//
// Rows are appended to a JSON-lines spool file as they arrive, so memory
// stays bounded regardless of how many sessions a window yields. Closing
// the writer rewrites the spool into a CSV whose header is the sorted
// union of every column seen; rows missing a column get an empty value.
package spool

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/flatten"
)

// Batch is the materialized result of a spooled extraction window for one
// entity. A batch with zero rows has no file on disk and nil Columns.
type Batch struct {
	FormID   string
	Columns  []string
	Path     string
	RowCount int
}

// Open returns a reader over the batch's CSV file, header row included.
func (b *Batch) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSpool, "failed to open batch file")
	}
	return f, nil
}

// Discard removes the batch file from disk. Safe to call on empty batches.
func (b *Batch) Discard() error {
	if b.Path == "" {
		return nil
	}
	if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to remove batch file")
	}
	return nil
}

// Writer spools flattened rows for a single entity.
type Writer struct {
	formID    string
	spoolPath string
	csvPath   string
	file      *os.File
	columns   map[string]struct{}
	rows      int
	closed    bool
}

// NewWriter creates the spool directory if needed and opens a fresh spool
// file for the given entity, truncating any leftover from a failed run.
func NewWriter(dir, formID string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSpool, "failed to create spool directory")
	}

	base := fmt.Sprintf("zuko_sessions_%s", formID)
	spoolPath := filepath.Join(dir, base+".spool.jsonl")
	f, err := os.Create(spoolPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSpool, "failed to create spool file")
	}

	return &Writer{
		formID:    formID,
		spoolPath: spoolPath,
		csvPath:   filepath.Join(dir, base+".csv"),
		file:      f,
		columns:   make(map[string]struct{}),
	}, nil
}

// Write appends one row to the spool and folds its keys into the union
// schema. Each row is flushed on write so a crash loses at most the row
// in flight.
func (w *Writer) Write(row flatten.FlatRow) error {
	if w.closed {
		return errors.New(errors.ErrorTypeSpool, "write after close")
	}

	line, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to encode row")
	}
	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to append row to spool")
	}

	for k := range row {
		w.columns[k] = struct{}{}
	}
	w.rows++
	return nil
}

// RowCount reports how many rows have been spooled so far.
func (w *Writer) RowCount() int {
	return w.rows
}

// Close materializes the spool into a CSV batch and removes the spool
// file. An empty spool produces a zero-row batch with no file.
func (w *Writer) Close() (*Batch, error) {
	if w.closed {
		return nil, errors.New(errors.ErrorTypeSpool, "writer already closed")
	}
	w.closed = true

	if err := w.file.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSpool, "failed to close spool file")
	}

	if w.rows == 0 {
		if err := os.Remove(w.spoolPath); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeSpool, "failed to remove empty spool")
		}
		return &Batch{FormID: w.formID}, nil
	}

	columns := make([]string, 0, len(w.columns))
	for k := range w.columns {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	if err := w.materialize(columns); err != nil {
		return nil, err
	}
	if err := os.Remove(w.spoolPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, errors.ErrorTypeSpool, "failed to remove spool after materialize")
	}

	return &Batch{
		FormID:   w.formID,
		Columns:  columns,
		Path:     w.csvPath,
		RowCount: w.rows,
	}, nil
}

// Abort closes and removes the spool without producing a batch.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	w.file.Close()
	os.Remove(w.spoolPath)
}

func (w *Writer) materialize(columns []string) error {
	in, err := os.Open(w.spoolPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to reopen spool")
	}
	defer in.Close()

	out, err := os.Create(w.csvPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to create batch file")
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(columns); err != nil {
		out.Close()
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to write batch header")
	}

	record := make([]string, len(columns))
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var row flatten.FlatRow
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			out.Close()
			return errors.Wrap(err, errors.ErrorTypeSpool, "failed to decode spooled row")
		}
		for i, col := range columns {
			record[i] = row[col]
		}
		if err := cw.Write(record); err != nil {
			out.Close()
			return errors.Wrap(err, errors.ErrorTypeSpool, "failed to write batch row")
		}
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to read spool")
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		out.Close()
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to flush batch file")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSpool, "failed to close batch file")
	}
	return nil
}

// Clean removes leftover spool and batch files from dir, typically before
// a run starts so a crashed predecessor cannot pollute this one.
func Clean(dir string) error {
	for _, pattern := range []string{"zuko_sessions_*.spool.jsonl", "zuko_sessions_*.csv"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeSpool, "failed to scan spool directory")
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, errors.ErrorTypeSpool, "failed to remove stale file")
			}
		}
	}
	return nil
}
