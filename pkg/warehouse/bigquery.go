package warehouse

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/datarmony/zukosync/pkg/config"
	"github.com/datarmony/zukosync/pkg/errors"
	"github.com/datarmony/zukosync/pkg/flatten"
)

// BigQueryWarehouse implements Warehouse on top of a BigQuery dataset.
// Tables use STRING columns exclusively; typing is deferred to queries
// over the raw data.
type BigQueryWarehouse struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	config  *config.BigQueryConfig
	logger  *zap.Logger
}

// NewBigQueryWarehouse connects to BigQuery and ensures the configured
// dataset exists.
func NewBigQueryWarehouse(ctx context.Context, cfg *config.BigQueryConfig, logger *zap.Logger) (*BigQueryWarehouse, error) {
	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}

	w := &BigQueryWarehouse{
		client:  client,
		dataset: client.Dataset(cfg.DatasetID),
		config:  cfg,
		logger:  logger.With(zap.String("component", "bigquery_warehouse")),
	}

	if err := w.ensureDataset(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return w, nil
}

func (w *BigQueryWarehouse) ensureDataset(ctx context.Context) error {
	_, err := w.dataset.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to check dataset")
	}

	w.logger.Info("creating dataset", zap.String("dataset", w.config.DatasetID))
	if err := w.dataset.Create(ctx, &bigquery.DatasetMetadata{
		Location: w.config.Location,
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to create dataset")
	}
	return nil
}

// Describe resolves the table's state and columns. A 404 from the
// metadata call means the table is absent, which is a normal outcome.
func (w *BigQueryWarehouse) Describe(ctx context.Context, table string) (*TableInfo, error) {
	meta, err := w.dataset.Table(table).Metadata(ctx)
	if err != nil {
		if isNotFound(err) {
			return &TableInfo{State: TableAbsent}, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to read table metadata").
			WithDetail("table", table)
	}

	columns := make([]string, 0, len(meta.Schema))
	for _, field := range meta.Schema {
		columns = append(columns, field.Name)
	}

	state := TableHasRows
	if meta.NumRows == 0 {
		state = TableEmpty
	}
	return &TableInfo{State: state, Columns: columns}, nil
}

// CreateTable creates the table with one nullable STRING field per column.
func (w *BigQueryWarehouse) CreateTable(ctx context.Context, table string, columns []string) error {
	schema := make(bigquery.Schema, 0, len(columns))
	for _, col := range columns {
		schema = append(schema, &bigquery.FieldSchema{
			Name: col,
			Type: bigquery.StringFieldType,
		})
	}

	if err := w.dataset.Table(table).Create(ctx, &bigquery.TableMetadata{
		Schema: schema,
	}); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to create table").
			WithDetail("table", table)
	}

	w.logger.Info("created table",
		zap.String("table", table),
		zap.Int("columns", len(columns)))
	return nil
}

// ExistingIDs scans the table's id column so the loader can anti-join the
// incoming batch against it.
func (w *BigQueryWarehouse) ExistingIDs(ctx context.Context, table string) (map[string]struct{}, error) {
	q := w.client.Query(fmt.Sprintf(
		"SELECT %s FROM `%s.%s.%s`",
		flatten.IDKey, w.config.ProjectID, w.config.DatasetID, table))
	q.Location = w.config.Location

	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to query existing ids").
			WithDetail("table", table)
	}

	ids := make(map[string]struct{})
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to iterate existing ids").
				WithDetail("table", table)
		}
		if len(row) > 0 {
			if id, ok := row[0].(string); ok {
				ids[id] = struct{}{}
			}
		}
	}
	return ids, nil
}

// Insert streams rows as CSV through a pipe into a load job so the batch
// never has to fit in memory. Values are emitted in the table's column
// order; absent columns load as empty strings.
func (w *BigQueryWarehouse) Insert(ctx context.Context, table string, columns []string, rows RowSource) error {
	reader, writer := io.Pipe()

	go func() {
		cw := csv.NewWriter(writer)
		if err := cw.Write(columns); err != nil {
			writer.CloseWithError(err)
			return
		}

		record := make([]string, len(columns))
		err := rows(func(row flatten.FlatRow) error {
			for i, col := range columns {
				record[i] = row[col]
			}
			return cw.Write(record)
		})
		if err != nil {
			writer.CloseWithError(err)
			return
		}

		cw.Flush()
		writer.CloseWithError(cw.Error())
	}()

	source := bigquery.NewReaderSource(reader)
	source.SourceFormat = bigquery.CSV
	source.SkipLeadingRows = 1

	loader := w.dataset.Table(table).LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to start load job").
			WithDetail("table", table)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to wait for load job").
			WithDetail("table", table).
			WithDetail("job_id", job.ID())
	}
	if status.Err() != nil {
		for i, jobErr := range status.Errors {
			w.logger.Error("load job error",
				zap.Int("index", i),
				zap.Error(jobErr))
		}
		return errors.Wrap(status.Err(), errors.ErrorTypeDestination, "load job failed").
			WithDetail("table", table).
			WithDetail("job_id", job.ID())
	}

	w.logger.Debug("load job complete",
		zap.String("table", table),
		zap.String("job_id", job.ID()))
	return nil
}

// Close releases the BigQuery client.
func (w *BigQueryWarehouse) Close() error {
	if err := w.client.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to close BigQuery client")
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return stderrors.As(err, &apiErr) && apiErr.Code == 404
}
