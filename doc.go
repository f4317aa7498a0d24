// Package zukosync syncs form analytics sessions from the Zuko egress API
// into per-form BigQuery tables.
//
// Each run covers a sliding date window. Sessions are fetched page by page,
// flattened from nested JSON into flat string-valued rows, spooled to disk
// as a CSV batch with a sorted union header, and loaded incrementally: rows
// whose id the destination table already holds are never inserted again, so
// overlapping windows and repeated runs stay idempotent.
//
// # Layout
//
//   - pkg/zuko: paginated sessions API client
//   - pkg/flatten: nested record to flat row conversion
//   - pkg/spool: on-disk batching and CSV materialization
//   - pkg/warehouse: the load decision matrix and the BigQuery backend
//   - internal/sync: the per-form orchestration loop and the HTTP trigger
//   - cmd/zukosync: the CLI (run, serve, version)
//
// # Usage
//
//	zukosync run --config config.yaml
//
// or keep it resident and trigger runs over HTTP:
//
//	zukosync serve --config config.yaml
//	curl -X POST localhost:8080/sync
package zukosync
