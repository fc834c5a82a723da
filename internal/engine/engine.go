// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package engine defines the pluggable storage-engine contract: Engine
// (connect/disconnect, table and column-family bootstrap, table handle
// lookup) and Table (the per-row/range read-write operations every
// store drives). internal/clusterengine and internal/sqlengine each
// implement this contract against a different backend.
package engine

import "context"

// Capabilities reports backend-specific guarantees the connection pool
// and stores need to know about.
type Capabilities struct {
	// Threading reports whether a single Engine handle may safely be
	// shared across concurrent worker goroutines. True for the
	// wide-column backend, false for the embedded SQL backend (which is
	// single-writer).
	Threading bool
}

// ColumnFamily names one column family of a table. It carries no
// version-retention setting; reads ask for the most recent cell per
// column instead.
type ColumnFamily struct {
	Name string
}

// Cell is one physical column/value pair read back from a row, keyed
// by "family:qualifier" exactly as spec'd.
type Cell struct {
	Column string
	Value  []byte
}

// Row is one ordered set of cells under a row key. Cells must be kept
// in ascending column-qualifier order per family — the TimeSeriesStore
// inner loop relies on this to reconstruct a day's points without an
// extra sort.
type Row struct {
	Key   string
	Cells []Cell
}

// RowUpsert pairs a row key with the cells to write into it, for batch
// upsert calls.
type RowUpsert struct {
	RowKey string
	Cells  map[string][]byte
}

// RowScan configures a Table.RowGenerator call. Exactly one of RowKeys
// or StartKey should be set: RowKeys selects specific rows (read_row
// fan-out), StartKey begins a forward range scan.
type RowScan struct {
	RowKeys  []string
	StartKey string
	EndKey   string
	Prefix   string
	Families []string
	Limit    int
}

// Engine is the per-backend lifecycle and table-handle contract: connect
// once, create tables/families, and hand back Table handles.
type Engine interface {
	// Connect establishes the backend connection. Called once per
	// pooled handle.
	Connect(ctx context.Context) error
	// Disconnect releases the backend connection.
	Disconnect(ctx context.Context) error
	// SetupTable creates a table if missing. Idempotent when silent.
	SetupTable(ctx context.Context, name string, sorted bool, silent bool) error
	// SetupColumnFamily creates a column family on an existing table.
	// Idempotent when silent.
	SetupColumnFamily(ctx context.Context, table string, family ColumnFamily, silent bool) error
	// GetTable returns a handle for regular read/write access.
	GetTable(ctx context.Context, name string) (Table, error)
	// GetAdminTable returns a handle usable only in admin mode (table
	// and family management).
	GetAdminTable(ctx context.Context, name string) (Table, error)
	// Capabilities reports this backend's concurrency guarantees.
	Capabilities() Capabilities
}

// Table is the per-table read/write contract every backend implements
// identically from a store's point of view.
type Table interface {
	// WriteCell upserts exactly one (family, qualifier) -> value.
	WriteCell(ctx context.Context, row, column string, value []byte) error
	// ReadRow returns the most recent cell per column for row, restricted
	// to families when non-empty. Returns ErrNotFound if the row is absent.
	ReadRow(ctx context.Context, row string, families []string) (Row, error)
	// DeleteRow deletes the whole row, or only the named families when
	// non-empty.
	DeleteRow(ctx context.Context, row string, families []string) error
	// UpsertRows batch-upserts rows. Each row is committed atomically;
	// the backend may partially succeed across rows — callers must treat
	// the whole call as at-most-once per row and check the returned error.
	UpsertRows(ctx context.Context, rows []RowUpsert) error
	// RowGenerator performs a lazy, ordered scan per RowScan and invokes
	// fn for each row in ascending key order. fn returning false stops
	// the scan early; the first row whose key lacks scan.Prefix (when
	// set) also ends the scan.
	RowGenerator(ctx context.Context, scan RowScan, fn func(Row) (bool, error)) error
	// GetFirstRow returns the first row RowGenerator would emit for scan,
	// or ErrNotFound if none match.
	GetFirstRow(ctx context.Context, scan RowScan) (Row, error)
	// IncrementCounter atomically adds delta to the big-endian int64
	// counter at (row, column), initialising to 0 if absent, and returns
	// the new value.
	IncrementCounter(ctx context.Context, row, column string, delta int64) (int64, error)
	// GetColumnFamilies lists the table's column families, for
	// diagnostics.
	GetColumnFamilies(ctx context.Context) ([]string, error)
}
