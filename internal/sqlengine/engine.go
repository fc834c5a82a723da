// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlengine

import (
	"context"
	"embed"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/log"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(s string) error {
	if !identRe.MatchString(s) {
		return fmt.Errorf("%w: %q is not a valid SQL identifier", cdbengine.ErrInvalidArgument, s)
	}
	return nil
}

// Config configures one Engine handle.
type Config struct {
	// DataDir holds the SQLite database file, <DataDir>/cattledb.db. When
	// InMemory is true, DataDir is ignored and a private in-memory
	// database is opened instead.
	DataDir  string
	InMemory bool
	ReadOnly bool
}

// Engine is the embedded SQLite storage engine. Unlike the wide-column
// backend, a single Engine is not safe to share across worker
// goroutines: SQLite is single-writer, so the connection pool keeps
// exactly one open connection per handle.
type Engine struct {
	cfg    Config
	memory uint64
	db     *sqlx.DB
}

var memoryEngineSeq atomic.Uint64

// New creates an unconnected Engine.
func New(cfg Config) *Engine {
	registerDriver()
	return &Engine{cfg: cfg, memory: memoryEngineSeq.Add(1)}
}

// dsn names a private, uniquely-named shared-cache in-memory database
// per Engine when InMemory is set. A bare "file::memory:" URI is shared
// by every connection in the process under cache=shared, which would
// silently merge the data of unrelated Engine instances (and unrelated
// tests) into one database; giving each Engine its own name keeps them
// isolated while still allowing SetMaxOpenConns(1) to reuse one shared
// backing store across that single connection's reconnects.
func (e *Engine) dsn() string {
	if e.cfg.InMemory {
		return fmt.Sprintf("file:cattledb_mem_%d?mode=memory&cache=shared&_foreign_keys=on", e.memory)
	}
	return fmt.Sprintf("file:%s/cattledb.db?_foreign_keys=on", e.cfg.DataDir)
}

func (e *Engine) Connect(ctx context.Context) error {
	db, err := sqlx.Open(driverName, e.dsn())
	if err != nil {
		return fmt.Errorf("%w: open sqlite: %v", cdbengine.ErrBackendError, err)
	}
	// sqlite does not multithread writers. One connection per handle
	// means every statement on this handle serialises naturally instead
	// of waiting on SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping sqlite: %v", cdbengine.ErrBackendError, err)
	}
	e.db = db

	if !e.cfg.ReadOnly {
		if err := e.migrate(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) migrate() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("%w: load migrations: %v", cdbengine.ErrBackendError, err)
	}
	driver, err := sqlite3.WithInstance(e.db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("%w: migration driver: %v", cdbengine.ErrBackendError, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("%w: new migration: %v", cdbengine.ErrBackendError, err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("%w: run migrations: %v", cdbengine.ErrBackendError, err)
	}
	log.Debug("sqlengine: base tables migrated")
	return nil
}

func (e *Engine) Disconnect(ctx context.Context) error {
	if e.db == nil {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("%w: close sqlite: %v", cdbengine.ErrBackendError, err)
	}
	return nil
}

// SetupTable creates table if it does not already exist. The embedded
// migration creates the five unprefixed base tables at Connect time;
// every other table, including the prefixed tables a Connection uses, is
// created here with the same schema.
func (e *Engine) SetupTable(ctx context.Context, name string, sorted bool, silent bool) error {
	if err := validIdent(name); err != nil {
		return err
	}
	exists, err := e.tableExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if silent {
			return nil
		}
		return fmt.Errorf("%w: table %q already exists", cdbengine.ErrInvalidArgument, name)
	}
	stmt := fmt.Sprintf(`CREATE TABLE "%s" (k TEXT NOT NULL, c TEXT NOT NULL, PRIMARY KEY (k, c))`, name)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%w: create table %q: %v", cdbengine.ErrBackendError, name, err)
	}
	return nil
}

func (e *Engine) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := e.db.GetContext(ctx, &n, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name)
	if err != nil {
		return false, fmt.Errorf("%w: check table %q: %v", cdbengine.ErrBackendError, name, err)
	}
	return n > 0, nil
}

// SetupColumnFamily adds a BLOB column for family to an existing table.
func (e *Engine) SetupColumnFamily(ctx context.Context, table string, family cdbengine.ColumnFamily, silent bool) error {
	if err := validIdent(table); err != nil {
		return err
	}
	if err := validIdent(family.Name); err != nil {
		return err
	}
	cols, err := e.columnNames(ctx, table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c == family.Name {
			if silent {
				return nil
			}
			return fmt.Errorf("%w: column family %q already exists on %q", cdbengine.ErrInvalidArgument, family.Name, table)
		}
	}
	stmt := fmt.Sprintf(`ALTER TABLE "%s" ADD COLUMN "%s" BLOB`, table, family.Name)
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%w: add column family %q on %q: %v", cdbengine.ErrBackendError, family.Name, table, err)
	}
	return nil
}

func (e *Engine) columnNames(ctx context.Context, table string) ([]string, error) {
	rows, err := e.db.QueryxContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table))
	if err != nil {
		return nil, fmt.Errorf("%w: table_info %q: %v", cdbengine.ErrBackendError, table, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt interface{}
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("%w: scan table_info %q: %v", cdbengine.ErrBackendError, table, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (e *Engine) GetTable(ctx context.Context, name string) (cdbengine.Table, error) {
	if err := validIdent(name); err != nil {
		return nil, err
	}
	return &Table{db: e.db, name: name}, nil
}

func (e *Engine) GetAdminTable(ctx context.Context, name string) (cdbengine.Table, error) {
	return e.GetTable(ctx, name)
}

func (e *Engine) Capabilities() cdbengine.Capabilities {
	return cdbengine.Capabilities{Threading: false}
}
