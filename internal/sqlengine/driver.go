// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sqlengine implements the embedded single-file storage engine
// over SQLite, for single-process deployments and tests. Every table is
// a (k, c, {family} BLOB...) tuple store with PRIMARY KEY(k, c); one BLOB
// column per column family holds the base64 text of the raw cell bytes.
package sqlengine

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

const driverName = "sqlite3WithHooks"

var registerOnce sync.Once

func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, queryHooks{}))
	})
}
