// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlengine

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
)

// Table is one table's handle against the embedded SQLite database. Rows
// are (k, c) keyed; every column family the store has declared on this
// table is a nullable BLOB column holding base64 text of the cell bytes.
type Table struct {
	db   *sqlx.DB
	name string
}

func splitColumn(column string) (family, qualifier string, err error) {
	i := strings.IndexByte(column, ':')
	if i < 0 {
		return "", "", fmt.Errorf("%w: column %q missing family:qualifier separator", cdbengine.ErrInvalidArgument, column)
	}
	return column[:i], column[i+1:], nil
}

func (t *Table) allFamilies(ctx context.Context) ([]string, error) {
	rows, err := t.db.QueryxContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, t.name))
	if err != nil {
		return nil, fmt.Errorf("%w: table_info %q: %v", cdbengine.ErrBackendError, t.name, err)
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
			return nil, fmt.Errorf("%w: scan table_info %q: %v", cdbengine.ErrBackendError, t.name, err)
		}
		if name == "k" || name == "c" {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, rows.Err()
}

func (t *Table) familiesOrAll(ctx context.Context, families []string) ([]string, error) {
	if len(families) > 0 {
		cols := append([]string{}, families...)
		sort.Strings(cols)
		return cols, nil
	}
	return t.allFamilies(ctx)
}

func quoted(name string) string { return `"` + name + `"` }

func (t *Table) WriteCell(ctx context.Context, row, column string, value []byte) error {
	family, qualifier, err := splitColumn(column)
	if err != nil {
		return err
	}
	if err := validIdent(family); err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString(value)
	stmt := fmt.Sprintf(
		`INSERT INTO %s (k, c, %s) VALUES (?, ?, ?) ON CONFLICT(k, c) DO UPDATE SET %s = excluded.%s`,
		quoted(t.name), quoted(family), quoted(family), quoted(family))
	if _, err := t.db.ExecContext(ctx, stmt, row, qualifier, encoded); err != nil {
		return fmt.Errorf("%w: write cell %s/%s: %v", cdbengine.ErrBackendError, row, column, err)
	}
	return nil
}

// scanRow decodes one (k, c, family...) result row into engine Cells,
// skipping NULL family columns. cols must be sorted ascending so cells
// within a qualifier come out in a stable, deterministic order.
func scanRow(rowScan *sqlx.Rows, cols []string) (key, qualifier string, cells []cdbengine.Cell, err error) {
	dest := make([]interface{}, 2+len(cols))
	var k, c string
	dest[0] = &k
	dest[1] = &c
	vals := make([]sql.NullString, len(cols))
	for i := range vals {
		dest[2+i] = &vals[i]
	}
	if err := rowScan.Scan(dest...); err != nil {
		return "", "", nil, err
	}
	for i, col := range cols {
		if !vals[i].Valid {
			continue
		}
		raw, derr := base64.StdEncoding.DecodeString(vals[i].String)
		if derr != nil {
			return "", "", nil, fmt.Errorf("%w: decode cell %s/%s:%s: %v", cdbengine.ErrCorruptCell, k, col, c, derr)
		}
		cells = append(cells, cdbengine.Cell{Column: col + ":" + c, Value: raw})
	}
	return k, c, cells, nil
}

func (t *Table) ReadRow(ctx context.Context, row string, families []string) (cdbengine.Row, error) {
	cols, err := t.familiesOrAll(ctx, families)
	if err != nil {
		return cdbengine.Row{}, err
	}
	if len(cols) == 0 {
		return cdbengine.Row{}, fmt.Errorf("%w: row %q", cdbengine.ErrNotFound, row)
	}
	selectCols := append([]string{"k", "c"}, quotedAll(cols)...)
	q, args, err := squirrel.Select(selectCols...).From(quoted(t.name)).
		Where(squirrel.Eq{"k": row}).OrderBy("c ASC").ToSql()
	if err != nil {
		return cdbengine.Row{}, fmt.Errorf("%w: build read_row query: %v", cdbengine.ErrBackendError, err)
	}
	rows, err := t.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return cdbengine.Row{}, fmt.Errorf("%w: read_row %q: %v", cdbengine.ErrBackendError, row, err)
	}
	defer rows.Close()

	out := cdbengine.Row{Key: row}
	found := false
	for rows.Next() {
		found = true
		_, _, cells, err := scanRow(rows, cols)
		if err != nil {
			return cdbengine.Row{}, err
		}
		out.Cells = append(out.Cells, cells...)
	}
	if err := rows.Err(); err != nil {
		return cdbengine.Row{}, fmt.Errorf("%w: read_row %q: %v", cdbengine.ErrBackendError, row, err)
	}
	if !found {
		return cdbengine.Row{}, fmt.Errorf("%w: row %q", cdbengine.ErrNotFound, row)
	}
	return out, nil
}

func quotedAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoted(n)
	}
	return out
}

func (t *Table) DeleteRow(ctx context.Context, row string, families []string) error {
	if len(families) == 0 {
		_, err := t.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE k = ?`, quoted(t.name)), row)
		if err != nil {
			return fmt.Errorf("%w: delete_row %q: %v", cdbengine.ErrBackendError, row, err)
		}
		return nil
	}
	sets := make([]string, len(families))
	for i, f := range families {
		if err := validIdent(f); err != nil {
			return err
		}
		sets[i] = fmt.Sprintf("%s = NULL", quoted(f))
	}
	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE k = ?`, quoted(t.name), strings.Join(sets, ", "))
	if _, err := t.db.ExecContext(ctx, stmt, row); err != nil {
		return fmt.Errorf("%w: delete_row %q families %v: %v", cdbengine.ErrBackendError, row, families, err)
	}
	return nil
}

// UpsertRows commits each row's cells in its own transaction: rows may
// interleave or reorder relative to each other, but every cell written
// for a single row key in one call lands atomically, per the §5
// concurrency contract.
func (t *Table) UpsertRows(ctx context.Context, rows []cdbengine.RowUpsert) error {
	for _, ru := range rows {
		if err := t.upsertOneRow(ctx, ru); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) upsertOneRow(ctx context.Context, ru cdbengine.RowUpsert) error {
	byQualifier := make(map[string]map[string][]byte)
	for column, value := range ru.Cells {
		family, qualifier, err := splitColumn(column)
		if err != nil {
			return err
		}
		if err := validIdent(family); err != nil {
			return err
		}
		if byQualifier[qualifier] == nil {
			byQualifier[qualifier] = make(map[string][]byte)
		}
		byQualifier[qualifier][family] = value
	}
	if len(byQualifier) == 0 {
		return nil
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin upsert_rows %q: %v", cdbengine.ErrBackendError, ru.RowKey, err)
	}
	defer tx.Rollback()

	for qualifier, families := range byQualifier {
		cols := make([]string, 0, len(families))
		for f := range families {
			cols = append(cols, f)
		}
		sort.Strings(cols)

		placeholders := make([]string, 0, len(cols)+2)
		values := make([]interface{}, 0, len(cols)+2)
		insertCols := []string{"k", "c"}
		placeholders = append(placeholders, "?", "?")
		values = append(values, ru.RowKey, qualifier)
		updateSets := make([]string, 0, len(cols))
		for _, f := range cols {
			insertCols = append(insertCols, quoted(f))
			placeholders = append(placeholders, "?")
			values = append(values, base64.StdEncoding.EncodeToString(families[f]))
			updateSets = append(updateSets, fmt.Sprintf("%s = excluded.%s", quoted(f), quoted(f)))
		}
		stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(k, c) DO UPDATE SET %s`,
			quoted(t.name), strings.Join(insertCols, ", "), strings.Join(placeholders, ", "), strings.Join(updateSets, ", "))
		if _, err := tx.ExecContext(ctx, stmt, values...); err != nil {
			return fmt.Errorf("%w: upsert_rows %q: %v", cdbengine.ErrBackendError, ru.RowKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert_rows %q: %v", cdbengine.ErrBackendError, ru.RowKey, err)
	}
	return nil
}

// RowGenerator performs a lazy ordered scan over scan.RowKeys (a
// fan-out read) or a [StartKey, EndKey] range (both ends inclusive),
// grouping consecutive (k, c, ...) result rows sharing one k into a
// single engine.Row before invoking fn. Rows come back in ascending
// (k, c) order, satisfying the cell-ordering guarantee without an extra
// sort.
func (t *Table) RowGenerator(ctx context.Context, scan cdbengine.RowScan, fn func(cdbengine.Row) (bool, error)) error {
	cols, err := t.familiesOrAll(ctx, scan.Families)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	selectCols := append([]string{"k", "c"}, quotedAll(cols)...)
	builder := squirrel.Select(selectCols...).From(quoted(t.name)).OrderBy("k ASC", "c ASC")

	switch {
	case len(scan.RowKeys) > 0:
		builder = builder.Where(squirrel.Eq{"k": scan.RowKeys})
	case scan.StartKey != "":
		if scan.EndKey != "" {
			builder = builder.Where(squirrel.And{
				squirrel.GtOrEq{"k": scan.StartKey},
				squirrel.LtOrEq{"k": scan.EndKey},
			})
		} else {
			builder = builder.Where(squirrel.GtOrEq{"k": scan.StartKey})
		}
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("%w: build row_generator query: %v", cdbengine.ErrBackendError, err)
	}
	rows, err := t.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: row_generator: %v", cdbengine.ErrBackendError, err)
	}
	defer rows.Close()

	var current *cdbengine.Row
	rowsSeen := 0
	flush := func() (stop bool, err error) {
		if current == nil {
			return false, nil
		}
		if scan.Prefix != "" && !strings.HasPrefix(current.Key, scan.Prefix) {
			return true, nil
		}
		rowsSeen++
		cont, err := fn(*current)
		if err != nil {
			return true, err
		}
		if !cont {
			return true, nil
		}
		if scan.Limit > 0 && rowsSeen >= scan.Limit {
			return true, nil
		}
		return false, nil
	}

	for rows.Next() {
		k, _, cells, err := scanRow(rows, cols)
		if err != nil {
			return err
		}
		if current == nil || current.Key != k {
			if stop, err := flush(); stop || err != nil {
				return err
			}
			current = &cdbengine.Row{Key: k}
		}
		current.Cells = append(current.Cells, cells...)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: row_generator: %v", cdbengine.ErrBackendError, err)
	}
	if _, err := flush(); err != nil {
		return err
	}
	return nil
}

func (t *Table) GetFirstRow(ctx context.Context, scan cdbengine.RowScan) (cdbengine.Row, error) {
	var first cdbengine.Row
	found := false
	scan.Limit = 1
	err := t.RowGenerator(ctx, scan, func(r cdbengine.Row) (bool, error) {
		first = r
		found = true
		return false, nil
	})
	if err != nil {
		return cdbengine.Row{}, err
	}
	if !found {
		return cdbengine.Row{}, fmt.Errorf("%w: no row matched scan", cdbengine.ErrNotFound)
	}
	return first, nil
}

// IncrementCounter atomically read-modify-writes the 8-byte big-endian
// int64 counter at (row, column). SQLite's single-writer discipline
// (one open connection per Engine handle) makes the read-then-write
// here safe without an explicit row lock.
func (t *Table) IncrementCounter(ctx context.Context, row, column string, delta int64) (int64, error) {
	family, qualifier, err := splitColumn(column)
	if err != nil {
		return 0, err
	}
	if err := validIdent(family); err != nil {
		return 0, err
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin increment_counter: %v", cdbengine.ErrBackendError, err)
	}
	defer tx.Rollback()

	var current sql.NullString
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE k = ? AND c = ?`, quoted(family), quoted(t.name))
	err = tx.GetContext(ctx, &current, q, row, qualifier)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("%w: read counter %s/%s: %v", cdbengine.ErrBackendError, row, column, err)
	}

	var value int64
	if current.Valid {
		raw, derr := base64.StdEncoding.DecodeString(current.String)
		if derr != nil || len(raw) != 8 {
			return 0, fmt.Errorf("%w: corrupt counter cell %s/%s", cdbengine.ErrCorruptCell, row, column)
		}
		value = int64(binary.BigEndian.Uint64(raw))
	}
	value += delta

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(value))
	encoded := base64.StdEncoding.EncodeToString(buf)

	stmt := fmt.Sprintf(
		`INSERT INTO %s (k, c, %s) VALUES (?, ?, ?) ON CONFLICT(k, c) DO UPDATE SET %s = excluded.%s`,
		quoted(t.name), quoted(family), quoted(family), quoted(family))
	if _, err := tx.ExecContext(ctx, stmt, row, qualifier, encoded); err != nil {
		return 0, fmt.Errorf("%w: write counter %s/%s: %v", cdbengine.ErrBackendError, row, column, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit increment_counter %s/%s: %v", cdbengine.ErrBackendError, row, column, err)
	}
	return value, nil
}

func (t *Table) GetColumnFamilies(ctx context.Context) ([]string, error) {
	return t.allFamilies(ctx)
}
