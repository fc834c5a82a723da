// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clusterengine

import (
	"context"
	"encoding/binary"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"cloud.google.com/go/bigtable"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
)

// Table is the cluster backend's engine.Table, a thin adapter over a
// *bigtable.Table. admin is set only on handles obtained via
// Engine.GetAdminTable, and is required by GetColumnFamilies.
type Table struct {
	bt    *bigtable.Table
	name  string
	admin *bigtable.AdminClient
}

func splitColumn(column string) (family, qualifier string, err error) {
	i := strings.IndexByte(column, ':')
	if i < 0 {
		return "", "", fmt.Errorf("%w: column %q missing family separator", cdbengine.ErrInvalidArgument, column)
	}
	return column[:i], column[i+1:], nil
}

// rowFilter restricts a read to the latest cell per column, within the
// given families when non-empty. Bigtable keeps every cell version by
// default; the storage engine only ever wants the most recent write.
func rowFilter(families []string) bigtable.Filter {
	latest := bigtable.LatestNFilter(1)
	if len(families) == 0 {
		return latest
	}
	famFilters := make([]bigtable.Filter, len(families))
	for i, f := range families {
		famFilters[i] = bigtable.FamilyFilter(regexp.QuoteMeta(f))
	}
	return bigtable.ChainFilters(bigtable.InterleaveFilters(famFilters...), latest)
}

func toRow(r bigtable.Row) cdbengine.Row {
	var key string
	var cells []cdbengine.Cell
	for _, items := range r {
		for _, it := range items {
			key = it.Row
			cells = append(cells, cdbengine.Cell{Column: it.Column, Value: it.Value})
		}
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Column < cells[j].Column })
	return cdbengine.Row{Key: key, Cells: cells}
}

func (t *Table) WriteCell(ctx context.Context, row, column string, value []byte) error {
	family, qualifier, err := splitColumn(column)
	if err != nil {
		return err
	}
	mut := bigtable.NewMutation()
	mut.Set(family, qualifier, bigtable.Now(), value)
	if err := t.bt.Apply(ctx, row, mut); err != nil {
		return fmt.Errorf("%w: write cell %s/%s: %v", cdbengine.ErrBackendError, row, column, err)
	}
	return nil
}

func (t *Table) ReadRow(ctx context.Context, row string, families []string) (cdbengine.Row, error) {
	r, err := t.bt.ReadRow(ctx, row, bigtable.RowFilter(rowFilter(families)))
	if err != nil {
		return cdbengine.Row{}, fmt.Errorf("%w: read row %s: %v", cdbengine.ErrBackendError, row, err)
	}
	if r == nil {
		return cdbengine.Row{}, cdbengine.ErrNotFound
	}
	return toRow(r), nil
}

func (t *Table) DeleteRow(ctx context.Context, row string, families []string) error {
	mut := bigtable.NewMutation()
	if len(families) == 0 {
		mut.DeleteRow()
	} else {
		for _, f := range families {
			mut.DeleteCellsInFamily(f)
		}
	}
	if err := t.bt.Apply(ctx, row, mut); err != nil {
		return fmt.Errorf("%w: delete row %s: %v", cdbengine.ErrBackendError, row, err)
	}
	return nil
}

func (t *Table) UpsertRows(ctx context.Context, rows []cdbengine.RowUpsert) error {
	if len(rows) == 0 {
		return nil
	}
	rowKeys := make([]string, len(rows))
	muts := make([]*bigtable.Mutation, len(rows))
	now := bigtable.Now()
	for i, r := range rows {
		mut := bigtable.NewMutation()
		for column, value := range r.Cells {
			family, qualifier, err := splitColumn(column)
			if err != nil {
				return err
			}
			mut.Set(family, qualifier, now, value)
		}
		rowKeys[i] = r.RowKey
		muts[i] = mut
	}
	errs, err := t.bt.ApplyBulk(ctx, rowKeys, muts)
	if err != nil {
		return fmt.Errorf("%w: upsert rows: %v", cdbengine.ErrBackendError, err)
	}
	// ApplyBulk fails atomically per row only; surface the first row's
	// error and leave it to the caller to treat earlier rows as written.
	for i, rowErr := range errs {
		if rowErr != nil {
			return fmt.Errorf("%w: upsert row %s: %v", cdbengine.ErrBackendError, rowKeys[i], rowErr)
		}
	}
	return nil
}

func rowSet(scan cdbengine.RowScan) bigtable.RowSet {
	switch {
	case len(scan.RowKeys) > 0:
		return bigtable.RowList(scan.RowKeys)
	case scan.EndKey != "":
		// bigtable.NewRange's end is exclusive; appending a zero byte
		// extends it just past EndKey so the range is [StartKey, EndKey].
		return bigtable.NewRange(scan.StartKey, scan.EndKey+"\x00")
	default:
		return bigtable.InfiniteRange(scan.StartKey)
	}
}

// RowGenerator scans scan.RowKeys, or a [StartKey, EndKey] range
// (inclusive both ends), or an open-ended range starting at StartKey
// when EndKey is empty. Prefix mismatch stops the scan exactly like the
// SQL backend's early-stop.
func (t *Table) RowGenerator(ctx context.Context, scan cdbengine.RowScan, fn func(cdbengine.Row) (bool, error)) error {
	opts := []bigtable.ReadOption{bigtable.RowFilter(rowFilter(scan.Families))}
	if scan.Limit > 0 {
		opts = append(opts, bigtable.LimitRows(int64(scan.Limit)))
	}

	var callbackErr error
	count := 0
	err := t.bt.ReadRows(ctx, rowSet(scan), func(r bigtable.Row) bool {
		row := toRow(r)
		if scan.Prefix != "" && !strings.HasPrefix(row.Key, scan.Prefix) {
			return false
		}
		cont, fnErr := fn(row)
		if fnErr != nil {
			callbackErr = fnErr
			return false
		}
		count++
		if scan.Limit > 0 && count >= scan.Limit {
			return false
		}
		return cont
	}, opts...)
	if callbackErr != nil {
		return callbackErr
	}
	if err != nil {
		return fmt.Errorf("%w: row generator: %v", cdbengine.ErrBackendError, err)
	}
	return nil
}

func (t *Table) GetFirstRow(ctx context.Context, scan cdbengine.RowScan) (cdbengine.Row, error) {
	scan.Limit = 1
	var out cdbengine.Row
	found := false
	err := t.RowGenerator(ctx, scan, func(r cdbengine.Row) (bool, error) {
		out, found = r, true
		return false, nil
	})
	if err != nil {
		return cdbengine.Row{}, err
	}
	if !found {
		return cdbengine.Row{}, cdbengine.ErrNotFound
	}
	return out, nil
}

func (t *Table) IncrementCounter(ctx context.Context, row, column string, delta int64) (int64, error) {
	family, qualifier, err := splitColumn(column)
	if err != nil {
		return 0, err
	}
	rmw := bigtable.NewReadModifyWrite()
	rmw.Increment(family, qualifier, delta)
	r, err := t.bt.ApplyReadModifyWrite(ctx, row, rmw)
	if err != nil {
		return 0, fmt.Errorf("%w: increment %s/%s: %v", cdbengine.ErrBackendError, row, column, err)
	}
	for _, it := range r[family] {
		if it.Column == column {
			if len(it.Value) != 8 {
				return 0, fmt.Errorf("%w: counter cell %s/%s has %d bytes, want 8", cdbengine.ErrCorruptCell, row, column, len(it.Value))
			}
			return int64(binary.BigEndian.Uint64(it.Value)), nil
		}
	}
	return 0, fmt.Errorf("%w: increment %s/%s: no result cell", cdbengine.ErrBackendError, row, column)
}

func (t *Table) GetColumnFamilies(ctx context.Context) ([]string, error) {
	if t.admin == nil {
		return nil, fmt.Errorf("%w: column family listing needs an admin table handle", cdbengine.ErrReadOnly)
	}
	info, err := t.admin.TableInfo(ctx, t.name)
	if err != nil {
		return nil, fmt.Errorf("%w: table info %q: %v", cdbengine.ErrBackendError, t.name, err)
	}
	families := append([]string(nil), info.Families...)
	sort.Strings(families)
	return families, nil
}
