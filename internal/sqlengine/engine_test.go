// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{InMemory: true})
	require.NoError(t, e.Connect(context.Background()))
	t.Cleanup(func() { _ = e.Disconnect(context.Background()) })
	return e
}

func TestCapabilitiesNotThreaded(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.Capabilities().Threading)
}

func TestSetupColumnFamilyThenWriteReadCell(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))

	tbl, err := e.GetTable(ctx, "timeseries")
	require.NoError(t, err)

	require.NoError(t, tbl.WriteCell(ctx, "dev1#temp#20200101", "a1:1577836800", []byte("hello")))

	row, err := tbl.ReadRow(ctx, "dev1#temp#20200101", nil)
	require.NoError(t, err)
	require.Len(t, row.Cells, 1)
	assert.Equal(t, "a1:1577836800", row.Cells[0].Column)
	assert.Equal(t, []byte("hello"), row.Cells[0].Value)
}

func TestReadRowNotFound(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))
	tbl, err := e.GetTable(ctx, "timeseries")
	require.NoError(t, err)

	_, err = tbl.ReadRow(ctx, "missing", nil)
	assert.ErrorIs(t, err, cdbengine.ErrNotFound)
}

func TestSetupColumnFamilySilentIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))

	err := e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, false)
	assert.ErrorIs(t, err, cdbengine.ErrInvalidArgument)
}

func TestUpsertRowsMultipleFamiliesSameQualifier(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a2"}, true))

	tbl, err := e.GetTable(ctx, "timeseries")
	require.NoError(t, err)

	require.NoError(t, tbl.UpsertRows(ctx, []cdbengine.RowUpsert{
		{
			RowKey: "dev1#20200101",
			Cells: map[string][]byte{
				"a1:1577836800": []byte("v1"),
				"a2:1577836800": []byte("v2"),
			},
		},
	}))

	row, err := tbl.ReadRow(ctx, "dev1#20200101", nil)
	require.NoError(t, err)
	require.Len(t, row.Cells, 2)
}

func TestDeleteRowWholeAndByFamily(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a2"}, true))
	tbl, err := e.GetTable(ctx, "timeseries")
	require.NoError(t, err)

	require.NoError(t, tbl.WriteCell(ctx, "row1", "a1:100", []byte("x")))
	require.NoError(t, tbl.WriteCell(ctx, "row1", "a2:100", []byte("y")))

	require.NoError(t, tbl.DeleteRow(ctx, "row1", []string{"a1"}))
	row, err := tbl.ReadRow(ctx, "row1", nil)
	require.NoError(t, err)
	require.Len(t, row.Cells, 1)
	assert.Equal(t, "a2:100", row.Cells[0].Column)

	require.NoError(t, tbl.DeleteRow(ctx, "row1", nil))
	_, err = tbl.ReadRow(ctx, "row1", nil)
	assert.ErrorIs(t, err, cdbengine.ErrNotFound)
}

func TestRowGeneratorOrderedAndPrefixEarlyStop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))
	tbl, err := e.GetTable(ctx, "timeseries")
	require.NoError(t, err)

	for _, row := range []string{"dev1#20200103", "dev1#20200102", "dev1#20200101", "dev2#20200101"} {
		require.NoError(t, tbl.WriteCell(ctx, row, "a1:1", []byte("v")))
	}

	var seen []string
	err = tbl.RowGenerator(ctx, cdbengine.RowScan{StartKey: "dev1#", Prefix: "dev1#"}, func(r cdbengine.Row) (bool, error) {
		seen = append(seen, r.Key)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"dev1#20200101", "dev1#20200102", "dev1#20200103"}, seen)
}

func TestGetFirstRow(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))
	tbl, err := e.GetTable(ctx, "timeseries")
	require.NoError(t, err)

	for _, row := range []string{"dev1#20200103", "dev1#20200101"} {
		require.NoError(t, tbl.WriteCell(ctx, row, "a1:1", []byte("v")))
	}

	first, err := tbl.GetFirstRow(ctx, cdbengine.RowScan{StartKey: "dev1#"})
	require.NoError(t, err)
	assert.Equal(t, "dev1#20200101", first.Key)

	_, err = tbl.GetFirstRow(ctx, cdbengine.RowScan{StartKey: "nomatch#"})
	assert.ErrorIs(t, err, cdbengine.ErrNotFound)
}

func TestIncrementCounterAccumulates(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "activity", cdbengine.ColumnFamily{Name: "c"}, true))
	tbl, err := e.GetTable(ctx, "activity")
	require.NoError(t, err)

	v, err := tbl.IncrementCounter(ctx, "t#20200101#R1", "c:10.D1", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, v)

	v, err = tbl.IncrementCounter(ctx, "t#20200101#R1", "c:10.D1", 4)
	require.NoError(t, err)
	assert.EqualValues(t, 7, v)
}

func TestGetColumnFamilies(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a1"}, true))
	require.NoError(t, e.SetupColumnFamily(ctx, "timeseries", cdbengine.ColumnFamily{Name: "a2"}, true))
	tbl, err := e.GetTable(ctx, "timeseries")
	require.NoError(t, err)

	fams, err := tbl.GetColumnFamilies(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1", "a2"}, fams)
}
