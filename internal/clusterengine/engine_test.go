// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clusterengine

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wuttem/cattledb/internal/engine"
)

// Tests that call requireEmulator only run against a Bigtable emulator
// (BIGTABLE_EMULATOR_HOST set, e.g. via `gcloud beta emulators bigtable
// start`); there is no in-process fake for the wide-column client the way
// sqlengine has in-memory SQLite, so CI without the emulator skips them.
func requireEmulator(t *testing.T) {
	t.Helper()
	if os.Getenv("BIGTABLE_EMULATOR_HOST") == "" {
		t.Skip("BIGTABLE_EMULATOR_HOST not set, skipping cluster engine integration test")
	}
}

func TestCapabilitiesAreThreaded(t *testing.T) {
	e := New(Config{ProjectID: "p", InstanceID: "i"})
	require.True(t, e.Capabilities().Threading)
}

func TestConnectSetupWriteReadAgainstEmulator(t *testing.T) {
	requireEmulator(t)
	ctx := context.Background()
	e := New(Config{ProjectID: "cattledb-test", InstanceID: "cattledb-test"})
	require.NoError(t, e.Connect(ctx))
	defer e.Disconnect(ctx)

	require.NoError(t, e.SetupTable(ctx, "cet_timeseries", true, true))
	require.NoError(t, e.SetupColumnFamily(ctx, "cet_timeseries", engine.ColumnFamily{Name: "tm"}, true))

	tbl, err := e.GetTable(ctx, "cet_timeseries")
	require.NoError(t, err)

	require.NoError(t, tbl.WriteCell(ctx, "dev1#50490101", "tm:1577836800", []byte{1, 2, 3}))
	row, err := tbl.ReadRow(ctx, "dev1#50490101", []string{"tm"})
	require.NoError(t, err)
	require.Len(t, row.Cells, 1)
	require.Equal(t, "tm:1577836800", row.Cells[0].Column)

	n, err := tbl.IncrementCounter(ctx, "counter-row", "tm:00.d1", 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, n)
	n, err = tbl.IncrementCounter(ctx, "counter-row", "tm:00.d1", 3)
	require.NoError(t, err)
	require.EqualValues(t, 8, n)
}
