// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/series"
	"github.com/wuttem/cattledb/pkg/schema"
)

func testConfig() Config {
	return Config{
		Engine: SQLEngineKind,
		SQL:    &SQLConfig{InMemory: true},
		Metrics: []schema.MetricDefinition{
			{Name: "temp", ID: "tm", Type: schema.FloatSeries, DeletePossible: false},
		},
		Events: []schema.EventDefinition{
			{Name: "upload", Type: schema.Daily},
		},
	}
}

func TestGetTableBeforeInitFails(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })

	_, err = conn.GetTable(ctx, "timeseries")
	assert.ErrorIs(t, err, cdbengine.ErrNotInitialised)
}

func TestDatabaseInitThenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })

	require.NoError(t, conn.DatabaseInit(ctx, false))
	assert.True(t, conn.Initialised())

	ser := series.New("dev1", "temp", schema.KindFloat)
	ser.InsertPoint(1577836800, 0, schema.FloatValue(1.5), false)
	require.NoError(t, conn.TimeSeries.Insert(ctx, "dev1", ser))

	got, err := conn.TimeSeries.Get(ctx, "dev1", "temp", 1577836800, 1577836800)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}

func TestDatabaseInitTwiceWithoutSilentFails(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })

	require.NoError(t, conn.DatabaseInit(ctx, false))
	err = conn.DatabaseInit(ctx, false)
	assert.ErrorIs(t, err, cdbengine.ErrInvalidArgument)

	// silent=true stays idempotent.
	assert.NoError(t, conn.DatabaseInit(ctx, true))
}

func TestServiceInitReadsBackDefinitions(t *testing.T) {
	ctx := context.Background()
	writer, err := Open(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close(ctx) })
	require.NoError(t, writer.DatabaseInit(ctx, false))

	reader, err := Open(Config{
		Engine: SQLEngineKind,
		SQL:    writer.cfg.SQL,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reader.Close(ctx) })

	// A separate in-memory SQLite handle means the reader sees none of
	// the writer's data (each :memory: DSN is its own database), but
	// ServiceInit itself must still succeed against an empty config row.
	require.NoError(t, reader.ServiceInit(ctx))
	assert.True(t, reader.Initialised())
}

func TestAddDefinitionsMergesByKey(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })
	require.NoError(t, conn.DatabaseInit(ctx, false))

	require.NoError(t, conn.AddDefinitions(ctx, []schema.MetricDefinition{
		{Name: "temp", ID: "tm", Type: schema.FloatSeries, DeletePossible: true},
		{Name: "humidity", ID: "hm", Type: schema.FloatSeries, DeletePossible: false},
	}, nil))

	metrics := conn.Metrics()
	require.Len(t, metrics, 2)
	temp, ok := schema.LookupMetricByID(metrics, "tm")
	require.True(t, ok)
	assert.True(t, temp.DeletePossible)
}
