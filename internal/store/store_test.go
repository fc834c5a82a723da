// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/series"
	"github.com/wuttem/cattledb/internal/sqlengine"
	"github.com/wuttem/cattledb/internal/timeutil"
	"github.com/wuttem/cattledb/pkg/schema"
)

// testEngine wraps a connected sqlengine.Engine with the column families
// every test in this package needs, and satisfies TableProvider directly.
type testEngine struct {
	*sqlengine.Engine
}

func (e *testEngine) GetTable(ctx context.Context, name string) (cdbengine.Table, error) {
	return e.Engine.GetTable(ctx, name)
}

func newTestProvider(t *testing.T) *testEngine {
	t.Helper()
	eng := sqlengine.New(sqlengine.Config{InMemory: true})
	require.NoError(t, eng.Connect(context.Background()))
	t.Cleanup(func() { _ = eng.Disconnect(context.Background()) })
	return &testEngine{Engine: eng}
}

type staticMetrics struct{ defs []schema.MetricDefinition }

func (m staticMetrics) Metrics() []schema.MetricDefinition { return m.defs }

type staticEvents struct{ defs []schema.EventDefinition }

func (m staticEvents) Events() []schema.EventDefinition { return m.defs }

func setupTimeSeriesStore(t *testing.T) (*TimeSeriesStore, *testEngine) {
	t.Helper()
	provider := newTestProvider(t)
	ctx := context.Background()
	require.NoError(t, provider.SetupColumnFamily(ctx, TimeSeriesTableName, cdbengine.ColumnFamily{Name: "tm"}, true))
	metrics := staticMetrics{defs: []schema.MetricDefinition{
		{Name: "temp", ID: "tm", Type: schema.FloatSeries, DeletePossible: false},
		{Name: "scratch", ID: "sc", Type: schema.FloatSeries, DeletePossible: true},
	}}
	require.NoError(t, provider.SetupColumnFamily(ctx, TimeSeriesTableName, cdbengine.ColumnFamily{Name: "sc"}, true))
	return NewTimeSeriesStore(provider, metrics, nil), provider
}

// Scenario 3: a 1000-point daily-bucketed round trip through the store.
func TestTimeSeriesInsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTimeSeriesStore(t)

	const start = int64(1577836800)
	ser := series.New("dev1", "temp", schema.KindFloat)
	for i := 0; i < 1000; i++ {
		ts := start + int64(i)*600
		ser.InsertPoint(ts, 0, schema.FloatValue(float32(i%6)), false)
	}
	require.NoError(t, store.Insert(ctx, "dev1", ser))

	last, _ := ser.Last()
	got, err := store.Get(ctx, "dev1", "temp", start, last.TS)
	require.NoError(t, err)
	assert.Equal(t, ser.Len(), got.Len())
	assert.Equal(t, ser.ToHash(), got.ToHash())
}

func TestTimeSeriesGetLastValue(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTimeSeriesStore(t)

	const start = int64(1577836800)
	ser := series.New("dev1", "temp", schema.KindFloat)
	for i := 0; i < 1000; i++ {
		ts := start + int64(i)*600
		ser.InsertPoint(ts, 0, schema.FloatValue(float32(i%6)), false)
	}
	require.NoError(t, store.Insert(ctx, "dev1", ser))

	last, err := store.GetLastValue(ctx, "dev1", "temp", start+1000*600, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1578436200, last.TS)
	assert.Equal(t, float32(999%6), last.Value.Num)
}

// Scenario 6: delete refused when delete_possible is false.
func TestTimeSeriesDeleteRefused(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTimeSeriesStore(t)

	ser := series.New("dev1", "temp", schema.KindFloat)
	ser.InsertPoint(1577836800, 0, schema.FloatValue(1), false)
	require.NoError(t, store.Insert(ctx, "dev1", ser))

	err := store.Delete(ctx, "dev1", "temp", 1577836800, 1577836800)
	assert.ErrorIs(t, err, cdbengine.ErrDeleteNotAllowed)
}

func TestTimeSeriesDeleteAllowed(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTimeSeriesStore(t)

	ser := series.New("dev1", "scratch", schema.KindFloat)
	ser.InsertPoint(1577836800, 0, schema.FloatValue(1), false)
	require.NoError(t, store.Insert(ctx, "dev1", ser))

	require.NoError(t, store.Delete(ctx, "dev1", "scratch", 1577836800, 1577836800))
	got, err := store.Get(ctx, "dev1", "scratch", 1577836800, 1577836800)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}

func TestTimeSeriesGetRangeTooLarge(t *testing.T) {
	ctx := context.Background()
	store, _ := setupTimeSeriesStore(t)

	_, err := store.Get(ctx, "dev1", "temp", 0, maxTimeSeriesRangeSeconds+1)
	assert.ErrorIs(t, err, cdbengine.ErrRangeTooLarge)
}

// Scenario 5: event insert/range/last-events for a "upload" dict event.
func TestEventInsertRangeAndLastEvents(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider(t)
	require.NoError(t, provider.SetupColumnFamily(ctx, EventTableName, cdbengine.ColumnFamily{Name: eventFamily}, true))
	events := staticEvents{defs: []schema.EventDefinition{{Name: "upload", Type: schema.Daily}}}
	store := NewEventStore(provider, events, nil)

	const day = int64(1577836800)
	ser := series.New("dev1", "upload", schema.KindDict)
	ts := []int64{day + 100, day + 200, day + 300, day + 86400 + 100}
	for i, et := range ts {
		ser.InsertPoint(et, 0, schema.DictValue(map[string]interface{}{"n": float64(i)}), false)
	}
	require.NoError(t, store.InsertEvents(ctx, "dev1", ser))

	got, err := store.GetEvents(ctx, "dev1", "upload", day, day+2*86400)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Len())

	last, err := store.GetLastEvents(ctx, "dev1", "upload", day+2*86400, 2, 10)
	require.NoError(t, err)
	require.Equal(t, 2, last.Len())
	all := last.All()
	assert.Equal(t, ts[2], all[0].TS)
	assert.Equal(t, ts[3], all[1].TS)
}

func TestEventNameResolutionPrefix(t *testing.T) {
	events := staticEvents{defs: []schema.EventDefinition{
		{Name: "upload*", Type: schema.Monthly},
		{Name: "upload_fast", Type: schema.Daily},
	}}
	def := schema.ResolveEventDefinition(events.Events(), "upload_fast")
	assert.Equal(t, schema.Daily, def.Type)
	def2 := schema.ResolveEventDefinition(events.Events(), "upload_slow")
	assert.Equal(t, schema.Monthly, def2.Type)
}

// Scenario 4: 3 increments land in 1 total row + 2 distinct parent rows.
func TestActivityIncrAndQueries(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider(t)
	require.NoError(t, provider.SetupColumnFamily(ctx, ActivityTableName, cdbengine.ColumnFamily{Name: activityFamily}, true))
	store := NewActivityStore(provider, nil)

	now := time.Now().Unix()
	ts := now - 3600
	require.NoError(t, store.Incr(ctx, ts, "R1", []string{"P1", "P2"}, "D1", 1))
	require.NoError(t, store.Incr(ctx, ts, "R1", []string{"P1", "P2"}, "D1", 1))
	require.NoError(t, store.Incr(ctx, ts, "R1", []string{"P1"}, "D2", 1))

	reader, err := store.GetActivityForReader(ctx, "R1", timeutil.DayLeft(ts), timeutil.DayLeft(ts))
	require.NoError(t, err)
	require.Len(t, reader, 2)

	p1, err := store.GetActivityForDay(ctx, "P1", ts)
	require.NoError(t, err)
	require.Len(t, p1, 1)
	assert.ElementsMatch(t, []string{"D1", "D2"}, p1[0].DeviceIDs)

	p2, err := store.GetActivityForDay(ctx, "P2", ts)
	require.NoError(t, err)
	require.Len(t, p2, 1)
	assert.Equal(t, []string{"D1"}, p2[0].DeviceIDs)

	total, err := store.GetTotalActivityForDay(ctx, ts)
	require.NoError(t, err)
	require.Len(t, total, 1)
	assert.ElementsMatch(t, []string{"D1", "D2"}, total[0].DeviceIDs)
}

func TestActivityIncrRejectsOutOfWindow(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider(t)
	require.NoError(t, provider.SetupColumnFamily(ctx, ActivityTableName, cdbengine.ColumnFamily{Name: activityFamily}, true))
	store := NewActivityStore(provider, nil)

	err := store.Incr(ctx, time.Now().Unix()+365*24*3600, "R1", []string{"P1"}, "D1", 1)
	assert.ErrorIs(t, err, cdbengine.ErrInvalidArgument)
}

func TestMetaDataPutAndGet(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider(t)
	require.NoError(t, provider.SetupColumnFamily(ctx, MetaDataTableName, cdbengine.ColumnFamily{Name: internalFamily}, true))
	require.NoError(t, provider.SetupColumnFamily(ctx, MetaDataTableName, cdbengine.ColumnFamily{Name: publicFamily}, true))
	store := NewMetaDataStore(provider, nil)

	items := []schema.MetaDataItem{
		{ObjectName: "device", ObjectID: "dev1", Key: "owner", Data: map[string]interface{}{"name": "alice"}},
		{ObjectName: "device", ObjectID: "dev1", Key: "location", Data: map[string]interface{}{"lat": 1.5}},
	}
	require.NoError(t, store.PutItems(ctx, items, false))

	got, err := store.GetMetadata(ctx, "device", "dev1", nil, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "location", got[0].Key)
	assert.Equal(t, "owner", got[1].Key)

	filtered, err := store.GetMetadata(ctx, "device", "dev1", []string{"owner"}, false)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "owner", filtered[0].Key)

	// internal and public namespaces are disjoint.
	none, err := store.GetMetadata(ctx, "device", "dev1", nil, true)
	require.NoError(t, err)
	assert.Len(t, none, 0)
}

func TestMetaDataGetBulk(t *testing.T) {
	ctx := context.Background()
	provider := newTestProvider(t)
	require.NoError(t, provider.SetupColumnFamily(ctx, MetaDataTableName, cdbengine.ColumnFamily{Name: internalFamily}, true))
	require.NoError(t, provider.SetupColumnFamily(ctx, MetaDataTableName, cdbengine.ColumnFamily{Name: publicFamily}, true))
	store := NewMetaDataStore(provider, nil)

	require.NoError(t, store.PutItems(ctx, []schema.MetaDataItem{
		{ObjectName: "device", ObjectID: "dev1", Key: "owner", Data: map[string]interface{}{"name": "alice"}},
		{ObjectName: "device", ObjectID: "dev2", Key: "owner", Data: map[string]interface{}{"name": "bob"}},
	}, false))

	bulk, err := store.GetMetadataBulk(ctx, "device", []string{"dev1", "dev2"}, nil, false)
	require.NoError(t, err)
	require.Len(t, bulk["dev1"], 1)
	require.Len(t, bulk["dev2"], 1)
}
