// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuttem/cattledb/pkg/schema"
)

func TestInsertKeepsTimestampsStrictlyIncreasing(t *testing.T) {
	s := New("dev1", "temp", schema.KindFloat)
	s.InsertPoint(100, 0, schema.FloatValue(1), false)
	s.InsertPoint(50, 0, schema.FloatValue(2), false)
	s.InsertPoint(200, 0, schema.FloatValue(3), false)

	pts := s.All()
	for i := 1; i < len(pts); i++ {
		assert.Less(t, pts[i-1].TS, pts[i].TS)
	}
}

func TestInsertDuplicateDroppedWithoutOverwrite(t *testing.T) {
	s := New("dev1", "temp", schema.KindFloat)
	assert.Equal(t, 1, s.InsertPoint(100, 0, schema.FloatValue(1), false))
	assert.Equal(t, 0, s.InsertPoint(100, 0, schema.FloatValue(2), false))
	p, err := s.AtTS(100)
	require.NoError(t, err)
	assert.Equal(t, float32(1), p.Value.Num)
}

func TestInsertDuplicateOverwritten(t *testing.T) {
	s := New("dev1", "temp", schema.KindFloat)
	s.InsertPoint(100, 0, schema.FloatValue(1), false)
	assert.Equal(t, 1, s.InsertPoint(100, 3600, schema.FloatValue(2), true))
	p, err := s.AtTS(100)
	require.NoError(t, err)
	assert.Equal(t, float32(2), p.Value.Num)
	assert.EqualValues(t, 3600, p.TSOffset)
}

func TestToHashEquality(t *testing.T) {
	a := New("dev1", "temp", schema.KindFloat)
	a.InsertPoint(100, 0, schema.FloatValue(1), false)
	a.InsertPoint(200, 0, schema.FloatValue(2), false)

	b := New("dev1", "temp", schema.KindFloat)
	b.InsertPoint(100, 0, schema.FloatValue(99), false)
	b.InsertPoint(200, 0, schema.FloatValue(42), false)

	// to_hash depends only on (key, metric, len, ts_min, ts_max), not the
	// values in between.
	assert.Equal(t, a.ToHash(), b.ToHash())
	assert.True(t, a.Equal(b))

	b.InsertPoint(300, 0, schema.FloatValue(1), false)
	assert.NotEqual(t, a.ToHash(), b.ToHash())
}

// Scenario 1: insert 1000 points at 10-minute spacing starting at
// 1577836800 (2020-01-01 UTC) with value i mod 6; aggregate(daily,
// mean, utc) returns exactly 7 buckets. 144 points make a full UTC day
// at this spacing (86400/600), and any 144 consecutive integers cover
// every residue mod 6 exactly 24 times, so each of the six full days
// (indices 0-863) means exactly 2.5; the seventh, partial day (indices
// 864-999, 136 points) carries whatever its own residues average to.
func TestAggregateDailyMeanScenario(t *testing.T) {
	const start = int64(1577836800)
	s := New("dev1", "temp", schema.KindFloat)
	for i := 0; i < 1000; i++ {
		ts := start + int64(i)*600
		s.InsertPoint(ts, 0, schema.FloatValue(float32(i%6)), false)
	}

	points, err := s.Aggregate(GroupDaily, FuncMean, TZUTC)
	require.NoError(t, err)
	require.Len(t, points, 7)

	expectedTS := []int64{1577836800, 1577923200, 1578009600, 1578096000, 1578182400, 1578268800, 1578355200}
	for i, p := range points {
		assert.Equal(t, expectedTS[i], p.TS)
		if i < 6 {
			assert.InDelta(t, 2.5, p.Value, 1e-9)
		} else {
			assert.InDelta(t, 336.0/136.0, p.Value, 1e-9)
		}
	}
}

// Scenario 2: get_last_value over the same 1000 points returns the
// 1000th point, timestamped 1578436200 with value (999 mod 6).
func TestLastValueScenario(t *testing.T) {
	const start = int64(1577836800)
	s := New("dev1", "temp", schema.KindFloat)
	for i := 0; i < 1000; i++ {
		ts := start + int64(i)*600
		s.InsertPoint(ts, 0, schema.FloatValue(float32(i%6)), false)
	}

	last, ok := s.Last()
	require.True(t, ok)
	assert.EqualValues(t, 1578436200, last.TS)
	assert.Equal(t, float32(999%6), last.Value.Num)
}

// Scenario 3: a daily-bucketed round trip through encoded storage items
// returns the same 1000 points in ascending ts order.
func TestDailyStorageBucketRoundTrip(t *testing.T) {
	const start = int64(1577836800)
	s := New("dev1", "temp", schema.KindFloat)
	for i := 0; i < 1000; i++ {
		ts := start + int64(i)*600
		s.InsertPoint(ts, 0, schema.FloatValue(float32(i%6)), false)
	}

	buckets, err := s.DailyStorageBuckets()
	require.NoError(t, err)

	rebuilt := New("dev1", "temp", schema.KindFloat)
	// Insert in reverse cell order within each bucket, and buckets in
	// reverse order, to exercise that InsertStorageItem does not depend
	// on arrival order (the store re-assembles from a reverse scan).
	for bi := len(buckets) - 1; bi >= 0; bi-- {
		items := buckets[bi].Items
		for ci := len(items) - 1; ci >= 0; ci-- {
			require.NoError(t, rebuilt.InsertStorageItem(items[ci].TS, items[ci].Cell))
		}
	}

	assert.Equal(t, s.Len(), rebuilt.Len())
	original := s.All()
	got := rebuilt.All()
	for i := range original {
		assert.Equal(t, original[i].TS, got[i].TS)
		assert.Equal(t, original[i].Value.Num, got[i].Value.Num)
	}
}

func TestTrimByTS(t *testing.T) {
	s := New("k", "m", schema.KindFloat)
	for _, ts := range []int64{10, 20, 30, 40, 50} {
		s.InsertPoint(ts, 0, schema.FloatValue(1), false)
	}
	s.TrimByTS(20, 40)
	got := s.All()
	require.Len(t, got, 3)
	assert.Equal(t, int64(20), got[0].TS)
	assert.Equal(t, int64(40), got[2].TS)
}

func TestTrimNewestOldest(t *testing.T) {
	s := New("k", "m", schema.KindFloat)
	for _, ts := range []int64{10, 20, 30, 40, 50} {
		s.InsertPoint(ts, 0, schema.FloatValue(1), false)
	}
	s.TrimNewest(2)
	got := s.All()
	require.Len(t, got, 2)
	assert.Equal(t, int64(40), got[0].TS)
	assert.Equal(t, int64(50), got[1].TS)

	s2 := New("k", "m", schema.KindFloat)
	for _, ts := range []int64{10, 20, 30, 40, 50} {
		s2.InsertPoint(ts, 0, schema.FloatValue(1), false)
	}
	s2.TrimOldest(2)
	got2 := s2.All()
	require.Len(t, got2, 2)
	assert.Equal(t, int64(10), got2[0].TS)
	assert.Equal(t, int64(20), got2[1].TS)
}

func TestFloatWireRoundTrip(t *testing.T) {
	s := New("k", "m", schema.KindFloat)
	s.InsertPoint(10, 3600, schema.FloatValue(1.5), false)
	s.InsertPoint(20, -3600, schema.FloatValue(2.5), false)

	w, err := s.ToFloatWire()
	require.NoError(t, err)
	back, err := FromFloatWire(w)
	require.NoError(t, err)

	assert.Equal(t, s.ToHash(), back.ToHash())
	orig, got := s.All(), back.All()
	for i := range orig {
		assert.Equal(t, orig[i].TS, got[i].TS)
		assert.Equal(t, orig[i].TSOffset, got[i].TSOffset)
		assert.Equal(t, orig[i].Value.Num, got[i].Value.Num)
	}
}

func TestDictWireRoundTrip(t *testing.T) {
	s := New("k", "upload", schema.KindDict)
	s.InsertPoint(10, 0, schema.DictValue(map[string]interface{}{"status": "ok", "size": float64(42)}), false)

	w, err := s.ToDictWire()
	require.NoError(t, err)
	back, err := FromDictWire(w)
	require.NoError(t, err)

	p, err := back.AtTS(10)
	require.NoError(t, err)
	assert.Equal(t, "ok", p.Value.Dict["status"])
}
