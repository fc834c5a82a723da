// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package series implements the ordered (ts, ts_offset, value) container
// that backs both float-valued time series and dict-valued event lists,
// grounded on the original implementation's BaseTimeseries /
// FastFloatTimeseries / FastDictTimeseries.
package series

import (
	"crypto/sha1"
	"fmt"
	"sort"

	"github.com/wuttem/cattledb/internal/codec"
	"github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/timeutil"
	"github.com/wuttem/cattledb/pkg/schema"
)

// Series is an ordered, ts-deduplicated sequence of points for one
// (key, metric) pair. All points share the same value Kind: Float for a
// plain time series, Dict for an event list (where Metric is repurposed
// as the event name).
type Series struct {
	Key    string
	Metric string
	Kind   schema.Kind

	points []schema.RawPoint
}

// New creates an empty Series. Key and Metric are lower-cased to match
// the case-insensitive handle convention of the original implementation.
func New(key, metric string, kind schema.Kind) *Series {
	return &Series{
		Key:    lower(key),
		Metric: lower(metric),
		Kind:   kind,
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.points) }

// Empty reports whether the series has no points.
func (s *Series) Empty() bool { return len(s.points) == 0 }

// TsMin returns the smallest timestamp, or false if the series is empty.
func (s *Series) TsMin() (int64, bool) {
	if s.Empty() {
		return 0, false
	}
	return s.points[0].TS, true
}

// TsMax returns the largest timestamp, or false if the series is empty.
func (s *Series) TsMax() (int64, bool) {
	if s.Empty() {
		return 0, false
	}
	return s.points[len(s.points)-1].TS, true
}

// First returns the oldest point.
func (s *Series) First() (schema.RawPoint, bool) {
	if s.Empty() {
		return schema.RawPoint{}, false
	}
	return s.points[0], true
}

// Last returns the newest point.
func (s *Series) Last() (schema.RawPoint, bool) {
	if s.Empty() {
		return schema.RawPoint{}, false
	}
	return s.points[len(s.points)-1], true
}

// BisectLeft returns the index of the first point with ts >= target.
func (s *Series) BisectLeft(ts int64) int {
	return sort.Search(len(s.points), func(i int) bool { return s.points[i].TS >= ts })
}

// BisectRight returns the index of the first point with ts > target.
func (s *Series) BisectRight(ts int64) int {
	return sort.Search(len(s.points), func(i int) bool { return s.points[i].TS > ts })
}

// AtIndex returns the point at i.
func (s *Series) AtIndex(i int) (schema.RawPoint, error) {
	if i < 0 || i >= len(s.points) {
		return schema.RawPoint{}, fmt.Errorf("%w: index %d out of range [0,%d)", engine.ErrInvalidArgument, i, len(s.points))
	}
	return s.points[i], nil
}

// AtTS returns the point at exactly ts, or ErrNotFound.
func (s *Series) AtTS(ts int64) (schema.RawPoint, error) {
	i := s.BisectLeft(ts)
	if i < len(s.points) && s.points[i].TS == ts {
		return s.points[i], nil
	}
	return schema.RawPoint{}, fmt.Errorf("%w: ts %d", engine.ErrNotFound, ts)
}

// InsertPoint inserts one point. Two points with identical ts are not
// allowed: the incoming duplicate is dropped unless overwrite is true,
// in which case it replaces the existing (offset, value) in place.
// Returns 1 if a point was newly added or overwritten, 0 if a duplicate
// was dropped.
func (s *Series) InsertPoint(ts int64, offset int32, value schema.Value, overwrite bool) int {
	i := s.BisectLeft(ts)
	if i < len(s.points) && s.points[i].TS == ts {
		if !overwrite {
			return 0
		}
		s.points[i].TSOffset = offset
		s.points[i].Value = value
		return 1
	}
	s.points = append(s.points, schema.RawPoint{})
	copy(s.points[i+1:], s.points[i:])
	s.points[i] = schema.RawPoint{TS: ts, TSOffset: offset, Value: value}
	return 1
}

// Insert bulk-inserts points, returning the count actually applied
// (new + overwritten).
func (s *Series) Insert(points []schema.RawPoint, overwrite bool) int {
	count := 0
	for _, p := range points {
		count += s.InsertPoint(p.TS, p.TSOffset, p.Value, overwrite)
	}
	return count
}

// TrimByTS keeps only points with ts in [min, max], inclusive.
func (s *Series) TrimByTS(min, max int64) {
	lo := s.BisectLeft(min)
	hi := s.BisectRight(max)
	s.points = append([]schema.RawPoint{}, s.points[lo:hi]...)
}

// TrimNewest keeps only the n newest points, or does nothing if the
// series already has n or fewer points.
func (s *Series) TrimNewest(n int) {
	if n >= len(s.points) {
		return
	}
	s.points = append([]schema.RawPoint{}, s.points[len(s.points)-n:]...)
}

// TrimOldest keeps only the n oldest points, or does nothing if the
// series already has n or fewer points.
func (s *Series) TrimOldest(n int) {
	if n >= len(s.points) {
		return
	}
	s.points = append([]schema.RawPoint{}, s.points[:n]...)
}

// All returns every point in ascending ts order. The returned slice must
// not be mutated by the caller.
func (s *Series) All() []schema.RawPoint {
	return s.points
}

// Range returns the points with ts in [min, max], inclusive.
func (s *Series) Range(min, max int64) []schema.RawPoint {
	lo := s.BisectLeft(min)
	hi := s.BisectRight(max)
	return s.points[lo:hi]
}

// ToHash returns a sha1 hexdigest of "<key>.<metric>.<len>.<ts_min>.<ts_max>".
// Two series compare equal iff their hashes match.
func (s *Series) ToHash() string {
	min, _ := s.TsMin()
	max, _ := s.TsMax()
	str := fmt.Sprintf("%s.%s.%d.%d.%d", s.Key, s.Metric, s.Len(), min, max)
	sum := sha1.Sum([]byte(str))
	return fmt.Sprintf("%x", sum)
}

// Equal reports whether s and other have the same ToHash.
func (s *Series) Equal(other *Series) bool {
	if other == nil {
		return false
	}
	return s.ToHash() == other.ToHash()
}

// StorageItemAt encodes the point at index i into its on-the-wire cell
// bytes, returning the timestamp as the column qualifier.
func (s *Series) StorageItemAt(i int) (ts int64, cell []byte, err error) {
	p, err := s.AtIndex(i)
	if err != nil {
		return 0, nil, err
	}
	b, err := codec.EncodeCell(p.TSOffset, p.Value)
	if err != nil {
		return 0, nil, err
	}
	return p.TS, b, nil
}

// InsertStorageItem decodes a wire-format cell and inserts it at
// timestamp ts, overwriting any existing point at that timestamp (this
// is how a store reassembles a series from stored cells, where each
// stored (row, column) is authoritative).
func (s *Series) InsertStorageItem(ts int64, cell []byte) error {
	offset, value, err := codec.DecodeCell(cell, s.Kind)
	if err != nil {
		return err
	}
	s.InsertPoint(ts, offset, value, true)
	return nil
}

// DailyBucket is one day's worth of storage items, keyed by the day's
// left-edge timestamp.
type DailyBucket struct {
	DayLeft int64
	Items   []StorageItem
}

// StorageItem is one point's encoded wire form, keyed by its column
// qualifier (the literal timestamp).
type StorageItem struct {
	TS   int64
	Cell []byte
}

// DailyStorageBuckets groups the series' points by the UTC day each
// falls in, encoding each point to its wire cell along the way. Used by
// TimeSeriesStore.Insert/EventStore.InsertEvents to build one row
// upsert per day.
func (s *Series) DailyStorageBuckets() ([]DailyBucket, error) {
	return s.storageBuckets(timeutil.DayLeft, timeutil.DayRight)
}

// MonthlyStorageBuckets is DailyStorageBuckets's monthly counterpart,
// used by monthly-resolution event streams.
func (s *Series) MonthlyStorageBuckets() ([]DailyBucket, error) {
	return s.storageBuckets(timeutil.MonthLeft, timeutil.MonthRight)
}

func (s *Series) storageBuckets(left, right func(int64) int64) ([]DailyBucket, error) {
	var out []DailyBucket
	i := 0
	for i < len(s.points) {
		lower := left(s.points[i].TS)
		upper := right(s.points[i].TS)
		j := 0
		for i+j < len(s.points) && lower <= s.points[i+j].TS && s.points[i+j].TS <= upper {
			j++
		}
		items := make([]StorageItem, 0, j)
		for x := i; x < i+j; x++ {
			ts, cell, err := s.StorageItemAt(x)
			if err != nil {
				return nil, err
			}
			items = append(items, StorageItem{TS: ts, Cell: cell})
		}
		out = append(out, DailyBucket{DayLeft: lower, Items: items})
		i += j
	}
	return out, nil
}
