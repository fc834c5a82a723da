// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package series

import (
	"fmt"
	"math"
	"sort"

	"github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/timeutil"
	"github.com/wuttem/cattledb/pkg/schema"
)

// Group names the bucket span an aggregation groups by.
type Group string

const (
	Group10Min  Group = "10min"
	GroupHourly Group = "hourly"
	GroupDaily  Group = "daily"
)

// Function names the reducer an aggregation applies per bucket.
type Function string

const (
	FuncSum    Function = "sum"
	FuncCount  Function = "count"
	FuncMin    Function = "min"
	FuncMax    Function = "max"
	FuncAmp    Function = "amp"
	FuncMean   Function = "mean"
	FuncStdev  Function = "stdev"
	FuncMedian Function = "median"
	FuncAll    Function = "all"
)

// TZMode selects whether bucket boundaries are computed in UTC or in
// each bucket's local time (the offset of its first point).
type TZMode string

const (
	TZUTC   TZMode = "utc"
	TZLocal TZMode = "local"
)

// byBucket splits points into runs sharing one [lower, upper] bucket,
// as returned by left/right. When local is true, lower/right operate on
// (ts + offset) instead of ts, per the local-time bucketing rule: the
// offset of the first point in a run pins the bucket boundary.
func (s *Series) byBucket(left, right func(int64) int64, local bool) [][]schema.RawPoint {
	var out [][]schema.RawPoint
	i := 0
	for i < len(s.points) {
		key := func(p schema.RawPoint) int64 {
			if local {
				return p.TS + int64(p.TSOffset)
			}
			return p.TS
		}
		lower := left(key(s.points[i]))
		upper := right(key(s.points[i]))
		j := 0
		for i+j < len(s.points) {
			k := key(s.points[i+j])
			if local {
				if k > upper {
					break
				}
			} else if k < lower || k > upper {
				break
			}
			j++
		}
		out = append(out, s.points[i:i+j])
		i += j
	}
	return out
}

// ByHour groups points into hourly UTC buckets.
func (s *Series) ByHour() [][]schema.RawPoint {
	return s.byBucket(timeutil.HourLeft, timeutil.HourRight, false)
}

// ByHourLocal groups points into hourly buckets in each run's local time.
func (s *Series) ByHourLocal() [][]schema.RawPoint {
	return s.byBucket(timeutil.HourLeft, timeutil.HourRight, true)
}

// ByDay groups points into daily UTC buckets.
func (s *Series) ByDay() [][]schema.RawPoint {
	return s.byBucket(timeutil.DayLeft, timeutil.DayRight, false)
}

// ByDayLocal groups points into daily buckets in each run's local time.
func (s *Series) ByDayLocal() [][]schema.RawPoint {
	return s.byBucket(timeutil.DayLeft, timeutil.DayRight, true)
}

// By10Min groups points into 10-minute UTC-aligned buckets.
func (s *Series) By10Min() [][]schema.RawPoint {
	return s.byBucket(timeutil.TenMinuteLeft, timeutil.TenMinuteRight, false)
}

// ByMonth groups points into monthly UTC buckets.
func (s *Series) ByMonth() [][]schema.RawPoint {
	return s.byBucket(timeutil.MonthLeft, timeutil.MonthRight, false)
}

func bucketLeftFor(group Group) (func(int64) int64, error) {
	switch group {
	case GroupHourly:
		return timeutil.HourLeft, nil
	case GroupDaily:
		return timeutil.DayLeft, nil
	case Group10Min:
		return timeutil.TenMinuteLeft, nil
	default:
		return nil, fmt.Errorf("%w: invalid aggregation group %q", engine.ErrInvalidArgument, group)
	}
}

func reducerFor(fn Function) (func([]float64) (float64, schema.AggregationValue, bool), error) {
	switch fn {
	case FuncSum:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return sum(x), schema.AggregationValue{}, false
		}, nil
	case FuncCount:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return float64(len(x)), schema.AggregationValue{}, false
		}, nil
	case FuncMin:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return minOf(x), schema.AggregationValue{}, false
		}, nil
	case FuncMax:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return maxOf(x), schema.AggregationValue{}, false
		}, nil
	case FuncAmp:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return maxOf(x) - minOf(x), schema.AggregationValue{}, false
		}, nil
	case FuncMean:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return listMean(x), schema.AggregationValue{}, false
		}, nil
	case FuncStdev:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return stdev(x, listMean(x)), schema.AggregationValue{}, false
		}, nil
	case FuncMedian:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return median(x), schema.AggregationValue{}, false
		}, nil
	case FuncAll:
		return func(x []float64) (float64, schema.AggregationValue, bool) {
			return 0, fullAggregation(x), true
		}, nil
	default:
		return nil, fmt.Errorf("%w: invalid aggregation function %q", engine.ErrInvalidArgument, fn)
	}
}

// AggregatePoint is one bucket's aggregation result: either a scalar
// Value (sum/count/min/max/amp/mean) or, for FuncAll, the full set of
// seven statistics.
type AggregatePoint struct {
	TS        int64
	TSOffset  int32
	Value     float64
	All       schema.AggregationValue
	IsAllMode bool
}

// Aggregate walks the series once, grouping by group (optionally in
// local time per tzMode) and reducing each bucket with fn. The result
// carries one point per bucket, timestamped at the bucket's left edge
// (for local mode, computed in local time then shifted back to UTC by
// the offset of the bucket's first point, exactly as the original
// implementation does it).
func (s *Series) Aggregate(group Group, fn Function, tzMode TZMode) ([]AggregatePoint, error) {
	if tzMode != TZUTC && tzMode != TZLocal {
		return nil, fmt.Errorf("%w: invalid tz_mode %q", engine.ErrInvalidArgument, tzMode)
	}
	left, err := bucketLeftFor(group)
	if err != nil {
		return nil, err
	}
	reduce, err := reducerFor(fn)
	if err != nil {
		return nil, err
	}

	local := tzMode == TZLocal
	buckets := s.byBucket(left, rightFor(group), local)

	out := make([]AggregatePoint, 0, len(buckets))
	for _, bucket := range buckets {
		if len(bucket) == 0 {
			continue
		}
		first := bucket[0]
		var ts int64
		if local {
			ts = left(first.TS+int64(first.TSOffset)) - int64(first.TSOffset)
		} else {
			ts = left(first.TS)
		}
		values := make([]float64, len(bucket))
		for i, p := range bucket {
			if p.Value.Kind != schema.KindFloat {
				return nil, fmt.Errorf("%w: aggregation requires a float series", engine.ErrInvalidArgument)
			}
			values[i] = float64(p.Value.Num)
		}
		val, all, isAll := reduce(values)
		out = append(out, AggregatePoint{
			TS:        ts,
			TSOffset:  first.TSOffset,
			Value:     val,
			All:       all,
			IsAllMode: isAll,
		})
	}
	return out, nil
}

func rightFor(group Group) func(int64) int64 {
	switch group {
	case GroupHourly:
		return timeutil.HourRight
	case GroupDaily:
		return timeutil.DayRight
	default:
		return timeutil.TenMinuteRight
	}
}

func sum(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s
}

func minOf(x []float64) float64 {
	m := x[0]
	for _, v := range x[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(x []float64) float64 {
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func listMean(x []float64) float64 {
	if len(x) == 1 {
		return x[0]
	}
	return sum(x) / float64(len(x))
}

func median(x []float64) float64 {
	sorted := append([]float64{}, x...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdev(x []float64, mean float64) float64 {
	if len(x) <= 1 {
		return 0
	}
	var ss float64
	for _, v := range x {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)-1))
}

// fullAggregation computes all seven statistics in one pass, matching
// the original implementation's full_aggregation.
func fullAggregation(x []float64) schema.AggregationValue {
	if len(x) <= 1 {
		if len(x) == 1 {
			v := x[0]
			return schema.AggregationValue{Count: 1, Sum: v, Min: v, Max: v, Mean: v, Stdev: 0, Median: v}
		}
		return schema.AggregationValue{}
	}
	mean := listMean(x)
	return schema.AggregationValue{
		Count:  len(x),
		Sum:    sum(x),
		Min:    minOf(x),
		Max:    maxOf(x),
		Mean:   mean,
		Stdev:  stdev(x, mean),
		Median: median(x),
	}
}
