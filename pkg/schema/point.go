// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import "time"

// RawPoint is a timestamped Value together with the UTC offset (in
// seconds) that was in effect when the point was inserted. This is the
// form a series stores internally.
type RawPoint struct {
	TS       int64
	TSOffset int32
	Value    Value
}

// Point adds a resolved time.Time (computed from TS/TSOffset) to a
// RawPoint, for callers that want calendar fields rather than raw
// seconds-since-epoch.
type Point struct {
	TS       int64
	TSOffset int32
	Value    Value
	DT       time.Time
}

// ToPoint resolves the wall-clock time at the point's stored offset.
func (r RawPoint) ToPoint() Point {
	loc := time.FixedZone("", int(r.TSOffset))
	return Point{
		TS:       r.TS,
		TSOffset: r.TSOffset,
		Value:    r.Value,
		DT:       time.Unix(r.TS, 0).In(loc),
	}
}

// AggregationValue is the result of a full ("all") aggregation function
// over a bucket of float values.
type AggregationValue struct {
	Count  int
	Sum    float64
	Min    float64
	Max    float64
	Mean   float64
	Stdev  float64
	Median float64
}
