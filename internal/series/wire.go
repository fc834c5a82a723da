// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package series

import (
	"fmt"

	"github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/schema"
)

// ToFloatWire serialises a float-valued series to its wire form: three
// parallel arrays, one entry per point. Round-trip through FromFloatWire
// is exact on values, timestamps and offsets.
func (s *Series) ToFloatWire() (schema.FloatTimeSeriesWire, error) {
	if s.Kind != schema.KindFloat {
		return schema.FloatTimeSeriesWire{}, fmt.Errorf("%w: series is not float-valued", engine.ErrInvalidArgument)
	}
	w := schema.FloatTimeSeriesWire{
		Key:              s.Key,
		Metric:           s.Metric,
		Timestamps:       make([]int64, len(s.points)),
		TimestampOffsets: make([]int32, len(s.points)),
		Values:           make([]float32, len(s.points)),
	}
	for i, p := range s.points {
		w.Timestamps[i] = p.TS
		w.TimestampOffsets[i] = p.TSOffset
		w.Values[i] = p.Value.Num
	}
	return w, nil
}

// FromFloatWire reconstructs a float-valued Series from its wire form.
func FromFloatWire(w schema.FloatTimeSeriesWire) (*Series, error) {
	if len(w.Timestamps) != len(w.TimestampOffsets) || len(w.Timestamps) != len(w.Values) {
		return nil, fmt.Errorf("%w: mismatched array lengths in wire series", engine.ErrInvalidArgument)
	}
	s := New(w.Key, w.Metric, schema.KindFloat)
	for i := range w.Timestamps {
		s.InsertPoint(w.Timestamps[i], w.TimestampOffsets[i], schema.FloatValue(w.Values[i]), true)
	}
	return s, nil
}

// ToDictWire serialises a dict-valued series (event list) to its wire
// form, packing each point's map into a Dictionary of Pairs with JSON
// string values.
func (s *Series) ToDictWire() (schema.DictTimeSeriesWire, error) {
	if s.Kind != schema.KindDict {
		return schema.DictTimeSeriesWire{}, fmt.Errorf("%w: series is not dict-valued", engine.ErrInvalidArgument)
	}
	w := schema.DictTimeSeriesWire{
		Key:              s.Key,
		Metric:           s.Metric,
		Timestamps:       make([]int64, len(s.points)),
		TimestampOffsets: make([]int32, len(s.points)),
		Values:           make([]schema.Dictionary, len(s.points)),
	}
	for i, p := range s.points {
		w.Timestamps[i] = p.TS
		w.TimestampOffsets[i] = p.TSOffset
		d, err := dictToWire(p.Value.Dict)
		if err != nil {
			return schema.DictTimeSeriesWire{}, err
		}
		w.Values[i] = d
	}
	return w, nil
}

// FromDictWire reconstructs a dict-valued Series from its wire form.
func FromDictWire(w schema.DictTimeSeriesWire) (*Series, error) {
	if len(w.Timestamps) != len(w.TimestampOffsets) || len(w.Timestamps) != len(w.Values) {
		return nil, fmt.Errorf("%w: mismatched array lengths in wire series", engine.ErrInvalidArgument)
	}
	s := New(w.Key, w.Metric, schema.KindDict)
	for i := range w.Timestamps {
		d, err := dictFromWire(w.Values[i])
		if err != nil {
			return nil, err
		}
		s.InsertPoint(w.Timestamps[i], w.TimestampOffsets[i], schema.DictValue(d), true)
	}
	return s, nil
}
