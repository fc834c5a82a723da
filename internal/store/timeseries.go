// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/wuttem/cattledb/internal/codec"
	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/series"
	"github.com/wuttem/cattledb/internal/timeutil"
	"github.com/wuttem/cattledb/pkg/schema"
)

// TimeSeriesTableName is the table TimeSeriesStore reads and writes.
const TimeSeriesTableName = "timeseries"

// maxTimeSeriesRangeSeconds caps a single Get at 400 days, mirroring the
// original implementation's MAX_GET_SIZE.
const maxTimeSeriesRangeSeconds = 400 * 24 * 3600

const defaultLastValueSearchDays = 180

// MetricLookup resolves metric definitions by name, as maintained by a
// Connection's merged configuration.
type MetricLookup interface {
	Metrics() []schema.MetricDefinition
}

// TimeSeriesStore implements §4.I: day-bucketed insert, ranged get,
// last-value lookup, and (family-scoped) delete over one row per
// (key, day), one column family per metric.
type TimeSeriesStore struct {
	base
	metrics MetricLookup
}

// NewTimeSeriesStore builds a TimeSeriesStore against provider, resolving
// metric names through metrics.
func NewTimeSeriesStore(provider TableProvider, metrics MetricLookup, observer Observer) *TimeSeriesStore {
	return &TimeSeriesStore{
		base:    newBase("timeseries", TimeSeriesTableName, provider, observer),
		metrics: metrics,
	}
}

func (s *TimeSeriesStore) metricByName(name string) (schema.MetricDefinition, error) {
	m, ok := schema.LookupMetricByName(s.metrics.Metrics(), name)
	if !ok {
		return schema.MetricDefinition{}, fmt.Errorf("%w: unknown metric %q", cdbengine.ErrInvalidArgument, name)
	}
	return m, nil
}

func rowKeyForDay(key string, dayLeft int64) string {
	return key + "#" + timeutil.ReverseDayKey(dayLeft)
}

// Insert writes every point of ser, bucketed one row-upsert per UTC day.
func (s *TimeSeriesStore) Insert(ctx context.Context, key string, ser *series.Series) error {
	start := time.Now()
	metric, err := s.metricByName(ser.Metric)
	if err != nil {
		return err
	}
	buckets, err := ser.DailyStorageBuckets()
	if err != nil {
		return err
	}
	rows := make([]cdbengine.RowUpsert, 0, len(buckets))
	rowKeys := make([]string, 0, len(buckets))
	for _, b := range buckets {
		rk := rowKeyForDay(key, b.DayLeft)
		cells := make(map[string][]byte, len(b.Items))
		for _, item := range b.Items {
			cells[tsColumn(metric.ID, item.TS)] = item.Cell
		}
		rows = append(rows, cdbengine.RowUpsert{RowKey: rk, Cells: cells})
		rowKeys = append(rowKeys, rk)
	}
	tbl, err := s.table(ctx)
	if err != nil {
		return err
	}
	err = tbl.UpsertRows(ctx, rows)
	s.finish("insert", start, ser.Len(), rowKeys, err)
	return err
}

// Get reads every point for (key, metric) in [fromTS, toTS], inclusive.
func (s *TimeSeriesStore) Get(ctx context.Context, key, metricName string, fromTS, toTS int64) (*series.Series, error) {
	start := time.Now()
	if fromTS > toTS {
		return nil, fmt.Errorf("%w: from_ts %d > to_ts %d", cdbengine.ErrInvalidArgument, fromTS, toTS)
	}
	if toTS-fromTS > maxTimeSeriesRangeSeconds {
		return nil, fmt.Errorf("%w: range of %d seconds exceeds %d", cdbengine.ErrRangeTooLarge, toTS-fromTS, maxTimeSeriesRangeSeconds)
	}
	metric, err := s.metricByName(metricName)
	if err != nil {
		return nil, err
	}

	days := timeutil.IterDays(fromTS, toTS)
	rowKeys := make([]string, len(days))
	for i, d := range days {
		rowKeys[i] = rowKeyForDay(key, d)
	}

	out := series.New(key, metricName, schema.Kind(metric.Type))
	tbl, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	err = tbl.RowGenerator(ctx, cdbengine.RowScan{RowKeys: rowKeys, Families: []string{metric.ID}}, func(r cdbengine.Row) (bool, error) {
		for _, cell := range r.Cells {
			fam, qualifier, err := splitColumn(cell.Column)
			if err != nil {
				return false, err
			}
			if fam != metric.ID {
				continue
			}
			ts, err := parseTSQualifier(qualifier)
			if err != nil {
				return false, err
			}
			if err := out.InsertStorageItem(ts, cell.Value); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		s.finish("get", start, 0, rowKeys, err)
		return nil, err
	}
	out.TrimByTS(fromTS, toTS)
	s.finish("get", start, out.Len(), rowKeys, nil)
	return out, nil
}

// GetLastValue returns the newest point at or before maxTS, searching
// back at most maxDays days (defaulting to 180, as in the original
// get_last_values).
func (s *TimeSeriesStore) GetLastValue(ctx context.Context, key, metricName string, maxTS int64, maxDays int) (schema.RawPoint, error) {
	start := time.Now()
	if maxDays <= 0 {
		maxDays = defaultLastValueSearchDays
	}
	metric, err := s.metricByName(metricName)
	if err != nil {
		return schema.RawPoint{}, err
	}

	prefix := key + "#"
	startRow := rowKeyForDay(key, timeutil.DayLeft(maxTS))

	var best schema.RawPoint
	found := false
	rowsSeen := 0
	tbl, err := s.table(ctx)
	if err != nil {
		return schema.RawPoint{}, err
	}
	err = tbl.RowGenerator(ctx, cdbengine.RowScan{StartKey: startRow, Prefix: prefix, Families: []string{metric.ID}, Limit: maxDays}, func(r cdbengine.Row) (bool, error) {
		rowsSeen++
		for _, cell := range r.Cells {
			fam, qualifier, err := splitColumn(cell.Column)
			if err != nil {
				return false, err
			}
			if fam != metric.ID {
				continue
			}
			ts, err := parseTSQualifier(qualifier)
			if err != nil {
				return false, err
			}
			if ts > maxTS {
				continue
			}
			if !found || ts > best.TS {
				offset, value, err := codec.DecodeCell(cell.Value, schema.Kind(metric.Type))
				if err != nil {
					return false, err
				}
				best = schema.RawPoint{TS: ts, TSOffset: offset, Value: value}
				found = true
			}
		}
		return !found, nil
	})
	s.finish("get_last_value", start, rowsSeen, nil, err)
	if err != nil {
		return schema.RawPoint{}, err
	}
	if !found {
		return schema.RawPoint{}, fmt.Errorf("%w: no value for %s/%s at or before %d", cdbengine.ErrNotFound, key, metricName, maxTS)
	}
	return best, nil
}

// GetAllMetrics returns every metric definition known to the store.
func (s *TimeSeriesStore) GetAllMetrics() []schema.MetricDefinition {
	return s.metrics.Metrics()
}

// Delete removes metricName's column family from every day-row in
// [fromTS, toTS]. Refuses when the metric is marked !DeletePossible.
func (s *TimeSeriesStore) Delete(ctx context.Context, key, metricName string, fromTS, toTS int64) error {
	start := time.Now()
	metric, err := s.metricByName(metricName)
	if err != nil {
		return err
	}
	if !metric.DeletePossible {
		err := fmt.Errorf("%w: metric %q", cdbengine.ErrDeleteNotAllowed, metricName)
		s.finish("delete", start, 0, nil, err)
		return err
	}
	days := timeutil.IterDays(fromTS, toTS)
	rowKeys := make([]string, len(days))
	tbl, err := s.table(ctx)
	if err != nil {
		return err
	}
	for i, d := range days {
		rk := rowKeyForDay(key, d)
		rowKeys[i] = rk
		if err := tbl.DeleteRow(ctx, rk, []string{metric.ID}); err != nil {
			s.finish("delete", start, i, rowKeys, err)
			return err
		}
	}
	s.finish("delete", start, len(rowKeys), rowKeys, nil)
	return nil
}
