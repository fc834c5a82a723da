// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"
	"time"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/series"
	"github.com/wuttem/cattledb/internal/timeutil"
	"github.com/wuttem/cattledb/pkg/schema"
)

// EventTableName is the table EventStore reads and writes.
const EventTableName = "events"

const maxEventRangeSecondsDaily = 45 * 24 * 3600
const maxEventRangeSecondsMonthly = 4 * 365 * 24 * 3600
const defaultLastEventSearchDays = 180

const eventFamily = "e"

// EventLookup resolves event definitions by name, including "*"-suffix
// prefix patterns.
type EventLookup interface {
	Events() []schema.EventDefinition
}

// EventStore implements §4.J: name-resolved daily- or monthly-bucketed
// event lists sharing the single "e" column family.
type EventStore struct {
	base
	events EventLookup
}

// NewEventStore builds an EventStore against provider, resolving event
// names through events.
func NewEventStore(provider TableProvider, events EventLookup, observer Observer) *EventStore {
	return &EventStore{
		base:   newBase("event", EventTableName, provider, observer),
		events: events,
	}
}

func (s *EventStore) resolve(name string) schema.EventDefinition {
	return schema.ResolveEventDefinition(s.events.Events(), name)
}

func eventRowKeyDaily(key, name string, dayLeft int64) string {
	return key + "#" + name + "#" + timeutil.ReverseDayKey(dayLeft)
}

func eventRowKeyMonthly(key, name string, monthLeft int64) string {
	return key + "#m_" + name + "#" + timeutil.ReverseMonthKey(monthLeft)
}

// InsertEvents writes every point of ser (an event list) bucketed daily
// or monthly according to ser.Metric's resolved EventDefinition.
func (s *EventStore) InsertEvents(ctx context.Context, key string, ser *series.Series) error {
	start := time.Now()
	def := s.resolve(ser.Metric)

	var rows []cdbengine.RowUpsert
	var rowKeys []string
	if def.Type == schema.Monthly {
		buckets, err := ser.MonthlyStorageBuckets()
		if err != nil {
			return err
		}
		for _, b := range buckets {
			rk := eventRowKeyMonthly(key, ser.Metric, b.DayLeft)
			cells := make(map[string][]byte, len(b.Items))
			for _, item := range b.Items {
				cells[tsColumn(eventFamily, item.TS)] = item.Cell
			}
			rows = append(rows, cdbengine.RowUpsert{RowKey: rk, Cells: cells})
			rowKeys = append(rowKeys, rk)
		}
	} else {
		buckets, err := ser.DailyStorageBuckets()
		if err != nil {
			return err
		}
		for _, b := range buckets {
			rk := eventRowKeyDaily(key, ser.Metric, b.DayLeft)
			cells := make(map[string][]byte, len(b.Items))
			for _, item := range b.Items {
				cells[tsColumn(eventFamily, item.TS)] = item.Cell
			}
			rows = append(rows, cdbengine.RowUpsert{RowKey: rk, Cells: cells})
			rowKeys = append(rowKeys, rk)
		}
	}

	tbl, err := s.table(ctx)
	if err != nil {
		return err
	}
	err = tbl.UpsertRows(ctx, rows)
	s.finish("insert_events", start, ser.Len(), rowKeys, err)
	return err
}

// GetEvents reads every event for (key, name) in [fromTS, toTS].
func (s *EventStore) GetEvents(ctx context.Context, key, name string, fromTS, toTS int64) (*series.Series, error) {
	start := time.Now()
	if fromTS > toTS {
		return nil, fmt.Errorf("%w: from_ts %d > to_ts %d", cdbengine.ErrInvalidArgument, fromTS, toTS)
	}
	def := s.resolve(name)

	var rowKeys []string
	if def.Type == schema.Monthly {
		if toTS-fromTS > maxEventRangeSecondsMonthly {
			return nil, fmt.Errorf("%w: range of %d seconds exceeds %d", cdbengine.ErrRangeTooLarge, toTS-fromTS, maxEventRangeSecondsMonthly)
		}
		for _, m := range timeutil.IterMonths(fromTS, toTS) {
			rowKeys = append(rowKeys, eventRowKeyMonthly(key, name, m))
		}
	} else {
		if toTS-fromTS > maxEventRangeSecondsDaily {
			return nil, fmt.Errorf("%w: range of %d seconds exceeds %d", cdbengine.ErrRangeTooLarge, toTS-fromTS, maxEventRangeSecondsDaily)
		}
		for _, d := range timeutil.IterDays(fromTS, toTS) {
			rowKeys = append(rowKeys, eventRowKeyDaily(key, name, d))
		}
	}

	out := series.New(key, name, schema.KindDict)
	tbl, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	err = tbl.RowGenerator(ctx, cdbengine.RowScan{RowKeys: rowKeys, Families: []string{eventFamily}}, func(r cdbengine.Row) (bool, error) {
		for _, cell := range r.Cells {
			_, qualifier, err := splitColumn(cell.Column)
			if err != nil {
				return false, err
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
		s.finish("get_events", start, 0, rowKeys, err)
		return nil, err
	}
	out.TrimByTS(fromTS, toTS)
	s.finish("get_events", start, out.Len(), rowKeys, nil)
	return out, nil
}

// GetLastEvents returns the count newest events at or before maxTS,
// oldest first, searching back at most maxDays day/month buckets
// (defaulting to 180).
func (s *EventStore) GetLastEvents(ctx context.Context, key, name string, maxTS int64, count, maxDays int) (*series.Series, error) {
	start := time.Now()
	if maxDays <= 0 {
		maxDays = defaultLastEventSearchDays
	}
	def := s.resolve(name)

	var prefix, startRow string
	if def.Type == schema.Monthly {
		prefix = key + "#m_" + name + "#"
		startRow = eventRowKeyMonthly(key, name, timeutil.MonthLeft(maxTS))
	} else {
		prefix = key + "#" + name + "#"
		startRow = eventRowKeyDaily(key, name, timeutil.DayLeft(maxTS))
	}

	out := series.New(key, name, schema.KindDict)
	tbl, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	rowsSeen := 0
	err = tbl.RowGenerator(ctx, cdbengine.RowScan{StartKey: startRow, Prefix: prefix, Families: []string{eventFamily}, Limit: maxDays}, func(r cdbengine.Row) (bool, error) {
		rowsSeen++
		for _, cell := range r.Cells {
			_, qualifier, err := splitColumn(cell.Column)
			if err != nil {
				return false, err
			}
			ts, err := parseTSQualifier(qualifier)
			if err != nil {
				return false, err
			}
			if ts > maxTS {
				continue
			}
			if err := out.InsertStorageItem(ts, cell.Value); err != nil {
				return false, err
			}
		}
		return out.Len() < count, nil
	})
	if err != nil {
		s.finish("get_last_events", start, rowsSeen, nil, err)
		return nil, err
	}
	out.TrimNewest(count)
	s.finish("get_last_events", start, out.Len(), nil, nil)
	return out, nil
}

// GetLastEvent is GetLastEvents with count=1.
func (s *EventStore) GetLastEvent(ctx context.Context, key, name string, maxTS int64) (schema.RawPoint, error) {
	ser, err := s.GetLastEvents(ctx, key, name, maxTS, 1, defaultLastEventSearchDays)
	if err != nil {
		return schema.RawPoint{}, err
	}
	p, ok := ser.Last()
	if !ok {
		return schema.RawPoint{}, fmt.Errorf("%w: no event for %s/%s at or before %d", cdbengine.ErrNotFound, key, name, maxTS)
	}
	return p, nil
}

// DeleteEventDays deletes every daily or monthly event row for (key,
// name) in [fromTS, toTS] outright, with no column-family filter (an
// event row holds only that one event name's data).
func (s *EventStore) DeleteEventDays(ctx context.Context, key, name string, fromTS, toTS int64) error {
	start := time.Now()
	def := s.resolve(name)
	tbl, err := s.table(ctx)
	if err != nil {
		return err
	}
	var rowKeys []string
	if def.Type == schema.Monthly {
		for _, m := range timeutil.IterMonths(fromTS, toTS) {
			rowKeys = append(rowKeys, eventRowKeyMonthly(key, name, m))
		}
	} else {
		for _, d := range timeutil.IterDays(fromTS, toTS) {
			rowKeys = append(rowKeys, eventRowKeyDaily(key, name, d))
		}
	}
	for i, rk := range rowKeys {
		if err := tbl.DeleteRow(ctx, rk, nil); err != nil {
			s.finish("delete_event_days", start, i, rowKeys, err)
			return err
		}
	}
	s.finish("delete_event_days", start, len(rowKeys), rowKeys, nil)
	return nil
}
