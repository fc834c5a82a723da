// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/timeutil"
	"github.com/wuttem/cattledb/pkg/schema"
)

// ActivityTableName is the table ActivityStore reads and writes.
const ActivityTableName = "activity"

const activityFamily = "c"

const maxActivityReaderRangeSeconds = 90 * 24 * 3600
const activityPastWindowSeconds = 3 * 365 * 24 * 3600
const activityFutureWindowSeconds = 30 * 24 * 3600

// totalParentID is the synthetic parent id ActivityStore writes every
// increment's total row under, queried back by GetTotalActivityForDay.
const totalParentID = "t"

// ActivityStore implements §4.K: per-hour device-activity counters,
// fanned out to a total row and up to three parent rows per increment.
type ActivityStore struct {
	base
}

// NewActivityStore builds an ActivityStore against provider.
func NewActivityStore(provider TableProvider, observer Observer) *ActivityStore {
	return &ActivityStore{base: newBase("activity", ActivityTableName, provider, observer)}
}

func activityColumn(hour int, deviceID string) string {
	return fmt.Sprintf("%s:%02d.%s", activityFamily, hour, deviceID)
}

func parseActivityQualifier(qualifier string) (hour int, deviceID string, err error) {
	i := strings.IndexByte(qualifier, '.')
	if i < 0 {
		return 0, "", fmt.Errorf("%w: activity column %q missing hour.device separator", cdbengine.ErrCorruptCell, qualifier)
	}
	hour, err = strconv.Atoi(qualifier[:i])
	if err != nil {
		return 0, "", fmt.Errorf("%w: activity column %q has a non-numeric hour", cdbengine.ErrCorruptCell, qualifier)
	}
	return hour, qualifier[i+1:], nil
}

func decodeCounter(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("%w: counter cell has %d bytes, want 8", cdbengine.ErrCorruptCell, len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func rowKeyActivityTotal(dayLeft int64, readerID string) string {
	return totalParentID + "#" + timeutil.ReverseDayKey(dayLeft) + "#" + readerID
}

func rowKeyActivityParent(parentID string, dayLeft int64, readerID string) string {
	return parentID + "#" + timeutil.ReverseDayKey(dayLeft) + "#" + readerID
}

func readerIDFromRow(rowKey string) string {
	i := strings.LastIndexByte(rowKey, '#')
	if i < 0 {
		return rowKey
	}
	return rowKey[i+1:]
}

// Incr records one device's activity for reader readerID at ts, fanning
// the counter out to the total row and to up to three parent rows. ts
// must fall within (-3y, +30d) of the current time, mirroring the
// original implementation's sanity window on stray clocks.
func (s *ActivityStore) Incr(ctx context.Context, ts int64, readerID string, parentIDs []string, deviceID string, delta int64) error {
	start := time.Now()
	if len(readerID) < 3 || len(readerID) > 32 {
		return fmt.Errorf("%w: reader id %q must be 3-32 chars", cdbengine.ErrInvalidArgument, readerID)
	}
	if len(parentIDs) < 1 || len(parentIDs) > 3 {
		return fmt.Errorf("%w: need 1-3 parent ids, got %d", cdbengine.ErrInvalidArgument, len(parentIDs))
	}
	for _, p := range parentIDs {
		if len(p) < 3 || len(p) > 32 {
			return fmt.Errorf("%w: parent id %q must be 3-32 chars", cdbengine.ErrInvalidArgument, p)
		}
	}
	now := time.Now().Unix()
	if ts <= now-activityPastWindowSeconds || ts >= now+activityFutureWindowSeconds {
		return fmt.Errorf("%w: timestamp %d outside the allowed activity window", cdbengine.ErrInvalidArgument, ts)
	}

	dayLeft := timeutil.DayLeft(ts)
	hour := int((ts - dayLeft) / 3600)
	column := activityColumn(hour, deviceID)

	tbl, err := s.table(ctx)
	if err != nil {
		return err
	}
	rowKeys := make([]string, 0, 1+len(parentIDs))

	totalRow := rowKeyActivityTotal(dayLeft, readerID)
	rowKeys = append(rowKeys, totalRow)
	if _, err := tbl.IncrementCounter(ctx, totalRow, column, delta); err != nil {
		s.finish("incr", start, 0, rowKeys, err)
		return err
	}
	for _, pid := range parentIDs {
		row := rowKeyActivityParent(pid, dayLeft, readerID)
		rowKeys = append(rowKeys, row)
		if _, err := tbl.IncrementCounter(ctx, row, column, delta); err != nil {
			s.finish("incr", start, len(rowKeys)-1, rowKeys, err)
			return err
		}
	}
	s.finish("incr", start, len(rowKeys), rowKeys, nil)
	return nil
}

// GetTotalActivityForDay is GetActivityForDay against the synthetic
// total parent id every Incr call writes to.
func (s *ActivityStore) GetTotalActivityForDay(ctx context.Context, dayTS int64) ([]schema.ReaderActivityItem, error) {
	return s.GetActivityForDay(ctx, totalParentID, dayTS)
}

// GetActivityForDay lists, per reader, which devices were active on
// dayTS's calendar day under parentID, one entry per (day_hour, reader).
func (s *ActivityStore) GetActivityForDay(ctx context.Context, parentID string, dayTS int64) ([]schema.ReaderActivityItem, error) {
	start := time.Now()
	dayLeft := timeutil.DayLeft(dayTS)
	prefix := parentID + "#" + timeutil.ReverseDayKey(dayLeft) + "#"

	type key struct {
		dayHour, reader string
	}
	devicesByKey := make(map[key]map[string]struct{})

	tbl, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	rowsSeen := 0
	err = tbl.RowGenerator(ctx, cdbengine.RowScan{StartKey: prefix, Prefix: prefix, Families: []string{activityFamily}}, func(r cdbengine.Row) (bool, error) {
		rowsSeen++
		readerID := readerIDFromRow(r.Key)
		for _, cell := range r.Cells {
			_, qualifier, err := splitColumn(cell.Column)
			if err != nil {
				return false, err
			}
			hour, deviceID, err := parseActivityQualifier(qualifier)
			if err != nil {
				return false, err
			}
			dayHour := schema.FormatDayHour(dayLeft, hour)
			k := key{dayHour: dayHour, reader: readerID}
			if devicesByKey[k] == nil {
				devicesByKey[k] = make(map[string]struct{})
			}
			devicesByKey[k][deviceID] = struct{}{}
		}
		return true, nil
	})
	if err != nil {
		s.finish("get_activity_for_day", start, rowsSeen, nil, err)
		return nil, err
	}

	out := make([]schema.ReaderActivityItem, 0, len(devicesByKey))
	for k, devices := range devicesByKey {
		ids := make([]string, 0, len(devices))
		for d := range devices {
			ids = append(ids, d)
		}
		sort.Strings(ids)
		out = append(out, schema.ReaderActivityItem{DayHour: k.dayHour, ReaderID: k.reader, DeviceIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayHour != out[j].DayHour {
			return out[i].DayHour < out[j].DayHour
		}
		return out[i].ReaderID < out[j].ReaderID
	})
	s.finish("get_activity_for_day", start, rowsSeen, nil, nil)
	return out, nil
}

// GetActivityForReader sums readerID's per-device counters for every
// day in [fromTS, toTS], a range capped at 90 days.
func (s *ActivityStore) GetActivityForReader(ctx context.Context, readerID string, fromTS, toTS int64) ([]schema.DeviceActivityItem, error) {
	start := time.Now()
	if toTS-fromTS > maxActivityReaderRangeSeconds {
		return nil, fmt.Errorf("%w: range of %d seconds exceeds %d", cdbengine.ErrRangeTooLarge, toTS-fromTS, maxActivityReaderRangeSeconds)
	}

	type key struct {
		dayHour, device string
	}
	sums := make(map[key]int64)

	tbl, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	days := timeutil.IterDays(fromTS, toTS)
	rowKeys := make([]string, 0, len(days))
	for _, day := range days {
		row := rowKeyActivityTotal(day, readerID)
		rowKeys = append(rowKeys, row)
		r, err := tbl.ReadRow(ctx, row, []string{activityFamily})
		if err != nil {
			if errors.Is(err, cdbengine.ErrNotFound) {
				continue
			}
			s.finish("get_activity_for_reader", start, 0, rowKeys, err)
			return nil, err
		}
		for _, cell := range r.Cells {
			_, qualifier, err := splitColumn(cell.Column)
			if err != nil {
				return nil, err
			}
			hour, deviceID, err := parseActivityQualifier(qualifier)
			if err != nil {
				return nil, err
			}
			v, err := decodeCounter(cell.Value)
			if err != nil {
				return nil, err
			}
			k := key{dayHour: schema.FormatDayHour(day, hour), device: deviceID}
			sums[k] += v
		}
	}

	out := make([]schema.DeviceActivityItem, 0, len(sums))
	for k, v := range sums {
		out = append(out, schema.DeviceActivityItem{DayHour: k.dayHour, DeviceID: k.device, Counter: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayHour != out[j].DayHour {
			return out[i].DayHour < out[j].DayHour
		}
		return out[i].DeviceID < out[j].DeviceID
	})
	s.finish("get_activity_for_reader", start, len(rowKeys), rowKeys, nil)
	return out, nil
}
