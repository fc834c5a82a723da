// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import (
	"fmt"
	"time"
)

// ReaderActivityItem lists the devices one reader saw active in a given
// day+hour, one DeviceIDs entry per device; it carries no counter values.
type ReaderActivityItem struct {
	DayHour   string
	ReaderID  string
	DeviceIDs []string
}

// DayHourTime parses the "YYYYMMDDHH" DayHour string into a UTC time.Time.
func (r ReaderActivityItem) DayHourTime() (time.Time, error) {
	return parseDayHour(r.DayHour)
}

// DeviceActivityItem is one device's summed counter for a day+hour,
// produced by collapsing per-reader rows.
type DeviceActivityItem struct {
	DayHour  string
	DeviceID string
	Counter  int64
}

func (d DeviceActivityItem) DayHourTime() (time.Time, error) {
	return parseDayHour(d.DayHour)
}

func parseDayHour(s string) (time.Time, error) {
	if len(s) != 10 {
		return time.Time{}, fmt.Errorf("schema: invalid day_hour %q: want YYYYMMDDHH", s)
	}
	t, err := time.ParseInLocation("2006010215", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("schema: invalid day_hour %q: %w", s, err)
	}
	return t, nil
}

// FormatDayHour builds the "YYYYMMDDHH" string used as ReaderActivityItem/
// DeviceActivityItem.DayHour, from a UTC timestamp and an hour-of-day.
func FormatDayHour(ts int64, hour int) string {
	t := time.Unix(ts, 0).UTC()
	return fmt.Sprintf("%04d%02d%02d%02d", t.Year(), int(t.Month()), t.Day(), hour)
}
