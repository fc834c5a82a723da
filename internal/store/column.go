// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"strconv"
	"strings"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
)

// splitColumn parses a "family:qualifier" engine column into its parts.
func splitColumn(column string) (family, qualifier string, err error) {
	i := strings.IndexByte(column, ':')
	if i < 0 {
		return "", "", fmt.Errorf("%w: column %q missing family:qualifier separator", cdbengine.ErrInvalidArgument, column)
	}
	return column[:i], column[i+1:], nil
}

// tsColumn builds the "family:timestamp" column key stores use for
// point/event cells.
func tsColumn(family string, ts int64) string {
	return family + ":" + strconv.FormatInt(ts, 10)
}

func parseTSQualifier(qualifier string) (int64, error) {
	ts, err := strconv.ParseInt(qualifier, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: column qualifier %q is not a timestamp", cdbengine.ErrCorruptCell, qualifier)
	}
	return ts, nil
}
