// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

import (
	"math"
	"strconv"
)

// Float is a custom float32 type so that (Un)MarshalJSON can be
// overloaded and NaN/null can be used, matching the storage width cells
// are encoded at on the wire.
type Float float32

var NaN = Float(float32(math.NaN()))

func (f Float) IsNaN() bool {
	return math.IsNaN(float64(f))
}

// MarshalJSON serializes NaN to `null`.
func (f Float) MarshalJSON() ([]byte, error) {
	if f.IsNaN() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 32)), nil
}

// UnmarshalJSON deserializes `null` to NaN.
func (f *Float) UnmarshalJSON(input []byte) error {
	s := string(input)
	if s == "null" {
		*f = NaN
		return nil
	}
	val, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return err
	}
	*f = Float(val)
	return nil
}
