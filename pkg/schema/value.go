// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

// Kind tags the payload carried by a Value.
type Kind uint8

const (
	// KindFloat marks a Value carrying a float32 number.
	KindFloat Kind = 1
	// KindDict marks a Value carrying a string-keyed dictionary.
	KindDict Kind = 2
)

// Value is the tagged union every series cell carries: either a plain
// float32 reading or a small string-keyed dictionary (used by event
// series). Only one of Num/Dict is meaningful,
// selected by Kind.
type Value struct {
	Kind Kind
	Num  float32
	Dict map[string]interface{}
}

// FloatValue wraps a float32 reading.
func FloatValue(v float32) Value {
	return Value{Kind: KindFloat, Num: v}
}

// DictValue wraps a dictionary payload.
func DictValue(d map[string]interface{}) Value {
	return Value{Kind: KindDict, Dict: d}
}

func (v Value) IsFloat() bool {
	return v.Kind == KindFloat
}

func (v Value) IsDict() bool {
	return v.Kind == KindDict
}
