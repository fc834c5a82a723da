// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/schema"
)

func TestEncodeDecodeFloatRoundTrip(t *testing.T) {
	b, err := EncodeCell(3600, schema.FloatValue(2.5))
	assert.NoError(t, err)
	assert.Len(t, b, 9)
	assert.Equal(t, byte(1), b[0])

	offset, v, err := DecodeCell(b, schema.KindFloat)
	assert.NoError(t, err)
	assert.EqualValues(t, 3600, offset)
	assert.True(t, v.IsFloat())
	assert.InDelta(t, 2.5, v.Num, 1e-6)
}

func TestEncodeDecodeDictRoundTrip(t *testing.T) {
	dict := map[string]interface{}{"a": "b", "n": int64(7)}
	b, err := EncodeCell(-7200, schema.DictValue(dict))
	assert.NoError(t, err)
	assert.Equal(t, byte(2), b[0])

	offset, v, err := DecodeCell(b, schema.KindDict)
	assert.NoError(t, err)
	assert.EqualValues(t, -7200, offset)
	assert.True(t, v.IsDict())
	assert.Equal(t, "b", v.Dict["a"])
}

func TestDecodeCellTagMismatch(t *testing.T) {
	b, err := EncodeCell(0, schema.FloatValue(1))
	assert.NoError(t, err)

	_, _, err = DecodeCell(b, schema.KindDict)
	assert.True(t, errors.Is(err, engine.ErrCorruptCell))
}

func TestDecodeCellTruncated(t *testing.T) {
	_, _, err := DecodeCell([]byte{1, 2, 3}, schema.KindFloat)
	assert.True(t, errors.Is(err, engine.ErrCorruptCell))
}

func TestDecodeCellBadMsgpack(t *testing.T) {
	b := []byte{2, 0, 0, 0, 0, 0xff, 0xff, 0xff}
	_, _, err := DecodeCell(b, schema.KindDict)
	assert.True(t, errors.Is(err, engine.ErrCorruptCell))
}
