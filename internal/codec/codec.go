// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package codec implements the single-cell wire layout shared by every
// backend: a tag byte selecting float or dict, a little-endian int32
// UTC offset, then either a 4-byte little-endian float32 or a msgpack
// map. Grounded on the original implementation's
// _storage_item_at/insert_storage_item struct.pack layout.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/schema"
)

const (
	tagFloat byte = 1
	tagDict  byte = 2

	floatCellLen = 1 + 4 + 4
	headerLen    = 1 + 4
)

// EncodeCell packs offset and value into the on-the-wire cell layout.
// value.Kind selects the tag byte; the caller is responsible for every
// point in a series sharing one tag.
func EncodeCell(offset int32, value schema.Value) ([]byte, error) {
	switch value.Kind {
	case schema.KindFloat:
		b := make([]byte, floatCellLen)
		b[0] = tagFloat
		binary.LittleEndian.PutUint32(b[1:5], uint32(offset))
		binary.LittleEndian.PutUint32(b[5:9], math.Float32bits(value.Num))
		return b, nil
	case schema.KindDict:
		packed, err := msgpack.Marshal(value.Dict)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal dict cell: %w", err)
		}
		b := make([]byte, headerLen+len(packed))
		b[0] = tagDict
		binary.LittleEndian.PutUint32(b[1:5], uint32(offset))
		copy(b[5:], packed)
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown value kind %d", engine.ErrInvalidArgument, value.Kind)
	}
}

// DecodeCell unpacks a cell previously produced by EncodeCell. want, when
// non-zero, asserts the tag matches the expected series type and returns
// ErrCorruptCell on mismatch.
func DecodeCell(b []byte, want schema.Kind) (int32, schema.Value, error) {
	if len(b) < headerLen {
		return 0, schema.Value{}, fmt.Errorf("%w: cell too short (%d bytes)", engine.ErrCorruptCell, len(b))
	}
	tag := b[0]
	if want != 0 && schema.Kind(tag) != want {
		return 0, schema.Value{}, fmt.Errorf("%w: tag %d does not match expected kind %d", engine.ErrCorruptCell, tag, want)
	}
	offset := int32(binary.LittleEndian.Uint32(b[1:5]))

	switch tag {
	case tagFloat:
		if len(b) != floatCellLen {
			return 0, schema.Value{}, fmt.Errorf("%w: float cell has %d bytes, want %d", engine.ErrCorruptCell, len(b), floatCellLen)
		}
		v := math.Float32frombits(binary.LittleEndian.Uint32(b[5:9]))
		return offset, schema.FloatValue(v), nil
	case tagDict:
		var dict map[string]interface{}
		if err := msgpack.Unmarshal(b[headerLen:], &dict); err != nil {
			return 0, schema.Value{}, fmt.Errorf("%w: msgpack decode: %v", engine.ErrCorruptCell, err)
		}
		return offset, schema.DictValue(dict), nil
	default:
		return 0, schema.Value{}, fmt.Errorf("%w: unknown tag %d", engine.ErrCorruptCell, tag)
	}
}
