// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

// These types stand in for the protobuf messages the RPC façade would
// exchange over the wire (FloatTimeSeries, DictTimeSeries/EventSeries,
// Dictionary, Pair). No protoc toolchain runs as part of this module; a
// deployment would generate these with protoc-gen-go and the façade
// (external to this core) would marshal them over gRPC.

// FloatTimeSeriesWire is the wire form of a float-valued series: three
// parallel arrays, one entry per point.
type FloatTimeSeriesWire struct {
	Key              string    `json:"key"`
	Metric           string    `json:"metric"`
	Timestamps       []int64   `json:"timestamps"`
	TimestampOffsets []int32   `json:"timestamp_offsets"`
	Values           []float32 `json:"values"`
}

// Pair is one key/json_value entry of a Dictionary.
type Pair struct {
	Key       string `json:"key"`
	JSONValue string `json:"json_value"`
}

// Dictionary is a wire-encoded map<string, json>, used as one point's
// value in a DictTimeSeriesWire (which also carries event streams).
type Dictionary struct {
	Pairs []Pair `json:"pairs"`
}

// DictTimeSeriesWire is the wire form of a dict-valued series (or event
// stream, under the name EventSeries in the RPC schema): the same three
// parallel arrays as FloatTimeSeriesWire, with Values replaced by one
// Dictionary per point.
type DictTimeSeriesWire struct {
	Key              string       `json:"key"`
	Metric           string       `json:"metric"`
	Timestamps       []int64      `json:"timestamps"`
	TimestampOffsets []int32      `json:"timestamp_offsets"`
	Values           []Dictionary `json:"values"`
}
