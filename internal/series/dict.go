// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package series

import (
	"encoding/json"
	"fmt"

	"github.com/wuttem/cattledb/pkg/schema"
)

// dictToWire flattens a dict value into the wire schema's repeated
// Pair{key, json_value} form, one pair per map entry.
func dictToWire(d map[string]interface{}) (schema.Dictionary, error) {
	pairs := make([]schema.Pair, 0, len(d))
	for k, v := range d {
		raw, err := json.Marshal(v)
		if err != nil {
			return schema.Dictionary{}, fmt.Errorf("series: marshal dict value for key %q: %w", k, err)
		}
		pairs = append(pairs, schema.Pair{Key: k, JSONValue: string(raw)})
	}
	return schema.Dictionary{Pairs: pairs}, nil
}

// dictFromWire is dictToWire's inverse.
func dictFromWire(dict schema.Dictionary) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(dict.Pairs))
	for _, p := range dict.Pairs {
		var v interface{}
		if err := json.Unmarshal([]byte(p.JSONValue), &v); err != nil {
			return nil, fmt.Errorf("series: unmarshal dict value for key %q: %w", p.Key, err)
		}
		out[p.Key] = v
	}
	return out, nil
}
