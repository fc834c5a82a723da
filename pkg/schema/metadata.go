// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package schema

// MetaDataItem is a namespaced per-object key/value map.
type MetaDataItem struct {
	ObjectName string                 `msgpack:"object_name"`
	ObjectID   string                 `msgpack:"object_id"`
	Key        string                 `msgpack:"key"`
	Data       map[string]interface{} `msgpack:"data"`
}

// RowUpsert pairs a row key with the cells to write into it.
type RowUpsert struct {
	RowKey string
	Cells  map[string][]byte
}
