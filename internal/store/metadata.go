// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/schema"
)

// MetaDataTableName is the table MetaDataStore reads and writes.
const MetaDataTableName = "metadata"

// publicFamily/internalFamily mirror the original implementation's "p:"/
// "i:" column prefixes: callers pick one namespace or the other per call,
// they are never merged.
const (
	publicFamily   = "p"
	internalFamily = "i"
)

func metadataFamily(internal bool) string {
	if internal {
		return internalFamily
	}
	return publicFamily
}

// MetaDataStore implements §4.L: namespaced per-object key/value items,
// one row per (object_name, object_id).
type MetaDataStore struct {
	base
}

// NewMetaDataStore builds a MetaDataStore against provider.
func NewMetaDataStore(provider TableProvider, observer Observer) *MetaDataStore {
	return &MetaDataStore{base: newBase("metadata", MetaDataTableName, provider, observer)}
}

func metadataRowKey(objectName, objectID string) string {
	return objectName + "#" + objectID
}

// PutItems writes each item's Data payload into its (object_name,
// object_id) row under key, in the public or internal namespace selected
// by internal, in one upsert per row.
func (s *MetaDataStore) PutItems(ctx context.Context, items []schema.MetaDataItem, internal bool) error {
	start := time.Now()
	family := metadataFamily(internal)
	byRow := make(map[string]map[string][]byte)
	rowOrder := make([]string, 0)
	for _, item := range items {
		row := metadataRowKey(item.ObjectName, item.ObjectID)
		if byRow[row] == nil {
			byRow[row] = make(map[string][]byte)
			rowOrder = append(rowOrder, row)
		}
		packed, err := msgpack.Marshal(item.Data)
		if err != nil {
			return fmt.Errorf("metadata: marshal payload %s/%s: %w", row, item.Key, err)
		}
		byRow[row][family+":"+item.Key] = packed
	}

	rows := make([]cdbengine.RowUpsert, 0, len(rowOrder))
	for _, row := range rowOrder {
		rows = append(rows, cdbengine.RowUpsert{RowKey: row, Cells: byRow[row]})
	}

	tbl, err := s.table(ctx)
	if err != nil {
		return err
	}
	err = tbl.UpsertRows(ctx, rows)
	s.finish("put_items", start, len(items), rowOrder, err)
	return err
}

// keyWanted reports whether key passes an optional filter: a nil/empty
// keys set means every key is wanted.
func keyWanted(keys []string, key string) bool {
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func decodeMetadataRow(r cdbengine.Row, objectName, objectID string, keys []string) ([]schema.MetaDataItem, error) {
	out := make([]schema.MetaDataItem, 0, len(r.Cells))
	for _, cell := range r.Cells {
		_, key, err := splitColumn(cell.Column)
		if err != nil {
			return nil, err
		}
		if !keyWanted(keys, key) {
			continue
		}
		var data map[string]interface{}
		if err := msgpack.Unmarshal(cell.Value, &data); err != nil {
			return nil, fmt.Errorf("%w: decode metadata item %s/%s: %v", cdbengine.ErrCorruptCell, r.Key, key, err)
		}
		out = append(out, schema.MetaDataItem{
			ObjectName: objectName,
			ObjectID:   objectID,
			Key:        key,
			Data:       data,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// GetMetadata returns every item stored under (objectName, objectID) in
// the public or internal namespace selected by internal, optionally
// restricted to keys.
func (s *MetaDataStore) GetMetadata(ctx context.Context, objectName, objectID string, keys []string, internal bool) ([]schema.MetaDataItem, error) {
	start := time.Now()
	family := metadataFamily(internal)
	row := metadataRowKey(objectName, objectID)
	tbl, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	r, err := tbl.ReadRow(ctx, row, []string{family})
	if err != nil {
		s.finish("get_metadata", start, 0, []string{row}, err)
		return nil, err
	}
	out, err := decodeMetadataRow(r, objectName, objectID, keys)
	s.finish("get_metadata", start, len(out), []string{row}, err)
	return out, err
}

// GetMetadataBulk batches GetMetadata over every objectID, returning a
// map keyed by object id.
func (s *MetaDataStore) GetMetadataBulk(ctx context.Context, objectName string, objectIDs []string, keys []string, internal bool) (map[string][]schema.MetaDataItem, error) {
	start := time.Now()
	family := metadataFamily(internal)
	rowKeys := make([]string, len(objectIDs))
	for i, id := range objectIDs {
		rowKeys[i] = metadataRowKey(objectName, id)
	}

	out := make(map[string][]schema.MetaDataItem, len(objectIDs))
	tbl, err := s.table(ctx)
	if err != nil {
		return nil, err
	}
	err = tbl.RowGenerator(ctx, cdbengine.RowScan{RowKeys: rowKeys, Families: []string{family}}, func(r cdbengine.Row) (bool, error) {
		objectID := strings.TrimPrefix(r.Key, objectName+"#")
		items, err := decodeMetadataRow(r, objectName, objectID, keys)
		if err != nil {
			return false, err
		}
		out[objectID] = items
		return true, nil
	})
	s.finish("get_metadata_bulk", start, len(out), rowKeys, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}
