// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/log"
	"github.com/wuttem/cattledb/pkg/schema"
)

const configTableName = "config"
const configFamily = "c"
const configRowKey = "config"

const (
	configKeyMetrics      = "metrics"
	configKeyEvents       = "events"
	configKeyDatabaseInit = "database_init"
	configKeyLastChange   = "last_change"
)

// tableFamilies lists every table and the column families DatabaseInit
// must create on it, besides the per-metric families on timeseries.
// _meta and _v are reserved bookkeeping families named in spec's table
// schema; no operation in this module writes to them yet.
var tableFamilies = map[string][]string{
	"timeseries":   {"_meta", "_v"},
	"events":       {"e"},
	"activity":     {"c"},
	"metadata":     {"p", "i"},
	configTableName: {configFamily},
}

func splitConfigColumn(column string) (family, key string, err error) {
	i := strings.IndexByte(column, ':')
	if i < 0 {
		return "", "", fmt.Errorf("%w: config column %q missing family separator", cdbengine.ErrCorruptCell, column)
	}
	return column[:i], column[i+1:], nil
}

func (c *Connection) configTable(ctx context.Context) (cdbengine.Table, error) {
	return c.rawTable(ctx, configTableName)
}

func (c *Connection) configGet(ctx context.Context, key string) ([]byte, bool, error) {
	tbl, err := c.configTable(ctx)
	if err != nil {
		return nil, false, err
	}
	row, err := tbl.ReadRow(ctx, configRowKey, []string{configFamily})
	if err != nil {
		if errors.Is(err, cdbengine.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	for _, cell := range row.Cells {
		_, k, err := splitConfigColumn(cell.Column)
		if err != nil {
			return nil, false, err
		}
		if k == key {
			return cell.Value, true, nil
		}
	}
	return nil, false, nil
}

func (c *Connection) configSet(ctx context.Context, values map[string][]byte) error {
	tbl, err := c.configTable(ctx)
	if err != nil {
		return err
	}
	cells := make(map[string][]byte, len(values))
	for key, value := range values {
		cells[configFamily+":"+key] = value
	}
	return tbl.UpsertRows(ctx, []cdbengine.RowUpsert{{RowKey: configRowKey, Cells: cells}})
}

// persistDefinitions re-serialises the current metric/event lists to the
// config table and bumps last_change.
func (c *Connection) persistDefinitions(ctx context.Context) error {
	c.mu.RLock()
	metrics := append([]schema.MetricDefinition(nil), c.metrics...)
	events := append([]schema.EventDefinition(nil), c.events...)
	c.mu.RUnlock()

	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return err
	}
	lastChange, err := json.Marshal(time.Now().Unix())
	if err != nil {
		return err
	}
	return c.configSet(ctx, map[string][]byte{
		configKeyMetrics:    metricsJSON,
		configKeyEvents:     eventsJSON,
		configKeyLastChange: lastChange,
	})
}

// AddDefinitions merges metrics/events into the Connection's lists
// (replacing an existing entry sharing the same id/name), persists the
// merged lists, and bumps last_change.
func (c *Connection) AddDefinitions(ctx context.Context, metrics []schema.MetricDefinition, events []schema.EventDefinition) error {
	if c.cfg.ReadOnly {
		return cdbengine.ErrReadOnly
	}
	c.mu.Lock()
	c.metrics = schema.MergeMetricDefinitions(c.metrics, metrics)
	c.events = schema.MergeEventDefinitions(c.events, events)
	c.mu.Unlock()
	return c.persistDefinitions(ctx)
}

// DatabaseInit creates every table and column family, persists the
// merged metric/event definitions and a database_init marker, and marks
// the Connection initialised. A second call fails once database_init is
// already present unless silent is true, mirroring the idempotent-when-
// silent contract every SetupTable/SetupColumnFamily call already has.
func (c *Connection) DatabaseInit(ctx context.Context, silent bool) error {
	if c.cfg.ReadOnly {
		return cdbengine.ErrReadOnly
	}
	_, present, err := c.configGet(ctx, configKeyDatabaseInit)
	if err != nil {
		return err
	}
	if present && !silent {
		return fmt.Errorf("%w: database already initialised", cdbengine.ErrInvalidArgument)
	}

	eng, err := c.engineHandle(ctx)
	if err != nil {
		return err
	}

	for _, t := range []string{"timeseries", "events", "activity", "metadata", configTableName} {
		if err := eng.SetupTable(ctx, c.tableName(t), true, true); err != nil {
			return fmt.Errorf("setup table %s: %w", t, err)
		}
	}

	c.mu.RLock()
	metrics := append([]schema.MetricDefinition(nil), c.metrics...)
	c.mu.RUnlock()
	for _, m := range metrics {
		if err := eng.SetupColumnFamily(ctx, c.tableName("timeseries"), cdbengine.ColumnFamily{Name: m.ID}, true); err != nil {
			return fmt.Errorf("setup family %s on timeseries: %w", m.ID, err)
		}
	}
	for table, families := range tableFamilies {
		for _, family := range families {
			if err := eng.SetupColumnFamily(ctx, c.tableName(table), cdbengine.ColumnFamily{Name: family}, true); err != nil {
				return fmt.Errorf("setup family %s on %s: %w", family, table, err)
			}
		}
	}

	if err := c.persistDefinitions(ctx); err != nil {
		return err
	}
	initMarker, err := json.Marshal(map[string]int64{"ts": time.Now().Unix()})
	if err != nil {
		return err
	}
	if err := c.configSet(ctx, map[string][]byte{configKeyDatabaseInit: initMarker}); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialised = true
	c.mu.Unlock()
	log.Infof("connection: database initialised (prefix %q)", c.cfg.tablePrefix())
	return nil
}

// ServiceInit reads the persisted metric/event definitions back, merges
// them under anything already configured in-process, and marks the
// Connection initialised without touching table/family state — the path
// a read-only worker takes.
func (c *Connection) ServiceInit(ctx context.Context) error {
	persistedMetrics, err := c.readMetricsConfig(ctx)
	if err != nil {
		return err
	}
	persistedEvents, err := c.readEventsConfig(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.metrics = schema.MergeMetricDefinitions(persistedMetrics, c.metrics)
	c.events = schema.MergeEventDefinitions(persistedEvents, c.events)
	c.initialised = true
	c.mu.Unlock()
	log.Infof("connection: service initialised (prefix %q)", c.cfg.tablePrefix())
	return nil
}

func (c *Connection) readMetricsConfig(ctx context.Context) ([]schema.MetricDefinition, error) {
	raw, present, err := c.configGet(ctx, configKeyMetrics)
	if err != nil || !present {
		return nil, err
	}
	var metrics []schema.MetricDefinition
	if err := json.Unmarshal(raw, &metrics); err != nil {
		return nil, fmt.Errorf("%w: decode metrics config: %v", cdbengine.ErrCorruptCell, err)
	}
	return metrics, nil
}

func (c *Connection) readEventsConfig(ctx context.Context) ([]schema.EventDefinition, error) {
	raw, present, err := c.configGet(ctx, configKeyEvents)
	if err != nil || !present {
		return nil, err
	}
	var events []schema.EventDefinition
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: decode events config: %v", cdbengine.ErrCorruptCell, err)
	}
	return events, nil
}
