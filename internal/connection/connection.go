// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connection

import (
	"context"
	"fmt"
	"sync"

	"github.com/wuttem/cattledb/internal/clusterengine"
	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/internal/sqlengine"
	"github.com/wuttem/cattledb/internal/store"
	"github.com/wuttem/cattledb/pkg/schema"
)

// Connection is §4.M: it owns the engine pool, the four domain stores,
// and the merged metric/event definition lists, exactly as the original
// implementation's Connection registers TimeSeriesStore/ActivityStore/
// EventStore/MetaDataStore against itself.
type Connection struct {
	cfg          Config
	pool         *enginePool
	capabilities cdbengine.Capabilities

	mu          sync.RWMutex
	metrics     []schema.MetricDefinition
	events      []schema.EventDefinition
	initialised bool

	// Observer, if set before Open's stores are used, receives every
	// store.Event emitted by any of the four stores below.
	Observer store.Observer

	TimeSeries *store.TimeSeriesStore
	Events     *store.EventStore
	Activity   *store.ActivityStore
	MetaData   *store.MetaDataStore
}

func buildFactory(cfg Config) (factory func() (cdbengine.Engine, error), threading bool, err error) {
	switch cfg.Engine {
	case SQLEngineKind, "":
		sqlCfg := SQLConfig{}
		if cfg.SQL != nil {
			sqlCfg = *cfg.SQL
		}
		readOnly := cfg.ReadOnly
		return func() (cdbengine.Engine, error) {
			return sqlengine.New(sqlengine.Config{
				DataDir:  sqlCfg.DataDir,
				InMemory: sqlCfg.InMemory,
				ReadOnly: readOnly,
			}), nil
		}, false, nil

	case ClusterEngineKind:
		if cfg.Cluster == nil {
			return nil, false, fmt.Errorf("%w: cluster engine config missing", cdbengine.ErrInvalidArgument)
		}
		cc := *cfg.Cluster
		readOnly := cfg.ReadOnly
		return func() (cdbengine.Engine, error) {
			return clusterengine.New(clusterengine.Config{
				ProjectID:  cc.ProjectID,
				InstanceID: cc.InstanceID,
				ReadOnly:   readOnly,
			}), nil
		}, true, nil

	default:
		return nil, false, fmt.Errorf("%w: unknown engine kind %q", cdbengine.ErrInvalidArgument, cfg.Engine)
	}
}

// Open builds a Connection for cfg without touching the backend yet —
// engine handles are created lazily, one per worker, on first use.
func Open(cfg Config) (*Connection, error) {
	factory, threading, err := buildFactory(cfg)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		cfg:          cfg,
		pool:         newEnginePool(factory, threading, cfg.maxThreads(), cfg.engineCreateRate(), cfg.idleEngineTTL()),
		capabilities: cdbengine.Capabilities{Threading: threading},
		metrics:      append([]schema.MetricDefinition(nil), cfg.Metrics...),
		events:       append([]schema.EventDefinition(nil), cfg.Events...),
	}
	if err := c.pool.startSweep(context.Background()); err != nil {
		return nil, err
	}

	observe := func(e store.Event) {
		if c.Observer != nil {
			c.Observer(e)
		}
	}
	c.TimeSeries = store.NewTimeSeriesStore(c, c, observe)
	c.Events = store.NewEventStore(c, c, observe)
	c.Activity = store.NewActivityStore(c, observe)
	c.MetaData = store.NewMetaDataStore(c, observe)
	return c, nil
}

// Close releases every pooled engine handle and stops the idle sweep.
func (c *Connection) Close(ctx context.Context) error {
	return c.pool.shutdown(ctx)
}

// Capabilities reports the backend's concurrency guarantees (spec §4.D).
func (c *Connection) Capabilities() cdbengine.Capabilities {
	return c.capabilities
}

func (c *Connection) tableName(name string) string {
	return c.cfg.tablePrefix() + "_" + name
}

// engineHandle returns the pooled engine.Engine for ctx's worker,
// creating one if this is its first use.
func (c *Connection) engineHandle(ctx context.Context) (cdbengine.Engine, error) {
	return c.pool.acquire(ctx, workerFromContext(ctx))
}

// rawTable resolves name through the table prefix and the calling
// worker's pooled engine handle, bypassing the Initialised check —
// DatabaseInit/ServiceInit need table access before they can set that
// flag themselves.
func (c *Connection) rawTable(ctx context.Context, name string) (cdbengine.Table, error) {
	eng, err := c.engineHandle(ctx)
	if err != nil {
		return nil, err
	}
	return eng.GetTable(ctx, c.tableName(name))
}

// GetTable implements store.TableProvider. Per spec §7, any call before
// DatabaseInit/ServiceInit surfaces ErrNotInitialised.
func (c *Connection) GetTable(ctx context.Context, name string) (cdbengine.Table, error) {
	if !c.Initialised() {
		return nil, cdbengine.ErrNotInitialised
	}
	return c.rawTable(ctx, name)
}

// Metrics implements store.MetricLookup.
func (c *Connection) Metrics() []schema.MetricDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]schema.MetricDefinition(nil), c.metrics...)
}

// Events implements store.EventLookup.
func (c *Connection) Events() []schema.EventDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]schema.EventDefinition(nil), c.events...)
}

// Initialised reports whether DatabaseInit or ServiceInit has run.
func (c *Connection) Initialised() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialised
}
