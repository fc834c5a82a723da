// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store implements the four domain stores (TimeSeries, Event,
// Activity, MetaData) on top of the engine.Engine/engine.Table
// contract, grounded on the original implementation's storage/stores.py.
package store

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	cdbengine "github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/log"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cattledb_store_operations_total",
		Help: "Number of store operations, by store and method.",
	}, []string{"store", "method"})

	opsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "cattledb_store_operation_duration_seconds",
		Help: "Store operation latency, by store and method.",
	}, []string{"store", "method"})

	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cattledb_store_rows_total",
		Help: "Number of rows touched by store operations, by store and method.",
	}, []string{"store", "method"})
)

// Event is one completed store operation, handed to every Observer
// registered on a Connection — the Go rendition of the original
// implementation's blinker signal payload ({count, row_keys, timer,
// method}).
type Event struct {
	Store   string
	Method  string
	Count   int
	RowKeys []string
	Elapsed time.Duration
}

// Observer receives every Event a store emits.
type Observer func(Event)

// TableProvider hands back a Table handle for a table name, pulling one
// off the connection's engine pool. *connection.Connection implements
// this.
type TableProvider interface {
	GetTable(ctx context.Context, name string) (cdbengine.Table, error)
}

// base carries the bookkeeping every store needs: which table it reads
// and writes, how to get a handle to it, and where to report finished
// operations.
type base struct {
	name      string
	tableName string
	provider  TableProvider
	observer  Observer
}

func newBase(name, tableName string, provider TableProvider, observer Observer) base {
	return base{name: name, tableName: tableName, provider: provider, observer: observer}
}

func (b *base) table(ctx context.Context) (cdbengine.Table, error) {
	return b.provider.GetTable(ctx, b.tableName)
}

// finish records one completed operation: elapsed time, row count, and
// the observer/metrics side effects. Call via `defer` right after
// starting the timer, or inline at the end of a method.
func (b *base) finish(method string, start time.Time, count int, rowKeys []string, err error) {
	elapsed := time.Since(start)
	opsTotal.WithLabelValues(b.name, method).Inc()
	opsDuration.WithLabelValues(b.name, method).Observe(elapsed.Seconds())
	rowsTotal.WithLabelValues(b.name, method).Add(float64(count))
	log.Debugf("%s.%s: %d rows in %s (err=%v)", b.name, method, count, elapsed, err)
	if b.observer != nil {
		b.observer(Event{Store: b.name, Method: method, Count: count, RowKeys: rowKeys, Elapsed: elapsed})
	}
}
