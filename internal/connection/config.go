// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package connection implements §4.M: the Connection that owns the
// engine pool, the store registry, and the metric/event definition
// lifecycle (database_init/service_init), grounded on the original
// implementation's storage/connection.py.
package connection

import (
	"time"

	"github.com/wuttem/cattledb/pkg/schema"
)

// EngineKind selects which storage-engine backend a Connection opens.
type EngineKind string

const (
	ClusterEngineKind EngineKind = "cluster"
	SQLEngineKind     EngineKind = "sql"
)

// ClusterConfig configures the wide-column backend (internal/clusterengine).
type ClusterConfig struct {
	ProjectID  string `json:"project_id"`
	InstanceID string `json:"instance_id"`
}

// SQLConfig configures the embedded SQL backend (internal/sqlengine).
type SQLConfig struct {
	DataDir  string `json:"data_dir,omitempty"`
	InMemory bool   `json:"in_memory,omitempty"`
}

// Config is a Connection's full configuration, loaded from a JSON file,
// mirroring the teacher's nested Config/Checkpoints loading style. Zero
// values of the tuning fields fall back to the defaults below.
type Config struct {
	Engine      EngineKind `json:"engine"`
	ReadOnly    bool       `json:"read_only,omitempty"`
	TablePrefix string     `json:"table_prefix,omitempty"`

	// MaxThreads caps the engine pool's worker slots (spec's MAX_THREADS).
	MaxThreads int `json:"max_threads,omitempty"`
	// EngineCreateRatePerSecond throttles new pooled-engine creation.
	EngineCreateRatePerSecond float64 `json:"engine_create_rate_per_second,omitempty"`
	// IdleEngineTTLSeconds is how long a worker's pooled engine may sit
	// unused before the idle sweep releases it.
	IdleEngineTTLSeconds int `json:"idle_engine_ttl_seconds,omitempty"`

	Cluster *ClusterConfig `json:"cluster,omitempty"`
	SQL     *SQLConfig     `json:"sql,omitempty"`

	Metrics []schema.MetricDefinition `json:"metrics,omitempty"`
	Events  []schema.EventDefinition  `json:"events,omitempty"`
}

func (c Config) tablePrefix() string {
	if c.TablePrefix == "" {
		return "cdb"
	}
	return c.TablePrefix
}

func (c Config) maxThreads() int {
	if c.MaxThreads <= 0 {
		return 1000
	}
	return c.MaxThreads
}

func (c Config) engineCreateRate() float64 {
	if c.EngineCreateRatePerSecond <= 0 {
		return 10
	}
	return c.EngineCreateRatePerSecond
}

func (c Config) idleEngineTTL() time.Duration {
	if c.IdleEngineTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.IdleEngineTTLSeconds) * time.Second
}
