// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clusterengine implements §4.E: the wide-column backend over
// Cloud Bigtable, satisfying the same engine.Engine/engine.Table
// contract internal/sqlengine implements for the embedded SQL backend.
package clusterengine

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigtable"

	"github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/log"
)

// Config names the Bigtable instance this Engine connects to. Credentials
// and the BIGTABLE_EMULATOR_HOST override are left to the client
// library's own default resolution, exactly as spec §6 describes.
type Config struct {
	ProjectID  string
	InstanceID string
	ReadOnly   bool
}

// Engine is the cluster backend's engine.Engine. A single Engine is safe
// to share across worker goroutines without contention (Capabilities.Threading
// is true); the connection pool gives each worker name its own handle.
type Engine struct {
	cfg    Config
	client *bigtable.Client
	admin  *bigtable.AdminClient
}

// New builds an Engine for cfg. Call Connect before use.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Connect(ctx context.Context) error {
	client, err := bigtable.NewClient(ctx, e.cfg.ProjectID, e.cfg.InstanceID)
	if err != nil {
		return fmt.Errorf("%w: bigtable client: %v", engine.ErrBackendError, err)
	}
	e.client = client
	if e.cfg.ReadOnly {
		return nil
	}
	admin, err := bigtable.NewAdminClient(ctx, e.cfg.ProjectID, e.cfg.InstanceID)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: bigtable admin client: %v", engine.ErrBackendError, err)
	}
	e.admin = admin
	log.Debugf("clusterengine: connected to %s/%s", e.cfg.ProjectID, e.cfg.InstanceID)
	return nil
}

func (e *Engine) Disconnect(ctx context.Context) error {
	if e.admin != nil {
		_ = e.admin.Close()
		e.admin = nil
	}
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

func (e *Engine) adminOrErr() (*bigtable.AdminClient, error) {
	if e.admin == nil {
		return nil, engine.ErrReadOnly
	}
	return e.admin, nil
}

func (e *Engine) SetupTable(ctx context.Context, name string, sorted bool, silent bool) error {
	admin, err := e.adminOrErr()
	if err != nil {
		return err
	}
	tables, err := admin.Tables(ctx)
	if err != nil {
		return fmt.Errorf("%w: list tables: %v", engine.ErrBackendError, err)
	}
	for _, t := range tables {
		if t == name {
			if silent {
				return nil
			}
			return fmt.Errorf("%w: table %q already exists", engine.ErrInvalidArgument, name)
		}
	}
	if err := admin.CreateTable(ctx, name); err != nil {
		return fmt.Errorf("%w: create table %q: %v", engine.ErrBackendError, name, err)
	}
	return nil
}

func (e *Engine) SetupColumnFamily(ctx context.Context, table string, family engine.ColumnFamily, silent bool) error {
	admin, err := e.adminOrErr()
	if err != nil {
		return err
	}
	info, err := admin.TableInfo(ctx, table)
	if err != nil {
		return fmt.Errorf("%w: table info %q: %v", engine.ErrBackendError, table, err)
	}
	for _, f := range info.Families {
		if f == family.Name {
			if silent {
				return nil
			}
			return fmt.Errorf("%w: family %q already exists on %q", engine.ErrInvalidArgument, family.Name, table)
		}
	}
	if err := admin.CreateColumnFamily(ctx, table, family.Name); err != nil {
		return fmt.Errorf("%w: create family %q on %q: %v", engine.ErrBackendError, family.Name, table, err)
	}
	return nil
}

func (e *Engine) GetTable(ctx context.Context, name string) (engine.Table, error) {
	return &Table{bt: e.client.Open(name), name: name}, nil
}

func (e *Engine) GetAdminTable(ctx context.Context, name string) (engine.Table, error) {
	if e.admin == nil {
		return nil, engine.ErrReadOnly
	}
	return &Table{bt: e.client.Open(name), name: name, admin: e.admin}, nil
}

func (e *Engine) Capabilities() engine.Capabilities {
	return engine.Capabilities{Threading: true}
}
