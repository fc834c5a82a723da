// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/time/rate"

	"github.com/wuttem/cattledb/internal/engine"
	"github.com/wuttem/cattledb/pkg/log"
)

type workerKeyType struct{}

var workerKey workerKeyType

// WithWorker tags ctx with a worker name: every store call made with
// this ctx shares one pooled engine handle with every other call tagged
// with the same name. Calls with no worker name fall back to "default".
func WithWorker(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerKey, name)
}

func workerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(workerKey).(string); ok && v != "" {
		return v
	}
	return "default"
}

type pooledEngine struct {
	eng      engine.Engine
	lastUsed atomic.Int64
}

func (p *pooledEngine) touch() {
	p.lastUsed.Store(time.Now().Unix())
}

// enginePool hands out one engine.Engine handle per worker name, exactly
// as spec §5 describes: created lazily on first use, throttled against
// creation storms, capped at MaxThreads, and swept when idle past TTL.
// When the backend is not safely shareable across goroutines
// (threading=false) every worker name is folded onto a single shared
// slot instead, matching "shares the single handle" for the SQL backend.
type enginePool struct {
	factory    func() (engine.Engine, error)
	threading  bool
	maxThreads int
	idleTTL    time.Duration
	limiter    *rate.Limiter

	mu      sync.Mutex
	handles map[string]*pooledEngine

	scheduler gocron.Scheduler
}

func newEnginePool(factory func() (engine.Engine, error), threading bool, maxThreads int, createRate float64, idleTTL time.Duration) *enginePool {
	return &enginePool{
		factory:    factory,
		threading:  threading,
		maxThreads: maxThreads,
		idleTTL:    idleTTL,
		limiter:    rate.NewLimiter(rate.Limit(createRate), 1),
		handles:    make(map[string]*pooledEngine),
	}
}

func (p *enginePool) slotName(worker string) string {
	if !p.threading {
		return "shared"
	}
	return worker
}

// acquire returns the pooled engine for worker, creating and connecting
// one if none exists yet.
func (p *enginePool) acquire(ctx context.Context, worker string) (engine.Engine, error) {
	name := p.slotName(worker)

	p.mu.Lock()
	if h, ok := p.handles[name]; ok {
		h.touch()
		p.mu.Unlock()
		return h.eng, nil
	}
	if len(p.handles) >= p.maxThreads {
		p.mu.Unlock()
		return nil, engine.ErrTooManyWorkers
	}
	p.mu.Unlock()

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	eng, err := p.factory()
	if err != nil {
		return nil, err
	}
	if err := eng.Connect(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[name]; ok {
		// Lost the race against a concurrent acquire for the same slot;
		// keep the handle that won and drop the one we just made.
		h.touch()
		_ = eng.Disconnect(ctx)
		return h.eng, nil
	}
	if len(p.handles) >= p.maxThreads {
		_ = eng.Disconnect(ctx)
		return nil, engine.ErrTooManyWorkers
	}
	h := &pooledEngine{eng: eng}
	h.touch()
	p.handles[name] = h
	log.Debugf("connection: opened engine for worker %q (%d active)", name, len(p.handles))
	return eng, nil
}

// startSweep registers a gocron job that disconnects and releases any
// worker slot that has sat idle past idleTTL. This is the Go-native
// stand-in for "guaranteed release when the worker exits" in
// environments (a crashed goroutine, a leaked context) where there is
// no clean exit signal to hook.
func (p *enginePool) startSweep(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	if _, err := s.NewJob(
		gocron.DurationJob(p.idleTTL/2),
		gocron.NewTask(func() { p.sweep(ctx) }),
	); err != nil {
		return err
	}
	p.scheduler = s
	s.Start()
	return nil
}

func (p *enginePool) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-p.idleTTL).Unix()
	p.mu.Lock()
	var stale []*pooledEngine
	for name, h := range p.handles {
		if h.lastUsed.Load() < cutoff {
			stale = append(stale, h)
			delete(p.handles, name)
		}
	}
	p.mu.Unlock()
	for _, h := range stale {
		if err := h.eng.Disconnect(ctx); err != nil {
			log.Warnf("connection: idle engine disconnect failed: %v", err)
		}
	}
}

func (p *enginePool) shutdown(ctx context.Context) error {
	if p.scheduler != nil {
		_ = p.scheduler.Shutdown()
	}
	p.mu.Lock()
	handles := p.handles
	p.handles = make(map[string]*pooledEngine)
	p.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := h.eng.Disconnect(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
