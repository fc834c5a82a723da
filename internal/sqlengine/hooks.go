// Copyright (C) CattleDB Authors.
// All rights reserved. Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlengine

import (
	"context"
	"time"

	"github.com/wuttem/cattledb/pkg/log"
)

type ctxKey int

const beginKey ctxKey = 0

// queryHooks satisfies sqlhooks.Hooks, logging every statement this
// engine runs and how long it took.
type queryHooks struct{}

func (queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sqlengine: query %s %q", query, args)
	return context.WithValue(ctx, beginKey, time.Now()), nil
}

func (queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey).(time.Time); ok {
		log.Debugf("sqlengine: took %s", time.Since(begin))
	}
	return ctx, nil
}
