/*
 * Tencent is pleased to support the open source community by making TKEStack available.
 *
 * Copyright (C) 2012-2019 Tencent. All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you may not use
 * this file except in compliance with the License. You may obtain a copy of the
 * License at
 *
 * https://opensource.org/licenses/Apache-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
 * WARRANTIES OF ANY KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations under the License.
 */

package txn

import (
	"context"
	"sync"

	"tkestack.io/dbrouter/pkg/pool"
)

type scopeKey struct{}

// scope is one open transaction, scopes of one call form a chain from inner to outer
type scope struct {
	parent *scope
	pool   pool.Pool
	tx     pool.Tx
	depth  int
	trace  *trace
	// nested is set for a savepoint inside the transaction of an outer scope on the same pool
	nested bool
}

// trace is shared by all scopes of one top-level call
type trace struct {
	lock      sync.Mutex
	committed []string
}

func (t *trace) add(name string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.committed = append(t.committed, name)
}

func (t *trace) snapshot() []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	if len(t.committed) == 0 {
		return nil
	}
	return append([]string(nil), t.committed...)
}

func current(ctx context.Context) *scope {
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

func withScope(ctx context.Context, s *scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

func (s *scope) find(p pool.Pool) *scope {
	for c := s; c != nil; c = c.parent {
		if c.pool == p {
			return c
		}
	}
	return nil
}

func (s *scope) nextDepth() int {
	if s == nil {
		return 1
	}
	return s.depth + 1
}

func (s *scope) sharedTrace() *trace {
	if s == nil {
		return &trace{}
	}
	return s.trace
}

// TxFor return the innermost open transaction of p carried by ctx
func TxFor(ctx context.Context, p pool.Pool) (pool.Tx, bool) {
	s := current(ctx).find(p)
	if s == nil {
		return nil, false
	}
	return s.tx, true
}

// Depth return the number of transaction scopes currently open in ctx
func Depth(ctx context.Context) int {
	s := current(ctx)
	if s == nil {
		return 0
	}
	return s.depth
}
