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

// Package pooltest provide instrumented in-memory pools that record every call
// so tests can assert open and close order of nested transactions
package pooltest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tkestack.io/dbrouter/pkg/pool"
)

// Recorder collect events of many pools in call order
type Recorder struct {
	lock   sync.Mutex
	events []string
}

// NewRecorder return an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(kind, pool string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, kind+" "+pool)
}

// Events return recorded events formatted as "<kind> <pool>"
// only events of given kinds are returned if kinds is not empty
func (r *Recorder) Events(kinds ...string) []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	ret := make([]string, 0, len(r.events))
	for _, e := range r.events {
		if len(kinds) == 0 || hasKind(e, kinds) {
			ret = append(ret, e)
		}
	}
	return ret
}

// Reset drop all recorded events
func (r *Recorder) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = nil
}

func hasKind(e string, kinds []string) bool {
	for _, k := range kinds {
		if strings.HasPrefix(e, k+" ") {
			return true
		}
	}
	return false
}

// Pool is a fake pool.Pool, errors can be injected by setting the exported fields
type Pool struct {
	name string
	rec  *Recorder

	// AcquireErr is returned by Acquire if not nil
	AcquireErr error
	// BeginErr is returned by BeginTx if not nil
	BeginErr error
	// CommitErr is returned by Commit if not nil
	CommitErr error
	// RollbackErr is returned by Rollback if not nil
	RollbackErr error
	// SavepointErr is returned by Tx.Begin if not nil
	SavepointErr error

	lock       sync.Mutex
	acquired   int
	released   int
	begun      int
	committed  int
	rolledBack int
	savepoints int
	lastOpts   pool.TxOptions
	rows       []string
}

// NewPool return a Pool that records into rec, a private Recorder is used if rec is nil
func NewPool(name string, rec *Recorder) *Pool {
	if rec == nil {
		rec = NewRecorder()
	}
	return &Pool{name: name, rec: rec}
}

// Name return the name of this pool
func (p *Pool) Name() string {
	return p.name
}

// Acquire return a fake connection
func (p *Pool) Acquire(ctx context.Context) (pool.Conn, error) {
	p.rec.record("acquire", p.name)
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	p.count(&p.acquired)
	return &Conn{p: p}, nil
}

// Close records a close event
func (p *Pool) Close() error {
	p.rec.record("close", p.name)
	return nil
}

// Acquired return the number of connections handed out
func (p *Pool) Acquired() int { return p.get(&p.acquired) }

// Released return the number of connections given back
func (p *Pool) Released() int { return p.get(&p.released) }

// Begun return the number of transactions opened
func (p *Pool) Begun() int { return p.get(&p.begun) }

// Committed return the number of transactions committed successfully
func (p *Pool) Committed() int { return p.get(&p.committed) }

// RolledBack return the number of transactions rolled back
func (p *Pool) RolledBack() int { return p.get(&p.rolledBack) }

// Savepoints return the number of nested transactions opened by Tx.Begin
func (p *Pool) Savepoints() int { return p.get(&p.savepoints) }

// Rows return the rows inserted by transactions that are durably committed
func (p *Pool) Rows() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]string(nil), p.rows...)
}

// LastOptions return the TxOptions of the last BeginTx
func (p *Pool) LastOptions() pool.TxOptions {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.lastOpts
}

// String implements fmt.Stringer
func (p *Pool) String() string {
	return fmt.Sprintf("pooltest.Pool(%s)", p.name)
}

func (p *Pool) count(c *int) {
	p.lock.Lock()
	defer p.lock.Unlock()
	*c++
}

func (p *Pool) get(c *int) int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return *c
}

// Conn is a fake pool.Conn
type Conn struct {
	p *Pool
}

// BeginTx open a fake transaction
func (c *Conn) BeginTx(ctx context.Context, opts pool.TxOptions) (pool.Tx, error) {
	c.p.rec.record("begin", c.p.name)
	if c.p.BeginErr != nil {
		return nil, c.p.BeginErr
	}
	c.p.lock.Lock()
	c.p.begun++
	c.p.lastOpts = opts
	c.p.lock.Unlock()
	return &Tx{p: c.p}, nil
}

// Release records a release event
func (c *Conn) Release() {
	c.p.rec.record("release", c.p.name)
	c.p.count(&c.p.released)
}

// Tx is a fake pool.Tx, rows inserted by Insert become visible in Pool.Rows
// only once the outermost transaction commits
type Tx struct {
	p       *Pool
	parent  *Tx
	pending []string
	done    bool
}

// Pool return the pool this transaction belongs to
func (t *Tx) Pool() *Pool {
	return t.p
}

// Insert add a row to this transaction
func (t *Tx) Insert(row string) {
	t.p.lock.Lock()
	defer t.p.lock.Unlock()
	t.pending = append(t.pending, row)
}

// Begin open a nested transaction, recorded as "savepoint"
func (t *Tx) Begin(ctx context.Context) (pool.Tx, error) {
	t.p.rec.record("savepoint", t.p.name)
	if t.p.SavepointErr != nil {
		return nil, t.p.SavepointErr
	}
	t.p.count(&t.p.savepoints)
	return &Tx{p: t.p, parent: t}, nil
}

// Commit records a commit event, or "release_savepoint" for a nested transaction
func (t *Tx) Commit(ctx context.Context) error {
	if t.parent != nil {
		t.p.rec.record("release_savepoint", t.p.name)
	} else {
		t.p.rec.record("commit", t.p.name)
	}

	t.p.lock.Lock()
	defer t.p.lock.Unlock()
	if t.done {
		return pool.ErrTxDone
	}
	t.done = true
	if t.p.CommitErr != nil {
		return t.p.CommitErr
	}

	if t.parent != nil {
		t.parent.pending = append(t.parent.pending, t.pending...)
	} else {
		t.p.rows = append(t.p.rows, t.pending...)
		t.p.committed++
	}
	t.pending = nil
	return nil
}

// Rollback records a rollback event, or "rollback_to_savepoint" for a nested transaction
func (t *Tx) Rollback(ctx context.Context) error {
	if t.parent != nil {
		t.p.rec.record("rollback_to_savepoint", t.p.name)
	} else {
		t.p.rec.record("rollback", t.p.name)
	}

	t.p.lock.Lock()
	defer t.p.lock.Unlock()
	if t.done {
		return pool.ErrTxDone
	}
	t.done = true
	if t.p.RollbackErr != nil {
		return t.p.RollbackErr
	}

	t.pending = nil
	if t.parent == nil {
		t.p.rolledBack++
	}
	return nil
}
