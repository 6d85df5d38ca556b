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

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"tkestack.io/dbrouter/pkg/pool"
	"tkestack.io/dbrouter/pkg/utils/promutil"
)

const (
	resultCommitted      = "committed"
	resultRolledBack     = "rolled_back"
	resultJoined         = "joined"
	resultReleased       = "savepoint_released"
	resultAcquireFailed  = "acquire_failed"
	resultBeginFailed    = "begin_failed"
	resultCommitFailed   = "commit_failed"
	resultRollbackFailed = "rollback_failed"
)

// Target is one participant of a nested transaction
type Target struct {
	Pool pool.Pool
	// Conn is an optional connection already acquired from Pool.
	// it is used instead of acquiring a new one and is never released by Runner
	Conn pool.Conn
}

// Runner runs a unit of work inside transactions nested over many pools.
// scopes open in the order pools are given and close in reverse order,
// a scope commits if everything inside it succeeded, otherwise it rolls back
// and the failure is returned to the outer scope unchanged.
// this is nested local transactions, not a two-phase commit: if an outer commit fails
// after inner ones succeeded, the inner work stays committed.
// a pool already open in an outer scope is joined if TxOptions.Joinable,
// otherwise a savepoint is created in the outer transaction so the outer rollback still undoes it
type Runner struct {
	log    logrus.FieldLogger
	scopes *prometheus.CounterVec
}

// NewRunner create a Runner, metrics are registered to promRegistry if it is not nil
func NewRunner(promRegistry prometheus.Registerer, log logrus.FieldLogger) *Runner {
	scopes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dbrouter_txn_scopes_total",
		Help: "total count of transaction scopes by result",
	}, []string{"pool", "result"})

	return &Runner{
		log:    log,
		scopes: promutil.RegisterCounterVec(promRegistry, scopes),
	}
}

// RunNested run body inside transactions opened on every pool in pools
func (r *Runner) RunNested(ctx context.Context, pools []pool.Pool, opts pool.TxOptions, body func(ctx context.Context) error) error {
	targets := make([]Target, 0, len(pools))
	for _, p := range pools {
		targets = append(targets, Target{Pool: p})
	}
	return r.RunAcquired(ctx, targets, opts, body)
}

// RunAcquired is RunNested with targets that may carry a connection acquired in advance
func (r *Runner) RunAcquired(ctx context.Context, targets []Target, opts pool.TxOptions, body func(ctx context.Context) error) error {
	if len(targets) == 0 {
		return ErrNoPools
	}

	if body == nil {
		return errors.New("transaction body is nil")
	}

	for i, t := range targets {
		if t.Pool == nil {
			return errors.Errorf("pool at position %d is nil", i)
		}
	}

	return r.nest(ctx, targets, opts, body)
}

func (r *Runner) nest(ctx context.Context, targets []Target, opts pool.TxOptions, body func(ctx context.Context) error) error {
	t := targets[0]
	name := t.Pool.Name()
	inner := func(ctx context.Context) error {
		if len(targets) == 1 {
			return body(ctx)
		}
		return r.nest(ctx, targets[1:], opts, body)
	}

	parent := current(ctx)
	if outer := parent.find(t.Pool); outer != nil {
		if opts.Joinable {
			r.scopes.WithLabelValues(name, resultJoined).Inc()
			return inner(ctx)
		}
		return r.savepoint(ctx, parent, outer, inner)
	}

	conn := t.Conn
	if conn == nil {
		c, err := t.Pool.Acquire(ctx)
		if err != nil {
			r.scopes.WithLabelValues(name, resultAcquireFailed).Inc()
			return &ConnectionError{Pool: name, Err: err}
		}
		conn = c
		defer conn.Release()
	}

	s := &scope{
		parent: parent,
		pool:   t.Pool,
		depth:  parent.nextDepth(),
		trace:  parent.sharedTrace(),
	}

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		r.scopes.WithLabelValues(name, resultBeginFailed).Inc()
		return &TransactionError{
			Pool:      name,
			Depth:     s.depth,
			Op:        OpBegin,
			Committed: s.trace.snapshot(),
			Err:       err,
		}
	}
	s.tx = tx

	return r.run(withScope(ctx, s), s, inner)
}

// savepoint run inner in a transaction nested in outer, the connection of outer is used
func (r *Runner) savepoint(ctx context.Context, parent, outer *scope, inner func(ctx context.Context) error) error {
	name := outer.pool.Name()
	s := &scope{
		parent: parent,
		pool:   outer.pool,
		depth:  parent.nextDepth(),
		trace:  parent.sharedTrace(),
		nested: true,
	}

	tx, err := outer.tx.Begin(ctx)
	if err != nil {
		r.scopes.WithLabelValues(name, resultBeginFailed).Inc()
		return &TransactionError{
			Pool:      name,
			Depth:     s.depth,
			Op:        OpBegin,
			Committed: s.trace.snapshot(),
			Err:       err,
		}
	}
	s.tx = tx

	return r.run(withScope(ctx, s), s, inner)
}

// run execute inner in scope s, the deferred rollback also covers panics
func (r *Runner) run(ctx context.Context, s *scope, inner func(ctx context.Context) error) error {
	name := s.pool.Name()
	closed := false
	defer func() {
		if !closed {
			r.rollback(ctx, s)
		}
	}()

	if err := inner(ctx); err != nil {
		return err
	}

	if err := s.tx.Commit(ctx); err != nil {
		r.scopes.WithLabelValues(name, resultCommitFailed).Inc()
		te := &TransactionError{
			Pool:      name,
			Depth:     s.depth,
			Op:        OpCommit,
			Committed: s.trace.snapshot(),
			Err:       err,
		}
		if te.PartiallyCommitted() {
			r.log.Errorf("partial commit: %s", te.Error())
		}
		return te
	}
	closed = true

	// a released savepoint is durable only once the outer transaction commits
	if s.nested {
		r.scopes.WithLabelValues(name, resultReleased).Inc()
		return nil
	}
	s.trace.add(name)
	r.scopes.WithLabelValues(name, resultCommitted).Inc()
	return nil
}

func (r *Runner) rollback(ctx context.Context, s *scope) {
	name := s.pool.Name()
	if err := s.tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		if errors.Is(err, pool.ErrTxDone) {
			r.log.WithField("pool", name).WithField("depth", s.depth).Debugf("transaction already closed by the driver")
			return
		}
		r.scopes.WithLabelValues(name, resultRollbackFailed).Inc()
		r.log.WithField("pool", name).WithField("depth", s.depth).Errorf("rollback failed: %s", err.Error())
		return
	}
	r.scopes.WithLabelValues(name, resultRolledBack).Inc()
}
