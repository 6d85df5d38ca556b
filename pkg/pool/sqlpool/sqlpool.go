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

// Package sqlpool adapts a database/sql connection pool, opened through sqlx, to pool.Pool
package sqlpool

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"tkestack.io/dbrouter/pkg/pool"
)

// Options is the pool size settings
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Pool is a pool.Pool over *sqlx.DB
type Pool struct {
	name string
	db   *sqlx.DB
}

// Open open a database/sql pool with a registered driver such as "sqlite3" or "pgx"
func Open(name, driver, dsn string, opts Options) (*Pool, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database for %s", driver, name)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return New(name, db), nil
}

// New wrap db as a Pool named name
func New(name string, db *sqlx.DB) *Pool {
	return &Pool{name: name, db: db}
}

// Name return the name of this pool
func (p *Pool) Name() string {
	return p.name
}

// DB return the underlying database handle
func (p *Pool) DB() *sqlx.DB {
	return p.db
}

// Acquire check out one connection and make sure it is alive
func (p *Pool) Acquire(ctx context.Context) (pool.Conn, error) {
	c, err := p.db.Connx(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.PingContext(ctx); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "ping")
	}
	return &Conn{conn: c}, nil
}

// Close close the database handle
func (p *Pool) Close() error {
	return p.db.Close()
}

// Conn is a pool.Conn over *sqlx.Conn
type Conn struct {
	conn *sqlx.Conn
}

// BeginTx open a transaction on this connection
func (c *Conn) BeginTx(ctx context.Context, opts pool.TxOptions) (pool.Tx, error) {
	tx, err := c.conn.BeginTxx(ctx, &sql.TxOptions{
		Isolation: isolation(opts.Isolation),
		ReadOnly:  opts.ReadOnly,
	})
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Release return the connection to the database/sql pool
func (c *Conn) Release() {
	_ = c.conn.Close()
}

// Tx is a pool.Tx over *sqlx.Tx, a nested Tx shares the *sqlx.Tx of its parent
// and is backed by a named savepoint
type Tx struct {
	tx        *sqlx.Tx
	depth     int
	savepoint string
	done      bool
}

// Sqlx return the underlying transaction for doing queries
func (t *Tx) Sqlx() *sqlx.Tx {
	return t.tx
}

// Begin create a savepoint in this transaction
func (t *Tx) Begin(ctx context.Context) (pool.Tx, error) {
	name := fmt.Sprintf("dbrouter_sp_%d", t.depth+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, errors.Wrapf(err, "create savepoint %s", name)
	}
	return &Tx{tx: t.tx, depth: t.depth + 1, savepoint: name}, nil
}

// Commit commit the transaction, or release the savepoint of a nested one
func (t *Tx) Commit(ctx context.Context) error {
	if t.savepoint == "" {
		return txDone(t.tx.Commit())
	}

	if t.done {
		return pool.ErrTxDone
	}
	t.done = true
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.savepoint)
	return errors.Wrapf(txDone(err), "release savepoint %s", t.savepoint)
}

// Rollback abort the transaction, or roll back to the savepoint of a nested one
func (t *Tx) Rollback(ctx context.Context) error {
	if t.savepoint == "" {
		return txDone(t.tx.Rollback())
	}

	if t.done {
		return pool.ErrTxDone
	}
	t.done = true
	_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+t.savepoint)
	return errors.Wrapf(txDone(err), "rollback to savepoint %s", t.savepoint)
}

func txDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return pool.ErrTxDone
	}
	return err
}

// From return the *sqlx.Tx of tx if it was opened by this package
func From(tx pool.Tx) (*sqlx.Tx, bool) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, false
	}
	return t.tx, true
}

func isolation(l pool.IsolationLevel) sql.IsolationLevel {
	switch l {
	case pool.LevelReadUncommitted:
		return sql.LevelReadUncommitted
	case pool.LevelReadCommitted:
		return sql.LevelReadCommitted
	case pool.LevelRepeatableRead:
		return sql.LevelRepeatableRead
	case pool.LevelSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}
