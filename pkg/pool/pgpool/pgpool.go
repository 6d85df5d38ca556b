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

// Package pgpool adapts a native PostgreSQL pgxpool.Pool to pool.Pool
package pgpool

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"tkestack.io/dbrouter/pkg/pool"
)

// Options is the pool size settings
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Pool is a pool.Pool over *pgxpool.Pool
type Pool struct {
	name string
	pool *pgxpool.Pool
}

// ParseConfig build a pgxpool config from a database URL and Options
func ParseConfig(dsn string, opts Options) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "parse database URL")
	}

	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		config.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	return config, nil
}

// Open create a pgxpool for dsn, connections are established lazily
func Open(ctx context.Context, name, dsn string, opts Options) (*Pool, error) {
	config, err := ParseConfig(dsn, opts)
	if err != nil {
		return nil, err
	}

	p, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrapf(err, "create connection pool for %s", name)
	}
	return New(name, p), nil
}

// New wrap p as a Pool named name
func New(name string, p *pgxpool.Pool) *Pool {
	return &Pool{name: name, pool: p}
}

// Name return the name of this pool
func (p *Pool) Name() string {
	return p.name
}

// Pgx return the underlying pgxpool
func (p *Pool) Pgx() *pgxpool.Pool {
	return p.pool
}

// Acquire check out one connection and make sure it is alive
func (p *Pool) Acquire(ctx context.Context) (pool.Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.Ping(ctx); err != nil {
		c.Release()
		return nil, errors.Wrapf(err, "ping")
	}
	return &Conn{conn: c}, nil
}

// Close close all connections
func (p *Pool) Close() error {
	p.pool.Close()
	return nil
}

// Conn is a pool.Conn over *pgxpool.Conn
type Conn struct {
	conn *pgxpool.Conn
}

// BeginTx open a transaction on this connection
func (c *Conn) BeginTx(ctx context.Context, opts pool.TxOptions) (pool.Tx, error) {
	tx, err := c.conn.BeginTx(ctx, txOptions(opts))
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Release return the connection to pgxpool
func (c *Conn) Release() {
	c.conn.Release()
}

// Tx is a pool.Tx over pgx.Tx
type Tx struct {
	tx pgx.Tx
}

// Pgx return the underlying transaction for doing queries
func (t *Tx) Pgx() pgx.Tx {
	return t.tx
}

// Begin open a pgx pseudo nested transaction backed by a savepoint
func (t *Tx) Begin(ctx context.Context) (pool.Tx, error) {
	nested, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "create savepoint")
	}
	return &Tx{tx: nested}, nil
}

// Commit commit the transaction, or release the savepoint of a nested one
func (t *Tx) Commit(ctx context.Context) error {
	return txDone(t.tx.Commit(ctx))
}

// Rollback abort the transaction, or roll back to the savepoint of a nested one
func (t *Tx) Rollback(ctx context.Context) error {
	return txDone(t.tx.Rollback(ctx))
}

func txDone(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return pool.ErrTxDone
	}
	return err
}

// From return the pgx.Tx of tx if it was opened by this package
func From(tx pool.Tx) (pgx.Tx, bool) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, false
	}
	return t.tx, true
}

func txOptions(opts pool.TxOptions) pgx.TxOptions {
	ret := pgx.TxOptions{}
	switch opts.Isolation {
	case pool.LevelReadUncommitted:
		ret.IsoLevel = pgx.ReadUncommitted
	case pool.LevelReadCommitted:
		ret.IsoLevel = pgx.ReadCommitted
	case pool.LevelRepeatableRead:
		ret.IsoLevel = pgx.RepeatableRead
	case pool.LevelSerializable:
		ret.IsoLevel = pgx.Serializable
	}

	if opts.ReadOnly {
		ret.AccessMode = pgx.ReadOnly
	}
	return ret
}
