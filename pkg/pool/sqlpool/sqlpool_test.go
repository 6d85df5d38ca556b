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

package sqlpool

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"tkestack.io/dbrouter/pkg/pool"
	"tkestack.io/dbrouter/pkg/txn"
)

func newTestPool(t *testing.T, dir, name string) *Pool {
	p, err := Open(name, "sqlite3", filepath.Join(dir, name+".db"), Options{MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	_, err = p.DB().Exec(`CREATE TABLE users (id INTEGER NOT NULL PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	return p
}

func countUsers(t *testing.T, p *Pool) int {
	var n int
	require.NoError(t, p.DB().Get(&n, `SELECT COUNT(*) FROM users`))
	return n
}

func insertUser(ctx context.Context, p *Pool, id int, name string) error {
	tx, ok := txn.TxFor(ctx, p)
	if !ok {
		return fmt.Errorf("no transaction on %s", p.Name())
	}

	stx, ok := From(tx)
	if !ok {
		return fmt.Errorf("not a sql transaction")
	}

	_, err := stx.ExecContext(ctx, stx.Rebind(`INSERT INTO users (id, name) VALUES (?, ?)`), id, name)
	return err
}

func TestPool_RunNested(t *testing.T) {
	var cases = []struct {
		name      string
		failAt    string
		wantCount int
	}{
		{name: "all shards commit", wantCount: 1},
		{name: "body failure rolls back every shard", failAt: "body", wantCount: 0},
		{name: "constraint failure on one shard rolls back every shard", failAt: "constraint", wantCount: 0},
	}

	for _, cs := range cases {
		t.Run(cs.name, func(t *testing.T) {
			r := require.New(t)
			dir := t.TempDir()
			a := newTestPool(t, dir, "a")
			b := newTestPool(t, dir, "b")
			_, err := b.DB().Exec(`INSERT INTO users (id, name) VALUES (99, 'existing')`)
			r.NoError(err)

			runner := txn.NewRunner(nil, logrus.New())
			err = runner.RunNested(context.Background(), []pool.Pool{a, b}, pool.DefaultTxOptions(), func(ctx context.Context) error {
				if err := insertUser(ctx, a, 1, "alice"); err != nil {
					return err
				}

				id := 2
				if cs.failAt == "constraint" {
					id = 99
				}
				if err := insertUser(ctx, b, id, "bob"); err != nil {
					return err
				}

				if cs.failAt == "body" {
					return fmt.Errorf("abort")
				}
				return nil
			})

			if cs.failAt == "" {
				r.NoError(err)
			} else {
				r.Error(err)
			}
			r.Equal(cs.wantCount, countUsers(t, a))
			r.Equal(cs.wantCount+1, countUsers(t, b))
		})
	}
}

func TestPool_RunNested_NotJoinable(t *testing.T) {
	var cases = []struct {
		name      string
		innerErr  error
		outerErr  error
		wantCount int
	}{
		{name: "both commit", wantCount: 2},
		{name: "outer rollback undoes the committed inner scope", outerErr: fmt.Errorf("outer"), wantCount: 0},
		{name: "inner rollback keeps the outer work", innerErr: fmt.Errorf("inner"), wantCount: 1},
	}

	for _, cs := range cases {
		t.Run(cs.name, func(t *testing.T) {
			r := require.New(t)
			p := newTestPool(t, t.TempDir(), "a")
			runner := txn.NewRunner(nil, logrus.New())
			inner := pool.TxOptions{Joinable: false}

			err := runner.RunNested(context.Background(), []pool.Pool{p}, pool.DefaultTxOptions(), func(ctx context.Context) error {
				if err := insertUser(ctx, p, 1, "alice"); err != nil {
					return err
				}

				err := runner.RunNested(ctx, []pool.Pool{p}, inner, func(ctx context.Context) error {
					if err := insertUser(ctx, p, 2, "bob"); err != nil {
						return err
					}
					return cs.innerErr
				})
				if cs.innerErr != nil {
					r.True(errors.Is(err, cs.innerErr))
				} else {
					r.NoError(err)
				}
				return cs.outerErr
			})

			r.Equal(cs.outerErr, err)
			r.Equal(cs.wantCount, countUsers(t, p))
		})
	}
}

func TestTx_RollbackAfterCommit(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	p := newTestPool(t, t.TempDir(), "a")

	c, err := p.Acquire(ctx)
	r.NoError(err)
	defer c.Release()

	tx, err := c.BeginTx(ctx, pool.DefaultTxOptions())
	r.NoError(err)
	nested, err := tx.Begin(ctx)
	r.NoError(err)
	r.Equal("dbrouter_sp_1", nested.(*Tx).savepoint)

	r.NoError(nested.Commit(ctx))
	r.Equal(pool.ErrTxDone, nested.Rollback(ctx))
	r.NoError(tx.Commit(ctx))
	r.Equal(pool.ErrTxDone, tx.Rollback(ctx))
}

func TestPool_AcquireFailed(t *testing.T) {
	p, err := Open("broken", "sqlite3", filepath.Join(t.TempDir(), "missing", "dir", "x.db"), Options{})
	require.NoError(t, err)
	defer p.Close()

	runner := txn.NewRunner(nil, logrus.New())
	err = runner.RunNested(context.Background(), []pool.Pool{p}, pool.DefaultTxOptions(), func(ctx context.Context) error {
		return nil
	})

	ce := &txn.ConnectionError{}
	require.True(t, errors.As(err, &ce))
	require.Equal(t, "broken", ce.Pool)
}

func TestIsolation(t *testing.T) {
	require.Equal(t, sql.LevelDefault, isolation(pool.LevelDefault))
	require.Equal(t, sql.LevelReadCommitted, isolation(pool.LevelReadCommitted))
	require.Equal(t, sql.LevelSerializable, isolation(pool.LevelSerializable))
	require.Equal(t, sql.LevelRepeatableRead, isolation(pool.LevelRepeatableRead))
	require.Equal(t, sql.LevelReadUncommitted, isolation(pool.LevelReadUncommitted))
}

func TestFrom(t *testing.T) {
	_, ok := From(nil)
	require.False(t, ok)
}
