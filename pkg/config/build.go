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

package config

import (
	"context"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tkestack.io/dbrouter/pkg/cluster"
	"tkestack.io/dbrouter/pkg/pool"
	"tkestack.io/dbrouter/pkg/pool/pgpool"
	"tkestack.io/dbrouter/pkg/pool/sqlpool"
	"tkestack.io/dbrouter/pkg/sequence"
	"tkestack.io/dbrouter/pkg/txn"
)

// DefaultPoolName is the name of the unsharded pool
const DefaultPoolName = "default"

// Opener open a connection pool named name
type Opener func(ctx context.Context, name string, db DatabaseConfig) (pool.Pool, error)

// OpenPool open pgxpool natively and every other driver through database/sql
func OpenPool(ctx context.Context, name string, db DatabaseConfig) (pool.Pool, error) {
	if db.Driver == "pgxpool" {
		return pgpool.Open(ctx, name, db.DSN, pgpool.Options{MaxConns: int32(db.MaxConns)})
	}
	return sqlpool.Open(name, db.Driver, db.DSN, sqlpool.Options{MaxOpenConns: db.MaxConns})
}

// ShardPoolName return the pool name of a shard
func ShardPoolName(clusterName, shardName string) string {
	return clusterName + "/" + shardName
}

// Build open every pool of cfg and create the Registry.
// pools already opened are closed if anything failed
func Build(ctx context.Context, cfg *Config, open Opener, runner *txn.Runner, log logrus.FieldLogger) (reg *cluster.Registry, err error) {
	opened := make([]pool.Pool, 0)
	defer func() {
		if err != nil {
			for _, p := range opened {
				_ = p.Close()
			}
		}
	}()

	def, err := open(ctx, DefaultPoolName, cfg.Default)
	if err != nil {
		return nil, errors.Wrapf(err, "open default pool")
	}
	opened = append(opened, def)

	clusters := make([]*cluster.Cluster, 0, len(cfg.Clusters))
	for _, cc := range cfg.Clusters {
		shards := make([]*cluster.Shard, 0, len(cc.Shards))
		for _, sc := range cc.Shards {
			name := ShardPoolName(cc.Name, sc.Name)
			p, err := open(ctx, name, sc.DatabaseConfig)
			if err != nil {
				return nil, errors.Wrapf(err, "open pool %s", name)
			}
			opened = append(opened, p)

			shards = append(shards, &cluster.Shard{
				Name:     sc.Name,
				Weight:   sc.Weight,
				LessThan: sc.LessThan,
				Pool:     p,
			})
		}

		c, err := cluster.New(cc.Name, shards, runner, log.WithField("cluster", cc.Name))
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}

	return cluster.NewRegistry(def, clusters...)
}

// TxOptions return the default options of coordinated transactions
func (c *Config) TxOptions() (pool.TxOptions, error) {
	opts := pool.DefaultTxOptions()
	l, err := pool.ParseIsolationLevel(c.Isolation)
	if err != nil {
		return opts, err
	}
	opts.Isolation = l
	return opts, nil
}

// OpenSequence return the sequence store of cfg and a function to release it
func OpenSequence(cfg *Config) (sequence.Store, func() error, error) {
	if cfg.Sequence == nil {
		return sequence.NewMemory(), func() error { return nil }, nil
	}

	driver := cfg.Sequence.Driver
	if driver == "pgxpool" {
		driver = "pgx"
	}

	db, err := sqlx.Open(driver, cfg.Sequence.DSN)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open sequence database")
	}
	return sequence.NewSQL(db), db.Close, nil
}
