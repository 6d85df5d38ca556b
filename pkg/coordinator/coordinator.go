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

package coordinator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tkestack.io/dbrouter/pkg/cluster"
	"tkestack.io/dbrouter/pkg/pool"
	"tkestack.io/dbrouter/pkg/selector"
	"tkestack.io/dbrouter/pkg/sequence"
	"tkestack.io/dbrouter/pkg/txn"
)

// Coordinator runs transactions that span shards and routes new records to shards
type Coordinator struct {
	reg      *cluster.Registry
	runner   *txn.Runner
	selector *selector.Selector
	seq      sequence.Store
	log      logrus.FieldLogger
}

// NewCoordinator create a Coordinator over reg.
// if reg is nil, the Registry installed by cluster.Install is resolved on every call,
// so a reloaded Registry is picked up without a new Coordinator
func NewCoordinator(reg *cluster.Registry,
	runner *txn.Runner,
	sel *selector.Selector,
	seq sequence.Store,
	log logrus.FieldLogger) *Coordinator {
	return &Coordinator{
		reg:      reg,
		runner:   runner,
		selector: sel,
		seq:      seq,
		log:      log,
	}
}

// Registry return the registry this Coordinator works on
func (c *Coordinator) Registry() (*cluster.Registry, error) {
	if c.reg != nil {
		return c.reg, nil
	}
	return cluster.Installed()
}

// Sequences return the sequence store routing keys are read from
func (c *Coordinator) Sequences() sequence.Store {
	return c.seq
}

// ForceConnectAllShards acquire a live connection from every shard pool and give them back,
// the first failure is returned as a txn.ConnectionError
func (c *Coordinator) ForceConnectAllShards(ctx context.Context) error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}

	targets, err := c.acquireAllShards(ctx, reg)
	if err != nil {
		return err
	}
	releaseAll(targets)
	return nil
}

// ForceTransactionAllShards run body in transactions nested over every shard pool of every cluster
// and the default pool last.
// connections of all shard pools are acquired before any transaction opens, so a connection
// failure is returned before any work is done
func (c *Coordinator) ForceTransactionAllShards(ctx context.Context, opts pool.TxOptions, body func(ctx context.Context) error) error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}

	targets, err := c.acquireAllShards(ctx, reg)
	if err != nil {
		return err
	}
	defer releaseAll(targets)

	if def := reg.Default(); def != nil {
		targets = append(targets, txn.Target{Pool: def})
	}

	c.log.Debugf("force transaction on %d pools", len(targets))
	return c.runner.RunAcquired(ctx, targets, opts, body)
}

// AllClusterTransaction run body in grouped transactions of every cluster nested in registry order
func (c *Coordinator) AllClusterTransaction(ctx context.Context, opts pool.TxOptions, body func(ctx context.Context) error) error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}

	clusters := reg.Clusters()
	if len(clusters) == 0 {
		return txn.ErrNoPools
	}
	return c.clusterTransaction(ctx, clusters, opts, body)
}

func (c *Coordinator) clusterTransaction(ctx context.Context, clusters []*cluster.Cluster, opts pool.TxOptions, body func(ctx context.Context) error) error {
	cur := clusters[0]
	return cur.RunGroupedTransaction(ctx, nil, opts, func(ctx context.Context) error {
		if len(clusters) == 1 {
			return body(ctx)
		}
		return c.clusterTransaction(ctx, clusters[1:], opts, body)
	})
}

// ClusterTransaction run body in a grouped transaction of the named cluster,
// all shards of the cluster are used if shardNames is empty
func (c *Coordinator) ClusterTransaction(ctx context.Context, clusterName string, shardNames []string, opts pool.TxOptions, body func(ctx context.Context) error) error {
	reg, err := c.Registry()
	if err != nil {
		return err
	}

	f, err := reg.TransactionFunc(clusterName)
	if err != nil {
		return err
	}
	return f(ctx, shardNames, opts, body)
}

// Route select the shard of the named cluster for routing key
func (c *Coordinator) Route(ctx context.Context, clusterName string, key int64) (*cluster.Shard, error) {
	cl, err := c.lookup(clusterName)
	if err != nil {
		return nil, err
	}
	return c.selector.SelectShard(cl, key)
}

// RouteBySequence select the shard of the named cluster using the current value of a sequence as routing key
func (c *Coordinator) RouteBySequence(ctx context.Context, clusterName, sequenceName string) (*cluster.Shard, int64, error) {
	cl, err := c.lookup(clusterName)
	if err != nil {
		return nil, 0, err
	}

	key, err := c.seq.CurrentSequenceValue(ctx, sequenceName)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "get routing key of cluster %s", clusterName)
	}

	s, err := c.selector.SelectShard(cl, key)
	return s, key, err
}

// WeightedRandomShard choose a shard for a new record of the named cluster and call fn with it
func (c *Coordinator) WeightedRandomShard(ctx context.Context, clusterName, sequenceName string, fn func(ctx context.Context, s *cluster.Shard) error) error {
	s, key, err := c.RouteBySequence(ctx, clusterName, sequenceName)
	if err != nil {
		return err
	}

	c.log.Debugf("routing key %d of cluster %s goes to %s", key, clusterName, s.Name)
	return fn(ctx, s)
}

func (c *Coordinator) lookup(name string) (*cluster.Cluster, error) {
	reg, err := c.Registry()
	if err != nil {
		return nil, err
	}
	return reg.Cluster(name)
}

func (c *Coordinator) acquireAllShards(ctx context.Context, reg *cluster.Registry) ([]txn.Target, error) {
	pools := reg.ShardPools()
	targets := make([]txn.Target, 0, len(pools)+1)
	for _, p := range pools {
		conn, err := p.Acquire(ctx)
		if err != nil {
			releaseAll(targets)
			c.log.Errorf("connect to %s failed: %s", p.Name(), err.Error())
			return nil, &txn.ConnectionError{Pool: p.Name(), Err: err}
		}
		targets = append(targets, txn.Target{Pool: p, Conn: conn})
	}
	return targets, nil
}

func releaseAll(targets []txn.Target) {
	for _, t := range targets {
		if t.Conn != nil {
			t.Conn.Release()
		}
	}
}
