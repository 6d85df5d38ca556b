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

package cluster

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tkestack.io/dbrouter/pkg/pool"
	"tkestack.io/dbrouter/pkg/txn"
)

// Shard is one physical database partition
type Shard struct {
	// Name is unique in its Cluster
	Name string
	// Weight is the static share of new records this shard receives
	Weight int64
	// LessThan is the exclusive upper bound of routing keys this shard accepts, 0 means unbounded
	LessThan int64
	// Pool is the connection pool of this shard
	Pool pool.Pool
}

// Accepts return true if key is in the range of this shard
func (s *Shard) Accepts(key int64) bool {
	return s.LessThan == 0 || key < s.LessThan
}

// WeightedShard is a Shard with the weight it has for one routing key
type WeightedShard struct {
	Shard  *Shard
	Weight int64
}

// TxFunc run body in a transaction nested over the named shards of one cluster,
// all shards are used if shardNames is empty
type TxFunc func(ctx context.Context, shardNames []string, opts pool.TxOptions, body func(ctx context.Context) error) error

// Cluster is an ordered set of shards managed and routed together
type Cluster struct {
	name   string
	shards []*Shard
	index  map[string]*Shard
	runner *txn.Runner
	log    logrus.FieldLogger
}

// New create a Cluster, the order of shards is kept for selection fallback and transaction nesting
func New(name string, shards []*Shard, runner *txn.Runner, log logrus.FieldLogger) (*Cluster, error) {
	if name == "" {
		return nil, errors.New("cluster name is empty")
	}

	if len(shards) == 0 {
		return nil, errors.Errorf("cluster %s has no shard", name)
	}

	if runner == nil {
		return nil, errors.Errorf("cluster %s has no transaction runner", name)
	}

	c := &Cluster{
		name:   name,
		shards: make([]*Shard, 0, len(shards)),
		index:  map[string]*Shard{},
		runner: runner,
		log:    log,
	}

	var total int64
	for i, s := range shards {
		switch {
		case s == nil:
			return nil, errors.Errorf("shard %d of cluster %s is nil", i, name)
		case s.Name == "":
			return nil, errors.Errorf("shard %d of cluster %s has no name", i, name)
		case c.index[s.Name] != nil:
			return nil, errors.Errorf("duplicate shard %s in cluster %s", s.Name, name)
		case s.Weight < 0:
			return nil, errors.Errorf("shard %s of cluster %s has negative weight %d", s.Name, name, s.Weight)
		case s.LessThan < 0:
			return nil, errors.Errorf("shard %s of cluster %s has negative range bound %d", s.Name, name, s.LessThan)
		case s.Pool == nil:
			return nil, errors.Errorf("shard %s of cluster %s has no pool", s.Name, name)
		case s.Weight > math.MaxInt64-total:
			return nil, &WeightOverflowError{Cluster: name}
		}
		total += s.Weight
		c.shards = append(c.shards, s)
		c.index[s.Name] = s
	}

	return c, nil
}

// Name return the name of the cluster
func (c *Cluster) Name() string {
	return c.name
}

// Shards return all shards in insertion order
func (c *Cluster) Shards() []*Shard {
	return append([]*Shard(nil), c.shards...)
}

// Shard return the shard with the given name
func (c *Cluster) Shard(name string) (*Shard, error) {
	s := c.index[name]
	if s == nil {
		return nil, &UnknownShardError{Cluster: c.name, Shard: name}
	}
	return s, nil
}

// Pools return the pools of all shards in insertion order
func (c *Cluster) Pools() []pool.Pool {
	ret := make([]pool.Pool, 0, len(c.shards))
	for _, s := range c.shards {
		ret = append(ret, s.Pool)
	}
	return ret
}

// WeightedShards return the shards that accept key with their weights, in insertion order.
// shards whose range is exhausted by key are left out
func (c *Cluster) WeightedShards(key int64) []WeightedShard {
	ret := make([]WeightedShard, 0, len(c.shards))
	for _, s := range c.shards {
		if s.Accepts(key) {
			ret = append(ret, WeightedShard{Shard: s, Weight: s.Weight})
		}
	}
	return ret
}

// RunGroupedTransaction run body in transactions nested over the named shards in cluster order,
// all shards are used if shardNames is empty.
// an UnknownShardError is returned before any transaction opens if a name is not in this cluster
func (c *Cluster) RunGroupedTransaction(ctx context.Context, shardNames []string, opts pool.TxOptions, body func(ctx context.Context) error) error {
	pools, err := c.resolve(shardNames)
	if err != nil {
		return err
	}

	c.log.Debugf("transaction on %d shards of cluster %s", len(pools), c.name)
	return c.runner.RunNested(ctx, pools, opts, body)
}

func (c *Cluster) resolve(shardNames []string) ([]pool.Pool, error) {
	if len(shardNames) == 0 {
		return c.Pools(), nil
	}

	want := map[string]bool{}
	for _, n := range shardNames {
		if c.index[n] == nil {
			return nil, &UnknownShardError{Cluster: c.name, Shard: n}
		}
		want[n] = true
	}

	ret := make([]pool.Pool, 0, len(want))
	for _, s := range c.shards {
		if want[s.Name] {
			ret = append(ret, s.Pool)
		}
	}
	return ret, nil
}
