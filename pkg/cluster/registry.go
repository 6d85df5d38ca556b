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
	"sync/atomic"

	"github.com/pkg/errors"
	"tkestack.io/dbrouter/pkg/pool"
)

// ErrNotInstalled is returned by Installed if no Registry was installed
var ErrNotInstalled = errors.New("cluster registry is not installed")

// Registry known all clusters, it is read only after created
type Registry struct {
	names    []string
	clusters map[string]*Cluster
	def      pool.Pool
	txFuncs  map[string]TxFunc
}

// NewRegistry create a Registry, clusters are iterated in the given order.
// def is the default unsharded pool, it may be nil
func NewRegistry(def pool.Pool, clusters ...*Cluster) (*Registry, error) {
	r := &Registry{
		names:    make([]string, 0, len(clusters)),
		clusters: map[string]*Cluster{},
		def:      def,
		txFuncs:  map[string]TxFunc{},
	}

	for _, c := range clusters {
		if c == nil {
			return nil, errors.New("nil cluster")
		}
		if r.clusters[c.Name()] != nil {
			return nil, errors.Errorf("duplicate cluster %s", c.Name())
		}
		r.names = append(r.names, c.Name())
		r.clusters[c.Name()] = c
		r.txFuncs[c.Name()] = c.RunGroupedTransaction
	}

	return r, nil
}

// Cluster return the cluster with the given name
func (r *Registry) Cluster(name string) (*Cluster, error) {
	c := r.clusters[name]
	if c == nil {
		return nil, &UnknownClusterError{Cluster: name}
	}
	return c, nil
}

// Clusters return all clusters in registry order
func (r *Registry) Clusters() []*Cluster {
	ret := make([]*Cluster, 0, len(r.names))
	for _, n := range r.names {
		ret = append(ret, r.clusters[n])
	}
	return ret
}

// Names return all cluster names in registry order
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Default return the default unsharded pool, it may be nil
func (r *Registry) Default() pool.Pool {
	return r.def
}

// ShardPools return the pools of every shard of every cluster, cluster by cluster
func (r *Registry) ShardPools() []pool.Pool {
	ret := make([]pool.Pool, 0)
	for _, c := range r.Clusters() {
		ret = append(ret, c.Pools()...)
	}
	return ret
}

// TransactionFunc return the grouped transaction entry of the named cluster
func (r *Registry) TransactionFunc(name string) (TxFunc, error) {
	f := r.txFuncs[name]
	if f == nil {
		return nil, &UnknownClusterError{Cluster: name}
	}
	return f, nil
}

// Close close all pools, the first error is returned
func (r *Registry) Close() error {
	var first error
	pools := r.ShardPools()
	if r.def != nil {
		pools = append(pools, r.def)
	}

	for _, p := range pools {
		if err := p.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close pool %s", p.Name())
		}
	}
	return first
}

var installed atomic.Pointer[Registry]

// Install make r the process wide Registry, a Registry installed before is replaced as a whole
func Install(r *Registry) {
	installed.Store(r)
}

// Installed return the process wide Registry
func Installed() (*Registry, error) {
	r := installed.Load()
	if r == nil {
		return nil, ErrNotInstalled
	}
	return r, nil
}
