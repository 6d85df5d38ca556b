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

package selector

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"tkestack.io/dbrouter/pkg/cluster"
	"tkestack.io/dbrouter/pkg/utils/promutil"
)

// Source draws uniformly distributed random numbers
type Source interface {
	// Int63n return a number in [0,n), n > 0
	Int63n(n int64) int64
}

// WeightedCluster is a cluster that can give weights of its shards for a routing key
type WeightedCluster interface {
	Name() string
	WeightedShards(key int64) []cluster.WeightedShard
}

type lockedSource struct {
	lock sync.Mutex
	rnd  *rand.Rand
}

// NewLockedSource return a Source that is safe for concurrent use
func NewLockedSource(seed int64) Source {
	return &lockedSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Int63n(n int64) int64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.rnd.Int63n(n)
}

// Selector picks one shard of a cluster with probability proportional to shard weight
type Selector struct {
	src        Source
	log        logrus.FieldLogger
	selections *prometheus.CounterVec
	fallbacks  *prometheus.CounterVec
}

// New create a Selector, a time seeded Source is used if src is nil
func New(src Source, promRegistry prometheus.Registerer, log logrus.FieldLogger) *Selector {
	if src == nil {
		src = NewLockedSource(time.Now().UnixNano())
	}

	return &Selector{
		src: src,
		log: log,
		selections: promutil.RegisterCounterVec(promRegistry, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbrouter_selector_selections_total",
			Help: "total count of shard selections",
		}, []string{"cluster", "shard"})),
		fallbacks: promutil.RegisterCounterVec(promRegistry, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dbrouter_selector_fallback_total",
			Help: "total count of selections that fell back to the first shard",
		}, []string{"cluster"})),
	}
}

// SelectShard draw one shard of c for routingKey.
// a single number is drawn in [0,sum of weights) and shards are walked in order subtracting
// their weights, the first shard that makes the number negative is chosen.
// if no shard is chosen, which only happens when all weights are zero, the first shard is returned.
// a WeightOverflowError is returned if the weights do not sum up in int64
func (s *Selector) SelectShard(c WeightedCluster, routingKey int64) (*cluster.Shard, error) {
	weighted := c.WeightedShards(routingKey)
	if len(weighted) == 0 {
		return nil, &cluster.NoShardsAvailableError{Cluster: c.Name(), RoutingKey: routingKey}
	}

	var sum int64
	for _, w := range weighted {
		if w.Weight > math.MaxInt64-sum {
			return nil, &cluster.WeightOverflowError{Cluster: c.Name()}
		}
		sum += w.Weight
	}

	if sum > 0 {
		idx := s.src.Int63n(sum)
		for _, w := range weighted {
			idx -= w.Weight
			if idx < 0 {
				s.selections.WithLabelValues(c.Name(), w.Shard.Name).Inc()
				return w.Shard, nil
			}
		}
	}

	first := weighted[0].Shard
	s.log.WithField("cluster", c.Name()).Warnf("no shard chosen for routing key %d with total weight %d, fall back to %s",
		routingKey, sum, first.Name)
	s.fallbacks.WithLabelValues(c.Name()).Inc()
	s.selections.WithLabelValues(c.Name(), first.Name).Inc()
	return first, nil
}
