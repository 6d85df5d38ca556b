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

import "fmt"

// UnknownClusterError is returned if a cluster name is not in the Registry
type UnknownClusterError struct {
	Cluster string
}

func (e *UnknownClusterError) Error() string {
	return fmt.Sprintf("unknown cluster %q", e.Cluster)
}

// UnknownShardError is returned if a shard name is not in the Cluster
type UnknownShardError struct {
	Cluster string
	Shard   string
}

func (e *UnknownShardError) Error() string {
	return fmt.Sprintf("unknown shard %q in cluster %q", e.Shard, e.Cluster)
}

// NoShardsAvailableError is returned if no shard can be selected from a cluster
type NoShardsAvailableError struct {
	Cluster string
	// RoutingKey is the key the selection was made with
	RoutingKey int64
}

func (e *NoShardsAvailableError) Error() string {
	return fmt.Sprintf("no shard available in cluster %q for routing key %d", e.Cluster, e.RoutingKey)
}

// WeightOverflowError is returned if the total weight of a cluster does not fit in int64
type WeightOverflowError struct {
	Cluster string
}

func (e *WeightOverflowError) Error() string {
	return fmt.Sprintf("total shard weight of cluster %q overflows int64", e.Cluster)
}
