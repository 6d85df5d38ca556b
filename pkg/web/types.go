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

package web

// ShardInfo is one shard in the cluster list
type ShardInfo struct {
	Name     string `json:"name"`
	Pool     string `json:"pool"`
	Weight   int64  `json:"weight"`
	LessThan int64  `json:"lessThan,omitempty"`
}

// ClusterInfo is one cluster in the cluster list
type ClusterInfo struct {
	Name   string      `json:"name"`
	Shards []ShardInfo `json:"shards"`
}

// RouteResult is the shard selected for a routing key
type RouteResult struct {
	Cluster    string `json:"cluster"`
	RoutingKey int64  `json:"routingKey"`
	Sequence   string `json:"sequence,omitempty"`
	Shard      string `json:"shard"`
	Pool       string `json:"pool"`
}

// ConnectResult is the result of connecting all shard pools
type ConnectResult struct {
	Pools []string `json:"pools"`
}

// ConfigStatus is the config currently in use
type ConfigStatus struct {
	YAML string `json:"yaml"`
	Hash string `json:"hash"`
}

// CreateSequenceRequest is the body of a sequence creation
type CreateSequenceRequest struct {
	// Start is the initial value, ignored if the sequence exists
	Start int64 `json:"start"`
}

// SequenceValue is the current value of a sequence
type SequenceValue struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}
