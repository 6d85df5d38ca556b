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

package promutil

import "github.com/prometheus/client_golang/prometheus"

// RegisterCounterVec register c to promRegistry and return the collector that is actually registered,
// the existing one is returned if a collector with the same descriptor was registered before
func RegisterCounterVec(promRegistry prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if promRegistry == nil {
		return c
	}

	if err := promRegistry.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if exist, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return exist
			}
		}
	}
	return c
}
