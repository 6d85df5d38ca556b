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

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_total",
		Help: "test",
	}, []string{"l"})
}

func TestRegisterCounterVec(t *testing.T) {
	r := require.New(t)
	reg := prometheus.NewRegistry()

	first := RegisterCounterVec(reg, newCounter())
	second := RegisterCounterVec(reg, newCounter())
	r.True(first == second)

	second.WithLabelValues("a").Inc()
	r.Equal(float64(1), testutil.ToFloat64(first.WithLabelValues("a")))
}

func TestRegisterCounterVec_NilRegistry(t *testing.T) {
	c := newCounter()
	require.True(t, RegisterCounterVec(nil, c) == c)
}
