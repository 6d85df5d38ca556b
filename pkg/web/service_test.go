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

import (
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"tkestack.io/dbrouter/pkg/api"
	"tkestack.io/dbrouter/pkg/cluster"
	"tkestack.io/dbrouter/pkg/config"
	"tkestack.io/dbrouter/pkg/coordinator"
	"tkestack.io/dbrouter/pkg/pool/pooltest"
	"tkestack.io/dbrouter/pkg/selector"
	"tkestack.io/dbrouter/pkg/sequence"
	"tkestack.io/dbrouter/pkg/txn"
)

func newTestService(t *testing.T) (*Service, map[string]*pooltest.Pool) {
	lg := logrus.New()
	promRegistry := prometheus.NewRegistry()
	pools := map[string]*pooltest.Pool{}
	newPool := func(name string) *pooltest.Pool {
		pools[name] = pooltest.NewPool(name, nil)
		return pools[name]
	}

	runner := txn.NewRunner(promRegistry, lg)
	user, err := cluster.New("user", []*cluster.Shard{
		{Name: "u1", Weight: 1, LessThan: 1000, Pool: newPool("user/u1")},
		{Name: "u2", Weight: 3, Pool: newPool("user/u2")},
	}, runner, lg)
	require.NoError(t, err)

	reg, err := cluster.NewRegistry(newPool("default"), user)
	require.NoError(t, err)

	seq := sequence.NewMemory()
	require.NoError(t, seq.Create(context.TODO(), "user_id", 2000))

	coord := coordinator.NewCoordinator(reg, runner, selector.New(selector.NewLockedSource(1), promRegistry, lg), seq, lg)
	info := &config.Info{RawContent: []byte("clusters: []\n"), ConfigHash: "123"}
	return NewService(coord, func() *config.Info { return info }, promRegistry, lg), pools
}

func TestService_Clusters(t *testing.T) {
	s, _ := newTestService(t)
	ret := make([]ClusterInfo, 0)
	r, _, _ := api.TestCall(t, s, "/api/v1/clusters", http.MethodGet, "", &ret)
	r.Equal([]ClusterInfo{
		{
			Name: "user",
			Shards: []ShardInfo{
				{Name: "u1", Pool: "user/u1", Weight: 1, LessThan: 1000},
				{Name: "u2", Pool: "user/u2", Weight: 3},
			},
		},
	}, ret)
}

func TestService_Route(t *testing.T) {
	var cases = []struct {
		name     string
		uri      string
		wantCode int
		want     *RouteResult
	}{
		{
			name:     "by key",
			uri:      "/api/v1/clusters/user/route?key=5000",
			wantCode: 200,
			want:     &RouteResult{Cluster: "user", RoutingKey: 5000, Shard: "u2", Pool: "user/u2"},
		},
		{
			name:     "by sequence",
			uri:      "/api/v1/clusters/user/route?sequence=user_id",
			wantCode: 200,
			want:     &RouteResult{Cluster: "user", RoutingKey: 2000, Sequence: "user_id", Shard: "u2", Pool: "user/u2"},
		},
		{
			name:     "key is not a number",
			uri:      "/api/v1/clusters/user/route?key=abc",
			wantCode: 400,
		},
		{
			name:     "no key",
			uri:      "/api/v1/clusters/user/route",
			wantCode: 400,
		},
		{
			name:     "unknown cluster",
			uri:      "/api/v1/clusters/goods/route?key=1",
			wantCode: 400,
		},
		{
			name:     "unknown sequence",
			uri:      "/api/v1/clusters/user/route?sequence=goods_id",
			wantCode: 400,
		},
	}

	s, _ := newTestService(t)
	for _, cs := range cases {
		t.Run(cs.name, func(t *testing.T) {
			var ret interface{}
			got := &RouteResult{}
			if cs.want != nil {
				ret = got
			}

			r, res, code := api.TestCall(t, s, cs.uri, http.MethodGet, "", ret)
			r.Equal(cs.wantCode, code)
			if cs.want == nil {
				r.Equal(api.StatusError, res.Status)
				r.Equal(api.ErrorBadData, res.ErrorType)
				return
			}
			r.Equal(cs.want, got)
		})
	}
}

func TestService_Connect(t *testing.T) {
	s, pools := newTestService(t)
	ret := &ConnectResult{}
	r, _, _ := api.TestCall(t, s, "/api/v1/connect", http.MethodPost, "", ret)
	r.Equal([]string{"user/u1", "user/u2"}, ret.Pools)
	r.Equal(1, pools["user/u2"].Released())

	pools["user/u2"].AcquireErr = errors.New("refused")
	r, res, code := api.TestCall(t, s, "/api/v1/connect", http.MethodPost, "", nil)
	r.Equal(503, code)
	r.Equal(api.ErrorInternal, res.ErrorType)
	r.Contains(res.Err, "user/u2")
}

func TestService_Sequences(t *testing.T) {
	s, _ := newTestService(t)

	ret := &SequenceValue{}
	r, _, _ := api.TestCall(t, s, "/api/v1/sequences/user_id", http.MethodGet, "", ret)
	r.Equal(&SequenceValue{Name: "user_id", Value: 2000}, ret)

	ret = &SequenceValue{}
	api.TestCall(t, s, "/api/v1/sequences/order_id", http.MethodPost, `{"start":10}`, ret)
	r.Equal(&SequenceValue{Name: "order_id", Value: 10}, ret)

	// an existing sequence keeps its value
	ret = &SequenceValue{}
	api.TestCall(t, s, "/api/v1/sequences/order_id", http.MethodPost, `{"start":99}`, ret)
	r.Equal(int64(10), ret.Value)

	ret = &SequenceValue{}
	api.TestCall(t, s, "/api/v1/sequences/order_id/next", http.MethodPost, "", ret)
	r.Equal(&SequenceValue{Name: "order_id", Value: 11}, ret)

	route := &RouteResult{}
	api.TestCall(t, s, "/api/v1/clusters/user/route?sequence=order_id", http.MethodGet, "", route)
	r.Equal(int64(11), route.RoutingKey)
}

func TestService_Sequences_Failed(t *testing.T) {
	var cases = []struct {
		name     string
		uri      string
		method   string
		data     string
		wantCode int
	}{
		{name: "unknown sequence", uri: "/api/v1/sequences/goods_id", method: http.MethodGet, wantCode: 400},
		{name: "next of unknown sequence", uri: "/api/v1/sequences/goods_id/next", method: http.MethodPost, wantCode: 400},
		{name: "invalid name", uri: "/api/v1/sequences/1goods", method: http.MethodPost, data: `{"start":1}`, wantCode: 400},
		{name: "bad body", uri: "/api/v1/sequences/goods_id", method: http.MethodPost, data: `{"start":"x"}`, wantCode: 400},
	}

	s, _ := newTestService(t)
	for _, cs := range cases {
		t.Run(cs.name, func(t *testing.T) {
			r, res, code := api.TestCall(t, s, cs.uri, cs.method, cs.data, nil)
			r.Equal(cs.wantCode, code)
			r.Equal(api.StatusError, res.Status)
			r.Equal(api.ErrorBadData, res.ErrorType)
		})
	}
}

func TestService_InstalledRegistry(t *testing.T) {
	lg := logrus.New()
	t.Cleanup(func() { cluster.Install(nil) })
	cluster.Install(nil)

	coord := coordinator.NewCoordinator(nil, txn.NewRunner(nil, lg), selector.New(nil, nil, lg), sequence.NewMemory(), lg)
	s := NewService(coord, func() *config.Info { return &config.Info{} }, prometheus.NewRegistry(), lg)

	r, res, code := api.TestCall(t, s, "/api/v1/clusters", http.MethodGet, "", nil)
	r.Equal(503, code)
	r.Contains(res.Err, cluster.ErrNotInstalled.Error())

	p := pooltest.NewPool("order/o1", nil)
	order, err := cluster.New("order", []*cluster.Shard{{Name: "o1", Weight: 1, Pool: p}}, txn.NewRunner(nil, lg), lg)
	r.NoError(err)
	reg, err := cluster.NewRegistry(nil, order)
	r.NoError(err)
	cluster.Install(reg)

	ret := make([]ClusterInfo, 0)
	api.TestCall(t, s, "/api/v1/clusters", http.MethodGet, "", &ret)
	r.Equal([]ClusterInfo{{Name: "order", Shards: []ShardInfo{{Name: "o1", Pool: "order/o1", Weight: 1}}}}, ret)
}

func TestService_ConfigStatus(t *testing.T) {
	s, _ := newTestService(t)
	ret := &ConfigStatus{}
	r, _, _ := api.TestCall(t, s, "/api/v1/status/config", http.MethodGet, "", ret)
	r.Equal(&ConfigStatus{YAML: "clusters: []\n", Hash: "123"}, ret)
}

func TestService_Metrics(t *testing.T) {
	r := require.New(t)
	s, _ := newTestService(t)
	api.TestCall(t, s, "/api/v1/clusters/user/route?key=5000", http.MethodGet, "", &RouteResult{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	r.Equal(200, w.Code)

	body, err := ioutil.ReadAll(w.Body)
	r.NoError(err)
	r.Contains(string(body), `dbrouter_selector_selections_total{cluster="user",shard="u2"} 1`)
}
