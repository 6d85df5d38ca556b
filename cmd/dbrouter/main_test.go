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

package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"tkestack.io/dbrouter/pkg/api"
	"tkestack.io/dbrouter/pkg/cluster"
	"tkestack.io/dbrouter/pkg/config"
	"tkestack.io/dbrouter/pkg/utils/test"
	"tkestack.io/dbrouter/pkg/web"
)

func writeTestConfig(t *testing.T) string {
	dir := t.TempDir()
	db := func(name string) config.DatabaseConfig {
		return config.DatabaseConfig{Driver: "sqlite3", DSN: filepath.Join(dir, name+".db")}
	}

	seq := db("sequence")
	cfg := &config.Config{
		Default:  db("default"),
		Sequence: &seq,
		Clusters: []config.ClusterConfig{
			{
				Name: "user",
				Shards: []config.ShardConfig{
					{DatabaseConfig: db("user_1"), Name: "user_1", Weight: 1, LessThan: 1000},
					{DatabaseConfig: db("user_2"), Name: "user_2", Weight: 1},
				},
			},
		},
	}
	return test.WriteFile(t, "dbrouter.yaml", test.MustYAMLV2(cfg))
}

func TestNewLogger(t *testing.T) {
	lg, err := newLogger("debug")
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, lg.GetLevel())

	_, err = newLogger("loud")
	require.Error(t, err)
}

func TestNewRuntime(t *testing.T) {
	r := require.New(t)
	rt, err := newRuntime(context.TODO(), writeTestConfig(t), nil, logrus.New())
	r.NoError(err)
	r.Equal([]string{"user"}, rt.reg.Names())
	r.Len(rt.reg.ShardPools(), 2)
	r.NotEmpty(rt.info.ConfigHash)

	reg, err := rt.coord.Registry()
	r.NoError(err)
	r.Same(rt.reg, reg)
	installed, err := cluster.Installed()
	r.NoError(err)
	r.Same(rt.reg, installed)

	r.NoError(rt.Close())
	_, err = cluster.Installed()
	r.Equal(cluster.ErrNotInstalled, err)

	_, err = newRuntime(context.TODO(), filepath.Join(t.TempDir(), "missing.yaml"), nil, logrus.New())
	r.Error(err)
}

func TestCheckCmd(t *testing.T) {
	r := require.New(t)
	checkCfg.configFile = writeTestConfig(t)
	checkCfg.transaction = true
	defer func() { checkCfg.transaction = false }()

	out := bytes.NewBuffer(nil)
	checkCmd.SetOut(out)
	r.NoError(checkCmd.RunE(checkCmd, nil))
	r.Equal("2 shard pools of 1 clusters are reachable\n", out.String())
}

func TestRouteCmd(t *testing.T) {
	r := require.New(t)
	rt, err := newRuntime(context.TODO(), writeTestConfig(t), nil, logrus.New())
	r.NoError(err)
	defer func() { _ = rt.Close() }()

	svc := web.NewService(rt.coord, func() *config.Info { return rt.info }, prometheus.NewRegistry(), logrus.New())
	ts := httptest.NewServer(svc)
	defer ts.Close()

	routeCfg.server = ts.URL
	routeCfg.cluster = "user"
	routeCfg.key = 5000
	routeCfg.timeout = time.Second

	out := bytes.NewBuffer(nil)
	routeCmd.SetOut(out)
	r.NoError(routeCmd.RunE(routeCmd, nil))
	r.Equal("cluster user key 5000 -> shard user_2 (pool user/user_2)\n", out.String())

	routeCfg.cluster = "goods"
	r.Error(routeCmd.RunE(routeCmd, nil))

	routeCfg.cluster = ""
	r.Error(routeCmd.RunE(routeCmd, nil))
}

func TestSequenceCmd(t *testing.T) {
	r := require.New(t)
	rt, err := newRuntime(context.TODO(), writeTestConfig(t), nil, logrus.New())
	r.NoError(err)
	defer func() { _ = rt.Close() }()

	svc := web.NewService(rt.coord, func() *config.Info { return rt.info }, prometheus.NewRegistry(), logrus.New())
	ts := httptest.NewServer(svc)
	defer ts.Close()

	sequenceCfg.server = ts.URL
	sequenceCfg.timeout = time.Second
	sequenceCfg.start = 998
	defer func() { sequenceCfg.start = 0 }()

	run := func(cmd *cobra.Command, name string) string {
		out := bytes.NewBuffer(nil)
		cmd.SetOut(out)
		r.NoError(cmd.RunE(cmd, []string{name}))
		return out.String()
	}

	r.Equal("sequence user_id = 998\n", run(sequenceCreateCmd, "user_id"))
	r.Equal("sequence user_id = 999\n", run(sequenceNextCmd, "user_id"))
	r.Equal("sequence user_id = 999\n", run(sequenceGetCmd, "user_id"))

	// user_1 only accepts keys less than 1000
	r.Equal("sequence user_id = 1000\n", run(sequenceNextCmd, "user_id"))
	routeCfg.server = ts.URL
	routeCfg.cluster = "user"
	routeCfg.sequence = "user_id"
	routeCfg.timeout = time.Second
	defer func() { routeCfg.sequence = "" }()
	out := bytes.NewBuffer(nil)
	routeCmd.SetOut(out)
	r.NoError(routeCmd.RunE(routeCmd, nil))
	r.Equal("cluster user key 1000 -> shard user_2 (pool user/user_2)\n", out.String())

	err = sequenceCreateCmd.RunE(sequenceCreateCmd, []string{"goods id"})
	apiErr := &api.Error{}
	r.True(errors.As(err, &apiErr))
	r.Equal(400, apiErr.StatusCode)
	r.Equal(api.ErrorBadData, apiErr.Type)
}
