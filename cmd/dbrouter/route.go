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
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tkestack.io/dbrouter/pkg/api"
	"tkestack.io/dbrouter/pkg/web"
)

var routeCfg = struct {
	server   string
	cluster  string
	key      int64
	sequence string
	timeout  time.Duration
}{}

func init() {
	routeCmd.Flags().StringVar(&routeCfg.server, "server", "http://127.0.0.1:9090", "address of a running dbrouter")
	routeCmd.Flags().StringVar(&routeCfg.cluster, "cluster", "", "cluster name")
	routeCmd.Flags().Int64Var(&routeCfg.key, "key", 0, "routing key")
	routeCmd.Flags().StringVar(&routeCfg.sequence, "sequence", "", "read routing key from this sequence instead of --key")
	routeCmd.Flags().DurationVar(&routeCfg.timeout, "timeout", 10*time.Second, "request timeout")
	rootCmd.AddCommand(routeCmd)
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "ask a running dbrouter which shard a routing key goes to",
	RunE: func(cmd *cobra.Command, args []string) error {
		if routeCfg.cluster == "" {
			return errors.New("--cluster is required")
		}

		query := url.Values{}
		if routeCfg.sequence != "" {
			query.Set("sequence", routeCfg.sequence)
		} else {
			query.Set("key", strconv.FormatInt(routeCfg.key, 10))
		}

		ret := &web.RouteResult{}
		cli := api.NewClient(routeCfg.server, routeCfg.timeout)
		if err := cli.Get(context.Background(), "/api/v1/clusters/"+url.PathEscape(routeCfg.cluster)+"/route", query, ret); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cluster %s key %d -> shard %s (pool %s)\n",
			ret.Cluster, ret.RoutingKey, ret.Shard, ret.Pool)
		return nil
	},
}
