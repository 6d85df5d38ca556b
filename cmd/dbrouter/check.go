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

	"github.com/spf13/cobra"
)

var checkCfg = struct {
	configFile  string
	transaction bool
}{}

func init() {
	checkCmd.Flags().StringVar(&checkCfg.configFile, "config.file", "dbrouter.yaml", "config file path")
	checkCmd.Flags().BoolVar(&checkCfg.transaction, "transaction", false, "also open and commit an empty transaction on every shard and the default pool")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check that every shard in config file is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		lg, err := newLogger(logLevel)
		if err != nil {
			return err
		}

		ctx := context.Background()
		rt, err := newRuntime(ctx, checkCfg.configFile, nil, lg)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		if err := rt.coord.ForceConnectAllShards(ctx); err != nil {
			return err
		}

		if checkCfg.transaction {
			opts, err := rt.info.Config.TxOptions()
			if err != nil {
				return err
			}
			if err := rt.coord.ForceTransactionAllShards(ctx, opts, func(ctx context.Context) error {
				return nil
			}); err != nil {
				return err
			}
		}

		reg, err := rt.coord.Registry()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d shard pools of %d clusters are reachable\n",
			len(reg.ShardPools()), len(reg.Names()))
		return nil
	},
}
