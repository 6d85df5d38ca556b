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
	"io"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"tkestack.io/dbrouter/pkg/api"
	"tkestack.io/dbrouter/pkg/web"
)

var sequenceCfg = struct {
	server  string
	timeout time.Duration
	start   int64
}{}

func init() {
	sequenceCmd.PersistentFlags().StringVar(&sequenceCfg.server, "server", "http://127.0.0.1:9090", "address of a running dbrouter")
	sequenceCmd.PersistentFlags().DurationVar(&sequenceCfg.timeout, "timeout", 10*time.Second, "request timeout")
	sequenceCreateCmd.Flags().Int64Var(&sequenceCfg.start, "start", 0, "initial value, an existing sequence keeps its value")
	sequenceCmd.AddCommand(sequenceGetCmd, sequenceCreateCmd, sequenceNextCmd)
	rootCmd.AddCommand(sequenceCmd)
}

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "manage the sequences routing keys are read from on a running dbrouter",
}

var sequenceGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "print the current value of a sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ret := &web.SequenceValue{}
		if err := sequenceClient().Get(context.Background(), sequencePath(args[0]), nil, ret); err != nil {
			return err
		}
		return printSequence(cmd.OutOrStdout(), ret)
	},
}

var sequenceCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "define a sequence if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ret := &web.SequenceValue{}
		req := &web.CreateSequenceRequest{Start: sequenceCfg.start}
		if err := sequenceClient().Post(context.Background(), sequencePath(args[0]), req, ret); err != nil {
			return err
		}
		return printSequence(cmd.OutOrStdout(), ret)
	},
}

var sequenceNextCmd = &cobra.Command{
	Use:   "next NAME",
	Short: "increase a sequence by one and print the new value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ret := &web.SequenceValue{}
		if err := sequenceClient().Post(context.Background(), sequencePath(args[0])+"/next", nil, ret); err != nil {
			return err
		}
		return printSequence(cmd.OutOrStdout(), ret)
	},
}

func sequenceClient() *api.Client {
	return api.NewClient(sequenceCfg.server, sequenceCfg.timeout)
}

func sequencePath(name string) string {
	return "/api/v1/sequences/" + url.PathEscape(name)
}

func printSequence(w io.Writer, v *web.SequenceValue) error {
	_, err := fmt.Fprintf(w, "sequence %s = %d\n", v.Name, v.Value)
	return err
}
