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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tkestack.io/dbrouter/pkg/config"
	"tkestack.io/dbrouter/pkg/coordinator"
	"tkestack.io/dbrouter/pkg/web"
)

var serveCfg = struct {
	configFile    string
	webAddress    string
	checkInterval time.Duration
}{}

func init() {
	serveCmd.Flags().StringVar(&serveCfg.configFile, "config.file", "dbrouter.yaml", "config file path")
	serveCmd.Flags().StringVar(&serveCfg.webAddress, "web.address", ":9090", "admin api bind address")
	serveCmd.Flags().DurationVar(&serveCfg.checkInterval, "check.interval", time.Minute, "the interval of connecting all shards, 0 means never")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the admin api of the clusters in config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		lg, err := newLogger(logLevel)
		if err != nil {
			return err
		}

		promRegistry := prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(ctx, serveCfg.configFile, promRegistry, lg)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				lg.Error(err.Error())
			}
		}()

		svc := web.NewService(rt.coord,
			func() *config.Info { return rt.info },
			promRegistry,
			lg.WithField("component", "web"))

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			lg.Infof("api start at %s", serveCfg.webAddress)
			return svc.Run(ctx, serveCfg.webAddress)
		})

		g.Go(func() error {
			return checkLoop(ctx, rt.coord, serveCfg.checkInterval, lg.WithField("component", "checker"))
		})

		return g.Wait()
	},
}

// checkLoop connect all shards every interval until ctx is done, failures are only logged
func checkLoop(ctx context.Context, coord *coordinator.Coordinator, interval time.Duration, lg logrus.FieldLogger) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := coord.ForceConnectAllShards(ctx); err != nil {
			lg.Warnf("shards check failed: %s", err.Error())
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
