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

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"tkestack.io/dbrouter/pkg/cluster"
	"tkestack.io/dbrouter/pkg/config"
	"tkestack.io/dbrouter/pkg/coordinator"
	"tkestack.io/dbrouter/pkg/selector"
	"tkestack.io/dbrouter/pkg/txn"
)

func newLogger(level string) (*logrus.Logger, error) {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "log level")
	}

	lg := logrus.New()
	lg.SetLevel(lv)
	return lg, nil
}

// runtime is everything built from one config file.
// its Registry is installed process wide and the Coordinator resolves it from there
type runtime struct {
	info     *config.Info
	reg      *cluster.Registry
	coord    *coordinator.Coordinator
	closeSeq func() error
}

func newRuntime(ctx context.Context, file string, promRegistry prometheus.Registerer, lg logrus.FieldLogger) (*runtime, error) {
	info, err := config.LoadFile(file)
	if err != nil {
		return nil, err
	}

	runner := txn.NewRunner(promRegistry, lg.WithField("component", "txn"))
	reg, err := config.Build(ctx, info.Config, config.OpenPool, runner, lg.WithField("component", "cluster"))
	if err != nil {
		return nil, err
	}

	seq, closeSeq, err := config.OpenSequence(info.Config)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	lg.Infof("config %s loaded, %d clusters", info.ConfigHash, len(reg.Names()))
	cluster.Install(reg)
	return &runtime{
		info: info,
		reg:  reg,
		coord: coordinator.NewCoordinator(nil,
			runner,
			selector.New(nil, promRegistry, lg.WithField("component", "selector")),
			seq,
			lg.WithField("component", "coordinator")),
		closeSeq: closeSeq,
	}, nil
}

func (r *runtime) Close() error {
	if cur, err := cluster.Installed(); err == nil && cur == r.reg {
		cluster.Install(nil)
	}

	err := r.reg.Close()
	if e := r.closeSeq(); e != nil && err == nil {
		err = e
	}
	return err
}
