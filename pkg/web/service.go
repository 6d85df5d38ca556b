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
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tkestack.io/dbrouter/pkg/api"
	"tkestack.io/dbrouter/pkg/cluster"
	"tkestack.io/dbrouter/pkg/config"
	"tkestack.io/dbrouter/pkg/coordinator"
	"tkestack.io/dbrouter/pkg/sequence"
)

// Service is the admin api server
type Service struct {
	// gin.Engine is the gin engine for handle http request
	*gin.Engine
	lg         logrus.FieldLogger
	coord      *coordinator.Coordinator
	configInfo func() *config.Info
}

// NewService return a new admin server, metrics of gatherer are exposed at /metrics
func NewService(
	coord *coordinator.Coordinator,
	configInfo func() *config.Info,
	gatherer prometheus.Gatherer,
	lg logrus.FieldLogger) *Service {
	w := &Service{
		Engine:     gin.New(),
		lg:         lg,
		coord:      coord,
		configInfo: configInfo,
	}
	w.Use(gin.Recovery())
	pprof.Register(w.Engine)

	w.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	w.GET("/api/v1/clusters", api.Wrap(lg, w.clusters))
	w.GET("/api/v1/clusters/:cluster/route", api.Wrap(lg, w.route))
	w.POST("/api/v1/connect", api.Wrap(lg, w.connect))
	w.GET("/api/v1/sequences/:name", api.Wrap(lg, w.sequenceValue))
	w.POST("/api/v1/sequences/:name", api.Wrap(lg, w.createSequence))
	w.POST("/api/v1/sequences/:name/next", api.Wrap(lg, w.nextSequence))
	w.GET("/api/v1/status/config", api.Wrap(lg, func(ctx *gin.Context) *api.Result {
		info := w.configInfo()
		return api.Data(&ConfigStatus{YAML: string(info.RawContent), Hash: info.ConfigHash})
	}))
	return w
}

// Run serve at address until ctx is done
func (s *Service) Run(ctx context.Context, address string) error {
	srv := &http.Server{Addr: address, Handler: s.Engine}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		sCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sCtx)
	}
}

func (s *Service) clusters(ctx *gin.Context) *api.Result {
	reg, err := s.coord.Registry()
	if err != nil {
		return api.InternalErr(err, "get registry")
	}

	clusters := reg.Clusters()
	ret := make([]ClusterInfo, 0, len(clusters))
	for _, c := range clusters {
		info := ClusterInfo{Name: c.Name()}
		for _, sh := range c.Shards() {
			info.Shards = append(info.Shards, ShardInfo{
				Name:     sh.Name,
				Pool:     sh.Pool.Name(),
				Weight:   sh.Weight,
				LessThan: sh.LessThan,
			})
		}
		ret = append(ret, info)
	}
	return api.Data(ret)
}

// route is a dry run of shard selection, the routing key is given by "key"
// or read from the sequence given by "sequence"
func (s *Service) route(ctx *gin.Context) *api.Result {
	name := ctx.Param("cluster")
	ret := &RouteResult{Cluster: name}

	var (
		sh  *cluster.Shard
		err error
	)
	if key := ctx.Query("key"); key != "" {
		ret.RoutingKey, err = strconv.ParseInt(key, 10, 64)
		if err != nil {
			return api.BadDataErr(err, "parse key")
		}
		sh, err = s.coord.Route(ctx.Request.Context(), name, ret.RoutingKey)
	} else if seq := ctx.Query("sequence"); seq != "" {
		ret.Sequence = seq
		sh, ret.RoutingKey, err = s.coord.RouteBySequence(ctx.Request.Context(), name, seq)
	} else {
		return api.BadDataErr(errors.New("key or sequence is required"), "route")
	}

	if err != nil {
		if isBadData(err) {
			return api.BadDataErr(err, "route")
		}
		return api.InternalErr(err, "route")
	}

	ret.Shard = sh.Name
	ret.Pool = sh.Pool.Name()
	return api.Data(ret)
}

func (s *Service) connect(ctx *gin.Context) *api.Result {
	if err := s.coord.ForceConnectAllShards(ctx.Request.Context()); err != nil {
		return api.InternalErr(err, "connect all shards")
	}

	reg, err := s.coord.Registry()
	if err != nil {
		return api.InternalErr(err, "get registry")
	}

	ret := &ConnectResult{Pools: []string{}}
	for _, p := range reg.ShardPools() {
		ret.Pools = append(ret.Pools, p.Name())
	}
	return api.Data(ret)
}

func (s *Service) sequenceValue(ctx *gin.Context) *api.Result {
	name := ctx.Param("name")
	v, err := s.coord.Sequences().CurrentSequenceValue(ctx.Request.Context(), name)
	return sequenceResult(name, v, err, "get sequence")
}

// createSequence define a sequence, an existing one keeps its value
func (s *Service) createSequence(ctx *gin.Context) *api.Result {
	name := ctx.Param("name")
	req := &CreateSequenceRequest{}
	if err := ctx.ShouldBindJSON(req); err != nil {
		return api.BadDataErr(err, "parse request")
	}

	if err := s.coord.Sequences().Create(ctx.Request.Context(), name, req.Start); err != nil {
		return sequenceResult(name, 0, err, "create sequence")
	}

	v, err := s.coord.Sequences().CurrentSequenceValue(ctx.Request.Context(), name)
	return sequenceResult(name, v, err, "get sequence")
}

func (s *Service) nextSequence(ctx *gin.Context) *api.Result {
	name := ctx.Param("name")
	v, err := s.coord.Sequences().Next(ctx.Request.Context(), name)
	return sequenceResult(name, v, err, "next sequence")
}

func sequenceResult(name string, v int64, err error, op string) *api.Result {
	if err != nil {
		if isBadData(err) {
			return api.BadDataErr(err, "%s %s", op, name)
		}
		return api.InternalErr(err, "%s %s", op, name)
	}
	return api.Data(&SequenceValue{Name: name, Value: v})
}

func isBadData(err error) bool {
	return errors.As(err, new(*cluster.UnknownClusterError)) ||
		errors.As(err, new(*cluster.NoShardsAvailableError)) ||
		errors.Is(err, sequence.ErrUnknownSequence) ||
		errors.Is(err, sequence.ErrInvalidName)
}
