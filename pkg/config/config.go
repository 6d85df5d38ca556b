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

package config

import (
	"fmt"
	"io/ioutil"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

// DatabaseConfig indicate how to open one connection pool
type DatabaseConfig struct {
	// Driver is one of "sqlite3", "pgx" (both through database/sql) or "pgxpool" (native PostgreSQL)
	Driver string `yaml:"driver" validate:"required,oneof=sqlite3 pgx pgxpool"`
	// DSN is the data source name passed to the driver
	DSN string `yaml:"dsn" validate:"required"`
	// MaxConns limits open connections of the pool, 0 means driver default
	MaxConns int `yaml:"max_conns,omitempty" validate:"gte=0"`
}

// ShardConfig is one shard of a cluster
type ShardConfig struct {
	DatabaseConfig `yaml:",inline"`
	// Name is unique in the cluster
	Name string `yaml:"name" validate:"required"`
	// Weight is the share of new records routed to this shard
	Weight int64 `yaml:"weight" validate:"gte=0"`
	// LessThan is the exclusive upper bound of routing keys, 0 means unbounded
	LessThan int64 `yaml:"less_than,omitempty" validate:"gte=0"`
}

// ClusterConfig is a named ordered set of shards
type ClusterConfig struct {
	Name   string        `yaml:"name" validate:"required"`
	Shards []ShardConfig `yaml:"shards" validate:"required,min=1,dive"`
}

// Config is the content of the config file
type Config struct {
	// Default is the unsharded pool
	Default DatabaseConfig `yaml:"default"`
	// Sequence is the database holding sequence tables, sequences are kept in memory if it is nil
	Sequence *DatabaseConfig `yaml:"sequence,omitempty"`
	// Isolation is the default isolation level of coordinated transactions
	Isolation string          `yaml:"isolation,omitempty" validate:"omitempty,oneof=default read_uncommitted read_committed repeatable_read serializable"`
	Clusters  []ClusterConfig `yaml:"clusters" validate:"required,min=1,dive"`
}

// Info include all information of current config
type Info struct {
	// RawContent is the content of config file
	RawContent []byte
	// ConfigHash is the hash of the parsed config
	ConfigHash string
	// Config is the parsed config
	Config *Config
}

// LoadFile read and check the config file
func LoadFile(file string) (*Info, error) {
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file")
	}
	return Load(data)
}

// Load parse and check raw config content
func Load(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, errors.New("config content is empty")
	}

	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "wrong format of config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hash, err := hashstructure.Hash(cfg, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "get config hash")
	}

	return &Info{
		RawContent: data,
		ConfigHash: fmt.Sprint(hash),
		Config:     cfg,
	}, nil
}

// Validate check struct constraints and name uniqueness
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	clusters := map[string]bool{}
	for _, cl := range c.Clusters {
		if clusters[cl.Name] {
			return errors.Errorf("duplicate cluster %s", cl.Name)
		}
		clusters[cl.Name] = true

		shards := map[string]bool{}
		var total int64
		for _, s := range cl.Shards {
			if shards[s.Name] {
				return errors.Errorf("duplicate shard %s in cluster %s", s.Name, cl.Name)
			}
			shards[s.Name] = true

			if s.Weight > math.MaxInt64-total {
				return errors.Errorf("total shard weight of cluster %s exceeds %d", cl.Name, int64(math.MaxInt64))
			}
			total += s.Weight
		}
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrapf(err, "invalid config")
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed on %s=%s", e.Namespace(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed on %s", e.Namespace(), e.Tag()))
		}
	}
	return errors.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
