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

package pool

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrTxDone is returned by Tx.Rollback if the transaction was already committed or rolled back,
// including a commit that failed
var ErrTxDone = errors.New("transaction has already been committed or rolled back")

// Pool is a connection pool of one physical database
type Pool interface {
	// Name return the identity of this pool, it is unique in the process
	Name() string
	// Acquire return a live connection, the caller must Release it
	Acquire(ctx context.Context) (Conn, error)
	// Close close all connections of this pool
	Close() error
}

// Conn is one connection checked out from a Pool
type Conn interface {
	// BeginTx open a new transaction on this connection
	BeginTx(ctx context.Context, opts TxOptions) (Tx, error)
	// Release give the connection back to its pool
	Release()
}

// Tx is an open transaction
type Tx interface {
	// Begin open a transaction nested in this one on the same connection, backed by a savepoint.
	// Commit of the nested Tx releases the savepoint and Rollback rolls back to it,
	// the work is only durable once the outermost transaction commits
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// IsolationLevel is the transaction isolation level
type IsolationLevel int

const (
	// LevelDefault use the default level of the driver
	LevelDefault IsolationLevel = iota
	LevelReadUncommitted
	LevelReadCommitted
	LevelRepeatableRead
	LevelSerializable
)

var levelNames = map[IsolationLevel]string{
	LevelDefault:         "default",
	LevelReadUncommitted: "read_uncommitted",
	LevelReadCommitted:   "read_committed",
	LevelRepeatableRead:  "repeatable_read",
	LevelSerializable:    "serializable",
}

// String return the config name of the level
func (l IsolationLevel) String() string {
	if n, ok := levelNames[l]; ok {
		return n
	}
	return fmt.Sprintf("IsolationLevel(%d)", int(l))
}

// ParseIsolationLevel convert a config name like "read_committed" or "READ COMMITTED" to IsolationLevel
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	if name == "" {
		return LevelDefault, nil
	}

	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return LevelDefault, errors.Errorf("unknown isolation level %q", s)
}

// TxOptions indicate how to open a transaction
type TxOptions struct {
	// Isolation is the isolation level of the transaction
	Isolation IsolationLevel
	// ReadOnly open a read only transaction if the driver supports it
	ReadOnly bool
	// Joinable allows reusing a transaction already opened on the same pool by an outer scope.
	// if false, a savepoint nested in the outer transaction is used instead
	Joinable bool
}

// DefaultTxOptions return a joinable TxOptions with driver default isolation
func DefaultTxOptions() TxOptions {
	return TxOptions{Joinable: true}
}
