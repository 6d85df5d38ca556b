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

package txn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoPools is returned if a nested transaction is requested without any pool
var ErrNoPools = errors.New("no pool to open transaction on")

// Op is the transaction operation that failed
type Op string

const (
	// OpBegin means the transaction could not be opened
	OpBegin Op = "begin"
	// OpCommit means the transaction could not be committed
	OpCommit Op = "commit"
)

// ConnectionError is returned if a pool can not supply a live connection
type ConnectionError struct {
	// Pool is the name of the failing pool
	Pool string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("acquire connection from %s failed: %v", e.Pool, e.Err)
}

// Unwrap return the error reported by the pool
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransactionError is returned if begin or commit failed at some nesting depth
type TransactionError struct {
	// Pool is the name of the failing pool
	Pool string
	// Depth is the nesting depth of the failing scope, the outermost scope is 1
	Depth int
	Op    Op
	// Committed is the pools committed before this failure, in commit order.
	// the work on these pools is not undone
	Committed []string
	Err       error
}

func (e *TransactionError) Error() string {
	msg := fmt.Sprintf("%s transaction on %s at depth %d failed: %v", e.Op, e.Pool, e.Depth, e.Err)
	if len(e.Committed) != 0 {
		msg += fmt.Sprintf(" (already committed: %s)", strings.Join(e.Committed, ", "))
	}
	return msg
}

// Unwrap return the error reported by the driver
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// PartiallyCommitted return true if some pools were committed before the failure
func (e *TransactionError) PartiallyCommitted() bool {
	return len(e.Committed) != 0
}
