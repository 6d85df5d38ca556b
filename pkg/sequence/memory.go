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

package sequence

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownSequence is returned if a sequence is not defined
	ErrUnknownSequence = errors.New("unknown sequence")
	// ErrInvalidName is returned if a sequence name is not a plain identifier
	ErrInvalidName = errors.New("invalid sequence name")
)

// Source give the current value of named sequences, the value is used as routing key
type Source interface {
	CurrentSequenceValue(ctx context.Context, name string) (int64, error)
}

// Store is a Source whose sequences can be defined and advanced
type Store interface {
	Source
	// Create define sequence name starting at start, an existing sequence keeps its value
	Create(ctx context.Context, name string, start int64) error
	// Next increase sequence name by one and return the new value
	Next(ctx context.Context, name string) (int64, error)
}

// Memory is an in process Store
type Memory struct {
	lock   sync.Mutex
	values map[string]int64
}

// NewMemory return a Memory with no sequence
func NewMemory() *Memory {
	return &Memory{values: map[string]int64{}}
}

// Create define sequence name starting at start if it is not defined yet
func (m *Memory) Create(ctx context.Context, name string, start int64) error {
	if err := checkName(name); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.values[name]; !ok {
		m.values[name] = start
	}
	return nil
}

// Next increase sequence name and return the new value
func (m *Memory) Next(ctx context.Context, name string) (int64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v, ok := m.values[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownSequence, "sequence %s", name)
	}
	m.values[name] = v + 1
	return v + 1, nil
}

// CurrentSequenceValue return the current value of sequence name
func (m *Memory) CurrentSequenceValue(ctx context.Context, name string) (int64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	v, ok := m.values[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownSequence, "sequence %s", name)
	}
	return v, nil
}
