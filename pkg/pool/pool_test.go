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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIsolationLevel(t *testing.T) {
	var cases = []struct {
		in      string
		want    IsolationLevel
		wantErr bool
	}{
		{in: "", want: LevelDefault},
		{in: "default", want: LevelDefault},
		{in: "read_committed", want: LevelReadCommitted},
		{in: "READ COMMITTED", want: LevelReadCommitted},
		{in: "repeatable-read", want: LevelRepeatableRead},
		{in: "Serializable", want: LevelSerializable},
		{in: "read_uncommitted", want: LevelReadUncommitted},
		{in: "snapshot", wantErr: true},
	}

	for _, cs := range cases {
		t.Run(cs.in, func(t *testing.T) {
			r := require.New(t)
			l, err := ParseIsolationLevel(cs.in)
			if cs.wantErr {
				r.Error(err)
				return
			}
			r.NoError(err)
			r.Equal(cs.want, l)
		})
	}
}

func TestIsolationLevel_String(t *testing.T) {
	require.Equal(t, "serializable", LevelSerializable.String())
	require.Equal(t, "IsolationLevel(42)", IsolationLevel(42).String())
}

func TestDefaultTxOptions(t *testing.T) {
	opts := DefaultTxOptions()
	require.True(t, opts.Joinable)
	require.Equal(t, LevelDefault, opts.Isolation)
	require.False(t, opts.ReadOnly)
}
