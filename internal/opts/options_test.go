/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package opts

import (
	"testing"

	"github.com/cloudwego/regreclaim/ir"
	"github.com/stretchr/testify/require"
)

func TestParseOrDefault(t *testing.T) {
	t.Setenv("REGRECLAIM_TEST_VALUE", "")
	require.Equal(t, 3, parseOrDefault("REGRECLAIM_TEST_VALUE", 3, 0))
	t.Setenv("REGRECLAIM_TEST_VALUE", "0x10")
	require.Equal(t, 16, parseOrDefault("REGRECLAIM_TEST_VALUE", 3, 0))
	t.Setenv("REGRECLAIM_TEST_VALUE", "zz")
	require.Panics(t, func() { parseOrDefault("REGRECLAIM_TEST_VALUE", 3, 0) })
	t.Setenv("REGRECLAIM_TEST_VALUE", "1")
	require.Panics(t, func() { parseOrDefault("REGRECLAIM_TEST_VALUE", 3, 1) })
}

func TestDefaultOptions(t *testing.T) {
	o := GetDefaultOptions()
	require.Equal(t, []int{16, 8, 4, 2, 1}, o.MoveChunks)
	require.Equal(t, o.NativeExecSize*4, o.AccBytes())
	require.Equal(t, ir.Conservative{}, o.FlowInfo())
	require.NotNil(t, o.Log())
}
