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

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fixture(name string) string {
	return filepath.Join("..", "..", "testdata", name+".yaml")
}

func TestRun_FlagSpill(t *testing.T) {
	out, err := execute(t, "run", "--debug", fixture("flag_spill"))
	require.NoError(t, err)
	assert.Contains(t, out, "cleanup: 2 fills, 0 spills removed")
	assert.Contains(t, out, "f_spill")
}

func TestRun_Dump(t *testing.T) {
	out, err := execute(t, "run", "--dump", "--before", "--no-cleanup", fixture("flag_spill"))
	require.NoError(t, err)
	assert.Contains(t, out, "FillsRemoved: (int) 0")
	assert.Equal(t, 2, strings.Count(out, "Kernel flag_spill {"))
}

func TestRun_MissingFile(t *testing.T) {
	_, err := execute(t, "run", fixture("missing"))
	require.Error(t, err)
}

func TestRun_NeedsFile(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
}

func TestFuzz(t *testing.T) {
	for _, kind := range []string{"acc", "spill"} {
		out, err := execute(t, "fuzz", "--kind", kind, "-n", "10", "--debug")
		require.NoError(t, err)
		assert.Contains(t, out, "10 "+kind+" kernels ok")
	}
	_, err := execute(t, "fuzz", "--kind", "vector")
	require.Error(t, err)
}

func TestDraw(t *testing.T) {
	out, err := execute(t, "draw", fixture("mad_chain"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "</svg>")
	_, err = execute(t, "draw", "--block", "3", fixture("mad_chain"))
	require.Error(t, err)
}

func TestDraw_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mad_chain.svg")
	_, err := execute(t, "draw", "-o", path, fixture("mad_chain"))
	require.NoError(t, err)
	assert.FileExists(t, path)
}
