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

package ra

import (
    `errors`
    `testing`

    `github.com/cloudwego/regreclaim/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

type _BreakPass struct{}

func (_BreakPass) Apply(ctx *Context) {
    ctx.Kernel.Entry().Ins[0].Exec = 3
}

func TestExecute_Skip(t *testing.T) {
    k, _ := flagKernel(16)
    o := testOptions()
    o.NoSpillCode = true
    ctx := NewContext(k, o)
    require.NoError(t, Execute(ctx))
    assert.Zero(t, ctx.Stats.Fills)
    assert.Nil(t, k.Lookup("f").SpillLoc())
}

func TestExecute_Verifies(t *testing.T) {
    saved := Passes
    defer func() { Passes = saved }()
    Passes[0] = PassDescriptor { Name: "break", Pass: _BreakPass{}, Skip: saved[0].Skip }
    k, _ := flagKernel(16)
    err := Execute(NewContext(k, testOptions()))
    require.Error(t, err)
    var pe *PassError
    require.True(t, errors.As(err, &pe))
    assert.Equal(t, "break", pe.Pass)
    var ve *ir.VerifyError
    assert.True(t, errors.As(err, &ve))
}

func TestContext_Assert(t *testing.T) {
    k, _ := flagKernel(16)
    o := testOptions()
    assert.Panics(t, func() { NewContext(k, o).assert(false, "boom") })
    o.Debug = false
    assert.False(t, NewContext(k, o).assert(false, "boom"))
    assert.True(t, NewContext(k, o).assert(true, "boom"))
}
