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
    `bytes`
    `strings`
    `testing`

    `github.com/cloudwego/regreclaim/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func TestDrawAccIntervals(t *testing.T) {
    o := testOptions()
    k := ir.NewKernel("draw")
    bb := k.NewBlock()
    b := ir.CreateBuilder(k, bb)
    x := k.NewDeclare("x", ir.RF_GRF, ir.T_F, 8)
    v := k.NewDeclare("v", ir.RF_GRF, ir.T_F, 8)
    out := k.NewDeclare("out", ir.RF_GRF, ir.T_F, 8)
    out.Output = true
    b.MUL(8, dst(v), src(x, 8), src(x, 8))
    b.ADD(8, dst(out), src(v, 8), src(x, 8))
    ivs := PlanAccIntervals(k, bb, o)
    require.NotEmpty(t, ivs)
    buf := new(bytes.Buffer)
    require.NoError(t, DrawAccIntervals(buf, bb, ivs))
    svg := buf.String()
    assert.True(t, strings.HasPrefix(svg, "<?xml"))
    assert.True(t, strings.HasSuffix(strings.TrimSpace(svg), "</svg>"))
    assert.Contains(t, svg, "bb_0")
    assert.Equal(t, len(ivs), strings.Count(svg, "stroke-width:3"))
}
