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

package cfg

import (
    `testing`

    `github.com/cloudwego/regreclaim/ir`
    `github.com/stretchr/testify/require`
)

func mkgraph(n int, edges ...[2]int) *ir.Kernel {
    k := ir.NewKernel("test")
    for i := 0; i < n; i++ {
        k.NewBlock()
    }
    for _, e := range edges {
        k.Link(k.Blocks[e[0]], k.Blocks[e[1]])
    }
    return k
}

func TestDominator_Diamond(t *testing.T) {
    k := mkgraph(4, [2]int{0, 1}, [2]int{0, 2}, [2]int{1, 3}, [2]int{2, 3})
    g := Build(k)
    b := k.Blocks
    require.True(t, g.Reducible())
    require.True(t, g.Dominates(b[0], b[3]))
    require.True(t, g.Dominates(b[3], b[3]))
    require.False(t, g.Dominates(b[1], b[3]))
    require.False(t, g.Dominates(b[3], b[0]))
    require.Equal(t, b[0], g.Idom[3])
    require.ElementsMatch(t, []*ir.Block { b[1], b[2], b[3] }, g.Children[0])
    require.Empty(t, g.Loops)
    require.True(t, g.InSameLoopOrNested(b[1], b[2]))
}

func TestDominator_Unreachable(t *testing.T) {
    k := mkgraph(3, [2]int{0, 1})
    g := Build(k)
    b := k.Blocks
    require.True(t, g.Dominates(b[2], b[2]))
    require.False(t, g.Dominates(b[0], b[2]))
}

func TestDominator_Chain(t *testing.T) {
    k := mkgraph(6,
        [2]int{0, 1},
        [2]int{1, 2},
        [2]int{1, 3},
        [2]int{2, 4},
        [2]int{3, 4},
        [2]int{4, 1},
        [2]int{4, 5},
    )
    g := Build(k)
    b := k.Blocks
    want := map[int][]int {
        0: { 0, 1, 2, 3, 4, 5 },
        1: { 1, 2, 3, 4, 5 },
        2: { 2 },
        3: { 3 },
        4: { 4, 5 },
        5: { 5 },
    }
    for i, doms := range want {
        for j := range b {
            in := false
            for _, v := range doms {
                in = in || v == j
            }
            require.Equal(t, in, g.Dominates(b[i], b[j]), "%d dom %d", i, j)
        }
    }
    require.Equal(t, b[1], g.Idom[4])
    require.Nil(t, g.Idom[0])
}

func TestLoops_Nested(t *testing.T) {
    k := mkgraph(5,
        [2]int{0, 1},
        [2]int{1, 2},
        [2]int{2, 2},
        [2]int{2, 3},
        [2]int{3, 1},
        [2]int{3, 4},
    )
    g := Build(k)
    b := k.Blocks
    require.True(t, g.Reducible())
    require.Len(t, g.Loops, 2)
    require.Len(t, g.BackEdges, 2)

    /* the self loop is the inner one */
    inner := g.LoopOf(b[2])
    outer := g.LoopOf(b[3])
    require.Equal(t, b[2], inner.Header)
    require.Equal(t, b[1], outer.Header)
    require.Equal(t, outer, inner.Parent)
    require.Equal(t, 2, inner.Depth)
    require.Equal(t, 1, outer.Depth)
    require.Nil(t, g.LoopOf(b[4]))

    /* loop membership */
    require.True(t, g.InSameLoopOrNested(b[1], b[2]))
    require.True(t, g.InSameLoopOrNested(b[3], b[1]))
    require.False(t, g.InSameLoopOrNested(b[2], b[3]))
    require.False(t, g.InSameLoopOrNested(b[1], b[4]))
    require.True(t, g.InSameLoopOrNested(b[0], b[4]))
}

func TestReducible_MultiEntryCycle(t *testing.T) {
    k := mkgraph(4,
        [2]int{0, 1},
        [2]int{0, 2},
        [2]int{1, 2},
        [2]int{2, 1},
        [2]int{2, 3},
    )
    g := Build(k)
    require.False(t, g.Reducible())
}

func TestSingleEntryCycles(t *testing.T) {
    k := mkgraph(3, [2]int{0, 1}, [2]int{1, 2}, [2]int{2, 1}, [2]int{1, 1})
    require.True(t, singleEntryCycles(k.Entry(), mirror(dfsorder(k.Entry()))))
    k = mkgraph(3, [2]int{0, 1}, [2]int{0, 2}, [2]int{1, 2}, [2]int{2, 1})
    require.False(t, singleEntryCycles(k.Entry(), mirror(dfsorder(k.Entry()))))
}

func TestFlowInfo_Empty(t *testing.T) {
    g := Build(ir.NewKernel("empty"))
    require.True(t, g.Reducible())
    require.Nil(t, g.Loops)
}
