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
    `github.com/cloudwego/regreclaim/ir`
    `github.com/oleiade/lane`
    `gonum.org/v1/gonum/graph/flow`
    `gonum.org/v1/gonum/graph/simple`
)

// _Mirror is the reachable part of the flow graph as a gonum graph. Self
// loops are kept aside, simple graphs cannot hold them.
type _Mirror struct {
    g      *simple.DirectedGraph
    blocks map[int64]*ir.Block
    self   map[int64]bool
}

func mirror(dfs _DfsOrder) _Mirror {
    m := _Mirror {
        g      : simple.NewDirectedGraph(),
        blocks : make(map[int64]*ir.Block, len(dfs.order)),
        self   : make(map[int64]bool),
    }

    /* nodes first, in DFS order */
    for _, bb := range dfs.order {
        m.g.AddNode(simple.Node(bb.Id))
        m.blocks[int64(bb.Id)] = bb
    }

    /* every successor of a reachable block is reachable */
    for _, bb := range dfs.order {
        for _, w := range bb.Succs {
            if w == bb {
                m.self[int64(bb.Id)] = true
            } else {
                m.g.SetEdge(m.g.NewEdge(simple.Node(bb.Id), simple.Node(w.Id)))
            }
        }
    }
    return m
}

// DominatorTree is the dominator tree of the blocks reachable from Root.
// Every node carries its enter and leave times of a walk over the tree.
type DominatorTree struct {
    Root     *ir.Block
    Idom     map[int]*ir.Block
    Children map[int][]*ir.Block
    enter    map[int]int
    leave    map[int]int
}

type _DomFrame struct {
    bb   *ir.Block
    next int
}

func buildDominatorTree(m _Mirror, root *ir.Block) DominatorTree {
    dt := flow.Dominators(m.g.Node(int64(root.Id)), m.g)
    ret := DominatorTree {
        Root     : root,
        Idom     : make(map[int]*ir.Block, len(m.blocks)),
        Children : make(map[int][]*ir.Block, len(m.blocks)),
        enter    : make(map[int]int, len(m.blocks)),
        leave    : make(map[int]int, len(m.blocks)),
    }

    /* immediate dominators and the children lists */
    for id, bb := range m.blocks {
        if p := dt.DominatorOf(id); p != nil {
            ret.Idom[bb.Id] = m.blocks[p.ID()]
        }
        for _, c := range dt.DominatedBy(id) {
            ret.Children[bb.Id] = append(ret.Children[bb.Id], m.blocks[c.ID()])
        }
    }

    /* number the tree */
    n := 0
    s := lane.NewStack()
    s.Push(&_DomFrame { bb: root })
    ret.enter[root.Id] = n

    /* a node is left once all of its children are */
    for n++; !s.Empty(); n++ {
        fr := s.Head().(*_DomFrame)
        ch := ret.Children[fr.bb.Id]

        /* pop the finished node */
        if fr.next >= len(ch) {
            s.Pop()
            ret.leave[fr.bb.Id] = n
            continue
        }

        /* enter the next child */
        c := ch[fr.next]
        fr.next++
        ret.enter[c.Id] = n
        s.Push(&_DomFrame { bb: c })
    }
    return ret
}

// Dominates reports whether a dominates b. Unreachable blocks are only
// dominated by themselves.
func (self DominatorTree) Dominates(a *ir.Block, b *ir.Block) bool {
    ea, ok1 := self.enter[a.Id]
    eb, ok2 := self.enter[b.Id]
    if !ok1 || !ok2 {
        return a == b
    } else {
        return ea <= eb && self.leave[b.Id] <= self.leave[a.Id]
    }
}
