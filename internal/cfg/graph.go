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
    `gonum.org/v1/gonum/graph/topo`
)

var _ ir.FlowInfo = (*Graph)(nil)

// Graph is the flow graph analysis of a kernel: dominators, natural loops
// and reducibility. It implements ir.FlowInfo.
type Graph struct {
    DominatorTree
    Kernel    *ir.Kernel
    Loops     []*Loop
    BackEdges []Edge
    innermost map[int]*Loop
    reducible bool
}

// Build analyzes the control flow graph of k. The kernel must not be
// edited while the result is in use.
func Build(k *ir.Kernel) *Graph {
    g := &Graph {
        Kernel    : k,
        innermost : make(map[int]*Loop),
        reducible : true,
    }

    /* empty kernels are trivially reducible */
    if k.Entry() == nil {
        return g
    }

    /* DFS numbering and dominators */
    dfs := dfsorder(k.Entry())
    mg := mirror(dfs)
    g.DominatorTree = buildDominatorTree(mg, k.Entry())

    /* classify the edges, every retreating edge must be a back edge */
    latches := make(map[int][]*ir.Block)
    headers := make([]*ir.Block, 0)
    for _, bb := range dfs.order {
        for _, w := range bb.Succs {
            e := Edge { From: bb, To: w }
            if !dfs.retreating(e) {
                continue
            }
            if !g.Dominates(w, bb) {
                g.reducible = false
                continue
            }
            if _, ok := latches[w.Id]; !ok {
                headers = append(headers, w)
            }
            g.BackEdges = append(g.BackEdges, e)
            latches[w.Id] = append(latches[w.Id], bb)
        }
    }

    /* cross-check with the cycle entries */
    if g.reducible && !singleEntryCycles(k.Entry(), mg) {
        g.reducible = false
    }

    /* natural loops, one per header */
    for _, h := range headers {
        g.Loops = append(g.Loops, naturalLoop(h, latches[h.Id], dfs.pre))
    }

    /* nest them, and find the innermost loop of every block */
    buildLoopNest(g.Loops)
    for _, lp := range g.Loops {
        for id := range lp.Body {
            if _, ok := g.innermost[id]; !ok {
                g.innermost[id] = lp
            }
        }
    }
    return g
}

// singleEntryCycles reports whether every strongly connected component with
// a cycle is entered through exactly one block.
func singleEntryCycles(entry *ir.Block, m _Mirror) bool {
    dg := m.g

    /* count the entries of every cyclic component */
    for _, scc := range topo.TarjanSCC(dg) {
        if len(scc) == 1 && !m.self[scc[0].ID()] {
            continue
        }

        /* component membership */
        nb := 0
        in := make(map[int64]bool, len(scc))
        for _, n := range scc {
            in[n.ID()] = true
        }

        /* a block is an entry if it has a predecessor outside of the component */
        for _, n := range scc {
            ent := n.ID() == int64(entry.Id)
            for it := dg.To(n.ID()); !ent && it.Next(); {
                ent = !in[it.Node().ID()]
            }
            if ent {
                nb++
            }
        }

        /* more than one entry means irreducible */
        if nb > 1 {
            return false
        }
    }
    return true
}

// LoopOf returns the innermost loop containing bb, or nil.
func (self *Graph) LoopOf(bb *ir.Block) *Loop {
    return self.innermost[bb.Id]
}

// InSameLoopOrNested reports whether use lies inside the innermost loop of
// def. A definition outside of every loop accepts any use.
func (self *Graph) InSameLoopOrNested(def *ir.Block, use *ir.Block) bool {
    if lp := self.LoopOf(def); lp == nil {
        return true
    } else {
        return lp.Contains(use)
    }
}

// Reducible reports whether every cycle has a single entry.
func (self *Graph) Reducible() bool {
    return self.reducible
}
