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
    `sort`

    `github.com/cloudwego/regreclaim/ir`
    `github.com/oleiade/lane`
)

// Edge is a control flow edge.
type Edge struct {
    From *ir.Block
    To   *ir.Block
}

// Loop is a natural loop.
type Loop struct {
    Header *ir.Block
    Body   map[int]*ir.Block
    Parent *Loop
    Depth  int
}

// Contains reports whether bb belongs to the loop, including nested loops.
func (self *Loop) Contains(bb *ir.Block) bool {
    _, ok := self.Body[bb.Id]
    return ok
}

type _DfsFrame struct {
    bb   *ir.Block
    next int
}

type _DfsOrder struct {
    pre   map[int]int
    post  map[int]int
    order []*ir.Block
}

// dfsorder numbers the blocks reachable from root in pre-order and post-order.
func dfsorder(root *ir.Block) _DfsOrder {
    n := 0
    m := 0
    s := lane.NewStack()
    r := _DfsOrder {
        pre  : make(map[int]int),
        post : make(map[int]int),
    }

    /* visit the root */
    r.pre[root.Id] = n
    r.order = append(r.order, root)
    s.Push(&_DfsFrame { bb: root })

    /* scan until the stack is empty */
    for n++; !s.Empty(); {
        fr := s.Head().(*_DfsFrame)

        /* all the successors are visited, pop the current node */
        if fr.next >= len(fr.bb.Succs) {
            s.Pop()
            r.post[fr.bb.Id] = m
            m++
            continue
        }

        /* descend into the next unvisited successor */
        w := fr.bb.Succs[fr.next]
        fr.next++

        /* mark as visited */
        if _, ok := r.pre[w.Id]; !ok {
            r.pre[w.Id] = n
            r.order = append(r.order, w)
            s.Push(&_DfsFrame { bb: w })
            n++
        }
    }
    return r
}

// retreating reports whether the edge goes to a DFS ancestor of its source.
func (self _DfsOrder) retreating(e Edge) bool {
    return self.pre[e.To.Id] <= self.pre[e.From.Id] && self.post[e.To.Id] >= self.post[e.From.Id]
}

// naturalLoop collects the body of the loop closed by the back edges of header.
func naturalLoop(header *ir.Block, latches []*ir.Block, reach map[int]int) *Loop {
    q := lane.NewQueue()
    lp := &Loop {
        Header : header,
        Body   : map[int]*ir.Block { header.Id: header },
    }

    /* start from the latches */
    for _, bb := range latches {
        if !lp.Contains(bb) {
            lp.Body[bb.Id] = bb
            q.Enqueue(bb)
        }
    }

    /* walk backwards until reaching the header */
    for !q.Empty() {
        bb := q.Dequeue().(*ir.Block)
        for _, p := range bb.Preds {
            if _, ok := reach[p.Id]; ok && !lp.Contains(p) {
                lp.Body[p.Id] = p
                q.Enqueue(p)
            }
        }
    }
    return lp
}

// buildLoopNest links every loop to the smallest loop strictly containing it.
func buildLoopNest(loops []*Loop) {
    sort.Slice(loops, func(i int, j int) bool {
        if len(loops[i].Body) != len(loops[j].Body) {
            return len(loops[i].Body) < len(loops[j].Body)
        } else {
            return loops[i].Header.Id < loops[j].Header.Id
        }
    })

    /* loops are sorted by size, the first container is the innermost one */
    for i, lp := range loops {
        for _, p := range loops[i + 1:] {
            if p.Contains(lp.Header) {
                lp.Parent = p
                break
            }
        }
    }

    /* compute the nesting depth */
    for _, lp := range loops {
        for p := lp; p != nil; p = p.Parent {
            lp.Depth++
        }
    }
}
