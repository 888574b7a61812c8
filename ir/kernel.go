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

package ir

import (
    `fmt`
    `strings`
)

// Kernel is one compiled unit: its declares and its basic blocks.
type Kernel struct {
    Name   string
    Decls  []*Declare
    Blocks []*Block
    acc    []*Declare
}

// NewKernel creates an empty kernel.
func NewKernel(name string) *Kernel {
    return &Kernel { Name: name }
}

// Entry returns the entry block.
func (self *Kernel) Entry() *Block {
    if len(self.Blocks) == 0 {
        return nil
    } else {
        return self.Blocks[0]
    }
}

// NewDeclare creates a declare without a physical assignment.
func (self *Kernel) NewDeclare(name string, rf RegFile, t Type, elems int) *Declare {
    d := &Declare {
        Id    : len(self.Decls),
        Name  : name,
        File  : rf,
        Type  : t,
        Elems : elems,
        Phys  : -1,
    }
    self.Decls = append(self.Decls, d)
    return d
}

// Lookup finds a declare by name.
func (self *Kernel) Lookup(name string) *Declare {
    for _, d := range self.Decls {
        if d.Name == name {
            return d
        }
    }
    return nil
}

// Acc returns the declare of physical accumulator i.
func (self *Kernel) Acc(i int) *Declare {
    for len(self.acc) <= i {
        n := len(self.acc)
        d := self.NewDeclare(fmt.Sprintf("acc%d", n), RF_Acc, T_UD, 0)
        d.Phys = n
        self.acc = append(self.acc, d)
    }
    return self.acc[i]
}

// NewBlock appends a new empty block.
func (self *Kernel) NewBlock() *Block {
    bb := &Block { Id: len(self.Blocks) }
    self.Blocks = append(self.Blocks, bb)
    return bb
}

// Link adds a control flow edge.
func (self *Kernel) Link(from *Block, to *Block) {
    from.Succs = append(from.Succs, to)
    to.Preds = append(to.Preds, from)
}

// Renumber assigns local sequence ids in every block.
func (self *Kernel) Renumber() {
    for _, bb := range self.Blocks {
        bb.Renumber()
    }
}

// ForEachDecl calls fn for every declare referenced by ins, including
// predicates, condition modifiers and implicit operands.
func ForEachDecl(ins *Inst, fn func(d *Declare)) {
    ops := [...]*Operand { ins.Dst, ins.Src[0], ins.Src[1], ins.Src[2], ins.ImplAccSrc, ins.ImplAccDst }
    for _, op := range ops {
        if op.IsReg() {
            fn(op.Base)
        }
    }
    if ins.Pred != nil {
        fn(ins.Pred.Flag)
    }
    if ins.Cond != nil {
        fn(ins.Cond.Flag)
    }
}

// MarkGlobals flags a declare as globally visible when it is an output, a
// spill location, referenced by more than one block, or read in a block
// before being fully written there.
func (self *Kernel) MarkGlobals() {
    seen := make(map[*Declare]int, len(self.Decls))

    /* reset the marks */
    for _, d := range self.Decls {
        d.Global = d.Output || d.IsSpillLoc()
    }

    /* scan every block */
    for _, bb := range self.Blocks {
        for _, ins := range bb.Ins {
            ForEachDecl(ins, func(d *Declare) {
                if b, ok := seen[d]; !ok {
                    seen[d] = bb.Id
                } else if b != bb.Id {
                    d.Global = true
                }
            })
        }
        markExposed(bb)
    }
}

// markExposed flags the declares whose value flows into bb from outside.
func markExposed(bb *Block) {
    wr := make(map[*Declare][]Span)

    /* scan in program order */
    for _, ins := range bb.Ins {
        if ins.Op.IsPseudo() {
            continue
        }

        /* every direct read must be covered by earlier writes */
        for _, ref := range ins.Sources() {
            if op := ins.Operand(ref.Slot); op.IsDirect() && op.Base.File != RF_Acc {
                if !covered(wr[op.Base], op.SrcSpan(ins.Exec)) {
                    op.Base.Global = true
                }
            }
        }

        /* predicates read flags */
        if ins.Pred != nil {
            if !covered(wr[ins.Pred.Flag], predBytes(ins.Pred.SubReg, ins.Exec)) {
                ins.Pred.Flag.Global = true
            }
        }

        /* record unpredicated writes */
        if !ins.PartialWrite() {
            if op := ins.Dst; op.IsDirect() && op.Base.File != RF_Acc {
                wr[op.Base] = append(wr[op.Base], op.DstSpan(ins.Exec))
            }
            if ins.Cond != nil {
                wr[ins.Cond.Flag] = append(wr[ins.Cond.Flag], predBytes(ins.Cond.SubReg, ins.Exec))
            }
        }
    }
}

// predBytes returns the bytes of a flag touched by exec channels starting at
// 16-bit sub-register sub. Partial bytes count as touched.
func predBytes(sub int, exec int) Span {
    return Span { Lo: sub * 2, Hi: sub * 2 + (exec + 7) / 8 }
}

func covered(spans []Span, s Span) bool {
    for lo := s.Lo; lo < s.Hi; {
        next := lo
        for _, v := range spans {
            if v.Lo <= lo && v.Hi > next {
                next = v.Hi
            }
        }
        if next == lo {
            return false
        }
        lo = next
    }
    return true
}

func (self *Kernel) String() string {
    buf := make([]string, 0, len(self.Blocks))
    for _, bb := range self.Blocks {
        buf = append(buf, bb.String())
    }
    return fmt.Sprintf(
        "Kernel %s {\n%s\n}",
        self.Name,
        strings.Join(buf, "\n"),
    )
}
