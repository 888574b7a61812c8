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

// Slot names an operand position of an instruction.
type Slot uint8

const (
    Slot_dst Slot = iota
    Slot_src0
    Slot_src1
    Slot_src2
    Slot_pred
    Slot_condmod
    Slot_implAccSrc
    _Slot_max
)

var _SlotNames = [...]string {
    Slot_dst        : "dst",
    Slot_src0       : "src0",
    Slot_src1       : "src1",
    Slot_src2       : "src2",
    Slot_pred       : "pred",
    Slot_condmod    : "condmod",
    Slot_implAccSrc : "implAccSrc",
}

// SrcSlot returns the slot of source i.
func SrcSlot(i int) Slot {
    if i < 0 || i > 2 {
        panic(fmt.Sprintf("ir: invalid source index %d", i))
    }
    return Slot_src0 + Slot(i)
}

// IsSrc reports whether the slot is one of the explicit sources.
func (self Slot) IsSrc() bool {
    return self >= Slot_src0 && self <= Slot_src2
}

// SrcIndex returns the source index of an explicit source slot.
func (self Slot) SrcIndex() int {
    if !self.IsSrc() {
        panic("ir: not a source slot: " + self.String())
    }
    return int(self - Slot_src0)
}

func (self Slot) String() string {
    return _SlotNames[self]
}

// Ref is an (instruction, operand slot) pair.
type Ref struct {
    Inst *Inst
    Slot Slot
}

func (self Ref) String() string {
    return fmt.Sprintf("#%d.%s", self.Inst.Id, self.Slot)
}

// Inst is a single instruction of a block.
type Inst struct {
    Op         OpCode
    Exec       int
    Mask       Mask
    Dst        *Operand
    Src        [3]*Operand
    Pred       *Predicate
    Cond       *CondModifier
    ImplAccSrc *Operand
    ImplAccDst *Operand
    Id         int
    uses       []Ref
    defs       [_Slot_max][]*Inst
}

// NumSrc returns the number of explicit sources the opcode takes.
func (self *Inst) NumSrc() int {
    return self.Op.NumSrc()
}

// Operand returns the register operand in slot s, or nil for predicate and
// condition modifier slots.
func (self *Inst) Operand(s Slot) *Operand {
    switch s {
        case Slot_dst        : return self.Dst
        case Slot_src0       : return self.Src[0]
        case Slot_src1       : return self.Src[1]
        case Slot_src2       : return self.Src[2]
        case Slot_implAccSrc : return self.ImplAccSrc
        default              : return nil
    }
}

// SetOperand replaces the register operand in slot s.
func (self *Inst) SetOperand(s Slot, op *Operand) {
    switch s {
        case Slot_dst        : self.Dst = op
        case Slot_src0       : self.Src[0] = op
        case Slot_src1       : self.Src[1] = op
        case Slot_src2       : self.Src[2] = op
        case Slot_implAccSrc : self.ImplAccSrc = op
        default              : panic("ir: SetOperand on " + s.String())
    }
}

// Sources returns the non-null explicit sources together with their slots.
func (self *Inst) Sources() (ret []Ref) {
    for i := 0; i < self.NumSrc(); i++ {
        if !self.Src[i].IsNull() {
            ret = append(ret, Ref { self, SrcSlot(i) })
        }
    }
    return
}

// IsEOT reports whether the instruction terminates the thread.
func (self *Inst) IsEOT() bool {
    return self.Mask & Mask_EOT != 0
}

// IsNoMask reports whether the instruction ignores the dispatch mask.
func (self *Inst) IsNoMask() bool {
    return self.Mask & Mask_NoMask != 0
}

// HasImplicitAcc reports whether the instruction implicitly reads or writes an accumulator.
func (self *Inst) HasImplicitAcc() bool {
    return self.ImplAccSrc != nil || self.ImplAccDst != nil
}

// Uses returns the instructions reading the value defined by this instruction.
func (self *Inst) Uses() []Ref {
    return self.uses
}

// Defs returns the reaching definitions of the operand in slot s.
func (self *Inst) Defs(s Slot) []*Inst {
    return self.defs[s]
}

// AddDefUse links the definition def to the operand slot s of this instruction.
func (self *Inst) AddDefUse(def *Inst, s Slot) {
    def.uses = append(def.uses, Ref { self, s })
    self.defs[s] = append(self.defs[s], def)
}

// ClearDefUse drops all def-use links of this instruction.
func (self *Inst) ClearDefUse() {
    self.uses = nil
    for i := range self.defs {
        self.defs[i] = nil
    }
}

func (self *Inst) String() string {
    var sb strings.Builder
    var ops []string

    /* predicate */
    if self.Pred != nil {
        sb.WriteString(self.Pred.String())
        sb.WriteByte(' ')
    }

    /* opcode, conditional modifier and execution size */
    sb.WriteString(self.Op.String())
    if self.Cond != nil {
        sb.WriteString(self.Cond.String())
    }
    fmt.Fprintf(&sb, " (%d)", self.Exec)

    /* operands */
    if self.Dst != nil {
        ops = append(ops, self.Dst.String())
    }
    for i := 0; i < self.NumSrc(); i++ {
        if self.Src[i] != nil {
            ops = append(ops, self.Src[i].String())
        }
    }

    /* join them together */
    if len(ops) != 0 {
        sb.WriteByte(' ')
        sb.WriteString(strings.Join(ops, " "))
    }

    /* instruction options */
    if self.Mask != 0 {
        sb.WriteByte(' ')
        sb.WriteString(self.Mask.String())
    }

    /* implicit operands */
    if self.ImplAccSrc != nil {
        fmt.Fprintf(&sb, " # implicit %s", self.ImplAccSrc)
    }
    return sb.String()
}
