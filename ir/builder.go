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

// Builder appends instructions to a block.
type Builder struct {
    k  *Kernel
    bb *Block
}

// CreateBuilder creates a builder appending to bb of kernel k.
func CreateBuilder(k *Kernel, bb *Block) *Builder {
    return &Builder { k: k, bb: bb }
}

func (self *Builder) Kernel() *Kernel { return self.k }
func (self *Builder) Block()  *Block  { return self.bb }

// SetBlock switches the block being appended to.
func (self *Builder) SetBlock(bb *Block) {
    self.bb = bb
}

// Add appends ins and gives it the next local id.
func (self *Builder) Add(ins *Inst) *Inst {
    ins.Id = len(self.bb.Ins)
    self.bb.Ins = append(self.bb.Ins, ins)
    return ins
}

// Op appends a generic instruction.
func (self *Builder) Op(op OpCode, exec int, dst *Operand, src ...*Operand) *Inst {
    ins := &Inst {
        Op   : op,
        Exec : exec,
        Dst  : dst,
    }
    if len(src) > op.NumSrc() {
        panic("ir: too many sources for " + op.String())
    }
    copy(ins.Src[:], src)
    return self.Add(ins)
}

func (self *Builder) MOV(exec int, dst *Operand, src *Operand) *Inst {
    return self.Op(OP_mov, exec, dst, src)
}

func (self *Builder) ADD(exec int, dst *Operand, x *Operand, y *Operand) *Inst {
    return self.Op(OP_add, exec, dst, x, y)
}

func (self *Builder) MUL(exec int, dst *Operand, x *Operand, y *Operand) *Inst {
    return self.Op(OP_mul, exec, dst, x, y)
}

func (self *Builder) MAD(exec int, dst *Operand, x *Operand, y *Operand, z *Operand) *Inst {
    return self.Op(OP_mad, exec, dst, x, y, z)
}

func (self *Builder) SEL(exec int, dst *Operand, x *Operand, y *Operand) *Inst {
    return self.Op(OP_sel, exec, dst, x, y)
}

// CMP appends a compare writing its result into sub-register sub of flag.
func (self *Builder) CMP(exec int, cm Cond, flag *Declare, sub int, dst *Operand, x *Operand, y *Operand) *Inst {
    ins := self.Op(OP_cmp, exec, dst, x, y)
    ins.Cond = &CondModifier { Flag: flag, SubReg: sub, Cond: cm }
    return ins
}

// MAC appends a multiply-accumulate reading acc0 implicitly.
func (self *Builder) MAC(exec int, dst *Operand, x *Operand, y *Operand) *Inst {
    ins := self.Op(OP_mac, exec, dst, x, y)
    ins.ImplAccSrc = NewSrc(self.k.Acc(0), dst.Type, 0, Contiguous(exec))
    return ins
}

// LifetimeEnd appends a lifetime marker for d.
func (self *Builder) LifetimeEnd(d *Declare) *Inst {
    return self.Add(NewLifetimeEnd(d))
}

// PseudoUse appends a pseudo use of d.
func (self *Builder) PseudoUse(d *Declare) *Inst {
    return self.Add(&Inst {
        Op     : OP_pseudo_use,
        Exec   : 1,
        Src    : [3]*Operand { NewSrc(d, d.Type, 0, Scalar()) },
    })
}

// NewLifetimeEnd creates a lifetime marker for d.
func NewLifetimeEnd(d *Declare) *Inst {
    return &Inst {
        Op   : OP_lifetime_end,
        Exec : 1,
        Src  : [3]*Operand { NewSrc(d, d.Type, 0, Scalar()) },
    }
}

// NewMove creates a mov (exec) dst src with the given options.
func NewMove(exec int, dst *Operand, src *Operand, mask Mask) *Inst {
    return &Inst {
        Op   : OP_mov,
        Exec : exec,
        Mask : mask,
        Dst  : dst,
        Src  : [3]*Operand { src },
    }
}

// WithPred sets the predicate of the instruction.
func (self *Inst) WithPred(flag *Declare, sub int, inv bool) *Inst {
    self.Pred = &Predicate { Flag: flag, SubReg: sub, Inverse: inv }
    return self
}

// WithCond sets the conditional modifier of the instruction.
func (self *Inst) WithCond(cm Cond, flag *Declare, sub int) *Inst {
    self.Cond = &CondModifier { Flag: flag, SubReg: sub, Cond: cm }
    return self
}

// WithMask sets the instruction options.
func (self *Inst) WithMask(m Mask) *Inst {
    self.Mask |= m
    return self
}
