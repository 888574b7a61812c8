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

// Package fuzz generates random kernels for equivalence testing.
package fuzz

import (
    `fmt`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/regreclaim/internal/opts`
    `github.com/cloudwego/regreclaim/ir`
)

type _Gen struct {
    f    *gofakeit.Faker
    k    *ir.Kernel
    b    *ir.Builder
    t    ir.Type
    exec int
    vals []*ir.Declare
    ins  []*ir.Declare
    outs []*ir.Declare
    ntmp int
}

func newGen(name string, seed int64) *_Gen {
    k := ir.NewKernel(fmt.Sprintf("%s_%d", name, seed))
    return &_Gen {
        f : newFaker(seed),
        k : k,
        b : ir.CreateBuilder(k, k.NewBlock()),
    }
}

// newFaker maps seed onto a faker seed. Zero asks gofakeit for a random
// seed, so it is never passed through.
func newFaker(seed int64) *gofakeit.Faker {
    if seed >= 0 {
        return gofakeit.New(seed + 1)
    } else {
        return gofakeit.New(seed)
    }
}

func (self *_Gen) pick(n int) int {
    return self.f.Number(0, n - 1)
}

func (self *_Gen) chance(n int) bool {
    return self.pick(n) == 0
}

func (self *_Gen) src(d *ir.Declare) *ir.Operand {
    if self.chance(8) {
        return ir.NewSrc(d, self.t, 0, ir.Scalar())
    } else {
        return ir.NewSrc(d, self.t, 0, ir.Contiguous(self.exec))
    }
}

func (self *_Gen) dst(d *ir.Declare) *ir.Operand {
    return ir.NewDst(d, self.t, 0, 1)
}

func (self *_Gen) imm() *ir.Operand {
    if self.t.IsFloat() {
        return ir.NewImm(0x3f800000, self.t)
    } else {
        return ir.NewImm(int64(self.f.Number(-8, 8)), self.t)
    }
}

// operand picks a source among the live values, the inputs and immediates.
func (self *_Gen) operand() *ir.Operand {
    switch n := len(self.vals); {
        case n > 0 && !self.chance(4) : return self.src(self.vals[n - 1 - self.pick(minint(n, 4))])
        case !self.chance(4)          : return self.src(self.ins[self.pick(len(self.ins))])
        default                       : return self.imm()
    }
}

// target picks a destination: a fresh temporary, a live value or an output.
func (self *_Gen) target() *ir.Declare {
    switch {
        case len(self.vals) > 0 && self.chance(8): {
            return self.vals[self.pick(len(self.vals))]
        }
        case self.chance(5): {
            return self.outs[self.pick(len(self.outs))]
        }
        default: {
            self.ntmp++
            d := self.k.NewDeclare(fmt.Sprintf("t%d", self.ntmp), ir.RF_GRF, self.t, self.exec)
            self.vals = append(self.vals, d)
            return d
        }
    }
}

// AccKernel generates a single block of arithmetic on local values, the
// kind of code accumulator substitution applies to.
func AccKernel(seed int64, o *opts.Options) *ir.Kernel {
    g := newGen("acc", seed)
    g.t = ir.T_F
    g.exec = o.NativeExecSize

    /* type and width */
    if g.chance(2) {
        g.t = ir.T_D
    }
    if g.chance(3) {
        g.exec *= 2
    }

    /* operands */
    p := g.k.NewDeclare("p", ir.RF_Flag, ir.T_UW, ir.FlagWordBits * ir.FlagWords(g.exec))
    for i := 0; i < 2; i++ {
        g.ins = append(g.ins, g.k.NewDeclare(fmt.Sprintf("in%d", i), ir.RF_GRF, g.t, g.exec))
        g.outs = append(g.outs, g.k.NewDeclare(fmt.Sprintf("out%d", i), ir.RF_GRF, g.t, g.exec))
        g.outs[i].Output = true
    }

    /* a predicate for partial writes */
    g.b.CMP(g.exec, ir.CM_lt, p, 0, ir.Null(), g.src(g.ins[0]), g.src(g.ins[1]))

    /* the body */
    for i, n := 0, g.f.Number(4, 24); i < n; i++ {
        x, y, z := g.operand(), g.operand(), g.operand()
        switch op, d := g.pick(10), g.dst(g.target()); op {
            case 0     : g.b.MOV(g.exec, d, x)
            case 1     : g.b.MUL(g.exec, d, x, y)
            case 2, 3  : g.b.MAD(g.exec, d, x, y, z)
            case 4     : g.b.SEL(g.exec, d, x, y).WithPred(p, 0, g.chance(2))
            case 5     : g.b.ADD(g.exec, d, x, y).WithPred(p, 0, false)
            case 6     : g.b.Op(ir.OP_math, g.exec, d, x, y)
            default    : g.b.ADD(g.exec, d, x, y)
        }

        /* occasionally end or pin a value */
        if n := len(g.vals); n > 0 && g.chance(12) {
            g.b.PseudoUse(g.vals[g.pick(n)])
        }
    }

    /* make the results observable */
    for _, d := range g.outs {
        g.b.ADD(g.exec, g.dst(d), g.operand(), g.src(d))
    }
    for _, d := range g.vals {
        if g.chance(3) {
            g.b.LifetimeEnd(d)
        }
    }
    return g.k
}

// SpillKernel generates code reading and writing spilled flag and address
// registers. The first definition of every flag word writes all of its bits.
func SpillKernel(seed int64, o *opts.Options) *ir.Kernel {
    g := newGen("spill", seed)
    g.t = ir.T_D
    g.exec = o.NativeExecSize

    /* the indirectly addressed buffer comes first */
    buf := g.k.NewDeclare("buf", ir.RF_GRF, ir.T_UD, 64)
    buf.Exposed = true
    buf.Output = true

    /* spilled registers */
    a := g.k.NewDeclare("a", ir.RF_Address, ir.T_UW, 2)
    f := g.k.NewDeclare("f", ir.RF_Flag, ir.T_UW, 32)
    h := g.k.NewDeclare("h", ir.RF_Flag, ir.T_UW, 16)
    w := g.k.NewDeclare("w", ir.RF_GRF, ir.T_UW, 2)
    a.Spilled, f.Spilled, h.Spilled, w.Output = true, true, true, true
    flags := []struct { d *ir.Declare; sub int } { { f, 0 }, { f, 1 }, { h, 0 } }

    /* inputs and outputs */
    g.ins = append(g.ins, g.k.NewDeclare("in0", ir.RF_GRF, g.t, 16))
    for i := 0; i < 2; i++ {
        g.outs = append(g.outs, g.k.NewDeclare(fmt.Sprintf("out%d", i), ir.RF_GRF, g.t, 16))
        g.outs[i].Output = true
    }

    /* full width definitions first */
    for _, fl := range flags {
        g.b.CMP(16, ir.Cond(g.pick(6)), fl.d, fl.sub, ir.Null(), ir.NewSrc(g.ins[0], g.t, 0, ir.Contiguous(16)), g.imm())
    }

    /* a second block, sometimes */
    bbs := []*ir.Block { g.b.Block() }
    if g.chance(2) {
        bbs = append(bbs, g.k.NewBlock())
        g.k.Link(bbs[0], bbs[1])
    }

    /* the body */
    for i, n := 0, g.f.Number(6, 30); i < n; i++ {
        fl := flags[g.pick(len(flags))]
        out := g.outs[g.pick(len(g.outs))]
        exec := []int { 8, 16 }[g.pick(2)]

        /* move to the next block halfway */
        if len(bbs) > 1 && i == n / 2 {
            g.b.SetBlock(bbs[1])
        }

        /* random instruction */
        switch g.pick(9) {
            case 0: {
                g.b.ADD(exec, ir.NewDst(out, g.t, 0, 1), ir.NewSrc(g.ins[0], g.t, 0, ir.Contiguous(exec)), g.imm()).WithPred(fl.d, fl.sub, g.chance(2))
            }
            case 1: {
                g.b.CMP(exec, ir.Cond(g.pick(6)), fl.d, fl.sub, ir.Null(), ir.NewSrc(out, g.t, 0, ir.Contiguous(exec)), g.imm())
            }
            case 2: {
                p := flags[g.pick(len(flags))]
                g.b.CMP(exec, ir.CM_gt, fl.d, fl.sub, ir.Null(), ir.NewSrc(g.ins[0], g.t, 0, ir.Contiguous(exec)), g.imm()).WithPred(p.d, p.sub, false)
            }
            case 3: {
                g.b.MOV(8, ir.NewDst(out, g.t, 0, 1), ir.NewIndirect(a, g.pick(2), g.pick(8) * 4, g.t, ir.Contiguous(8)))
            }
            case 4: {
                g.b.MOV(8, &ir.Operand { Base: a, Type: g.t, SubReg: g.pick(2), Indirect: true, AddrImm: g.pick(8) * 4, Region: ir.Region { HStride: 1 } }, ir.NewSrc(out, g.t, 0, ir.Contiguous(8)))
            }
            case 5: {
                g.b.SEL(exec, ir.NewDst(out, g.t, 0, 1), ir.NewSrc(g.ins[0], g.t, 0, ir.Contiguous(exec)), g.imm()).WithPred(fl.d, fl.sub, false)
            }
            case 6: {
                g.b.MOV(1, ir.NewDst(a, ir.T_UW, g.pick(2), 1), ir.NewImm(int64(g.pick(16) * 4), ir.T_UW))
            }
            case 7: {
                g.b.MOV(1, ir.NewDst(w, ir.T_UW, g.pick(2), 1), ir.NewSrc(fl.d, ir.T_UW, fl.sub, ir.Scalar()))
            }
            default: {
                g.b.MOV(1, ir.NewDst(fl.d, ir.T_UW, fl.sub, 1), ir.NewImm(int64(g.f.Uint16()), ir.T_UW)).WithMask(ir.Mask_NoMask)
            }
        }
    }

    /* pin one of the flags and end the thread */
    if g.chance(4) {
        g.b.PseudoUse(flags[g.pick(len(flags))].d)
    }
    g.b.Op(ir.OP_send, 8, ir.Null(), ir.NewSrc(g.outs[0], g.t, 0, ir.Contiguous(8))).WithMask(ir.Mask_EOT)
    return g.k
}

func minint(a int, b int) int {
    if a < b {
        return a
    } else {
        return b
    }
}
