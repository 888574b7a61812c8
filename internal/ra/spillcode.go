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
    `fmt`

    `github.com/cloudwego/regreclaim/ir`
)

type _AddrKey struct {
    decl  *ir.Declare
    sub   int
    count int
}

type _InstSpill struct {
    pre   []*ir.Inst
    post  []*ir.Inst
    temps []*ir.Declare
    addr  map[_AddrKey]*ir.Declare
    naddr int
    nflag int
}

func (self *_InstSpill) temp(d *ir.Declare) *ir.Declare {
    self.temps = append(self.temps, d)
    return d
}

type _SpillGen struct {
    ctx  *Context
    rmw  map[*ir.Inst]bool
    ntmp int
}

func spilled(d *ir.Declare) bool {
    return d != nil && d.Spilled && (d.File == ir.RF_Address || d.File == ir.RF_Flag)
}

func (self *_SpillGen) spillLoc(d *ir.Declare) *ir.Declare {
    if loc := d.SpillLoc(); loc != nil {
        return loc
    }

    /* create the location on first use */
    loc := self.ctx.Kernel.NewDeclare(d.Name + "_spill", ir.RF_GRF, ir.T_UW, d.Words())
    loc.Align = ir.Align_GRF
    d.SetSpillLoc(loc)
    return loc
}

func (self *_SpillGen) newTemp(d *ir.Declare, elems int) *ir.Declare {
    self.ntmp++
    return self.ctx.Kernel.NewDeclare(fmt.Sprintf("%s_tmp%d", d.Name, self.ntmp), d.File, ir.T_UW, elems)
}

// precheck finds the flag definitions that may skip the read-modify-write
// fill: the flow graph is reducible, the definition is the only one or
// dominates every other one, and every use is in its loop or a nested one.
func (self *_SpillGen) precheck() {
    flow := self.ctx.Opts.FlowInfo()
    defs := make(map[*ir.Declare][]*ir.Inst)
    uses := make(map[*ir.Declare][]*ir.Block)
    pos := make(map[*ir.Inst]int)
    blk := make(map[*ir.Inst]*ir.Block)

    /* irreducible graphs always keep the fills */
    if !flow.Reducible() {
        return
    }

    /* collect the definitions and uses of every spilled flag */
    for _, bb := range self.ctx.Kernel.Blocks {
        for i, ins := range bb.Ins {
            pos[ins] = i
            blk[ins] = bb

            /* definitions */
            if ins.Cond != nil && spilled(ins.Cond.Flag) {
                defs[ins.Cond.Flag] = append(defs[ins.Cond.Flag], ins)
            }
            if op := ins.Dst; op.In(ir.RF_Flag) && spilled(op.Base) {
                defs[op.Base] = append(defs[op.Base], ins)
            }

            /* uses */
            if ins.Pred != nil && spilled(ins.Pred.Flag) {
                uses[ins.Pred.Flag] = append(uses[ins.Pred.Flag], bb)
            }
            for _, r := range ins.Sources() {
                if op := ins.Operand(r.Slot); op.In(ir.RF_Flag) && spilled(op.Base) {
                    uses[op.Base] = append(uses[op.Base], bb)
                }
            }
        }
    }

    /* instruction level dominance */
    dominates := func(a *ir.Inst, b *ir.Inst) bool {
        if blk[a] == blk[b] {
            return pos[a] < pos[b]
        } else {
            return flow.Dominates(blk[a], blk[b])
        }
    }

    /* check every definition */
    for d, dd := range defs {
        for _, def := range dd {
            ok := true

            /* must dominate the other definitions */
            for _, v := range dd {
                if v != def && !dominates(def, v) {
                    ok = false
                    break
                }
            }

            /* every use must stay in the loop nest */
            for _, bb := range uses[d] {
                if !ok {
                    break
                }
                ok = flow.InSameLoopOrNested(blk[def], bb)
            }

            /* mark as safe */
            if ok {
                self.rmw[def] = true
            }
        }
    }
}

func (self *_SpillGen) chunk(n int) int {
    for _, c := range self.ctx.Opts.MoveChunks {
        if c <= n {
            return c
        }
    }
    return 1
}

// fillAddr loads n elements of the spilled address register into tmp.
func (self *_SpillGen) fillAddr(st *_InstSpill, tmp *ir.Declare, loc *ir.Declare, n int) {
    for off := 0; off < n; {
        c := self.chunk(n - off)
        dst := ir.NewDst(tmp, ir.T_UW, off, 1)
        src := ir.NewSrc(loc, ir.T_UW, off, ir.Contiguous(c))
        st.pre = append(st.pre, ir.NewMove(c, dst, src, ir.Mask_NoMask))
        self.ctx.Stats.Fills++
        off += c
    }
}

// fillFlag loads words words of the spilled flag starting at sub into tmp.
func (self *_SpillGen) fillFlag(st *_InstSpill, tmp *ir.Declare, loc *ir.Declare, sub int, words int) {
    dst := ir.NewDst(tmp, ir.T_UW, 0, 1)
    src := ir.NewSrc(loc, ir.T_UW, sub, ir.Contiguous(words))
    st.pre = append(st.pre, ir.NewMove(words, dst, src, ir.Mask_NoMask))
    self.ctx.Stats.Fills++
}

// spillFlag stores tmp back to the spill location after the instruction.
func (self *_SpillGen) spillFlag(st *_InstSpill, tmp *ir.Declare, loc *ir.Declare, sub int, words int) {
    dst := ir.NewDst(loc, ir.T_UW, sub, 1)
    src := ir.NewSrc(tmp, ir.T_UW, 0, ir.Contiguous(words))
    st.post = append(st.post, ir.NewMove(words, dst, src, ir.Mask_NoMask))
    self.ctx.Stats.Spills++
}

// operand rewrites a register operand referencing a spilled declare.
func (self *_SpillGen) operand(st *_InstSpill, ins *ir.Inst, s ir.Slot) {
    op := ins.Operand(s)
    if !op.IsReg() || !spilled(op.Base) {
        return
    }

    /* direct references go to the spill location */
    ret := op.Clone()
    if !op.Indirect {
        ret.Base = self.spillLoc(op.Base)
        ins.SetOperand(s, ret)
        return
    }

    /* indirect references need the address in a register */
    d := op.Base
    key := _AddrKey { d, 0, d.Elems }
    tmp, ok := st.addr[key]

    /* not loaded by this instruction yet */
    if !ok {
        tmp = st.temp(self.newTemp(d, d.Elems))
        st.addr[key] = tmp
        st.naddr += d.Elems
        self.fillAddr(st, tmp, self.spillLoc(d), d.Elems)
        self.ctx.Stats.AddrTemps++
    }

    /* rebind the operand */
    ret.Base = tmp
    ins.SetOperand(s, ret)
}

// rewrite makes every reference of ins to a spilled declare concrete,
// returning the instructions to insert before and after it.
func (self *_SpillGen) rewrite(ins *ir.Inst) *_InstSpill {
    st := &_InstSpill { addr: make(map[_AddrKey]*ir.Declare) }
    rd := (*ir.Declare)(nil)

    /* pseudo instructions only reference the location */
    if ins.Op.IsPseudo() {
        if op := ins.Src[0]; op.IsReg() && !op.Indirect {
            self.operand(st, ins, ir.Slot_src0)
        }
        return st
    }

    /* sources first */
    for _, r := range ins.Sources() {
        self.operand(st, ins, r.Slot)
    }

    /* the predicate is filled into a temporary */
    pred := ins.Pred
    partial := ins.PartialWrite() || ins.Exec % ir.FlagWordBits != 0
    if pred != nil && spilled(pred.Flag) {
        words := ir.FlagWords(ins.Exec)
        rd = st.temp(self.newTemp(pred.Flag, words * ir.FlagWordBits))
        st.nflag += words
        self.fillFlag(st, rd, self.spillLoc(pred.Flag), pred.SubReg, words)
        ins.Pred = &ir.Predicate { Flag: rd, SubReg: 0, Inverse: pred.Inverse }
        self.ctx.Stats.FlagTemps++
    }

    /* then the destination */
    self.operand(st, ins, ir.Slot_dst)

    /* the condition modifier writes a temporary stored back afterwards */
    if cm := ins.Cond; cm != nil && spilled(cm.Flag) {
        tmp := rd
        loc := self.spillLoc(cm.Flag)
        words := ir.FlagWords(ins.Exec)

        /* share the predicate temporary when reading and writing the same bits */
        if rd == nil || pred.Flag != cm.Flag || pred.SubReg != cm.SubReg {
            tmp = st.temp(self.newTemp(cm.Flag, words * ir.FlagWordBits))
            st.nflag += words
            self.ctx.Stats.FlagTemps++

            /* partial writes preserve the other bits */
            if partial && !self.rmw[ins] {
                self.fillFlag(st, tmp, loc, cm.SubReg, words)
            }
        }

        /* rebind and store */
        ins.Cond = &ir.CondModifier { Flag: tmp, SubReg: 0, Cond: cm.Cond }
        self.spillFlag(st, tmp, loc, cm.SubReg, words)
    }

    /* temporaries end right after their last consumer */
    for _, d := range st.temps {
        st.post = append(st.post, ir.NewLifetimeEnd(d))
    }

    /* we only have this many physical registers, the rewrite stays either way */
    _ = self.ctx.assert(st.naddr <= self.ctx.Opts.NumAddr, "%d address elements needed by: %s", st.naddr, ins)
    _ = self.ctx.assert(st.nflag <= self.ctx.Opts.NumFlag, "%d flag words needed by: %s", st.nflag, ins)
    return st
}

// SpillCode synthesizes the fills and spills of the address and flag
// declares the register allocator left without a physical register.
type SpillCode struct{}

func (SpillCode) Apply(ctx *Context) {
    sg := &_SpillGen {
        ctx : ctx,
        rmw : make(map[*ir.Inst]bool),
    }

    /* find the definitions that skip the fills */
    sg.precheck()

    /* rewrite every block */
    for _, bb := range ctx.Kernel.Blocks {
        buf := make([]*ir.Inst, 0, len(bb.Ins))
        for _, ins := range bb.Ins {
            st := sg.rewrite(ins)
            buf = append(buf, st.pre...)
            buf = append(buf, ins)
            buf = append(buf, st.post...)
        }
        bb.Ins = buf
        bb.Renumber()
    }
}
