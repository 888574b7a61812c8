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
    `math`
    `sort`

    `github.com/cloudwego/regreclaim/internal/opts`
    `github.com/cloudwego/regreclaim/ir`
)

// Interval is the local lifetime of a value that may live in an accumulator.
type Interval struct {
    Inst        *ir.Inst    // defining instruction, nil for values live into the block
    Def         int
    LastUse     int
    Uses        []ir.Ref
    Count       int
    Width       int         // number of adjacent accumulators needed
    Acc         int         // first bound accumulator, -1 when unbound
    MustAcc0    bool        // a use needs the mad to mac rewrite
    PreAssigned bool        // already an accumulator in the input
    Evicted     bool
}

// Cost is the spill cost: uses^3 / (lastUse - def).
func (self *Interval) Cost() float64 {
    if self.PreAssigned || self.LastUse <= self.Def {
        return math.Inf(1)
    } else {
        return math.Pow(float64(self.Count), 3) / float64(self.LastUse - self.Def)
    }
}

func (self *Interval) mask() accset {
    return accmask(self.Acc, self.Width)
}

func (self *Interval) String() string {
    acc := "-"
    if self.Acc >= 0 {
        acc = fmt.Sprintf("acc%d", self.Acc)
        if self.Width == 2 {
            acc += fmt.Sprintf("+acc%d", self.Acc + 1)
        }
    }
    return fmt.Sprintf("[%d, %d] x%d %s", self.Def, self.LastUse, self.Count, acc)
}

type _AccAlloc struct {
    o      *opts.Options
    k      *ir.Kernel
    bb     *ir.Block
    ivs    []*Interval
    active []*Interval
    pinned map[*ir.Declare]bool
    macs   map[*ir.Inst]bool
}

func newAccAlloc(k *ir.Kernel, bb *ir.Block, o *opts.Options) *_AccAlloc {
    return &_AccAlloc {
        o      : o,
        k      : k,
        bb     : bb,
        pinned : make(map[*ir.Declare]bool),
        macs   : make(map[*ir.Inst]bool),
    }
}

// needBoth reports whether a value of type t written by exec channels
// occupies two adjacent accumulators.
func (self *_AccAlloc) needBoth(t ir.Type, exec int) bool {
    switch t {
        case ir.T_F, ir.T_D, ir.T_UD : return exec == self.o.NativeExecSize * 2
        case ir.T_DF                 : return exec > self.o.NativeExecSize / 2
        case ir.T_HF, ir.T_W, ir.T_UW: return false
        default                      : return true
    }
}

func (self *_AccAlloc) collect() {
    self.bb.Renumber()
    self.bb.BuildDefUse()

    /* pseudo uses keep the value in its register */
    for _, ins := range self.bb.Ins {
        if ins.Op == ir.OP_pseudo_use && ins.Src[0].IsReg() {
            self.pinned[ins.Src[0].Base] = true
        }
    }

    /* existing accumulator values, then the candidates */
    self.natives()
    for _, ins := range self.bb.Ins {
        if iv := self.candidate(ins); iv != nil {
            self.ivs = append(self.ivs, iv)
        }
    }

    /* sort by definition */
    sort.SliceStable(self.ivs, func(i int, j int) bool {
        return self.ivs[i].Def < self.ivs[j].Def
    })
}

func (self *_AccAlloc) nativeWidth(op *ir.Operand, exec int) int {
    if n := op.Base.Phys; op.Type.Size() * exec > self.o.AccBytes() && n % 2 == 0 && n + 1 < self.o.NumAcc {
        return 2
    } else {
        return 1
    }
}

// natives builds the pre-assigned intervals of the accumulators the input
// already uses explicitly or implicitly.
func (self *_AccAlloc) natives() {
    open := make(map[int]*Interval)

    /* scan in program order */
    for _, ins := range self.bb.Ins {
        if ins.Op.IsPseudo() {
            continue
        }

        /* reads extend the open interval */
        for _, op := range [...]*ir.Operand { ins.Src[0], ins.Src[1], ins.Src[2], ins.ImplAccSrc } {
            if op.IsAcc() {
                n := op.Base.Phys
                iv := open[n]

                /* read without a local definition */
                if iv == nil {
                    iv = &Interval {
                        Def         : -1,
                        Acc         : n,
                        Width       : self.nativeWidth(op, ins.Exec),
                        PreAssigned : true,
                    }
                    open[n] = iv
                    self.ivs = append(self.ivs, iv)
                }

                /* extend to this use */
                iv.Count++
                iv.LastUse = ins.Id
            }
        }

        /* writes start a new interval */
        for _, op := range [...]*ir.Operand { ins.Dst, ins.ImplAccDst } {
            if op.IsAcc() {
                iv := &Interval {
                    Inst        : ins,
                    Def         : ins.Id,
                    LastUse     : ins.Id,
                    Acc         : op.Base.Phys,
                    Width       : self.nativeWidth(op, ins.Exec),
                    PreAssigned : true,
                }
                open[iv.Acc] = iv
                self.ivs = append(self.ivs, iv)
            }
        }
    }
}

// candidate builds the interval of the destination of ins, or returns nil
// if it cannot live in an accumulator.
func (self *_AccAlloc) candidate(ins *ir.Inst) *Interval {
    dst := ins.Dst
    uses := ins.Uses()

    /* must be a direct, block-local register */
    if ins.Op.IsPseudo() || !dst.IsDirect() {
        return nil
    }

    /* check the declare */
    switch d := dst.Base; {
        case d.File != ir.RF_GRF                    : return nil
        case d.Global || d.Output || d.Exposed      : return nil
        case d.IsSpillLoc() || self.pinned[d]       : return nil
    }

    /* check whether the destination could be an accumulator */
    switch {
        case ins.Cond != nil || ins.ImplAccDst != nil                      : return nil
        case !ins.Op.AccDstOK() || ins.PartialWrite()                      : return nil
        case dst.Type.Size() == 1 || dst.Region.HStride != 1               : return nil
        case ins.Exec > self.o.NativeExecSize * 2                          : return nil
        case ins.Exec * dst.Type.Size() > self.o.AccBytes() * 2            : return nil
        case len(uses) == 0                                                : return nil
    }

    /* create the interval */
    iv := &Interval {
        Inst    : ins,
        Def     : ins.Id,
        LastUse : ins.Id,
        Uses    : uses,
        Count   : len(uses),
        Width   : 1,
        Acc     : -1,
    }

    /* every use must be able to read the accumulator */
    for _, u := range uses {
        if !self.legalUse(ins, u, iv) {
            return nil
        } else if u.Inst.Id > iv.LastUse {
            iv.LastUse = u.Inst.Id
        }
    }

    /* two accumulators for wide values */
    if self.needBoth(dst.Type, ins.Exec) {
        iv.Width = 2
    }

    /* must fit into the pool */
    if iv.Width > self.o.NumAcc {
        return nil
    } else {
        return iv
    }
}

func (self *_AccAlloc) legalUse(def *ir.Inst, u ir.Ref, iv *Interval) bool {
    ui := u.Inst
    op := ui.Operand(u.Slot)
    dst := def.Dst

    /* must be an explicit source of an instruction reading accumulators */
    if !u.Slot.IsSrc() || ui.HasImplicitAcc() || !ui.Op.AccSrcOK() || ui == def {
        return false
    }

    /* must be the only reaching definition */
    if defs := ui.Defs(u.Slot); len(defs) != 1 || defs[0] != def {
        return false
    }

    /* the region must match exactly */
    if op.Indirect || op.Type != dst.Type || op.SubReg != dst.SubReg || !op.Region.IsContiguous(ui.Exec) {
        return false
    }

    /* and under the same channels */
    if ui.Exec != def.Exec || ui.Mask != def.Mask {
        return false
    }

    /* check the operand slot */
    switch n, i := ui.NumSrc(), u.Slot.SrcIndex(); {
        case i == 0 && (n == 1 || n == 2) : return true
        case i == 1 && (n == 2 || n == 3) : return true
        case i == 0 && ui.Op == ir.OP_mad :
        default                           : return false
    }

    /* mad src0 is only reachable through the mac rewrite, which reads acc0 */
    if !self.o.Acc3SrcSrc0 {
        iv.MustAcc0 = true
    }
    return true
}

func (self *_AccAlloc) busy() (s accset) {
    for _, v := range self.active {
        s |= v.mask()
    }
    return
}

// fit finds the lowest accumulator iv can be bound to, or -1.
func (self *_AccAlloc) fit(busy accset, iv *Interval) int {
    for b := 0; b + iv.Width <= self.o.NumAcc; b += iv.Width {
        if iv.MustAcc0 && b != 0 {
            break
        }
        if busy.fits(b, iv.Width) {
            return b
        }
    }
    return -1
}

func (self *_AccAlloc) remove(i int) {
    n := len(self.active) - 1
    self.active[i] = self.active[n]
    self.active = self.active[:n]
}

func (self *_AccAlloc) expire(pos int) {
    for i := 0; i < len(self.active); {
        if self.active[i].LastUse <= pos {
            self.remove(i)
        } else {
            i++
        }
    }
}

func (self *_AccAlloc) evict(v *Interval) {
    for i, p := range self.active {
        if p == v {
            self.remove(i)
            break
        }
    }
    v.Acc = -1
    v.Evicted = true
}

// victim picks the cheapest active interval whose eviction lets iv fit.
// Ties prefer a victim that does not need accumulator 0, then one sitting
// in accumulator 0 when iv needs it.
func (self *_AccAlloc) victim(iv *Interval) (ret *Interval) {
    busy := self.busy()

    /* find the best candidate */
    for _, v := range self.active {
        if v.PreAssigned || self.fit(busy &^ v.mask(), iv) < 0 {
            continue
        }
        if ret == nil || self.better(iv, v, ret) {
            ret = v
        }
    }
    return
}

func (self *_AccAlloc) better(iv *Interval, v *Interval, than *Interval) bool {
    if c0, c1 := v.Cost(), than.Cost(); c0 != c1 {
        return c0 < c1
    } else if v.MustAcc0 != than.MustAcc0 {
        return !v.MustAcc0
    } else if iv.MustAcc0 {
        return v.Acc == 0 && than.Acc != 0
    } else {
        return false
    }
}

// scan binds the intervals in program order.
func (self *_AccAlloc) scan() (nb int) {
    for _, iv := range self.ivs {
        self.expire(iv.Def)

        /* pre-assigned intervals take their slot */
        if iv.PreAssigned {
            for _, v := range append([]*Interval(nil), self.active...) {
                if !v.PreAssigned && v.mask() & iv.mask() != 0 {
                    self.evict(v)
                    nb++
                }
            }
            self.active = append(self.active, iv)
            continue
        }

        /* take a free slot if any */
        if b := self.fit(self.busy(), iv); b >= 0 {
            iv.Acc = b
            self.active = append(self.active, iv)
            continue
        }

        /* spill a cheaper interval */
        if v := self.victim(iv); v != nil && iv.Cost() > v.Cost() {
            self.evict(v)
            iv.Acc = self.fit(self.busy(), iv)
            self.active = append(self.active, iv)
            nb++
        }
    }
    return
}

// rewrite returns the operand slot of u in p, which may have been turned
// from a mad into a mac.
func (self *_AccAlloc) rewrite(u ir.Ref, p *ir.Inst) ir.Slot {
    if p.Op != ir.OP_mac || !(self.macs[u.Inst] || u.Inst.Op == ir.OP_mad) {
        return u.Slot
    } else {
        return u.Slot - 1
    }
}

// legal checks the accumulator rules on a rewritten instruction.
func (self *_AccAlloc) legal(p *ir.Inst) bool {
    nb := 0
    acc := -1
    mix := false

    /* the named accumulator of every operand */
    name := func(op *ir.Operand) {
        if op.IsAcc() {
            if acc >= 0 && acc != op.Base.Phys {
                mix = true
            }
            acc = op.Base.Phys
        }
    }

    /* count the accumulator sources */
    for _, op := range [...]*ir.Operand { p.Src[0], p.Src[1], p.Src[2], p.ImplAccSrc } {
        if name(op); op.IsAcc() {
            nb++
        }
    }

    /* the destinations */
    name(p.Dst)
    name(p.ImplAccDst)

    /* opcode legality */
    if p.Dst.IsAcc() && !p.Op.AccDstOK() {
        return false
    }
    if p.Op == ir.OP_mac && (!p.ImplAccSrc.IsAcc() || p.ImplAccSrc.Base.Phys != 0) {
        return false
    }

    /* mixing rules */
    return self.o.AccMixing || (nb <= 1 && !mix)
}

// commit rewrites the definition and every use of iv, or nothing at all.
func (self *_AccAlloc) commit(iv *Interval) bool {
    acc := self.k.Acc(iv.Acc)
    plan := make(map[*ir.Inst]*ir.Inst)
    keys := make([]*ir.Inst, 0, len(iv.Uses) + 1)

    /* rewrites are planned on copies */
    edit := func(ins *ir.Inst) *ir.Inst {
        if p, ok := plan[ins]; ok {
            return p
        }
        p := *ins
        plan[ins] = &p
        keys = append(keys, ins)
        return &p
    }

    /* the definition */
    d := edit(iv.Inst)
    d.Dst = ir.NewDst(acc, iv.Inst.Dst.Type, 0, 1)

    /* the mad to mac rewrite of an instruction happens after its other uses */
    uses := append([]ir.Ref(nil), iv.Uses...)
    sort.SliceStable(uses, func(i int, j int) bool {
        return uses[i].Slot > uses[j].Slot
    })

    /* every use */
    for _, u := range uses {
        p := edit(u.Inst)
        s := self.rewrite(u, p)
        old := p.Operand(s)
        src := ir.NewSrc(acc, old.Type, 0, ir.Contiguous(p.Exec))
        src.Mod = old.Mod

        /* mad src0 is only readable as the implicit mac source */
        if p.Op == ir.OP_mad && s == ir.Slot_src0 && !self.o.Acc3SrcSrc0 {
            p.Op = ir.OP_mac
            p.Src = [3]*ir.Operand { p.Src[1], p.Src[2], nil }
            p.ImplAccSrc = src
        } else {
            p.SetOperand(s, src)
        }
    }

    /* check every touched instruction */
    for _, ins := range keys {
        if !self.legal(plan[ins]) {
            return false
        }
    }

    /* apply the plan */
    for _, ins := range keys {
        if ins.Op == ir.OP_mad && plan[ins].Op == ir.OP_mac {
            self.macs[ins] = true
        }
        *ins = *plan[ins]
    }
    return true
}

// PlanAccIntervals computes the accumulator intervals of bb and binds them
// without rewriting anything.
func PlanAccIntervals(k *ir.Kernel, bb *ir.Block, o *opts.Options) []*Interval {
    k.MarkGlobals()
    aa := newAccAlloc(k, bb, o)
    aa.collect()
    aa.scan()
    return aa.ivs
}

// AccSub substitutes accumulators for short-lived block-local values.
type AccSub struct{}

func (AccSub) Apply(ctx *Context) {
    ctx.Kernel.MarkGlobals()

    /* allocate block by block */
    for _, bb := range ctx.Kernel.Blocks {
        aa := newAccAlloc(ctx.Kernel, bb, ctx.Opts)
        aa.collect()
        ctx.Stats.AccEvictions += aa.scan()

        /* commit the winners */
        for _, iv := range aa.ivs {
            if iv.PreAssigned || iv.Acc < 0 {
                continue
            }
            if !aa.commit(iv) {
                ctx.Stats.AccRejected++
                ctx.Opts.Log().Debug("accumulator rewrite rejected", "block", bb.Id, "def", iv.Def)
            } else {
                ctx.Stats.AccIntervals++
                ctx.Opts.Log().Debug("accumulator assigned", "block", bb.Id, "interval", iv.String())
            }
        }
    }
}
