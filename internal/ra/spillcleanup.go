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
    `github.com/cloudwego/regreclaim/ir`
)

type _AccessKind uint8

const (
    _A_none _AccessKind = iota
    _A_fill
    _A_spill
)

// _Access is a fill or a spill of a flag seen by the cleanup walk.
type _Access struct {
    ins       *ir.Inst
    pos       int
    loc       *ir.Declare
    scratch   ir.Span         // bytes of the spill location
    flag      *ir.Operand     // flag side of the move
    bits      ir.Span         // linearized bits of the flag side
    mask      ir.Mask
    exec      int
    spill     bool
    removable bool
    blocked   bool
    partial   []ir.Span
    pkilled   bool
    fkilled   bool
    killPos   int
    evicted   bool
    removed   bool
    rename    bool
    reloaded  bool
    sites     []ir.Ref
    prev      int
    reads     []int
    opaque    bool
}

func (self *_Access) killed() bool {
    return self.pkilled || self.fkilled
}

type _Cleanup struct {
    ctx    *Context
    bb     *ir.Block
    recs   []_Access
    recOf  map[*ir.Inst]int
    trace  []int
    hist   map[*ir.Declare][]int
    spills map[*ir.Declare][]int
    super  []int
    pos    map[*ir.Inst]int
    dead   map[*ir.Inst]bool
    moves  map[*ir.Inst]*ir.Inst
}

func newCleanup(ctx *Context, bb *ir.Block) *_Cleanup {
    return &_Cleanup {
        ctx    : ctx,
        bb     : bb,
        recOf  : make(map[*ir.Inst]int),
        hist   : make(map[*ir.Declare][]int),
        spills : make(map[*ir.Declare][]int),
        pos    : make(map[*ir.Inst]int, len(bb.Ins)),
        dead   : make(map[*ir.Inst]bool),
        moves  : make(map[*ir.Inst]*ir.Inst),
    }
}

func (self *_Cleanup) at(i int) *_Access {
    return &self.recs[i]
}

func flagLoc(op *ir.Operand) bool {
    return op.IsDirect() && op.Base.IsSpillLoc() && op.Base.SpillOf().File == ir.RF_Flag
}

func shapeOf(ins *ir.Inst) _AccessKind {
    src, dst := ins.Src[0], ins.Dst

    /* plain moves only */
    if ins.Op != ir.OP_mov || ins.Pred != nil || ins.Cond != nil || src.IsNull() || src.Mod != ir.Mod_none {
        return _A_none
    }

    /* location to flag, or flag to location */
    switch {
        case dst.In(ir.RF_Flag) && flagLoc(src) : return _A_fill
        case src.In(ir.RF_Flag) && flagLoc(dst) : return _A_spill
        default                                 : return _A_none
    }
}

func spanCovered(spans []ir.Span, s ir.Span) bool {
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

func (self *_Cleanup) newAccess(ins *ir.Inst, i int, kind _AccessKind) int {
    ac := _Access {
        ins       : ins,
        pos       : i,
        mask      : ins.Mask,
        exec      : ins.Exec,
        spill     : kind == _A_spill,
        removable : true,
        killPos   : -1,
        prev      : -1,
    }

    /* fills write the flag, spills read it */
    if kind == _A_fill {
        ac.loc = ins.Src[0].Base
        ac.flag = ins.Dst
        ac.scratch = ins.Src[0].SrcSpan(ins.Exec)
        ac.bits = ins.Dst.FlagSpan(ins.Dst.DstSpan(ins.Exec))
    } else {
        ac.loc = ins.Dst.Base
        ac.flag = ins.Src[0]
        ac.scratch = ins.Dst.DstSpan(ins.Exec)
        ac.bits = ins.Src[0].FlagSpan(ins.Src[0].SrcSpan(ins.Exec))
        ac.removable = !self.partialOrigin(i, ac.bits)
    }

    /* add to the arena */
    self.recs = append(self.recs, ac)
    self.recOf[ins] = len(self.recs) - 1
    return len(self.recs) - 1
}

// partialOrigin reports whether the last write of bits before position i
// was a predicated partial write.
func (self *_Cleanup) partialOrigin(i int, bits ir.Span) bool {
    for j := i - 1; j >= 0; j-- {
        for _, w := range flagWrites(self.bb.Ins[j]) {
            if w.bits.Overlaps(bits) {
                return self.bb.Ins[j].PartialWrite()
            }
        }
    }
    return false
}

type _FlagRef struct {
    slot ir.Slot
    bits ir.Span
}

func flagReads(ins *ir.Inst) (ret []_FlagRef) {
    if ins.Pred != nil {
        ret = append(ret, _FlagRef { ir.Slot_pred, ins.Pred.Range(ins.Exec) })
    }
    for _, r := range ins.Sources() {
        if op := ins.Operand(r.Slot); op.In(ir.RF_Flag) {
            ret = append(ret, _FlagRef { r.Slot, op.FlagSpan(op.SrcSpan(ins.Exec)) })
        }
    }
    return
}

func flagWrites(ins *ir.Inst) (ret []_FlagRef) {
    if ins.Op.IsPseudo() {
        return nil
    }
    if ins.Cond != nil {
        ret = append(ret, _FlagRef { ir.Slot_condmod, ins.Cond.Range(ins.Exec) })
    }
    if op := ins.Dst; op.In(ir.RF_Flag) {
        ret = append(ret, _FlagRef { ir.Slot_dst, op.FlagSpan(op.DstSpan(ins.Exec)) })
    }
    return
}

// reads records the flag reads of ins as rename sites and the location
// reads as reads of the spills in flight.
func (self *_Cleanup) reads(ins *ir.Inst, id int) {
    keep := ins.Op == ir.OP_pseudo_use || ins.IsEOT()

    /* flag reads */
    for _, fr := range flagReads(ins) {
        for _, j := range self.trace {
            r := self.at(j)
            if !r.bits.Overlaps(fr.bits) {
                continue
            }

            /* pseudo uses pin the register */
            if keep {
                r.removable = false
                continue
            }

            /* sites are recorded while the value is intact */
            if r.rename && !r.killed() {
                if r.bits.Covers(fr.bits) {
                    r.sites = append(r.sites, ir.Ref { Inst: ins, Slot: fr.slot })
                } else {
                    r.blocked = true
                }
            }
        }
    }

    /* location reads */
    for _, s := range ins.Sources() {
        op := ins.Operand(s.Slot)
        if !flagLoc(op) {
            continue
        }

        /* check every spill in flight */
        sp := op.SrcSpan(ins.Exec)
        for _, j := range self.spills[op.Base] {
            if r := self.at(j); r.scratch.Overlaps(sp) {
                if keep {
                    r.removable = false
                }
                if id >= 0 && !self.at(id).spill {
                    r.reads = append(r.reads, id)
                } else {
                    r.opaque = true
                }
            }
        }
    }
}

// kill applies a flag write to every access in flight. Fully killed
// accesses are dropped from the trace.
func (self *_Cleanup) kill(ins *ir.Inst, i int, w _FlagRef) {
    buf := self.trace[:0]
    uncond := ins.IsNoMask() && ins.Pred == nil

    /* check every access in flight */
    for _, j := range self.trace {
        r := self.at(j)
        if !r.bits.Overlaps(w.bits) {
            buf = append(buf, j)
            continue
        }

        /* full kills need an unconditional covering write, or an identical one */
        full := (uncond && w.bits.Covers(r.bits)) || (w.bits == r.bits && ins.Mask == r.mask && !ins.PartialWrite())
        if r.killPos < 0 {
            r.killPos = i
        }

        /* merge partial kills */
        if !full {
            r.pkilled = true
            r.partial = append(r.partial, w.bits.Intersect(r.bits))
            full = spanCovered(r.partial, r.bits)
        }

        /* drop fully killed accesses */
        if full {
            r.fkilled = true
        } else {
            buf = append(buf, j)
        }
    }

    /* update the trace */
    self.trace = buf
}

// writes applies the flag and location writes of ins.
func (self *_Cleanup) writes(ins *ir.Inst, i int, kind _AccessKind) {
    for _, w := range flagWrites(ins) {
        self.kill(ins, i, w)
    }

    /* other writes to a location break its history */
    if kind != _A_spill && flagLoc(ins.Dst) {
        sp := ins.Dst.DstSpan(ins.Exec)
        buf := self.spills[ins.Dst.Base][:0]

        /* overwritten spills are no longer in flight */
        for _, j := range self.spills[ins.Dst.Base] {
            if !self.at(j).scratch.Overlaps(sp) {
                buf = append(buf, j)
            }
        }

        /* forget the overwritten accesses */
        self.spills[ins.Dst.Base] = buf
        self.forget(ins.Dst.Base, sp)
    }
}

// forget drops the history entries of loc overlapping sp.
func (self *_Cleanup) forget(loc *ir.Declare, sp ir.Span) {
    buf := self.hist[loc][:0]
    for _, j := range self.hist[loc] {
        if !self.at(j).scratch.Overlaps(sp) {
            buf = append(buf, j)
        }
    }
    self.hist[loc] = buf
}

// latest returns the last access of exactly the scratch bytes of r, or -1.
// Fills leave the bytes alone, only an overlapping spill ends the search.
func (self *_Cleanup) latest(r *_Access) int {
    h := self.hist[r.loc]
    for i := len(h) - 1; i >= 0; i-- {
        if q := self.at(h[i]); q.scratch == r.scratch {
            return h[i]
        } else if q.spill && q.scratch.Overlaps(r.scratch) {
            return -1
        }
    }
    return -1
}

// record appends id to the history of its location. A spill buries every
// access it covers.
func (self *_Cleanup) record(id int) {
    r := self.at(id)
    buf := self.hist[r.loc][:0]
    for _, j := range self.hist[r.loc] {
        if !r.spill || !r.scratch.Covers(self.at(j).scratch) {
            buf = append(buf, j)
        }
    }
    self.hist[r.loc] = append(buf, id)
}

// refill reports whether r reloads the flag bits of q, killing nothing
// but q itself.
func refill(r *_Access, q *_Access) bool {
    return q.bits == r.bits && q.killPos == r.pos && !q.pkilled
}

// refilled reports whether every hop from r back to its source p is a refill.
func (self *_Cleanup) refilled(r *_Access, p int) bool {
    for cur := r; ; {
        q := self.at(cur.prev)
        if !refill(cur, q) {
            return false
        }
        if cur.prev == p {
            return true
        }
        cur = q
    }
}

func (self *_Cleanup) fill(id int) {
    r := self.at(id)

    /* an intact earlier access of the same bytes makes this fill a rename candidate */
    if p := self.latest(r); p >= 0 {
        q := self.at(p)
        if q.exec == r.exec && q.mask == r.mask && !q.removed && (!q.killed() || refill(r, q)) {
            r.rename = true
            r.prev = p
            q.reloaded = q.killed()
        }
    }

    /* becomes the last access */
    self.record(id)
    self.trace = append(self.trace, id)
}

func (self *_Cleanup) spill(id int) {
    r := self.at(id)
    buf := self.spills[r.loc][:0]

    /* check the spills of the same location */
    for _, j := range self.spills[r.loc] {
        s := self.at(j)
        if !s.scratch.Overlaps(r.scratch) {
            buf = append(buf, j)
            continue
        }

        /* only superseded by an unconditional store of the same bytes */
        if s.scratch != r.scratch || !s.removable || s.opaque || r.mask & ir.Mask_NoMask == 0 {
            continue
        }

        /* never read, evict right now */
        if len(s.reads) == 0 {
            s.evicted = true
            s.removed = true
            self.dead[s.ins] = true
            self.ctx.Stats.SpillsRemoved++
        } else {
            self.super = append(self.super, j)
        }
    }

    /* becomes the last access */
    self.spills[r.loc] = append(buf, id)
    self.record(id)
    self.trace = append(self.trace, id)
}

func (self *_Cleanup) walk() {
    for i, ins := range self.bb.Ins {
        self.pos[ins] = i
        if ins.Op == ir.OP_lifetime_end {
            continue
        }

        /* create the access before its own reads */
        id := -1
        kind := shapeOf(ins)
        if kind != _A_none {
            id = self.newAccess(ins, i, kind)
        }

        /* reads happen before writes */
        self.reads(ins, id)
        self.writes(ins, i, kind)

        /* update the history */
        switch kind {
            case _A_fill  : self.fill(id)
            case _A_spill : self.spill(id)
        }
    }
}

// resolve follows the history of r through removed fills.
func (self *_Cleanup) resolve(r *_Access) int {
    p := r.prev
    for p >= 0 && self.at(p).removed && !self.at(p).spill {
        p = self.at(p).prev
    }
    if p < 0 || self.at(p).removed {
        return -1
    } else {
        return p
    }
}

// retarget computes the operand a site reads once the value lives in q.
func retarget(site ir.Ref, r *_Access, q *_Access) (*ir.Predicate, *ir.Operand, bool) {
    ins := site.Inst
    decl := q.flag.Base

    /* the predicate reads whole words */
    if site.Slot == ir.Slot_pred {
        lo := q.bits.Lo + ins.Pred.Range(ins.Exec).Lo - r.bits.Lo - ir.FlagBase(decl)
        if lo % ir.FlagWordBits != 0 {
            return nil, nil, false
        }
        return &ir.Predicate { Flag: decl, SubReg: lo / ir.FlagWordBits, Inverse: ins.Pred.Inverse }, nil, true
    }

    /* explicit flag sources */
    op := ins.Operand(site.Slot)
    lo := q.bits.Lo + op.FlagSpan(op.SrcSpan(ins.Exec)).Lo - r.bits.Lo - ir.FlagBase(decl)
    if sz := op.Type.Size() * 8; lo % sz != 0 {
        return nil, nil, false
    } else {
        ret := op.Clone()
        ret.Base = decl
        ret.SubReg = lo / sz
        return nil, ret, true
    }
}

// where returns the position a lifetime marker will end up at.
func (self *_Cleanup) where(m *ir.Inst) int {
    if t, ok := self.moves[m]; ok {
        return self.pos[t]
    } else {
        return self.pos[m]
    }
}

// marker finds the first live lifetime marker of d at or after from.
func (self *_Cleanup) marker(d *ir.Declare, from int) *ir.Inst {
    for _, ins := range self.bb.Ins {
        if ins.Op == ir.OP_lifetime_end && !self.dead[ins] && ins.Src[0].IsReg() && ins.Src[0].Base == d && self.where(ins) >= from {
            return ins
        }
    }
    return nil
}

func (self *_Cleanup) removeFill(id int) bool {
    r := self.at(id)
    p := self.resolve(r)

    /* the candidate must be intact and unpinned */
    if p < 0 || r.pkilled || (r.fkilled && !r.reloaded) || r.blocked || !r.removable {
        return false
    }

    /* find the last site */
    q := self.at(p)
    last := r.ins
    for _, s := range r.sites {
        if self.pos[s.Inst] > self.pos[last] {
            last = s.Inst
        }
    }

    /* the source must survive until the last site, a refill keeps it alive */
    same := self.refilled(r, p)
    if !same && q.killPos >= 0 && q.killPos < self.pos[last] {
        return false
    }

    /* compute all the new operands first */
    preds := make([]*ir.Predicate, len(r.sites))
    srcs := make([]*ir.Operand, len(r.sites))
    for i, s := range r.sites {
        var ok bool
        if preds[i], srcs[i], ok = retarget(s, r, q); !ok {
            return false
        }
    }

    /* rewrite the sites */
    for i, s := range r.sites {
        if preds[i] != nil {
            s.Inst.Pred = preds[i]
            continue
        }

        /* spills reading the value now read it from q */
        s.Inst.SetOperand(s.Slot, srcs[i])
        if j, ok := self.recOf[s.Inst]; ok && self.at(j).spill {
            v := self.at(j)
            v.flag = srcs[i]
            v.bits = srcs[i].FlagSpan(srcs[i].SrcSpan(s.Inst.Exec))
            if !same {
                v.killPos, v.pkilled, v.fkilled = q.killPos, q.pkilled, q.fkilled
            }
        }
    }

    /* the fill is gone */
    r.removed = true
    self.dead[r.ins] = true

    /* a refilled register keeps its later marker */
    if same {
        if m := self.marker(q.flag.Base, q.pos); m != nil && self.where(m) < r.pos {
            self.dead[m] = true
        }
        return true
    }

    /* so is the lifetime of its register, up to a reload */
    if m := self.marker(r.flag.Base, r.pos); m != nil && (!r.reloaded || self.where(m) < r.killPos) {
        self.dead[m] = true
    }

    /* the source lives until the last site */
    if m := self.marker(q.flag.Base, q.pos); m != nil && self.where(m) < self.pos[last] {
        self.moves[m] = last
    }
    return true
}

func (self *_Cleanup) finalize() {
    for id := range self.recs {
        if r := self.at(id); r.rename && !r.spill && self.removeFill(id) {
            self.ctx.Stats.FillsRemoved++
        }
    }

    /* superseded spills whose readers are all gone */
    for _, j := range self.super {
        s := self.at(j)
        if s.removed || !s.removable {
            continue
        }
        ok := true
        for _, f := range s.reads {
            ok = ok && self.at(f).removed
        }
        if ok {
            s.removed = true
            self.dead[s.ins] = true
            self.ctx.Stats.SpillsRemoved++
        }
    }
}

// rebuild erases the dead instructions and moves the lifetime markers.
func (self *_Cleanup) rebuild() {
    after := make(map[*ir.Inst][]*ir.Inst)
    for m, t := range self.moves {
        after[t] = append(after[t], m)
    }

    /* emit in order */
    buf := make([]*ir.Inst, 0, len(self.bb.Ins))
    for _, ins := range self.bb.Ins {
        if _, ok := self.moves[ins]; !ok && !self.dead[ins] {
            buf = append(buf, ins)
        }
        for _, m := range after[ins] {
            if !self.dead[m] {
                buf = append(buf, m)
            }
        }
    }

    /* update the block */
    self.bb.Ins = buf
    self.bb.Renumber()
}

// SpillCleanup removes redundant flag fills and spills within each block.
type SpillCleanup struct{}

func (SpillCleanup) Apply(ctx *Context) {
    for _, bb := range ctx.Kernel.Blocks {
        sc := newCleanup(ctx, bb)
        sc.walk()
        sc.finalize()
        sc.rebuild()
    }
}
