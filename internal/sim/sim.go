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

package sim

import (
    `encoding/binary`
    `fmt`
    `math`

    `github.com/brianvoe/gofakeit/v6`
    `github.com/cloudwego/regreclaim/internal/opts`
    `github.com/cloudwego/regreclaim/ir`
)

const (
    _GRFSize   = 32
    _AddrRange = 16
)

type _Space interface {
    load(at int) byte
    store(at int, v byte)
}

type _Bytes []byte

func (self _Bytes) load(at int) byte {
    if at >= 0 && at < len(self) {
        return self[at]
    } else {
        return 0
    }
}

func (self _Bytes) store(at int, v byte) {
    if at >= 0 && at < len(self) {
        self[at] = v
    }
}

type _Wrap []byte

func (self _Wrap) index(at int) int {
    n := len(self)
    return ((at % n) + n) % n
}

func (self _Wrap) load(at int) byte     { return self[self.index(at)] }
func (self _Wrap) store(at int, v byte) { self[self.index(at)] = v }

type _Flags map[int]byte

func (self _Flags) load(at int) byte     { return self[at] }
func (self _Flags) store(at int, v byte) { self[at] = v }

// Machine executes a kernel over a flat register state.
type Machine struct {
    Kernel *ir.Kernel
    Steps  int
    o      *opts.Options
    seed   int64
    grf    _Wrap
    offs   map[int]int
    addr   map[int]_Bytes
    flag   _Flags
    acc    _Bytes
    done   bool
}

// New creates a machine for k with a register state derived from seed.
// Spill locations start with the content of the register they hold, so a
// kernel and its rewritten version start from the same observable state.
func New(k *ir.Kernel, o *opts.Options, seed int64) *Machine {
    m := &Machine {
        Kernel : k,
        o      : o,
        seed   : seed,
        offs   : make(map[int]int),
        addr   : make(map[int]_Bytes),
        flag   : make(_Flags),
        acc    : make(_Bytes, o.NumAcc * o.AccBytes()),
    }

    /* lay the GRF out in declare order */
    n := 0
    for _, d := range k.Decls {
        if d.File == ir.RF_GRF {
            m.offs[d.Id] = n
            n += (d.ByteSize() + _GRFSize - 1) / _GRFSize * _GRFSize
        }
    }

    /* seed every register */
    m.grf = make(_Wrap, n + _GRFSize)
    for _, d := range k.Decls {
        switch d.File {
            case ir.RF_GRF     : m.seedBytes(d, _Bytes(m.grf[m.offs[d.Id]:]))
            case ir.RF_Address : m.addr[d.Id] = make(_Bytes, d.ByteSize()); m.seedBytes(d, m.addr[d.Id])
            case ir.RF_Flag    : m.seedFlag(d)
        }
    }

    /* accumulators */
    f := newFaker(seed)
    for i := range m.acc {
        m.acc[i] = f.Uint8()
    }
    return m
}

func (self *Machine) faker(key *ir.Declare) *gofakeit.Faker {
    return newFaker(self.seed * 1000003 + int64(key.Id) + 1)
}

// newFaker never hands zero to gofakeit, which would pick a random seed.
func newFaker(seed int64) *gofakeit.Faker {
    if seed == 0 {
        return gofakeit.New(-1)
    } else {
        return gofakeit.New(seed)
    }
}

func (self *Machine) seedBytes(d *ir.Declare, mem _Bytes) {
    key := d
    if d.IsSpillLoc() {
        key = d.SpillOf()
    }

    /* address values stay inside the addressable window */
    f := self.faker(key)
    nb := d.ByteSize()
    if key.File == ir.RF_Address {
        for i := 0; i + 1 < nb; i += 2 {
            binary.LittleEndian.PutUint16(mem[i:], uint16(f.Number(0, _AddrRange - 1) * 4))
        }
        return
    }

    /* everything else is random */
    for i := 0; i < nb; i++ {
        mem[i] = f.Uint8()
    }
}

func (self *Machine) seedFlag(d *ir.Declare) {
    f := self.faker(d)
    at := ir.FlagBase(d) / 8
    if _, ok := self.flag[at]; ok {
        return
    }
    for i := 0; i < d.ByteSize(); i++ {
        self.flag[at + i] = f.Uint8()
    }
}

// Reg returns the storage of a declare as a byte slice.
func (self *Machine) Reg(d *ir.Declare) []byte {
    ret := make([]byte, d.ByteSize())
    switch d.File {
        case ir.RF_GRF: {
            copy(ret, self.grf[self.offs[d.Id]:])
        }
        case ir.RF_Address: {
            copy(ret, self.addr[d.Id])
        }
        case ir.RF_Flag: {
            for i := range ret {
                ret[i] = self.flag.load(ir.FlagBase(d) / 8 + i)
            }
        }
    }
    return ret
}

// Value returns the observable content of the declare numbered id. A spilled
// register is read from its spill location.
func (self *Machine) Value(id int) []byte {
    d := self.Kernel.Decls[id]
    if loc := d.SpillLoc(); loc != nil {
        return self.Reg(loc)[:d.ByteSize()]
    } else {
        return self.Reg(d)
    }
}

// Run executes the kernel from its entry block. Branches are taken with a
// sequence derived from the seed, and at most limit blocks are executed.
func (self *Machine) Run(limit int) error {
    bb := self.Kernel.Entry()
    f := newFaker(self.seed)

    /* walk the blocks */
    for n := 0; bb != nil && n < limit && !self.done; n++ {
        for _, ins := range bb.Ins {
            if err := self.Exec(ins); err != nil {
                return fmt.Errorf("bb_%d: %w", bb.Id, err)
            }
            if self.done {
                break
            }
        }

        /* pick the next block */
        switch len(bb.Succs) {
            case 0  : bb = nil
            case 1  : bb = bb.Succs[0]
            default : bb = bb.Succs[f.Number(0, len(bb.Succs) - 1)]
        }
    }
    return nil
}

var dispatchTab = [...]func(self *Machine, p *ir.Inst, src [3][]_Num, ch int) _Num {
    ir.OP_mov  : (*Machine).emu_OP_mov,
    ir.OP_add  : (*Machine).emu_OP_add,
    ir.OP_mul  : (*Machine).emu_OP_mul,
    ir.OP_mad  : (*Machine).emu_OP_mad,
    ir.OP_mac  : (*Machine).emu_OP_mac,
    ir.OP_and  : (*Machine).emu_OP_and,
    ir.OP_or   : (*Machine).emu_OP_or,
    ir.OP_xor  : (*Machine).emu_OP_xor,
    ir.OP_sel  : (*Machine).emu_OP_sel,
    ir.OP_cmp  : (*Machine).emu_OP_cmp,
    ir.OP_math : (*Machine).emu_OP_math,
    ir.OP_send : (*Machine).emu_OP_send,
}

// Exec executes a single instruction.
func (self *Machine) Exec(p *ir.Inst) error {
    var src [3][]_Num
    var acc []_Num

    /* pseudo instructions have no effect */
    if p.Op.IsPseudo() {
        return nil
    } else if int(p.Op) >= len(dispatchTab) || dispatchTab[p.Op] == nil {
        return fmt.Errorf("cannot execute %s", p.Op)
    }

    /* read every source before writing anything */
    fp := p.Op == ir.OP_cmp && p.Src[0].Type.IsFloat() || p.Op != ir.OP_cmp && p.Dst.Type.IsFloat()
    for i, op := range p.Sources() {
        src[i] = self.readAll(p.Operand(op.Slot), p.Exec, fp)
    }
    if p.ImplAccSrc.IsReg() {
        acc = self.readAll(p.ImplAccSrc, p.Exec, fp)
    }

    /* enabled channels */
    en := make([]bool, p.Exec)
    for ch := range en {
        en[ch] = p.Pred == nil || p.Op == ir.OP_sel || self.bit(ir.FlagBase(p.Pred.Flag) + p.Pred.SubReg * ir.FlagWordBits + ch) != p.Pred.Inverse
    }

    /* mac reads acc0, sel reads the predicate */
    switch {
        case p.Op == ir.OP_mac: {
            if src[2] = acc; acc == nil {
                return fmt.Errorf("mac without an implicit accumulator source")
            }
        }
        case p.Op == ir.OP_sel && p.Pred != nil: {
            src[2] = make([]_Num, p.Exec)
            for ch := range src[2] {
                src[2][ch].i = int64(self.predBit(p, ch))
            }
        }
    }

    /* compute */
    res := make([]_Num, p.Exec)
    for ch := range res {
        res[ch] = dispatchTab[p.Op](self, p, src, ch)
    }

    /* write the destinations */
    for ch, v := range res {
        if !en[ch] {
            continue
        }
        if !p.Dst.IsNull() {
            self.write(p.Dst, p.Exec, ch, v)
        }
        if p.ImplAccDst.IsReg() {
            self.write(p.ImplAccDst, p.Exec, ch, v)
        }
        if p.Cond != nil {
            x := v
            y := _Num { f: fp }
            if p.Op == ir.OP_cmp {
                x, y = src[0][ch % len(src[0])], src[1][ch % len(src[1])]
            }
            self.setBit(ir.FlagBase(p.Cond.Flag) + p.Cond.SubReg * ir.FlagWordBits + ch, compare(p.Cond.Cond, x, y))
        }
    }

    /* end of thread */
    self.Steps++
    self.done = p.IsEOT()
    return nil
}

func (self *Machine) predBit(p *ir.Inst, ch int) int {
    if self.bit(ir.FlagBase(p.Pred.Flag) + p.Pred.SubReg * ir.FlagWordBits + ch) != p.Pred.Inverse {
        return 1
    } else {
        return 0
    }
}

func (self *Machine) bit(i int) bool {
    return self.flag.load(i >> 3) & (1 << (i & 7)) != 0
}

func (self *Machine) setBit(i int, v bool) {
    b := self.flag.load(i >> 3)
    if v {
        b |= 1 << (i & 7)
    } else {
        b &^= 1 << (i & 7)
    }
    self.flag.store(i >> 3, b)
}

// space resolves the storage and the byte offset of element elem of op.
func (self *Machine) space(op *ir.Operand, elem int) (_Space, int) {
    sz := op.Type.Size()
    if op.Indirect {
        a := self.addr[op.Base.Id]
        at := int(uint16(a.load(op.SubReg * 2)) | uint16(a.load(op.SubReg * 2 + 1)) << 8)
        return self.grf, at + op.AddrImm + elem * sz
    }
    switch op.Base.File {
        case ir.RF_GRF     : return self.grf, self.offs[op.Base.Id] + (op.SubReg + elem) * sz
        case ir.RF_Address : return self.addr[op.Base.Id], (op.SubReg + elem) * sz
        case ir.RF_Flag    : return self.flag, ir.FlagBase(op.Base) / 8 + (op.SubReg + elem) * sz
        case ir.RF_Acc     : return self.acc, op.Base.Phys * self.o.AccBytes() + (op.SubReg + elem) * sz
        default            : panic("sim: invalid register file")
    }
}

func (self *Machine) readAll(op *ir.Operand, exec int, fp bool) []_Num {
    ret := make([]_Num, exec)
    for ch := range ret {
        if op.IsImm {
            ret[ch] = decode(op.Type, uint64(op.Imm))
        } else {
            ret[ch] = self.read(op, op.Region.Element(ch))
        }
        ret[ch] = ret[ch].as(fp).modify(op.Mod)
    }
    return ret
}

func (self *Machine) read(op *ir.Operand, elem int) _Num {
    var v uint64
    mem, at := self.space(op, elem)
    for i := op.Type.Size() - 1; i >= 0; i-- {
        v = v << 8 | uint64(mem.load(at + i))
    }
    return decode(op.Type, v)
}

func (self *Machine) write(op *ir.Operand, exec int, ch int, v _Num) {
    hs := op.Region.HStride
    if hs <= 0 && exec == 1 {
        hs = 1
    }
    raw := encode(op.Type, v)
    mem, at := self.space(op, ch * hs)
    for i := 0; i < op.Type.Size(); i++ {
        mem.store(at + i, byte(raw >> (i * 8)))
    }
}

// _Num is an element value, either an integer or a floating point number.
type _Num struct {
    i int64
    v float64
    f bool
}

func decode(t ir.Type, v uint64) _Num {
    switch t {
        case ir.T_UB : return _Num { i: int64(uint8(v)) }
        case ir.T_B  : return _Num { i: int64(int8(v)) }
        case ir.T_UW : return _Num { i: int64(uint16(v)) }
        case ir.T_W  : return _Num { i: int64(int16(v)) }
        case ir.T_HF : return _Num { i: int64(uint16(v)) }
        case ir.T_UD : return _Num { i: int64(uint32(v)) }
        case ir.T_D  : return _Num { i: int64(int32(v)) }
        case ir.T_F  : return _Num { v: float64(math.Float32frombits(uint32(v))), f: true }
        case ir.T_DF : return _Num { v: math.Float64frombits(v), f: true }
        default      : return _Num { i: int64(v) }
    }
}

func encode(t ir.Type, v _Num) uint64 {
    switch t {
        case ir.T_F  : return uint64(math.Float32bits(float32(v.as(true).v)))
        case ir.T_DF : return math.Float64bits(v.as(true).v)
        default      : return uint64(v.as(false).i)
    }
}

func (self _Num) as(fp bool) _Num {
    switch {
        case fp == self.f : return self
        case fp           : return _Num { v: float64(self.i), f: true }
        default           : return _Num { i: int64(self.v) }
    }
}

func (self _Num) modify(m ir.SrcMod) _Num {
    switch {
        case m == ir.Mod_neg && self.f : self.v = -self.v
        case m == ir.Mod_neg           : self.i = -self.i
        case m == ir.Mod_abs && self.f : self.v = math.Abs(self.v)
        case m == ir.Mod_abs && self.i < 0 : self.i = -self.i
    }
    return self
}

func compare(c ir.Cond, x _Num, y _Num) bool {
    var r int
    if x.f || y.f {
        a, b := x.as(true).v, y.as(true).v
        switch {
            case a < b  : r = -1
            case a > b  : r = 1
            case a == b : r = 0
            default     : return c == ir.CM_nz
        }
    } else {
        switch {
            case x.i < y.i : r = -1
            case x.i > y.i : r = 1
        }
    }
    switch c {
        case ir.CM_z  : return r == 0
        case ir.CM_nz : return r != 0
        case ir.CM_lt : return r < 0
        case ir.CM_le : return r <= 0
        case ir.CM_gt : return r > 0
        default       : return r >= 0
    }
}

func at(v []_Num, ch int) _Num {
    return v[ch % len(v)]
}

func arith(x _Num, y _Num, fi func(int64, int64) int64, ff func(float64, float64) float64) _Num {
    if x.f {
        return _Num { v: ff(x.v, y.as(true).v), f: true }
    } else {
        return _Num { i: fi(x.i, y.as(false).i) }
    }
}

func add(x _Num, y _Num) _Num {
    return arith(x, y, func(a int64, b int64) int64 { return a + b }, func(a float64, b float64) float64 { return a + b })
}

func mul(x _Num, y _Num) _Num {
    return arith(x, y, func(a int64, b int64) int64 { return a * b }, func(a float64, b float64) float64 { return a * b })
}

func bits(x _Num, y _Num, fn func(int64, int64) int64) _Num {
    return _Num { i: fn(x.as(false).i, y.as(false).i) }
}

func (self *Machine) emu_OP_mov(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return at(s[0], ch)
}

func (self *Machine) emu_OP_add(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return add(at(s[0], ch), at(s[1], ch))
}

func (self *Machine) emu_OP_mul(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return mul(at(s[0], ch), at(s[1], ch))
}

func (self *Machine) emu_OP_mad(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return add(at(s[0], ch), mul(at(s[1], ch), at(s[2], ch)))
}

func (self *Machine) emu_OP_mac(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return add(at(s[2], ch), mul(at(s[0], ch), at(s[1], ch)))
}

func (self *Machine) emu_OP_and(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return bits(at(s[0], ch), at(s[1], ch), func(a int64, b int64) int64 { return a & b })
}

func (self *Machine) emu_OP_or(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return bits(at(s[0], ch), at(s[1], ch), func(a int64, b int64) int64 { return a | b })
}

func (self *Machine) emu_OP_xor(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return bits(at(s[0], ch), at(s[1], ch), func(a int64, b int64) int64 { return a ^ b })
}

func (self *Machine) emu_OP_sel(p *ir.Inst, s [3][]_Num, ch int) _Num {
    if p.Pred == nil || at(s[2], ch).i != 0 {
        return at(s[0], ch)
    } else {
        return at(s[1], ch)
    }
}

func (self *Machine) emu_OP_cmp(p *ir.Inst, s [3][]_Num, ch int) _Num {
    c := ir.CM_nz
    if p.Cond != nil {
        c = p.Cond.Cond
    }
    if compare(c, at(s[0], ch), at(s[1], ch)) {
        return _Num { i: -1 }
    } else {
        return _Num {}
    }
}

func (self *Machine) emu_OP_math(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return add(mul(at(s[0], ch), at(s[1], ch)), at(s[0], ch))
}

func (self *Machine) emu_OP_send(_ *ir.Inst, s [3][]_Num, ch int) _Num {
    return at(s[0], ch)
}
