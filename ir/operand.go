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
)

// Operand is a register region, an indirect region, an immediate or null.
//
// For direct regions Base is the register being accessed and SubReg is the
// first element in units of Type. For indirect regions Base is the address
// register, SubReg is the address element holding the byte address and
// AddrImm is added to it.
type Operand struct {
    Base     *Declare
    Type     Type
    SubReg   int
    Region   Region
    Mod      SrcMod
    Indirect bool
    AddrImm  int
    IsImm    bool
    Imm      int64
}

// NewSrc creates a direct source region.
func NewSrc(d *Declare, t Type, sub int, rg Region) *Operand {
    return &Operand {
        Base   : d,
        Type   : t,
        SubReg : sub,
        Region : rg,
    }
}

// NewDst creates a direct destination region.
func NewDst(d *Declare, t Type, sub int, hs int) *Operand {
    return &Operand {
        Base   : d,
        Type   : t,
        SubReg : sub,
        Region : Region { HStride: hs },
    }
}

// NewIndirect creates a register-indirect region addressed by element sub
// of the address register addr.
func NewIndirect(addr *Declare, sub int, imm int, t Type, rg Region) *Operand {
    return &Operand {
        Base     : addr,
        Type     : t,
        SubReg   : sub,
        Region   : rg,
        Indirect : true,
        AddrImm  : imm,
    }
}

// NewImm creates an immediate operand.
func NewImm(v int64, t Type) *Operand {
    return &Operand {
        Type  : t,
        IsImm : true,
        Imm   : v,
    }
}

// Null creates the null operand.
func Null() *Operand {
    return new(Operand)
}

// IsNull reports whether the operand is absent or the null register.
func (self *Operand) IsNull() bool {
    return self == nil || (self.Base == nil && !self.IsImm)
}

// IsReg reports whether the operand references a declare.
func (self *Operand) IsReg() bool {
    return self != nil && self.Base != nil
}

// IsDirect reports whether the operand is a direct region of a declare.
func (self *Operand) IsDirect() bool {
    return self.IsReg() && !self.Indirect
}

// IsAcc reports whether the operand is a direct accumulator region.
func (self *Operand) IsAcc() bool {
    return self.IsDirect() && self.Base.File == RF_Acc
}

// In reports whether the operand is a direct region of register file rf.
func (self *Operand) In(rf RegFile) bool {
    return self.IsDirect() && self.Base.File == rf
}

// Clone returns a shallow copy of the operand.
func (self *Operand) Clone() *Operand {
    if self == nil {
        return nil
    }
    ret := *self
    return &ret
}

// SrcSpan returns the byte footprint of a direct source read by exec channels.
func (self *Operand) SrcSpan(exec int) Span {
    lo, hi := 0, 0
    sz := self.Type.Size()

    /* find the lowest and highest element */
    for i := 0; i < exec; i++ {
        e := self.Region.Element(i)
        if i == 0 || e < lo { lo = e }
        if i == 0 || e > hi { hi = e }
    }

    /* convert to bytes */
    return Span {
        Lo: (self.SubReg + lo) * sz,
        Hi: (self.SubReg + hi + 1) * sz,
    }
}

// DstSpan returns the byte footprint of a direct destination written by exec channels.
func (self *Operand) DstSpan(exec int) Span {
    sz := self.Type.Size()
    hs := self.Region.HStride

    /* a zero stride only happens on scalar destinations */
    if hs <= 0 {
        hs = 1
    }

    /* the footprint is contiguous with holes */
    return Span {
        Lo: self.SubReg * sz,
        Hi: (self.SubReg + (exec - 1) * hs + 1) * sz,
    }
}

// FlagSpan converts a byte footprint of a direct flag region into a linearized bit range.
func (self *Operand) FlagSpan(bytes Span) Span {
    base := FlagBase(self.Base)
    return Span { Lo: base + bytes.Lo * 8, Hi: base + bytes.Hi * 8 }
}

// SameRegion reports whether both operands access exactly the same register elements.
func (self *Operand) SameRegion(other *Operand) bool {
    return self.Base == other.Base &&
           self.Type == other.Type &&
           self.SubReg == other.SubReg &&
           self.Indirect == other.Indirect &&
           self.AddrImm == other.AddrImm
}

func (self *Operand) String() string {
    var mod string
    var reg string

    /* null and immediate operands */
    if self.IsNull() {
        return "null"
    } else if self.IsImm {
        return fmt.Sprintf("#%d:%s", self.Imm, self.Type)
    }

    /* source modifiers */
    switch self.Mod {
        case Mod_neg: mod = "-"
        case Mod_abs: mod = "(abs)"
    }

    /* register name */
    if self.Indirect {
        reg = fmt.Sprintf("r[%s.%d, %d]", self.Base, self.SubReg, self.AddrImm)
    } else {
        reg = fmt.Sprintf("%s.%d", self.Base, self.SubReg)
    }

    /* destinations only carry the horizontal stride */
    if self.Region.Width == 0 && self.Region.VStride == 0 {
        return fmt.Sprintf("%s%s<%d>:%s", mod, reg, self.Region.HStride, self.Type)
    } else {
        return fmt.Sprintf("%s%s%s:%s", mod, reg, self.Region, self.Type)
    }
}

// Predicate selects the enabled channels with bits of a flag register.
type Predicate struct {
    Flag    *Declare
    SubReg  int
    Inverse bool
}

// Range returns the linearized flag bits read for exec channels.
func (self *Predicate) Range(exec int) Span {
    return FlagRange(self.Flag, self.SubReg, exec)
}

func (self *Predicate) String() string {
    if self.Inverse {
        return fmt.Sprintf("(~%s.%d)", self.Flag, self.SubReg)
    } else {
        return fmt.Sprintf("(%s.%d)", self.Flag, self.SubReg)
    }
}

// CondModifier writes a per-channel comparison result into a flag register.
type CondModifier struct {
    Flag   *Declare
    SubReg int
    Cond   Cond
}

// Range returns the linearized flag bits written for exec channels.
func (self *CondModifier) Range(exec int) Span {
    return FlagRange(self.Flag, self.SubReg, exec)
}

func (self *CondModifier) String() string {
    return fmt.Sprintf(".%s.%s.%d", self.Cond, self.Flag, self.SubReg)
}
