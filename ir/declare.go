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

// SubAlign is the sub-register alignment of a declare.
type SubAlign uint8

const (
    Align_Any SubAlign = iota
    Align_Word
    Align_Dword
    Align_GRF
)

const (
    FlagWordBits  = 16
    _FlagVirtBase = 20
)

// Declare is a symbolic register.
type Declare struct {
    Id      int
    Name    string
    File    RegFile
    Type    Type
    Elems   int         // element count, or bit count for flags
    Align   SubAlign
    Phys    int         // physical sub-register, -1 when unassigned
    Spilled bool        // the main allocator could not assign a physical register
    Global  bool        // referenced outside of a single block
    Output  bool        // observable after the kernel finishes
    Exposed bool        // may be accessed through indirect addressing
    spill   *Declare
    owner   *Declare
}

func (self *Declare) String() string {
    if self.File == RF_Acc {
        return fmt.Sprintf("acc%d", self.Phys)
    } else {
        return self.Name
    }
}

// ByteSize returns the storage size in bytes.
func (self *Declare) ByteSize() int {
    if self.File == RF_Flag {
        return FlagWords(self.Elems) * 2
    } else {
        return self.Elems * self.Type.Size()
    }
}

// Words returns the storage size in 16-bit words.
func (self *Declare) Words() int {
    return (self.ByteSize() + 1) / 2
}

// IsSpillLoc reports whether this declare is the spill companion of another one.
func (self *Declare) IsSpillLoc() bool {
    return self.owner != nil
}

// SpillOf returns the declare this one is the spill companion of.
func (self *Declare) SpillOf() *Declare {
    return self.owner
}

// SpillLoc returns the spill companion, or nil if it was never created.
func (self *Declare) SpillLoc() *Declare {
    return self.spill
}

// SetSpillLoc binds the spill companion. The companion never changes once bound.
func (self *Declare) SetSpillLoc(loc *Declare) {
    if self.spill != nil && self.spill != loc {
        panic("ir: spill location of " + self.Name + " rebound")
    }
    loc.owner = self
    self.spill = loc
}

// FlagWords returns the number of 16-bit flag words needed to hold bits.
func FlagWords(bits int) int {
    return (bits + FlagWordBits - 1) / FlagWordBits
}

// FlagBase returns the first linearized bit of a flag declare. Assigned
// declares live in the physical flag file, unassigned ones in a private
// virtual window so they never alias each other.
func FlagBase(d *Declare) int {
    if d.Phys >= 0 {
        return d.Phys * FlagWordBits
    } else {
        return (d.Id + 1) << _FlagVirtBase
    }
}

// Span is a half-open interval [Lo, Hi).
type Span struct {
    Lo int
    Hi int
}

func (self Span) Empty() bool {
    return self.Lo >= self.Hi
}

func (self Span) Len() int {
    return self.Hi - self.Lo
}

func (self Span) Overlaps(o Span) bool {
    return self.Lo < o.Hi && o.Lo < self.Hi
}

func (self Span) Covers(o Span) bool {
    return self.Lo <= o.Lo && o.Hi <= self.Hi
}

func (self Span) Intersect(o Span) Span {
    return Span { Lo: maxint(self.Lo, o.Lo), Hi: minint(self.Hi, o.Hi) }
}

func (self Span) String() string {
    return fmt.Sprintf("[%d,%d)", self.Lo, self.Hi)
}

// FlagRange returns the linearized bit range of flag declare d starting at
// 16-bit sub-register sub and spanning bits bits.
func FlagRange(d *Declare, sub int, bits int) Span {
    lo := FlagBase(d) + sub * FlagWordBits
    return Span { Lo: lo, Hi: lo + bits }
}

func minint(a int, b int) int {
    if a < b {
        return a
    } else {
        return b
    }
}

func maxint(a int, b int) int {
    if a > b {
        return a
    } else {
        return b
    }
}
