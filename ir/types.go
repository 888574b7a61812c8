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

// RegFile is the register file a declare lives in.
type RegFile uint8

const (
    RF_GRF RegFile = iota
    RF_Address
    RF_Flag
    RF_Acc
)

var _RegFileNames = [...]string {
    RF_GRF     : "grf",
    RF_Address : "address",
    RF_Flag    : "flag",
    RF_Acc     : "acc",
}

func (self RegFile) String() string {
    if int(self) < len(_RegFileNames) {
        return _RegFileNames[self]
    } else {
        return fmt.Sprintf("RegFile(%d)", self)
    }
}

// Type is the element type of an operand or a declare.
type Type uint8

const (
    T_UB Type = iota
    T_B
    T_UW
    T_W
    T_UD
    T_D
    T_UQ
    T_Q
    T_HF
    T_F
    T_DF
)

var _TypeSizes = [...]int {
    T_UB : 1,
    T_B  : 1,
    T_UW : 2,
    T_W  : 2,
    T_UD : 4,
    T_D  : 4,
    T_UQ : 8,
    T_Q  : 8,
    T_HF : 2,
    T_F  : 4,
    T_DF : 8,
}

var _TypeNames = [...]string {
    T_UB : "ub",
    T_B  : "b",
    T_UW : "uw",
    T_W  : "w",
    T_UD : "ud",
    T_D  : "d",
    T_UQ : "uq",
    T_Q  : "q",
    T_HF : "hf",
    T_F  : "f",
    T_DF : "df",
}

// Size returns the element size in bytes.
func (self Type) Size() int {
    return _TypeSizes[self]
}

// IsFloat reports whether arithmetic on the type is floating point.
func (self Type) IsFloat() bool {
    return self == T_F || self == T_DF
}

func (self Type) String() string {
    if int(self) < len(_TypeNames) {
        return _TypeNames[self]
    } else {
        return fmt.Sprintf("Type(%d)", self)
    }
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, bool) {
    for i, v := range _TypeNames {
        if v == s {
            return Type(i), true
        }
    }
    return 0, false
}

// Region describes how the channels of a source map onto elements:
// channel i reads element (i / Width) * VStride + (i % Width) * HStride.
// Destinations only use HStride.
type Region struct {
    VStride int
    Width   int
    HStride int
}

// Contiguous returns the region reading exec consecutive elements.
func Contiguous(exec int) Region {
    w := exec
    if w > 16 {
        w = 16
    }
    return Region { VStride: w, Width: w, HStride: 1 }
}

// Scalar returns the broadcast region <0;1,0>.
func Scalar() Region {
    return Region { VStride: 0, Width: 1, HStride: 0 }
}

// Element returns the element index read by channel i.
func (self Region) Element(i int) int {
    if self.Width <= 0 {
        return i * self.HStride
    } else {
        return (i / self.Width) * self.VStride + (i % self.Width) * self.HStride
    }
}

// IsContiguous reports whether channel i always reads element i.
func (self Region) IsContiguous(exec int) bool {
    for i := 0; i < exec; i++ {
        if self.Element(i) != i {
            return false
        }
    }
    return true
}

func (self Region) String() string {
    return fmt.Sprintf("<%d;%d,%d>", self.VStride, self.Width, self.HStride)
}

// SrcMod is a source modifier.
type SrcMod uint8

const (
    Mod_none SrcMod = iota
    Mod_neg
    Mod_abs
)

// Cond is the comparison applied by a conditional modifier.
type Cond uint8

const (
    CM_z Cond = iota
    CM_nz
    CM_lt
    CM_le
    CM_gt
    CM_ge
)

var _CondNames = [...]string {
    CM_z  : "z",
    CM_nz : "nz",
    CM_lt : "lt",
    CM_le : "le",
    CM_gt : "gt",
    CM_ge : "ge",
}

func (self Cond) String() string {
    return _CondNames[self]
}

// ParseCond is the inverse of Cond.String.
func ParseCond(s string) (Cond, bool) {
    for i, v := range _CondNames {
        if v == s {
            return Cond(i), true
        }
    }
    return 0, false
}

// Mask is the instruction option bitmask.
type Mask uint8

const (
    Mask_NoMask Mask = 1 << iota    // write-enable: ignore the dispatch mask
    Mask_EOT                        // end of thread
)

func (self Mask) String() string {
    switch self {
        case 0                        : return ""
        case Mask_NoMask              : return "{NoMask}"
        case Mask_EOT                 : return "{EOT}"
        case Mask_NoMask | Mask_EOT   : return "{NoMask,EOT}"
        default                       : return fmt.Sprintf("{%#x}", uint8(self))
    }
}
