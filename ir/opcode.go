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

type OpCode uint8

const (
    OP_mov OpCode = iota            // src0 -> dst
    OP_add                          // src0 + src1 -> dst
    OP_mul                          // src0 * src1 -> dst
    OP_mad                          // src0 + src1 * src2 -> dst
    OP_mac                          // acc0 + src0 * src1 -> dst
    OP_and                          // src0 & src1 -> dst
    OP_or                           // src0 | src1 -> dst
    OP_xor                          // src0 ^ src1 -> dst
    OP_sel                          // pred ? src0 : src1 -> dst
    OP_cmp                          // cond(src0, src1) -> flag, dst
    OP_math                         // extended math on src0, src1
    OP_send                         // message send, opaque
    OP_lifetime_end                 // end of the live range of src0
    OP_pseudo_use                   // keeps src0 alive, no hardware effect
)

type _OpInfo struct {
    name   string
    nsrc   int
    accdst bool
    accsrc bool
    pseudo bool
}

var _OpTab = [...]_OpInfo {
    OP_mov          : { name: "mov"          , nsrc: 1, accdst: true , accsrc: true  },
    OP_add          : { name: "add"          , nsrc: 2, accdst: true , accsrc: true  },
    OP_mul          : { name: "mul"          , nsrc: 2, accdst: true , accsrc: true  },
    OP_mad          : { name: "mad"          , nsrc: 3, accdst: true , accsrc: true  },
    OP_mac          : { name: "mac"          , nsrc: 2, accdst: true , accsrc: true  },
    OP_and          : { name: "and"          , nsrc: 2, accdst: true , accsrc: true  },
    OP_or           : { name: "or"           , nsrc: 2, accdst: true , accsrc: true  },
    OP_xor          : { name: "xor"          , nsrc: 2, accdst: true , accsrc: true  },
    OP_sel          : { name: "sel"          , nsrc: 2, accdst: true , accsrc: true  },
    OP_cmp          : { name: "cmp"          , nsrc: 2, accdst: false, accsrc: true  },
    OP_math         : { name: "math"         , nsrc: 2, accdst: false, accsrc: false },
    OP_send         : { name: "send"         , nsrc: 1, accdst: false, accsrc: false },
    OP_lifetime_end : { name: "lifetime.end" , nsrc: 1, pseudo: true },
    OP_pseudo_use   : { name: "pseudo_use"   , nsrc: 1, pseudo: true },
}

func (self OpCode) String() string {
    return _OpTab[self].name
}

// NumSrc returns the number of explicit sources.
func (self OpCode) NumSrc() int {
    return _OpTab[self].nsrc
}

// AccDstOK reports whether the destination may be an accumulator.
func (self OpCode) AccDstOK() bool {
    return _OpTab[self].accdst
}

// AccSrcOK reports whether a source may be an accumulator.
func (self OpCode) AccSrcOK() bool {
    return _OpTab[self].accsrc
}

// IsPseudo reports whether the instruction has no hardware effect.
func (self OpCode) IsPseudo() bool {
    return _OpTab[self].pseudo
}

// ParseOpCode is the inverse of OpCode.String.
func ParseOpCode(s string) (OpCode, bool) {
    for i, v := range _OpTab {
        if v.name == s {
            return OpCode(i), true
        }
    }
    return 0, false
}
