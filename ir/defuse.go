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

type _LiveDef struct {
    ins  *Inst
    span Span
}

// PartialWrite reports whether the destination is written only on the
// channels enabled by a predicate. sel consumes its predicate as a selector
// and always writes every channel.
func (self *Inst) PartialWrite() bool {
    return self.Pred != nil && self.Op != OP_sel
}

// BuildDefUse recomputes the local def-use links of every direct GRF and
// address operand in the block. A read is linked to every earlier write
// whose byte footprint overlaps it and that has not been fully overwritten
// since by an unpredicated write.
func (self *Block) BuildDefUse() {
    live := make(map[*Declare][]_LiveDef)

    /* drop the stale links */
    for _, ins := range self.Ins {
        ins.ClearDefUse()
    }

    /* scan in program order */
    for _, ins := range self.Ins {
        if ins.Op.IsPseudo() {
            continue
        }

        /* link every read */
        for _, ref := range ins.Sources() {
            op := ins.Operand(ref.Slot)
            if op.IsDirect() && (op.Base.File == RF_GRF || op.Base.File == RF_Address) {
                sp := op.SrcSpan(ins.Exec)
                for _, ld := range live[op.Base] {
                    if ld.span.Overlaps(sp) {
                        ins.AddDefUse(ld.ins, ref.Slot)
                    }
                }
            }
        }

        /* record the write */
        if op := ins.Dst; op.IsDirect() && (op.Base.File == RF_GRF || op.Base.File == RF_Address) {
            sp := op.DstSpan(ins.Exec)
            lds := live[op.Base]

            /* an unpredicated write hides the definitions it fully covers */
            if !ins.PartialWrite() {
                buf := lds[:0]
                for _, ld := range lds {
                    if !sp.Covers(ld.span) {
                        buf = append(buf, ld)
                    }
                }
                lds = buf
            }

            /* add the new definition */
            live[op.Base] = append(lds, _LiveDef { ins, sp })
        }
    }
}
