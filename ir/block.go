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
    `strings`
)

// Block is a basic block: an ordered, editable instruction list.
type Block struct {
    Id    int
    Ins   []*Inst
    Succs []*Block
    Preds []*Block
}

// Index returns the position of p in the block, or -1.
func (self *Block) Index(p *Inst) int {
    for i, v := range self.Ins {
        if v == p {
            return i
        }
    }
    return -1
}

// Insert inserts instructions before position at.
func (self *Block) Insert(at int, ins ...*Inst) {
    if len(ins) == 0 {
        return
    }
    buf := make([]*Inst, 0, len(self.Ins) + len(ins))
    buf = append(buf, self.Ins[:at]...)
    buf = append(buf, ins...)
    buf = append(buf, self.Ins[at:]...)
    self.Ins = buf
}

// InsertBefore inserts instructions right before p.
func (self *Block) InsertBefore(p *Inst, ins ...*Inst) {
    if i := self.Index(p); i < 0 {
        panic("ir: InsertBefore: instruction not in bb_" + fmt.Sprint(self.Id))
    } else {
        self.Insert(i, ins...)
    }
}

// InsertAfter inserts instructions right after p.
func (self *Block) InsertAfter(p *Inst, ins ...*Inst) {
    if i := self.Index(p); i < 0 {
        panic("ir: InsertAfter: instruction not in bb_" + fmt.Sprint(self.Id))
    } else {
        self.Insert(i + 1, ins...)
    }
}

// Remove erases p in place, reporting whether it was found.
func (self *Block) Remove(p *Inst) bool {
    if i := self.Index(p); i < 0 {
        return false
    } else {
        copy(self.Ins[i:], self.Ins[i + 1:])
        self.Ins[len(self.Ins) - 1] = nil
        self.Ins = self.Ins[:len(self.Ins) - 1]
        return true
    }
}

// Renumber assigns local sequence ids in program order.
func (self *Block) Renumber() {
    for i, v := range self.Ins {
        v.Id = i
    }
}

func (self *Block) String() string {
    buf := make([]string, 0, len(self.Ins) + 1)
    buf = append(buf, fmt.Sprintf("bb_%d:", self.Id))

    /* print every instruction */
    for _, ins := range self.Ins {
        buf = append(buf, fmt.Sprintf("%04d |     %s", ins.Id, ins))
    }

    /* join them together */
    return strings.Join(buf, "\n")
}
