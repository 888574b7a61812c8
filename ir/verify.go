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

// VerifyError reports a malformed instruction.
type VerifyError struct {
    Block  int
    Inst   int
    Reason string
}

func (self VerifyError) Error() string {
    if self.Inst < 0 {
        return fmt.Sprintf("bb_%d: %s", self.Block, self.Reason)
    } else {
        return fmt.Sprintf("bb_%d #%d: %s", self.Block, self.Inst, self.Reason)
    }
}

func errorf(bb *Block, i int, f string, args ...interface{}) *VerifyError {
    return &VerifyError {
        Block  : bb.Id,
        Inst   : i,
        Reason : fmt.Sprintf(f, args...),
    }
}

// Verify checks the structural well-formedness of every block of k.
func Verify(k *Kernel) error {
    for i, bb := range k.Blocks {
        if bb.Id != i {
            return errorf(bb, -1, "block id mismatch, expect %d", i)
        }
        for j, ins := range bb.Ins {
            if err := verifyInst(bb, j, ins); err != nil {
                return err
            }
        }
    }
    return nil
}

func verifyInst(bb *Block, i int, ins *Inst) error {
    if ins.Exec <= 0 || ins.Exec & (ins.Exec - 1) != 0 {
        return errorf(bb, i, "invalid execution size %d", ins.Exec)
    }

    /* extra sources are not allowed */
    for j := ins.NumSrc(); j < len(ins.Src); j++ {
        if ins.Src[j] != nil {
            return errorf(bb, i, "%s takes %d sources", ins.Op, ins.NumSrc())
        }
    }

    /* register operands */
    for s := Slot_dst; s < _Slot_max; s++ {
        if err := verifyOperand(bb, i, s, ins.Operand(s)); err != nil {
            return err
        }
    }

    /* flag operands */
    if ins.Pred != nil && (ins.Pred.Flag == nil || ins.Pred.Flag.File != RF_Flag) {
        return errorf(bb, i, "predicate on a non-flag register")
    }
    if ins.Cond != nil && (ins.Cond.Flag == nil || ins.Cond.Flag.File != RF_Flag) {
        return errorf(bb, i, "conditional modifier on a non-flag register")
    }
    return nil
}

func verifyOperand(bb *Block, i int, s Slot, op *Operand) error {
    if !op.IsReg() {
        return nil
    }

    /* indirect regions must be addressed by address registers */
    if op.Indirect && op.Base.File != RF_Address {
        return errorf(bb, i, "%s: indirect operand based on %s register %s", s, op.Base.File, op.Base)
    }

    /* direct regions must stay inside the declare */
    if !op.Indirect && op.Base.File != RF_Acc {
        if op.SubReg < 0 || op.SubReg * op.Type.Size() >= maxint(op.Base.ByteSize(), 1) {
            return errorf(bb, i, "%s: sub-register %d out of range of %s", s, op.SubReg, op.Base)
        }
    }
    return nil
}
