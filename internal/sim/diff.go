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
    `bytes`
    `fmt`

    `github.com/davecgh/go-spew/spew`
    `github.com/cloudwego/regreclaim/ir`
)

// MismatchError reports a register whose final content differs.
type MismatchError struct {
    Decl string
    Want []byte
    Got  []byte
}

func (self MismatchError) Error() string {
    return fmt.Sprintf("%s differs, want:\n%sgot:\n%s", self.Decl, spew.Sdump(self.Want), spew.Sdump(self.Got))
}

// Observable lists the declares of k whose content is visible after the
// block that writes them: outputs, globals and spilled registers.
func Observable(k *ir.Kernel) (ret []*ir.Declare) {
    k.MarkGlobals()
    for _, d := range k.Decls {
        if d.File == ir.RF_Acc || d.IsSpillLoc() {
            continue
        }
        if d.Global || d.Output || d.Spilled && (d.File == ir.RF_Address || d.File == ir.RF_Flag) {
            ret = append(ret, d)
        }
    }
    return
}

// Diff compares the observable state of two machines. want must run the
// kernel before the rewrite, got the one after.
func Diff(want *Machine, got *Machine) error {
    for _, d := range Observable(want.Kernel) {
        a := want.Value(d.Id)
        b := got.Value(d.Id)
        if !bytes.Equal(a, b) {
            return &MismatchError { Decl: d.Name, Want: a, Got: b }
        }
    }
    return nil
}
