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

// FlowInfo answers read-only dominance and loop membership queries about
// the control flow graph of a kernel.
type FlowInfo interface {
    // Dominates reports whether every path from the entry to b passes a.
    Dominates(a *Block, b *Block) bool

    // InSameLoopOrNested reports whether use lies in the innermost loop
    // containing def, or in a loop nested inside it.
    InSameLoopOrNested(def *Block, use *Block) bool

    // Reducible reports whether every cycle has a single entry.
    Reducible() bool
}

// Conservative is the FlowInfo that never proves anything.
type Conservative struct{}

func (Conservative) Dominates(a *Block, b *Block) bool           { return a == b }
func (Conservative) InSameLoopOrNested(def *Block, use *Block) bool { return false }
func (Conservative) Reducible() bool                               { return false }
