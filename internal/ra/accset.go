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

package ra

// accset is the busy set of the physical accumulators.
type accset uint32

func accmask(i int, n int) accset {
    return ((1 << n) - 1) << i
}

func (self accset) test(i int) bool {
    return self & (1 << i) != 0
}

func (self accset) fits(i int, n int) bool {
    return self & accmask(i, n) == 0
}

func (self *accset) set(i int, n int) {
    *self |= accmask(i, n)
}

func (self *accset) clear(i int, n int) {
    *self &^= accmask(i, n)
}
