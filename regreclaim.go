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

// Package regreclaim reclaims registers after register allocation: it
// substitutes accumulators for short-lived values, synthesizes the spill code
// of the address and flag registers left without a physical register, and
// removes the redundant flag fills and spills.
package regreclaim

import (
    `github.com/cloudwego/regreclaim/internal/opts`
    `github.com/cloudwego/regreclaim/internal/ra`
    `github.com/cloudwego/regreclaim/ir`
)

// Stats counts what the passes did to a kernel.
type Stats = ra.Stats

// Run rewrites k in place with every enabled pass. In debug mode the input
// and the result of every pass are verified.
func Run(k *ir.Kernel, options ...Option) (Stats, error) {
    o := opts.GetDefaultOptions()
    for _, fn := range options {
        fn(&o)
    }

    /* check the input */
    if o.Debug {
        if err := ir.Verify(k); err != nil {
            return Stats{}, err
        }
    }

    /* run the passes */
    ctx := ra.NewContext(k, &o)
    err := ra.Execute(ctx)
    return ctx.Stats, err
}
