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

import (
    `fmt`

    `github.com/cloudwego/regreclaim/internal/opts`
    `github.com/cloudwego/regreclaim/ir`
)

// Stats counts what the passes did.
type Stats struct {
    AccIntervals  int     // intervals rewritten to use an accumulator
    AccEvictions  int     // intervals evicted during the scan
    AccRejected   int     // intervals dropped by the final legality check
    AddrTemps     int     // address temporaries loaded from spill locations
    FlagTemps     int     // flag temporaries created for predicates and condition modifiers
    Fills         int
    Spills        int
    FillsRemoved  int
    SpillsRemoved int
}

func (self Stats) String() string {
    return fmt.Sprintf(
        "acc: %d converted, %d evicted, %d rejected; spill code: %d addr temps, %d flag temps, %d fills, %d spills; cleanup: %d fills, %d spills removed",
        self.AccIntervals,
        self.AccEvictions,
        self.AccRejected,
        self.AddrTemps,
        self.FlagTemps,
        self.Fills,
        self.Spills,
        self.FillsRemoved,
        self.SpillsRemoved,
    )
}

// Context is the state shared by the passes running over one kernel.
type Context struct {
    Kernel *ir.Kernel
    Opts   *opts.Options
    Stats  Stats
}

// NewContext creates a pass context for k.
func NewContext(k *ir.Kernel, o *opts.Options) *Context {
    return &Context {
        Kernel : k,
        Opts   : o,
    }
}

type Pass interface {
    Apply(*Context)
}

type PassDescriptor struct {
    Pass Pass
    Name string
    Skip func(*opts.Options) bool
}

var Passes = [...]PassDescriptor {
    { Name: "Spill Code Synthesis"     , Pass: new(SpillCode)    , Skip: func(o *opts.Options) bool { return o.NoSpillCode } },
    { Name: "Spill Cleanup"            , Pass: new(SpillCleanup) , Skip: func(o *opts.Options) bool { return o.NoSpillCleanup } },
    { Name: "Accumulator Substitution" , Pass: new(AccSub)       , Skip: func(o *opts.Options) bool { return o.NoAccSub } },
}

// PassError reports a kernel left malformed by a pass.
type PassError struct {
    Pass string
    Err  error
}

func (self PassError) Error() string {
    return fmt.Sprintf("%s: %v", self.Pass, self.Err)
}

func (self PassError) Unwrap() error {
    return self.Err
}

// Execute runs every enabled pass in order. In debug mode the kernel is
// verified after every pass.
func Execute(ctx *Context) error {
    for _, p := range Passes {
        if p.Skip(ctx.Opts) {
            continue
        }

        /* run the pass */
        ctx.Opts.Log().Debug("running pass", "kernel", ctx.Kernel.Name, "pass", p.Name)
        p.Pass.Apply(ctx)

        /* check the result */
        if ctx.Opts.Debug {
            if err := ir.Verify(ctx.Kernel); err != nil {
                return &PassError { Pass: p.Name, Err: err }
            }
        }
    }
    return nil
}

// assert checks an input contract. It panics in debug mode and only logs
// otherwise, so the caller can skip the unit of work.
func (self *Context) assert(ok bool, f string, args ...interface{}) bool {
    if !ok {
        msg := fmt.Sprintf(f, args...)
        if self.Opts.Debug {
            panic("regreclaim: assertion failed: " + msg)
        }
        self.Opts.Log().Debug("skipped", "reason", msg)
    }
    return ok
}
