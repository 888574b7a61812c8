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

package regreclaim

import (
	"fmt"
	"log/slog"

	"github.com/cloudwego/regreclaim/internal/opts"
	"github.com/cloudwego/regreclaim/ir"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

const (
	_MaxAccumulators = 8
)

// WithAccumulators sets the number of physical accumulators.
//
// The default value of this option is "2", and can also be configured with the
// `REGRECLAIM_NUM_ACC` environment variable.
func WithAccumulators(n int) Option {
	if n <= 0 || n > _MaxAccumulators {
		panic(fmt.Sprintf("regreclaim: invalid accumulator count: %d", n))
	} else {
		return func(o *opts.Options) { o.NumAcc = n }
	}
}

// WithNativeExecSize sets the number of channels covered by one accumulator.
// Wider values take two adjacent accumulators.
//
// The default value of this option is "8".
func WithNativeExecSize(n int) Option {
	if n <= 0 || n&(n-1) != 0 {
		panic(fmt.Sprintf("regreclaim: invalid native execution size: %d", n))
	} else {
		return func(o *opts.Options) { o.NativeExecSize = n }
	}
}

// WithAccMixing allows different accumulators to meet in one instruction.
func WithAccMixing(v bool) Option {
	return func(o *opts.Options) { o.AccMixing = v }
}

// WithAcc3SrcSrc0 allows an accumulator in src0 of 3-source instructions,
// instead of rewriting mad into mac.
func WithAcc3SrcSrc0(v bool) Option {
	return func(o *opts.Options) { o.Acc3SrcSrc0 = v }
}

// WithAddressRegs sets the number of physical address register elements
// available to spill code.
//
// The default value of this option is "16".
func WithAddressRegs(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("regreclaim: invalid address register count: %d", n))
	} else {
		return func(o *opts.Options) { o.NumAddr = n }
	}
}

// WithFlagRegs sets the number of physical 16-bit flag words available to
// spill code.
//
// The default value of this option is "4".
func WithFlagRegs(n int) Option {
	if n <= 0 {
		panic(fmt.Sprintf("regreclaim: invalid flag register count: %d", n))
	} else {
		return func(o *opts.Options) { o.NumFlag = n }
	}
}

// WithMoveChunks sets the legal move sizes used to load spilled address
// registers, largest first. The list must end with "1".
//
// The default value of this option is "16, 8, 4, 2, 1".
func WithMoveChunks(sizes ...int) Option {
	if len(sizes) == 0 || sizes[len(sizes)-1] != 1 {
		panic(fmt.Sprintf("regreclaim: move chunks must end with 1: %v", sizes))
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] >= sizes[i-1] {
			panic(fmt.Sprintf("regreclaim: move chunks must be decreasing: %v", sizes))
		}
	}
	return func(o *opts.Options) { o.MoveChunks = append([]int(nil), sizes...) }
}

// WithFlowInfo injects the control flow facts used by spill code synthesis.
// Without it every partial flag write keeps its read-modify-write fill.
func WithFlowInfo(f ir.FlowInfo) Option {
	return func(o *opts.Options) { o.Flow = f }
}

// WithoutAccSub disables accumulator substitution.
func WithoutAccSub() Option {
	return func(o *opts.Options) { o.NoAccSub = true }
}

// WithoutSpillCode disables spill code synthesis.
func WithoutSpillCode() Option {
	return func(o *opts.Options) { o.NoSpillCode = true }
}

// WithoutSpillCleanup disables the flag spill cleanup.
func WithoutSpillCleanup() Option {
	return func(o *opts.Options) { o.NoSpillCleanup = true }
}

// WithDebug turns failed internal assertions into panics, and verifies the
// kernel before and after every pass.
//
// This value can also be configured with the `REGRECLAIM_DEBUG` environment
// variable.
func WithDebug(v bool) Option {
	return func(o *opts.Options) { o.Debug = v }
}

// WithLogger sets the logger receiving the debug messages of the passes.
func WithLogger(l *slog.Logger) Option {
	return func(o *opts.Options) { o.Logger = l }
}
