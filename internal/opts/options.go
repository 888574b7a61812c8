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

package opts

import (
	"io"
	"log/slog"

	"github.com/cloudwego/regreclaim/ir"
)

type Options struct {
	NumAcc         int   // physical accumulators
	NativeExecSize int   // channels covered by one accumulator
	AccMixing      bool  // different accumulators may meet in one instruction
	Acc3SrcSrc0    bool  // src0 of a 3-source instruction may be an accumulator
	NumAddr        int   // physical address register elements
	NumFlag        int   // physical 16-bit flag words
	MoveChunks     []int // legal move sizes for address loads, largest first
	Debug          bool
	NoAccSub       bool
	NoSpillCode    bool
	NoSpillCleanup bool
	Flow           ir.FlowInfo
	Logger         *slog.Logger
}

// AccBytes returns the size in bytes of a single accumulator.
func (self *Options) AccBytes() int {
	return self.NativeExecSize * 4
}

// FlowInfo returns the injected flow information, or the conservative one.
func (self *Options) FlowInfo() ir.FlowInfo {
	if self.Flow == nil {
		return ir.Conservative{}
	}
	return self.Flow
}

// Log returns the logger, discarding everything when none was configured.
func (self *Options) Log() *slog.Logger {
	if self.Logger == nil {
		return discard
	}
	return self.Logger
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func GetDefaultOptions() Options {
	return Options{
		NumAcc:         NumAcc,
		NativeExecSize: NativeExecSize,
		NumAddr:        NumAddr,
		NumFlag:        NumFlag,
		MoveChunks:     []int{16, 8, 4, 2, 1},
		Debug:          Debug,
	}
}
