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
	"os"
	"strconv"
)

const (
	_DefaultNumAcc         = 2  // acc0 and acc1
	_DefaultNativeExecSize = 8  // SIMD8 native width
	_DefaultNumAddr        = 16 // a0.0 to a0.15
	_DefaultNumFlag        = 4  // f0.0, f0.1, f1.0, f1.1
)

var (
	NumAcc         = parseOrDefault("REGRECLAIM_NUM_ACC", _DefaultNumAcc, 0)
	NativeExecSize = parseOrDefault("REGRECLAIM_NATIVE_EXEC", _DefaultNativeExecSize, 0)
	NumAddr        = parseOrDefault("REGRECLAIM_NUM_ADDR", _DefaultNumAddr, 0)
	NumFlag        = parseOrDefault("REGRECLAIM_NUM_FLAG", _DefaultNumFlag, 0)
	Debug          = os.Getenv("REGRECLAIM_DEBUG") != ""
)

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("regreclaim: invalid value for " + key)
	} else if ret := int(val); ret <= min {
		panic("regreclaim: value too small for " + key)
	} else {
		return ret
	}
}
