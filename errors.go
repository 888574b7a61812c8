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
    `github.com/cloudwego/regreclaim/internal/kfile`
    `github.com/cloudwego/regreclaim/internal/ra`
    `github.com/cloudwego/regreclaim/ir`
)

// VerifyError occurs when a kernel is structurally malformed.
type VerifyError = ir.VerifyError

// PassError occurs when a pass leaves the kernel malformed, only checked in
// debug mode.
type PassError = ra.PassError

// SyntaxError occurs when a kernel description cannot be parsed.
type SyntaxError = kfile.SyntaxError
