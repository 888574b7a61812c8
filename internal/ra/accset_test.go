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
    `testing`

    `github.com/stretchr/testify/require`
)

func TestAccset(t *testing.T) {
    var s accset
    s.set(0, 2)
    require.True(t, s.test(0))
    require.True(t, s.test(1))
    require.False(t, s.test(2))
    require.False(t, s.fits(1, 2))
    require.True(t, s.fits(2, 2))
    s.clear(0, 1)
    require.True(t, s.fits(0, 1))
    require.False(t, s.fits(0, 2))
}
