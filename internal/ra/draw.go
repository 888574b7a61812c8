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
    `io`

    `github.com/ajstarks/svgo`
    `github.com/cloudwego/regreclaim/ir`
)

// DrawAccIntervals renders the instructions of bb next to one column per
// interval, in SVG.
func DrawAccIntervals(w io.Writer, bb *ir.Block, ivs []*Interval) error {
    maxi := 0
    maxw := 0
    for _, v := range bb.Ins {
        if s := v.String(); len(s) > maxi {
            maxi = len(s)
        }
    }
    for _, iv := range ivs {
        if s := iv.String(); len(s) > maxw {
            maxw = len(s)
        }
    }
    insw := maxi * 9 + 120
    regw := (maxw + 1) * 8 + 16
    p := svg.New(w)
    p.Start(len(ivs) * regw + insw + 100, len(bb.Ins) * 24 + 150)
    if _, err := io.WriteString(w, `<rect width="100%" height="100%" fill="white" />` + "\n"); err != nil {
        return err
    }
    p.Text(16, 100, fmt.Sprintf("bb_%d", bb.Id), "fill:gray;font-size:16px;font-family:monospace")
    for i, v := range bb.Ins {
        h := 95 + i * 24
        p.Text(insw, 100 + i * 24, v.String(), "fill:black;font-size:16px;font-family:monospace;text-anchor:end")
        p.Line(insw + 10, h, len(ivs) * regw + insw + 50, h, "stroke:gray")
    }
    for i, iv := range ivs {
        x := insw + i * regw + 50
        color := "black"
        if iv.Acc < 0 {
            color = "lightgray"
        }
        lo := iv.Def
        if lo < 0 {
            lo = 0
        }
        p.Text(x, 70, iv.String(), "fill:" + color + ";font-size:16px;font-family:monospace;text-anchor:middle")
        p.Line(x, 95 + lo * 24, x, 95 + iv.LastUse * 24, "stroke:" + color + ";stroke-width:3")
        if iv.Def >= 0 {
            p.Circle(x, 95 + iv.Def * 24, 4, "fill:white;stroke:" + color + ";stroke-width:2")
        }
        for _, u := range iv.Uses {
            p.Circle(x, 95 + u.Inst.Id * 24, 4, "fill:" + color + ";stroke:" + color + ";stroke-width:2")
        }
    }
    p.End()
    return nil
}
