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

    `github.com/cloudwego/regreclaim/internal/fuzz`
    `github.com/cloudwego/regreclaim/internal/opts`
    `github.com/cloudwego/regreclaim/internal/sim`
    `github.com/cloudwego/regreclaim/ir`
    `github.com/davecgh/go-spew/spew`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

func testOptions() *opts.Options {
    o := opts.GetDefaultOptions()
    o.Debug = true
    return &o
}

func src(d *ir.Declare, exec int) *ir.Operand {
    return ir.NewSrc(d, d.Type, 0, ir.Contiguous(exec))
}

func dst(d *ir.Declare) *ir.Operand {
    return ir.NewDst(d, d.Type, 0, 1)
}

// equivalent runs both kernels from the same state and compares the result.
func equivalent(t *testing.T, want *ir.Kernel, got *ir.Kernel, o *opts.Options, seed int64) {
    m0 := sim.New(want, o, seed)
    m1 := sim.New(got, o, seed)
    require.NoError(t, m0.Run(16))
    require.NoError(t, m1.Run(16))
    if err := sim.Diff(m0, m1); err != nil {
        t.Log(want)
        t.Log(got)
        require.NoError(t, err)
    }
}

func TestAccSub_MoveIntoAcc0(t *testing.T) {
    k := ir.NewKernel("test")
    b := ir.CreateBuilder(k, k.NewBlock())
    x := k.NewDeclare("x", ir.RF_GRF, ir.T_F, 8)
    v := k.NewDeclare("v", ir.RF_GRF, ir.T_F, 8)
    out := k.NewDeclare("out", ir.RF_GRF, ir.T_F, 8)
    out.Output = true
    def := b.MOV(8, dst(v), src(x, 8))
    for i := 0; i < 20; i++ {
        b.ADD(8, dst(out), src(out, 8), src(x, 8))
    }
    use := b.ADD(8, dst(out), src(v, 8), src(x, 8))
    ctx := NewContext(k, testOptions())
    AccSub{}.Apply(ctx)
    assert.Equal(t, k.Acc(0), def.Dst.Base)
    assert.Equal(t, k.Acc(0), use.Src[0].Base)
    assert.Equal(t, x, use.Src[1].Base)
    assert.Equal(t, 1, ctx.Stats.AccIntervals)
}

func TestAccSub_MadToMac(t *testing.T) {
    k := ir.NewKernel("test")
    b := ir.CreateBuilder(k, k.NewBlock())
    x := k.NewDeclare("x", ir.RF_GRF, ir.T_F, 8)
    y := k.NewDeclare("y", ir.RF_GRF, ir.T_F, 8)
    t0 := k.NewDeclare("t0", ir.RF_GRF, ir.T_F, 8)
    t1 := k.NewDeclare("t1", ir.RF_GRF, ir.T_F, 8)
    out := k.NewDeclare("out", ir.RF_GRF, ir.T_F, 8)
    out.Output = true
    mul := b.MUL(8, dst(t0), src(x, 8), src(y, 8))
    mad := b.MAD(8, dst(t1), src(t0, 8), src(x, 8), src(y, 8))
    add := b.ADD(8, dst(out), src(t1, 8), src(x, 8))
    want := spew.Sdump(k.Decls)
    ctx := NewContext(k, testOptions())
    AccSub{}.Apply(ctx)
    require.Equal(t, 2, ctx.Stats.AccIntervals, want)
    assert.Equal(t, k.Acc(0), mul.Dst.Base)
    assert.Equal(t, ir.OP_mac, mad.Op)
    assert.Equal(t, x, mad.Src[0].Base)
    assert.Equal(t, y, mad.Src[1].Base)
    assert.Nil(t, mad.Src[2])
    assert.Equal(t, k.Acc(0), mad.ImplAccSrc.Base)
    assert.Equal(t, k.Acc(0), mad.Dst.Base)
    assert.Equal(t, k.Acc(0), add.Src[0].Base)
}

func TestAccSub_Acc3SrcSrc0(t *testing.T) {
    k := ir.NewKernel("test")
    b := ir.CreateBuilder(k, k.NewBlock())
    x := k.NewDeclare("x", ir.RF_GRF, ir.T_F, 8)
    t0 := k.NewDeclare("t0", ir.RF_GRF, ir.T_F, 8)
    out := k.NewDeclare("out", ir.RF_GRF, ir.T_F, 8)
    out.Output = true
    b.MUL(8, dst(t0), src(x, 8), src(x, 8))
    mad := b.MAD(8, dst(out), src(t0, 8), src(x, 8), src(x, 8))
    o := testOptions()
    o.Acc3SrcSrc0 = true
    AccSub{}.Apply(NewContext(k, o))
    assert.Equal(t, ir.OP_mad, mad.Op)
    assert.Equal(t, k.Acc(0), mad.Src[0].Base)
    assert.Nil(t, mad.ImplAccSrc)
}

func TestAccSub_Rejects(t *testing.T) {
    build := func(fn func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare)) (*ir.Kernel, *ir.Declare) {
        k := ir.NewKernel("test")
        b := ir.CreateBuilder(k, k.NewBlock())
        x := k.NewDeclare("x", ir.RF_GRF, ir.T_D, 16)
        v := k.NewDeclare("v", ir.RF_GRF, ir.T_D, 16)
        p := k.NewDeclare("p", ir.RF_Flag, ir.T_UW, 16)
        out := k.NewDeclare("out", ir.RF_GRF, ir.T_D, 16)
        out.Output = true
        fn(b, v, x, p)
        b.ADD(8, dst(out), src(v, 8), src(x, 8))
        return k, v
    }
    cases := map[string]func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare) {
        "predicated": func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare) {
            b.MOV(8, dst(v), src(x, 8)).WithPred(p, 0, false)
        },
        "cond": func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare) {
            b.MOV(8, dst(v), src(x, 8)).WithCond(ir.CM_z, p, 0)
        },
        "exec": func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare) {
            b.MOV(16, dst(v), src(x, 16))
        },
        "strided": func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare) {
            b.MOV(8, ir.NewDst(v, ir.T_D, 0, 2), src(x, 8))
        },
        "math": func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare) {
            b.Op(ir.OP_math, 8, dst(v), src(x, 8), src(x, 8))
        },
        "pinned": func(b *ir.Builder, v *ir.Declare, x *ir.Declare, p *ir.Declare) {
            b.MOV(8, dst(v), src(x, 8))
            b.PseudoUse(v)
        },
    }
    for name, fn := range cases {
        t.Run(name, func(t *testing.T) {
            k, v := build(fn)
            ctx := NewContext(k, testOptions())
            AccSub{}.Apply(ctx)
            assert.Equal(t, 0, ctx.Stats.AccIntervals)
            for _, ins := range k.Entry().Ins {
                if ins.Op != ir.OP_pseudo_use {
                    assert.False(t, ins.Dst.IsAcc(), "%s", ins)
                }
            }
            assert.Equal(t, ir.RF_GRF, v.File)
        })
    }
}

func TestAccSub_WideValueTakesBoth(t *testing.T) {
    k := ir.NewKernel("test")
    b := ir.CreateBuilder(k, k.NewBlock())
    x := k.NewDeclare("x", ir.RF_GRF, ir.T_F, 16)
    v := k.NewDeclare("v", ir.RF_GRF, ir.T_F, 16)
    out := k.NewDeclare("out", ir.RF_GRF, ir.T_F, 16)
    out.Output = true
    b.MOV(16, dst(v), src(x, 16))
    b.ADD(16, dst(out), src(v, 16), src(x, 16))
    k.MarkGlobals()
    ivs := PlanAccIntervals(k, k.Entry(), testOptions())
    require.Len(t, ivs, 1)
    assert.Equal(t, 2, ivs[0].Width)
    assert.Equal(t, 0, ivs[0].Acc)
}

func TestAccSub_NativeEvicts(t *testing.T) {
    k := ir.NewKernel("test")
    b := ir.CreateBuilder(k, k.NewBlock())
    x := k.NewDeclare("x", ir.RF_GRF, ir.T_F, 8)
    v := k.NewDeclare("v", ir.RF_GRF, ir.T_F, 8)
    out := k.NewDeclare("out", ir.RF_GRF, ir.T_F, 8)
    out.Output = true
    b.MOV(8, dst(v), src(x, 8))
    b.MOV(8, ir.NewDst(k.Acc(0), ir.T_F, 0, 1), src(x, 8))
    b.MOV(8, ir.NewDst(k.Acc(1), ir.T_F, 0, 1), src(x, 8))
    b.ADD(8, dst(out), ir.NewSrc(k.Acc(0), ir.T_F, 0, ir.Contiguous(8)), ir.NewSrc(k.Acc(1), ir.T_F, 0, ir.Contiguous(8)))
    b.ADD(8, dst(out), src(v, 8), src(x, 8))
    ctx := NewContext(k, testOptions())
    AccSub{}.Apply(ctx)
    assert.Equal(t, 0, ctx.Stats.AccIntervals)
    assert.Equal(t, 1, ctx.Stats.AccEvictions)
}

func TestAccSub_TiePrefersNonAcc0Victim(t *testing.T) {
    k := ir.NewKernel("test")
    aa := newAccAlloc(k, k.NewBlock(), testOptions())
    iv := &Interval { Def: 4, LastUse: 8, Count: 1, Width: 1, Acc: -1 }
    a := &Interval { Def: 0, LastUse: 6, Count: 2, Width: 1, Acc: 0, MustAcc0: true }
    c := &Interval { Def: 1, LastUse: 7, Count: 2, Width: 1, Acc: 1 }
    require.Equal(t, a.Cost(), c.Cost())
    aa.active = []*Interval { a, c }
    assert.Equal(t, c, aa.victim(iv))
    aa.active = []*Interval { c, a }
    assert.Equal(t, c, aa.victim(iv))
}

func TestAccSub_IntervalsNeverShare(t *testing.T) {
    o := testOptions()
    for seed := int64(0); seed < 200; seed++ {
        k := fuzz.AccKernel(seed, o)
        k.MarkGlobals()
        ivs := PlanAccIntervals(k, k.Entry(), o)
        for i, a := range ivs {
            for _, b := range ivs[i + 1:] {
                if a.Acc < 0 || b.Acc < 0 || a.PreAssigned || b.PreAssigned || a.mask() & b.mask() == 0 {
                    continue
                }
                overlap := a.Def < b.LastUse && b.Def < a.LastUse
                require.False(t, overlap, "seed %d: %s and %s", seed, a, b)
            }
        }
    }
}

func TestAccSub_Equivalence(t *testing.T) {
    o := testOptions()
    nb := 0
    for seed := int64(0); seed < 200; seed++ {
        want := fuzz.AccKernel(seed, o)
        got := fuzz.AccKernel(seed, o)
        ctx := NewContext(got, o)
        AccSub{}.Apply(ctx)
        require.NoError(t, ir.Verify(got))
        equivalent(t, want, got, o, seed)
        nb += ctx.Stats.AccIntervals
    }
    assert.NotZero(t, nb)
}
