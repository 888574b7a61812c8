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
    `testing`

    `github.com/cloudwego/regreclaim/internal/cfg`
    `github.com/cloudwego/regreclaim/internal/fuzz`
    `github.com/cloudwego/regreclaim/ir`
    `github.com/stretchr/testify/assert`
    `github.com/stretchr/testify/require`
)

type _SpilledFlag struct {
    k   *ir.Kernel
    b   *ir.Builder
    f   *ir.Declare
    loc *ir.Declare
    x   *ir.Declare
    out *ir.Declare
    n   int
}

func newSpilledFlag() *_SpilledFlag {
    return newSpilledFlags(1)
}

func newSpilledFlags(words int) *_SpilledFlag {
    k := ir.NewKernel("cleanup")
    f := k.NewDeclare("f", ir.RF_Flag, ir.T_UW, words * ir.FlagWordBits)
    f.Spilled = true
    loc := k.NewDeclare("f_spill", ir.RF_GRF, ir.T_UW, words)
    f.SetSpillLoc(loc)
    out := k.NewDeclare("out", ir.RF_GRF, ir.T_D, 16)
    out.Output = true
    return &_SpilledFlag {
        k   : k,
        b   : ir.CreateBuilder(k, k.NewBlock()),
        f   : f,
        loc : loc,
        x   : k.NewDeclare("x", ir.RF_GRF, ir.T_D, 16),
        out : out,
    }
}

func (self *_SpilledFlag) temp() *ir.Declare {
    self.n++
    return self.k.NewDeclare(fmt.Sprintf("t%d", self.n), ir.RF_Flag, ir.T_UW, 16)
}

func (self *_SpilledFlag) cmp(t *ir.Declare) *ir.Inst {
    return self.b.CMP(16, ir.CM_gt, t, 0, ir.Null(), src(self.x, 16), ir.NewImm(0, ir.T_D))
}

func (self *_SpilledFlag) fill(t *ir.Declare) *ir.Inst {
    return self.fillAt(t, 0)
}

func (self *_SpilledFlag) fillAt(t *ir.Declare, word int) *ir.Inst {
    return self.b.Add(ir.NewMove(1, ir.NewDst(t, ir.T_UW, 0, 1), ir.NewSrc(self.loc, ir.T_UW, word, ir.Contiguous(1)), ir.Mask_NoMask))
}

func (self *_SpilledFlag) spill(t *ir.Declare) *ir.Inst {
    return self.spillAt(t, 0)
}

func (self *_SpilledFlag) spillAt(t *ir.Declare, word int) *ir.Inst {
    return self.b.Add(ir.NewMove(1, ir.NewDst(self.loc, ir.T_UW, word, 1), ir.NewSrc(t, ir.T_UW, 0, ir.Contiguous(1)), ir.Mask_NoMask))
}

func (self *_SpilledFlag) use(t *ir.Declare, inv bool) *ir.Inst {
    return self.b.ADD(16, dst(self.out), src(self.out, 16), src(self.x, 16)).WithPred(t, 0, inv)
}

func TestSpillCleanup_RedundantFill(t *testing.T) {
    build := func() (*_SpilledFlag, *ir.Inst, *ir.Inst) {
        sf := newSpilledFlag()
        t1, t2 := sf.temp(), sf.temp()
        sf.fill(t1)
        sf.use(t1, false)
        sf.b.LifetimeEnd(t1)
        sf.fill(t2)
        u := sf.use(t2, true)
        sf.b.LifetimeEnd(t2)
        return sf, sf.k.Entry().Ins[0], u
    }
    want, _, _ := build()
    sf, f1, u := build()
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    ins := sf.k.Entry().Ins
    require.Len(t, ins, 4, "%s", sf.k)
    assert.Equal(t, 1, ctx.Stats.FillsRemoved)
    assert.Zero(t, ctx.Stats.SpillsRemoved)
    assert.Equal(t, f1, ins[0])
    assert.Equal(t, f1.Dst.Base, u.Pred.Flag)
    assert.True(t, u.Pred.Inverse)
    assert.Equal(t, u, ins[2])
    assert.Equal(t, ir.OP_lifetime_end, ins[3].Op)
    assert.Equal(t, f1.Dst.Base, ins[3].Src[0].Base)
    for seed := int64(0); seed < 16; seed++ {
        equivalent(t, want.k, sf.k, testOptions(), seed)
    }
}

func TestSpillCleanup_KilledFillStays(t *testing.T) {
    sf := newSpilledFlag()
    t1, t2 := sf.temp(), sf.temp()
    sf.fill(t1)
    sf.cmp(t1)
    sf.fill(t2)
    sf.use(t2, false)
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    assert.Len(t, sf.k.Entry().Ins, 4)
    assert.Zero(t, ctx.Stats.FillsRemoved)
}

func TestSpillCleanup_PseudoUsePins(t *testing.T) {
    sf := newSpilledFlag()
    t1, t2 := sf.temp(), sf.temp()
    sf.fill(t1)
    sf.fill(t2)
    sf.b.PseudoUse(t2)
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    assert.Len(t, sf.k.Entry().Ins, 3)
    assert.Zero(t, ctx.Stats.FillsRemoved)
}

func TestSpillCleanup_SupersededSpill(t *testing.T) {
    sf := newSpilledFlag()
    t1, t2 := sf.temp(), sf.temp()
    sf.cmp(t1)
    sf.cmp(t2)
    s1 := sf.spill(t1)
    s2 := sf.spill(t2)
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    ins := sf.k.Entry().Ins
    assert.Equal(t, 1, ctx.Stats.SpillsRemoved)
    assert.NotContains(t, ins, s1)
    assert.Contains(t, ins, s2)
}

func TestSpillCleanup_PartialOriginKeepsSpill(t *testing.T) {
    sf := newSpilledFlag()
    t1, t2 := sf.temp(), sf.temp()
    sf.cmp(t1).WithPred(t2, 0, false)
    sf.cmp(t2)
    sf.spill(t1)
    sf.spill(t2)
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    assert.Zero(t, ctx.Stats.SpillsRemoved)
    assert.Len(t, sf.k.Entry().Ins, 4)
}

func TestSpillCleanup_EvictedAndKilled(t *testing.T) {
    sf := newSpilledFlag()
    t1, t2 := sf.temp(), sf.temp()
    sf.cmp(t1)
    sf.cmp(t2)
    sf.spill(t1)
    sf.spill(t2)
    sf.cmp(t1).WithMask(ir.Mask_NoMask)
    sc := newCleanup(NewContext(sf.k, testOptions()), sf.k.Entry())
    sc.walk()
    require.Len(t, sc.recs, 2)
    s1, s2 := sc.at(0), sc.at(1)
    assert.True(t, s1.evicted)
    assert.True(t, s1.fkilled)
    assert.Equal(t, 4, s1.killPos)
    assert.NotContains(t, sc.trace, 0)
    assert.False(t, s2.killed())
    assert.Contains(t, sc.trace, 1)
}

func TestSpillCleanup_OtherWordKeepsHistory(t *testing.T) {
    build := func() (*_SpilledFlag, *ir.Declare, *ir.Inst) {
        sf := newSpilledFlags(2)
        t1, t2, t3 := sf.temp(), sf.temp(), sf.temp()
        sf.spillAt(t1, 0)
        sf.spillAt(t2, 1)
        sf.fillAt(t3, 0)
        return sf, t1, sf.use(t3, false)
    }
    want, _, _ := build()
    sf, t1, u := build()
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    assert.Equal(t, 1, ctx.Stats.FillsRemoved)
    assert.Equal(t, t1, u.Pred.Flag)
    assert.Zero(t, u.Pred.SubReg)
    require.Len(t, sf.k.Entry().Ins, 3)
    for seed := int64(0); seed < 16; seed++ {
        equivalent(t, want.k, sf.k, testOptions(), seed)
    }
    again := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(again)
    assert.Zero(t, again.Stats.FillsRemoved)
}

func TestSpillCleanup_WiderFillKeepsHistory(t *testing.T) {
    sf := newSpilledFlags(2)
    t1, t3 := sf.temp(), sf.temp()
    t2 := sf.k.NewDeclare("wide", ir.RF_Flag, ir.T_UW, 32)
    sf.fillAt(t1, 0)
    sf.b.Add(ir.NewMove(2, ir.NewDst(t2, ir.T_UW, 0, 1), ir.NewSrc(sf.loc, ir.T_UW, 0, ir.Contiguous(2)), ir.Mask_NoMask))
    sf.fillAt(t3, 0)
    u := sf.use(t3, false)
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    assert.Equal(t, 1, ctx.Stats.FillsRemoved)
    assert.Equal(t, t1, u.Pred.Flag)
}

func TestSpillCleanup_LatestSpillWins(t *testing.T) {
    sf := newSpilledFlags(2)
    t1, t2, t3 := sf.temp(), sf.temp(), sf.temp()
    sf.spillAt(t1, 0)
    sf.spillAt(t2, 0)
    sf.fillAt(t3, 0)
    u := sf.use(t3, false)
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    assert.Equal(t, 1, ctx.Stats.SpillsRemoved)
    assert.Equal(t, 1, ctx.Stats.FillsRemoved)
    assert.Equal(t, t2, u.Pred.Flag)
}

func TestSpillCleanup_Refill(t *testing.T) {
    build := func() (*_SpilledFlag, []*ir.Inst) {
        sf := newSpilledFlag()
        t1 := sf.temp()
        fills := []*ir.Inst { sf.fill(t1) }
        sf.use(t1, false)
        fills = append(fills, sf.fill(t1))
        sf.use(t1, true)
        fills = append(fills, sf.fill(t1))
        sf.use(t1, false)
        sf.b.LifetimeEnd(t1)
        return sf, fills
    }
    want, _ := build()
    sf, fills := build()
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    ins := sf.k.Entry().Ins
    assert.Equal(t, 2, ctx.Stats.FillsRemoved)
    require.Len(t, ins, 5, "%s", sf.k)
    assert.Equal(t, fills[0], ins[0])
    assert.NotContains(t, ins, fills[1])
    assert.NotContains(t, ins, fills[2])
    assert.Equal(t, ir.OP_lifetime_end, ins[4].Op)
    for seed := int64(0); seed < 16; seed++ {
        equivalent(t, want.k, sf.k, testOptions(), seed)
    }
    again := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(again)
    assert.Zero(t, again.Stats.FillsRemoved)
}

func TestSpillCleanup_ReadSpillSurvives(t *testing.T) {
    sf := newSpilledFlag()
    t1, t2, t3 := sf.temp(), sf.temp(), sf.temp()
    sf.cmp(t1)
    s1 := sf.spill(t1)
    sf.b.MOV(1, ir.NewDst(sf.out, ir.T_UW, 0, 1), ir.NewSrc(sf.loc, ir.T_UW, 0, ir.Scalar()))
    sf.cmp(t2)
    sf.spill(t2)
    sf.fill(t3)
    ctx := NewContext(sf.k, testOptions())
    SpillCleanup{}.Apply(ctx)
    assert.Zero(t, ctx.Stats.SpillsRemoved)
    assert.Contains(t, sf.k.Entry().Ins, s1)
}

func TestSpillCleanup_AfterSpillCode(t *testing.T) {
    k, _ := flagKernel(16)
    b := ir.CreateBuilder(k, k.Entry())
    out := k.Lookup("out")
    x := k.Lookup("x")
    b.ADD(16, dst(out), src(out, 16), src(x, 16)).WithPred(k.Lookup("f"), 0, true)
    ctx := NewContext(k, testOptions())
    SpillCode{}.Apply(ctx)
    require.Equal(t, 2, ctx.Stats.Fills)
    SpillCleanup{}.Apply(ctx)
    assert.Equal(t, 2, ctx.Stats.FillsRemoved)

    /* both predicates read the register written by the compare */
    ins := k.Entry().Ins
    tmp := ins[0].Cond.Flag
    for _, p := range ins {
        if p.Op == ir.OP_add {
            assert.Equal(t, tmp, p.Pred.Flag)
        }
    }
    assert.Equal(t, ir.OP_lifetime_end, ins[len(ins) - 1].Op)
    assert.Equal(t, tmp, ins[len(ins) - 1].Src[0].Base)
}

func TestSpillCleanup_Idempotent(t *testing.T) {
    o := testOptions()
    for seed := int64(0); seed < 200; seed++ {
        k := fuzz.SpillKernel(seed, o)
        SpillCode{}.Apply(NewContext(k, o))
        SpillCleanup{}.Apply(NewContext(k, o))
        ctx := NewContext(k, o)
        SpillCleanup{}.Apply(ctx)
        assert.Zero(t, ctx.Stats.FillsRemoved, "seed %d", seed)
        assert.Zero(t, ctx.Stats.SpillsRemoved, "seed %d", seed)
    }
}

func TestSpillCleanup_Equivalence(t *testing.T) {
    for _, flow := range []bool { false, true } {
        o := testOptions()
        removed := 0
        for seed := int64(0); seed < 200; seed++ {
            want := fuzz.SpillKernel(seed, o)
            got := fuzz.SpillKernel(seed, o)
            if o.Flow = nil; flow {
                o.Flow = cfg.Build(got)
            }
            ctx := NewContext(got, o)
            SpillCode{}.Apply(ctx)
            SpillCleanup{}.Apply(ctx)
            require.NoError(t, ir.Verify(got))
            equivalent(t, want, got, o, seed)
            removed += ctx.Stats.FillsRemoved + ctx.Stats.SpillsRemoved
        }
        assert.NotZero(t, removed)
    }
}
