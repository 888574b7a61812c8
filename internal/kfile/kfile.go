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

// Package kfile loads kernels described in YAML.
package kfile

import (
    `fmt`
    `io`
    `os`
    `strconv`
    `strings`

    `github.com/cloudwego/regreclaim/internal/opts`
    `github.com/cloudwego/regreclaim/ir`
    `gopkg.in/yaml.v3`
)

// File is the YAML form of a kernel.
type File struct {
    Name   string  `yaml:"name"`
    Target Target  `yaml:"target"`
    Decls  []Decl  `yaml:"decls"`
    Blocks []Block `yaml:"blocks"`
}

// Target overrides the default machine description.
type Target struct {
    Accumulators *int  `yaml:"accumulators"`
    NativeExec   *int  `yaml:"native_exec"`
    AccMixing    *bool `yaml:"acc_mixing"`
    Acc3SrcSrc0  *bool `yaml:"acc_3src_src0"`
    AddressRegs  *int  `yaml:"address_regs"`
    FlagRegs     *int  `yaml:"flag_regs"`
    MoveChunks   []int `yaml:"move_chunks"`
}

type Decl struct {
    Name    string `yaml:"name"`
    File    string `yaml:"file"`
    Type    string `yaml:"type"`
    Elems   int    `yaml:"elems"`
    Phys    *int   `yaml:"phys"`
    Spilled bool   `yaml:"spilled"`
    Output  bool   `yaml:"output"`
    Exposed bool   `yaml:"exposed"`
}

type Block struct {
    Succs []int  `yaml:"succs"`
    Ins   []Inst `yaml:"ins"`
}

// Inst is one instruction. Operands use the assembly syntax printed by
// ir.Inst.String, e.g. "r.0<8;8,1>:f", "-x", "r[a.0, 4]:d" or "#12:d".
type Inst struct {
    Op   string   `yaml:"op"`
    Exec int      `yaml:"exec"`
    Dst  string   `yaml:"dst"`
    Src  []string `yaml:"src"`
    Pred string   `yaml:"pred"`
    Cond string   `yaml:"cond"`
    Mask []string `yaml:"mask"`
}

// SyntaxError reports an invalid kernel description.
type SyntaxError struct {
    Where  string
    Reason string
}

func (self SyntaxError) Error() string {
    return fmt.Sprintf("kfile: %s: %s", self.Where, self.Reason)
}

func errorf(where string, f string, args ...interface{}) error {
    return &SyntaxError { Where: where, Reason: fmt.Sprintf(f, args...) }
}

// Apply overrides o with the fields set in the target section.
func (self Target) Apply(o *opts.Options) {
    if self.Accumulators != nil { o.NumAcc = *self.Accumulators }
    if self.NativeExec   != nil { o.NativeExecSize = *self.NativeExec }
    if self.AccMixing    != nil { o.AccMixing = *self.AccMixing }
    if self.Acc3SrcSrc0  != nil { o.Acc3SrcSrc0 = *self.Acc3SrcSrc0 }
    if self.AddressRegs  != nil { o.NumAddr = *self.AddressRegs }
    if self.FlagRegs     != nil { o.NumFlag = *self.FlagRegs }
    if self.MoveChunks   != nil { o.MoveChunks = self.MoveChunks }
}

// Decode reads a kernel description.
func Decode(r io.Reader) (*File, error) {
    var f File
    dec := yaml.NewDecoder(r)
    dec.KnownFields(true)

    /* decode the document */
    if err := dec.Decode(&f); err != nil {
        return nil, err
    } else {
        return &f, nil
    }
}

// Open reads the kernel description at path.
func Open(path string) (*File, error) {
    fp, err := os.Open(path)
    if err != nil {
        return nil, err
    }
    defer fp.Close()
    return Decode(fp)
}

func parseFile(s string) (ir.RegFile, bool) {
    for rf := ir.RF_GRF; rf <= ir.RF_Acc; rf++ {
        if rf.String() == s {
            return rf, true
        }
    }
    return 0, false
}

// Kernel builds the kernel the file describes.
func (self *File) Kernel() (*ir.Kernel, error) {
    k := ir.NewKernel(self.Name)
    p := &_Parser { k: k }

    /* declares */
    for i, d := range self.Decls {
        rf, ok := parseFile(d.File)
        if d.File == "" {
            rf, ok = ir.RF_GRF, true
        }
        if !ok {
            return nil, errorf(d.Name, "invalid register file %q", d.File)
        }
        t, ok := ir.ParseType(d.Type)
        if !ok {
            return nil, errorf(d.Name, "invalid type %q", d.Type)
        }
        if d.Name == "" || k.Lookup(d.Name) != nil {
            return nil, errorf(fmt.Sprintf("decls[%d]", i), "missing or duplicated name %q", d.Name)
        }
        v := k.NewDeclare(d.Name, rf, t, d.Elems)
        v.Spilled = d.Spilled
        v.Output = d.Output
        v.Exposed = d.Exposed
        if d.Phys != nil {
            v.Phys = *d.Phys
        }
    }

    /* blocks, then edges */
    for range self.Blocks {
        k.NewBlock()
    }
    for i, b := range self.Blocks {
        for _, s := range b.Succs {
            if s < 0 || s >= len(k.Blocks) {
                return nil, errorf(fmt.Sprintf("bb_%d", i), "invalid successor %d", s)
            }
            k.Link(k.Blocks[i], k.Blocks[s])
        }
    }

    /* instructions */
    for i, b := range self.Blocks {
        bb := ir.CreateBuilder(k, k.Blocks[i])
        for j, v := range b.Ins {
            p.where = fmt.Sprintf("bb_%d #%d", i, j)
            ins, err := p.inst(v)
            if err != nil {
                return nil, err
            }
            bb.Add(ins)
        }
    }
    return k, nil
}

type _Parser struct {
    k     *ir.Kernel
    where string
}

func (self *_Parser) errorf(f string, args ...interface{}) error {
    return errorf(self.where, f, args...)
}

func (self *_Parser) decl(name string) (*ir.Declare, error) {
    if strings.HasPrefix(name, "acc") {
        if n, err := strconv.Atoi(name[3:]); err == nil {
            return self.k.Acc(n), nil
        }
    }
    if d := self.k.Lookup(name); d != nil {
        return d, nil
    } else {
        return nil, self.errorf("undeclared register %q", name)
    }
}

// reg parses "name" or "name.sub".
func (self *_Parser) reg(s string) (*ir.Declare, int, error) {
    sub := 0
    name := s
    if i := strings.LastIndexByte(s, '.'); i >= 0 {
        v, err := strconv.Atoi(s[i + 1:])
        if err != nil {
            return nil, 0, self.errorf("invalid sub-register in %q", s)
        }
        name, sub = s[:i], v
    }
    d, err := self.decl(name)
    return d, sub, err
}

func (self *_Parser) region(s string) (ir.Region, error) {
    var v, w, h int
    if _, err := fmt.Sscanf(s, "<%d;%d,%d>", &v, &w, &h); err == nil {
        return ir.Region { VStride: v, Width: w, HStride: h }, nil
    } else if _, err = fmt.Sscanf(s, "<%d>", &h); err == nil {
        return ir.Region { HStride: h }, nil
    } else {
        return ir.Region {}, self.errorf("invalid region %q", s)
    }
}

// operand parses one operand. Missing regions default to a contiguous
// region of exec channels, missing types to the declared type.
func (self *_Parser) operand(s string, exec int, dst bool) (*ir.Operand, error) {
    var err error
    var typ string
    var mod ir.SrcMod

    /* null register */
    s = strings.TrimSpace(s)
    if s == "" || s == "null" {
        return ir.Null(), nil
    }

    /* element type */
    if i := strings.LastIndexByte(s, ':'); i >= 0 {
        s, typ = s[:i], s[i + 1:]
    }

    /* immediates */
    if strings.HasPrefix(s, "#") {
        v, err := strconv.ParseInt(s[1:], 0, 64)
        if err != nil {
            return nil, self.errorf("invalid immediate %q", s)
        }
        t, ok := ir.ParseType(typ)
        if !ok {
            return nil, self.errorf("immediate %q needs a type", s)
        }
        return ir.NewImm(v, t), nil
    }

    /* source modifiers */
    switch {
        case strings.HasPrefix(s, "-")     : s, mod = s[1:], ir.Mod_neg
        case strings.HasPrefix(s, "(abs)") : s, mod = s[5:], ir.Mod_abs
    }

    /* region */
    var rg ir.Region
    if i := strings.IndexByte(s, '<'); i >= 0 {
        if rg, err = self.region(s[i:]); err != nil {
            return nil, err
        }
        s = s[:i]
    } else if dst {
        rg = ir.Region { HStride: 1 }
    } else {
        rg = ir.Contiguous(exec)
    }

    /* indirect or direct register */
    var ret *ir.Operand
    if strings.HasPrefix(s, "r[") && strings.HasSuffix(s, "]") {
        ret, err = self.indirect(s[2:len(s) - 1], rg)
    } else {
        var d *ir.Declare
        var sub int
        if d, sub, err = self.reg(s); err == nil {
            ret = &ir.Operand { Base: d, Type: d.Type, SubReg: sub, Region: rg }
        }
    }

    /* check for errors */
    if err != nil {
        return nil, err
    }

    /* override the type */
    if typ != "" {
        t, ok := ir.ParseType(typ)
        if !ok {
            return nil, self.errorf("invalid type %q", typ)
        }
        ret.Type = t
    }

    ret.Mod = mod
    return ret, nil
}

func (self *_Parser) indirect(s string, rg ir.Region) (*ir.Operand, error) {
    imm := 0
    ref := s
    if i := strings.IndexByte(s, ','); i >= 0 {
        v, err := strconv.Atoi(strings.TrimSpace(s[i + 1:]))
        if err != nil {
            return nil, self.errorf("invalid address immediate in %q", s)
        }
        ref, imm = strings.TrimSpace(s[:i]), v
    }
    d, sub, err := self.reg(ref)
    if err != nil {
        return nil, err
    }

    /* untyped indirect regions are dwords */
    return ir.NewIndirect(d, sub, imm, ir.T_UD, rg), nil
}

// flag parses "[~]name[.sub]".
func (self *_Parser) flag(s string) (*ir.Declare, int, bool, error) {
    inv := strings.HasPrefix(s, "~")
    d, sub, err := self.reg(strings.TrimPrefix(s, "~"))
    return d, sub, inv, err
}

func (self *_Parser) inst(v Inst) (*ir.Inst, error) {
    op, ok := ir.ParseOpCode(v.Op)
    if !ok {
        return nil, self.errorf("invalid opcode %q", v.Op)
    }
    if len(v.Src) > op.NumSrc() {
        return nil, self.errorf("%s takes %d sources", op, op.NumSrc())
    }

    /* default execution size */
    ins := &ir.Inst { Op: op, Exec: v.Exec }
    if ins.Exec == 0 {
        ins.Exec = 1
    }

    /* operands */
    var err error
    if ins.Dst, err = self.operand(v.Dst, ins.Exec, true); err != nil {
        return nil, err
    }
    for i, s := range v.Src {
        if ins.Src[i], err = self.operand(s, ins.Exec, false); err != nil {
            return nil, err
        }
    }

    /* pseudo instructions read the whole register */
    if op.IsPseudo() && ins.Src[0].IsReg() {
        ins.Src[0].Region = ir.Scalar()
    }

    /* mac reads acc0 */
    if op == ir.OP_mac {
        ins.ImplAccSrc = ir.NewSrc(self.k.Acc(0), ins.Dst.Type, 0, ir.Contiguous(ins.Exec))
    }

    /* predicate */
    if v.Pred != "" {
        d, sub, inv, err := self.flag(v.Pred)
        if err != nil {
            return nil, err
        }
        ins.WithPred(d, sub, inv)
    }

    /* conditional modifier, "cond flag[.sub]" */
    if v.Cond != "" {
        fs := strings.Fields(v.Cond)
        if len(fs) != 2 {
            return nil, self.errorf("invalid conditional modifier %q", v.Cond)
        }
        cm, ok := ir.ParseCond(fs[0])
        if !ok {
            return nil, self.errorf("invalid condition %q", fs[0])
        }
        d, sub, err := self.reg(fs[1])
        if err != nil {
            return nil, err
        }
        ins.WithCond(cm, d, sub)
    }

    /* instruction options */
    for _, m := range v.Mask {
        switch strings.ToLower(m) {
            case "nomask" : ins.WithMask(ir.Mask_NoMask)
            case "eot"    : ins.WithMask(ir.Mask_EOT)
            default       : return nil, self.errorf("invalid instruction option %q", m)
        }
    }
    return ins, nil
}
