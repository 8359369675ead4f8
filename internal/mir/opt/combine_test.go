package opt

import (
	"testing"

	"vamc/internal/mir"
)

func combineOn(t *testing.T, build func(f *mir.Function, c *mir.Cursor) mir.Value) (*mir.Function, mir.Value) {
	t.Helper()
	f := mir.NewFunction("peephole")
	entry := f.NewBlock()
	c := f.At(entry)
	v := build(f, c)
	barrier := c.Ins().OptBarrier(v)
	f.Outputs[barrier] = true

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	ic := &InstCombine{}
	ic.Apply(f, &cfg)
	return f, f.InstData(f.DefInst(barrier)).Args[0]
}

func TestCombineAddZero(t *testing.T) {
	var p mir.Value
	_, out := combineOn(t, func(f *mir.Function, c *mir.Cursor) mir.Value {
		p = f.NewParam(mir.TyReal)
		return c.Ins().Fadd(p, mir.FZero)
	})
	if out != p {
		t.Errorf("x + 0 should fold to x, got v%d", out)
	}
}

func TestCombineMulOneAndZero(t *testing.T) {
	var p mir.Value
	_, out := combineOn(t, func(f *mir.Function, c *mir.Cursor) mir.Value {
		p = f.NewParam(mir.TyReal)
		one := c.Ins().Fmul(p, mir.FOne)
		return c.Ins().Fmul(one, mir.FZero)
	})
	if out != mir.FZero {
		t.Errorf("x * 0 should fold to 0, got v%d", out)
	}
}

func TestCombineStrictKeepsMulZero(t *testing.T) {
	f := mir.NewFunction("strict")
	entry := f.NewBlock()
	c := f.At(entry)
	p := f.NewParam(mir.TyReal)
	prod := c.Ins().Fmul(p, mir.FZero)
	barrier := c.Ins().OptBarrier(prod)
	f.Outputs[barrier] = true

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	ic := &InstCombine{Strict: true}
	ic.Apply(f, &cfg)

	if f.InstData(f.DefInst(barrier)).Args[0] != prod {
		t.Error("strict mode must keep x * 0 for signed-zero/NaN semantics")
	}
}

func TestCombineDoubleNegation(t *testing.T) {
	var p mir.Value
	_, out := combineOn(t, func(f *mir.Function, c *mir.Cursor) mir.Value {
		p = f.NewParam(mir.TyReal)
		return c.Ins().Fneg(c.Ins().Fneg(p))
	})
	if out != p {
		t.Errorf("-(-x) should fold to x, got v%d", out)
	}
}

func TestCombineSubSelf(t *testing.T) {
	_, out := combineOn(t, func(f *mir.Function, c *mir.Cursor) mir.Value {
		p := f.NewParam(mir.TyReal)
		return c.Ins().Fsub(p, p)
	})
	if out != mir.FZero {
		t.Errorf("x - x should fold to 0, got v%d", out)
	}
}

func TestCombineSelectConstCond(t *testing.T) {
	var a mir.Value
	_, out := combineOn(t, func(f *mir.Function, c *mir.Cursor) mir.Value {
		a = f.NewParam(mir.TyReal)
		b := f.NewParam(mir.TyReal)
		return c.Ins().Select(mir.True, a, b)
	})
	if out != a {
		t.Errorf("select(true, a, b) should fold to a, got v%d", out)
	}
}

// Instruction combining must not peer through an optbarrier.
func TestCombineStopsAtOptBarrier(t *testing.T) {
	f := mir.NewFunction("wall")
	entry := f.NewBlock()
	c := f.At(entry)
	p := f.NewParam(mir.TyReal)
	inner := c.Ins().Fneg(p)
	wall := c.Ins().OptBarrier(inner)
	f.Outputs[wall] = true
	outer := c.Ins().Fneg(wall)
	barrier := c.Ins().OptBarrier(outer)
	f.Outputs[barrier] = true

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	ic := &InstCombine{}
	ic.Apply(f, &cfg)

	if f.InstData(f.DefInst(barrier)).Args[0] != outer {
		t.Error("fneg(optbarrier(fneg(x))) must not fold to x")
	}
}

func TestCombinePhiSingleValue(t *testing.T) {
	f := mir.NewFunction("phione")
	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()
	join := f.NewBlock()
	c := f.At(entry)
	cond := f.NewParam(mir.TyBool)
	x := f.NewParam(mir.TyReal)
	c.Ins().Br(cond, then, els)
	c.GotoBottom(then)
	c.Ins().Jump(join)
	c.GotoBottom(els)
	c.Ins().Jump(join)
	c.GotoBottom(join)
	merged := c.Ins().Phi([]mir.PhiEdge{
		{Block: then, Value: x},
		{Block: els, Value: x},
	})
	sum := c.Ins().Fadd(merged, mir.FOne)
	barrier := c.Ins().OptBarrier(sum)
	f.Outputs[barrier] = true

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	ic := &InstCombine{}
	ic.Apply(f, &cfg)

	if f.InstData(f.DefInst(sum)).Args[0] != x {
		t.Error("phi(x, x) should fold to x")
	}
}
