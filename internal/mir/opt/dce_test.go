package opt

import (
	"testing"

	"vamc/internal/mir"
)

func TestDCERemovesUnusedChain(t *testing.T) {
	f := mir.NewFunction("dce")
	entry := f.NewBlock()
	c := f.At(entry)

	x := f.NewParam(mir.TyReal)
	kept := c.Ins().Fadd(x, mir.FOne)
	barrier := c.Ins().OptBarrier(kept)
	f.Outputs[barrier] = true

	a := c.Ins().Fmul(x, x)
	b := c.Ins().Fadd(a, mir.FOne)
	_ = b

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	if !DeadCodeElimination(f, &cfg) {
		t.Fatal("DCE should report changes")
	}

	if f.BlockOf(f.DefInst(a)) != mir.NoBlock || f.BlockOf(f.DefInst(b)) != mir.NoBlock {
		t.Error("the unused chain must be removed")
	}
	if f.BlockOf(f.DefInst(kept)) == mir.NoBlock {
		t.Error("values reaching an anchored optbarrier must survive")
	}
}

func TestDCEKeepsSideEffectingCalls(t *testing.T) {
	f := mir.NewFunction("calls")
	entry := f.NewBlock()
	c := f.At(entry)

	x := f.NewParam(mir.TyReal)
	effect := f.DeclareFunc(mir.Signature{Name: "finish", HasSideEffects: true})
	pure := f.DeclareFunc(mir.Signature{Name: "ddt", Params: 1, Returns: 1, ResultTy: mir.TyReal})
	c.Ins().Call(effect, nil)
	pureResults := c.Ins().Call(pure, []mir.Value{x})

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	DeadCodeElimination(f, &cfg)

	if f.BlockOf(f.DefInst(pureResults[0])) != mir.NoBlock {
		t.Error("a pure call with dead results is removable")
	}
	found := false
	for _, i := range f.BlockInsts(entry) {
		d := f.InstData(i)
		if d.Op == mir.OpCall && f.Signature(d.Callee).Name == "finish" {
			found = true
		}
	}
	if !found {
		t.Error("side-effecting calls are observable and must stay")
	}
}

// Aggressive DCE removes a side-effect-free diamond whose arms contribute
// nothing observable.
func TestAggressiveDCERemovesDeadDiamond(t *testing.T) {
	f := mir.NewFunction("adce")
	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()
	join := f.NewBlock()
	c := f.At(entry)

	x := f.NewParam(mir.TyReal)
	cond := f.NewParam(mir.TyBool)
	kept := c.Ins().Fadd(x, mir.FOne)
	barrier := c.Ins().OptBarrier(kept)
	f.Outputs[barrier] = true
	c.Ins().Br(cond, then, els)
	c.GotoBottom(then)
	c.Ins().Fmul(x, x)
	c.Ins().Jump(join)
	c.GotoBottom(els)
	c.Ins().Jump(join)

	var cfg mir.ControlFlowGraph
	var pdom mir.DominatorTree
	cfg.Compute(f)
	if !AggressiveDeadCodeElimination(f, &cfg, &pdom) {
		t.Fatal("aggressive DCE should report changes")
	}

	for _, b := range f.Layout() {
		if tm := f.Terminator(b); tm != mir.NoInst && f.InstData(tm).Op == mir.OpBr {
			t.Error("the dead conditional branch must be rewritten to a jump")
		}
	}
	if f.BlockOf(f.DefInst(kept)) == mir.NoBlock {
		t.Error("the observable computation must survive")
	}
	if err := f.Validate(); err != nil {
		t.Errorf("function invalid after aggressive DCE: %v", err)
	}
}

// Commutativity law: simplify then DCE reaches the same fixpoint as DCE then
// simplify.
func TestSimplifyDCECommute(t *testing.T) {
	build := func() (*mir.Function, mir.ControlFlowGraph) {
		f := mir.NewFunction("commute")
		entry := f.NewBlock()
		mid := f.NewBlock()
		exit := f.NewBlock()
		c := f.At(entry)
		x := f.NewParam(mir.TyReal)
		dead := c.Ins().Fmul(x, x)
		_ = dead
		live := c.Ins().Fadd(x, mir.FOne)
		barrier := c.Ins().OptBarrier(live)
		f.Outputs[barrier] = true
		c.Ins().Jump(mid)
		c.GotoBottom(mid)
		c.Ins().Jump(exit)
		var cfg mir.ControlFlowGraph
		cfg.Compute(f)
		return f, cfg
	}

	f1, cfg1 := build()
	for {
		a := SimplifyCFG(f1, &cfg1)
		b := DeadCodeElimination(f1, &cfg1)
		if !a && !b {
			break
		}
	}

	f2, cfg2 := build()
	for {
		a := DeadCodeElimination(f2, &cfg2)
		b := SimplifyCFG(f2, &cfg2)
		if !a && !b {
			break
		}
	}

	if mir.Print(f1) != mir.Print(f2) {
		t.Errorf("orders disagree:\n--- simplify first ---\n%s--- dce first ---\n%s",
			mir.Print(f1), mir.Print(f2))
	}
}
