package mir

import (
	"testing"
)

func TestConstantInterning(t *testing.T) {
	f := NewFunction("consts")

	if f.FConst(0) != FZero {
		t.Error("fconst 0 should intern to FZero")
	}
	if f.FConst(1) != FOne {
		t.Error("fconst 1 should intern to FOne")
	}
	if f.IConst(0) != Zero || f.IConst(1) != One {
		t.Error("integer constants 0 and 1 should intern to the seeded values")
	}
	if f.BConst(true) != True || f.BConst(false) != False {
		t.Error("boolean constants should be canonical")
	}

	a := f.FConst(2.5)
	b := f.FConst(2.5)
	if a != b {
		t.Errorf("fconst 2.5 interned twice: v%d vs v%d", a, b)
	}
	if v, ok := f.AsFConst(a); !ok || v != 2.5 {
		t.Errorf("AsFConst(v%d) = %v, %v", a, v, ok)
	}
}

func TestValueDefinitions(t *testing.T) {
	f := NewFunction("defs")
	entry := f.NewBlock()
	c := f.At(entry)

	p := f.NewParam(TyReal)
	sum := c.Ins().Fadd(p, FOne)

	if f.DefInst(p) != NoInst {
		t.Error("parameters have no defining instruction")
	}
	def := f.DefInst(sum)
	if def == NoInst {
		t.Fatal("instruction results must have a defining instruction")
	}
	if f.InstData(def).Op != OpFadd {
		t.Errorf("defining instruction has opcode %s, want fadd", f.InstData(def).Op)
	}
	if f.ValueTy(sum) != TyReal {
		t.Errorf("fadd result has type %s, want real", f.ValueTy(sum))
	}
}

func TestStripOptBarrier(t *testing.T) {
	f := NewFunction("barrier")
	entry := f.NewBlock()
	c := f.At(entry)

	p := f.NewParam(TyReal)
	wrapped := c.Ins().OptBarrier(p)
	doubly := c.Ins().OptBarrier(wrapped)

	if f.StripOptBarrier(doubly) != p {
		t.Error("strip_optbarrier should peel nested barriers")
	}
	if f.StripOptBarrier(p) != p {
		t.Error("strip_optbarrier on a plain value is the identity")
	}
}

func TestValueDead(t *testing.T) {
	f := NewFunction("dead")
	entry := f.NewBlock()
	c := f.At(entry)

	p := f.NewParam(TyReal)
	used := c.Ins().Fadd(p, FOne)
	unused := c.Ins().Fmul(p, p)

	if f.ValueDead(p) {
		t.Error("p is read by two instructions and must be live")
	}
	if !f.ValueDead(used) {
		t.Error("the fadd result has no uses and must be dead")
	}
	if !f.ValueDead(unused) {
		t.Error("the fmul result has no uses and must be dead")
	}

	f.Outputs[used] = true
	if f.ValueDead(used) {
		t.Error("anchored outputs count as uses")
	}
}

func TestTerminatorQueries(t *testing.T) {
	f := NewFunction("term")
	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()
	c := f.At(entry)

	cond := f.NewParam(TyBool)
	c.Ins().Br(cond, then, els)
	c.GotoBottom(then)
	c.Ins().Jump(els)

	if f.Terminator(entry) == NoInst {
		t.Error("entry must have a terminator")
	}
	if f.Terminator(els) != NoInst {
		t.Error("the exit block has no terminator")
	}
	var cfg ControlFlowGraph
	cfg.Compute(f)
	if len(cfg.Succs(entry)) != 2 {
		t.Errorf("entry has %d successors, want 2", len(cfg.Succs(entry)))
	}
	if len(cfg.Preds(els)) != 2 {
		t.Errorf("exit has %d predecessors, want 2", len(cfg.Preds(els)))
	}
}

func TestValidateCatchesPhiMismatch(t *testing.T) {
	f := NewFunction("phierr")
	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()
	join := f.NewBlock()
	c := f.At(entry)

	cond := f.NewParam(TyBool)
	c.Ins().Br(cond, then, els)
	c.GotoBottom(then)
	c.Ins().Jump(join)
	c.GotoBottom(els)
	c.Ins().Jump(join)
	c.GotoBottom(join)
	// deliberately wrong: only one incoming edge
	c.Ins().Phi([]PhiEdge{{Block: then, Value: FOne}})

	if err := f.Validate(); err == nil {
		t.Error("Validate should reject a phi missing a predecessor edge")
	}
}

func TestValidateAcceptsDiamond(t *testing.T) {
	f := NewFunction("diamond")
	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()
	join := f.NewBlock()
	c := f.At(entry)

	cond := f.NewParam(TyBool)
	x := f.NewParam(TyReal)
	c.Ins().Br(cond, then, els)
	c.GotoBottom(then)
	doubled := c.Ins().Fadd(x, x)
	c.Ins().Jump(join)
	c.GotoBottom(els)
	c.Ins().Jump(join)
	c.GotoBottom(join)
	merged := c.Ins().Phi([]PhiEdge{
		{Block: then, Value: doubled},
		{Block: els, Value: x},
	})
	c.Ins().OptBarrier(merged)

	if err := f.Validate(); err != nil {
		t.Errorf("valid diamond rejected: %v", err)
	}
}
