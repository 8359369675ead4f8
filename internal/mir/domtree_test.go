package mir

import "testing"

// buildDiamond returns entry -> (then | els) -> join.
func buildDiamond(t *testing.T) (*Function, [4]Block) {
	t.Helper()
	f := NewFunction("diamond")
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
	return f, [4]Block{entry, then, els, join}
}

func TestDominatorTreeDiamond(t *testing.T) {
	f, blocks := buildDiamond(t)
	entry, then, els, join := blocks[0], blocks[1], blocks[2], blocks[3]

	var cfg ControlFlowGraph
	cfg.Compute(f)
	var dom DominatorTree
	dom.Compute(f, &cfg, false)

	if dom.IDom(then) != entry || dom.IDom(els) != entry {
		t.Error("branch arms must be immediately dominated by entry")
	}
	if dom.IDom(join) != entry {
		t.Errorf("join is immediately dominated by block%d, want entry", dom.IDom(join))
	}
	if !dom.Dominates(entry, join) {
		t.Error("entry dominates everything")
	}
	if dom.Dominates(then, join) {
		t.Error("neither arm dominates the join")
	}
}

func TestPostDominatorTreeDiamond(t *testing.T) {
	f, blocks := buildDiamond(t)
	entry, then, els, join := blocks[0], blocks[1], blocks[2], blocks[3]

	var cfg ControlFlowGraph
	cfg.Compute(f)
	var pdom DominatorTree
	pdom.Compute(f, &cfg, true)

	if pdom.IDom(then) != join || pdom.IDom(els) != join {
		t.Error("branch arms must be immediately post-dominated by the join")
	}
	if pdom.IDom(entry) != join {
		t.Errorf("entry is immediately post-dominated by block%d, want join", pdom.IDom(entry))
	}
	if !pdom.Dominates(join, entry) {
		t.Error("the join post-dominates entry")
	}
	if pdom.Dominates(then, entry) {
		t.Error("neither arm post-dominates entry")
	}
}

func TestDominatorTreeLoop(t *testing.T) {
	f := NewFunction("loop")
	entry := f.NewBlock()
	header := f.NewBlock()
	body := f.NewBlock()
	exit := f.NewBlock()
	c := f.At(entry)
	cond := f.NewParam(TyBool)
	c.Ins().Jump(header)
	c.GotoBottom(header)
	c.Ins().Br(cond, body, exit)
	c.GotoBottom(body)
	c.Ins().Jump(header)

	var cfg ControlFlowGraph
	cfg.Compute(f)
	var dom DominatorTree
	dom.Compute(f, &cfg, false)

	if dom.IDom(header) != entry {
		t.Error("header is immediately dominated by entry")
	}
	if dom.IDom(body) != header || dom.IDom(exit) != header {
		t.Error("body and exit are immediately dominated by the header")
	}
	if !dom.Dominates(header, body) || !dom.Dominates(header, exit) {
		t.Error("the loop header dominates body and exit")
	}
}
