package opt

import (
	"testing"

	"vamc/internal/mir"
)

func TestSimplifyRemovesUnreachable(t *testing.T) {
	f := mir.NewFunction("unreach")
	entry := f.NewBlock()
	island := f.NewBlock()
	exit := f.NewBlock()
	c := f.At(entry)
	x := f.NewParam(mir.TyReal)
	barrier := c.Ins().OptBarrier(x)
	f.Outputs[barrier] = true
	c.Ins().Jump(exit)
	c.GotoBottom(island)
	c.Ins().Fmul(x, x)
	c.Ins().Jump(exit)

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	if !SimplifyCFG(f, &cfg) {
		t.Fatal("simplification should report changes")
	}
	for _, b := range f.Layout() {
		if b == island {
			t.Error("the unreachable block must leave the layout")
		}
	}
}

func TestSimplifyCollapsesForwarder(t *testing.T) {
	f := mir.NewFunction("forward")
	entry := f.NewBlock()
	hop := f.NewBlock()
	exit := f.NewBlock()
	c := f.At(entry)
	c.Ins().Jump(hop)
	c.GotoBottom(hop)
	c.Ins().Jump(exit)

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	SimplifyCFG(f, &cfg)

	if len(f.Layout()) != 1 {
		t.Errorf("entry, forwarder and exit should merge into one block, layout has %d", len(f.Layout()))
	}
}

// Collapsing a forwarder must not conflate phi edges carrying different
// values.
func TestSimplifyKeepsConflictingForwarder(t *testing.T) {
	f := mir.NewFunction("conflict")
	entry := f.NewBlock()
	hop := f.NewBlock()
	join := f.NewBlock()
	c := f.At(entry)
	cond := f.NewParam(mir.TyBool)
	c.Ins().Br(cond, hop, join)
	c.GotoBottom(hop)
	c.Ins().Jump(join)
	c.GotoBottom(join)
	merged := c.Ins().Phi([]mir.PhiEdge{
		{Block: hop, Value: mir.FOne},
		{Block: entry, Value: mir.FZero},
	})
	barrier := c.Ins().OptBarrier(merged)
	f.Outputs[barrier] = true

	var cfg mir.ControlFlowGraph
	cfg.Compute(f)
	SimplifyCFG(f, &cfg)

	if err := f.Validate(); err != nil {
		t.Fatalf("function invalid after simplification: %v", err)
	}
	// the phi must still distinguish both incoming values
	def := f.DefInst(f.StripOptBarrier(barrier))
	if def == mir.NoInst || f.InstData(def).Op != mir.OpPhi {
		t.Fatal("the phi must survive")
	}
	if len(f.InstData(def).Args) != 2 {
		t.Errorf("phi has %d edges, want 2", len(f.InstData(def).Args))
	}
}
