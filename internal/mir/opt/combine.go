package opt

import (
	"vamc/internal/mir"
)

// InstCombine applies local algebraic peepholes until a fixed point:
// identities with 0 and 1, double negation, x-x, constant selects, and
// single-value phis. It never peers through an optbarrier: pattern matching
// happens on defining opcodes, and a barrier result defeats every match.
type InstCombine struct {
	// Strict float semantics keep x*0 and x-x unfolded so signed zeros and
	// NaN payloads survive.
	Strict bool
}

func (ic *InstCombine) Name() string        { return "Instruction Combining" }
func (ic *InstCombine) Description() string { return "local algebraic peepholes on SSA values" }

func (ic *InstCombine) Apply(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	changed := false
	for {
		round := false
		for _, b := range f.Layout() {
			for _, i := range append([]mir.Inst(nil), f.BlockInsts(b)...) {
				if f.BlockOf(i) == mir.NoBlock {
					continue
				}
				if ic.combine(f, i) {
					round = true
				}
			}
		}
		if !round {
			break
		}
		changed = true
	}
	_ = cfg
	return changed
}

func (ic *InstCombine) combine(f *mir.Function, i mir.Inst) bool {
	d := f.InstData(i)
	replace := func(v mir.Value) bool {
		f.ReplaceAllUses(d.Results[0], v)
		f.RemoveInst(i)
		return true
	}

	switch d.Op {
	case mir.OpFadd:
		if d.Args[0] == mir.FZero {
			return replace(d.Args[1])
		}
		if d.Args[1] == mir.FZero {
			return replace(d.Args[0])
		}
	case mir.OpFsub:
		if d.Args[1] == mir.FZero {
			return replace(d.Args[0])
		}
		if !ic.Strict && d.Args[0] == d.Args[1] {
			return replace(mir.FZero)
		}
	case mir.OpFmul:
		if d.Args[0] == mir.FOne {
			return replace(d.Args[1])
		}
		if d.Args[1] == mir.FOne {
			return replace(d.Args[0])
		}
		if !ic.Strict && (d.Args[0] == mir.FZero || d.Args[1] == mir.FZero) {
			return replace(mir.FZero)
		}
	case mir.OpFdiv:
		if d.Args[1] == mir.FOne {
			return replace(d.Args[0])
		}
		if !ic.Strict && d.Args[0] == mir.FZero {
			return replace(mir.FZero)
		}
	case mir.OpFneg:
		if inner := f.DefInst(d.Args[0]); inner != mir.NoInst {
			if id := f.InstData(inner); id.Op == mir.OpFneg {
				return replace(id.Args[0])
			}
		}
		if d.Args[0] == mir.FZero && !ic.Strict {
			return replace(mir.FZero)
		}

	case mir.OpIadd:
		if d.Args[0] == mir.Zero {
			return replace(d.Args[1])
		}
		if d.Args[1] == mir.Zero {
			return replace(d.Args[0])
		}
	case mir.OpIsub:
		if d.Args[1] == mir.Zero {
			return replace(d.Args[0])
		}
		if d.Args[0] == d.Args[1] {
			return replace(mir.Zero)
		}
	case mir.OpImul:
		if d.Args[0] == mir.One {
			return replace(d.Args[1])
		}
		if d.Args[1] == mir.One {
			return replace(d.Args[0])
		}
		if d.Args[0] == mir.Zero || d.Args[1] == mir.Zero {
			return replace(mir.Zero)
		}
	case mir.OpIneg:
		if inner := f.DefInst(d.Args[0]); inner != mir.NoInst {
			if id := f.InstData(inner); id.Op == mir.OpIneg {
				return replace(id.Args[0])
			}
		}

	case mir.OpIeq, mir.OpIle, mir.OpIge:
		if d.Args[0] == d.Args[1] {
			return replace(mir.True)
		}
	case mir.OpIne, mir.OpIlt, mir.OpIgt:
		if d.Args[0] == d.Args[1] {
			return replace(mir.False)
		}

	case mir.OpBnot:
		if inner := f.DefInst(d.Args[0]); inner != mir.NoInst {
			if id := f.InstData(inner); id.Op == mir.OpBnot {
				return replace(id.Args[0])
			}
		}
		if d.Args[0] == mir.True {
			return replace(mir.False)
		}
		if d.Args[0] == mir.False {
			return replace(mir.True)
		}
	case mir.OpBand:
		if d.Args[0] == mir.True {
			return replace(d.Args[1])
		}
		if d.Args[1] == mir.True {
			return replace(d.Args[0])
		}
		if d.Args[0] == mir.False || d.Args[1] == mir.False {
			return replace(mir.False)
		}
	case mir.OpBor:
		if d.Args[0] == mir.False {
			return replace(d.Args[1])
		}
		if d.Args[1] == mir.False {
			return replace(d.Args[0])
		}
		if d.Args[0] == mir.True || d.Args[1] == mir.True {
			return replace(mir.True)
		}

	case mir.OpSelect:
		if d.Args[0] == mir.True {
			return replace(d.Args[1])
		}
		if d.Args[0] == mir.False {
			return replace(d.Args[2])
		}
		if d.Args[1] == d.Args[2] {
			return replace(d.Args[1])
		}

	case mir.OpPhi:
		if len(d.Args) == 0 {
			return false
		}
		first := d.Args[0]
		for _, a := range d.Args[1:] {
			if a != first {
				return false
			}
		}
		if first == d.Results[0] {
			return false
		}
		return replace(first)
	}
	return false
}
