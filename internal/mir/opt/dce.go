package opt

import (
	"vamc/internal/mir"
)

// observable reports whether an instruction must be kept regardless of uses:
// terminators, calls with side effects, and optbarriers anchoring an output
// value.
func observable(f *mir.Function, i mir.Inst) bool {
	d := f.InstData(i)
	switch d.Op {
	case mir.OpBr, mir.OpJmp:
		return true
	case mir.OpCall:
		return f.Signature(d.Callee).HasSideEffects
	case mir.OpOptBarrier:
		if f.Outputs[d.Results[0]] || f.Outputs[d.Args[0]] {
			return true
		}
	}
	return false
}

// DeadCodeElimination removes instructions with no observable side effect
// whose results are all dead, walking uses transitively from the observable
// roots. Reports whether anything was removed.
func DeadCodeElimination(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	live := make(map[mir.Inst]bool)
	var worklist []mir.Inst

	mark := func(i mir.Inst) {
		if !live[i] {
			live[i] = true
			worklist = append(worklist, i)
		}
	}

	for _, b := range f.Layout() {
		for _, i := range f.BlockInsts(b) {
			if observable(f, i) {
				mark(i)
			}
		}
	}
	for len(worklist) > 0 {
		i := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, a := range f.InstData(i).Args {
			if def := f.DefInst(a); def != mir.NoInst && f.BlockOf(def) != mir.NoBlock {
				mark(def)
			}
		}
	}

	changed := false
	for _, b := range f.Layout() {
		insts := append([]mir.Inst(nil), f.BlockInsts(b)...)
		for _, i := range insts {
			if !live[i] {
				f.RemoveInst(i)
				changed = true
			}
		}
	}
	_ = cfg
	return changed
}
