package opt

import (
	"vamc/internal/mir"
)

// AggressiveDeadCodeElimination assumes instructions dead until proved
// otherwise. Observability seeds the live set; data dependencies and control
// dependencies (via the post-dominator tree) extend it. Conditional branches
// that never become live are rewritten into jumps to their nearest useful
// post-dominator, which lets whole diamonds disappear.
func AggressiveDeadCodeElimination(f *mir.Function, cfg *mir.ControlFlowGraph, pdom *mir.DominatorTree) bool {
	cfg.Compute(f)
	pdom.Compute(f, cfg, true)

	// control dependence: for edge u->v, every block from v up to (but not
	// including) ipdom(u) is control dependent on u
	ctrlDeps := make(map[mir.Block][]mir.Block)
	for _, u := range f.Layout() {
		for _, v := range cfg.Succs(u) {
			w := v
			stop := pdom.IDom(u)
			for w != mir.NoBlock && w != stop {
				ctrlDeps[w] = append(ctrlDeps[w], u)
				w = pdom.IDom(w)
			}
		}
	}

	live := make(map[mir.Inst]bool)
	liveBlock := make(map[mir.Block]bool)
	var worklist []mir.Inst
	mark := func(i mir.Inst) {
		if i == mir.NoInst || live[i] {
			return
		}
		live[i] = true
		worklist = append(worklist, i)
	}

	for _, b := range f.Layout() {
		for _, i := range f.BlockInsts(b) {
			d := f.InstData(i)
			// terminators start dead; they become live through the control
			// dependencies of live instructions
			if !d.Op.IsTerminator() && observable(f, i) {
				mark(i)
			}
		}
	}

	for len(worklist) > 0 {
		i := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		d := f.InstData(i)
		for _, a := range d.Args {
			if def := f.DefInst(a); def != mir.NoInst && f.BlockOf(def) != mir.NoBlock {
				mark(def)
			}
		}
		b := f.BlockOf(i)
		if !liveBlock[b] {
			liveBlock[b] = true
			for _, dep := range ctrlDeps[b] {
				mark(f.Terminator(dep))
			}
		}
		if d.Op == mir.OpPhi {
			// the edge predecessors must remain distinguishable
			for _, e := range d.Blocks {
				if !liveBlock[e] {
					liveBlock[e] = true
					for _, dep := range ctrlDeps[e] {
						mark(f.Terminator(dep))
					}
				}
				mark(f.Terminator(e))
			}
		}
	}

	changed := false
	for _, b := range f.Layout() {
		for _, i := range append([]mir.Inst(nil), f.BlockInsts(b)...) {
			if live[i] {
				continue
			}
			d := f.InstData(i)
			if d.Op.IsTerminator() {
				// a dead terminator jumps straight to the nearest useful
				// post-dominator
				target := pdom.IDom(b)
				for target != mir.NoBlock && !liveBlock[target] && target != f.Exit() {
					target = pdom.IDom(target)
				}
				if target == mir.NoBlock {
					target = f.Exit()
				}
				if d.Op == mir.OpJmp && d.Blocks[0] == target {
					continue
				}
				d.Op = mir.OpJmp
				d.Args = nil
				d.Blocks = []mir.Block{target}
				changed = true
				continue
			}
			f.RemoveInst(i)
			changed = true
		}
	}
	if changed {
		cfg.Compute(f)
		cleanupPhis(f, cfg)
		SimplifyCFG(f, cfg)
	}
	return changed
}
