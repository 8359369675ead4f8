package opt

import (
	"vamc/internal/mir"
)

// SimplifyCFG removes unreachable blocks, collapses jumps to empty forwarding
// blocks and merges straight-line block pairs. Reports whether anything
// changed. Recomputes cfg when it does.
func SimplifyCFG(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	changed := false
	for {
		round := false
		if removeUnreachable(f, cfg) {
			round = true
		}
		if collapseForwarders(f, cfg) {
			round = true
		}
		if mergeStraightLine(f, cfg) {
			round = true
		}
		if !round {
			break
		}
		changed = true
	}
	if changed {
		cfg.Compute(f)
		cleanupPhis(f, cfg)
	}
	return changed
}

func removeUnreachable(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	cfg.Compute(f)
	reachable := make(map[mir.Block]bool)
	var visit func(mir.Block)
	visit = func(b mir.Block) {
		if reachable[b] {
			return
		}
		reachable[b] = true
		for _, s := range cfg.Succs(b) {
			visit(s)
		}
	}
	entry := f.Entry()
	if entry == mir.NoBlock {
		return false
	}
	visit(entry)
	// the exit block stays even when nothing jumps to it yet
	reachable[f.Exit()] = true

	changed := false
	layout := append([]mir.Block(nil), f.Layout()...)
	for _, b := range layout {
		if reachable[b] {
			continue
		}
		for _, i := range append([]mir.Inst(nil), f.BlockInsts(b)...) {
			f.RemoveInst(i)
		}
		removeFromLayout(f, b)
		changed = true
	}
	if changed {
		cfg.Compute(f)
		cleanupPhis(f, cfg)
	}
	return changed
}

// collapseForwarders redirects edges through blocks containing only a jump.
func collapseForwarders(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	cfg.Compute(f)
	changed := false
	for _, b := range f.Layout() {
		insts := f.BlockInsts(b)
		if len(insts) != 1 || b == f.Entry() {
			continue
		}
		d := f.InstData(insts[0])
		if d.Op != mir.OpJmp {
			continue
		}
		target := d.Blocks[0]
		if target == b {
			continue
		}
		if !phisAllowRedirect(f, cfg, b, target) {
			continue
		}
		preds := append([]mir.Block(nil), cfg.Preds(b)...)
		if len(preds) == 0 {
			continue
		}
		for _, p := range preds {
			term := f.Terminator(p)
			if term == mir.NoInst {
				continue
			}
			blocks := f.InstData(term).Blocks
			for n := range blocks {
				if blocks[n] == b {
					blocks[n] = target
				}
			}
		}
		spreadPhiEdges(f, target, b, preds)
		f.RemoveInst(insts[0])
		removeFromLayout(f, b)
		cfg.Compute(f)
		changed = true
	}
	if changed {
		cleanupPhis(f, cfg)
	}
	return changed
}

// phisAllowRedirect checks that forwarding preds of b straight into target
// does not create conflicting phi edges in target.
func phisAllowRedirect(f *mir.Function, cfg *mir.ControlFlowGraph, b, target mir.Block) bool {
	for _, i := range f.BlockInsts(target) {
		d := f.InstData(i)
		if d.Op != mir.OpPhi {
			break
		}
		var viaB mir.Value = mir.NoValue
		for n, e := range d.Blocks {
			if e == b {
				viaB = d.Args[n]
			}
		}
		if viaB == mir.NoValue {
			continue
		}
		for n, e := range d.Blocks {
			for _, p := range cfg.Preds(b) {
				if e == p && d.Args[n] != viaB {
					return false
				}
			}
		}
	}
	return true
}

// spreadPhiEdges replaces the phi edge labelled with the removed forwarder by
// one edge per redirected predecessor, carrying the same value.
func spreadPhiEdges(f *mir.Function, target, forwarder mir.Block, preds []mir.Block) {
	for _, i := range f.BlockInsts(target) {
		d := f.InstData(i)
		if d.Op != mir.OpPhi {
			break
		}
		via := mir.NoValue
		for n, e := range d.Blocks {
			if e == forwarder {
				via = d.Args[n]
				d.Args = append(d.Args[:n], d.Args[n+1:]...)
				d.Blocks = append(d.Blocks[:n], d.Blocks[n+1:]...)
				break
			}
		}
		if via == mir.NoValue {
			continue
		}
		for _, p := range preds {
			present := false
			for _, e := range d.Blocks {
				if e == p {
					present = true
					break
				}
			}
			if !present {
				d.Args = append(d.Args, via)
				d.Blocks = append(d.Blocks, p)
			}
		}
	}
}

// mergeStraightLine folds a single-successor block into its single-predecessor
// partner when no phi fan-in blocks the merge.
func mergeStraightLine(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	cfg.Compute(f)
	for _, b := range f.Layout() {
		term := f.Terminator(b)
		if term == mir.NoInst || f.InstData(term).Op != mir.OpJmp {
			continue
		}
		s := f.InstData(term).Blocks[0]
		if s == b || len(cfg.Preds(s)) != 1 {
			continue
		}
		if len(f.BlockInsts(s)) > 0 {
			if f.InstData(f.BlockInsts(s)[0]).Op == mir.OpPhi {
				continue
			}
		}
		// move s's instructions into b and give b s's place in the layout
		f.RemoveInst(term)
		for _, i := range append([]mir.Inst(nil), f.BlockInsts(s)...) {
			moveInst(f, i, b)
		}
		replaceInLayout(f, s, b)
		renamePhiPred(f, s, b)
		cfg.Compute(f)
		return true
	}
	return false
}

func moveInst(f *mir.Function, i mir.Inst, dst mir.Block) {
	f.RemoveInst(i)
	f.AttachInst(i, dst)
}

func removeFromLayout(f *mir.Function, b mir.Block) {
	layout := f.Layout()
	for n, cand := range layout {
		if cand == b {
			copy(layout[n:], layout[n+1:])
			f.SetLayout(layout[:len(layout)-1])
			return
		}
	}
}

func replaceInLayout(f *mir.Function, old, new mir.Block) {
	layout := f.Layout()
	oldPos, newPos := -1, -1
	for n, cand := range layout {
		if cand == old {
			oldPos = n
		}
		if cand == new {
			newPos = n
		}
	}
	if oldPos < 0 || newPos < 0 {
		return
	}
	layout[oldPos] = new
	copy(layout[newPos:], layout[newPos+1:])
	f.SetLayout(layout[:len(layout)-1])
}

// renamePhiPred relabels phi edges referring to old as predecessor.
func renamePhiPred(f *mir.Function, old, new mir.Block) {
	for _, b := range f.Layout() {
		for _, i := range f.BlockInsts(b) {
			d := f.InstData(i)
			if d.Op != mir.OpPhi {
				break
			}
			for n := range d.Blocks {
				if d.Blocks[n] == old {
					d.Blocks[n] = new
				}
			}
		}
	}
}

// cleanupPhis drops phi edges whose predecessor no longer reaches the block
// and replaces single-edge phis by their value.
func cleanupPhis(f *mir.Function, cfg *mir.ControlFlowGraph) {
	for _, b := range f.Layout() {
		preds := cfg.Preds(b)
		for _, i := range append([]mir.Inst(nil), f.BlockInsts(b)...) {
			d := f.InstData(i)
			if d.Op != mir.OpPhi {
				break
			}
			for n := 0; n < len(d.Blocks); {
				found := false
				for _, p := range preds {
					if p == d.Blocks[n] {
						found = true
						break
					}
				}
				if found {
					n++
					continue
				}
				d.Args = append(d.Args[:n], d.Args[n+1:]...)
				d.Blocks = append(d.Blocks[:n], d.Blocks[n+1:]...)
			}
			if len(d.Args) == 1 {
				f.ReplaceAllUses(d.Results[0], d.Args[0])
				f.RemoveInst(i)
			}
		}
	}
}
