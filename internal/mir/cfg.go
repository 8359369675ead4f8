package mir

// ControlFlowGraph is a derived view of a function: predecessor and successor
// lists per block. It is recomputed after structural passes and may be patched
// incrementally while the DAE builder splits blocks.
type ControlFlowGraph struct {
	preds [][]Block
	succs [][]Block
}

// Compute rebuilds the whole graph from the function layout.
func (cfg *ControlFlowGraph) Compute(f *Function) {
	n := f.NumBlocks()
	cfg.preds = make([][]Block, n)
	cfg.succs = make([][]Block, n)
	for _, b := range f.layout {
		term := f.Terminator(b)
		if term == NoInst {
			continue
		}
		for _, succ := range f.insts[term].Blocks {
			cfg.succs[b] = append(cfg.succs[b], succ)
			cfg.preds[succ] = append(cfg.preds[succ], b)
		}
	}
}

// EnsureBlock grows the graph to cover block b.
func (cfg *ControlFlowGraph) EnsureBlock(b Block) {
	for len(cfg.preds) <= int(b) {
		cfg.preds = append(cfg.preds, nil)
		cfg.succs = append(cfg.succs, nil)
	}
}

// AddEdge records a new edge without rescanning the function.
func (cfg *ControlFlowGraph) AddEdge(from, to Block) {
	cfg.EnsureBlock(from)
	cfg.EnsureBlock(to)
	cfg.succs[from] = append(cfg.succs[from], to)
	cfg.preds[to] = append(cfg.preds[to], from)
}

// Preds returns the predecessors of b.
func (cfg *ControlFlowGraph) Preds(b Block) []Block {
	if int(b) >= len(cfg.preds) {
		return nil
	}
	return cfg.preds[b]
}

// Succs returns the successors of b.
func (cfg *ControlFlowGraph) Succs(b Block) []Block {
	if int(b) >= len(cfg.succs) {
		return nil
	}
	return cfg.succs[b]
}

// reversePostorder returns the blocks reachable from entry in reverse
// postorder over next().
func reversePostorder(entry Block, numBlocks int, next func(Block) []Block) []Block {
	seen := make([]bool, numBlocks)
	var order []Block
	var visit func(Block)
	visit = func(b Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		for _, s := range next(b) {
			visit(s)
		}
		order = append(order, b)
	}
	if entry != NoBlock {
		visit(entry)
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
