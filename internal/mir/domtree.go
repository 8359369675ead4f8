package mir

// DominatorTree is a derived view recomputed on demand, usable both as a
// dominator tree and (with post=true) as a post-dominator tree. The
// construction is the Cooper-Harvey-Kennedy iterative scheme over reverse
// postorder.
type DominatorTree struct {
	post   bool
	idom   []Block
	rpoNum []int32
	root   Block
}

const virtualRoot = Block(NoBlock - 1)

// Compute rebuilds the tree for f. With post=true the tree is built over the
// reversed CFG with a virtual root joining all exit blocks.
func (dt *DominatorTree) Compute(f *Function, cfg *ControlFlowGraph, post bool) {
	dt.post = post
	n := f.NumBlocks()
	dt.idom = make([]Block, n)
	dt.rpoNum = make([]int32, n)
	for i := range dt.idom {
		dt.idom[i] = NoBlock
		dt.rpoNum[i] = -1
	}

	var exits []Block
	if post {
		for _, b := range f.layout {
			if len(cfg.Succs(b)) == 0 {
				exits = append(exits, b)
			}
		}
		dt.root = virtualRoot
	} else {
		dt.root = f.Entry()
	}

	next := func(b Block) []Block {
		if post {
			if b == virtualRoot {
				return exits
			}
			return cfg.Preds(b)
		}
		return cfg.Succs(b)
	}
	prev := func(b Block) []Block {
		if post {
			return cfg.Succs(b)
		}
		return cfg.Preds(b)
	}
	isExit := func(b Block) bool {
		for _, e := range exits {
			if e == b {
				return true
			}
		}
		return false
	}

	// reverse postorder; the virtual root is handled outside the numbering
	var order []Block
	if post {
		seen := make([]bool, n)
		var out []Block
		var visit func(Block)
		visit = func(b Block) {
			if seen[b] {
				return
			}
			seen[b] = true
			for _, s := range next(b) {
				visit(s)
			}
			out = append(out, b)
		}
		for _, e := range exits {
			visit(e)
		}
		for i := len(out) - 1; i >= 0; i-- {
			order = append(order, out[i])
		}
	} else {
		order = reversePostorder(dt.root, n, next)
	}
	for i, b := range order {
		dt.rpoNum[b] = int32(i)
	}

	rpo := func(b Block) int32 {
		if b == virtualRoot {
			return -1
		}
		return dt.rpoNum[b]
	}

	intersect := func(a, b Block) Block {
		for a != b {
			if a == virtualRoot || b == virtualRoot {
				return virtualRoot
			}
			for rpo(a) > rpo(b) {
				a = dt.idom[a]
				if a == virtualRoot {
					break
				}
			}
			for a != virtualRoot && rpo(b) > rpo(a) {
				b = dt.idom[b]
				if b == virtualRoot {
					break
				}
			}
		}
		return a
	}

	if !post {
		if dt.root == NoBlock {
			return
		}
		dt.idom[dt.root] = dt.root
	} else {
		for _, e := range exits {
			dt.idom[e] = virtualRoot
		}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range order {
			if !post && b == dt.root {
				continue
			}
			if post && isExit(b) {
				continue
			}
			newIdom := NoBlock
			for _, p := range prev(b) {
				if p != virtualRoot && dt.idom[p] == NoBlock {
					continue
				}
				if newIdom == NoBlock {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != NoBlock && dt.idom[b] != newIdom {
				dt.idom[b] = newIdom
				changed = true
			}
		}
	}
}

// IDom returns the immediate dominator of b; the root returns itself, the
// virtual post-dominator root is reported as NoBlock.
func (dt *DominatorTree) IDom(b Block) Block {
	id := dt.idom[b]
	if id == virtualRoot {
		return NoBlock
	}
	return id
}

// Reachable reports whether b was reached from the root during Compute.
func (dt *DominatorTree) Reachable(b Block) bool { return dt.idom[b] != NoBlock }

// Dominates reports whether a (post-)dominates b.
func (dt *DominatorTree) Dominates(a, b Block) bool {
	if a == b {
		return true
	}
	if !dt.Reachable(b) {
		return false
	}
	for b != a {
		next := dt.idom[b]
		if next == NoBlock || next == virtualRoot || next == b {
			return false
		}
		b = next
	}
	return true
}
