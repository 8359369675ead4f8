package opt

import (
	"vamc/internal/mir"
)

// Sparse conditional constant propagation after Wegman-Zadeck: a three-point
// lattice per value combined with executable-edge propagation. Conditional
// branches whose condition is proved constant are rewritten into jumps.
// Optbarriers are boundaries: constants propagate into their operand but the
// barrier result itself stays bottom.

const (
	latTop = iota
	latConst
	latBottom
)

type latticeCell struct {
	kind uint8
	c    mir.Value
}

type sccp struct {
	f       *mir.Function
	cfg     *mir.ControlFlowGraph
	lattice []latticeCell
	execOut map[[2]mir.Block]bool
	blockIn []bool

	flowList []edge
	ssaList  []mir.Value
}

type edge struct{ from, to mir.Block }

// SparseConditionalConstantPropagation runs SCCP over f and rewrites it in
// place. Reports whether anything changed.
func SparseConditionalConstantPropagation(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	s := &sccp{
		f:       f,
		cfg:     cfg,
		lattice: make([]latticeCell, f.NumValues()),
		execOut: make(map[[2]mir.Block]bool),
		blockIn: make([]bool, f.NumBlocks()),
	}
	s.analyze()
	return s.rewrite()
}

func (s *sccp) cell(v mir.Value) latticeCell {
	if int(v) >= len(s.lattice) {
		return latticeCell{kind: latBottom}
	}
	if s.f.IsConst(v) {
		return latticeCell{kind: latConst, c: v}
	}
	if s.f.IsParam(v) {
		return latticeCell{kind: latBottom}
	}
	return s.lattice[v]
}

func (s *sccp) lower(v mir.Value, to latticeCell) {
	cur := s.lattice[v]
	if cur.kind == latBottom || (cur.kind == to.kind && cur.c == to.c) {
		return
	}
	if cur.kind == latConst && to.kind == latConst && cur.c != to.c {
		to = latticeCell{kind: latBottom}
	}
	if to.kind == latTop {
		return
	}
	s.lattice[v] = to
	s.ssaList = append(s.ssaList, v)
}

func (s *sccp) markEdge(from, to mir.Block) {
	key := [2]mir.Block{from, to}
	if s.execOut[key] {
		return
	}
	s.execOut[key] = true
	s.flowList = append(s.flowList, edge{from, to})
}

func (s *sccp) analyze() {
	entry := s.f.Entry()
	if entry == mir.NoBlock {
		return
	}
	s.visitBlock(entry)
	for len(s.flowList) > 0 || len(s.ssaList) > 0 {
		if len(s.flowList) > 0 {
			e := s.flowList[len(s.flowList)-1]
			s.flowList = s.flowList[:len(s.flowList)-1]
			s.visitBlock(e.to)
			continue
		}
		v := s.ssaList[len(s.ssaList)-1]
		s.ssaList = s.ssaList[:len(s.ssaList)-1]
		for _, user := range s.usersOf(v) {
			if s.blockIn[s.f.BlockOf(user)] {
				s.visitInst(user)
			}
		}
	}
}

func (s *sccp) usersOf(v mir.Value) []mir.Inst {
	var users []mir.Inst
	for i := 0; i < s.f.NumInsts(); i++ {
		inst := mir.Inst(i)
		if s.f.BlockOf(inst) == mir.NoBlock {
			continue
		}
		for _, a := range s.f.InstData(inst).Args {
			if a == v {
				users = append(users, inst)
				break
			}
		}
	}
	return users
}

func (s *sccp) visitBlock(b mir.Block) {
	first := !s.blockIn[b]
	s.blockIn[b] = true
	for _, i := range s.f.BlockInsts(b) {
		if first || s.f.InstData(i).Op == mir.OpPhi {
			s.visitInst(i)
		}
	}
}

func (s *sccp) visitInst(i mir.Inst) {
	d := s.f.InstData(i)
	b := s.f.BlockOf(i)
	switch d.Op {
	case mir.OpPhi:
		res := d.Results[0]
		acc := latticeCell{kind: latTop}
		for n, pred := range d.Blocks {
			if !s.execOut[[2]mir.Block{pred, b}] {
				continue
			}
			in := s.cell(d.Args[n])
			switch {
			case in.kind == latTop:
			case acc.kind == latTop:
				acc = in
			case in.kind == latBottom || acc.kind == latBottom:
				acc = latticeCell{kind: latBottom}
			case in.c != acc.c:
				acc = latticeCell{kind: latBottom}
			}
		}
		s.lower(res, acc)

	case mir.OpBr:
		cond := s.cell(d.Args[0])
		switch cond.kind {
		case latConst:
			if taken, ok := s.f.AsBConst(cond.c); ok {
				if taken {
					s.markEdge(b, d.Blocks[0])
				} else {
					s.markEdge(b, d.Blocks[1])
				}
				return
			}
			s.markEdge(b, d.Blocks[0])
			s.markEdge(b, d.Blocks[1])
		case latBottom:
			s.markEdge(b, d.Blocks[0])
			s.markEdge(b, d.Blocks[1])
		}

	case mir.OpJmp:
		s.markEdge(b, d.Blocks[0])

	case mir.OpCall, mir.OpOptBarrier:
		// calls are opaque; optbarriers anchor their value against folding
		for _, r := range d.Results {
			s.lower(r, latticeCell{kind: latBottom})
		}

	case mir.OpSelect:
		res := d.Results[0]
		cond := s.cell(d.Args[0])
		switch cond.kind {
		case latTop:
		case latConst:
			if taken, ok := s.f.AsBConst(cond.c); ok {
				if taken {
					s.lower(res, s.cell(d.Args[1]))
				} else {
					s.lower(res, s.cell(d.Args[2]))
				}
				return
			}
			s.lower(res, latticeCell{kind: latBottom})
		default:
			t := s.cell(d.Args[1])
			e := s.cell(d.Args[2])
			if t.kind == latConst && e.kind == latConst && t.c == e.c {
				s.lower(res, t)
			} else if t.kind != latTop && e.kind != latTop {
				s.lower(res, latticeCell{kind: latBottom})
			}
		}

	default:
		if len(d.Results) != 1 {
			return
		}
		res := d.Results[0]
		consts := make([]mir.Value, len(d.Args))
		bottom := false
		top := false
		for n, a := range d.Args {
			c := s.cell(a)
			switch c.kind {
			case latConst:
				consts[n] = c.c
			case latBottom:
				bottom = true
			default:
				top = true
			}
		}
		if top {
			return
		}
		if bottom {
			s.lower(res, latticeCell{kind: latBottom})
			return
		}
		if folded := evalConst(s.f, d.Op, consts); folded != mir.NoValue {
			s.lower(res, latticeCell{kind: latConst, c: folded})
		} else {
			s.lower(res, latticeCell{kind: latBottom})
		}
	}
}

func (s *sccp) rewrite() bool {
	changed := false
	for v := 0; v < len(s.lattice); v++ {
		cell := s.lattice[v]
		if cell.kind == latConst && mir.Value(v) != cell.c {
			if !s.f.ValueDead(mir.Value(v)) {
				s.f.ReplaceAllUses(mir.Value(v), cell.c)
				changed = true
			}
		}
	}
	for _, b := range s.f.Layout() {
		term := s.f.Terminator(b)
		if term == mir.NoInst {
			continue
		}
		d := s.f.InstData(term)
		if d.Op != mir.OpBr {
			continue
		}
		taken, ok := s.f.AsBConst(d.Args[0])
		if !ok {
			continue
		}
		target := d.Blocks[1]
		if taken {
			target = d.Blocks[0]
		}
		d.Op = mir.OpJmp
		d.Args = nil
		d.Blocks = []mir.Block{target}
		changed = true
	}
	if changed {
		s.cfg.Compute(s.f)
		cleanupPhis(s.f, s.cfg)
	}
	return changed
}
