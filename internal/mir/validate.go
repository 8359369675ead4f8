package mir

import "fmt"

// Validate is a self-test over the structural IR invariants: single
// definitions, dominance of uses, one terminator per block (the final layout
// block may fall through as the function exit), phi edges matching CFG
// predecessors, and operand type agreement on arithmetic. It is meant for
// debug assertions; a failure is a programmer error.
func (f *Function) Validate() error {
	var cfg ControlFlowGraph
	cfg.Compute(f)
	var dom DominatorTree
	dom.Compute(f, &cfg, false)

	seen := make(map[Value]Inst)
	for _, b := range f.layout {
		insts := f.blocks[b].insts
		phiSection := true
		for pos, i := range insts {
			d := &f.insts[i]
			if f.instBlock[i] != b {
				return fmt.Errorf("inst %d listed in block%d but placed in block%d", i, b, f.instBlock[i])
			}
			if d.Op.IsTerminator() && pos != len(insts)-1 {
				return fmt.Errorf("terminator %s mid-block in block%d", d.Op, b)
			}
			if d.Op == OpPhi {
				if !phiSection {
					return fmt.Errorf("phi after non-phi in block%d", b)
				}
			} else {
				phiSection = false
			}
			for _, r := range d.Results {
				if prev, dup := seen[r]; dup {
					return fmt.Errorf("value v%d defined by inst %d and inst %d", r, prev, i)
				}
				seen[r] = i
				if f.values[r].kind != valResult || f.values[r].inst != i {
					return fmt.Errorf("value v%d does not point back at inst %d", r, i)
				}
			}
		}
		if b != f.Exit() && f.Terminator(b) == NoInst && dom.Reachable(b) {
			return fmt.Errorf("block%d lacks a terminator", b)
		}
	}

	for _, b := range f.layout {
		if !dom.Reachable(b) {
			continue
		}
		for pos, i := range f.blocks[b].insts {
			d := &f.insts[i]
			if d.Op == OpPhi {
				if err := f.validatePhi(&cfg, b, i); err != nil {
					return err
				}
				continue
			}
			for _, a := range d.Args {
				if err := f.validateUse(&dom, b, pos, a); err != nil {
					return fmt.Errorf("inst %d (%s): %w", i, d.Op, err)
				}
			}
			if err := validateTypes(f, d); err != nil {
				return fmt.Errorf("inst %d (%s): %w", i, d.Op, err)
			}
		}
	}
	return nil
}

func (f *Function) validatePhi(cfg *ControlFlowGraph, b Block, i Inst) error {
	d := &f.insts[i]
	preds := cfg.Preds(b)
	if len(d.Blocks) != len(preds) {
		return fmt.Errorf("phi in block%d has %d edges, block has %d predecessors",
			b, len(d.Blocks), len(preds))
	}
	for _, p := range preds {
		found := false
		for _, e := range d.Blocks {
			if e == p {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("phi in block%d misses predecessor block%d", b, p)
		}
	}
	return nil
}

func (f *Function) validateUse(dom *DominatorTree, useBlock Block, usePos int, v Value) error {
	d := &f.values[v]
	if d.kind != valResult {
		return nil
	}
	def := d.inst
	defBlock := f.instBlock[def]
	if defBlock == NoBlock {
		return fmt.Errorf("use of v%d whose definition is detached", v)
	}
	if defBlock == useBlock {
		if f.InstPos(def) >= usePos {
			return fmt.Errorf("use of v%d before its definition in block%d", v, useBlock)
		}
		return nil
	}
	if !dom.Dominates(defBlock, useBlock) {
		return fmt.Errorf("use of v%d in block%d not dominated by its definition in block%d",
			v, useBlock, defBlock)
	}
	return nil
}

func validateTypes(f *Function, d *InstData) error {
	sameTy := func(want Ty) error {
		for _, a := range d.Args {
			if f.ValueTy(a) != want {
				return fmt.Errorf("operand v%d has type %s, want %s", a, f.ValueTy(a), want)
			}
		}
		return nil
	}
	switch d.Op {
	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIneg,
		OpIlt, OpIgt, OpIle, OpIge, OpIeq, OpIne, OpIFCast, OpIBCast:
		return sameTy(TyInt)
	case OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem, OpFneg,
		OpFlt, OpFgt, OpFle, OpFge, OpFeq, OpFne,
		OpSqrt, OpExp, OpLimExp, OpLn, OpLog, OpSin, OpCos, OpTan,
		OpAsin, OpAcos, OpAtan, OpSinh, OpCosh, OpTanh,
		OpPow, OpAtan2, OpHypot, OpFloor, OpCeil, OpFICast:
		return sameTy(TyReal)
	case OpBnot, OpBand, OpBor, OpBICast:
		return sameTy(TyBool)
	case OpBr:
		if f.ValueTy(d.Args[0]) != TyBool {
			return fmt.Errorf("branch condition v%d is not bool", d.Args[0])
		}
	case OpSelect:
		if f.ValueTy(d.Args[0]) != TyBool {
			return fmt.Errorf("select condition v%d is not bool", d.Args[0])
		}
		if f.ValueTy(d.Args[1]) != f.ValueTy(d.Args[2]) {
			return fmt.Errorf("select arms disagree on type")
		}
	}
	return nil
}
