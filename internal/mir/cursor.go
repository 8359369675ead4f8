package mir

// Cursor is the single insertion point of a function. Its position (block +
// index) is observable state: every helper documents where it leaves the
// cursor. Only one cursor may mutate a function at a time.
type Cursor struct {
	fn  *Function
	blk Block
	idx int
	loc int32
}

// AtExit returns a cursor positioned at the bottom of the exit block.
func (f *Function) AtExit() *Cursor {
	c := &Cursor{fn: f, loc: -1}
	c.GotoExit()
	return c
}

// At returns a cursor positioned at the bottom of b.
func (f *Function) At(b Block) *Cursor {
	c := &Cursor{fn: f, loc: -1}
	c.GotoBottom(b)
	return c
}

// Func returns the borrowed function.
func (c *Cursor) Func() *Function { return c.fn }

// CurrentBlock returns the block the cursor is positioned in.
func (c *Cursor) CurrentBlock() Block { return c.blk }

// SetLoc sets the source-location tag attached to subsequently built
// instructions; -1 clears it.
func (c *Cursor) SetLoc(loc int32) { c.loc = loc }

// GotoBottom positions the cursor at the end of b, before its terminator if
// it already has one.
func (c *Cursor) GotoBottom(b Block) {
	c.blk = b
	c.idx = len(c.fn.blocks[b].insts)
	if c.fn.Terminator(b) != NoInst {
		c.idx--
	}
}

// GotoExit positions the cursor at the bottom of the final layout block.
func (c *Cursor) GotoExit() {
	c.GotoBottom(c.fn.Exit())
}

// GotoAfter positions the cursor immediately after i.
func (c *Cursor) GotoAfter(i Inst) {
	c.blk = c.fn.BlockOf(i)
	c.idx = c.fn.InstPos(i) + 1
}

// GotoBefore positions the cursor immediately before i.
func (c *Cursor) GotoBefore(i Inst) {
	c.blk = c.fn.BlockOf(i)
	c.idx = c.fn.InstPos(i)
}

// GotoPhiSection positions the cursor after the leading phis of b.
func (c *Cursor) GotoPhiSection(b Block) {
	c.blk = b
	idx := 0
	for _, i := range c.fn.blocks[b].insts {
		if c.fn.insts[i].Op != OpPhi {
			break
		}
		idx++
	}
	c.idx = idx
}

// Ins returns the instruction builder at the current position.
func (c *Cursor) Ins() Ins { return Ins{c} }

// Ins builds instructions at its cursor's position, advancing it past each
// new instruction.
type Ins struct {
	c *Cursor
}

func (in Ins) build(d InstData, nresults int, resultTy Ty) Inst {
	f := in.c.fn
	d.Loc = in.c.loc
	i := f.newInst(d, nresults, resultTy)
	f.insertInst(in.c.blk, in.c.idx, i)
	in.c.idx++
	return i
}

func (in Ins) unary(op Opcode, a Value) Value {
	i := in.build(InstData{Op: op, Args: []Value{a}}, 1, op.ResultTy(in.c.fn.ValueTy(a)))
	return in.c.fn.insts[i].Results[0]
}

func (in Ins) binary(op Opcode, a, b Value) Value {
	i := in.build(InstData{Op: op, Args: []Value{a, b}}, 1, op.ResultTy(in.c.fn.ValueTy(a)))
	return in.c.fn.insts[i].Results[0]
}

func (in Ins) Iadd(a, b Value) Value { return in.binary(OpIadd, a, b) }
func (in Ins) Isub(a, b Value) Value { return in.binary(OpIsub, a, b) }
func (in Ins) Imul(a, b Value) Value { return in.binary(OpImul, a, b) }
func (in Ins) Idiv(a, b Value) Value { return in.binary(OpIdiv, a, b) }
func (in Ins) Irem(a, b Value) Value { return in.binary(OpIrem, a, b) }
func (in Ins) Ineg(a Value) Value    { return in.unary(OpIneg, a) }

func (in Ins) Ilt(a, b Value) Value { return in.binary(OpIlt, a, b) }
func (in Ins) Igt(a, b Value) Value { return in.binary(OpIgt, a, b) }
func (in Ins) Ile(a, b Value) Value { return in.binary(OpIle, a, b) }
func (in Ins) Ige(a, b Value) Value { return in.binary(OpIge, a, b) }
func (in Ins) Ieq(a, b Value) Value { return in.binary(OpIeq, a, b) }
func (in Ins) Ine(a, b Value) Value { return in.binary(OpIne, a, b) }

func (in Ins) Fadd(a, b Value) Value { return in.binary(OpFadd, a, b) }
func (in Ins) Fsub(a, b Value) Value { return in.binary(OpFsub, a, b) }
func (in Ins) Fmul(a, b Value) Value { return in.binary(OpFmul, a, b) }
func (in Ins) Fdiv(a, b Value) Value { return in.binary(OpFdiv, a, b) }
func (in Ins) Frem(a, b Value) Value { return in.binary(OpFrem, a, b) }
func (in Ins) Fneg(a Value) Value    { return in.unary(OpFneg, a) }

func (in Ins) Flt(a, b Value) Value { return in.binary(OpFlt, a, b) }
func (in Ins) Fgt(a, b Value) Value { return in.binary(OpFgt, a, b) }
func (in Ins) Fle(a, b Value) Value { return in.binary(OpFle, a, b) }
func (in Ins) Fge(a, b Value) Value { return in.binary(OpFge, a, b) }
func (in Ins) Feq(a, b Value) Value { return in.binary(OpFeq, a, b) }
func (in Ins) Fne(a, b Value) Value { return in.binary(OpFne, a, b) }

func (in Ins) Sqrt(a Value) Value     { return in.unary(OpSqrt, a) }
func (in Ins) Exp(a Value) Value      { return in.unary(OpExp, a) }
func (in Ins) LimExp(a Value) Value   { return in.unary(OpLimExp, a) }
func (in Ins) Ln(a Value) Value       { return in.unary(OpLn, a) }
func (in Ins) Log(a Value) Value      { return in.unary(OpLog, a) }
func (in Ins) Sin(a Value) Value      { return in.unary(OpSin, a) }
func (in Ins) Cos(a Value) Value      { return in.unary(OpCos, a) }
func (in Ins) Tan(a Value) Value      { return in.unary(OpTan, a) }
func (in Ins) Asin(a Value) Value     { return in.unary(OpAsin, a) }
func (in Ins) Acos(a Value) Value     { return in.unary(OpAcos, a) }
func (in Ins) Atan(a Value) Value     { return in.unary(OpAtan, a) }
func (in Ins) Sinh(a Value) Value     { return in.unary(OpSinh, a) }
func (in Ins) Cosh(a Value) Value     { return in.unary(OpCosh, a) }
func (in Ins) Tanh(a Value) Value     { return in.unary(OpTanh, a) }
func (in Ins) Floor(a Value) Value    { return in.unary(OpFloor, a) }
func (in Ins) Ceil(a Value) Value     { return in.unary(OpCeil, a) }
func (in Ins) Pow(a, b Value) Value   { return in.binary(OpPow, a, b) }
func (in Ins) Atan2(a, b Value) Value { return in.binary(OpAtan2, a, b) }
func (in Ins) Hypot(a, b Value) Value { return in.binary(OpHypot, a, b) }

func (in Ins) Bnot(a Value) Value   { return in.unary(OpBnot, a) }
func (in Ins) Band(a, b Value) Value { return in.binary(OpBand, a, b) }
func (in Ins) Bor(a, b Value) Value  { return in.binary(OpBor, a, b) }

func (in Ins) IFCast(a Value) Value { return in.unary(OpIFCast, a) }
func (in Ins) FICast(a Value) Value { return in.unary(OpFICast, a) }
func (in Ins) BICast(a Value) Value { return in.unary(OpBICast, a) }
func (in Ins) IBCast(a Value) Value { return in.unary(OpIBCast, a) }

func (in Ins) Select(cond, then, els Value) Value {
	i := in.build(InstData{Op: OpSelect, Args: []Value{cond, then, els}}, 1,
		in.c.fn.ValueTy(then))
	return in.c.fn.insts[i].Results[0]
}

// Phi appends a phi with the given incoming edges. Phis must stay the leading
// instructions of their block; builders create them while the block is still
// empty of ordinary instructions.
func (in Ins) Phi(edges []PhiEdge) Value {
	args := make([]Value, len(edges))
	blocks := make([]Block, len(edges))
	for n, e := range edges {
		args[n] = e.Value
		blocks[n] = e.Block
	}
	ty := TyReal
	if len(edges) > 0 {
		ty = in.c.fn.ValueTy(edges[0].Value)
	}
	i := in.build(InstData{Op: OpPhi, Args: args, Blocks: blocks}, 1, ty)
	return in.c.fn.insts[i].Results[0]
}

// OptBarrier wraps v in a semantic identity that optimizations must not fold
// through.
func (in Ins) OptBarrier(v Value) Value {
	i := in.build(InstData{Op: OpOptBarrier, Args: []Value{v}}, 1, in.c.fn.ValueTy(v))
	return in.c.fn.insts[i].Results[0]
}

// EnsureOptBarrier wraps v unless it already is an optbarrier result or a
// constant zero.
func (in Ins) EnsureOptBarrier(v Value) Value {
	if v == FZero {
		return v
	}
	if i := in.c.fn.DefInst(v); i != NoInst && in.c.fn.insts[i].Op == OpOptBarrier {
		return v
	}
	return in.OptBarrier(v)
}

// Call emits a call to the declared callee and returns its result values.
func (in Ins) Call(callee FuncRef, args []Value) []Value {
	sig := in.c.fn.sigs[callee]
	i := in.build(InstData{Op: OpCall, Args: args, Callee: callee}, sig.Returns, sig.ResultTy)
	return in.c.fn.insts[i].Results
}

// Br terminates the current block with a conditional branch.
func (in Ins) Br(cond Value, then, els Block) {
	in.build(InstData{Op: OpBr, Args: []Value{cond}, Blocks: []Block{then, els}}, 0, TyBool)
}

// Jump terminates the current block with an unconditional jump.
func (in Ins) Jump(target Block) {
	in.build(InstData{Op: OpJmp, Blocks: []Block{target}}, 0, TyBool)
}
