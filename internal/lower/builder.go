package lower

import (
	"vamc/internal/hir"
	"vamc/internal/mir"
)

// env tracks the current SSA value of every assignable place along the path
// being lowered. Missing keys read as the place's default.
type env map[Place]mir.Value

func (e env) clone() env {
	out := make(env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// MirBuilder lowers one validated analog body into an IR function with
// placeholder reads for each unknown.
type MirBuilder struct {
	m      *hir.Module
	body   *hir.Body
	f      *mir.Function
	intern *Interner
	c      *mir.Cursor
	keep   func(Place) bool

	// branches touched by a contribution, in first-contribution order
	Contributed []hir.BranchID
	contributed map[hir.BranchID]bool

	implicitResiduals []ImplicitResidual

	// when set, parameter reads resolve to already-initialized values
	// instead of fresh placeholder inputs (parameter setup functions)
	paramValues map[hir.ParamID]mir.Value
}

// ImplicitResidual is the residual contribution of an implicit equation
// introduced during lowering (idt and friends).
type ImplicitResidual struct {
	Equation ImplicitEquation
	Resist   mir.Value
	React    mir.Value
}

// ImplicitResiduals lists the residual parts of lowering-introduced implicit
// equations, consumed by the DAE builder.
func (b *MirBuilder) ImplicitResiduals() []ImplicitResidual {
	return b.implicitResiduals
}

// NewMirBuilder prepares lowering of m's analog block. The keep predicate
// selects which variable places become named outputs; contribution places are
// always kept.
func NewMirBuilder(m *hir.Module, keep func(Place) bool) *MirBuilder {
	return &MirBuilder{
		m:           m,
		body:        &m.Analog,
		intern:      NewInterner(m),
		keep:        keep,
		contributed: make(map[hir.BranchID]bool),
	}
}

// Build lowers the body. The returned function ends in a terminator-less exit
// block holding the optbarrier-anchored outputs; the interner maps each
// ParamKind to its placeholder value.
func (b *MirBuilder) Build() (*mir.Function, *Interner) {
	b.f = mir.NewFunction(b.m.Name)
	entry := b.f.NewBlock()
	b.c = b.f.At(entry)

	e := make(env)
	for _, s := range b.body.Entry {
		b.stmt(s, e)
	}

	exit := b.f.NewBlock()
	b.c.Ins().Jump(exit)
	b.c.GotoBottom(exit)
	b.anchorOutputs(e)
	return b.f, b.intern
}

// Func exposes the function under construction (used by the DAE layer).
func (b *MirBuilder) Func() *mir.Function { return b.f }

// Intern exposes the interner.
func (b *MirBuilder) Intern() *Interner { return b.intern }

func (b *MirBuilder) placeDefault(p Place) mir.Value {
	switch p.Tag {
	case PlaceVar:
		if b.m.Vars[p.Var].Type == hir.TypeInt {
			return mir.Zero
		}
		if b.m.Vars[p.Var].Type == hir.TypeString {
			return b.f.SConst("")
		}
		return mir.FZero
	case PlaceIsVoltageSrc:
		return mir.False
	default:
		return mir.FZero
	}
}

func (b *MirBuilder) read(e env, p Place) mir.Value {
	if v, ok := e[p]; ok {
		return v
	}
	return b.placeDefault(p)
}

// anchorOutputs wraps every kept place in an optbarrier so later passes
// cannot drop it, and registers it with the interner.
func (b *MirBuilder) anchorOutputs(e env) {
	emit := func(p Place) {
		v := b.read(e, p)
		wrapped := b.c.Ins().OptBarrier(v)
		b.f.Outputs[wrapped] = true
		b.intern.SetOutput(p, wrapped)
	}
	for _, br := range b.Contributed {
		emit(Place{Tag: PlaceBranchVoltage, Branch: br})
		emit(Place{Tag: PlaceBranchCurrent, Branch: br})
		emit(Place{Tag: PlaceIsVoltageSrc, Branch: br})
	}
	for id := range b.m.Vars {
		p := Place{Tag: PlaceVar, Var: hir.VarID(id)}
		if b.keep != nil && b.keep(p) {
			emit(p)
		}
	}
}

func (b *MirBuilder) stmt(id hir.StmtID, e env) {
	if id == hir.NoStmt {
		return
	}
	s := b.body.Stmt(id)
	b.c.SetLoc(s.Loc)
	switch s.Kind {
	case hir.StmtBlock:
		for _, inner := range s.Stmts {
			b.stmt(inner, e)
		}

	case hir.StmtAssign:
		v := b.expr(s.Expr, e)
		ty := mir.TyReal
		if b.m.Vars[s.Var].Type == hir.TypeInt {
			ty = mir.TyInt
		}
		e[Place{Tag: PlaceVar, Var: s.Var}] = b.cast(v, ty)

	case hir.StmtContribute:
		b.contribute(s, e)

	case hir.StmtIf:
		b.ifStmt(s, e)

	case hir.StmtCase:
		b.caseStmt(s, e)

	case hir.StmtWhile:
		b.loop(s.Cond, hir.NoStmt, s.Body, e)

	case hir.StmtFor:
		b.stmt(s.Init, e)
		b.loop(s.Cond, s.Step, s.Body, e)

	case hir.StmtCall:
		b.taskCall(s, e)
	}
}

func (b *MirBuilder) contribute(s *hir.Stmt, e env) {
	rhs := b.cast(b.expr(s.Expr, e), mir.TyReal)
	br := s.Branch
	if !b.contributed[br] {
		b.contributed[br] = true
		b.Contributed = append(b.Contributed, br)
	}
	var accum Place
	if s.Access == hir.AccessPotential {
		accum = Place{Tag: PlaceBranchVoltage, Branch: br}
		e[Place{Tag: PlaceIsVoltageSrc, Branch: br}] = mir.True
	} else {
		accum = Place{Tag: PlaceBranchCurrent, Branch: br}
		e[Place{Tag: PlaceIsVoltageSrc, Branch: br}] = mir.False
	}
	prev := b.read(e, accum)
	if prev == mir.FZero {
		e[accum] = rhs
	} else {
		e[accum] = b.c.Ins().Fadd(prev, rhs)
	}
}

func (b *MirBuilder) ifStmt(s *hir.Stmt, e env) {
	cond := b.condValue(s.Cond, e)
	thenBB := b.f.NewBlock()
	elseBB := b.f.NewBlock()
	b.c.Ins().Br(cond, thenBB, elseBB)

	envT := e.clone()
	b.c.GotoBottom(thenBB)
	b.stmt(s.Then, envT)
	thenEnd := b.c.CurrentBlock()

	envE := e.clone()
	b.c.GotoBottom(elseBB)
	b.stmt(s.Else, envE)
	elseEnd := b.c.CurrentBlock()

	join := b.f.NewBlock()
	b.c.GotoBottom(thenEnd)
	b.c.Ins().Jump(join)
	b.c.GotoBottom(elseEnd)
	b.c.Ins().Jump(join)
	b.c.GotoBottom(join)
	b.merge(e, []pathEnv{{thenEnd, envT}, {elseEnd, envE}})
}

func (b *MirBuilder) caseStmt(s *hir.Stmt, e env) {
	scrut := b.expr(s.Scrut, e)
	scrutTy := b.f.ValueTy(scrut)

	type arm struct {
		block hir.StmtID
		bb    mir.Block
	}
	arms := make([]arm, len(s.Cases))
	for i := range s.Cases {
		arms[i] = arm{block: s.Cases[i].Body, bb: b.f.NewBlock()}
	}
	defaultBB := b.f.NewBlock()

	// chain of equality tests against the selector
	for i, item := range s.Cases {
		for j, val := range item.Vals {
			v := b.cast(b.expr(val, e), scrutTy)
			var cmp mir.Value
			if scrutTy == mir.TyInt {
				cmp = b.c.Ins().Ieq(v, scrut)
			} else {
				cmp = b.c.Ins().Feq(v, scrut)
			}
			last := i == len(s.Cases)-1 && j == len(item.Vals)-1
			var next mir.Block
			if last {
				next = defaultBB
			} else {
				next = b.f.NewBlock()
			}
			b.c.Ins().Br(cmp, arms[i].bb, next)
			b.c.GotoBottom(next)
		}
	}
	if len(s.Cases) == 0 {
		b.c.Ins().Jump(defaultBB)
		b.c.GotoBottom(defaultBB)
	}

	var paths []pathEnv
	for i := range arms {
		envA := e.clone()
		b.c.GotoBottom(arms[i].bb)
		b.stmt(arms[i].block, envA)
		paths = append(paths, pathEnv{b.c.CurrentBlock(), envA})
	}
	envD := e.clone()
	b.c.GotoBottom(defaultBB)
	b.stmt(s.Default, envD)
	paths = append(paths, pathEnv{b.c.CurrentBlock(), envD})

	join := b.f.NewBlock()
	for _, p := range paths {
		b.c.GotoBottom(p.end)
		b.c.Ins().Jump(join)
	}
	b.c.GotoBottom(join)
	b.merge(e, paths)
}

type pathEnv struct {
	end mir.Block
	e   env
}

// merge joins the path environments at the current (join) block, introducing
// phis for places whose values differ along the incoming edges.
func (b *MirBuilder) merge(out env, paths []pathEnv) {
	keys := make(map[Place]bool)
	for _, p := range paths {
		for k := range p.e {
			keys[k] = true
		}
	}
	for k := range out {
		keys[k] = true
	}
	for k := range keys {
		first := b.read(paths[0].e, k)
		same := true
		for _, p := range paths[1:] {
			if b.read(p.e, k) != first {
				same = false
				break
			}
		}
		if same {
			out[k] = first
			continue
		}
		edges := make([]mir.PhiEdge, len(paths))
		for n, p := range paths {
			edges[n] = mir.PhiEdge{Block: p.end, Value: b.read(p.e, k)}
		}
		out[k] = b.c.Ins().Phi(edges)
	}
}

// loop lowers while/for bodies: a header block carrying one phi per place
// assigned inside the loop, the condition in the header, and a latch edge
// from the body end.
func (b *MirBuilder) loop(cond hir.ExprID, step, body hir.StmtID, e env) {
	assigned := make(map[Place]bool)
	b.collectAssigned(body, assigned)
	b.collectAssigned(step, assigned)

	preBlock := b.c.CurrentBlock()
	header := b.f.NewBlock()
	b.c.Ins().Jump(header)
	b.c.GotoBottom(header)

	phiInsts := make(map[Place]mir.Inst)
	for p := range assigned {
		entryVal := b.read(e, p)
		v := b.c.Ins().Phi([]mir.PhiEdge{{Block: preBlock, Value: entryVal}})
		phiInsts[p] = b.f.DefInst(v)
		e[p] = v
	}

	condVal := b.condValue(cond, e)
	bodyBB := b.f.NewBlock()
	exitBB := b.f.NewBlock()
	b.c.Ins().Br(condVal, bodyBB, exitBB)

	envB := e.clone()
	b.c.GotoBottom(bodyBB)
	b.stmt(body, envB)
	b.stmt(step, envB)
	latch := b.c.CurrentBlock()
	b.c.Ins().Jump(header)

	for p, inst := range phiInsts {
		d := b.f.InstData(inst)
		d.Args = append(d.Args, b.read(envB, p))
		d.Blocks = append(d.Blocks, latch)
	}

	b.c.GotoBottom(exitBB)
}

func (b *MirBuilder) collectAssigned(id hir.StmtID, out map[Place]bool) {
	if id == hir.NoStmt {
		return
	}
	s := b.body.Stmt(id)
	switch s.Kind {
	case hir.StmtBlock:
		for _, inner := range s.Stmts {
			b.collectAssigned(inner, out)
		}
	case hir.StmtAssign:
		out[Place{Tag: PlaceVar, Var: s.Var}] = true
	case hir.StmtContribute:
		if s.Access == hir.AccessPotential {
			out[Place{Tag: PlaceBranchVoltage, Branch: s.Branch}] = true
		} else {
			out[Place{Tag: PlaceBranchCurrent, Branch: s.Branch}] = true
		}
		out[Place{Tag: PlaceIsVoltageSrc, Branch: s.Branch}] = true
	case hir.StmtIf:
		b.collectAssigned(s.Then, out)
		b.collectAssigned(s.Else, out)
	case hir.StmtCase:
		for _, item := range s.Cases {
			b.collectAssigned(item.Body, out)
		}
		b.collectAssigned(s.Default, out)
	case hir.StmtWhile, hir.StmtFor:
		b.collectAssigned(s.Init, out)
		b.collectAssigned(s.Step, out)
		b.collectAssigned(s.Body, out)
	}
}

func (b *MirBuilder) taskCall(s *hir.Stmt, e env) {
	name := taskName(s.Builtin)
	args := make([]mir.Value, 0, len(s.Args))
	for _, a := range s.Args {
		args = append(args, b.expr(a, e))
	}
	ref := b.f.DeclareFunc(mir.Signature{
		Name: name, Params: len(args), Returns: 0, HasSideEffects: true,
	})
	b.c.Ins().Call(ref, args)
}

func taskName(builtin hir.Builtin) string {
	switch builtin {
	case hir.BuiltinStop:
		return "stop"
	case hir.BuiltinFinish:
		return "finish"
	case hir.BuiltinDisplay:
		return "display"
	case hir.BuiltinStrobe:
		return "strobe"
	case hir.BuiltinWrite:
		return "write"
	case hir.BuiltinFatal:
		return "fatal"
	case hir.BuiltinWarning:
		return "warning"
	}
	return "task"
}
