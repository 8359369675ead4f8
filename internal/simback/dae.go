package simback

import (
	"math"

	"vamc/internal/autodiff"
	"vamc/internal/hir"
	"vamc/internal/lower"
	"vamc/internal/mir"
)

// SimUnknown indexes the ordered unknown set of a DAE system.
type SimUnknown uint32

const NoSimUnknown SimUnknown = math.MaxUint32

// SimUnknownKindTag discriminates what the simulator solves for.
type SimUnknownKindTag uint8

const (
	UkKirchhoffLaw SimUnknownKindTag = iota
	UkCurrent
	UkImplicit
)

// SimUnknownKind identifies one simulation unknown: the KCL residual of a
// node, the current of a branch promoted to an unknown, or a user-visible
// implicit equation.
type SimUnknownKind struct {
	Tag      SimUnknownKindTag
	Node     hir.NodeID
	Branch   hir.BranchID
	Equation lower.ImplicitEquation
}

func KirchhoffLaw(n hir.NodeID) SimUnknownKind {
	return SimUnknownKind{Tag: UkKirchhoffLaw, Node: n, Branch: hir.NoBranch}
}

func CurrentUnknown(b hir.BranchID) SimUnknownKind {
	return SimUnknownKind{Tag: UkCurrent, Node: hir.NoNode, Branch: b}
}

func ImplicitUnknown(eq lower.ImplicitEquation) SimUnknownKind {
	return SimUnknownKind{Tag: UkImplicit, Node: hir.NoNode, Branch: hir.NoBranch, Equation: eq}
}

// Residual is the per-unknown equation the simulator drives to zero. All
// fields borrow value ids from the owning function.
type Residual struct {
	Resist            mir.Value
	React             mir.Value
	ResistSmallSignal mir.Value
	ReactSmallSignal  mir.Value
	ResistLimRhs      mir.Value
	ReactLimRhs       mir.Value
}

func newResidual() Residual {
	return Residual{
		Resist: mir.FZero, React: mir.FZero,
		ResistSmallSignal: mir.FZero, ReactSmallSignal: mir.FZero,
		ResistLimRhs: mir.FZero, ReactLimRhs: mir.FZero,
	}
}

// VisitVals applies f to every field of the residual.
func (r *Residual) VisitVals(f func(mir.Value) mir.Value) {
	r.Resist = f(r.Resist)
	r.React = f(r.React)
	r.ResistSmallSignal = f(r.ResistSmallSignal)
	r.ReactSmallSignal = f(r.ReactSmallSignal)
	r.ResistLimRhs = f(r.ResistLimRhs)
	r.ReactLimRhs = f(r.ReactLimRhs)
}

// MatrixEntry is one non-zero Jacobian slot.
type MatrixEntry struct {
	Row, Col SimUnknown
	Resist   mir.Value
	React    mir.Value
}

// DaeSystem is the assembled differential-algebraic system: unknowns (ports
// first), residuals, the sparse Jacobian, noise sources, small-signal
// parameters, and the model-input pair table. Every value field borrows from
// the eval function; dropping the function invalidates the system.
type DaeSystem struct {
	Unknowns     []SimUnknownKind
	index        map[SimUnknownKind]SimUnknown
	Residuals    []Residual
	Jacobian     []MatrixEntry
	NoiseSources []NoiseSource

	SmallSignalParams []mir.Value

	// ModelInputs lists (hi, lo) unknown indices per model input;
	// lo == math.MaxUint32 marks single-ended inputs.
	ModelInputs [][2]uint32

	NumResistive uint32
	NumReactive  uint32
}

// UnknownIndex finds the slot of kind, or NoSimUnknown.
func (s *DaeSystem) UnknownIndex(kind SimUnknownKind) SimUnknown {
	if u, ok := s.index[kind]; ok {
		return u
	}
	return NoSimUnknown
}

// daeBuilder executes new -> per-port ensure -> per-node ensure -> per-branch
// build -> per-implicit-equation build -> finish.
type daeBuilder struct {
	system *DaeSystem
	ctx    *Context
	cursor *mir.Cursor

	// collapsible node pairs discovered on trivial voltage branches
	collapsed [][2]hir.NodeID

	unknownVals  []mir.Value
	unknownIndex map[mir.Value]autodiff.Unknown
}

// NewDaeSystem assembles the DAE for the module in ctx using the topology.
func NewDaeSystem(ctx *Context, top *Topology) (*DaeSystem, [][2]hir.NodeID) {
	b := &daeBuilder{
		system: &DaeSystem{index: make(map[SimUnknownKind]SimUnknown)},
		ctx:    ctx,
		cursor: ctx.Func.AtExit(),
	}

	// ports are the first unknowns, internal nodes follow
	for _, port := range ctx.Module.Ports() {
		b.ensureUnknown(KirchhoffLaw(port))
	}
	for _, node := range ctx.Module.InternalNodes() {
		b.ensureUnknown(KirchhoffLaw(node))
	}

	for _, info := range top.Branches {
		b.buildBranch(info)
	}
	for _, ir := range ctx.ImplicitResiduals {
		b.buildImplicitEquation(ir)
	}
	for _, ir := range top.ImplicitResiduals {
		b.buildImplicitEquation(ir)
	}

	b.finish()
	return b.system, b.collapsed
}

func (b *daeBuilder) f() *mir.Function { return b.ctx.Func }

func (b *daeBuilder) ensureUnknown(kind SimUnknownKind) SimUnknown {
	if u, ok := b.system.index[kind]; ok {
		return u
	}
	u := SimUnknown(len(b.system.Unknowns))
	b.system.Unknowns = append(b.system.Unknowns, kind)
	b.system.Residuals = append(b.system.Residuals, newResidual())
	b.system.index[kind] = u
	return u
}

func (b *daeBuilder) residual(kind SimUnknownKind) *Residual {
	return &b.system.Residuals[b.ensureUnknown(kind)]
}

// add accumulates val into *dst, optionally negated, skipping symbolic zeros.
func (b *daeBuilder) add(dst *mir.Value, val mir.Value, negate bool) {
	val = b.f().StripOptBarrier(val)
	if val == mir.FZero {
		return
	}
	in := b.cursor.Ins()
	if *dst == mir.FZero {
		if negate {
			*dst = in.Fneg(val)
		} else {
			*dst = val
		}
		return
	}
	if negate {
		*dst = in.Fsub(*dst, val)
	} else {
		*dst = in.Fadd(*dst, val)
	}
}

func (b *daeBuilder) addContribution(r *Residual, c *Contribution, negate bool) {
	b.add(&r.Resist, c.Resist, negate)
	b.add(&r.React, c.React, negate)
	b.add(&r.ResistSmallSignal, c.ResistSmallSignal, negate)
	b.add(&r.ReactSmallSignal, c.ReactSmallSignal, negate)
}

func (b *daeBuilder) mfactor() mir.Value {
	return b.ctx.Intern.EnsureParam(b.f(), lower.ParamKindSysFun(lower.SysFunMfactor))
}

// mfactorMultiply scales a noise factor by sqrt(mfactor): power scales
// linearly with parallel devices, so the signal scales with the square root.
func (b *daeBuilder) mfactorMultiply(mfactor, srcfactor mir.Value) mir.Value {
	if mfactor == mir.FOne {
		return srcfactor
	}
	sqrt := b.cursor.Ins().Sqrt(mfactor)
	if srcfactor == mir.FOne {
		return sqrt
	}
	return b.cursor.Ins().Fmul(srcfactor, sqrt)
}

func (b *daeBuilder) mfactorDivide(mfactor, srcfactor mir.Value) mir.Value {
	if mfactor == mir.FOne {
		return srcfactor
	}
	sqrt := b.cursor.Ins().Sqrt(mfactor)
	return b.cursor.Ins().Fdiv(srcfactor, sqrt)
}

// currentContrib returns the current-source family with noise scaled up by
// sqrt(mfactor).
func (b *daeBuilder) currentContrib(info *BranchInfo) Contribution {
	mf := b.mfactor()
	out := info.CurrentSrc
	out.Noise = append([]ContribNoise(nil), info.CurrentSrc.Noise...)
	for i := range out.Noise {
		out.Noise[i].Factor = b.mfactorMultiply(mf, out.Noise[i].Factor)
	}
	return out
}

// voltageContrib returns the voltage-source family with noise scaled down by
// sqrt(mfactor).
func (b *daeBuilder) voltageContrib(info *BranchInfo) Contribution {
	mf := b.mfactor()
	out := info.VoltageSrc
	out.Noise = append([]ContribNoise(nil), info.VoltageSrc.Noise...)
	for i := range out.Noise {
		out.Noise[i].Factor = b.mfactorDivide(mf, out.Noise[i].Factor)
	}
	return out
}

// switchContrib joins the two families with phis in the next block: the
// voltage value along the voltage block, the current value along the start
// block. Phis are emitted before any other instruction of the block.
func (b *daeBuilder) switchContrib(info *BranchInfo, voltageBB, currentBB mir.Block) Contribution {
	sel := func(voltVal, curVal mir.Value) mir.Value {
		voltVal = b.f().StripOptBarrier(voltVal)
		curVal = b.f().StripOptBarrier(curVal)
		if voltVal == curVal {
			return voltVal
		}
		return b.cursor.Ins().Phi([]mir.PhiEdge{
			{Block: currentBB, Value: curVal},
			{Block: voltageBB, Value: voltVal},
		})
	}

	out := Contribution{
		Unknown:           sel(info.VoltageSrc.Unknown, info.CurrentSrc.Unknown),
		Resist:            sel(info.VoltageSrc.Resist, info.CurrentSrc.Resist),
		React:             sel(info.VoltageSrc.React, info.CurrentSrc.React),
		ResistSmallSignal: sel(info.VoltageSrc.ResistSmallSignal, info.CurrentSrc.ResistSmallSignal),
		ReactSmallSignal:  sel(info.VoltageSrc.ReactSmallSignal, info.CurrentSrc.ReactSmallSignal),
	}
	for _, src := range info.VoltageSrc.Noise {
		src.Factor = sel(src.Factor, mir.FZero)
		out.Noise = append(out.Noise, src)
	}
	for _, src := range info.CurrentSrc.Noise {
		src.Factor = sel(mir.FZero, src.Factor)
		out.Noise = append(out.Noise, src)
	}

	// scale noise only after every phi is in place
	mf := b.mfactor()
	for i := range out.Noise {
		if i < len(info.VoltageSrc.Noise) {
			out.Noise[i].Factor = b.mfactorDivide(mf, out.Noise[i].Factor)
		} else {
			out.Noise[i].Factor = b.mfactorMultiply(mf, out.Noise[i].Factor)
		}
	}
	return out
}

// buildBranch classifies the branch by its is_voltage_src value.
func (b *daeBuilder) buildBranch(info *BranchInfo) {
	br := info.Branch
	switch info.IsVoltageSrc {
	case mir.False:
		// current branch: promote to an unknown only if the current is read
		requiresUnknown := b.ctx.Intern.IsParamLive(b.f(), lower.ParamKindCurrent(br))
		contrib := b.currentContrib(info)
		if requiresUnknown {
			b.addSourceEquation(&contrib, br)
		} else {
			b.addKirchhoffLaw(&contrib, br)
		}

	case mir.True:
		// pure voltage contributions of zero exist only to collapse nodes
		requiresUnknown := b.ctx.Intern.IsParamLive(b.f(), lower.ParamKindCurrent(br))
		if requiresUnknown || !info.VoltageSrc.Trivial() {
			contrib := b.voltageContrib(info)
			b.addSourceEquation(&contrib, br)
		} else {
			hi, lo := b.ctx.Module.BranchNodesOf(br)
			b.collapsed = append(b.collapsed, [2]hir.NodeID{hi, lo})
		}

	default:
		// a runtime switch: split the insertion block so each family's value
		// arrives over its own edge
		start := b.cursor.CurrentBlock()
		voltageBB := b.f().NewBlock()
		next := b.f().NewBlock()
		b.ctx.CFG.EnsureBlock(next)
		b.ctx.CFG.AddEdge(start, voltageBB)
		b.ctx.CFG.AddEdge(start, next)
		b.ctx.CFG.AddEdge(voltageBB, next)

		isVoltageSrc := b.f().StripOptBarrier(info.IsVoltageSrc)
		b.cursor.Ins().Br(isVoltageSrc, voltageBB, next)
		b.cursor.GotoBottom(voltageBB)
		b.cursor.Ins().Jump(next)
		b.cursor.GotoBottom(next)

		contrib := b.switchContrib(info, voltageBB, start)
		b.addSourceEquation(&contrib, br)
	}
}

func (b *daeBuilder) buildImplicitEquation(ir lower.ImplicitResidual) {
	r := b.residual(ImplicitUnknown(ir.Equation))
	b.add(&r.Resist, ir.Resist, false)
	b.add(&r.React, ir.React, false)
}

func (b *daeBuilder) addNoise(c *Contribution, hi SimUnknownKind, lo *SimUnknownKind) {
	hiU := b.ensureUnknown(hi)
	loU := NoSimUnknown
	if lo != nil {
		loU = b.ensureUnknown(*lo)
	}
	for _, src := range c.Noise {
		b.system.NoiseSources = append(b.system.NoiseSources, NoiseSource{
			Name: src.Name, Kind: src.Kind, Hi: hiU, Lo: loU, Factor: src.Factor,
		})
	}
}

// addKirchhoffLaw applies KCL: the contribution enters the hi node's residual
// positively and the lo node's negatively.
func (b *daeBuilder) addKirchhoffLaw(c *Contribution, br hir.BranchID) {
	hi, lo := b.ctx.Module.BranchNodesOf(br)
	hiKind := KirchhoffLaw(hi)
	b.addContribution(b.residual(hiKind), c, false)
	if lo != hir.NoNode {
		loKind := KirchhoffLaw(lo)
		b.addContribution(b.residual(loKind), c, true)
		b.addNoise(c, hiKind, &loKind)
		return
	}
	b.addNoise(c, hiKind, nil)
}

// addSourceEquation promotes the branch current to an unknown and emits the
// source equation `designator - contributions = 0`; the current unknown then
// enters the endpoint KCL residuals with Kirchhoff signs.
func (b *daeBuilder) addSourceEquation(c *Contribution, br hir.BranchID) {
	kind := CurrentUnknown(br)
	r := b.residual(kind)
	b.add(&r.Resist, c.Unknown, false)
	b.addContribution(r, c, true)
	b.addNoise(c, kind, nil)

	current, _ := b.ctx.Intern.Param(lower.ParamKindCurrent(br))
	hi, lo := b.ctx.Module.BranchNodesOf(br)
	b.add(&b.residual(KirchhoffLaw(hi)).Resist, current, false)
	if lo != hir.NoNode {
		b.add(&b.residual(KirchhoffLaw(lo)).Resist, current, true)
	}
}
