package simback

import (
	"vamc/internal/hir"
	"vamc/internal/lower"
	"vamc/internal/mir"
	"vamc/internal/mir/opt"
)

// OptimizationStage selects which pass pipeline Context.Optimize runs.
type OptimizationStage uint8

const (
	StageInitial OptimizationStage = iota
	StagePostDerivative
)

// Context bundles the per-module compilation state the sim-back layers borrow
// mutably: the eval function, its interner, CFG and dominator views, and the
// operating-point dependence of each value.
type Context struct {
	Module *hir.Module
	Func   *mir.Function
	Intern *lower.Interner
	CFG    mir.ControlFlowGraph
	Dom    mir.DominatorTree

	Contributed       []hir.BranchID
	ImplicitResiduals []lower.ImplicitResidual

	opDependent map[mir.Value]bool
}

// NewContext lowers the module's analog block and computes the CFG.
func NewContext(m *hir.Module, keep func(lower.Place) bool) *Context {
	b := lower.NewMirBuilder(m, keep)
	f, intern := b.Build()
	ctx := &Context{
		Module:            m,
		Func:              f,
		Intern:            intern,
		Contributed:       b.Contributed,
		ImplicitResiduals: b.ImplicitResiduals(),
	}
	ctx.CFG.Compute(f)
	return ctx
}

// Optimize runs the stage's pass pipeline over the eval function.
func (ctx *Context) Optimize(stage OptimizationStage) {
	var p *opt.Pipeline
	if stage == StageInitial {
		p = opt.NewInitialPipeline()
	} else {
		p = opt.NewPostDerivativePipeline()
	}
	p.Run(ctx.Func, &ctx.CFG)
	ctx.CFG.Compute(ctx.Func)
}

// RefreshOpDependent recomputes which values depend on the operating point:
// anything reaching back to a voltage, current, implicit-unknown or new-state
// input. Loop-carried phis converge by iterating to a fixed point.
func (ctx *Context) RefreshOpDependent() {
	dep := make(map[mir.Value]bool)
	for _, kv := range ctx.Intern.Params() {
		switch kv.Kind.Tag {
		case lower.PKVoltage, lower.PKCurrent, lower.PKImplicitUnknown, lower.PKNewState:
			dep[kv.Value] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, b := range ctx.Func.Layout() {
			for _, i := range ctx.Func.BlockInsts(b) {
				d := ctx.Func.InstData(i)
				hit := false
				for _, a := range d.Args {
					if dep[a] {
						hit = true
						break
					}
				}
				if !hit {
					continue
				}
				for _, r := range d.Results {
					if !dep[r] {
						dep[r] = true
						changed = true
					}
				}
			}
		}
	}
	ctx.opDependent = dep
}

// IsOpDependent reports whether v varies with the operating point.
func (ctx *Context) IsOpDependent(v mir.Value) bool {
	if ctx.opDependent == nil {
		ctx.RefreshOpDependent()
	}
	return ctx.opDependent[ctx.Func.StripOptBarrier(v)]
}
