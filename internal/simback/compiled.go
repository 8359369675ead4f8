// Package simback assembles the simulator-facing artifacts of a module: the
// branch topology, the DAE system (residuals, sparse Jacobian, noise), and
// the parameter setup functions.
package simback

import (
	"github.com/tliron/commonlog"

	"vamc/internal/hir"
	"vamc/internal/lower"
	"vamc/internal/mir"
	"vamc/internal/mir/opt"
)

var log = commonlog.GetLogger("vamc.simback")

// CompiledModule is the contract handed to a code-generation backend: module
// metadata, the eval function in final SSA form, the interner exposing the
// placeholder for each ParamKind, the parameter initialization functions, the
// DAE system, and the proven node collapses.
type CompiledModule struct {
	Module *hir.Module

	Eval   *mir.Function
	Intern *lower.Interner
	Dae    *DaeSystem

	Init       *mir.Function
	InitIntern *lower.Interner

	ModelParamSetup  *mir.Function
	ModelParamIntern *lower.Interner

	NodeCollapse [][2]hir.NodeID
}

// NewCompiledModule runs the whole middle-end for one validated module.
func NewCompiledModule(m *hir.Module) *CompiledModule {
	keep := func(p lower.Place) bool { return true }
	ctx := NewContext(m, keep)
	ctx.Optimize(StageInitial)
	if err := ctx.Func.Validate(); err != nil {
		panic("internal IR invariant violated after initial optimization: " + err.Error())
	}

	topology := NewTopology(ctx)
	if err := ctx.Func.Validate(); err != nil {
		panic("internal IR invariant violated after topology: " + err.Error())
	}

	dae, collapsed := NewDaeSystem(ctx, topology)
	if err := ctx.Func.Validate(); err != nil {
		panic("internal IR invariant violated after DAE construction: " + err.Error())
	}
	ctx.CFG.Compute(ctx.Func)
	ctx.Optimize(StagePostDerivative)
	dae.Sparsify(ctx)
	log.Debugf("module %s: %d unknowns, %d jacobian entries (%d resistive, %d reactive)",
		m.Name, len(dae.Unknowns), len(dae.Jacobian), dae.NumResistive, dae.NumReactive)

	var instParams, modelParams []hir.ParamID
	for id := range m.Params {
		modelParams = append(modelParams, hir.ParamID(id))
		if m.Params[id].IsInstance {
			instParams = append(instParams, hir.ParamID(id))
		}
	}

	initFn, initIntern := lower.BuildParamInit(m, m.Name+"_init", instParams)

	setupFn, setupIntern := lower.BuildParamInit(m, m.Name+"_model_params", modelParams)
	// the post-DAE cleanup trio runs only on the parameter setup function
	var setupCFG mir.ControlFlowGraph
	setupCFG.Compute(setupFn)
	opt.SimplifyCFG(setupFn, &setupCFG)
	opt.SparseConditionalConstantPropagation(setupFn, &setupCFG)
	opt.SimplifyCFG(setupFn, &setupCFG)

	return &CompiledModule{
		Module:           m,
		Eval:             ctx.Func,
		Intern:           ctx.Intern,
		Dae:              dae,
		Init:             initFn,
		InitIntern:       initIntern,
		ModelParamSetup:  setupFn,
		ModelParamIntern: setupIntern,
		NodeCollapse:     collapsed,
	}
}

// Sparsify drops Jacobian entries that optimization proved zero and refreshes
// the resistive/reactive counts.
func (s *DaeSystem) Sparsify(ctx *Context) {
	zero := func(v mir.Value) bool {
		return ctx.Func.StripOptBarrier(v) == mir.FZero
	}
	kept := s.Jacobian[:0]
	var nres, nreact uint32
	for _, entry := range s.Jacobian {
		if zero(entry.Resist) {
			entry.Resist = mir.FZero
		}
		if zero(entry.React) {
			entry.React = mir.FZero
		}
		if entry.Resist == mir.FZero && entry.React == mir.FZero {
			continue
		}
		if entry.Resist != mir.FZero {
			nres++
		}
		if entry.React != mir.FZero {
			nreact++
		}
		kept = append(kept, entry)
	}
	s.Jacobian = kept
	s.NumResistive = nres
	s.NumReactive = nreact
}
