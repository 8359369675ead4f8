package opt

import (
	"fmt"

	"github.com/tliron/commonlog"

	"vamc/internal/mir"
)

var log = commonlog.GetLogger("vamc.opt")

// Pass is a single optimization transformation over one function.
type Pass interface {
	Name() string
	Description() string
	Apply(f *mir.Function, cfg *mir.ControlFlowGraph) bool // true if changes were made
}

// funcPass adapts a bare transformation function to the Pass interface.
type funcPass struct {
	name string
	desc string
	run  func(f *mir.Function, cfg *mir.ControlFlowGraph) bool
}

func (p *funcPass) Name() string        { return p.name }
func (p *funcPass) Description() string { return p.desc }
func (p *funcPass) Apply(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
	return p.run(f, cfg)
}

// Pipeline runs a sequence of passes to a fixed point. Every pass is
// monotonic, so a bounded number of rounds must suffice; overrunning the cap
// is a programmer error.
type Pipeline struct {
	passes []Pass
}

// fixpointCap bounds the pipeline rounds; each pass only ever shrinks the
// function, so failing to settle within the cap means a pass oscillates.
const fixpointCap = 8

func (p *Pipeline) AddPass(pass Pass) {
	p.passes = append(p.passes, pass)
}

// Run applies the pass sequence repeatedly until nothing changes.
func (p *Pipeline) Run(f *mir.Function, cfg *mir.ControlFlowGraph) {
	for round := 0; ; round++ {
		if round >= fixpointCap {
			panic(fmt.Sprintf("optimization pipeline did not reach a fixed point on %%%s", f.Name))
		}
		changed := false
		for _, pass := range p.passes {
			if pass.Apply(f, cfg) {
				log.Debugf("%s: changed %%%s (round %d)", pass.Name(), f.Name, round)
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// NewInitialPipeline is the stage run right after lowering:
// SCCP, simplify, DCE, combine, simplify.
func NewInitialPipeline() *Pipeline {
	p := &Pipeline{}
	p.AddPass(&funcPass{"Sparse Conditional Constant Propagation",
		"propagates constants along executable edges",
		SparseConditionalConstantPropagation})
	p.AddPass(&funcPass{"CFG Simplification",
		"merges straight-line blocks and drops unreachable ones",
		SimplifyCFG})
	p.AddPass(&funcPass{"Dead Code Elimination",
		"removes unobservable instructions with dead results",
		DeadCodeElimination})
	p.AddPass(&InstCombine{})
	p.AddPass(&funcPass{"CFG Simplification",
		"merges straight-line blocks and drops unreachable ones",
		SimplifyCFG})
	return p
}

// NewPostDerivativePipeline is the stage run after automatic differentiation
// and DAE construction: simplify, SCCP, simplify, aggressive DCE.
func NewPostDerivativePipeline() *Pipeline {
	p := &Pipeline{}
	p.AddPass(&funcPass{"CFG Simplification",
		"merges straight-line blocks and drops unreachable ones",
		SimplifyCFG})
	p.AddPass(&funcPass{"Sparse Conditional Constant Propagation",
		"propagates constants along executable edges",
		SparseConditionalConstantPropagation})
	p.AddPass(&funcPass{"CFG Simplification",
		"merges straight-line blocks and drops unreachable ones",
		SimplifyCFG})
	p.AddPass(&funcPass{"Aggressive Dead Code Elimination",
		"post-dominator based elimination of dead control flow",
		func(f *mir.Function, cfg *mir.ControlFlowGraph) bool {
			var pdom mir.DominatorTree
			return AggressiveDeadCodeElimination(f, cfg, &pdom)
		}})
	return p
}
