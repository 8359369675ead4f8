package simback

import (
	"vamc/internal/hir"
	"vamc/internal/lower"
	"vamc/internal/mir"
)

// Contribution is one family (voltage-source or current-source) of a branch:
// the designator unknown, the four split values, and the noise terms.
type Contribution struct {
	Unknown            mir.Value
	Resist             mir.Value
	React              mir.Value
	ResistSmallSignal  mir.Value
	ReactSmallSignal   mir.Value
	Noise              []ContribNoise
}

// Trivial reports whether the contribution carries nothing at all.
func (c *Contribution) Trivial() bool {
	return c.Resist == mir.FZero && c.React == mir.FZero &&
		c.ResistSmallSignal == mir.FZero && c.ReactSmallSignal == mir.FZero &&
		len(c.Noise) == 0
}

// BranchInfo classifies one contributed branch.
type BranchInfo struct {
	Branch       hir.BranchID
	IsVoltageSrc mir.Value // TRUE, FALSE, or a runtime predicate
	VoltageSrc   Contribution
	CurrentSrc   Contribution
}

// Topology scans the lowered function and produces a BranchInfo per
// contributed branch, splitting each accumulated contribution into resistive,
// reactive, small-signal and noise parts.
type Topology struct {
	Branches []*BranchInfo

	// implicit equations introduced while rewriting non-additive ddt uses
	ImplicitResiduals []lower.ImplicitResidual
}

type topologyBuilder struct {
	f      *mir.Function
	intern *lower.Interner
	cursor *mir.Cursor
	module *hir.Module
	out    *Topology
}

// NewTopology consumes the contribution outputs of lowering. The cursor is
// left at the bottom of the exit block.
func NewTopology(ctx *Context) *Topology {
	tb := &topologyBuilder{
		f:      ctx.Func,
		intern: ctx.Intern,
		cursor: ctx.Func.AtExit(),
		module: ctx.Module,
		out:    &Topology{},
	}
	for _, br := range ctx.Contributed {
		tb.out.Branches = append(tb.out.Branches, tb.branchInfo(br))
	}
	return tb.out
}

func (tb *topologyBuilder) output(p lower.Place) mir.Value {
	v, ok := tb.intern.Outputs[p]
	if !ok {
		return mir.FZero
	}
	return tb.f.StripOptBarrier(v)
}

func (tb *topologyBuilder) branchInfo(br hir.BranchID) *BranchInfo {
	info := &BranchInfo{Branch: br}
	info.IsVoltageSrc = tb.output(lower.Place{Tag: lower.PlaceIsVoltageSrc, Branch: br})

	volt := tb.output(lower.Place{Tag: lower.PlaceBranchVoltage, Branch: br})
	cur := tb.output(lower.Place{Tag: lower.PlaceBranchCurrent, Branch: br})

	info.VoltageSrc = tb.decomposeSum(volt)
	info.CurrentSrc = tb.decomposeSum(cur)

	hi, lo := tb.module.BranchNodesOf(br)
	info.VoltageSrc.Unknown = tb.intern.EnsureParam(tb.f, lower.ParamKindVoltage(hi, lo))
	info.CurrentSrc.Unknown = tb.intern.EnsureParam(tb.f, lower.ParamKindCurrent(br))
	return info
}

func (tb *topologyBuilder) decomposeSum(val mir.Value) Contribution {
	c := Contribution{
		Resist: mir.FZero, React: mir.FZero,
		ResistSmallSignal: mir.FZero, ReactSmallSignal: mir.FZero,
	}
	tb.decompose(val, false, &c)
	return c
}

// decompose walks the additive structure of an accumulated contribution.
// Additive ddt terms feed the reactive part, noise calls the noise list,
// ac_stim the small-signal parts; everything else is resistive.
func (tb *topologyBuilder) decompose(val mir.Value, negate bool, c *Contribution) {
	val = tb.f.StripOptBarrier(val)
	if val == mir.FZero {
		return
	}
	def := tb.f.DefInst(val)
	if def == mir.NoInst {
		tb.add(&c.Resist, val, negate)
		return
	}
	d := tb.f.InstData(def)
	switch d.Op {
	case mir.OpFadd:
		tb.decompose(d.Args[0], negate, c)
		tb.decompose(d.Args[1], negate, c)
		return
	case mir.OpFsub:
		tb.decompose(d.Args[0], negate, c)
		tb.decompose(d.Args[1], !negate, c)
		return
	case mir.OpFneg:
		tb.decompose(d.Args[0], !negate, c)
		return
	case mir.OpCall:
		name := tb.f.Signature(d.Callee).Name
		switch name {
		case "ddt":
			tb.add(&c.React, d.Args[0], negate)
			return
		case "white_noise", "flicker_noise", "noise_table":
			c.Noise = append(c.Noise, tb.noiseTerm(name, d, tb.signFactor(negate)))
			return
		case "ac_stim":
			mag := mir.FOne
			if len(d.Args) > 0 {
				mag = d.Args[0]
			}
			tb.add(&c.ResistSmallSignal, mag, negate)
			return
		}
	case mir.OpFmul:
		// factor * special-call patterns keep their factor
		if done := tb.factoredTerm(d.Args[0], d.Args[1], negate, c); done {
			return
		}
		if done := tb.factoredTerm(d.Args[1], d.Args[0], negate, c); done {
			return
		}
	}
	// a ddt buried deeper than an additive or factored position becomes an
	// implicit equation so the term can stay resistive
	tb.rewriteNestedDdt(val)
	tb.add(&c.Resist, val, negate)
}

// factoredTerm handles fmul(factor, special) where special is a noise or
// ac_stim call; a factored ddt is not consumed here. Reports whether it
// consumed the term.
func (tb *topologyBuilder) factoredTerm(special, factor mir.Value, negate bool, c *Contribution) bool {
	def := tb.f.DefInst(tb.f.StripOptBarrier(special))
	if def == mir.NoInst {
		return false
	}
	if tb.f.InstData(def).Op != mir.OpCall {
		return false
	}
	name := tb.f.Signature(tb.f.InstData(def).Callee).Name
	switch name {
	case "white_noise", "flicker_noise", "noise_table":
		// build the negation before touching the instruction data again
		fac := factor
		if negate {
			fac = tb.cursor.Ins().Fneg(fac)
		}
		c.Noise = append(c.Noise, tb.noiseTerm(name, tb.f.InstData(def), fac))
		return true
	case "ac_stim":
		mag := mir.FOne
		if len(tb.f.InstData(def).Args) > 0 {
			mag = tb.f.InstData(def).Args[0]
		}
		tb.add(&c.ResistSmallSignal, tb.cursor.Ins().Fmul(factor, mag), negate)
		return true
	}
	return false
}

func (tb *topologyBuilder) signFactor(negate bool) mir.Value {
	if negate {
		return tb.f.FConst(-1)
	}
	return mir.FOne
}

func (tb *topologyBuilder) noiseTerm(name string, d *mir.InstData, factor mir.Value) ContribNoise {
	out := ContribNoise{Factor: factor}
	out.Kind.Pwr = mir.NoValue
	out.Kind.Exp = mir.NoValue
	switch name {
	case "white_noise":
		out.Kind.Tag = NoiseWhite
		if len(d.Args) > 0 {
			out.Kind.Pwr = d.Args[0]
		}
		out.Name = tb.argString(d, 1)
	case "flicker_noise":
		out.Kind.Tag = NoiseFlicker
		if len(d.Args) > 0 {
			out.Kind.Pwr = d.Args[0]
		}
		if len(d.Args) > 1 {
			out.Kind.Exp = d.Args[1]
		}
		out.Name = tb.argString(d, 2)
	default:
		out.Kind.Tag = NoiseTable
		if len(d.Args) > 0 {
			out.Kind.Pwr = d.Args[0]
		}
		out.Name = tb.argString(d, 1)
	}
	return out
}

func (tb *topologyBuilder) argString(d *mir.InstData, n int) string {
	if n < len(d.Args) {
		if s, ok := tb.f.AsSConst(d.Args[n]); ok {
			return s
		}
	}
	return ""
}

// rewriteNestedDdt replaces every ddt call reachable inside the term with a
// fresh implicit unknown u satisfying u - dx/dt = 0 (resist u, react -x).
func (tb *topologyBuilder) rewriteNestedDdt(term mir.Value) {
	seen := make(map[mir.Value]bool)
	var walk func(mir.Value)
	walk = func(v mir.Value) {
		if seen[v] {
			return
		}
		seen[v] = true
		def := tb.f.DefInst(v)
		if def == mir.NoInst {
			return
		}
		d := tb.f.InstData(def)
		if d.Op == mir.OpCall && tb.f.Signature(d.Callee).Name == "ddt" {
			eq := tb.intern.NewImplicitEquation(lower.EqDdt)
			u := tb.intern.EnsureParam(tb.f, lower.ParamKindImplicitUnknown(eq))
			x := d.Args[0]
			tb.f.ReplaceAllUses(v, u)
			tb.f.RemoveInst(def)
			tb.out.ImplicitResiduals = append(tb.out.ImplicitResiduals, lower.ImplicitResidual{
				Equation: eq,
				Resist:   u,
				React:    tb.cursor.Ins().Fneg(x),
			})
			walk(x)
			return
		}
		for _, a := range d.Args {
			walk(a)
		}
	}
	walk(term)
}

// add accumulates val into *dst with the given sign, building instructions at
// the cursor.
func (tb *topologyBuilder) add(dst *mir.Value, val mir.Value, negate bool) {
	val = tb.f.StripOptBarrier(val)
	if val == mir.FZero {
		return
	}
	in := tb.cursor.Ins()
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
