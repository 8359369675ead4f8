package simback

import (
	"math"

	"vamc/internal/autodiff"
	"vamc/internal/hir"
	"vamc/internal/lower"
	"vamc/internal/mir"
)

// sim_unknown_reads: the live parameters that read one of the simulation
// unknowns. Voltage probes read two node voltages at once (V(x,y) = V(x) -
// V(y)); deriving by the difference keeps the derivative count down.
func (b *daeBuilder) simUnknownReads() []lower.KindValue {
	var out []lower.KindValue
	for _, kv := range b.ctx.Intern.LiveParams(b.f()) {
		switch kv.Kind.Tag {
		case lower.PKVoltage, lower.PKCurrent, lower.PKImplicitUnknown:
			out = append(out, kv)
		}
	}
	return out
}

// derivativeInfo assigns an AD unknown index to every input that residuals
// may be derived against.
func (b *daeBuilder) derivativeInfo() *autodiff.KnownDerivatives {
	b.unknownVals = nil
	b.unknownIndex = make(map[mir.Value]autodiff.Unknown)
	for _, kv := range b.ctx.Intern.Params() {
		switch kv.Kind.Tag {
		case lower.PKVoltage, lower.PKCurrent, lower.PKImplicitUnknown,
			lower.PKNewState:
			b.unknownIndex[kv.Value] = autodiff.Unknown(len(b.unknownVals))
			b.unknownVals = append(b.unknownVals, kv.Value)
		case lower.PKParamSysFun:
			if kv.Kind.SysFun == lower.SysFunTemperature {
				b.unknownIndex[kv.Value] = autodiff.Unknown(len(b.unknownVals))
				b.unknownVals = append(b.unknownVals, kv.Value)
			}
		}
	}
	vals := b.unknownVals
	return &autodiff.KnownDerivatives{
		Count: len(vals),
		ParamDeriv: func(param mir.Value, u autodiff.Unknown) autodiff.Deriv {
			if int(u) < len(vals) && vals[u] == param {
				return autodiff.DerivOne
			}
			return autodiff.DerivZero
		},
	}
}

// jacobianDerivatives lists every (value, unknown) pair the Jacobian and the
// limit-exit RHS will look up.
func (b *daeBuilder) jacobianDerivatives(reads []lower.KindValue) []autodiff.Request {
	var params []autodiff.Unknown
	for _, kv := range reads {
		if u, ok := b.unknownIndex[kv.Value]; ok {
			params = append(params, u)
		}
	}
	for _, state := range b.ctx.Intern.LimStates {
		for _, obs := range state.Vals {
			if b.f().ValueDead(obs.Val) {
				continue
			}
			if u, ok := b.unknownIndex[obs.Val]; ok {
				params = append(params, u)
			}
		}
	}
	var ssParams []autodiff.Unknown
	for _, p := range b.system.SmallSignalParams {
		if u, ok := b.unknownIndex[p]; ok {
			ssParams = append(ssParams, u)
		}
	}

	var out []autodiff.Request
	for i := range b.system.Residuals {
		r := &b.system.Residuals[i]
		if !b.f().IsConst(r.Resist) {
			for _, u := range params {
				out = append(out, autodiff.Request{Val: r.Resist, U: u})
			}
		}
		if !b.f().IsConst(r.React) {
			for _, u := range params {
				out = append(out, autodiff.Request{Val: r.React, U: u})
			}
		}
		if !b.f().IsConst(r.ResistSmallSignal) {
			for _, u := range ssParams {
				out = append(out, autodiff.Request{Val: r.ResistSmallSignal, U: u})
			}
		}
		if !b.f().IsConst(r.ReactSmallSignal) {
			for _, u := range ssParams {
				out = append(out, autodiff.Request{Val: r.ReactSmallSignal, U: u})
			}
		}
	}
	return out
}

func (b *daeBuilder) finish() {
	reads := b.simUnknownReads()
	kd := b.derivativeInfo()
	requests := b.jacobianDerivatives(reads)
	derivatives := autodiff.AutoDiff(b.f(), kd, requests)
	// differentiation may splice instructions anywhere; rebuild views and
	// return to the function exit before assembling rows
	b.ctx.CFG.Compute(b.f())
	b.ctx.Dom.Compute(b.f(), &b.ctx.CFG, false)
	b.cursor.GotoExit()

	b.buildJacobian(reads, derivatives)
	b.buildLimRhs(derivatives)
	b.ensureOptbarriers()
	b.buildInputPairs()

	var nres, nreact uint32
	for _, entry := range b.system.Jacobian {
		if entry.Resist != mir.FZero {
			nres++
		}
		if entry.React != mir.FZero {
			nreact++
		}
	}
	b.system.NumResistive = nres
	b.system.NumReactive = nreact
}

func (b *daeBuilder) deriv(derivatives map[autodiff.Request]mir.Value, val mir.Value, u autodiff.Unknown) mir.Value {
	if d, ok := derivatives[autodiff.Request{Val: val, U: u}]; ok {
		return d
	}
	return mir.FZero
}

// buildJacobian constructs each row densely over all unknowns, then
// sparsifies to the non-zero entries.
func (b *daeBuilder) buildJacobian(reads []lower.KindValue, derivatives map[autodiff.Request]mir.Value) {
	n := len(b.system.Unknowns)
	type cell struct{ resist, react mir.Value }
	dense := make([]cell, n)
	for i := range dense {
		dense[i] = cell{mir.FZero, mir.FZero}
	}

	for row := range b.system.Residuals {
		r := &b.system.Residuals[row]

		addResidual := func(sim SimUnknownKind, paramVal mir.Value, negate bool) {
			col := b.system.UnknownIndex(sim)
			if col == NoSimUnknown {
				return
			}
			c := &dense[col]
			// limit-exit states stand in for the probe they limited
			for _, obs := range b.ctx.Intern.LimObservationsOf(paramVal) {
				limU, ok := b.unknownIndex[obs.Val]
				if !ok {
					continue
				}
				neg := negate != obs.Negate
				b.add(&c.resist, b.deriv(derivatives, r.Resist, limU), neg)
				b.add(&c.resist, b.deriv(derivatives, r.ResistSmallSignal, limU), neg)
				b.add(&c.react, b.deriv(derivatives, r.React, limU), neg)
				b.add(&c.react, b.deriv(derivatives, r.ReactSmallSignal, limU), neg)
			}
			if u, ok := b.unknownIndex[paramVal]; ok {
				b.add(&c.resist, b.deriv(derivatives, r.Resist, u), negate)
				b.add(&c.resist, b.deriv(derivatives, r.ResistSmallSignal, u), negate)
				b.add(&c.react, b.deriv(derivatives, r.React, u), negate)
				b.add(&c.react, b.deriv(derivatives, r.ReactSmallSignal, u), negate)
			}
		}

		for _, kv := range reads {
			var sim SimUnknownKind
			switch kv.Kind.Tag {
			case lower.PKVoltage:
				if kv.Kind.Lo != hir.NoNode {
					addResidual(KirchhoffLaw(kv.Kind.Lo), kv.Value, true)
				}
				sim = KirchhoffLaw(kv.Kind.Hi)
			case lower.PKImplicitUnknown:
				sim = ImplicitUnknown(kv.Kind.Equation)
			case lower.PKCurrent:
				sim = CurrentUnknown(kv.Kind.Branch)
			default:
				continue
			}
			addResidual(sim, kv.Value, false)
		}

		for col := range dense {
			if dense[col].resist == mir.FZero && dense[col].react == mir.FZero {
				continue
			}
			b.system.Jacobian = append(b.system.Jacobian, MatrixEntry{
				Row: SimUnknown(row), Col: SimUnknown(col),
				Resist: dense[col].resist, React: dense[col].react,
			})
			dense[col] = cell{mir.FZero, mir.FZero}
		}
	}
}

// buildLimRhs accumulates delta * d(residual)/d(observation) into the
// limit-exit right-hand sides.
func (b *daeBuilder) buildLimRhs(derivatives map[autodiff.Request]mir.Value) {
	for row := range b.system.Residuals {
		r := &b.system.Residuals[row]
		for stateIdx := range b.ctx.Intern.LimStates {
			state := &b.ctx.Intern.LimStates[stateIdx]
			for _, obs := range state.Vals {
				u, ok := b.unknownIndex[obs.Val]
				if !ok {
					continue
				}
				changed := b.ctx.Intern.EnsureParam(b.f(),
					lower.ParamKindNewState(lower.LimState(stateIdx)))
				var delta mir.Value
				if obs.Negate {
					delta = b.cursor.Ins().Fadd(changed, state.Unchanged)
				} else {
					delta = b.cursor.Ins().Fsub(changed, state.Unchanged)
				}
				addLim := func(dst *mir.Value, res, resSS mir.Value) {
					ddx := b.deriv(derivatives, res, u)
					ddxSS := b.deriv(derivatives, resSS, u)
					sum := ddx
					b.add(&sum, ddxSS, false)
					if sum == mir.FZero || delta == mir.FZero {
						return
					}
					rhs := b.cursor.Ins().Fmul(sum, delta)
					b.add(dst, rhs, false)
				}
				addLim(&r.ResistLimRhs, r.Resist, r.ResistSmallSignal)
				addLim(&r.ReactLimRhs, r.React, r.ReactSmallSignal)
			}
		}
	}
}

// ensureOptbarriers wraps every residual, noise and matrix value in an
// optbarrier and records it as an output so later DCE keeps it. Kirchhoff-law
// rows are additionally multiplied by mfactor inside the wrapper.
func (b *daeBuilder) ensureOptbarriers() {
	mfactor := b.mfactor()
	ensure := func(val mir.Value, isKirchhoff bool) mir.Value {
		val = b.cursor.Ins().EnsureOptBarrier(val)
		if isKirchhoff && val != mir.FZero {
			b.updateOptbarrier(val, func(in mir.Ins, arg mir.Value) mir.Value {
				return in.Fmul(mfactor, arg)
			})
		}
		if val != mir.FZero {
			b.f().Outputs[val] = true
		}
		return val
	}

	for i := range b.system.Residuals {
		r := &b.system.Residuals[i]
		// small-signal values never contribute the residual
		r.ResistSmallSignal = mir.FZero
		r.ReactSmallSignal = mir.FZero
		isKirchhoff := b.system.Unknowns[i].Tag == UkKirchhoffLaw
		r.VisitVals(func(v mir.Value) mir.Value { return ensure(v, isKirchhoff) })
	}
	ensure(mfactor, false)

	for i := range b.system.NoiseSources {
		b.system.NoiseSources[i].VisitVals(func(v mir.Value) mir.Value {
			return ensure(v, false)
		})
	}

	for i := range b.system.Jacobian {
		entry := &b.system.Jacobian[i]
		isKirchhoff := b.system.Unknowns[entry.Row].Tag == UkKirchhoffLaw
		entry.Resist = ensure(entry.Resist, isKirchhoff)
		entry.React = ensure(entry.React, isKirchhoff)
	}
}

// updateOptbarrier rewrites the operand of a barrier in place, inserting the
// replacement computation right before the barrier instruction.
func (b *daeBuilder) updateOptbarrier(barrier mir.Value, f func(mir.Ins, mir.Value) mir.Value) {
	inst := b.f().DefInst(barrier)
	arg := b.f().InstData(inst).Args[0]
	saveBlock := b.cursor.CurrentBlock()
	b.cursor.GotoBefore(inst)
	newArg := f(b.cursor.Ins(), arg)
	// re-fetch: building the replacement may have grown the instruction table
	b.f().InstData(inst).Args[0] = newArg
	b.cursor.GotoBottom(saveBlock)
}

// buildInputPairs lists one (hi, lo) unknown pair per live model input;
// single-ended inputs carry math.MaxUint32 in the lo slot.
func (b *daeBuilder) buildInputPairs() {
	const none = uint32(math.MaxUint32)
	b.system.ModelInputs = b.system.ModelInputs[:0]
	for _, kv := range b.ctx.Intern.LiveParams(b.f()) {
		switch kv.Kind.Tag {
		case lower.PKVoltage:
			ih, il := none, none
			if u := b.system.UnknownIndex(KirchhoffLaw(kv.Kind.Hi)); u != NoSimUnknown {
				ih = uint32(u)
			}
			if kv.Kind.Lo != hir.NoNode {
				if u := b.system.UnknownIndex(KirchhoffLaw(kv.Kind.Lo)); u != NoSimUnknown {
					il = uint32(u)
				}
			}
			if ih != none && (il != none || kv.Kind.Lo == hir.NoNode) {
				b.system.ModelInputs = append(b.system.ModelInputs, [2]uint32{ih, il})
			}
		case lower.PKCurrent:
			if b.ctx.Module.Branches[kv.Kind.Branch].Kind == hir.BranchPortFlow {
				continue
			}
			if u := b.system.UnknownIndex(CurrentUnknown(kv.Kind.Branch)); u != NoSimUnknown {
				b.system.ModelInputs = append(b.system.ModelInputs, [2]uint32{uint32(u), none})
			}
		case lower.PKImplicitUnknown:
			if u := b.system.UnknownIndex(ImplicitUnknown(kv.Kind.Equation)); u != NoSimUnknown {
				b.system.ModelInputs = append(b.system.ModelInputs, [2]uint32{uint32(u), none})
			}
		}
	}
}
