// Package lower turns a validated analog body into an IR function. Every
// analog quantity the body reads from the outside world — parameters, node
// voltages, branch currents, implicit-equation state, limit-exit state — is
// interned as a placeholder function parameter, so the lowered function is a
// pure map from those inputs to its outputs.
package lower

import (
	"vamc/internal/hir"
	"vamc/internal/mir"
)

// ParamKindTag discriminates the closed set of input kinds.
type ParamKindTag uint8

const (
	PKParam ParamKindTag = iota
	PKParamGiven
	PKParamSysFun
	PKVoltage
	PKCurrent
	PKPortConnected
	PKHiddenState
	PKImplicitUnknown
	PKNewState
	PKSimParam
	PKSimParamGiven
	PKSimParamStr
)

// SysFun enumerates the system functions interned as inputs.
type SysFun uint8

const (
	SysFunMfactor SysFun = iota
	SysFunTemperature
)

// ImplicitEquation identifies one user-visible implicit equation: idt
// introduces one during lowering, a ddt in a non-additive contribution
// position one during topology construction.
type ImplicitEquation uint32

// ImplicitEquationKind records what introduced the equation.
type ImplicitEquationKind uint8

const (
	EqDdt ImplicitEquationKind = iota
	EqIdt
)

// LimState identifies one limit-exit state.
type LimState uint32

// ParamKind is the closed tagged union of input kinds. Instances must be
// built with the constructors below so unused fields stay canonical and the
// struct works as a map key.
type ParamKind struct {
	Tag      ParamKindTag
	Param    hir.ParamID
	SysFun   SysFun
	Hi, Lo   hir.NodeID
	Branch   hir.BranchID
	Port     hir.NodeID
	Var      hir.VarID
	Equation ImplicitEquation
	State    LimState
	Name     string
}

func ParamKindParam(p hir.ParamID) ParamKind { return ParamKind{Tag: PKParam, Param: p} }

func ParamKindParamGiven(p hir.ParamID) ParamKind { return ParamKind{Tag: PKParamGiven, Param: p} }

func ParamKindSysFun(fn SysFun) ParamKind { return ParamKind{Tag: PKParamSysFun, SysFun: fn} }

func ParamKindVoltage(hi, lo hir.NodeID) ParamKind {
	return ParamKind{Tag: PKVoltage, Hi: hi, Lo: lo}
}

func ParamKindCurrent(b hir.BranchID) ParamKind { return ParamKind{Tag: PKCurrent, Branch: b} }

func ParamKindPortConnected(p hir.NodeID) ParamKind {
	return ParamKind{Tag: PKPortConnected, Port: p}
}

func ParamKindHiddenState(v hir.VarID) ParamKind { return ParamKind{Tag: PKHiddenState, Var: v} }

func ParamKindImplicitUnknown(eq ImplicitEquation) ParamKind {
	return ParamKind{Tag: PKImplicitUnknown, Equation: eq}
}

func ParamKindNewState(s LimState) ParamKind { return ParamKind{Tag: PKNewState, State: s} }

func ParamKindSimParam(name string) ParamKind { return ParamKind{Tag: PKSimParam, Name: name} }

func ParamKindSimParamGiven(name string) ParamKind {
	return ParamKind{Tag: PKSimParamGiven, Name: name}
}

func ParamKindSimParamStr(name string) ParamKind {
	return ParamKind{Tag: PKSimParamStr, Name: name}
}

// PlaceTag discriminates the assignable places of a body.
type PlaceTag uint8

const (
	PlaceVar PlaceTag = iota
	PlaceBranchVoltage
	PlaceBranchCurrent
	PlaceIsVoltageSrc
	PlaceParam
)

// Place names one assignable slot during lowering: a variable, a branch
// contribution accumulator, the voltage/current selector of a branch, or an
// initialized parameter in the setup functions.
type Place struct {
	Tag    PlaceTag
	Var    hir.VarID
	Branch hir.BranchID
	Param  hir.ParamID
}

// LimStateData is one limit-exit state: the unchanged baseline value plus the
// observed (new-state value, negate) pairs.
type LimStateData struct {
	Unchanged mir.Value
	Vals      []LimObservation
}

type LimObservation struct {
	Val    mir.Value
	Negate bool
}

// KindValue pairs an interned kind with its placeholder value.
type KindValue struct {
	Kind  ParamKind
	Value mir.Value
}

// Interner owns the bidirectional ParamKind <-> Value mapping plus the
// side tables lowering accumulates: named outputs, tagged variable reads,
// limit-exit states and implicit equations.
type Interner struct {
	module *hir.Module

	order  []ParamKind
	params map[ParamKind]mir.Value
	kinds  map[mir.Value]ParamKind

	Outputs     map[Place]mir.Value
	OutputOrder []Place

	TaggedReads map[mir.Value]hir.VarID

	LimStates         []LimStateData
	limIndex          map[mir.Value]LimState
	ImplicitEquations []ImplicitEquationKind
}

func NewInterner(module *hir.Module) *Interner {
	return &Interner{
		module:      module,
		params:      make(map[ParamKind]mir.Value),
		kinds:       make(map[mir.Value]ParamKind),
		Outputs:     make(map[Place]mir.Value),
		TaggedReads: make(map[mir.Value]hir.VarID),
		limIndex:    make(map[mir.Value]LimState),
	}
}

// EnsureParam returns the placeholder value for kind, allocating a fresh
// function parameter on first request.
func (in *Interner) EnsureParam(f *mir.Function, kind ParamKind) mir.Value {
	if v, ok := in.params[kind]; ok {
		return v
	}
	v := f.NewParam(in.paramTy(kind))
	in.params[kind] = v
	in.kinds[v] = kind
	in.order = append(in.order, kind)
	return v
}

// Param returns the interned value for kind without allocating.
func (in *Interner) Param(kind ParamKind) (mir.Value, bool) {
	v, ok := in.params[kind]
	return v, ok
}

// ParamKindOf reverses the mapping.
func (in *Interner) ParamKindOf(v mir.Value) (ParamKind, bool) {
	k, ok := in.kinds[v]
	return k, ok
}

// Params lists all interned kinds in allocation order.
func (in *Interner) Params() []KindValue {
	out := make([]KindValue, len(in.order))
	for i, kind := range in.order {
		out[i] = KindValue{Kind: kind, Value: in.params[kind]}
	}
	return out
}

// LiveParams yields only those kinds whose placeholder is still used in the
// current IR.
func (in *Interner) LiveParams(f *mir.Function) []KindValue {
	var out []KindValue
	for _, kind := range in.order {
		v := in.params[kind]
		if !f.ValueDead(v) {
			out = append(out, KindValue{Kind: kind, Value: v})
		}
	}
	return out
}

// IsParamLive reports whether kind is interned and its value is used.
func (in *Interner) IsParamLive(f *mir.Function, kind ParamKind) bool {
	v, ok := in.params[kind]
	return ok && !f.ValueDead(v)
}

func (in *Interner) paramTy(kind ParamKind) mir.Ty {
	switch kind.Tag {
	case PKParam:
		switch in.module.Params[kind.Param].Type {
		case hir.TypeInt:
			return mir.TyInt
		case hir.TypeString:
			return mir.TyStr
		default:
			return mir.TyReal
		}
	case PKParamGiven, PKPortConnected, PKSimParamGiven:
		return mir.TyBool
	case PKSimParamStr:
		return mir.TyStr
	case PKHiddenState:
		if in.module.Vars[kind.Var].Type == hir.TypeInt {
			return mir.TyInt
		}
		return mir.TyReal
	default:
		return mir.TyReal
	}
}

// NewImplicitEquation allocates an implicit-equation slot.
func (in *Interner) NewImplicitEquation(kind ImplicitEquationKind) ImplicitEquation {
	in.ImplicitEquations = append(in.ImplicitEquations, kind)
	return ImplicitEquation(len(in.ImplicitEquations) - 1)
}

// EnsureLimState finds or creates the limit-exit state anchored at the
// unchanged baseline value.
func (in *Interner) EnsureLimState(unchanged mir.Value) LimState {
	if s, ok := in.limIndex[unchanged]; ok {
		return s
	}
	s := LimState(len(in.LimStates))
	in.LimStates = append(in.LimStates, LimStateData{Unchanged: unchanged})
	in.limIndex[unchanged] = s
	return s
}

// AddLimObservation records a (new-state value, negate) pair on a state.
func (in *Interner) AddLimObservation(s LimState, val mir.Value, negate bool) {
	in.LimStates[s].Vals = append(in.LimStates[s].Vals, LimObservation{Val: val, Negate: negate})
}

// LimObservationsOf returns the observations whose baseline is the given
// value, used during Jacobian construction.
func (in *Interner) LimObservationsOf(unchanged mir.Value) []LimObservation {
	if s, ok := in.limIndex[unchanged]; ok {
		return in.LimStates[s].Vals
	}
	return nil
}

// SetOutput records a named output place and its (barrier-wrapped) value.
func (in *Interner) SetOutput(p Place, v mir.Value) {
	if _, ok := in.Outputs[p]; !ok {
		in.OutputOrder = append(in.OutputOrder, p)
	}
	in.Outputs[p] = v
}
