package lower

import (
	"fmt"

	"vamc/internal/autodiff"
	"vamc/internal/hir"
	"vamc/internal/mir"
)

// boltzmann / elementary charge, used by $vt
const kOverQ = 8.617333262145179e-5

func (b *MirBuilder) cast(v mir.Value, want mir.Ty) mir.Value {
	have := b.f.ValueTy(v)
	if have == want {
		return v
	}
	in := b.c.Ins()
	switch {
	case have == mir.TyInt && want == mir.TyReal:
		return in.IFCast(v)
	case have == mir.TyReal && want == mir.TyInt:
		return in.FICast(v)
	case have == mir.TyBool && want == mir.TyInt:
		return in.BICast(v)
	case have == mir.TyInt && want == mir.TyBool:
		return in.IBCast(v)
	case have == mir.TyBool && want == mir.TyReal:
		return in.IFCast(in.BICast(v))
	case have == mir.TyReal && want == mir.TyBool:
		return in.Fne(v, mir.FZero)
	}
	return v
}

// condValue lowers an expression used as a branch condition into a boolean.
func (b *MirBuilder) condValue(id hir.ExprID, e env) mir.Value {
	v := b.expr(id, e)
	switch b.f.ValueTy(v) {
	case mir.TyBool:
		return v
	case mir.TyInt:
		return b.c.Ins().Ine(v, mir.Zero)
	default:
		return b.c.Ins().Fne(v, mir.FZero)
	}
}

func (b *MirBuilder) expr(id hir.ExprID, e env) mir.Value {
	if id == hir.NoExpr {
		return mir.FZero
	}
	x := b.body.Expr(id)
	b.c.SetLoc(x.Loc)
	switch x.Kind {
	case hir.ExprLitReal:
		return b.f.FConst(x.FVal)
	case hir.ExprLitInt:
		return b.f.IConst(x.IVal)
	case hir.ExprLitStr:
		return b.f.SConst(x.SVal)

	case hir.ExprParam:
		if b.paramValues != nil {
			if v, ok := b.paramValues[x.Param]; ok {
				return v
			}
		}
		return b.intern.EnsureParam(b.f, ParamKindParam(x.Param))

	case hir.ExprVar:
		v := b.read(e, Place{Tag: PlaceVar, Var: x.Var})
		if !b.f.IsConst(v) {
			b.intern.TaggedReads[v] = x.Var
		}
		return v

	case hir.ExprVoltage:
		return b.intern.EnsureParam(b.f, ParamKindVoltage(x.Hi, x.Lo))

	case hir.ExprCurrent:
		return b.intern.EnsureParam(b.f, ParamKindCurrent(x.Branch))

	case hir.ExprUnary:
		return b.unary(x, e)

	case hir.ExprBinary:
		return b.binaryExpr(x, e)

	case hir.ExprCond:
		cond := b.condValue(x.Cond, e)
		ty := b.tyOf(x.Type)
		then := b.cast(b.expr(x.Lhs, e), ty)
		els := b.cast(b.expr(x.Rhs, e), ty)
		return b.c.Ins().Select(cond, then, els)

	case hir.ExprCall:
		return b.callExpr(x, e)
	}
	return mir.FZero
}

func (b *MirBuilder) tyOf(t hir.Type) mir.Ty {
	switch t {
	case hir.TypeInt:
		return mir.TyInt
	case hir.TypeBool:
		return mir.TyBool
	case hir.TypeString:
		return mir.TyStr
	default:
		return mir.TyReal
	}
}

func (b *MirBuilder) unary(x *hir.Expr, e env) mir.Value {
	inner := b.expr(x.Lhs, e)
	switch x.Unary {
	case hir.UnNeg:
		if b.f.ValueTy(inner) == mir.TyInt {
			return b.c.Ins().Ineg(inner)
		}
		return b.c.Ins().Fneg(b.cast(inner, mir.TyReal))
	case hir.UnNot:
		return b.c.Ins().Bnot(b.cast(inner, mir.TyBool))
	}
	return inner
}

func (b *MirBuilder) binaryExpr(x *hir.Expr, e env) mir.Value {
	lhs := b.expr(x.Lhs, e)
	rhs := b.expr(x.Rhs, e)
	in := b.c.Ins()

	switch x.Binary {
	case hir.BinAnd:
		return in.Band(b.cast(lhs, mir.TyBool), b.cast(rhs, mir.TyBool))
	case hir.BinOr:
		return in.Bor(b.cast(lhs, mir.TyBool), b.cast(rhs, mir.TyBool))
	case hir.BinPow:
		return in.Pow(b.cast(lhs, mir.TyReal), b.cast(rhs, mir.TyReal))
	}

	bothInt := b.f.ValueTy(lhs) == mir.TyInt && b.f.ValueTy(rhs) == mir.TyInt
	if bothInt {
		switch x.Binary {
		case hir.BinAdd:
			return in.Iadd(lhs, rhs)
		case hir.BinSub:
			return in.Isub(lhs, rhs)
		case hir.BinMul:
			return in.Imul(lhs, rhs)
		case hir.BinDiv:
			return in.Idiv(lhs, rhs)
		case hir.BinRem:
			return in.Irem(lhs, rhs)
		case hir.BinLt:
			return in.Ilt(lhs, rhs)
		case hir.BinGt:
			return in.Igt(lhs, rhs)
		case hir.BinLe:
			return in.Ile(lhs, rhs)
		case hir.BinGe:
			return in.Ige(lhs, rhs)
		case hir.BinEq:
			return in.Ieq(lhs, rhs)
		case hir.BinNe:
			return in.Ine(lhs, rhs)
		}
	}
	fl := b.cast(lhs, mir.TyReal)
	fr := b.cast(rhs, mir.TyReal)
	switch x.Binary {
	case hir.BinAdd:
		return in.Fadd(fl, fr)
	case hir.BinSub:
		return in.Fsub(fl, fr)
	case hir.BinMul:
		return in.Fmul(fl, fr)
	case hir.BinDiv:
		return in.Fdiv(fl, fr)
	case hir.BinRem:
		return in.Frem(fl, fr)
	case hir.BinLt:
		return in.Flt(fl, fr)
	case hir.BinGt:
		return in.Fgt(fl, fr)
	case hir.BinLe:
		return in.Fle(fl, fr)
	case hir.BinGe:
		return in.Fge(fl, fr)
	case hir.BinEq:
		return in.Feq(fl, fr)
	case hir.BinNe:
		return in.Fne(fl, fr)
	}
	return fl
}

func (b *MirBuilder) callExpr(x *hir.Expr, e env) mir.Value {
	arg := func(n int) mir.Value {
		if n >= len(x.Args) {
			return mir.FZero
		}
		return b.expr(x.Args[n], e)
	}
	rarg := func(n int) mir.Value { return b.cast(arg(n), mir.TyReal) }
	in := func() mir.Ins { return b.c.Ins() }

	switch x.Builtin {
	case hir.BuiltinAbs:
		return b.lowerAbs(arg(0))
	case hir.BuiltinMin:
		return b.lowerMinMax(arg(0), arg(1), true)
	case hir.BuiltinMax:
		return b.lowerMinMax(arg(0), arg(1), false)
	case hir.BuiltinSqrt:
		return in().Sqrt(rarg(0))
	case hir.BuiltinExp:
		return in().Exp(rarg(0))
	case hir.BuiltinLimExp:
		return in().LimExp(rarg(0))
	case hir.BuiltinLn:
		return in().Ln(rarg(0))
	case hir.BuiltinLog:
		return in().Log(rarg(0))
	case hir.BuiltinSin:
		return in().Sin(rarg(0))
	case hir.BuiltinCos:
		return in().Cos(rarg(0))
	case hir.BuiltinTan:
		return in().Tan(rarg(0))
	case hir.BuiltinAsin:
		return in().Asin(rarg(0))
	case hir.BuiltinAcos:
		return in().Acos(rarg(0))
	case hir.BuiltinAtan:
		return in().Atan(rarg(0))
	case hir.BuiltinSinh:
		return in().Sinh(rarg(0))
	case hir.BuiltinCosh:
		return in().Cosh(rarg(0))
	case hir.BuiltinTanh:
		return in().Tanh(rarg(0))
	case hir.BuiltinPow:
		return in().Pow(rarg(0), rarg(1))
	case hir.BuiltinAtan2:
		return in().Atan2(rarg(0), rarg(1))
	case hir.BuiltinHypot:
		return in().Hypot(rarg(0), rarg(1))
	case hir.BuiltinFloor:
		return in().Floor(rarg(0))
	case hir.BuiltinCeil:
		return in().Ceil(rarg(0))

	case hir.BuiltinDdt:
		return b.pureCall("ddt", []mir.Value{rarg(0)})
	case hir.BuiltinIdt, hir.BuiltinIdtMod:
		// an integral introduces an implicit equation: the new unknown u
		// satisfies du/dt - x = 0
		return b.integralEquation(rarg(0))
	case hir.BuiltinDdx:
		return b.lowerDdx(x, e)

	case hir.BuiltinAbsDelay:
		return b.pureCall("absdelay", b.realArgs(x, e))
	case hir.BuiltinTransition:
		return b.pureCall("transition", b.realArgs(x, e))
	case hir.BuiltinSlew:
		return b.pureCall("slew", b.realArgs(x, e))
	case hir.BuiltinLaplaceND, hir.BuiltinLaplaceNP, hir.BuiltinLaplaceZD, hir.BuiltinLaplaceZP:
		return b.pureCall(laplaceName(x.Builtin), b.realArgs(x, e))
	case hir.BuiltinZiND, hir.BuiltinZiNP, hir.BuiltinZiZD, hir.BuiltinZiZP:
		return b.pureCall(ziName(x.Builtin), b.realArgs(x, e))

	case hir.BuiltinWhiteNoise:
		return b.noiseCall("white_noise", x, e)
	case hir.BuiltinFlickerNoise:
		return b.noiseCall("flicker_noise", x, e)
	case hir.BuiltinNoiseTable:
		return b.noiseCall("noise_table", x, e)
	case hir.BuiltinAcStim:
		return b.pureCall("ac_stim", b.realArgs(x, e))

	case hir.BuiltinLimit:
		return b.lowerLimit(x, e)

	case hir.BuiltinTemperature:
		return b.intern.EnsureParam(b.f, ParamKindSysFun(SysFunTemperature))
	case hir.BuiltinMfactor:
		return b.intern.EnsureParam(b.f, ParamKindSysFun(SysFunMfactor))
	case hir.BuiltinVt:
		temp := b.intern.EnsureParam(b.f, ParamKindSysFun(SysFunTemperature))
		if len(x.Args) > 0 {
			temp = rarg(0)
		}
		return in().Fmul(b.f.FConst(kOverQ), temp)

	case hir.BuiltinSimParam:
		name := b.stringArg(x, 0)
		val := b.intern.EnsureParam(b.f, ParamKindSimParam(name))
		if len(x.Args) > 1 {
			given := b.intern.EnsureParam(b.f, ParamKindSimParamGiven(name))
			return in().Select(given, val, rarg(1))
		}
		return val
	case hir.BuiltinSimParamStr:
		return b.intern.EnsureParam(b.f, ParamKindSimParamStr(b.stringArg(x, 0)))

	case hir.BuiltinParamGiven:
		if len(x.Args) == 1 {
			pe := b.body.Expr(x.Args[0])
			if pe.Kind == hir.ExprParam {
				return b.intern.EnsureParam(b.f, ParamKindParamGiven(pe.Param))
			}
		}
		return mir.False
	case hir.BuiltinPortConnected:
		if len(x.Args) == 1 {
			pe := b.body.Expr(x.Args[0])
			if pe.Kind == hir.ExprNodeRef && pe.Hi != hir.NoNode {
				return b.intern.EnsureParam(b.f, ParamKindPortConnected(pe.Hi))
			}
		}
		return mir.True

	case hir.BuiltinAnalysis:
		ref := b.f.DeclareFunc(mir.Signature{
			Name: "analysis", Params: len(x.Args), Returns: 1, ResultTy: mir.TyBool,
		})
		var args []mir.Value
		for n := range x.Args {
			args = append(args, arg(n))
		}
		return in().Call(ref, args)[0]
	}
	panic(fmt.Sprintf("lower: unhandled builtin %d", x.Builtin))
}

func laplaceName(builtin hir.Builtin) string {
	switch builtin {
	case hir.BuiltinLaplaceND:
		return "laplace_nd"
	case hir.BuiltinLaplaceNP:
		return "laplace_np"
	case hir.BuiltinLaplaceZD:
		return "laplace_zd"
	default:
		return "laplace_zp"
	}
}

func ziName(builtin hir.Builtin) string {
	switch builtin {
	case hir.BuiltinZiND:
		return "zi_nd"
	case hir.BuiltinZiNP:
		return "zi_np"
	case hir.BuiltinZiZD:
		return "zi_zd"
	default:
		return "zi_zp"
	}
}

func (b *MirBuilder) realArgs(x *hir.Expr, e env) []mir.Value {
	args := make([]mir.Value, 0, len(x.Args))
	for _, a := range x.Args {
		v := b.expr(a, e)
		if b.f.ValueTy(v) != mir.TyStr {
			v = b.cast(v, mir.TyReal)
		}
		args = append(args, v)
	}
	return args
}

func (b *MirBuilder) pureCall(name string, args []mir.Value) mir.Value {
	ref := b.f.DeclareFunc(mir.Signature{
		Name: name, Params: len(args), Returns: 1, ResultTy: mir.TyReal,
	})
	return b.c.Ins().Call(ref, args)[0]
}

// noiseCall keeps the optional name argument as a string constant operand so
// topology can recover it.
func (b *MirBuilder) noiseCall(name string, x *hir.Expr, e env) mir.Value {
	return b.pureCall(name, b.realArgs(x, e))
}

// stringArg extracts a literal string argument.
func (b *MirBuilder) stringArg(x *hir.Expr, n int) string {
	if n < len(x.Args) && x.Args[n] != hir.NoExpr {
		a := b.body.Expr(x.Args[n])
		if a.Kind == hir.ExprLitStr {
			return a.SVal
		}
	}
	return ""
}

// lowerAbs lowers abs via a compare/branch/phi diamond so derivative
// construction sees plain arithmetic.
func (b *MirBuilder) lowerAbs(v mir.Value) mir.Value {
	isInt := b.f.ValueTy(v) == mir.TyInt
	var cmp mir.Value
	if isInt {
		cmp = b.c.Ins().Ilt(v, mir.Zero)
	} else {
		v = b.cast(v, mir.TyReal)
		cmp = b.c.Ins().Flt(v, mir.FZero)
	}
	negBB := b.f.NewBlock()
	nopBB := b.f.NewBlock()
	join := b.f.NewBlock()
	b.c.Ins().Br(cmp, negBB, nopBB)

	b.c.GotoBottom(negBB)
	var neg mir.Value
	if isInt {
		neg = b.c.Ins().Ineg(v)
	} else {
		neg = b.c.Ins().Fneg(v)
	}
	b.c.Ins().Jump(join)

	b.c.GotoBottom(nopBB)
	b.c.Ins().Jump(join)

	b.c.GotoBottom(join)
	return b.c.Ins().Phi([]mir.PhiEdge{
		{Block: negBB, Value: neg},
		{Block: nopBB, Value: v},
	})
}

func (b *MirBuilder) lowerMinMax(a0, a1 mir.Value, isMin bool) mir.Value {
	in := b.c.Ins()
	if b.f.ValueTy(a0) == mir.TyInt && b.f.ValueTy(a1) == mir.TyInt {
		var cmp mir.Value
		if isMin {
			cmp = in.Ilt(a0, a1)
		} else {
			cmp = in.Igt(a0, a1)
		}
		return in.Select(cmp, a0, a1)
	}
	f0 := b.cast(a0, mir.TyReal)
	f1 := b.cast(a1, mir.TyReal)
	var cmp mir.Value
	if isMin {
		cmp = in.Flt(f0, f1)
	} else {
		cmp = in.Fgt(f0, f1)
	}
	return in.Select(cmp, f0, f1)
}

// integralEquation introduces the implicit equation of idt: a fresh unknown u
// with residual du/dt - x = 0 (resist -x, react u).
func (b *MirBuilder) integralEquation(x mir.Value) mir.Value {
	eq := b.intern.NewImplicitEquation(EqIdt)
	u := b.intern.EnsureParam(b.f, ParamKindImplicitUnknown(eq))
	// nothing in the function reads the residual; anchor it against DCE
	resist := b.c.Ins().OptBarrier(b.c.Ins().Fneg(x))
	b.f.Outputs[resist] = true
	b.implicitResiduals = append(b.implicitResiduals, ImplicitResidual{
		Equation: eq,
		Resist:   resist,
		React:    u,
	})
	return u
}

// lowerDdx runs symbolic differentiation of the first operand against the
// probe unknown at lowering time.
func (b *MirBuilder) lowerDdx(x *hir.Expr, e env) mir.Value {
	val := b.cast(b.expr(x.Args[0], e), mir.TyReal)
	probe := b.body.Expr(x.Args[1])

	kd := &autodiff.KnownDerivatives{
		Count: 1,
		ParamDeriv: func(param mir.Value, u autodiff.Unknown) autodiff.Deriv {
			kind, ok := b.intern.ParamKindOf(param)
			if !ok {
				return autodiff.DerivZero
			}
			switch probe.Kind {
			case hir.ExprVoltage:
				if kind.Tag == PKVoltage {
					if kind.Hi == probe.Hi {
						return autodiff.DerivOne
					}
					if kind.Lo == probe.Hi {
						return autodiff.DerivNegOne
					}
				}
			case hir.ExprCurrent:
				if kind.Tag == PKCurrent && kind.Branch == probe.Branch {
					return autodiff.DerivOne
				}
			}
			return autodiff.DerivZero
		},
	}
	res := autodiff.AutoDiff(b.f, kd, []autodiff.Request{{Val: val, U: 0}})
	// derivative insts were spliced before the insertion point; re-anchor
	b.c.GotoBottom(b.c.CurrentBlock())
	return res[autodiff.Request{Val: val, U: 0}]
}

// lowerLimit records a limit-exit state: the solver supplies the limited
// value as a fresh input, and the pair (baseline, new state) feeds the
// limit-exit right-hand side of the DAE.
func (b *MirBuilder) lowerLimit(x *hir.Expr, e env) mir.Value {
	probe := b.cast(b.expr(x.Args[0], e), mir.TyReal)
	state := b.intern.EnsureLimState(probe)
	newState := b.intern.EnsureParam(b.f, ParamKindNewState(state))
	b.intern.AddLimObservation(state, newState, false)
	// the simulator recomputes the unlimited baseline every iteration, and
	// the Jacobian keys the observation by it; keep it observable
	anchored := b.c.Ins().OptBarrier(probe)
	b.f.Outputs[anchored] = true
	return newState
}
