package semantic

import (
	"math"

	"github.com/alecthomas/participle/v2/lexer"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/hir"
)

func locOf(pos lexer.Position) int32 {
	return int32(pos.Offset)
}

func (ma *moduleAnalyzer) addExpr(e hir.Expr) hir.ExprID {
	return ma.m.Analog.AddExpr(e)
}

func (ma *moduleAnalyzer) exprType(id hir.ExprID) hir.Type {
	if id == hir.NoExpr {
		return hir.TypeReal
	}
	return ma.m.Analog.Expr(id).Type
}

func (ma *moduleAnalyzer) expr(e *grammar.Expr, ctx BodyCtx) hir.ExprID {
	if e == nil {
		return hir.NoExpr
	}
	cond := ma.orExpr(e.Cond, ctx)
	if e.Then == nil {
		return cond
	}
	then := ma.expr(e.Then, ctx)
	els := ma.expr(e.Else, ctx)
	ty := promote(ma.exprType(then), ma.exprType(els))
	return ma.addExpr(hir.Expr{
		Kind: hir.ExprCond, Type: ty, Loc: locOf(e.Pos),
		Cond: cond, Lhs: then, Rhs: els,
	})
}

func (ma *moduleAnalyzer) orExpr(e *grammar.OrExpr, ctx BodyCtx) hir.ExprID {
	lhs := ma.andExpr(e.Lhs, ctx)
	for _, op := range e.Ops {
		lhs = ma.binary(lexer.Position{}, op.Op, lhs, ma.andExpr(op.Rhs, ctx))
	}
	return lhs
}

func (ma *moduleAnalyzer) andExpr(e *grammar.AndExpr, ctx BodyCtx) hir.ExprID {
	lhs := ma.cmpExpr(e.Lhs, ctx)
	for _, op := range e.Ops {
		lhs = ma.binary(lexer.Position{}, op.Op, lhs, ma.cmpExpr(op.Rhs, ctx))
	}
	return lhs
}

func (ma *moduleAnalyzer) cmpExpr(e *grammar.CmpExpr, ctx BodyCtx) hir.ExprID {
	lhs := ma.addExprRule(e.Lhs, ctx)
	for _, op := range e.Ops {
		lhs = ma.binary(lexer.Position{}, op.Op, lhs, ma.addExprRule(op.Rhs, ctx))
	}
	return lhs
}

func (ma *moduleAnalyzer) addExprRule(e *grammar.AddExpr, ctx BodyCtx) hir.ExprID {
	lhs := ma.mulExpr(e.Lhs, ctx)
	for _, op := range e.Ops {
		lhs = ma.binary(lexer.Position{}, op.Op, lhs, ma.mulExpr(op.Rhs, ctx))
	}
	return lhs
}

func (ma *moduleAnalyzer) mulExpr(e *grammar.MulExpr, ctx BodyCtx) hir.ExprID {
	lhs := ma.powExpr(e.Lhs, ctx)
	for _, op := range e.Ops {
		lhs = ma.binary(lexer.Position{}, op.Op, lhs, ma.powExpr(op.Rhs, ctx))
	}
	return lhs
}

func (ma *moduleAnalyzer) powExpr(e *grammar.PowExpr, ctx BodyCtx) hir.ExprID {
	lhs := ma.unaryExpr(e.Lhs, ctx)
	for _, op := range e.Ops {
		lhs = ma.binary(lexer.Position{}, op.Op, lhs, ma.unaryExpr(op.Rhs, ctx))
	}
	return lhs
}

var binOps = map[string]hir.BinOp{
	"+": hir.BinAdd, "-": hir.BinSub, "*": hir.BinMul, "/": hir.BinDiv,
	"%": hir.BinRem, "**": hir.BinPow,
	"<": hir.BinLt, ">": hir.BinGt, "<=": hir.BinLe, ">=": hir.BinGe,
	"==": hir.BinEq, "!=": hir.BinNe,
	"&&": hir.BinAnd, "||": hir.BinOr,
}

func (ma *moduleAnalyzer) binary(pos lexer.Position, op string, lhs, rhs hir.ExprID) hir.ExprID {
	bin := binOps[op]
	var ty hir.Type
	switch bin {
	case hir.BinAdd, hir.BinSub, hir.BinMul, hir.BinDiv, hir.BinRem:
		ty = promote(ma.exprType(lhs), ma.exprType(rhs))
	case hir.BinPow:
		ty = hir.TypeReal
	default:
		ty = hir.TypeBool
	}
	return ma.addExpr(hir.Expr{
		Kind: hir.ExprBinary, Type: ty, Loc: locOf(pos),
		Binary: bin, Lhs: lhs, Rhs: rhs,
	})
}

func promote(a, b hir.Type) hir.Type {
	if a == hir.TypeReal || b == hir.TypeReal {
		return hir.TypeReal
	}
	if a == hir.TypeInt && b == hir.TypeInt {
		return hir.TypeInt
	}
	if a == b {
		return a
	}
	return hir.TypeReal
}

func (ma *moduleAnalyzer) unaryExpr(e *grammar.UnaryExpr, ctx BodyCtx) hir.ExprID {
	inner := ma.primary(e.Primary, ctx)
	if e.Op == nil || *e.Op == "+" {
		return inner
	}
	switch *e.Op {
	case "-":
		return ma.addExpr(hir.Expr{
			Kind: hir.ExprUnary, Type: ma.exprType(inner), Loc: locOf(e.Pos),
			Unary: hir.UnNeg, Lhs: inner,
		})
	case "!":
		return ma.addExpr(hir.Expr{
			Kind: hir.ExprUnary, Type: hir.TypeBool, Loc: locOf(e.Pos),
			Unary: hir.UnNot, Lhs: inner,
		})
	}
	return inner
}

func (ma *moduleAnalyzer) primary(e *grammar.Primary, ctx BodyCtx) hir.ExprID {
	switch {
	case e.Real != nil:
		v, err := grammar.ParseRealLiteral(*e.Real)
		if err != nil {
			ma.a.errorAt(e.Pos, errors.ErrorLexical, "malformed real literal")
		}
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal,
			Loc: locOf(e.Pos), FVal: v})
	case e.Int != nil:
		var v int64
		for _, c := range *e.Int {
			v = v*10 + int64(c-'0')
		}
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitInt, Type: hir.TypeInt,
			Loc: locOf(e.Pos), IVal: v})
	case e.Str != nil:
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitStr, Type: hir.TypeString,
			Loc: locOf(e.Pos), SVal: grammar.UnquoteString(*e.Str)})
	case e.Call != nil:
		return ma.call(e.Call, ctx)
	case e.Ident != nil:
		return ma.ident(e.Pos, *e.Ident, ctx)
	case e.Paren != nil:
		return ma.expr(e.Paren, ctx)
	}
	return hir.NoExpr
}

func (ma *moduleAnalyzer) ident(pos lexer.Position, name string, ctx BodyCtx) hir.ExprID {
	if id, ok := ma.params[name]; ok {
		if ctx.isConst() && int(id) >= ma.declaredParams {
			ma.a.errorAt(pos, errors.ErrorIllegalParamAccess,
				"parameter '"+name+"' is declared later; defaults may only use earlier parameters")
		}
		return ma.addExpr(hir.Expr{Kind: hir.ExprParam,
			Type: ma.m.Params[id].Type, Loc: locOf(pos), Param: id})
	}
	if id, ok := ma.vars[name]; ok {
		if ctx.isConst() {
			ma.a.errorAt(pos, errors.ErrorIllegalCtxAccess,
				"variable '"+name+"' is not allowed in a constant context")
		}
		ma.usedVars[id] = true
		return ma.addExpr(hir.Expr{Kind: hir.ExprVar,
			Type: ma.m.Vars[id].Type, Loc: locOf(pos), Var: id})
	}
	if name == "inf" {
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal,
			Loc: locOf(pos), FVal: math.Inf(1)})
	}
	ma.a.errorAt(pos, errors.ErrorUnresolvedPath, "unresolved path '"+name+"'")
	return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(pos)})
}
