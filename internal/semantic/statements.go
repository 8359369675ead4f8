package semantic

import (
	"github.com/alecthomas/participle/v2/lexer"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/hir"
)

type lexerPosition = lexer.Position

func (ma *moduleAnalyzer) stmt(s *grammar.Stmt, ctx BodyCtx) hir.StmtID {
	if s == nil {
		return hir.NoStmt
	}
	switch {
	case s.Block != nil:
		var ids []hir.StmtID
		for _, inner := range s.Block.Stmts {
			if id := ma.stmt(inner, ctx); id != hir.NoStmt {
				ids = append(ids, id)
			}
		}
		return ma.m.Analog.AddStmt(hir.Stmt{
			Kind: hir.StmtBlock, Loc: locOf(s.Block.Pos), Stmts: ids,
		})

	case s.If != nil:
		cond := ma.expr(s.If.Cond, ctx)
		inner := ctx.enterCond(!ma.isConstExpr(cond))
		then := ma.stmt(s.If.Then, inner)
		els := ma.stmt(s.If.Else, inner)
		return ma.m.Analog.AddStmt(hir.Stmt{
			Kind: hir.StmtIf, Loc: locOf(s.If.Pos),
			Cond: cond, Then: then, Else: els,
		})

	case s.Case != nil:
		scrut := ma.expr(s.Case.Scrut, ctx)
		inner := ctx.enterCond(!ma.isConstExpr(scrut))
		out := hir.Stmt{Kind: hir.StmtCase, Loc: locOf(s.Case.Pos),
			Scrut: scrut, Default: hir.NoStmt}
		for _, item := range s.Case.Items {
			body := ma.stmt(item.Body, inner)
			if item.Default {
				out.Default = body
				continue
			}
			var vals []hir.ExprID
			for _, v := range item.Vals {
				vals = append(vals, ma.expr(v, ctx))
			}
			out.Cases = append(out.Cases, hir.CaseItem{Vals: vals, Body: body})
		}
		return ma.m.Analog.AddStmt(out)

	case s.While != nil:
		cond := ma.expr(s.While.Cond, ctx)
		body := ma.stmt(s.While.Body, ctx.enterLoop().enterCond(true))
		return ma.m.Analog.AddStmt(hir.Stmt{
			Kind: hir.StmtWhile, Loc: locOf(s.While.Pos),
			Cond: cond, Body: body,
		})

	case s.For != nil:
		init := ma.assign(s.For.Init.Pos, s.For.Init.Target, s.For.Init.Value, ctx)
		cond := ma.expr(s.For.Cond, ctx)
		loopCtx := ctx.enterLoop().enterCond(true)
		step := ma.assign(s.For.Step.Pos, s.For.Step.Target, s.For.Step.Value, loopCtx)
		body := ma.stmt(s.For.Body, loopCtx)
		return ma.m.Analog.AddStmt(hir.Stmt{
			Kind: hir.StmtFor, Loc: locOf(s.For.Pos),
			Init: init, Cond: cond, Step: step, Body: body,
		})

	case s.Contribute != nil:
		return ma.contribute(s.Contribute, ctx)

	case s.Assign != nil:
		return ma.assign(s.Assign.Pos, s.Assign.Target, s.Assign.Value, ctx)

	case s.Task != nil:
		return ma.task(s.Task, ctx)
	}
	return hir.NoStmt
}

func (ma *moduleAnalyzer) assign(pos lexerPosition, target string, value *grammar.Expr, ctx BodyCtx) hir.StmtID {
	rhs := ma.expr(value, ctx)
	id, ok := ma.vars[target]
	if !ok {
		if _, isParam := ma.params[target]; isParam {
			ma.a.errorAt(pos, errors.ErrorWrongKind,
				"cannot assign to parameter '"+target+"'")
		} else {
			ma.a.errorAt(pos, errors.ErrorUnresolvedPath,
				"unknown variable '"+target+"'")
		}
		return hir.NoStmt
	}
	ma.usedVars[id] = true
	return ma.m.Analog.AddStmt(hir.Stmt{
		Kind: hir.StmtAssign, Loc: locOf(pos), Var: id, Expr: rhs,
	})
}

func (ma *moduleAnalyzer) contribute(c *grammar.ContributeStmt, ctx BodyCtx) hir.StmtID {
	if ctx.Kind != CtxAnalog {
		ma.a.errorAt(c.Pos, errors.ErrorIllegalContribute,
			"contribution statements are only legal inside the analog block")
		return hir.NoStmt
	}
	rhs := ma.expr(c.Rhs, ctx)

	target := ma.call(c.Access, ctx)
	if target == hir.NoExpr {
		return hir.NoStmt
	}
	te := ma.m.Analog.Expr(target)
	var access hir.AccessKind
	var branch hir.BranchID
	switch te.Kind {
	case hir.ExprVoltage:
		access = hir.AccessPotential
		branch = te.Branch
		if branch == hir.NoBranch {
			branch = ma.implicitBranch(te.Hi, te.Lo)
		}
	case hir.ExprCurrent:
		access = hir.AccessFlow
		branch = te.Branch
		if ma.m.Branches[branch].Kind == hir.BranchPortFlow {
			ma.a.errorAt(c.Pos, errors.ErrorIllegalContribute,
				"cannot contribute to a port-flow probe")
			return hir.NoStmt
		}
	default:
		ma.a.errorAt(c.Pos, errors.ErrorIllegalContribute,
			"contribution target must be a nature access")
		return hir.NoStmt
	}
	hi, lo := ma.m.BranchNodesOf(branch)
	for _, n := range []hir.NodeID{hi, lo} {
		if n == hir.NoNode {
			continue
		}
		node := &ma.m.Nodes[n]
		if node.IsPort && node.Direction == hir.DirInput {
			ma.a.errorAt(c.Pos, errors.ErrorInvalidNodeDirection,
				"cannot contribute to input port '"+node.Name+"'")
		}
	}
	return ma.m.Analog.AddStmt(hir.Stmt{
		Kind: hir.StmtContribute, Loc: locOf(c.Pos),
		Access: access, Branch: branch, Expr: rhs,
	})
}

func (ma *moduleAnalyzer) task(t *grammar.TaskStmt, ctx BodyCtx) hir.StmtID {
	sig, ok := hir.LookupBuiltin(t.Name)
	if !ok || sig.Class != hir.ClassTask {
		ma.a.errorAt(t.Pos, errors.ErrorUnresolvedPath,
			"unknown system task '"+t.Name+"'")
		return hir.NoStmt
	}
	var args []hir.ExprID
	for _, arg := range t.Args {
		args = append(args, ma.expr(arg, ctx))
	}
	return ma.m.Analog.AddStmt(hir.Stmt{
		Kind: hir.StmtCall, Loc: locOf(t.Pos), Builtin: sig.Builtin, Args: args,
	})
}

// isConstExpr reports whether an expression only reads literals and
// parameters, which makes conditions on it constant per evaluation.
func (ma *moduleAnalyzer) isConstExpr(id hir.ExprID) bool {
	if id == hir.NoExpr {
		return true
	}
	e := ma.m.Analog.Expr(id)
	switch e.Kind {
	case hir.ExprLitReal, hir.ExprLitInt, hir.ExprLitStr, hir.ExprParam:
		return true
	case hir.ExprUnary:
		return ma.isConstExpr(e.Lhs)
	case hir.ExprBinary:
		return ma.isConstExpr(e.Lhs) && ma.isConstExpr(e.Rhs)
	case hir.ExprCond:
		return ma.isConstExpr(e.Cond) && ma.isConstExpr(e.Lhs) && ma.isConstExpr(e.Rhs)
	case hir.ExprCall:
		sig := e.Builtin
		if sig == hir.BuiltinParamGiven || sig == hir.BuiltinPortConnected ||
			sig == hir.BuiltinMfactor || sig == hir.BuiltinTemperature ||
			sig == hir.BuiltinSimParam || sig == hir.BuiltinSimParamStr ||
			sig == hir.BuiltinAnalysis {
			// fixed per evaluation, though not compile-time constants
			return true
		}
		for _, a := range e.Args {
			if !ma.isConstExpr(a) {
				return false
			}
		}
		switch sig {
		case hir.BuiltinDdt, hir.BuiltinDdx, hir.BuiltinIdt, hir.BuiltinIdtMod,
			hir.BuiltinWhiteNoise, hir.BuiltinFlickerNoise, hir.BuiltinNoiseTable,
			hir.BuiltinAcStim, hir.BuiltinLimit:
			return false
		}
		return true
	}
	return false
}
