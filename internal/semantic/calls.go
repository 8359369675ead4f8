package semantic

import (
	"fmt"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/hir"
)

// call resolves builtin calls, nature accesses and port-flow probes.
func (ma *moduleAnalyzer) call(c *grammar.Call, ctx BodyCtx) hir.ExprID {
	switch c.Name {
	case "V":
		return ma.voltageAccess(c, ctx)
	case "I":
		return ma.currentAccess(c, ctx)
	}

	sig, ok := hir.LookupBuiltin(c.Name)
	if !ok {
		ma.a.errorAt(c.Pos, errors.ErrorUnresolvedPath,
			"unknown function '"+c.Name+"'")
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(c.Pos)})
	}
	if c.Port != nil {
		ma.a.errorAt(c.Pos, errors.ErrorInvalidArguments,
			"'"+c.Name+"' does not take a port-flow argument")
	}
	if len(c.Args) < sig.MinArgs || (sig.MaxArgs >= 0 && len(c.Args) > sig.MaxArgs) {
		ma.a.errorAt(c.Pos, errors.ErrorInvalidArguments,
			fmt.Sprintf("'%s' called with %d arguments", c.Name, len(c.Args)))
	}

	switch sig.Class {
	case hir.ClassAnalogOperator:
		ma.checkAnalogOperatorCtx(c, ctx)
	case hir.ClassAnalysisFun:
		ma.checkAnalysisFunCtx(c, sig, ctx)
	case hir.ClassTask:
		ma.a.errorAt(c.Pos, errors.ErrorIllegalCtxAccess,
			"task '"+c.Name+"' cannot be used in an expression")
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(c.Pos)})
	}

	args := make([]hir.ExprID, 0, len(c.Args))
	for n, arg := range c.Args {
		// the probe argument of ddx is an access expression, not a value,
		// and $port_connected names a port rather than reading one
		switch {
		case sig.Builtin == hir.BuiltinDdx && n == 1:
			args = append(args, ma.ddxProbe(arg, ctx))
		case sig.Builtin == hir.BuiltinPortConnected && n == 0:
			args = append(args, ma.portArg(c, arg))
		default:
			args = append(args, ma.expr(arg, ctx))
		}
	}

	ma.checkSpecialArgs(c, sig, args)

	ty := sig.Result
	if sig.Builtin == hir.BuiltinAbs || sig.Builtin == hir.BuiltinMin || sig.Builtin == hir.BuiltinMax {
		ty = hir.TypeReal
		allInt := true
		for _, a := range args {
			if ma.exprType(a) != hir.TypeInt {
				allInt = false
			}
		}
		if allInt {
			ty = hir.TypeInt
		}
	}
	return ma.addExpr(hir.Expr{
		Kind: hir.ExprCall, Type: ty, Loc: locOf(c.Pos),
		Builtin: sig.Builtin, Args: args,
	})
}

func (ma *moduleAnalyzer) checkAnalogOperatorCtx(c *grammar.Call, ctx BodyCtx) {
	switch {
	case ctx.isConst():
		ma.a.errorAt(c.Pos, errors.ErrorIllegalCtxAccess,
			"analog operator '"+c.Name+"' is not allowed in a constant context")
	case ctx.InLoop:
		ma.a.errorAt(c.Pos, errors.ErrorIllegalCtxAccess,
			"analog operator '"+c.Name+"' is not allowed inside a loop")
	case ctx.NonConstConds > 0:
		ma.a.errorAt(c.Pos, errors.ErrorIllegalCtxAccess,
			"analog operator '"+c.Name+"' must not execute behind a non-constant condition")
	}
}

func (ma *moduleAnalyzer) checkAnalysisFunCtx(c *grammar.Call, sig hir.BuiltinSig, ctx BodyCtx) {
	if !ctx.isConst() {
		return
	}
	if sig.Builtin == hir.BuiltinSimParam || sig.Builtin == hir.BuiltinSimParamStr {
		// only a whitelisted set of simulator parameters is known at
		// constant-fold time
		if len(c.Args) > 0 {
			if name, ok := ma.constStringArg(c.Args[0]); ok {
				if _, known := hir.ConstSimparamNames[name]; known {
					return
				}
				ma.a.errorAt(c.Pos, errors.ErrorConstSimparam,
					"'"+name+"' is not a constant simulator parameter")
				return
			}
		}
		ma.a.errorAt(c.Pos, errors.ErrorConstSimparam,
			"$simparam in a constant context requires a literal name")
		return
	}
	ma.a.errorAt(c.Pos, errors.ErrorIllegalCtxAccess,
		"'"+c.Name+"' is not allowed in a constant context")
}

func (ma *moduleAnalyzer) checkSpecialArgs(c *grammar.Call, sig hir.BuiltinSig, args []hir.ExprID) {
	switch sig.Builtin {
	case hir.BuiltinParamGiven:
		if len(args) == 1 && args[0] != hir.NoExpr {
			if ma.m.Analog.Expr(args[0]).Kind != hir.ExprParam {
				ma.a.errorAt(c.Pos, errors.ErrorWrongKind,
					"$param_given expects a parameter")
			}
		}
	}
}

// portArg resolves the port-name argument of $port_connected.
func (ma *moduleAnalyzer) portArg(c *grammar.Call, arg *grammar.Expr) hir.ExprID {
	name, ok := identOf(arg)
	if !ok {
		ma.a.errorAt(c.Pos, errors.ErrorExpectedPort, "$port_connected expects a port name")
		return ma.addExpr(hir.Expr{Kind: hir.ExprNodeRef, Type: hir.TypeBool,
			Loc: locOf(c.Pos), Hi: hir.NoNode})
	}
	node := ma.lookupNode(c.Pos, name)
	if node != hir.NoNode && !ma.m.Nodes[node].IsPort {
		ma.a.errorAt(c.Pos, errors.ErrorExpectedPort,
			"'"+name+"' is not a port of module "+ma.m.Name)
		node = hir.NoNode
	}
	return ma.addExpr(hir.Expr{Kind: hir.ExprNodeRef, Type: hir.TypeBool,
		Loc: locOf(c.Pos), Hi: node})
}

// ddxProbe validates the second ddx argument: V(node) or I(branch).
func (ma *moduleAnalyzer) ddxProbe(arg *grammar.Expr, ctx BodyCtx) hir.ExprID {
	id := ma.expr(arg, ctx)
	if id == hir.NoExpr {
		return id
	}
	e := ma.m.Analog.Expr(id)
	switch e.Kind {
	case hir.ExprVoltage:
		if e.Lo != hir.NoNode {
			ma.a.errorAt(arg.Pos, errors.ErrorInvalidArguments,
				"ddx probe must be a single node potential or branch flow")
		}
	case hir.ExprCurrent:
	default:
		ma.a.errorAt(arg.Pos, errors.ErrorInvalidArguments,
			"ddx probe must be a nature access")
	}
	return id
}

func (ma *moduleAnalyzer) constStringArg(e *grammar.Expr) (string, bool) {
	id := ma.expr(e, BodyCtx{Kind: CtxConst})
	if id == hir.NoExpr {
		return "", false
	}
	expr := ma.m.Analog.Expr(id)
	if expr.Kind == hir.ExprLitStr {
		return expr.SVal, true
	}
	return "", false
}

// voltageAccess handles V(a), V(a, b) and V(branch).
func (ma *moduleAnalyzer) voltageAccess(c *grammar.Call, ctx BodyCtx) hir.ExprID {
	if ctx.isConst() {
		ma.a.errorAt(c.Pos, errors.ErrorIllegalCtxAccess,
			"nature access is not allowed in a constant context")
	}
	if c.Port != nil {
		ma.a.errorAt(c.Pos, errors.ErrorPotentialOfPortFlow,
			"potential of a port-flow probe")
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(c.Pos)})
	}
	hi, lo, br, ok := ma.accessOperands(c)
	if !ok {
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(c.Pos)})
	}
	if br != hir.NoBranch {
		branch := &ma.m.Branches[br]
		if branch.Kind == hir.BranchPortFlow {
			ma.a.errorAt(c.Pos, errors.ErrorPotentialOfPortFlow,
				"potential of a port-flow branch")
			return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(c.Pos)})
		}
		hi, lo = ma.m.BranchNodesOf(br)
	}
	return ma.addExpr(hir.Expr{
		Kind: hir.ExprVoltage, Type: hir.TypeReal, Loc: locOf(c.Pos),
		Hi: hi, Lo: lo, Branch: br,
	})
}

// currentAccess handles I(a), I(a, b), I(branch) and I(<port>).
func (ma *moduleAnalyzer) currentAccess(c *grammar.Call, ctx BodyCtx) hir.ExprID {
	if ctx.isConst() {
		ma.a.errorAt(c.Pos, errors.ErrorIllegalCtxAccess,
			"nature access is not allowed in a constant context")
	}
	if c.Port != nil {
		port := ma.lookupNode(c.Pos, *c.Port)
		if port != hir.NoNode && !ma.m.Nodes[port].IsPort {
			ma.a.errorAt(c.Pos, errors.ErrorExpectedPort,
				"flow probe requires a port, '"+*c.Port+"' is an internal net")
			port = hir.NoNode
		}
		if port == hir.NoNode {
			return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(c.Pos)})
		}
		return ma.addExpr(hir.Expr{
			Kind: hir.ExprCurrent, Type: hir.TypeReal, Loc: locOf(c.Pos),
			Branch: ma.portFlowBranch(port),
		})
	}
	hi, lo, br, ok := ma.accessOperands(c)
	if !ok {
		return ma.addExpr(hir.Expr{Kind: hir.ExprLitReal, Type: hir.TypeReal, Loc: locOf(c.Pos)})
	}
	if br == hir.NoBranch {
		br = ma.implicitBranch(hi, lo)
	}
	return ma.addExpr(hir.Expr{
		Kind: hir.ExprCurrent, Type: hir.TypeReal, Loc: locOf(c.Pos), Branch: br,
	})
}

// accessOperands decodes the arguments of a nature access into either a
// branch or a node pair.
func (ma *moduleAnalyzer) accessOperands(c *grammar.Call) (hi, lo hir.NodeID, br hir.BranchID, ok bool) {
	hi, lo, br = hir.NoNode, hir.NoNode, hir.NoBranch
	if len(c.Args) == 0 || len(c.Args) > 2 {
		ma.a.errorAt(c.Pos, errors.ErrorInvalidArguments,
			"nature access takes one or two arguments")
		return hi, lo, br, false
	}
	names := make([]string, 0, 2)
	for _, arg := range c.Args {
		name, good := identOf(arg)
		if !good {
			ma.a.errorAt(c.Pos, errors.ErrorInvalidArguments,
				"nature access arguments must be nets or a branch")
			return hi, lo, br, false
		}
		names = append(names, name)
	}
	if len(names) == 1 {
		if id, isBranch := ma.branches[names[0]]; isBranch {
			return hi, lo, id, true
		}
		hi = ma.lookupNode(c.Pos, names[0])
		return hi, lo, br, hi != hir.NoNode
	}
	hi = ma.lookupNode(c.Pos, names[0])
	lo = ma.lookupNode(c.Pos, names[1])
	return hi, lo, br, hi != hir.NoNode && lo != hir.NoNode
}

// identOf unwraps a plain identifier expression from the parse tree.
func identOf(e *grammar.Expr) (string, bool) {
	if e == nil || e.Then != nil || len(e.Cond.Ops) > 0 {
		return "", false
	}
	and := e.Cond.Lhs
	if len(and.Ops) > 0 {
		return "", false
	}
	cmp := and.Lhs
	if len(cmp.Ops) > 0 {
		return "", false
	}
	add := cmp.Lhs
	if len(add.Ops) > 0 {
		return "", false
	}
	mul := add.Lhs
	if len(mul.Ops) > 0 {
		return "", false
	}
	pow := mul.Lhs
	if len(pow.Ops) > 0 {
		return "", false
	}
	un := pow.Lhs
	if un.Op != nil || un.Primary == nil || un.Primary.Ident == nil {
		return "", false
	}
	return *un.Primary.Ident, true
}
