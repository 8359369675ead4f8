// Package autodiff implements symbolic forward-mode automatic differentiation
// over the SSA IR. For each requested (value, unknown) pair it synthesizes a
// new IR value computing the partial derivative by structural recursion on the
// defining instruction, memoized per pair. Derivative instructions are placed
// immediately after the instruction they derive, which keeps every use
// dominated by its definition without touching the block structure.
package autodiff

import (
	"fmt"

	"vamc/internal/mir"
)

// Unknown indexes the variables derivatives are taken against.
type Unknown uint32

// Deriv is the derivative of an input value against an unknown, as reported
// by the input table: zero, one, or negative one (the low node of a voltage
// difference).
type Deriv uint8

const (
	DerivZero Deriv = iota
	DerivOne
	DerivNegOne
)

// KnownDerivatives lists the IR input values that represent unknowns and
// answers how each input value derives against each unknown.
type KnownDerivatives struct {
	Count int
	// ParamDeriv reports d(param)/d(unknown) for function parameter values.
	ParamDeriv func(param mir.Value, u Unknown) Deriv
}

// Request asks for the derivative of Val against U.
type Request struct {
	Val mir.Value
	U   Unknown
}

type differ struct {
	f      *mir.Function
	known  *KnownDerivatives
	memo   map[Request]mir.Value
	cursor *mir.Cursor
}

// AutoDiff computes all requested derivatives, returning the synthesized
// value per request. The function is mutated in place; callers holding a
// cursor must reposition it afterwards.
func AutoDiff(f *mir.Function, known *KnownDerivatives, requests []Request) map[Request]mir.Value {
	d := &differ{
		f:      f,
		known:  known,
		memo:   make(map[Request]mir.Value),
		cursor: f.AtExit(),
	}
	out := make(map[Request]mir.Value, len(requests))
	for _, req := range requests {
		out[req] = d.derive(req.Val, req.U)
	}
	return out
}

// add and mul fold symbolic zeros and ones so derivative chains stay sparse.
func (d *differ) add(in mir.Ins, a, b mir.Value) mir.Value {
	if a == mir.FZero {
		return b
	}
	if b == mir.FZero {
		return a
	}
	return in.Fadd(a, b)
}

func (d *differ) sub(in mir.Ins, a, b mir.Value) mir.Value {
	if b == mir.FZero {
		return a
	}
	if a == mir.FZero {
		return in.Fneg(b)
	}
	return in.Fsub(a, b)
}

func (d *differ) mul(in mir.Ins, a, b mir.Value) mir.Value {
	if a == mir.FZero || b == mir.FZero {
		return mir.FZero
	}
	if a == mir.FOne {
		return b
	}
	if b == mir.FOne {
		return a
	}
	return in.Fmul(a, b)
}

func (d *differ) derive(val mir.Value, u Unknown) mir.Value {
	key := Request{val, u}
	if cached, ok := d.memo[key]; ok {
		return cached
	}
	// seed the cell first so cyclic phi chains terminate on zero
	d.memo[key] = mir.FZero
	res := d.deriveUncached(val, u)
	d.memo[key] = res
	return res
}

func (d *differ) deriveUncached(val mir.Value, u Unknown) mir.Value {
	f := d.f
	if f.IsConst(val) {
		return mir.FZero
	}
	if f.IsParam(val) {
		switch d.known.ParamDeriv(val, u) {
		case DerivOne:
			return mir.FOne
		case DerivNegOne:
			return f.FConst(-1)
		default:
			return mir.FZero
		}
	}

	def := f.DefInst(val)
	// copy out the fields: derivative construction grows the instruction
	// table and would invalidate a held pointer
	op := f.InstData(def).Op
	callee := f.InstData(def).Callee
	args := append([]mir.Value(nil), f.InstData(def).Args...)

	// derive operands first; each recursion places its instructions after the
	// operand's definition, which precedes def
	da := func(n int) mir.Value { return d.derive(args[n], u) }

	switch op {
	case mir.OpPhi:
		edges := f.PhiEdges(def)
		dedges := make([]mir.PhiEdge, len(edges))
		allZero := true
		for n, e := range edges {
			dv := d.derive(e.Value, u)
			if dv != mir.FZero {
				allZero = false
			}
			dedges[n] = mir.PhiEdge{Block: e.Block, Value: dv}
		}
		if allZero {
			return mir.FZero
		}
		d.cursor.GotoPhiSection(f.BlockOf(def))
		return d.cursor.Ins().Phi(dedges)

	case mir.OpOptBarrier:
		// semantic identity; the derivative passes through
		return d.derive(args[0], u)
	}

	d0 := mir.NoValue
	switch op {
	case mir.OpFadd, mir.OpFsub, mir.OpFmul, mir.OpFdiv, mir.OpSqrt, mir.OpExp,
		mir.OpLimExp, mir.OpLn, mir.OpLog, mir.OpSin, mir.OpCos, mir.OpTan,
		mir.OpAsin, mir.OpAcos, mir.OpAtan, mir.OpSinh, mir.OpCosh, mir.OpTanh,
		mir.OpFneg, mir.OpPow, mir.OpAtan2, mir.OpHypot:
		d0 = da(0)
	}

	d.cursor.GotoAfter(def)
	in := d.cursor.Ins()

	switch op {
	case mir.OpFadd:
		return d.add(in, d0, da(1))
	case mir.OpFsub:
		return d.sub(in, d0, da(1))
	case mir.OpFneg:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fneg(d0)
	case mir.OpFmul:
		d1 := da(1)
		d.cursor.GotoAfter(def)
		in = d.cursor.Ins()
		return d.add(in, d.mul(in, d0, args[1]), d.mul(in, args[0], d1))
	case mir.OpFdiv:
		d1 := da(1)
		d.cursor.GotoAfter(def)
		in = d.cursor.Ins()
		if d0 == mir.FZero && d1 == mir.FZero {
			return mir.FZero
		}
		num := d.sub(in, d.mul(in, d0, args[1]), d.mul(in, args[0], d1))
		if num == mir.FZero {
			return mir.FZero
		}
		den := in.Fmul(args[1], args[1])
		return in.Fdiv(num, den)
	case mir.OpSqrt:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fdiv(d0, in.Fmul(d.f.FConst(2), val))
	case mir.OpExp, mir.OpLimExp:
		return d.mul(in, val, d0)
	case mir.OpLn:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fdiv(d0, args[0])
	case mir.OpLog:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fdiv(d0, in.Fmul(d.f.FConst(2.302585092994046), args[0]))
	case mir.OpSin:
		return d.mul(in, in.Cos(args[0]), d0)
	case mir.OpCos:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fneg(in.Fmul(in.Sin(args[0]), d0))
	case mir.OpTan:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fmul(d0, in.Fadd(mir.FOne, in.Fmul(val, val)))
	case mir.OpAsin:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fdiv(d0, in.Sqrt(in.Fsub(mir.FOne, in.Fmul(args[0], args[0]))))
	case mir.OpAcos:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fneg(in.Fdiv(d0, in.Sqrt(in.Fsub(mir.FOne, in.Fmul(args[0], args[0])))))
	case mir.OpAtan:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fdiv(d0, in.Fadd(mir.FOne, in.Fmul(args[0], args[0])))
	case mir.OpSinh:
		return d.mul(in, in.Cosh(args[0]), d0)
	case mir.OpCosh:
		return d.mul(in, in.Sinh(args[0]), d0)
	case mir.OpTanh:
		if d0 == mir.FZero {
			return mir.FZero
		}
		return in.Fmul(d0, in.Fsub(mir.FOne, in.Fmul(val, val)))
	case mir.OpPow:
		// d(a^b) = a^b * (db*ln(a) + b*da/a)
		d1 := da(1)
		d.cursor.GotoAfter(def)
		in = d.cursor.Ins()
		if d0 == mir.FZero && d1 == mir.FZero {
			return mir.FZero
		}
		var lhs, rhs mir.Value = mir.FZero, mir.FZero
		if d1 != mir.FZero {
			lhs = in.Fmul(d1, in.Ln(args[0]))
		}
		if d0 != mir.FZero {
			rhs = in.Fmul(args[1], in.Fdiv(d0, args[0]))
		}
		return d.mul(in, val, d.add(in, lhs, rhs))
	case mir.OpAtan2:
		d1 := da(1)
		d.cursor.GotoAfter(def)
		in = d.cursor.Ins()
		if d0 == mir.FZero && d1 == mir.FZero {
			return mir.FZero
		}
		num := d.sub(in, d.mul(in, args[1], d0), d.mul(in, args[0], d1))
		den := in.Fadd(in.Fmul(args[0], args[0]), in.Fmul(args[1], args[1]))
		return in.Fdiv(num, den)
	case mir.OpHypot:
		d1 := da(1)
		d.cursor.GotoAfter(def)
		in = d.cursor.Ins()
		if d0 == mir.FZero && d1 == mir.FZero {
			return mir.FZero
		}
		num := d.add(in, d.mul(in, args[0], d0), d.mul(in, args[1], d1))
		return in.Fdiv(num, val)
	case mir.OpSelect:
		// the condition is piecewise constant
		d1 := d.derive(args[2], u)
		d.cursor.GotoAfter(def)
		in = d.cursor.Ins()
		dt := d.derive(args[1], u)
		d.cursor.GotoAfter(def)
		in = d.cursor.Ins()
		if dt == mir.FZero && d1 == mir.FZero {
			return mir.FZero
		}
		return in.Select(args[0], dt, d1)

	case mir.OpFloor, mir.OpCeil, mir.OpIFCast:
		// the integer side has derivative zero
		return mir.FZero

	case mir.OpCall:
		sig := f.Signature(callee)
		if sig.HasSideEffects {
			panic(fmt.Sprintf("autodiff: unsupported call %%%s", sig.Name))
		}
		return mir.FZero
	}

	// integer, boolean and comparison results are piecewise constant
	return mir.FZero
}
