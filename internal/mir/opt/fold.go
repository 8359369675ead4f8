package opt

import (
	"math"

	"vamc/internal/mir"
)

// evalConst folds op over constant operands, interning the result on f.
// Returns NoValue when the operation cannot be folded (division by zero,
// non-constant operand, unsupported opcode).
func evalConst(f *mir.Function, op mir.Opcode, args []mir.Value) mir.Value {
	iarg := func(n int) (int64, bool) { return f.AsIConst(args[n]) }
	farg := func(n int) (float64, bool) { return f.AsFConst(args[n]) }
	barg := func(n int) (bool, bool) { return f.AsBConst(args[n]) }

	switch op {
	case mir.OpIadd, mir.OpIsub, mir.OpImul, mir.OpIdiv, mir.OpIrem,
		mir.OpIlt, mir.OpIgt, mir.OpIle, mir.OpIge, mir.OpIeq, mir.OpIne:
		a, oka := iarg(0)
		b, okb := iarg(1)
		if !oka || !okb {
			return mir.NoValue
		}
		switch op {
		case mir.OpIadd:
			return f.IConst(a + b)
		case mir.OpIsub:
			return f.IConst(a - b)
		case mir.OpImul:
			return f.IConst(a * b)
		case mir.OpIdiv:
			if b == 0 {
				return mir.NoValue
			}
			return f.IConst(a / b)
		case mir.OpIrem:
			if b == 0 {
				return mir.NoValue
			}
			return f.IConst(a % b)
		case mir.OpIlt:
			return f.BConst(a < b)
		case mir.OpIgt:
			return f.BConst(a > b)
		case mir.OpIle:
			return f.BConst(a <= b)
		case mir.OpIge:
			return f.BConst(a >= b)
		case mir.OpIeq:
			return f.BConst(a == b)
		case mir.OpIne:
			return f.BConst(a != b)
		}

	case mir.OpIneg:
		if a, ok := iarg(0); ok {
			return f.IConst(-a)
		}

	case mir.OpFadd, mir.OpFsub, mir.OpFmul, mir.OpFdiv, mir.OpFrem,
		mir.OpPow, mir.OpAtan2, mir.OpHypot,
		mir.OpFlt, mir.OpFgt, mir.OpFle, mir.OpFge, mir.OpFeq, mir.OpFne:
		a, oka := farg(0)
		b, okb := farg(1)
		if !oka || !okb {
			return mir.NoValue
		}
		switch op {
		case mir.OpFadd:
			return f.FConst(a + b)
		case mir.OpFsub:
			return f.FConst(a - b)
		case mir.OpFmul:
			return f.FConst(a * b)
		case mir.OpFdiv:
			if b == 0 {
				return mir.NoValue
			}
			return f.FConst(a / b)
		case mir.OpFrem:
			if b == 0 {
				return mir.NoValue
			}
			return f.FConst(math.Mod(a, b))
		case mir.OpPow:
			return f.FConst(math.Pow(a, b))
		case mir.OpAtan2:
			return f.FConst(math.Atan2(a, b))
		case mir.OpHypot:
			return f.FConst(math.Hypot(a, b))
		case mir.OpFlt:
			return f.BConst(a < b)
		case mir.OpFgt:
			return f.BConst(a > b)
		case mir.OpFle:
			return f.BConst(a <= b)
		case mir.OpFge:
			return f.BConst(a >= b)
		case mir.OpFeq:
			return f.BConst(a == b)
		case mir.OpFne:
			return f.BConst(a != b)
		}

	case mir.OpFneg:
		if a, ok := farg(0); ok {
			return f.FConst(-a)
		}
	case mir.OpSqrt:
		if a, ok := farg(0); ok && a >= 0 {
			return f.FConst(math.Sqrt(a))
		}
	case mir.OpExp, mir.OpLimExp:
		if a, ok := farg(0); ok {
			return f.FConst(math.Exp(a))
		}
	case mir.OpLn:
		if a, ok := farg(0); ok && a > 0 {
			return f.FConst(math.Log(a))
		}
	case mir.OpLog:
		if a, ok := farg(0); ok && a > 0 {
			return f.FConst(math.Log10(a))
		}
	case mir.OpSin:
		if a, ok := farg(0); ok {
			return f.FConst(math.Sin(a))
		}
	case mir.OpCos:
		if a, ok := farg(0); ok {
			return f.FConst(math.Cos(a))
		}
	case mir.OpTan:
		if a, ok := farg(0); ok {
			return f.FConst(math.Tan(a))
		}
	case mir.OpAsin:
		if a, ok := farg(0); ok && a >= -1 && a <= 1 {
			return f.FConst(math.Asin(a))
		}
	case mir.OpAcos:
		if a, ok := farg(0); ok && a >= -1 && a <= 1 {
			return f.FConst(math.Acos(a))
		}
	case mir.OpAtan:
		if a, ok := farg(0); ok {
			return f.FConst(math.Atan(a))
		}
	case mir.OpSinh:
		if a, ok := farg(0); ok {
			return f.FConst(math.Sinh(a))
		}
	case mir.OpCosh:
		if a, ok := farg(0); ok {
			return f.FConst(math.Cosh(a))
		}
	case mir.OpTanh:
		if a, ok := farg(0); ok {
			return f.FConst(math.Tanh(a))
		}
	case mir.OpFloor:
		if a, ok := farg(0); ok {
			return f.FConst(math.Floor(a))
		}
	case mir.OpCeil:
		if a, ok := farg(0); ok {
			return f.FConst(math.Ceil(a))
		}

	case mir.OpBnot:
		if a, ok := barg(0); ok {
			return f.BConst(!a)
		}
	case mir.OpBand:
		a, oka := barg(0)
		b, okb := barg(1)
		if oka && okb {
			return f.BConst(a && b)
		}
	case mir.OpBor:
		a, oka := barg(0)
		b, okb := barg(1)
		if oka && okb {
			return f.BConst(a || b)
		}

	case mir.OpIFCast:
		if a, ok := iarg(0); ok {
			return f.FConst(float64(a))
		}
	case mir.OpFICast:
		if a, ok := farg(0); ok {
			return f.IConst(int64(math.RoundToEven(a)))
		}
	case mir.OpBICast:
		if a, ok := barg(0); ok {
			if a {
				return mir.One
			}
			return mir.Zero
		}
	case mir.OpIBCast:
		if a, ok := iarg(0); ok {
			return f.BConst(a != 0)
		}
	}
	return mir.NoValue
}
