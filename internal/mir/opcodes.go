package mir

// Opcode enumerates the instruction set. Arithmetic and comparison opcodes are
// typed (integer vs real); casts move between the scalar types.
type Opcode uint16

const (
	OpInvalid Opcode = iota

	// integer arithmetic
	OpIadd
	OpIsub
	OpImul
	OpIdiv
	OpIrem
	OpIneg

	// integer comparison
	OpIlt
	OpIgt
	OpIle
	OpIge
	OpIeq
	OpIne

	// real arithmetic
	OpFadd
	OpFsub
	OpFmul
	OpFdiv
	OpFrem
	OpFneg

	// real comparison
	OpFlt
	OpFgt
	OpFle
	OpFge
	OpFeq
	OpFne

	// real math
	OpSqrt
	OpExp
	OpLimExp
	OpLn
	OpLog
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan
	OpSinh
	OpCosh
	OpTanh
	OpPow
	OpAtan2
	OpHypot
	OpFloor
	OpCeil

	// boolean
	OpBnot
	OpBand
	OpBor

	// casts
	OpIFCast // int -> real
	OpFICast // real -> int (round to nearest)
	OpBICast // bool -> int
	OpIBCast // int -> bool

	OpSelect
	OpPhi
	OpOptBarrier
	OpCall

	// terminators
	OpBr
	OpJmp
)

var opNames = map[Opcode]string{
	OpIadd: "iadd", OpIsub: "isub", OpImul: "imul", OpIdiv: "idiv",
	OpIrem: "irem", OpIneg: "ineg",
	OpIlt: "ilt", OpIgt: "igt", OpIle: "ile", OpIge: "ige",
	OpIeq: "ieq", OpIne: "ine",
	OpFadd: "fadd", OpFsub: "fsub", OpFmul: "fmul", OpFdiv: "fdiv",
	OpFrem: "frem", OpFneg: "fneg",
	OpFlt: "flt", OpFgt: "fgt", OpFle: "fle", OpFge: "fge",
	OpFeq: "feq", OpFne: "fne",
	OpSqrt: "sqrt", OpExp: "exp", OpLimExp: "limexp", OpLn: "ln", OpLog: "log",
	OpSin: "sin", OpCos: "cos", OpTan: "tan",
	OpAsin: "asin", OpAcos: "acos", OpAtan: "atan",
	OpSinh: "sinh", OpCosh: "cosh", OpTanh: "tanh",
	OpPow: "pow", OpAtan2: "atan2", OpHypot: "hypot",
	OpFloor: "floor", OpCeil: "ceil",
	OpBnot: "bnot", OpBand: "band", OpBor: "bor",
	OpIFCast: "ifcast", OpFICast: "ficast", OpBICast: "bicast", OpIBCast: "ibcast",
	OpSelect: "select", OpPhi: "phi", OpOptBarrier: "optbarrier", OpCall: "call",
	OpBr: "br", OpJmp: "jmp",
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "invalid"
}

// OpcodeByName resolves a printed opcode name, used by the IR text parser.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// IsTerminator reports whether op ends a basic block.
func (op Opcode) IsTerminator() bool { return op == OpBr || op == OpJmp }

// HasSideEffects reports whether an instruction with this opcode is observable
// regardless of its results. Calls defer to their signature.
func (op Opcode) HasSideEffects() bool { return op.IsTerminator() }

// ResultTy returns the type of the single result given the opcode and, where
// needed, the operand type.
func (op Opcode) ResultTy(operand Ty) Ty {
	switch op {
	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIneg, OpFICast, OpBICast:
		return TyInt
	case OpFadd, OpFsub, OpFmul, OpFdiv, OpFrem, OpFneg,
		OpSqrt, OpExp, OpLimExp, OpLn, OpLog, OpSin, OpCos, OpTan,
		OpAsin, OpAcos, OpAtan, OpSinh, OpCosh, OpTanh,
		OpPow, OpAtan2, OpHypot, OpFloor, OpCeil, OpIFCast:
		return TyReal
	case OpIlt, OpIgt, OpIle, OpIge, OpIeq, OpIne,
		OpFlt, OpFgt, OpFle, OpFge, OpFeq, OpFne,
		OpBnot, OpBand, OpBor, OpIBCast:
		return TyBool
	case OpSelect, OpPhi, OpOptBarrier:
		return operand
	}
	return operand
}
