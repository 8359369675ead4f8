package mir

// Medium-level IR in SSA form. A Function owns dense tables of values,
// instructions and basic blocks; everything else (CFG, dominator trees,
// cursors) is a derived view borrowing the function.

import (
	"fmt"
	"math"
)

// Value, Inst and Block are dense ids into the owning function's tables.
// Ids are assigned in allocation order and stay stable for the lifetime of
// the function.
type Value uint32

type Inst uint32

type Block uint32

// FuncRef names an external callee declared on the function.
type FuncRef uint32

const (
	NoValue Value = math.MaxUint32
	NoInst  Inst  = math.MaxUint32
	NoBlock Block = math.MaxUint32
)

// Universal constants. Every function pre-seeds these at the same ids so
// passes can compare against them directly.
const (
	FZero Value = iota // fconst 0.0
	FOne               // fconst 1.0
	True               // bconst true
	False              // bconst false
	Zero               // iconst 0
	One                // iconst 1

	firstDynamicValue
)

// Ty is the scalar type of a value.
type Ty uint8

const (
	TyReal Ty = iota
	TyInt
	TyBool
	TyStr
)

func (t Ty) String() string {
	switch t {
	case TyReal:
		return "real"
	case TyInt:
		return "int"
	case TyBool:
		return "bool"
	case TyStr:
		return "str"
	}
	return "?"
}

type valueKind uint8

const (
	valConst valueKind = iota
	valParam
	valResult
)

type valueData struct {
	kind valueKind
	ty   Ty
	f    float64
	i    int64
	b    bool
	s    string
	inst Inst   // defining instruction for valResult
	num  uint32 // parameter position or result index
}

// InstData is the payload of one instruction: opcode, operand values, block
// operands (branch targets or phi predecessors) and result values.
type InstData struct {
	Op      Opcode
	Args    []Value
	Blocks  []Block // br: [then, else]; jmp: [target]; phi: one per arg
	Results []Value
	Callee  FuncRef // valid for OpCall only
	Loc     int32   // source location tag, -1 if absent
}

type blockData struct {
	insts []Inst
}

// Signature describes an external callee (resolved builtin).
type Signature struct {
	Name           string
	Params         int
	Returns        int
	ResultTy       Ty
	HasSideEffects bool
}

// Function owns all value and instruction storage. Residuals, matrix entries
// and noise sources produced by the DAE layer borrow into it by id; dropping
// the function invalidates them.
type Function struct {
	Name string

	values    []valueData
	insts     []InstData
	instBlock []Block
	blocks    []blockData
	layout    []Block

	fcache map[float64]Value
	icache map[int64]Value
	scache map[string]Value

	params []Value
	sigs   []Signature
	signdx map[string]FuncRef

	// Outputs anchors values an external consumer needs to observe; DCE
	// treats an optbarrier of such a value as a live root.
	Outputs map[Value]bool
}

func NewFunction(name string) *Function {
	f := &Function{
		Name:    name,
		fcache:  make(map[float64]Value),
		icache:  make(map[int64]Value),
		scache:  make(map[string]Value),
		signdx:  make(map[string]FuncRef),
		Outputs: make(map[Value]bool),
	}
	f.values = append(f.values,
		valueData{kind: valConst, ty: TyReal, f: 0},
		valueData{kind: valConst, ty: TyReal, f: 1},
		valueData{kind: valConst, ty: TyBool, b: true},
		valueData{kind: valConst, ty: TyBool, b: false},
		valueData{kind: valConst, ty: TyInt, i: 0},
		valueData{kind: valConst, ty: TyInt, i: 1},
	)
	f.fcache[0] = FZero
	f.fcache[1] = FOne
	f.icache[0] = Zero
	f.icache[1] = One
	return f
}

// NumValues returns the size of the value table.
func (f *Function) NumValues() int { return len(f.values) }

// NumInsts returns the size of the instruction table, including detached
// instructions.
func (f *Function) NumInsts() int { return len(f.insts) }

func (f *Function) newValue(d valueData) Value {
	f.values = append(f.values, d)
	return Value(len(f.values) - 1)
}

// FConst interns a real constant.
func (f *Function) FConst(v float64) Value {
	if val, ok := f.fcache[v]; ok {
		return val
	}
	val := f.newValue(valueData{kind: valConst, ty: TyReal, f: v})
	f.fcache[v] = val
	return val
}

// IConst interns an integer constant.
func (f *Function) IConst(v int64) Value {
	if val, ok := f.icache[v]; ok {
		return val
	}
	val := f.newValue(valueData{kind: valConst, ty: TyInt, i: v})
	f.icache[v] = val
	return val
}

// SConst interns a string constant.
func (f *Function) SConst(v string) Value {
	if val, ok := f.scache[v]; ok {
		return val
	}
	val := f.newValue(valueData{kind: valConst, ty: TyStr, s: v})
	f.scache[v] = val
	return val
}

// BConst returns the canonical boolean constant.
func (f *Function) BConst(v bool) Value {
	if v {
		return True
	}
	return False
}

// NewParam allocates a fresh function parameter value.
func (f *Function) NewParam(ty Ty) Value {
	v := f.newValue(valueData{kind: valParam, ty: ty, num: uint32(len(f.params))})
	f.params = append(f.params, v)
	return v
}

// Params returns the function parameter values in declaration order.
func (f *Function) Params() []Value { return f.params }

// DeclareFunc registers (or finds) an external callee by name.
func (f *Function) DeclareFunc(sig Signature) FuncRef {
	if ref, ok := f.signdx[sig.Name]; ok {
		return ref
	}
	ref := FuncRef(len(f.sigs))
	f.sigs = append(f.sigs, sig)
	f.signdx[sig.Name] = ref
	return ref
}

// Signature returns the callee declaration for ref.
func (f *Function) Signature(ref FuncRef) *Signature { return &f.sigs[ref] }

// ValueTy returns the type of v.
func (f *Function) ValueTy(v Value) Ty { return f.values[v].ty }

// IsConst reports whether v is a constant.
func (f *Function) IsConst(v Value) bool { return f.values[v].kind == valConst }

// IsParam reports whether v is a function parameter.
func (f *Function) IsParam(v Value) bool { return f.values[v].kind == valParam }

// AsFConst returns the real constant payload of v.
func (f *Function) AsFConst(v Value) (float64, bool) {
	d := &f.values[v]
	if d.kind == valConst && d.ty == TyReal {
		return d.f, true
	}
	return 0, false
}

// AsIConst returns the integer constant payload of v.
func (f *Function) AsIConst(v Value) (int64, bool) {
	d := &f.values[v]
	if d.kind == valConst && d.ty == TyInt {
		return d.i, true
	}
	return 0, false
}

// AsBConst returns the boolean constant payload of v.
func (f *Function) AsBConst(v Value) (bool, bool) {
	d := &f.values[v]
	if d.kind == valConst && d.ty == TyBool {
		return d.b, true
	}
	return false, false
}

// AsSConst returns the string constant payload of v.
func (f *Function) AsSConst(v Value) (string, bool) {
	d := &f.values[v]
	if d.kind == valConst && d.ty == TyStr {
		return d.s, true
	}
	return "", false
}

// DefInst returns the defining instruction of v, or NoInst for constants and
// parameters.
func (f *Function) DefInst(v Value) Inst {
	d := &f.values[v]
	if d.kind != valResult {
		return NoInst
	}
	return d.inst
}

// InstData exposes the payload of i. Callers must not grow the tables while
// holding the pointer.
func (f *Function) InstData(i Inst) *InstData { return &f.insts[i] }

// BlockOf returns the block currently containing i, or NoBlock if detached.
func (f *Function) BlockOf(i Inst) Block { return f.instBlock[i] }

// NewBlock appends a fresh empty block to the layout.
func (f *Function) NewBlock() Block {
	b := Block(len(f.blocks))
	f.blocks = append(f.blocks, blockData{})
	f.layout = append(f.layout, b)
	return b
}

// NumBlocks returns the size of the block table.
func (f *Function) NumBlocks() int { return len(f.blocks) }

// Layout returns the linear block order. The final layout block acts as the
// function exit: it is the only block allowed to lack a terminator.
func (f *Function) Layout() []Block { return f.layout }

// Entry returns the first block in layout order.
func (f *Function) Entry() Block {
	if len(f.layout) == 0 {
		return NoBlock
	}
	return f.layout[0]
}

// Exit returns the last block in layout order.
func (f *Function) Exit() Block {
	if len(f.layout) == 0 {
		return NoBlock
	}
	return f.layout[len(f.layout)-1]
}

// BlockInsts returns the ordered instructions of b.
func (f *Function) BlockInsts(b Block) []Inst { return f.blocks[b].insts }

// Terminator returns the terminating instruction of b, or NoInst.
func (f *Function) Terminator(b Block) Inst {
	insts := f.blocks[b].insts
	if len(insts) == 0 {
		return NoInst
	}
	last := insts[len(insts)-1]
	if f.insts[last].Op.IsTerminator() {
		return last
	}
	return NoInst
}

func (f *Function) newInst(d InstData, nresults int, resultTy Ty) Inst {
	i := Inst(len(f.insts))
	f.insts = append(f.insts, d)
	f.instBlock = append(f.instBlock, NoBlock)
	for r := 0; r < nresults; r++ {
		v := f.newValue(valueData{kind: valResult, ty: resultTy, inst: i, num: uint32(r)})
		f.insts[i].Results = append(f.insts[i].Results, v)
	}
	return i
}

func (f *Function) insertInst(b Block, pos int, i Inst) {
	insts := f.blocks[b].insts
	if pos < 0 || pos > len(insts) {
		pos = len(insts)
	}
	insts = append(insts, NoInst)
	copy(insts[pos+1:], insts[pos:])
	insts[pos] = i
	f.blocks[b].insts = insts
	f.instBlock[i] = b
}

// AttachInst appends a detached instruction at the end of b.
func (f *Function) AttachInst(i Inst, b Block) {
	f.insertInst(b, len(f.blocks[b].insts), i)
}

// SetLayout replaces the linear block order. Used by CFG simplification when
// blocks are merged away.
func (f *Function) SetLayout(layout []Block) {
	f.layout = append(f.layout[:0], layout...)
}

// RemoveInst detaches i from its block. The instruction data stays allocated
// so ids remain stable.
func (f *Function) RemoveInst(i Inst) {
	b := f.instBlock[i]
	if b == NoBlock {
		return
	}
	insts := f.blocks[b].insts
	for pos, cand := range insts {
		if cand == i {
			f.blocks[b].insts = append(insts[:pos], insts[pos+1:]...)
			break
		}
	}
	f.instBlock[i] = NoBlock
}

// InstPos returns the index of i within its block, or -1 if detached.
func (f *Function) InstPos(i Inst) int {
	b := f.instBlock[i]
	if b == NoBlock {
		return -1
	}
	for pos, cand := range f.blocks[b].insts {
		if cand == i {
			return pos
		}
	}
	return -1
}

// ReplaceAllUses rewrites every operand reading old to read new instead,
// including anchored outputs.
func (f *Function) ReplaceAllUses(old, new Value) {
	for i := range f.insts {
		if f.instBlock[i] == NoBlock {
			continue
		}
		args := f.insts[i].Args
		for a := range args {
			if args[a] == old {
				args[a] = new
			}
		}
	}
	if f.Outputs[old] {
		delete(f.Outputs, old)
		f.Outputs[new] = true
	}
}

// ValueDead reports whether v has zero live uses: no placed instruction reads
// it and it is not an anchored output.
func (f *Function) ValueDead(v Value) bool {
	if f.Outputs[v] {
		return false
	}
	for i := range f.insts {
		if f.instBlock[i] == NoBlock {
			continue
		}
		for _, a := range f.insts[i].Args {
			if a == v {
				return false
			}
		}
	}
	return true
}

// StripOptBarrier peels optbarrier wrappers off v.
func (f *Function) StripOptBarrier(v Value) Value {
	for {
		i := f.DefInst(v)
		if i == NoInst || f.insts[i].Op != OpOptBarrier {
			return v
		}
		v = f.insts[i].Args[0]
	}
}

// PhiEdge is one (predecessor, value) pair of a phi.
type PhiEdge struct {
	Block Block
	Value Value
}

// PhiEdges returns the incoming edges of a phi instruction.
func (f *Function) PhiEdges(i Inst) []PhiEdge {
	d := &f.insts[i]
	edges := make([]PhiEdge, len(d.Args))
	for n := range d.Args {
		edges[n] = PhiEdge{Block: d.Blocks[n], Value: d.Args[n]}
	}
	return edges
}

func (f *Function) String() string {
	return fmt.Sprintf("function %%%s (%d values, %d insts, %d blocks)",
		f.Name, len(f.values), len(f.insts), len(f.blocks))
}
