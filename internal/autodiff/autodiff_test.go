package autodiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vamc/internal/mir"
)

func singleUnknown(vals ...mir.Value) *KnownDerivatives {
	return &KnownDerivatives{
		Count: len(vals),
		ParamDeriv: func(param mir.Value, u Unknown) Deriv {
			if int(u) < len(vals) && vals[u] == param {
				return DerivOne
			}
			return DerivZero
		},
	}
}

// d/da (a * sin(a)) = sin(a) + a*cos(a), built without any new blocks.
func TestProductChainRule(t *testing.T) {
	f := mir.NewFunction("ad")
	entry := f.NewBlock()
	c := f.At(entry)

	a := f.NewParam(mir.TyReal)
	s := c.Ins().Sin(a)
	y := c.Ins().Fmul(a, s)
	barrier := c.Ins().OptBarrier(y)
	f.Outputs[barrier] = true

	blocksBefore := f.NumBlocks()
	res := AutoDiff(f, singleUnknown(a), []Request{{Val: y, U: 0}})
	dy := res[Request{Val: y, U: 0}]

	require.NotEqual(t, mir.NoValue, dy)
	assert.Equal(t, blocksBefore, f.NumBlocks(), "AD must not add blocks here")
	assert.False(t, f.ValueDead(y), "the original product is still anchored")

	// expect fadd(sin(a), fmul(a, cos(a)))
	def := f.DefInst(dy)
	require.NotEqual(t, mir.NoInst, def)
	d := f.InstData(def)
	require.Equal(t, mir.OpFadd, d.Op)
	assert.Equal(t, s, d.Args[0], "the first summand is sin(a)")

	rhs := f.DefInst(d.Args[1])
	require.NotEqual(t, mir.NoInst, rhs)
	rd := f.InstData(rhs)
	require.Equal(t, mir.OpFmul, rd.Op)
	assert.Equal(t, a, rd.Args[0])
	cosDef := f.DefInst(rd.Args[1])
	require.NotEqual(t, mir.NoInst, cosDef)
	assert.Equal(t, mir.OpCos, f.InstData(cosDef).Op)

	require.NoError(t, f.Validate())
}

// P6: differentiating a constant yields F_ZERO; differentiating the unknown
// against itself yields F_ONE.
func TestConstAndIdentityDerivatives(t *testing.T) {
	f := mir.NewFunction("identity")
	f.NewBlock()
	a := f.NewParam(mir.TyReal)
	k := f.FConst(3.5)

	res := AutoDiff(f, singleUnknown(a), []Request{
		{Val: k, U: 0},
		{Val: a, U: 0},
	})
	assert.Equal(t, mir.FZero, res[Request{Val: k, U: 0}])
	assert.Equal(t, mir.FOne, res[Request{Val: a, U: 0}])
}

func TestQuotientRule(t *testing.T) {
	f := mir.NewFunction("quotient")
	entry := f.NewBlock()
	c := f.At(entry)

	a := f.NewParam(mir.TyReal)
	b := f.NewParam(mir.TyReal)
	q := c.Ins().Fdiv(a, b)
	barrier := c.Ins().OptBarrier(q)
	f.Outputs[barrier] = true

	res := AutoDiff(f, singleUnknown(a, b), []Request{
		{Val: q, U: 0},
		{Val: q, U: 1},
	})

	// d/da (a/b) = b / b^2
	da := res[Request{Val: q, U: 0}]
	dad := f.InstData(f.DefInst(da))
	require.Equal(t, mir.OpFdiv, dad.Op)
	assert.Equal(t, b, dad.Args[0])

	// d/db (a/b) = -a / b^2
	db := res[Request{Val: q, U: 1}]
	dbd := f.InstData(f.DefInst(db))
	require.Equal(t, mir.OpFdiv, dbd.Op)
	numDef := f.DefInst(dbd.Args[0])
	require.NotEqual(t, mir.NoInst, numDef)
	assert.Equal(t, mir.OpFneg, f.InstData(numDef).Op)

	require.NoError(t, f.Validate())
}

func TestSqrtRule(t *testing.T) {
	f := mir.NewFunction("sqrt")
	entry := f.NewBlock()
	c := f.At(entry)

	a := f.NewParam(mir.TyReal)
	r := c.Ins().Sqrt(a)
	barrier := c.Ins().OptBarrier(r)
	f.Outputs[barrier] = true

	res := AutoDiff(f, singleUnknown(a), []Request{{Val: r, U: 0}})
	dr := res[Request{Val: r, U: 0}]

	// d sqrt(a) = 1 / (2 * sqrt(a)), with d(a) == 1 folded away
	d := f.InstData(f.DefInst(dr))
	require.Equal(t, mir.OpFdiv, d.Op)
	assert.Equal(t, mir.FOne, d.Args[0])
	den := f.InstData(f.DefInst(d.Args[1]))
	require.Equal(t, mir.OpFmul, den.Op)
	assert.Equal(t, r, den.Args[1])
}

// The derivative of a select keeps the condition and differentiates the arms.
func TestSelectDerivative(t *testing.T) {
	f := mir.NewFunction("select")
	entry := f.NewBlock()
	c := f.At(entry)

	cond := f.NewParam(mir.TyBool)
	a := f.NewParam(mir.TyReal)
	double := c.Ins().Fmul(a, f.FConst(2))
	sel := c.Ins().Select(cond, double, a)
	barrier := c.Ins().OptBarrier(sel)
	f.Outputs[barrier] = true

	res := AutoDiff(f, singleUnknown(a), []Request{{Val: sel, U: 0}})
	ds := res[Request{Val: sel, U: 0}]

	d := f.InstData(f.DefInst(ds))
	require.Equal(t, mir.OpSelect, d.Op)
	assert.Equal(t, cond, d.Args[0])
	assert.Equal(t, mir.FOne, d.Args[2], "d(a)/da = 1 on the else arm")
	require.NoError(t, f.Validate())
}

// The derivative of a phi is a phi over the derivatives of its inputs.
func TestPhiDerivative(t *testing.T) {
	f := mir.NewFunction("phi")
	entry := f.NewBlock()
	then := f.NewBlock()
	els := f.NewBlock()
	join := f.NewBlock()
	c := f.At(entry)

	cond := f.NewParam(mir.TyBool)
	a := f.NewParam(mir.TyReal)
	c.Ins().Br(cond, then, els)
	c.GotoBottom(then)
	scaled := c.Ins().Fmul(a, f.FConst(3))
	c.Ins().Jump(join)
	c.GotoBottom(els)
	c.Ins().Jump(join)
	c.GotoBottom(join)
	merged := c.Ins().Phi([]mir.PhiEdge{
		{Block: then, Value: scaled},
		{Block: els, Value: a},
	})
	barrier := c.Ins().OptBarrier(merged)
	f.Outputs[barrier] = true

	res := AutoDiff(f, singleUnknown(a), []Request{{Val: merged, U: 0}})
	dm := res[Request{Val: merged, U: 0}]

	d := f.InstData(f.DefInst(dm))
	require.Equal(t, mir.OpPhi, d.Op)
	require.Len(t, d.Args, 2)
	require.NoError(t, f.Validate())
}

// AD passes through optbarriers: the derivative of a barrier is the
// derivative of its operand.
func TestOptBarrierDerivative(t *testing.T) {
	f := mir.NewFunction("adwall")
	entry := f.NewBlock()
	c := f.At(entry)

	a := f.NewParam(mir.TyReal)
	wrapped := c.Ins().OptBarrier(a)
	f.Outputs[wrapped] = true

	res := AutoDiff(f, singleUnknown(a), []Request{{Val: wrapped, U: 0}})
	assert.Equal(t, mir.FOne, res[Request{Val: wrapped, U: 0}])
}
