package lower

import (
	"vamc/internal/hir"
	"vamc/internal/mir"
)

// BuildParamInit builds a parameter initialization function for the given
// subset of parameters: each output is select($param_given, supplied value,
// default expression), with range constraints checked by a branch to a
// side-effecting report call. Defaults read the already-initialized values of
// earlier parameters, never fresh placeholders.
func BuildParamInit(m *hir.Module, name string, params []hir.ParamID) (*mir.Function, *Interner) {
	b := &MirBuilder{
		m:           m,
		body:        &m.Analog,
		intern:      NewInterner(m),
		contributed: make(map[hir.BranchID]bool),
		paramValues: make(map[hir.ParamID]mir.Value),
	}
	b.f = mir.NewFunction(name)
	entry := b.f.NewBlock()
	b.c = b.f.At(entry)
	e := make(env)

	for _, p := range params {
		b.initParam(p, e)
	}

	exit := b.f.NewBlock()
	b.c.Ins().Jump(exit)
	b.c.GotoBottom(exit)
	for _, p := range params {
		wrapped := b.c.Ins().OptBarrier(b.paramValues[p])
		b.f.Outputs[wrapped] = true
		b.intern.SetOutput(Place{Tag: PlaceParam, Param: p}, wrapped)
	}
	return b.f, b.intern
}

func (b *MirBuilder) initParam(p hir.ParamID, e env) {
	param := &b.m.Params[p]
	ty := b.tyOf(param.Type)

	given := b.intern.EnsureParam(b.f, ParamKindParamGiven(p))
	raw := b.intern.EnsureParam(b.f, ParamKindParam(p))
	def := b.cast(b.expr(param.Default, e), ty)
	val := b.c.Ins().Select(given, raw, def)
	b.paramValues[p] = val

	if len(param.Constraints) == 0 || ty == mir.TyStr {
		return
	}

	ok := mir.True
	rval := b.cast(val, mir.TyReal)
	in := b.c.Ins()
	for _, cons := range param.Constraints {
		lo := b.cast(b.expr(cons.Lo, e), mir.TyReal)
		hi := b.cast(b.expr(cons.Hi, e), mir.TyReal)
		var inside mir.Value
		if cons.Lo == cons.Hi {
			inside = in.Feq(rval, lo)
		} else {
			var above, below mir.Value
			if cons.LoInclusive {
				above = in.Fge(rval, lo)
			} else {
				above = in.Fgt(rval, lo)
			}
			if cons.HiInclusive {
				below = in.Fle(rval, hi)
			} else {
				below = in.Flt(rval, hi)
			}
			inside = in.Band(above, below)
		}
		var pass mir.Value
		if cons.Exclude {
			pass = in.Bnot(inside)
		} else {
			pass = inside
		}
		if ok == mir.True {
			ok = pass
		} else {
			ok = in.Band(ok, pass)
		}
	}
	if ok == mir.True {
		return
	}

	contBB := b.f.NewBlock()
	errBB := b.f.NewBlock()
	b.c.Ins().Br(ok, contBB, errBB)
	b.c.GotoBottom(errBB)
	ref := b.f.DeclareFunc(mir.Signature{
		Name: "invalid_parameter", Params: 1, Returns: 0, HasSideEffects: true,
	})
	b.c.Ins().Call(ref, []mir.Value{b.f.SConst(param.Name)})
	b.c.Ins().Jump(contBB)
	b.c.GotoBottom(contBB)
}
