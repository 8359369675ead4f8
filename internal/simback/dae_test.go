package simback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/hir"
	"vamc/internal/mir"
	"vamc/internal/semantic"
)

func compileSource(t *testing.T, source string) *CompiledModule {
	t.Helper()
	file, parseDiags := grammar.ParseSource("test.va", source)
	require.Empty(t, parseDiags)
	analyzer := semantic.NewAnalyzer()
	modules, diags := analyzer.Analyze(file)
	require.False(t, errors.HasErrors(diags), "diagnostics: %v", diags)
	require.Len(t, modules, 1)
	return NewCompiledModule(modules[0])
}

func unknownTags(c *CompiledModule) []SimUnknownKindTag {
	tags := make([]SimUnknownKindTag, len(c.Dae.Unknowns))
	for i, u := range c.Dae.Unknowns {
		tags[i] = u.Tag
	}
	return tags
}

// isBarrierOrZero checks property P3 on a residual field.
func isBarrierOrZero(f *mir.Function, v mir.Value) bool {
	if v == mir.FZero {
		return true
	}
	def := f.DefInst(v)
	return def != mir.NoInst && f.InstData(def).Op == mir.OpOptBarrier
}

// Scenario: a pure voltage branch V(b) <+ 1.0 produces a branch-current
// unknown, a source equation v_hi - v_lo - 1.0, and the constant structure of
// an ideal voltage source in the Jacobian.
func TestVoltageBranch(t *testing.T) {
	c := compileSource(t, `
module vsrc(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) b;
    analog V(b) <+ 1.0;
endmodule
`)
	f := c.Eval

	require.Len(t, c.Dae.Unknowns, 3, "two Kirchhoff unknowns plus Current(b)")
	assert.Equal(t, UkKirchhoffLaw, c.Dae.Unknowns[0].Tag)
	assert.Equal(t, UkKirchhoffLaw, c.Dae.Unknowns[1].Tag)
	assert.Equal(t, UkCurrent, c.Dae.Unknowns[2].Tag)

	// the source-equation residual is V(p,n) - 1.0
	res := f.StripOptBarrier(c.Dae.Residuals[2].Resist)
	def := f.DefInst(res)
	require.NotEqual(t, mir.NoInst, def)
	d := f.InstData(def)
	require.Equal(t, mir.OpFsub, d.Op)
	if v, ok := f.AsFConst(d.Args[1]); assert.True(t, ok) {
		assert.Equal(t, 1.0, v)
	}

	// Jacobian rows/cols: {hi, lo} x {Current} and {Current} x {hi, lo}
	type rc struct{ row, col SimUnknown }
	got := make(map[rc]bool)
	for _, e := range c.Dae.Jacobian {
		got[rc{e.Row, e.Col}] = true
	}
	for _, want := range []rc{{0, 2}, {1, 2}, {2, 0}, {2, 1}} {
		assert.True(t, got[want], "missing jacobian entry (%d, %d)", want.row, want.col)
	}

	// P3 and P4
	for i := range c.Dae.Residuals {
		assert.True(t, isBarrierOrZero(f, c.Dae.Residuals[i].Resist))
		assert.True(t, isBarrierOrZero(f, c.Dae.Residuals[i].React))
	}
	for _, e := range c.Dae.Jacobian {
		assert.False(t, e.Resist == mir.FZero && e.React == mir.FZero,
			"matrix entries must have a non-zero part")
	}
}

// Scenario: a current branch I(b) <+ g*V(b) keeps Kirchhoff residuals scaled
// by mfactor inside the optbarrier and produces four resistive entries; no
// current unknown appears.
func TestCurrentBranchWithMfactor(t *testing.T) {
	c := compileSource(t, `
module res(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) b;
    parameter real g = 1e-3;
    analog I(b) <+ g * V(b);
endmodule
`)
	f := c.Eval

	require.Len(t, c.Dae.Unknowns, 2, "no current unknown unless the current is probed")
	assert.NotContains(t, unknownTags(c), UkCurrent)

	require.Len(t, c.Dae.Jacobian, 4)
	assert.Equal(t, uint32(4), c.Dae.NumResistive)
	assert.Equal(t, uint32(0), c.Dae.NumReactive)

	// the Kirchhoff residual is mfactor * (g * V) inside the barrier
	for row := 0; row < 2; row++ {
		res := c.Dae.Residuals[row].Resist
		def := f.DefInst(res)
		require.NotEqual(t, mir.NoInst, def)
		require.Equal(t, mir.OpOptBarrier, f.InstData(def).Op)
		inner := f.DefInst(f.InstData(def).Args[0])
		require.NotEqual(t, mir.NoInst, inner)
		assert.Equal(t, mir.OpFmul, f.InstData(inner).Op,
			"Kirchhoff residuals are multiplied by mfactor inside the barrier")
	}

	// probing the current instead promotes the branch current to an unknown
	probed := compileSource(t, `
module res2(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) b;
    parameter real g = 1e-3;
    real ib;
    analog begin
        I(b) <+ g * V(b);
        ib = I(b);
    end
endmodule
`)
	assert.Contains(t, unknownTags(probed), UkCurrent)
}

// Scenario: if (off) I(b) <+ 0; else V(b) <+ 0 materializes a runtime switch
// with a new block structure and always creates the Current(b) unknown.
func TestSwitchBranch(t *testing.T) {
	c := compileSource(t, `
module sw(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) b;
    parameter integer off = 0;
    analog if (off)
        I(b) <+ 0.0;
    else
        V(b) <+ 0.0;
endmodule
`)
	f := c.Eval

	assert.Contains(t, unknownTags(c), UkCurrent,
		"a switch branch always carries a current unknown")

	// the source-equation residual joins the two designators with a phi
	var curRow int
	for i, u := range c.Dae.Unknowns {
		if u.Tag == UkCurrent {
			curRow = i
		}
	}
	res := f.StripOptBarrier(c.Dae.Residuals[curRow].Resist)
	def := f.DefInst(res)
	require.NotEqual(t, mir.NoInst, def)
	assert.Equal(t, mir.OpPhi, f.InstData(def).Op,
		"the switch designator is a phi of the voltage and current unknowns")

	require.NoError(t, f.Validate())
}

// P5: every live two-node voltage probe yields exactly one model-input pair.
func TestModelInputPairs(t *testing.T) {
	c := compileSource(t, `
module res(p, n);
    inout p, n;
    electrical p, n;
    parameter real g = 1e-3;
    analog I(p, n) <+ g * V(p, n);
endmodule
`)
	require.Len(t, c.Dae.ModelInputs, 1)
	pair := c.Dae.ModelInputs[0]
	assert.Equal(t, uint32(0), pair[0])
	assert.Equal(t, uint32(1), pair[1])
}

// A trivial voltage contribution of zero collapses the node pair instead of
// emitting a source equation.
func TestNodeCollapse(t *testing.T) {
	c := compileSource(t, `
module short(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) b;
    analog V(b) <+ 0.0;
endmodule
`)
	assert.NotContains(t, unknownTags(c), UkCurrent)
	require.Len(t, c.NodeCollapse, 1)
	assert.Equal(t, [2]hir.NodeID{0, 1}, c.NodeCollapse[0])
}

// A capacitor stores its charge in the reactive part of the residual.
func TestReactiveContribution(t *testing.T) {
	c := compileSource(t, `
module cap(p, n);
    inout p, n;
    electrical p, n;
    parameter real cval = 1e-12;
    analog I(p, n) <+ ddt(cval * V(p, n));
endmodule
`)
	f := c.Eval

	require.Len(t, c.Dae.Unknowns, 2)
	assert.NotEqual(t, mir.Value(mir.FZero), f.StripOptBarrier(c.Dae.Residuals[0].React),
		"the charge lands in the reactive residual")
	assert.Equal(t, mir.FZero, f.StripOptBarrier(c.Dae.Residuals[0].Resist),
		"a pure capacitor has no resistive part")
	assert.Equal(t, uint32(0), c.Dae.NumResistive)
	assert.Equal(t, uint32(2*2), c.Dae.NumReactive)
}

// idt introduces an implicit equation with its own simulation unknown.
func TestIntegralImplicitEquation(t *testing.T) {
	c := compileSource(t, `
module integ(p, n);
    inout p, n;
    electrical p, n;
    analog I(p, n) <+ idt(V(p, n));
endmodule
`)
	assert.Contains(t, unknownTags(c), UkImplicit)

	var row int
	for i, u := range c.Dae.Unknowns {
		if u.Tag == UkImplicit {
			row = i
		}
	}
	f := c.Eval
	assert.NotEqual(t, mir.Value(mir.FZero), f.StripOptBarrier(c.Dae.Residuals[row].React),
		"the implicit equation has a reactive part (du/dt)")
	assert.NotEqual(t, mir.Value(mir.FZero), f.StripOptBarrier(c.Dae.Residuals[row].Resist),
		"the implicit equation has a resistive part (-x)")
}

// White noise on a current branch scales with sqrt(mfactor).
func TestNoiseSourceMfactorScaling(t *testing.T) {
	c := compileSource(t, `
module noisy(p, n);
    inout p, n;
    electrical p, n;
    parameter real g = 1e-3;
    analog I(p, n) <+ g * V(p, n) + white_noise(4.0e-21 * g, "thermal");
endmodule
`)
	f := c.Eval

	require.Len(t, c.Dae.NoiseSources, 1)
	src := c.Dae.NoiseSources[0]
	assert.Equal(t, "thermal", src.Name)
	assert.Equal(t, NoiseWhite, src.Kind.Tag)
	assert.NotEqual(t, mir.NoValue, src.Kind.Pwr)

	// factor = sqrt(mfactor) since the contribution factor was 1
	factor := f.StripOptBarrier(src.Factor)
	def := f.DefInst(factor)
	require.NotEqual(t, mir.NoInst, def)
	assert.Equal(t, mir.OpSqrt, f.InstData(def).Op)
}

func TestSmallSignalForcedToZero(t *testing.T) {
	c := compileSource(t, `
module stim(p, n);
    inout p, n;
    electrical p, n;
    parameter real g = 1e-3;
    analog I(p, n) <+ g * V(p, n) + ac_stim(1.0);
endmodule
`)
	for i := range c.Dae.Residuals {
		assert.Equal(t, mir.Value(mir.FZero), c.Dae.Residuals[i].ResistSmallSignal,
			"small-signal parts never contribute the residual")
		assert.Equal(t, mir.Value(mir.FZero), c.Dae.Residuals[i].ReactSmallSignal)
	}
}

func TestLimitExitRhs(t *testing.T) {
	c := compileSource(t, `
module diode(a, c);
    inout a, c;
    electrical a, c;
    parameter real is = 1e-14;
    real vd;
    analog begin
        vd = $limit(V(a, c), "pnjlim", 0.025, 0.7);
        I(a, c) <+ is * (limexp(vd / 0.025) - 1.0);
    end
endmodule
`)
	f := c.Eval
	// the Kirchhoff rows depend on the limited voltage, so they carry a
	// non-trivial limit-exit right-hand side
	sawRhs := false
	for i := range c.Dae.Residuals {
		if f.StripOptBarrier(c.Dae.Residuals[i].ResistLimRhs) != mir.FZero {
			sawRhs = true
		}
	}
	assert.True(t, sawRhs, "limit observations must feed the lim RHS")
}

func TestCompiledModuleArtifacts(t *testing.T) {
	c := compileSource(t, `
module res(p, n);
    inout p, n;
    electrical p, n;
    (* instance *) parameter real r = 1.0 from (0:inf);
    analog I(p, n) <+ V(p, n) / r;
endmodule
`)
	require.NotNil(t, c.Eval)
	require.NotNil(t, c.Init)
	require.NotNil(t, c.ModelParamSetup)
	require.NoError(t, c.Eval.Validate())
	require.NoError(t, c.Init.Validate())
	require.NoError(t, c.ModelParamSetup.Validate())

	// the instance parameter appears in both setup functions
	assert.NotEmpty(t, c.InitIntern.Outputs)
	assert.NotEmpty(t, c.ModelParamIntern.Outputs)
}
