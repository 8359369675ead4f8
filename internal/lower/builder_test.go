package lower

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

func lowerSource(t *testing.T, source string) (*mir.Function, *Interner, *MirBuilder, *hir.Module) {
	t.Helper()
	file, parseDiags := grammar.ParseSource("test.va", source)
	require.Empty(t, parseDiags)
	analyzer := semantic.NewAnalyzer()
	modules, diags := analyzer.Analyze(file)
	require.False(t, errors.HasErrors(diags), "diagnostics: %v", diags)
	require.Len(t, modules, 1)

	b := NewMirBuilder(modules[0], func(Place) bool { return true })
	f, intern := b.Build()
	require.NoError(t, f.Validate())
	return f, intern, b, modules[0]
}

func countOps(f *mir.Function, op mir.Opcode) int {
	n := 0
	for _, b := range f.Layout() {
		for _, i := range f.BlockInsts(b) {
			if f.InstData(i).Op == op {
				n++
			}
		}
	}
	return n
}

// Scenario: case lowering produces one block per arm, a join block with one
// phi per assigned variable carrying three incoming edges, an ifcast in the
// default arm, and abs lowered to a compare/negate/phi diamond.
func TestCasePhiLowering(t *testing.T) {
	f, _, _, _ := lowerSource(t, `
module test;
    parameter integer foo = 0;
    parameter integer bar = 0;
    real x;
    real y;
    analog case(abs(foo)+bar)
        0: x = 3.141;
        1,2,3: begin
            x = foo / 3.141;
            y = sin(x);
        end
        default: x = 0;
    endcase
endmodule
`)

	// abs(foo): ilt + ineg + two-way phi
	assert.Equal(t, 1, countOps(f, mir.OpIlt), "abs lowers to an integer compare")
	assert.Equal(t, 1, countOps(f, mir.OpIneg))

	// selector comparisons: 0, 1, 2, 3
	assert.Equal(t, 4, countOps(f, mir.OpIeq))

	// the default arm casts the integer constant zero
	assert.GreaterOrEqual(t, countOps(f, mir.OpIFCast), 2,
		"foo / 3.141 and the default assignment both need int->real casts")

	// find the case join block: it carries phis with three incoming edges
	var joinPhis []mir.Inst
	for _, b := range f.Layout() {
		for _, i := range f.BlockInsts(b) {
			d := f.InstData(i)
			if d.Op == mir.OpPhi && len(d.Args) == 3 {
				joinPhis = append(joinPhis, i)
			}
		}
	}
	require.Len(t, joinPhis, 2, "one three-edge phi per assigned variable")
	for _, i := range joinPhis {
		d := f.InstData(i)
		seen := make(map[mir.Block]bool)
		for _, e := range d.Blocks {
			seen[e] = true
		}
		assert.Len(t, seen, 3, "phi edges are labelled by the three arm blocks")
	}
}

func TestInternerIdentity(t *testing.T) {
	f, intern, _, m := lowerSource(t, `
module res(p, n);
    inout p, n;
    electrical p, n;
    parameter real g = 1.0;
    analog I(p, n) <+ g * V(p, n) + g * V(p, n);
endmodule
`)

	// the same kind always maps to the same placeholder value
	v1 := intern.EnsureParam(f, ParamKindVoltage(0, 1))
	v2 := intern.EnsureParam(f, ParamKindVoltage(0, 1))
	assert.Equal(t, v1, v2)

	g := hir.ParamID(0)
	p1 := intern.EnsureParam(f, ParamKindParam(g))
	p2 := intern.EnsureParam(f, ParamKindParam(g))
	assert.Equal(t, p1, p2)

	kind, ok := intern.ParamKindOf(v1)
	require.True(t, ok)
	assert.Equal(t, PKVoltage, kind.Tag)

	// live params: g and V(p,n) are read, nothing else
	var sawParam, sawVoltage bool
	for _, kv := range intern.LiveParams(f) {
		switch kv.Kind.Tag {
		case PKParam:
			sawParam = true
		case PKVoltage:
			sawVoltage = true
		}
	}
	assert.True(t, sawParam)
	assert.True(t, sawVoltage)
	_ = m
}

func TestContributionOutputsAnchored(t *testing.T) {
	f, intern, b, _ := lowerSource(t, `
module res(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) br;
    analog I(br) <+ 1e-3 * V(br);
endmodule
`)

	require.Len(t, b.Contributed, 1)
	branch := b.Contributed[0]

	for _, tag := range []PlaceTag{PlaceBranchCurrent, PlaceBranchVoltage, PlaceIsVoltageSrc} {
		v, ok := intern.Outputs[Place{Tag: tag, Branch: branch}]
		require.True(t, ok, "contribution place %d must be an output", tag)
		def := f.DefInst(v)
		require.NotEqual(t, mir.NoInst, def)
		assert.Equal(t, mir.OpOptBarrier, f.InstData(def).Op)
		assert.True(t, f.Outputs[v], "outputs are anchored against DCE")
	}

	// a pure current contribution leaves the selector at constant FALSE
	sel := f.StripOptBarrier(intern.Outputs[Place{Tag: PlaceIsVoltageSrc, Branch: branch}])
	assert.Equal(t, mir.False, sel)
}

func TestConditionalContributionMergesWithPhi(t *testing.T) {
	f, intern, b, _ := lowerSource(t, `
module sw(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) br;
    parameter integer off = 0;
    analog if (off)
        I(br) <+ 0.0;
    else
        V(br) <+ 0.0;
endmodule
`)

	require.Len(t, b.Contributed, 1)
	sel := f.StripOptBarrier(intern.Outputs[Place{Tag: PlaceIsVoltageSrc, Branch: b.Contributed[0]}])
	def := f.DefInst(sel)
	require.NotEqual(t, mir.NoInst, def, "the selector must be a runtime value")
	assert.Equal(t, mir.OpPhi, f.InstData(def).Op,
		"a conditional voltage/current split merges the selector with a phi")
}

func TestWhileLoopHeaderPhis(t *testing.T) {
	f, _, _, _ := lowerSource(t, `
module acc(p, n);
    inout p, n;
    electrical p, n;
    integer i;
    real sum;
    analog begin
        sum = 0.0;
        i = 0;
        while (i < 4) begin
            sum = sum + V(p, n);
            i = i + 1;
        end
        I(p, n) <+ sum;
    end
endmodule
`)
	// both loop-carried places get a header phi
	assert.GreaterOrEqual(t, countOps(f, mir.OpPhi), 2)
	require.NoError(t, f.Validate())
}

func TestLimitStateRecorded(t *testing.T) {
	f, intern, _, _ := lowerSource(t, `
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
	require.Len(t, intern.LimStates, 1)
	state := intern.LimStates[0]
	require.Len(t, state.Vals, 1)
	// the new state is a fresh input value distinct from the baseline
	assert.NotEqual(t, state.Unchanged, state.Vals[0].Val)
	assert.True(t, f.IsParam(state.Vals[0].Val))
}

func TestParamInitFunction(t *testing.T) {
	_, _, _, m := lowerSource(t, `
module res(p, n);
    inout p, n;
    electrical p, n;
    parameter real r = 1.0 from (0:inf);
    parameter real g = 1.0 / r;
    analog I(p, n) <+ g * V(p, n);
endmodule
`)

	f, intern := BuildParamInit(m, "res_model_params", []hir.ParamID{0, 1})
	require.NoError(t, f.Validate())

	// every parameter has an anchored output
	for _, p := range []hir.ParamID{0, 1} {
		v, ok := intern.Outputs[Place{Tag: PlaceParam, Param: p}]
		require.True(t, ok)
		def := f.DefInst(v)
		require.NotEqual(t, mir.NoInst, def)
		assert.Equal(t, mir.OpOptBarrier, f.InstData(def).Op)
	}

	// the range constraint produces a guarded report call
	sawInvalid := false
	for _, b := range f.Layout() {
		for _, i := range f.BlockInsts(b) {
			d := f.InstData(i)
			if d.Op == mir.OpCall && f.Signature(d.Callee).Name == "invalid_parameter" {
				sawInvalid = true
			}
		}
	}
	assert.True(t, sawInvalid, "constraint violations report through a side-effecting call")

	// defaults read initialized values, not fresh placeholders: g's default
	// divides by the select of r, so only ParamGiven/Param inputs exist
	for _, kv := range intern.Params() {
		assert.Contains(t, []ParamKindTag{PKParam, PKParamGiven}, kv.Kind.Tag)
	}
}
