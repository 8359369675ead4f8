package semantic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/hir"
)

func analyzeSource(t *testing.T, source string) ([]*hir.Module, []errors.CompilerError) {
	t.Helper()
	file, parseDiags := grammar.ParseSource("test.va", source)
	require.Empty(t, parseDiags, "test source should parse")
	analyzer := NewAnalyzer()
	return analyzer.Analyze(file)
}

func hasCode(diags []errors.CompilerError, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestResistorEntities(t *testing.T) {
	modules, diags := analyzeSource(t, `
module res(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) b;
    parameter real r = 1.0 from (0:inf);
    analog I(b) <+ V(b) / r;
endmodule
`)
	assert.False(t, errors.HasErrors(diags), "diagnostics: %v", diags)
	require.Len(t, modules, 1)

	m := modules[0]
	assert.Equal(t, 2, m.NumPorts)
	require.Len(t, m.Nodes, 2)
	assert.Equal(t, hir.DirInout, m.Nodes[0].Direction)
	require.Len(t, m.Branches, 1)
	assert.Equal(t, hir.BranchNodes, m.Branches[0].Kind)
	require.Len(t, m.Params, 1)
	assert.Equal(t, hir.TypeReal, m.Params[0].Type)
	require.Len(t, m.Params[0].Constraints, 1)
	assert.False(t, m.Params[0].Constraints[0].Exclude)
	require.Len(t, m.Analog.Entry, 1)
}

func TestImplicitBranchDeduplication(t *testing.T) {
	modules, diags := analyzeSource(t, `
module two(p, n);
    inout p, n;
    electrical p, n;
    analog begin
        I(p, n) <+ 1.0;
        I(p, n) <+ 2.0;
    end
endmodule
`)
	assert.False(t, errors.HasErrors(diags))
	// both contributions target the same implicit branch
	require.Len(t, modules[0].Branches, 1)
	assert.True(t, modules[0].Branches[0].Implicit)
}

func TestPortWithoutDirection(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p);
    electrical p;
    analog V(p) <+ 0.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorPortWithoutDirection))
}

func TestNodeWithoutDiscipline(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p);
    inout p;
    analog V(p) <+ 0.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorNodeWithoutDiscipline))
}

func TestMultipleDirections(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p);
    inout p;
    input p;
    electrical p;
    analog V(p) <+ 0.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorMultipleDirections))
}

func TestDirectionOnInternalNet(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p);
    inout p;
    electrical p, mid;
    inout mid;
    analog V(p) <+ 0.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorExpectedPort))
}

func TestIllegalParamAccess(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad;
    parameter real a = b * 2.0;
    parameter real b = 1.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorIllegalParamAccess))
}

func TestParamForwardReferenceInBody(t *testing.T) {
	_, diags := analyzeSource(t, `
module ok(p, n);
    inout p, n;
    electrical p, n;
    parameter real a = 1.0;
    parameter real b = 2.0;
    analog I(p, n) <+ a * b;
endmodule
`)
	assert.False(t, errors.HasErrors(diags), "reading any parameter in the analog block is legal")
}

func TestPotentialOfPortFlow(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p);
    inout p;
    electrical p;
    real x;
    analog x = V(<p>);
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorPotentialOfPortFlow))
}

func TestContributeToInputPort(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p, n);
    input p;
    inout n;
    electrical p, n;
    analog I(p, n) <+ 1.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorInvalidNodeDirection))
}

func TestNatureAccessInConstContext(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p, n);
    inout p, n;
    electrical p, n;
    parameter real r = V(p, n);
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorIllegalCtxAccess))
}

func TestConstSimparamWhitelist(t *testing.T) {
	_, diags := analyzeSource(t, `
module ok;
    parameter real t0 = $simparam("tnom");
endmodule
`)
	assert.False(t, hasCode(diags, errors.ErrorConstSimparam),
		"tnom is a whitelisted constant simparam")

	_, diags = analyzeSource(t, `
module bad;
    parameter real g = $simparam("gmin");
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorConstSimparam))
}

func TestAnalogOperatorInLoop(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p, n);
    inout p, n;
    electrical p, n;
    integer i;
    real q;
    analog begin
        i = 0;
        while (i < 3) begin
            q = ddt(V(p, n));
            i = i + 1;
        end
    end
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorIllegalCtxAccess))
}

func TestUnresolvedNet(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p);
    inout p;
    electrical p;
    analog V(p, q) <+ 0.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorUnresolvedPath))
}

func TestAssignToParameter(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad;
    parameter real r = 1.0;
    analog r = 2.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorWrongKind))
}

func TestDuplicateParameter(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad;
    parameter real r = 1.0;
    parameter real r = 2.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.ErrorDuplicateDeclaration))
}

func TestUnusedVariableWarning(t *testing.T) {
	_, diags := analyzeSource(t, `
module warned(p, n);
    inout p, n;
    electrical p, n;
    real unused;
    analog I(p, n) <+ 0.0;
endmodule
`)
	assert.True(t, hasCode(diags, errors.WarningUnusedVariable))
	assert.False(t, errors.HasErrors(diags), "a warning alone must not abort compilation")
}

func TestDiagnosticsSortedBySource(t *testing.T) {
	_, diags := analyzeSource(t, `
module bad(p);
    inout p;
    electrical p;
    real x;
    analog begin
        x = unknown_a;
        x = unknown_b;
    end
endmodule
`)
	require.GreaterOrEqual(t, len(diags), 2)
	for i := 1; i < len(diags); i++ {
		if diags[i].Position.Line < diags[i-1].Position.Line {
			t.Error("diagnostics must be ordered by source position")
		}
	}
}
