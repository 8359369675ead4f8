package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResistorModule(t *testing.T) {
	source := `
module res(p, n);
    inout p, n;
    electrical p, n;
    branch (p, n) b;
    parameter real r = 1k from (0:inf);
    analog I(b) <+ V(b) / r;
endmodule
`
	file, diags := ParseSource("res.va", source)
	require.Empty(t, diags, "resistor module should parse cleanly")
	require.Len(t, file.Modules, 1)

	m := file.Modules[0]
	assert.Equal(t, "res", m.Name)
	assert.Equal(t, []string{"p", "n"}, m.Ports)

	var sawBranch, sawParam, sawAnalog bool
	for _, item := range m.Items {
		if item.Branch != nil {
			sawBranch = true
			assert.Equal(t, []string{"b"}, item.Branch.Names)
		}
		if item.Param != nil {
			sawParam = true
			assert.Equal(t, "r", item.Param.Name)
			require.Len(t, item.Param.Constraints, 1)
			assert.Equal(t, "from", item.Param.Constraints[0].Kind)
			require.NotNil(t, item.Param.Constraints[0].Range)
		}
		if item.Analog != nil {
			sawAnalog = true
			require.NotNil(t, item.Analog.Body.Contribute)
			assert.Equal(t, "I", item.Analog.Body.Contribute.Access.Name)
		}
	}
	assert.True(t, sawBranch, "branch declaration should be parsed")
	assert.True(t, sawParam, "parameter declaration should be parsed")
	assert.True(t, sawAnalog, "analog block should be parsed")
}

func TestParseCaseStatement(t *testing.T) {
	source := `
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
`
	file, diags := ParseSource("case.va", source)
	require.Empty(t, diags)
	require.Len(t, file.Modules, 1)

	var caseStmt *CaseStmt
	for _, item := range file.Modules[0].Items {
		if item.Analog != nil {
			caseStmt = item.Analog.Body.Case
		}
	}
	require.NotNil(t, caseStmt, "the analog body is a case statement")
	require.Len(t, caseStmt.Items, 3)
	assert.Len(t, caseStmt.Items[0].Vals, 1)
	assert.Len(t, caseStmt.Items[1].Vals, 3)
	assert.True(t, caseStmt.Items[2].Default)
}

func TestParsePortFlowProbe(t *testing.T) {
	source := `
module probe(p);
    inout p;
    electrical p;
    real x;
    analog x = I(<p>);
endmodule
`
	file, diags := ParseSource("probe.va", source)
	require.Empty(t, diags)

	var assign *AssignStmt
	for _, item := range file.Modules[0].Items {
		if item.Analog != nil {
			assign = item.Analog.Body.Assign
		}
	}
	require.NotNil(t, assign)
}

func TestParseConditionalContribution(t *testing.T) {
	source := `
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
`
	file, diags := ParseSource("sw.va", source)
	require.Empty(t, diags)

	var ifStmt *IfStmt
	for _, item := range file.Modules[0].Items {
		if item.Analog != nil {
			ifStmt = item.Analog.Body.If
		}
	}
	require.NotNil(t, ifStmt)
	require.NotNil(t, ifStmt.Then.Contribute)
	require.NotNil(t, ifStmt.Else.Contribute)
	assert.Equal(t, "I", ifStmt.Then.Contribute.Access.Name)
	assert.Equal(t, "V", ifStmt.Else.Contribute.Access.Name)
}

func TestParseErrorHasPosition(t *testing.T) {
	_, diags := ParseSource("broken.va", "module ; garbage")
	require.NotEmpty(t, diags)
	assert.NotZero(t, diags[0].Position.Line)
}

func TestParseRealLiterals(t *testing.T) {
	cases := map[string]float64{
		"1.5":   1.5,
		"1k":    1e3,
		"2.5u":  2.5e-6,
		"3n":    3e-9,
		"1e3":   1000,
		"1.0e3": 1000,
		"4p":    4e-12,
	}
	for lit, want := range cases {
		got, err := ParseRealLiteral(lit)
		require.NoError(t, err, lit)
		assert.InDelta(t, want, got, want*1e-12, lit)
	}
}
