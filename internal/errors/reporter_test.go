package errors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatErrorContainsCodeAndLocation(t *testing.T) {
	source := "module res(p, n);\n    analog I(p, n) <+ 1.0;\nendmodule\n"
	reporter := NewErrorReporter("res.va", source)

	out := reporter.FormatError(CompilerError{
		Level:    Error,
		Code:     ErrorNodeWithoutDiscipline,
		Message:  "net 'p' has no discipline",
		Position: Position{Line: 1, Column: 12},
		Length:   1,
	})

	assert.Contains(t, out, ErrorNodeWithoutDiscipline)
	assert.Contains(t, out, "res.va:1:12")
	assert.Contains(t, out, "net 'p' has no discipline")
	assert.Contains(t, out, "module res(p, n);")
}

func TestSortBySource(t *testing.T) {
	batch := []CompilerError{
		{Code: "E0001", Position: Position{Line: 7, Column: 2}},
		{Code: "E0002", Position: Position{Line: 2, Column: 9}},
		{Code: "E0003", Position: Position{Line: 2, Column: 1}},
	}
	SortBySource(batch)
	assert.Equal(t, "E0003", batch[0].Code)
	assert.Equal(t, "E0002", batch[1].Code)
	assert.Equal(t, "E0001", batch[2].Code)
}

func TestHasErrorsIgnoresWarnings(t *testing.T) {
	warningsOnly := []CompilerError{{Code: WarningUnusedVariable}}
	assert.False(t, HasErrors(warningsOnly))

	mixed := append(warningsOnly, CompilerError{Code: ErrorSyntax})
	assert.True(t, HasErrors(mixed))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.Equal(t, "Body Validation", GetErrorCategory(ErrorIllegalContribute))
	assert.Equal(t, "Parse", GetErrorCategory(ErrorSyntax))
	assert.Equal(t, "Name/Type Resolution", GetErrorCategory(ErrorUnresolvedPath))
	assert.Equal(t, "Internal", GetErrorCategory(ErrorInternalInvariant))
	assert.True(t, IsWarning(WarningUnusedVariable))
	assert.False(t, IsWarning(ErrorIllegalContribute))

	for _, code := range []string{
		ErrorIllegalContribute, ErrorIllegalCtxAccess, ErrorWriteToInputArg,
		ErrorIllegalParamAccess, ErrorExpectedPort, ErrorPotentialOfPortFlow,
		ErrorInvalidNodeDirection, ErrorConstSimparam,
	} {
		desc := GetErrorDescription(code)
		if strings.Contains(desc, "Unknown") {
			t.Errorf("taxonomy code %s has no description", code)
		}
	}
}
