package grammar

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"vamc/internal/errors"
)

var parser = participle.MustBuild[SourceFile](
	participle.Lexer(VerilogALexer),
	participle.Elide("Whitespace", "Comment", "BlockComment"),
	// Contribution targets look like calls until the <+ token; give the
	// parser enough lookahead to tell them from assignments and tasks.
	participle.UseLookahead(8),
)

// ParseSource parses a Verilog-A compilation unit. Parse failures surface as
// diagnostics; a nil file means the unit cannot be compiled further.
func ParseSource(filename, source string) (*SourceFile, []errors.CompilerError) {
	file, err := parser.ParseString(filename, source)
	if err != nil {
		return nil, []errors.CompilerError{convertParseError(err)}
	}
	return file, nil
}

func convertParseError(err error) errors.CompilerError {
	if pe, ok := err.(participle.Error); ok {
		pos := pe.Position()
		return errors.CompilerError{
			Level:    errors.Error,
			Code:     errors.ErrorSyntax,
			Message:  pe.Message(),
			Position: errors.Position{Line: pos.Line, Column: pos.Column},
			Length:   1,
		}
	}
	return errors.CompilerError{
		Level:   errors.Error,
		Code:    errors.ErrorSyntax,
		Message: err.Error(),
	}
}

var scaleFactors = map[byte]float64{
	'T': 1e12, 'G': 1e9, 'M': 1e6, 'K': 1e3, 'k': 1e3,
	'm': 1e-3, 'u': 1e-6, 'n': 1e-9, 'p': 1e-12, 'f': 1e-15, 'a': 1e-18,
}

// ParseRealLiteral evaluates a real literal including Verilog-A scale
// suffixes (1.5k, 2n, 3u, ...).
func ParseRealLiteral(lit string) (float64, error) {
	if lit == "" {
		return 0, strconv.ErrSyntax
	}
	last := lit[len(lit)-1]
	if factor, ok := scaleFactors[last]; ok {
		base, err := strconv.ParseFloat(lit[:len(lit)-1], 64)
		if err != nil {
			return 0, err
		}
		return base * factor, nil
	}
	return strconv.ParseFloat(lit, 64)
}

// UnquoteString strips quotes and resolves escapes of a string literal token.
func UnquoteString(lit string) string {
	s, err := strconv.Unquote(lit)
	if err != nil {
		return strings.Trim(lit, `"`)
	}
	return s
}
