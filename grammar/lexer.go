package grammar

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var VerilogALexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{"Comment", `//[^\n]*`, nil},
		{"BlockComment", `/\*([^*]|\*+[^*/])*\*+/`, nil},

		// Attribute brackets (* ... *) are recognized before operators
		{"AttrOpen", `\(\*`, nil},
		{"AttrClose", `\*\)`, nil},

		// Numbers (order matters: reals with exponents/suffixes first)
		{"Real", `[0-9]+\.[0-9]+([eE][-+]?[0-9]+)?[TGMKkmunpfa]?|[0-9]+[eE][-+]?[0-9]+[TGMKkmunpfa]?|[0-9]+[TGMKkmunpfa]`, nil},
		{"Integer", `[0-9]+`, nil},

		// Identifiers; system identifiers keep their $ prefix
		{"SysIdent", `\$[a-zA-Z_][a-zA-Z0-9_$]*`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},

		// String literals
		{"String", `"(\\.|[^"\\])*"`, nil},

		// Contribution operator (before relational operators)
		{"Contrib", `<\+`, nil},

		// Operators
		{"Operator", `(\|\||&&|==|!=|<=|>=|\*\*|[-+*/%<>=!])`, nil},

		// Punctuation
		{"Punct", `[(),;:\[\]@.?]`, nil},

		// Whitespace
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
