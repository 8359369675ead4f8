package grammar

import "github.com/alecthomas/participle/v2/lexer"

// Parse tree of the Verilog-A subset. The semantic pass turns this into the
// validated hir model; nothing here carries type information.

type SourceFile struct {
	Modules []*Module `@@*`
}

type Module struct {
	Pos   lexer.Position
	Name  string        `"module" @Ident`
	Ports []string      `[ "(" [ @Ident { "," @Ident } ] ")" ] ";"`
	Items []*ModuleItem `@@*`
	End   string        `"endmodule"`
}

type ModuleItem struct {
	Direction *DirectionDecl `  @@`
	Ground    *GroundDecl    `| @@`
	Branch    *BranchDecl    `| @@`
	Param     *ParamDecl     `| @@`
	Var       *VarDecl       `| @@`
	Analog    *AnalogBlock   `| @@`
	Net       *NetDecl       `| @@`
}

type DirectionDecl struct {
	Pos       lexer.Position
	Direction string   `@("input" | "output" | "inout")`
	Names     []string `@Ident { "," @Ident } ";"`
}

// NetDecl attaches a discipline to nets: `electrical a, b;`
type NetDecl struct {
	Pos        lexer.Position
	Discipline string   `@Ident`
	Names      []string `@Ident { "," @Ident } ";"`
}

type GroundDecl struct {
	Pos   lexer.Position
	Names []string `"ground" @Ident { "," @Ident } ";"`
}

type BranchDecl struct {
	Pos   lexer.Position
	Port  *string  `"branch" "(" ( "<" @Ident ">"`
	Hi    *string  `| @Ident`
	Lo    *string  `[ "," @Ident ] ) ")"`
	Names []string `@Ident { "," @Ident } ";"`
}

type Attr struct {
	Name  string `@Ident`
	Value *Expr  `[ "=" @@ ]`
}

type AttrSpec struct {
	Attrs []*Attr `AttrOpen @@ { "," @@ } AttrClose`
}

type ParamDecl struct {
	Pos         lexer.Position
	Attrs       *AttrSpec     `[ @@ ]`
	Type        string        `"parameter" @("real" | "integer" | "string")`
	Name        string        `@Ident`
	Default     *Expr         `"=" @@`
	Constraints []*Constraint `{ @@ } ";"`
}

type Constraint struct {
	Pos    lexer.Position
	Kind   string     `@("from" | "exclude")`
	Range  *RangeSpec `( @@`
	Single *Expr      `| @@ )`
}

type RangeSpec struct {
	LoBracket string `@("(" | "[")`
	Lo        *Expr  `@@ ":"`
	Hi        *Expr  `@@`
	HiBracket string `@(")" | "]")`
}

type VarDecl struct {
	Pos   lexer.Position
	Type  string   `@("real" | "integer" | "string")`
	Names []string `@Ident { "," @Ident } ";"`
}

type AnalogBlock struct {
	Pos  lexer.Position
	Body *Stmt `"analog" @@`
}

type Stmt struct {
	Block      *BlockStmt      `  @@`
	If         *IfStmt         `| @@`
	Case       *CaseStmt       `| @@`
	While      *WhileStmt      `| @@`
	For        *ForStmt        `| @@`
	Contribute *ContributeStmt `| @@`
	Assign     *AssignStmt     `| @@`
	Task       *TaskStmt       `| @@`
}

type BlockStmt struct {
	Pos   lexer.Position
	Stmts []*Stmt `"begin" { @@ } "end"`
}

type IfStmt struct {
	Pos  lexer.Position
	Cond *Expr `"if" "(" @@ ")"`
	Then *Stmt `@@`
	Else *Stmt `[ "else" @@ ]`
}

type CaseStmt struct {
	Pos   lexer.Position
	Scrut *Expr       `"case" "(" @@ ")"`
	Items []*CaseItem `{ @@ } "endcase"`
}

type CaseItem struct {
	Pos     lexer.Position
	Default bool    `( @"default" [ ":" ]`
	Vals    []*Expr `| @@ { "," @@ } ":" )`
	Body    *Stmt   `@@`
}

type WhileStmt struct {
	Pos  lexer.Position
	Cond *Expr `"while" "(" @@ ")"`
	Body *Stmt `@@`
}

type ForStmt struct {
	Pos  lexer.Position
	Init *AssignNoSemi `"for" "(" @@ ";"`
	Cond *Expr         `@@ ";"`
	Step *AssignNoSemi `@@ ")"`
	Body *Stmt         `@@`
}

type ContributeStmt struct {
	Pos    lexer.Position
	Access *Call `@@ Contrib`
	Rhs    *Expr `@@ ";"`
}

type AssignStmt struct {
	Pos    lexer.Position
	Target string `@Ident "="`
	Value  *Expr  `@@ ";"`
}

type AssignNoSemi struct {
	Pos    lexer.Position
	Target string `@Ident "="`
	Value  *Expr  `@@`
}

type TaskStmt struct {
	Pos  lexer.Position
	Name string  `@SysIdent`
	Args []*Expr `[ "(" [ @@ { "," @@ } ] ")" ] ";"`
}

// Expressions, layered by precedence the way hand-written Pratt tables order
// them.

type Expr struct {
	Pos  lexer.Position
	Cond *OrExpr `@@`
	Then *Expr   `[ "?" @@`
	Else *Expr   `":" @@ ]`
}

type OrExpr struct {
	Lhs *AndExpr `@@`
	Ops []*OrOp  `{ @@ }`
}

type OrOp struct {
	Op  string   `@"||"`
	Rhs *AndExpr `@@`
}

type AndExpr struct {
	Lhs *CmpExpr `@@`
	Ops []*AndOp `{ @@ }`
}

type AndOp struct {
	Op  string   `@"&&"`
	Rhs *CmpExpr `@@`
}

type CmpExpr struct {
	Lhs *AddExpr `@@`
	Ops []*CmpOp `{ @@ }`
}

type CmpOp struct {
	Op  string   `@("==" | "!=" | "<=" | ">=" | "<" | ">")`
	Rhs *AddExpr `@@`
}

type AddExpr struct {
	Lhs *MulExpr `@@`
	Ops []*AddOp `{ @@ }`
}

type AddOp struct {
	Op  string   `@("+" | "-")`
	Rhs *MulExpr `@@`
}

type MulExpr struct {
	Lhs *PowExpr `@@`
	Ops []*MulOp `{ @@ }`
}

type MulOp struct {
	Op  string   `@("*" | "/" | "%")`
	Rhs *PowExpr `@@`
}

type PowExpr struct {
	Lhs *UnaryExpr `@@`
	Ops []*PowOp   `{ @@ }`
}

type PowOp struct {
	Op  string     `@"**"`
	Rhs *UnaryExpr `@@`
}

type UnaryExpr struct {
	Pos     lexer.Position
	Op      *string  `[ @("-" | "+" | "!") ]`
	Primary *Primary `@@`
}

type Primary struct {
	Pos   lexer.Position
	Real  *string `  @Real`
	Int   *string `| @Integer`
	Str   *string `| @String`
	Call  *Call   `| @@`
	Ident *string `| @Ident`
	Paren *Expr   `| "(" @@ ")"`
}

// Call covers builtin calls, nature accesses V(a,b)/I(br), and port-flow
// probes I(<p>).
type Call struct {
	Pos  lexer.Position
	Name string  `@(SysIdent | Ident) "("`
	Port *string `( "<" @Ident ">"`
	Args []*Expr `| [ @@ { "," @@ } ] ) ")"`
}
