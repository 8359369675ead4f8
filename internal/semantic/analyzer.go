// Package semantic resolves names, infers types and validates analog bodies,
// producing the hir model consumed by lowering. Diagnostics are collected per
// module and surfaced as a batch; a batch with errors aborts the module's
// compilation before IR lowering.
package semantic

import (
	"github.com/alecthomas/participle/v2/lexer"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/hir"
)

// Analyzer walks one compilation unit.
type Analyzer struct {
	errs []errors.CompilerError
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze builds the hir model for every module in the file. Modules whose
// diagnostics contain errors are still returned so tooling can inspect them;
// callers must check the batch before lowering.
func (a *Analyzer) Analyze(file *grammar.SourceFile) ([]*hir.Module, []errors.CompilerError) {
	var modules []*hir.Module
	for _, m := range file.Modules {
		ma := newModuleAnalyzer(a, m)
		modules = append(modules, ma.analyze())
	}
	errors.SortBySource(a.errs)
	return modules, a.errs
}

func (a *Analyzer) errorAt(pos lexer.Position, code, msg string) {
	a.errs = append(a.errs, errors.CompilerError{
		Level:    errors.Error,
		Code:     code,
		Message:  msg,
		Position: errors.Position{Line: pos.Line, Column: pos.Column},
		Length:   1,
	})
}

func (a *Analyzer) warnAt(pos lexer.Position, code, msg string) {
	a.errs = append(a.errs, errors.CompilerError{
		Level:    errors.Warning,
		Code:     code,
		Message:  msg,
		Position: errors.Position{Line: pos.Line, Column: pos.Column},
		Length:   1,
	})
}

// moduleAnalyzer carries the per-module symbol tables.
type moduleAnalyzer struct {
	a   *Analyzer
	src *grammar.Module
	m   *hir.Module

	nodes    map[string]hir.NodeID
	branches map[string]hir.BranchID
	params   map[string]hir.ParamID
	vars     map[string]hir.VarID

	// implicit branches deduplicated by node pair / port
	implicitPair map[[2]hir.NodeID]hir.BranchID
	implicitPort map[hir.NodeID]hir.BranchID

	usedVars map[hir.VarID]bool
	varPos   map[hir.VarID]lexer.Position

	// number of parameters declared so far; defaults may only look backwards
	declaredParams int
}

func newModuleAnalyzer(a *Analyzer, src *grammar.Module) *moduleAnalyzer {
	voltage := hir.Nature{Name: "Voltage", Access: "V", Units: "V", Abstol: 1e-6}
	current := hir.Nature{Name: "Current", Access: "I", Units: "A", Abstol: 1e-12}
	m := &hir.Module{
		Name:    src.Name,
		Natures: []hir.Nature{voltage, current},
		Disciplines: []hir.Discipline{{
			Name:      "electrical",
			Potential: 0,
			Flow:      1,
		}},
	}
	return &moduleAnalyzer{
		a:            a,
		src:          src,
		m:            m,
		nodes:        make(map[string]hir.NodeID),
		branches:     make(map[string]hir.BranchID),
		params:       make(map[string]hir.ParamID),
		vars:         make(map[string]hir.VarID),
		implicitPair: make(map[[2]hir.NodeID]hir.BranchID),
		implicitPort: make(map[hir.NodeID]hir.BranchID),
		usedVars:     make(map[hir.VarID]bool),
		varPos:       make(map[hir.VarID]lexer.Position),
	}
}

func (ma *moduleAnalyzer) analyze() *hir.Module {
	ma.collectNodes()
	ma.collectDeclarations()
	ma.checkNodes()
	for _, item := range ma.src.Items {
		if item.Analog != nil {
			ctx := BodyCtx{Kind: CtxAnalog}
			root := ma.stmt(item.Analog.Body, ctx)
			if root != hir.NoStmt {
				ma.m.Analog.Entry = append(ma.m.Analog.Entry, root)
			}
		}
	}
	for id := range ma.m.Vars {
		if !ma.usedVars[hir.VarID(id)] {
			ma.a.warnAt(ma.varPos[hir.VarID(id)], errors.WarningUnusedVariable,
				"variable '"+ma.m.Vars[id].Name+"' is never used")
		}
	}
	return ma.m
}

// lookupNode resolves a node name, reporting an unresolved path otherwise.
func (ma *moduleAnalyzer) lookupNode(pos lexer.Position, name string) hir.NodeID {
	if id, ok := ma.nodes[name]; ok {
		return id
	}
	ma.a.errorAt(pos, errors.ErrorUnresolvedPath, "unknown net '"+name+"'")
	return hir.NoNode
}

// implicitBranch materializes the branch behind an unnamed nature access.
func (ma *moduleAnalyzer) implicitBranch(hi, lo hir.NodeID) hir.BranchID {
	key := [2]hir.NodeID{hi, lo}
	if id, ok := ma.implicitPair[key]; ok {
		return id
	}
	br := hir.Branch{Kind: hir.BranchNodes, Hi: hi, Lo: lo, Implicit: true}
	if lo == hir.NoNode {
		br.Kind = hir.BranchNodeGnd
	}
	id := hir.BranchID(len(ma.m.Branches))
	ma.m.Branches = append(ma.m.Branches, br)
	ma.implicitPair[key] = id
	return id
}

func (ma *moduleAnalyzer) portFlowBranch(port hir.NodeID) hir.BranchID {
	if id, ok := ma.implicitPort[port]; ok {
		return id
	}
	id := hir.BranchID(len(ma.m.Branches))
	ma.m.Branches = append(ma.m.Branches, hir.Branch{
		Kind: hir.BranchPortFlow, Port: port, Implicit: true,
	})
	ma.implicitPort[port] = id
	return id
}
