package semantic

import (
	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/hir"
)

// collectNodes gathers every net name: ports first (in header order), then
// internal nets introduced by discipline declarations or ground.
func (ma *moduleAnalyzer) collectNodes() {
	for _, name := range ma.src.Ports {
		if _, dup := ma.nodes[name]; dup {
			ma.a.errorAt(ma.src.Pos, errors.ErrorDuplicateDeclaration,
				"port '"+name+"' listed twice")
			continue
		}
		id := hir.NodeID(len(ma.m.Nodes))
		ma.m.Nodes = append(ma.m.Nodes, hir.Node{
			Name: name, Discipline: hir.NoDiscipline, IsPort: true,
		})
		ma.nodes[name] = id
	}
	ma.m.NumPorts = len(ma.m.Nodes)

	for _, item := range ma.src.Items {
		switch {
		case item.Net != nil:
			for _, name := range item.Net.Names {
				if _, ok := ma.nodes[name]; ok {
					continue
				}
				id := hir.NodeID(len(ma.m.Nodes))
				ma.m.Nodes = append(ma.m.Nodes, hir.Node{
					Name: name, Discipline: hir.NoDiscipline,
				})
				ma.nodes[name] = id
			}
		case item.Ground != nil:
			for _, name := range item.Ground.Names {
				if _, ok := ma.nodes[name]; ok {
					continue
				}
				id := hir.NodeID(len(ma.m.Nodes))
				ma.m.Nodes = append(ma.m.Nodes, hir.Node{
					Name: name, Discipline: hir.NoDiscipline,
				})
				ma.nodes[name] = id
			}
		}
	}
}

func (ma *moduleAnalyzer) collectDeclarations() {
	// parameters are pre-registered so a default referencing a later
	// parameter is reported as an illegal access rather than an unknown name
	for _, item := range ma.src.Items {
		if item.Param == nil {
			continue
		}
		d := item.Param
		if _, dup := ma.params[d.Name]; dup {
			ma.a.errorAt(d.Pos, errors.ErrorDuplicateDeclaration,
				"parameter '"+d.Name+"' already declared")
			continue
		}
		id := hir.ParamID(len(ma.m.Params))
		ma.m.Params = append(ma.m.Params, hir.Parameter{Name: d.Name})
		ma.params[d.Name] = id
	}

	for _, item := range ma.src.Items {
		switch {
		case item.Direction != nil:
			ma.directionDecl(item.Direction)
		case item.Net != nil:
			ma.netDecl(item.Net)
		case item.Ground != nil:
			for _, name := range item.Ground.Names {
				id := ma.nodes[name]
				ma.m.Nodes[id].IsGround = true
			}
		case item.Branch != nil:
			ma.branchDecl(item.Branch)
		case item.Param != nil:
			ma.paramDecl(item.Param)
		case item.Var != nil:
			ma.varDecl(item.Var)
		}
	}
}

func (ma *moduleAnalyzer) directionDecl(d *grammar.DirectionDecl) {
	dir := hir.DirInout
	switch d.Direction {
	case "input":
		dir = hir.DirInput
	case "output":
		dir = hir.DirOutput
	}
	for _, name := range d.Names {
		id, ok := ma.nodes[name]
		if !ok {
			ma.a.errorAt(d.Pos, errors.ErrorUnresolvedPath, "unknown net '"+name+"'")
			continue
		}
		node := &ma.m.Nodes[id]
		if !node.IsPort {
			ma.a.errorAt(d.Pos, errors.ErrorExpectedPort,
				"'"+name+"' is not a port of module "+ma.m.Name)
			continue
		}
		if node.Direction != hir.DirNone {
			ma.a.errorAt(d.Pos, errors.ErrorMultipleDirections,
				"port '"+name+"' already has a direction")
			continue
		}
		node.Direction = dir
	}
}

func (ma *moduleAnalyzer) netDecl(d *grammar.NetDecl) {
	disc := hir.NoDiscipline
	for i := range ma.m.Disciplines {
		if ma.m.Disciplines[i].Name == d.Discipline {
			disc = hir.DisciplineID(i)
			break
		}
	}
	if disc == hir.NoDiscipline {
		ma.a.errorAt(d.Pos, errors.ErrorUnresolvedPath,
			"unknown discipline '"+d.Discipline+"'")
		return
	}
	for _, name := range d.Names {
		id := ma.nodes[name]
		node := &ma.m.Nodes[id]
		if node.Discipline != hir.NoDiscipline {
			ma.a.errorAt(d.Pos, errors.ErrorMultipleDisciplines,
				"net '"+name+"' already has a discipline")
			continue
		}
		node.Discipline = disc
	}
}

func (ma *moduleAnalyzer) branchDecl(d *grammar.BranchDecl) {
	var proto hir.Branch
	switch {
	case d.Port != nil:
		port := ma.lookupNode(d.Pos, *d.Port)
		if port != hir.NoNode && !ma.m.Nodes[port].IsPort {
			ma.a.errorAt(d.Pos, errors.ErrorExpectedPort,
				"port-flow branch requires a port, '"+*d.Port+"' is an internal net")
		}
		proto = hir.Branch{Kind: hir.BranchPortFlow, Port: port}
	case d.Lo != nil:
		hi := ma.lookupNode(d.Pos, *d.Hi)
		lo := ma.lookupNode(d.Pos, *d.Lo)
		proto = hir.Branch{Kind: hir.BranchNodes, Hi: hi, Lo: lo}
	default:
		hi := ma.lookupNode(d.Pos, *d.Hi)
		proto = hir.Branch{Kind: hir.BranchNodeGnd, Hi: hi}
	}
	for _, name := range d.Names {
		if _, dup := ma.branches[name]; dup {
			ma.a.errorAt(d.Pos, errors.ErrorDuplicateDeclaration,
				"branch '"+name+"' already declared")
			continue
		}
		br := proto
		br.Name = name
		id := hir.BranchID(len(ma.m.Branches))
		ma.m.Branches = append(ma.m.Branches, br)
		ma.branches[name] = id
	}
}

func (ma *moduleAnalyzer) paramDecl(d *grammar.ParamDecl) {
	id, ok := ma.params[d.Name]
	if !ok {
		// duplicate reported during pre-registration
		return
	}
	ty := hir.TypeReal
	switch d.Type {
	case "integer":
		ty = hir.TypeInt
	case "string":
		ty = hir.TypeString
	}
	p := hir.Parameter{Name: d.Name, Type: ty}

	ctx := BodyCtx{Kind: CtxConst}
	p.Default = ma.expr(d.Default, ctx)
	for _, c := range d.Constraints {
		pc := hir.ParamConstraint{Exclude: c.Kind == "exclude"}
		if c.Range != nil {
			pc.Lo = ma.expr(c.Range.Lo, ctx)
			pc.Hi = ma.expr(c.Range.Hi, ctx)
			pc.LoInclusive = c.Range.LoBracket == "["
			pc.HiInclusive = c.Range.HiBracket == "]"
		} else {
			single := ma.expr(c.Single, ctx)
			pc.Lo, pc.Hi = single, single
			pc.LoInclusive, pc.HiInclusive = true, true
		}
		p.Constraints = append(p.Constraints, pc)
	}
	if d.Attrs != nil {
		for _, attr := range d.Attrs.Attrs {
			switch attr.Name {
			case "unit":
				if attr.Value != nil {
					p.Unit = ma.constString(attr.Value)
				}
			case "desc":
				if attr.Value != nil {
					p.Desc = ma.constString(attr.Value)
				}
			case "instance":
				p.IsInstance = true
			}
		}
	}

	ma.m.Params[id] = p
	ma.declaredParams++
}

func (ma *moduleAnalyzer) varDecl(d *grammar.VarDecl) {
	ty := hir.TypeReal
	switch d.Type {
	case "integer":
		ty = hir.TypeInt
	case "string":
		ty = hir.TypeString
	}
	for _, name := range d.Names {
		if _, dup := ma.vars[name]; dup {
			ma.a.errorAt(d.Pos, errors.ErrorDuplicateDeclaration,
				"variable '"+name+"' already declared")
			continue
		}
		id := hir.VarID(len(ma.m.Vars))
		ma.m.Vars = append(ma.m.Vars, hir.Variable{Name: name, Type: ty})
		ma.vars[name] = id
		ma.varPos[id] = d.Pos
	}
}

// checkNodes enforces the port/discipline completeness rules.
func (ma *moduleAnalyzer) checkNodes() {
	for i := range ma.m.Nodes {
		node := &ma.m.Nodes[i]
		if node.IsPort && node.Direction == hir.DirNone {
			ma.a.errorAt(ma.src.Pos, errors.ErrorPortWithoutDirection,
				"port '"+node.Name+"' has no direction declaration")
		}
		if node.Discipline == hir.NoDiscipline && !node.IsGround {
			ma.a.errorAt(ma.src.Pos, errors.ErrorNodeWithoutDiscipline,
				"net '"+node.Name+"' has no discipline")
		}
	}
}

func (ma *moduleAnalyzer) constString(e *grammar.Expr) string {
	id := ma.expr(e, BodyCtx{Kind: CtxConst})
	if id == hir.NoExpr {
		return ""
	}
	expr := ma.m.Analog.Expr(id)
	if expr.Kind == hir.ExprLitStr {
		return expr.SVal
	}
	return ""
}
