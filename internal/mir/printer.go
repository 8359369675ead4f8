package mir

import (
	"fmt"
	"strconv"
	"strings"
)

// Print renders the function in the textual IR form accepted by ParseFunction.
// Constants are declared in a header section; only constants actually read by
// a placed instruction are printed.
func Print(f *Function) string {
	var sb strings.Builder

	sb.WriteString("function %")
	sb.WriteString(f.Name)
	sb.WriteString("(")
	for n, p := range f.params {
		if n > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "v%d", p)
	}
	sb.WriteString(") {\n")

	used := make([]bool, len(f.values))
	for i := range f.insts {
		if f.instBlock[i] == NoBlock {
			continue
		}
		for _, a := range f.insts[i].Args {
			used[a] = true
		}
	}
	for v := range f.values {
		if !used[v] || f.values[v].kind != valConst {
			continue
		}
		fmt.Fprintf(&sb, "    v%d = %s\n", v, formatConst(&f.values[v]))
	}

	for _, b := range f.layout {
		fmt.Fprintf(&sb, "\nblock%d:\n", b)
		for _, i := range f.blocks[b].insts {
			sb.WriteString("    ")
			sb.WriteString(formatInst(f, i))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

func formatConst(d *valueData) string {
	switch d.ty {
	case TyReal:
		return "fconst " + strconv.FormatFloat(d.f, 'x', -1, 64)
	case TyInt:
		return "iconst " + strconv.FormatInt(d.i, 10)
	case TyBool:
		if d.b {
			return "bconst true"
		}
		return "bconst false"
	case TyStr:
		return "sconst " + strconv.Quote(d.s)
	}
	return "?"
}

func formatInst(f *Function, i Inst) string {
	d := &f.insts[i]
	var sb strings.Builder
	if d.Loc >= 0 {
		fmt.Fprintf(&sb, "@%04x ", d.Loc)
	}
	if len(d.Results) > 0 {
		for n, r := range d.Results {
			if n > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "v%d", r)
		}
		sb.WriteString(" = ")
	}
	switch d.Op {
	case OpPhi:
		sb.WriteString("phi ")
		for n := range d.Args {
			if n > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[v%d, block%d]", d.Args[n], d.Blocks[n])
		}
	case OpBr:
		fmt.Fprintf(&sb, "br v%d, block%d, block%d", d.Args[0], d.Blocks[0], d.Blocks[1])
	case OpJmp:
		fmt.Fprintf(&sb, "jmp block%d", d.Blocks[0])
	case OpCall:
		fmt.Fprintf(&sb, "call %%%s(", f.sigs[d.Callee].Name)
		for n, a := range d.Args {
			if n > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "v%d", a)
		}
		sb.WriteString(")")
	default:
		sb.WriteString(d.Op.String())
		for n, a := range d.Args {
			if n > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " v%d", a)
		}
	}
	return sb.String()
}
