package mir

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseFunction reads the textual IR form emitted by Print back into a
// function. Value and block ids follow the printed names, so printing the
// parsed function reproduces the input text.
func ParseFunction(src string) (*Function, error) {
	p := &irParser{f: NewFunction("")}
	for lineno, raw := range strings.Split(src, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if err := p.line(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno+1, err)
		}
	}
	if !p.sawHeader {
		return nil, fmt.Errorf("missing function header")
	}
	return p.f, nil
}

type irParser struct {
	f         *Function
	sawHeader bool
	curBlock  Block
	haveBlock bool
}

func (p *irParser) line(line string) error {
	switch {
	case strings.HasPrefix(line, "function %"):
		return p.header(line)
	case line == "}":
		return nil
	case strings.HasPrefix(line, "block") && strings.HasSuffix(line, ":"):
		return p.blockLabel(line)
	default:
		return p.inst(line)
	}
}

func (p *irParser) header(line string) error {
	rest := strings.TrimPrefix(line, "function %")
	open := strings.Index(rest, "(")
	close_ := strings.LastIndex(rest, ")")
	if open < 0 || close_ < open {
		return fmt.Errorf("malformed header %q", line)
	}
	p.f.Name = rest[:open]
	params := strings.TrimSpace(rest[open+1 : close_])
	if params != "" {
		for _, tok := range strings.Split(params, ",") {
			v, err := p.valueName(strings.TrimSpace(tok))
			if err != nil {
				return err
			}
			p.setValue(v, valueData{kind: valParam, ty: TyReal, num: uint32(len(p.f.params))})
			p.f.params = append(p.f.params, v)
		}
	}
	p.sawHeader = true
	return nil
}

func (p *irParser) blockLabel(line string) error {
	id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(line, "block"), ":"))
	if err != nil {
		return fmt.Errorf("malformed block label %q", line)
	}
	b := Block(id)
	p.ensureBlock(b)
	p.f.layout = append(p.f.layout, b)
	p.curBlock = b
	p.haveBlock = true
	return nil
}

func (p *irParser) inst(line string) error {
	loc := int32(-1)
	if strings.HasPrefix(line, "@") {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return fmt.Errorf("malformed location tag %q", line)
		}
		n, err := strconv.ParseInt(line[1:sp], 16, 32)
		if err != nil {
			return fmt.Errorf("malformed location tag %q", line)
		}
		loc = int32(n)
		line = strings.TrimSpace(line[sp+1:])
	}

	var results []Value
	if eq := strings.Index(line, " = "); eq >= 0 && strings.HasPrefix(line, "v") {
		for _, tok := range strings.Split(line[:eq], ",") {
			v, err := p.valueName(strings.TrimSpace(tok))
			if err != nil {
				return err
			}
			results = append(results, v)
		}
		line = strings.TrimSpace(line[eq+3:])
	}

	// constant declarations live in the value table, not the instruction list
	if len(results) == 1 {
		switch {
		case strings.HasPrefix(line, "fconst "):
			fv, err := strconv.ParseFloat(strings.TrimSpace(line[7:]), 64)
			if err != nil {
				return err
			}
			p.setValue(results[0], valueData{kind: valConst, ty: TyReal, f: fv})
			if _, ok := p.f.fcache[fv]; !ok {
				p.f.fcache[fv] = results[0]
			}
			return nil
		case strings.HasPrefix(line, "iconst "):
			iv, err := strconv.ParseInt(strings.TrimSpace(line[7:]), 10, 64)
			if err != nil {
				return err
			}
			p.setValue(results[0], valueData{kind: valConst, ty: TyInt, i: iv})
			if _, ok := p.f.icache[iv]; !ok {
				p.f.icache[iv] = results[0]
			}
			return nil
		case strings.HasPrefix(line, "bconst "):
			p.setValue(results[0], valueData{kind: valConst, ty: TyBool,
				b: strings.TrimSpace(line[7:]) == "true"})
			return nil
		case strings.HasPrefix(line, "sconst "):
			sv, err := strconv.Unquote(strings.TrimSpace(line[7:]))
			if err != nil {
				return err
			}
			p.setValue(results[0], valueData{kind: valConst, ty: TyStr, s: sv})
			if _, ok := p.f.scache[sv]; !ok {
				p.f.scache[sv] = results[0]
			}
			return nil
		}
	}

	if !p.haveBlock {
		return fmt.Errorf("instruction outside block: %q", line)
	}

	var d InstData
	d.Loc = loc
	d.Results = results
	var err error
	switch {
	case strings.HasPrefix(line, "phi "):
		d.Op = OpPhi
		err = p.phiEdges(line[4:], &d)
	case strings.HasPrefix(line, "br "):
		d.Op = OpBr
		err = p.branch(line[3:], &d)
	case strings.HasPrefix(line, "jmp "):
		d.Op = OpJmp
		var b Block
		b, err = p.blockName(strings.TrimSpace(line[4:]))
		d.Blocks = []Block{b}
	case strings.HasPrefix(line, "call %"):
		d.Op = OpCall
		err = p.call(line[6:], &d)
	default:
		err = p.simple(line, &d)
	}
	if err != nil {
		return err
	}

	i := Inst(len(p.f.insts))
	p.f.insts = append(p.f.insts, d)
	p.f.instBlock = append(p.f.instBlock, NoBlock)
	for n, r := range d.Results {
		p.setValue(r, valueData{kind: valResult, ty: p.resultTy(&d, n), inst: i, num: uint32(n)})
	}
	p.f.insertInst(p.curBlock, len(p.f.blocks[p.curBlock].insts), i)
	return nil
}

func (p *irParser) resultTy(d *InstData, n int) Ty {
	operand := TyReal
	if len(d.Args) > 0 {
		operand = p.f.ValueTy(d.Args[len(d.Args)-1])
	}
	if d.Op == OpCall {
		return TyReal
	}
	_ = n
	return d.Op.ResultTy(operand)
}

func (p *irParser) simple(line string, d *InstData) error {
	fields := strings.SplitN(line, " ", 2)
	op, ok := OpcodeByName(fields[0])
	if !ok {
		return fmt.Errorf("unknown opcode %q", fields[0])
	}
	d.Op = op
	if len(fields) > 1 {
		for _, tok := range strings.Split(fields[1], ",") {
			v, err := p.valueName(strings.TrimSpace(tok))
			if err != nil {
				return err
			}
			d.Args = append(d.Args, v)
		}
	}
	return nil
}

func (p *irParser) phiEdges(rest string, d *InstData) error {
	for _, chunk := range strings.Split(rest, "],") {
		chunk = strings.TrimSpace(chunk)
		chunk = strings.TrimPrefix(chunk, "[")
		chunk = strings.TrimSuffix(chunk, "]")
		parts := strings.Split(chunk, ",")
		if len(parts) != 2 {
			return fmt.Errorf("malformed phi edge %q", chunk)
		}
		v, err := p.valueName(strings.TrimSpace(parts[0]))
		if err != nil {
			return err
		}
		b, err := p.blockName(strings.TrimSpace(parts[1]))
		if err != nil {
			return err
		}
		d.Args = append(d.Args, v)
		d.Blocks = append(d.Blocks, b)
	}
	return nil
}

func (p *irParser) branch(rest string, d *InstData) error {
	parts := strings.Split(rest, ",")
	if len(parts) != 3 {
		return fmt.Errorf("malformed br %q", rest)
	}
	v, err := p.valueName(strings.TrimSpace(parts[0]))
	if err != nil {
		return err
	}
	then, err := p.blockName(strings.TrimSpace(parts[1]))
	if err != nil {
		return err
	}
	els, err := p.blockName(strings.TrimSpace(parts[2]))
	if err != nil {
		return err
	}
	d.Args = []Value{v}
	d.Blocks = []Block{then, els}
	return nil
}

func (p *irParser) call(rest string, d *InstData) error {
	open := strings.Index(rest, "(")
	close_ := strings.LastIndex(rest, ")")
	if open < 0 || close_ < open {
		return fmt.Errorf("malformed call %q", rest)
	}
	name := rest[:open]
	args := strings.TrimSpace(rest[open+1 : close_])
	if args != "" {
		for _, tok := range strings.Split(args, ",") {
			v, err := p.valueName(strings.TrimSpace(tok))
			if err != nil {
				return err
			}
			d.Args = append(d.Args, v)
		}
	}
	d.Callee = p.f.DeclareFunc(Signature{
		Name:           name,
		Params:         len(d.Args),
		Returns:        len(d.Results),
		HasSideEffects: len(d.Results) == 0,
	})
	return nil
}

func (p *irParser) valueName(tok string) (Value, error) {
	if !strings.HasPrefix(tok, "v") {
		return NoValue, fmt.Errorf("expected value, got %q", tok)
	}
	id, err := strconv.Atoi(tok[1:])
	if err != nil {
		return NoValue, fmt.Errorf("expected value, got %q", tok)
	}
	v := Value(id)
	for len(p.f.values) <= id {
		p.f.values = append(p.f.values, valueData{kind: valConst, ty: TyInt})
	}
	return v, nil
}

func (p *irParser) blockName(tok string) (Block, error) {
	if !strings.HasPrefix(tok, "block") {
		return NoBlock, fmt.Errorf("expected block, got %q", tok)
	}
	id, err := strconv.Atoi(tok[5:])
	if err != nil {
		return NoBlock, fmt.Errorf("expected block, got %q", tok)
	}
	b := Block(id)
	p.ensureBlock(b)
	return b, nil
}

func (p *irParser) ensureBlock(b Block) {
	for len(p.f.blocks) <= int(b) {
		p.f.blocks = append(p.f.blocks, blockData{})
	}
}

func (p *irParser) setValue(v Value, d valueData) {
	p.f.values[v] = d
}
