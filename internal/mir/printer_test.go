package mir

import (
	"strings"
	"testing"
)

func samplePrintedFunction(t *testing.T) *Function {
	t.Helper()
	f := NewFunction("sample")
	entry := f.NewBlock()
	then := f.NewBlock()
	exit := f.NewBlock()
	c := f.At(entry)

	x := f.NewParam(TyReal)
	y := f.NewParam(TyReal)
	sum := c.Ins().Fadd(x, f.FConst(2.5))
	cond := c.Ins().Fgt(sum, y)
	c.Ins().Br(cond, then, exit)
	c.GotoBottom(then)
	scaled := c.Ins().Fmul(sum, f.FConst(2.5))
	c.Ins().Jump(exit)
	c.GotoBottom(exit)
	merged := c.Ins().Phi([]PhiEdge{
		{Block: entry, Value: sum},
		{Block: then, Value: scaled},
	})
	c.Ins().OptBarrier(merged)
	return f
}

func TestPrintContainsStructure(t *testing.T) {
	f := samplePrintedFunction(t)
	text := Print(f)

	for _, want := range []string{
		"function %sample(",
		"fconst",
		"block0:",
		"fadd",
		"br ",
		"jmp ",
		"phi ",
		"optbarrier",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("printed function misses %q:\n%s", want, text)
		}
	}
}

// Round-trip law: parsing then printing an IR function yields a textually
// equal function.
func TestPrintParseRoundTrip(t *testing.T) {
	f := samplePrintedFunction(t)
	first := Print(f)

	parsed, err := ParseFunction(first)
	if err != nil {
		t.Fatalf("ParseFunction failed: %v\n%s", err, first)
	}
	second := Print(parsed)
	if first != second {
		t.Errorf("round trip not stable:\n--- first ---\n%s--- second ---\n%s", first, second)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := ParseFunction("not an ir function"); err == nil {
		t.Error("ParseFunction should fail without a header")
	}
	if _, err := ParseFunction("function %f() {\n    v9 = frobnicate v1\n}\n"); err == nil {
		t.Error("ParseFunction should reject unknown opcodes")
	}
}
