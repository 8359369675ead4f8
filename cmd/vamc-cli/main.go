package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"

	"vamc/grammar"
	"vamc/internal/errors"
	"vamc/internal/mir"
	"vamc/internal/semantic"
	"vamc/internal/simback"
)

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func main() {
	var includes stringList
	var defines stringList
	emitMir := flag.Bool("emit-mir", false, "print the optimized eval function")
	emitDae := flag.Bool("emit-dae", false, "print a summary of the DAE system")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Var(&includes, "I", "include search path (may repeat)")
	flag.Var(&defines, "D", "preprocessor define (may repeat)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: vamc [flags] <file.va>")
		os.Exit(1)
	}
	if *verbose {
		commonlog.Configure(1, nil)
	} else {
		commonlog.Configure(0, nil)
	}

	path := flag.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("Failed to read file: %s", err)
		os.Exit(1)
	}

	reporter := errors.NewErrorReporter(path, string(source))

	file, parseDiags := grammar.ParseSource(path, string(source))
	if len(parseDiags) > 0 {
		fmt.Print(reporter.FormatBatch(parseDiags))
		os.Exit(1)
	}

	analyzer := semantic.NewAnalyzer()
	modules, diags := analyzer.Analyze(file)
	if len(diags) > 0 {
		fmt.Print(reporter.FormatBatch(diags))
		if errors.HasErrors(diags) {
			os.Exit(1)
		}
	}

	for _, m := range modules {
		compiled := simback.NewCompiledModule(m)
		if *emitMir {
			fmt.Print(mir.Print(compiled.Eval))
		}
		if *emitDae {
			printDaeSummary(compiled)
		}
		color.Green("compiled module %s: %d unknowns, %d jacobian entries",
			m.Name, len(compiled.Dae.Unknowns), len(compiled.Dae.Jacobian))
	}
}

func printDaeSummary(c *simback.CompiledModule) {
	fmt.Printf("module %s\n", c.Module.Name)
	for i, u := range c.Dae.Unknowns {
		switch u.Tag {
		case simback.UkKirchhoffLaw:
			fmt.Printf("  unknown %d: kcl(%s)\n", i, c.Module.Nodes[u.Node].Name)
		case simback.UkCurrent:
			fmt.Printf("  unknown %d: current(branch %d)\n", i, u.Branch)
		default:
			fmt.Printf("  unknown %d: implicit(%d)\n", i, u.Equation)
		}
	}
	for _, e := range c.Dae.Jacobian {
		fmt.Printf("  jacobian (%d, %d) resist=v%d react=v%d\n", e.Row, e.Col, e.Resist, e.React)
	}
	fmt.Printf("  %d resistive, %d reactive, %d noise sources, %d model inputs\n",
		c.Dae.NumResistive, c.Dae.NumReactive,
		len(c.Dae.NoiseSources), len(c.Dae.ModelInputs))
}
