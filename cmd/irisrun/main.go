// Command irisrun compiles Iris programs and runs them on the CIL
// machine. Breakpoints pause the program and print watch expressions
// evaluated in the paused frame.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"iris/pkg/compiler"
	"iris/pkg/ilasm"
	"iris/pkg/inspect"
	"iris/pkg/utils"
	"iris/pkg/vm"
)

// listFlag collects a flag that may be repeated.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(s string) error {
	*l = append(*l, s)
	return nil
}

type options struct {
	breaks []int
	watch  []string
	locals bool
	hex    bool
	steps  int
	seed   int64
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("irisrun", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var breaks, watch listFlag
	fs.Var(&breaks, "break", "pause before source `line` (repeatable)")
	fs.Var(&watch, "watch", "`expression` to print at each pause (repeatable)")
	locals := fs.Bool("locals", false, "print globals, arguments and locals at each pause")
	hex := fs.Bool("hex", false, "show integers in hexadecimal")
	steps := fs.Int("steps", 0, "stop after this many instructions (0 means no limit)")
	seed := fs.Int64("seed", 0, "seed for rand (0 seeds from the clock)")
	trace := fs.Bool("trace", false, "trace compilation and execution")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	paths := fs.Args()
	if len(paths) == 0 {
		fmt.Fprintln(stderr, "nothing to do: provide one or more .iris files")
		fs.Usage()
		return 2
	}

	opts := &options{watch: watch, locals: *locals, hex: *hex, steps: *steps, seed: *seed}
	for _, b := range breaks {
		line, err := strconv.Atoi(b)
		if err != nil || line < 1 {
			fmt.Fprintf(stderr, "invalid breakpoint %q\n", b)
			return 2
		}
		opts.breaks = append(opts.breaks, line)
	}

	if *trace {
		t := gologadapter.New()
		t.SetTraceLevel(tracing.LevelDebug)
		gtrace.SyntaxTracer = t
		gtrace.EngineTracer = t
	}

	modules, err := compileAll(paths)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	for i, m := range modules {
		if len(modules) > 1 {
			fmt.Fprintf(stdout, "== %s ==\n", utils.ProgramName(paths[i]))
		}
		if err := runModule(m, opts, stdin, stdout); err != nil {
			fmt.Fprintf(stderr, "run failed for %q: %v\n", paths[i], err)
			return 1
		}
	}
	return 0
}

// compileAll compiles and assembles every path concurrently. The modules
// are returned in the order of paths.
func compileAll(paths []string) ([]*ilasm.Module, error) {
	modules := make([]*ilasm.Module, len(paths))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			cil, errs, err := compiler.CompileFile(path, compiler.WriteDll|compiler.Platform32)
			if err != nil {
				return err
			}
			if errs.Count() > 0 {
				return errors.Errorf("%s: %d compile error(s)\n%s", path, errs.Count(), strings.TrimSuffix(errs.String(), "\n"))
			}
			m, err := ilasm.Assemble(cil)
			if err != nil {
				return errors.Wrapf(err, "assembling %s", path)
			}
			modules[i] = m
			return nil
		})
	}
	return modules, g.Wait()
}

func runModule(m *ilasm.Module, opts *options, stdin io.Reader, stdout io.Writer) error {
	v := vm.NewVM(m, vm.Config{
		Stdin:     stdin,
		Stdout:    stdout,
		Seed:      opts.seed,
		StepLimit: opts.steps,
	})
	for _, line := range opts.breaks {
		v.SetBreakpoint(line)
	}

	for {
		if err := v.Run(); err != nil {
			return err
		}
		if !v.Paused {
			return nil
		}
		if err := showFrame(v, opts, stdout); err != nil {
			return err
		}
	}
}

// showFrame prints where v is paused followed by the requested values.
func showFrame(v *vm.VM, opts *options, out io.Writer) error {
	top := v.Top()
	frame := inspect.ImportFrame(v.Module, top.Method)
	fmt.Fprintf(out, "break at line %d in %s\n", top.SourceLine(), inspect.FrameName(frame, true, true))

	base := inspect.FormatOptions{Radix: 10}
	if opts.hex {
		base.Radix = 16
	}
	session := inspect.NewSession(frame)

	if opts.locals {
		q, err := session.Locals(false)
		if err != nil {
			return err
		}
		values, err := inspect.Values(v, top, q)
		if err != nil {
			return err
		}
		for i, l := range q.Locals {
			fmt.Fprintf(out, "   %s = %s\n", l.Name, inspect.Format(values[i], l.Type, base))
		}
	}

	for _, expr := range opts.watch {
		q, err := session.Evaluate(expr)
		if err != nil {
			fmt.Fprintf(out, "   %s: %v\n", expr, err)
			continue
		}
		if q.Flags.Has(inspect.PotentialSideEffect) {
			fmt.Fprintf(out, "   %s: This expression has side effects and will not be evaluated\n", expr)
			continue
		}
		val, err := inspect.Run(v, top, q)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "   %s = %s\n", expr, inspect.Format(val, q.Type, inspect.ApplySpecifiers(base, q.FormatSpecifiers)))
	}
	return nil
}
