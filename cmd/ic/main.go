// Command ic compiles one Iris source file to CIL assembly text.
//
//	ic <source file> [/32 | /64] [/NODEBUG] [/ASM] [/TRACE] [/DUMP]
//
// Options are case-insensitive. The output is written next to the source
// with an .il extension.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/pkg/errors"
	"github.com/sanity-io/litter"

	"iris/pkg/compiler"
	"iris/pkg/utils"
)

const usage = `Usage: ic <source file> [Options]
Options:
   /32       Make 32-bit exe
   /64       Make 64-bit exe
   /NODEBUG  Don't include debug information or generate .PDB file
   /ASM      Write out assembly instead of binary
`

type options struct {
	source string
	flags  compiler.Flags
	trace  bool
	dump   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fmt.Fprintln(out, "Iris managed compiler")

	opts, ok := parseArgs(args, out)
	if !ok {
		fmt.Fprint(out, usage)
		return 2
	}

	n, err := compile(opts, out)
	if err != nil {
		fmt.Fprintln(out, err)
		return 1
	}
	if n > 0 {
		return 1
	}
	return 0
}

// parseArgs reports problems to out and returns false when the command
// line cannot be used.
func parseArgs(args []string, out io.Writer) (*options, bool) {
	opts := &options{flags: compiler.WriteDll}
	for _, arg := range args {
		if isOption(arg) {
			switch opt := strings.ToUpper(arg[1:]); opt {
			case "32":
				opts.flags |= compiler.Platform32
			case "64":
				opts.flags |= compiler.Platform64
			case "NODEBUG":
				opts.flags |= compiler.NoDebug
			case "ASM":
				opts.flags |= compiler.AsmOnly
			case "TRACE":
				opts.trace = true
			case "DUMP":
				opts.dump = true
			default:
				fmt.Fprintf(out, "Unrecognized option %s\n", strings.ToUpper(arg))
				return nil, false
			}
			continue
		}

		if _, err := os.Stat(arg); err != nil {
			fmt.Fprintf(out, "Source file '%s' not found\n", arg)
			return nil, false
		}
		if opts.source != "" {
			fmt.Fprintln(out, "Multiple source files specified.  Only one file is supported")
			return nil, false
		}
		opts.source = arg
	}

	if opts.source == "" {
		return nil, false
	}
	if opts.flags.Has(compiler.Platform32 | compiler.Platform64) {
		fmt.Fprintln(out, "Both 32-bit and 64-bit platforms specified.  Only one platform is supported")
		return nil, false
	}
	if !opts.flags.Has(compiler.Platform64) {
		opts.flags |= compiler.Platform32
	}
	return opts, true
}

// isOption reports whether arg is a switch rather than a path. Absolute
// paths also start with a slash but carry more than one element.
func isOption(arg string) bool {
	if len(arg) < 2 || (arg[0] != '/' && arg[0] != '-') {
		return false
	}
	return !strings.ContainsAny(arg[1:], `/\`)
}

// compile translates opts.source and writes the .il file. It returns the
// number of compile errors.
func compile(opts *options, out io.Writer) (int, error) {
	var cOpts []compiler.Option
	if opts.trace {
		t := gologadapter.New()
		t.SetTraceLevel(tracing.LevelDebug)
		gtrace.SyntaxTracer = t
		cOpts = append(cOpts, compiler.WithTracer(t))
	}

	fmt.Fprintf(out, "Compiling file %s...\n", opts.source)
	f, err := os.Open(opts.source)
	if err != nil {
		if os.IsPermission(err) {
			return 0, errors.New("Access to file denied")
		}
		return 0, errors.Wrapf(err, "opening %s", opts.source)
	}

	ctx := compiler.NewContext(opts.source, f, append(cOpts, compiler.WithFlags(opts.flags))...)
	defer ctx.Close()

	if err := ctx.Compile(); err != nil {
		return 0, err
	}
	if opts.dump {
		fmt.Fprintln(out, litter.Sdump(ctx.Symbols().Globals()))
	}

	if errs := ctx.Errors(); errs.Count() > 0 {
		for _, e := range errs.List() {
			fmt.Fprintln(out, e)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%d Compile Error(s).\n", errs.Count())
		return errs.Count(), nil
	}
	fmt.Fprintln(out, "0 Compile Errors.")

	cil, err := ctx.Output()
	if err != nil {
		return 0, err
	}
	outPath := utils.ChangeExtension(opts.source, "il")
	if err := os.WriteFile(outPath, []byte(cil), 0o644); err != nil {
		if os.IsPermission(err) {
			return 0, errors.New("Access to file denied")
		}
		return 0, errors.Wrapf(err, "writing %s", outPath)
	}

	if opts.trace {
		fmt.Fprintf(out, "Output file generated (%s).\n", humanize.Bytes(uint64(len(cil))))
	} else {
		fmt.Fprintln(out, "Output file generated.")
	}
	return 0, nil
}
