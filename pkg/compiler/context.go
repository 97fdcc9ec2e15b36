package compiler

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/npillmayer/schuko/tracing"
	"github.com/pkg/errors"
)

// Flags control code generation.
type Flags uint

const (
	WriteDll Flags = 1 << iota
	Platform32
	Platform64
	NoDebug
	AsmOnly
)

// Has reports whether every bit of f2 is set in f.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

func (f Flags) String() string {
	var names []string
	for _, fl := range []struct {
		f    Flags
		name string
	}{
		{WriteDll, "WriteDll"},
		{Platform32, "Platform32"},
		{Platform64, "Platform64"},
		{NoDebug, "NoDebug"},
		{AsmOnly, "AsmOnly"},
	} {
		if f.Has(fl.f) {
			names = append(names, fl.name)
		}
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// Options configure a Context.
type Options struct {
	Flags    Flags
	Resolver Resolver
	Emitter  Emitter
	Tracer   tracing.Trace
}

type Option func(*Options)

func WithFlags(f Flags) Option {
	return func(o *Options) { o.Flags |= f }
}

// WithResolver replaces the runtime the intrinsics are bound to.
func WithResolver(r Resolver) Option {
	return func(o *Options) { o.Resolver = r }
}

// WithEmitter sends output to e instead of the context's text buffer.
func WithEmitter(e Emitter) Option {
	return func(o *Options) { o.Emitter = e }
}

func WithTracer(t tracing.Trace) Option {
	return func(o *Options) { o.Tracer = t }
}

// Context owns everything one compilation needs: the lexer over the
// source, the symbol table, the error list, the emitter and the
// translator.
type Context struct {
	FilePath string
	Flags    Flags

	src        io.ReadSeeker
	lexer      *Lexer
	symbols    *SymbolTable
	errors     *ErrorList
	emitter    Emitter
	resolver   Resolver
	tracer     tracing.Trace
	out        *bytes.Buffer // nil when the emitter was supplied
	translator *Translator
}

// NewContext prepares the compilation of r. filePath is recorded in debug
// line information.
func NewContext(filePath string, r io.ReadSeeker, opts ...Option) *Context {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Resolver == nil {
		o.Resolver = CoreRuntime()
	}
	if o.Tracer == nil {
		o.Tracer = T()
	}

	ctx := &Context{
		FilePath: filePath,
		Flags:    o.Flags,
		src:      r,
		symbols:  NewSymbolTable(),
		errors:   &ErrorList{},
		emitter:  o.Emitter,
		resolver: o.Resolver,
		tracer:   o.Tracer,
	}
	if ctx.emitter == nil {
		ctx.out = &bytes.Buffer{}
		ctx.emitter = NewTextEmitter(ctx.out)
	}
	ctx.lexer = NewLexer(r, ctx.errors)
	return ctx
}

func (ctx *Context) Lexer() *Lexer         { return ctx.lexer }
func (ctx *Context) Symbols() *SymbolTable { return ctx.symbols }
func (ctx *Context) Errors() *ErrorList    { return ctx.errors }
func (ctx *Context) Emitter() Emitter      { return ctx.emitter }
func (ctx *Context) Resolver() Resolver    { return ctx.resolver }

// Translator returns the context's translator, creating it on first use.
func (ctx *Context) Translator() *Translator {
	if ctx.translator == nil {
		ctx.translator = newTranslator(ctx)
	}
	return ctx.translator
}

// AddIntrinsics enters the runtime bindings into the global scope.
func (ctx *Context) AddIntrinsics() {
	AddIntrinsics(ctx.symbols, ctx.errors, ctx.resolver)
}

// Compile seeds the intrinsics and translates the whole program. Compile
// errors are left in Errors; the returned error reports source read and
// output failures.
func (ctx *Context) Compile() error {
	ctx.AddIntrinsics()
	ctx.Translator().TranslateInput()
	if err := ctx.lexer.Err(); err != nil {
		return errors.Wrapf(err, "compiling %s", ctx.FilePath)
	}
	ctx.tracer.Debugf("compiled %s: %d error(s)", ctx.FilePath, ctx.errors.Count())
	return errors.Wrap(ctx.emitter.Flush(), "flushing compiler output")
}

// Output flushes the emitter and returns the text written so far. It is
// empty when the context was given its own emitter.
func (ctx *Context) Output() (string, error) {
	if err := ctx.emitter.Flush(); err != nil {
		return "", errors.Wrap(err, "flushing compiler output")
	}
	if ctx.out == nil {
		return "", nil
	}
	return ctx.out.String(), nil
}

// Close releases the source when it is an io.Closer.
func (ctx *Context) Close() error {
	if c, ok := ctx.src.(io.Closer); ok {
		return errors.Wrapf(c.Close(), "closing %s", ctx.FilePath)
	}
	return nil
}

// CompileFile compiles the file at path and returns the CIL text together
// with the compile errors. The text is meaningless when errs is not empty.
func CompileFile(path string, flags Flags, opts ...Option) (cil string, errs *ErrorList, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, errors.Wrapf(err, "opening %s", path)
	}

	ctx := NewContext(path, f, append([]Option{WithFlags(flags)}, opts...)...)
	defer ctx.Close()

	if err := ctx.Compile(); err != nil {
		return "", ctx.Errors(), err
	}
	cil, err = ctx.Output()
	return cil, ctx.Errors(), err
}
