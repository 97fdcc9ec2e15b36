package compiler

import (
	"fmt"

	"github.com/npillmayer/schuko/tracing"
)

// LoadMode selects what EmitLoadSymbol leaves on the stack.
type LoadMode int

const (
	LoadRaw            LoadMode = iota // the stored value, an address for by-ref symbols
	LoadDeref                          // the value, dereferenced when the symbol is by-ref
	LoadAddress                        // an address: taken for plain symbols, passed through for by-ref
	LoadElement                        // an array element
	LoadElementAddress                 // the address of an array element
)

const (
	mainMethodName     = "$.main"
	defaultProgramName = "program"
)

// Translator is the front end. It reads tokens from the lexer and parses by
// recursive descent; semantic checks and code generation happen while each
// production is recognized, so no syntax tree is ever built.
//
// Grammar:
//
//	program    = ["program" ident ";"] ["var" varlist] {method} "begin" stmts "end" ["."]
//	method     = ("function" | "procedure") ident ["(" params ")"] [":" type] ";"
//	             ["var" varlist [";"]] "begin" stmts "end"
//	varlist    = ident {"," ident} ":" type {";" ident {"," ident} ":" type}
//	type       = "integer" | "string" | "boolean" | "array" ["[" num ".." num "]"] "of" type
//	stmts      = stmt {";" stmt}
//	stmt       = for | while | repeat | if | "begin" stmts "end" | assign | call
//	expression = compare [("and" | "or") expression]
//	compare    = arith [relop compare]
//	arith      = term [("+" | "-") arith]
//	term       = factor [("*" | "/" | "%") term]
//	factor     = ["-" | "not"] base
//	base       = ident ["[" expression "]" | "(" args ")"] | num | str | "true" | "false" | "(" expression ")"
type Translator struct {
	gen      *MethodGenerator
	emitter  Emitter
	symbols  *SymbolTable
	lexer    *Lexer
	errors   *ErrorList
	refs     []string
	filePath string
	trace    tracing.Trace

	lastParsed     FilePosition
	lexeme         string
	lastInteger    int32
	nextLabel      int
	nextUniqueName int
	parsedCall     bool
}

func newTranslator(ctx *Context) *Translator {
	var refs []string
	if ctx.resolver != nil {
		refs = ctx.resolver.References()
	}
	return &Translator{
		gen:        NewMethodGenerator(ctx.emitter, !ctx.Flags.Has(NoDebug)),
		emitter:    ctx.emitter,
		symbols:    ctx.symbols,
		lexer:      ctx.lexer,
		errors:     ctx.errors,
		refs:       refs,
		filePath:   ctx.FilePath,
		trace:      ctx.tracer,
		lastParsed: ctx.lexer.TokenStart(),
	}
}

// Generator returns the method generator instructions are issued to.
func (t *Translator) Generator() *MethodGenerator { return t.gen }

// ParsedCallSyntax reports whether a call was parsed. Calls the compiler
// inserts on its own, such as strcmp, do not count.
func (t *Translator) ParsedCallSyntax() bool { return t.parsedCall }

// Lexeme returns the text of the last identifier or string accepted.
func (t *Translator) Lexeme() string { return t.lexeme }

// LastParsed returns the position just past the last token accepted.
func (t *Translator) LastParsed() FilePosition { return t.lastParsed }

// Restart rewinds the lexer so the same input can be parsed again.
func (t *Translator) Restart() error {
	if err := t.lexer.Reset(); err != nil {
		return err
	}
	t.lastParsed = t.lexer.TokenStart()
	return nil
}

// TranslateInput translates a whole program.
func (t *Translator) TranslateInput() {
	t.parseProgram()
}

// TranslateStatement translates a single statement and flushes it.
func (t *Translator) TranslateStatement() {
	t.parseStatement(false)
	t.gen.EmitDeferredInstructions()
}

// TranslateExpression translates a single expression and flushes it.
func (t *Translator) TranslateExpression() {
	t.ParseExpression(LoadDeref)
	t.gen.EmitDeferredInstructions()
}

// --- Token helpers ---------------------------------------------------------

// Accept consumes the current token when it is tt. Identifier and string
// lexemes and number values are captured before the lexer moves on.
func (t *Translator) Accept(tt TokenType) bool {
	if t.lexer.Current() != tt {
		return false
	}
	if tt != EOF {
		t.lastParsed = t.lexer.TokenEnd()
	}
	switch tt {
	case STRING_LIT, IDENTIFIER:
		t.lexeme = t.lexer.Lexeme()
	case NUMBER:
		t.lastInteger = t.lexer.ParseInteger()
	}
	t.lexer.MoveNext()
	return true
}

func (t *Translator) expect(tt TokenType) {
	if !t.Accept(tt) {
		t.AddErrorAtTokenStart(fmt.Sprintf("Expecting %s.", tt))
	}
}

func (t *Translator) acceptOperator(table map[TokenType]Operator) Operator {
	op, ok := table[t.lexer.Current()]
	if !ok {
		return OpNone
	}
	t.lastParsed = t.lexer.TokenEnd()
	t.lexer.MoveNext()
	return op
}

// skipStatement advances to the next ';', 'end' or end of file.
func (t *Translator) skipStatement() {
	for {
		switch t.lexer.Current() {
		case SEMICOLON, END, EOF:
			return
		}
		t.lexer.MoveNext()
	}
}

// skipToNextEnd advances past the next 'end', or to end of file.
func (t *Translator) skipToNextEnd() {
	for t.lexer.Current() != END && t.lexer.Current() != EOF {
		t.lexer.MoveNext()
	}
	t.Accept(END)
}

func (t *Translator) newLabel() int {
	label := t.nextLabel
	t.nextLabel++
	return label
}

// --- Diagnostics -----------------------------------------------------------

// AddError reports a diagnostic and suppresses output for the construct
// being translated.
func (t *Translator) AddError(fp FilePosition, msg string) {
	t.gen.SetOutputEnabled(false)
	t.errors.Add(fp, msg)
	t.trace.Debugf("%s %s", fp, msg)
}

func (t *Translator) AddErrorAtTokenStart(msg string) {
	t.AddError(t.lexer.TokenStart(), msg)
}

func (t *Translator) AddErrorAtLastParsed(msg string) {
	t.AddError(t.lastParsed, msg)
}

func (t *Translator) verifyExpressionType(fp FilePosition, actual, expected *IrisType) {
	if actual != expected {
		t.AddError(fp, fmt.Sprintf("Expecting %s expression.", expected))
	}
}

// --- Symbols ---------------------------------------------------------------

// lookupSymbol resolves name, reporting it once and entering a sentinel
// when it is undefined.
func (t *Translator) lookupSymbol(fp FilePosition, name string) *Symbol {
	sym := t.symbols.Lookup(name)
	if sym == nil {
		t.AddError(fp, fmt.Sprintf("Symbol '%s' is undefined.", name))
		sym = t.symbols.CreateUndefinedSymbol(name)
	}
	return sym
}

func (t *Translator) validateName(fp FilePosition, name string, global bool) bool {
	if name[0] == '$' {
		t.AddError(fp, "Identifiers starting with '$' are reserved.")
	}

	var existing *Symbol
	if global {
		existing = t.symbols.LookupGlobal(name)
	} else {
		existing = t.symbols.LookupLocal(name)
	}
	if existing != nil {
		t.AddError(fp, fmt.Sprintf("Cannot redefine symbol '%s'.", name))
		return false
	}
	return true
}

// EmitLoadSymbol pushes sym according to mode.
func (t *Translator) EmitLoadSymbol(sym *Symbol, mode LoadMode) {
	byRef := sym.Type.IsByRef()
	address := mode == LoadAddress && !byRef
	switch sym.StorageClass {
	case Argument:
		if address {
			t.gen.PushArgumentAddress(sym.Location)
		} else {
			t.gen.PushArgument(sym.Location)
		}
	case Local:
		if address {
			t.gen.PushLocalAddress(sym.Location)
		} else {
			t.gen.PushLocal(sym.Location)
		}
	default:
		if address {
			t.gen.PushGlobalAddress(sym)
		} else {
			t.gen.PushGlobal(sym)
		}
	}

	if mode == LoadDeref && byRef {
		t.gen.Load(sym.Type.ElementType())
	}
}

// EmitStoreSymbol pops the stack top into sym.
func (t *Translator) EmitStoreSymbol(sym *Symbol) {
	switch sym.StorageClass {
	case Argument:
		t.gen.StoreArgument(sym.Location)
	case Local:
		t.gen.StoreLocal(sym.Location)
	default:
		t.gen.StoreGlobal(sym)
	}
}

// increment adds one to an integer symbol, through its address when the
// symbol is by-ref.
func (t *Translator) increment(sym *Symbol) {
	t.EmitLoadSymbol(sym, LoadRaw)

	byRef := sym.Type.IsByRef()
	if byRef {
		t.gen.Dup()
		t.gen.Load(Integer)
	}

	t.gen.PushIntConst(1)
	t.gen.Operator(OpAdd)

	if byRef {
		t.gen.Store(Integer)
	} else {
		t.EmitStoreSymbol(sym)
	}
}
