package inspect

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"iris/pkg/compiler"
)

// ResultFlags describe how the debugger may use a query's result.
type ResultFlags uint

const (
	// BoolResult marks a boolean result, usable as a breakpoint condition.
	BoolResult ResultFlags = 1 << iota
	// PotentialSideEffect marks a query that calls a function or
	// procedure and must not be evaluated implicitly.
	PotentialSideEffect
	// ReadOnlyResult marks a result that cannot be assigned to.
	ReadOnlyResult
)

func (f ResultFlags) Has(f2 ResultFlags) bool { return f&f2 == f2 }

func (f ResultFlags) String() string {
	var names []string
	for _, fl := range []struct {
		f    ResultFlags
		name string
	}{
		{BoolResult, "BoolResult"},
		{PotentialSideEffect, "PotentialSideEffect"},
		{ReadOnlyResult, "ReadOnlyResult"},
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

// Query is a compiled expression or assignment. Running it calls Method
// of class Class in CIL.
type Query struct {
	Class            string
	Method           string
	CIL              string
	Type             *compiler.IrisType
	Flags            ResultFlags
	FormatSpecifiers []string
}

// LocalEntry is one row of the locals list. Method returns its value.
type LocalEntry struct {
	Name   string
	Method string
	Type   *compiler.IrisType
	Flags  ResultFlags
}

type LocalsQuery struct {
	Class  string
	CIL    string
	Locals []LocalEntry
}

// CompileError is the first diagnostic of a query that did not compile.
type CompileError struct {
	Diag compiler.Error
}

func (e *CompileError) Error() string {
	return e.Diag.String()
}

const (
	queryFileName   = "query.iris"
	queryScopeName  = "$.query"
	queryMethodName = "$.M1"
)

var nextClass atomic.Uint32

// Session compiles queries against one paused frame.
type Session struct {
	Frame *Frame
}

func NewSession(f *Frame) *Session {
	return &Session{Frame: f}
}

type queryContext struct {
	ctx    *compiler.Context
	tr     *compiler.Translator
	gen    *compiler.MethodGenerator
	class  string
	params []*compiler.Variable
	locals []*compiler.Variable

	nextMethod int
}

// newContext prepares the compilation of input with the frame's symbols
// in scope: intrinsics, the program's globals and methods, then the
// paused method's parameters and locals.
func (s *Session) newContext(input string) *queryContext {
	ctx := compiler.NewContext(queryFileName, strings.NewReader(input),
		compiler.WithFlags(compiler.NoDebug|compiler.WriteDll))
	ctx.AddIntrinsics()

	f := s.Frame
	symbols := ctx.Symbols()
	for _, g := range f.Globals {
		symbols.Add(g.Name, g.Type, compiler.Global, &compiler.Binding{
			Assembly: f.Program,
			TypeName: f.Program,
			Member:   g.Name,
			IsField:  true,
			Returns:  g.Type,
			Type:     g.Type,
		})
	}
	for _, m := range f.Methods {
		params := m.Type.Params()
		types := make([]*compiler.IrisType, len(params))
		for i, p := range params {
			types[i] = p.Type
		}
		symbols.Add(m.Name, m.Type, compiler.Global, &compiler.Binding{
			Assembly: f.Program,
			TypeName: f.Program,
			Member:   m.Name,
			Returns:  m.Type.ReturnType(),
			Params:   types,
			Type:     m.Type,
		})
	}

	symbols.OpenMethod(queryScopeName, f.Type())
	for _, p := range f.Params {
		symbols.Add(p.Name, p.Type, compiler.Argument, nil)
	}
	locals := make([]*compiler.Variable, len(f.Locals))
	for i, l := range f.Locals {
		symbols.AddAt(l.Name, l.Type, compiler.Local, l.Slot, nil)
		locals[i] = compiler.NewVariable(l.Type, l.Name)
	}

	tr := ctx.Translator()
	return &queryContext{
		ctx:    ctx,
		tr:     tr,
		gen:    tr.Generator(),
		class:  fmt.Sprintf("$.C%d", nextClass.Add(1)-1),
		params: f.Params,
		locals: locals,
	}
}

func (qc *queryContext) failed() bool {
	return qc.ctx.Errors().Count() != 0
}

func (qc *queryContext) err() error {
	return &CompileError{Diag: qc.ctx.Errors().List()[0]}
}

func (qc *queryContext) beginProgram() {
	qc.ctx.Emitter().BeginProgram(qc.class, qc.ctx.Resolver().References())
}

func (qc *queryContext) output() (string, error) {
	qc.ctx.Emitter().EndProgram()
	return qc.ctx.Output()
}

func (qc *queryContext) nextMethodName() string {
	name := fmt.Sprintf("$.M%d", qc.nextMethod)
	qc.nextMethod++
	return name
}

// Evaluate compiles expr, optionally followed by ", h"-style format
// specifiers, into a query returning its value.
func (s *Session) Evaluate(expr string) (*Query, error) {
	qc := s.newContext(expr)
	tr := qc.tr

	// The first pass only determines the result type.
	qc.gen.SetOutputEnabled(false)
	resultType := tr.ParseExpression(compiler.LoadDeref)
	specifiers := qc.readFormatSpecifiers()
	qc.gen.SetOutputEnabled(true)
	if qc.failed() {
		return nil, qc.err()
	}

	if err := tr.Restart(); err != nil {
		return nil, errors.Wrap(err, "rewinding query")
	}
	qc.beginProgram()
	qc.gen.BeginMethod(queryMethodName, resultType, qc.params, qc.locals, false, nil)
	tr.ParseExpression(compiler.LoadDeref)
	qc.gen.EndMethod()
	if qc.failed() {
		return nil, qc.err()
	}

	cil, err := qc.output()
	if err != nil {
		return nil, err
	}

	q := &Query{
		Class:            qc.class,
		Method:           queryMethodName,
		CIL:              cil,
		Type:             resultType,
		FormatSpecifiers: specifiers,
	}

	readOnly := resultType.IsArray() || resultType == compiler.Void
	if !readOnly {
		if err := tr.Restart(); err != nil {
			return nil, errors.Wrap(err, "rewinding query")
		}
		readOnly = !qc.parseSimpleLValue()
	}
	if resultType == compiler.Boolean {
		q.Flags |= BoolResult
	}
	if tr.ParsedCallSyntax() {
		q.Flags |= PotentialSideEffect
		readOnly = true
	}
	if readOnly {
		q.Flags |= ReadOnlyResult
	}
	return q, nil
}

func (qc *queryContext) readFormatSpecifiers() []string {
	lexer := qc.ctx.Lexer()
	if qc.failed() || lexer.Current() == compiler.EOF {
		return nil
	}

	var specifiers []string
	for lexer.Current() == compiler.COMMA {
		lexer.MoveNext()
		if lexer.Current() == compiler.IDENTIFIER {
			specifiers = append(specifiers, lexer.Lexeme())
			lexer.MoveNext()
		} else {
			qc.tr.AddErrorAtTokenStart("Invalid format specifier.")
		}
	}

	if lexer.Current() != compiler.EOF {
		qc.tr.AddErrorAtTokenStart("Unexpected text after expression.")
	}
	return specifiers
}

// parseSimpleLValue accepts ident or ident[number] and nothing more.
func (qc *queryContext) parseSimpleLValue() bool {
	tr := qc.tr
	if !tr.Accept(compiler.IDENTIFIER) {
		return false
	}
	if tr.Accept(compiler.LBRACKET) {
		if !tr.Accept(compiler.NUMBER) || !tr.Accept(compiler.RBRACKET) {
			return false
		}
	}
	return tr.Accept(compiler.EOF)
}

// Assign compiles a query storing the value of expr into lvalue, which is
// a name or an array element with a constant index.
func (s *Session) Assign(lvalue, expr string) (*Query, error) {
	qc := s.newContext(expr)
	tr := qc.tr

	qc.beginProgram()
	qc.gen.BeginMethod(queryMethodName, compiler.Void, qc.params, qc.locals, false, nil)

	sym := qc.parseLValue(lvalue)
	if sym == nil {
		return nil, qc.err()
	}

	lhs := sym.Type
	rhs := tr.ParseExpression(compiler.LoadDeref)
	if !tr.Accept(compiler.EOF) {
		tr.AddErrorAtTokenStart("Unexpected text after expression.")
	}

	if rhs != compiler.Invalid {
		target := lhs
		indirect := lhs.IsByRef() || lhs.IsArray()
		if indirect {
			target = lhs.ElementType()
		}

		switch {
		case target != rhs:
			tr.AddErrorAtLastParsed("Cannot assign value.  Expression type doesn't match value type")
		case lhs.IsArray():
			qc.gen.StoreElement(target)
		case indirect:
			qc.gen.Store(target)
		default:
			tr.EmitStoreSymbol(sym)
		}
	}
	if qc.failed() {
		return nil, qc.err()
	}

	qc.gen.EndMethod()
	cil, err := qc.output()
	if err != nil {
		return nil, err
	}
	return &Query{
		Class:  qc.class,
		Method: queryMethodName,
		CIL:    cil,
		Type:   compiler.Void,
	}, nil
}

// parseLValue reads lvalue with its own lexer and emits the loads that
// precede the store: the array and index, or the address of a by-ref
// symbol.
func (qc *queryContext) parseLValue(lvalue string) *compiler.Symbol {
	lexer := compiler.NewLexer(strings.NewReader(lvalue), qc.ctx.Errors())
	if lexer.Current() != compiler.IDENTIFIER {
		return qc.lvalueError()
	}
	sym := qc.ctx.Symbols().Lookup(lexer.Lexeme())
	if sym == nil {
		return qc.lvalueError()
	}
	lexer.MoveNext()

	switch {
	case sym.Type.IsArray():
		if lexer.Current() != compiler.LBRACKET {
			return qc.lvalueError()
		}
		qc.tr.EmitLoadSymbol(sym, compiler.LoadRaw)

		lexer.MoveNext()
		if lexer.Current() != compiler.NUMBER {
			return qc.lvalueError()
		}
		qc.gen.PushIntConst(lexer.ParseInteger())

		lexer.MoveNext()
		if lexer.Current() != compiler.RBRACKET {
			return qc.lvalueError()
		}
	case sym.Type.IsByRef():
		qc.tr.EmitLoadSymbol(sym, compiler.LoadRaw)
	}
	return sym
}

func (qc *queryContext) lvalueError() *compiler.Symbol {
	qc.tr.AddError(compiler.Begin, "Cannot assign to this value")
	return nil
}

// Locals compiles one getter method per visible variable: the program's
// globals, then the paused method's arguments and locals. With argsOnly
// only arguments are listed.
func (s *Session) Locals(argsOnly bool) (*LocalsQuery, error) {
	qc := s.newContext("")
	q := &LocalsQuery{Class: qc.class}

	qc.beginProgram()
	symbols := qc.ctx.Symbols()
	for _, sym := range symbols.Globals() {
		qc.addLocalEntry(q, sym, argsOnly)
	}
	for _, sym := range symbols.Locals() {
		qc.addLocalEntry(q, sym, argsOnly)
	}

	cil, err := qc.output()
	if err != nil {
		return nil, err
	}
	q.CIL = cil
	return q, nil
}

func (qc *queryContext) addLocalEntry(q *LocalsQuery, sym *compiler.Symbol, argsOnly bool) {
	if argsOnly && sym.StorageClass != compiler.Argument {
		return
	}
	if sym.Type.IsMethod() || sym.Type == compiler.Invalid || sym.Type == compiler.Void {
		return
	}
	if strings.HasPrefix(sym.Name, "$.") {
		return
	}

	name := qc.nextMethodName()
	t := compiler.Deref(sym.Type)
	qc.gen.BeginMethod(name, t, qc.params, qc.locals, false, nil)
	qc.tr.EmitLoadSymbol(sym, compiler.LoadDeref)
	qc.gen.EndMethod()

	var flags ResultFlags
	switch {
	case t == compiler.Boolean:
		flags |= BoolResult
	case t.IsArray():
		flags |= ReadOnlyResult
	}
	q.Locals = append(q.Locals, LocalEntry{Name: sym.Name, Method: name, Type: t, Flags: flags})
}
