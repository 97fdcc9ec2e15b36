package compiler

import (
	"strconv"
)

// declaration is a parsed variable together with where its name appeared.
type declaration struct {
	v  *Variable
	fp FilePosition
}

func (t *Translator) parseProgram() {
	programName := defaultProgramName
	if t.Accept(PROGRAM) {
		if t.Accept(IDENTIFIER) {
			programName = t.lexeme
		} else {
			t.AddErrorAtTokenStart("Expecting program name.")
		}
		t.expect(SEMICOLON)
	}

	t.trace.Infof("program %s", programName)
	t.emitter.BeginProgram(programName, t.refs)

	var globals []declaration
	if t.Accept(VAR) {
		globals = t.parseVariableList(globals, false)
		for _, decl := range globals {
			if t.validateName(decl.fp, decl.v.Name, true) {
				sym := t.symbols.Add(decl.v.Name, decl.v.Type, Global, nil)
				t.emitter.DeclareGlobal(sym)
			}
		}
	}

	blockBegin := t.lexer.TokenStart()
	for !t.Accept(BEGIN) {
		switch {
		case t.Accept(EOF):
			t.AddErrorAtLastParsed("Unexpected end of file looking for main block.")
			return
		case t.Accept(FUNCTION):
			t.parseMethod(true)
		case t.Accept(PROCEDURE):
			t.parseMethod(false)
		case t.Accept(VAR):
			t.AddErrorAtTokenStart("Global variables must be declared before the first function or procedure.")
			t.parseVariableList(nil, false)
		case !t.Accept(SEMICOLON):
			t.AddErrorAtTokenStart("Expecting 'function', 'procedure', or 'begin'.")
			t.skipToNextEnd()
		}
		blockBegin = t.lexer.TokenStart()
	}

	mainSym := t.symbols.OpenMethod(mainMethodName, NewProcedure(nil))
	t.gen.BeginMethod(mainSym.Name, Void, nil, nil, true, &t.filePath)
	t.gen.EmitNonCodeLineInfo(blockBegin.Expand(len("begin")))

	for _, decl := range globals {
		t.initializeVariable(blockBegin, decl.v)
	}

	t.parseStatements(END)
	t.gen.EndMethod()

	t.Accept(PERIOD)
	t.expect(EOF)

	t.emitter.EndProgram()
	t.trace.Infof("end of program %s, %d error(s)", programName, t.errors.Count())
}

func (t *Translator) parseMethod(isFunction bool) {
	namePos := t.lexer.TokenStart()
	if !t.Accept(IDENTIFIER) {
		t.AddError(namePos, "Expecting procedure or function name.")
		t.skipToNextEnd()
		return
	}

	methodName := t.lexeme
	if !t.validateName(namePos, methodName, true) {
		methodName = strconv.Itoa(t.nextUniqueName)
		t.nextUniqueName++
	}

	var paramDecls []declaration
	if t.Accept(LPAREN) && !t.Accept(RPAREN) {
		paramDecls = t.parseVariableList(paramDecls, true)
		t.expect(RPAREN)
	}

	returnType := Void
	if t.Accept(COLON) {
		returnType = t.parseType(nil, false)
		if !isFunction {
			t.AddErrorAtTokenStart("Procedure cannot have return value.")
		}
	} else if isFunction {
		t.AddErrorAtTokenStart("Expecting return type for function.")
		returnType = Invalid
	}

	t.expect(SEMICOLON)

	params := make([]*Variable, len(paramDecls))
	for i, decl := range paramDecls {
		params[i] = decl.v
	}
	var methodType *IrisType
	if isFunction {
		methodType = NewFunction(returnType, params)
	} else {
		methodType = NewProcedure(params)
	}

	methodSym := t.symbols.OpenMethod(methodName, methodType)
	t.trace.Infof("method %s : %s", methodName, methodType)

	for _, decl := range paramDecls {
		if t.validateName(decl.fp, decl.v.Name, false) {
			t.symbols.Add(decl.v.Name, decl.v.Type, Argument, nil)
		}
	}

	var locals []*Variable
	if isFunction {
		// the result lives in local 0, named after the function
		t.symbols.Add(methodName, returnType, Local, nil)
		locals = append(locals, NewVariable(returnType, methodName))
	}

	if t.Accept(VAR) {
		localDecls := t.parseVariableList(nil, false)
		t.Accept(SEMICOLON)

		for _, decl := range localDecls {
			if t.validateName(decl.fp, decl.v.Name, false) {
				t.symbols.Add(decl.v.Name, decl.v.Type, Local, nil)
				locals = append(locals, decl.v)
			}
		}
	}

	begin := t.lexer.TokenStart()
	t.gen.BeginMethod(methodSym.Name, returnType, params, locals, false, &t.filePath)
	t.gen.EmitNonCodeLineInfo(begin.Expand(len("begin")))

	for _, v := range locals {
		t.initializeVariable(begin, v)
	}

	t.expect(BEGIN)
	t.parseStatements(END)

	if isFunction {
		t.gen.PushLocal(0)
	}
	t.gen.EndMethod()

	t.symbols.CloseMethod()
}

// initializeVariable emits the initial value of string and array
// variables: the empty string, or a new array whose string elements are
// set to the empty string.
func (t *Translator) initializeVariable(fp FilePosition, v *Variable) {
	if !v.Type.IsArray() && v.Type != String {
		return
	}

	sym := t.symbols.Lookup(v.Name)
	if v.Type.IsArray() {
		t.gen.InitArray(sym, v.SubRange)
		if v.Type.ElementType() == String {
			t.EmitLoadSymbol(sym, LoadRaw)
			t.gen.Call(t.lookupSymbol(fp, InitStrArrayName))
		}
	} else {
		t.gen.PushGlobal(t.lookupSymbol(fp, EmptyStringName))
		t.EmitStoreSymbol(sym)
	}
	t.gen.EmitDeferredInstructions()
}

// parseVariableList appends the declarations of a var section or a
// parameter list to decls. Parameters may be marked var to pass them by
// reference; declarations must give array bounds, parameters must not.
func (t *Translator) parseVariableList(decls []declaration, isArgumentList bool) []declaration {
	first := true
	for {
		byRef := isArgumentList && t.Accept(VAR)

		nameStart := t.lexer.TokenStart()
		if !t.Accept(IDENTIFIER) {
			if !isArgumentList && !first {
				// trailing ';' after the last declaration
				return decls
			}
			t.AddErrorAtTokenStart("Expecting variable name.")
			t.skipStatement()
			return decls
		}
		first = false

		names := []declaration{{v: &Variable{Name: t.lexeme}, fp: nameStart}}
		for t.Accept(COMMA) {
			nameStart = t.lexer.TokenStart()
			if !t.Accept(IDENTIFIER) {
				t.AddErrorAtTokenStart("Expecting variable name after ','.")
			} else {
				names = append(names, declaration{v: &Variable{Name: t.lexeme}, fp: nameStart})
			}
		}

		t.expect(COLON)

		var sub *SubRange
		typ := t.parseType(&sub, !isArgumentList)
		if byRef {
			typ = typ.MakeByRef()
		}

		for _, n := range names {
			n.v.Type = typ
			n.v.SubRange = sub
			decls = append(decls, n)
		}

		if !t.Accept(SEMICOLON) {
			return decls
		}
	}
}

// parseType parses a type. When sub is non-nil it receives an array's
// bounds; expectSubRange says whether bounds are required or forbidden.
func (t *Translator) parseType(sub **SubRange, expectSubRange bool) *IrisType {
	if t.Accept(ARRAY) {
		var bounds *SubRange
		dimPos := t.lexer.TokenStart()
		if t.Accept(LBRACKET) {
			t.expect(NUMBER)
			from := t.lastInteger
			t.expect(DOTDOT)
			t.expect(NUMBER)
			to := t.lastInteger
			t.expect(RBRACKET)
			bounds = &SubRange{From: from, To: to}
		}

		if expectSubRange {
			if bounds == nil {
				t.AddError(dimPos, "Expecting array subrange.")
			} else if bounds.From != 0 {
				t.AddError(dimPos, "Iris only support arrays that start at index zero.")
			}
		} else if bounds != nil {
			t.AddError(dimPos, "Not expecting array subrange here.")
		}
		if sub != nil {
			*sub = bounds
		}

		t.expect(OF)
		typ := t.parsePrimitiveType()
		if typ == Invalid {
			t.AddErrorAtTokenStart("Expecting  'integer', 'string', or 'boolean'")
			return typ
		}
		return typ.MakeArray()
	}

	typ := t.parsePrimitiveType()
	if typ == Invalid {
		t.AddErrorAtTokenStart("Expecting  'integer', 'string', 'boolean', or 'array'")
	}
	return typ
}

func (t *Translator) parsePrimitiveType() *IrisType {
	switch {
	case t.Accept(INTEGER):
		return Integer
	case t.Accept(STRING):
		return String
	case t.Accept(BOOLEAN):
		return Boolean
	}
	return Invalid
}
