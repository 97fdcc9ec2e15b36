package compiler

import "fmt"

// parseStatements parses statements separated by ';' up to and including
// endToken. A block's first statement may not be empty.
func (t *Translator) parseStatements(endToken TokenType) {
	var fp FilePosition
	allowEmpty := false
	for {
		t.parseStatement(allowEmpty)
		allowEmpty = true
		fp = t.lexer.TokenStart()
		if t.Accept(EOF) {
			t.AddErrorAtLastParsed(fmt.Sprintf("Unexpected end of file looking for %s.", endToken))
			return
		}
		if !t.Accept(SEMICOLON) {
			break
		}
	}

	if !t.Accept(endToken) {
		// a missing ';' ends the loop above
		t.AddErrorAtTokenStart("Expecting ';'.")
		t.skipToNextEnd()
	}

	t.gen.EmitNonCodeLineInfo(SourceRange{Start: fp, End: t.lastParsed})
}

func (t *Translator) parseStatement(allowEmpty bool) {
	start := t.lexer.TokenStart()
	t.gen.BeginSourceLine(start)

	switch {
	case t.Accept(FOR):
		t.parseFor(start)
	case t.Accept(WHILE):
		t.parseWhile()
	case t.Accept(REPEAT):
		t.parseRepeat(start)
	case t.Accept(IF):
		t.parseIf()
	case t.Accept(BEGIN):
		t.gen.EmitNonCodeLineInfo(SourceRange{Start: start, End: t.lastParsed})
		t.parseStatements(END)
	case t.Accept(IDENTIFIER):
		t.parseAssignmentOrCall()
	case t.Accept(ELSE):
		t.AddErrorAtTokenStart("Cannot start statement with 'else' or unexpected ';' after if statement.")
		t.skipStatement()
	case !allowEmpty && !t.Accept(SEMICOLON):
		t.AddErrorAtLastParsed("Expecting statement.")
		t.skipStatement()
	}
}

// parseFor translates
//
//	for i := from to bound do body
//
// The bound is evaluated before every iteration.
func (t *Translator) parseFor(start FilePosition) {
	fp := t.lexer.TokenStart()
	if !t.Accept(IDENTIFIER) {
		t.AddError(fp, "Expecting integer identifier.")
		t.skipStatement()
		return
	}

	iterator := t.lookupSymbol(fp, t.lexeme)
	t.verifyExpressionType(fp, Deref(iterator.Type), Integer)
	byRef := iterator.Type.IsByRef()
	if byRef {
		t.EmitLoadSymbol(iterator, LoadRaw)
	}

	t.expect(ASSIGN)
	fp = t.lexer.TokenStart()
	rhs := t.ParseExpression(LoadDeref)
	t.verifyExpressionType(fp, rhs, Integer)

	if byRef {
		t.gen.Store(rhs)
	} else {
		t.EmitStoreSymbol(iterator)
	}

	t.expect(TO)

	loopLabel := t.newLabel()
	t.gen.Label(loopLabel)
	t.EmitLoadSymbol(iterator, LoadDeref)
	fp = t.lexer.TokenStart()
	rhs = t.ParseExpression(LoadDeref)
	t.verifyExpressionType(fp, rhs, Integer)
	exitLabel := t.newLabel()
	t.gen.BranchCondition(OpGreaterThan, exitLabel)

	t.expect(DO)
	forEnd := t.lastParsed
	t.gen.EndSourceLine(forEnd)
	t.parseStatement(false)

	// the increment is attributed to the loop header
	t.gen.BeginSourceLine(start)
	t.increment(iterator)
	t.gen.Goto(loopLabel)
	t.gen.Label(exitLabel)
	t.gen.EndSourceLine(forEnd)
}

func (t *Translator) parseWhile() {
	loopLabel := t.newLabel()
	t.gen.Label(loopLabel)

	fp := t.lexer.TokenStart()
	typ := t.ParseExpression(LoadDeref)
	t.verifyExpressionType(fp, typ, Boolean)
	exitLabel := t.newLabel()
	t.gen.BranchFalse(exitLabel)

	t.expect(DO)
	t.gen.EndSourceLine(t.lastParsed)

	t.parseStatement(false)
	t.gen.Goto(loopLabel)
	t.gen.Label(exitLabel)
}

// parseRepeat loops back while the until condition is false.
func (t *Translator) parseRepeat(start FilePosition) {
	loopLabel := t.newLabel()
	t.gen.Label(loopLabel)
	t.gen.EmitNonCodeLineInfo(SourceRange{Start: start, End: t.lastParsed})

	t.parseStatements(UNTIL)

	fp := t.lexer.TokenStart()
	typ := t.ParseExpression(LoadDeref)
	t.verifyExpressionType(fp, typ, Boolean)
	t.gen.BranchFalse(loopLabel)

	t.gen.EndSourceLine(t.lastParsed)
}

// parseIf translates an if statement. 'else if' chains recurse.
func (t *Translator) parseIf() {
	fp := t.lexer.TokenStart()
	typ := t.ParseExpression(LoadDeref)
	t.verifyExpressionType(fp, typ, Boolean)
	t.expect(THEN)

	elseLabel := t.newLabel()
	t.gen.BranchFalse(elseLabel)
	t.gen.EndSourceLine(t.lastParsed)

	t.parseStatement(false)

	endOfIf := t.lastParsed
	elseStart := t.lexer.TokenStart()
	if !t.Accept(ELSE) {
		t.gen.Label(elseLabel)
		return
	}

	endLabel := t.newLabel()
	t.gen.Goto(endLabel)
	t.gen.Label(elseLabel)
	t.gen.EndSourceLine(endOfIf)
	t.gen.BeginSourceLine(elseStart)
	if t.Accept(IF) {
		t.parseIf()
	} else {
		t.gen.EmitNonCodeLineInfo(elseStart.Expand(len("else")))
		t.parseStatement(false)
	}
	t.gen.Label(endLabel)
}

// parseAssignmentOrCall handles statements starting with an identifier,
// which has already been accepted.
func (t *Translator) parseAssignmentOrCall() {
	fp := t.lexer.TokenStart()
	name := t.lexeme
	sym := t.lookupSymbol(fp, name)
	lhs := sym.Type
	assign := false
	isArray := false

	if t.Accept(LBRACKET) {
		isArray = true
		lhs = t.processArrayAccess(fp, sym, LoadRaw)
	}

	if t.Accept(ASSIGN) {
		assign = true
		indirect := false
		if lhs.IsByRef() {
			lhs = lhs.ElementType()
			t.EmitLoadSymbol(sym, LoadRaw)
			indirect = true
		}

		exprPos := t.lexer.TokenStart()
		rhs := t.ParseExpression(LoadDeref)

		switch {
		case lhs.IsMethod():
			t.AddError(fp, "Cannot assign to result of function or procedure call.")
		case lhs != Invalid:
			if rhs == Void {
				t.AddError(fp, "Cannot use procedure in assignment statement.")
			} else if rhs != Invalid && rhs != lhs {
				t.AddError(exprPos, fmt.Sprintf("Cannot assign to '%s' (type mismatch error).", name))
			}

			switch {
			case isArray:
				t.gen.StoreElement(lhs)
			case indirect:
				t.gen.Store(lhs)
			default:
				t.EmitStoreSymbol(sym)
			}
		}
	} else if isArray {
		// only an assignment can start with a subscript
		t.AddErrorAtTokenStart("Expecting ':='.")
		t.skipStatement()
	}

	if !assign && !isArray {
		skipArgList := !t.Accept(LPAREN)
		t.processCall(fp, sym, skipArgList)
		if sym.Type.IsFunction() {
			t.gen.Pop()
		}
	}

	t.gen.EndSourceLine(t.lastParsed)
}
