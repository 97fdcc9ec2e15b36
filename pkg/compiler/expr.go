package compiler

import "fmt"

// ParseExpression parses a full expression and returns its type. mode is
// LoadAddress when the expression is passed to a by-ref parameter.
func (t *Translator) ParseExpression(mode LoadMode) *IrisType {
	lhs := t.parseCompare(mode)
	fp := t.lexer.TokenStart()
	if op := t.acceptOperator(logicOps); op != OpNone {
		t.verifyExpressionType(fp, lhs, Boolean)
		rhs := t.ParseExpression(mode)
		t.verifyExpressionType(fp, rhs, Boolean)
		t.gen.Operator(op)
	}
	return lhs
}

// parseCompare translates a comparison. Strings are compared through
// strcmp and its result is compared against zero.
func (t *Translator) parseCompare(mode LoadMode) *IrisType {
	lhs := t.parseArithmetic(mode)
	fp := t.lexer.TokenStart()
	op := t.acceptOperator(compareOps)
	if op == OpNone {
		return lhs
	}

	rhs := t.parseCompare(mode)
	if lhs == String && rhs == String {
		t.gen.Call(t.lookupSymbol(fp, StrCmpName))
		t.gen.PushIntConst(0)
	}
	t.gen.Operator(op)
	return t.applyTypeRules(fp, lhs, rhs, true)
}

func (t *Translator) parseArithmetic(mode LoadMode) *IrisType {
	lhs := t.parseTerm(mode)
	fp := t.lexer.TokenStart()
	if op := t.acceptOperator(arithmeticOps); op != OpNone {
		rhs := t.parseArithmetic(mode)
		return t.processArithmeticOperator(fp, lhs, rhs, op)
	}
	return lhs
}

func (t *Translator) parseTerm(mode LoadMode) *IrisType {
	lhs := t.parseFactor(mode)
	fp := t.lexer.TokenStart()
	if op := t.acceptOperator(termOps); op != OpNone {
		rhs := t.parseTerm(mode)
		return t.processArithmeticOperator(fp, lhs, rhs, op)
	}
	return lhs
}

func (t *Translator) processArithmeticOperator(fp FilePosition, lhs, rhs *IrisType, op Operator) *IrisType {
	result := t.applyTypeRules(fp, lhs, rhs, false)
	switch result {
	case String:
		if op != OpAdd {
			t.AddError(fp, "Only the '+' or comparison operators can be used on string values.")
		}
		t.gen.Call(t.lookupSymbol(fp, ConcatName))
	case Boolean:
		t.AddError(fp, "Arithmetic operators cannot be applied to boolean values.")
		return Invalid
	default:
		t.gen.Operator(op)
	}
	return result
}

func (t *Translator) parseFactor(mode LoadMode) *IrisType {
	op := t.acceptOperator(factorOps)
	fp := t.lexer.TokenStart()
	typ := t.parseBase(mode)
	if op == OpNone {
		return typ
	}

	typ = Deref(typ)
	switch {
	case typ == String:
		t.AddError(fp, "Unary operators cannot be applied to string values.")
	case op == OpNot:
		t.verifyExpressionType(fp, typ, Boolean)
	case op == OpNegate && typ == Boolean:
		t.AddError(fp, "Unary negate operator cannot be applied to boolean values.")
	}
	t.gen.Operator(op)
	return typ
}

func (t *Translator) parseBase(mode LoadMode) *IrisType {
	fp := t.lastParsed
	switch {
	case t.Accept(IDENTIFIER):
		sym := t.lookupSymbol(fp, t.lexeme)

		if t.Accept(LBRACKET) {
			elemMode := LoadElement
			if mode == LoadAddress {
				elemMode = LoadElementAddress
			}
			return t.processArrayAccess(fp, sym, elemMode)
		}
		if t.Accept(LPAREN) {
			return t.processCall(fp, sym, false)
		}

		typ := sym.Type
		if typ.IsMethod() {
			return t.processCall(fp, sym, true)
		}
		if typ != Invalid {
			t.EmitLoadSymbol(sym, mode)
		}

		switch {
		case mode == LoadAddress && !typ.IsByRef():
			return typ.MakeByRef()
		case mode == LoadDeref:
			return Deref(typ)
		}
		return typ

	case t.Accept(TRUE):
		t.gen.PushIntConst(1)
		return Boolean

	case t.Accept(FALSE):
		t.gen.PushIntConst(0)
		return Boolean

	case t.Accept(NUMBER):
		t.gen.PushIntConst(t.lastInteger)
		return Integer

	case t.Accept(STRING_LIT):
		t.gen.PushString(t.lexeme)
		return String

	case t.Accept(LPAREN):
		typ := t.ParseExpression(mode)
		t.expect(RPAREN)
		return typ
	}

	t.AddError(fp, "Expecting expression.")
	return Invalid
}

// processArrayAccess translates the subscript of sym once '[' has been
// accepted. The index is parsed even when sym is not an array.
func (t *Translator) processArrayAccess(fp FilePosition, sym *Symbol, mode LoadMode) *IrisType {
	result := Invalid
	if sym.Type != Invalid {
		if !sym.Type.IsArray() {
			t.AddError(fp, fmt.Sprintf("Symbol '%s' is not an array, but is being used as an array.", t.lexeme))
		} else {
			t.EmitLoadSymbol(sym, LoadDeref)
			result = sym.Type.ElementType()
		}
	}

	indexPos := t.lexer.TokenStart()
	if index := t.ParseExpression(LoadDeref); index != Integer {
		t.AddError(indexPos, "Expecting integer value as array index.")
	}

	t.expect(RBRACKET)

	if result != Invalid {
		switch mode {
		case LoadElementAddress:
			t.gen.LoadElementAddress(result)
			result = result.MakeByRef()
		case LoadElement:
			t.gen.LoadElement(result)
		}
	}
	return result
}

// processCall translates a call of sym. skipArgList is set when no '(' was
// present. A variable that shadows a global method can still be called.
func (t *Translator) processCall(fp FilePosition, sym *Symbol, skipArgList bool) *IrisType {
	t.parsedCall = true

	if !sym.Type.IsMethod() {
		if global := t.symbols.LookupGlobal(sym.Name); global != nil && global.Type.IsMethod() {
			sym = global
		}
	}
	symType := sym.Type

	semanticError := symType == Invalid
	if !symType.IsMethod() && !semanticError {
		semanticError = true
		t.AddError(fp, fmt.Sprintf("Symbol '%s' is not a procedure or function.", t.lexeme))
	}

	kind := "procedure"
	if symType.IsFunction() {
		kind = "function"
	}
	var params []*Variable
	if symType.IsMethod() {
		params = symType.Params()
	}

	count := 0
	if !skipArgList && !t.Accept(RPAREN) {
		for {
			argPos := t.lexer.TokenStart()
			if symType.IsMethod() && count < len(params) {
				param := params[count]
				argMode := LoadDeref
				if param.Type.IsByRef() {
					argMode = LoadAddress
				}
				argType := t.ParseExpression(argMode)

				if param.Type != Invalid && argType != Invalid && param.Type != argType {
					if param.Type.IsByRef() && !argType.IsByRef() {
						t.AddError(argPos, "Cannot take address of constant, call, or expression.")
					} else {
						t.AddError(argPos, fmt.Sprintf("Argument type doesn't match parameter '%s' of %s '%s'",
							param.Name, kind, sym.Name))
					}
				}
			} else {
				// undefined callee or surplus argument
				t.ParseExpression(LoadDeref)
			}

			count++
			if !t.Accept(COMMA) {
				break
			}
		}
		t.expect(RPAREN)
	}

	if symType.IsMethod() && len(params) != count {
		t.AddError(fp, fmt.Sprintf("Wrong number of arguments for %s '%s'.  %d expected.  %d provided.",
			kind, sym.Name, len(params), count))
	}

	if semanticError {
		return Invalid
	}
	t.gen.Call(sym)
	return symType.ReturnType()
}

// applyTypeRules checks the operands of a binary operator. Checks run in a
// fixed order: procedure result, address, mismatch, non-primitive.
func (t *Translator) applyTypeRules(fp FilePosition, lhs, rhs *IrisType, boolResult bool) *IrisType {
	if lhs == Invalid || rhs == Invalid {
		return Invalid
	}

	msg := ""
	switch {
	case lhs == Void || rhs == Void:
		msg = "Cannot apply operator to procedure call."
	case lhs.IsByRef() || rhs.IsByRef():
		msg = "Cannot take address of expression."
	case lhs != rhs:
		msg = "Type mismatch error."
	case !lhs.IsPrimitive():
		msg = "Operator requires a primitive type (boolean, integer, or string)."
	}
	if msg != "" {
		t.AddError(fp, msg)
		return Invalid
	}

	if boolResult {
		return Boolean
	}
	return lhs
}
