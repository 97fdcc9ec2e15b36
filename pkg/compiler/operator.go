package compiler

// Operator is a unary or binary operation applied by the generator.
type Operator int

const (
	OpNone Operator = iota

	// Compare
	OpEqual
	OpNotEqual
	OpLessThan
	OpLessThanEqual
	OpGreaterThan
	OpGreaterThanEqual

	// Arithmetic
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpModulo

	// Logical
	OpAnd
	OpOr

	// Unary
	OpNegate
	OpNot
)

var operatorNames = [...]string{
	OpNone:             "none",
	OpEqual:            "=",
	OpNotEqual:         "<>",
	OpLessThan:         "<",
	OpLessThanEqual:    "<=",
	OpGreaterThan:      ">",
	OpGreaterThanEqual: ">=",
	OpAdd:              "+",
	OpSubtract:         "-",
	OpMultiply:         "*",
	OpDivide:           "/",
	OpModulo:           "%",
	OpAnd:              "and",
	OpOr:               "or",
	OpNegate:           "neg",
	OpNot:              "not",
}

func (op Operator) String() string {
	if int(op) >= 0 && int(op) < len(operatorNames) {
		return operatorNames[op]
	}
	return "?"
}

// IsComparison reports whether op yields a boolean from two operands of the
// same type.
func (op Operator) IsComparison() bool {
	return op >= OpEqual && op <= OpGreaterThanEqual
}

// Invert returns the comparison that is true exactly when op is false. It
// panics for operators that are not comparisons.
func (op Operator) Invert() Operator {
	switch op {
	case OpEqual:
		return OpNotEqual
	case OpNotEqual:
		return OpEqual
	case OpLessThan:
		return OpGreaterThanEqual
	case OpGreaterThanEqual:
		return OpLessThan
	case OpLessThanEqual:
		return OpGreaterThan
	case OpGreaterThan:
		return OpLessThanEqual
	}
	panic("compiler: cannot invert operator " + op.String())
}

// Operator tables, one per precedence level, indexed by token.
var (
	logicOps = map[TokenType]Operator{
		AND: OpAnd,
		OR:  OpOr,
	}
	compareOps = map[TokenType]Operator{
		EQUAL:      OpEqual,
		NOT_EQ:     OpNotEqual,
		LESS:       OpLessThan,
		LESS_EQ:    OpLessThanEqual,
		GREATER:    OpGreaterThan,
		GREATER_EQ: OpGreaterThanEqual,
	}
	arithmeticOps = map[TokenType]Operator{
		PLUS:  OpAdd,
		MINUS: OpSubtract,
	}
	termOps = map[TokenType]Operator{
		STAR:    OpMultiply,
		SLASH:   OpDivide,
		PERCENT: OpModulo,
	}
	factorOps = map[TokenType]Operator{
		MINUS: OpNegate,
		NOT:   OpNot,
	}
)
