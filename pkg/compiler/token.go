package compiler

import "fmt"

// TokenType identifies the category of the lexer's current token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function name
	NUMBER     // decimal or #hex integer literal
	STRING_LIT // string literal '...'

	// Lexer-internal, never returned from MoveNext
	EOL  // end of the current line
	SKIP // nothing produced (comment, bad character)

	// Punctuation and operators
	LPAREN    // (
	RPAREN    // )
	LBRACKET  // [
	RBRACKET  // ]
	COLON     // :
	SEMICOLON // ;
	ASSIGN    // :=
	EQUAL     // =
	NOT_EQ    // <>
	PLUS      // +
	MINUS     // -
	STAR      // *
	SLASH     // /
	PERCENT   // %
	COMMA     // ,
	PERIOD    // .
	GREATER   // >
	LESS      // <
	GREATER_EQ
	LESS_EQ
	DOTDOT // ..

	// Keywords
	AND
	ARRAY
	BEGIN
	BOOLEAN
	DO
	ELSE
	END
	FALSE
	FOR
	IF
	INTEGER
	FUNCTION
	OF
	OR
	NOT
	PROCEDURE
	PROGRAM
	REPEAT
	STRING
	THEN
	TO
	TRUE
	UNTIL
	VAR
	WHILE
)

const firstKeyword = AND

var tokenNames = [...]string{
	EOF:        "end of file",
	IDENTIFIER: "identifier",
	NUMBER:     "numeric constant",
	STRING_LIT: "string constant",
	EOL:        "end of line",
	SKIP:       "skip",
	LPAREN:     "'('",
	RPAREN:     "')'",
	LBRACKET:   "'['",
	RBRACKET:   "']'",
	COLON:      "':'",
	SEMICOLON:  "';'",
	ASSIGN:     "':='",
	EQUAL:      "'='",
	NOT_EQ:     "'<>'",
	PLUS:       "'+'",
	MINUS:      "'-'",
	STAR:       "'*'",
	SLASH:      "'/'",
	PERCENT:    "'%'",
	COMMA:      "','",
	PERIOD:     "'.'",
	GREATER:    "'>'",
	LESS:       "'<'",
	GREATER_EQ: "'>='",
	LESS_EQ:    "'<='",
	DOTDOT:     "'..'",
	AND:        "'and'",
	ARRAY:      "'array'",
	BEGIN:      "'begin'",
	BOOLEAN:    "'boolean'",
	DO:         "'do'",
	ELSE:       "'else'",
	END:        "'end'",
	FALSE:      "'false'",
	FOR:        "'for'",
	IF:         "'if'",
	INTEGER:    "'integer'",
	FUNCTION:   "'function'",
	OF:         "'of'",
	OR:         "'or'",
	NOT:        "'not'",
	PROCEDURE:  "'procedure'",
	PROGRAM:    "'program'",
	REPEAT:     "'repeat'",
	STRING:     "'string'",
	THEN:       "'then'",
	TO:         "'to'",
	TRUE:       "'true'",
	UNTIL:      "'until'",
	VAR:        "'var'",
	WHILE:      "'while'",
}

// String returns the display name used in diagnostics: quoted literal text
// for punctuation and keywords, a phrase for literal categories.
func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// IsKeyword reports whether tt is a reserved word.
func (tt TokenType) IsKeyword() bool {
	return tt >= firstKeyword && int(tt) < len(tokenNames)
}

// keywords maps lowercased source text to its keyword TokenType. It is
// built once at package init and only read afterwards.
var keywords = func() map[string]TokenType {
	m := make(map[string]TokenType)
	for tt := firstKeyword; int(tt) < len(tokenNames); tt++ {
		name := tokenNames[tt]
		m[name[1:len(name)-1]] = tt
	}
	return m
}()
