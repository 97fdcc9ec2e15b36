package compiler

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Lexer is a cursor over a line-oriented source stream. Current holds the
// token under the cursor; MoveNext advances it. Lexeme and integer values
// are queried from the lexer while their token is current.
type Lexer struct {
	src    io.Reader
	reader *bufio.Reader
	errors *ErrorList

	current  TokenType
	lineText []rune
	lineLen  int
	tokenLen int
	line     int
	col      int
	err      error
}

// NewLexer creates a lexer over r and primes the first token. Lexical
// diagnostics are appended to errs.
func NewLexer(r io.Reader, errs *ErrorList) *Lexer {
	l := &Lexer{
		src:     r,
		reader:  bufio.NewReader(r),
		errors:  errs,
		current: EOL,
	}
	l.MoveNext()
	return l
}

// Current returns the token under the cursor.
func (l *Lexer) Current() TokenType { return l.current }

// TokenStart returns the position of the first character of the current token.
func (l *Lexer) TokenStart() FilePosition {
	return FilePosition{Line: l.line, Column: l.col + 1}
}

// TokenEnd returns the position just past the current token.
func (l *Lexer) TokenEnd() FilePosition {
	return FilePosition{Line: l.line, Column: l.col + l.tokenLen + 1}
}

// Reset rewinds the source to its beginning and primes the first token.
// The source must implement io.Seeker.
func (l *Lexer) Reset() error {
	seeker, ok := l.src.(io.Seeker)
	if !ok {
		return errors.New("lexer source is not seekable")
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewinding lexer source")
	}
	l.reader.Reset(l.src)
	l.err = nil
	l.line = 0
	l.col = 0
	l.tokenLen = 0
	l.current = EOL
	l.MoveNext()
	return nil
}

// Err returns the first read error other than end of input. The lexer
// reports Eof once the source fails.
func (l *Lexer) Err() error { return l.err }

// MoveNext advances to the next real token, skipping line ends, comments
// and unrecognized characters.
func (l *Lexer) MoveNext() {
	for {
		if l.current != EOL && l.current != EOF {
			l.moveNextOnLine()
		}
		for l.current == EOL {
			l.beginNewLine()
		}
		if l.current != SKIP {
			return
		}
	}
}

// Lexeme returns the current token's text. String constants are returned
// without their quotes and with doubled quotes collapsed.
func (l *Lexer) Lexeme() string {
	lexeme := l.rawLexeme()
	if l.current == STRING_LIT {
		n := len(lexeme) - 1
		if strings.HasSuffix(lexeme, "'") {
			n--
		}
		if n < 0 {
			n = 0
		}
		lexeme = strings.ReplaceAll(lexeme[1:1+n], "''", "'")
	}
	return lexeme
}

// ParseInteger converts the current number token. Out of range or malformed
// values report "Invalid numeric constant." and yield 0.
func (l *Lexer) ParseInteger() int32 {
	lexeme := l.rawLexeme()
	if strings.HasPrefix(lexeme, "#") {
		if v, err := strconv.ParseUint(lexeme[1:], 16, 32); err == nil {
			return int32(uint32(v))
		}
	} else if v, err := strconv.ParseInt(lexeme, 10, 32); err == nil {
		return int32(v)
	}

	l.addError("Invalid numeric constant.")
	return 0
}

func (l *Lexer) rawLexeme() string {
	if l.tokenLen == 0 {
		return ""
	}
	return string(l.lineText[l.col : l.col+l.tokenLen])
}

func (l *Lexer) addError(msg string) {
	l.errors.Add(FilePosition{Line: l.line, Column: l.col + 1}, msg)
}

// readLine returns the next line without its terminator. \n, \r\n and a
// lone \r all end a line. ok is false at end of input or after a read
// error, which is kept in err.
func (l *Lexer) readLine() (line []rune, ok bool) {
	if l.err != nil {
		return nil, false
	}
	read := false
	for {
		r, _, err := l.reader.ReadRune()
		if err != nil {
			if err != io.EOF {
				l.err = errors.Wrapf(err, "reading line %d", l.line)
				return nil, false
			}
			return line, read
		}
		read = true
		switch r {
		case '\n':
			return line, true
		case '\r':
			if next, _, err := l.reader.ReadRune(); err == nil && next != '\n' {
				l.reader.UnreadRune()
			}
			return line, true
		}
		line = append(line, r)
	}
}

func (l *Lexer) beginNewLine() {
	l.line++
	l.col = 0
	l.tokenLen = 0
	text, ok := l.readLine()
	if !ok {
		l.lineText = nil
		l.lineLen = 0
		l.current = EOF
		return
	}
	l.lineText = text
	l.lineLen = len(text)
	l.moveNextOnLine()
}

func (l *Lexer) moveNextOnLine() {
	l.acceptMany(isWhitespace)
	l.col += l.tokenLen

	if l.col >= l.lineLen {
		l.tokenLen = 0
		l.current = EOL
		return
	}

	l.tokenLen = 1
	c := l.lineText[l.col]
	if isAlpha(c) {
		l.scanWord()
		return
	}
	if isDigit(c) {
		l.current = NUMBER
		l.acceptMany(isDigit)
		return
	}

	switch c {
	case '(':
		l.current = LPAREN
	case ')':
		l.current = RPAREN
	case '[':
		l.current = LBRACKET
	case ']':
		l.current = RBRACKET
	case ':':
		if l.accept('=') {
			l.current = ASSIGN
		} else {
			l.current = COLON
		}
	case ';':
		l.current = SEMICOLON
	case '=':
		l.current = EQUAL
	case '+':
		l.current = PLUS
	case '-':
		l.current = MINUS
	case '*':
		l.current = STAR
	case '/':
		if l.accept('/') {
			// the rest of the line is a comment
			l.tokenLen = 0
			l.current = EOL
		} else {
			l.current = SLASH
		}
	case '%':
		l.current = PERCENT
	case ',':
		l.current = COMMA
	case '>':
		if l.accept('=') {
			l.current = GREATER_EQ
		} else {
			l.current = GREATER
		}
	case '<':
		switch {
		case l.accept('='):
			l.current = LESS_EQ
		case l.accept('>'):
			l.current = NOT_EQ
		default:
			l.current = LESS
		}
	case '_', '$':
		l.scanWord()
	case '#':
		l.current = NUMBER
		l.acceptMany(isHexDigit)
	case '\'':
		l.current = STRING_LIT
		l.scanString()
	case '.':
		if l.accept('.') {
			l.current = DOTDOT
		} else {
			l.current = PERIOD
		}
	case '{':
		l.skipBlockComment()
	default:
		l.addError("Unexpected character.")
		l.current = SKIP
	}
}

// scanWord collects an identifier or keyword. The first character is
// already counted in tokenLen.
func (l *Lexer) scanWord() {
	l.acceptMany(func(c rune) bool { return isAlpha(c) || isDigit(c) || c == '_' })
	if kw, ok := keywords[strings.ToLower(l.rawLexeme())]; ok {
		l.current = kw
	} else {
		l.current = IDENTIFIER
	}
}

func (l *Lexer) scanString() {
	for {
		l.acceptMany(func(c rune) bool { return c != '\'' })
		if !l.accept('\'') {
			l.addError("Unexpected end of line looking for end of string.")
			return
		}
		if !l.accept('\'') {
			return
		}
	}
}

// skipBlockComment discards everything up to and including the closing
// '}', reading further lines as needed.
func (l *Lexer) skipBlockComment() {
	l.col = indexRune(l.lineText, '}', l.col)
	for l.col == -1 {
		l.line++
		text, ok := l.readLine()
		if !ok {
			l.lineText = nil
			l.col = 0
			l.lineLen = 0
			l.current = EOF
			l.addError("Unexpected end of file looking for end of comment.")
			return
		}
		l.lineText = text
		l.lineLen = len(text)
		l.col = indexRune(text, '}', 0)
	}

	l.tokenLen = 0
	l.col++
	if l.col >= l.lineLen {
		l.current = EOL
	} else {
		l.current = SKIP
	}
}

func (l *Lexer) accept(c rune) bool {
	if l.peekNext() == c {
		l.tokenLen++
		return true
	}
	return false
}

func (l *Lexer) acceptMany(test func(rune) bool) {
	for {
		c := l.peekNext()
		if c == 0 || !test(c) {
			return
		}
		l.tokenLen++
	}
}

func (l *Lexer) peekNext() rune {
	next := l.col + l.tokenLen
	if next < l.lineLen {
		return l.lineText[next]
	}
	return 0
}

func indexRune(text []rune, r rune, from int) int {
	for i := from; i < len(text); i++ {
		if text[i] == r {
			return i
		}
	}
	return -1
}

func isWhitespace(c rune) bool { return c == ' ' || c == '\t' }

func isAlpha(c rune) bool { return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') }

func isDigit(c rune) bool { return c >= '0' && c <= '9' }

func isHexDigit(c rune) bool {
	return isDigit(c) || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}
