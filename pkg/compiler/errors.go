package compiler

import (
	"fmt"
	"strings"
)

// Error is one compile diagnostic.
type Error struct {
	Position FilePosition
	Text     string
}

func (e Error) String() string {
	return fmt.Sprintf("(%d, %d) %s", e.Position.Line, e.Position.Column, e.Text)
}

// ErrorList accumulates diagnostics in the order they are reported. It never
// deduplicates.
type ErrorList struct {
	errors []Error
}

// Add appends a diagnostic at fp.
func (l *ErrorList) Add(fp FilePosition, text string) {
	l.errors = append(l.errors, Error{Position: fp, Text: text})
}

// Count returns the number of diagnostics.
func (l *ErrorList) Count() int {
	return len(l.errors)
}

// First returns the formatted first diagnostic, or "" when there is none.
func (l *ErrorList) First() string {
	if len(l.errors) == 0 {
		return ""
	}
	return l.errors[0].String()
}

// List returns the diagnostics. The slice must not be modified.
func (l *ErrorList) List() []Error {
	return l.errors
}

func (l *ErrorList) String() string {
	var sb strings.Builder
	for _, e := range l.errors {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
