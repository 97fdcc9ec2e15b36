package compiler

import "fmt"

// FilePosition is a 1-based (line, column) location in the source text.
type FilePosition struct {
	Line   int
	Column int
}

// Begin is the position of the first character of any input.
var Begin = FilePosition{Line: 1, Column: 1}

// Expand returns the range from p to the same line, columns further right.
func (p FilePosition) Expand(columns int) SourceRange {
	return SourceRange{Start: p, End: FilePosition{Line: p.Line, Column: p.Column + columns}}
}

func (p FilePosition) String() string {
	return fmt.Sprintf("(%d, %d)", p.Line, p.Column)
}

// SourceRange spans Start to End. It may be zero width.
type SourceRange struct {
	Start FilePosition
	End   FilePosition
}
