package compiler

import "fmt"

// SubRange is an array's declared bounds.
type SubRange struct {
	From int32
	To   int32
}

func (r SubRange) String() string {
	return fmt.Sprintf("%d..%d", r.From, r.To)
}

// Length returns the number of elements, never negative.
func (r *SubRange) Length() int32 {
	if r == nil {
		return 0
	}
	n := r.To - r.From + 1
	if n < 0 {
		return 0
	}
	return n
}

// Variable is a declaration: a parameter, local or global before it is
// entered into the symbol table.
type Variable struct {
	Type     *IrisType
	Name     string
	SubRange *SubRange // arrays only
}

func NewVariable(t *IrisType, name string) *Variable {
	return &Variable{Type: t, Name: name}
}

func (v *Variable) String() string {
	sub := ""
	if v.SubRange != nil {
		sub = "[" + v.SubRange.String() + "]"
	}
	return fmt.Sprintf("%s%s : %s", v.Name, sub, v.Type)
}
