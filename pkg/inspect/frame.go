// Package inspect compiles debugger queries against a paused frame of an
// Iris program: watch expressions, assignments and the locals list. Each
// query is a small CIL module whose methods take the paused method's
// arguments and locals and reach the program's globals and methods
// through its assembly name.
package inspect

import (
	"strings"

	"iris/pkg/compiler"
	"iris/pkg/ilasm"
)

const mainMethodName = "$.main"

// Local is a local variable of the paused method and the slot it lives in.
type Local struct {
	Name string
	Type *compiler.IrisType
	Slot int
}

// Frame is the compiler's view of a paused method: its signature, its
// locals and the globals and methods of the program that declares it.
type Frame struct {
	Program string // assembly and class name of the program
	Method  string
	Returns *compiler.IrisType
	Params  []*compiler.Variable
	Locals  []Local
	Globals []*compiler.Variable
	// Methods holds the program's methods; each Type is a function or
	// procedure type.
	Methods []*compiler.Variable
}

// Type returns the paused method's type.
func (f *Frame) Type() *compiler.IrisType {
	if f.Returns == compiler.Void {
		return compiler.NewProcedure(f.Params)
	}
	return compiler.NewFunction(f.Returns, f.Params)
}

// ImportFrame describes method of module m. Members whose types cannot be
// expressed in Iris are dropped.
func ImportFrame(m *ilasm.Module, method *ilasm.Method) *Frame {
	f := &Frame{
		Program: m.Name,
		Method:  method.Name,
		Returns: typeFromCIL(method.Returns),
		Params:  importVariables(method.Params),
	}

	for i, l := range method.Locals {
		f.Locals = append(f.Locals, Local{Name: l.Name, Type: typeFromCIL(l.Type), Slot: i})
	}

	for _, field := range m.Fields {
		t := typeFromCIL(field.Type)
		if t != compiler.Invalid {
			f.Globals = append(f.Globals, compiler.NewVariable(t, field.Name))
		}
	}

	for _, pm := range m.Methods {
		mf := &Frame{Returns: typeFromCIL(pm.Returns), Params: importVariables(pm.Params)}
		if !mf.valid() {
			continue
		}
		f.Methods = append(f.Methods, compiler.NewVariable(mf.Type(), pm.Name))
	}
	return f
}

func (f *Frame) valid() bool {
	if f.Returns == compiler.Invalid {
		return false
	}
	for _, p := range f.Params {
		if p.Type == compiler.Invalid {
			return false
		}
	}
	return true
}

func importVariables(vars []ilasm.Variable) []*compiler.Variable {
	out := make([]*compiler.Variable, len(vars))
	for i, v := range vars {
		out[i] = compiler.NewVariable(typeFromCIL(v.Type), v.Name)
	}
	return out
}

// typeFromCIL maps a CIL type spelling back to an Iris type.
func typeFromCIL(t string) *compiler.IrisType {
	switch t {
	case "int32":
		return compiler.Integer
	case "bool":
		return compiler.Boolean
	case "string":
		return compiler.String
	case "void":
		return compiler.Void
	}

	if elem, ok := strings.CutSuffix(t, "[]"); ok {
		et := typeFromCIL(elem)
		if !et.IsPrimitive() {
			return compiler.Invalid
		}
		return et.MakeArray()
	}
	if elem, ok := strings.CutSuffix(t, "&"); ok {
		et := typeFromCIL(elem)
		if et == compiler.Invalid || et == compiler.Void || et.IsByRef() {
			return compiler.Invalid
		}
		return et.MakeByRef()
	}
	return compiler.Invalid
}

// FrameName returns the call stack text for f. The main block has a
// fixed name; otherwise names and types select what is shown of each
// parameter.
func FrameName(f *Frame, names, types bool) string {
	if f.Method == mainMethodName {
		return "<Main Block>"
	}
	if !names && !types || len(f.Params) == 0 {
		return f.Method
	}

	var sb strings.Builder
	sb.WriteString(f.Method)
	sb.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString("; ")
		}
		t := p.Type
		if t.IsByRef() {
			sb.WriteString("var ")
			t = t.ElementType()
		}
		if names {
			sb.WriteString(p.Name)
		}
		if names && types {
			sb.WriteString(" : ")
		}
		if types {
			sb.WriteString(t.String())
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// FrameReturnType returns the text of the paused method's result type.
func FrameReturnType(f *Frame) string {
	return f.Returns.String()
}
