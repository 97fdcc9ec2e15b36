package compiler

import (
	"strings"
	"sync"
)

// TypeKind is the variant tag of an IrisType.
type TypeKind int

const (
	KindInvalid TypeKind = iota
	KindPrimitive
	KindArray
	KindByRef
	KindFunction
	KindProcedure
)

// IrisType is an interned type handle. Two handles denote the same type
// exactly when they are the same pointer, so types are always compared
// with ==.
type IrisType struct {
	kind   TypeKind
	name   string
	elem   *IrisType   // array and by-ref
	ret    *IrisType   // function
	params []*Variable // function and procedure
}

var (
	Invalid = &IrisType{kind: KindInvalid, name: "!invalid"}
	Integer = &IrisType{kind: KindPrimitive, name: "integer"}
	String  = &IrisType{kind: KindPrimitive, name: "string"}
	Boolean = &IrisType{kind: KindPrimitive, name: "boolean"}
	Void    = &IrisType{kind: KindPrimitive, name: "void"}
)

// compound types are memoized per element type for the whole process so
// that independent compilations share handles.
var (
	compoundMu sync.Mutex
	arrayTypes = make(map[*IrisType]*IrisType)
	byRefTypes = make(map[*IrisType]*IrisType)
)

// MakeArray returns the array type whose elements are t.
func (t *IrisType) MakeArray() *IrisType {
	compoundMu.Lock()
	defer compoundMu.Unlock()
	if at, ok := arrayTypes[t]; ok {
		return at
	}
	at := &IrisType{kind: KindArray, name: "array of " + t.String(), elem: t}
	arrayTypes[t] = at
	return at
}

// MakeByRef returns the reference type to t.
func (t *IrisType) MakeByRef() *IrisType {
	compoundMu.Lock()
	defer compoundMu.Unlock()
	if rt, ok := byRefTypes[t]; ok {
		return rt
	}
	rt := &IrisType{kind: KindByRef, name: t.String() + "&", elem: t}
	byRefTypes[t] = rt
	return rt
}

// NewFunction builds a function type. Method types are not interned.
func NewFunction(ret *IrisType, params []*Variable) *IrisType {
	return &IrisType{kind: KindFunction, name: "function", ret: ret, params: params}
}

// NewProcedure builds a procedure type.
func NewProcedure(params []*Variable) *IrisType {
	return &IrisType{kind: KindProcedure, name: "procedure", params: params}
}

func (t *IrisType) Kind() TypeKind { return t.kind }

func (t *IrisType) IsPrimitive() bool { return t == Integer || t == String || t == Boolean }
func (t *IrisType) IsArray() bool     { return t.kind == KindArray }
func (t *IrisType) IsByRef() bool     { return t.kind == KindByRef }
func (t *IrisType) IsFunction() bool  { return t.kind == KindFunction }
func (t *IrisType) IsProcedure() bool { return t.kind == KindProcedure }
func (t *IrisType) IsMethod() bool    { return t.kind == KindFunction || t.kind == KindProcedure }

// ElementType returns the element of an array or by-ref type. It panics on
// any other kind.
func (t *IrisType) ElementType() *IrisType {
	if t.elem == nil {
		panic("compiler: type " + t.String() + " does not have an element type")
	}
	return t.elem
}

// ReturnType returns a function's result type, Void for a procedure.
func (t *IrisType) ReturnType() *IrisType {
	if t.kind == KindFunction {
		return t.ret
	}
	return Void
}

// Params returns a copy of a method's parameter list.
func (t *IrisType) Params() []*Variable {
	if t.params == nil {
		return nil
	}
	out := make([]*Variable, len(t.params))
	copy(out, t.params)
	return out
}

func (t *IrisType) String() string {
	if !t.IsMethod() {
		return t.name
	}
	var sb strings.Builder
	sb.WriteString(t.name)
	sb.WriteByte('(')
	for i, p := range t.params {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteByte(')')
	if t.kind == KindFunction {
		sb.WriteString(" : ")
		sb.WriteString(t.ret.String())
	}
	return sb.String()
}

// Deref strips one level of by-ref from t.
func Deref(t *IrisType) *IrisType {
	if t.IsByRef() {
		return t.ElementType()
	}
	return t
}
