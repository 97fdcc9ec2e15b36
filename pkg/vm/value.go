package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the contents of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindString
	KindArray
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int32"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindRef:
		return "reference"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is one evaluation stack entry or storage slot. Integers and
// booleans are both KindInt. A reference points at the slot it was taken
// from: an argument, a local, a static field or an array element.
type Value struct {
	Kind Kind
	Int  int32
	Str  string
	Arr  *Array
	Ref  *Value
}

type Array struct {
	Elem  string
	Items []Value
}

func Int(i int32) Value { return Value{Kind: KindInt, Int: i} }

func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

func Str(s string) Value { return Value{Kind: KindString, Str: s} }

// NewArray returns an array of n zero elements of type elem.
func NewArray(elem string, n int) Value {
	a := &Array{Elem: elem, Items: make([]Value, n)}
	for i := range a.Items {
		a.Items[i] = Zero(elem)
	}
	return Value{Kind: KindArray, Arr: a}
}

// Zero returns the initial value of a slot of CIL type t: 0 for int32 and
// bool, null for everything else.
func Zero(t string) Value {
	switch t {
	case "int32", "bool":
		return Int(0)
	}
	return Value{}
}

// Text returns a string value's contents; null reads as empty.
func (v Value) Text() string {
	if v.Kind == KindString {
		return v.Str
	}
	return ""
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.Itoa(int(v.Int))
	case KindString:
		return strconv.Quote(v.Str)
	case KindArray:
		items := make([]string, len(v.Arr.Items))
		for i, item := range v.Arr.Items {
			items[i] = item.String()
		}
		return v.Arr.Elem + "[" + strings.Join(items, ", ") + "]"
	case KindRef:
		return "&" + v.Ref.String()
	}
	return fmt.Sprintf("%v(%d)", v.Kind, v.Int)
}

func (v Value) truthy() bool {
	switch v.Kind {
	case KindInt:
		return v.Int != 0
	case KindNull:
		return false
	}
	return true
}

func equalValues(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindInt:
		return a.Int == b.Int
	case KindString:
		return a.Str == b.Str
	case KindArray:
		return a.Arr == b.Arr
	case KindRef:
		return a.Ref == b.Ref
	}
	return true
}
