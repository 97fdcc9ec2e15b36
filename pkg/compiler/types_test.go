package compiler

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestCompoundTypesAreInterned(t *testing.T) {
	for _, elem := range []*IrisType{Integer, String, Boolean} {
		if elem.MakeArray() != elem.MakeArray() {
			t.Errorf("%s: array types differ", elem)
		}
		if elem.MakeByRef() != elem.MakeByRef() {
			t.Errorf("%s: by-ref types differ", elem)
		}
		if elem.MakeArray().ElementType() != elem {
			t.Errorf("%s: wrong array element type", elem)
		}
		if Deref(elem.MakeByRef()) != elem {
			t.Errorf("%s: wrong by-ref element type", elem)
		}
		if Deref(elem) != elem {
			t.Errorf("%s: Deref changed a plain type", elem)
		}
	}
}

func TestConcurrentInterning(t *testing.T) {
	const workers = 16
	arrays := make([]*IrisType, workers)
	refs := make([]*IrisType, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			arrays[i] = Boolean.MakeArray().MakeByRef()
			refs[i] = String.MakeByRef()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := 1; i < workers; i++ {
		if arrays[i] != arrays[0] || refs[i] != refs[0] {
			t.Fatalf("worker %d received a different type handle", i)
		}
	}
}

func TestConcurrentCompiles(t *testing.T) {
	src := "program p;\nvar a : array[0..3] of string;\nbegin\n   a[0] := 'x';\n   writeln(a[0])\nend."
	outputs := make([]string, 8)

	var g errgroup.Group
	for i := range outputs {
		g.Go(func() error {
			ctx := newTestContext(src, nil, NoDebug)
			if err := ctx.Compile(); err != nil {
				return err
			}
			out, err := ctx.Output()
			outputs[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	for i := 1; i < len(outputs); i++ {
		if outputs[i] != outputs[0] {
			t.Errorf("compile %d differs:\n%s", i, outputs[i])
		}
	}
}

func TestTypePredicates(t *testing.T) {
	fn := testFunction(Integer, String, Boolean.MakeByRef())
	proc := NewProcedure(nil)

	tests := []struct {
		name      string
		typ       *IrisType
		primitive bool
		array     bool
		byRef     bool
		method    bool
	}{
		{"Integer", Integer, true, false, false, false},
		{"Void", Void, false, false, false, false},
		{"Invalid", Invalid, false, false, false, false},
		{"Array", Integer.MakeArray(), false, true, false, false},
		{"ByRef", String.MakeByRef(), false, false, true, false},
		{"Function", fn, false, false, false, true},
		{"Procedure", proc, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.typ.IsPrimitive() != tt.primitive {
				t.Errorf("IsPrimitive: expected %v", tt.primitive)
			}
			if tt.typ.IsArray() != tt.array {
				t.Errorf("IsArray: expected %v", tt.array)
			}
			if tt.typ.IsByRef() != tt.byRef {
				t.Errorf("IsByRef: expected %v", tt.byRef)
			}
			if tt.typ.IsMethod() != tt.method {
				t.Errorf("IsMethod: expected %v", tt.method)
			}
		})
	}

	if fn.ReturnType() != Integer || proc.ReturnType() != Void {
		t.Errorf("wrong return types: %s, %s", fn.ReturnType(), proc.ReturnType())
	}
	if got := fn.String(); got != "function(p0 : string; p1 : boolean&) : integer" {
		t.Errorf("expected function signature, got %q", got)
	}
}

func TestElementTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("expected ElementType of integer to panic")
		}
	}()
	Integer.ElementType()
}

func TestSubRangeLength(t *testing.T) {
	tests := []struct {
		sub      *SubRange
		expected int32
	}{
		{&SubRange{0, 9}, 10},
		{&SubRange{0, 0}, 1},
		{&SubRange{5, 2}, 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := tt.sub.Length(); got != tt.expected {
			t.Errorf("%v: expected %d, got %d", tt.sub, tt.expected, got)
		}
	}
}
