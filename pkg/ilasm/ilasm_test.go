package ilasm

import (
	"reflect"
	"strings"
	"testing"

	"github.com/sanity-io/litter"

	"iris/pkg/compiler"
)

const sumProgram = `
.assembly extern System.Private.CoreLib { }
.assembly extern System.Console { }
.assembly Calc { }
.class public Calc
{
   .field public static int32[] total
   .field public static string name
   .method public hidebysig static int32 Sum(int32[] a, int32 n) cil managed
   {
      .locals init ([0] int32 Sum, [1] int32 i)
      ldc.i4.0
      stloc.s 1
      br L1
L0:
      ldloc.0
      ldarg.0
      ldloc.1
      ldelem.i4
      add
      stloc.s 0
      ldloc.1
      ldc.i4.1
      add
      stloc.s 1
L1:
      ldloc.1
      ldarg.1
      blt L0
      ldloc.0
      ret
   }
   .method public hidebysig static void $.main() cil managed
   {
      .entrypoint
      ldc.i4.s 10
      newarr int32
      stsfld int32[] Calc::total
      ldsfld int32[] Calc::total
      ldc.i4.s 10
      call int32 Calc::Sum(int32[],int32)
      pop
      ldstr "it's done"
      call void [System.Console]System.Console::WriteLine(string)
      ret
   }
}
`

func TestAssemble(t *testing.T) {
	m, err := Assemble(sumProgram)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if m.Name != "Calc" || m.Class != "Calc" {
		t.Errorf("expected assembly and class Calc, got %q and %q", m.Name, m.Class)
	}
	if !reflect.DeepEqual(m.References, []string{"System.Private.CoreLib", "System.Console"}) {
		t.Errorf("unexpected references: %v", m.References)
	}
	if len(m.Fields) != 2 || m.Fields[0].Type != "int32[]" || m.FieldIndex("name") != 1 {
		t.Errorf("unexpected fields: %s", litter.Sdump(m.Fields))
	}
	if m.FieldIndex("missing") != -1 {
		t.Errorf("expected -1 for an undeclared field")
	}

	sum := m.Method("Sum")
	if sum == nil {
		t.Fatalf("method Sum not found")
	}
	expectedParams := []Variable{{"int32[]", "a"}, {"int32", "n"}}
	if !reflect.DeepEqual(sum.Params, expectedParams) {
		t.Errorf("params: expected %v, got %v", expectedParams, sum.Params)
	}
	expectedLocals := []Variable{{"int32", "Sum"}, {"int32", "i"}}
	if !reflect.DeepEqual(sum.Locals, expectedLocals) {
		t.Errorf("locals: expected %v, got %v", expectedLocals, sum.Locals)
	}
	if sum.Labels["L0"] != 3 || sum.Labels["L1"] != 13 {
		t.Errorf("unexpected labels: %v", sum.Labels)
	}
	if br := sum.Code[2]; br.Op != OpBr || br.Arg != 13 || br.Label != "L1" {
		t.Errorf("br: got %s", litter.Sdump(br))
	}
	if blt := sum.Code[15]; blt.Op != OpBlt || blt.Arg != 3 {
		t.Errorf("blt: got %s", litter.Sdump(blt))
	}
	if ld := sum.Code[6]; ld.Op != OpLdelem || ld.Text != "int32" {
		t.Errorf("ldelem.i4: got %s", litter.Sdump(ld))
	}

	main := m.EntryPoint
	if main == nil || main.Name != "$.main" || !main.EntryPoint {
		t.Fatalf("unexpected entry point: %v", main)
	}
	if c := main.Code[0]; c.Op != OpLdcI4 || c.Arg != 10 {
		t.Errorf("ldc.i4.s: got %s", litter.Sdump(c))
	}
	call := main.Code[5].Member
	if call == nil || call.Name != "Sum" || call.Assembly != "" || !reflect.DeepEqual(call.Params, []string{"int32[]", "int32"}) {
		t.Errorf("call: got %s", litter.Sdump(call))
	}
	if s := main.Code[7]; s.Op != OpLdstr || s.Text != "it's done" {
		t.Errorf("ldstr: got %s", litter.Sdump(s))
	}
	ext := main.Code[8].Member
	if ext.QualifiedName() != "[System.Console]System.Console::WriteLine" {
		t.Errorf("unexpected external call %q", ext.QualifiedName())
	}
	if got := ext.String(); got != "void [System.Console]System.Console::WriteLine(string)" {
		t.Errorf("expected the reference to print as written, got %q", got)
	}
}

func TestAssembleSourceMap(t *testing.T) {
	code := `
.assembly P { }
.class public P
{
   .method public hidebysig static void $.main() cil managed
   {
      .entrypoint
      .language '{3456107b-a1f4-4d47-8e18-7cf2c54559ae}', '{5e176682-93da-497a-a5f0-f1aee5e18cce}', '{5a869d0b-6611-11d3-bd2a-0000f80849bd}'
      .line 3,3 : 1,6 'c:\\src\\p.iris'
      nop
      .line 4,4 : 4,20 ''
      ldc.i4.1
      pop
      .line 5,5 : 1,4 ''
      nop
      ret
   }
}
`
	m, err := Assemble(code)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if m.SourceFile != `c:\src\p.iris` {
		t.Errorf("expected the unescaped file name, got %q", m.SourceFile)
	}

	main := m.EntryPoint
	expected := map[int]int{0: 3, 1: 4, 3: 5}
	if !reflect.DeepEqual(main.SourceMap, expected) {
		t.Errorf("source map: expected %v, got %v", expected, main.SourceMap)
	}

	for pc, line := range []int{3, 4, 4, 5, 5} {
		if got := main.SourceLine(pc); got != line {
			t.Errorf("instruction %d: expected source line %d, got %d", pc, line, got)
		}
	}
	if got := main.SourceLine(99); got != 0 {
		t.Errorf("expected 0 past the end, got %d", got)
	}
	if main.Code[1].Line != 12 {
		t.Errorf("expected ldc.i4.1 on CIL line 12, got %d", main.Code[1].Line)
	}
}

func TestAssembleCompilerOutput(t *testing.T) {
	src := `program Sample;
var
   names : array[0..2] of string;
   done : boolean;
   n : integer;

function Twice(var x : integer) : integer;
begin
   x := x * 2;
   Twice := x
end

begin
   n := Twice(n);
   names[1] := str(n);
   done := not done;
   writeln(names[1])
end.`

	ctx := compiler.NewContext("sample.iris", strings.NewReader(src))
	if err := ctx.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if ctx.Errors().Count() != 0 {
		t.Fatalf("unexpected compile error: %s", ctx.Errors().First())
	}
	cil, err := ctx.Output()
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}

	m, err := Assemble(cil)
	if err != nil {
		t.Fatalf("Assemble failed: %v\n%s", err, cil)
	}
	if m.Name != "Sample" || len(m.Fields) != 3 || len(m.Methods) != 2 {
		t.Errorf("unexpected module: %s", litter.Sdump(m))
	}
	if m.SourceFile != "sample.iris" {
		t.Errorf("expected source file sample.iris, got %q", m.SourceFile)
	}
	twice := m.Method("Twice")
	if twice == nil || len(twice.Params) != 1 || twice.Params[0].Type != "int32&" {
		t.Errorf("unexpected Twice: %s", litter.Sdump(twice))
	}
	if len(m.EntryPoint.SourceMap) == 0 {
		t.Errorf("expected debug line information in $.main")
	}
}

func TestAssembleErrors(t *testing.T) {
	wrap := func(body string) string {
		return ".assembly P { }\n.class public P\n{\n.method public hidebysig static void m() cil managed\n{\n" + body + "\n}\n}\n"
	}

	tests := []struct {
		name     string
		code     string
		expected string
	}{
		{"DuplicateLabel", wrap("L3:\nnop\nL3:\nret"), "duplicate label 'L3' on line 8"},
		{"UndefinedLabel", wrap("br L9\nret"), "undefined label 'L9' on line 6"},
		{"UnknownInstruction", wrap("frob\nret"), "unknown instruction on line 6: frob"},
		{"OutsideMethod", ".assembly P { }\n.class public P\n{\nnop\n}\n", "instruction outside a method on line 4: nop"},
		{"LabelOutsideMethod", "L0:\n", "label 'L0' outside a method on line 1"},
		{"UnknownDirective", wrap(".maxstack 8\nret"), "unknown directive on line 6: .maxstack"},
		{"ExtraOperand", wrap("ret 1"), "ret expects 0 operands on line 6"},
		{"BadInteger", wrap("ldc.i4 x\nret"), "invalid integer 'x' on line 6"},
		{"BadString", wrap("ldstr hello\nret"), "invalid string literal on line 6"},
		{"LocalSlot", wrap("ldloc.0\nret"), "local slot 0 out of range on line 6"},
		{"ArgumentSlot", wrap("starg.s 2\nret"), "argument slot 2 out of range on line 6"},
		{"UndefinedMethod", wrap("call void P::missing()\nret"), "undefined method 'missing' on line 6"},
		{"UndefinedField", wrap("ldsfld int32 P::x\nret"), "undefined field 'x' on line 6"},
		{"BadMember", wrap("ldsfld 0\nret"), "invalid member reference '0' on line 6"},
		{"UnterminatedMethod", ".assembly P { }\n.class public P\n{\n.method public hidebysig static void m() cil managed\n{\nret\n", "unexpected end of input inside a method"},
		{"StrayBrace", "}\n", "unexpected '}' on line 1"},
		{"DuplicateEntryPoint", ".assembly P { }\n.class public P\n{\n.method public hidebysig static void a() cil managed\n{\n.entrypoint\nret\n}\n.method public hidebysig static void b() cil managed\n{\n.entrypoint\nret\n}\n}\n", "duplicate .entrypoint on line 11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.code)
			if err == nil {
				t.Fatalf("expected error %q, got none", tt.expected)
			}
			if err.Error() != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, err.Error())
			}
		})
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    parsedLine
		wantErr bool
	}{
		{"", parsedLine{lineNo: 1}, false},
		{"   // comment", parsedLine{lineNo: 1}, false},
		{"L12:", parsedLine{lineNo: 1, kind: lineLabel, label: "L12"}, false},
		{"   {", parsedLine{lineNo: 1, kind: lineOpenBrace}, false},
		{"      LDC.I4.S 9", parsedLine{lineNo: 1, kind: lineInstruction, name: "ldc.i4.s", operands: "9"}, false},
		{`      ldstr "a b"`, parsedLine{lineNo: 1, kind: lineInstruction, name: "ldstr", operands: `"a b"`}, false},
		{".line 2,2 : 1,6 ''", parsedLine{lineNo: 1, kind: lineDirective, name: ".line", operands: "2,2 : 1,6 ''"}, false},
		{"1x:", parsedLine{}, true},
	}

	for _, tt := range tests {
		got, err := parseLine(tt.line, 1)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseLine(%q) = %+v; want %+v", tt.line, got, tt.want)
		}
	}
}

func TestParseMemberRef(t *testing.T) {
	tests := []struct {
		text     string
		isMethod bool
		want     MemberRef
	}{
		{
			"string [System.Private.CoreLib]System.String::Empty", false,
			MemberRef{Type: "string", Assembly: "System.Private.CoreLib", Class: "System.String", Name: "Empty"},
		},
		{
			"instance string [System.Private.CoreLib]System.Int32::ToString()", true,
			MemberRef{Instance: true, IsMethod: true, Type: "string", Assembly: "System.Private.CoreLib", Class: "System.Int32", Name: "ToString", Params: []string{}},
		},
		{
			"void P::$.main()", true,
			MemberRef{IsMethod: true, Type: "void", Class: "P", Name: "$.main", Params: []string{}},
		},
		{
			"int32 P::Sum(int32[],bool&)", true,
			MemberRef{IsMethod: true, Type: "int32", Class: "P", Name: "Sum", Params: []string{"int32[]", "bool&"}},
		},
	}

	for _, tt := range tests {
		got, err := parseMemberRef(tt.text, tt.isMethod, 1)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tt.text, err)
			continue
		}
		if !reflect.DeepEqual(*got, tt.want) {
			t.Errorf("%s: expected %s, got %s", tt.text, litter.Sdump(tt.want), litter.Sdump(got))
		}
		if got.String() != tt.text {
			t.Errorf("expected %q to round trip, got %q", tt.text, got.String())
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"L0", true},
		{"$.main", true},
		{"_x", true},
		{"0L", false},
		{"", false},
		{"a-b", false},
	}
	for _, tc := range tests {
		if got := isIdentifier(tc.input); got != tc.want {
			t.Errorf("isIdentifier(%q) = %v; want %v", tc.input, got, tc.want)
		}
	}
}
