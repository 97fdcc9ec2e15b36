package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"iris/pkg/compiler"
	"iris/pkg/ilasm"
	"iris/pkg/inspect"
	"iris/pkg/vm"
)

func TestCompilerAndVM(t *testing.T) {
	// 1. Define Iris source
	source := `program Shuffle;
var
   i, j, tmp : integer;
   deck : array[0..4] of integer;
   row : string;

function Fib(n : integer) : integer;
begin
   if n <= 2 then
      Fib := 1
   else
      Fib := Fib(n - 1) + Fib(n - 2)
end

begin
   for i := 0 to 4 do
      deck[i] := Fib(i + 1);
   i := 4;
   while i > 0 do
   begin
      j := rand % (i + 1);
      tmp := deck[i];
      deck[i] := deck[j];
      deck[j] := tmp;
      i := i - 1
   end;
   row := '';
   for i := 0 to 4 do
      row := row + str(deck[i]) + ' ';
   writeln(row)
end.`

	path := filepath.Join(t.TempDir(), "shuffle.iris")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// 2. Compile to CIL
	cil, errs, err := compiler.CompileFile(path, compiler.WriteDll|compiler.Platform32)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if errs.Count() != 0 {
		t.Fatalf("Compile errors:\n%s", errs)
	}
	t.Logf("Generated CIL:\n%s", cil)

	// 3. Assemble
	m, err := ilasm.Assemble(cil)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}

	// 4. Run
	var out bytes.Buffer
	machine := vm.NewVM(m, vm.Config{Stdout: &out, Seed: 7, StepLimit: 1000000})
	if err := machine.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !machine.Halted {
		t.Fatalf("expected the machine to halt")
	}

	// 5. Verify the deck is a permutation of the first five Fibonacci numbers
	fields := strings.Fields(out.String())
	counts := map[string]int{}
	for _, f := range fields {
		counts[f]++
	}
	expected := map[string]int{"1": 2, "2": 1, "3": 1, "5": 1}
	if len(fields) != 5 || len(counts) != len(expected) {
		t.Fatalf("expected five Fibonacci numbers, got %q", out.String())
	}
	for k, n := range expected {
		if counts[k] != n {
			t.Errorf("expected %s %d time(s), got %d in %q", k, n, counts[k], out.String())
		}
	}
}

func TestDebugSession(t *testing.T) {
	source := `program Bp;
var
   total : integer;

procedure Add(n : integer);
var
   doubled : integer;
begin
   doubled := n * 2;
   total := total + doubled
end

begin
   Add(3);
   Add(4);
   writeln(str(total))
end.`

	ctx := compiler.NewContext("bp.iris", strings.NewReader(source))
	if err := ctx.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if ctx.Errors().Count() != 0 {
		t.Fatalf("Compile errors:\n%s", ctx.Errors())
	}
	cil, err := ctx.Output()
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	m, err := ilasm.Assemble(cil)
	if err != nil {
		t.Fatalf("Assembly failed: %v", err)
	}

	var out bytes.Buffer
	machine := vm.NewVM(m, vm.Config{Stdout: &out, Seed: 1, StepLimit: 100000})
	machine.SetBreakpoint(10)
	if err := machine.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !machine.Paused {
		t.Fatalf("expected a pause at line 10")
	}

	frame := machine.Top()
	session := inspect.NewSession(inspect.ImportFrame(machine.Module, frame.Method))

	q, err := session.Evaluate("n + doubled")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	val, err := inspect.Run(machine, frame, q)
	if err != nil {
		t.Fatalf("Run of query failed: %v", err)
	}
	if got := inspect.Format(val, q.Type, inspect.FormatOptions{}); got != "9" {
		t.Errorf("n + doubled: expected %q, got %q", "9", got)
	}

	q, err = session.Assign("total", "100")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if _, err := inspect.Run(machine, frame, q); err != nil {
		t.Fatalf("Run of assignment failed: %v", err)
	}

	machine.ClearBreakpoint(10)
	if err := machine.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := out.String(); got != "114\n" {
		t.Errorf("expected %q, got %q", "114\n", got)
	}
}
