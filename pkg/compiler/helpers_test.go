package compiler

import (
	"fmt"
	"os"
	"strings"
	"testing"
)

const testFilePath = "FakeFile.iris"

type testGlobal struct {
	name string
	typ  *IrisType
}

func newTestContext(src string, globals []testGlobal, flags Flags) *Context {
	ctx := NewContext(testFilePath, strings.NewReader(src), WithFlags(flags))
	for _, g := range globals {
		ctx.Symbols().Add(g.name, g.typ, Global, nil)
	}
	return ctx
}

// testFunction builds a function type whose parameters are named p0, p1...
func testFunction(ret *IrisType, paramTypes ...*IrisType) *IrisType {
	params := make([]*Variable, len(paramTypes))
	for i, pt := range paramTypes {
		params[i] = NewVariable(pt, fmt.Sprintf("p%d", i))
	}
	return NewFunction(ret, params)
}

func output(t *testing.T, ctx *Context) string {
	t.Helper()
	out, err := ctx.Output()
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	return out
}

func translateExpression(t *testing.T, src string, globals []testGlobal) string {
	t.Helper()
	ctx := newTestContext(src, globals, NoDebug)
	ctx.Translator().TranslateExpression()
	if ctx.Errors().Count() != 0 {
		t.Fatalf("unexpected compile error: %s", ctx.Errors().First())
	}
	return output(t, ctx)
}

func translateStatement(t *testing.T, src string, globals []testGlobal) string {
	t.Helper()
	ctx := newTestContext(src, globals, NoDebug)
	ctx.Translator().TranslateStatement()
	if ctx.Errors().Count() != 0 {
		t.Fatalf("unexpected compile error: %s", ctx.Errors().First())
	}
	return output(t, ctx)
}

func compileProgram(t *testing.T, src string, debug bool) string {
	t.Helper()
	flags := NoDebug
	if debug {
		flags = 0
	}
	ctx := newTestContext(src, nil, flags)
	if err := ctx.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if ctx.Errors().Count() != 0 {
		t.Fatalf("unexpected compile error: %s", ctx.Errors().First())
	}
	return output(t, ctx)
}

// The error helpers return the first diagnostic, or "" when the input
// compiled cleanly.

func expressionError(src string, globals []testGlobal) string {
	ctx := newTestContext(src, globals, NoDebug)
	ctx.Translator().TranslateExpression()
	return ctx.Errors().First()
}

func statementError(src string, globals []testGlobal) string {
	ctx := newTestContext(src, globals, NoDebug)
	ctx.Translator().TranslateStatement()
	return ctx.Errors().First()
}

func programError(src string) string {
	ctx := newTestContext(src, nil, NoDebug)
	ctx.Compile()
	return ctx.Errors().First()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}
