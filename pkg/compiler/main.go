// Package compiler provides a single-pass compiler for the Iris teaching
// language that emits textual CIL.
//
// Pipeline: Iris source → Lexer → Translator (parse, check, generate) →
// MethodGenerator (peephole) → Emitter → CIL assembly text
package compiler
