// Package ilasm reads the CIL assembly text written by the compiler's text
// emitter back into a Module that the vm package can execute.
package ilasm

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// implicitOps carry their operand, if any, in the mnemonic itself.
var implicitOps = map[string]Instruction{
	"nop": {Op: OpNop},
	"dup": {Op: OpDup},
	"pop": {Op: OpPop},
	"ret": {Op: OpRet},
	"add": {Op: OpAdd},
	"sub": {Op: OpSub},
	"mul": {Op: OpMul},
	"div": {Op: OpDiv},
	"rem": {Op: OpRem},
	"and": {Op: OpAnd},
	"or":  {Op: OpOr},
	"xor": {Op: OpXor},
	"neg": {Op: OpNeg},
	"ceq": {Op: OpCeq},
	"clt": {Op: OpClt},
	"cgt": {Op: OpCgt},

	"ldc.i4.m1": {Op: OpLdcI4, Arg: -1},

	"ldelem.i4":  {Op: OpLdelem, Text: "int32"},
	"ldelem.i1":  {Op: OpLdelem, Text: "bool"},
	"ldelem.ref": {Op: OpLdelem, Text: "ref"},
	"stelem.i4":  {Op: OpStelem, Text: "int32"},
	"stelem.i1":  {Op: OpStelem, Text: "bool"},
	"stelem.ref": {Op: OpStelem, Text: "ref"},
	"ldind.i4":   {Op: OpLdind, Text: "int32"},
	"ldind.i1":   {Op: OpLdind, Text: "bool"},
	"ldind.ref":  {Op: OpLdind, Text: "ref"},
	"stind.i4":   {Op: OpStind, Text: "int32"},
	"stind.i1":   {Op: OpStind, Text: "bool"},
	"stind.ref":  {Op: OpStind, Text: "ref"},
}

func init() {
	for i := int32(0); i <= 8; i++ {
		implicitOps["ldc.i4."+strconv.Itoa(int(i))] = Instruction{Op: OpLdcI4, Arg: i}
	}
	for i := int32(0); i <= 3; i++ {
		n := strconv.Itoa(int(i))
		implicitOps["ldarg."+n] = Instruction{Op: OpLdarg, Arg: i}
		implicitOps["ldloc."+n] = Instruction{Op: OpLdloc, Arg: i}
		implicitOps["stloc."+n] = Instruction{Op: OpStloc, Arg: i}
	}
}

var intOperandOps = map[string]Opcode{
	"ldc.i4":   OpLdcI4,
	"ldc.i4.s": OpLdcI4,
	"ldarg":    OpLdarg,
	"ldarg.s":  OpLdarg,
	"ldarga":   OpLdarga,
	"ldarga.s": OpLdarga,
	"starg":    OpStarg,
	"starg.s":  OpStarg,
	"ldloc":    OpLdloc,
	"ldloc.s":  OpLdloc,
	"ldloca":   OpLdloca,
	"ldloca.s": OpLdloca,
	"stloc":    OpStloc,
	"stloc.s":  OpStloc,
}

var typeOperandOps = map[string]Opcode{
	"newarr":  OpNewarr,
	"ldelem":  OpLdelem,
	"ldelema": OpLdelema,
	"stelem":  OpStelem,
}

var branchOps = map[string]Opcode{
	"br":      OpBr,
	"brtrue":  OpBrtrue,
	"brfalse": OpBrfalse,
	"beq":     OpBeq,
	"bne.un":  OpBneUn,
	"blt":     OpBlt,
	"ble":     OpBle,
	"bgt":     OpBgt,
	"bge":     OpBge,
}

var fieldOps = map[string]Opcode{
	"ldsfld":  OpLdsfld,
	"ldsflda": OpLdsflda,
	"stsfld":  OpStsfld,
}

type Assembler struct {
	module *Module
}

type lineKind uint8

const (
	lineEmpty lineKind = iota
	lineLabel
	lineDirective
	lineOpenBrace
	lineCloseBrace
	lineInstruction
)

type parsedLine struct {
	lineNo   int
	kind     lineKind
	label    string
	name     string // directive (with its dot) or lower-case mnemonic
	operands string
}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble reads CIL text into a Module.
func Assemble(code string) (*Module, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) (*Module, error) {
	a.module = &Module{
		methods: make(map[string]*Method),
		fields:  make(map[string]int),
	}

	lines := strings.Split(code, "\n")
	if err := a.pass1(lines); err != nil {
		return nil, err
	}
	if err := a.pass2(lines); err != nil {
		return nil, err
	}
	return a.module, nil
}

// pass1 collects the declarations and the label positions of every method.
func (a *Assembler) pass1(lines []string) error {
	var (
		inClass    bool
		classDone  bool
		method     *Method
		methodOpen bool
		count      int
	)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		switch p.kind {
		case lineEmpty:
			continue

		case lineLabel:
			if !methodOpen {
				return errors.Errorf("label '%s' outside a method on line %d", p.label, lineNo)
			}
			if _, exists := method.Labels[p.label]; exists {
				return errors.Errorf("duplicate label '%s' on line %d", p.label, lineNo)
			}
			method.Labels[p.label] = count

		case lineOpenBrace:
			switch {
			case method != nil && !methodOpen:
				methodOpen = true
			case a.module.Class != "" && !inClass && !classDone:
				inClass = true
			default:
				return errors.Errorf("unexpected '{' on line %d", lineNo)
			}

		case lineCloseBrace:
			switch {
			case methodOpen:
				method, methodOpen = nil, false
			case inClass:
				inClass, classDone = false, true
			default:
				return errors.Errorf("unexpected '}' on line %d", lineNo)
			}

		case lineInstruction:
			if !methodOpen {
				return errors.Errorf("instruction outside a method on line %d: %s", lineNo, p.name)
			}
			count++

		case lineDirective:
			if method != nil && !methodOpen {
				return errors.Errorf("expecting '{' after .method on line %d", lineNo)
			}
			switch p.name {
			case ".assembly":
				if err := a.parseAssembly(p); err != nil {
					return err
				}

			case ".class":
				if a.module.Class != "" {
					return errors.Errorf("second .class declaration on line %d", lineNo)
				}
				fields := strings.Fields(p.operands)
				if len(fields) == 0 {
					return errors.Errorf(".class expects a name on line %d", lineNo)
				}
				a.module.Class = fields[len(fields)-1]

			case ".field":
				if !inClass || methodOpen {
					return errors.Errorf(".field outside a class on line %d", lineNo)
				}
				if err := a.parseField(p); err != nil {
					return err
				}

			case ".method":
				if !inClass || methodOpen {
					return errors.Errorf(".method outside a class on line %d", lineNo)
				}
				m, err := parseMethodHeader(p)
				if err != nil {
					return err
				}
				if _, exists := a.module.methods[m.Name]; exists {
					return errors.Errorf("duplicate method '%s' on line %d", m.Name, lineNo)
				}
				a.module.methods[m.Name] = m
				a.module.Methods = append(a.module.Methods, m)
				method, count = m, 0

			case ".entrypoint":
				if !methodOpen {
					return errors.Errorf(".entrypoint outside a method on line %d", lineNo)
				}
				if a.module.EntryPoint != nil {
					return errors.Errorf("duplicate .entrypoint on line %d", lineNo)
				}
				method.EntryPoint = true
				a.module.EntryPoint = method

			case ".locals":
				if !methodOpen {
					return errors.Errorf(".locals outside a method on line %d", lineNo)
				}
				locals, err := parseLocals(p)
				if err != nil {
					return err
				}
				method.Locals = append(method.Locals, locals...)

			case ".line", ".language":
				if !methodOpen {
					return errors.Errorf("%s outside a method on line %d", p.name, lineNo)
				}

			default:
				return errors.Errorf("unknown directive on line %d: %s", lineNo, p.name)
			}
		}
	}

	if methodOpen || method != nil {
		return errors.New("unexpected end of input inside a method")
	}
	if inClass {
		return errors.New("unexpected end of input inside a class")
	}
	return nil
}

// pass2 decodes the instructions and resolves branch targets.
func (a *Assembler) pass2(lines []string) error {
	var (
		method     *Method
		methodOpen bool
		next       int
		source     int
		newLine    bool
	)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		switch p.kind {
		case lineOpenBrace:
			if method != nil {
				methodOpen = true
			}

		case lineCloseBrace:
			if methodOpen {
				method, methodOpen = nil, false
			}

		case lineDirective:
			switch p.name {
			case ".method":
				method = a.module.Methods[next]
				next++
				source, newLine = 0, false
			case ".line":
				line, file, err := parseLineDirective(p)
				if err != nil {
					return err
				}
				if file != "" && a.module.SourceFile == "" {
					a.module.SourceFile = file
				}
				source, newLine = line, true
			}

		case lineInstruction:
			in, err := a.decode(method, p)
			if err != nil {
				return err
			}
			in.Line = lineNo
			in.Source = source
			if newLine {
				method.SourceMap[len(method.Code)] = source
				newLine = false
			}
			method.Code = append(method.Code, in)
		}
	}

	return nil
}

func (a *Assembler) decode(m *Method, p parsedLine) (Instruction, error) {
	mnemonic, ops, lineNo := p.name, p.operands, p.lineNo

	if in, ok := implicitOps[mnemonic]; ok {
		if ops != "" {
			return in, errors.Errorf("%s expects 0 operands on line %d", mnemonic, lineNo)
		}
		return in, a.checkSlot(m, in, lineNo)
	}

	if op, ok := intOperandOps[mnemonic]; ok {
		v, err := strconv.ParseInt(ops, 10, 32)
		if err != nil {
			return Instruction{}, errors.Errorf("invalid integer '%s' on line %d", ops, lineNo)
		}
		in := Instruction{Op: op, Arg: int32(v)}
		return in, a.checkSlot(m, in, lineNo)
	}

	if op, ok := typeOperandOps[mnemonic]; ok {
		if ops == "" || strings.ContainsAny(ops, " \t") {
			return Instruction{}, errors.Errorf("%s expects a type on line %d", mnemonic, lineNo)
		}
		elem := ops
		if op == OpLdelem || op == OpStelem {
			elem = elementKind(ops)
		}
		return Instruction{Op: op, Text: elem}, nil
	}

	if op, ok := branchOps[mnemonic]; ok {
		target, ok := m.Labels[ops]
		if !ok {
			if isIdentifier(ops) {
				return Instruction{}, errors.Errorf("undefined label '%s' on line %d", ops, lineNo)
			}
			return Instruction{}, errors.Errorf("invalid label '%s' on line %d", ops, lineNo)
		}
		return Instruction{Op: op, Arg: int32(target), Label: ops}, nil
	}

	if op, ok := fieldOps[mnemonic]; ok {
		ref, err := parseMemberRef(ops, false, lineNo)
		if err != nil {
			return Instruction{}, err
		}
		if ref.Assembly == "" && a.module.FieldIndex(ref.Name) < 0 {
			return Instruction{}, errors.Errorf("undefined field '%s' on line %d", ref.Name, lineNo)
		}
		return Instruction{Op: op, Member: ref}, nil
	}

	switch mnemonic {
	case "call":
		ref, err := parseMemberRef(ops, true, lineNo)
		if err != nil {
			return Instruction{}, err
		}
		if ref.Assembly == "" && a.module.Method(ref.Name) == nil {
			return Instruction{}, errors.Errorf("undefined method '%s' on line %d", ref.Name, lineNo)
		}
		return Instruction{Op: OpCall, Member: ref}, nil

	case "ldstr":
		if len(ops) < 2 || ops[0] != '"' || ops[len(ops)-1] != '"' {
			return Instruction{}, errors.Errorf("invalid string literal on line %d", lineNo)
		}
		return Instruction{Op: OpLdstr, Text: ops[1 : len(ops)-1]}, nil
	}

	return Instruction{}, errors.Errorf("unknown instruction on line %d: %s", lineNo, mnemonic)
}

func (a *Assembler) checkSlot(m *Method, in Instruction, lineNo int) error {
	switch in.Op {
	case OpLdarg, OpLdarga, OpStarg:
		if in.Arg < 0 || int(in.Arg) >= len(m.Params) {
			return errors.Errorf("argument slot %d out of range on line %d", in.Arg, lineNo)
		}
	case OpLdloc, OpLdloca, OpStloc:
		if in.Arg < 0 || int(in.Arg) >= len(m.Locals) {
			return errors.Errorf("local slot %d out of range on line %d", in.Arg, lineNo)
		}
	}
	return nil
}

func (a *Assembler) parseAssembly(p parsedLine) error {
	text := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p.operands), "{ }"))
	fields := strings.Fields(text)
	switch {
	case len(fields) == 2 && fields[0] == "extern":
		a.module.References = append(a.module.References, fields[1])
	case len(fields) == 1:
		if a.module.Name != "" {
			return errors.Errorf("second .assembly declaration on line %d", p.lineNo)
		}
		a.module.Name = fields[0]
	default:
		return errors.Errorf("invalid .assembly on line %d", p.lineNo)
	}
	return nil
}

func (a *Assembler) parseField(p parsedLine) error {
	fields := strings.Fields(p.operands)
	if len(fields) < 2 {
		return errors.Errorf(".field expects a type and a name on line %d", p.lineNo)
	}
	name := fields[len(fields)-1]
	if _, exists := a.module.fields[name]; exists {
		return errors.Errorf("duplicate field '%s' on line %d", name, p.lineNo)
	}
	a.module.fields[name] = len(a.module.Fields)
	a.module.Fields = append(a.module.Fields, &Field{
		Variable: Variable{Type: fields[len(fields)-2], Name: name},
		Line:     p.lineNo,
	})
	return nil
}

// parseMethodHeader reads
// "public hidebysig static RET NAME(T a, T b) cil managed".
func parseMethodHeader(p parsedLine) (*Method, error) {
	text := p.operands
	open := strings.IndexByte(text, '(')
	closing := strings.LastIndexByte(text, ')')
	if open < 0 || closing < open {
		return nil, errors.Errorf(".method expects a parameter list on line %d", p.lineNo)
	}

	head := strings.Fields(text[:open])
	if len(head) < 2 {
		return nil, errors.Errorf(".method expects a return type and a name on line %d", p.lineNo)
	}

	m := &Method{
		Name:      head[len(head)-1],
		Returns:   head[len(head)-2],
		Labels:    make(map[string]int),
		SourceMap: make(map[int]int),
		Line:      p.lineNo,
	}

	params, err := parseVariables(text[open+1:closing], p.lineNo)
	if err != nil {
		return nil, err
	}
	m.Params = params
	return m, nil
}

// parseLocals reads "init ([0] T a, [1] T b)".
func parseLocals(p parsedLine) ([]Variable, error) {
	text := strings.TrimSpace(strings.TrimPrefix(p.operands, "init"))
	if len(text) < 2 || text[0] != '(' || text[len(text)-1] != ')' {
		return nil, errors.Errorf("invalid .locals on line %d", p.lineNo)
	}

	var locals []Variable
	for i, decl := range splitList(text[1 : len(text)-1]) {
		slot, rest, ok := strings.Cut(decl, "]")
		if !ok || !strings.HasPrefix(slot, "[") {
			return nil, errors.Errorf("invalid local '%s' on line %d", decl, p.lineNo)
		}
		n, err := strconv.Atoi(slot[1:])
		if err != nil || n != i {
			return nil, errors.Errorf("local slot out of order on line %d: %s", p.lineNo, slot+"]")
		}
		vs, err := parseVariables(rest, p.lineNo)
		if err != nil || len(vs) != 1 {
			return nil, errors.Errorf("invalid local '%s' on line %d", decl, p.lineNo)
		}
		locals = append(locals, vs[0])
	}
	return locals, nil
}

func parseVariables(text string, lineNo int) ([]Variable, error) {
	var vars []Variable
	for _, decl := range splitList(text) {
		fields := strings.Fields(decl)
		if len(fields) != 2 {
			return nil, errors.Errorf("invalid declaration '%s' on line %d", decl, lineNo)
		}
		vars = append(vars, Variable{Type: fields[0], Name: fields[1]})
	}
	return vars, nil
}

// parseLineDirective reads "a,b : c,d 'file'" and returns the start line
// and the unescaped file name.
func parseLineDirective(p parsedLine) (int, string, error) {
	lines, rest, ok := strings.Cut(p.operands, " : ")
	if !ok {
		return 0, "", errors.Errorf("invalid .line on line %d", p.lineNo)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(lines), ",")
	line, err := strconv.Atoi(first)
	if err != nil {
		return 0, "", errors.Errorf("invalid .line on line %d", p.lineNo)
	}

	_, file, _ := strings.Cut(strings.TrimSpace(rest), " ")
	file = strings.TrimSpace(file)
	if len(file) >= 2 && file[0] == '\'' && file[len(file)-1] == '\'' {
		file = strings.ReplaceAll(file[1:len(file)-1], `\\`, `\`)
	}
	return line, file, nil
}

// parseMemberRef reads "[instance] TYPE [asm]Class::Name" with a
// parameter type list for methods.
func parseMemberRef(text string, isMethod bool, lineNo int) (*MemberRef, error) {
	invalid := errors.Errorf("invalid member reference '%s' on line %d", text, lineNo)

	ref := &MemberRef{IsMethod: isMethod}
	if rest, ok := strings.CutPrefix(text, "instance "); ok {
		ref.Instance = true
		text = rest
	}

	typ, target, ok := strings.Cut(text, " ")
	if !ok {
		return nil, invalid
	}
	ref.Type = typ
	target = strings.TrimSpace(target)

	if strings.HasPrefix(target, "[") {
		end := strings.IndexByte(target, ']')
		if end < 0 {
			return nil, invalid
		}
		ref.Assembly = target[1:end]
		target = target[end+1:]
	}

	if isMethod {
		open := strings.IndexByte(target, '(')
		if open < 0 || !strings.HasSuffix(target, ")") {
			return nil, invalid
		}
		ref.Params = splitList(target[open+1 : len(target)-1])
		target = target[:open]
	}

	class, name, ok := strings.Cut(target, "::")
	if !ok || class == "" || name == "" {
		return nil, invalid
	}
	ref.Class, ref.Name = class, name
	return ref, nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "//") {
		return p, nil
	}

	switch line {
	case "{":
		p.kind = lineOpenBrace
		return p, nil
	case "}":
		p.kind = lineCloseBrace
		return p, nil
	}

	if label, ok := strings.CutSuffix(line, ":"); ok && !strings.ContainsAny(label, " \t") {
		if !isIdentifier(label) {
			return p, errors.Errorf("invalid label '%s' on line %d", label, lineNo)
		}
		p.kind = lineLabel
		p.label = label
		return p, nil
	}

	name, operands, _ := strings.Cut(line, " ")
	p.operands = strings.TrimSpace(operands)
	if strings.HasPrefix(name, ".") {
		p.kind = lineDirective
		p.name = name
		return p, nil
	}

	p.kind = lineInstruction
	p.name = strings.ToLower(name)
	return p, nil
}

func splitList(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}
	parts := strings.Split(text, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

// elementKind maps an element type operand to the kinds used by the
// implicit element forms.
func elementKind(t string) string {
	switch t {
	case "int32", "bool":
		return t
	}
	return "ref"
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '$' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' && r != '.' {
			return false
		}
	}

	return true
}
