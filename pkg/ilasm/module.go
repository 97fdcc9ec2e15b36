package ilasm

import (
	"strconv"
	"strings"
)

// Opcode is a decoded CIL operation. Short and long encodings of the same
// operation decode to one Opcode with the operand in Instruction.Arg.
type Opcode uint8

const (
	OpNop Opcode = iota
	OpLdcI4
	OpLdstr
	OpLdarg
	OpLdarga
	OpStarg
	OpLdloc
	OpLdloca
	OpStloc
	OpLdsfld
	OpLdsflda
	OpStsfld
	OpDup
	OpPop
	OpNewarr
	OpLdelem
	OpLdelema
	OpStelem
	OpLdind
	OpStind
	OpBr
	OpBrtrue
	OpBrfalse
	OpBeq
	OpBneUn
	OpBlt
	OpBle
	OpBgt
	OpBge
	OpCall
	OpRet
	OpCeq
	OpClt
	OpCgt
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpNeg
)

var opNames = [...]string{
	OpNop:     "nop",
	OpLdcI4:   "ldc.i4",
	OpLdstr:   "ldstr",
	OpLdarg:   "ldarg",
	OpLdarga:  "ldarga",
	OpStarg:   "starg",
	OpLdloc:   "ldloc",
	OpLdloca:  "ldloca",
	OpStloc:   "stloc",
	OpLdsfld:  "ldsfld",
	OpLdsflda: "ldsflda",
	OpStsfld:  "stsfld",
	OpDup:     "dup",
	OpPop:     "pop",
	OpNewarr:  "newarr",
	OpLdelem:  "ldelem",
	OpLdelema: "ldelema",
	OpStelem:  "stelem",
	OpLdind:   "ldind",
	OpStind:   "stind",
	OpBr:      "br",
	OpBrtrue:  "brtrue",
	OpBrfalse: "brfalse",
	OpBeq:     "beq",
	OpBneUn:   "bne.un",
	OpBlt:     "blt",
	OpBle:     "ble",
	OpBgt:     "bgt",
	OpBge:     "bge",
	OpCall:    "call",
	OpRet:     "ret",
	OpCeq:     "ceq",
	OpClt:     "clt",
	OpCgt:     "cgt",
	OpAdd:     "add",
	OpSub:     "sub",
	OpMul:     "mul",
	OpDiv:     "div",
	OpRem:     "rem",
	OpAnd:     "and",
	OpOr:      "or",
	OpXor:     "xor",
	OpNeg:     "neg",
}

func (op Opcode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "op(" + strconv.Itoa(int(op)) + ")"
}

// IsBranch reports whether Arg holds a branch target.
func (op Opcode) IsBranch() bool {
	return op >= OpBr && op <= OpBge
}

// Instruction is one decoded instruction.
type Instruction struct {
	Op Opcode
	// Arg is the constant for ldc.i4, the slot for argument and local
	// access, or the target instruction index for branches.
	Arg int32
	// Text is the literal for ldstr and the element type for the array and
	// indirect operations ("int32", "bool", "string" or "ref").
	Text   string
	Member *MemberRef
	Label  string
	Line   int // line in the CIL text
	Source int // source line from the last .line directive, 0 if none
}

// MemberRef is a field or method operand. Assembly is empty for members of
// the module's own class.
type MemberRef struct {
	Instance bool
	IsMethod bool
	Type     string // field type or method return type
	Assembly string
	Class    string
	Name     string
	Params   []string
}

// QualifiedName returns "[assembly]Class::Name", or "Class::Name" for
// members of the module itself.
func (r *MemberRef) QualifiedName() string {
	if r.Assembly == "" {
		return r.Class + "::" + r.Name
	}
	return "[" + r.Assembly + "]" + r.Class + "::" + r.Name
}

func (r *MemberRef) String() string {
	var sb strings.Builder
	if r.Instance {
		sb.WriteString("instance ")
	}
	sb.WriteString(r.Type)
	sb.WriteByte(' ')
	sb.WriteString(r.QualifiedName())
	if r.IsMethod {
		sb.WriteByte('(')
		sb.WriteString(strings.Join(r.Params, ","))
		sb.WriteByte(')')
	}
	return sb.String()
}

// Variable is a declared field, parameter or local.
type Variable struct {
	Type string
	Name string
}

type Field struct {
	Variable
	Line int
}

type Method struct {
	Name       string
	Returns    string
	Params     []Variable
	Locals     []Variable
	EntryPoint bool
	Code       []Instruction
	Labels     map[string]int
	// SourceMap maps the index of the first instruction after each .line
	// directive to the source line it names.
	SourceMap map[int]int
	Line      int
}

// SourceLine returns the source line in effect at instruction pc.
func (m *Method) SourceLine(pc int) int {
	if pc < 0 || pc >= len(m.Code) {
		return 0
	}
	return m.Code[pc].Source
}

// Module is an assembled program: one class with static fields and
// static methods.
type Module struct {
	Name       string
	References []string
	Class      string
	Fields     []*Field
	Methods    []*Method
	EntryPoint *Method
	SourceFile string

	methods map[string]*Method
	fields  map[string]int
}

// Method returns the method declared with name, or nil.
func (m *Module) Method(name string) *Method {
	return m.methods[name]
}

// FieldIndex returns the position of the field called name in Fields, or
// -1.
func (m *Module) FieldIndex(name string) int {
	if i, ok := m.fields[name]; ok {
		return i
	}
	return -1
}
