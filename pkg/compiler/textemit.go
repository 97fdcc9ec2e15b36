package compiler

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Debug-info GUIDs written into every method's .language directive.
var (
	irisLanguageGUID    = uuid.MustParse("3456107B-A1F4-4D47-8E18-7CF2C54559AE")
	irisVendorGUID      = uuid.MustParse("5E176682-93DA-497A-A5F0-F1AEE5E18CCE")
	pdbDocumentTypeGUID = uuid.MustParse("5A869D0B-6611-11D3-BD2A-0000F80849BD")
)

const indentUnit = "   "

// TextEmitter writes CIL assembly text suitable for an IL assembler.
type TextEmitter struct {
	out         *bufio.Writer
	line        strings.Builder
	programName string
	indent      int

	methodNames map[int]string
	globalNames map[int]string
}

func NewTextEmitter(w io.Writer) *TextEmitter {
	return &TextEmitter{
		out:         bufio.NewWriter(w),
		methodNames: make(map[int]string),
		globalNames: make(map[int]string),
	}
}

// Flush writes any buffered text to the underlying writer.
func (e *TextEmitter) Flush() error {
	return e.out.Flush()
}

func (e *TextEmitter) BeginProgram(name string, references []string) {
	e.programName = name
	e.out.WriteString("\n")
	for _, ref := range references {
		fmt.Fprintf(e.out, ".assembly extern %s { }\n", ref)
	}
	fmt.Fprintf(e.out, ".assembly %s { }\n", name)
	fmt.Fprintf(e.out, ".class public %s\n", name)
	e.out.WriteString("{\n")
	e.indent++
}

func (e *TextEmitter) DeclareGlobal(sym *Symbol) {
	e.writeIndented(fmt.Sprintf(".field public static %s %s", cilTypeName(sym.Type), sym.Name))
}

func (e *TextEmitter) EndProgram() {
	e.indent--
	e.out.WriteString("}\n")
}

func (e *TextEmitter) BeginMethod(name string, returnType *IrisType, params, locals []*Variable, entryPoint bool) {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = cilVariable(p)
	}
	e.writeIndented(fmt.Sprintf(".method public hidebysig static %s %s(%s) cil managed",
		cilTypeName(returnType), name, strings.Join(ps, ", ")))
	e.writeIndented("{")
	e.indent++

	if entryPoint {
		e.writeIndented(".entrypoint")
	}

	if len(locals) > 0 {
		var sb strings.Builder
		sb.WriteString(".locals init (")
		for i, v := range locals {
			if i != 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[%d] %s", i, cilVariable(v))
		}
		sb.WriteString(")")
		e.writeIndented(sb.String())
	}
}

func (e *TextEmitter) EmitMethodLanguageInfo() {
	e.writeIndented(fmt.Sprintf(".language '{%s}', '{%s}', '{%s}'",
		irisLanguageGUID, irisVendorGUID, pdbDocumentTypeGUID))
}

func (e *TextEmitter) EmitLineInfo(r SourceRange, filePath string) {
	filePath = strings.ReplaceAll(filePath, `\`, `\\`)
	e.writeIndented(fmt.Sprintf(".line %d,%d : %d,%d '%s'",
		r.Start.Line, r.End.Line, r.Start.Column, r.End.Column, filePath))
}

func (e *TextEmitter) InitArray(arraySym *Symbol, sub *SubRange) {
	e.PushIntConst(sub.Length())
	e.writeInstruction("newarr", cilTypeName(arraySym.Type.ElementType()))
	if arraySym.StorageClass == Local {
		e.StoreLocal(arraySym.Location)
	} else {
		e.StoreGlobal(arraySym)
	}
}

func (e *TextEmitter) EndMethod() {
	e.writeInstruction("ret", "")
	e.indent--
	e.writeIndented("}")
}

func (e *TextEmitter) PushString(s string) {
	e.writeInstruction("ldstr", `"`+s+`"`)
}

func (e *TextEmitter) PushIntConst(i int32) {
	switch {
	case i >= 0 && i <= 8:
		e.writeInstruction("ldc.i4."+strconv.Itoa(int(i)), "")
	case i <= 255:
		e.writeInstruction("ldc.i4.s", strconv.Itoa(int(i)))
	default:
		e.writeInstruction("ldc.i4", strconv.Itoa(int(i)))
	}
}

func (e *TextEmitter) PushArgument(slot int) {
	e.writeSlotInstruction("ldarg", slot, true)
}

func (e *TextEmitter) PushArgumentAddress(slot int) {
	e.writeSlotInstruction("ldarga", slot, false)
}

func (e *TextEmitter) StoreArgument(slot int) {
	e.writeSlotInstruction("starg", slot, false)
}

func (e *TextEmitter) PushLocal(slot int) {
	e.writeSlotInstruction("ldloc", slot, true)
}

func (e *TextEmitter) PushLocalAddress(slot int) {
	e.writeSlotInstruction("ldloca", slot, false)
}

func (e *TextEmitter) StoreLocal(slot int) {
	e.writeSlotInstruction("stloc", slot, false)
}

func (e *TextEmitter) PushGlobal(sym *Symbol) {
	e.writeInstruction("ldsfld", e.globalFieldName(sym))
}

func (e *TextEmitter) PushGlobalAddress(sym *Symbol) {
	e.writeInstruction("ldsflda", e.globalFieldName(sym))
}

func (e *TextEmitter) StoreGlobal(sym *Symbol) {
	e.writeInstruction("stsfld", e.globalFieldName(sym))
}

func (e *TextEmitter) Dup()  { e.writeInstruction("dup", "") }
func (e *TextEmitter) Pop()  { e.writeInstruction("pop", "") }
func (e *TextEmitter) NoOp() { e.writeInstruction("nop", "") }

func (e *TextEmitter) LoadElement(elem *IrisType) {
	switch elem {
	case Integer:
		e.writeInstruction("ldelem.i4", "")
	case Boolean:
		e.writeInstruction("ldelem.i1", "")
	default:
		e.writeInstruction("ldelem", cilTypeName(elem))
	}
}

func (e *TextEmitter) LoadElementAddress(elem *IrisType) {
	e.writeInstruction("ldelema", cilTypeName(elem))
}

func (e *TextEmitter) StoreElement(elem *IrisType) {
	switch elem {
	case Integer:
		e.writeInstruction("stelem.i4", "")
	case Boolean:
		e.writeInstruction("stelem.i1", "")
	default:
		e.writeInstruction("stelem.ref", "")
	}
}

func (e *TextEmitter) Label(label int) {
	fmt.Fprintf(e.out, "%s:\n", labelText(label))
}

func (e *TextEmitter) Goto(label int) {
	e.writeInstruction("br", labelText(label))
}

var branchMnemonics = map[Operator]string{
	OpEqual:            "beq",
	OpNotEqual:         "bne.un",
	OpLessThan:         "blt",
	OpLessThanEqual:    "ble",
	OpGreaterThan:      "bgt",
	OpGreaterThanEqual: "bge",
}

func (e *TextEmitter) BranchCondition(cond Operator, label int) {
	mnemonic, ok := branchMnemonics[cond]
	if !ok {
		panic("compiler: invalid branch condition " + cond.String())
	}
	e.writeInstruction(mnemonic, labelText(label))
}

func (e *TextEmitter) BranchTrue(label int) {
	e.writeInstruction("brtrue", labelText(label))
}

func (e *TextEmitter) BranchFalse(label int) {
	e.writeInstruction("brfalse", labelText(label))
}

func (e *TextEmitter) Call(method *Symbol) {
	e.writeInstruction("call", e.methodName(method))
}

// operatorSequences lists the instructions for each operator. Comparisons
// without a direct CIL form are built from their complement and an xor.
var operatorSequences = map[Operator][]string{
	OpEqual:            {"ceq"},
	OpNotEqual:         {"ceq", "ldc.i4.1", "xor"},
	OpLessThan:         {"clt"},
	OpLessThanEqual:    {"cgt", "ldc.i4.1", "xor"},
	OpGreaterThan:      {"cgt"},
	OpGreaterThanEqual: {"clt", "ldc.i4.1", "xor"},
	OpAdd:              {"add"},
	OpSubtract:         {"sub"},
	OpMultiply:         {"mul"},
	OpDivide:           {"div"},
	OpModulo:           {"rem"},
	OpAnd:              {"and"},
	OpOr:               {"or"},
	OpNegate:           {"neg"},
	OpNot:              {"ldc.i4.1", "xor"},
}

func (e *TextEmitter) Operator(op Operator) {
	for _, mnemonic := range operatorSequences[op] {
		e.writeInstruction(mnemonic, "")
	}
}

func (e *TextEmitter) Load(t *IrisType) {
	e.writeInstruction(indirectMnemonic("ldind", t), "")
}

func (e *TextEmitter) Store(t *IrisType) {
	e.writeInstruction(indirectMnemonic("stind", t), "")
}

func indirectMnemonic(prefix string, t *IrisType) string {
	switch t {
	case Boolean:
		return prefix + ".i1"
	case Integer:
		return prefix + ".i4"
	}
	return prefix + ".ref"
}

func (e *TextEmitter) methodName(sym *Symbol) string {
	if name, ok := e.methodNames[sym.Location]; ok {
		return name
	}

	var sb strings.Builder
	switch {
	case !sym.Type.IsMethod() || e.programName == "":
		// undefined callee (already diagnosed) or a fragment compiled
		// without a program
		sb.WriteString("_Unknown")
	case sym.Import != nil:
		imp := sym.Import
		if imp.Instance {
			sb.WriteString("instance ")
		}
		sb.WriteString(cilTypeName(imp.Returns))
		sb.WriteByte(' ')
		sb.WriteString(imp.qualifiedName())
		writeParamTypes(&sb, imp.Params)
	default:
		sb.WriteString(cilTypeName(sym.Type.ReturnType()))
		sb.WriteByte(' ')
		sb.WriteString(e.programName)
		sb.WriteString("::")
		sb.WriteString(sym.Name)
		params := sym.Type.Params()
		types := make([]*IrisType, len(params))
		for i, p := range params {
			types[i] = p.Type
		}
		writeParamTypes(&sb, types)
	}

	name := sb.String()
	e.methodNames[sym.Location] = name
	return name
}

func (e *TextEmitter) globalFieldName(sym *Symbol) string {
	if name, ok := e.globalNames[sym.Location]; ok {
		return name
	}

	var name string
	switch {
	case sym.Import != nil:
		name = cilTypeName(sym.Import.Returns) + " " + sym.Import.qualifiedName()
	case e.programName == "":
		name = strconv.Itoa(sym.Location)
	default:
		name = fmt.Sprintf("%s %s::%s", cilTypeName(sym.Type), e.programName, sym.Name)
	}

	e.globalNames[sym.Location] = name
	return name
}

func writeParamTypes(sb *strings.Builder, types []*IrisType) {
	sb.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(cilTypeName(t))
	}
	sb.WriteByte(')')
}

func (e *TextEmitter) writeSlotInstruction(mnemonic string, slot int, hasShortForms bool) {
	switch {
	case hasShortForms && slot >= 0 && slot <= 3:
		e.writeInstruction(mnemonic+"."+strconv.Itoa(slot), "")
	case slot <= 255:
		e.writeInstruction(mnemonic+".s", strconv.Itoa(slot))
	default:
		e.writeInstruction(mnemonic, strconv.Itoa(slot))
	}
}

func (e *TextEmitter) writeInstruction(mnemonic, arg string) {
	if arg == "" {
		e.writeIndented(mnemonic)
		return
	}
	e.writeIndented(mnemonic + " " + arg)
}

func (e *TextEmitter) writeIndented(text string) {
	e.line.Reset()
	for i := 0; i < e.indent; i++ {
		e.line.WriteString(indentUnit)
	}
	e.line.WriteString(text)
	e.line.WriteByte('\n')
	e.out.WriteString(e.line.String())
}

func labelText(label int) string {
	return "L" + strconv.Itoa(label)
}

func cilVariable(v *Variable) string {
	return cilTypeName(v.Type) + " " + v.Name
}

// cilTypeName maps an Iris type to its CIL spelling.
func cilTypeName(t *IrisType) string {
	switch {
	case t == Integer:
		return "int32"
	case t == String:
		return "string"
	case t == Boolean:
		return "bool"
	case t == Void:
		return "void"
	case t.IsArray():
		return cilTypeName(t.ElementType()) + "[]"
	case t.IsByRef():
		return cilTypeName(t.ElementType()) + "&"
	}
	return "_Unknown"
}
