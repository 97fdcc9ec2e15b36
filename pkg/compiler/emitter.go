package compiler

// Emitter receives the final instruction stream. Calls arrive in program
// order: BeginProgram, DeclareGlobal for each global, then each method
// bracketed by BeginMethod and EndMethod, then EndProgram.
type Emitter interface {
	BeginProgram(name string, references []string)
	DeclareGlobal(sym *Symbol)
	EndProgram()

	BeginMethod(name string, returnType *IrisType, params, locals []*Variable, entryPoint bool)
	EmitMethodLanguageInfo()
	EmitLineInfo(r SourceRange, filePath string)
	InitArray(arraySym *Symbol, sub *SubRange)
	EndMethod()

	PushString(s string)
	PushIntConst(i int32)
	PushArgument(slot int)
	PushArgumentAddress(slot int)
	StoreArgument(slot int)
	PushLocal(slot int)
	PushLocalAddress(slot int)
	StoreLocal(slot int)
	PushGlobal(sym *Symbol)
	PushGlobalAddress(sym *Symbol)
	StoreGlobal(sym *Symbol)
	Dup()
	Pop()
	NoOp()
	LoadElement(elem *IrisType)
	LoadElementAddress(elem *IrisType)
	StoreElement(elem *IrisType)
	Label(label int)
	Goto(label int)
	BranchCondition(cond Operator, label int)
	BranchTrue(label int)
	BranchFalse(label int)
	Call(method *Symbol)
	Operator(op Operator)
	Load(t *IrisType)
	Store(t *IrisType)

	Flush() error
}
