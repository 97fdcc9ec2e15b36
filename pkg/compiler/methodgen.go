package compiler

type opcode int

const (
	opStore opcode = iota // indirect store through an address
	opBranchCond
	opBranchFalse
	opBranchTrue
	opCall
	opGoto
	opLabel
	opLoad // indirect load through an address
	opLoadElem
	opLoadElemA
	opOperator
	opDup
	opPop
	opPushArg
	opPushArgA
	opPushInt
	opPushGbl
	opPushGblA
	opPushLoc
	opPushLocA
	opPushString
	opStoreArg
	opStoreElem
	opStoreGbl
	opStoreLoc
)

// instruction is one deferred generator call. Only the operand fields its
// opcode uses are set, so two instructions are identical exactly when the
// structs compare equal.
type instruction struct {
	op  opcode
	n   int // slot, label or integer constant
	s   string
	sym *Symbol
	typ *IrisType
	opr Operator // operator, or condition of a conditional branch
}

// MethodGenerator buffers the instructions of the method being translated
// and hands them to the Emitter at line boundaries. Buffering allows the
// two lookback rewrites: repeated loads become dup, and a comparison or
// not followed by a conditional branch becomes one fused branch.
type MethodGenerator struct {
	emitter        Emitter
	debugInfo      bool
	outputEnabled  bool
	methodFileName *string
	deferred       []instruction
	lineStart      FilePosition
	isSourceLine   bool
}

func NewMethodGenerator(e Emitter, debugInfo bool) *MethodGenerator {
	return &MethodGenerator{
		emitter:       e,
		debugInfo:     debugInfo,
		outputEnabled: true,
		deferred:      make([]instruction, 0, 1024),
	}
}

// SetOutputEnabled switches emission on or off. Buffered instructions are
// discarded whenever the setting changes.
func (g *MethodGenerator) SetOutputEnabled(enable bool) {
	if enable != g.outputEnabled {
		g.deferred = g.deferred[:0]
		g.outputEnabled = enable
	}
}

// OutputEnabled reports whether instructions currently reach the emitter.
func (g *MethodGenerator) OutputEnabled() bool {
	return g.outputEnabled
}

// BeginMethod starts a method. fileName, when non-nil, is written with the
// method's first line record.
func (g *MethodGenerator) BeginMethod(name string, returnType *IrisType, params, locals []*Variable, entryPoint bool, fileName *string) {
	if !g.outputEnabled {
		return
	}
	g.emitter.BeginMethod(name, returnType, params, locals, entryPoint)
	if g.debugInfo {
		g.emitter.EmitMethodLanguageInfo()
	}
	g.methodFileName = fileName
}

func (g *MethodGenerator) EndMethod() {
	if !g.outputEnabled {
		return
	}
	g.EmitDeferredInstructions()
	g.emitter.EndMethod()
}

// BeginSourceLine marks the start of a statement's instructions.
func (g *MethodGenerator) BeginSourceLine(fp FilePosition) {
	if g.outputEnabled && g.debugInfo {
		g.lineStart = fp
		g.isSourceLine = true
	}
}

// EndSourceLine closes the statement opened by BeginSourceLine and flushes.
func (g *MethodGenerator) EndSourceLine(fp FilePosition) {
	if g.outputEnabled && g.isSourceLine {
		g.emitter.EmitLineInfo(SourceRange{Start: g.lineStart, End: fp}, g.takeFileName())
		g.isSourceLine = false
	}
	g.EmitDeferredInstructions()
}

// EmitNonCodeLineInfo attaches r to a nop, for source such as a block's
// closing 'end' that produces no instructions of its own.
func (g *MethodGenerator) EmitNonCodeLineInfo(r SourceRange) {
	if g.outputEnabled && g.debugInfo {
		g.EmitDeferredInstructions()
		g.emitter.EmitLineInfo(r, g.takeFileName())
		g.emitter.NoOp()
		g.isSourceLine = false
	}
}

// takeFileName returns the file name for the next line record. Only the
// first record of a method carries it.
func (g *MethodGenerator) takeFileName() string {
	name := ""
	if g.methodFileName != nil {
		name = *g.methodFileName
	}
	g.methodFileName = nil
	return name
}

// EmitDeferredInstructions sends the buffer to the emitter and clears it.
func (g *MethodGenerator) EmitDeferredInstructions() {
	if !g.outputEnabled {
		return
	}
	e := g.emitter
	for _, in := range g.deferred {
		switch in.op {
		case opStore:
			e.Store(in.typ)
		case opBranchCond:
			e.BranchCondition(in.opr, in.n)
		case opBranchFalse:
			e.BranchFalse(in.n)
		case opBranchTrue:
			e.BranchTrue(in.n)
		case opCall:
			e.Call(in.sym)
		case opGoto:
			e.Goto(in.n)
		case opLabel:
			e.Label(in.n)
		case opLoad:
			e.Load(in.typ)
		case opLoadElem:
			e.LoadElement(in.typ)
		case opLoadElemA:
			e.LoadElementAddress(in.typ)
		case opOperator:
			e.Operator(in.opr)
		case opDup:
			e.Dup()
		case opPop:
			e.Pop()
		case opPushArg:
			e.PushArgument(in.n)
		case opPushArgA:
			e.PushArgumentAddress(in.n)
		case opPushInt:
			e.PushIntConst(int32(in.n))
		case opPushGbl:
			e.PushGlobal(in.sym)
		case opPushGblA:
			e.PushGlobalAddress(in.sym)
		case opPushLoc:
			e.PushLocal(in.n)
		case opPushLocA:
			e.PushLocalAddress(in.n)
		case opPushString:
			e.PushString(in.s)
		case opStoreArg:
			e.StoreArgument(in.n)
		case opStoreElem:
			e.StoreElement(in.typ)
		case opStoreGbl:
			e.StoreGlobal(in.sym)
		case opStoreLoc:
			e.StoreLocal(in.n)
		default:
			panic("compiler: unknown deferred opcode")
		}
	}
	g.deferred = g.deferred[:0]
}

func (g *MethodGenerator) lastInstruction() *instruction {
	if !g.outputEnabled || len(g.deferred) == 0 {
		return nil
	}
	return &g.deferred[len(g.deferred)-1]
}

func (g *MethodGenerator) removeLastInstruction() {
	if n := len(g.deferred); n > 0 {
		g.deferred = g.deferred[:n-1]
	}
}

func (g *MethodGenerator) add(in instruction) {
	g.deferred = append(g.deferred, in)
}

// addOrDup appends a load, or a dup when the same load was just buffered.
func (g *MethodGenerator) addOrDup(in instruction) {
	if last := g.lastInstruction(); last != nil && *last == in {
		g.Dup()
		return
	}
	g.add(in)
}

// InitArray flushes and allocates the array for sym immediately.
func (g *MethodGenerator) InitArray(sym *Symbol, sub *SubRange) {
	if g.outputEnabled {
		g.EmitDeferredInstructions()
		g.emitter.InitArray(sym, sub)
	}
}

func (g *MethodGenerator) PushString(s string) {
	g.add(instruction{op: opPushString, s: s})
}

func (g *MethodGenerator) PushIntConst(i int32) {
	g.add(instruction{op: opPushInt, n: int(i)})
}

func (g *MethodGenerator) PushArgument(slot int) {
	g.addOrDup(instruction{op: opPushArg, n: slot})
}

func (g *MethodGenerator) PushArgumentAddress(slot int) {
	g.addOrDup(instruction{op: opPushArgA, n: slot})
}

func (g *MethodGenerator) StoreArgument(slot int) {
	g.add(instruction{op: opStoreArg, n: slot})
}

func (g *MethodGenerator) PushLocal(slot int) {
	g.addOrDup(instruction{op: opPushLoc, n: slot})
}

func (g *MethodGenerator) PushLocalAddress(slot int) {
	g.addOrDup(instruction{op: opPushLocA, n: slot})
}

func (g *MethodGenerator) StoreLocal(slot int) {
	g.add(instruction{op: opStoreLoc, n: slot})
}

func (g *MethodGenerator) PushGlobal(sym *Symbol) {
	g.addOrDup(instruction{op: opPushGbl, sym: sym})
}

func (g *MethodGenerator) PushGlobalAddress(sym *Symbol) {
	g.addOrDup(instruction{op: opPushGblA, sym: sym})
}

func (g *MethodGenerator) StoreGlobal(sym *Symbol) {
	g.add(instruction{op: opStoreGbl, sym: sym})
}

func (g *MethodGenerator) Dup() { g.add(instruction{op: opDup}) }
func (g *MethodGenerator) Pop() { g.add(instruction{op: opPop}) }

// Load dereferences the address on the stack.
func (g *MethodGenerator) Load(t *IrisType) {
	g.add(instruction{op: opLoad, typ: t})
}

// Store writes through the address below the value on the stack.
func (g *MethodGenerator) Store(t *IrisType) {
	g.add(instruction{op: opStore, typ: t})
}

func (g *MethodGenerator) LoadElement(elem *IrisType) {
	g.add(instruction{op: opLoadElem, typ: elem})
}

func (g *MethodGenerator) LoadElementAddress(elem *IrisType) {
	g.add(instruction{op: opLoadElemA, typ: elem})
}

func (g *MethodGenerator) StoreElement(elem *IrisType) {
	g.add(instruction{op: opStoreElem, typ: elem})
}

func (g *MethodGenerator) Label(label int) {
	g.add(instruction{op: opLabel, n: label})
}

func (g *MethodGenerator) Goto(label int) {
	g.add(instruction{op: opGoto, n: label})
}

func (g *MethodGenerator) BranchCondition(cond Operator, label int) {
	g.add(instruction{op: opBranchCond, n: label, opr: cond})
}

// BranchFalse branches when the boolean on the stack is false. A trailing
// not or comparison is folded into the branch.
func (g *MethodGenerator) BranchFalse(label int) {
	if last := g.lastInstruction(); last != nil && last.op == opOperator {
		opr := last.opr
		switch {
		case opr == OpNot:
			g.removeLastInstruction()
			g.BranchTrue(label)
			return
		case opr.IsComparison():
			g.removeLastInstruction()
			g.BranchCondition(opr.Invert(), label)
			return
		}
	}
	g.add(instruction{op: opBranchFalse, n: label})
}

// BranchTrue branches when the boolean on the stack is true.
func (g *MethodGenerator) BranchTrue(label int) {
	if last := g.lastInstruction(); last != nil && last.op == opOperator {
		opr := last.opr
		switch {
		case opr == OpNot:
			g.removeLastInstruction()
			g.BranchFalse(label)
			return
		case opr.IsComparison():
			g.removeLastInstruction()
			g.BranchCondition(opr, label)
			return
		}
	}
	g.add(instruction{op: opBranchTrue, n: label})
}

func (g *MethodGenerator) Call(method *Symbol) {
	g.add(instruction{op: opCall, sym: method})
}

func (g *MethodGenerator) Operator(op Operator) {
	g.add(instruction{op: opOperator, opr: op})
}
