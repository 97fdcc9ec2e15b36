// Package vm interprets the CIL subset the Iris compiler emits, together
// with the runtime members the compiler binds its intrinsics to.
package vm

import (
	"bufio"
	"io"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"

	"iris/pkg/ilasm"
)

// Config controls the machine's environment.
type Config struct {
	Stdin  io.Reader // os.Stdin when nil
	Stdout io.Writer // os.Stdout when nil
	// Seed initializes rand. Zero seeds from the clock.
	Seed int64
	// StepLimit stops runaway programs. Zero means no limit.
	StepLimit int
}

// ErrStepLimit is returned once Config.StepLimit instructions have run.
var ErrStepLimit = errors.New("step limit exceeded")

// Frame is one activation of a method.
type Frame struct {
	Module *ilasm.Module
	Method *ilasm.Method
	Args   []Value
	Locals []Value
	PC     int

	stack []Value
	// detached frames hand their result to VM.Result instead of the
	// caller's stack
	detached bool
}

// SourceLine returns the source line of the instruction about to run.
func (f *Frame) SourceLine() int {
	return f.Method.SourceLine(f.PC)
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() (Value, error) {
	if len(f.stack) == 0 {
		return Value{}, errors.New("evaluation stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *Frame) popKind(k Kind) (Value, error) {
	v, err := f.pop()
	if err != nil {
		return v, err
	}
	if v.Kind != k {
		return v, errors.Errorf("expected %s on the stack, found %s", k, v.Kind)
	}
	return v, nil
}

func (f *Frame) popInt() (int32, error) {
	v, err := f.popKind(KindInt)
	return v.Int, err
}

// VM executes one assembled program.
type VM struct {
	Module  *ilasm.Module
	Statics []Value
	Frames  []*Frame

	// Result is the value returned by the last detached frame or by the
	// entry point.
	Result Value
	Halted bool
	Paused bool
	Steps  int

	cfg         Config
	in          *bufio.Reader
	out         io.Writer
	rng         *rand.Rand
	breakpoints map[int]bool
	resuming    bool
}

// NewVM prepares m for execution from its entry point.
func NewVM(m *ilasm.Module, cfg Config) *VM {
	v := &VM{
		Module:      m,
		Statics:     make([]Value, len(m.Fields)),
		cfg:         cfg,
		breakpoints: make(map[int]bool),
	}
	for i, f := range m.Fields {
		v.Statics[i] = Zero(f.Type)
	}

	in := cfg.Stdin
	if in == nil {
		in = os.Stdin
	}
	v.in = bufio.NewReader(in)

	v.out = cfg.Stdout
	if v.out == nil {
		v.out = os.Stdout
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	v.rng = rand.New(rand.NewSource(seed))

	if m.EntryPoint != nil {
		v.Frames = append(v.Frames, newFrame(m, m.EntryPoint))
	}
	return v
}

func newFrame(m *ilasm.Module, method *ilasm.Method) *Frame {
	f := &Frame{
		Module: m,
		Method: method,
		Args:   make([]Value, len(method.Params)),
		Locals: make([]Value, len(method.Locals)),
	}
	for i, p := range method.Params {
		f.Args[i] = Zero(p.Type)
	}
	for i, l := range method.Locals {
		f.Locals[i] = Zero(l.Type)
	}
	return f
}

// Top returns the innermost frame, or nil once the program has finished.
func (v *VM) Top() *Frame {
	if len(v.Frames) == 0 {
		return nil
	}
	return v.Frames[len(v.Frames)-1]
}

// SetBreakpoint pauses Run before the first instruction of source line
// line.
func (v *VM) SetBreakpoint(line int) {
	v.breakpoints[line] = true
}

func (v *VM) ClearBreakpoint(line int) {
	delete(v.breakpoints, line)
}

// Run executes until the program finishes, a breakpoint is reached or an
// error occurs. After a breakpoint Paused is set and Run continues from
// the paused instruction.
func (v *VM) Run() error {
	if v.Halted {
		return nil
	}
	if len(v.Frames) == 0 {
		return errors.New("module has no entry point")
	}

	if v.Paused {
		v.Paused = false
		v.resuming = true
	}

	for !v.Halted {
		if v.atBreakpoint() {
			v.Paused = true
			return nil
		}
		v.resuming = false
		if err := v.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (v *VM) atBreakpoint() bool {
	if v.resuming || len(v.breakpoints) == 0 {
		return false
	}
	f := v.Top()
	line, ok := f.Method.SourceMap[f.PC]
	return ok && v.breakpoints[line]
}

// Step executes one instruction of the innermost frame.
func (v *VM) Step() error {
	f := v.Top()
	if f == nil {
		v.Halted = true
		return nil
	}

	if v.cfg.StepLimit > 0 && v.Steps >= v.cfg.StepLimit {
		return ErrStepLimit
	}
	v.Steps++

	pc := f.PC
	if err := v.execute(f); err != nil {
		return errors.Wrapf(err, "%s, line %d", f.Method.Name, f.Method.SourceLine(pc))
	}
	return nil
}

// Call runs the program method name with args on a fresh frame and
// returns its result.
func (v *VM) Call(name string, args ...Value) (Value, error) {
	method := v.Module.Method(name)
	if method == nil {
		return Value{}, errors.Errorf("undefined method '%s'", name)
	}
	if len(args) != len(method.Params) {
		return Value{}, errors.Errorf("%s expects %d arguments, got %d", name, len(method.Params), len(args))
	}
	f := newFrame(v.Module, method)
	copy(f.Args, args)
	return v.runDetached(f)
}

// Invoke runs method name of module m with args and locals bound to the
// given slices, so stores through them are visible to the caller. m may
// refer to the program's fields and methods through its assembly name.
func (v *VM) Invoke(m *ilasm.Module, name string, args, locals []Value) (Value, error) {
	method := m.Method(name)
	if method == nil {
		return Value{}, errors.Errorf("undefined method '%s'", name)
	}
	f := newFrame(m, method)
	if args != nil {
		f.Args = args
	}
	if locals != nil {
		f.Locals = locals
	}
	if len(f.Args) < len(method.Params) || len(f.Locals) < len(method.Locals) {
		return Value{}, errors.Errorf("%s: frame has too few slots", name)
	}
	return v.runDetached(f)
}

func (v *VM) runDetached(f *Frame) (Value, error) {
	f.detached = true
	depth := len(v.Frames)
	v.Frames = append(v.Frames, f)
	for len(v.Frames) > depth {
		if err := v.Step(); err != nil {
			v.Frames = v.Frames[:depth]
			return Value{}, err
		}
	}
	return v.Result, nil
}

func (v *VM) execute(f *Frame) error {
	code := f.Method.Code
	if f.PC < 0 || f.PC >= len(code) {
		return errors.New("execution ran past the end of the method")
	}
	in := &code[f.PC]
	f.PC++

	switch in.Op {
	case ilasm.OpNop:
		// No operation.

	case ilasm.OpLdcI4:
		f.push(Int(in.Arg))

	case ilasm.OpLdstr:
		f.push(Str(in.Text))

	case ilasm.OpLdarg:
		f.push(f.Args[in.Arg])

	case ilasm.OpLdarga:
		f.push(Value{Kind: KindRef, Ref: &f.Args[in.Arg]})

	case ilasm.OpStarg:
		val, err := f.pop()
		if err != nil {
			return err
		}
		f.Args[in.Arg] = val

	case ilasm.OpLdloc:
		f.push(f.Locals[in.Arg])

	case ilasm.OpLdloca:
		f.push(Value{Kind: KindRef, Ref: &f.Locals[in.Arg]})

	case ilasm.OpStloc:
		val, err := f.pop()
		if err != nil {
			return err
		}
		f.Locals[in.Arg] = val

	case ilasm.OpLdsfld:
		slot, err := v.static(f, in.Member)
		if err != nil {
			return err
		}
		f.push(*slot)

	case ilasm.OpLdsflda:
		slot, err := v.static(f, in.Member)
		if err != nil {
			return err
		}
		f.push(Value{Kind: KindRef, Ref: slot})

	case ilasm.OpStsfld:
		slot, err := v.static(f, in.Member)
		if err != nil {
			return err
		}
		val, err := f.pop()
		if err != nil {
			return err
		}
		*slot = val

	case ilasm.OpDup:
		val, err := f.pop()
		if err != nil {
			return err
		}
		f.push(val)
		f.push(val)

	case ilasm.OpPop:
		if _, err := f.pop(); err != nil {
			return err
		}

	case ilasm.OpNewarr:
		n, err := f.popInt()
		if err != nil {
			return err
		}
		if n < 0 {
			return errors.Errorf("negative array size %d", n)
		}
		f.push(NewArray(in.Text, int(n)))

	case ilasm.OpLdelem:
		slot, err := element(f)
		if err != nil {
			return err
		}
		f.push(*slot)

	case ilasm.OpLdelema:
		slot, err := element(f)
		if err != nil {
			return err
		}
		f.push(Value{Kind: KindRef, Ref: slot})

	case ilasm.OpStelem:
		val, err := f.pop()
		if err != nil {
			return err
		}
		slot, err := element(f)
		if err != nil {
			return err
		}
		*slot = val

	case ilasm.OpLdind:
		ref, err := f.popKind(KindRef)
		if err != nil {
			return err
		}
		f.push(*ref.Ref)

	case ilasm.OpStind:
		val, err := f.pop()
		if err != nil {
			return err
		}
		ref, err := f.popKind(KindRef)
		if err != nil {
			return err
		}
		*ref.Ref = val

	case ilasm.OpBr:
		f.PC = int(in.Arg)

	case ilasm.OpBrtrue, ilasm.OpBrfalse:
		val, err := f.pop()
		if err != nil {
			return err
		}
		if val.truthy() == (in.Op == ilasm.OpBrtrue) {
			f.PC = int(in.Arg)
		}

	case ilasm.OpBeq, ilasm.OpBneUn, ilasm.OpBlt, ilasm.OpBle, ilasm.OpBgt, ilasm.OpBge:
		b, a, err := popPair(f)
		if err != nil {
			return err
		}
		if compareBranch(in.Op, a, b) {
			f.PC = int(in.Arg)
		}

	case ilasm.OpCall:
		return v.call(f, in.Member)

	case ilasm.OpRet:
		return v.ret(f)

	case ilasm.OpCeq:
		b, err := f.pop()
		if err != nil {
			return err
		}
		a, err := f.pop()
		if err != nil {
			return err
		}
		f.push(Bool(equalValues(a, b)))

	case ilasm.OpClt, ilasm.OpCgt:
		b, a, err := popPair(f)
		if err != nil {
			return err
		}
		if in.Op == ilasm.OpClt {
			f.push(Bool(a < b))
		} else {
			f.push(Bool(a > b))
		}

	case ilasm.OpAdd, ilasm.OpSub, ilasm.OpMul, ilasm.OpDiv, ilasm.OpRem, ilasm.OpAnd, ilasm.OpOr, ilasm.OpXor:
		b, a, err := popPair(f)
		if err != nil {
			return err
		}
		result, err := arithmetic(in.Op, a, b)
		if err != nil {
			return err
		}
		f.push(Int(result))

	case ilasm.OpNeg:
		a, err := f.popInt()
		if err != nil {
			return err
		}
		f.push(Int(-a))

	default:
		panic("vm: unhandled opcode " + in.Op.String())
	}

	return nil
}

func (v *VM) ret(f *Frame) error {
	var result Value
	if f.Method.Returns != "void" {
		val, err := f.pop()
		if err != nil {
			return err
		}
		result = val
	}

	v.Frames = v.Frames[:len(v.Frames)-1]
	if f.detached || len(v.Frames) == 0 {
		v.Result = result
		if !f.detached {
			v.Halted = true
		}
		return nil
	}
	if f.Method.Returns != "void" {
		v.Top().push(result)
	}
	return nil
}

func (v *VM) call(f *Frame, ref *ilasm.MemberRef) error {
	target, method := v.resolveMethod(f, ref)
	if method == nil {
		return v.callNative(f, ref)
	}

	callee := newFrame(target, method)
	for i := len(callee.Args) - 1; i >= 0; i-- {
		arg, err := f.pop()
		if err != nil {
			return err
		}
		callee.Args[i] = arg
	}
	v.Frames = append(v.Frames, callee)
	return nil
}

// resolveMethod finds a method declared in the calling module or in the
// program. It returns nil for members of external assemblies.
func (v *VM) resolveMethod(f *Frame, ref *ilasm.MemberRef) (*ilasm.Module, *ilasm.Method) {
	switch {
	case ref.Assembly == "":
		return f.Module, f.Module.Method(ref.Name)
	case ref.Assembly == v.Module.Name && ref.Class == v.Module.Class:
		return v.Module, v.Module.Method(ref.Name)
	}
	return nil, nil
}

// static returns the storage of a static field of the program, or a
// temporary holding the value of a runtime field.
func (v *VM) static(f *Frame, ref *ilasm.MemberRef) (*Value, error) {
	program := ref.Assembly == "" && f.Module == v.Module ||
		ref.Assembly == v.Module.Name && ref.Class == v.Module.Class
	if program {
		if i := v.Module.FieldIndex(ref.Name); i >= 0 {
			return &v.Statics[i], nil
		}
		return nil, errors.Errorf("undefined field '%s'", ref.Name)
	}

	val, err := nativeField(ref)
	if err != nil {
		return nil, err
	}
	return &val, nil
}

func element(f *Frame) (*Value, error) {
	index, err := f.popInt()
	if err != nil {
		return nil, err
	}
	arr, err := f.pop()
	if err != nil {
		return nil, err
	}
	if arr.Kind == KindNull {
		return nil, errors.New("null array reference")
	}
	if arr.Kind != KindArray {
		return nil, errors.Errorf("expected array on the stack, found %s", arr.Kind)
	}
	if index < 0 || int(index) >= len(arr.Arr.Items) {
		return nil, errors.Errorf("index %d out of range for array of length %d", index, len(arr.Arr.Items))
	}
	return &arr.Arr.Items[index], nil
}

// popPair pops b then a, both integers.
func popPair(f *Frame) (b, a int32, err error) {
	if b, err = f.popInt(); err != nil {
		return
	}
	a, err = f.popInt()
	return
}

func compareBranch(op ilasm.Opcode, a, b int32) bool {
	switch op {
	case ilasm.OpBeq:
		return a == b
	case ilasm.OpBneUn:
		return a != b
	case ilasm.OpBlt:
		return a < b
	case ilasm.OpBle:
		return a <= b
	case ilasm.OpBgt:
		return a > b
	case ilasm.OpBge:
		return a >= b
	}
	panic("vm: not a conditional branch " + op.String())
}

func arithmetic(op ilasm.Opcode, a, b int32) (int32, error) {
	switch op {
	case ilasm.OpAdd:
		return a + b, nil
	case ilasm.OpSub:
		return a - b, nil
	case ilasm.OpMul:
		return a * b, nil
	case ilasm.OpDiv, ilasm.OpRem:
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		if a == math.MinInt32 && b == -1 {
			return 0, errors.New("arithmetic overflow")
		}
		if op == ilasm.OpDiv {
			return a / b, nil
		}
		return a % b, nil
	case ilasm.OpAnd:
		return a & b, nil
	case ilasm.OpOr:
		return a | b, nil
	case ilasm.OpXor:
		return a ^ b, nil
	}
	panic("vm: not an arithmetic opcode " + op.String())
}
