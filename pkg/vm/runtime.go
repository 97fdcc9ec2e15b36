package vm

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/npillmayer/schuko/gtrace"
	"github.com/npillmayer/schuko/tracing"
	"github.com/npillmayer/schuko/tracing/gologadapter"
	"github.com/pkg/errors"

	"iris/pkg/ilasm"
)

var traceOnce sync.Once

// T traces to the global engine tracer, installing an error-level Go-log
// tracer when none is set.
func T() tracing.Trace {
	traceOnce.Do(func() {
		if gtrace.EngineTracer == nil {
			t := gologadapter.New()
			t.SetTraceLevel(tracing.LevelError)
			gtrace.EngineTracer = t
		}
	})
	return gtrace.EngineTracer
}

// native implements an external method. Arguments are on f's stack, the
// receiver first.
type native func(v *VM, f *Frame) error

// natives are keyed by "Class::Member" so any assembly that exposes the
// member binds to the same implementation.
var natives = map[string]native{
	"System.String::Concat":                      concat,
	"System.String::Compare":                     compare,
	"System.Console::ReadLine":                   readLine,
	"System.Console::WriteLine":                  writeLine,
	"System.Int32::ToString":                     int32ToString,
	"IrisRuntime.CompilerServices::InitStrArray": initStrArray,
	"IrisRuntime.CompilerServices::Rand":         randInt,
}

func (v *VM) callNative(f *Frame, ref *ilasm.MemberRef) error {
	impl, ok := natives[ref.Class+"::"+ref.Name]
	if !ok {
		return errors.Errorf("unresolved method %s", ref)
	}
	T().Debugf("native call %s", ref.QualifiedName())
	return impl(v, f)
}

func nativeField(ref *ilasm.MemberRef) (Value, error) {
	if ref.Class == "System.String" && ref.Name == "Empty" {
		return Str(""), nil
	}
	return Value{}, errors.Errorf("unresolved field %s", ref)
}

func concat(v *VM, f *Frame) error {
	b, err := f.pop()
	if err != nil {
		return err
	}
	a, err := f.pop()
	if err != nil {
		return err
	}
	f.push(Str(a.Text() + b.Text()))
	return nil
}

// compare orders null before every string and compares the rest
// ordinally.
func compare(v *VM, f *Frame) error {
	b, err := f.pop()
	if err != nil {
		return err
	}
	a, err := f.pop()
	if err != nil {
		return err
	}

	var result int
	switch {
	case a.Kind == KindNull && b.Kind == KindNull:
		result = 0
	case a.Kind == KindNull:
		result = -1
	case b.Kind == KindNull:
		result = 1
	default:
		result = strings.Compare(a.Str, b.Str)
	}
	f.push(Int(int32(result)))
	return nil
}

// readLine returns null at end of input.
func readLine(v *VM, f *Frame) error {
	line, err := v.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "reading standard input")
	}
	if err == io.EOF && line == "" {
		f.push(Value{})
		return nil
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	f.push(Str(line))
	return nil
}

func writeLine(v *VM, f *Frame) error {
	s, err := f.pop()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(v.out, s.Text())
	return errors.Wrap(err, "writing standard output")
}

func int32ToString(v *VM, f *Frame) error {
	ref, err := f.popKind(KindRef)
	if err != nil {
		return err
	}
	if ref.Ref.Kind != KindInt {
		return errors.Errorf("ToString receiver is %s, not int32", ref.Ref.Kind)
	}
	f.push(Str(strconv.Itoa(int(ref.Ref.Int))))
	return nil
}

func initStrArray(v *VM, f *Frame) error {
	arr, err := f.popKind(KindArray)
	if err != nil {
		return err
	}
	for i := range arr.Arr.Items {
		arr.Arr.Items[i] = Str("")
	}
	return nil
}

func randInt(v *VM, f *Frame) error {
	f.push(Int(v.rng.Int31()))
	return nil
}
