package inspect

import (
	"github.com/pkg/errors"

	"iris/pkg/ilasm"
	"iris/pkg/vm"
)

// Run executes q on v against frame. The query shares frame's arguments
// and locals, so assignments are visible when the program resumes.
func Run(v *vm.VM, frame *vm.Frame, q *Query) (vm.Value, error) {
	m, err := ilasm.Assemble(q.CIL)
	if err != nil {
		return vm.Value{}, errors.Wrapf(err, "assembling query %s", q.Class)
	}
	return v.Invoke(m, q.Method, frame.Args, frame.Locals)
}

// Values returns the value of every entry of q, in order.
func Values(v *vm.VM, frame *vm.Frame, q *LocalsQuery) ([]vm.Value, error) {
	m, err := ilasm.Assemble(q.CIL)
	if err != nil {
		return nil, errors.Wrapf(err, "assembling locals query %s", q.Class)
	}

	values := make([]vm.Value, len(q.Locals))
	for i, l := range q.Locals {
		val, err := v.Invoke(m, l.Method, frame.Args, frame.Locals)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", l.Name)
		}
		values[i] = val
	}
	return values, nil
}
