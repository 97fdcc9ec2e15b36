package inspect

import (
	"fmt"
	"strconv"
	"strings"

	"iris/pkg/compiler"
	"iris/pkg/vm"
)

// FormatOptions select how values are shown. Radix 16 shows integers as
// #xxxxxxxx; any other radix is decimal.
type FormatOptions struct {
	Radix    int
	NoQuotes bool
}

// Format returns the text the debugger shows for a value of type t.
func Format(v vm.Value, t *compiler.IrisType, opts FormatOptions) string {
	if v.Kind == vm.KindRef {
		v = *v.Ref
		t = compiler.Deref(t)
	}
	if v.Kind == vm.KindNull {
		return "<uninitialized>"
	}

	switch {
	case t.IsArray() && v.Kind == vm.KindArray:
		last := int32(len(v.Arr.Items) - 1)
		return fmt.Sprintf("array[%s..%s] of %s",
			formatInteger(0, opts.Radix), formatInteger(last, opts.Radix), t.ElementType())
	case t == compiler.Boolean:
		if v.Int != 0 {
			return "true"
		}
		return "false"
	case t == compiler.Integer:
		return formatInteger(v.Int, opts.Radix)
	case t == compiler.String:
		return formatString(v.Text(), opts.NoQuotes)
	}
	return v.String()
}

func formatInteger(i int32, radix int) string {
	if radix == 16 {
		return fmt.Sprintf("#%08x", uint32(i))
	}
	return strconv.Itoa(int(i))
}

func formatString(s string, noQuotes bool) string {
	if noQuotes {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ApplySpecifiers returns opts adjusted by a query's format specifiers:
// "h" and "x" select hexadecimal, "d" decimal and "nq" drops string
// quotes. Other specifiers are ignored.
func ApplySpecifiers(opts FormatOptions, specifiers []string) FormatOptions {
	for _, s := range specifiers {
		switch strings.ToLower(s) {
		case "h", "x":
			opts.Radix = 16
		case "d":
			opts.Radix = 10
		case "nq":
			opts.NoQuotes = true
		}
	}
	return opts
}
