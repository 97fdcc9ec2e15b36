package compiler

import (
	"github.com/pkg/errors"
)

// Binding describes an external field or method an Iris symbol is bound
// to. Returns is the method's result type, or the field's type. Params are
// the external parameter types, which for instance methods exclude the
// receiver.
type Binding struct {
	Assembly string
	TypeName string
	Member   string
	IsField  bool
	Instance bool
	Returns  *IrisType
	Params   []*IrisType

	// Type is the Iris type the symbol is entered with. For an instance
	// method the receiver appears as a leading by-ref parameter.
	Type *IrisType
}

func (b *Binding) qualifiedName() string {
	return "[" + b.Assembly + "]" + b.TypeName + "::" + b.Member
}

// Resolver supplies the external assemblies a program references and the
// bindings for compiler intrinsics.
type Resolver interface {
	References() []string
	Resolve(name string) (*Binding, error)
}

// Intrinsic symbol names, in the order they are entered into the symbol
// table. Names starting with "$." cannot be written in source.
const (
	EmptyStringName  = "$.emptystr"
	ConcatName       = "concat"
	ReadLineName     = "readln"
	StrName          = "str"
	StrCmpName       = "strcmp"
	WriteLineName    = "writeln"
	InitStrArrayName = "$.initstrarray"
	RandName         = "rand"
)

const (
	runtimeAssembly  = "IrisRuntime"
	coreLibAssembly  = "System.Private.CoreLib"
	consoleAssembly  = "System.Console"
	compilerServices = "IrisRuntime.CompilerServices"
	systemString     = "System.String"
	systemConsole    = "System.Console"
	systemInt32      = "System.Int32"
)

var intrinsicNames = []string{
	EmptyStringName,
	ConcatName,
	ReadLineName,
	StrName,
	StrCmpName,
	WriteLineName,
	InitStrArrayName,
	RandName,
}

// IntrinsicNames returns the intrinsic symbol names in registration order.
func IntrinsicNames() []string {
	out := make([]string, len(intrinsicNames))
	copy(out, intrinsicNames)
	return out
}

type mapResolver struct {
	references []string
	bindings   map[string]*Binding
}

func (r *mapResolver) References() []string {
	return r.references
}

func (r *mapResolver) Resolve(name string) (*Binding, error) {
	b, ok := r.bindings[name]
	if !ok {
		return nil, errors.Errorf("no binding for intrinsic '%s'", name)
	}
	return b, nil
}

// NewResolver builds a Resolver over a fixed binding table.
func NewResolver(references []string, bindings map[string]*Binding) Resolver {
	return &mapResolver{references: references, bindings: bindings}
}

func staticMethod(asm, typeName, member string, ret *IrisType, params ...*Variable) *Binding {
	types := make([]*IrisType, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	var t *IrisType
	if ret == Void {
		t = NewProcedure(params)
	} else {
		t = NewFunction(ret, params)
	}
	return &Binding{Assembly: asm, TypeName: typeName, Member: member, Returns: ret, Params: types, Type: t}
}

// CoreRuntime returns the resolver for .NET Core hosts: the base class
// library plus the IrisRuntime support assembly.
func CoreRuntime() Resolver {
	str := &Binding{
		Assembly: coreLibAssembly,
		TypeName: systemInt32,
		Member:   "ToString",
		Instance: true,
		Returns:  String,
		Type:     NewFunction(String, []*Variable{NewVariable(Integer.MakeByRef(), "this")}),
	}
	return NewResolver(
		[]string{coreLibAssembly, consoleAssembly, runtimeAssembly},
		map[string]*Binding{
			EmptyStringName: {
				Assembly: coreLibAssembly,
				TypeName: systemString,
				Member:   "Empty",
				IsField:  true,
				Returns:  String,
				Type:     String,
			},
			ConcatName: staticMethod(coreLibAssembly, systemString, "Concat", String,
				NewVariable(String, "str0"), NewVariable(String, "str1")),
			ReadLineName: staticMethod(consoleAssembly, systemConsole, "ReadLine", String),
			StrName:      str,
			StrCmpName: staticMethod(coreLibAssembly, systemString, "Compare", Integer,
				NewVariable(String, "strA"), NewVariable(String, "strB")),
			WriteLineName: staticMethod(consoleAssembly, systemConsole, "WriteLine", Void,
				NewVariable(String, "value")),
			InitStrArrayName: staticMethod(runtimeAssembly, compilerServices, "InitStrArray", Void,
				NewVariable(String.MakeArray(), "a")),
			RandName: staticMethod(runtimeAssembly, compilerServices, "Rand", Integer),
		},
	)
}

// AddIntrinsics resolves every intrinsic through r and enters it as a
// global symbol. Bindings that cannot be resolved are reported at the
// start of the file.
func AddIntrinsics(symbols *SymbolTable, errs *ErrorList, r Resolver) {
	for _, name := range intrinsicNames {
		b, err := r.Resolve(name)
		if err != nil {
			errs.Add(Begin, "Cannot find imported function or procedure '"+name+"'.")
			continue
		}
		if !b.IsField && b.Type.ReturnType() == Invalid {
			errs.Add(Begin, "The function or procedure '"+b.TypeName+"."+b.Member+"' contains types that are not supported by the language.")
			continue
		}
		symbols.Add(name, b.Type, Global, b)
	}
}
