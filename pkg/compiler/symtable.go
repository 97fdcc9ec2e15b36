package compiler

import (
	"fmt"
	"strings"
)

// StorageClass says where a symbol's value lives at run time.
type StorageClass int

const (
	Global StorageClass = iota
	Local
	Argument
)

func (sc StorageClass) String() string {
	switch sc {
	case Global:
		return "Global"
	case Local:
		return "Local"
	case Argument:
		return "Argument"
	}
	return fmt.Sprintf("StorageClass(%d)", int(sc))
}

// Symbol is a named entity entered into the table. Location is the slot
// within its storage class; undefined-symbol sentinels use -1.
type Symbol struct {
	Name         string
	Type         *IrisType
	StorageClass StorageClass
	Location     int
	Import       *Binding // nil unless bound to an external member
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s : %s (%s %d)", s.Name, s.Type, s.StorageClass, s.Location)
}

// scope is a case-insensitive name map that remembers insertion order.
type scope struct {
	byName  map[string]*Symbol
	ordered []*Symbol
}

func newScope() *scope {
	return &scope{byName: make(map[string]*Symbol)}
}

// add enters sym unless its name is already present, in which case the
// existing symbol is kept and returned.
func (s *scope) add(sym *Symbol) *Symbol {
	key := strings.ToLower(sym.Name)
	if old, exists := s.byName[key]; exists {
		return old
	}
	s.ordered = append(s.ordered, sym)
	s.byName[key] = sym
	return sym
}

func (s *scope) lookup(name string) *Symbol {
	return s.byName[strings.ToLower(name)]
}

// SymbolTable holds the global scope and, while a method body is being
// translated, that method's local scope. local is nil when no method is
// open.
type SymbolTable struct {
	global *scope
	local  *scope

	nextGlobalVariable int
	nextGlobalMethod   int
	nextLocal          int
	nextArgument       int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{global: newScope()}
}

// InMethod reports whether a local scope is open.
func (s *SymbolTable) InMethod() bool {
	return s.local != nil
}

// Add enters name with the next slot for its storage class. Reporting
// duplicates is the caller's responsibility; a name already in the scope
// keeps its first symbol, which is returned.
func (s *SymbolTable) Add(name string, t *IrisType, storage StorageClass, imp *Binding) *Symbol {
	return s.AddAt(name, t, storage, s.nextLocation(storage, t), imp)
}

// AddAt enters name at an explicit slot.
func (s *SymbolTable) AddAt(name string, t *IrisType, storage StorageClass, location int, imp *Binding) *Symbol {
	sym := &Symbol{Name: name, Type: t, StorageClass: storage, Location: location, Import: imp}
	if storage == Global {
		return s.global.add(sym)
	}
	if s.local == nil {
		panic("compiler: local symbol " + name + " added outside a method")
	}
	return s.local.add(sym)
}

// CreateUndefinedSymbol records name as referenced but undefined so later
// references resolve silently.
func (s *SymbolTable) CreateUndefinedSymbol(name string) *Symbol {
	if s.local != nil {
		return s.local.add(&Symbol{Name: name, Type: Invalid, StorageClass: Local, Location: -1})
	}
	return s.global.add(&Symbol{Name: name, Type: Invalid, StorageClass: Global, Location: -1})
}

// OpenMethod adds the method to the global scope and opens its local scope.
// Opening a method while another is open panics.
func (s *SymbolTable) OpenMethod(name string, t *IrisType) *Symbol {
	if s.local != nil {
		panic("compiler: OpenMethod called while a method is open")
	}
	sym := s.Add(name, t, Global, nil)
	s.local = newScope()
	return sym
}

// CloseMethod discards the local scope and resets local and argument slots.
func (s *SymbolTable) CloseMethod() {
	s.local = nil
	s.nextArgument = 0
	s.nextLocal = 0
}

func (s *SymbolTable) LookupLocal(name string) *Symbol {
	if s.local == nil {
		return nil
	}
	return s.local.lookup(name)
}

func (s *SymbolTable) LookupGlobal(name string) *Symbol {
	return s.global.lookup(name)
}

// Lookup searches the local scope, then the global scope. It returns nil
// when name is not found.
func (s *SymbolTable) Lookup(name string) *Symbol {
	if sym := s.LookupLocal(name); sym != nil {
		return sym
	}
	return s.LookupGlobal(name)
}

// Globals returns the global symbols in insertion order.
func (s *SymbolTable) Globals() []*Symbol {
	return s.global.ordered
}

// Locals returns the open method's symbols in insertion order.
func (s *SymbolTable) Locals() []*Symbol {
	if s.local == nil {
		return nil
	}
	return s.local.ordered
}

func (s *SymbolTable) nextLocation(storage StorageClass, t *IrisType) int {
	var loc int
	switch storage {
	case Global:
		if t.IsMethod() {
			loc = s.nextGlobalMethod
			s.nextGlobalMethod++
		} else {
			loc = s.nextGlobalVariable
			s.nextGlobalVariable++
		}
	case Argument:
		loc = s.nextArgument
		s.nextArgument++
	default:
		loc = s.nextLocal
		s.nextLocal++
	}
	return loc
}

// String returns a dump of the table in declaration order.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	if len(s.global.ordered) > 0 {
		sb.WriteString("Globals:\n")
		for _, sym := range s.global.ordered {
			fmt.Fprintf(&sb, "  %-20s  %s (%s %d)\n", sym.Name, sym.Type, sym.StorageClass, sym.Location)
		}
	} else {
		sb.WriteString("Globals: (empty)\n")
	}

	if s.local != nil {
		sb.WriteString("Locals:\n")
		for _, sym := range s.local.ordered {
			fmt.Fprintf(&sb, "  %-20s  %s (%s %d)\n", sym.Name, sym.Type, sym.StorageClass, sym.Location)
		}
	}
	return sb.String()
}
