package jack

import "n2t.dev/toolchain/internal/container"

// Segment names the VM memory segment a resolved variable lives in
// (spec.md §4.5/§4.6). Field variables resolve to the "this" segment once
// pointer 0 has been set up by the subroutine prologue.
type Segment string

const (
	SegStatic   Segment = "static"
	SegField    Segment = "this"
	SegArgument Segment = "argument"
	SegLocal    Segment = "local"
)

// Symbol is one resolved variable: its declared type and the (segment,
// index) pair the compiler emits push/pop against.
type Symbol struct {
	Name    string
	Type    string
	Kind    VarKind
	Segment Segment
	Index   uint16
}

// classScope holds a class's static and field variables. Both segments grow
// monotonically across the whole class body and never reset mid-class.
type classScope struct {
	name   string
	static container.OrderedMap[string, Symbol]
	field  container.OrderedMap[string, Symbol]
}

// subroutineScope holds one subroutine's arguments and locals, discarded
// and rebuilt at the start of every subroutine (spec.md §4.5).
type subroutineScope struct {
	argument container.OrderedMap[string, Symbol]
	local    container.OrderedMap[string, Symbol]
}

// ScopeTable is the two-level class/subroutine symbol table described by
// spec.md §4.5: a subroutine scope with an implicit parent pointer to its
// enclosing class scope, never a third level.
type ScopeTable struct {
	class      classScope
	subroutine subroutineScope
}

// NewScopeTable builds an empty table. Call StartClass once per class and
// StartSubroutine once per subroutine before defining or resolving names.
func NewScopeTable() *ScopeTable { return &ScopeTable{} }

// StartClass resets the class-level scope, discarding any previous class's
// static and field symbols.
func (st *ScopeTable) StartClass(name string) {
	st.class = classScope{name: name}
}

// StartSubroutine resets the subroutine-level scope.
func (st *ScopeTable) StartSubroutine() {
	st.subroutine = subroutineScope{}
}

// Define registers one variable declaration, assigning it the next free
// index within its (segment, scope) bucket.
func (st *ScopeTable) Define(name, typ string, kind VarKind) Symbol {
	switch kind {
	case KindStaticVar:
		sym := Symbol{Name: name, Type: typ, Kind: kind, Segment: SegStatic, Index: uint16(st.class.static.Size())}
		st.class.static.Set(name, sym)
		return sym
	case KindFieldVar:
		sym := Symbol{Name: name, Type: typ, Kind: kind, Segment: SegField, Index: uint16(st.class.field.Size())}
		st.class.field.Set(name, sym)
		return sym
	case KindArgVar:
		sym := Symbol{Name: name, Type: typ, Kind: kind, Segment: SegArgument, Index: uint16(st.subroutine.argument.Size())}
		st.subroutine.argument.Set(name, sym)
		return sym
	default: // KindLocalVar
		sym := Symbol{Name: name, Type: typ, Kind: kind, Segment: SegLocal, Index: uint16(st.subroutine.local.Size())}
		st.subroutine.local.Set(name, sym)
		return sym
	}
}

// ReserveArgumentSlot advances the argument counter without registering a
// name, used to account for a method's implicit `this` receiver occupying
// argument 0 before any declared parameter is defined.
func (st *ScopeTable) ReserveArgumentSlot() {
	placeholder := Symbol{Segment: SegArgument, Index: uint16(st.subroutine.argument.Size())}
	st.subroutine.argument.Set("\x00this", placeholder)
}

// FieldCount reports how many fields the current class has declared, used
// to size a constructor's Memory.alloc call.
func (st *ScopeTable) FieldCount() int { return st.class.field.Size() }

// Resolve looks a name up, consulting the subroutine scope first (locals,
// then arguments) and falling back to the enclosing class scope (fields,
// then statics) — the parent-pointer lookup order of spec.md §4.5.
func (st *ScopeTable) Resolve(name string) (Symbol, bool) {
	if sym, ok := st.subroutine.local.Get(name); ok {
		return sym, true
	}
	if sym, ok := st.subroutine.argument.Get(name); ok {
		return sym, true
	}
	if sym, ok := st.class.field.Get(name); ok {
		return sym, true
	}
	if sym, ok := st.class.static.Get(name); ok {
		return sym, true
	}
	return Symbol{}, false
}

// KindOf reports the declaration kind of a resolved variable.
func (st *ScopeTable) KindOf(name string) (VarKind, bool) {
	sym, ok := st.Resolve(name)
	return sym.Kind, ok
}

// TypeOf reports the declared type of a resolved variable.
func (st *ScopeTable) TypeOf(name string) (string, bool) {
	sym, ok := st.Resolve(name)
	return sym.Type, ok
}

// IndexOf reports the segment-relative index of a resolved variable.
func (st *ScopeTable) IndexOf(name string) (uint16, bool) {
	sym, ok := st.Resolve(name)
	return sym.Index, ok
}

// IsKnownVariable reports whether name resolves to any variable in scope,
// the test that tells `Foo.bar()` (static or constructor call, since Jack
// has no forward class declarations) apart from `obj.bar()` (method call
// through a known local/field/argument/static), per spec.md §4.6. The
// compiler's own call handling performs this test through Resolve.
func (st *ScopeTable) IsKnownVariable(name string) bool {
	_, ok := st.Resolve(name)
	return ok
}
