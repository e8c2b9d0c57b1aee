package jack_test

import (
	"testing"

	"n2t.dev/toolchain/pkg/jack"
)

func TestScopeTableClassScope(t *testing.T) {
	st := jack.NewScopeTable()
	st.StartClass("TestClass")

	fieldA := st.Define("a", "int", jack.KindFieldVar)
	staticB := st.Define("b", "String", jack.KindStaticVar)
	fieldC := st.Define("c", "char", jack.KindFieldVar)

	cases := []struct {
		name string
		want jack.Symbol
	}{
		{"a", fieldA},
		{"b", staticB},
		{"c", fieldC},
	}
	for _, tc := range cases {
		got, ok := st.Resolve(tc.name)
		if !ok {
			t.Fatalf("expected to resolve %q", tc.name)
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %+v, want %+v", tc.name, got, tc.want)
		}
	}

	if _, ok := st.Resolve("nope"); ok {
		t.Errorf("expected %q to be unresolved", "nope")
	}
	if st.FieldCount() != 2 {
		t.Errorf("FieldCount() = %d, want 2", st.FieldCount())
	}
}

func TestScopeTableSubroutineShadowsClass(t *testing.T) {
	st := jack.NewScopeTable()
	st.StartClass("TestClass")
	st.Define("x", "int", jack.KindFieldVar)

	st.StartSubroutine()
	local := st.Define("x", "int", jack.KindLocalVar)

	got, ok := st.Resolve("x")
	if !ok {
		t.Fatalf("expected to resolve %q", "x")
	}
	if got.Segment != jack.SegLocal || got != local {
		t.Errorf("Resolve(%q) = %+v, want subroutine-local %+v", "x", got, local)
	}
}

func TestScopeTableResetsBetweenSubroutines(t *testing.T) {
	st := jack.NewScopeTable()
	st.StartClass("TestClass")

	st.StartSubroutine()
	st.Define("tmp", "int", jack.KindLocalVar)
	if _, ok := st.Resolve("tmp"); !ok {
		t.Fatalf("expected %q to resolve in its own subroutine", "tmp")
	}

	st.StartSubroutine()
	if _, ok := st.Resolve("tmp"); ok {
		t.Errorf("expected %q to be gone after StartSubroutine reset", "tmp")
	}
}

func TestScopeTableArgumentIndices(t *testing.T) {
	st := jack.NewScopeTable()
	st.StartClass("Point")
	st.StartSubroutine()
	st.ReserveArgumentSlot() // implicit `this` for a method

	ax := st.Define("ax", "int", jack.KindArgVar)
	ay := st.Define("ay", "int", jack.KindArgVar)

	if ax.Index != 1 {
		t.Errorf("first declared argument after implicit this = index %d, want 1", ax.Index)
	}
	if ay.Index != 2 {
		t.Errorf("second declared argument = index %d, want 2", ay.Index)
	}
}

func TestScopeTableNarrowAccessors(t *testing.T) {
	st := jack.NewScopeTable()
	st.StartClass("Point")
	st.Define("x", "int", jack.KindFieldVar)

	kind, ok := st.KindOf("x")
	if !ok || kind != jack.KindFieldVar {
		t.Errorf("KindOf(%q) = (%v, %v), want (KindFieldVar, true)", "x", kind, ok)
	}
	typ, ok := st.TypeOf("x")
	if !ok || typ != "int" {
		t.Errorf("TypeOf(%q) = (%q, %v), want (\"int\", true)", "x", typ, ok)
	}
	idx, ok := st.IndexOf("x")
	if !ok || idx != 0 {
		t.Errorf("IndexOf(%q) = (%d, %v), want (0, true)", "x", idx, ok)
	}

	if _, ok := st.KindOf("nope"); ok {
		t.Errorf("KindOf(%q) ok = true, want false", "nope")
	}
}

func TestIsKnownVariable(t *testing.T) {
	st := jack.NewScopeTable()
	st.StartClass("TestClass")
	st.Define("field1", "int", jack.KindFieldVar)
	st.StartSubroutine()
	st.Define("local1", "int", jack.KindLocalVar)

	for _, name := range []string{"field1", "local1"} {
		if !st.IsKnownVariable(name) {
			t.Errorf("IsKnownVariable(%q) = false, want true", name)
		}
	}
	if st.IsKnownVariable("SomeClass") {
		t.Errorf("IsKnownVariable(%q) = true, want false", "SomeClass")
	}
}
