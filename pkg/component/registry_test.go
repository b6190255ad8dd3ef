package component

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Define("x-note", "li", newNote, nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := r.Register(Define("x-note", "", newNote, nil))
	if !errors.Is(err, ErrDuplicateType) {
		t.Errorf("duplicate Register() error = %v, want ErrDuplicateType", err)
	}

	err = r.Register(Definition{Tag: "x-empty"})
	if !errors.Is(err, ErrInvalidDefinition) {
		t.Errorf("Register(no constructor) error = %v, want ErrInvalidDefinition", err)
	}

	def, ok := r.Lookup("x-note")
	if !ok {
		t.Fatal("Lookup(x-note) not found")
	}
	if def.Extends != "li" {
		t.Errorf("Extends = %q, want %q", def.Extends, "li")
	}
	if def.Handlers == nil {
		t.Error("Handlers should be non-nil after Register")
	}
}

func TestRegistryTypes(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		Define("x-list", "section", newNote, nil),
		Define("x-plain", "", newNote, nil),
	)

	want := map[string]string{"x-list": "section", "x-plain": ""}
	if got := r.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
	if got := r.Tags(); !reflect.DeepEqual(got, []string{"x-list", "x-plain"}) {
		t.Errorf("Tags() = %v", got)
	}
}

func TestMustRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustRegister should panic on duplicate")
		}
	}()
	r := NewRegistry()
	r.MustRegister(Define("x-a", "", newNote, nil), Define("x-a", "", newNote, nil))
}

func TestArgs(t *testing.T) {
	a := Args{
		"s":     "hello",
		"b":     true,
		"on":    "on",
		"off":   "false",
		"f":     float64(3),
		"n":     "42",
		"bad":   "x",
		"int64": int64(7),
	}

	if got := a.String("s", "d"); got != "hello" {
		t.Errorf("String(s) = %q", got)
	}
	if got := a.String("b", "d"); got != "d" {
		t.Errorf("String(b) = %q, want default", got)
	}
	if !a.Bool("b", false) || !a.Bool("on", false) {
		t.Error("Bool should be true for true and \"on\"")
	}
	if a.Bool("off", true) {
		t.Error("Bool(off) should be false")
	}
	if !a.Bool("missing", true) {
		t.Error("Bool(missing) should return default")
	}
	if got := a.Int("f", 0); got != 3 {
		t.Errorf("Int(f) = %d, want 3", got)
	}
	if got := a.Int("n", 0); got != 42 {
		t.Errorf("Int(n) = %d, want 42", got)
	}
	if got := a.Int("int64", 0); got != 7 {
		t.Errorf("Int(int64) = %d, want 7", got)
	}
	if got := a.Int("bad", -1); got != -1 {
		t.Errorf("Int(bad) = %d, want -1", got)
	}
}

func TestArgsMerge(t *testing.T) {
	base := Args{"a": 1, "b": 2}
	got := base.Merge(Args{"b": 3, "c": 4})

	want := Args{"a": 1, "b": 3, "c": 4}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
	if base["b"] != 2 {
		t.Error("Merge should not modify the receiver")
	}
}
