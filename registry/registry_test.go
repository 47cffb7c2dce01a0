package registry

import (
	"fmt"
	"testing"
)

func TestBaseRegistry_RegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[string]()

	if err := r.Register("a", "alpha"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, ok := r.Get("a")
	if !ok {
		t.Fatal("Get returned not found")
	}
	if got != "alpha" {
		t.Errorf("Expected 'alpha', got '%s'", got)
	}
}

func TestBaseRegistry_EmptyName(t *testing.T) {
	r := NewBaseRegistry[int]()

	if err := r.Register("", 1); err == nil {
		t.Error("Expected error for empty name")
	}
}

func TestBaseRegistry_DuplicateName(t *testing.T) {
	r := NewBaseRegistry[int]()

	if err := r.Register("x", 1); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("x", 2); err == nil {
		t.Error("Expected error for duplicate name")
	}

	got, _ := r.Get("x")
	if got != 1 {
		t.Errorf("Duplicate register must not overwrite, got %d", got)
	}
}

func TestBaseRegistry_PreservesInsertionOrder(t *testing.T) {
	r := NewBaseRegistry[int]()

	for i := 0; i < 10; i++ {
		if err := r.Register(fmt.Sprintf("item-%d", i), i); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	names := r.Names()
	items := r.List()
	if len(names) != 10 || len(items) != 10 {
		t.Fatalf("Expected 10 entries, got %d names, %d items", len(names), len(items))
	}
	for i := 0; i < 10; i++ {
		if names[i] != fmt.Sprintf("item-%d", i) {
			t.Errorf("Names[%d] = %s, order not preserved", i, names[i])
		}
		if items[i] != i {
			t.Errorf("List[%d] = %d, order not preserved", i, items[i])
		}
	}
}

func TestBaseRegistry_RemoveKeepsOrder(t *testing.T) {
	r := NewBaseRegistry[int]()
	for _, name := range []string{"a", "b", "c"} {
		if err := r.Register(name, 0); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	if err := r.Remove("b"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "c" {
		t.Errorf("Expected [a c], got %v", names)
	}

	if err := r.Remove("b"); err == nil {
		t.Error("Expected error removing missing item")
	}
}

func TestBaseRegistry_Clear(t *testing.T) {
	r := NewBaseRegistry[int]()
	_ = r.Register("a", 1)
	_ = r.Register("b", 2)

	r.Clear()

	if r.Count() != 0 {
		t.Errorf("Expected empty registry, got %d items", r.Count())
	}
	if len(r.Names()) != 0 {
		t.Errorf("Expected no names after Clear, got %v", r.Names())
	}
}
