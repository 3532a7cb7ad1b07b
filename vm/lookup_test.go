package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Resolution order
// ---------------------------------------------------------------------------

func TestResolveFindsNearestDefinition(t *testing.T) {
	vm := NewVM()
	animal := vm.MustDefineClass("Animal", nil)
	dog := vm.MustDefineClass("Dog", animal)
	speak := vm.Selectors.Intern("speak")

	animal.DefineFunc("speak", constant("..."))
	res := vm.Resolve(dog, speak)
	if !res.Found() || res.Entry.Owner() != animal {
		t.Fatalf("Resolve(Dog, speak) owner = %v, want Animal", res.Entry)
	}
	if res.Depth() != 1 {
		t.Errorf("Depth = %d, want 1", res.Depth())
	}

	dog.DefineFunc("speak", constant("Woof"))
	res = vm.Resolve(dog, speak)
	if res.Entry.Owner() != dog {
		t.Errorf("Resolve(Dog, speak) owner = %v, want Dog", res.Entry.Owner())
	}
	if res.Depth() != 0 {
		t.Errorf("Depth = %d, want 0", res.Depth())
	}
}

func TestResolveThroughModules(t *testing.T) {
	vm := NewVM()
	modA := vm.MustDefineModule("ModA")
	modB := vm.MustDefineModule("ModB")
	c := vm.MustDefineClass("C", nil)
	greet := vm.Selectors.Intern("greet")

	modA.DefineFunc("greet", constant("a"))
	modB.DefineFunc("greet", constant("b"))
	if err := c.Include(modB); err != nil {
		t.Fatal(err)
	}
	if err := c.Include(modA); err != nil {
		t.Fatal(err)
	}

	if owner := vm.Resolve(c, greet).Entry.Owner(); owner != modA {
		t.Errorf("owner = %v, want ModA", owner)
	}

	p := vm.MustDefineModule("P")
	p.DefineFunc("greet", constant("p"))
	c.DefineFunc("greet", constant("c"))
	if err := c.Prepend(p); err != nil {
		t.Fatal(err)
	}
	if owner := vm.Resolve(c, greet).Entry.Owner(); owner != p {
		t.Errorf("owner with prepend = %v, want P", owner)
	}
}

func TestResolveNotFound(t *testing.T) {
	vm := NewVM()
	c := vm.MustDefineClass("C", nil)

	res := vm.Resolve(c, vm.Selectors.Intern("nope"))
	if res.Found() {
		t.Fatal("expected not found")
	}
	if !res.Valid() {
		t.Error("a not-found resolution should be valid until something changes")
	}

	vm.Object.DefineFunc("nope", constant(1))
	if res.Valid() {
		t.Error("defining the selector on an ancestor should invalidate a miss")
	}
}

func TestResolveSuper(t *testing.T) {
	vm := NewVM()
	animal := vm.MustDefineClass("Animal", nil)
	dog := vm.MustDefineClass("Dog", animal)
	loud := vm.MustDefineModule("Loud")
	speak := vm.Selectors.Intern("speak")

	animal.DefineFunc("speak", constant("..."))
	dog.DefineFunc("speak", constant("Woof"))
	loud.DefineFunc("speak", constant("WOOF"))
	if err := dog.Prepend(loud); err != nil {
		t.Fatal(err)
	}

	if owner := vm.ResolveSuper(dog, loud, speak).Entry.Owner(); owner != dog {
		t.Errorf("super from Loud = %v, want Dog", owner)
	}
	if owner := vm.ResolveSuper(dog, dog, speak).Entry.Owner(); owner != animal {
		t.Errorf("super from Dog = %v, want Animal", owner)
	}
	if vm.ResolveSuper(dog, animal, speak).Found() {
		t.Error("super from Animal should not be found")
	}
	if vm.ResolveSuper(dog, vm.String, speak).Found() {
		t.Error("super from a non-ancestor should not be found")
	}
}

// ---------------------------------------------------------------------------
// Validity
// ---------------------------------------------------------------------------

func TestResolutionValidity(t *testing.T) {
	vm := NewVM()
	animal := vm.MustDefineClass("Animal", nil)
	dog := vm.MustDefineClass("Dog", animal)
	speak := vm.Selectors.Intern("speak")
	animal.DefineFunc("speak", constant("..."))

	res := vm.Resolve(dog, speak)
	if !res.Valid() {
		t.Fatal("fresh resolution should be valid")
	}

	// Changes after the owner cannot shadow it.
	vm.Object.DefineFunc("unrelated", constant(nil))
	vm.Object.DefineFunc("speak", constant("object"))
	if !res.Valid() {
		t.Error("definitions after the owner should not invalidate")
	}

	// A definition between the start and the owner does.
	dog.DefineFunc("bark", constant("Woof"))
	if res.Valid() {
		t.Error("a change to Dog should invalidate")
	}

	res = vm.Resolve(dog, speak)
	other := vm.MustDefineModule("Other")
	if err := vm.String.Include(other); err != nil {
		t.Fatal(err)
	}
	if res.Valid() {
		t.Error("any include should invalidate")
	}
}

// ---------------------------------------------------------------------------
// Removal, undef, alias, visibility
// ---------------------------------------------------------------------------

func TestRemoveMethodFallsBack(t *testing.T) {
	vm := NewVM()
	animal := vm.MustDefineClass("Animal", nil)
	dog := vm.MustDefineClass("Dog", animal)
	speak := vm.Selectors.Intern("speak")
	animal.DefineFunc("speak", constant("..."))
	dog.DefineFunc("speak", constant("Woof"))

	if err := dog.RemoveMethod(speak); err != nil {
		t.Fatal(err)
	}
	if owner := vm.Resolve(dog, speak).Entry.Owner(); owner != animal {
		t.Errorf("after remove owner = %v, want Animal", owner)
	}
}

func TestUndefMethodStopsLookup(t *testing.T) {
	vm := NewVM()
	animal := vm.MustDefineClass("Animal", nil)
	dog := vm.MustDefineClass("Dog", animal)
	puppy := vm.MustDefineClass("Puppy", dog)
	speak := vm.Selectors.Intern("speak")
	animal.DefineFunc("speak", constant("..."))

	if err := dog.UndefMethod(speak); err != nil {
		t.Fatal(err)
	}
	if vm.Resolve(dog, speak).Found() {
		t.Error("undef should hide the inherited method")
	}
	if vm.Resolve(puppy, speak).Found() {
		t.Error("undef should hide the method from subclasses")
	}
	if !vm.Resolve(animal, speak).Found() {
		t.Error("undef must not affect the superclass")
	}
	if dog.Methods().Has(speak) {
		t.Error("an undef marker is not a real entry")
	}

	if err := dog.UndefMethod(speak); !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("second undef error = %v, want ErrMethodNotFound", err)
	}
}

func TestAlias(t *testing.T) {
	vm := NewVM()
	c := vm.MustDefineClass("C", nil)
	c.DefineFunc("greet", constant("hi"))
	hello := vm.Selectors.Intern("hello")

	if err := c.Alias(hello, vm.Selectors.Intern("greet")); err != nil {
		t.Fatal(err)
	}
	// The alias keeps the old body after greet is redefined.
	c.DefineFunc("greet", constant("bye"))

	th := vm.NewThread()
	site := vm.NewCallSite("test:hello", "hello", CallExplicit)
	if v := mustDispatch(t, th, site, vm.NewObject(c)); v != "hi" {
		t.Errorf("hello = %v, want hi", v)
	}

	if err := c.Alias(vm.Selectors.Intern("x"), vm.Selectors.Intern("missing")); !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("alias of missing method error = %v, want ErrMethodNotFound", err)
	}
}

func TestSetVisibilityCopiesInherited(t *testing.T) {
	vm := NewVM()
	animal := vm.MustDefineClass("Animal", nil)
	dog := vm.MustDefineClass("Dog", animal)
	speak := vm.Selectors.Intern("speak")
	original := animal.DefineFunc("speak", constant("..."))

	if err := dog.SetVisibility(speak, Private); err != nil {
		t.Fatal(err)
	}
	res := vm.Resolve(dog, speak)
	if res.Entry.Owner() != dog || res.Entry.Visibility() != Private {
		t.Errorf("Dog entry = %v (%s), want private copy in Dog", res.Entry, res.Entry.Visibility())
	}
	if original.Visibility() != Public {
		t.Error("the inherited entry must be left public")
	}
	if res.Entry.Body() == nil {
		t.Error("the copy should share the body")
	}
}

func TestMethodTableEntries(t *testing.T) {
	vm := NewVM()
	c := vm.MustDefineClass("C", nil)
	c.DefineFunc("zeta", constant(nil))
	c.DefineFunc("alpha", constant(nil))
	c.DefineFunc("mid", constant(nil))
	if err := c.UndefMethod(vm.Selectors.Intern("class")); err != nil {
		t.Fatal(err)
	}

	entries := c.Methods().Entries()
	if len(entries) != 3 {
		t.Fatalf("Entries() = %d, want 3", len(entries))
	}
	if entries[0].Name() != "alpha" || entries[2].Name() != "zeta" {
		t.Errorf("Entries() not sorted: %v", entries)
	}
	if c.Methods().Len() != 4 {
		t.Errorf("Len() = %d, want 4 including the undef marker", c.Methods().Len())
	}
}
