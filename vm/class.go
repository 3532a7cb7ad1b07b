package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// ClassKind distinguishes ordinary classes from modules and singleton
// classes. All three share the same method-table and ancestry machinery.
type ClassKind uint8

const (
	KindClass ClassKind = iota
	KindModule
	KindSingleton
)

func (k ClassKind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindSingleton:
		return "singleton"
	default:
		return "class"
	}
}

// ---------------------------------------------------------------------------
// Class: a class, module or singleton class
// ---------------------------------------------------------------------------

// Class owns a method table and an epoch counter and computes its ancestor
// list (method resolution order) on demand.
//
// Writers (definitions, include, prepend) serialize on mu and publish new
// immutable snapshots; readers never lock. The epoch is bumped only after
// the new snapshot is visible, so a reader that observes the new epoch also
// observes the new table.
type Class struct {
	vm         *VM
	name       string
	kind       ClassKind
	superclass *Class
	attached   Value // the object a singleton class belongs to

	mu       sync.Mutex
	methods  MethodTable
	epoch    atomic.Uint64
	includes atomic.Pointer[[]*Class] // in inclusion order
	prepends atomic.Pointer[[]*Class] // in prepend order

	ancestry  atomic.Pointer[ancestry]
	singleton atomic.Pointer[Class]
}

// ancestry is an immutable ancestor-list snapshot tagged with the hierarchy
// assumption it was computed under.
type ancestry struct {
	valid   *Assumption
	classes []*Class
}

func newClass(vm *VM, name string, kind ClassKind, superclass *Class) *Class {
	return &Class{vm: vm, name: name, kind: kind, superclass: superclass}
}

// Name returns the class name.
func (c *Class) Name() string {
	if c == nil {
		return "<nil class>"
	}
	return c.name
}

func (c *Class) String() string { return c.Name() }

// Kind returns whether c is a class, module or singleton class.
func (c *Class) Kind() ClassKind { return c.kind }

// IsModule reports whether c is a module.
func (c *Class) IsModule() bool { return c.kind == KindModule }

// IsSingleton reports whether c is a singleton class.
func (c *Class) IsSingleton() bool { return c.kind == KindSingleton }

// Superclass returns the direct superclass, or nil for BasicObject and
// modules.
func (c *Class) Superclass() *Class { return c.superclass }

// Attached returns the object a singleton class belongs to.
func (c *Class) Attached() Value { return c.attached }

// Methods returns the class's own method table.
func (c *Class) Methods() *MethodTable { return &c.methods }

// Epoch returns the class's invalidation epoch.
func (c *Class) Epoch() uint64 { return c.epoch.Load() }

// Includes returns the modules included directly into c, in inclusion order.
func (c *Class) Includes() []*Class { return loadList(&c.includes) }

// Prepends returns the modules prepended directly to c, in prepend order.
func (c *Class) Prepends() []*Class { return loadList(&c.prepends) }

func loadList(p *atomic.Pointer[[]*Class]) []*Class {
	if l := p.Load(); l != nil {
		return *l
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ancestors
// ---------------------------------------------------------------------------

// Ancestors returns the method resolution order starting at c. The returned
// slice is shared and must not be modified.
func (c *Class) Ancestors() []*Class {
	return c.ancestorSnapshot().classes
}

func (c *Class) ancestorSnapshot() *ancestry {
	if a := c.ancestry.Load(); a != nil && a.valid.IsValid() {
		return a
	}
	// Take the assumption before reading structure: a concurrent include
	// publishes its list before invalidating, so a snapshot built from stale
	// lists is always tagged with an assumption that is already dead.
	valid := c.vm.hierarchy.Get()
	a := &ancestry{valid: valid, classes: c.linearize()}
	c.ancestry.Store(a)
	return a
}

// linearize computes prepends (most recent first), c itself, includes
// (most recent first), then the superclass's ancestors. Modules already
// reachable through the superclass are not inserted again.
func (c *Class) linearize() []*Class {
	var inherited []*Class
	if c.superclass != nil {
		inherited = c.superclass.ancestorSnapshot().classes
	}

	seen := make(map[*Class]bool, len(inherited)+8)
	for _, a := range inherited {
		seen[a] = true
	}

	out := make([]*Class, 0, len(inherited)+8)
	addModule := func(m *Class) {
		for _, a := range m.ancestorSnapshot().classes {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}

	prepends := c.Prepends()
	for i := len(prepends) - 1; i >= 0; i-- {
		addModule(prepends[i])
	}
	seen[c] = true
	out = append(out, c)
	includes := c.Includes()
	for i := len(includes) - 1; i >= 0; i-- {
		addModule(includes[i])
	}
	return append(out, inherited...)
}

// IsSubclassOf returns true if other appears in c's ancestors (c itself
// included).
func (c *Class) IsSubclassOf(other *Class) bool {
	for _, a := range c.Ancestors() {
		if a == other {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Method definition
// ---------------------------------------------------------------------------

// Define binds sel to body in c's own table and bumps c's epoch. Any
// previous entry for sel stays intact for readers that already hold it.
func (c *Class) Define(sel *Selector, body CallTarget, vis Visibility) *MethodEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &MethodEntry{owner: c, definedIn: c, selector: sel, body: body, visibility: vis, epoch: c.epoch.Load() + 1}
	c.methods.put(sel, entry)
	c.bump("define " + sel.name)
	return entry
}

// DefineFunc interns name and defines a public method backed by fn.
func (c *Class) DefineFunc(name string, fn BodyFunc) *MethodEntry {
	return c.Define(c.vm.Selectors.Intern(name), fn, Public)
}

// DefinePrimitive interns p.Name and defines p with the given visibility.
func (c *Class) DefinePrimitive(p *Primitive, vis Visibility) *MethodEntry {
	return c.Define(c.vm.Selectors.Intern(p.Name), p, vis)
}

// RemoveMethod deletes c's own entry for sel; lookup then continues in the
// ancestors (Ruby's remove_method).
func (c *Class) RemoveMethod(sel *Selector) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.methods.Has(sel) {
		return fmt.Errorf("method '%s' not defined in %s: %w", sel.name, c.name, ErrMethodNotFound)
	}
	c.methods.remove(sel)
	c.bump("remove " + sel.name)
	return nil
}

// UndefMethod installs a marker that stops lookup at c, so sel is not found
// on c or its descendants (Ruby's undef_method).
func (c *Class) UndefMethod(sel *Selector) error {
	if !c.vm.Resolve(c, sel).Found() {
		return fmt.Errorf("undefined method '%s' for %s: %w", sel.name, c.name, ErrMethodNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.methods.put(sel, &MethodEntry{owner: c, definedIn: c, selector: sel, undefined: true, epoch: c.epoch.Load() + 1})
	c.bump("undef " + sel.name)
	return nil
}

// SetVisibility changes the visibility of sel as seen from c. An inherited
// method is copied into c's table with the new visibility, leaving the
// ancestor's entry untouched.
func (c *Class) SetVisibility(sel *Selector, vis Visibility) error {
	res := c.vm.Resolve(c, sel)
	if !res.Found() {
		return fmt.Errorf("undefined method '%s' for %s: %w", sel.name, c.name, ErrMethodNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.methods.put(sel, res.Entry.withVisibility(c, vis, c.epoch.Load()+1))
	c.bump("visibility " + sel.name)
	return nil
}

// Alias binds newSel in c to the body currently resolved for oldSel.
func (c *Class) Alias(newSel, oldSel *Selector) error {
	res := c.vm.Resolve(c, oldSel)
	if !res.Found() {
		return fmt.Errorf("undefined method '%s' for %s: %w", oldSel.name, c.name, ErrMethodNotFound)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.methods.put(newSel, &MethodEntry{
		owner:      c,
		definedIn:  res.Entry.definedIn,
		selector:   newSel,
		body:       res.Entry.body,
		visibility: res.Entry.visibility,
		epoch:      c.epoch.Load() + 1,
	})
	c.bump("alias " + newSel.name)
	return nil
}

// bump advances c's epoch. Callers hold c.mu and have already published
// the change.
func (c *Class) bump(reason string) {
	epoch := c.epoch.Add(1)
	if log := vmLog(); log.AllowLevel(commonlog.Debug) {
		log.Debugf("%s epoch %d: %s", c.name, epoch, reason)
	}
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

// Include inserts m after c in c's ancestors.
func (c *Class) Include(m *Class) error {
	return c.compose(&c.includes, m, "include")
}

// Prepend inserts m before c in c's ancestors.
func (c *Class) Prepend(m *Class) error {
	return c.compose(&c.prepends, m, "prepend")
}

func (c *Class) compose(list *atomic.Pointer[[]*Class], m *Class, op string) error {
	if m == nil || !m.IsModule() {
		return fmt.Errorf("%s: wrong argument type %s (expected Module)", op, m.Name())
	}
	if m == c || m.IsSubclassOf(c) {
		return fmt.Errorf("%s: cyclic %s detected for %s", op, op, m.name)
	}

	c.mu.Lock()
	current := loadList(list)
	for _, existing := range current {
		if existing == m {
			c.mu.Unlock()
			return nil
		}
	}
	next := make([]*Class, len(current), len(current)+1)
	copy(next, current)
	next = append(next, m)
	list.Store(&next)
	c.bump(op + " " + m.name)
	c.mu.Unlock()

	c.vm.invalidateHierarchy(c, op+" "+m.name)
	return nil
}

// ---------------------------------------------------------------------------
// Singleton classes of classes and modules
// ---------------------------------------------------------------------------

// SingletonClass returns c's singleton class (its metaclass), creating it on
// first use. A class's singleton inherits from its superclass's singleton; a
// root class's from Class; a module's from Module.
func (c *Class) SingletonClass() *Class {
	if s := c.singleton.Load(); s != nil {
		return s
	}

	var super *Class
	switch {
	case c.kind == KindModule:
		super = c.vm.Module
	case c.superclass != nil:
		super = c.superclass.SingletonClass()
	default:
		super = c.vm.ClassClass
	}

	s := newClass(c.vm, "#<Class:"+c.name+">", KindSingleton, super)
	s.attached = c
	if c.singleton.CompareAndSwap(nil, s) {
		return s
	}
	return c.singleton.Load()
}

// ---------------------------------------------------------------------------
// ClassTable: Global class registry
// ---------------------------------------------------------------------------

// ClassTable manages registered classes and modules by name.
// It's thread-safe for concurrent access.
type ClassTable struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

// NewClassTable creates a new empty class table.
func NewClassTable() *ClassTable {
	return &ClassTable{
		classes: make(map[string]*Class),
	}
}

// Register adds a class to the table.
// Returns the previous class with this name, or nil.
func (ct *ClassTable) Register(c *Class) *Class {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	old := ct.classes[c.name]
	ct.classes[c.name] = c
	return old
}

// Lookup finds a class by name.
func (ct *ClassTable) Lookup(name string) *Class {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.classes[name]
}

// Len returns the number of registered classes.
func (ct *ClassTable) Len() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.classes)
}
