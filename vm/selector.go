package vm

import (
	"strings"
	"sync"
)

// ArityClass is a coarse classification of a selector derived from its
// spelling. Arity is not enforced at this layer; the class is informational
// and lets call sites and tooling group selectors.
type ArityClass uint8

const (
	ArityPlain      ArityClass = iota // foo
	ArityPredicate                    // empty?
	ArityBang                         // sort!
	ArityAssignment                   // name=
	ArityOperator                     // +, [], <=>
)

func (a ArityClass) String() string {
	switch a {
	case ArityPredicate:
		return "predicate"
	case ArityBang:
		return "bang"
	case ArityAssignment:
		return "assignment"
	case ArityOperator:
		return "operator"
	default:
		return "plain"
	}
}

// Selector is an interned method name. Selectors from the same table are
// identity-comparable: two lookups of the same name yield the same pointer.
type Selector struct {
	name  string
	id    int
	arity ArityClass
}

// Name returns the method name.
func (s *Selector) Name() string { return s.name }

// ID returns the selector's dense index in its table.
func (s *Selector) ID() int { return s.id }

// Arity returns the selector's arity class.
func (s *Selector) Arity() ArityClass { return s.arity }

func (s *Selector) String() string {
	if s == nil {
		return "<nil selector>"
	}
	return s.name
}

func classifySelector(name string) ArityClass {
	if name == "" {
		return ArityPlain
	}
	first := name[0]
	if !(first == '_' || first >= 'a' && first <= 'z' || first >= 'A' && first <= 'Z') {
		return ArityOperator
	}
	switch {
	case strings.HasSuffix(name, "?"):
		return ArityPredicate
	case strings.HasSuffix(name, "!"):
		return ArityBang
	case strings.HasSuffix(name, "="):
		return ArityAssignment
	}
	return ArityPlain
}

// SelectorTable interns method names to Selectors.
//
// The table is append-only and safe for concurrent use. Readers take the
// read lock only; new names take the write lock with a double check.
type SelectorTable struct {
	mu     sync.RWMutex
	byName map[string]*Selector
	byID   []*Selector
}

// NewSelectorTable creates a new empty selector table.
func NewSelectorTable() *SelectorTable {
	return &SelectorTable{
		byName: make(map[string]*Selector),
		byID:   make([]*Selector, 0, 256),
	}
}

// Intern returns the Selector for name, creating it if needed.
func (st *SelectorTable) Intern(name string) *Selector {
	st.mu.RLock()
	if sel, ok := st.byName[name]; ok {
		st.mu.RUnlock()
		return sel
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if sel, ok := st.byName[name]; ok {
		return sel
	}

	sel := &Selector{name: name, id: len(st.byID), arity: classifySelector(name)}
	st.byName[name] = sel
	st.byID = append(st.byID, sel)
	return sel
}

// Lookup returns the Selector for name, or nil if it was never interned.
func (st *SelectorTable) Lookup(name string) *Selector {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.byName[name]
}

// ByID returns the selector with the given id, or nil if out of range.
func (st *SelectorTable) ByID(id int) *Selector {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if id < 0 || id >= len(st.byID) {
		return nil
	}
	return st.byID[id]
}

// Len returns the number of interned selectors.
func (st *SelectorTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// All returns all selector names in id order.
func (st *SelectorTable) All() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	result := make([]string, len(st.byID))
	for i, sel := range st.byID {
		result[i] = sel.name
	}
	return result
}
