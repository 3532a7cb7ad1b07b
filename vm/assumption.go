package vm

import "sync/atomic"

// Assumption is a one-shot validity flag. Fast paths capture an Assumption
// when they are built and recheck IsValid on every use; invalidating it
// forces them to be rebuilt from current state.
type Assumption struct {
	name  string
	valid atomic.Bool
}

// NewAssumption returns a valid assumption.
func NewAssumption(name string) *Assumption {
	a := &Assumption{name: name}
	a.valid.Store(true)
	return a
}

// Name returns the assumption's name.
func (a *Assumption) Name() string { return a.name }

// IsValid reports whether the assumption still holds.
func (a *Assumption) IsValid() bool { return a.valid.Load() }

// Invalidate marks the assumption as broken. It returns true for the call
// that performed the transition.
func (a *Assumption) Invalidate() bool { return a.valid.CompareAndSwap(true, false) }

// CyclicAssumption hands out a fresh Assumption each time the previous one
// is invalidated, along with a generation counter.
type CyclicAssumption struct {
	name       string
	current    atomic.Pointer[Assumption]
	generation atomic.Uint64
}

// NewCyclicAssumption returns a cyclic assumption at generation zero.
func NewCyclicAssumption(name string) *CyclicAssumption {
	c := &CyclicAssumption{name: name}
	c.current.Store(NewAssumption(name))
	return c
}

// Get returns the currently valid assumption.
func (c *CyclicAssumption) Get() *Assumption { return c.current.Load() }

// Generation returns how many times the assumption has been invalidated.
func (c *CyclicAssumption) Generation() uint64 { return c.generation.Load() }

// Invalidate installs a fresh assumption and then invalidates the old one.
// State guarded by the assumption must be published before calling this.
func (c *CyclicAssumption) Invalidate() {
	old := c.current.Swap(NewAssumption(c.name))
	c.generation.Add(1)
	old.Invalidate()
}
