package vm

import (
	"sort"
	"sync/atomic"
)

// MethodTable maps selectors to the entries defined directly on one class.
//
// The table is copy-on-write: readers load the current map without locking,
// writers (serialized by the owning class) build a new map and publish it
// with a single atomic store. A published map is never mutated.
type MethodTable struct {
	entries atomic.Pointer[map[*Selector]*MethodEntry]
}

// Lookup returns the entry for sel defined in this table, or nil.
// Undefined markers are returned as-is so the resolver can stop at them.
func (mt *MethodTable) Lookup(sel *Selector) *MethodEntry {
	m := mt.entries.Load()
	if m == nil {
		return nil
	}
	return (*m)[sel]
}

// Has reports whether sel has a real (not undefined) entry in this table.
func (mt *MethodTable) Has(sel *Selector) bool {
	e := mt.Lookup(sel)
	return e != nil && !e.undefined
}

// Len returns the number of entries, undefined markers included.
func (mt *MethodTable) Len() int {
	m := mt.entries.Load()
	if m == nil {
		return 0
	}
	return len(*m)
}

// Entries returns the defined entries sorted by selector name.
func (mt *MethodTable) Entries() []*MethodEntry {
	m := mt.entries.Load()
	if m == nil {
		return nil
	}
	result := make([]*MethodEntry, 0, len(*m))
	for _, e := range *m {
		if !e.undefined {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].selector.name < result[j].selector.name })
	return result
}

// put publishes a new map with sel bound to entry.
// Callers must hold the owning class's write lock.
func (mt *MethodTable) put(sel *Selector, entry *MethodEntry) {
	mt.publish(func(m map[*Selector]*MethodEntry) { m[sel] = entry })
}

// remove publishes a new map without sel. It returns false when sel was
// not bound.
// Callers must hold the owning class's write lock.
func (mt *MethodTable) remove(sel *Selector) bool {
	if mt.Lookup(sel) == nil {
		return false
	}
	mt.publish(func(m map[*Selector]*MethodEntry) { delete(m, sel) })
	return true
}

func (mt *MethodTable) publish(edit func(map[*Selector]*MethodEntry)) {
	old := mt.entries.Load()
	size := 1
	if old != nil {
		size += len(*old)
	}
	next := make(map[*Selector]*MethodEntry, size)
	if old != nil {
		for k, v := range *old {
			next[k] = v
		}
	}
	edit(next)
	mt.entries.Store(&next)
}
