package vm

import "sync/atomic"

// Inline Caching for Method Dispatch
//
// Each call site owns one InlineCache. Most sites only ever see one
// receiver class, a few see a handful, and a very few see many:
//
//	Uninitialized -> Monomorphic -> Polymorphic (up to the limit) -> Megamorphic
//
// Transitions only go forward. Entries are immutable and the chain is
// replaced wholesale with a compare-and-swap, so a concurrent reader sees
// either the old chain or the new one, never a partially built entry.

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheUninitialized CacheState = iota // No cached lookup yet
	CacheMonomorphic                     // Single guard cached
	CachePolymorphic                     // 2..limit guards cached
	CacheMegamorphic                     // Too many guards, resolve on every call
)

func (s CacheState) String() string {
	switch s {
	case CacheMonomorphic:
		return "monomorphic"
	case CachePolymorphic:
		return "polymorphic"
	case CacheMegamorphic:
		return "megamorphic"
	default:
		return "uninitialized"
	}
}

// DefaultPolymorphicLimit is the number of distinct guards a cache holds
// before it collapses to megamorphic.
const DefaultPolymorphicLimit = 8

// InlineCacheEntry holds a single cached resolution. The guard is the
// receiver class plus the selector (send sites vary it) plus, for super
// sites, the class the lookup started after.
type InlineCacheEntry struct {
	Class    *Class
	Selector *Selector
	After    *Class

	resolution Resolution
}

// Method returns the cached method entry.
func (e *InlineCacheEntry) Method() *MethodEntry { return e.resolution.Entry }

// Valid reports whether the cached resolution still holds.
func (e *InlineCacheEntry) Valid() bool { return e.resolution.Valid() }

func (e *InlineCacheEntry) matches(class *Class, sel *Selector, after *Class) bool {
	return e.Class == class && e.Selector == sel && e.After == after
}

// cacheChain is one published cache state. Never mutated after publication.
type cacheChain struct {
	state   CacheState
	guards  int // distinct guards ever admitted; frozen once megamorphic
	entries []*InlineCacheEntry
}

var emptyChain = &cacheChain{state: CacheUninitialized}

// InlineCache is the per-call-site cache.
type InlineCache struct {
	chain atomic.Pointer[cacheChain]
	limit int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewInlineCache returns an empty cache holding at most limit guards.
func NewInlineCache(limit int) *InlineCache {
	if limit < 1 {
		limit = DefaultPolymorphicLimit
	}
	ic := &InlineCache{limit: limit}
	ic.chain.Store(emptyChain)
	return ic
}

func (ic *InlineCache) load() *cacheChain {
	if c := ic.chain.Load(); c != nil {
		return c
	}
	return emptyChain
}

// State returns the current cache state.
func (ic *InlineCache) State() CacheState { return ic.load().state }

// Guards returns the number of distinct guards admitted so far. It never
// decreases.
func (ic *InlineCache) Guards() int { return ic.load().guards }

// Limit returns the polymorphic bound.
func (ic *InlineCache) Limit() int { return ic.limit }

// Entries returns the current entries. The slice is shared; do not modify.
func (ic *InlineCache) Entries() []*InlineCacheEntry { return ic.load().entries }

// Lookup returns the valid entry guarding (class, sel, after), or nil on a
// miss. An entry whose guard matches but whose resolution is stale is a
// miss.
func (ic *InlineCache) Lookup(class *Class, sel *Selector, after *Class) *InlineCacheEntry {
	for _, e := range ic.load().entries {
		if e.matches(class, sel, after) {
			if e.Valid() {
				ic.hits.Add(1)
				return e
			}
			break
		}
	}
	ic.misses.Add(1)
	return nil
}

// Update records a fresh entry and returns the state before and after.
// A stale entry with the same guard is replaced in place, which does not
// count as a new guard.
func (ic *InlineCache) Update(entry *InlineCacheEntry) (from, to CacheState) {
	if entry == nil || entry.Method() == nil {
		s := ic.State()
		return s, s
	}
	for {
		old := ic.load()
		next := old.with(entry, ic.limit)
		if next == old {
			return old.state, old.state
		}
		if ic.chain.CompareAndSwap(old, next) || ic.chain.CompareAndSwap(nil, next) {
			return old.state, next.state
		}
	}
}

func (c *cacheChain) with(entry *InlineCacheEntry, limit int) *cacheChain {
	if c.state == CacheMegamorphic {
		return c
	}

	for i, e := range c.entries {
		if e.matches(entry.Class, entry.Selector, entry.After) {
			entries := make([]*InlineCacheEntry, len(c.entries))
			copy(entries, c.entries)
			entries[i] = entry
			return &cacheChain{state: c.state, guards: c.guards, entries: entries}
		}
	}

	if len(c.entries) >= limit {
		return &cacheChain{state: CacheMegamorphic, guards: c.guards + 1}
	}

	entries := make([]*InlineCacheEntry, len(c.entries), len(c.entries)+1)
	copy(entries, c.entries)
	entries = append(entries, entry)
	state := CachePolymorphic
	if len(entries) == 1 {
		state = CacheMonomorphic
	}
	return &cacheChain{state: state, guards: c.guards + 1, entries: entries}
}

// Hits returns the number of cache hits.
func (ic *InlineCache) Hits() uint64 { return ic.hits.Load() }

// Misses returns the number of misses, megamorphic lookups included.
func (ic *InlineCache) Misses() uint64 { return ic.misses.Load() }

// HitRate returns the cache hit rate as a percentage (0-100).
func (ic *InlineCache) HitRate() float64 {
	hits, misses := ic.Hits(), ic.Misses()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) * 100 / float64(total)
}
