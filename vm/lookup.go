package vm

// Resolution is the result of resolving a selector against a class. It
// records enough of the state it was computed under to tell later whether
// it still holds.
type Resolution struct {
	Entry *MethodEntry // nil when not found

	ancestors *ancestry
	depth     int    // index of the owner in ancestors (or where lookup stopped)
	epochSum  uint64 // sum of epochs of ancestors[start..depth]
	start     int
}

// Found reports whether a callable entry was found.
func (r Resolution) Found() bool { return r.Entry != nil }

// Depth returns the index of the owner in the resolution order.
func (r Resolution) Depth() int { return r.depth }

// Valid reports whether the resolution would still produce the same entry:
// no include/prepend happened anywhere and no class between the start of
// the walk and the owner has changed its epoch.
//
// Classes after the owner are ignored; a definition there cannot shadow
// the entry already found.
func (r Resolution) Valid() bool {
	if r.ancestors == nil || !r.ancestors.valid.IsValid() {
		return false
	}
	return epochSum(r.ancestors.classes, r.start, r.depth) == r.epochSum
}

func epochSum(classes []*Class, from, to int) uint64 {
	var sum uint64
	for i := from; i <= to && i < len(classes); i++ {
		sum += classes[i].epoch.Load()
	}
	return sum
}

// Resolve walks start's ancestors and returns the first entry for sel. It
// returns a resolution with a nil Entry when no ancestor defines sel or an
// undef marker is hit first; that is not an error, the caller decides on a
// method_missing fallback.
//
// Visibility is reported, not enforced.
func (vm *VM) Resolve(start *Class, sel *Selector) Resolution {
	return resolveFrom(start.ancestorSnapshot(), 0, sel)
}

// ResolveSuper resolves sel starting after owner in start's ancestors, as a
// super call from a method owned by owner does. If owner is not an ancestor
// of start the result is not found.
func (vm *VM) ResolveSuper(start, owner *Class, sel *Selector) Resolution {
	snap := start.ancestorSnapshot()
	for i, a := range snap.classes {
		if a == owner {
			return resolveFrom(snap, i+1, sel)
		}
	}
	return Resolution{ancestors: snap, depth: len(snap.classes) - 1}
}

func resolveFrom(snap *ancestry, from int, sel *Selector) Resolution {
	var sum uint64
	for i := from; i < len(snap.classes); i++ {
		c := snap.classes[i]
		// Epoch before table: a writer publishes the table first, so a
		// stale table can only be paired with a stale epoch.
		sum += c.epoch.Load()
		entry := c.methods.Lookup(sel)
		if entry == nil {
			continue
		}
		res := Resolution{ancestors: snap, start: from, depth: i, epochSum: sum}
		if !entry.undefined {
			res.Entry = entry
		}
		return res
	}
	return Resolution{ancestors: snap, start: from, depth: len(snap.classes) - 1, epochSum: sum}
}
