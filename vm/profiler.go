package vm

import "sync"

// callSiteRegistry keeps every call site a VM has created so tooling can
// report on cache and frame-sending behavior.
type callSiteRegistry struct {
	mu    sync.RWMutex
	sites []*CallSite
	index map[string][]*CallSite
}

func (r *callSiteRegistry) register(cs *CallSite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index == nil {
		r.index = make(map[string][]*CallSite)
	}
	r.sites = append(r.sites, cs)
	r.index[cs.label] = append(r.index[cs.label], cs)
}

func (r *callSiteRegistry) byLabel(label string) []*CallSite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sites := r.index[label]
	result := make([]*CallSite, len(sites))
	copy(result, sites)
	return result
}

func (r *callSiteRegistry) all() []*CallSite {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*CallSite, len(r.sites))
	copy(result, r.sites)
	return result
}

// CallSites returns every call site created so far, in creation order.
func (vm *VM) CallSites() []*CallSite { return vm.sites.all() }

// CallSitesLabelled returns the call sites created with label.
func (vm *VM) CallSitesLabelled(label string) []*CallSite { return vm.sites.byLabel(label) }

// ICStats holds aggregate inline cache statistics.
type ICStats struct {
	TotalCallSites  int     // Total number of call sites
	Uninitialized   int     // Call sites never dispatched through
	Monomorphic     int     // Call sites in monomorphic state
	Polymorphic     int     // Call sites in polymorphic state
	Megamorphic     int     // Call sites in megamorphic state
	SendingFrames   int     // Call sites passing a frame
	SendingVars     int     // Call sites passing special variables
	TotalHits       uint64  // Total cache hits
	TotalMisses     uint64  // Total cache misses
	HitRate         float64 // Overall hit rate percentage
	MonomorphicRate float64 // Percentage of used call sites that are monomorphic
}

// CallSiteStats gathers inline cache and frame-sending statistics from all
// call sites of the VM.
func (vm *VM) CallSiteStats() ICStats {
	var stats ICStats

	for _, cs := range vm.sites.all() {
		stats.TotalCallSites++
		switch cs.cache.State() {
		case CacheUninitialized:
			stats.Uninitialized++
		case CacheMonomorphic:
			stats.Monomorphic++
		case CachePolymorphic:
			stats.Polymorphic++
		case CacheMegamorphic:
			stats.Megamorphic++
		}
		mode := cs.Mode()
		if mode.SendsFrame() {
			stats.SendingFrames++
		}
		if mode.Vars != ReadsNothing {
			stats.SendingVars++
		}
		stats.TotalHits += cs.cache.Hits()
		stats.TotalMisses += cs.cache.Misses()
	}

	total := stats.TotalHits + stats.TotalMisses
	if total > 0 {
		stats.HitRate = float64(stats.TotalHits) * 100 / float64(total)
	}

	used := stats.TotalCallSites - stats.Uninitialized
	if used > 0 {
		stats.MonomorphicRate = float64(stats.Monomorphic) * 100 / float64(used)
	}

	return stats
}
