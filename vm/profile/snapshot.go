// Package profile records what the dispatch layer learned at run time
// (inline cache shapes and frame-sending modes per call site) so a later
// run can start warm. Snapshots travel as canonical CBOR and are kept in a
// SQLite database.
package profile

import (
	"time"

	"github.com/chazu/garnet/vm"
	"github.com/google/uuid"
)

// SiteProfile describes one call site at capture time.
type SiteProfile struct {
	Label    string        `cbor:"1,keyasint"`
	Selector string        `cbor:"2,keyasint,omitempty"` // empty for dynamic sites
	Kind     string        `cbor:"3,keyasint"`
	State    vm.CacheState `cbor:"4,keyasint"`
	Guards   int           `cbor:"5,keyasint"`
	Hits     uint64        `cbor:"6,keyasint"`
	Misses   uint64        `cbor:"7,keyasint"`
	Frame    vm.Reads      `cbor:"8,keyasint"`
	Vars     vm.Reads      `cbor:"9,keyasint"`
}

// Mode returns the recorded frame-send mode.
func (s SiteProfile) Mode() vm.FrameSendMode {
	return vm.FrameSendMode{Frame: s.Frame, Vars: s.Vars}
}

// Snapshot is the profile of every call site of one VM.
type Snapshot struct {
	ID      string        `cbor:"1,keyasint"`
	TakenAt int64         `cbor:"2,keyasint"` // unix nanoseconds
	Sites   []SiteProfile `cbor:"3,keyasint"`
}

// Time returns when the snapshot was taken.
func (s *Snapshot) Time() time.Time { return time.Unix(0, s.TakenAt) }

// FrameSenders returns the sites that pass a frame or special variables.
func (s *Snapshot) FrameSenders() []SiteProfile {
	var out []SiteProfile
	for _, site := range s.Sites {
		if site.Mode() != vm.SendNothing {
			out = append(out, site)
		}
	}
	return out
}

// Capture takes a snapshot of all call sites registered with v.
func Capture(v *vm.VM) *Snapshot {
	sites := v.CallSites()
	snap := &Snapshot{
		ID:      uuid.NewString(),
		TakenAt: time.Now().UnixNano(),
		Sites:   make([]SiteProfile, 0, len(sites)),
	}
	for _, cs := range sites {
		sp := SiteProfile{
			Label:  cs.Label(),
			Kind:   cs.Kind().String(),
			State:  cs.Cache().State(),
			Guards: cs.Cache().Guards(),
			Hits:   cs.Cache().Hits(),
			Misses: cs.Cache().Misses(),
		}
		if sel := cs.Selector(); sel != nil {
			sp.Selector = sel.Name()
		}
		mode := cs.Mode()
		sp.Frame, sp.Vars = mode.Frame, mode.Vars
		snap.Sites = append(snap.Sites, sp)
	}
	return snap
}

// Apply preloads the frame-send modes recorded in snap into v, so that
// call sites with the same labels skip their first stack walk. It returns
// the number of labels preloaded.
func Apply(v *vm.VM, snap *Snapshot) int {
	modes := make(map[string]vm.FrameSendMode)
	var order []string
	for _, site := range snap.FrameSenders() {
		current, seen := modes[site.Label]
		if !seen {
			order = append(order, site.Label)
		}
		modes[site.Label] = merge(current, site.Mode())
	}
	for _, label := range order {
		v.PreloadFrameSending(label, modes[label])
	}
	profileLog().Infof("applied snapshot %s: %d frame-sending sites", snap.ID, len(order))
	return len(order)
}

func merge(a, b vm.FrameSendMode) vm.FrameSendMode {
	if a.Frame == vm.ReadsNothing {
		a.Frame = b.Frame
	}
	if a.Vars == vm.ReadsNothing {
		a.Vars = b.Vars
	}
	return a
}
