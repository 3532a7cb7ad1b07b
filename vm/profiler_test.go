package vm

import (
	"fmt"
	"testing"
)

func TestCallSiteStats(t *testing.T) {
	vm := NewVM()
	th := vm.NewThread()
	base := vm.MustDefineClass("Base", nil)
	base.DefineFunc("m", constant(nil))
	objs := make([]Value, 3)
	for i := range objs {
		objs[i] = vm.NewObject(vm.MustDefineClass(fmt.Sprintf("S%d", i), base))
	}

	baseline := vm.CallSiteStats()

	mono := vm.NewCallSite("stats:mono", "m", CallExplicit)
	poly := vm.NewCallSite("stats:poly", "m", CallExplicit)
	mega := vm.NewCallSite("stats:mega", "m", CallExplicit, WithPolymorphicLimit(2))
	vm.NewCallSite("stats:unused", "m", CallExplicit)

	for i := 0; i < 4; i++ {
		mustDispatch(t, th, mono, objs[0])
	}
	for _, o := range objs[:2] {
		mustDispatch(t, th, poly, o)
	}
	for _, o := range objs {
		mustDispatch(t, th, mega, o)
	}
	vm.PreloadFrameSending("stats:mono", SendSelfVars)

	stats := vm.CallSiteStats()
	if got := stats.TotalCallSites - baseline.TotalCallSites; got != 4 {
		t.Errorf("new call sites = %d, want 4", got)
	}
	if stats.Monomorphic != 1 || stats.Polymorphic != 1 || stats.Megamorphic != 1 {
		t.Errorf("states = %d/%d/%d, want 1/1/1", stats.Monomorphic, stats.Polymorphic, stats.Megamorphic)
	}
	if stats.TotalHits != 3 {
		t.Errorf("TotalHits = %d, want 3", stats.TotalHits)
	}
	if stats.TotalMisses != 6 {
		t.Errorf("TotalMisses = %d, want 6", stats.TotalMisses)
	}
	if stats.SendingVars != baseline.SendingVars+1 {
		t.Errorf("SendingVars = %d, want %d", stats.SendingVars, baseline.SendingVars+1)
	}
	if stats.MonomorphicRate <= 0 || stats.MonomorphicRate >= 100 {
		t.Errorf("MonomorphicRate = %v", stats.MonomorphicRate)
	}
}

func TestCallSitesLabelled(t *testing.T) {
	vm := NewVM()
	a := vm.NewCallSite("dup", "x", CallExplicit)
	b := vm.NewCallSite("dup", "y", CallExplicit)

	sites := vm.CallSitesLabelled("dup")
	if len(sites) != 2 || sites[0] != a || sites[1] != b {
		t.Errorf("CallSitesLabelled = %v", sites)
	}
	if len(vm.CallSitesLabelled("none")) != 0 {
		t.Error("unknown label should have no sites")
	}
	if all := vm.CallSites(); all[len(all)-1] != b {
		t.Error("CallSites should be in creation order")
	}
}
