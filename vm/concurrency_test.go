package vm

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const racers = 16

// race runs fn on racers goroutines, each with its own Thread, releasing
// them together.
func race(t *testing.T, vm *VM, fn func(i int, th *Thread) error) {
	t.Helper()
	start := make(chan struct{})
	var eg errgroup.Group
	for i := 0; i < racers; i++ {
		i := i
		th := vm.NewThread()
		eg.Go(func() error {
			<-start
			return fn(i, th)
		})
	}
	close(start)
	require.NoError(t, eg.Wait())
}

// ---------------------------------------------------------------------------
// Inline cache population
// ---------------------------------------------------------------------------

func TestConcurrentFirstMiss(t *testing.T) {
	vm := NewVM()
	c := vm.MustDefineClass("C", nil)
	c.DefineFunc("m", constant("ok"))
	obj := vm.NewObject(c)

	for round := 0; round < 50; round++ {
		site := vm.NewCallSite(fmt.Sprintf("race:%d", round), "m", CallExplicit)
		race(t, vm, func(i int, th *Thread) error {
			v, err := dispatchFromTop(th, site, obj)
			if err != nil {
				return err
			}
			if v != "ok" {
				return fmt.Errorf("racer %d got %v", i, v)
			}
			return nil
		})

		assert.Equal(t, CacheMonomorphic, site.Cache().State())
		assert.Equal(t, 1, site.Cache().Guards())
		entries := site.Cache().Entries()
		require.Len(t, entries, 1)
		assert.Same(t, c, entries[0].Class)
		assert.NotNil(t, entries[0].Method())
	}
}

func TestConcurrentPolymorphicFill(t *testing.T) {
	vm := NewVM()
	site := vm.NewCallSite("race:poly", "id", CallExplicit)
	objs := make([]Value, racers)
	for i := range objs {
		c := vm.MustDefineClass(fmt.Sprintf("R%d", i), nil)
		c.DefineFunc("id", constant(i))
		objs[i] = vm.NewObject(c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var watcher sync.WaitGroup
	var regressions []string
	watcher.Add(1)
	go func() {
		defer watcher.Done()
		lastGuards, lastState := 0, CacheUninitialized
		for ctx.Err() == nil {
			guards, state := site.Cache().Guards(), site.Cache().State()
			if guards < lastGuards || state < lastState {
				regressions = append(regressions, fmt.Sprintf("%v/%d -> %v/%d", lastState, lastGuards, state, guards))
			}
			lastGuards, lastState = guards, state
			for _, e := range site.Cache().Entries() {
				if e.Class == nil || e.Selector == nil || e.Method() == nil {
					regressions = append(regressions, "partially built entry")
				}
			}
		}
	}()

	race(t, vm, func(i int, th *Thread) error {
		for n := 0; n < 200; n++ {
			j := (i + n) % len(objs)
			v, err := dispatchFromTop(th, site, objs[j])
			if err != nil {
				return err
			}
			if v != j {
				return fmt.Errorf("dispatch on R%d = %v", j, v)
			}
		}
		return nil
	})
	cancel()
	watcher.Wait()

	assert.Empty(t, regressions)
	assert.Equal(t, CacheMegamorphic, site.Cache().State())
	assert.Equal(t, DefaultPolymorphicLimit+1, site.Cache().Guards())
}

// ---------------------------------------------------------------------------
// Redefinition under load
// ---------------------------------------------------------------------------

func TestConcurrentRedefinition(t *testing.T) {
	vm := NewVM()
	base := vm.MustDefineClass("Base", nil)
	derived := vm.MustDefineClass("Derived", base)
	base.DefineFunc("version", constant(0))
	site := vm.NewCallSite("race:version", "version", CallExplicit)
	objs := []Value{vm.NewObject(base), vm.NewObject(derived)}

	const versions = 200
	var eg errgroup.Group
	done := make(chan struct{})
	eg.Go(func() error {
		defer close(done)
		for v := 1; v <= versions; v++ {
			base.DefineFunc("version", constant(v))
		}
		return nil
	})
	for i := 0; i < racers; i++ {
		th := vm.NewThread()
		obj := objs[i%len(objs)]
		eg.Go(func() error {
			last := 0
			for {
				select {
				case <-done:
					return nil
				default:
				}
				v, err := dispatchFromTop(th, site, obj)
				if err != nil {
					return err
				}
				if v.(int) < last {
					return fmt.Errorf("version went back from %d to %v", last, v)
				}
				last = v.(int)
			}
		})
	}
	require.NoError(t, eg.Wait())

	th := vm.NewThread()
	for _, obj := range objs {
		assert.Equal(t, versions, mustDispatch(t, th, site, obj))
	}
}

func TestConcurrentInclude(t *testing.T) {
	vm := NewVM()
	c := vm.MustDefineClass("C", nil)
	c.DefineFunc("who", constant("C"))
	obj := vm.NewObject(c)
	site := vm.NewCallSite("race:who", "who", CallExplicit)

	mods := make([]*Class, 8)
	for i := range mods {
		mods[i] = vm.MustDefineModule(fmt.Sprintf("M%d", i))
		mods[i].DefineFunc("who", constant(mods[i].Name()))
	}

	var eg errgroup.Group
	eg.Go(func() error {
		for _, m := range mods {
			if err := vm.String.Include(m); err != nil {
				return err
			}
		}
		return nil
	})
	for i := 0; i < racers; i++ {
		th := vm.NewThread()
		eg.Go(func() error {
			for n := 0; n < 100; n++ {
				v, err := dispatchFromTop(th, site, obj)
				if err != nil {
					return err
				}
				if v != "C" {
					return fmt.Errorf("who = %v", v)
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	assert.Equal(t, uint64(len(mods)), vm.HierarchyGeneration()-1)
	assert.Equal(t, "M7", vm.Resolve(vm.String, vm.Selectors.Intern("who")).Entry.Owner().Name())
}

// ---------------------------------------------------------------------------
// Frame sending under load
// ---------------------------------------------------------------------------

func TestConcurrentFrameSendingUpgrade(t *testing.T) {
	vm := NewVM()
	c := vm.MustDefineClass("C", nil)
	c.DefineFunc("reader", func(t *Thread, f *Frame) (Value, error) {
		return t.CallerStorage(f).LastLine(), nil
	})
	inner := vm.NewCallSite("C#outer:reader", "reader", CallSelf)
	c.DefineFunc("outer", func(t *Thread, f *Frame) (Value, error) {
		f.OwnStorage().SetLastLine(f.Arg(0))
		return inner.Dispatch(t, f, f.Self, nil, nil)
	})
	site := vm.NewCallSite("race:outer", "outer", CallExplicit)
	obj := vm.NewObject(c)

	race(t, vm, func(i int, th *Thread) error {
		for n := 0; n < 50; n++ {
			want := fmt.Sprintf("%d/%d", i, n)
			v, err := dispatchFromTop(th, site, obj, want)
			if err != nil {
				return err
			}
			if v != want {
				return fmt.Errorf("racer %d read %v, want %s", i, v, want)
			}
		}
		if th.StackWalks() > 1 {
			return fmt.Errorf("racer %d walked the stack %d times", i, th.StackWalks())
		}
		return nil
	})

	assert.Equal(t, SendSelfVars, inner.Mode())
	assert.Equal(t, uint32(1), inner.FrameSending().Upgrades())
}

func TestConcurrentSingletonCreation(t *testing.T) {
	vm := NewVM()
	obj := vm.NewObject(vm.MustDefineClass("C", nil))
	classes := make([]*Class, racers)

	race(t, vm, func(i int, th *Thread) error {
		s, err := vm.SingletonClassOf(obj)
		classes[i] = s
		return err
	})
	for _, s := range classes {
		assert.Same(t, classes[0], s)
	}
}
