package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chazu/garnet/vm"
	"golang.org/x/sync/errgroup"
)

// stressResult summarizes a stress run.
type stressResult struct {
	Dispatches    uint64
	Redefinitions uint64
	StackWalks    uint64
	Elapsed       time.Duration
}

// runStress drives iterations dispatches on each of threads goroutines
// through shared call sites while one more goroutine keeps redefining the
// methods they call. Every result is checked against the set of values the
// method could legitimately return at that moment.
func runStress(ctx context.Context, v *vm.VM, threads, iterations int) (stressResult, error) {
	var res stressResult
	base, err := v.DefineClass("StressBase", nil)
	if err != nil {
		return res, err
	}
	shapes := make([]*vm.Class, 6)
	for i := range shapes {
		c, err := v.DefineClass(fmt.Sprintf("Stress%d", i), base)
		if err != nil {
			return res, err
		}
		shapes[i] = c
	}
	var version atomic.Int64
	base.DefineFunc("version", constant(int64(0)))
	base.DefineFunc("reader", func(t *vm.Thread, f *vm.Frame) (vm.Value, error) {
		return t.CallerStorage(f).LastLine(), nil
	})
	inner := v.NewCallSite("StressBase#probe:reader", "reader", vm.CallSelf)
	base.DefineFunc("probe", func(t *vm.Thread, f *vm.Frame) (vm.Value, error) {
		f.OwnStorage().SetLastLine(f.Arg(0))
		return inner.Dispatch(t, f, f.Self, nil, nil)
	})

	versionSite := v.NewCallSite("stress:version", "version", vm.CallExplicit)
	probeSite := v.NewCallSite("stress:probe", "probe", vm.CallExplicit)

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer, wctx := errgroup.WithContext(ctx)
	writer.Go(func() error {
		for wctx.Err() == nil {
			next := version.Load() + 1
			base.DefineFunc("version", constant(next))
			version.Store(next)
			atomic.AddUint64(&res.Redefinitions, 1)
			time.Sleep(50 * time.Microsecond)
		}
		return nil
	})

	readers, rctx := errgroup.WithContext(ctx)
	walks := make([]uint64, threads)
	for i := 0; i < threads; i++ {
		i := i
		readers.Go(func() error {
			th := v.NewThread()
			defer func() { walks[i] = th.StackWalks() }()
			var last int64
			for n := 0; n < iterations; n++ {
				if err := rctx.Err(); err != nil {
					return err
				}
				recv := v.NewObject(shapes[(i+n)%len(shapes)])

				out, err := call(th, versionSite, recv)
				if err != nil {
					return err
				}
				got := out.(int64)
				if got < last {
					return fmt.Errorf("thread %d: version went back from %d to %d", i, last, got)
				}
				last = got

				want := fmt.Sprintf("%d/%d", i, n)
				out, err = call(th, probeSite, recv, want)
				if err != nil {
					return err
				}
				if out != want {
					return fmt.Errorf("thread %d: probe read %v, want %s", i, out, want)
				}
				atomic.AddUint64(&res.Dispatches, 3)
			}
			return nil
		})
	}

	err = readers.Wait()
	cancel()
	if werr := writer.Wait(); err == nil {
		err = werr
	}
	res.Elapsed = time.Since(start)
	for _, w := range walks {
		res.StackWalks += w
	}
	return res, err
}
