package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chazu/garnet/vm"
)

// scenario builds classes on v and drives dispatches through them,
// reporting what it sees to w.
type scenario func(v *vm.VM, w io.Writer) error

var scenarios = map[string]scenario{
	"animals":      runAnimals,
	"modules":      runModules,
	"special-vars": runSpecialVars,
	"send":         runSend,
	"megamorphic":  runMegamorphic,
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// call dispatches through site from a fresh top-level activation on th.
func call(th *vm.Thread, site *vm.CallSite, recv vm.Value, args ...vm.Value) (vm.Value, error) {
	return th.Run(func(th *vm.Thread, f *vm.Frame) (vm.Value, error) {
		return site.Dispatch(th, f, recv, args, nil)
	})
}

func constant(v vm.Value) vm.BodyFunc {
	return func(*vm.Thread, *vm.Frame) (vm.Value, error) { return v, nil }
}

func ancestors(c *vm.Class) string {
	names := make([]string, 0, 8)
	for _, a := range c.Ancestors() {
		names = append(names, a.Name())
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// ---------------------------------------------------------------------------
// animals: redefinition and subclass shadowing
// ---------------------------------------------------------------------------

func runAnimals(v *vm.VM, w io.Writer) error {
	animal, err := v.DefineClass("Animal", nil)
	if err != nil {
		return err
	}
	dog, err := v.DefineClass("Dog", animal)
	if err != nil {
		return err
	}
	animal.DefineFunc("speak", constant("..."))
	dog.DefineFunc("speak", constant("Woof"))

	th := v.NewThread()
	site := v.NewCallSite("animals:speak", "speak", vm.CallExplicit)
	a, d := v.NewObject(animal), v.NewObject(dog)

	speak := func(label string, recv vm.Value) error {
		out, err := call(th, site, recv)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-18s => %v\n", label, out)
		return nil
	}

	if err := speak("Animal.new.speak", a); err != nil {
		return err
	}
	if err := speak("Dog.new.speak", d); err != nil {
		return err
	}
	fmt.Fprintf(w, "redefining Animal#speak (epoch %d)\n", animal.Epoch())
	animal.DefineFunc("speak", constant("???"))
	if err := speak("Animal.new.speak", a); err != nil {
		return err
	}
	if err := speak("Dog.new.speak", d); err != nil {
		return err
	}
	fmt.Fprintf(w, "site %s: %s, %d guards\n", site.Label(), site.Cache().State(), site.Cache().Guards())
	return nil
}

// ---------------------------------------------------------------------------
// modules: include/prepend order and super chains
// ---------------------------------------------------------------------------

func runModules(v *vm.VM, w io.Writer) error {
	modA, err := v.DefineModule("ModA")
	if err != nil {
		return err
	}
	modB, err := v.DefineModule("ModB")
	if err != nil {
		return err
	}
	loud, err := v.DefineModule("Loud")
	if err != nil {
		return err
	}
	c, err := v.DefineClass("Greeter", nil)
	if err != nil {
		return err
	}

	modA.DefineFunc("greet", constant("hello from ModA"))
	modB.DefineFunc("greet", constant("hello from ModB"))
	if err := c.Include(modB); err != nil {
		return err
	}
	if err := c.Include(modA); err != nil {
		return err
	}
	fmt.Fprintf(w, "Greeter.ancestors = %s\n", ancestors(c))

	th := v.NewThread()
	site := v.NewCallSite("modules:greet", "greet", vm.CallExplicit)
	obj := v.NewObject(c)
	out, err := call(th, site, obj)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Greeter.new.greet => %v\n", out)

	superSite := v.NewCallSite("Loud#greet:super", "greet", vm.CallSuper)
	loud.DefineFunc("greet", func(t *vm.Thread, f *vm.Frame) (vm.Value, error) {
		out, err := superSite.Dispatch(t, f, f.Self, nil, nil)
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(fmt.Sprint(out)) + "!", nil
	})
	if err := c.Prepend(loud); err != nil {
		return err
	}
	fmt.Fprintf(w, "after prepend Loud: %s (hierarchy generation %d)\n", ancestors(c), v.HierarchyGeneration())
	out, err = call(th, site, obj)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Greeter.new.greet => %v\n", out)
	return nil
}

// ---------------------------------------------------------------------------
// special-vars: $~ and $_ through the caller-frame protocol
// ---------------------------------------------------------------------------

func runSpecialVars(v *vm.VM, w io.Writer) error {
	re, err := v.NewRegexp(`(\w+)@([\w.]+)`)
	if err != nil {
		return err
	}
	parser, err := v.DefineClass("MailParser", nil)
	if err != nil {
		return err
	}

	getsSite := v.NewCallSite("MailParser#next:gets", "gets", vm.CallImplicit)
	matchSite := v.NewCallSite("MailParser#next:=~", "=~", vm.CallExplicit)
	parser.DefineFunc("next", func(t *vm.Thread, f *vm.Frame) (vm.Value, error) {
		line, err := getsSite.Dispatch(t, f, f.Self, nil, nil)
		if err != nil || line == nil {
			return nil, err
		}
		pos, err := matchSite.Dispatch(t, f, strings.TrimSpace(line.(string)), []vm.Value{re}, nil)
		if err != nil || pos == nil {
			return "no address in " + strings.TrimSpace(fmt.Sprint(f.OwnStorage().LastLine())), err
		}
		md := f.OwnStorage().LastMatch().(*vm.MatchData)
		return fmt.Sprintf("user=%v host=%v", md.Group(1), md.Group(2)), nil
	})

	th := v.NewThread()
	th.SetInput(strings.NewReader("alice@example.org\nnothing here\nbob@host.net\n"))
	site := v.NewCallSite("special-vars:next", "next", vm.CallExplicit)
	p := v.NewObject(parser)
	for {
		before := th.StackWalks()
		out, err := call(th, site, p)
		if err != nil {
			return err
		}
		if out == nil {
			break
		}
		fmt.Fprintf(w, "%-32v (stack walks %d)\n", out, th.StackWalks()-before)
	}
	fmt.Fprintf(w, "gets site sends %s, =~ site sends %s\n", getsSite.Mode(), matchSite.Mode())
	return nil
}

// ---------------------------------------------------------------------------
// send: frame requests reach the caller of send
// ---------------------------------------------------------------------------

func runSend(v *vm.VM, w io.Writer) error {
	c, err := v.DefineClass("Inspector", nil)
	if err != nil {
		return err
	}
	c.DefineFunc("peek", func(t *vm.Thread, f *vm.Frame) (vm.Value, error) {
		return t.CallerStorage(f).LastLine(), nil
	})
	viaSend := v.NewCallSite("Inspector#run:send", "send", vm.CallImplicit)
	c.DefineFunc("run", func(t *vm.Thread, f *vm.Frame) (vm.Value, error) {
		f.OwnStorage().SetLastLine(f.Arg(0))
		return viaSend.Dispatch(t, f, f.Self, []vm.Value{vm.Symbol("peek")}, nil)
	})

	th := v.NewThread()
	site := v.NewCallSite("send:run", "run", vm.CallExplicit)
	obj := v.NewObject(c)
	for _, line := range []string{"first", "second", "third"} {
		before := th.StackWalks()
		out, err := call(th, site, obj, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "run(%q) via send(:peek) => %v (stack walks %d)\n", line, out, th.StackWalks()-before)
	}
	for _, cs := range v.CallSitesLabelled("Kernel#send") {
		fmt.Fprintf(w, "%s sends %s\n", cs.Label(), cs.Mode())
	}
	fmt.Fprintf(w, "%s sends %s\n", viaSend.Label(), viaSend.Mode())
	return nil
}

// ---------------------------------------------------------------------------
// megamorphic: one site, many receiver classes
// ---------------------------------------------------------------------------

func runMegamorphic(v *vm.VM, w io.Writer) error {
	th := v.NewThread()
	site := v.NewCallSite("megamorphic:area", "area", vm.CallExplicit)
	limit := site.Cache().Limit()

	last := vm.CacheUninitialized
	for i := 0; i < limit+4; i++ {
		side := i + 1
		shape, err := v.DefineClass(fmt.Sprintf("Square%d", side), nil)
		if err != nil {
			return err
		}
		shape.DefineFunc("area", constant(side*side))
		out, err := call(th, site, v.NewObject(shape))
		if err != nil {
			return err
		}
		if state := site.Cache().State(); state != last {
			fmt.Fprintf(w, "%s.area => %v: %s -> %s (%d guards)\n", shape.Name(), out, last, state, site.Cache().Guards())
			last = state
		}
	}
	fmt.Fprintf(w, "limit %d, final state %s, hit rate %.1f%%\n", limit, site.Cache().State(), site.Cache().HitRate())
	return nil
}
