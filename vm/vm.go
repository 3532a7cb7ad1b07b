package vm

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options tunes a VM.
type Options struct {
	// PolymorphicLimit is the number of distinct guards a call site caches
	// before going megamorphic.
	PolymorphicLimit int

	// VerifyCacheHits re-checks on every cache hit that the cached owner is
	// still an ancestor of the receiver class.
	VerifyCacheHits bool

	// TraceStackWalks logs every slow-path caller lookup at debug level.
	TraceStackWalks bool
}

// DefaultOptions returns the options NewVM uses.
func DefaultOptions() Options {
	return Options{PolymorphicLimit: DefaultPolymorphicLimit}
}

// ---------------------------------------------------------------------------
// VM: shared runtime state
// ---------------------------------------------------------------------------

// VM holds the state shared by all threads: selectors, classes, the
// hierarchy assumption and the call-site registry.
type VM struct {
	Selectors *SelectorTable
	Classes   *ClassTable

	// Core hierarchy
	BasicObject *Class
	Object      *Class
	Module      *Class
	ClassClass  *Class
	Kernel      *Class

	// Core value classes
	NilClass    *Class
	TrueClass   *Class
	FalseClass  *Class
	Integer     *Class
	Float       *Class
	String      *Class
	SymbolClass *Class
	Array       *Class
	Proc        *Class
	Binding     *Class
	Regexp      *Class
	MatchData   *Class

	// Exceptions
	Exception      *Class
	StandardError  *Class
	RuntimeError   *Class
	ArgumentError  *Class
	TypeError      *Class
	NameError      *Class
	NoMethodError  *Class
	LocalJumpError *Class

	// Main is self at the top level.
	Main *Object

	opts      Options
	hierarchy *CyclicAssumption
	sites     callSiteRegistry
	preloaded sync.Map // label -> FrameSendMode

	selMethodMissing *Selector
}

// NewVM creates a VM with default options.
func NewVM() *VM {
	return NewVMWithOptions(DefaultOptions())
}

// NewVMWithOptions creates a VM and bootstraps the core classes and kernel
// primitives.
func NewVMWithOptions(opts Options) *VM {
	if opts.PolymorphicLimit < 1 {
		opts.PolymorphicLimit = DefaultPolymorphicLimit
	}
	vm := &VM{
		Selectors: NewSelectorTable(),
		Classes:   NewClassTable(),
		opts:      opts,
		hierarchy: NewCyclicAssumption("class hierarchy"),
	}
	vm.selMethodMissing = vm.Selectors.Intern("method_missing")
	vm.bootstrap()
	vmLog().Infof("bootstrapped %d classes, polymorphic limit %d", vm.Classes.Len(), opts.PolymorphicLimit)
	return vm
}

// Options returns the VM's options.
func (vm *VM) Options() Options { return vm.opts }

// HierarchyGeneration returns how many hierarchy changes (include, prepend,
// extend) have happened.
func (vm *VM) HierarchyGeneration() uint64 { return vm.hierarchy.Generation() }

func (vm *VM) bootstrap() {
	vm.BasicObject = vm.register(newClass(vm, "BasicObject", KindClass, nil))
	vm.Object = vm.register(newClass(vm, "Object", KindClass, vm.BasicObject))
	vm.Module = vm.register(newClass(vm, "Module", KindClass, vm.Object))
	vm.ClassClass = vm.register(newClass(vm, "Class", KindClass, vm.Module))
	vm.Kernel = vm.register(newClass(vm, "Kernel", KindModule, nil))
	if err := vm.Object.Include(vm.Kernel); err != nil {
		panic(err)
	}

	def := func(name string, super *Class) *Class {
		return vm.register(newClass(vm, name, KindClass, super))
	}
	vm.NilClass = def("NilClass", vm.Object)
	vm.TrueClass = def("TrueClass", vm.Object)
	vm.FalseClass = def("FalseClass", vm.Object)
	numeric := def("Numeric", vm.Object)
	vm.Integer = def("Integer", numeric)
	vm.Float = def("Float", numeric)
	vm.String = def("String", vm.Object)
	vm.SymbolClass = def("Symbol", vm.Object)
	vm.Array = def("Array", vm.Object)
	vm.Proc = def("Proc", vm.Object)
	vm.Binding = def("Binding", vm.Object)
	vm.Regexp = def("Regexp", vm.Object)
	vm.MatchData = def("MatchData", vm.Object)

	vm.Exception = def("Exception", vm.Object)
	vm.StandardError = def("StandardError", vm.Exception)
	vm.RuntimeError = def("RuntimeError", vm.StandardError)
	vm.ArgumentError = def("ArgumentError", vm.StandardError)
	vm.TypeError = def("TypeError", vm.StandardError)
	vm.NameError = def("NameError", vm.StandardError)
	vm.NoMethodError = def("NoMethodError", vm.NameError)
	vm.LocalJumpError = def("LocalJumpError", vm.StandardError)

	vm.Main = vm.NewObject(vm.Object)

	vm.installKernelPrimitives()
	vm.installRegexpPrimitives()
}

func (vm *VM) register(c *Class) *Class {
	vm.Classes.Register(c)
	return c
}

// DefineClass creates the named class, or reopens it when it already
// exists. A nil superclass reopens whatever the class inherits from, or
// means Object for a new class; a non-nil one must match on reopen.
func (vm *VM) DefineClass(name string, superclass *Class) (*Class, error) {
	if existing := vm.Classes.Lookup(name); existing != nil {
		if existing.kind != KindClass {
			return nil, fmt.Errorf("%s is not a class", name)
		}
		if superclass != nil && existing.superclass != superclass {
			return nil, fmt.Errorf("superclass mismatch for class %s", name)
		}
		return existing, nil
	}
	if superclass == nil {
		superclass = vm.Object
	}
	if superclass.kind != KindClass {
		return nil, fmt.Errorf("superclass must be a Class (%s given)", superclass.kind)
	}
	return vm.register(newClass(vm, name, KindClass, superclass)), nil
}

// MustDefineClass is DefineClass for bootstrapping code that cannot fail.
func (vm *VM) MustDefineClass(name string, superclass *Class) *Class {
	c, err := vm.DefineClass(name, superclass)
	if err != nil {
		panic(err)
	}
	return c
}

// DefineModule creates the named module, or reopens it.
func (vm *VM) DefineModule(name string) (*Class, error) {
	if existing := vm.Classes.Lookup(name); existing != nil {
		if existing.kind != KindModule {
			return nil, fmt.Errorf("%s is not a module", name)
		}
		return existing, nil
	}
	return vm.register(newClass(vm, name, KindModule, nil)), nil
}

// MustDefineModule is DefineModule for code that cannot fail.
func (vm *VM) MustDefineModule(name string) *Class {
	m, err := vm.DefineModule(name)
	if err != nil {
		panic(err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Receiver to class
// ---------------------------------------------------------------------------

// ClassOf returns the class dispatch starts from for v: the singleton class
// when v has one, otherwise its nominal class.
func (vm *VM) ClassOf(v Value) *Class {
	switch x := v.(type) {
	case nil:
		return vm.NilClass
	case bool:
		if x {
			return vm.TrueClass
		}
		return vm.FalseClass
	case int, int64:
		return vm.Integer
	case float64:
		return vm.Float
	case string:
		return vm.String
	case Symbol:
		return vm.SymbolClass
	case []Value:
		return vm.Array
	case *Object:
		if s := x.singleton.Load(); s != nil {
			return s
		}
		return x.class
	case *Class:
		return x.SingletonClass()
	case *Block:
		return vm.Proc
	case *Binding:
		return vm.Binding
	case *Regexp:
		return vm.Regexp
	case *MatchData:
		return vm.MatchData
	case *RubyError:
		if x.Class != nil {
			return x.Class
		}
		return vm.RuntimeError
	}
	return vm.Object
}

// RealClassOf returns v's nominal class, skipping singleton classes.
func (vm *VM) RealClassOf(v Value) *Class {
	c := vm.ClassOf(v)
	for c != nil && c.kind == KindSingleton {
		c = c.superclass
	}
	return c
}

// SingletonClassOf returns v's singleton class, creating it on first use.
// Immediate values cannot have one.
func (vm *VM) SingletonClassOf(v Value) (*Class, error) {
	switch x := v.(type) {
	case *Object:
		if s := x.singleton.Load(); s != nil {
			return s, nil
		}
		s := newClass(vm, "#<Class:"+x.class.name+" instance>", KindSingleton, x.class)
		s.attached = x
		if x.singleton.CompareAndSwap(nil, s) {
			return s, nil
		}
		return x.singleton.Load(), nil
	case *Class:
		return x.SingletonClass(), nil
	}
	return nil, fmt.Errorf("%w for %s", ErrNoSingleton, vm.ClassOf(v).Name())
}

// Extend includes mod into v's singleton class.
func (vm *VM) Extend(v Value, mod *Class) error {
	s, err := vm.SingletonClassOf(v)
	if err != nil {
		return err
	}
	return s.Include(mod)
}

// KindOf reports whether c is among the ancestors of v's class.
func (vm *VM) KindOf(v Value, c *Class) bool {
	return vm.ClassOf(v).IsSubclassOf(c)
}

// invalidateHierarchy is called after an include or prepend has been
// published. Every ancestor snapshot and cached resolution taken before it
// becomes stale.
func (vm *VM) invalidateHierarchy(c *Class, reason string) {
	vm.hierarchy.Invalidate()
	if log := vmLog(); log.AllowLevel(commonlog.Debug) {
		log.Debugf("hierarchy generation %d: %s %s", vm.hierarchy.Generation(), c.name, reason)
	}
}

// ---------------------------------------------------------------------------
// Frame-sending warm start
// ---------------------------------------------------------------------------

// PreloadFrameSending records that the call site labelled label is known to
// need mode. Sites created later with that label start in mode; existing
// sites are upgraded now.
func (vm *VM) PreloadFrameSending(label string, mode FrameSendMode) {
	if mode == SendNothing {
		return
	}
	vm.preloaded.Store(label, mode)
	for _, cs := range vm.sites.byLabel(label) {
		cs.sending.startSending(mode)
	}
}

func (vm *VM) preloadedMode(label string) FrameSendMode {
	if v, ok := vm.preloaded.Load(label); ok {
		return v.(FrameSendMode)
	}
	return SendNothing
}
