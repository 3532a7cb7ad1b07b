package vm

import (
	"fmt"
	"io"
	"strings"
)

// Kernel primitives that take part in the caller-frame protocol: send and
// its relatives, method_missing, respond_to?, binding, block_given?, the
// $~ and $_ readers, gets and raise.

func (vm *VM) installKernelPrimitives() {
	sendSite := vm.NewDynamicCallSite("Kernel#send", CallIgnoreVisibility, WithSendIndirection())
	underscoreSendSite := vm.NewDynamicCallSite("BasicObject#__send__", CallIgnoreVisibility, WithSendIndirection())
	publicSendSite := vm.NewDynamicCallSite("Kernel#public_send", CallPublic, WithSendIndirection())

	vm.BasicObject.DefinePrimitive(vm.sendPrimitive("__send__", underscoreSendSite), Public)
	vm.BasicObject.DefinePrimitive(&Primitive{Name: "method_missing", Fn: primMethodMissing}, Private)

	vm.Kernel.DefinePrimitive(vm.sendPrimitive("send", sendSite), Public)
	vm.Kernel.DefinePrimitive(vm.sendPrimitive("public_send", publicSendSite), Public)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "respond_to?", Fn: primRespondTo}, Public)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "class", Fn: primClass}, Public)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "binding", Fn: primBinding}, Private)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "block_given?", Fn: primBlockGiven}, Private)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "gets", Fn: primGets}, Private)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "last_match", Fn: primLastMatch}, Private)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "last_line", Fn: primLastLine}, Private)
	vm.Kernel.DefinePrimitive(&Primitive{Name: "raise", Fn: primRaise}, Private)
}

// Truthy reports Ruby truthiness: everything except nil and false.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	return true
}

// SelectorFor interns the method name held by a Symbol or String.
func (vm *VM) SelectorFor(v Value) (*Selector, error) {
	switch x := v.(type) {
	case Symbol:
		return vm.Selectors.Intern(string(x)), nil
	case string:
		return vm.Selectors.Intern(x), nil
	}
	return nil, &RubyError{Class: vm.TypeError, Message: fmt.Sprintf("%v is not a symbol nor a string", v)}
}

// sendPrimitive builds a send-style body. Its inner site is shared by every
// caller of the primitive and is marked as a send indirection, so frame
// requests made by the target reach whoever called send.
func (vm *VM) sendPrimitive(name string, site *CallSite) *Primitive {
	return &Primitive{
		Name:     name,
		Indirect: true,
		Fn: func(t *Thread, f *Frame) (Value, error) {
			if len(f.Args) == 0 {
				return nil, &RubyError{Class: t.vm.ArgumentError, Message: "no method name given"}
			}
			sel, err := t.vm.SelectorFor(f.Args[0])
			if err != nil {
				return nil, err
			}
			return site.DispatchSelector(t, f, sel, f.Self, f.Args[1:], f.Block)
		},
	}
}

func primMethodMissing(t *Thread, f *Frame) (Value, error) {
	name := fmt.Sprint(f.Arg(0))
	if sym, ok := f.Arg(0).(Symbol); ok {
		name = string(sym)
	}
	return nil, &LookupFailure{Selector: name, Class: t.vm.ClassOf(f.Self), Receiver: f.Self}
}

func primRespondTo(t *Thread, f *Frame) (Value, error) {
	sel, err := t.vm.SelectorFor(f.Arg(0))
	if err != nil {
		return nil, err
	}
	res := t.vm.Resolve(t.vm.ClassOf(f.Self), sel)
	if !res.Found() {
		return false, nil
	}
	return res.Entry.visibility == Public || Truthy(f.Arg(1)), nil
}

func primClass(t *Thread, f *Frame) (Value, error) {
	return t.vm.RealClassOf(f.Self), nil
}

func primBinding(t *Thread, f *Frame) (Value, error) {
	caller := t.CallerFrame(f)
	if caller == nil {
		return nil, &RubyError{Class: t.vm.RuntimeError, Message: "binding called without a caller"}
	}
	return &Binding{frame: caller}, nil
}

func primBlockGiven(t *Thread, f *Frame) (Value, error) {
	caller := t.CallerFrame(f)
	return caller != nil && caller.Home().Block != nil, nil
}

func primGets(t *Thread, f *Frame) (Value, error) {
	var line Value
	if t.input != nil {
		s, err := t.input.ReadString('\n')
		switch {
		case err == nil || err == io.EOF && s != "":
			line = s
		case err != io.EOF:
			return nil, fmt.Errorf("gets: %w", err)
		}
	}
	if storage := t.CallerStorage(f); storage != nil {
		storage.SetLastLine(line)
	}
	return line, nil
}

func primLastLine(t *Thread, f *Frame) (Value, error) {
	if storage := t.CallerStorage(f); storage != nil {
		return storage.LastLine(), nil
	}
	return nil, nil
}

func primRaise(t *Thread, f *Frame) (Value, error) {
	class := t.vm.RuntimeError
	args := f.Args
	if c, ok := f.Arg(0).(*Class); ok {
		if !c.IsSubclassOf(t.vm.Exception) {
			return nil, &RubyError{Class: t.vm.TypeError, Message: "exception class/object expected"}
		}
		class = c
		args = args[1:]
	}
	msg := class.Name()
	if len(args) > 0 {
		msg = strings.TrimSpace(fmt.Sprint(args[0]))
	}
	return nil, &RubyError{Class: class, Message: msg}
}
