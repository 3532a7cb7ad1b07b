package vm

import "sync/atomic"

// Frame is the activation record of one method or block invocation.
//
// The caller frame and caller variables are only present when the call
// site that created this activation was sending them; otherwise the callee
// has to find them with a stack walk (see Thread.CallerFrame and
// Thread.CallerStorage).
type Frame struct {
	Self   Value
	Method *MethodEntry // for blocks, the method the block was created in
	Args   []Value
	Block  *Block

	site        *CallSite
	callerFrame *Frame
	callerVars  *SpecialVariableStorage
	declaration *Frame // enclosing frame for block activations

	storage      atomic.Pointer[SpecialVariableStorage]
	materialized atomic.Bool
}

// Arg returns the i-th positional argument, or nil when absent.
func (f *Frame) Arg(i int) Value {
	if i < 0 || i >= len(f.Args) {
		return nil
	}
	return f.Args[i]
}

// IsBlock reports whether f is a block activation.
func (f *Frame) IsBlock() bool { return f.declaration != nil }

// Site returns the call site that created this activation, or nil for
// top-level and block activations.
func (f *Frame) Site() *CallSite { return f.site }

// SuppliedCallerFrame returns the caller frame passed by the call site, if
// any. Bodies should use Thread.CallerFrame instead.
func (f *Frame) SuppliedCallerFrame() *Frame { return f.callerFrame }

// SuppliedCallerVariables returns the caller storage passed by the call
// site, if any. Bodies should use Thread.CallerStorage instead.
func (f *Frame) SuppliedCallerVariables() *SpecialVariableStorage { return f.callerVars }

// Home returns the method activation that encloses f: f itself for a
// method frame, the outermost declaration frame for a block.
func (f *Frame) Home() *Frame {
	for f.declaration != nil {
		f = f.declaration
	}
	return f
}

// OwnStorage returns this activation's special-variable storage,
// allocating it on first use. Block activations share their home frame's
// storage.
func (f *Frame) OwnStorage() *SpecialVariableStorage {
	home := f.Home()
	if s := home.storage.Load(); s != nil {
		return s
	}
	s := NewSpecialVariableStorage()
	if home.storage.CompareAndSwap(nil, s) {
		return s
	}
	return home.storage.Load()
}

// HasStorage reports whether storage has been allocated for f's home
// frame.
func (f *Frame) HasStorage() bool { return f.Home().storage.Load() != nil }

// Materialize marks f as escaping (referenced beyond its own activation)
// and returns it.
func (f *Frame) Materialize() *Frame {
	f.materialized.Store(true)
	return f
}

// IsMaterialized reports whether f has been handed out as an object.
func (f *Frame) IsMaterialized() bool { return f.materialized.Load() }

// NewBlock returns a block whose declaration frame is f.
func (f *Frame) NewBlock(body CallTarget) *Block {
	return &Block{Body: body, Self: f.Self, Declaration: f}
}

// ---------------------------------------------------------------------------
// Blocks and bindings
// ---------------------------------------------------------------------------

// Block is a closure: a body plus the frame it was created in.
type Block struct {
	Body        CallTarget
	Self        Value
	Declaration *Frame
}

// Binding is a captured caller frame, as returned by Kernel#binding.
type Binding struct {
	frame *Frame
}

// Frame returns the captured frame.
func (b *Binding) Frame() *Frame { return b.frame }

// Receiver returns self in the captured frame.
func (b *Binding) Receiver() Value { return b.frame.Self }

// SpecialVariables returns the captured frame's storage.
func (b *Binding) SpecialVariables() *SpecialVariableStorage { return b.frame.OwnStorage() }
