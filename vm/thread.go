package vm

import (
	"bufio"
	"errors"
	"io"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// Thread is one Ruby-level thread of control. It owns its activation stack
// and thread-local globals and must only be used from one goroutine at a
// time. The VM and its classes are shared between threads.
type Thread struct {
	vm      *VM
	stack   []*Frame
	globals ThreadLocalGlobals
	input   *bufio.Reader

	stackWalks atomic.Uint64
}

// NewThread returns a thread with an empty stack.
func (vm *VM) NewThread() *Thread {
	return &Thread{vm: vm, stack: make([]*Frame, 0, 64)}
}

// VM returns the thread's VM.
func (t *Thread) VM() *VM { return t.vm }

// Globals returns the thread-local globals ($!, $?).
func (t *Thread) Globals() *ThreadLocalGlobals { return &t.globals }

// SetInput sets the reader Kernel#gets reads from.
func (t *Thread) SetInput(r io.Reader) { t.input = bufio.NewReader(r) }

// Depth returns the number of live activations.
func (t *Thread) Depth() int { return len(t.stack) }

// Current returns the innermost activation, or nil.
func (t *Thread) Current() *Frame {
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// StackWalks returns how many slow-path stack walks this thread performed.
func (t *Thread) StackWalks() uint64 { return t.stackWalks.Load() }

func (t *Thread) push(f *Frame) { t.stack = append(t.stack, f) }

func (t *Thread) pop() {
	n := len(t.stack) - 1
	t.stack[n] = nil
	t.stack = t.stack[:n]
}

// Run executes body as a top-level activation with self set to the VM's
// main object.
func (t *Thread) Run(body BodyFunc) (Value, error) {
	f := &Frame{Self: t.vm.Main}
	t.push(f)
	defer t.pop()
	return t.rescue(body(t, f))
}

// Yield invokes blk with args. The block activation shares the special
// variables of the frame the block was created in.
func (t *Thread) Yield(blk *Block, args ...Value) (Value, error) {
	if blk == nil {
		return nil, &RubyError{Class: t.vm.LocalJumpError, Message: "no block given (yield)"}
	}
	f := &Frame{Self: blk.Self, Args: args, declaration: blk.Declaration}
	if blk.Declaration != nil {
		f.Method = blk.Declaration.Method
	}
	t.push(f)
	defer t.pop()
	return t.rescue(blk.Body.Call(t, f))
}

func (t *Thread) rescue(v Value, err error) (Value, error) {
	var rerr *RubyError
	if errors.As(err, &rerr) {
		t.globals.Exception = rerr
	}
	return v, err
}

// ---------------------------------------------------------------------------
// Caller frame and caller variables
// ---------------------------------------------------------------------------

// CallerFrame returns the frame of callee's caller. If the calling site did
// not send it, the stack is walked and the site is told to start sending
// its frame, so the next call through that site takes the fast path.
// Activations entered through a send indirection report the frame of
// whoever called send.
func (t *Thread) CallerFrame(callee *Frame) *Frame {
	if callee.callerFrame != nil {
		return callee.callerFrame
	}

	caller := t.walkToCaller(callee, "frame")
	if callee.site != nil {
		callee.site.StartSendingOwnFrame()
	}
	if caller == nil {
		return nil
	}
	if !caller.IsBlock() && caller.Method.IsSendIndirection() {
		return t.CallerFrame(caller)
	}
	return caller.Materialize()
}

// CallerStorage returns the special-variable storage of callee's caller,
// with the same slow-path fallback and upgrade as CallerFrame. The storage
// itself is returned, never a copy.
func (t *Thread) CallerStorage(callee *Frame) *SpecialVariableStorage {
	if callee.callerVars != nil {
		return callee.callerVars
	}
	if callee.callerFrame != nil {
		return callee.callerFrame.OwnStorage()
	}

	caller := t.walkToCaller(callee, "variables")
	if callee.site != nil {
		callee.site.StartSendingOwnVariables()
	}
	if caller == nil {
		return nil
	}
	if !caller.IsBlock() && caller.Method.IsSendIndirection() {
		return t.CallerStorage(caller)
	}
	return caller.OwnStorage()
}

// walkToCaller finds the activation directly below callee on this thread's
// stack.
func (t *Thread) walkToCaller(callee *Frame, what string) *Frame {
	t.stackWalks.Add(1)
	if t.vm.opts.TraceStackWalks {
		if log := framesLog(); log.AllowLevel(commonlog.Debug) {
			name := "<top>"
			if callee.Method != nil {
				name = callee.Method.String()
			}
			log.Debugf("stack walk for caller %s of %s (depth %d)", what, name, len(t.stack))
		}
	}
	for i := len(t.stack) - 1; i > 0; i-- {
		if t.stack[i] == callee {
			return t.stack[i-1]
		}
	}
	return nil
}
