package vm

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// CallKind is the syntactic shape of a call, which decides what visibility
// the resolved method may have.
type CallKind uint8

const (
	CallExplicit         CallKind = iota // recv.m: public, or protected from a kind_of caller
	CallSelf                             // self.m: any visibility
	CallImplicit                         // m: any visibility
	CallIgnoreVisibility                 // send / __send__
	CallPublic                           // public_send: public only
	CallSuper                            // super: starts after the class the caller was defined in
)

func (k CallKind) String() string {
	switch k {
	case CallSelf:
		return "self"
	case CallImplicit:
		return "implicit"
	case CallIgnoreVisibility:
		return "send"
	case CallPublic:
		return "public_send"
	case CallSuper:
		return "super"
	default:
		return "explicit"
	}
}

// ---------------------------------------------------------------------------
// CallSite: a dispatch node
// ---------------------------------------------------------------------------

// CallSite executes one call in a method body. It owns the site's inline
// cache and frame-sending state, and lives as long as the body that
// embeds it.
type CallSite struct {
	vm       *VM
	label    string
	selector *Selector // nil for dynamic sites
	kind     CallKind

	cache   *InlineCache
	sending *FrameSending
	plan    atomic.Pointer[sendPlan]

	missingOnce sync.Once
	missing     *CallSite
}

// CallSiteOption configures a new call site.
type CallSiteOption func(*callSiteConfig)

type callSiteConfig struct {
	indirect bool
	limit    int
}

// WithSendIndirection marks a site that lives inside a send-style body:
// frame requests through it are answered with the body's caller's state.
func WithSendIndirection() CallSiteOption {
	return func(c *callSiteConfig) { c.indirect = true }
}

// WithPolymorphicLimit overrides the VM's polymorphic limit for one site.
func WithPolymorphicLimit(limit int) CallSiteOption {
	return func(c *callSiteConfig) { c.limit = limit }
}

// NewCallSite creates and registers a call site for a fixed selector.
// The label identifies the site in statistics and profiles.
func (vm *VM) NewCallSite(label, selector string, kind CallKind, opts ...CallSiteOption) *CallSite {
	return vm.newCallSite(label, vm.Selectors.Intern(selector), kind, opts)
}

// NewDynamicCallSite creates a call site whose selector is supplied on each
// dispatch, as inside send.
func (vm *VM) NewDynamicCallSite(label string, kind CallKind, opts ...CallSiteOption) *CallSite {
	return vm.newCallSite(label, nil, kind, opts)
}

func (vm *VM) newCallSite(label string, sel *Selector, kind CallKind, opts []CallSiteOption) *CallSite {
	cfg := callSiteConfig{limit: vm.opts.PolymorphicLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	cs := &CallSite{
		vm:       vm,
		label:    label,
		selector: sel,
		kind:     kind,
		cache:    NewInlineCache(cfg.limit),
		sending:  newFrameSending(label, cfg.indirect, vm.preloadedMode(label)),
	}
	vm.sites.register(cs)
	return cs
}

// Label returns the site's label.
func (cs *CallSite) Label() string { return cs.label }

// Selector returns the site's fixed selector, or nil for dynamic sites.
func (cs *CallSite) Selector() *Selector { return cs.selector }

// Kind returns the call kind.
func (cs *CallSite) Kind() CallKind { return cs.kind }

// Cache returns the site's inline cache.
func (cs *CallSite) Cache() *InlineCache { return cs.cache }

// FrameSending returns the site's frame-sending state.
func (cs *CallSite) FrameSending() *FrameSending { return cs.sending }

// Mode returns the site's current frame-send mode.
func (cs *CallSite) Mode() FrameSendMode { return cs.sending.Mode() }

// StartSendingOwnFrame is called by a callee that had to walk the stack
// for the frame of the activation this site belongs to.
func (cs *CallSite) StartSendingOwnFrame() { cs.sending.StartSendingOwnFrame() }

// StartSendingOwnVariables is called by a callee that had to walk the
// stack for the special variables of the activation this site belongs to.
func (cs *CallSite) StartSendingOwnVariables() { cs.sending.StartSendingOwnVariables() }

// Dispatch calls the site's selector on recv. caller is the activation
// executing the call; it may be nil for calls made from Go.
func (cs *CallSite) Dispatch(t *Thread, caller *Frame, recv Value, args []Value, blk *Block) (Value, error) {
	if cs.selector == nil {
		panic(&InvariantViolation{Site: cs.label, Detail: "dynamic call site dispatched without a selector"})
	}
	return cs.dispatch(t, caller, cs.selector, recv, args, blk)
}

// DispatchSelector calls sel on recv through a dynamic site.
func (cs *CallSite) DispatchSelector(t *Thread, caller *Frame, sel *Selector, recv Value, args []Value, blk *Block) (Value, error) {
	return cs.dispatch(t, caller, sel, recv, args, blk)
}

func (cs *CallSite) dispatch(t *Thread, caller *Frame, sel *Selector, recv Value, args []Value, blk *Block) (Value, error) {
	class := cs.vm.ClassOf(recv)

	var after *Class
	if cs.kind == CallSuper {
		if caller == nil || caller.Method == nil {
			return nil, &RubyError{Class: cs.vm.RuntimeError, Message: "super called outside of method"}
		}
		after = caller.Method.definedIn
	}

	var entry *MethodEntry
	if hit := cs.cache.Lookup(class, sel, after); hit != nil {
		entry = hit.Method()
		if cs.vm.opts.VerifyCacheHits {
			cs.verify(class, hit)
		}
	} else {
		var res Resolution
		if after != nil {
			res = cs.vm.ResolveSuper(class, after, sel)
		} else {
			res = cs.vm.Resolve(class, sel)
		}
		if res.Found() {
			from, to := cs.cache.Update(&InlineCacheEntry{Class: class, Selector: sel, After: after, resolution: res})
			if from != to {
				cs.logTransition(from, to, class, sel)
			}
		}
		entry = res.Entry
	}

	if entry == nil {
		return cs.methodMissing(t, caller, sel, recv, args, blk)
	}
	if err := cs.checkVisibility(caller, entry, class); err != nil {
		return nil, err
	}
	return cs.invoke(t, caller, entry, recv, args, blk)
}

// invoke runs entry's body in a new activation, passing whatever the
// site's frame-send mode requires.
func (cs *CallSite) invoke(t *Thread, caller *Frame, entry *MethodEntry, recv Value, args []Value, blk *Block) (Value, error) {
	f := &Frame{Self: recv, Method: entry, Args: args, Block: blk, site: cs}
	if caller != nil {
		f.callerFrame, f.callerVars = cs.frameArguments(t, caller)
	}
	t.push(f)
	defer t.pop()
	return t.rescue(entry.body.Call(t, f))
}

func (cs *CallSite) frameArguments(t *Thread, caller *Frame) (*Frame, *SpecialVariableStorage) {
	p := cs.plan.Load()
	if p == nil || !p.stable.IsValid() {
		p = cs.sending.plan()
		cs.plan.Store(p)
	}
	if p.mode == SendNothing {
		return nil, nil
	}

	var frame *Frame
	switch p.mode.Frame {
	case ReadsSelf:
		frame = caller.Materialize()
	case ReadsCaller:
		frame = t.CallerFrame(caller)
	}

	var vars *SpecialVariableStorage
	switch p.mode.Vars {
	case ReadsSelf:
		vars = caller.OwnStorage()
	case ReadsCaller:
		vars = t.CallerStorage(caller)
	}
	return frame, vars
}

func (cs *CallSite) checkVisibility(caller *Frame, entry *MethodEntry, class *Class) error {
	switch entry.visibility {
	case Public:
		return nil
	case Private:
		if cs.kind != CallExplicit && cs.kind != CallPublic {
			return nil
		}
	case Protected:
		switch cs.kind {
		case CallPublic:
		case CallExplicit:
			if caller != nil && cs.vm.KindOf(caller.Self, entry.definedIn) {
				return nil
			}
		default:
			return nil
		}
	}
	return &VisibilityViolation{Selector: entry.selector.name, Visibility: entry.visibility, Class: class}
}

// methodMissing dispatches method_missing with the selector prepended to
// the arguments.
func (cs *CallSite) methodMissing(t *Thread, caller *Frame, sel *Selector, recv Value, args []Value, blk *Block) (Value, error) {
	if sel == cs.vm.selMethodMissing {
		return nil, &LookupFailure{Selector: sel.name, Class: cs.vm.ClassOf(recv), Receiver: recv}
	}
	cs.missingOnce.Do(func() {
		cs.missing = cs.vm.NewCallSite(cs.label+"#method_missing", "method_missing", CallIgnoreVisibility)
	})
	margs := make([]Value, 0, len(args)+1)
	margs = append(margs, Symbol(sel.name))
	margs = append(margs, args...)
	return cs.missing.Dispatch(t, caller, recv, margs, blk)
}

// verify checks that a cache hit's owner is still an ancestor of the guard
// class. A failure means epoch discipline was broken somewhere.
func (cs *CallSite) verify(class *Class, hit *InlineCacheEntry) {
	owner := hit.Method().owner
	if !class.IsSubclassOf(owner) {
		panic(&InvariantViolation{
			Site:   cs.label,
			Detail: fmt.Sprintf("cached %s is not in the ancestors of %s", hit.Method(), class.Name()),
		})
	}
}

func (cs *CallSite) logTransition(from, to CacheState, class *Class, sel *Selector) {
	log := dispatchLog()
	if to == CacheMegamorphic {
		if log.AllowLevel(commonlog.Notice) {
			log.Noticef("%s: %s megamorphic after %d guards", cs.label, sel.name, cs.cache.Guards())
		}
		return
	}
	if log.AllowLevel(commonlog.Debug) {
		log.Debugf("%s: %s -> %s on %s#%s", cs.label, from, to, class.Name(), sel.name)
	}
}
