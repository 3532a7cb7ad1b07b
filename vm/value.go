package vm

import (
	"sync"
	"sync/atomic"
)

// Value is any Ruby-level value.
//
// The object model is deliberately thin: Go nil, bool, int, int64,
// float64, string and Symbol stand for the immediate and core values, and
// *Object is a plain instance. VM.ClassOf maps each to its class.
type Value = any

// Symbol is an interned Ruby symbol such as :speak.
type Symbol string

// Object is an instance of a user class. An object may acquire a singleton
// class, after which dispatch on it starts from that singleton.
type Object struct {
	class     *Class
	singleton atomic.Pointer[Class]

	mu    sync.Mutex
	ivars map[string]Value
}

// NewObject returns an instance of c.
func (vm *VM) NewObject(c *Class) *Object {
	return &Object{class: c}
}

// Class returns the object's nominal class, ignoring any singleton.
func (o *Object) Class() *Class { return o.class }

// Singleton returns the object's singleton class, or nil if it has none.
func (o *Object) Singleton() *Class { return o.singleton.Load() }

// IVar returns an instance variable, or nil.
func (o *Object) IVar(name string) Value {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ivars[name]
}

// SetIVar assigns an instance variable.
func (o *Object) SetIVar(name string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ivars == nil {
		o.ivars = make(map[string]Value)
	}
	o.ivars[name] = v
}
