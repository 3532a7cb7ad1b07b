package vm

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is against the typed dispatch errors.
var (
	ErrMethodNotFound = errors.New("method not found")
	ErrVisibility     = errors.New("method visibility violation")
	ErrNoSingleton    = errors.New("can't define singleton")
)

// LookupFailure reports that no class in the receiver's resolution chain
// defines the selector and method_missing did not handle the call.
type LookupFailure struct {
	Selector string
	Class    *Class
	Receiver Value
}

func (e *LookupFailure) Error() string {
	return fmt.Sprintf("undefined method '%s' for an instance of %s", e.Selector, e.Class.Name())
}

func (e *LookupFailure) Is(target error) bool { return target == ErrMethodNotFound }

// VisibilityViolation reports a call whose kind is not allowed by the
// resolved method's visibility, such as a private method called with an
// explicit receiver.
type VisibilityViolation struct {
	Selector   string
	Visibility Visibility
	Class      *Class
}

func (e *VisibilityViolation) Error() string {
	return fmt.Sprintf("%s method '%s' called for an instance of %s", e.Visibility, e.Selector, e.Class.Name())
}

func (e *VisibilityViolation) Is(target error) bool { return target == ErrVisibility }

// InvariantViolation is an internal consistency fault. It is raised with
// panic and is never recoverable by Ruby code.
type InvariantViolation struct {
	Site   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("dispatch invariant violated at %s: %s", e.Site, e.Detail)
}

// RubyError is a language-level exception raised by a method body. When it
// propagates out of a dispatch the thread's $! is set to it.
type RubyError struct {
	Class   *Class
	Message string
	Cause   error
}

func (e *RubyError) Error() string {
	if e.Class == nil {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Class.Name())
}

func (e *RubyError) Unwrap() error { return e.Cause }
