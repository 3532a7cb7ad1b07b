package vm

import (
	"fmt"
	"regexp"
)

// Regexp wraps a compiled pattern. Matching through the primitives below
// stores the result in the caller's $~.
type Regexp struct {
	re     *regexp.Regexp
	source string
}

// NewRegexp compiles pattern.
func (vm *VM) NewRegexp(pattern string) (*Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &RubyError{Class: vm.ArgumentError, Message: err.Error(), Cause: err}
	}
	return &Regexp{re: re, source: pattern}, nil
}

// Source returns the pattern text.
func (r *Regexp) Source() string { return r.source }

// MatchData is the result of a successful match.
type MatchData struct {
	regexp  *Regexp
	subject string
	loc     []int
}

// Regexp returns the pattern that produced the match.
func (m *MatchData) Regexp() *Regexp { return m.regexp }

// Group returns capture group i as a string, or nil when it did not
// participate in the match.
func (m *MatchData) Group(i int) Value {
	if i < 0 || 2*i+1 >= len(m.loc) || m.loc[2*i] < 0 {
		return nil
	}
	return m.subject[m.loc[2*i]:m.loc[2*i+1]]
}

// Begin returns the offset of the whole match.
func (m *MatchData) Begin() int { return m.loc[0] }

// PreMatch returns the text before the match.
func (m *MatchData) PreMatch() string { return m.subject[:m.loc[0]] }

// PostMatch returns the text after the match.
func (m *MatchData) PostMatch() string { return m.subject[m.loc[1]:] }

func (m *MatchData) String() string { return m.subject[m.loc[0]:m.loc[1]] }

func (vm *VM) installRegexpPrimitives() {
	vm.String.DefinePrimitive(&Primitive{Name: "=~", Fn: primStringMatchOp}, Public)
	vm.Regexp.DefinePrimitive(&Primitive{Name: "=~", Fn: primRegexpMatchOp}, Public)
	vm.Regexp.DefinePrimitive(&Primitive{Name: "match", Fn: primRegexpMatch}, Public)
	vm.Regexp.SingletonClass().DefinePrimitive(&Primitive{Name: "last_match", Fn: primLastMatch}, Public)

	vm.MatchData.DefinePrimitive(&Primitive{Name: "[]", Fn: func(t *Thread, f *Frame) (Value, error) {
		i, ok := f.Arg(0).(int)
		if !ok {
			return nil, &RubyError{Class: t.vm.TypeError, Message: fmt.Sprintf("no implicit conversion of %v into Integer", f.Arg(0))}
		}
		return f.Self.(*MatchData).Group(i), nil
	}}, Public)
	vm.MatchData.DefinePrimitive(&Primitive{Name: "to_s", Fn: func(t *Thread, f *Frame) (Value, error) {
		return f.Self.(*MatchData).String(), nil
	}}, Public)
	vm.MatchData.DefinePrimitive(&Primitive{Name: "pre_match", Fn: func(t *Thread, f *Frame) (Value, error) {
		return f.Self.(*MatchData).PreMatch(), nil
	}}, Public)
	vm.MatchData.DefinePrimitive(&Primitive{Name: "post_match", Fn: func(t *Thread, f *Frame) (Value, error) {
		return f.Self.(*MatchData).PostMatch(), nil
	}}, Public)
}

// matchInto runs re against s and stores the result (or nil) in the
// caller's $~.
func matchInto(t *Thread, f *Frame, re *Regexp, s string) *MatchData {
	var md *MatchData
	if loc := re.re.FindStringSubmatchIndex(s); loc != nil {
		md = &MatchData{regexp: re, subject: s, loc: loc}
	}
	if storage := t.CallerStorage(f); storage != nil {
		if md != nil {
			storage.SetLastMatch(md)
		} else {
			storage.SetLastMatch(nil)
		}
	}
	return md
}

func primStringMatchOp(t *Thread, f *Frame) (Value, error) {
	re, ok := f.Arg(0).(*Regexp)
	if !ok {
		return nil, &RubyError{Class: t.vm.TypeError, Message: fmt.Sprintf("wrong argument type %s (expected Regexp)", t.vm.ClassOf(f.Arg(0)).Name())}
	}
	if md := matchInto(t, f, re, f.Self.(string)); md != nil {
		return md.Begin(), nil
	}
	return nil, nil
}

func primRegexpMatchOp(t *Thread, f *Frame) (Value, error) {
	s, ok := f.Arg(0).(string)
	if !ok {
		return nil, &RubyError{Class: t.vm.TypeError, Message: fmt.Sprintf("no implicit conversion of %s into String", t.vm.ClassOf(f.Arg(0)).Name())}
	}
	if md := matchInto(t, f, f.Self.(*Regexp), s); md != nil {
		return md.Begin(), nil
	}
	return nil, nil
}

func primRegexpMatch(t *Thread, f *Frame) (Value, error) {
	s, ok := f.Arg(0).(string)
	if !ok {
		return nil, &RubyError{Class: t.vm.TypeError, Message: fmt.Sprintf("no implicit conversion of %s into String", t.vm.ClassOf(f.Arg(0)).Name())}
	}
	if md := matchInto(t, f, f.Self.(*Regexp), s); md != nil {
		return md, nil
	}
	return nil, nil
}

func primLastMatch(t *Thread, f *Frame) (Value, error) {
	storage := t.CallerStorage(f)
	if storage == nil {
		return nil, nil
	}
	md, _ := storage.LastMatch().(*MatchData)
	if md == nil {
		return nil, nil
	}
	if i, ok := f.Arg(0).(int); ok {
		return md.Group(i), nil
	}
	return md, nil
}
