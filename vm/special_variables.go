package vm

import "sync"

// SpecialVariableStorage holds the frame-local special variables $~ (last
// match) and $_ (last line).
//
// A storage belongs to one method activation. Blocks created in that
// activation and callees that were sent the storage hold the same pointer,
// so a match made inside a block or a callee is visible to the method.
// Storage is never copied.
type SpecialVariableStorage struct {
	mu        sync.Mutex
	lastMatch Value
	lastLine  Value
}

// NewSpecialVariableStorage returns an empty storage.
func NewSpecialVariableStorage() *SpecialVariableStorage {
	return &SpecialVariableStorage{}
}

// LastMatch returns $~.
func (s *SpecialVariableStorage) LastMatch() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMatch
}

// SetLastMatch assigns $~.
func (s *SpecialVariableStorage) SetLastMatch(v Value) {
	s.mu.Lock()
	s.lastMatch = v
	s.mu.Unlock()
}

// LastLine returns $_.
func (s *SpecialVariableStorage) LastLine() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLine
}

// SetLastLine assigns $_.
func (s *SpecialVariableStorage) SetLastLine(v Value) {
	s.mu.Lock()
	s.lastLine = v
	s.mu.Unlock()
}

// ThreadLocalGlobals are the globals that are per thread rather than per
// frame: $! and $?.
type ThreadLocalGlobals struct {
	Exception     Value // $!
	ProcessStatus Value // $?
}
