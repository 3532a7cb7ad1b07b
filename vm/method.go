package vm

// Visibility is the access tag carried by a MethodEntry. The resolver only
// reports it; call sites decide whether the call kind is allowed.
type Visibility uint8

const (
	Public Visibility = iota
	Protected
	Private
)

func (v Visibility) String() string {
	switch v {
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return "public"
	}
}

// CallTarget is an executable method body. Bodies are produced outside this
// package; the core only invokes them with a prepared Frame.
type CallTarget interface {
	Call(t *Thread, f *Frame) (Value, error)
}

// BodyFunc adapts a Go function to CallTarget.
type BodyFunc func(t *Thread, f *Frame) (Value, error)

func (fn BodyFunc) Call(t *Thread, f *Frame) (Value, error) { return fn(t, f) }

// Primitive is a named built-in body. Indirect marks generic-dispatch
// primitives (send and friends): frames and special variables requested
// through them belong to their caller, one activation further up.
type Primitive struct {
	Name     string
	Fn       BodyFunc
	Indirect bool
}

func (p *Primitive) Call(t *Thread, f *Frame) (Value, error) { return p.Fn(t, f) }

// IsSendIndirection reports whether body forwards frame requests to its
// caller.
func IsSendIndirection(body CallTarget) bool {
	p, ok := body.(*Primitive)
	return ok && p.Indirect
}

// MethodEntry binds a body to a selector in an owner's method table.
//
// Entries are immutable once published. Redefinition publishes a new entry
// and bumps the owner's epoch, so a cache still holding the old entry can
// keep using it safely until its next validity check.
//
// owner is the class whose table holds the entry. definedIn is the class
// the body was originally defined in; aliases and visibility copies keep
// it, and super calls from the body start after it.
type MethodEntry struct {
	owner      *Class
	definedIn  *Class
	selector   *Selector
	body       CallTarget
	visibility Visibility
	epoch      uint64
	undefined  bool
}

// Owner returns the class or module whose table holds this entry.
func (m *MethodEntry) Owner() *Class { return m.owner }

// DefinedIn returns the class the body was defined in. It differs from
// Owner for entries created by Alias or SetVisibility.
func (m *MethodEntry) DefinedIn() *Class { return m.definedIn }

// Selector returns the entry's selector.
func (m *MethodEntry) Selector() *Selector { return m.selector }

// Name returns the selector name.
func (m *MethodEntry) Name() string { return m.selector.name }

// Body returns the executable body.
func (m *MethodEntry) Body() CallTarget { return m.body }

// Visibility returns the entry's visibility tag.
func (m *MethodEntry) Visibility() Visibility { return m.visibility }

// Epoch returns the owner's epoch at the time the entry was defined.
func (m *MethodEntry) Epoch() uint64 { return m.epoch }

// IsUndefined reports whether this entry is an undef_method marker.
func (m *MethodEntry) IsUndefined() bool { return m.undefined }

// IsSendIndirection reports whether the body is a send-style primitive.
func (m *MethodEntry) IsSendIndirection() bool {
	return m != nil && IsSendIndirection(m.body)
}

func (m *MethodEntry) String() string {
	if m == nil {
		return "<nil method>"
	}
	return m.owner.Name() + "#" + m.selector.name
}

// withVisibility returns a copy of m owned by owner with visibility vis.
func (m *MethodEntry) withVisibility(owner *Class, vis Visibility, epoch uint64) *MethodEntry {
	return &MethodEntry{
		owner:      owner,
		definedIn:  m.definedIn,
		selector:   m.selector,
		body:       m.body,
		visibility: vis,
		epoch:      epoch,
	}
}
