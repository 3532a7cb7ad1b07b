// Package vm implements the garnet method dispatch core.
//
// This package contains:
//   - Interned selectors and per-class copy-on-write method tables
//   - Class, module and singleton-class hierarchy with epoch invalidation
//   - Ancestor-order method resolution
//   - Per-call-site inline caches (uninitialized, mono, poly, mega)
//   - Frame and special-variable sending between call sites and callees
//   - Kernel primitives that take part in the caller-frame protocol
package vm
