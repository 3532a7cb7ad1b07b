package vm

import (
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// Reads says what a call site passes down on one axis (frame or special
// variables).
type Reads uint8

const (
	ReadsNothing Reads = iota
	ReadsSelf          // the site's own activation
	ReadsCaller        // the site's caller's (send indirection)
)

func (r Reads) String() string {
	switch r {
	case ReadsSelf:
		return "self"
	case ReadsCaller:
		return "caller"
	default:
		return "nothing"
	}
}

// FrameSendMode is what a call site passes to its callees. The frame and
// variables axes upgrade independently; each moves away from ReadsNothing
// at most once and never back.
type FrameSendMode struct {
	Frame Reads
	Vars  Reads
}

// The named modes of a single axis.
var (
	SendNothing     = FrameSendMode{}
	SendSelfFrame   = FrameSendMode{Frame: ReadsSelf}
	SendCallerFrame = FrameSendMode{Frame: ReadsCaller}
	SendSelfVars    = FrameSendMode{Vars: ReadsSelf}
	SendCallerVars  = FrameSendMode{Vars: ReadsCaller}
)

func (m FrameSendMode) String() string {
	switch {
	case m == SendNothing:
		return "nothing"
	case m.Vars == ReadsNothing:
		return m.Frame.String() + "-frame"
	case m.Frame == ReadsNothing:
		return m.Vars.String() + "-vars"
	}
	return m.Frame.String() + "-frame+" + m.Vars.String() + "-vars"
}

// SendsFrame reports whether a frame is passed.
func (m FrameSendMode) SendsFrame() bool { return m.Frame != ReadsNothing }

// SendsVariables reports whether a storage is passed, either directly or
// inside a sent frame.
func (m FrameSendMode) SendsVariables() bool { return m.Vars != ReadsNothing || m.Frame != ReadsNothing }

func (m FrameSendMode) pack() uint32 { return uint32(m.Frame)<<8 | uint32(m.Vars) }

func unpackMode(v uint32) FrameSendMode {
	return FrameSendMode{Frame: Reads(v >> 8), Vars: Reads(v & 0xff)}
}

// merge upgrades each axis of m that is still nothing.
func (m FrameSendMode) merge(o FrameSendMode) FrameSendMode {
	if m.Frame == ReadsNothing {
		m.Frame = o.Frame
	}
	if m.Vars == ReadsNothing {
		m.Vars = o.Vars
	}
	return m
}

// ---------------------------------------------------------------------------
// FrameSending: per-call-site state machine
// ---------------------------------------------------------------------------

// FrameSending tracks whether a call site passes its frame or special
// variables to callees.
//
// A site starts sending nothing. When a callee needs its caller's frame or
// storage and finds none supplied, it walks the stack (slow) and then asks
// the site that called it to start sending. The mode is stable between
// upgrades; fast paths built for one mode hold the current Assumption and
// are rebuilt when an upgrade invalidates it.
type FrameSending struct {
	label    string
	indirect bool

	mode     atomic.Uint32
	stable   *CyclicAssumption
	upgrades atomic.Uint32
}

func newFrameSending(label string, indirect bool, initial FrameSendMode) *FrameSending {
	fs := &FrameSending{
		label:    label,
		indirect: indirect,
		stable:   NewCyclicAssumption(label + " frame sending"),
	}
	fs.mode.Store(initial.pack())
	return fs
}

// Mode returns the current mode.
func (fs *FrameSending) Mode() FrameSendMode { return unpackMode(fs.mode.Load()) }

// Assumption returns the assumption guarding the current mode.
func (fs *FrameSending) Assumption() *Assumption { return fs.stable.Get() }

// Upgrades returns how many times the mode changed.
func (fs *FrameSending) Upgrades() uint32 { return fs.upgrades.Load() }

// SendingFrames reports whether the site passes a frame down.
func (fs *FrameSending) SendingFrames() bool { return fs.Mode().SendsFrame() }

// StartSendingOwnFrame makes the site pass its frame from now on: its own
// frame for a direct call, its caller's for a send indirection.
func (fs *FrameSending) StartSendingOwnFrame() bool {
	if fs.indirect {
		return fs.startSending(SendCallerFrame)
	}
	return fs.startSending(SendSelfFrame)
}

// StartSendingOwnVariables makes the site pass its special-variable
// storage from now on: its own for a direct call, its caller's for a send
// indirection.
func (fs *FrameSending) StartSendingOwnVariables() bool {
	if fs.indirect {
		return fs.startSending(SendCallerVars)
	}
	return fs.startSending(SendSelfVars)
}

func (fs *FrameSending) startSending(want FrameSendMode) bool {
	for {
		raw := fs.mode.Load()
		current := unpackMode(raw)
		next := current.merge(want)
		if next == current {
			return false
		}
		if fs.mode.CompareAndSwap(raw, next.pack()) {
			fs.upgrades.Add(1)
			fs.stable.Invalidate()
			if log := framesLog(); log.AllowLevel(commonlog.Info) {
				log.Infof("%s: frame sending %s -> %s", fs.label, current, next)
			}
			return true
		}
	}
}

// sendPlan is the fast-path form of a mode, valid while stable holds.
type sendPlan struct {
	mode   FrameSendMode
	stable *Assumption
}

func (fs *FrameSending) plan() *sendPlan {
	// Assumption first: an upgrade stores the mode before invalidating, so
	// a plan that pairs an old mode with a live assumption cannot exist.
	stable := fs.stable.Get()
	return &sendPlan{mode: fs.Mode(), stable: stable}
}
