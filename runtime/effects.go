package runtime

import (
	"github.com/dolthub/swiss"

	"github.com/artisdom/caterpillar/lang/isa"
)

// EffectsQueue is the FIFO of unhandled effects (spec.md §3 "Effects
// queue"). The driver (C12) only ever looks at the first entry; further
// effects accumulate behind it (an instruction that triggers an effect
// leaves the frame pointer just past itself, per spec.md §4.8 step 4, so a
// busy loop that triggers many effects before any are cleared is possible
// and is not treated as an error).
type EffectsQueue struct {
	items []isa.Effect
}

// Push enqueues e.
func (q *EffectsQueue) Push(e isa.Effect) { q.items = append(q.items, e) }

// Peek returns the first unhandled effect without removing it.
func (q *EffectsQueue) Peek() (isa.Effect, bool) {
	if len(q.items) == 0 {
		return isa.Effect{}, false
	}
	return q.items[0], true
}

// Pop removes and returns the first unhandled effect.
func (q *EffectsQueue) Pop() (isa.Effect, bool) {
	e, ok := q.Peek()
	if ok {
		q.items = q.items[1:]
	}
	return e, ok
}

// Empty reports whether the queue has no pending effects.
func (q *EffectsQueue) Empty() bool { return len(q.items) == 0 }

// Breakpoints holds the durable and ephemeral breakpoint sets (spec.md §3
// "Breakpoints. Two ordered sets of instruction addresses: durable
// (toggled by user, persist) and ephemeral (single-shot, consumed on hit)").
//
// Durable breakpoints are keyed by source expression location, not raw
// address, because a hot-update moves code around; Project recomputes the
// live address set from the current source map on every UpdateCode (spec.md
// §4.10 "Durable breakpoints survive ... re-projected through the new
// source map on every UpdateCode").
//
// Backed by dolthub/swiss rather than plain maps: a breakpoint set is
// exactly the "many small lookups keyed by a fixed-size hashable key"
// pattern nenuphar's own lang/machine.Map reaches for swiss to cover.
type Breakpoints struct {
	durableLocations *swiss.Map[isa.ExpressionLocation, bool]
	durableAddrs     *swiss.Map[uint32, bool]
	ephemeralAddrs   *swiss.Map[uint32, bool]
}

// NewBreakpoints returns an empty set.
func NewBreakpoints() *Breakpoints {
	return &Breakpoints{
		durableLocations: swiss.NewMap[isa.ExpressionLocation, bool](8),
		durableAddrs:     swiss.NewMap[uint32, bool](8),
		ephemeralAddrs:   swiss.NewMap[uint32, bool](8),
	}
}

// SetDurable marks loc as a durable breakpoint and projects it onto sm's
// current addresses.
func (b *Breakpoints) SetDurable(loc isa.ExpressionLocation, sm *isa.SourceMap) {
	b.durableLocations.Put(loc, true)
	b.Project(sm)
}

// ClearDurable unmarks loc.
func (b *Breakpoints) ClearDurable(loc isa.ExpressionLocation, sm *isa.SourceMap) {
	b.durableLocations.Delete(loc)
	b.Project(sm)
}

// Project recomputes the live durable-address set from sm (spec.md §4.10).
// Called after every UpdateCode.
func (b *Breakpoints) Project(sm *isa.SourceMap) {
	b.durableAddrs = swiss.NewMap[uint32, bool](uint32(b.durableLocations.Count()))
	b.durableLocations.Iter(func(loc isa.ExpressionLocation, _ bool) (stop bool) {
		for _, addr := range sm.ExprToAddrs[loc] {
			b.durableAddrs.Put(addr, true)
		}
		return false
	})
	// ephemeral breakpoints never survive a recompile (spec.md §4.10).
	b.ephemeralAddrs = swiss.NewMap[uint32, bool](8)
}

// SetEphemeral arms a single-shot breakpoint at addr. Process's stepping
// methods do not call it; they single-step instead.
func (b *Breakpoints) SetEphemeral(addr uint32) {
	b.ephemeralAddrs.Put(addr, true)
}

// ClearEphemeral removes the ephemeral breakpoint at addr, if any.
func (b *Breakpoints) ClearEphemeral(addr uint32) {
	b.ephemeralAddrs.Delete(addr)
}

// ClearAllEphemeral drops every armed ephemeral breakpoint (used by Reset,
// so unconsumed ephemeral targets don't linger).
func (b *Breakpoints) ClearAllEphemeral() {
	b.ephemeralAddrs = swiss.NewMap[uint32, bool](8)
}

// IsDurable reports whether addr currently carries a durable breakpoint.
func (b *Breakpoints) IsDurable(addr uint32) bool {
	v, ok := b.durableAddrs.Get(addr)
	return ok && v
}

// IsEphemeral reports whether addr currently carries an ephemeral
// breakpoint.
func (b *Breakpoints) IsEphemeral(addr uint32) bool {
	v, ok := b.ephemeralAddrs.Get(addr)
	return ok && v
}

// Reset clears ephemeral breakpoints; durable breakpoints are untouched
// (spec.md §4.9 "Reset ... preserve durable breakpoints", §8 invariant 5).
func (b *Breakpoints) Reset() {
	b.ClearAllEphemeral()
}
