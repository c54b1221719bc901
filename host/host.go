// Package host implements capi's host function ABI (spec.md §6 "Host
// function ABI") and the submit_frame rendezvous (spec.md §5, §9 Open
// Question (c)).
//
// A host advertises name <-> effect-number bindings and a signature; a call
// compiles to TriggerEffect{Host(n)}. When the engine observes that effect
// it is the host's turn to act: read arguments off the stopped frame's
// operand stack, push results, and resume with ClearBreakpointAndContinue.
// This package defines that contract; refhost.go supplies one concrete,
// minimal implementation.
package host

import "fmt"

// ValueType names the one value kind capi's ABI carries (spec.md §3's Value
// domain is a single 32-bit signed integer - no host signature needs more
// than this one type, but the field exists so a future value kind doesn't
// require an ABI-breaking change).
type ValueType uint8

// I32 is the only ValueType capi currently has.
const I32 ValueType = 0

// Signature describes a host function's arity and result shape (spec.md §6
// "a signature (inputs: value-types, outputs: value-types)").
type Signature struct {
	Inputs  []ValueType
	Outputs []ValueType
}

// Function is one host-advertised function: a stable name, the effect
// number a call to it compiles down to, and its signature.
type Function struct {
	Name      string
	Number    uint8
	Signature Signature
}

// Host is the ABI a concrete host implements: advertise its functions, and
// handle an effect by reading args off the stack and returning results
// (spec.md §6).
type Host interface {
	// Functions returns every function this host advertises, for the
	// resolver's host-function lookup table (lang/resolve.HostFunctions).
	Functions() []Function

	// Handle executes the effect numbered n given args (already popped off
	// the stopped frame's operand stack in declaration order) and returns
	// the values to push back, in order.
	Handle(n uint8, args []int32) ([]int32, error)
}

// ErrUnknownEffect is returned by a Host's Handle for an effect number it
// does not recognize (surfaces as isa.InvalidHostEffect, spec.md §7).
type ErrUnknownEffect struct{ Number uint8 }

func (e ErrUnknownEffect) Error() string {
	return fmt.Sprintf("host: no function bound to effect number %d", e.Number)
}

// HostFunctionMap builds the lang/resolve.HostFunctions table (name ->
// effect number) a Host advertises, for wiring into the resolver.
func HostFunctionMap(h Host) map[string]uint8 {
	m := make(map[string]uint8)
	for _, fn := range h.Functions() {
		m[fn.Name] = fn.Number
	}
	return m
}
