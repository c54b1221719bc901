// Package resolve implements capi's identifier resolver (spec.md §4.3, C6):
// it walks every named function's branches with a stack of lexical scopes
// and classifies each fragment.UnresolvedIdentifier fragment produced by the
// parser as a local binding, an intrinsic call, a host call, or (if it names
// a known user-defined function) leaves it in place with RecursionHint set
// for the call-graph/cluster pass (lang/callgraph) to finish resolving.
//
// The scope-stack walk is grounded on nenuphar's lang/resolver package
// (binding.go's Scope enum of Local/Cell/Free/Predeclared/Universal is the
// direct model for capi's own binding/intrinsic/host/user resolution order),
// adapted to capi's simpler one-level closure-capture model (spec.md §4.3
// step 1, §9 "anonymous functions capture free variables").
package resolve

import (
	"fmt"

	"github.com/artisdom/caterpillar/lang/fragment"
)

// HostFunctions maps a host-function name to the effect number the compiler
// should emit a CallToHostFunction for (spec.md §4.3 step 3, §6 "Host
// function ABI").
type HostFunctions map[string]uint8

// Error reports a resolution-time problem serious enough to not be encoded
// as a fragment (currently only the "named function has a non-empty
// environment" assertion from spec.md §4.3).
type Error struct {
	Function string
	Msg      string
}

func (e Error) Error() string {
	return fmt.Sprintf("function %q: %s", e.Function, e.Msg)
}

// Resolve mutates every function reachable from fns in place, turning
// fragment.UnresolvedIdentifier fragments into Binding, CallToIntrinsicFunction
// or CallToHostFunction fragments, or leaving them as
// UnresolvedIdentifier{RecursionHint: true} when they name a known
// user-defined function. userFuncs is the set of top-level function names
// (including fns themselves, so forward references within the whole program
// resolve correctly).
func Resolve(fns []*fragment.NamedFunction, hosts HostFunctions) error {
	userFuncs := make(map[string]bool, len(fns))
	for _, nf := range fns {
		userFuncs[nf.Name] = true
	}

	for _, nf := range fns {
		r := &resolver{hosts: hosts, userFuncs: userFuncs}
		r.resolveFunction(nf.Inner, nil)
		if len(nf.Inner.Environment) > 0 {
			return Error{Function: nf.Name, Msg: "named function must not have a non-empty environment"}
		}
	}
	return nil
}

// scopeLevel is one function's worth of lexical scope: the bindings visible
// while resolving the body of whichever branch is currently being walked.
type scopeLevel struct {
	fn     *fragment.Function
	locals map[string]int // pattern name -> index within the active branch
}

type resolver struct {
	hosts     HostFunctions
	userFuncs map[string]bool
	stack     []*scopeLevel // innermost last
}

func (r *resolver) resolveFunction(fn *fragment.Function, _ []string) {
	for bi := range fn.Branches {
		br := &fn.Branches[bi]
		locals := make(map[string]int, len(br.Patterns))
		for i, pat := range br.Patterns {
			if !pat.IsLiteral {
				locals[pat.Name] = i
			}
		}
		r.stack = append(r.stack, &scopeLevel{fn: fn, locals: locals})
		for _, f := range br.Body {
			r.resolveFragment(f)
		}
		r.stack = r.stack[:len(r.stack)-1]
	}
}

func (r *resolver) resolveFragment(f *fragment.Fragment) {
	if f.Kind == fragment.LiteralFunction {
		r.resolveFunction(f.Function, nil)
		return
	}
	if f.Kind != fragment.UnresolvedIdentifier {
		return
	}

	name := f.Name
	isTail := f.IsTailPosition

	// resolution order, spec.md §4.3:
	// 1. in-scope binding (own branch, or a free variable from an enclosing
	//    function - in which case every intermediate function's Environment
	//    must also carry the name, since closures capture only one level
	//    deep from "the current frame", spec.md §4.7).
	for level := len(r.stack) - 1; level >= 0; level-- {
		sl := r.stack[level]
		if idx, ok := sl.locals[name]; ok {
			f.Kind = fragment.Binding
			f.Index = idx
			if level != len(r.stack)-1 {
				r.markFreeVariable(name, level)
			}
			return
		}
	}

	// 2. intrinsic function
	if in, ok := fragment.Intrinsics[name]; ok {
		f.Kind = fragment.CallToIntrinsicFunction
		f.Intrinsic = in
		f.IsTail = isTail
		return
	}

	// 3. host function
	if num, ok := r.hosts[name]; ok {
		f.Kind = fragment.CallToHostFunction
		f.EffectNumber = num
		return
	}

	// 4. known user-defined function: leave as UnresolvedIdentifier, but mark
	// recursion_hint so later passes (lang/callgraph) know to bind it to a
	// user function rather than treat it as a build error.
	if r.userFuncs[name] {
		f.RecursionHint = true
		f.IsTail = isTail
		return
	}

	// Otherwise: truly unknown identifier. Left as UnresolvedIdentifier with
	// RecursionHint false, which the instruction generator (spec.md §4.7)
	// lowers to TriggerEffect{BuildError}.
}

// markFreeVariable records name as a free variable captured from the
// enclosing scope at foundLevel, for every function strictly between
// foundLevel and the innermost (currently resolving) level. Each of those
// intermediate functions must also list name in its own Environment so that,
// at runtime, its own closure capture forwards the binding one level further
// in (spec.md §4.7 "MakeClosure{address, env} - capture listed bindings from
// the current frame").
func (r *resolver) markFreeVariable(name string, foundLevel int) {
	for level := foundLevel + 1; level < len(r.stack); level++ {
		fn := r.stack[level].fn
		if !containsString(fn.Environment, name) {
			fn.Environment = append(fn.Environment, name)
			sortStrings(fn.Environment)
		}
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// sortStrings keeps Function.Environment sorted, for hash stability
// (lang/fragment.HashFunction walks Environment in order) and deterministic
// MakeClosure.env iteration at compile time.
func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}
