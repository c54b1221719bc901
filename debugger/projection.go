// Package debugger turns a live call stack, its compiled instructions, and
// its source map into the ordered list of active function entries a UI can
// render (spec.md §4.11, C14).
//
// Grounded on the flat-Instruction/SourceMap shape of lang/isa and runtime's
// Stack, and on spec.md §4.11's own worked example for tail-call-elision
// reconstruction; formatting of large operand values uses
// github.com/dustin/go-humanize the way wudi-hey's own debug tooling favors
// readable, comma-grouped numbers over raw ints.
package debugger

import (
	"fmt"

	"github.com/artisdom/caterpillar/lang/isa"
	"github.com/artisdom/caterpillar/runtime"
	"github.com/dustin/go-humanize"
)

// EntryKind discriminates an Entry.
type EntryKind uint8

//nolint:revive
const (
	FunctionEntry EntryKind = iota
	GapEntry
)

// Entry is one element of a Projection, innermost-first.
type Entry struct {
	Kind EntryKind

	// FunctionEntry
	Func          isa.FuncID
	BranchIndex   int
	ExprIndex     int
	OperandsCount int // number of live operands in this frame, for display
}

func (e Entry) String() string {
	if e.Kind == GapEntry {
		return "<gap: non-reconstructable tail-call ancestor>"
	}
	return fmt.Sprintf("%s (branch %s, expr %s, %s operands)",
		e.Func.Name,
		humanize.Ordinal(e.BranchIndex+1),
		humanize.Ordinal(e.ExprIndex+1),
		humanize.Comma(int64(e.OperandsCount)))
}

// Project builds the active-function list for stack, innermost first
// (spec.md §4.11).
func Project(stack *runtime.Stack, instr []isa.Instruction, sm *isa.SourceMap) []Entry {
	var out []Entry
	for i := len(stack.Frames) - 1; i >= 0; i-- {
		frame := stack.Frames[i]
		loc, ok := sm.InstructionToExpression(frame.NextInstr)
		if !ok {
			continue
		}
		out = append(out, Entry{
			Kind:          FunctionEntry,
			Func:          loc.Func,
			BranchIndex:   loc.BranchIndex,
			ExprIndex:     loc.ExprIndex,
			OperandsCount: len(frame.Operands),
		})

		// reconstruct elided tail-call ancestors between this frame and the
		// next real one on the stack, if any.
		out = append(out, reconstructAncestors(loc.Func, instr, sm)...)
	}
	return out
}

// reconstructAncestors walks backward from callee's every caller candidate:
// a function F reconstructs as the immediate ancestor of callee only if F
// has exactly one branch whose last expression is a tail call to callee
// (spec.md §4.11). Ambiguous (multi-branch) candidates surface as a Gap
// instead of being silently dropped.
func reconstructAncestors(callee isa.FuncID, instr []isa.Instruction, sm *isa.SourceMap) []Entry {
	var out []Entry
	current := callee
	// a self-tail-recursive single-branch function is its own tail caller,
	// so findTailCaller(f) keeps returning f forever without this guard:
	// stop once a function reappears rather than walking the same cycle.
	visited := map[isa.FuncID]bool{callee: true}
	for {
		caller, ambiguous, found := findTailCaller(current, instr, sm)
		if !found {
			return out
		}
		if ambiguous || visited[caller.id] {
			out = append(out, Entry{Kind: GapEntry})
			return out
		}
		visited[caller.id] = true
		out = append(out, Entry{Kind: FunctionEntry, Func: caller.id, BranchIndex: caller.branch, ExprIndex: caller.expr})
		current = caller.id
	}
}

type callSite struct {
	id     isa.FuncID
	branch int
	expr   int
}

// findTailCaller scans every compiled function's ranges for one whose
// single branch ends with a tail CallFunction targeting callee's entry
// address. Returns ambiguous=true if more than one branch anywhere
// qualifies, or if the matching function has more than one branch at all.
func findTailCaller(callee isa.FuncID, instr []isa.Instruction, sm *isa.SourceMap) (callSite, bool, bool) {
	calleeEntry, ok := sm.EntryOf[callee]
	if !ok {
		return callSite{}, false, false
	}

	branchCount := make(map[isa.FuncID]int)
	for loc := range sm.ExprToAddrs {
		if loc.BranchIndex+1 > branchCount[loc.Func] {
			branchCount[loc.Func] = loc.BranchIndex + 1
		}
	}

	var found []callSite
	for loc, addrs := range sm.ExprToAddrs {
		for _, addr := range addrs {
			if int(addr) >= len(instr) {
				continue
			}
			ins := instr[addr]
			if ins.Op != isa.CallFunction || !ins.IsTail || ins.Address != calleeEntry {
				continue
			}
			found = append(found, callSite{id: loc.Func, branch: loc.BranchIndex, expr: loc.ExprIndex})
		}
	}

	if len(found) == 0 {
		return callSite{}, false, false
	}
	if len(found) > 1 {
		return callSite{}, true, true
	}
	if branchCount[found[0].id] > 1 {
		return callSite{}, true, true
	}
	return found[0], false, true
}
