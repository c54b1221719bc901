package runtime

import "github.com/artisdom/caterpillar/lang/isa"

// ReAnchor implements spec.md §4.10 (C13): given the old and new source
// maps and the names of functions that changed, move every live frame whose
// current instruction falls inside a changed function's old range onto the
// equivalent instruction in the newly compiled code.
//
// Grounded on original_source/capi/process (the frame's next-instruction
// pointer is data, not a return address, so re-anchoring is just "pick a
// new value for it") and, for the structural nearest-match idea, on
// nenuphar's lang/resolver position-to-node lookups (closest-enclosing-node
// search over a flat table) adapted to location *paths* instead of byte
// offsets.
func ReAnchor(oldMap, newMap *isa.SourceMap, updated map[string]bool, stack *Stack) {
	for _, frame := range stack.Frames {
		id, ok := funcOwning(oldMap, frame.NextInstr)
		if !ok || !updated[id.Name] {
			continue
		}
		newAddr, ok := reAnchorOne(oldMap, newMap, id, frame.NextInstr)
		if ok {
			frame.NextInstr = newAddr
		}
	}
}

func funcOwning(sm *isa.SourceMap, addr uint32) (isa.FuncID, bool) {
	for id, rng := range sm.FuncRanges {
		if addr >= rng.First && addr <= rng.Last {
			return id, true
		}
	}
	return isa.FuncID{}, false
}

// reAnchorOne computes the new instruction address for a frame currently
// stopped at oldAddr, inside the old version of function id.
func reAnchorOne(oldMap, newMap *isa.SourceMap, id isa.FuncID, oldAddr uint32) (uint32, bool) {
	loc, ok := nearestExpression(oldMap, id, oldAddr)
	if !ok {
		// no mapped expression anywhere in the old function; fall back to
		// the new function's own entry.
		entry, ok := newMap.EntryOf[id]
		return entry, ok
	}

	newLoc, ok := nearestLocationInNewFunction(newMap, loc)
	if !ok {
		entry, ok := newMap.EntryOf[id]
		return entry, ok
	}

	addrs := newMap.ExprToAddrs[newLoc]
	if len(addrs) == 0 {
		entry, ok := newMap.EntryOf[id]
		return entry, ok
	}
	return addrs[0], true
}

// nearestExpression implements step 1: find a_old's own expression, or walk
// backward (preferred) then forward within the function's range.
func nearestExpression(sm *isa.SourceMap, id isa.FuncID, addr uint32) (isa.ExpressionLocation, bool) {
	if loc, ok := sm.InstructionToExpression(addr); ok {
		return loc, true
	}
	rng, ok := sm.FuncRanges[id]
	if !ok {
		return isa.ExpressionLocation{}, false
	}
	for a := addr; a > rng.First; a-- {
		if loc, ok := sm.InstructionToExpression(a - 1); ok {
			return loc, true
		}
	}
	for a := addr + 1; a <= rng.Last; a++ {
		if loc, ok := sm.InstructionToExpression(a); ok {
			return loc, true
		}
	}
	return isa.ExpressionLocation{}, false
}

// nearestLocationInNewFunction implements step 2: exact structural match on
// (branch_index, expr_index) within the same FuncID, falling back to the
// deepest common prefix - here, the branch being unchanged but the
// expression index no longer existing, or the branch itself no longer
// existing - landing on that ancestor's first expression.
func nearestLocationInNewFunction(newMap *isa.SourceMap, loc isa.ExpressionLocation) (isa.ExpressionLocation, bool) {
	if _, ok := newMap.ExprToAddrs[loc]; ok {
		return loc, true
	}

	// same branch still exists: land on its first mapped expression.
	for ei := 0; ei < loc.ExprIndex; ei++ {
		cand := isa.ExpressionLocation{Func: loc.Func, BranchIndex: loc.BranchIndex, ExprIndex: ei}
		if _, ok := newMap.ExprToAddrs[cand]; ok {
			return cand, true
		}
	}

	// branch itself may be gone; fall back to branch 0, expr 0 of the
	// function if it still exists at all.
	cand := isa.ExpressionLocation{Func: loc.Func, BranchIndex: 0, ExprIndex: 0}
	if _, ok := newMap.ExprToAddrs[cand]; ok {
		return cand, true
	}
	return isa.ExpressionLocation{}, false
}
