// Package compiler implements capi's instruction generator (spec.md §4.7,
// C10): it walks call-graph clusters leaves-first and compiles each
// function's fragments into a flat isa.Instruction sequence plus an
// isa.SourceMap, exactly as spec.md §2's flow diagram describes ("source →
// ... → C10 (emitting C2 side-output) → instructions + source map").
//
// Grounded on original_source/capi/compiler/src/passes/generate_instructions
// (generate_instructions.rs's placeholder-call-to-main bootstrap,
// compile_cluster.rs's per-cluster recursive-call fixup table) and, for
// idiom, on nenuphar's lang/compiler.Compile (a single recursive walk
// appending to one Program, not per-node AST visitors).
//
// Dispatch note. spec.md §3 lists Return, ReturnIfZero and ReturnIfNonZero
// as the only control-flow instructions, with no unconditional or
// conditional jump - but multi-branch pattern dispatch needs *some* way to
// skip a mismatching branch's body without falling into it, and the
// original Rust source for this exact lowering step was not present in the
// retrieved source pack. This package adds two purely compiler-internal
// opcodes, isa.Jmp and isa.CondJmpZero (see lang/isa doc comments), used only
// to express "try the next branch" and "skip over an inline-compiled nested
// function's body" - never reachable from a Fragment, never part of a
// debugger-visible expression.
package compiler

import (
	"strconv"

	"github.com/dolthub/swiss"

	"github.com/artisdom/caterpillar/lang/callgraph"
	"github.com/artisdom/caterpillar/lang/changeset"
	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/isa"
)

// Result is the output of Compile.
type Result struct {
	Instructions []isa.Instruction
	SourceMap    *isa.SourceMap
}

// Compile (re)compiles fns given the cluster structure cg and the previous
// build's changes/instructions/source map (all nil/empty for a first
// build). Per spec.md §4.6, a cluster is recompiled only if at least one of
// its members is Added or Updated; Unchanged clusters' existing code and
// source-map entries are carried forward untouched, and the new
// instructions for recompiled clusters are appended, never overwriting
// previous code in place (spec.md §4.7).
func Compile(
	fns []*fragment.NamedFunction,
	cg callgraph.Result,
	changes []changeset.Change,
	prevInstr []isa.Instruction,
	prevMap *isa.SourceMap,
) Result {
	byName := make(map[string]*fragment.NamedFunction, len(fns))
	for _, nf := range fns {
		byName[nf.Name] = nf
	}

	statusByName := make(map[string]changeset.Status, len(changes))
	for _, c := range changes {
		statusByName[c.Name] = c.Status
	}

	// hashToName backs CallToUserDefinedFunction resolution: every compiled
	// call site looks up its callee's current entry address by the callee's
	// content hash, a "many small lookups keyed by a fixed-size hashable
	// key" access pattern that is swiss's sweet spot (as nenuphar's own
	// lang/machine.Map uses it for Value-keyed lookups).
	hashToName := swiss.NewMap[fragment.Hash, string](uint32(len(cg.Hashes)))
	for name, h := range cg.Hashes {
		hashToName.Put(h, name)
	}

	if prevMap == nil {
		prevMap = isa.NewSourceMap()
	}

	g := &generator{
		instr:      append([]isa.Instruction(nil), prevInstr...),
		sm:         isa.NewSourceMap(),
		prevMap:    prevMap,
		entryOf:    make(map[string]uint32),
		hashToName: hashToName,
	}

	// placeholder call-to-main, always at address 0 (spec.md §4.7). A rebuild
	// on top of prevInstr reuses the previous build's address-0 slot instead
	// of appending a new one, so a process started or reset at address 0
	// enters the newly compiled main.
	noMain := isa.Instruction{Op: isa.TriggerEffect, Effect: isa.Effect{Kind: isa.BuildError, Detail: "no main function"}}
	var mainPlaceholder uint32
	if len(g.instr) == 0 {
		mainPlaceholder = g.emit(noMain)
	} else {
		g.patch(mainPlaceholder, noMain)
	}

	for _, cluster := range cg.Clusters {
		needsCompile := len(statusByName) == 0
		for _, fi := range cluster.Functions {
			if statusByName[fns[fi].Name] != changeset.Unchanged {
				needsCompile = true
			}
		}

		if !needsCompile {
			for _, fi := range cluster.Functions {
				name := fns[fi].Name
				id := isa.FuncID{Name: name}
				g.entryOf[name] = prevMap.EntryOf[id]
				g.carryForward(name)
			}
			continue
		}

		g.compileCluster(cluster, fns)
	}

	if _, ok := byName["main"]; ok {
		g.patch(mainPlaceholder, isa.Instruction{Op: isa.CallFunction, Address: g.entryOf["main"], IsTail: true})
	}

	return Result{Instructions: g.instr, SourceMap: g.sm}
}

type generator struct {
	instr      []isa.Instruction
	sm         *isa.SourceMap
	prevMap    *isa.SourceMap
	entryOf    map[string]uint32 // function name -> entry address, filled in as clusters compile
	hashToName *swiss.Map[fragment.Hash, string]

	// per-cluster state, reset by compileCluster
	recursiveFixups map[int][]uint32 // cluster-local index -> placeholder addresses to patch

	// nestCounters assigns each owning named function's LiteralFunction
	// fragments a stable, increasing NestPath suffix as they're compiled.
	nestCounters map[string]int
}

func (g *generator) emit(i isa.Instruction) uint32 {
	addr := uint32(len(g.instr))
	g.instr = append(g.instr, i)
	return addr
}

func (g *generator) patch(addr uint32, i isa.Instruction) {
	g.instr[addr] = i
}

// carryForward copies an Unchanged function's source-map entries (still
// valid, since its instructions were never touched) from the previous build
// into the new source map.
func (g *generator) carryForward(name string) {
	for id, rng := range g.prevMap.FuncRanges {
		if id.Name != name {
			continue
		}
		g.sm.FuncRanges[id] = rng
		g.sm.EntryOf[id] = g.prevMap.EntryOf[id]
		if a, ok := g.prevMap.ArityAt[g.prevMap.EntryOf[id]]; ok {
			g.sm.ArityAt[g.prevMap.EntryOf[id]] = a
		}
	}
	for loc, addrs := range g.prevMap.ExprToAddrs {
		if loc.Func.Name != name {
			continue
		}
		g.sm.ExprToAddrs[loc] = append([]uint32(nil), addrs...)
		for _, a := range addrs {
			g.sm.AddrToExpr[a] = loc
		}
	}
}

func (g *generator) compileCluster(cluster callgraph.Cluster, fns []*fragment.NamedFunction) {
	g.recursiveFixups = make(map[int][]uint32)

	entries := make([]uint32, len(cluster.Functions))
	for li, fi := range cluster.Functions {
		nf := fns[fi]
		entries[li] = g.compileNamedFunction(nf)
		g.entryOf[nf.Name] = entries[li]
	}

	for idx, addrs := range g.recursiveFixups {
		for _, addr := range addrs {
			cur := g.instr[addr]
			cur.Address = entries[idx]
			g.patch(addr, cur)
		}
	}
}

func (g *generator) compileNamedFunction(nf *fragment.NamedFunction) uint32 {
	id := isa.FuncID{Name: nf.Name}
	entry := g.compileFunction(id, nf.Inner)
	g.sm.EntryOf[id] = entry
	return entry
}

// compileFunction compiles fn's branches in order, each a separately
// addressable dispatch-and-body block chained by isa.CondJmpZero/isa.Jmp
// fallthrough, and records its [first,last] range and declared arity.
func (g *generator) compileFunction(id isa.FuncID, fn *fragment.Function) uint32 {
	first := uint32(len(g.instr))
	arity := 0
	if len(fn.Branches) > 0 {
		arity = len(fn.Branches[0].Patterns)
	}

	var mismatchJumps []uint32 // CondJmpZero placeholders for the *current* branch
	for bi, br := range fn.Branches {
		// patch the previous branch's mismatch jumps to land here.
		for _, addr := range mismatchJumps {
			cur := g.instr[addr]
			cur.Address = uint32(len(g.instr))
			g.patch(addr, cur)
		}
		mismatchJumps = nil

		// Every pattern's argument already sits at a fixed depth in the
		// frame's initial operand stack (argument 0 deepest, the last
		// argument on top - spec.md §3 "Each frame holds ... operand
		// stack"), so a literal pattern's guard must peek its own depth,
		// not always the top: PeekAt{depth}, not Dup, or patterns after
		// the first would compare the wrong argument (e.g. `\ 0, n -> ...`
		// would wrongly test n's value instead of the first argument's).
		names := make([]string, len(br.Patterns))
		arity := len(br.Patterns)
		for pi, pat := range br.Patterns {
			if pat.IsLiteral {
				names[pi] = "_"
				depth := arity - 1 - pi
				g.emit(isa.Instruction{Op: isa.PeekAt, Value: int32(depth)})
				g.emit(isa.Instruction{Op: isa.Push, Value: pat.Value})
				g.emit(isa.Instruction{Op: isa.CallBuiltin, Builtin: fragment.EqI32})
				addr := g.emit(isa.Instruction{Op: isa.CondJmpZero})
				mismatchJumps = append(mismatchJumps, addr)
			} else {
				names[pi] = pat.Name
			}
		}

		g.emit(isa.Instruction{Op: isa.BindingsDefine, Names: names})

		for ei, f := range br.Body {
			loc := isa.ExpressionLocation{Func: id, BranchIndex: bi, ExprIndex: ei}
			g.compileExpression(id, loc, f)
		}

		g.emit(isa.Instruction{Op: isa.Return})
	}

	for _, addr := range mismatchJumps {
		cur := g.instr[addr]
		cur.Address = uint32(len(g.instr))
		g.patch(addr, cur)
	}
	g.emit(isa.Instruction{Op: isa.TriggerEffect, Effect: isa.Effect{Kind: isa.NoMatch}})
	g.emit(isa.Instruction{Op: isa.Return})

	last := uint32(len(g.instr) - 1)
	g.sm.FuncRanges[id] = isa.FunctionRange{First: first, Last: last}
	g.sm.ArityAt[first] = arity
	return first
}

// compileExpression lowers one fragment per spec.md §4.7's table.
func (g *generator) compileExpression(owner isa.FuncID, loc isa.ExpressionLocation, f *fragment.Fragment) {
	switch f.Kind {
	case fragment.Comment:
		// no instructions; does not appear in the source map.

	case fragment.Binding:
		addr := g.emit(isa.Instruction{Op: isa.BindingEvaluate, Name: f.Name})
		g.sm.Record(loc, addr)

	case fragment.LiteralValue:
		addr := g.emit(isa.Instruction{Op: isa.Push, Value: f.Value})
		g.sm.Record(loc, addr)

	case fragment.LiteralFunction:
		skip := g.emit(isa.Instruction{Op: isa.Jmp})
		if g.nestCounters == nil {
			g.nestCounters = make(map[string]int)
		}
		nestPath := strconv.Itoa(g.nestCounters[owner.Name])
		if owner.NestPath != "" {
			nestPath = owner.NestPath + "." + nestPath
		}
		nested := isa.FuncID{Name: owner.Name, NestPath: nestPath}
		g.nestCounters[owner.Name]++
		entry := g.compileFunction(nested, f.Function)
		cur := g.instr[skip]
		cur.Address = uint32(len(g.instr))
		g.patch(skip, cur)
		addr := g.emit(isa.Instruction{Op: isa.MakeClosure, Address: entry, Names: append([]string(nil), f.Function.Environment...)})
		g.sm.Record(loc, addr)

	case fragment.CallToHostFunction:
		addr := g.emit(isa.Instruction{Op: isa.TriggerEffect, Effect: isa.Effect{Kind: isa.Host, HostNumber: f.EffectNumber}})
		g.sm.Record(loc, addr)

	case fragment.CallToIntrinsicFunction:
		addr := g.emit(isa.Instruction{Op: isa.CallBuiltin, Builtin: f.Intrinsic, IsTail: f.IsTail})
		g.sm.Record(loc, addr)

	case fragment.CallToUserDefinedFunction:
		name, _ := g.hashToName.Get(f.CalleeHash)
		addr := g.emit(isa.Instruction{Op: isa.CallFunction, Address: g.entryOf[name], IsTail: f.IsTail})
		g.sm.Record(loc, addr)

	case fragment.CallToUserDefinedFunctionRecursive:
		addr := g.emit(isa.Instruction{Op: isa.CallFunction, Address: 0, IsTail: f.IsTail})
		g.recursiveFixups[f.ClusterLocalIndex] = append(g.recursiveFixups[f.ClusterLocalIndex], addr)
		g.sm.Record(loc, addr)

	case fragment.UnresolvedIdentifier:
		addr := g.emit(isa.Instruction{Op: isa.TriggerEffect, Effect: isa.Effect{Kind: isa.BuildError, Detail: f.Name}})
		g.sm.Record(loc, addr)
	}
}

