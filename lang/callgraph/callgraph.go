// Package callgraph implements capi's call-graph and cluster builder (spec.md
// §4.4, C7) and the recursion marker (spec.md §4.5, C8's recursive-call half
// - tail-position marking itself is done eagerly by the parser, since it is
// a purely syntactic fact; see lang/parser.parseBranch).
//
// Building the call graph and condensing it into strongly-connected clusters
// has no direct analogue in nenuphar (a language without user-level mutual
// recursion needing special compilation handling), so this is grounded
// directly on spec.md §4.4 and on
// original_source/capi/compiler/src/passes/{build_call_graph,group_into_clusters}.rs,
// implemented with a standard Tarjan SCC walk in the idiom of nenuphar's own
// hand-rolled graph-shaped passes (lang/resolver's scope-stack walk is the
// nearest textural model: explicit recursive walk functions, no external
// graph library).
package callgraph

import "github.com/artisdom/caterpillar/lang/fragment"

// Cluster is a strongly-connected component of the call graph: an ordered
// list of named-function indices, in the order they were first reached
// during the SCC walk (spec.md §3 "Cluster" - this order becomes each
// member's cluster-local index).
type Cluster struct {
	Functions []int
}

// Result is the output of Build.
type Result struct {
	// Clusters are in leaves-first order (spec.md §4.4): a cluster only
	// calls (non-recursively) into clusters that appear before it.
	Clusters []Cluster

	// Hashes maps each named function's name to its final structural hash,
	// computed after all of its recursive-call placeholders have been
	// rewritten to CallToUserDefinedFunctionRecursive and all of its
	// non-recursive user calls rewritten to CallToUserDefinedFunction (spec.md
	// §3 invariant 2: a function's hash never depends on a recursive callee).
	Hashes map[string]fragment.Hash
}

// Build computes the call graph over fns (resolved by lang/resolve.Resolve),
// partitions it into clusters, and rewrites every
// fragment.UnresolvedIdentifier{RecursionHint: true} placeholder left by the
// resolver into either a CallToUserDefinedFunctionRecursive (intra-cluster)
// or a CallToUserDefinedFunction (inter-cluster, referencing the callee's
// already-computed hash) fragment.
func Build(fns []*fragment.NamedFunction) (Result, error) {
	byName := make(map[string]int, len(fns))
	for i, nf := range fns {
		byName[nf.Name] = i
	}

	g := &grapher{fns: fns, byName: byName}
	g.edges = make([][]int, len(fns))
	for i, nf := range fns {
		g.collectEdges(i, nf.Inner)
	}

	t := &tarjan{graph: g.edges, n: len(fns)}
	t.run()

	res := Result{Hashes: make(map[string]fragment.Hash, len(fns))}
	clusterOf := make([]int, len(fns))
	localIndexOf := make([]int, len(fns))

	for ci, members := range t.sccs {
		for li, fi := range members {
			clusterOf[fi] = ci
			localIndexOf[fi] = li
		}
	}

	for ci, members := range t.sccs {
		for li, fi := range members {
			idx := li
			fns[fi].Inner.IndexInCluster = &idx
		}

		rw := &rewriter{
			byName:       byName,
			clusterOf:    clusterOf,
			localIndexOf: localIndexOf,
			thisCluster:  ci,
			hashes:       res.Hashes,
		}
		for _, fi := range members {
			rw.rewriteFunction(fns[fi].Inner)
		}
		for _, fi := range members {
			res.Hashes[fns[fi].Name] = fragment.HashFunction(fns[fi].Inner)
		}

		res.Clusters = append(res.Clusters, Cluster{Functions: append([]int(nil), members...)})
	}

	return res, nil
}

// grapher collects call-graph edges: an edge from A to B exists iff A's body
// (including inside any nested anonymous function) contains an unresolved
// call placeholder naming B (spec.md §4.4).
type grapher struct {
	fns    []*fragment.NamedFunction
	byName map[string]int
	edges  [][]int
}

func (g *grapher) collectEdges(from int, fn *fragment.Function) {
	for _, br := range fn.Branches {
		for _, f := range br.Body {
			g.collectEdgesInFragment(from, f)
		}
	}
}

func (g *grapher) collectEdgesInFragment(from int, f *fragment.Fragment) {
	switch f.Kind {
	case fragment.LiteralFunction:
		g.collectEdges(from, f.Function)
	case fragment.UnresolvedIdentifier:
		if f.RecursionHint {
			if to, ok := g.byName[f.Name]; ok {
				g.edges[from] = append(g.edges[from], to)
			}
		}
	}
}

// tarjan computes strongly-connected components of graph, in the order in
// which DFS closes them - which is reverse topological order with respect
// to the "caller depends on callee" edge direction, i.e. leaves (sinks,
// functions that call nothing else recursively relevant) first. This is
// exactly the order spec.md §4.4 requires clusters to be emitted in.
type tarjan struct {
	graph   [][]int
	n       int
	index   []int
	lowlink []int
	onStack []bool
	stack   []int
	counter int
	sccs    [][]int
}

const tarjanUnvisited = -1

func (t *tarjan) run() {
	t.index = make([]int, t.n)
	t.lowlink = make([]int, t.n)
	t.onStack = make([]bool, t.n)
	for i := range t.index {
		t.index[i] = tarjanUnvisited
	}
	for v := 0; v < t.n; v++ {
		if t.index[v] == tarjanUnvisited {
			t.strongConnect(v)
		}
	}
}

func (t *tarjan) strongConnect(v int) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.graph[v] {
		switch {
		case t.index[w] == tarjanUnvisited:
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		case t.onStack[w]:
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var scc []int
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		// scc was built by popping, which reverses discovery order; restore
		// insertion (first-reached) order per spec.md §3 "Cluster".
		for i, j := 0, len(scc)-1; i < j; i, j = i+1, j-1 {
			scc[i], scc[j] = scc[j], scc[i]
		}
		t.sccs = append(t.sccs, scc)
	}
}

// rewriter turns resolved-but-not-yet-bound user-function call placeholders
// into their final fragment form (spec.md §4.5/§4.8).
type rewriter struct {
	byName       map[string]int
	clusterOf    []int
	localIndexOf []int
	thisCluster  int
	hashes       map[string]fragment.Hash
}

func (rw *rewriter) rewriteFunction(fn *fragment.Function) {
	for bi := range fn.Branches {
		for _, f := range fn.Branches[bi].Body {
			rw.rewriteFragment(f)
		}
	}
}

func (rw *rewriter) rewriteFragment(f *fragment.Fragment) {
	switch f.Kind {
	case fragment.LiteralFunction:
		rw.rewriteFunction(f.Function)
	case fragment.UnresolvedIdentifier:
		if !f.RecursionHint {
			return // unknown identifier: left as-is, lowers to BuildError (spec.md §4.7)
		}
		target, ok := rw.byName[f.Name]
		if !ok {
			return // should not happen: resolver only sets RecursionHint for known names
		}
		isTail := f.IsTail
		if rw.clusterOf[target] == rw.thisCluster {
			f.Kind = fragment.CallToUserDefinedFunctionRecursive
			f.ClusterLocalIndex = rw.localIndexOf[target]
			f.IsTail = isTail
		} else {
			f.Kind = fragment.CallToUserDefinedFunction
			f.CalleeHash = rw.hashes[f.Name]
			f.IsTail = isTail
		}
		f.Name = ""
		f.RecursionHint = false
	}
}
