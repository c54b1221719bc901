package runtime

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/artisdom/caterpillar/lang/isa"
)

// BreakpointTriple is one durable breakpoint's persisted form: a
// (function_name, branch_index, expression_index) triple, the shape spec.md
// §6 names for a debugger's saved state. Grounded on the original
// implementation's own persistence: capi-runtime/src/breakpoints.rs derives
// serde Serialize/Deserialize directly on its breakpoint set, and the
// debugger's model/state.rs persists/restores durable breakpoints across a
// process restart the same way.
//
// Func is the NestPath-qualified name ("outer#0.1"-style, see funcKey) rather than
// isa.FuncID directly, so the persisted form is a plain string triple with
// no dependency on this package's in-memory types - exactly what a restart
// needs to survive a recompile of the same source.
type BreakpointTriple struct {
	Func        string
	BranchIndex int
	ExprIndex   int
}

// MarshalTriples renders every durable breakpoint as a sorted, newline-
// separated list of "func:branch:expr" triples (spec.md §6's persisted-state
// shape). Sorted so two processes with the same breakpoints produce
// byte-identical output, the same determinism §8 asks of the source map.
func (b *Breakpoints) MarshalTriples() string {
	var triples []BreakpointTriple
	b.durableLocations.Iter(func(loc isa.ExpressionLocation, _ bool) (stop bool) {
		triples = append(triples, BreakpointTriple{
			Func:        funcKey(loc.Func),
			BranchIndex: loc.BranchIndex,
			ExprIndex:   loc.ExprIndex,
		})
		return false
	})
	sort.Slice(triples, func(i, j int) bool {
		if triples[i].Func != triples[j].Func {
			return triples[i].Func < triples[j].Func
		}
		if triples[i].BranchIndex != triples[j].BranchIndex {
			return triples[i].BranchIndex < triples[j].BranchIndex
		}
		return triples[i].ExprIndex < triples[j].ExprIndex
	})

	var b2 strings.Builder
	for _, t := range triples {
		fmt.Fprintf(&b2, "%s:%d:%d\n", t.Func, t.BranchIndex, t.ExprIndex)
	}
	return b2.String()
}

// UnmarshalTriples parses MarshalTriples' output (or any hand-written file
// in the same format) and installs each triple as a durable breakpoint,
// projected onto sm's current addresses - the counterpart to MarshalTriples,
// restoring a debugger's saved breakpoints after a process restart.
func (b *Breakpoints) UnmarshalTriples(data string, sm *isa.SourceMap) error {
	for i, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			return fmt.Errorf("breakpoint triple %d: want func:branch:expr, got %q", i+1, line)
		}
		branch, err := strconv.Atoi(parts[1])
		if err != nil {
			return fmt.Errorf("breakpoint triple %d: invalid branch index %q", i+1, parts[1])
		}
		expr, err := strconv.Atoi(parts[2])
		if err != nil {
			return fmt.Errorf("breakpoint triple %d: invalid expression index %q", i+1, parts[2])
		}
		loc := isa.ExpressionLocation{
			Func:        funcFromKey(parts[0]),
			BranchIndex: branch,
			ExprIndex:   expr,
		}
		b.SetDurable(loc, sm)
	}
	return nil
}

// funcKey/funcFromKey round-trip an isa.FuncID through a single string, so a
// nested anonymous function's NestPath survives persistence alongside its
// owning name.
func funcKey(id isa.FuncID) string {
	if id.NestPath == "" {
		return id.Name
	}
	return id.Name + "#" + id.NestPath
}

func funcFromKey(key string) isa.FuncID {
	if i := strings.IndexByte(key, '#'); i >= 0 {
		return isa.FuncID{Name: key[:i], NestPath: key[i+1:]}
	}
	return isa.FuncID{Name: key}
}
