package maincmd

import (
	"fmt"

	"github.com/artisdom/caterpillar/host"
	"github.com/artisdom/caterpillar/lang/callgraph"
	"github.com/artisdom/caterpillar/lang/changeset"
	"github.com/artisdom/caterpillar/lang/compiler"
	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/isa"
	"github.com/artisdom/caterpillar/lang/parser"
	"github.com/artisdom/caterpillar/lang/resolve"
)

// built is the output of running the whole C4-C10 pipeline over one file's
// source, the shared result every subcommand beyond tokenize builds on.
type built struct {
	Functions []*fragment.NamedFunction
	Cluster   callgraph.Result
	Compiled  compiler.Result
}

// buildFile runs parse -> resolve -> cluster -> compile over src, against
// the reference host's advertised functions (so `print`/`read_int` resolve
// the same way for every subcommand).
func buildFile(src []byte) (built, error) {
	res := parser.Parse(src)
	if len(res.Errors) > 0 {
		return built{}, res.Errors
	}

	hostFns := resolve.HostFunctions(host.HostFunctionMap(host.NewRefHost(nil, nil)))
	if err := resolve.Resolve(res.Functions, hostFns); err != nil {
		return built{}, err
	}

	cg, err := callgraph.Build(res.Functions)
	if err != nil {
		return built{}, fmt.Errorf("call graph: %w", err)
	}

	order := make([]string, len(res.Functions))
	for i, nf := range res.Functions {
		order[i] = nf.Name
	}
	changes := changeset.Detect(nil, cg.Hashes, order)

	out := compiler.Compile(res.Functions, cg, changes, nil, nil)
	return built{Functions: res.Functions, Cluster: cg, Compiled: out}, nil
}

// firstMainEntry reports main's compiled entry address, if any.
func firstMainEntry(sm *isa.SourceMap) (uint32, bool) {
	addr, ok := sm.EntryOf[isa.FuncID{Name: "main"}]
	return addr, ok
}
