package compiler_test

import (
	"testing"

	"github.com/kylelemons/godebug/diff"
	"github.com/stretchr/testify/require"

	"github.com/artisdom/caterpillar/lang/callgraph"
	"github.com/artisdom/caterpillar/lang/changeset"
	"github.com/artisdom/caterpillar/lang/compiler"
	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/isa"
	"github.com/artisdom/caterpillar/lang/parser"
	"github.com/artisdom/caterpillar/lang/resolve"
)

func compileSrc(t *testing.T, src string) ([]*fragment.NamedFunction, callgraph.Result, compiler.Result) {
	t.Helper()
	res := parser.Parse([]byte(src))
	require.Empty(t, res.Errors)
	require.NoError(t, resolve.Resolve(res.Functions, nil))
	cg, err := callgraph.Build(res.Functions)
	require.NoError(t, err)
	out := compiler.Compile(res.Functions, cg, nil, nil, nil)
	return res.Functions, cg, out
}

func TestCompileHelloLiteral(t *testing.T) {
	_, _, out := compileSrc(t, "main: fn \\ -> 42 end\n")
	require.NotEmpty(t, out.Instructions)

	entry, ok := out.SourceMap.EntryOf[isa.FuncID{Name: "main"}]
	require.True(t, ok)

	var pushed bool
	for i := entry; i < uint32(len(out.Instructions)); i++ {
		ins := out.Instructions[i]
		if ins.Op == isa.Push && ins.Value == 42 {
			pushed = true
		}
		if ins.Op == isa.Return {
			break
		}
	}
	require.True(t, pushed, "expected a push 42 before the branch's return")
}

func TestCompilePlaceholderCallToMainIsPatched(t *testing.T) {
	_, _, out := compileSrc(t, "main: fn \\ -> 1 end\n")
	entry := out.SourceMap.EntryOf[isa.FuncID{Name: "main"}]
	call := out.Instructions[0]
	require.Equal(t, isa.CallFunction, call.Op)
	require.True(t, call.IsTail)
	require.Equal(t, entry, call.Address)
}

func TestCompileMissingMainLeavesBuildErrorPlaceholder(t *testing.T) {
	_, _, out := compileSrc(t, "helper: fn \\ -> 1 end\n")
	require.Equal(t, isa.TriggerEffect, out.Instructions[0].Op)
	require.Equal(t, isa.BuildError, out.Instructions[0].Effect.Kind)
}

func TestCompileBranchDispatchFallsThroughOnMismatch(t *testing.T) {
	_, _, out := compileSrc(t, "f: fn \\ 0 -> 10 \\ n -> n end\nmain: fn \\ -> 0 f end\n")
	entry := out.SourceMap.EntryOf[isa.FuncID{Name: "f"}]

	var sawCondJmp, sawSecondBranchBind bool
	for i := entry; i < uint32(len(out.Instructions)); i++ {
		ins := out.Instructions[i]
		if ins.Op == isa.CondJmpZero {
			sawCondJmp = true
			require.Greater(t, ins.Address, i, "mismatch jump must target a later address")
		}
		if ins.Op == isa.BindingsDefine && len(ins.Names) == 1 && ins.Names[0] == "n" {
			sawSecondBranchBind = true
		}
	}
	require.True(t, sawCondJmp)
	require.True(t, sawSecondBranchBind)
}

// TestCompileIsDeterministicAcrossIndependentBuilds is spec.md §8's
// determinism law (recompiling the same source from scratch twice produces
// byte-identical code, "up to base-address offset") exercised as a round
// trip: two independent compiles of the same source must disassemble to the
// same text. Uses godebug/diff, grounded on nenuphar's internal/filetest,
// so a failure reports a readable patch instead of two opaque blobs.
func TestCompileIsDeterministicAcrossIndependentBuilds(t *testing.T) {
	const src = "f: fn \\ 0, n -> n \\ a, b -> a b add_i32 end\nmain: fn \\ -> 1 2 f end\n"

	_, _, first := compileSrc(t, src)
	_, _, second := compileSrc(t, src)

	firstText := compiler.Dasm(first.Instructions)
	secondText := compiler.Dasm(second.Instructions)
	if patch := diff.Diff(firstText, secondText); patch != "" {
		t.Errorf("independent compiles of the same source diverged:\n%s", patch)
	}
}

func TestCompileUnchangedClusterReusesAddresses(t *testing.T) {
	fns, cg, first := compileSrc(t, "main: fn \\ -> 1 end\n")

	changes := changeset.Detect(cg.Hashes, cg.Hashes, []string{"main"})
	second := compiler.Compile(fns, cg, changes, first.Instructions, first.SourceMap)

	// the whole first build's code is preserved byte-for-byte as a prefix;
	// the address-0 call-to-main is re-patched in place, and with main
	// unchanged it still targets the same entry.
	require.Equal(t, first.Instructions, second.Instructions[:len(first.Instructions)])
	require.Equal(t,
		first.SourceMap.EntryOf[isa.FuncID{Name: "main"}],
		second.SourceMap.EntryOf[isa.FuncID{Name: "main"}],
	)
}

func TestCompileMultiParamLiteralPatternChecksItsOwnArgument(t *testing.T) {
	// \ 0, n -> ... : the literal pattern is the *first* parameter, not the
	// last. f 5 0 must fall through to the catch-all branch rather than
	// wrongly matching here because the guard compared against the wrong
	// operand depth (i.e. against the second argument instead of the
	// first).
	_, _, out := compileSrc(t, "f: fn \\ 0, n -> n \\ a, b -> a end\nmain: fn \\ -> 5 0 f end\n")
	entry := out.SourceMap.EntryOf[isa.FuncID{Name: "f"}]

	var sawPeekAt bool
	for i := entry; out.Instructions[i].Op != isa.BindingsDefine; i++ {
		if out.Instructions[i].Op == isa.PeekAt {
			sawPeekAt = true
			// the literal is f's first parameter, of 2 total: depth 1, not
			// the topmost operand (depth 0, which is the second argument).
			require.Equal(t, int32(1), out.Instructions[i].Value)
		}
	}
	require.True(t, sawPeekAt, "expected the literal pattern's guard to peek a specific depth")
}

func TestCompileNestedFunctionDoesNotFallThrough(t *testing.T) {
	_, _, out := compileSrc(t, "main: fn \\ -> fn \\ -> 1 end eval end\n")
	entry := out.SourceMap.EntryOf[isa.FuncID{Name: "main"}]
	require.Equal(t, isa.BindingsDefine, out.Instructions[entry].Op)
	jmpAddr := entry + 1
	require.Equal(t, isa.Jmp, out.Instructions[jmpAddr].Op)
	require.Greater(t, out.Instructions[jmpAddr].Address, jmpAddr)
}
