package resolve_test

import (
	"testing"

	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/parser"
	"github.com/artisdom/caterpillar/lang/resolve"
	"github.com/stretchr/testify/require"
)

func parseOK(t *testing.T, src string) []*fragment.NamedFunction {
	t.Helper()
	res := parser.Parse([]byte(src))
	require.Empty(t, res.Errors)
	return res.Functions
}

func TestResolveIntrinsicCall(t *testing.T) {
	fns := parseOK(t, "main: fn \\ -> 2 3 add_i32 end\n")
	require.NoError(t, resolve.Resolve(fns, nil))

	body := fns[0].Inner.Branches[0].Body
	require.Equal(t, fragment.CallToIntrinsicFunction, body[2].Kind)
	require.Equal(t, fragment.AddI32, body[2].Intrinsic)
	require.True(t, body[2].IsTail)
}

func TestResolveHostCall(t *testing.T) {
	fns := parseOK(t, "main: fn \\ -> 1 print end\n")
	require.NoError(t, resolve.Resolve(fns, resolve.HostFunctions{"print": 7}))

	body := fns[0].Inner.Branches[0].Body
	require.Equal(t, fragment.CallToHostFunction, body[1].Kind)
	require.Equal(t, uint8(7), body[1].EffectNumber)
}

func TestResolveBindingFromPattern(t *testing.T) {
	fns := parseOK(t, "f: fn \\ n -> n end\n")
	require.NoError(t, resolve.Resolve(fns, nil))

	body := fns[0].Inner.Branches[0].Body
	require.Equal(t, fragment.Binding, body[0].Kind)
	require.Equal(t, "n", body[0].Name)
	require.Equal(t, 0, body[0].Index)
}

func TestResolveKnownUserFunctionIsRecursionHinted(t *testing.T) {
	fns := parseOK(t, "loop: fn \\ 0 -> 0 \\ n -> n 1 sub_i32 loop end\nmain: fn \\ -> 1000 loop end\n")
	require.NoError(t, resolve.Resolve(fns, nil))

	loopBody := fns[0].Inner.Branches[1].Body
	// "loop" call: still UnresolvedIdentifier, but now recursion-hinted.
	last := loopBody[len(loopBody)-1]
	require.Equal(t, fragment.UnresolvedIdentifier, last.Kind)
	require.True(t, last.RecursionHint)
	require.True(t, last.IsTail)
}

func TestResolveUnknownIdentifierStaysUnresolved(t *testing.T) {
	fns := parseOK(t, "main: fn \\ -> frobnicate end\n")
	require.NoError(t, resolve.Resolve(fns, nil))

	body := fns[0].Inner.Branches[0].Body
	require.Equal(t, fragment.UnresolvedIdentifier, body[0].Kind)
	require.False(t, body[0].RecursionHint)
}

func TestResolveClosureCapturesFreeVariable(t *testing.T) {
	fns := parseOK(t, "main: fn \\ x -> fn \\ -> x end eval end\n")
	require.NoError(t, resolve.Resolve(fns, nil))

	lit := fns[0].Inner.Branches[0].Body[0]
	require.Equal(t, fragment.LiteralFunction, lit.Kind)
	require.Equal(t, []string{"x"}, lit.Function.Environment)

	innerBody := lit.Function.Branches[0].Body
	require.Equal(t, fragment.Binding, innerBody[0].Kind)
	require.Equal(t, "x", innerBody[0].Name)
}

func TestResolveNestedClosureCascadesEnvironment(t *testing.T) {
	// x is referenced two levels down; the intermediate anonymous function
	// must also list x in its own Environment so its own MakeClosure forwards
	// the binding (spec.md §4.7).
	fns := parseOK(t, "main: fn \\ x -> fn \\ -> fn \\ -> x end eval end eval end\n")
	require.NoError(t, resolve.Resolve(fns, nil))

	outer := fns[0].Inner.Branches[0].Body[0]
	require.Equal(t, []string{"x"}, outer.Function.Environment)

	inner := outer.Function.Branches[0].Body[0]
	require.Equal(t, fragment.LiteralFunction, inner.Kind)
	require.Equal(t, []string{"x"}, inner.Function.Environment)
}

func TestResolveNamedFunctionMustNotHaveEnvironment(t *testing.T) {
	fns := parseOK(t, "main: fn \\ -> 1 end\n")
	require.NoError(t, resolve.Resolve(fns, nil))
	require.Empty(t, fns[0].Inner.Environment)
}
