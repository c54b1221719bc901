package parser_test

import (
	"testing"

	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/parser"
	"github.com/stretchr/testify/require"
)

func TestParseHelloLiteral(t *testing.T) {
	res := parser.Parse([]byte("main: fn \\ -> 42 end\n"))
	require.Empty(t, res.Errors)
	require.Len(t, res.Functions, 1)

	main := res.Functions[0]
	require.Equal(t, "main", main.Name)
	require.Len(t, main.Inner.Branches, 1)

	br := main.Inner.Branches[0]
	require.Empty(t, br.Patterns)
	require.Len(t, br.Body, 1)
	require.Equal(t, fragment.LiteralValue, br.Body[0].Kind)
	require.Equal(t, int32(42), br.Body[0].Value)
	require.True(t, br.Body[0].IsTailPosition)
}

func TestParseBranchPatterns(t *testing.T) {
	res := parser.Parse([]byte("f: fn  \\ 0 -> 10  \\ n -> n end\n"))
	require.Empty(t, res.Errors)
	require.Len(t, res.Functions, 1)

	f := res.Functions[0].Inner
	require.Len(t, f.Branches, 2)

	require.Len(t, f.Branches[0].Patterns, 1)
	require.True(t, f.Branches[0].Patterns[0].IsLiteral)
	require.Equal(t, int32(0), f.Branches[0].Patterns[0].Value)

	require.Len(t, f.Branches[1].Patterns, 1)
	require.False(t, f.Branches[1].Patterns[0].IsLiteral)
	require.Equal(t, "n", f.Branches[1].Patterns[0].Name)
	require.Equal(t, fragment.UnresolvedIdentifier, f.Branches[1].Body[0].Kind)
	require.Equal(t, "n", f.Branches[1].Body[0].Name)
}

func TestParseMultipleParams(t *testing.T) {
	res := parser.Parse([]byte("add: fn \\ a, b -> a b add_i32 end\n"))
	require.Empty(t, res.Errors)

	br := res.Functions[0].Inner.Branches[0]
	require.Len(t, br.Patterns, 2)
	require.Equal(t, "a", br.Patterns[0].Name)
	require.Equal(t, "b", br.Patterns[1].Name)
	require.Len(t, br.Body, 3)
	require.Equal(t, "add_i32", br.Body[2].Name)
	require.True(t, br.Body[2].IsTailPosition)
}

func TestParseAnonymousFunction(t *testing.T) {
	res := parser.Parse([]byte("main: fn \\ -> fn \\ -> 1 end eval end\n"))
	require.Empty(t, res.Errors)

	br := res.Functions[0].Inner.Branches[0]
	require.Len(t, br.Body, 2)
	require.Equal(t, fragment.LiteralFunction, br.Body[0].Kind)
	require.NotNil(t, br.Body[0].Function)
	require.Len(t, br.Body[0].Function.Branches, 1)
	require.Equal(t, "eval", br.Body[1].Name)
}

func TestParseCommentInsideBody(t *testing.T) {
	res := parser.Parse([]byte("main: fn \\ -> # note\n 1 end\n"))
	require.Empty(t, res.Errors)

	br := res.Functions[0].Inner.Branches[0]
	require.Len(t, br.Body, 2)
	require.Equal(t, fragment.Comment, br.Body[0].Kind)
	require.Equal(t, "note", br.Body[0].Text)
	// the comment does not count as the tail expression.
	require.False(t, br.Body[0].IsTailPosition)
	require.True(t, br.Body[1].IsTailPosition)
}

func TestParseTrailingCommentDoesNotStealTailPosition(t *testing.T) {
	// a branch ending in a comment must still mark its last real expression
	// as the tail position, or tail-call elision silently stops applying to
	// the branch's actual final call (spec.md §4.5).
	res := parser.Parse([]byte("main: fn \\ -> 1 # trailing\n end\n"))
	require.Empty(t, res.Errors)

	br := res.Functions[0].Inner.Branches[0]
	require.Len(t, br.Body, 2)
	require.Equal(t, fragment.LiteralValue, br.Body[0].Kind)
	require.True(t, br.Body[0].IsTailPosition)
	require.Equal(t, fragment.Comment, br.Body[1].Kind)
	require.False(t, br.Body[1].IsTailPosition)
}

func TestParseTopLevelCommentsDiscarded(t *testing.T) {
	res := parser.Parse([]byte("# a top comment\nmain: fn \\ -> 1 end\n"))
	require.Empty(t, res.Errors)
	require.Len(t, res.Functions, 1)
}

func TestParseUnexpectedTopLevelTokenRecordsErrorAndContinues(t *testing.T) {
	// a stray ',' at top level: the parser must not abort, it should record
	// an error and keep going (spec.md §4.2 design note / Open Question (b)).
	res := parser.Parse([]byte(", main: fn \\ -> 1 end\n"))
	require.NotEmpty(t, res.Errors)
	require.Len(t, res.Functions, 1)
	require.Equal(t, "main", res.Functions[0].Name)
}

func TestParseMissingEndRecordsError(t *testing.T) {
	res := parser.Parse([]byte("main: fn \\ -> 1\n"))
	require.NotEmpty(t, res.Errors)
	require.Len(t, res.Functions, 1)
}
