package scanner_test

import (
	"testing"

	"github.com/artisdom/caterpillar/lang/scanner"
	"github.com/artisdom/caterpillar/lang/token"
	"github.com/stretchr/testify/require"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeHelloLiteral(t *testing.T) {
	src := "main: fn \\ -> 42 end\n"
	toks := scanner.Tokenize([]byte(src))
	require.Equal(t, []token.Kind{
		token.FNNAME, token.FN, token.BSLASH, token.ARROW, token.INT, token.END, token.EOF,
	}, kinds(toks))
	require.Equal(t, "main", toks[0].Raw)
	require.Equal(t, int32(42), toks[4].Int)
}

func TestTokenizeBranches(t *testing.T) {
	src := "f: fn  \\ 0 -> 10  \\ n -> n end\n"
	toks := scanner.Tokenize([]byte(src))
	require.Equal(t, []token.Kind{
		token.FNNAME, token.FN,
		token.BSLASH, token.INT, token.ARROW, token.INT,
		token.BSLASH, token.IDENT, token.ARROW, token.IDENT,
		token.END, token.EOF,
	}, kinds(toks))
}

func TestTokenizeComment(t *testing.T) {
	src := "# a comment\nmain: fn \\ -> end\n"
	toks := scanner.Tokenize([]byte(src))
	require.Equal(t, token.COMMENT, toks[0].Kind)
	require.Equal(t, "a comment", toks[0].Raw)
}

func TestTokenizeCommentInsideBody(t *testing.T) {
	src := "main: fn \\ -> # note\n 1 end\n"
	toks := scanner.Tokenize([]byte(src))
	require.Equal(t, []token.Kind{
		token.FNNAME, token.FN, token.BSLASH, token.ARROW, token.COMMENT, token.INT, token.END, token.EOF,
	}, kinds(toks))
	require.Equal(t, "note", toks[4].Raw)
}

func TestTokenizeMultipleParamsAndCommas(t *testing.T) {
	src := "add: fn \\ a, b -> a b add_i32 end\n"
	toks := scanner.Tokenize([]byte(src))
	require.Equal(t, []token.Kind{
		token.FNNAME, token.FN,
		token.BSLASH, token.IDENT, token.COMMA, token.IDENT, token.ARROW,
		token.IDENT, token.IDENT, token.IDENT,
		token.END, token.EOF,
	}, kinds(toks))
}

func TestTokenizeNegativeIntLiteral(t *testing.T) {
	toks := scanner.Tokenize([]byte("main: fn \\ -> -5 end\n"))
	require.Equal(t, token.INT, toks[4].Kind)
	require.Equal(t, int32(-5), toks[4].Int)
}

func TestScanIsIdempotentPastEOF(t *testing.T) {
	s := scanner.New([]byte("end"))
	require.Equal(t, token.END, s.Scan().Kind)
	require.Equal(t, token.EOF, s.Scan().Kind)
	require.Equal(t, token.EOF, s.Scan().Kind)
}

func TestTokenizeNoErrorSignalling(t *testing.T) {
	// arbitrary bytes, including ones outside of any defined grammar, must
	// still tokenize to *something* without panicking.
	require.NotPanics(t, func() {
		scanner.Tokenize([]byte("}}}{{{ \x00\x01 :: -> -> -- ,,,,"))
	})
}
