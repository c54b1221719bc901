// Package scanner tokenizes capi source text.
//
// The algorithm is adapted from artisdom/caterpillar's own tokenizer
// (original_source/capi/compiler/src/passes/tokenize.rs): a byte buffer is
// accumulated character by character, and "eager" punctuation tokens are
// recognized by checking whether the buffer ends with one of their spellings,
// at which point the identifier accumulated so far (if any) is flushed first.
// Per spec.md §4.1 this also eagerly recognizes ',', '\' and '->', and
// classifies "fn"/"end" as keywords once an identifier is flushed.
//
// As with nenuphar's scanner, no byte sequence causes a hard error: unknown
// input always yields *some* token (see Token.Kind == token.ILLEGAL only for
// cases that can't reasonably be tokens at all, which in this language is
// effectively never - any printable run of bytes is a valid IDENT).
package scanner

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/artisdom/caterpillar/lang/token"
)

// eager are the punctuation spellings recognized mid-buffer, longest first so
// that "->" is preferred over a trailing "-" match.
var eager = []struct {
	text string
	kind token.Kind
}{
	{"->", token.ARROW},
	{"{", token.LBRACE},
	{"}", token.RBRACE},
	{"|", token.PIPE},
	{",", token.COMMA},
	{`\`, token.BSLASH},
}

type state int8

const (
	stateInitial state = iota
	stateCommentStart
	stateCommentText
)

// Scanner tokenizes a single source buffer. It is not safe for concurrent
// use, but is cheap to construct; allocate a new one per source.
type Scanner struct {
	src []byte

	state state
	buf   strings.Builder

	// bufStart is the byte offset where the current buffer run began, used to
	// compute the start position of a flushed identifier/comment token.
	bufStart    int
	bufStartPos token.Pos

	off       int // byte offset of the next rune to read
	line, col int // 1-based position of the next rune to read

	pending []token.Token
}

// New creates a Scanner over src. The Scanner does not take ownership of src
// beyond the lifetime of Tokenize/Scan calls.
func New(src []byte) *Scanner {
	return &Scanner{src: src, line: 1, col: 1}
}

// Tokenize scans src in its entirety and returns every token, including a
// trailing EOF. It never returns an error: see the package doc.
func Tokenize(src []byte) []token.Token {
	s := New(src)
	var toks []token.Token
	for {
		tok := s.Scan()
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks
		}
	}
}

// Scan returns the next token. Once it returns a token.EOF token, further
// calls keep returning token.EOF.
func (s *Scanner) Scan() token.Token {
	for {
		if len(s.pending) > 0 {
			tok := s.pending[0]
			s.pending = s.pending[1:]
			return tok
		}
		if !s.step() {
			at := s.pos()
			s.flushIdentifierInto(&s.pending, at)
			s.pending = append(s.pending, token.Token{Kind: token.EOF, Pos: at})
			tok := s.pending[0]
			s.pending = s.pending[1:]
			return tok
		}
	}
}

func (s *Scanner) pos() token.Pos {
	return token.MakePos(s.line, s.col)
}

// step consumes one rune and appends any resulting token(s) to s.pending. It
// returns false once the source is exhausted and there is nothing left to
// flush automatically (caller flushes the final identifier, if any).
func (s *Scanner) step() bool {
	if s.off >= len(s.src) {
		return false
	}

	r, w := s.decodeRune()
	curPos := s.pos()
	s.advance(r, w)

	switch s.state {
	case stateInitial:
		s.stepInitial(r, curPos)
	case stateCommentStart, stateCommentText:
		if r == '\n' {
			s.pending = append(s.pending, token.Token{Kind: token.COMMENT, Pos: s.bufStartPos, Raw: s.buf.String()})
			s.buf.Reset()
			s.state = stateInitial
			break
		}
		if s.state == stateCommentStart {
			if unicode.IsSpace(r) {
				break
			}
			s.bufStartPos = curPos
			s.state = stateCommentText
		}
		s.buf.WriteRune(r)
	}
	return true
}

func (s *Scanner) stepInitial(r rune, curPos token.Pos) {
	switch {
	case r == '#':
		s.flushIdentifierInto(&s.pending, curPos)
		s.state = stateCommentStart
	case r == ':':
		name := s.buf.String()
		s.buf.Reset()
		s.pending = append(s.pending, token.Token{Kind: token.FNNAME, Pos: s.bufStartPos, Raw: name})
	case unicode.IsSpace(r):
		s.flushIdentifierInto(&s.pending, curPos)
	default:
		if s.buf.Len() == 0 {
			s.bufStartPos = curPos
		}
		s.buf.WriteRune(r)
		s.matchEager()
	}
}

// matchEager checks whether the buffer now ends with an eager punctuation
// spelling, and if so splits it off: the identifier collected before it (if
// any) is flushed, then the punctuation token itself is emitted.
func (s *Scanner) matchEager() {
	text := s.buf.String()
	for _, e := range eager {
		if strings.HasSuffix(text, e.text) {
			identPart := text[:len(text)-len(e.text)]
			s.buf.Reset()
			identStart := s.bufStartPos
			if identPart != "" {
				s.pending = append(s.pending, identToken(identPart, identStart))
			}
			punctPos := advancePos(identStart, identPart)
			s.pending = append(s.pending, token.Token{Kind: e.kind, Pos: punctPos, Raw: e.text})
			return
		}
	}
}

// advancePos returns the position immediately after consumed, assuming it
// contains no newlines (true for every identifier that precedes a punctuation
// token, since whitespace - including '\n' - always flushes first).
func advancePos(start token.Pos, consumed string) token.Pos {
	line, col := start.LineCol()
	col += utf8.RuneCountInString(consumed)
	return token.MakePos(line, col)
}

func (s *Scanner) flushIdentifierInto(toks *[]token.Token, _ token.Pos) {
	if s.buf.Len() == 0 {
		return
	}
	text := s.buf.String()
	s.buf.Reset()
	*toks = append(*toks, identToken(text, s.bufStartPos))
}

func identToken(text string, pos token.Pos) token.Token {
	if isInteger(text) {
		v, err := strconv.ParseInt(text, 10, 32)
		if err == nil {
			return token.Token{Kind: token.INT, Pos: pos, Raw: text, Int: int32(v)}
		}
		// out of range or malformed: fall through, treated as a plain identifier
		// per the "no error signalling" rule - a build-time resolver/generator
		// stage is responsible for rejecting this later if it matters.
	}
	return token.Token{Kind: token.LookupIdent(text), Pos: pos, Raw: text}
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' || s[0] == '+' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for _, r := range s[start:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (s *Scanner) decodeRune() (rune, int) {
	r, w := utf8.DecodeRune(s.src[s.off:])
	if r == utf8.RuneError && w <= 1 {
		// invalid byte: treat as a single-byte rune to make progress; capi's
		// language has no string literals so this only ever affects comments or
		// pathological identifiers.
		return rune(s.src[s.off]), 1
	}
	return r, w
}

func (s *Scanner) advance(r rune, w int) {
	s.off += w
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
}
