// Package parser implements capi's recursive-descent parser (spec.md §4.2,
// C5): tokens to a slice of fragment.NamedFunction in source order.
//
// Structurally this follows nenuphar's lang/parser/parser.go (a parser
// struct holding the current/lookahead token, a peek-and-take interface over
// the scanner, and an accumulated error list) but the grammar and output
// types are capi's own - there is no separate AST layer, because capi's
// grammar is simple enough that the parser can build fragment.Fragment
// values directly (spec.md §3's Fragment sum type already includes
// UnresolvedIdentifier for "could be anything" body items, which plays the
// role nenuphar's ast.Expr interface plays during parsing).
package parser

import (
	"fmt"

	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/scanner"
	"github.com/artisdom/caterpillar/lang/token"
)

// Error describes one recoverable parse error. Per spec.md §4.2's design
// note and Open Question (b), the parser does not abort on an unexpected
// token: it records an Error here and recovers. An unexpected token inside a
// function body is additionally encoded as a fragment.UnresolvedIdentifier
// placeholder (later lowered to TriggerEffect{BuildError}, spec.md §4.7);
// elsewhere (top level, a branch head, a missing 'end') the offending tokens
// are skipped and no placeholder fragment is produced.
type Error struct {
	Pos token.Pos
	Msg string
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// ErrorList accumulates parse errors without aborting the parse.
type ErrorList []Error

func (el ErrorList) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", el[0].Error(), len(el)-1)
	}
}

// Result is the output of Parse: the named functions declared at the top
// level, in source order (their slice index is the "named-function-index"
// spec.md §4.2 refers to), plus any recoverable errors encountered.
type Result struct {
	Functions []*fragment.NamedFunction
	Errors    ErrorList
}

// Parse tokenizes and parses src in one step.
func Parse(src []byte) Result {
	p := &parser{s: scanner.New(src)}
	p.next()
	return p.parseProgram()
}

type parser struct {
	s      *scanner.Scanner
	tok    token.Token
	errors ErrorList
}

func (p *parser) next() {
	p.tok = p.s.Scan()
}

func (p *parser) errorf(pos token.Pos, format string, args ...any) {
	p.errors = append(p.errors, Error{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// errorFragment synthesizes the "unparseable region" placeholder described
// by spec.md §4.2's design note: a Fragment that will lower to
// TriggerEffect{BuildError} (spec.md §4.7) rather than aborting compilation.
func errorFragment(pos token.Pos, why string) *fragment.Fragment {
	return &fragment.Fragment{
		Kind: fragment.UnresolvedIdentifier,
		Pos:  pos,
		Name: "<build-error: " + why + ">",
	}
}

// program = { comment | named_fn }
func (p *parser) parseProgram() Result {
	var funcs []*fragment.NamedFunction
	for p.tok.Kind != token.EOF {
		switch p.tok.Kind {
		case token.COMMENT:
			// top-level comments are discarded (spec.md §4.2 grammar note).
			p.next()
		case token.FNNAME:
			funcs = append(funcs, p.parseNamedFunction())
		default:
			p.errorf(p.tok.Pos, "unexpected %s at top level, expected a comment or a named function", p.tok.Kind)
			p.next() // make progress; recover by skipping the offending token
		}
	}
	return Result{Functions: funcs, Errors: p.errors}
}

// named_fn = FunctionName fn { branch } end
func (p *parser) parseNamedFunction() *fragment.NamedFunction {
	name := p.tok.Raw
	p.next() // consume FunctionName

	if p.tok.Kind != token.FN {
		p.errorf(p.tok.Pos, "expected 'fn' after function name %q, got %s", name, p.tok.Kind)
		return &fragment.NamedFunction{Name: name, Inner: &fragment.Function{}}
	}
	p.next() // consume 'fn'

	fn := p.parseFunctionBody()
	return &fragment.NamedFunction{Name: name, Inner: fn}
}

// parseFunctionBody parses the branch list up to and including the
// terminating 'end' keyword; used for both named functions and anonymous
// function literals (body_item production "fn").
func (p *parser) parseFunctionBody() *fragment.Function {
	var branches []fragment.Branch
	for p.tok.Kind == token.BSLASH {
		branches = append(branches, p.parseBranch())
	}
	if p.tok.Kind != token.END {
		p.errorf(p.tok.Pos, "expected 'end' or a branch starting with '\\', got %s", p.tok.Kind)
		// synchronize: skip until END, FNNAME (next named fn) or EOF.
		for p.tok.Kind != token.END && p.tok.Kind != token.FNNAME && p.tok.Kind != token.EOF {
			p.next()
		}
	}
	if p.tok.Kind == token.END {
		p.next() // consume 'end'
	}
	return &fragment.Function{Branches: branches}
}

// branch = "\" { pattern "," } pattern? "->" { body_item }
func (p *parser) parseBranch() fragment.Branch {
	p.next() // consume '\'

	var patterns []fragment.Pattern
	for p.tok.Kind != token.ARROW && p.tok.Kind != token.EOF {
		patterns = append(patterns, p.parsePattern())
		if p.tok.Kind == token.COMMA {
			p.next()
			continue
		}
		break
	}

	if p.tok.Kind != token.ARROW {
		p.errorf(p.tok.Pos, "expected '->' in branch head, got %s", p.tok.Kind)
	} else {
		p.next() // consume '->'
	}

	var body []*fragment.Fragment
	for !p.atBranchOrFunctionBoundary() {
		body = append(body, p.parseBodyItem())
	}
	// a trailing comment carries no instructions (compileExpression skips
	// fragment.Comment entirely) and so is never in tail position itself;
	// mark the last real expression instead, or a branch ending in a
	// comment would lose tail-call elision on its actual final call
	// (spec.md §4.5).
	for i := len(body) - 1; i >= 0; i-- {
		if body[i].Kind != fragment.Comment {
			body[i].IsTailPosition = true
			break
		}
	}
	return fragment.Branch{Patterns: patterns, Body: body}
}

func (p *parser) atBranchOrFunctionBoundary() bool {
	switch p.tok.Kind {
	case token.BSLASH, token.END, token.EOF:
		return true
	default:
		return false
	}
}

// pattern = identifier | integer
func (p *parser) parsePattern() fragment.Pattern {
	switch p.tok.Kind {
	case token.INT:
		v := p.tok.Int
		pos := p.tok.Pos
		p.next()
		return fragment.Pattern{IsLiteral: true, Value: v, Pos: pos}
	case token.IDENT:
		name := p.tok.Raw
		pos := p.tok.Pos
		p.next()
		return fragment.Pattern{Name: name, Pos: pos}
	default:
		pos := p.tok.Pos
		p.errorf(pos, "expected a pattern (identifier or integer), got %s", p.tok.Kind)
		p.next()
		return fragment.Pattern{Name: "<build-error>", Pos: pos}
	}
}

// body_item = comment | fn | identifier | integer
func (p *parser) parseBodyItem() *fragment.Fragment {
	switch p.tok.Kind {
	case token.COMMENT:
		f := &fragment.Fragment{Kind: fragment.Comment, Pos: p.tok.Pos, Text: p.tok.Raw}
		p.next()
		return f

	case token.FN:
		pos := p.tok.Pos
		p.next() // consume 'fn'
		inner := p.parseFunctionBody()
		return &fragment.Fragment{Kind: fragment.LiteralFunction, Pos: pos, Function: inner}

	case token.INT:
		v := p.tok.Int
		pos := p.tok.Pos
		p.next()
		return &fragment.Fragment{Kind: fragment.LiteralValue, Pos: pos, Value: v}

	case token.IDENT:
		name := p.tok.Raw
		pos := p.tok.Pos
		p.next()
		return &fragment.Fragment{Kind: fragment.UnresolvedIdentifier, Pos: pos, Name: name}

	default:
		pos := p.tok.Pos
		kind := p.tok.Kind
		p.errorf(pos, "unexpected %s in function body", kind)
		p.next()
		return errorFragment(pos, fmt.Sprintf("unexpected %s", kind))
	}
}
