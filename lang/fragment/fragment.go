// Package fragment defines capi's intermediate representation: the
// content-addressed Fragment sum type (spec.md §3 "Fragment / Expression"),
// the Branch/Function/NamedFunction types that group fragments into named,
// branch-dispatched user functions, and the structural BLAKE3 hash that gives
// functions their identity.
//
// The shape mirrors nenuphar's resolver.Binding / machine.Funcode split
// (lang/resolver/binding.go, lang/compiler/compiled.go): a flat tagged
// struct rather than one Go type per variant, the same way nenuphar's own
// scanner.TokenAndValue and compiler.insn bundle a discriminant with only the
// fields relevant to it.
package fragment

import "github.com/artisdom/caterpillar/lang/token"

// Intrinsic identifies a compiler-intrinsic function (spec.md §4.3 step 2).
type Intrinsic uint8

//nolint:revive
const (
	IntrinsicNone Intrinsic = iota
	AddI32
	SubI32
	MulI32
	DivI32
	RemI32
	EqI32
	NeI32
	LtI32
	GtI32
	LeI32
	GeI32
	Not
	Drop
	Dup
	Swap
	Eval
	If
	Brk

	maxIntrinsic
)

var intrinsicNames = [...]string{
	AddI32: "add_i32",
	SubI32: "sub_i32",
	MulI32: "mul_i32",
	DivI32: "div_i32",
	RemI32: "rem_i32",
	EqI32:  "eq_i32",
	NeI32:  "ne_i32",
	LtI32:  "lt_i32",
	GtI32:  "gt_i32",
	LeI32:  "le_i32",
	GeI32:  "ge_i32",
	Not:    "not",
	Drop:   "drop",
	Dup:    "dup",
	Swap:   "swap",
	Eval:   "eval",
	If:     "if",
	Brk:    "brk",
}

func (i Intrinsic) String() string {
	if int(i) < len(intrinsicNames) && intrinsicNames[i] != "" {
		return intrinsicNames[i]
	}
	return "<invalid intrinsic>"
}

// Intrinsics maps surface-syntax names to the Intrinsic they denote. It is
// the "fixed table provided by the host platform" referenced by spec.md
// §4.3 step 2.
var Intrinsics = func() map[string]Intrinsic {
	m := make(map[string]Intrinsic, len(intrinsicNames))
	for i, name := range intrinsicNames {
		if name != "" {
			m[name] = Intrinsic(i)
		}
	}
	return m
}()

// Kind discriminates the Fragment sum type (spec.md §3).
type Kind uint8

//nolint:revive
const (
	Binding Kind = iota
	CallToHostFunction
	CallToIntrinsicFunction
	CallToUserDefinedFunction
	CallToUserDefinedFunctionRecursive
	Comment
	LiteralFunction
	LiteralValue
	UnresolvedIdentifier
)

func (k Kind) String() string {
	switch k {
	case Binding:
		return "Binding"
	case CallToHostFunction:
		return "CallToHostFunction"
	case CallToIntrinsicFunction:
		return "CallToIntrinsicFunction"
	case CallToUserDefinedFunction:
		return "CallToUserDefinedFunction"
	case CallToUserDefinedFunctionRecursive:
		return "CallToUserDefinedFunctionRecursive"
	case Comment:
		return "Comment"
	case LiteralFunction:
		return "LiteralFunction"
	case LiteralValue:
		return "LiteralValue"
	case UnresolvedIdentifier:
		return "UnresolvedIdentifier"
	default:
		return "<invalid fragment kind>"
	}
}

// Fragment is one IR expression. Only the fields relevant to Kind are
// meaningful; see the comment next to each field.
type Fragment struct {
	Kind Kind
	Pos  token.Pos // source position, used to build the SourceMap

	// Binding, UnresolvedIdentifier
	Name string

	// Binding: index of the binding in its branch's parameter list
	Index int

	// CallToHostFunction
	EffectNumber uint8

	// CallToIntrinsicFunction, CallToUserDefinedFunction,
	// CallToUserDefinedFunctionRecursive
	IsTail bool

	// CallToIntrinsicFunction
	Intrinsic Intrinsic

	// CallToUserDefinedFunction
	CalleeHash Hash

	// CallToUserDefinedFunctionRecursive
	ClusterLocalIndex int

	// Comment
	Text string

	// LiteralFunction
	Function *Function

	// LiteralValue
	Value int32

	// UnresolvedIdentifier: true once resolution has determined this name
	// denotes a known user-defined function (spec.md §4.3 resolution order,
	// step 4: "recursion_hint = Some(unresolved)").
	RecursionHint bool

	// IsTailPosition marks the last expression of a branch body (spec.md
	// §4.5 / C8). Distinct from IsTail, which marks a *call* fragment as
	// being compiled with tail-call semantics; IsTailPosition can be set on
	// any non-Comment fragment kind (including LiteralValue) so that the C8
	// pass can find "the last expression" uniformly before deciding whether
	// it is also a call worth marking IsTail. The parser skips trailing
	// Comment fragments and marks the last real expression instead.
	IsTailPosition bool
}

// Pattern is one parameter pattern in a Branch (spec.md §3 "Branch").
type Pattern struct {
	IsLiteral bool
	Name      string // set when !IsLiteral
	Value     int32  // set when IsLiteral
	Pos       token.Pos
}

// Branch is one clause of a function.
type Branch struct {
	Patterns []Pattern
	Body     []*Fragment
}

// Function is a capi function: either a top-level named function's
// implementation, or an anonymous function introduced by a LiteralFunction
// fragment (spec.md §3 "NamedFunction", "Function").
type Function struct {
	// Branches are ordered; dispatch tries them in this order (spec.md §9
	// Open Question (a): first-declared wins).
	Branches []Branch

	// Environment is the set of free variable names this function captures
	// from an enclosing function (spec.md §4.3 resolution order, step 1).
	// Kept sorted for determinism (hash stability, and deterministic
	// MakeClosure.env iteration order).
	Environment []string

	// IndexInCluster is set by the cluster builder (C7): the function's
	// position within its strongly-connected-component cluster. Nil until
	// clustering has run.
	IndexInCluster *int
}

// NamedFunction is a top-level function declaration.
type NamedFunction struct {
	Name  string
	Inner *Function
}
