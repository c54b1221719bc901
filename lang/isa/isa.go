// Package isa defines capi's flat, addressable instruction set (spec.md §3
// "Instruction (tagged union)", C2) and the bidirectional SourceMap that
// relates instruction addresses back to the expressions and functions that
// produced them.
//
// Instruction mirrors nenuphar's lang/compiler.insn: one flat struct with a
// discriminant (Op) and only the fields relevant to that op, rather than one
// Go type per variant (lang/compiler/compiled.go, lang/compiler/opcode.go).
// Unlike nenuphar's single-operand design (an Opcode plus one uint32 Arg
// resolved against per-function tables), capi's operations need a few
// differently-shaped operands (a name, a set of names, a value), so the
// struct carries them directly - there is no Locals/Names/Constants side
// table to index into, since capi's Value domain has no heap-allocated
// constants worth deduplicating.
package isa

import "github.com/artisdom/caterpillar/lang/fragment"

// Op discriminates an Instruction (spec.md §3).
type Op uint8

//nolint:revive
const (
	Nop Op = iota
	BindingEvaluate
	BindingsDefine
	CallBuiltin
	CallFunction
	MakeClosure
	Push
	Return
	ReturnIfZero
	ReturnIfNonZero
	TriggerEffect

	// Jmp and CondJmpZero are not named in the tagged union's source-level
	// vocabulary; the instruction generator (lang/compiler) uses them
	// privately to express branch-prologue dispatch and to skip over an
	// inline-compiled nested function literal's body. No Fragment ever
	// lowers directly to either: they never appear in a position a
	// debugger needs to attribute to source, and the evaluator treats them
	// exactly like any other instruction for stepping purposes.
	Jmp
	CondJmpZero

	// PeekAt is likewise compiler-internal: it pushes a copy of the operand
	// at Value slots below the current top, without disturbing anything
	// above it. The branch-prologue dispatch a multi-parameter pattern
	// compiles to needs this rather than Dup (which always duplicates the
	// topmost operand) because every parameter's argument sits at its own
	// fixed depth below the top for the whole prologue: comparing pattern
	// pi's literal against the wrong depth silently tests the wrong
	// argument whenever a literal pattern isn't the branch's last
	// parameter.
	PeekAt
)

var opNames = [...]string{
	Nop:             "nop",
	BindingEvaluate: "binding_evaluate",
	BindingsDefine:  "bindings_define",
	CallBuiltin:     "call_builtin",
	CallFunction:    "call_function",
	MakeClosure:     "make_closure",
	Push:            "push",
	Return:          "return",
	ReturnIfZero:    "return_if_zero",
	ReturnIfNonZero: "return_if_nonzero",
	TriggerEffect:   "trigger_effect",
	Jmp:             "jmp",
	CondJmpZero:     "cond_jmp_zero",
	PeekAt:          "peek_at",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return "<invalid op>"
}

// EffectKind identifies the variants of the effects queue (spec.md §7).
type EffectKind uint8

//nolint:revive
const (
	EffectNone EffectKind = iota
	BuildError
	CompilerBug
	IntegerOverflow
	DivideByZero
	NoMatch
	OperandOutOfBounds
	PopOperand
	PushStackFrame
	InvalidFunction
	InvalidHostEffect
	Breakpoint
	Host
)

var effectNames = [...]string{
	BuildError:         "build_error",
	CompilerBug:        "compiler_bug",
	IntegerOverflow:    "integer_overflow",
	DivideByZero:       "divide_by_zero",
	NoMatch:            "no_match",
	OperandOutOfBounds: "operand_out_of_bounds",
	PopOperand:         "pop_operand",
	PushStackFrame:     "push_stack_frame",
	InvalidFunction:    "invalid_function",
	InvalidHostEffect:  "invalid_host_effect",
	Breakpoint:         "breakpoint",
	Host:               "host",
}

func (k EffectKind) String() string {
	if int(k) < len(effectNames) && effectNames[k] != "" {
		return effectNames[k]
	}
	return "<invalid effect>"
}

// Effect is a value enqueued by an instruction that pauses execution pending
// external handling (spec.md §3 "Effects queue", §7).
type Effect struct {
	Kind EffectKind

	// Host: which host function effect number triggered this.
	HostNumber uint8

	// Detail is a human-readable note (which identifier was unresolved,
	// which expression overflowed, ...); not part of any equality check.
	Detail string
}

func (e Effect) String() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

// Instruction is one flat, addressable unit of compiled code (spec.md §3).
type Instruction struct {
	Op Op

	// BindingEvaluate
	Name string

	// BindingsDefine, MakeClosure (captured environment names, in
	// declaration order)
	Names []string

	// CallBuiltin
	Builtin fragment.Intrinsic

	// CallFunction, MakeClosure: target entry address.
	// Jmp, CondJmpZero: target address (compiler-internal, see Op docs).
	Address uint32

	// CallFunction. Also set on a CallBuiltin for the `eval` intrinsic,
	// which - like a user-defined call - reuses the current frame when in
	// tail position (spec.md §4.7 "eval is itself a CallBuiltin that
	// dispatches through the closure heap").
	IsTail bool

	// Push. Also PeekAt, where Value holds the depth (0 = top) of the
	// operand to copy.
	Value int32

	// TriggerEffect
	Effect Effect
}

// FuncID identifies one compiled unit of code: either a top-level named
// function (NestPath empty) or an anonymous function literal nested inside
// one, identified by its position in a pre-order walk of LiteralFunction
// fragments encountered while compiling the owning named function (spec.md
// §4.7 "LiteralFunction{f}: recursively compile f").
//
// NestPath is a "."-joined path (e.g. "0.1"): its last element is the
// literal's pre-order index among all literals of the owning named function,
// prefixed by the enclosing literal's NestPath. It is a string rather
// than a []int so that FuncID stays comparable and usable as a plain map
// key - every map in this package (and runtime's breakpoint sets) is keyed
// on FuncID or a struct embedding it.
type FuncID struct {
	Name     string
	NestPath string
}

// ExpressionLocation identifies one expression's position within a compiled
// function: the branch it appears in, and its index within that branch's
// body (spec.md §6 "a debugger may persist durable breakpoints as
// (function_name, branch_index, expression_index) triples" - generalized
// here with FuncID standing in for function_name so nested anonymous
// functions get addressable locations too).
type ExpressionLocation struct {
	Func        FuncID
	BranchIndex int
	ExprIndex   int
}

// FunctionRange is the inclusive instruction-address span owned by one
// compiled unit (spec.md §3 "SourceMap ... function_location to an
// inclusive [first_addr, last_addr]").
type FunctionRange struct {
	First, Last uint32
}

// SourceMap is the bidirectional map described in spec.md §3: expression to
// instructions (one expression may expand to several instructions),
// instruction to expression (each points back at exactly one), and function
// to its address range.
type SourceMap struct {
	ExprToAddrs map[ExpressionLocation][]uint32
	AddrToExpr  map[uint32]ExpressionLocation
	FuncRanges  map[FuncID]FunctionRange

	// EntryOf records the first instruction address of each compiled unit,
	// the "entry_address" spec.md §4.7 refers to when emitting MakeClosure
	// or patching a recursive-call placeholder.
	EntryOf map[FuncID]uint32

	// ArityAt maps a compiled unit's entry address to its declared
	// parameter count, so the evaluator's CallFunction handling knows how
	// many operands to carry from the caller's operand stack into the
	// callee's fresh one (spec.md §3 "Each frame holds ... operand
	// stack").
	ArityAt map[uint32]int
}

// NewSourceMap returns an empty, ready-to-use SourceMap.
func NewSourceMap() *SourceMap {
	return &SourceMap{
		ExprToAddrs: make(map[ExpressionLocation][]uint32),
		AddrToExpr:  make(map[uint32]ExpressionLocation),
		FuncRanges:  make(map[FuncID]FunctionRange),
		EntryOf:     make(map[FuncID]uint32),
		ArityAt:     make(map[uint32]int),
	}
}

// Record associates addr with loc in both directions (spec.md §8 invariant
// 2, the source-map round-trip law).
func (sm *SourceMap) Record(loc ExpressionLocation, addr uint32) {
	sm.ExprToAddrs[loc] = append(sm.ExprToAddrs[loc], addr)
	sm.AddrToExpr[addr] = loc
}

// InstructionToExpression implements spec.md §3's instruction_address →
// expression_location lookup.
func (sm *SourceMap) InstructionToExpression(addr uint32) (ExpressionLocation, bool) {
	loc, ok := sm.AddrToExpr[addr]
	return loc, ok
}
