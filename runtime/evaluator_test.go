package runtime

import (
	"testing"

	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/isa"
)

func newEval(instr []isa.Instruction, sm *isa.SourceMap, entry uint32) *Evaluator {
	e := NewEvaluator(instr, sm)
	if err := e.Stack.Push(entry, nil); err != nil {
		panic(err)
	}
	return e
}

func runUntilStuck(e *Evaluator, maxSteps int) {
	for i := 0; i < maxSteps; i++ {
		if !e.Step() {
			return
		}
		if !e.Effects.Empty() {
			return
		}
	}
}

func TestPeekAtReadsOperandByDepthNotAlwaysTop(t *testing.T) {
	instr := []isa.Instruction{
		{Op: isa.PeekAt, Value: 1},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	e := NewEvaluator(instr, sm)
	if err := e.Stack.Push(0, []int32{5, 0}); err != nil {
		t.Fatalf("push: %v", err)
	}
	frame := e.Stack.Top()
	runUntilStuck(e, 10)

	if !e.Effects.Empty() {
		t.Fatalf("unexpected effect: %v", e.Effects)
	}
	// operands were [5, 0] (5 deepest, 0 on top); depth 1 is the argument
	// below the top, i.e. 5, not the top (0).
	if len(frame.Operands) != 3 || frame.Operands[2] != 5 {
		t.Fatalf("expected peek_at 1 to copy 5, got %v", frame.Operands)
	}
}

func TestPushAndArithmeticProducesResult(t *testing.T) {
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 2},
		{Op: isa.Push, Value: 3},
		{Op: isa.CallBuiltin, Builtin: fragment.AddI32},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	e := newEval(instr, sm, 0)
	runUntilStuck(e, 10)

	if !e.Effects.Empty() {
		eff, _ := e.Effects.Peek()
		t.Fatalf("unexpected effect: %v", eff)
	}
	if e.Stack.Depth() != 0 {
		t.Fatalf("expected frame to have returned, depth=%d", e.Stack.Depth())
	}
}

func TestDivideByZeroEnqueuesEffect(t *testing.T) {
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 1},
		{Op: isa.Push, Value: 0},
		{Op: isa.CallBuiltin, Builtin: fragment.DivI32},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	e := newEval(instr, sm, 0)
	runUntilStuck(e, 10)

	eff, ok := e.Effects.Peek()
	if !ok || eff.Kind != isa.DivideByZero {
		t.Fatalf("expected divide_by_zero effect, got %v ok=%v", eff, ok)
	}
}

func TestIntegerOverflowEnqueuesEffect(t *testing.T) {
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 2147483647},
		{Op: isa.Push, Value: 1},
		{Op: isa.CallBuiltin, Builtin: fragment.AddI32},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	e := newEval(instr, sm, 0)
	runUntilStuck(e, 10)

	eff, ok := e.Effects.Peek()
	if !ok || eff.Kind != isa.IntegerOverflow {
		t.Fatalf("expected integer_overflow effect, got %v ok=%v", eff, ok)
	}
}

// TestCallFunctionMarshalsArityFromSourceMap verifies CallFunction carries
// exactly the callee's declared arity of operands into the new frame,
// preserving their order.
func TestCallFunctionMarshalsArityFromSourceMap(t *testing.T) {
	// callee (entry=4): binds two names, subtracts second from first, returns.
	calleeEntry := uint32(4)
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 10},
		{Op: isa.Push, Value: 3},
		{Op: isa.CallFunction, Address: calleeEntry},
		{Op: isa.Return},
		{Op: isa.BindingsDefine, Names: []string{"a", "b"}},
		{Op: isa.BindingEvaluate, Name: "a"},
		{Op: isa.BindingEvaluate, Name: "b"},
		{Op: isa.CallBuiltin, Builtin: fragment.SubI32},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	sm.ArityAt[calleeEntry] = 2

	e := newEval(instr, sm, 0)
	runUntilStuck(e, 20)

	if !e.Effects.Empty() {
		eff, _ := e.Effects.Peek()
		t.Fatalf("unexpected effect: %v", eff)
	}
	if e.Stack.Depth() != 0 {
		t.Fatalf("expected full unwind, depth=%d", e.Stack.Depth())
	}
}

func TestTailCallReplacesFrameNotPushes(t *testing.T) {
	calleeEntry := uint32(2)
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 1},
		{Op: isa.CallFunction, Address: calleeEntry, IsTail: true},
		{Op: isa.BindingsDefine, Names: []string{"x"}},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	sm.ArityAt[calleeEntry] = 1

	e := newEval(instr, sm, 0)
	e.Step() // push
	depthBefore := e.Stack.Depth()
	e.Step() // tail call
	if e.Stack.Depth() != depthBefore {
		t.Fatalf("tail call changed depth: before=%d after=%d", depthBefore, e.Stack.Depth())
	}
}

func TestMakeClosureAndEvalRunsCapturedFunction(t *testing.T) {
	closureEntry := uint32(3)
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 41},
		{Op: isa.BindingsDefine, Names: []string{"n"}},
		{Op: isa.MakeClosure, Address: closureEntry, Names: []string{"n"}},
		{Op: isa.CallBuiltin, Builtin: fragment.Eval},
		{Op: isa.Return},
		// closure body at address 5: n + 1
		{Op: isa.BindingEvaluate, Name: "n"},
		{Op: isa.Push, Value: 1},
		{Op: isa.CallBuiltin, Builtin: fragment.AddI32},
		{Op: isa.Return},
	}
	// fix closure entry to point at address 5 (after Return placeholder)
	instr[2].Address = 5
	sm := isa.NewSourceMap()
	sm.ArityAt[5] = 0

	e := newEval(instr, sm, 0)
	runUntilStuck(e, 30)

	if !e.Effects.Empty() {
		eff, _ := e.Effects.Peek()
		t.Fatalf("unexpected effect: %v", eff)
	}
}

func TestEvalOnStaleClosureHandleEnqueuesEffect(t *testing.T) {
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 999}, // not a real closure handle
		{Op: isa.CallBuiltin, Builtin: fragment.Eval},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	e := newEval(instr, sm, 0)
	runUntilStuck(e, 10)

	eff, ok := e.Effects.Peek()
	if !ok || eff.Kind != isa.InvalidFunction {
		t.Fatalf("expected invalid_function effect, got %v ok=%v", eff, ok)
	}
}

func TestIfDiscardsUntakenClosure(t *testing.T) {
	thenEntry, elseEntry := uint32(6), uint32(9)
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 1}, // condition: true
		{Op: isa.MakeClosure, Address: thenEntry},
		{Op: isa.MakeClosure, Address: elseEntry},
		{Op: isa.CallBuiltin, Builtin: fragment.If},
		{Op: isa.Return},
		{Op: isa.Nop}, // padding
		// then-branch at 6
		{Op: isa.Push, Value: 1},
		{Op: isa.Return},
		{Op: isa.Nop},
		// else-branch at 9
		{Op: isa.Push, Value: 0},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	sm.ArityAt[thenEntry] = 0
	sm.ArityAt[elseEntry] = 0

	e := newEval(instr, sm, 0)
	runUntilStuck(e, 30)

	if !e.Effects.Empty() {
		eff, _ := e.Effects.Peek()
		t.Fatalf("unexpected effect: %v", eff)
	}
	if len(e.Stack.Closures) != 0 {
		t.Fatalf("expected both closures consumed, still have %d", len(e.Stack.Closures))
	}
}

func TestBrkTriggersBreakpointEffect(t *testing.T) {
	instr := []isa.Instruction{
		{Op: isa.CallBuiltin, Builtin: fragment.Brk},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	e := newEval(instr, sm, 0)
	e.Step()

	eff, ok := e.Effects.Peek()
	if !ok || eff.Kind != isa.Breakpoint {
		t.Fatalf("expected breakpoint effect, got %v ok=%v", eff, ok)
	}
}

func TestJmpAndCondJmpZeroControlFlow(t *testing.T) {
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 0},
		{Op: isa.CondJmpZero, Address: 4},
		{Op: isa.Push, Value: 111}, // skipped
		{Op: isa.Return},
		{Op: isa.Push, Value: 222}, // landed here
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	e := newEval(instr, sm, 0)
	runUntilStuck(e, 10)

	frame := e.Stack.Top()
	if frame != nil {
		t.Fatalf("expected stack to unwind")
	}
}

func TestRecursionLimitEnqueuesPushStackFrameEffect(t *testing.T) {
	// a function that calls itself non-tail, forever.
	instr := []isa.Instruction{
		{Op: isa.CallFunction, Address: 0},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	sm.ArityAt[0] = 0
	e := newEval(instr, sm, 0)

	for i := 0; i < MaxStackDepth+2; i++ {
		if !e.Effects.Empty() {
			break
		}
		e.Step()
	}

	eff, ok := e.Effects.Peek()
	if !ok || eff.Kind != isa.PushStackFrame {
		t.Fatalf("expected push_stack_frame effect, got %v ok=%v", eff, ok)
	}
}
