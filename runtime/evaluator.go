package runtime

import (
	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/isa"
)

// Evaluator executes one instruction at a time against a Stack (spec.md
// §4.8, C11). It never unwinds on a program-level problem (overflow,
// underflow, no-match, ...); every such problem is enqueued as an isa.Effect
// instead, matching spec.md §7's propagation policy.
//
// Grounded on nenuphar's lang/machine (thread.go's single fetch-decode-
// execute Run loop, insn.go's per-opcode switch), adapted to capi's flat
// global instruction sequence and per-frame (rather than per-thread) operand
// stacks.
type Evaluator struct {
	Instructions []isa.Instruction
	SourceMap    *isa.SourceMap
	Stack        *Stack
	Effects      *EffectsQueue
}

// NewEvaluator builds an Evaluator over instr/sm, with a fresh stack.
func NewEvaluator(instr []isa.Instruction, sm *isa.SourceMap) *Evaluator {
	return &Evaluator{Instructions: instr, SourceMap: sm, Stack: NewStack(), Effects: &EffectsQueue{}}
}

// Step executes the instruction at the top frame's next-instruction address
// (spec.md §4.8). It returns false if the stack is empty (the process has
// finished: the last frame's Return already popped it).
func (e *Evaluator) Step() bool {
	frame := e.Stack.Top()
	if frame == nil {
		return false
	}

	addr := frame.NextInstr
	frame.NextInstr++

	if int(addr) >= len(e.Instructions) {
		e.Effects.Push(isa.Effect{Kind: isa.InvalidFunction, Detail: "instruction address out of range"})
		return true
	}
	ins := e.Instructions[addr]
	e.execute(frame, ins)
	return true
}

func (e *Evaluator) execute(frame *Frame, ins isa.Instruction) {
	switch ins.Op {
	case isa.Nop:
		// no-op. The process driver steps past a durable breakpoint with
		// StepSingleInstruction and does not rewrite instructions to Nop.

	case isa.BindingEvaluate:
		v, ok := frame.Bindings[ins.Name]
		if !ok {
			e.Effects.Push(isa.Effect{Kind: isa.CompilerBug, Detail: "unbound name " + ins.Name})
			return
		}
		frame.PushOperand(v)

	case isa.BindingsDefine:
		n := len(ins.Names)
		if n > len(frame.Operands) {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "bindings_define"})
			return
		}
		for i := n - 1; i >= 0; i-- {
			v, _ := frame.PopOperand()
			frame.Bindings[ins.Names[i]] = v
		}

	case isa.CallBuiltin:
		e.execBuiltin(frame, ins)

	case isa.CallFunction:
		e.execCall(frame, ins.Address, ins.IsTail)

	case isa.MakeClosure:
		env := make(map[string]int32, len(ins.Names))
		for _, name := range ins.Names {
			v, ok := frame.Bindings[name]
			if !ok {
				e.Effects.Push(isa.Effect{Kind: isa.CompilerBug, Detail: "unbound closure capture " + name})
				return
			}
			env[name] = v
		}
		handle := e.Stack.NewClosure(ins.Address, env)
		frame.PushOperand(int32(handle))

	case isa.Push:
		frame.PushOperand(ins.Value)

	case isa.Return:
		e.Stack.Pop()

	case isa.ReturnIfZero:
		v, ok := frame.PopOperand()
		if !ok {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "return_if_zero"})
			return
		}
		if v == 0 {
			e.Stack.Pop()
		}

	case isa.ReturnIfNonZero:
		v, ok := frame.PopOperand()
		if !ok {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "return_if_nonzero"})
			return
		}
		if v != 0 {
			e.Stack.Pop()
		}

	case isa.TriggerEffect:
		e.Effects.Push(ins.Effect)

	case isa.Jmp:
		frame.NextInstr = ins.Address

	case isa.CondJmpZero:
		v, ok := frame.PopOperand()
		if !ok {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "cond_jmp_zero"})
			return
		}
		if v == 0 {
			frame.NextInstr = ins.Address
		}

	case isa.PeekAt:
		v, ok := frame.PeekAt(int(ins.Value))
		if !ok {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "peek_at"})
			return
		}
		frame.PushOperand(v)
	}
}

// execCall implements CallFunction's transfer of control, including moving
// the callee's declared arity worth of operands from the caller into the
// new frame (spec.md §3 "Each frame holds ... operand stack").
func (e *Evaluator) execCall(frame *Frame, addr uint32, isTail bool) {
	arity := e.SourceMap.ArityAt[addr]
	if arity > len(frame.Operands) {
		e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "call_function arguments"})
		return
	}
	args := frame.PopN(arity)
	if isTail {
		e.Stack.ReplaceTop(addr, args)
		return
	}
	if err := e.Stack.Push(addr, args); err != nil {
		e.Effects.Push(isa.Effect{Kind: isa.PushStackFrame, Detail: err.Error()})
	}
}

func (e *Evaluator) execBuiltin(frame *Frame, ins isa.Instruction) {
	switch ins.Builtin {
	case fragment.AddI32, fragment.SubI32, fragment.MulI32, fragment.DivI32, fragment.RemI32:
		e.execArith(frame, ins.Builtin)
	case fragment.EqI32, fragment.NeI32, fragment.LtI32, fragment.GtI32, fragment.LeI32, fragment.GeI32:
		e.execCompare(frame, ins.Builtin)
	case fragment.Not:
		v, ok := frame.PopOperand()
		if !ok {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "not"})
			return
		}
		if v == 0 {
			frame.PushOperand(1)
		} else {
			frame.PushOperand(0)
		}
	case fragment.Drop:
		if _, ok := frame.PopOperand(); !ok {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "drop"})
		}
	case fragment.Dup:
		v, ok := frame.PeekOperand()
		if !ok {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "dup"})
			return
		}
		frame.PushOperand(v)
	case fragment.Swap:
		b, ok1 := frame.PopOperand()
		a, ok2 := frame.PopOperand()
		if !ok1 || !ok2 {
			e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "swap"})
			return
		}
		frame.PushOperand(b)
		frame.PushOperand(a)
	case fragment.Eval:
		e.execEval(frame, ins.IsTail)
	case fragment.If:
		e.execIf(frame)
	case fragment.Brk:
		e.Effects.Push(isa.Effect{Kind: isa.Breakpoint})
	default:
		e.Effects.Push(isa.Effect{Kind: isa.InvalidFunction, Detail: "unknown builtin"})
	}
}

func (e *Evaluator) execArith(frame *Frame, op fragment.Intrinsic) {
	b, ok1 := frame.PopOperand()
	a, ok2 := frame.PopOperand()
	if !ok1 || !ok2 {
		e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: op.String()})
		return
	}
	var result int64
	switch op {
	case fragment.AddI32:
		result = int64(a) + int64(b)
	case fragment.SubI32:
		result = int64(a) - int64(b)
	case fragment.MulI32:
		result = int64(a) * int64(b)
	case fragment.DivI32:
		if b == 0 {
			e.Effects.Push(isa.Effect{Kind: isa.DivideByZero})
			frame.PushOperand(0)
			return
		}
		result = int64(a) / int64(b)
	case fragment.RemI32:
		if b == 0 {
			e.Effects.Push(isa.Effect{Kind: isa.DivideByZero})
			frame.PushOperand(0)
			return
		}
		result = int64(a) % int64(b)
	}
	if result > int64(1<<31-1) || result < int64(-1<<31) {
		e.Effects.Push(isa.Effect{Kind: isa.IntegerOverflow, Detail: op.String()})
		frame.PushOperand(0)
		return
	}
	frame.PushOperand(int32(result))
}

func (e *Evaluator) execCompare(frame *Frame, op fragment.Intrinsic) {
	b, ok1 := frame.PopOperand()
	a, ok2 := frame.PopOperand()
	if !ok1 || !ok2 {
		e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: op.String()})
		return
	}
	var result bool
	switch op {
	case fragment.EqI32:
		result = a == b
	case fragment.NeI32:
		result = a != b
	case fragment.LtI32:
		result = a < b
	case fragment.GtI32:
		result = a > b
	case fragment.LeI32:
		result = a <= b
	case fragment.GeI32:
		result = a >= b
	}
	if result {
		frame.PushOperand(1)
	} else {
		frame.PushOperand(0)
	}
}

func (e *Evaluator) execEval(frame *Frame, isTail bool) {
	handleVal, ok := frame.PopOperand()
	if !ok {
		e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "eval"})
		return
	}
	closure, ok := e.Stack.TakeClosure(ClosureHandle(handleVal))
	if !ok {
		e.Effects.Push(isa.Effect{Kind: isa.InvalidFunction, Detail: "eval: stale closure handle"})
		return
	}
	arity := e.SourceMap.ArityAt[closure.Address]
	if arity > len(frame.Operands) {
		e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "eval arguments"})
		return
	}
	args := frame.PopN(arity)

	var next *Frame
	if isTail {
		e.Stack.Pop()
		if err := e.Stack.Push(closure.Address, args); err != nil {
			e.Effects.Push(isa.Effect{Kind: isa.PushStackFrame, Detail: err.Error()})
			return
		}
	} else {
		if err := e.Stack.Push(closure.Address, args); err != nil {
			e.Effects.Push(isa.Effect{Kind: isa.PushStackFrame, Detail: err.Error()})
			return
		}
	}
	next = e.Stack.Top()
	for name, v := range closure.Env {
		next.Bindings[name] = v
	}
}

// execIf implements the `if` intrinsic: pop condition, then-closure,
// else-closure; discard the untaken closure from the heap; evaluate the
// taken one exactly like `eval` (spec.md §4.8).
func (e *Evaluator) execIf(frame *Frame) {
	elseHandle, ok1 := frame.PopOperand()
	thenHandle, ok2 := frame.PopOperand()
	cond, ok3 := frame.PopOperand()
	if !ok1 || !ok2 || !ok3 {
		e.Effects.Push(isa.Effect{Kind: isa.OperandOutOfBounds, Detail: "if"})
		return
	}

	taken, discarded := ClosureHandle(thenHandle), ClosureHandle(elseHandle)
	if cond == 0 {
		taken, discarded = discarded, taken
	}
	e.Stack.TakeClosure(discarded)

	frame.PushOperand(int32(taken))
	e.execEval(frame, false)
}
