package runtime

import "github.com/artisdom/caterpillar/lang/isa"

// State reports why a Process is not currently running (spec.md §4.9, C12).
type State uint8

//nolint:revive
const (
	Running State = iota
	Finished
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Stopped:
		return "stopped"
	default:
		return "<invalid state>"
	}
}

// Process wraps an Evaluator with the stepping policies and breakpoint
// handling described in spec.md §4.9: durable breakpoints pause execution
// without consuming themselves, ephemeral ones are single-shot, and "step
// in"/"step over"/"step out" single-step instructions, tracking stack depth
// and the source map, until they land; they arm no breakpoints.
//
// Grounded on nenuphar's lang/machine.Thread's Run/Step split (a driver
// layered over a bare single-step core), adapted with capi's two breakpoint
// kinds and the comment-skipping walk spec.md §4.9 calls for.
type Process struct {
	Eval        *Evaluator
	Breakpoints *Breakpoints
	State       State
	LastEffect  isa.Effect
}

// NewProcess starts a fresh process at the compiled program's entry
// instruction (address 0 - the placeholder/real call to main).
func NewProcess(instr []isa.Instruction, sm *isa.SourceMap) *Process {
	ev := NewEvaluator(instr, sm)
	_ = ev.Stack.Push(0, nil)
	return &Process{Eval: ev, Breakpoints: NewBreakpoints(), State: Running}
}

// Continue runs instructions until the stack empties (Finished), an effect
// is enqueued (Stopped), or a durable/ephemeral breakpoint is hit at the
// instruction about to execute (Stopped with a Breakpoint effect).
func (p *Process) Continue() {
	if p.State != Running {
		return
	}
	for {
		frame := p.Eval.Stack.Top()
		if frame == nil {
			p.State = Finished
			return
		}
		if p.checkBreakpoint(frame.NextInstr) {
			return
		}
		if !p.Eval.Step() {
			p.State = Finished
			return
		}
		if !p.Eval.Effects.Empty() {
			eff, _ := p.Eval.Effects.Pop()
			p.LastEffect = eff
			p.State = Stopped
			return
		}
	}
}

// checkBreakpoint stops the process if addr carries an armed breakpoint,
// consuming it if ephemeral. Returns true if it stopped.
func (p *Process) checkBreakpoint(addr uint32) bool {
	if p.Breakpoints.IsEphemeral(addr) {
		p.Breakpoints.ClearEphemeral(addr)
		p.LastEffect = isa.Effect{Kind: isa.Breakpoint}
		p.State = Stopped
		return true
	}
	if p.Breakpoints.IsDurable(addr) {
		p.LastEffect = isa.Effect{Kind: isa.Breakpoint}
		p.State = Stopped
		return true
	}
	return false
}

// StepSingleInstruction executes exactly one instruction regardless of
// breakpoints, used by ClearBreakpointAndEvaluateNextInstruction (spec.md
// §4.9: step past a durable breakpoint currently halting the process without
// disturbing it for future visits).
func (p *Process) StepSingleInstruction() {
	if p.State == Finished {
		return
	}
	if !p.Eval.Step() {
		p.State = Finished
		return
	}
	if !p.Eval.Effects.Empty() {
		eff, _ := p.Eval.Effects.Pop()
		p.LastEffect = eff
		p.State = Stopped
		return
	}
	p.State = Running
}

// ClearBreakpointAndEvaluateNextInstruction steps exactly one instruction
// past a durable breakpoint currently stopping the process, without
// uninstalling it: a later visit to the same address stops again (spec.md
// §4.9).
func (p *Process) ClearBreakpointAndEvaluateNextInstruction() {
	p.StepSingleInstruction()
}

// ClearBreakpointAndContinue steps once past the current durable breakpoint,
// then resumes normal Continue semantics (spec.md §4.9).
func (p *Process) ClearBreakpointAndContinue() {
	p.StepSingleInstruction()
	if p.State == Running {
		p.Continue()
	}
}

// StepIn executes exactly one source-level expression: it single-steps
// instructions until the instruction about to run maps to a new, non-Comment
// ExpressionLocation different from the one it started in (or the stack
// empties). Comments never appear in the source map, so stepping can only
// ever land on a real expression (spec.md §4.9 "Step in").
func (p *Process) StepIn() {
	if p.State != Running {
		return
	}
	startLoc, hadLoc := p.currentLocation()
	for {
		if !p.Eval.Step() {
			p.State = Finished
			return
		}
		if !p.Eval.Effects.Empty() {
			eff, _ := p.Eval.Effects.Pop()
			p.LastEffect = eff
			p.State = Stopped
			return
		}
		frame := p.Eval.Stack.Top()
		if frame == nil {
			p.State = Finished
			return
		}
		loc, ok := p.Eval.SourceMap.InstructionToExpression(frame.NextInstr)
		if !ok {
			continue
		}
		if !hadLoc || loc != startLoc {
			return
		}
	}
}

// StepOver behaves like StepIn, except a call that begins a new, deeper
// frame is allowed to run to completion (back to the current depth) before
// the step is considered to have landed (spec.md §4.9 "Step over").
func (p *Process) StepOver() {
	if p.State != Running {
		return
	}
	startDepth := p.Eval.Stack.Depth()
	startLoc, hadLoc := p.currentLocation()
	for {
		if !p.Eval.Step() {
			p.State = Finished
			return
		}
		if !p.Eval.Effects.Empty() {
			eff, _ := p.Eval.Effects.Pop()
			p.LastEffect = eff
			p.State = Stopped
			return
		}
		frame := p.Eval.Stack.Top()
		if frame == nil {
			p.State = Finished
			return
		}
		if p.Eval.Stack.Depth() > startDepth {
			continue
		}
		loc, ok := p.Eval.SourceMap.InstructionToExpression(frame.NextInstr)
		if !ok {
			continue
		}
		if !hadLoc || loc != startLoc || p.Eval.Stack.Depth() < startDepth {
			return
		}
	}
}

// StepOut runs until the current frame returns to its caller (depth
// decreases below the starting depth), or the process stops for another
// reason (spec.md §4.9 "Step out").
func (p *Process) StepOut() {
	if p.State != Running {
		return
	}
	startDepth := p.Eval.Stack.Depth()
	for {
		if !p.Eval.Step() {
			p.State = Finished
			return
		}
		if !p.Eval.Effects.Empty() {
			eff, _ := p.Eval.Effects.Pop()
			p.LastEffect = eff
			p.State = Stopped
			return
		}
		if p.Eval.Stack.Depth() < startDepth {
			return
		}
	}
}

func (p *Process) currentLocation() (isa.ExpressionLocation, bool) {
	frame := p.Eval.Stack.Top()
	if frame == nil {
		return isa.ExpressionLocation{}, false
	}
	return p.Eval.SourceMap.InstructionToExpression(frame.NextInstr)
}

// Stop halts the process unconditionally and clears LastEffect. While
// Stopped, Continue, StepIn, StepOver and StepOut do nothing;
// StepSingleInstruction (and so both ClearBreakpoint* methods) still
// executes, as does Reset.
func (p *Process) Stop() {
	p.State = Stopped
	p.LastEffect = isa.Effect{}
}

// Reset restarts execution at main's entry, preserving durable breakpoints
// and dropping ephemeral ones (spec.md §4.9 "Reset", §8 invariant 5).
func (p *Process) Reset(instr []isa.Instruction, sm *isa.SourceMap) {
	p.Eval = NewEvaluator(instr, sm)
	_ = p.Eval.Stack.Push(0, nil)
	p.Breakpoints.Reset()
	p.Breakpoints.Project(sm)
	p.State = Running
	p.LastEffect = isa.Effect{}
}
