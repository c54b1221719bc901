package runtime

import (
	"testing"

	"github.com/artisdom/caterpillar/lang/fragment"
	"github.com/artisdom/caterpillar/lang/isa"
)

func simpleProgram() ([]isa.Instruction, *isa.SourceMap) {
	fn := isa.FuncID{Name: "main"}
	loc0 := isa.ExpressionLocation{Func: fn, BranchIndex: 0, ExprIndex: 0}
	loc1 := isa.ExpressionLocation{Func: fn, BranchIndex: 0, ExprIndex: 1}
	instr := []isa.Instruction{
		{Op: isa.Push, Value: 1},
		{Op: isa.Push, Value: 2},
		{Op: isa.CallBuiltin, Builtin: fragment.AddI32},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	sm.Record(loc0, 0)
	sm.Record(loc1, 1)
	sm.FuncRanges[fn] = isa.FunctionRange{First: 0, Last: 3}
	sm.EntryOf[fn] = 0
	return instr, sm
}

func TestContinueRunsToCompletion(t *testing.T) {
	instr, sm := simpleProgram()
	p := NewProcess(instr, sm)
	p.Continue()
	if p.State != Finished {
		t.Fatalf("expected Finished, got %v", p.State)
	}
}

func TestDurableBreakpointStopsWithoutConsuming(t *testing.T) {
	instr, sm := simpleProgram()
	p := NewProcess(instr, sm)
	loc := isa.ExpressionLocation{Func: isa.FuncID{Name: "main"}, BranchIndex: 0, ExprIndex: 0}
	p.Breakpoints.SetDurable(loc, sm)

	p.Continue()
	if p.State != Stopped || p.LastEffect.Kind != isa.Breakpoint {
		t.Fatalf("expected Stopped/breakpoint, got state=%v effect=%v", p.State, p.LastEffect)
	}

	// visiting again after stepping past and looping back would re-stop;
	// here just confirm the durable set still contains it.
	if !p.Breakpoints.IsDurable(0) {
		t.Fatalf("expected durable breakpoint to remain installed")
	}
}

func TestClearBreakpointAndContinueRunsToCompletion(t *testing.T) {
	instr, sm := simpleProgram()
	p := NewProcess(instr, sm)
	loc := isa.ExpressionLocation{Func: isa.FuncID{Name: "main"}, BranchIndex: 0, ExprIndex: 0}
	p.Breakpoints.SetDurable(loc, sm)

	p.Continue()
	if p.State != Stopped {
		t.Fatalf("expected initial stop")
	}
	p.ClearBreakpointAndContinue()
	if p.State != Finished {
		t.Fatalf("expected Finished after clearing, got %v", p.State)
	}
}

func TestEphemeralBreakpointIsConsumedOnHit(t *testing.T) {
	instr, sm := simpleProgram()
	p := NewProcess(instr, sm)
	p.Breakpoints.SetEphemeral(2)

	p.Continue()
	if p.State != Stopped {
		t.Fatalf("expected stop at ephemeral breakpoint")
	}
	if p.Breakpoints.IsEphemeral(2) {
		t.Fatalf("expected ephemeral breakpoint consumed")
	}
}

func TestResetPreservesDurableDropsEphemeral(t *testing.T) {
	instr, sm := simpleProgram()
	p := NewProcess(instr, sm)
	loc := isa.ExpressionLocation{Func: isa.FuncID{Name: "main"}, BranchIndex: 0, ExprIndex: 0}
	p.Breakpoints.SetDurable(loc, sm)
	p.Breakpoints.SetEphemeral(2)

	p.Reset(instr, sm)

	if !p.Breakpoints.IsDurable(0) {
		t.Fatalf("expected durable breakpoint preserved across reset")
	}
	if p.Breakpoints.IsEphemeral(2) {
		t.Fatalf("expected ephemeral breakpoint dropped across reset")
	}
	if p.State != Running {
		t.Fatalf("expected Running after reset, got %v", p.State)
	}
}

func TestStepOverSkipsNestedCallFrames(t *testing.T) {
	fn := isa.FuncID{Name: "main"}
	helper := isa.FuncID{Name: "helper"}
	loc0 := isa.ExpressionLocation{Func: fn, BranchIndex: 0, ExprIndex: 0}
	loc1 := isa.ExpressionLocation{Func: fn, BranchIndex: 0, ExprIndex: 1}

	instr := []isa.Instruction{
		{Op: isa.CallFunction, Address: 3}, // call helper, non-tail
		{Op: isa.Push, Value: 7},
		{Op: isa.Return},
		// helper at 3
		{Op: isa.Push, Value: 1},
		{Op: isa.Return},
	}
	sm := isa.NewSourceMap()
	sm.ArityAt[3] = 0
	sm.Record(loc0, 0)
	sm.Record(loc1, 1)
	sm.FuncRanges[fn] = isa.FunctionRange{First: 0, Last: 2}
	sm.EntryOf[fn] = 0
	sm.FuncRanges[helper] = isa.FunctionRange{First: 3, Last: 4}
	sm.EntryOf[helper] = 3

	p := NewProcess(instr, sm)
	p.StepOver()
	if p.State != Running {
		t.Fatalf("expected still Running after step-over, got %v", p.State)
	}
	if p.Eval.Stack.Depth() != 1 {
		t.Fatalf("expected to be back at depth 1 after stepping over the call, got %d", p.Eval.Stack.Depth())
	}
}
