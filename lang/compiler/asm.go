package compiler

import (
	"fmt"
	"strings"

	"github.com/artisdom/caterpillar/lang/isa"
)

// Dasm renders a compiled instruction sequence as human-readable text, one
// instruction per line prefixed by its address - grounded on nenuphar's
// lang/compiler/asm.go disassembler, supporting the same workflow (inspect
// compiled output in tests and in the capi CLI's compile subcommand without
// reaching for a debugger).
func Dasm(instrs []isa.Instruction) string {
	var b strings.Builder
	for addr, ins := range instrs {
		fmt.Fprintf(&b, "%04d  %s\n", addr, dasmOne(ins))
	}
	return b.String()
}

func dasmOne(ins isa.Instruction) string {
	switch ins.Op {
	case isa.BindingEvaluate:
		return fmt.Sprintf("binding_evaluate %s", ins.Name)
	case isa.BindingsDefine:
		return fmt.Sprintf("bindings_define %s", strings.Join(ins.Names, " "))
	case isa.CallBuiltin:
		return fmt.Sprintf("call_builtin %s", ins.Builtin)
	case isa.CallFunction:
		tail := ""
		if ins.IsTail {
			tail = " tail"
		}
		return fmt.Sprintf("call_function %d%s", ins.Address, tail)
	case isa.MakeClosure:
		return fmt.Sprintf("make_closure %d [%s]", ins.Address, strings.Join(ins.Names, " "))
	case isa.Push:
		return fmt.Sprintf("push %d", ins.Value)
	case isa.Return:
		return "return"
	case isa.ReturnIfZero:
		return "return_if_zero"
	case isa.ReturnIfNonZero:
		return "return_if_nonzero"
	case isa.TriggerEffect:
		return fmt.Sprintf("trigger_effect %s", ins.Effect)
	case isa.Jmp:
		return fmt.Sprintf("jmp %d", ins.Address)
	case isa.CondJmpZero:
		return fmt.Sprintf("cond_jmp_zero %d", ins.Address)
	case isa.PeekAt:
		return fmt.Sprintf("peek_at %d", ins.Value)
	default:
		return "nop"
	}
}
