package maincmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mna/mainer"

	"github.com/artisdom/caterpillar/engine"
	"github.com/artisdom/caterpillar/host"
	"github.com/artisdom/caterpillar/lang/isa"
	"github.com/artisdom/caterpillar/protocol"
	"github.com/artisdom/caterpillar/runtime"
)

// Repl compiles files[0], embeds an engine.Engine driving it against the
// reference host, and reads debugger commands from a readline-backed
// prompt (spec.md §6's command language, reduced to the minimum
// collaborator interface a terminal front end needs: continue (c),
// clearcontinue, step (alias stepin; both evaluate exactly one
// instruction), stop, break <fn>:<branch>:<expr>, clear
// <fn>:<branch>:<expr>, reset, quit (exit)). There is no step-out command.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, files []string) error {
	if len(files) == 0 {
		return fmt.Errorf("repl: a file must be provided")
	}

	src, err := os.ReadFile(files[0])
	if err != nil {
		return printErr(stdio, err)
	}
	b, err := buildFile(src)
	if err != nil {
		return printErr(stdio, err)
	}
	if _, ok := firstMainEntry(b.Compiled.SourceMap); !ok {
		return printErr(stdio, fmt.Errorf("%s: no main function", files[0]))
	}

	h := host.NewRefHost(stdio.Stdout, stdio.Stdin)
	p := runtime.NewProcess(b.Compiled.Instructions, b.Compiled.SourceMap)

	cmds := make(chan protocol.Command)
	updates := make(chan protocol.Update, 8)
	e := engine.New(protocol.NewSessionID(), p, h, cmds, updates)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(runCtx) }()

	rl, err := readline.New("capi> ")
	if err != nil {
		return printErr(stdio, err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			close(cmds)
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			close(cmds)
			break
		}

		cmd, err := parseReplCommand(line)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			continue
		}
		cmds <- cmd

		select {
		case u := <-updates:
			printUpdate(stdio, u)
		case <-runCtx.Done():
		}
	}

	<-done
	return nil
}

func parseReplCommand(line string) (protocol.Command, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "continue", "c":
		return protocol.Command{Kind: protocol.Continue}, nil
	case "clearcontinue":
		return protocol.Command{Kind: protocol.ClearBreakpointAndContinue}, nil
	case "step", "stepin":
		return protocol.Command{Kind: protocol.ClearBreakpointAndEvaluateNextInstruction}, nil
	case "reset":
		return protocol.Command{Kind: protocol.Reset}, nil
	case "stop":
		return protocol.Command{Kind: protocol.Stop}, nil
	case "break":
		loc, err := parseLocation(fields)
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Command{Kind: protocol.BreakpointSetDurable, Location: loc}, nil
	case "clear":
		loc, err := parseLocation(fields)
		if err != nil {
			return protocol.Command{}, err
		}
		return protocol.Command{Kind: protocol.BreakpointClearDurable, Location: loc}, nil
	default:
		return protocol.Command{}, fmt.Errorf("unknown command: %s", fields[0])
	}
}

// parseLocation parses "break main:0:2" into an isa.ExpressionLocation. The
// func name's NestPath is left empty; nested functions are not addressable
// from the repl's flat command line.
func parseLocation(fields []string) (loc isa.ExpressionLocation, err error) {
	if len(fields) != 2 {
		return loc, fmt.Errorf("usage: %s <func>:<branch>:<expr>", fields[0])
	}
	parts := strings.Split(fields[1], ":")
	if len(parts) != 3 {
		return loc, fmt.Errorf("location must be <func>:<branch>:<expr>")
	}
	branch, err := strconv.Atoi(parts[1])
	if err != nil {
		return loc, fmt.Errorf("invalid branch index: %s", parts[1])
	}
	expr, err := strconv.Atoi(parts[2])
	if err != nil {
		return loc, fmt.Errorf("invalid expression index: %s", parts[2])
	}
	return isa.ExpressionLocation{
		Func:        isa.FuncID{Name: parts[0]},
		BranchIndex: branch,
		ExprIndex:   expr,
	}, nil
}

func printUpdate(stdio mainer.Stdio, u protocol.Update) {
	fmt.Fprintf(stdio.Stdout, "[%s] status=%s\n", u.Session, u.Status)
	for i, f := range u.Stack {
		fmt.Fprintf(stdio.Stdout, "  frame %d: next=%d operands=%v\n", i, f.NextInstr, f.Operands)
	}
	if u.HasEffect {
		fmt.Fprintf(stdio.Stdout, "  effect: %s\n", u.Effect)
	}
}
