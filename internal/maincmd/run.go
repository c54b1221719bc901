package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/artisdom/caterpillar/host"
	"github.com/artisdom/caterpillar/lang/isa"
	"github.com/artisdom/caterpillar/runtime"
)

// Run compiles each file and drives it to completion against the
// reference host, printing the first unhandled non-host effect if the
// program stops for any other reason (spec.md §7 "Host effects are the
// designed rendezvous with the host; other effects are normally fatal to
// the current run").
func (c *Cmd) Run(_ context.Context, stdio mainer.Stdio, files []string) error {
	var failed bool
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}

		b, err := buildFile(src)
		if err != nil {
			failed = true
			printErr(stdio, err)
			continue
		}

		if _, ok := firstMainEntry(b.Compiled.SourceMap); !ok {
			failed = true
			printErr(stdio, fmt.Errorf("%s: no main function", path))
			continue
		}

		h := host.NewRefHost(stdio.Stdout, stdio.Stdin)
		p := runtime.NewProcess(b.Compiled.Instructions, b.Compiled.SourceMap)

		if err := runToCompletion(p, h); err != nil {
			failed = true
			printErr(stdio, fmt.Errorf("%s: %w", path, err))
		}
	}
	if failed {
		return fmt.Errorf("run: one or more files failed")
	}
	return nil
}

// runToCompletion steps p, resolving Host effects against h inline, until
// it Finishes or stops on a non-host effect.
func runToCompletion(p *runtime.Process, h *host.RefHost) error {
	for {
		p.Continue()
		switch p.State {
		case runtime.Finished:
			return nil
		case runtime.Running:
			continue
		case runtime.Stopped:
			if p.LastEffect.Kind != isa.Host {
				return fmt.Errorf("stopped: %s", p.LastEffect)
			}
			if err := resolveHostEffect(p, h); err != nil {
				return err
			}
			p.State = runtime.Running
		}
	}
}

func resolveHostEffect(p *runtime.Process, h *host.RefHost) error {
	frame := p.Eval.Stack.Top()
	if frame == nil {
		return nil
	}
	n := p.LastEffect.HostNumber
	arity := 0
	for _, fn := range h.Functions() {
		if fn.Number == n {
			arity = len(fn.Signature.Inputs)
		}
	}
	args := frame.PopN(arity)
	results, err := h.Handle(n, args)
	if err != nil {
		return err
	}
	for _, r := range results {
		frame.PushOperand(r)
	}
	return nil
}
