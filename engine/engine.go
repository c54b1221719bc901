// Package engine wires runtime.Process into the two-thread model spec.md
// §5 describes: Thread E (this package, driven by Run) consumes
// protocol.Command values and emits protocol.Update snapshots; Thread U is
// whatever caller runs Engine.Run in its own goroutine and owns the command
// channel's sending half (internal/maincmd's repl subcommand, for capi's
// reference front end).
//
// Grounded on nenuphar's lang/machine.Thread for the idea of a steppable
// execution core with a driver wrapped around it, enriched with a real
// second goroutine and channels using golang.org/x/sync/errgroup - capi's
// own §5 requires genuine concurrency that nenuphar's cooperative machine
// package has no equivalent of.
package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/artisdom/caterpillar/host"
	"github.com/artisdom/caterpillar/lang/isa"
	"github.com/artisdom/caterpillar/protocol"
	"github.com/artisdom/caterpillar/runtime"
)

// stepsPerTick bounds how many instructions Run executes between checks of
// the command channel and the update ticker, so a long-running program
// can't starve command processing or snapshot emission (spec.md §5 "loops
// tightly when Running" is read here as "tightly, but still cooperative").
const stepsPerTick = 256

// Engine is one running capi process plus its Thread-E command loop.
type Engine struct {
	ID protocol.SessionID

	Process *runtime.Process
	Host    host.Host

	// SubmitFrameEffect, when HasSubmitFrame is true, names the host effect
	// number that triggers the submit_frame rendezvous (spec.md §5, §9 Open
	// Question (c)) instead of an ordinary Host ABI call. HasSubmitFrame
	// false means "no host function is named submit_frame"; ordinary Host
	// effects are still handled via Host.Handle.
	SubmitFrameEffect uint8
	HasSubmitFrame    bool

	// FrameSubmit is the zero-capacity rendezvous channel between E and U
	// (spec.md §5 "A frame-submit handshake channel ... zero-capacity
	// (rendezvous)"). Run sends on it and blocks for an ack (or a timeout)
	// before resuming.
	FrameSubmit chan struct{}
	FrameAck    chan struct{}

	// FrameSubmitTimeout bounds the rendezvous; New sets it to two seconds
	// (the same default as config.Config.FrameSubmitTimeoutMS, which
	// nothing in this module copies into it).
	FrameSubmitTimeout time.Duration

	// UpdateInterval controls how often Run emits a snapshot while Running.
	UpdateInterval time.Duration

	Commands <-chan protocol.Command
	Updates  chan<- protocol.Update

	version uint64
}

// New builds an Engine around an already-started Process.
func New(id protocol.SessionID, p *runtime.Process, h host.Host, cmds <-chan protocol.Command, updates chan<- protocol.Update) *Engine {
	return &Engine{
		ID:                 id,
		Process:            p,
		Host:               h,
		FrameSubmit:        make(chan struct{}),
		FrameAck:           make(chan struct{}),
		FrameSubmitTimeout: 2 * time.Second,
		UpdateInterval:     16 * time.Millisecond,
		Commands:           cmds,
		Updates:            updates,
	}
}

// Run is Thread E's main loop (spec.md §5). It returns when ctx is
// cancelled or Commands closes (the "dropping commands_U_to_E ... signals
// shutdown" cancellation rule); any in-flight step is always allowed to
// finish first.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(ctx) })
	return g.Wait()
}

func (e *Engine) loop(ctx context.Context) error {
	ticker := time.NewTicker(e.tickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd, ok := <-e.Commands:
			if !ok {
				return nil
			}
			e.apply(cmd)
			e.emit()

		case <-ticker.C:
			if e.Process.State == runtime.Running {
				e.stepBatch()
				e.emit()
			}
		}
	}
}

func (e *Engine) tickInterval() time.Duration {
	if e.UpdateInterval <= 0 {
		return 16 * time.Millisecond
	}
	return e.UpdateInterval
}

// stepBatch advances the process up to stepsPerTick host-resolved rounds,
// stopping early on any breakpoint or non-host effect, and resolves host
// effects inline (spec.md §6 "on that effect the host reads argument
// values ... and issues ClearBreakpointAndContinue").
//
// A TriggerEffect instruction has already executed (and advanced the
// frame's next-instruction pointer past itself) by the time Continue stops
// for it - unlike a breakpoint, which stops *before* its instruction runs -
// so resuming after a host effect only needs State reset to Running, not an
// extra single-step.
func (e *Engine) stepBatch() {
	for i := 0; i < stepsPerTick; i++ {
		e.Process.Continue()
		if e.Process.State != runtime.Stopped || e.Process.LastEffect.Kind != isa.Host {
			return
		}
		e.handleHostEffect()
	}
}

func (e *Engine) handleHostEffect() {
	eff := e.Process.LastEffect
	if e.HasSubmitFrame && eff.HostNumber == e.SubmitFrameEffect {
		e.rendezvous()
		e.Process.State = runtime.Running
		return
	}
	if e.Host == nil {
		return
	}
	frame := e.Process.Eval.Stack.Top()
	if frame == nil {
		return
	}
	n := signatureArity(e.Host, eff.HostNumber)
	args := frame.PopN(n)
	results, err := e.Host.Handle(eff.HostNumber, args)
	if err != nil {
		e.Process.Eval.Effects.Push(isa.Effect{Kind: isa.InvalidHostEffect, Detail: err.Error()})
		e.Process.LastEffect, _ = e.Process.Eval.Effects.Pop()
		return
	}
	for _, r := range results {
		frame.PushOperand(r)
	}
	e.Process.State = runtime.Running
}

func signatureArity(h host.Host, n uint8) int {
	for _, fn := range h.Functions() {
		if fn.Number == n {
			return len(fn.Signature.Inputs)
		}
	}
	return 0
}

// rendezvous implements the frame-submit handshake: block until U
// acknowledges, or FrameSubmitTimeout elapses.
func (e *Engine) rendezvous() {
	timeout := e.FrameSubmitTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	select {
	case e.FrameSubmit <- struct{}{}:
	case <-time.After(timeout):
		return
	}
	select {
	case <-e.FrameAck:
	case <-time.After(timeout):
	}
}

func (e *Engine) apply(cmd protocol.Command) {
	switch cmd.Kind {
	case protocol.UpdateCode:
		old := e.Process.Eval.SourceMap
		runtime.ReAnchor(old, cmd.SourceMap, cmd.Updated, e.Process.Eval.Stack)
		e.Process.Eval.Instructions = cmd.Instructions
		e.Process.Eval.SourceMap = cmd.SourceMap
		e.Process.Breakpoints.Project(cmd.SourceMap)

	case protocol.BreakpointSetDurable:
		e.Process.Breakpoints.SetDurable(cmd.Location, e.Process.Eval.SourceMap)

	case protocol.BreakpointClearDurable:
		e.Process.Breakpoints.ClearDurable(cmd.Location, e.Process.Eval.SourceMap)

	case protocol.Continue:
		if e.Process.State == runtime.Stopped {
			e.Process.State = runtime.Running
		}
		e.stepBatch()

	case protocol.Stop:
		e.Process.Stop()

	case protocol.Reset:
		e.Process.Reset(e.Process.Eval.Instructions, e.Process.Eval.SourceMap)

	case protocol.ClearBreakpointAndContinue:
		e.Process.ClearBreakpointAndContinue()

	case protocol.ClearBreakpointAndEvaluateNextInstruction:
		e.Process.ClearBreakpointAndEvaluateNextInstruction()
	}
}

func (e *Engine) emit() {
	if e.Updates == nil {
		return
	}
	e.version++

	var stack []protocol.FrameSnapshot
	for _, f := range e.Process.Eval.Stack.Frames {
		stack = append(stack, protocol.FrameSnapshot{NextInstr: f.NextInstr, Operands: append([]int32(nil), f.Operands...)})
	}

	status := protocol.StatusRunning
	switch e.Process.State {
	case runtime.Finished:
		status = protocol.StatusFinished
	case runtime.Stopped:
		status = protocol.StatusStopped
	}

	u := protocol.Update{
		Session:   e.ID,
		Version:   e.version,
		Status:    status,
		Stack:     stack,
		HasEffect: e.Process.State == runtime.Stopped,
		Effect:    e.Process.LastEffect,
	}

	select {
	case e.Updates <- u:
	default:
		// naturally flow-controlled (spec.md §5): drop this snapshot rather
		// than block Thread E on a slow consumer.
	}
}
