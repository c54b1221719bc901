// Package protocol defines the tagged-union command and update messages
// that cross Thread U / Thread E's channels (spec.md §6 "External
// interfaces"), plus the session identifiers used to tell independent
// UpdateCode/connect sequences apart.
//
// Grounded on wudi-hey's go.mod choice of github.com/google/uuid for
// generating opaque session/request identifiers, and, for the flat
// discriminated-struct shape, on lang/isa.Instruction and lang/isa.Effect
// in this same module (one Kind field plus only the fields a given Kind
// uses, rather than a Go interface with N implementations).
package protocol

import (
	"github.com/google/uuid"

	"github.com/artisdom/caterpillar/lang/isa"
)

// CommandKind discriminates a Command (spec.md §6 "Command language").
type CommandKind uint8

//nolint:revive
const (
	UpdateCode CommandKind = iota
	BreakpointSetDurable
	BreakpointClearDurable
	Continue
	Stop
	Reset
	ClearBreakpointAndContinue
	ClearBreakpointAndEvaluateNextInstruction
)

func (k CommandKind) String() string {
	switch k {
	case UpdateCode:
		return "UpdateCode"
	case BreakpointSetDurable:
		return "BreakpointSetDurable"
	case BreakpointClearDurable:
		return "BreakpointClearDurable"
	case Continue:
		return "Continue"
	case Stop:
		return "Stop"
	case Reset:
		return "Reset"
	case ClearBreakpointAndContinue:
		return "ClearBreakpointAndContinue"
	case ClearBreakpointAndEvaluateNextInstruction:
		return "ClearBreakpointAndEvaluateNextInstruction"
	default:
		return "<invalid command>"
	}
}

// Command is one message sent on commands_U_to_E (spec.md §6).
type Command struct {
	Kind CommandKind

	// UpdateCode: the newly compiled instruction sequence and its source
	// map (spec.md §6 describes this as a "byte-sequence"; this in-process
	// transport passes the already-decoded artifact directly, since U and E
	// share an address space here - a wire encoding would only be needed to
	// cross a process boundary, which spec.md's scope does not require).
	Instructions []isa.Instruction
	SourceMap    *isa.SourceMap
	Updated      map[string]bool // names of Updated functions, for ReAnchor

	// BreakpointSetDurable, BreakpointClearDurable
	Location isa.ExpressionLocation
}

// SessionID opaquely identifies one Thread-U/Thread-E pairing, so a host
// embedding multiple engines (e.g. several open files) can route updates
// correctly.
type SessionID uuid.UUID

// NewSessionID allocates a fresh random session identifier.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

func (id SessionID) String() string { return uuid.UUID(id).String() }

// UpdateStatus mirrors runtime.State without importing the runtime package,
// keeping protocol free of a dependency on the engine's internals (spec.md
// §6 "whether the process is running/finished/stopped").
type UpdateStatus uint8

//nolint:revive
const (
	StatusRunning UpdateStatus = iota
	StatusFinished
	StatusStopped
)

func (s UpdateStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFinished:
		return "finished"
	case StatusStopped:
		return "stopped"
	default:
		return "<invalid status>"
	}
}

// FrameSnapshot is one call-frame's observable state in an Update (spec.md
// §6 "the current call stack (as a list of instruction addresses and the
// operand contents of each frame)").
type FrameSnapshot struct {
	NextInstr uint32
	Operands  []int32
}

// ActiveFunction mirrors debugger.Entry without importing the debugger
// package (kept free-standing so protocol has no import cycle back into the
// packages that build on top of it).
type ActiveFunction struct {
	IsGap       bool
	Func        isa.FuncID
	BranchIndex int
	ExprIndex   int
}

// Update is one message sent on updates_E_to_U (spec.md §6 "Updates").
// Version increases monotonically per session so a host can detect and
// discard stale/out-of-order deliveries.
type Update struct {
	Session SessionID
	Version uint64

	Status UpdateStatus
	Stack  []FrameSnapshot
	Active []ActiveFunction

	// HasEffect is false when there is nothing pending to show.
	HasEffect bool
	Effect    isa.Effect
}
