package host

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Effect numbers for the reference host's two functions.
const (
	EffectPrint   uint8 = 0
	EffectReadInt uint8 = 1
)

// RefHost is the minimal reference host named by spec.md's own examples of
// out-of-scope host collaborators (a snake-game host, an HTTP server): it
// implements just enough - printing a value, reading one - for cmd/capi's
// run/repl subcommands and the engine's own tests to drive a program to
// completion without a real UI attached.
type RefHost struct {
	Out io.Writer
	In  *bufio.Reader
}

// NewRefHost returns a RefHost writing to out and reading lines from in.
func NewRefHost(out io.Writer, in io.Reader) *RefHost {
	return &RefHost{Out: out, In: bufio.NewReader(in)}
}

func (h *RefHost) Functions() []Function {
	return []Function{
		{Name: "print", Number: EffectPrint, Signature: Signature{Inputs: []ValueType{I32}}},
		{Name: "read_int", Number: EffectReadInt, Signature: Signature{Outputs: []ValueType{I32}}},
	}
}

func (h *RefHost) Handle(n uint8, args []int32) ([]int32, error) {
	switch n {
	case EffectPrint:
		if len(args) != 1 {
			return nil, fmt.Errorf("print: expected 1 argument, got %d", len(args))
		}
		fmt.Fprintln(h.Out, args[0])
		return nil, nil

	case EffectReadInt:
		line, err := h.In.ReadString('\n')
		if err != nil && line == "" {
			return nil, fmt.Errorf("read_int: %w", err)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(line), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("read_int: %w", err)
		}
		return []int32{int32(v)}, nil

	default:
		return nil, ErrUnknownEffect{Number: n}
	}
}
