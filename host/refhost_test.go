package host

import (
	"bytes"
	"strings"
	"testing"
)

func TestRefHostPrintWritesOperand(t *testing.T) {
	var buf bytes.Buffer
	h := NewRefHost(&buf, strings.NewReader(""))

	if _, err := h.Handle(EffectPrint, []int32{42}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := buf.String(); got != "42\n" {
		t.Fatalf("expected \"42\\n\", got %q", got)
	}
}

func TestRefHostReadIntParsesLine(t *testing.T) {
	h := NewRefHost(&bytes.Buffer{}, strings.NewReader("7\n"))

	out, err := h.Handle(EffectReadInt, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0] != 7 {
		t.Fatalf("expected [7], got %v", out)
	}
}

func TestRefHostUnknownEffectErrors(t *testing.T) {
	h := NewRefHost(&bytes.Buffer{}, strings.NewReader(""))
	if _, err := h.Handle(99, nil); err == nil {
		t.Fatalf("expected error for unknown effect number")
	}
}

func TestHostFunctionMapAdvertisesBothFunctions(t *testing.T) {
	h := NewRefHost(&bytes.Buffer{}, strings.NewReader(""))
	m := HostFunctionMap(h)
	if m["print"] != EffectPrint || m["read_int"] != EffectReadInt {
		t.Fatalf("unexpected function map: %+v", m)
	}
}
