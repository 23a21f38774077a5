package vm

import (
	"bytes"
	"testing"

	"github.com/chazu/m0/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// asm builds a chunk from raw instructions.
func asm(name string, ins ...bytecode.Instruction) *bytecode.Chunk {
	c := bytecode.NewChunk(name)
	for _, i := range ins {
		c.Code.Emit(i.Op, i.A, i.B, i.C)
	}
	return c
}

func op(o bytecode.Opcode, a, b, c byte) bytecode.Instruction {
	return bytecode.Instruction{Op: o, A: a, B: b, C: c}
}

// newTestInterp links chunks into a fresh registry and returns an
// interpreter whose PRINT output is captured.
func newTestInterp(t *testing.T, chunks ...*bytecode.Chunk) (*Interp, *bytes.Buffer) {
	t.Helper()
	reg := NewRegistry()
	if err := reg.AddAll(chunks); err != nil {
		t.Fatalf("AddAll: %v", err)
	}
	var out bytes.Buffer
	return New(reg, WithStdout(&out)), &out
}

// newTestFrame positions a frame at pc 0 of the named chunk.
func newTestFrame(t *testing.T, in *Interp, name string) *Frame {
	t.Helper()
	f, err := in.NewFrame(name, 0)
	if err != nil {
		t.Fatalf("NewFrame(%q): %v", name, err)
	}
	return f
}

func expectStatus(t *testing.T, r Result, want Status) {
	t.Helper()
	if r.Status != want {
		t.Fatalf("Status = %s, want %s (fault: %v)", r.Status, want, r.Fault)
	}
}

func expectFault(t *testing.T, r Result, want Errno) *Fault {
	t.Helper()
	if r.Status != Faulted {
		t.Fatalf("Status = %s, want faulted", r.Status)
	}
	if r.Fault == nil {
		t.Fatal("Faulted result has no Fault")
	}
	if r.Fault.Errno != want {
		t.Fatalf("Errno = %v, want %v", r.Fault.Errno, want)
	}
	return r.Fault
}
