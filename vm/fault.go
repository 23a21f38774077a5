package vm

import (
	"fmt"

	"github.com/chazu/m0/pkg/bytecode"
)

// Errno describes the reason for a VM fault.
type Errno int

// List of VM faults
const (
	ErrUnimplemented Errno = iota + 1
	ErrBadRefKind
	ErrNoSuchChunk
	ErrDivideByZero
	ErrByteBounds
	ErrConstBounds
	ErrBadPC
	ErrNoChunk
)

var strErrno = map[Errno]string{
	ErrUnimplemented: "unimplemented op",
	ErrBadRefKind:    "unhandled reference kind",
	ErrNoSuchChunk:   "no such chunk",
	ErrDivideByZero:  "division by zero",
	ErrByteBounds:    "byte offset out of range",
	ErrConstBounds:   "constant offset out of range",
	ErrBadPC:         "misaligned program counter",
	ErrNoChunk:       "frame has no chunk",
}

func (e Errno) Error() string {
	if s, ok := strErrno[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Fault describes the cause and the context of a halted run.
type Fault struct {
	Errno  Errno                // nature of the fault
	Chunk  string               // chunk executing when the fault was raised
	PC     uint64               // program counter of the faulting instruction
	Instr  bytecode.Instruction // the faulting instruction, raw operands included
	Detail string               // extra context, e.g. the missing chunk name
}

func (f *Fault) Error() string {
	msg := fmt.Sprintf("m0: %s: %d (%d, %d, %d)", f.Errno, byte(f.Instr.Op), f.Instr.A, f.Instr.B, f.Instr.C)
	if f.Detail != "" {
		msg += ": " + f.Detail
	}
	return fmt.Sprintf("%s at %s:%d", msg, f.Chunk, f.PC)
}

// Unwrap exposes the Errno so callers can use errors.Is(err, vm.ErrDivideByZero).
func (f *Fault) Unwrap() error {
	return f.Errno
}

// trap is what a handler returns on failure; the dispatch loop fills in
// the location to produce a Fault.
type trap struct {
	errno  Errno
	detail string
}

func (t *trap) Error() string { return t.errno.Error() }

func newTrap(errno Errno, format string, args ...any) *trap {
	return &trap{errno: errno, detail: fmt.Sprintf(format, args...)}
}
