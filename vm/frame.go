package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/m0/pkg/bytecode"
)

// NumRegs is the number of registers in each bank. Every operand byte can
// address any register.
const NumRegs = 256

// Pointer is the content of a pointer register: an opaque host handle.
// DEREF_P stores the bytecode.Constant slot it read.
type Pointer = any

// Frame is the register file for one VM invocation: four independent typed
// banks and the machine registers that locate the current chunk.
//
// A Frame must only be used by one goroutine at a time.
type Frame struct {
	I [NumRegs]int64
	N [NumRegs]float64
	S [NumRegs][]byte
	P [NumRegs]Pointer

	pc     uint64
	chunk  *bytecode.Chunk
	consts *bytecode.Constants
	meta   *bytecode.Metadata
	code   *bytecode.Bytecode

	// jumped is set by handlers that write the pc.
	jumped bool

	// exited and status are set by EXIT.
	exited bool
	status int
}

// NewFrame creates a frame positioned at pc within chunk c. A nil chunk
// yields a frame that faults until Enter is called.
func NewFrame(c *bytecode.Chunk, pc uint64) *Frame {
	f := &Frame{pc: pc}
	if c != nil {
		f.enter(c, pc)
	}
	return f
}

// enter repoints every chunk-context register at c in one step.
func (f *Frame) enter(c *bytecode.Chunk, pc uint64) {
	f.chunk = c
	f.consts = c.Consts
	f.meta = c.Meta
	f.code = c.Code
	f.pc = pc
}

// jump sets the pc and marks the current instruction as a branch.
func (f *Frame) jump(pc uint64) {
	f.pc = pc
	f.jumped = true
}

// PC returns the program counter.
func (f *Frame) PC() uint64 { return f.pc }

// SetPC moves the program counter. It is meant for callers between runs,
// such as a debugger resuming from a corrected state.
func (f *Frame) SetPC(pc uint64) { f.pc = pc }

// Chunk returns the current chunk.
func (f *Frame) Chunk() *bytecode.Chunk { return f.chunk }

// Constants returns the current constants segment.
func (f *Frame) Constants() *bytecode.Constants { return f.consts }

// Metadata returns the current metadata segment.
func (f *Frame) Metadata() *bytecode.Metadata { return f.meta }

// Bytecode returns the current bytecode segment.
func (f *Frame) Bytecode() *bytecode.Bytecode { return f.code }

// Enter switches the frame to chunk c at pc, as GOTO_CHUNK does.
func (f *Frame) Enter(c *bytecode.Chunk, pc uint64) error {
	if c == nil {
		return fmt.Errorf("%w: nil chunk", bytecode.ErrIncompleteChunk)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	f.enter(c, pc)
	return nil
}

// ChunkName returns the name of the current chunk, or "" when none is set.
func (f *Frame) ChunkName() string {
	if f.chunk == nil {
		return ""
	}
	return f.chunk.Name
}

// Bank identifies one of the four register banks.
type Bank byte

const (
	BankI Bank = 'I'
	BankN Bank = 'N'
	BankS Bank = 'S'
	BankP Bank = 'P'
)

// RegRef names a register, e.g. "I3" or "S0".
type RegRef struct {
	Bank  Bank
	Index uint8
}

func (r RegRef) String() string {
	return fmt.Sprintf("%c%d", r.Bank, r.Index)
}

// ParseRegRef parses a register name such as "I3", "n0" or "S255".
func ParseRegRef(s string) (RegRef, error) {
	if len(s) < 2 {
		return RegRef{}, fmt.Errorf("invalid register %q", s)
	}
	bank := Bank(strings.ToUpper(s[:1])[0])
	switch bank {
	case BankI, BankN, BankS, BankP:
	default:
		return RegRef{}, fmt.Errorf("invalid register bank in %q", s)
	}
	idx, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil {
		return RegRef{}, fmt.Errorf("invalid register index in %q", s)
	}
	return RegRef{Bank: bank, Index: uint8(idx)}, nil
}

// Format renders the value held by a register.
func (f *Frame) Format(r RegRef) string {
	switch r.Bank {
	case BankI:
		return strconv.FormatInt(f.I[r.Index], 10)
	case BankN:
		return strconv.FormatFloat(f.N[r.Index], 'g', 15, 64)
	case BankS:
		return strconv.Quote(string(f.S[r.Index]))
	case BankP:
		if f.P[r.Index] == nil {
			return "null"
		}
		return fmt.Sprintf("%T(%v)", f.P[r.Index], f.P[r.Index])
	}
	return "?"
}

// Assign parses value and stores it in a register. Pointer registers
// cannot be assigned from text.
func (f *Frame) Assign(r RegRef, value string) error {
	switch r.Bank {
	case BankI:
		v, err := strconv.ParseInt(value, 0, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", r, err)
		}
		f.I[r.Index] = v
	case BankN:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", r, err)
		}
		f.N[r.Index] = v
	case BankS:
		if unq, err := strconv.Unquote(value); err == nil {
			value = unq
		}
		f.S[r.Index] = []byte(value)
	default:
		return fmt.Errorf("%s: pointer registers cannot be assigned", r)
	}
	return nil
}
