package bytecode

import "fmt"

// InstructionWidth is the size of every encoded instruction in bytes.
const InstructionWidth = 4

// MaxJumpSlot is the largest instruction slot addressable by a 16-bit immediate.
const MaxJumpSlot = 0xFFFF

// Slot names a machine register. The numbering follows the M0 register
// layout, so a DEREF reference-kind byte of SlotConsts (6) selects the
// current constants segment.
type Slot uint8

const (
	SlotPC     Slot = 2 // Program counter (byte offset into the bytecode segment)
	SlotChunk  Slot = 5 // Current chunk
	SlotConsts Slot = 6 // Current constants segment
	SlotMeta   Slot = 7 // Current metadata segment
	SlotCode   Slot = 8 // Current bytecode segment
)

// String returns the register mnemonic for the slot.
func (s Slot) String() string {
	switch s {
	case SlotPC:
		return "PC"
	case SlotChunk:
		return "CHUNK"
	case SlotConsts:
		return "CONSTS"
	case SlotMeta:
		return "MDS"
	case SlotCode:
		return "BCS"
	default:
		return fmt.Sprintf("SLOT(%d)", uint8(s))
	}
}

// Instruction is one decoded 4-byte instruction: an opcode and three
// operand bytes whose meaning depends on the opcode.
type Instruction struct {
	Op      Opcode
	A, B, C byte
}

// Decode reads the instruction at byte offset pc of code.
// The caller guarantees pc+InstructionWidth <= len(code).
func Decode(code []byte, pc int) Instruction {
	ins := code[pc : pc+InstructionWidth : pc+InstructionWidth]
	return Instruction{Op: Opcode(ins[0]), A: ins[1], B: ins[2], C: ins[3]}
}

// Encode returns the wire form of the instruction.
func (i Instruction) Encode() [InstructionWidth]byte {
	return [InstructionWidth]byte{byte(i.Op), i.A, i.B, i.C}
}

// Imm16 combines two operand bytes into a 16-bit immediate.
func Imm16(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

// SplitImm16 splits a 16-bit immediate into its high and low operand bytes.
func SplitImm16(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// JumpTarget returns the byte offset addressed by a GOTO-style instruction.
func (i Instruction) JumpTarget() uint64 {
	return InstructionWidth * uint64(Imm16(i.A, i.B))
}

// String renders the instruction as "NAME a, b, c" using raw operand values.
func (i Instruction) String() string {
	return fmt.Sprintf("%s %d, %d, %d", i.Op, i.A, i.B, i.C)
}
