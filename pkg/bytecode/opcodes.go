package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Control flow (0x00-0x0F)
	// ========================================================================

	OpNoop      Opcode = 0x00 // No operation
	OpGoto      Opcode = 0x01 // pc = 4 * (hi*256 + lo): GOTO <hi> <lo> _
	OpGotoIf    Opcode = 0x02 // GOTO when I[c] != 0: GOTO_IF <hi> <lo> <I>
	OpGotoChunk Opcode = 0x03 // Enter chunk named S[a] at pc I[b]
	OpExit      Opcode = 0x04 // Terminate with status I[a]

	// ========================================================================
	// Integer arithmetic (0x10-0x17)
	// ========================================================================

	OpAddI  Opcode = 0x10 // I[a] = I[b] + I[c]
	OpSubI  Opcode = 0x11 // I[a] = I[b] - I[c]
	OpMultI Opcode = 0x12 // I[a] = I[b] * I[c]
	OpDivI  Opcode = 0x13 // I[a] = I[b] / I[c], faults on zero divisor
	OpModI  Opcode = 0x14 // I[a] = I[b] % I[c], faults on zero divisor

	// ========================================================================
	// Float arithmetic (0x18-0x1F)
	// ========================================================================

	OpAddN  Opcode = 0x18 // N[a] = N[b] + N[c]
	OpSubN  Opcode = 0x19 // N[a] = N[b] - N[c]
	OpMultN Opcode = 0x1A // N[a] = N[b] * N[c]
	OpDivN  Opcode = 0x1B // N[a] = N[b] / N[c] (IEEE semantics)
	OpModN  Opcode = 0x1C // N[a] = fmod(N[b], N[c])

	// ========================================================================
	// Bitwise (0x20-0x27)
	// ========================================================================

	OpAnd  Opcode = 0x20 // I[a] = I[b] & I[c]
	OpOr   Opcode = 0x21 // I[a] = I[b] | I[c]
	OpXor  Opcode = 0x22 // I[a] = I[b] ^ I[c]
	OpLshr Opcode = 0x23 // I[a] = uint(I[b]) >> I[c]
	OpAshr Opcode = 0x24 // I[a] = I[b] >> I[c]
	OpShl  Opcode = 0x25 // I[a] = I[b] << I[c]

	// ========================================================================
	// Conversion (0x28-0x2F)
	// ========================================================================

	OpIToN Opcode = 0x28 // N[a] = float(I[b])
	OpNToI Opcode = 0x29 // I[a] = int(N[b])

	// ========================================================================
	// Register set (0x30-0x37)
	// ========================================================================

	OpSetImm Opcode = 0x30 // I[a] = hi*256 + lo: SET_IMM <I> <hi> <lo>
	OpSetRef Opcode = 0x31 // Reserved, always faults
	OpSetI   Opcode = 0x32 // I[a] = I[b]
	OpSetN   Opcode = 0x33 // N[a] = N[b]
	OpSetS   Opcode = 0x34 // S[a] = S[b]
	OpSetP   Opcode = 0x35 // P[a] = P[b]

	// ========================================================================
	// Dereference (0x38-0x3F)
	// ========================================================================

	OpDerefI Opcode = 0x38 // I[a] = consts[I[c]] as int: DEREF_I <I> <ref> <I>
	OpDerefN Opcode = 0x39 // N[a] = consts[I[c]] as float
	OpDerefS Opcode = 0x3A // S[a] = consts[I[c]] as string
	OpDerefP Opcode = 0x3B // P[a] = consts[I[c]] as pointer

	// ========================================================================
	// Byte memory (0x40-0x47)
	// ========================================================================

	OpSetByte Opcode = 0x40 // S[a][I[b]] = S[c][0]
	OpGetByte Opcode = 0x41 // I[a] = S[c][I[b]]

	// ========================================================================
	// Output (0x48-0x4F)
	// ========================================================================

	OpPrintS Opcode = 0x48 // Write S[b] to stdout
	OpPrintI Opcode = 0x49 // Write I[b] to stdout as decimal
	OpPrintN Opcode = 0x4A // Write N[b] to stdout with 15 significant digits
)

// OperandKind describes how one operand byte of an instruction is read.
type OperandKind uint8

const (
	OperandUnused  OperandKind = iota // Ignored by the handler
	OperandIReg                       // Integer register index
	OperandNReg                       // Float register index
	OperandSReg                       // String register index
	OperandPReg                       // Pointer register index
	OperandImmHi                      // High byte of a 16-bit immediate
	OperandImmLo                      // Low byte of a 16-bit immediate
	OperandRefKind                    // Machine-register slot naming a segment
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name     string         // Human-readable name
	Operands [3]OperandKind // How operands a, b and c are interpreted
}

var (
	iii = [3]OperandKind{OperandIReg, OperandIReg, OperandIReg}
	nnn = [3]OperandKind{OperandNReg, OperandNReg, OperandNReg}
)

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Control flow
	OpNoop:      {"NOOP", [3]OperandKind{}},
	OpGoto:      {"GOTO", [3]OperandKind{OperandImmHi, OperandImmLo, OperandUnused}},
	OpGotoIf:    {"GOTO_IF", [3]OperandKind{OperandImmHi, OperandImmLo, OperandIReg}},
	OpGotoChunk: {"GOTO_CHUNK", [3]OperandKind{OperandSReg, OperandIReg, OperandUnused}},
	OpExit:      {"EXIT", [3]OperandKind{OperandIReg, OperandUnused, OperandUnused}},

	// Integer arithmetic
	OpAddI:  {"ADD_I", iii},
	OpSubI:  {"SUB_I", iii},
	OpMultI: {"MULT_I", iii},
	OpDivI:  {"DIV_I", iii},
	OpModI:  {"MOD_I", iii},

	// Float arithmetic
	OpAddN:  {"ADD_N", nnn},
	OpSubN:  {"SUB_N", nnn},
	OpMultN: {"MULT_N", nnn},
	OpDivN:  {"DIV_N", nnn},
	OpModN:  {"MOD_N", nnn},

	// Bitwise
	OpAnd:  {"AND", iii},
	OpOr:   {"OR", iii},
	OpXor:  {"XOR", iii},
	OpLshr: {"LSHR", iii},
	OpAshr: {"ASHR", iii},
	OpShl:  {"SHL", iii},

	// Conversion
	OpIToN: {"ITON", [3]OperandKind{OperandNReg, OperandIReg, OperandUnused}},
	OpNToI: {"NTOI", [3]OperandKind{OperandIReg, OperandNReg, OperandUnused}},

	// Register set
	OpSetImm: {"SET_IMM", [3]OperandKind{OperandIReg, OperandImmHi, OperandImmLo}},
	OpSetRef: {"SET_REF", [3]OperandKind{OperandIReg, OperandImmHi, OperandImmLo}},
	OpSetI:   {"SET_I", [3]OperandKind{OperandIReg, OperandIReg, OperandUnused}},
	OpSetN:   {"SET_N", [3]OperandKind{OperandNReg, OperandNReg, OperandUnused}},
	OpSetS:   {"SET_S", [3]OperandKind{OperandSReg, OperandSReg, OperandUnused}},
	OpSetP:   {"SET_P", [3]OperandKind{OperandPReg, OperandPReg, OperandUnused}},

	// Dereference
	OpDerefI: {"DEREF_I", [3]OperandKind{OperandIReg, OperandRefKind, OperandIReg}},
	OpDerefN: {"DEREF_N", [3]OperandKind{OperandNReg, OperandRefKind, OperandIReg}},
	OpDerefS: {"DEREF_S", [3]OperandKind{OperandSReg, OperandRefKind, OperandIReg}},
	OpDerefP: {"DEREF_P", [3]OperandKind{OperandPReg, OperandRefKind, OperandIReg}},

	// Byte memory
	OpSetByte: {"SET_BYTE", [3]OperandKind{OperandSReg, OperandIReg, OperandSReg}},
	OpGetByte: {"GET_BYTE", [3]OperandKind{OperandIReg, OperandIReg, OperandSReg}},

	// Output
	OpPrintS: {"PRINT_S", [3]OperandKind{OperandUnused, OperandSReg, OperandUnused}},
	OpPrintI: {"PRINT_I", [3]OperandKind{OperandUnused, OperandIReg, OperandUnused}},
	OpPrintN: {"PRINT_N", [3]OperandKind{OperandUnused, OperandNReg, OperandUnused}},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN(0xNN)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Known reports whether op is part of the instruction set.
func (op Opcode) Known() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// IsJump returns true if this opcode may redirect the program counter.
func (op Opcode) IsJump() bool {
	return op == OpGoto || op == OpGotoIf || op == OpGotoChunk
}

// LookupOpcode finds an opcode by its mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	for op, info := range opcodeInfoTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
