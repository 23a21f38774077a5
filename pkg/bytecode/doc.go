// Package bytecode defines the m0 instruction set and the chunk format the
// register VM executes.
//
// The bytecode format is designed for:
//   - Fixed-width decoding (every instruction is exactly 4 bytes)
//   - Explicit register typing (each operand names a register in one bank)
//   - Independently loadable units that can jump into one another by name
//
// # Instruction Encoding
//
// Byte 0 of an instruction is the opcode; bytes 1-3 are operands a, b and c.
// Depending on the opcode an operand is a register index into the integer
// (I), float (N), string (S) or pointer (P) bank, an 8-bit immediate, a
// machine-register slot, or one half of a 16-bit immediate combined as
// hi*256+lo. GOTO and GOTO_IF address instruction slots, so the byte offset
// they jump to is 4 times the immediate.
//
// # Chunks
//
// A Chunk carries three segments:
//
//   - Bytecode: the encoded instructions plus the count of executable
//     instructions, which bounds execution
//
//   - Constants: untyped slots. The dereferencing opcode decides whether a
//     slot is read as an integer, a float, a string or a pointer; nothing in
//     the slot records which
//
//   - Metadata: annotations keyed by bytecode offset, carried for tools and
//     never interpreted by the VM
//
// Chunks are stored in CBOR images ("M0IM") holding an ordered list of
// chunks; order is load order.
package bytecode
