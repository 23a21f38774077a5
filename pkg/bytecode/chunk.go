package bytecode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrIncompleteChunk is returned when a chunk is missing a segment it needs
// to be executed.
var ErrIncompleteChunk = errors.New("incomplete chunk")

// Bytecode is the code segment of a chunk: a run of fixed-width
// instructions and the number of instructions that are executable.
type Bytecode struct {
	Ops     []byte `cbor:"1,keyasint"`
	OpCount uint32 `cbor:"2,keyasint"`
}

// NewBytecode creates an empty code segment.
func NewBytecode() *Bytecode {
	return &Bytecode{Ops: make([]byte, 0, 64)}
}

// BytecodeFrom wraps already-encoded instructions. The instruction count
// is derived from the length of ops.
func BytecodeFrom(ops []byte) *Bytecode {
	return &Bytecode{Ops: ops, OpCount: uint32(len(ops) / InstructionWidth)}
}

// Emit appends an instruction and returns its byte offset.
func (b *Bytecode) Emit(op Opcode, a, bb, c byte) uint64 {
	pc := uint64(len(b.Ops))
	b.Ops = append(b.Ops, byte(op), a, bb, c)
	b.OpCount++
	return pc
}

// EmitImm emits an instruction whose last two operands hold a 16-bit immediate,
// as SET_IMM does.
func (b *Bytecode) EmitImm(op Opcode, a byte, imm uint16) uint64 {
	hi, lo := SplitImm16(imm)
	return b.Emit(op, a, hi, lo)
}

// EmitJump emits a GOTO or GOTO_IF to the given instruction slot. cond is the
// integer register tested by GOTO_IF and ignored otherwise.
func (b *Bytecode) EmitJump(op Opcode, slot uint16, cond byte) uint64 {
	hi, lo := SplitImm16(slot)
	return b.Emit(op, hi, lo, cond)
}

// PatchJumpTo rewrites the target of the jump at pc to the instruction at
// byte offset target.
func (b *Bytecode) PatchJumpTo(pc, target uint64) error {
	if target%InstructionWidth != 0 {
		return fmt.Errorf("jump target %d is not instruction aligned", target)
	}
	slot := target / InstructionWidth
	if slot > MaxJumpSlot {
		return fmt.Errorf("jump target %d out of range", target)
	}
	if pc+InstructionWidth > uint64(len(b.Ops)) {
		return fmt.Errorf("no instruction at %d", pc)
	}
	b.Ops[pc+1], b.Ops[pc+2] = SplitImm16(uint16(slot))
	return nil
}

// NextPC returns the byte offset the next emitted instruction will occupy.
func (b *Bytecode) NextPC() uint64 {
	return uint64(len(b.Ops))
}

// Len returns the number of executable instructions.
func (b *Bytecode) Len() int {
	return int(b.OpCount)
}

// At decodes the instruction at byte offset pc.
func (b *Bytecode) At(pc uint64) (Instruction, bool) {
	if pc%InstructionWidth != 0 || pc+InstructionWidth > uint64(len(b.Ops)) {
		return Instruction{}, false
	}
	return Decode(b.Ops, int(pc)), true
}

// Validate checks that the instruction count is backed by encoded bytes.
func (b *Bytecode) Validate() error {
	if uint64(b.OpCount)*InstructionWidth > uint64(len(b.Ops)) {
		return fmt.Errorf("op count %d exceeds %d encoded bytes", b.OpCount, len(b.Ops))
	}
	return nil
}

// Constant is one untyped slot of a constants segment. The opcode that
// dereferences it decides whether the bytes are an integer, a float, a
// string or a pointer.
type Constant []byte

// IntConstant encodes v as a little-endian 64-bit slot.
func IntConstant(v int64) Constant {
	return binary.LittleEndian.AppendUint64(make(Constant, 0, 8), uint64(v))
}

// NumConstant encodes v as IEEE-754 bits in a little-endian 64-bit slot.
func NumConstant(v float64) Constant {
	return binary.LittleEndian.AppendUint64(make(Constant, 0, 8), math.Float64bits(v))
}

// StringConstant stores the bytes of s.
func StringConstant(s string) Constant {
	return Constant(s)
}

// Int reinterprets the slot as a little-endian 64-bit integer. Short slots
// are zero-extended; bytes past the eighth are ignored.
func (c Constant) Int() int64 {
	var word [8]byte
	copy(word[:], c)
	return int64(binary.LittleEndian.Uint64(word[:]))
}

// Num reinterprets the slot's integer bits as a float.
func (c Constant) Num() float64 {
	return math.Float64frombits(uint64(c.Int()))
}

// Bytes returns a private copy of the slot's storage.
func (c Constant) Bytes() []byte {
	return bytes.Clone([]byte(c))
}

// Constants is the constants segment of a chunk.
type Constants struct {
	Slots []Constant `cbor:"1,keyasint"`
}

// NewConstants creates an empty constants segment.
func NewConstants() *Constants {
	return &Constants{Slots: make([]Constant, 0, 8)}
}

// Add appends a raw slot and returns its offset.
// If a slot with identical storage exists, returns the existing offset.
func (c *Constants) Add(v Constant) int64 {
	for i, s := range c.Slots {
		if bytes.Equal(s, v) {
			return int64(i)
		}
	}
	c.Slots = append(c.Slots, v)
	return int64(len(c.Slots) - 1)
}

// AddInt adds an integer constant and returns its offset.
func (c *Constants) AddInt(v int64) int64 { return c.Add(IntConstant(v)) }

// AddNum adds a float constant and returns its offset.
func (c *Constants) AddNum(v float64) int64 { return c.Add(NumConstant(v)) }

// AddString adds a string constant and returns its offset.
func (c *Constants) AddString(s string) int64 { return c.Add(StringConstant(s)) }

// At returns the slot at offset.
func (c *Constants) At(offset int64) (Constant, bool) {
	if offset < 0 || offset >= int64(len(c.Slots)) {
		return nil, false
	}
	return c.Slots[offset], true
}

// Len returns the number of slots.
func (c *Constants) Len() int {
	return len(c.Slots)
}

// MetaEntry attaches a key/value annotation to a bytecode offset.
type MetaEntry struct {
	PC    uint64 `cbor:"1,keyasint"`
	Key   string `cbor:"2,keyasint"`
	Value string `cbor:"3,keyasint"`
}

// Metadata is the metadata segment of a chunk. The interpreter carries it
// but never reads it; tools such as the disassembler and debugger do.
type Metadata struct {
	Entries []MetaEntry `cbor:"1,keyasint"`
}

// NewMetadata creates an empty metadata segment.
func NewMetadata() *Metadata {
	return &Metadata{}
}

// Add records an annotation for the instruction at pc.
func (m *Metadata) Add(pc uint64, key, value string) {
	m.Entries = append(m.Entries, MetaEntry{PC: pc, Key: key, Value: value})
}

// Lookup returns the nearest annotation for key at or before pc.
func (m *Metadata) Lookup(pc uint64, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	best := -1
	for i, e := range m.Entries {
		if e.Key != key || e.PC > pc {
			continue
		}
		if best < 0 || e.PC >= m.Entries[best].PC {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return m.Entries[best].Value, true
}

// At returns all annotations attached exactly to pc.
func (m *Metadata) At(pc uint64) []MetaEntry {
	if m == nil {
		return nil
	}
	var out []MetaEntry
	for _, e := range m.Entries {
		if e.PC == pc {
			out = append(out, e)
		}
	}
	return out
}

// Chunk is an independently loadable unit of code: a name used by
// GOTO_CHUNK, a bytecode segment, a constants segment and a metadata segment.
type Chunk struct {
	Name   string     `cbor:"1,keyasint"`
	Code   *Bytecode  `cbor:"2,keyasint"`
	Consts *Constants `cbor:"3,keyasint"`
	Meta   *Metadata  `cbor:"4,keyasint,omitempty"`
}

// NewChunk creates a named chunk with empty segments.
func NewChunk(name string) *Chunk {
	return &Chunk{
		Name:   name,
		Code:   NewBytecode(),
		Consts: NewConstants(),
		Meta:   NewMetadata(),
	}
}

// Validate reports whether the chunk can be linked: it must be named and
// carry bytecode and constants segments whose op count is backed by bytes.
func (c *Chunk) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: missing name", ErrIncompleteChunk)
	}
	if c.Code == nil {
		return fmt.Errorf("%w: chunk %q has no bytecode segment", ErrIncompleteChunk, c.Name)
	}
	if c.Consts == nil {
		return fmt.Errorf("%w: chunk %q has no constants segment", ErrIncompleteChunk, c.Name)
	}
	if err := c.Code.Validate(); err != nil {
		return fmt.Errorf("chunk %q: %w", c.Name, err)
	}
	return nil
}
