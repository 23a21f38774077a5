package vm

import (
	"fmt"
	"io"
	"math"

	"github.com/chazu/m0/pkg/bytecode"
)

// opFunc executes one instruction against a frame. Handlers only touch the
// frame; GOTO_CHUNK additionally reads the registry and PRINT writes to the
// interpreter's output. A handler that fails leaves the frame unchanged.
type opFunc func(in *Interp, f *Frame, ins bytecode.Instruction) *trap

// opTable maps every opcode byte to its handler. A nil entry is an
// unimplemented opcode.
var opTable = [256]opFunc{
	// Control flow
	bytecode.OpNoop:      opNoop,
	bytecode.OpGoto:      opGoto,
	bytecode.OpGotoIf:    opGotoIf,
	bytecode.OpGotoChunk: opGotoChunk,
	bytecode.OpExit:      opExit,

	// Integer arithmetic
	bytecode.OpAddI:  opAddI,
	bytecode.OpSubI:  opSubI,
	bytecode.OpMultI: opMultI,
	bytecode.OpDivI:  opDivI,
	bytecode.OpModI:  opModI,

	// Float arithmetic
	bytecode.OpAddN:  opAddN,
	bytecode.OpSubN:  opSubN,
	bytecode.OpMultN: opMultN,
	bytecode.OpDivN:  opDivN,
	bytecode.OpModN:  opModN,

	// Bitwise
	bytecode.OpAnd:  opAnd,
	bytecode.OpOr:   opOr,
	bytecode.OpXor:  opXor,
	bytecode.OpLshr: opLshr,
	bytecode.OpAshr: opAshr,
	bytecode.OpShl:  opShl,

	// Conversion
	bytecode.OpIToN: opIToN,
	bytecode.OpNToI: opNToI,

	// Register set
	bytecode.OpSetImm: opSetImm,
	bytecode.OpSetRef: opSetRef,
	bytecode.OpSetI:   opSetI,
	bytecode.OpSetN:   opSetN,
	bytecode.OpSetS:   opSetS,
	bytecode.OpSetP:   opSetP,

	// Dereference
	bytecode.OpDerefI: opDerefI,
	bytecode.OpDerefN: opDerefN,
	bytecode.OpDerefS: opDerefS,
	bytecode.OpDerefP: opDerefP,

	// Byte memory
	bytecode.OpSetByte: opSetByte,
	bytecode.OpGetByte: opGetByte,

	// Output
	bytecode.OpPrintS: opPrintS,
	bytecode.OpPrintI: opPrintI,
	bytecode.OpPrintN: opPrintN,
}

// ============ Control Flow ============

func opNoop(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	return nil
}

func opGoto(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.jump(ins.JumpTarget())
	return nil
}

func opGotoIf(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	if f.I[ins.C] != 0 {
		f.jump(ins.JumpTarget())
	}
	return nil
}

func opGotoChunk(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	name := string(f.S[ins.A])
	if in.registry == nil {
		return newTrap(ErrNoSuchChunk, "%q (no registry)", name)
	}
	c, ok := in.registry.Find(name)
	if !ok {
		return newTrap(ErrNoSuchChunk, "%q", name)
	}
	pc := f.I[ins.B]
	if pc < 0 || pc%bytecode.InstructionWidth != 0 {
		return newTrap(ErrBadPC, "entry pc %d for chunk %q", pc, name)
	}
	f.enter(c, uint64(pc))
	f.jumped = true
	return nil
}

func opExit(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.exited = true
	f.status = int(f.I[ins.A])
	return nil
}

// ============ Integer Arithmetic ============

func opAddI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] + f.I[ins.C]
	return nil
}

func opSubI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] - f.I[ins.C]
	return nil
}

func opMultI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] * f.I[ins.C]
	return nil
}

func opDivI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	if f.I[ins.C] == 0 {
		return newTrap(ErrDivideByZero, "I%d is zero", ins.C)
	}
	f.I[ins.A] = f.I[ins.B] / f.I[ins.C]
	return nil
}

func opModI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	if f.I[ins.C] == 0 {
		return newTrap(ErrDivideByZero, "I%d is zero", ins.C)
	}
	f.I[ins.A] = f.I[ins.B] % f.I[ins.C]
	return nil
}

// ============ Float Arithmetic ============

func opAddN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.N[ins.A] = f.N[ins.B] + f.N[ins.C]
	return nil
}

func opSubN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.N[ins.A] = f.N[ins.B] - f.N[ins.C]
	return nil
}

func opMultN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.N[ins.A] = f.N[ins.B] * f.N[ins.C]
	return nil
}

func opDivN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.N[ins.A] = f.N[ins.B] / f.N[ins.C]
	return nil
}

func opModN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.N[ins.A] = math.Mod(f.N[ins.B], f.N[ins.C])
	return nil
}

// ============ Bitwise ============

func opAnd(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] & f.I[ins.C]
	return nil
}

func opOr(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] | f.I[ins.C]
	return nil
}

func opXor(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] ^ f.I[ins.C]
	return nil
}

// Shift counts are read as unsigned; counts of 64 or more shift every bit out.

func opLshr(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = int64(uint64(f.I[ins.B]) >> uint64(f.I[ins.C]))
	return nil
}

func opAshr(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] >> uint64(f.I[ins.C])
	return nil
}

func opShl(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B] << uint64(f.I[ins.C])
	return nil
}

// ============ Conversion ============

func opIToN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.N[ins.A] = float64(f.I[ins.B])
	return nil
}

func opNToI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = int64(f.N[ins.B])
	return nil
}

// ============ Register Set ============

func opSetImm(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = int64(bytecode.Imm16(ins.B, ins.C))
	return nil
}

func opSetRef(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	return newTrap(ErrUnimplemented, "SET_REF is reserved")
}

func opSetI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.I[ins.A] = f.I[ins.B]
	return nil
}

func opSetN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.N[ins.A] = f.N[ins.B]
	return nil
}

func opSetS(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.S[ins.A] = f.S[ins.B]
	return nil
}

func opSetP(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	f.P[ins.A] = f.P[ins.B]
	return nil
}

// ============ Dereference ============

// constSlot resolves the constants slot named by a DEREF instruction:
// operand b is the reference kind, operand c the integer register holding
// the offset.
func constSlot(f *Frame, ins bytecode.Instruction) (bytecode.Constant, *trap) {
	if bytecode.Slot(ins.B) != bytecode.SlotConsts {
		return nil, newTrap(ErrBadRefKind, "%s", bytecode.Slot(ins.B))
	}
	if f.consts == nil {
		return nil, newTrap(ErrNoChunk, "no constants segment")
	}
	offset := f.I[ins.C]
	slot, ok := f.consts.At(offset)
	if !ok {
		return nil, newTrap(ErrConstBounds, "offset %d, %d constants", offset, f.consts.Len())
	}
	return slot, nil
}

func opDerefI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	slot, t := constSlot(f, ins)
	if t != nil {
		return t
	}
	f.I[ins.A] = slot.Int()
	return nil
}

func opDerefN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	slot, t := constSlot(f, ins)
	if t != nil {
		return t
	}
	f.N[ins.A] = slot.Num()
	return nil
}

func opDerefS(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	slot, t := constSlot(f, ins)
	if t != nil {
		return t
	}
	// Copy so SET_BYTE cannot write through to a shared chunk.
	f.S[ins.A] = slot.Bytes()
	return nil
}

func opDerefP(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	slot, t := constSlot(f, ins)
	if t != nil {
		return t
	}
	f.P[ins.A] = slot
	return nil
}

// ============ Byte Memory ============

func opSetByte(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	src := f.S[ins.C]
	if len(src) == 0 {
		return newTrap(ErrByteBounds, "source S%d is empty", ins.C)
	}
	dst := f.S[ins.A]
	offset := f.I[ins.B]
	if offset < 0 || offset >= int64(len(dst)) {
		return newTrap(ErrByteBounds, "offset %d into S%d of length %d", offset, ins.A, len(dst))
	}
	dst[offset] = src[0]
	return nil
}

func opGetByte(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	src := f.S[ins.C]
	offset := f.I[ins.B]
	if offset < 0 || offset >= int64(len(src)) {
		return newTrap(ErrByteBounds, "offset %d into S%d of length %d", offset, ins.C, len(src))
	}
	f.I[ins.A] = int64(src[offset])
	return nil
}

// ============ Output ============
//
// Operand a is reserved for a filehandle; output always goes to the
// interpreter's stdout.

func opPrintS(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	in.stdout.Write(f.S[ins.B])
	return nil
}

func opPrintI(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	fmt.Fprintf(in.stdout, "%d", f.I[ins.B])
	return nil
}

func opPrintN(in *Interp, f *Frame, ins bytecode.Instruction) *trap {
	io.WriteString(in.stdout, formatNum(f.N[ins.B]))
	return nil
}

// formatNum renders n as C's "%.15g" does, including inf, -inf and nan.
func formatNum(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	}
	return fmt.Sprintf("%.15g", n)
}
