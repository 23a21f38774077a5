package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; === %s ===\n", c.Name))
	if c.Code != nil {
		sb.WriteString(fmt.Sprintf("; Ops: %d (%d bytes)\n", c.Code.OpCount, len(c.Code.Ops)))
	}
	sb.WriteString("\n")

	// Constants
	if c.Consts != nil && c.Consts.Len() > 0 {
		sb.WriteString("; Constants:\n")
		for i, s := range c.Consts.Slots {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, describeConstant(s)))
		}
		sb.WriteString("\n")
	}

	if c.Code == nil {
		return sb.String()
	}

	// Code section
	sb.WriteString("; Code:\n")
	for i := 0; i < c.Code.Len(); i++ {
		pc := uint64(i * InstructionWidth)
		ins, ok := c.Code.At(pc)
		if !ok {
			sb.WriteString(fmt.Sprintf("%04X  <truncated>\n", pc))
			break
		}
		line := DisassembleInstruction(ins)
		notes := c.Meta.At(pc)
		if len(notes) == 0 {
			sb.WriteString(fmt.Sprintf("%04X  %s\n", pc, line))
			continue
		}
		parts := make([]string, len(notes))
		for j, n := range notes {
			parts[j] = n.Key + "=" + n.Value
		}
		sb.WriteString(fmt.Sprintf("%04X  %-30s ; %s\n", pc, line, strings.Join(parts, " ")))
	}

	return sb.String()
}

// DisassembleInstruction renders a single instruction with operands named
// by their kind, e.g. "ADD_I I2, I0, I1" or "GOTO @0010".
func DisassembleInstruction(ins Instruction) string {
	info := GetOpcodeInfo(ins.Op)
	if !ins.Op.Known() {
		return fmt.Sprintf("%s %d, %d, %d", info.Name, ins.A, ins.B, ins.C)
	}

	raw := [3]byte{ins.A, ins.B, ins.C}
	var args []string
	for i := 0; i < 3; i++ {
		switch info.Operands[i] {
		case OperandUnused:
		case OperandIReg:
			args = append(args, fmt.Sprintf("I%d", raw[i]))
		case OperandNReg:
			args = append(args, fmt.Sprintf("N%d", raw[i]))
		case OperandSReg:
			args = append(args, fmt.Sprintf("S%d", raw[i]))
		case OperandPReg:
			args = append(args, fmt.Sprintf("P%d", raw[i]))
		case OperandRefKind:
			args = append(args, Slot(raw[i]).String())
		case OperandImmHi:
			// Paired with the following low byte.
			imm := Imm16(raw[i], raw[i+1])
			if ins.Op.IsJump() {
				args = append(args, fmt.Sprintf("@%04X", uint64(imm)*InstructionWidth))
			} else {
				args = append(args, fmt.Sprintf("#%d", imm))
			}
			i++
		case OperandImmLo:
			args = append(args, fmt.Sprintf("#%d", raw[i]))
		}
	}
	if len(args) == 0 {
		return info.Name
	}
	return info.Name + " " + strings.Join(args, ", ")
}

// describeConstant shows a slot under the interpretations a reader is
// most likely to want.
func describeConstant(c Constant) string {
	if len(c) == 8 {
		return fmt.Sprintf("i=%d n=%g % X", c.Int(), c.Num(), []byte(c))
	}
	display := string(c)
	if len(display) > 40 {
		display = display[:37] + "..."
	}
	return fmt.Sprintf("%q", display)
}
