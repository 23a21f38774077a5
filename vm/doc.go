// Package vm implements the M0 virtual machine.
//
// This package contains:
//   - The register file: four typed banks (I, N, S, P) and the machine
//     registers that locate the current chunk
//   - The chunk registry used by GOTO_CHUNK
//   - One handler per opcode and the dispatch loop
//   - The fault model raised by failing instructions
//   - A debugger with breakpoints and single stepping
//
// A run ends in one of three states: halted (the pc ran off the end of the
// chunk), faulted (an instruction could not execute, and the pc still
// points at it) or terminated (EXIT ran). Faults never panic the host.
package vm
