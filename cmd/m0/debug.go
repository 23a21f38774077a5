package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/m0/pkg/bytecode"
	"github.com/chazu/m0/vm"
)

const historyFile = ".m0_history"

// debugCommand is one debugger command.
type debugCommand struct {
	name    string
	alias   string
	usage   string
	summary string
	run     func(s *debugSession, args []string) bool // returns true to quit
}

var debugCommands []debugCommand

func init() {
	debugCommands = []debugCommand{
		{"break", "b", "break [chunk:]pc", "Set a breakpoint", (*debugSession).cmdBreak},
		{"delete", "d", "delete [chunk:]pc", "Remove a breakpoint", (*debugSession).cmdDelete},
		{"info", "i", "info", "List breakpoints", (*debugSession).cmdInfo},
		{"step", "s", "step [N]", "Execute N instructions (default 1)", (*debugSession).cmdStep},
		{"continue", "c", "continue", "Run until a breakpoint or the program ends", (*debugSession).cmdContinue},
		{"print", "p", "print REG", "Show a register (I3, N0, S1, P2, pc, chunk)", (*debugSession).cmdPrint},
		{"set", "", "set REG VALUE", "Assign a register or the pc", (*debugSession).cmdSet},
		{"list", "l", "list", "Disassemble the current chunk", (*debugSession).cmdList},
		{"help", "h", "help [CMD]", "Show help", (*debugSession).cmdHelp},
		{"quit", "q", "quit", "Leave the debugger", (*debugSession).cmdQuit},
	}
}

func lookupCommand(name string) (debugCommand, bool) {
	for _, c := range debugCommands {
		if name == c.name || (c.alias != "" && name == c.alias) {
			return c, true
		}
	}
	return debugCommand{}, false
}

// debugSession is the state of one interactive debugger.
type debugSession struct {
	dbg  *vm.Debugger
	out  io.Writer
	last vm.Stop
}

// runCommand executes one command line. Returns true when the user quits.
func (s *debugSession) runCommand(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, ok := lookupCommand(strings.ToLower(fields[0]))
	if !ok {
		fmt.Fprintf(s.out, "unknown command %q. Type help for a list.\n", fields[0])
		return false
	}
	return cmd.run(s, fields[1:])
}

// parseLoc parses "[chunk:]pc"; a bare pc refers to the current chunk.
func (s *debugSession) parseLoc(arg string) (vm.Location, error) {
	chunk := s.dbg.Frame().ChunkName()
	pcText := arg
	if i := strings.LastIndexByte(arg, ':'); i >= 0 {
		chunk, pcText = arg[:i], arg[i+1:]
	}
	pc, err := strconv.ParseUint(pcText, 0, 64)
	if err != nil {
		return vm.Location{}, fmt.Errorf("invalid pc %q", pcText)
	}
	return vm.Location{Chunk: chunk, PC: pc}, nil
}

func (s *debugSession) cmdBreak(args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: break [chunk:]pc")
		return false
	}
	loc, err := s.parseLoc(args[0])
	if err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}
	bp, err := s.dbg.SetBreakpoint(loc.Chunk, loc.PC)
	if err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}
	fmt.Fprintf(s.out, "Breakpoint %d at %s\n", bp.ID, bp.Location)
	return false
}

func (s *debugSession) cmdDelete(args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: delete [chunk:]pc")
		return false
	}
	loc, err := s.parseLoc(args[0])
	if err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}
	if err := s.dbg.RemoveBreakpoint(loc.Chunk, loc.PC); err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}
	fmt.Fprintf(s.out, "Deleted breakpoint at %s\n", loc)
	return false
}

func (s *debugSession) cmdInfo(args []string) bool {
	bps := s.dbg.ListBreakpoints()
	if len(bps) == 0 {
		fmt.Fprintln(s.out, "No breakpoints.")
		return false
	}
	for _, bp := range bps {
		state := "enabled"
		if !bp.Active {
			state = "disabled"
		}
		fmt.Fprintf(s.out, "%d  %s  %s  hits=%d\n", bp.ID, bp.Location, state, bp.Hits)
	}
	return false
}

func (s *debugSession) cmdStep(args []string) bool {
	n := 1
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v < 1 {
			fmt.Fprintf(s.out, "invalid step count %q\n", args[0])
			return false
		}
		n = v
	}
	s.report(s.dbg.Step(n))
	return false
}

func (s *debugSession) cmdContinue(args []string) bool {
	s.report(s.dbg.Continue())
	return false
}

func (s *debugSession) cmdPrint(args []string) bool {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: print REG")
		return false
	}
	v, err := s.dbg.Register(args[0])
	if err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}
	fmt.Fprintf(s.out, "%s = %s\n", args[0], v)
	return false
}

func (s *debugSession) cmdSet(args []string) bool {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "usage: set REG VALUE")
		return false
	}
	value := strings.Join(args[1:], " ")
	if err := s.dbg.SetRegister(args[0], value); err != nil {
		fmt.Fprintln(s.out, err)
		return false
	}
	v, _ := s.dbg.Register(args[0])
	fmt.Fprintf(s.out, "%s = %s\n", args[0], v)
	return false
}

func (s *debugSession) cmdList(args []string) bool {
	c := s.dbg.Frame().Chunk()
	if c == nil {
		fmt.Fprintln(s.out, "no chunk")
		return false
	}
	fmt.Fprint(s.out, c.Disassemble())
	return false
}

func (s *debugSession) cmdHelp(args []string) bool {
	if len(args) > 0 {
		cmd, ok := lookupCommand(strings.ToLower(args[0]))
		if !ok {
			fmt.Fprintf(s.out, "unknown command %q\n", args[0])
			return false
		}
		fmt.Fprintf(s.out, "%s\n    %s\n", cmd.usage, cmd.summary)
		return false
	}
	for _, cmd := range debugCommands {
		name := cmd.name
		if cmd.alias != "" {
			name += "|" + cmd.alias
		}
		fmt.Fprintf(s.out, "  %-12s %s\n", name, cmd.summary)
	}
	return false
}

func (s *debugSession) cmdQuit(args []string) bool {
	return true
}

// report prints the outcome of a step or continue and the next instruction.
func (s *debugSession) report(stop vm.Stop) {
	s.last = stop
	switch {
	case stop.Breakpoint != nil:
		fmt.Fprintf(s.out, "Breakpoint %d, %s\n", stop.Breakpoint.ID, stop.Breakpoint.Location)
	case stop.Status == vm.Halted:
		fmt.Fprintln(s.out, "Program halted.")
		return
	case stop.Status == vm.Terminated:
		fmt.Fprintf(s.out, "Program exited with status %d.\n", stop.ExitCode)
		return
	case stop.Status == vm.Faulted:
		fmt.Fprintf(s.out, "Fault: %v\n", stop.Fault)
	}
	s.where()
}

// where prints the instruction at the current location.
func (s *debugSession) where() {
	loc := s.dbg.Location()
	code := s.dbg.Frame().Bytecode()
	if code == nil {
		return
	}
	text := "<end of chunk>"
	if loc.PC/bytecode.InstructionWidth < uint64(code.OpCount) {
		if ins, ok := code.At(loc.PC); ok {
			text = bytecode.DisassembleInstruction(ins)
		}
	}
	if line, ok := s.dbg.Line(); ok {
		text += "    ; line " + line
	}
	fmt.Fprintf(s.out, "%s:%04X  %s\n", loc.Chunk, loc.PC, text)
}

// exitCode maps the last stop to a process exit status.
func (s *debugSession) exitCode() int {
	switch s.last.Status {
	case vm.Terminated:
		return s.last.ExitCode
	case vm.Faulted:
		return 1
	default:
		return 0
	}
}

// runDebugger runs the interactive debugger on the terminal.
func runDebugger(dbg *vm.Debugger, out io.Writer) int {
	s := &debugSession{dbg: dbg, out: out}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintln(out, "m0 debugger. Type help for commands.")
	s.where()

	for {
		line, err := ln.Prompt("(m0) ")
		if err != nil {
			// EOF or Ctrl-C
			fmt.Fprintln(out)
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)
		if s.runCommand(line) {
			break
		}
	}
	return s.exitCode()
}
