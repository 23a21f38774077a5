package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/m0/pkg/bytecode"
	"github.com/chazu/m0/vm"
)

func newTestSession(t *testing.T, chunks ...*bytecode.Chunk) (*debugSession, *bytes.Buffer) {
	t.Helper()
	reg := vm.NewRegistry()
	if err := reg.AddAll(chunks); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	in := vm.New(reg, vm.WithStdout(&out))
	f, err := in.NewFrame(chunks[0].Name, 0)
	if err != nil {
		t.Fatal(err)
	}
	return &debugSession{dbg: vm.NewDebugger(in, f), out: &out}, &out
}

// commands runs each line and returns everything printed.
func commands(s *debugSession, out *bytes.Buffer, lines ...string) string {
	out.Reset()
	for _, line := range lines {
		s.runCommand(line)
	}
	return out.String()
}

func TestDebugStepAndPrint(t *testing.T) {
	s, out := newTestSession(t, addChunk())

	got := commands(s, out, "step", "s 2", "print I2", "p pc")
	for _, want := range []string{
		"main:0004  SET_IMM I1, #3",
		"main:000C  PRINT_I I2",
		"I2 = 8",
		"pc = 12",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	got = commands(s, out, "step")
	if !strings.Contains(got, "8") {
		t.Errorf("PRINT_I output missing: %q", got)
	}
	got = commands(s, out, "step")
	if !strings.Contains(got, "Program halted.") {
		t.Errorf("output = %q", got)
	}
	if s.exitCode() != 0 {
		t.Errorf("exitCode = %d, want 0", s.exitCode())
	}
}

func TestDebugBreakAndContinue(t *testing.T) {
	s, out := newTestSession(t, addChunk())

	got := commands(s, out, "break 8", "b main:12", "info")
	for _, want := range []string{"Breakpoint 1 at main:8", "Breakpoint 2 at main:12", "1  main:8  enabled"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	got = commands(s, out, "continue")
	if !strings.Contains(got, "Breakpoint 1, main:8") || !strings.Contains(got, "ADD_I I2, I0, I1") {
		t.Errorf("first continue:\n%s", got)
	}

	got = commands(s, out, "delete 12", "c")
	if !strings.Contains(got, "Deleted breakpoint at main:12") || !strings.Contains(got, "Program halted.") {
		t.Errorf("second continue:\n%s", got)
	}
}

func TestDebugSetRegister(t *testing.T) {
	s, out := newTestSession(t, exitChunk("main", 7))

	got := commands(s, out, "step", "set I0 3", "set S1 hello world", "p S1", "c")
	for _, want := range []string{"I0 = 3", `S1 = "hello world"`, "Program exited with status 3."} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if s.exitCode() != 3 {
		t.Errorf("exitCode = %d, want 3", s.exitCode())
	}
}

func TestDebugFault(t *testing.T) {
	c := bytecode.NewChunk("main")
	c.Code.Emit(bytecode.OpModI, 0, 1, 2)
	s, out := newTestSession(t, c)

	got := commands(s, out, "c")
	if !strings.Contains(got, "Fault:") || !strings.Contains(got, "main:0000  MOD_I I0, I1, I2") {
		t.Errorf("output:\n%s", got)
	}
	if s.exitCode() != 1 {
		t.Errorf("exitCode = %d, want 1", s.exitCode())
	}

	got = commands(s, out, "set I2 2", "c")
	if !strings.Contains(got, "Program halted.") {
		t.Errorf("after fix:\n%s", got)
	}
}

func TestDebugErrors(t *testing.T) {
	s, out := newTestSession(t, addChunk())

	tests := []struct {
		line string
		want string
	}{
		{"frobnicate", `unknown command "frobnicate"`},
		{"break", "usage: break"},
		{"break main:x", `invalid pc "x"`},
		{"break nope:0", "chunk not found"},
		{"break 2", "not instruction aligned"},
		{"delete 4", "no breakpoint at main:4"},
		{"step 0", "invalid step count"},
		{"print", "usage: print"},
		{"print Z1", "invalid register bank"},
		{"set pc", "usage: set"},
		{"set chunk x", "read-only"},
		{"help nope", `unknown command "nope"`},
	}
	for _, tt := range tests {
		got := commands(s, out, tt.line)
		if !strings.Contains(got, tt.want) {
			t.Errorf("%q: output %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestDebugHelpListQuit(t *testing.T) {
	s, out := newTestSession(t, addChunk())

	got := commands(s, out, "help")
	for _, c := range debugCommands {
		if !strings.Contains(got, c.name) {
			t.Errorf("help missing %q", c.name)
		}
	}
	if got := commands(s, out, "help b"); !strings.Contains(got, "break [chunk:]pc") {
		t.Errorf("help b = %q", got)
	}
	if got := commands(s, out, "list"); !strings.Contains(got, "; === main ===") {
		t.Errorf("list = %q", got)
	}
	if !s.runCommand("q") || !s.runCommand("QUIT") {
		t.Error("quit should end the session")
	}
	if s.runCommand("   ") {
		t.Error("blank line should not quit")
	}
}
