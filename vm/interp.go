package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/m0/pkg/bytecode"
)

// Status is the state of a frame after a Step or Run.
type Status int

const (
	// Running means the frame can execute further instructions.
	Running Status = iota
	// Halted means the pc ran past the last instruction of the chunk.
	Halted
	// Faulted means an instruction could not be executed.
	Faulted
	// Terminated means EXIT was executed.
	Terminated
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of a Step or Run.
type Result struct {
	Status   Status
	Fault    *Fault // set when Status is Faulted
	ExitCode int    // set when Status is Terminated
	Steps    uint64 // instructions executed by this call
}

// Err returns the fault as an error, or nil if the run did not fault.
func (r Result) Err() error {
	if r.Fault == nil {
		return nil
	}
	return r.Fault
}

// Interp executes frames against a chunk registry. An Interp holds no
// per-run state, so one Interp may drive many frames; each frame must be
// driven by one goroutine at a time.
type Interp struct {
	registry *Registry
	stdout   io.Writer
	trace    bool
	log      commonlog.Logger
}

// Option configures an Interp.
type Option func(*Interp)

// WithStdout sets the writer PRINT instructions write to. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(in *Interp) { in.stdout = w }
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(trace bool) Option {
	return func(in *Interp) { in.trace = trace }
}

// WithLogger replaces the default "m0.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(in *Interp) { in.log = log }
}

// New creates an interpreter that resolves GOTO_CHUNK against reg.
func New(reg *Registry, opts ...Option) *Interp {
	in := &Interp{
		registry: reg,
		stdout:   os.Stdout,
		log:      commonlog.GetLogger("m0.vm"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Registry returns the chunk registry used for GOTO_CHUNK.
func (in *Interp) Registry() *Registry {
	return in.registry
}

// NewFrame creates a frame positioned at pc in the registered chunk name.
func (in *Interp) NewFrame(name string, pc uint64) (*Frame, error) {
	if in.registry == nil {
		return nil, fmt.Errorf("%w: %q", ErrChunkNotFound, name)
	}
	c, ok := in.registry.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChunkNotFound, name)
	}
	return NewFrame(c, pc), nil
}

// Run executes instructions from the frame's current pc until the chunk
// runs out of instructions, an instruction faults, or EXIT executes.
// Run can be called again on the same frame to resume, e.g. after a
// debugger has changed the pc or registers.
func (in *Interp) Run(f *Frame) Result {
	var steps uint64
	for {
		r := in.Step(f)
		steps += r.Steps
		if r.Status != Running {
			r.Steps = steps
			return r
		}
	}
}

// Step executes at most one instruction.
func (in *Interp) Step(f *Frame) Result {
	if f.code == nil || f.chunk == nil {
		return in.fault(f, bytecode.Instruction{}, &trap{errno: ErrNoChunk})
	}

	pc := f.pc
	if pc/bytecode.InstructionWidth >= uint64(f.code.OpCount) {
		return Result{Status: Halted}
	}
	if pc%bytecode.InstructionWidth != 0 {
		return in.fault(f, bytecode.Instruction{}, newTrap(ErrBadPC, "pc %d", pc))
	}
	ins, ok := f.code.At(pc)
	if !ok {
		return in.fault(f, bytecode.Instruction{}, newTrap(ErrBadPC, "pc %d past %d encoded bytes", pc, len(f.code.Ops)))
	}

	if in.trace && in.log.AllowLevel(commonlog.Debug) {
		in.log.Debugf("[%s:%04X] %s", f.chunk.Name, pc, bytecode.DisassembleInstruction(ins))
	}

	h := opTable[ins.Op]
	if h == nil {
		return in.fault(f, ins, &trap{errno: ErrUnimplemented})
	}

	f.jumped = false
	f.exited = false
	if t := h(in, f, ins); t != nil {
		return in.fault(f, ins, t)
	}
	if f.exited {
		f.pc = pc + bytecode.InstructionWidth
		return Result{Status: Terminated, ExitCode: f.status, Steps: 1}
	}
	if !f.jumped {
		f.pc = pc + bytecode.InstructionWidth
	}
	return Result{Status: Running, Steps: 1}
}

// fault builds the Fault for a failed instruction and reports it on the
// error log. The frame's pc still points at the failing instruction.
func (in *Interp) fault(f *Frame, ins bytecode.Instruction, t *trap) Result {
	flt := &Fault{
		Errno:  t.errno,
		Chunk:  f.ChunkName(),
		PC:     f.pc,
		Instr:  ins,
		Detail: t.detail,
	}
	in.log.Errorf("%s", flt.Error())
	return Result{Status: Faulted, Fault: flt}
}
