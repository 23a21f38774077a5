package vm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/m0/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Debugger: breakpoints and stepping over one frame
// ---------------------------------------------------------------------------

// Debugger drives a single frame one instruction at a time and stops at
// breakpoints. It owns no execution state of its own: the frame's pc and
// registers are the whole state, so callers may inspect or change them
// between calls.
type Debugger struct {
	interp *Interp
	frame  *Frame

	mu          sync.Mutex
	breakpoints map[Location]*Breakpoint
	nextID      int
}

// Location identifies an instruction: a chunk name and a byte offset.
type Location struct {
	Chunk string
	PC    uint64
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Chunk, l.PC)
}

// Breakpoint represents a breakpoint for external clients.
type Breakpoint struct {
	ID       int
	Location Location
	Active   bool
	Hits     int
}

// Stop is the outcome of Step or Continue.
type Stop struct {
	Result
	Breakpoint *Breakpoint // set when execution stopped at a breakpoint
}

// NewDebugger attaches a debugger to a frame.
func NewDebugger(in *Interp, f *Frame) *Debugger {
	return &Debugger{
		interp:      in,
		frame:       f,
		breakpoints: make(map[Location]*Breakpoint),
	}
}

// Frame returns the frame being debugged.
func (d *Debugger) Frame() *Frame {
	return d.frame
}

// Location returns where the frame currently is.
func (d *Debugger) Location() Location {
	return Location{Chunk: d.frame.ChunkName(), PC: d.frame.PC()}
}

// Line returns the "line" metadata annotation for the current pc, if any.
func (d *Debugger) Line() (string, bool) {
	return d.frame.Metadata().Lookup(d.frame.PC(), "line")
}

// ---------------------------------------------------------------------------
// Register access
// ---------------------------------------------------------------------------

// Register renders a register by name: a bank register such as "I3" or "S0",
// or one of the machine registers "pc" and "chunk".
func (d *Debugger) Register(name string) (string, error) {
	switch strings.ToLower(name) {
	case "pc":
		return strconv.FormatUint(d.frame.PC(), 10), nil
	case "chunk":
		return strconv.Quote(d.frame.ChunkName()), nil
	}
	r, err := ParseRegRef(name)
	if err != nil {
		return "", err
	}
	return d.frame.Format(r), nil
}

// SetRegister assigns a register by name. The pc may be moved; the current
// chunk and pointer registers are read-only.
func (d *Debugger) SetRegister(name, value string) error {
	switch strings.ToLower(name) {
	case "pc":
		pc, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return fmt.Errorf("pc: %w", err)
		}
		d.frame.SetPC(pc)
		return nil
	case "chunk":
		return fmt.Errorf("chunk is read-only")
	}
	r, err := ParseRegRef(name)
	if err != nil {
		return err
	}
	return d.frame.Assign(r, value)
}

// ---------------------------------------------------------------------------
// Breakpoint management
// ---------------------------------------------------------------------------

// SetBreakpoint sets a breakpoint at pc in the named chunk. The chunk must be
// registered and pc must address one of its instructions.
func (d *Debugger) SetBreakpoint(chunk string, pc uint64) (*Breakpoint, error) {
	reg := d.interp.Registry()
	if reg == nil {
		return nil, fmt.Errorf("%w: %q", ErrChunkNotFound, chunk)
	}
	c, ok := reg.Find(chunk)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChunkNotFound, chunk)
	}
	if pc%bytecode.InstructionWidth != 0 {
		return nil, fmt.Errorf("pc %d is not instruction aligned", pc)
	}
	if pc/bytecode.InstructionWidth >= uint64(c.Code.OpCount) {
		return nil, fmt.Errorf("pc %d is past the end of chunk %q", pc, chunk)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	loc := Location{Chunk: chunk, PC: pc}
	if bp, exists := d.breakpoints[loc]; exists {
		bp.Active = true
		return bp, nil
	}
	d.nextID++
	bp := &Breakpoint{ID: d.nextID, Location: loc, Active: true}
	d.breakpoints[loc] = bp
	return bp, nil
}

// RemoveBreakpoint removes the breakpoint at the given location.
// Returns an error if no breakpoint exists at that location.
func (d *Debugger) RemoveBreakpoint(chunk string, pc uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	loc := Location{Chunk: chunk, PC: pc}
	if _, exists := d.breakpoints[loc]; !exists {
		return fmt.Errorf("no breakpoint at %s", loc)
	}
	delete(d.breakpoints, loc)
	return nil
}

// EnableBreakpoint re-activates a disabled breakpoint.
func (d *Debugger) EnableBreakpoint(chunk string, pc uint64) error {
	return d.setActive(chunk, pc, true)
}

// DisableBreakpoint keeps a breakpoint but stops it from triggering.
func (d *Debugger) DisableBreakpoint(chunk string, pc uint64) error {
	return d.setActive(chunk, pc, false)
}

func (d *Debugger) setActive(chunk string, pc uint64, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	loc := Location{Chunk: chunk, PC: pc}
	bp, exists := d.breakpoints[loc]
	if !exists {
		return fmt.Errorf("no breakpoint at %s", loc)
	}
	bp.Active = active
	return nil
}

// ListBreakpoints returns all breakpoints ordered by ID.
func (d *Debugger) ListBreakpoints() []Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]Breakpoint, 0, len(d.breakpoints))
	for _, bp := range d.breakpoints {
		result = append(result, *bp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ClearAllBreakpoints removes every breakpoint.
func (d *Debugger) ClearAllBreakpoints() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakpoints = make(map[Location]*Breakpoint)
}

// hit returns the active breakpoint at the frame's location and counts the hit.
func (d *Debugger) hit() *Breakpoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	bp, ok := d.breakpoints[d.Location()]
	if !ok || !bp.Active {
		return nil
	}
	bp.Hits++
	cp := *bp
	return &cp
}

// ---------------------------------------------------------------------------
// Execution control
// ---------------------------------------------------------------------------

// Step executes up to n instructions, stopping early at a terminal state.
// Breakpoints are ignored while stepping.
func (d *Debugger) Step(n int) Stop {
	if n < 1 {
		n = 1
	}
	var steps uint64
	var r Result
	for i := 0; i < n; i++ {
		r = d.interp.Step(d.frame)
		steps += r.Steps
		if r.Status != Running {
			break
		}
	}
	r.Steps = steps
	return Stop{Result: r}
}

// Continue runs until an active breakpoint is reached or the frame halts,
// faults or exits. The instruction at the current location always executes
// first, so continuing from a breakpoint does not stop on it again.
func (d *Debugger) Continue() Stop {
	return d.ContinueLimit(0)
}

// ContinueLimit is Continue bounded to at most limit instructions; a limit
// of 0 means no bound. When the limit is reached the Stop is Running with
// no breakpoint.
func (d *Debugger) ContinueLimit(limit uint64) Stop {
	var steps uint64
	for limit == 0 || steps < limit {
		r := d.interp.Step(d.frame)
		steps += r.Steps
		if r.Status != Running {
			r.Steps = steps
			return Stop{Result: r}
		}
		if bp := d.hit(); bp != nil {
			r.Steps = steps
			return Stop{Result: r, Breakpoint: bp}
		}
	}
	return Stop{Result: Result{Status: Running, Steps: steps}}
}
