package server

import (
	"bytes"
	"context"
	"fmt"

	"connectrpc.com/connect"

	"github.com/chazu/m0/vm"
)

// DebugService implements the m0.v1.DebugService Connect handlers. Every
// session gets its own frame over the shared registry.
type DebugService struct {
	registry  *vm.Registry
	sessions  *SessionStore
	trace     bool
	stepLimit uint64
}

// NewDebugService creates a DebugService.
func NewDebugService(reg *vm.Registry, sessions *SessionStore, trace bool, stepLimit uint64) *DebugService {
	return &DebugService{
		registry:  reg,
		sessions:  sessions,
		trace:     trace,
		stepLimit: stepLimit,
	}
}

// Open creates a session positioned at the requested entry point.
func (s *DebugService) Open(
	ctx context.Context,
	req *connect.Request[OpenRequest],
) (*connect.Response[OpenResponse], error) {
	entry := req.Msg.Entry
	if entry == "" {
		first := s.registry.First()
		if first == nil {
			return nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("no chunks loaded"))
		}
		entry = first.Name
	}

	out := &bytes.Buffer{}
	interp := vm.New(s.registry, vm.WithStdout(out), vm.WithTrace(s.trace))
	frame, err := interp.NewFrame(entry, req.Msg.PC)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}

	dbg := vm.NewDebugger(interp, frame)
	for name, value := range req.Msg.Registers {
		if err := dbg.SetRegister(name, value); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}

	session := s.sessions.Create(entry, NewVMWorker(dbg), out)
	log.Infof("opened debug session %s at %s:%d", session.ID, entry, req.Msg.PC)

	result, err := session.worker.Do(ctx, func(d *vm.Debugger) any {
		return snapshot(d, session, vm.Stop{})
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(&OpenResponse{
		SessionID: session.ID,
		State:     result.(State),
	}), nil
}

// Step executes Count instructions (at least one), ignoring breakpoints.
func (s *DebugService) Step(
	ctx context.Context,
	req *connect.Request[StepRequest],
) (*connect.Response[StateResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	count := req.Msg.Count
	result, err := session.worker.Do(ctx, func(d *vm.Debugger) any {
		return snapshot(d, session, d.Step(count))
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&StateResponse{State: result.(State)}), nil
}

// Continue runs until a breakpoint, a terminal state or the step limit.
func (s *DebugService) Continue(
	ctx context.Context,
	req *connect.Request[ContinueRequest],
) (*connect.Response[StateResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	limit := req.Msg.MaxSteps
	if limit == 0 || (s.stepLimit > 0 && limit > s.stepLimit) {
		limit = s.stepLimit
	}
	result, err := session.worker.Do(ctx, func(d *vm.Debugger) any {
		return snapshot(d, session, d.ContinueLimit(limit))
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&StateResponse{State: result.(State)}), nil
}

// SetBreakpoint sets a breakpoint and returns the session's breakpoints.
func (s *DebugService) SetBreakpoint(
	ctx context.Context,
	req *connect.Request[BreakpointRequest],
) (*connect.Response[BreakpointsResponse], error) {
	return s.editBreakpoints(ctx, req.Msg, func(d *vm.Debugger) error {
		_, err := d.SetBreakpoint(req.Msg.Chunk, req.Msg.PC)
		return err
	})
}

// ClearBreakpoint removes a breakpoint and returns the session's breakpoints.
func (s *DebugService) ClearBreakpoint(
	ctx context.Context,
	req *connect.Request[BreakpointRequest],
) (*connect.Response[BreakpointsResponse], error) {
	return s.editBreakpoints(ctx, req.Msg, func(d *vm.Debugger) error {
		return d.RemoveBreakpoint(req.Msg.Chunk, req.Msg.PC)
	})
}

func (s *DebugService) editBreakpoints(ctx context.Context, msg *BreakpointRequest, edit func(*vm.Debugger) error) (*connect.Response[BreakpointsResponse], error) {
	session, err := s.session(msg.SessionID)
	if err != nil {
		return nil, err
	}

	result, err := session.worker.Do(ctx, func(d *vm.Debugger) any {
		if err := edit(d); err != nil {
			return err
		}
		return listBreakpoints(d)
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if editErr, ok := result.(error); ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, editErr)
	}
	return connect.NewResponse(&BreakpointsResponse{Breakpoints: result.([]Breakpoint)}), nil
}

// Registers reads registers by name. An empty name list reads the machine
// registers.
func (s *DebugService) Registers(
	ctx context.Context,
	req *connect.Request[RegistersRequest],
) (*connect.Response[RegistersResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	names := req.Msg.Names
	if len(names) == 0 {
		names = []string{"chunk", "pc"}
	}
	result, err := session.worker.Do(ctx, func(d *vm.Debugger) any {
		values := make(map[string]string, len(names))
		for _, name := range names {
			v, err := d.Register(name)
			if err != nil {
				return err
			}
			values[name] = v
		}
		return values
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if regErr, ok := result.(error); ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, regErr)
	}
	return connect.NewResponse(&RegistersResponse{Values: result.(map[string]string)}), nil
}

// SetRegister writes one register between runs.
func (s *DebugService) SetRegister(
	ctx context.Context,
	req *connect.Request[SetRegisterRequest],
) (*connect.Response[SetRegisterResponse], error) {
	session, err := s.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	result, err := session.worker.Do(ctx, func(d *vm.Debugger) any {
		if err := d.SetRegister(req.Msg.Name, req.Msg.Value); err != nil {
			return err
		}
		v, _ := d.Register(req.Msg.Name)
		return v
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if setErr, ok := result.(error); ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, setErr)
	}
	return connect.NewResponse(&SetRegisterResponse{Value: result.(string)}), nil
}

// Close ends a session.
func (s *DebugService) Close(
	ctx context.Context,
	req *connect.Request[CloseRequest],
) (*connect.Response[CloseResponse], error) {
	if req.Msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	if !s.sessions.Destroy(req.Msg.SessionID) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	log.Infof("closed debug session %s", req.Msg.SessionID)
	return connect.NewResponse(&CloseResponse{}), nil
}

func (s *DebugService) session(id string) (*Session, error) {
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session_id is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

// snapshot captures the session state. Must be called on the worker goroutine.
func snapshot(d *vm.Debugger, session *Session, stop vm.Stop) State {
	loc := d.Location()
	st := State{
		Chunk:    loc.Chunk,
		PC:       loc.PC,
		Status:   stop.Status.String(),
		ExitCode: stop.ExitCode,
		Steps:    stop.Steps,
		Output:   session.drainOutput(),
	}
	if line, ok := d.Line(); ok {
		st.Line = line
	}
	if stop.Fault != nil {
		st.Fault = stop.Fault.Error()
	}
	if stop.Breakpoint != nil {
		st.Breakpoint = stop.Breakpoint.ID
	}
	return st
}

func listBreakpoints(d *vm.Debugger) []Breakpoint {
	bps := d.ListBreakpoints()
	out := make([]Breakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, Breakpoint{
			ID:    bp.ID,
			Chunk: bp.Location.Chunk,
			PC:    bp.Location.PC,
			Hits:  bp.Hits,
		})
	}
	return out
}

