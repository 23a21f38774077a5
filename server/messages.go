package server

// Procedure paths served by the debug service.
const (
	ServiceName = "m0.v1.DebugService"

	OpenProcedure            = "/" + ServiceName + "/Open"
	StepProcedure            = "/" + ServiceName + "/Step"
	ContinueProcedure        = "/" + ServiceName + "/Continue"
	SetBreakpointProcedure   = "/" + ServiceName + "/SetBreakpoint"
	ClearBreakpointProcedure = "/" + ServiceName + "/ClearBreakpoint"
	RegistersProcedure       = "/" + ServiceName + "/Registers"
	SetRegisterProcedure     = "/" + ServiceName + "/SetRegister"
	CloseProcedure           = "/" + ServiceName + "/Close"
)

// OpenRequest starts a debug session on a fresh frame.
type OpenRequest struct {
	Entry     string            `cbor:"1,keyasint,omitempty"` // empty selects the first loaded chunk
	PC        uint64            `cbor:"2,keyasint,omitempty"`
	Registers map[string]string `cbor:"3,keyasint,omitempty"` // initial values, e.g. "I0": "5"
}

type OpenResponse struct {
	SessionID string `cbor:"1,keyasint"`
	State     State  `cbor:"2,keyasint"`
}

// State describes a session after an operation. Output holds whatever the
// program printed since the previous response.
type State struct {
	Chunk      string `cbor:"1,keyasint"`
	PC         uint64 `cbor:"2,keyasint"`
	Status     string `cbor:"3,keyasint"`
	ExitCode   int    `cbor:"4,keyasint,omitempty"`
	Fault      string `cbor:"5,keyasint,omitempty"`
	Line       string `cbor:"6,keyasint,omitempty"`
	Breakpoint int    `cbor:"7,keyasint,omitempty"` // ID of the breakpoint stopped at
	Steps      uint64 `cbor:"8,keyasint,omitempty"`
	Output     []byte `cbor:"9,keyasint,omitempty"`
}

type StepRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Count     int    `cbor:"2,keyasint,omitempty"`
}

type ContinueRequest struct {
	SessionID string `cbor:"1,keyasint"`
	// MaxSteps bounds the run; 0 uses the server's step limit.
	MaxSteps uint64 `cbor:"2,keyasint,omitempty"`
}

type StateResponse struct {
	State State `cbor:"1,keyasint"`
}

// BreakpointRequest names a breakpoint location. It is used both to set
// and to clear.
type BreakpointRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Chunk     string `cbor:"2,keyasint"`
	PC        uint64 `cbor:"3,keyasint"`
}

type Breakpoint struct {
	ID    int    `cbor:"1,keyasint"`
	Chunk string `cbor:"2,keyasint"`
	PC    uint64 `cbor:"3,keyasint"`
	Hits  int    `cbor:"4,keyasint,omitempty"`
}

type BreakpointsResponse struct {
	Breakpoints []Breakpoint `cbor:"1,keyasint"`
}

type RegistersRequest struct {
	SessionID string   `cbor:"1,keyasint"`
	Names     []string `cbor:"2,keyasint"`
}

type RegistersResponse struct {
	Values map[string]string `cbor:"1,keyasint"`
}

type SetRegisterRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint"`
	Value     string `cbor:"3,keyasint"`
}

type SetRegisterResponse struct {
	Value string `cbor:"1,keyasint"` // the register as read back after the write
}

type CloseRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

type CloseResponse struct{}
