package server

import (
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/m0/vm"
)

var log = commonlog.GetLogger("m0.server")

// DefaultStepLimit bounds a single Continue call so a looping program
// cannot hold a session worker forever.
const DefaultStepLimit = 10_000_000

// DebugServer serves the debug service over Connect with a CBOR codec.
type DebugServer struct {
	service  *DebugService
	sessions *SessionStore
	mux      *http.ServeMux

	stopSweeper func()
}

// ServerOption configures a DebugServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	sessionTTL    time.Duration
	sweepInterval time.Duration
	stepLimit     uint64
	trace         bool
}

// WithSessionTTL closes sessions idle for longer than ttl.
func WithSessionTTL(ttl time.Duration) ServerOption {
	return func(c *serverConfig) { c.sessionTTL = ttl }
}

// WithSweepInterval sets how often idle sessions are looked for.
func WithSweepInterval(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.sweepInterval = d }
}

// WithStepLimit caps the instructions one Continue call may execute.
// 0 removes the cap.
func WithStepLimit(n uint64) ServerOption {
	return func(c *serverConfig) { c.stepLimit = n }
}

// WithTrace enables instruction tracing in every session.
func WithTrace(trace bool) ServerOption {
	return func(c *serverConfig) { c.trace = trace }
}

// New creates a DebugServer whose sessions run chunks from reg.
func New(reg *vm.Registry, opts ...ServerOption) *DebugServer {
	cfg := &serverConfig{
		sessionTTL:    30 * time.Minute,
		sweepInterval: 5 * time.Minute,
		stepLimit:     DefaultStepLimit,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessions := NewSessionStore()
	svc := NewDebugService(reg, sessions, cfg.trace, cfg.stepLimit)

	s := &DebugServer{
		service:  svc,
		sessions: sessions,
		mux:      http.NewServeMux(),
	}

	codec := connect.WithCodec(newCBORCodec())
	s.mux.Handle(OpenProcedure, connect.NewUnaryHandler(OpenProcedure, svc.Open, codec))
	s.mux.Handle(StepProcedure, connect.NewUnaryHandler(StepProcedure, svc.Step, codec))
	s.mux.Handle(ContinueProcedure, connect.NewUnaryHandler(ContinueProcedure, svc.Continue, codec))
	s.mux.Handle(SetBreakpointProcedure, connect.NewUnaryHandler(SetBreakpointProcedure, svc.SetBreakpoint, codec))
	s.mux.Handle(ClearBreakpointProcedure, connect.NewUnaryHandler(ClearBreakpointProcedure, svc.ClearBreakpoint, codec))
	s.mux.Handle(RegistersProcedure, connect.NewUnaryHandler(RegistersProcedure, svc.Registers, codec))
	s.mux.Handle(SetRegisterProcedure, connect.NewUnaryHandler(SetRegisterProcedure, svc.SetRegister, codec))
	s.mux.Handle(CloseProcedure, connect.NewUnaryHandler(CloseProcedure, svc.Close, codec))

	s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)

	return s
}

// Handler returns the HTTP handler serving every procedure.
func (s *DebugServer) Handler() http.Handler {
	return s.mux
}

// Service returns the service behind the handlers.
func (s *DebugServer) Service() *DebugService {
	return s.service
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *DebugServer) ListenAndServe(addr string) error {
	log.Noticef("m0 debug service listening on %s", addr)
	log.Infof("  Connect (CBOR): http://%s%s", addr, OpenProcedure)
	return http.ListenAndServe(addr, s.mux)
}

// Stop closes every session and stops the sweeper.
func (s *DebugServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.sessions.CloseAll()
}
