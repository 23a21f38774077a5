package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/m0/pkg/bytecode"
	"github.com/chazu/m0/vm"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// testRegistry links two chunks:
//
//	main: SET_IMM I2, #1; ADD_I I1, I1, I2; PRINT_I _, I1, _; SUB_I I0, I0, I2; GOTO_IF @0001, I0
//	spin: GOTO @0000
func testRegistry(t *testing.T) *vm.Registry {
	t.Helper()

	main := bytecode.NewChunk("main")
	main.Code.EmitImm(bytecode.OpSetImm, 2, 1)
	main.Code.Emit(bytecode.OpAddI, 1, 1, 2)
	main.Code.Emit(bytecode.OpPrintI, 0, 1, 0)
	main.Code.Emit(bytecode.OpSubI, 0, 0, 2)
	main.Code.EmitJump(bytecode.OpGotoIf, 1, 0)
	main.Meta.Add(4, "line", "loop")

	spin := bytecode.NewChunk("spin")
	spin.Code.EmitJump(bytecode.OpGoto, 0, 0)

	reg := vm.NewRegistry()
	if err := reg.AddAll([]*bytecode.Chunk{main, spin}); err != nil {
		t.Fatal(err)
	}
	return reg
}

// newTestService creates a DebugService over testRegistry.
func newTestService(t *testing.T, stepLimit uint64) (*DebugService, *SessionStore) {
	t.Helper()
	sessions := NewSessionStore()
	t.Cleanup(sessions.CloseAll)
	return NewDebugService(testRegistry(t), sessions, false, stepLimit), sessions
}

// newTestClient starts an httptest server and returns a client for it.
func newTestClient(t *testing.T, opts ...ServerOption) (*Client, *DebugServer) {
	t.Helper()
	srv := New(testRegistry(t), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return NewClient(ts.Client(), ts.URL), srv
}

func openSession(t *testing.T, svc *DebugService, req *OpenRequest) string {
	t.Helper()
	res, err := svc.Open(context.Background(), connect.NewRequest(req))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return res.Msg.SessionID
}

func expectCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	if got := connect.CodeOf(err); got != want {
		t.Fatalf("code = %v, want %v (err: %v)", got, want, err)
	}
}
