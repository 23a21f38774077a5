package server

import (
	"context"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/chazu/m0/vm"
)

func TestClientRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	opened, err := client.Open(ctx, &OpenRequest{Registers: map[string]string{"I0": "3"}})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := opened.SessionID
	if opened.State.Chunk != "main" {
		t.Errorf("Chunk = %q, want main", opened.State.Chunk)
	}

	bps, err := client.SetBreakpoint(ctx, id, "main", 12)
	if err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	if len(bps) != 1 || bps[0].Chunk != "main" {
		t.Errorf("Breakpoints = %+v", bps)
	}

	st, err := client.Continue(ctx, id, 0)
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if st.PC != 12 || st.Breakpoint == 0 || string(st.Output) != "1" {
		t.Errorf("State = %+v, output %q", st, st.Output)
	}

	v, err := client.SetRegister(ctx, id, "I0", "1")
	if err != nil {
		t.Fatalf("SetRegister: %v", err)
	}
	if v != "1" {
		t.Errorf("SetRegister = %q, want 1", v)
	}

	if _, err := client.ClearBreakpoint(ctx, id, "main", 12); err != nil {
		t.Fatalf("ClearBreakpoint: %v", err)
	}
	st, err = client.Continue(ctx, id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != "halted" {
		t.Errorf("Status = %s, want halted", st.Status)
	}

	regs, err := client.Registers(ctx, id, "I1", "pc")
	if err != nil {
		t.Fatalf("Registers: %v", err)
	}
	if regs["I1"] != "1" || regs["pc"] != "20" {
		t.Errorf("Registers = %v", regs)
	}

	st, err = client.Step(ctx, id, 1)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != "halted" || st.Steps != 0 {
		t.Errorf("Step after halt = %+v", st)
	}

	if err := client.Close(ctx, id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = client.Step(ctx, id, 1)
	expectCode(t, err, connect.CodeNotFound)
}

func TestServerSweepsIdleSessions(t *testing.T) {
	client, srv := newTestClient(t,
		WithSessionTTL(20*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)
	ctx := context.Background()

	opened, err := client.Open(ctx, &OpenRequest{})
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.sessions.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.sessions.Len() != 0 {
		t.Fatal("idle session was not swept")
	}

	_, err = client.Step(ctx, opened.SessionID, 1)
	expectCode(t, err, connect.CodeNotFound)
}

func TestSessionStoreSweep(t *testing.T) {
	sessions := NewSessionStore()
	svc := NewDebugService(testRegistry(t), sessions, false, 0)
	t.Cleanup(sessions.CloseAll)

	openSession(t, svc, &OpenRequest{})
	openSession(t, svc, &OpenRequest{})

	if n := sessions.Sweep(time.Hour); n != 0 {
		t.Errorf("Sweep(1h) removed %d, want 0", n)
	}
	time.Sleep(5 * time.Millisecond)
	if n := sessions.Sweep(time.Millisecond); n != 2 {
		t.Errorf("Sweep(1ms) removed %d, want 2", n)
	}
	if sessions.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sessions.Len())
	}
}

func TestWorkerStopped(t *testing.T) {
	svc, sessions := newTestService(t, 0)
	id := openSession(t, svc, &OpenRequest{})

	session, _ := sessions.Get(id)
	session.worker.Stop()
	session.worker.Stop()

	_, err := session.worker.Do(context.Background(), func(d *vm.Debugger) any { return nil })
	if err != ErrWorkerStopped {
		t.Errorf("Do after Stop = %v, want ErrWorkerStopped", err)
	}
}
