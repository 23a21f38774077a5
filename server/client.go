package server

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote debug service.
type Client struct {
	open            *connect.Client[OpenRequest, OpenResponse]
	step            *connect.Client[StepRequest, StateResponse]
	cont            *connect.Client[ContinueRequest, StateResponse]
	setBreakpoint   *connect.Client[BreakpointRequest, BreakpointsResponse]
	clearBreakpoint *connect.Client[BreakpointRequest, BreakpointsResponse]
	registers       *connect.Client[RegistersRequest, RegistersResponse]
	setRegister     *connect.Client[SetRegisterRequest, SetRegisterResponse]
	close           *connect.Client[CloseRequest, CloseResponse]
}

// NewClient creates a client for the service at baseURL, e.g.
// "http://127.0.0.1:7370".
func NewClient(httpClient connect.HTTPClient, baseURL string) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	codec := connect.WithCodec(newCBORCodec())
	return &Client{
		open:            connect.NewClient[OpenRequest, OpenResponse](httpClient, baseURL+OpenProcedure, codec),
		step:            connect.NewClient[StepRequest, StateResponse](httpClient, baseURL+StepProcedure, codec),
		cont:            connect.NewClient[ContinueRequest, StateResponse](httpClient, baseURL+ContinueProcedure, codec),
		setBreakpoint:   connect.NewClient[BreakpointRequest, BreakpointsResponse](httpClient, baseURL+SetBreakpointProcedure, codec),
		clearBreakpoint: connect.NewClient[BreakpointRequest, BreakpointsResponse](httpClient, baseURL+ClearBreakpointProcedure, codec),
		registers:       connect.NewClient[RegistersRequest, RegistersResponse](httpClient, baseURL+RegistersProcedure, codec),
		setRegister:     connect.NewClient[SetRegisterRequest, SetRegisterResponse](httpClient, baseURL+SetRegisterProcedure, codec),
		close:           connect.NewClient[CloseRequest, CloseResponse](httpClient, baseURL+CloseProcedure, codec),
	}
}

func (c *Client) Open(ctx context.Context, req *OpenRequest) (*OpenResponse, error) {
	res, err := c.open.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}

func (c *Client) Step(ctx context.Context, sessionID string, count int) (State, error) {
	res, err := c.step.CallUnary(ctx, connect.NewRequest(&StepRequest{SessionID: sessionID, Count: count}))
	if err != nil {
		return State{}, err
	}
	return res.Msg.State, nil
}

func (c *Client) Continue(ctx context.Context, sessionID string, maxSteps uint64) (State, error) {
	res, err := c.cont.CallUnary(ctx, connect.NewRequest(&ContinueRequest{SessionID: sessionID, MaxSteps: maxSteps}))
	if err != nil {
		return State{}, err
	}
	return res.Msg.State, nil
}

func (c *Client) SetBreakpoint(ctx context.Context, sessionID, chunk string, pc uint64) ([]Breakpoint, error) {
	res, err := c.setBreakpoint.CallUnary(ctx, connect.NewRequest(&BreakpointRequest{SessionID: sessionID, Chunk: chunk, PC: pc}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Breakpoints, nil
}

func (c *Client) ClearBreakpoint(ctx context.Context, sessionID, chunk string, pc uint64) ([]Breakpoint, error) {
	res, err := c.clearBreakpoint.CallUnary(ctx, connect.NewRequest(&BreakpointRequest{SessionID: sessionID, Chunk: chunk, PC: pc}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Breakpoints, nil
}

func (c *Client) Registers(ctx context.Context, sessionID string, names ...string) (map[string]string, error) {
	res, err := c.registers.CallUnary(ctx, connect.NewRequest(&RegistersRequest{SessionID: sessionID, Names: names}))
	if err != nil {
		return nil, err
	}
	return res.Msg.Values, nil
}

func (c *Client) SetRegister(ctx context.Context, sessionID, name, value string) (string, error) {
	res, err := c.setRegister.CallUnary(ctx, connect.NewRequest(&SetRegisterRequest{SessionID: sessionID, Name: name, Value: value}))
	if err != nil {
		return "", err
	}
	return res.Msg.Value, nil
}

func (c *Client) Close(ctx context.Context, sessionID string) error {
	_, err := c.close.CallUnary(ctx, connect.NewRequest(&CloseRequest{SessionID: sessionID}))
	return err
}
