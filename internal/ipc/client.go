package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"time"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

// Client talks to a running daemon over the control socket.
type Client struct {
	path    string
	timeout time.Duration
}

func NewClient(path string) *Client {
	if path == "" {
		path = DefaultSocketPath()
	}
	return &Client{path: path, timeout: requestDeadline}
}

// Status fetches the daemon status report.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	resp, err := c.roundTrip(ctx, Request{Command: CommandStatus})
	if err != nil {
		return StatusReport{}, err
	}
	if resp.Status == nil {
		return StatusReport{}, ferrors.IPCError("daemon answered without a status payload").Build()
	}
	return *resp.Status, nil
}

// Reload asks the daemon to reload its policy file, returning the new
// generation.
func (c *Client) Reload(ctx context.Context) (uint64, error) {
	resp, err := c.roundTrip(ctx, Request{Command: CommandReload})
	if err != nil {
		return 0, err
	}
	if resp.Reload == nil {
		return 0, ferrors.IPCError("daemon answered without a reload payload").Build()
	}
	return resp.Reload.Generation, nil
}

// Pass asks the daemon for a reconciliation pass.
func (c *Client) Pass(ctx context.Context, reason string) error {
	_, err := c.roundTrip(ctx, Request{Command: CommandPass, Reason: reason})
	return err
}

// Plan fetches what a pass would dispatch right now, without executing it.
func (c *Client) Plan(ctx context.Context) (PlanPreview, error) {
	resp, err := c.roundTrip(ctx, Request{Command: CommandPlan})
	if err != nil {
		return PlanPreview{}, err
	}
	if resp.Plan == nil {
		return PlanPreview{}, ferrors.IPCError("daemon answered without a plan payload").Build()
	}
	return *resp.Plan, nil
}

// roundTrip dials, sends one request, and reads the one-line reply. The
// daemon closes the connection after answering.
func (c *Client) roundTrip(ctx context.Context, req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", c.path, c.timeout)
	if err != nil {
		return Response{}, ferrors.WrapError(err, ferrors.CategoryIPC, "failed to dial daemon control socket").
			WithContext("socket", c.path).
			WithContext("hint", "is the daemon running?").
			Build()
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, ferrors.WrapError(err, ferrors.CategoryIPC, "failed to send control request").Build()
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Response{}, ferrors.WrapError(err, ferrors.CategoryIPC, "failed to read control reply").Build()
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return Response{}, ferrors.WrapError(err, ferrors.CategoryIPC, "failed to decode control reply").Build()
	}

	if !resp.OK {
		return resp, ferrors.IPCError(resp.Error).Build()
	}
	return resp, nil
}
