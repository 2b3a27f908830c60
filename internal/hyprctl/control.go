package hyprctl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
)

// okReply is the compositor's acknowledgement for an accepted dispatch.
const okReply = "ok"

// Control issues commands and queries over the control socket. Every request
// runs on a fresh connection, the same way the compositor's own CLI talks to
// it. Control is safe for concurrent use.
type Control struct {
	socketPath string
	timeout    time.Duration
	logger     *slog.Logger
}

// NewControl builds a control client. The timeout bounds each request end to
// end unless the caller's context expires earlier.
func NewControl(socketPath string, timeout time.Duration, logger *slog.Logger) *Control {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Control{socketPath: socketPath, timeout: timeout, logger: logger}
}

// Request sends one raw request and returns the full reply. The compositor
// closes the connection after writing, so the reply is read to EOF.
func (c *Control) Request(ctx context.Context, request string) (string, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryTransport, "failed to dial control socket").
			Retryable().
			WithContext("socket", c.socketPath).
			Build()
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryTransport, "failed to set control deadline").Build()
	}

	if _, err := conn.Write([]byte(request)); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryTransport, "failed to write control request").
			Retryable().
			WithContext("request", request).
			Build()
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryTransport, "failed to read control reply").
			Retryable().
			WithContext("request", request).
			Build()
	}

	return string(reply), nil
}

// Dispatch sends a dispatcher command and verifies the compositor accepted
// it. Any reply other than "ok" is a rejection.
func (c *Control) Dispatch(ctx context.Context, args string) error {
	reply, err := c.Request(ctx, "dispatch "+args)
	if err != nil {
		return err
	}

	if trimmed := strings.TrimSpace(reply); trimmed != okReply {
		return ferrors.CommandRejected("compositor rejected dispatch").
			WithContext("args", args).
			WithContext("reply", trimmed).
			Build()
	}

	c.logger.Debug("Dispatch accepted", logfields.Command(args))
	return nil
}

// Monitors returns the connected monitors.
func (c *Control) Monitors(ctx context.Context) ([]Monitor, error) {
	return queryJSON[[]Monitor](ctx, c, "j/monitors")
}

// Workspaces returns every live workspace.
func (c *Control) Workspaces(ctx context.Context) ([]Workspace, error) {
	return queryJSON[[]Workspace](ctx, c, "j/workspaces")
}

// Clients returns every window the compositor tracks.
func (c *Control) Clients(ctx context.Context) ([]Client, error) {
	return queryJSON[[]Client](ctx, c, "j/clients")
}

// ActiveWorkspace returns the workspace holding keyboard focus.
func (c *Control) ActiveWorkspace(ctx context.Context) (Workspace, error) {
	return queryJSON[Workspace](ctx, c, "j/activeworkspace")
}

func queryJSON[T any](ctx context.Context, c *Control, query string) (T, error) {
	var out T

	reply, err := c.Request(ctx, query)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return out, ferrors.WrapError(err, ferrors.CategoryParse, "failed to decode query reply").
			WithContext("query", query).
			Build()
	}

	return out, nil
}
