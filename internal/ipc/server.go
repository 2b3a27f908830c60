package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
	"github.com/gyromean/hywoma/internal/logfields"
)

// requestDeadline bounds one connection end to end. Requests are tiny and
// answered from in-process state, so a slow client is the only way to hit it.
const requestDeadline = 5 * time.Second

// Server accepts control connections and answers them from the daemon.
type Server struct {
	path   string
	api    DaemonAPI
	logger *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	wg       sync.WaitGroup
}

func NewServer(path string, api DaemonAPI, logger *slog.Logger) (*Server, error) {
	if path == "" {
		return nil, ferrors.ValidationError("socket path is required").Build()
	}
	if api == nil {
		return nil, ferrors.ValidationError("daemon api is required").Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{path: path, api: api, logger: logger}, nil
}

// Start binds the socket and begins accepting. A stale socket file from a
// crashed daemon is removed first; a live daemon holds the bind either way.
func (s *Server) Start(ctx context.Context) error {
	_ = os.Remove(s.path)

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryIPC, "failed to bind control socket").
			WithContext("socket", s.path).
			Build()
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("Control socket listening", logfields.Socket(s.path))

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Stop closes the listener, waits for in-flight requests, and removes the
// socket file.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryIPC, "timed out waiting for control socket to drain").Build()
	}

	_ = os.Remove(s.path)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isStopped() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Control socket accept failed", logfields.Error(err))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(requestDeadline))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		s.logger.Debug("Control request decode failed", logfields.Error(err))
		s.reply(conn, Response{Error: "malformed request"})
		return
	}

	s.logger.Debug("Control request", logfields.Command(req.Command))
	s.reply(conn, s.answer(ctx, req))
}

func (s *Server) answer(ctx context.Context, req Request) Response {
	switch req.Command {
	case CommandStatus:
		report := s.api.StatusReport(ctx)
		return Response{OK: true, Status: &report}

	case CommandReload:
		gen, err := s.api.ReloadPolicy(ctx)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true, Reload: &ReloadResult{Generation: gen}}

	case CommandPass:
		reason := req.Reason
		if reason == "" {
			reason = "requested over control socket"
		}
		if err := s.api.TriggerPass(ctx, reason); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}

	case CommandPlan:
		plan, err := s.api.PreviewPlan(ctx)
		if err != nil {
			return Response{Error: err.Error()}
		}
		preview := PreviewFromPlan(plan)
		return Response{OK: true, Plan: &preview}

	default:
		return Response{Error: "unknown command: " + req.Command}
	}
}

func (s *Server) reply(conn net.Conn, resp Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Debug("Control reply write failed", logfields.Error(err))
	}
}
