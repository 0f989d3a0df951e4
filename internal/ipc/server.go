package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"clipguard/internal/guard"
	"clipguard/internal/logging"
	"clipguard/internal/stats"
)

// ServerConfig configures the IPC server.
type ServerConfig struct {
	// SocketPath is the Unix socket to listen on.
	SocketPath string

	// Timeout bounds each connection's total read/write time.
	Timeout time.Duration
}

// Server serves control commands against the guard monitor.
type Server struct {
	cfg     ServerConfig
	monitor *guard.Monitor
	stats   *stats.Store
	log     *logging.Logger

	// OnShutdown is invoked when a shutdown command is accepted.
	OnShutdown func()

	listener net.Listener
	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates an IPC server bound to the given monitor and stats.
func NewServer(cfg ServerConfig, monitor *guard.Monitor, st *stats.Store, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Server{
		cfg:     cfg,
		monitor: monitor,
		stats:   st,
		log:     log.WithComponent("ipc"),
	}
}

// Start begins listening on the socket. A stale socket file from a
// previous run is removed first.
func (s *Server) Start() error {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}

	s.listener = listener
	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("control socket listening", "path", s.cfg.SocketPath)
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	os.Remove(s.cfg.SocketPath)
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.cfg.Timeout))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		s.log.Debug("read request failed", "error", err)
		return
	}

	var req Request
	var resp Response
	if err := json.Unmarshal(line, &req); err != nil {
		resp = errorResponse("malformed request")
	} else {
		resp = s.dispatch(req)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		s.log.Error("marshal response failed", "error", err)
		return
	}
	out = append(out, '\n')
	if _, err := conn.Write(out); err != nil {
		s.log.Debug("write response failed", "error", err)
	}
}

func (s *Server) dispatch(req Request) Response {
	if req.Version != ProtocolVersion {
		return errorResponse(fmt.Sprintf("protocol version mismatch: daemon %d, client %d",
			ProtocolVersion, req.Version))
	}

	switch req.Command {
	case CmdPing:
		return Response{OK: true}

	case CmdStatus:
		st := s.monitor.Status()
		return Response{OK: true, Status: &st}

	case CmdConfirm:
		if err := s.monitor.Confirm(); err != nil {
			return errorResponse(err.Error())
		}
		return Response{OK: true}

	case CmdDismiss:
		if err := s.monitor.Dismiss(); err != nil {
			return errorResponse(err.Error())
		}
		return Response{OK: true}

	case CmdCancel:
		if err := s.monitor.Cancel(); err != nil {
			return errorResponse(err.Error())
		}
		return Response{OK: true}

	case CmdStats:
		snap := s.stats.Snapshot()
		return Response{OK: true, Stats: &snap}

	case CmdShutdown:
		if s.OnShutdown != nil {
			// Reply before the daemon starts tearing down.
			go s.OnShutdown()
		}
		return Response{OK: true}

	default:
		return errorResponse(fmt.Sprintf("unknown command %q", req.Command))
	}
}
