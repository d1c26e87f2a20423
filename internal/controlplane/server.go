package controlplane

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/eventbus"
	"github.com/terminal-coder/tc/internal/logging"
	"github.com/terminal-coder/tc/internal/store"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Server is the control-plane's UNIX-domain socket listener. It is the only
// component the Agent talks to during a session.
type Server struct {
	repo   *store.Repository
	bus    *eventbus.Bus
	log    *zap.Logger
	clock  Clock
	socket string

	listener net.Listener
	wg       sync.WaitGroup

	human *humanInputRegistry

	humanInputTimeout time.Duration
}

// New constructs a Server bound to repo and bus but not yet listening.
func New(repo *store.Repository, bus *eventbus.Bus, clock Clock) *Server {
	if clock == nil {
		clock = time.Now
	}
	return &Server{
		repo:              repo,
		bus:               bus,
		log:               logging.Named("controlplane"),
		clock:             clock,
		human:             newHumanInputRegistry(),
		humanInputTimeout: 10 * time.Minute,
	}
}

// Listen binds the UNIX-domain socket at path, removing any stale socket
// file left by a prior crashed run first.
func (s *Server) Listen(path string) error {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return domain.NewError(domain.ErrInfrastructure, path, err)
	}
	s.listener = ln
	s.socket = path
	s.log.Info("control-plane listening", zap.String("socket", path))
	return nil
}

// Serve accepts connections until the listener is closed. Each connection
// is handled on its own goroutine; framing is one JSON request per line, one
// JSON response per line, matching the teacher's newline-delimited JSON
// transport (internal/mcp/transport_stdio.go).
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close shuts the listener down and waits for in-flight connections to
// finish.
func (s *Server) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(Response{OK: false, Error: &ErrorPayload{Kind: string(domain.ErrValidation), Message: err.Error()}})
			continue
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.log.Warn("failed writing control-plane response", zap.Error(err))
			return
		}
	}
}

// RegisterToken mints and records a new session token for a session/task
// pair, returning the opaque token the engine hands the Agent via the
// per-task MCP config file (.tc/mcp/<task_id>.json).
func (s *Server) RegisterToken(sessionID, taskID string) (string, error) {
	token := uuid.NewString()
	if err := s.repo.MintSessionToken(token, sessionID, taskID); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Server) dispatch(req Request) Response {
	handler, ok := handlers[req.Op]
	if !ok {
		return errResponse(domain.NewError(domain.ErrValidation, string(req.Op), errUnknownOp))
	}
	tok, err := s.repo.ResolveSessionToken(req.Token)
	if err != nil {
		return errResponse(err)
	}
	result, err := handler(s, tok, req)
	if err != nil {
		return errResponse(err)
	}
	raw, merr := json.Marshal(result)
	if merr != nil {
		return errResponse(domain.NewError(domain.ErrInvariant, string(req.Op), merr))
	}
	return Response{OK: true, Result: raw}
}
