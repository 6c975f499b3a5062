package rpc

import (
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/registry"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server. Services are registered by the
// caller before Start.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// Check if the error is due to the listener being closed.
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes session inspection for operators.
type AdminService struct {
	registry *registry.Registry
}

func NewAdminService(reg *registry.Registry) *AdminService {
	return &AdminService{registry: reg}
}

// Register installs the service on the default rpc server.
func (as *AdminService) Register() error {
	return rpc.Register(as)
}

type ListSessionsArgs struct{}

type ListSessionsReply struct {
	SessionIDs []string
}

func (as *AdminService) ListActiveSessions(args *ListSessionsArgs, reply *ListSessionsReply) error {
	reply.SessionIDs = as.registry.ActiveSessionIDs()
	return nil
}

type SessionInfoArgs struct {
	SessionID string
}

type SessionInfoReply struct {
	SessionID    string
	JoinCode     string
	Status       string
	DMUserID     int64
	PlayerCount  int
	StateVersion int64
	CurrentTurn  string
	CreatedAt    time.Time
}

func (as *AdminService) GetSessionInfo(args *SessionInfoArgs, reply *SessionInfoReply) error {
	s, exists := as.registry.Get(args.SessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not in registry")
	}
	s.Lock()
	defer s.Unlock()
	reply.SessionID = s.ID
	reply.JoinCode = s.JoinCode
	reply.Status = string(s.Status)
	reply.DMUserID = s.DMUserID
	reply.PlayerCount = len(s.Players)
	reply.StateVersion = s.StateVersion
	if s.State != nil {
		reply.CurrentTurn = s.State.Combat.TurnState.UnitID
	}
	reply.CreatedAt = s.CreatedAt
	return nil
}
