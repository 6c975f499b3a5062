package server

import (
	"encoding/json"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/rpgserver/broadcast"
	"github.com/wfunc/rpgserver/executor"
	"github.com/wfunc/rpgserver/lifecycle"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/monitor"
	"github.com/wfunc/rpgserver/network"
	"github.com/wfunc/rpgserver/registry"
	rpgserver_rpc "github.com/wfunc/rpgserver/rpc"
	"github.com/wfunc/rpgserver/services"
	"github.com/wfunc/rpgserver/session"
)

// GameServer accepts websocket connections and dispatches framed packets
// to the lifecycle manager, the action executor, and the character
// service. All trust decisions happen here: a socket has no identity
// until auth succeeds, and dm commands are gated on the session's DM.
type GameServer struct {
	addr        string
	upgrader    websocket.Upgrader
	sockets     *session.Manager
	registry    *registry.Registry
	lifecycle   *lifecycle.Manager
	executor    *executor.Executor
	characters  *services.CharacterService
	broadcaster broadcast.Broadcaster
	auth        Authenticator
	monitor     *monitor.Monitor
	rpcServer   *rpgserver_rpc.Server

	shutdownChan chan struct{}
}

type Deps struct {
	Sockets     *session.Manager
	Registry    *registry.Registry
	Lifecycle   *lifecycle.Manager
	Executor    *executor.Executor
	Characters  *services.CharacterService
	Broadcaster broadcast.Broadcaster
	Auth        Authenticator
	Monitor     *monitor.Monitor
}

func NewGameServer(addr, rpcAddr string, deps Deps) *GameServer {
	s := &GameServer{
		addr:         addr,
		sockets:      deps.Sockets,
		registry:     deps.Registry,
		lifecycle:    deps.Lifecycle,
		executor:     deps.Executor,
		characters:   deps.Characters,
		broadcaster:  deps.Broadcaster,
		auth:         deps.Auth,
		monitor:      deps.Monitor,
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 初始化RPC服务器
	rpcServer, err := rpgserver_rpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	adminService := rpgserver_rpc.NewAdminService(deps.Registry)
	rpc.Register(adminService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	http.HandleFunc("/ws", s.handleWebSocket)
	logger.Log.Infof("Game server listening on %s", s.addr)
	return http.ListenAndServe(s.addr, nil)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.rpcServer.Stop()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sockets.Add(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.sockets.Remove(sess.GetID())
		s.handleDisconnect(sess)
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

// handleDisconnect marks a playing member disconnected so they can
// reconnect and resync; a lobby member simply leaves.
func (s *GameServer) handleDisconnect(sess *session.Session) {
	if sess.UserID == 0 {
		return
	}
	if s.monitor != nil {
		s.monitor.DecConnectedPlayers()
	}
	gameID := sess.Game()
	if gameID == "" {
		return
	}
	// 同一用户还有别的 socket 在线就不算掉线
	for _, other := range s.sockets.GetByUserID(sess.UserID) {
		if other.Game() == gameID {
			return
		}
	}
	game, exists := s.registry.Get(gameID)
	if !exists {
		return
	}
	game.Lock()
	status := game.Status
	isDM := game.DMUserID == sess.UserID
	game.Unlock()

	if status == models.StatusLobby && !isDM {
		s.lifecycle.LeaveSession(gameID, sess.UserID)
		return
	}
	if !isDM {
		s.lifecycle.UpdatePlayerConnection(gameID, sess.UserID, models.ConnectionDisconnected)
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	if packet.MsgID == network.MsgTypeHeartbeat {
		sess.LastActive = time.Now()
		return
	}
	if packet.MsgID == network.MsgTypeAuth {
		s.handleAuth(sess, packet)
		return
	}
	if sess.UserID == 0 {
		sess.SendJSON(network.MsgTypeError, network.ErrorResponse{Seq: peekSeq(packet.Data), Code: models.CodeAuthRequired})
		return
	}

	switch packet.MsgID {
	case network.MsgTypeCreateGame:
		s.handleCreateGame(sess, packet)
	case network.MsgTypeJoinGame:
		s.handleJoinGame(sess, packet)
	case network.MsgTypeLeaveGame:
		s.handleLeaveGame(sess, packet)
	case network.MsgTypeReady:
		s.handleReady(sess, packet)
	case network.MsgTypeAction:
		s.handleAction(sess, packet)
	case network.MsgTypeRequestSync:
		s.handleRequestSync(sess, packet)
	case network.MsgTypeChat:
		s.handleChat(sess, packet)
	case network.MsgTypeSyncCharacter:
		s.handleSyncCharacter(sess, packet)
	case network.MsgTypeGetCharacters:
		s.handleGetCharacters(sess, packet)
	case network.MsgTypeDMCommand:
		s.handleDMCommand(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
	}
}

// peekSeq recovers the request seq from a payload we could not or did
// not decode, so even error responses stay correlated.
func peekSeq(data []byte) uint64 {
	var envelope struct {
		Seq uint64 `json:"seq"`
	}
	json.Unmarshal(data, &envelope)
	return envelope.Seq
}

func (s *GameServer) sendError(sess *session.Session, seq uint64, err error) {
	sess.SendJSON(network.MsgTypeError, network.ErrorResponse{Seq: seq, Code: models.CodeOf(err)})
}

func (s *GameServer) handleAuth(sess *session.Session, packet *network.Packet) {
	var req network.AuthRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	userID, err := s.auth.Authenticate(req.Token)
	if err != nil {
		sess.SendJSON(network.MsgTypeError, network.ErrorResponse{Seq: req.Seq, Code: models.CodeAuthRequired})
		return
	}
	sess.UserID = userID
	if s.monitor != nil {
		s.monitor.IncConnectedPlayers()
	}
	sess.SendJSON(network.MsgTypeAuth, network.AuthResponse{Seq: req.Seq, UserID: userID})

	// 重连: 恢复会话关联，客户端随后用 request_sync 补状态
	if gameID, active := s.registry.ActiveSessionFor(userID); active {
		sess.SetGame(gameID)
		if game, exists := s.registry.Get(gameID); exists {
			game.Lock()
			_, isPlayer := game.Players[userID]
			game.Unlock()
			if isPlayer {
				s.lifecycle.UpdatePlayerConnection(gameID, userID, models.ConnectionConnected)
			}
		}
	}
	logger.Log.Infof("Session %s authenticated as user %d", sess.GetID(), userID)
}

func (s *GameServer) handleCreateGame(sess *session.Session, packet *network.Packet) {
	var req network.CreateGameRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	game, err := s.lifecycle.CreateSession(sess.UserID, req.Config)
	if err != nil {
		s.sendError(sess, req.Seq, err)
		return
	}
	sess.SetGame(game.ID)
	sess.SendJSON(network.MsgTypeGameCreated, network.GameCreatedResponse{
		Seq:       req.Seq,
		SessionID: game.ID,
		JoinCode:  game.JoinCode,
	})
}

func (s *GameServer) handleJoinGame(sess *session.Session, packet *network.Packet) {
	var req network.JoinGameRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	sessionID := req.SessionID
	if sessionID == "" && req.JoinCode != "" {
		if game, exists := s.registry.GetByJoinCode(req.JoinCode); exists {
			sessionID = game.ID
		}
	}
	if sessionID == "" {
		s.sendError(sess, req.Seq, models.NewGameError(models.CodeSessionNotFound, "no session id or valid join code"))
		return
	}
	player, err := s.lifecycle.JoinSession(sessionID, sess.UserID, req.CharacterID)
	if err != nil {
		s.sendError(sess, req.Seq, err)
		return
	}
	sess.SetGame(sessionID)
	sess.SendJSON(network.MsgTypeGameJoined, network.GameJoinedResponse{
		Seq:       req.Seq,
		SessionID: sessionID,
		Player:    player,
	})
}

func (s *GameServer) handleLeaveGame(sess *session.Session, packet *network.Packet) {
	var req network.LeaveGameRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	gameID := sess.Game()
	if gameID == "" {
		s.sendError(sess, req.Seq, models.NewGameError(models.CodeNotInSession, "not in a session"))
		return
	}
	if err := s.lifecycle.LeaveSession(gameID, sess.UserID); err != nil {
		s.sendError(sess, req.Seq, err)
		return
	}
	sess.SetGame("")
}

func (s *GameServer) handleReady(sess *session.Session, packet *network.Packet) {
	var req network.ReadyRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	gameID := sess.Game()
	if gameID == "" {
		s.sendError(sess, req.Seq, models.NewGameError(models.CodeNotInSession, "not in a session"))
		return
	}
	if err := s.lifecycle.SetPlayerReady(gameID, sess.UserID, req.Ready); err != nil {
		s.sendError(sess, req.Seq, err)
	}
}

func (s *GameServer) handleAction(sess *session.Session, packet *network.Packet) {
	var req network.ActionRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	gameID := sess.Game()
	if gameID == "" {
		s.sendError(sess, req.Seq, models.NewGameError(models.CodeNotInSession, "not in a session"))
		return
	}

	start := time.Now()
	result := s.executor.ExecuteGameAction(gameID, sess.UserID, req.Action)
	result.Seq = req.Seq
	if s.monitor != nil {
		s.monitor.ObserveActionLatency(time.Since(start))
		if result.Valid {
			s.monitor.IncActionsExecuted()
		} else {
			s.monitor.IncActionsRejected()
		}
	}
	sess.SendJSON(network.MsgTypeActionResult, result)
}

func (s *GameServer) handleRequestSync(sess *session.Session, packet *network.Packet) {
	var req network.RequestSyncRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	gameID := sess.Game()
	if gameID == "" {
		s.sendError(sess, req.Seq, models.NewGameError(models.CodeNotInSession, "not in a session"))
		return
	}
	state, err := s.executor.FullStateFor(gameID, sess.UserID)
	if err != nil {
		s.sendError(sess, req.Seq, err)
		return
	}
	state.Seq = req.Seq
	if s.monitor != nil {
		s.monitor.IncResyncs()
	}
	sess.SendJSON(network.MsgTypeFullState, state)
}

func (s *GameServer) handleChat(sess *session.Session, packet *network.Packet) {
	var req network.ChatRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	gameID := sess.Game()
	if gameID == "" {
		s.sendError(sess, req.Seq, models.NewGameError(models.CodeNotInSession, "not in a session"))
		return
	}
	s.broadcaster.BroadcastToGame(gameID, network.MsgTypeChatMessage, network.ChatMessage{
		UserID: sess.UserID,
		Text:   req.Text,
	})
}

func (s *GameServer) handleSyncCharacter(sess *session.Session, packet *network.Packet) {
	var req network.SyncCharacterRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	char, err := s.characters.SyncCharacter(sess.UserID, req.Character)
	if err != nil {
		s.sendError(sess, req.Seq, err)
		return
	}
	sess.SendJSON(network.MsgTypeCharacterSynced, network.CharacterSyncedResponse{
		Seq:         req.Seq,
		CharacterID: char.ID,
	})
}

func (s *GameServer) handleGetCharacters(sess *session.Session, packet *network.Packet) {
	var req network.GetCharactersRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	chars, err := s.characters.ListCharacters(sess.UserID)
	if err != nil {
		s.sendError(sess, req.Seq, err)
		return
	}
	sess.SendJSON(network.MsgTypeCharacters, network.CharactersResponse{
		Seq:        req.Seq,
		Characters: chars,
	})
}

// handleDMCommand dispatches the dm command union. Every kind requires
// the sender to be the session's DM.
func (s *GameServer) handleDMCommand(sess *session.Session, packet *network.Packet) {
	var req network.DMCommandRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return
	}
	gameID := sess.Game()
	if gameID == "" {
		s.sendError(sess, req.Seq, models.NewGameError(models.CodeNotInSession, "not in a session"))
		return
	}

	err := s.dispatchDMCommand(sess.UserID, gameID, req.Command)
	result := network.DMCommandResult{
		Seq:     req.Seq,
		Command: req.Command.Kind,
		Valid:   err == nil,
	}
	if err != nil {
		result.Reason = models.CodeOf(err)
		logger.Log.Infof("DM command %s on session %s rejected: %v", req.Command.Kind, gameID, err)
	}
	sess.SendJSON(network.MsgTypeDMCommandResult, result)
}

func (s *GameServer) dispatchDMCommand(userID int64, gameID string, cmd models.DMCommand) error {
	game, exists := s.registry.Get(gameID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}
	if game.DMUserID != userID {
		return models.NewGameError(models.CodeDMRequired, "only the DM can issue dm commands")
	}

	switch cmd.Kind {
	case models.DMStartGame:
		return s.lifecycle.StartGame(gameID, userID)
	case models.DMPauseGame:
		return s.lifecycle.PauseGame(gameID, userID)
	case models.DMResumeGame:
		return s.lifecycle.ResumeGame(gameID, userID)
	case models.DMEndGame:
		return s.lifecycle.EndSession(gameID, models.EndReasonDMEnded)
	case models.DMKickPlayer:
		return s.lifecycle.KickPlayer(gameID, userID, cmd.TargetUserID)
	case models.DMSkipTurn:
		return s.executor.SkipTurn(gameID)
	case models.DMGrantGold:
		return s.executor.GrantGold(gameID, cmd.Amount)
	case models.DMGrantXP:
		return s.grantXP(game, cmd.TargetUserID, cmd.Amount)
	case models.DMGrantWeapon:
		return s.executor.GrantWeapon(gameID, cmd.Weapon)
	case models.DMSpawnMonster:
		if cmd.Position == nil {
			return models.NewGameError(models.CodeExecutionError, "spawn_monster requires a position")
		}
		return s.executor.SpawnMonster(gameID, cmd.Name, *cmd.Position, cmd.Stats)
	case models.DMRemoveMonster:
		return s.executor.RemoveMonster(gameID, cmd.UnitID)
	case models.DMModifyMonster:
		return s.executor.ModifyMonster(gameID, cmd.UnitID, cmd.Stats)
	default:
		return models.NewGameError(models.CodeExecutionError, "unknown dm command "+string(cmd.Kind))
	}
}

// grantXP goes to the durable character record, not the combat state.
func (s *GameServer) grantXP(game *models.GameSession, targetUserID, amount int64) error {
	game.Lock()
	player, ok := game.Players[targetUserID]
	game.Unlock()
	if !ok {
		return models.NewGameError(models.CodePlayerNotInGame, "target not in session")
	}
	_, err := s.characters.GrantXP(player.CharacterID, amount)
	return err
}
