// lifecycle/lifecycle.go
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/rpgserver/broadcast"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/network"
	"github.com/wfunc/rpgserver/persistence"
	"github.com/wfunc/rpgserver/registry"
	"github.com/wfunc/rpgserver/session"
)

// Initializer 由动作执行器实现：StartGame 只负责守卫与状态切换，
// 世界构建延迟到这里。接口定义在消费方以打破包环。
type Initializer interface {
	InitializeGame(sessionID string) error
}

// SessionGauge 上报驻留会话数。*monitor.Monitor 实现它。
type SessionGauge interface {
	SetActiveSessions(count int)
}

// Manager 驱动会话生命周期状态机:
// lobby → playing ↔ paused → ended，外加 lobby → ended（DM 开局前离开）。
// 每个转换都同时做角色检查和当前状态检查，各自对应独立的错误码。
type Manager struct {
	registry         *registry.Registry
	db               persistence.Database
	broadcaster      broadcast.Broadcaster
	sockets          *session.Manager
	initializer      Initializer
	metrics          SessionGauge
	maxSessions      int
	defaultTurnLimit int
}

func NewManager(reg *registry.Registry, db persistence.Database, b broadcast.Broadcaster, sockets *session.Manager, maxSessions, defaultTurnLimit int) *Manager {
	return &Manager{
		registry:         reg,
		db:               db,
		broadcaster:      b,
		sockets:          sockets,
		maxSessions:      maxSessions,
		defaultTurnLimit: defaultTurnLimit,
	}
}

// SetInitializer wires the action executor in after construction.
func (m *Manager) SetInitializer(init Initializer) {
	m.initializer = init
}

// SetMetrics wires the session gauge in after construction.
func (m *Manager) SetMetrics(g SessionGauge) {
	m.metrics = g
}

func (m *Manager) updateSessionGauge() {
	if m.metrics != nil {
		m.metrics.SetActiveSessions(m.registry.ActiveCount())
	}
}

// CreateSession opens a new lobby owned by the DM.
func (m *Manager) CreateSession(dmUserID int64, config models.SessionConfig) (*models.GameSession, error) {
	if _, active := m.registry.ActiveSessionFor(dmUserID); active {
		return nil, models.NewGameError(models.CodeAlreadyInSession, "user already has an active session")
	}
	if m.maxSessions > 0 && m.registry.ActiveCount() >= m.maxSessions {
		return nil, models.NewGameError(models.CodeExecutionError, "server session capacity reached")
	}
	if config.MaxPlayers <= 0 {
		config.MaxPlayers = 4
	}
	if config.Difficulty == "" {
		config.Difficulty = "normal"
	}
	if config.MapSeed == 0 {
		config.MapSeed = time.Now().UnixNano()
	}
	if config.TurnTimeLimit == 0 {
		config.TurnTimeLimit = m.defaultTurnLimit
	}

	s := &models.GameSession{
		ID:        uuid.New().String(),
		JoinCode:  m.registry.GenerateJoinCode(),
		DMUserID:  dmUserID,
		Status:    models.StatusLobby,
		Config:    config,
		Players:   make(map[int64]*models.SessionPlayer),
		CreatedAt: time.Now(),
	}

	if err := m.db.SaveSession(s); err != nil {
		return nil, err
	}
	m.registry.Add(s)
	m.updateSessionGauge()

	logger.Log.Infof("User %d created session %s (join code %s)", dmUserID, s.ID, s.JoinCode)
	return s, nil
}

// JoinSession adds a player to a lobby. Re-joining a session the user is
// already in is idempotent and returns the existing record.
func (m *Manager) JoinSession(sessionID string, userID int64, characterID string) (*models.SessionPlayer, error) {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return nil, models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	defer s.Unlock()

	if existing, ok := s.Players[userID]; ok {
		return existing, nil
	}
	if s.Status != models.StatusLobby {
		return nil, models.NewGameError(models.CodeGameAlreadyStarted, "session is not in lobby")
	}
	if len(s.Players) >= s.Config.MaxPlayers {
		return nil, models.NewGameError(models.CodeSessionFull, "session is full")
	}
	if _, active := m.registry.ActiveSessionFor(userID); active {
		return nil, models.NewGameError(models.CodeAlreadyInSession, "user already has an active session")
	}

	char, err := m.db.LoadCharacter(characterID)
	if err != nil || char.UserID != userID {
		return nil, models.NewGameError(models.CodeCharacterNotFound, "character not found or not owned")
	}

	player := &models.SessionPlayer{
		SessionID:   s.ID,
		UserID:      userID,
		CharacterID: characterID,
		Connection:  models.ConnectionConnected,
		JoinedAt:    time.Now(),
	}
	s.Players[userID] = player
	m.registry.BindUser(userID, s.ID)

	if err := m.db.SaveSessionPlayer(player); err != nil {
		delete(s.Players, userID)
		m.registry.ReleaseUser(userID, s.ID)
		return nil, err
	}

	m.broadcaster.BroadcastToGame(s.ID, network.MsgTypePlayerJoined, network.PlayerJoinedMessage{Player: player})
	m.broadcastLobbyLocked(s)

	logger.Log.Infof("User %d joined session %s", userID, s.ID)
	return player, nil
}

// LeaveSession removes a player. A departing DM ends the session; an
// emptied lobby is evicted immediately.
func (m *Manager) LeaveSession(sessionID string, userID int64) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	if userID == s.DMUserID {
		// DM departure cascades into termination.
		return m.EndSession(sessionID, models.EndReasonDMEnded)
	}

	s.Lock()
	if _, ok := s.Players[userID]; !ok {
		s.Unlock()
		return models.NewGameError(models.CodePlayerNotInGame, "player not in session")
	}
	delete(s.Players, userID)
	emptyLobby := s.Status == models.StatusLobby && len(s.Players) == 0
	s.Unlock()

	m.registry.ReleaseUser(userID, s.ID)
	m.sockets.DetachGame(userID, s.ID)
	if err := m.db.RemoveSessionPlayer(s.ID, userID); err != nil {
		logger.Log.Errorf("Failed to remove player %d from session %s: %v", userID, s.ID, err)
	}

	m.broadcaster.BroadcastToGame(s.ID, network.MsgTypePlayerLeft, network.PlayerLeftMessage{UserID: userID, Reason: "left"})
	m.broadcastLobby(s)

	if emptyLobby {
		m.registry.Evict(s.ID)
	}
	logger.Log.Infof("User %d left session %s", userID, s.ID)
	return nil
}

// SetPlayerReady flips the ready flag. Membership is the only check.
func (m *Manager) SetPlayerReady(sessionID string, userID int64, ready bool) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	player, ok := s.Players[userID]
	if !ok {
		s.Unlock()
		return models.NewGameError(models.CodePlayerNotInGame, "player not in session")
	}
	player.IsReady = ready
	s.Unlock()

	if err := m.db.SaveSessionPlayer(player); err != nil {
		logger.Log.Errorf("Failed to persist ready flag for user %d: %v", userID, err)
	}
	m.broadcaster.SendToUser(userID, network.MsgTypeReadyConfirmed, network.ReadyConfirmedResponse{Ready: ready})
	m.broadcastLobby(s)
	return nil
}

// UpdatePlayerConnection records connect/disconnect transitions so a
// reconnecting client can resume with request_sync.
func (m *Manager) UpdatePlayerConnection(sessionID string, userID int64, status models.ConnectionStatus) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	player, ok := s.Players[userID]
	if !ok {
		s.Unlock()
		return models.NewGameError(models.CodePlayerNotInGame, "player not in session")
	}
	player.Connection = status
	s.Unlock()

	if err := m.db.SaveSessionPlayer(player); err != nil {
		logger.Log.Errorf("Failed to persist connection status for user %d: %v", userID, err)
	}
	m.broadcastLobby(s)
	return nil
}

// StartGame transitions lobby → playing and defers world construction to
// the executor's InitializeGame.
func (m *Manager) StartGame(sessionID string, dmUserID int64) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	if s.DMUserID != dmUserID {
		s.Unlock()
		return models.NewGameError(models.CodeDMRequired, "only the DM can start the game")
	}
	if s.Status != models.StatusLobby {
		s.Unlock()
		return models.NewGameError(models.CodeGameAlreadyStarted, "session already started")
	}
	if len(s.Players) < 1 {
		s.Unlock()
		return models.NewGameError(models.CodeNotEnoughPlayers, "need at least one player besides the DM")
	}
	s.Status = models.StatusPlaying
	s.StartedAt = time.Now()
	s.Unlock()

	if err := m.db.SaveSession(s); err != nil {
		return err
	}

	m.broadcaster.BroadcastToGame(s.ID, network.MsgTypeGameStarted, network.LobbyState{
		SessionID: s.ID,
		JoinCode:  s.JoinCode,
		Status:    s.Status,
		DMUserID:  s.DMUserID,
		Players:   playerList(s),
	})

	logger.Log.Infof("Session %s started by DM %d", s.ID, dmUserID)
	if err := m.initializer.InitializeGame(s.ID); err != nil {
		// 世界构建失败则回滚到大厅，否则会话卡在无状态的 playing
		s.Lock()
		s.Status = models.StatusLobby
		s.StartedAt = time.Time{}
		s.Unlock()
		if dbErr := m.db.SaveSession(s); dbErr != nil {
			logger.Log.Errorf("Failed to persist rollback for session %s: %v", s.ID, dbErr)
		}
		m.broadcastLobby(s)
		logger.Log.Errorf("Session %s failed to initialize, rolled back to lobby: %v", s.ID, err)
		return err
	}
	return nil
}

// PauseGame is DM-only and requires StatusPlaying.
func (m *Manager) PauseGame(sessionID string, dmUserID int64) error {
	return m.togglePause(sessionID, dmUserID, models.StatusPlaying, models.StatusPaused,
		models.CodeGameNotStarted, network.MsgTypeGamePaused)
}

// ResumeGame is DM-only and requires StatusPaused.
func (m *Manager) ResumeGame(sessionID string, dmUserID int64) error {
	return m.togglePause(sessionID, dmUserID, models.StatusPaused, models.StatusPlaying,
		models.CodeGameNotPaused, network.MsgTypeGameResumed)
}

func (m *Manager) togglePause(sessionID string, dmUserID int64, from, to models.SessionStatus, wrongState models.Code, msgID uint16) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	if s.DMUserID != dmUserID {
		s.Unlock()
		return models.NewGameError(models.CodeDMRequired, "only the DM can pause or resume")
	}
	if s.Status != from {
		s.Unlock()
		return models.NewGameError(wrongState, "session is in state "+string(s.Status))
	}
	s.Status = to
	s.Unlock()

	if err := m.db.SaveSession(s); err != nil {
		return err
	}
	m.broadcaster.BroadcastToGame(s.ID, msgID, map[string]string{"sessionId": s.ID})
	return nil
}

// EndSession is the terminal transition. The result is broadcast first,
// then eviction is scheduled so late clients still observe it. A session
// that never left the lobby is evicted immediately.
func (m *Manager) EndSession(sessionID string, reason models.EndReason) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	if s.Status == models.StatusEnded {
		s.Unlock()
		return nil
	}
	fromLobby := s.Status == models.StatusLobby
	s.Status = models.StatusEnded
	s.EndReason = reason
	s.EndedAt = time.Now()
	members := make([]int64, 0, len(s.Players)+1)
	members = append(members, s.DMUserID)
	for userID := range s.Players {
		members = append(members, userID)
	}
	s.Unlock()

	if err := m.db.SaveSession(s); err != nil {
		logger.Log.Errorf("Failed to persist ended session %s: %v", s.ID, err)
	}

	m.broadcaster.BroadcastToGame(s.ID, network.MsgTypeGameEnded, network.GameEndedMessage{
		SessionID: s.ID,
		Reason:    reason,
	})

	// 终局后立刻释放成员绑定：宽限期内会话还驻留缓存，
	// 但任何人都可以马上开新局或加入别处
	for _, userID := range members {
		m.registry.ReleaseUser(userID, s.ID)
	}

	if fromLobby {
		m.registry.Evict(s.ID)
	} else {
		m.registry.ScheduleEviction(s)
	}
	m.updateSessionGauge()
	logger.Log.Infof("Session %s ended (%s)", s.ID, reason)
	return nil
}

// KickPlayer forcibly detaches a player. The DM cannot be targeted.
func (m *Manager) KickPlayer(sessionID string, dmUserID, targetUserID int64) error {
	s, exists := m.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	if s.DMUserID != dmUserID {
		s.Unlock()
		return models.NewGameError(models.CodeDMRequired, "only the DM can kick players")
	}
	if targetUserID == s.DMUserID {
		s.Unlock()
		return models.NewGameError(models.CodeCannotKickDM, "the DM cannot be kicked")
	}
	if _, ok := s.Players[targetUserID]; !ok {
		s.Unlock()
		return models.NewGameError(models.CodePlayerNotInGame, "target not in session")
	}
	delete(s.Players, targetUserID)
	s.Unlock()

	m.registry.ReleaseUser(targetUserID, s.ID)
	if err := m.db.RemoveSessionPlayer(s.ID, targetUserID); err != nil {
		logger.Log.Errorf("Failed to remove kicked player %d: %v", targetUserID, err)
	}

	m.broadcaster.SendToUser(targetUserID, network.MsgTypeKicked, network.KickedMessage{SessionID: s.ID})
	m.sockets.DetachGame(targetUserID, s.ID)
	m.broadcaster.BroadcastToGame(s.ID, network.MsgTypePlayerLeft, network.PlayerLeftMessage{UserID: targetUserID, Reason: "kicked"})
	m.broadcastLobby(s)

	logger.Log.Infof("DM %d kicked user %d from session %s", dmUserID, targetUserID, s.ID)
	return nil
}

func playerList(s *models.GameSession) []*models.SessionPlayer {
	players := make([]*models.SessionPlayer, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	return players
}

func (m *Manager) broadcastLobby(s *models.GameSession) {
	s.Lock()
	defer s.Unlock()
	m.broadcastLobbyLocked(s)
}

func (m *Manager) broadcastLobbyLocked(s *models.GameSession) {
	m.broadcaster.BroadcastToGame(s.ID, network.MsgTypeLobbyState, network.LobbyState{
		SessionID: s.ID,
		JoinCode:  s.JoinCode,
		Status:    s.Status,
		DMUserID:  s.DMUserID,
		Players:   playerList(s),
	})
}
