// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/rpgserver/network"
)

// Session 是一条已升级的 socket 连接。UserID 在认证前为 0；
// GameID 在加入游戏会话后设置。
type Session struct {
	ID         string
	Conn       network.Connection
	UserID     int64
	GameID     string
	CreatedAt  time.Time
	LastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.LastActive = time.Now()
	return s.Conn.Send(msgID, data)
}

// SendJSON 发送 JSON 载荷；失败只返回错误，broadcast 层负责跳过
func (s *Session) SendJSON(msgID uint16, v interface{}) error {
	s.LastActive = time.Now()
	return s.Conn.SendJSON(msgID, v)
}

func (s *Session) GetID() string {
	return s.ID
}

// SetGame associates the socket with a game session. Empty id detaches.
func (s *Session) SetGame(gameID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.GameID = gameID
}

// Game returns the associated game session id.
func (s *Session) Game() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.GameID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByUserID(userID int64) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID == userID {
			result = append(result, session)
		}
	}
	return result
}

// GetByGameID returns every socket attached to a game session.
func (m *Manager) GetByGameID(gameID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Game() == gameID {
			result = append(result, session)
		}
	}
	return result
}

// Count returns the number of open sockets.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// DetachGame clears the game association on every socket of a user.
// Used when a player is kicked.
func (m *Manager) DetachGame(userID int64, gameID string) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, session := range m.sessions {
		if session.UserID == userID && session.Game() == gameID {
			session.SetGame("")
		}
	}
}
