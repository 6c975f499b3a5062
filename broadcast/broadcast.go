// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/rpgserver/session"
)

// Broadcaster 向游戏会话或单个用户扇出消息。发送是尽力而为且非阻塞的：
// 不可达的 socket 直接跳过，不重试。
type Broadcaster interface {
	BroadcastToGame(gameID string, msgID uint16, v interface{})
	SendToUser(userID int64, msgID uint16, v interface{})
}

// GameBroadcaster 基于 socket 会话管理器的广播器
type GameBroadcaster struct {
	sessionManager *session.Manager
}

func NewGameBroadcaster(sessionManager *session.Manager) *GameBroadcaster {
	return &GameBroadcaster{sessionManager: sessionManager}
}

func (b *GameBroadcaster) BroadcastToGame(gameID string, msgID uint16, v interface{}) {
	for _, s := range b.sessionManager.GetByGameID(gameID) {
		if err := s.SendJSON(msgID, v); err != nil {
			// 跳过不可达的连接
			continue
		}
	}
}

func (b *GameBroadcaster) SendToUser(userID int64, msgID uint16, v interface{}) {
	for _, s := range b.sessionManager.GetByUserID(userID) {
		if err := s.SendJSON(msgID, v); err != nil {
			continue
		}
	}
}
