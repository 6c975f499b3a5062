// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/wfunc/rpgserver/models"
)

// Database 持久化接口。会话在内存注册表淘汰后仍保留在这里；
// 角色归属校验也走这里。
type Database interface {
	SaveSession(s *models.GameSession) error
	LoadSession(sessionID string) (*models.GameSession, error)
	SaveSessionPlayer(p *models.SessionPlayer) error
	RemoveSessionPlayer(sessionID string, userID int64) error
	LoadSessionPlayers(sessionID string) ([]*models.SessionPlayer, error)
	SaveCharacter(c *models.Character) error
	LoadCharacter(characterID string) (*models.Character, error)
	ListCharacters(userID int64) ([]*models.Character, error)
	AppendEvents(sessionID string, version int64, events []models.GameEvent) error
	Close() error
}

// 错误定义
var ErrRecordNotFound = errors.New("record not found")
