// services/character_service.go
package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/persistence"
)

// CharacterService 角色档案服务。角色独立于某一局会话存在:
// 经验、金币奖励直接落库,不经过对局状态版本。
type CharacterService struct {
	db persistence.Database
}

func NewCharacterService(db persistence.Database) *CharacterService {
	return &CharacterService{db: db}
}

// SyncCharacter upserts a character for userID. The client may omit the
// ID on first sync; ownership of an existing ID is enforced.
func (s *CharacterService) SyncCharacter(userID int64, c models.Character) (*models.Character, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	} else {
		existing, err := s.db.LoadCharacter(c.ID)
		if err != nil && err != persistence.ErrRecordNotFound {
			return nil, err
		}
		if existing != nil && existing.UserID != userID {
			return nil, models.NewGameError(models.CodeCharacterNotFound, "character belongs to another user")
		}
	}
	c.UserID = userID
	if c.Level < 1 {
		c.Level = 1
	}
	c.UpdatedAt = time.Now()
	if err := s.db.SaveCharacter(&c); err != nil {
		return nil, err
	}
	logger.Log.Infof("Character %s synced for user %d", c.ID, userID)
	return &c, nil
}

// LoadOwned loads a character and checks it belongs to userID.
func (s *CharacterService) LoadOwned(userID int64, characterID string) (*models.Character, error) {
	c, err := s.db.LoadCharacter(characterID)
	if err == persistence.ErrRecordNotFound {
		return nil, models.NewGameError(models.CodeCharacterNotFound, "character not found")
	}
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, models.NewGameError(models.CodeCharacterNotFound, "character belongs to another user")
	}
	return c, nil
}

func (s *CharacterService) ListCharacters(userID int64) ([]*models.Character, error) {
	return s.db.ListCharacters(userID)
}

// GrantXP adds experience to a character and levels it up at fixed
// thresholds (1000 xp per level).
func (s *CharacterService) GrantXP(characterID string, amount int64) (*models.Character, error) {
	if amount <= 0 {
		return nil, models.NewGameError(models.CodeExecutionError, "xp amount must be positive")
	}
	c, err := s.db.LoadCharacter(characterID)
	if err == persistence.ErrRecordNotFound {
		return nil, models.NewGameError(models.CodeCharacterNotFound, "character not found")
	}
	if err != nil {
		return nil, err
	}
	c.XP += amount
	for int64(c.Level)*1000 <= c.XP {
		c.Level++
		logger.Log.Infof("Character %s leveled up to %d", c.ID, c.Level)
	}
	c.UpdatedAt = time.Now()
	if err := s.db.SaveCharacter(c); err != nil {
		return nil, err
	}
	return c, nil
}
