// persistence/gorm_postgresql.go
package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/rpgserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.GormSession{},
		&models.GormSessionPlayer{},
		&models.GormCharacter{},
		&models.GormGameEvent{},
	)
}

// toJSONMap 通过 JSON 往返把结构体转成 jsonb 兼容的 map
func toJSONMap(v interface{}) (map[string]interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromJSONMap(m map[string]interface{}, v interface{}) error {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SaveSession upserts the durable session row, including the full game
// state snapshot at the current version.
func (p *GormPostgreSQL) SaveSession(s *models.GameSession) error {
	configMap, err := toJSONMap(s.Config)
	if err != nil {
		return err
	}
	stateMap, err := toJSONMap(s.State)
	if err != nil {
		return err
	}

	var row models.GormSession
	result := p.db.Where("session_id = ?", s.ID).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.GormSession{
			SessionID:    s.ID,
			JoinCode:     s.JoinCode,
			DMUserID:     s.DMUserID,
			Status:       string(s.Status),
			Config:       configMap,
			State:        stateMap,
			StateVersion: s.StateVersion,
			EndReason:    string(s.EndReason),
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Status = string(s.Status)
	row.Config = configMap
	row.State = stateMap
	row.StateVersion = s.StateVersion
	row.EndReason = string(s.EndReason)
	return p.db.Save(&row).Error
}

// LoadSession rebuilds a session, players included, from the durable rows.
func (p *GormPostgreSQL) LoadSession(sessionID string) (*models.GameSession, error) {
	var row models.GormSession
	if err := p.db.Where("session_id = ?", sessionID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	s := &models.GameSession{
		ID:           row.SessionID,
		JoinCode:     row.JoinCode,
		DMUserID:     row.DMUserID,
		Status:       models.SessionStatus(row.Status),
		StateVersion: row.StateVersion,
		EndReason:    models.EndReason(row.EndReason),
		CreatedAt:    row.CreatedAt,
		Players:      make(map[int64]*models.SessionPlayer),
	}
	if err := fromJSONMap(row.Config, &s.Config); err != nil {
		return nil, err
	}
	if row.State != nil {
		s.State = &models.GameState{}
		if err := fromJSONMap(row.State, s.State); err != nil {
			return nil, err
		}
	}

	players, err := p.LoadSessionPlayers(sessionID)
	if err != nil {
		return nil, err
	}
	for _, pl := range players {
		s.Players[pl.UserID] = pl
	}
	return s, nil
}

func (p *GormPostgreSQL) SaveSessionPlayer(player *models.SessionPlayer) error {
	var row models.GormSessionPlayer
	result := p.db.Where("session_id = ? AND user_id = ?", player.SessionID, player.UserID).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.GormSessionPlayer{
			SessionID:   player.SessionID,
			UserID:      player.UserID,
			CharacterID: player.CharacterID,
			UnitID:      player.UnitID,
			IsReady:     player.IsReady,
			Connection:  string(player.Connection),
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.CharacterID = player.CharacterID
	row.UnitID = player.UnitID
	row.IsReady = player.IsReady
	row.Connection = string(player.Connection)
	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) RemoveSessionPlayer(sessionID string, userID int64) error {
	return p.db.Where("session_id = ? AND user_id = ?", sessionID, userID).
		Delete(&models.GormSessionPlayer{}).Error
}

func (p *GormPostgreSQL) LoadSessionPlayers(sessionID string) ([]*models.SessionPlayer, error) {
	var rows []models.GormSessionPlayer
	if err := p.db.Where("session_id = ?", sessionID).Find(&rows).Error; err != nil {
		return nil, err
	}
	players := make([]*models.SessionPlayer, 0, len(rows))
	for _, row := range rows {
		players = append(players, &models.SessionPlayer{
			SessionID:   row.SessionID,
			UserID:      row.UserID,
			CharacterID: row.CharacterID,
			UnitID:      row.UnitID,
			IsReady:     row.IsReady,
			Connection:  models.ConnectionStatus(row.Connection),
			JoinedAt:    row.CreatedAt,
		})
	}
	return players, nil
}

func (p *GormPostgreSQL) SaveCharacter(c *models.Character) error {
	weapons := make(map[string]interface{}, len(c.Weapons))
	for i, w := range c.Weapons {
		weapons[fmt.Sprintf("%d", i)] = w
	}

	var row models.GormCharacter
	result := p.db.Where("character_id = ?", c.ID).First(&row)

	if result.Error == gorm.ErrRecordNotFound {
		row = models.GormCharacter{
			CharacterID: c.ID,
			UserID:      c.UserID,
			Name:        c.Name,
			Class:       c.Class,
			Level:       c.Level,
			XP:          c.XP,
			Gold:        c.Gold,
			Weapons:     weapons,
		}
		return p.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.Name = c.Name
	row.Class = c.Class
	row.Level = c.Level
	row.XP = c.XP
	row.Gold = c.Gold
	row.Weapons = weapons
	return p.db.Save(&row).Error
}

func (p *GormPostgreSQL) LoadCharacter(characterID string) (*models.Character, error) {
	var row models.GormCharacter
	if err := p.db.Where("character_id = ?", characterID).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return characterFromRow(&row), nil
}

func (p *GormPostgreSQL) ListCharacters(userID int64) ([]*models.Character, error) {
	var rows []models.GormCharacter
	if err := p.db.Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	chars := make([]*models.Character, 0, len(rows))
	for i := range rows {
		chars = append(chars, characterFromRow(&rows[i]))
	}
	return chars, nil
}

func characterFromRow(row *models.GormCharacter) *models.Character {
	c := &models.Character{
		ID:        row.CharacterID,
		UserID:    row.UserID,
		Name:      row.Name,
		Class:     row.Class,
		Level:     row.Level,
		XP:        row.XP,
		Gold:      row.Gold,
		UpdatedAt: row.UpdatedAt,
	}
	for i := 0; i < len(row.Weapons); i++ {
		if w, ok := row.Weapons[fmt.Sprintf("%d", i)].(string); ok {
			c.Weapons = append(c.Weapons, w)
		}
	}
	return c
}

// AppendEvents writes the narrative log rows for one applied mutation.
func (p *GormPostgreSQL) AppendEvents(sessionID string, version int64, events []models.GameEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.GormGameEvent, 0, len(events))
	for _, ev := range events {
		payload, err := toJSONMap(ev)
		if err != nil {
			return err
		}
		rows = append(rows, models.GormGameEvent{
			SessionID: sessionID,
			Version:   version,
			Type:      string(ev.Type),
			Payload:   payload,
		})
	}
	return p.db.Create(&rows).Error
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
