// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/rpgserver/models"
)

// PostgreSQL 不经 ORM 的数据库实现，表结构与 GORM 实现相互独立
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(db); err != nil {
		return nil, err
	}

	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构
func initTables(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS game_sessions (
            id SERIAL PRIMARY KEY,
            session_id TEXT UNIQUE NOT NULL,
            join_code TEXT NOT NULL,
            dm_user_id BIGINT NOT NULL,
            status TEXT NOT NULL,
            state_version BIGINT NOT NULL DEFAULT 0,
            data JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS game_session_players (
            id SERIAL PRIMARY KEY,
            session_id TEXT NOT NULL,
            user_id BIGINT NOT NULL,
            data JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (session_id, user_id)
        )`,
		`CREATE TABLE IF NOT EXISTS characters (
            id SERIAL PRIMARY KEY,
            character_id TEXT UNIQUE NOT NULL,
            user_id BIGINT NOT NULL,
            data JSONB NOT NULL,
            updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS game_events (
            id SERIAL PRIMARY KEY,
            session_id TEXT NOT NULL,
            version BIGINT NOT NULL,
            type TEXT NOT NULL,
            payload JSONB NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_game_events_session ON game_events (session_id, version)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgreSQL) SaveSession(s *models.GameSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
        INSERT INTO game_sessions (session_id, join_code, dm_user_id, status, state_version, data)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (session_id) DO UPDATE
        SET status = $4, state_version = $5, data = $6, updated_at = CURRENT_TIMESTAMP`,
		s.ID, s.JoinCode, s.DMUserID, string(s.Status), s.StateVersion, data)
	return err
}

func (p *PostgreSQL) LoadSession(sessionID string) (*models.GameSession, error) {
	var data []byte
	err := p.db.QueryRow(
		`SELECT data FROM game_sessions WHERE session_id = $1`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	s := &models.GameSession{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.Players == nil {
		s.Players = make(map[int64]*models.SessionPlayer)
	}
	return s, nil
}

func (p *PostgreSQL) SaveSessionPlayer(player *models.SessionPlayer) error {
	data, err := json.Marshal(player)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
        INSERT INTO game_session_players (session_id, user_id, data)
        VALUES ($1, $2, $3)
        ON CONFLICT (session_id, user_id) DO UPDATE SET data = $3`,
		player.SessionID, player.UserID, data)
	return err
}

func (p *PostgreSQL) RemoveSessionPlayer(sessionID string, userID int64) error {
	_, err := p.db.Exec(
		`DELETE FROM game_session_players WHERE session_id = $1 AND user_id = $2`,
		sessionID, userID)
	return err
}

func (p *PostgreSQL) LoadSessionPlayers(sessionID string) ([]*models.SessionPlayer, error) {
	rows, err := p.db.Query(
		`SELECT data FROM game_session_players WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []*models.SessionPlayer
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		player := &models.SessionPlayer{}
		if err := json.Unmarshal(data, player); err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	return players, rows.Err()
}

func (p *PostgreSQL) SaveCharacter(c *models.Character) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`
        INSERT INTO characters (character_id, user_id, data)
        VALUES ($1, $2, $3)
        ON CONFLICT (character_id) DO UPDATE SET data = $3, updated_at = CURRENT_TIMESTAMP`,
		c.ID, c.UserID, data)
	return err
}

func (p *PostgreSQL) LoadCharacter(characterID string) (*models.Character, error) {
	var data []byte
	err := p.db.QueryRow(
		`SELECT data FROM characters WHERE character_id = $1`, characterID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	c := &models.Character{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *PostgreSQL) ListCharacters(userID int64) ([]*models.Character, error) {
	rows, err := p.db.Query(
		`SELECT data FROM characters WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chars []*models.Character
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		c := &models.Character{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, err
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

func (p *PostgreSQL) AppendEvents(sessionID string, version int64, events []models.GameEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`
            INSERT INTO game_events (session_id, version, type, payload)
            VALUES ($1, $2, $3, $4)`,
			sessionID, version, string(ev.Type), payload); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
