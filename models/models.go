// models/models.go
package models

import (
	"sync"
	"time"
)

// SessionStatus 会话状态
type SessionStatus string

const (
	StatusLobby   SessionStatus = "lobby"
	StatusPlaying SessionStatus = "playing"
	StatusPaused  SessionStatus = "paused"
	StatusEnded   SessionStatus = "ended"
)

// EndReason explains how a session reached StatusEnded.
type EndReason string

const (
	EndReasonVictory EndReason = "victory"
	EndReasonDefeat  EndReason = "defeat"
	EndReasonDMEnded EndReason = "dm_ended"
)

// SessionConfig 游戏会话配置
type SessionConfig struct {
	MaxPlayers      int      `json:"maxPlayers"`
	MapSeed         int64    `json:"mapSeed"`
	Difficulty      string   `json:"difficulty"` // easy/normal/hard
	TurnTimeLimit   int      `json:"turnTimeLimit"`
	NPCCount        int      `json:"npcCount"`
	NPCClasses      []string `json:"npcClasses,omitempty"`
	MonsterCount    int      `json:"monsterCount"`
	PlayerMoveRange int      `json:"playerMoveRange"` // 0 means class default
}

// ConnectionStatus 玩家连接状态
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// SessionPlayer 会话中的玩家
type SessionPlayer struct {
	SessionID   string           `json:"sessionId"`
	UserID      int64            `json:"userId"`
	CharacterID string           `json:"characterId"`
	UnitID      string           `json:"unitId,omitempty"` // assigned once at game start
	IsReady     bool             `json:"isReady"`
	Connection  ConnectionStatus `json:"connection"`
	JoinedAt    time.Time        `json:"joinedAt"`
}

// GameSession 是一局游戏的权威状态，从大厅到结束
type GameSession struct {
	sync.Mutex `json:"-"`

	ID                string                   `json:"id"`
	JoinCode          string                   `json:"joinCode"`
	DMUserID          int64                    `json:"dmUserId"`
	Status            SessionStatus            `json:"status"`
	Config            SessionConfig            `json:"config"`
	Players           map[int64]*SessionPlayer `json:"players"`
	State             *GameState               `json:"state,omitempty"` // absent until start
	StateVersion      int64                    `json:"stateVersion"`
	EventLog          []GameEvent              `json:"eventLog"`
	CurrentTurnUserID int64                    `json:"currentTurnUserId"`
	TurnStartedAt     time.Time                `json:"turnStartedAt"`
	CreatedAt         time.Time                `json:"createdAt"`
	StartedAt         time.Time                `json:"startedAt"`
	EndedAt           time.Time                `json:"endedAt"`
	EndReason         EndReason                `json:"endReason,omitempty"`

	// timer handles, cancelled on every turn change
	TurnTimerID  int64 `json:"-"`
	AITimerID    int64 `json:"-"`
	EvictTimerID int64 `json:"-"`
}

// PlayerByUnit returns the session player owning the given unit.
func (s *GameSession) PlayerByUnit(unitID string) *SessionPlayer {
	for _, p := range s.Players {
		if p.UnitID == unitID {
			return p
		}
	}
	return nil
}

// UnitType 单位类型
type UnitType string

const (
	UnitPlayer  UnitType = "player"
	UnitNPC     UnitType = "npc"
	UnitMonster UnitType = "monster"
)

// IsAI reports whether units of this type are server-controlled.
func (t UnitType) IsAI() bool {
	return t == UnitNPC || t == UnitMonster
}

// Position 地图坐标
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Stats 单位属性
type Stats struct {
	HP          int `json:"hp"`
	MaxHP       int `json:"maxHp"`
	Attack      int `json:"attack"`
	Defense     int `json:"defense"`
	Initiative  int `json:"initiative"`
	MoveRange   int `json:"moveRange"`
	AttackRange int `json:"attackRange"`
}

// Unit 战斗单位。保持为可比较类型，便于按整单位粒度做增量对比。
type Unit struct {
	ID          string   `json:"id"`
	Type        UnitType `json:"type"`
	Name        string   `json:"name"`
	Class       string   `json:"class,omitempty"`
	Level       int      `json:"level,omitempty"`
	OwnerUserID int64    `json:"ownerUserId,omitempty"` // 0 for AI units
	Position    Position `json:"position"`
	Stats       Stats    `json:"stats"`
}

// Alive reports whether the unit can still act.
func (u *Unit) Alive() bool {
	return u.Stats.HP > 0
}

// Hostile reports whether other is an enemy of u.
// Players and NPCs are allied; monsters oppose both.
func (u *Unit) Hostile(other *Unit) bool {
	if u.Type == UnitMonster {
		return other.Type != UnitMonster
	}
	return other.Type == UnitMonster
}

// CombatPhase 战斗阶段
type CombatPhase string

const (
	PhaseSetup   CombatPhase = "setup"
	PhaseActive  CombatPhase = "active"
	PhaseVictory CombatPhase = "victory"
	PhaseDefeat  CombatPhase = "defeat"
)

// TurnState tracks the acting unit within the current turn.
type TurnState struct {
	UnitID       string `json:"unitId"`
	MovementLeft int    `json:"movementLeft"`
	ActionUsed   bool   `json:"actionUsed"`
}

// CombatState 战斗状态
type CombatState struct {
	Phase            CombatPhase `json:"phase"`
	Round            int         `json:"round"`
	InitiativeOrder  []string    `json:"initiativeOrder"`
	CurrentTurnIndex int         `json:"currentTurnIndex"`
	TurnState        TurnState   `json:"turnState"`
}

// TurnRecord 回合历史记录
type TurnRecord struct {
	Round  int    `json:"round"`
	UnitID string `json:"unitId"`
}

// LootItemType 掉落物类型
type LootItemType string

const (
	LootGold   LootItemType = "gold"
	LootWeapon LootItemType = "weapon"
	LootPotion LootItemType = "potion"
)

// LootItem 掉落物条目
type LootItem struct {
	Type   LootItemType `json:"type"`
	Name   string       `json:"name,omitempty"`
	Amount int64        `json:"amount,omitempty"`
}

// LootDrop 地面掉落
type LootDrop struct {
	ID       string     `json:"id"`
	Position Position   `json:"position"`
	Items    []LootItem `json:"items"`
}

// Inventory 全队共享背包
type Inventory struct {
	Gold  int64    `json:"gold"`
	Items []string `json:"items"`
}

// TileType 地格类型
type TileType uint8

const (
	TileFloor TileType = iota
	TileWall
)

// GameMap 战斗地图，行主序存储
type GameMap struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Seed   int64      `json:"seed"`
	Tiles  []TileType `json:"tiles"`
}

// InBounds reports whether the position lies on the map.
func (m *GameMap) InBounds(p Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < m.Width && p.Y < m.Height
}

// Walkable reports whether the tile can be entered.
func (m *GameMap) Walkable(p Position) bool {
	return m.InBounds(p) && m.Tiles[p.Y*m.Width+p.X] == TileFloor
}

// GameState 单局共享游戏状态
type GameState struct {
	Map             *GameMap     `json:"map"`
	Units           []Unit       `json:"units"`
	Combat          CombatState  `json:"combat"`
	TurnHistory     []TurnRecord `json:"turnHistory"`
	LootDrops       []LootDrop   `json:"lootDrops"`
	PlayerInventory Inventory    `json:"playerInventory"`
}

// UnitByID returns a pointer into the state's unit slice, or nil.
// The pointer is invalidated by appends to Units.
func (gs *GameState) UnitByID(id string) *Unit {
	for i := range gs.Units {
		if gs.Units[i].ID == id {
			return &gs.Units[i]
		}
	}
	return nil
}

// ActiveUnit returns the unit whose turn it currently is, or nil.
func (gs *GameState) ActiveUnit() *Unit {
	if gs.Combat.TurnState.UnitID == "" {
		return nil
	}
	return gs.UnitByID(gs.Combat.TurnState.UnitID)
}

// Clone returns a deep copy of the state. The map is shared: it is
// immutable after generation.
func (gs *GameState) Clone() *GameState {
	if gs == nil {
		return nil
	}
	c := &GameState{
		Map:             gs.Map,
		Units:           append([]Unit(nil), gs.Units...),
		Combat:          gs.Combat,
		TurnHistory:     append([]TurnRecord(nil), gs.TurnHistory...),
		PlayerInventory: gs.PlayerInventory,
	}
	c.Combat.InitiativeOrder = append([]string(nil), gs.Combat.InitiativeOrder...)
	c.PlayerInventory.Items = append([]string(nil), gs.PlayerInventory.Items...)
	c.LootDrops = make([]LootDrop, len(gs.LootDrops))
	for i, d := range gs.LootDrops {
		d.Items = append([]LootItem(nil), d.Items...)
		c.LootDrops[i] = d
	}
	return c
}

// Character 持久化角色（由外部进度系统拥有，这里只做归属校验和授予）
type Character struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Name      string    `json:"name"`
	Class     string    `json:"class"`
	Level     int       `json:"level"`
	XP        int64     `json:"xp"`
	Gold      int64     `json:"gold"`
	Weapons   []string  `json:"weapons"`
	UpdatedAt time.Time `json:"updatedAt"`
}
