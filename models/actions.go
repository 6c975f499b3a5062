// models/actions.go
package models

// ActionKind 玩家动作类型
type ActionKind string

const (
	ActionMove        ActionKind = "move"
	ActionAttack      ActionKind = "attack"
	ActionEndTurn     ActionKind = "end_turn"
	ActionCollectLoot ActionKind = "collect_loot"
)

// GameAction is the single action envelope accepted by the executor.
// AI-issued actions use the same shape as client-submitted ones.
type GameAction struct {
	Kind        ActionKind `json:"type"`
	UnitID      string     `json:"unitId,omitempty"`
	TargetID    string     `json:"targetId,omitempty"`
	Path        []Position `json:"path,omitempty"`
	Destination *Position  `json:"destination,omitempty"` // expanded server-side into Path
	LootID      string     `json:"lootId,omitempty"`
}

// DMCommandKind DM 指令类型
type DMCommandKind string

const (
	DMStartGame     DMCommandKind = "start_game"
	DMPauseGame     DMCommandKind = "pause_game"
	DMResumeGame    DMCommandKind = "resume_game"
	DMEndGame       DMCommandKind = "end_game"
	DMKickPlayer    DMCommandKind = "kick_player"
	DMSkipTurn      DMCommandKind = "skip_turn"
	DMGrantGold     DMCommandKind = "grant_gold"
	DMGrantXP       DMCommandKind = "grant_xp"
	DMGrantWeapon   DMCommandKind = "grant_weapon"
	DMSpawnMonster  DMCommandKind = "spawn_monster"
	DMRemoveMonster DMCommandKind = "remove_monster"
	DMModifyMonster DMCommandKind = "modify_monster"
)

// DMCommand is the decoded dm_command payload. Kind selects which of the
// optional fields are meaningful; dispatch over Kind must be exhaustive.
type DMCommand struct {
	Kind         DMCommandKind `json:"command"`
	TargetUserID int64         `json:"targetUserId,omitempty"` // kick_player, grant_xp
	Amount       int64         `json:"amount,omitempty"`       // grant_gold, grant_xp
	Weapon       string        `json:"weapon,omitempty"`       // grant_weapon
	UnitID       string        `json:"unitId,omitempty"`       // remove_monster, modify_monster
	Name         string        `json:"name,omitempty"`         // spawn_monster
	Position     *Position     `json:"position,omitempty"`     // spawn_monster
	Stats        *Stats        `json:"stats,omitempty"`        // spawn_monster, modify_monster
}
