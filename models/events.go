// models/events.go
package models

// EventType 叙事事件类型
type EventType string

const (
	EventUnitMoved     EventType = "unit_moved"
	EventUnitAttacked  EventType = "unit_attacked"
	EventUnitDied      EventType = "unit_died"
	EventTurnStarted   EventType = "turn_started"
	EventTurnEnded     EventType = "turn_ended"
	EventRoundStarted  EventType = "round_started"
	EventCombatStarted EventType = "combat_started"
	EventCombatEnded   EventType = "combat_ended"
	EventLootDropped   EventType = "loot_dropped"
	EventLootCollected EventType = "loot_collected"
	EventGoldGranted   EventType = "gold_granted"
	EventWeaponGranted EventType = "weapon_granted"
	EventMonsterEdited EventType = "monster_edited"
)

// GameEvent is a narrative log entry broadcast alongside deltas.
// Clients render these; they must never reconstruct state from them.
type GameEvent struct {
	Type     EventType `json:"type"`
	UnitID   string    `json:"unitId,omitempty"`
	TargetID string    `json:"targetId,omitempty"`
	Position *Position `json:"position,omitempty"`
	Amount   int       `json:"amount,omitempty"`
	Round    int       `json:"round,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}
