// executor/dm.go
package executor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/wfunc/rpgserver/models"
)

// DM 状态编辑不经过模拟引擎，但走同一条版本化提交通道：
// 增量始终是客户端唯一的对账来源。

// mutateState runs a DM edit against a cloned snapshot and commits it
// through the standard apply sequence.
func (e *Executor) mutateState(sessionID string, fn func(state *models.GameState) ([]models.GameEvent, error)) error {
	s, exists := e.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	if s.Status != models.StatusPlaying && s.Status != models.StatusPaused {
		s.Unlock()
		return models.NewGameError(models.CodeGameNotStarted, "session is not in play")
	}
	if s.State == nil {
		s.Unlock()
		return models.NewGameError(models.CodeGameStateNotInitialized, "game not initialized")
	}

	before := s.State
	next := before.Clone()
	events, err := fn(next)
	if err != nil {
		s.Unlock()
		return err
	}

	post, err := e.applyLocked(s, before, next, events)
	s.Unlock()
	if err != nil {
		return err
	}
	post()
	return nil
}

// GrantGold credits the shared party inventory.
func (e *Executor) GrantGold(sessionID string, amount int64) error {
	return e.mutateState(sessionID, func(state *models.GameState) ([]models.GameEvent, error) {
		state.PlayerInventory.Gold += amount
		return []models.GameEvent{{Type: models.EventGoldGranted, Amount: int(amount)}}, nil
	})
}

// GrantWeapon adds a weapon to the shared party inventory.
func (e *Executor) GrantWeapon(sessionID, weapon string) error {
	if weapon == "" {
		return models.NewGameError(models.CodeExecutionError, "weapon name required")
	}
	return e.mutateState(sessionID, func(state *models.GameState) ([]models.GameEvent, error) {
		state.PlayerInventory.Items = append(state.PlayerInventory.Items, weapon)
		return []models.GameEvent{{Type: models.EventWeaponGranted, Detail: weapon}}, nil
	})
}

// SpawnMonster drops a new hostile onto the map and appends it to the
// initiative order.
func (e *Executor) SpawnMonster(sessionID, name string, pos models.Position, stats *models.Stats) error {
	return e.mutateState(sessionID, func(state *models.GameState) ([]models.GameEvent, error) {
		if !state.Map.Walkable(pos) {
			return nil, models.NewGameError(models.CodeExecutionError, "spawn tile is not walkable")
		}
		for i := range state.Units {
			if state.Units[i].Alive() && state.Units[i].Position == pos {
				return nil, models.NewGameError(models.CodeExecutionError, "spawn tile is occupied")
			}
		}
		if name == "" {
			name = "monster"
		}
		unitStats := models.Stats{HP: 12, MaxHP: 12, Attack: 5, Defense: 2, Initiative: 4, MoveRange: 4, AttackRange: 1}
		if stats != nil {
			unitStats = *stats
			if unitStats.MaxHP == 0 {
				unitStats.MaxHP = unitStats.HP
			}
		}
		unit := models.Unit{
			ID:       fmt.Sprintf("monster-dm-%s", uuid.New().String()[:8]),
			Type:     models.UnitMonster,
			Name:     name,
			Position: pos,
			Stats:    unitStats,
		}
		state.Units = append(state.Units, unit)
		state.Combat.InitiativeOrder = append(state.Combat.InitiativeOrder, unit.ID)
		return []models.GameEvent{{Type: models.EventMonsterEdited, UnitID: unit.ID, Position: &pos, Detail: "spawned"}}, nil
	})
}

// RemoveMonster deletes a monster from the state and initiative order.
func (e *Executor) RemoveMonster(sessionID, unitID string) error {
	return e.mutateState(sessionID, func(state *models.GameState) ([]models.GameEvent, error) {
		unit := state.UnitByID(unitID)
		if unit == nil || unit.Type != models.UnitMonster {
			return nil, models.NewGameError(models.CodeInvalidUnit, "not a monster")
		}
		if state.Combat.TurnState.UnitID == unitID {
			return nil, models.NewGameError(models.CodeExecutionError, "cannot remove the active unit; skip its turn first")
		}
		for i := range state.Units {
			if state.Units[i].ID == unitID {
				state.Units = append(state.Units[:i], state.Units[i+1:]...)
				break
			}
		}
		for i, id := range state.Combat.InitiativeOrder {
			if id == unitID {
				state.Combat.InitiativeOrder = append(state.Combat.InitiativeOrder[:i], state.Combat.InitiativeOrder[i+1:]...)
				if i < state.Combat.CurrentTurnIndex {
					state.Combat.CurrentTurnIndex--
				}
				break
			}
		}
		return []models.GameEvent{{Type: models.EventMonsterEdited, UnitID: unitID, Detail: "removed"}}, nil
	})
}

// ModifyMonster overwrites a monster's stats.
func (e *Executor) ModifyMonster(sessionID, unitID string, stats *models.Stats) error {
	if stats == nil {
		return models.NewGameError(models.CodeExecutionError, "stats required")
	}
	return e.mutateState(sessionID, func(state *models.GameState) ([]models.GameEvent, error) {
		unit := state.UnitByID(unitID)
		if unit == nil || unit.Type != models.UnitMonster {
			return nil, models.NewGameError(models.CodeInvalidUnit, "not a monster")
		}
		unit.Stats = *stats
		if unit.Stats.MaxHP == 0 {
			unit.Stats.MaxHP = unit.Stats.HP
		}
		return []models.GameEvent{{Type: models.EventMonsterEdited, UnitID: unitID, Detail: "modified"}}, nil
	})
}
