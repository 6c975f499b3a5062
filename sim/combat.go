// sim/combat.go
package sim

import (
	"errors"
	"fmt"

	"github.com/wfunc/rpgserver/models"
)

var (
	ErrCombatNotActive = errors.New("combat is not active")
	ErrNotActiveUnit   = errors.New("action unit is not the active unit")
)

// ExecuteAction applies one action to a copy of the state and returns the
// new state plus narrative events. The input state is never modified, so
// a returned error implies zero mutation.
func (e *TacticalEngine) ExecuteAction(action models.GameAction, state *models.GameState) (*models.GameState, []models.GameEvent, error) {
	if state.Combat.Phase != models.PhaseActive {
		return nil, nil, ErrCombatNotActive
	}
	if action.UnitID == "" || action.UnitID != state.Combat.TurnState.UnitID {
		return nil, nil, ErrNotActiveUnit
	}

	next := state.Clone()
	actor := next.UnitByID(action.UnitID)
	if actor == nil || !actor.Alive() {
		return nil, nil, fmt.Errorf("unit %s cannot act", action.UnitID)
	}

	var events []models.GameEvent
	var err error
	switch action.Kind {
	case models.ActionMove:
		events, err = e.applyMove(next, actor, action.Path)
	case models.ActionAttack:
		events, err = e.applyAttack(next, actor, action.TargetID)
	case models.ActionCollectLoot:
		events, err = e.applyCollectLoot(next, actor, action.LootID)
	case models.ActionEndTurn:
		events, err = e.applyEndTurn(next, actor)
	default:
		err = fmt.Errorf("unknown action kind %q", action.Kind)
	}
	if err != nil {
		return nil, nil, err
	}
	return next, events, nil
}

func (e *TacticalEngine) applyMove(state *models.GameState, actor *models.Unit, path []models.Position) ([]models.GameEvent, error) {
	if len(path) == 0 {
		return nil, errors.New("empty move path")
	}
	if len(path) > state.Combat.TurnState.MovementLeft {
		return nil, fmt.Errorf("path length %d exceeds remaining movement %d", len(path), state.Combat.TurnState.MovementLeft)
	}

	occupied := livingPositions(state, actor.ID)
	prev := actor.Position
	for _, step := range path {
		if Distance(prev, step) != 1 {
			return nil, fmt.Errorf("path step %v is not adjacent to %v", step, prev)
		}
		if !state.Map.Walkable(step) {
			return nil, fmt.Errorf("tile %v is not walkable", step)
		}
		if occupied[step] {
			return nil, fmt.Errorf("tile %v is occupied", step)
		}
		prev = step
	}

	from := actor.Position
	actor.Position = path[len(path)-1]
	state.Combat.TurnState.MovementLeft -= len(path)

	return []models.GameEvent{{
		Type:     models.EventUnitMoved,
		UnitID:   actor.ID,
		Position: &actor.Position,
		Amount:   len(path),
		Detail:   fmt.Sprintf("from %d,%d", from.X, from.Y),
	}}, nil
}

func (e *TacticalEngine) applyAttack(state *models.GameState, actor *models.Unit, targetID string) ([]models.GameEvent, error) {
	if state.Combat.TurnState.ActionUsed {
		return nil, errors.New("action already used this turn")
	}
	target := state.UnitByID(targetID)
	if target == nil || !target.Alive() {
		return nil, fmt.Errorf("target %s not available", targetID)
	}
	if target.ID == actor.ID {
		return nil, errors.New("cannot attack self")
	}
	if Distance(actor.Position, target.Position) > actor.Stats.AttackRange {
		return nil, errors.New("target out of range")
	}
	if !e.HasLineOfSight(state.Map, actor.Position, target.Position) {
		return nil, errors.New("no line of sight to target")
	}

	damage := actor.Stats.Attack - target.Stats.Defense
	if damage < 1 {
		damage = 1
	}
	target.Stats.HP -= damage
	state.Combat.TurnState.ActionUsed = true

	events := []models.GameEvent{{
		Type:     models.EventUnitAttacked,
		UnitID:   actor.ID,
		TargetID: target.ID,
		Amount:   damage,
	}}
	if !target.Alive() {
		target.Stats.HP = 0
		events = append(events, e.applyDeath(state, target)...)
	}
	return events, nil
}

// applyDeath removes the unit from initiative, drops monster loot, and
// flips the combat phase when a side is wiped out.
func (e *TacticalEngine) applyDeath(state *models.GameState, dead *models.Unit) []models.GameEvent {
	events := []models.GameEvent{{Type: models.EventUnitDied, UnitID: dead.ID}}

	for i, id := range state.Combat.InitiativeOrder {
		if id != dead.ID {
			continue
		}
		state.Combat.InitiativeOrder = append(state.Combat.InitiativeOrder[:i], state.Combat.InitiativeOrder[i+1:]...)
		if i < state.Combat.CurrentTurnIndex {
			state.Combat.CurrentTurnIndex--
		} else if state.Combat.CurrentTurnIndex >= len(state.Combat.InitiativeOrder) && len(state.Combat.InitiativeOrder) > 0 {
			state.Combat.CurrentTurnIndex = 0
		}
		break
	}

	if dead.Type == models.UnitMonster {
		drop := models.LootDrop{
			ID:       fmt.Sprintf("loot-%s", dead.ID),
			Position: dead.Position,
			Items:    []models.LootItem{{Type: models.LootGold, Amount: int64(5 + dead.Stats.MaxHP/2)}},
		}
		state.LootDrops = append(state.LootDrops, drop)
		events = append(events, models.GameEvent{
			Type:     models.EventLootDropped,
			UnitID:   dead.ID,
			Position: &drop.Position,
		})
	}

	if phase := terminalPhase(state); phase != "" {
		state.Combat.Phase = phase
		events = append(events, models.GameEvent{Type: models.EventCombatEnded, Detail: string(phase)})
	}
	return events
}

func terminalPhase(state *models.GameState) models.CombatPhase {
	monsters, players := 0, 0
	for i := range state.Units {
		u := &state.Units[i]
		if !u.Alive() {
			continue
		}
		switch u.Type {
		case models.UnitMonster:
			monsters++
		case models.UnitPlayer:
			players++
		}
	}
	if monsters == 0 {
		return models.PhaseVictory
	}
	if players == 0 {
		return models.PhaseDefeat
	}
	return ""
}

func (e *TacticalEngine) applyCollectLoot(state *models.GameState, actor *models.Unit, lootID string) ([]models.GameEvent, error) {
	for i := range state.LootDrops {
		drop := state.LootDrops[i]
		if lootID != "" && drop.ID != lootID {
			continue
		}
		if drop.Position != actor.Position {
			if lootID != "" {
				return nil, fmt.Errorf("loot %s is not at unit position", lootID)
			}
			continue
		}

		var gold int64
		for _, item := range drop.Items {
			switch item.Type {
			case models.LootGold:
				gold += item.Amount
			default:
				state.PlayerInventory.Items = append(state.PlayerInventory.Items, item.Name)
			}
		}
		state.PlayerInventory.Gold += gold
		state.LootDrops = append(state.LootDrops[:i], state.LootDrops[i+1:]...)

		return []models.GameEvent{{
			Type:     models.EventLootCollected,
			UnitID:   actor.ID,
			Amount:   int(gold),
			Position: &actor.Position,
			Detail:   drop.ID,
		}}, nil
	}
	return nil, errors.New("no loot at unit position")
}

func (e *TacticalEngine) applyEndTurn(state *models.GameState, actor *models.Unit) ([]models.GameEvent, error) {
	order := state.Combat.InitiativeOrder
	if len(order) == 0 {
		return nil, errors.New("initiative order is empty")
	}

	state.TurnHistory = append(state.TurnHistory, models.TurnRecord{
		Round:  state.Combat.Round,
		UnitID: actor.ID,
	})
	events := []models.GameEvent{{Type: models.EventTurnEnded, UnitID: actor.ID, Round: state.Combat.Round}}

	next := state.Combat.CurrentTurnIndex + 1
	if next >= len(order) {
		next = 0
		state.Combat.Round++
		events = append(events, models.GameEvent{Type: models.EventRoundStarted, Round: state.Combat.Round})
	}
	state.Combat.CurrentTurnIndex = next

	unit := state.UnitByID(order[next])
	state.Combat.TurnState = models.TurnState{
		UnitID:       unit.ID,
		MovementLeft: unit.Stats.MoveRange,
	}
	events = append(events, models.GameEvent{Type: models.EventTurnStarted, UnitID: unit.ID, Round: state.Combat.Round})
	return events, nil
}

func livingPositions(state *models.GameState, excludeID string) map[models.Position]bool {
	occupied := make(map[models.Position]bool, len(state.Units))
	for i := range state.Units {
		u := &state.Units[i]
		if u.ID != excludeID && u.Alive() {
			occupied[u.Position] = true
		}
	}
	return occupied
}
