// ai/controller.go
package ai

import (
	"github.com/wfunc/rpgserver/executor"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/network"
	"github.com/wfunc/rpgserver/registry"
	"github.com/wfunc/rpgserver/sim"
)

// NPC 与最近玩家保持的跟随距离（曼哈顿格数）
const npcFollowDistance = 3

// 复仇/助攻目标只在最近的事件窗口里找
const recentEventWindow = 50

// Controller drives npc and monster turns. Every sub-step is issued as
// an ordinary action through the executor, so AI behavior cannot bypass
// validation, versioning, or broadcast. Turn ownership is re-checked
// before each sub-step: a concurrent DM skip_turn may have advanced the
// turn while this controller was thinking.
type Controller struct {
	registry *registry.Registry
	executor *executor.Executor
	engine   sim.Engine
	metrics  ActionCounter
}

// ActionCounter 上报 AI 执行的动作数。*monitor.Monitor 实现它。
type ActionCounter interface {
	IncAIActions()
}

func NewController(reg *registry.Registry, exec *executor.Executor, engine sim.Engine) *Controller {
	return &Controller{registry: reg, executor: exec, engine: engine}
}

// SetMetrics wires the action counter in after construction.
func (c *Controller) SetMetrics(m ActionCounter) {
	c.metrics = m
}

// act issues one sub-action through the executor and counts it when it
// lands.
func (c *Controller) act(sessionID, unitID string, action models.GameAction) network.ActionResult {
	result := c.executor.ExecuteUnitAction(sessionID, unitID, action)
	if result.Valid && c.metrics != nil {
		c.metrics.IncAIActions()
	}
	return result
}

// TakeTurn runs one AI unit's full turn: attack if a target is in reach,
// otherwise close with one, collect loot underfoot (NPCs only), and end
// the turn unconditionally.
func (c *Controller) TakeTurn(sessionID, unitID string) {
	snap, ok := c.snapshot(sessionID, unitID)
	if !ok {
		return
	}
	me := snap.state.UnitByID(unitID)
	if me == nil || !me.Alive() {
		return
	}

	target := c.chooseTarget(snap, me)

	attacked := false
	if target != nil &&
		sim.Distance(me.Position, target.Position) <= me.Stats.AttackRange &&
		c.engine.HasLineOfSight(snap.state.Map, me.Position, target.Position) {
		result := c.act(sessionID, unitID, models.GameAction{
			Kind:     models.ActionAttack,
			TargetID: target.ID,
		})
		attacked = result.Valid
		if !result.Valid {
			logger.Log.Debugf("Session %s: AI attack by %s rejected: %s", sessionID, unitID, result.Reason)
		}
	}

	if !attacked {
		if snap, ok = c.snapshot(sessionID, unitID); !ok {
			return
		}
		if path := c.approachPath(snap, unitID, target); len(path) > 0 {
			result := c.act(sessionID, unitID, models.GameAction{
				Kind: models.ActionMove,
				Path: path,
			})
			if !result.Valid {
				logger.Log.Debugf("Session %s: AI move by %s rejected: %s", sessionID, unitID, result.Reason)
			}
		}
	}

	if me.Type == models.UnitNPC {
		if snap, ok = c.snapshot(sessionID, unitID); !ok {
			return
		}
		if unit := snap.state.UnitByID(unitID); unit != nil {
			for _, drop := range snap.state.LootDrops {
				if drop.Position == unit.Position {
					c.act(sessionID, unitID, models.GameAction{
						Kind:   models.ActionCollectLoot,
						LootID: drop.ID,
					})
					break
				}
			}
		}
	}

	if _, ok = c.snapshot(sessionID, unitID); !ok {
		return
	}
	c.act(sessionID, unitID, models.GameAction{Kind: models.ActionEndTurn})
}

type turnSnapshot struct {
	state    *models.GameState
	eventLog []models.GameEvent
}

// snapshot re-validates that the unit still holds the turn and copies
// what the decision logic needs. Returns ok=false when the turn moved on.
func (c *Controller) snapshot(sessionID, unitID string) (*turnSnapshot, bool) {
	s, exists := c.registry.Get(sessionID)
	if !exists {
		return nil, false
	}
	s.Lock()
	defer s.Unlock()
	if s.Status != models.StatusPlaying || s.State == nil ||
		s.State.Combat.Phase != models.PhaseActive ||
		s.State.Combat.TurnState.UnitID != unitID {
		return nil, false
	}
	tail := s.EventLog
	if len(tail) > recentEventWindow {
		tail = tail[len(tail)-recentEventWindow:]
	}
	return &turnSnapshot{
		state:    s.State.Clone(),
		eventLog: append([]models.GameEvent(nil), tail...),
	}, true
}

// chooseTarget picks the unit to fight. NPC priority is retaliation,
// then assisting whatever a player most recently attacked, then the
// nearest enemy. Monsters simply take the nearest hostile.
func (c *Controller) chooseTarget(snap *turnSnapshot, me *models.Unit) *models.Unit {
	if me.Type == models.UnitNPC {
		if t := c.retaliationTarget(snap, me); t != nil {
			return t
		}
		if t := c.assistTarget(snap, me); t != nil {
			return t
		}
	}
	return c.nearestHostile(snap.state, me)
}

// retaliationTarget finds the most recent attacker of this unit that is
// still alive and hostile.
func (c *Controller) retaliationTarget(snap *turnSnapshot, me *models.Unit) *models.Unit {
	for i := len(snap.eventLog) - 1; i >= 0; i-- {
		ev := snap.eventLog[i]
		if ev.Type != models.EventUnitAttacked || ev.TargetID != me.ID {
			continue
		}
		attacker := snap.state.UnitByID(ev.UnitID)
		if attacker != nil && attacker.Alive() && me.Hostile(attacker) {
			return attacker
		}
	}
	return nil
}

// assistTarget finds the unit a player most recently attacked.
func (c *Controller) assistTarget(snap *turnSnapshot, me *models.Unit) *models.Unit {
	for i := len(snap.eventLog) - 1; i >= 0; i-- {
		ev := snap.eventLog[i]
		if ev.Type != models.EventUnitAttacked {
			continue
		}
		attacker := snap.state.UnitByID(ev.UnitID)
		if attacker == nil || attacker.Type != models.UnitPlayer {
			continue
		}
		target := snap.state.UnitByID(ev.TargetID)
		if target != nil && target.Alive() && me.Hostile(target) {
			return target
		}
	}
	return nil
}

func (c *Controller) nearestHostile(state *models.GameState, me *models.Unit) *models.Unit {
	var nearest *models.Unit
	best := -1
	for i := range state.Units {
		u := &state.Units[i]
		if !u.Alive() || !me.Hostile(u) {
			continue
		}
		d := sim.Distance(me.Position, u.Position)
		if best < 0 || d < best || (d == best && u.ID < nearest.ID) {
			nearest = u
			best = d
		}
	}
	return nearest
}

// approachPath plans movement for the remaining points. Monsters always
// close with the target; NPCs close with a priority target, or drift
// back toward the nearest player when they have strayed past the follow
// distance.
func (c *Controller) approachPath(snap *turnSnapshot, unitID string, target *models.Unit) []models.Position {
	state := snap.state
	me := state.UnitByID(unitID)
	if me == nil {
		return nil
	}
	movement := state.Combat.TurnState.MovementLeft
	if movement <= 0 {
		return nil
	}

	var goal *models.Unit
	if target != nil {
		goal = state.UnitByID(target.ID)
	}
	if goal == nil && me.Type == models.UnitNPC {
		// 无战斗目标时跟随最近的玩家
		goal = c.nearestPlayer(state, me)
		if goal != nil && sim.Distance(me.Position, goal.Position) <= npcFollowDistance {
			return nil
		}
	}
	if goal == nil {
		return nil
	}

	path := c.shortestPathAdjacent(state, me, goal.Position)
	if len(path) == 0 {
		return nil
	}
	if len(path) > movement {
		path = path[:movement]
	}
	return path
}

func (c *Controller) nearestPlayer(state *models.GameState, me *models.Unit) *models.Unit {
	var nearest *models.Unit
	best := -1
	for i := range state.Units {
		u := &state.Units[i]
		if !u.Alive() || u.Type != models.UnitPlayer {
			continue
		}
		d := sim.Distance(me.Position, u.Position)
		if best < 0 || d < best || (d == best && u.ID < nearest.ID) {
			nearest = u
			best = d
		}
	}
	return nearest
}

// shortestPathAdjacent returns the shortest path to any walkable,
// unoccupied tile adjacent to the goal. Neighbor order is fixed, so the
// choice is deterministic.
func (c *Controller) shortestPathAdjacent(state *models.GameState, me *models.Unit, goal models.Position) []models.Position {
	occupied := make(map[models.Position]bool)
	for i := range state.Units {
		u := &state.Units[i]
		if u.ID != me.ID && u.Alive() {
			occupied[u.Position] = true
		}
	}
	blocked := func(p models.Position) bool { return occupied[p] }

	offsets := [4]models.Position{{X: 0, Y: -1}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}}
	var best []models.Position
	for _, off := range offsets {
		dest := models.Position{X: goal.X + off.X, Y: goal.Y + off.Y}
		if dest == me.Position {
			return nil // already adjacent
		}
		if !state.Map.Walkable(dest) || occupied[dest] {
			continue
		}
		path := c.engine.FindPath(state.Map, me.Position, dest, blocked)
		if path == nil {
			continue
		}
		if best == nil || len(path) < len(best) {
			best = path
		}
	}
	return best
}
