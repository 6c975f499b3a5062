// executor/executor.go
package executor

import (
	"time"

	"github.com/wfunc/rpgserver/broadcast"
	"github.com/wfunc/rpgserver/lifecycle"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/network"
	"github.com/wfunc/rpgserver/persistence"
	"github.com/wfunc/rpgserver/registry"
	"github.com/wfunc/rpgserver/sim"
	"github.com/wfunc/rpgserver/timer"
)

// AIController 在激活单位是 npc/monster 时接管回合。
// 接口定义在这里以打破 executor ↔ ai 的包环。
type AIController interface {
	TakeTurn(sessionID, unitID string)
}

// Executor validates and applies every state mutation. All paths — human
// actions, AI sub-steps, turn timeouts, and DM edits — funnel through the
// same versioned apply/persist/broadcast sequence.
type Executor struct {
	registry     *registry.Registry
	db           persistence.Database
	engine       sim.Engine
	broadcaster  broadcast.Broadcaster
	timers       timer.Scheduler
	lifecycle    *lifecycle.Manager
	ai           AIController
	aiThinkDelay time.Duration
}

func NewExecutor(reg *registry.Registry, db persistence.Database, engine sim.Engine,
	b broadcast.Broadcaster, timers timer.Scheduler, lc *lifecycle.Manager, aiThinkDelay time.Duration) *Executor {
	return &Executor{
		registry:     reg,
		db:           db,
		engine:       engine,
		broadcaster:  b,
		timers:       timers,
		lifecycle:    lc,
		aiThinkDelay: aiThinkDelay,
	}
}

// SetAIController wires the AI turn controller in after construction.
func (e *Executor) SetAIController(ai AIController) {
	e.ai = ai
}

// ExecuteGameAction validates a player-submitted action and applies it.
// The validation order is fixed: session, status, state, unit ownership,
// turn, embedded unit id.
func (e *Executor) ExecuteGameAction(sessionID string, userID int64, action models.GameAction) network.ActionResult {
	s, exists := e.registry.Get(sessionID)
	if !exists {
		return reject(models.CodeSessionNotFound)
	}

	s.Lock()
	if s.Status != models.StatusPlaying {
		s.Unlock()
		return reject(models.CodeGameNotStarted)
	}
	if s.State == nil {
		s.Unlock()
		return reject(models.CodeGameStateNotInitialized)
	}
	player, ok := s.Players[userID]
	if !ok || player.UnitID == "" {
		s.Unlock()
		return reject(models.CodePlayerNotInGame)
	}
	if s.State.Combat.TurnState.UnitID != player.UnitID {
		s.Unlock()
		return reject(models.CodeNotYourTurn)
	}
	if action.UnitID != "" && action.UnitID != player.UnitID {
		s.Unlock()
		return reject(models.CodeInvalidUnit)
	}
	action.UnitID = player.UnitID

	result, post := e.executeLocked(s, action)
	s.Unlock()
	post()
	return result
}

// ExecuteUnitAction is the trusted path for AI sub-steps, turn timeouts,
// and DM skip_turn. Turn ownership is still enforced: a stale caller gets
// NOT_YOUR_TURN with zero mutation.
func (e *Executor) ExecuteUnitAction(sessionID, unitID string, action models.GameAction) network.ActionResult {
	s, exists := e.registry.Get(sessionID)
	if !exists {
		return reject(models.CodeSessionNotFound)
	}

	s.Lock()
	if s.Status != models.StatusPlaying {
		s.Unlock()
		return reject(models.CodeGameNotStarted)
	}
	if s.State == nil {
		s.Unlock()
		return reject(models.CodeGameStateNotInitialized)
	}
	if s.State.Combat.TurnState.UnitID != unitID {
		s.Unlock()
		return reject(models.CodeNotYourTurn)
	}
	action.UnitID = unitID

	result, post := e.executeLocked(s, action)
	s.Unlock()
	post()
	return result
}

var noPost = func() {}

// executeLocked runs the simulation and, on success, the apply sequence.
// It returns a closure of work that must run after the session lock is
// released (terminal cascade, AI scheduling).
func (e *Executor) executeLocked(s *models.GameSession, action models.GameAction) (network.ActionResult, func()) {
	// 目的地式移动在委派前展开成完整路径，服务器只信任端点
	if action.Kind == models.ActionMove && len(action.Path) == 0 && action.Destination != nil {
		// 目的地就是脚下：合法的空操作，不产生变更也不升版本
		if unit := s.State.UnitByID(action.UnitID); unit != nil && unit.Position == *action.Destination {
			return network.ActionResult{Valid: true}, noPost
		}
		path := e.expandPath(s.State, action.UnitID, *action.Destination)
		if path == nil {
			logger.Log.Warnf("Session %s: no path to %v for unit %s", s.ID, action.Destination, action.UnitID)
			return reject(models.CodeExecutionError), noPost
		}
		action.Path = path
	}

	before := s.State
	next, events, err := e.engine.ExecuteAction(action, before)
	if err != nil {
		// 模拟失败视为整体拒绝：可能来自失步或恶意客户端，
		// 部分应用会破坏共享状态
		logger.Log.Warnf("Session %s: action %s rejected: %v", s.ID, action.Kind, err)
		return reject(models.CodeExecutionError), noPost
	}

	post, err := e.applyLocked(s, before, next, events)
	if err != nil {
		return reject(models.CodeExecutionError), noPost
	}
	return network.ActionResult{Valid: true, Events: events}, post
}

// applyLocked commits one successful mutation: version += 1 exactly,
// events appended, delta computed against the prior snapshot, both
// persisted, events then state_delta broadcast.
func (e *Executor) applyLocked(s *models.GameSession, before, next *models.GameState, events []models.GameEvent) (func(), error) {
	fromVersion := s.StateVersion
	s.State = next
	s.StateVersion++
	toVersion := s.StateVersion
	logLen := len(s.EventLog)
	s.EventLog = append(s.EventLog, events...)

	delta := models.ComputeDelta(before, next, fromVersion, toVersion)

	// 持久化失败不得掩盖：回滚内存提交、不广播，把错误交给调用方
	rollback := func(err error) (func(), error) {
		s.State = before
		s.StateVersion = fromVersion
		s.EventLog = s.EventLog[:logLen]
		logger.Log.Errorf("Session %s: failed to persist version %d: %v", s.ID, toVersion, err)
		return noPost, err
	}
	if err := e.db.SaveSession(s); err != nil {
		return rollback(err)
	}
	if err := e.db.AppendEvents(s.ID, toVersion, events); err != nil {
		post, rErr := rollback(err)
		// 会话行已写入新版本，尽力把旧版本写回去
		if saveErr := e.db.SaveSession(s); saveErr != nil {
			logger.Log.Errorf("Session %s: failed to restore version %d: %v", s.ID, fromVersion, saveErr)
		}
		return post, rErr
	}

	e.broadcaster.BroadcastToGame(s.ID, network.MsgTypeEvents, network.EventsMessage{Version: toVersion, Events: events})
	e.broadcaster.BroadcastToGame(s.ID, network.MsgTypeStateDelta, delta)

	terminal := next.Combat.Phase == models.PhaseVictory || next.Combat.Phase == models.PhaseDefeat
	turnChanged := false
	for _, ev := range events {
		if ev.Type == models.EventTurnStarted {
			turnChanged = true
		}
	}

	sessionID := s.ID
	phase := next.Combat.Phase
	if terminal {
		e.cancelTurnTimersLocked(s)
		return func() {
			reason := models.EndReasonVictory
			if phase == models.PhaseDefeat {
				reason = models.EndReasonDefeat
			}
			if err := e.lifecycle.EndSession(sessionID, reason); err != nil {
				logger.Log.Errorf("Session %s: terminal cascade failed: %v", sessionID, err)
			}
		}, nil
	}
	if turnChanged {
		return e.handleTurnChangeLocked(s), nil
	}
	return noPost, nil
}

// handleTurnChangeLocked cancels the prior turn's timers and installs
// the next turn's: a timeout for human turns, a think delay for AI ones.
func (e *Executor) handleTurnChangeLocked(s *models.GameSession) func() {
	e.cancelTurnTimersLocked(s)

	unit := s.State.ActiveUnit()
	if unit == nil {
		return noPost
	}

	var currentUserID int64
	if player := s.PlayerByUnit(unit.ID); player != nil {
		currentUserID = player.UserID
	}
	s.CurrentTurnUserID = currentUserID
	s.TurnStartedAt = time.Now()

	e.broadcaster.BroadcastToGame(s.ID, network.MsgTypeTurnChange, network.TurnChangeMessage{
		CurrentUnitID: unit.ID,
		CurrentUserID: currentUserID,
		TurnNumber:    s.State.Combat.Round,
		IsPlayerTurn:  unit.Type == models.UnitPlayer,
	})

	sessionID := s.ID
	unitID := unit.ID
	if unit.Type.IsAI() {
		if e.ai != nil {
			s.AITimerID = e.timers.AddTimer(e.aiThinkDelay, 0, func() {
				e.ai.TakeTurn(sessionID, unitID)
			})
		}
	} else if s.Config.TurnTimeLimit > 0 {
		limit := time.Duration(s.Config.TurnTimeLimit) * time.Second
		s.TurnTimerID = e.timers.AddTimer(limit, 0, func() {
			e.HandleTurnTimeout(sessionID, unitID)
		})
	}
	return noPost
}

func (e *Executor) cancelTurnTimersLocked(s *models.GameSession) {
	if s.TurnTimerID != 0 {
		e.timers.RemoveTimer(s.TurnTimerID)
		s.TurnTimerID = 0
	}
	if s.AITimerID != 0 {
		e.timers.RemoveTimer(s.AITimerID)
		s.AITimerID = 0
	}
}

// HandleTurnTimeout fires when a human turn exceeds the configured
// limit: it announces the timeout and synthesizes an end_turn. A turn
// that already advanced makes this a harmless NOT_YOUR_TURN rejection.
func (e *Executor) HandleTurnTimeout(sessionID, unitID string) {
	s, exists := e.registry.Get(sessionID)
	if !exists {
		return
	}

	s.Lock()
	stale := s.State == nil || s.State.Combat.TurnState.UnitID != unitID
	s.Unlock()
	if stale {
		return
	}

	e.broadcaster.BroadcastToGame(sessionID, network.MsgTypeTurnTimeout, network.TurnTimeoutMessage{UnitID: unitID})
	result := e.ExecuteUnitAction(sessionID, unitID, models.GameAction{Kind: models.ActionEndTurn})
	if !result.Valid {
		logger.Log.Warnf("Session %s: timeout end_turn rejected: %s", sessionID, result.Reason)
	}
}

// SkipTurn force-ends the current unit's turn on behalf of the DM.
func (e *Executor) SkipTurn(sessionID string) error {
	s, exists := e.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	if s.State == nil || s.State.Combat.Phase != models.PhaseActive {
		s.Unlock()
		return models.NewGameError(models.CodeNoActiveTurn, "no turn to skip")
	}
	unitID := s.State.Combat.TurnState.UnitID
	s.Unlock()

	result := e.ExecuteUnitAction(sessionID, unitID, models.GameAction{Kind: models.ActionEndTurn})
	if !result.Valid {
		return models.NewGameError(result.Reason, "skip_turn failed")
	}
	return nil
}

// expandPath resolves a destination tile into a full path. No
// truncation here: overlong paths are rejected by the simulation.
func (e *Executor) expandPath(state *models.GameState, unitID string, dest models.Position) []models.Position {
	unit := state.UnitByID(unitID)
	if unit == nil {
		return nil
	}
	occupied := make(map[models.Position]bool)
	for i := range state.Units {
		u := &state.Units[i]
		if u.ID != unitID && u.Alive() {
			occupied[u.Position] = true
		}
	}
	path := e.engine.FindPath(state.Map, unit.Position, dest, func(p models.Position) bool {
		return occupied[p]
	})
	if len(path) == 0 {
		return nil
	}
	return path
}

func reject(code models.Code) network.ActionResult {
	return network.ActionResult{Valid: false, Reason: code}
}
