// executor/initialize.go
package executor

import (
	"math/rand"
	"sort"

	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/models"
	"github.com/wfunc/rpgserver/network"
)

const (
	defaultMapWidth  = 24
	defaultMapHeight = 16
	maxNPCCount      = 7
)

var monsterBaseByDifficulty = map[string]int{
	"easy":   2,
	"normal": 3,
	"hard":   4,
}

// InitializeGame constructs the world for a freshly started session and
// persists it at version 1. Everything downstream of the map seed is
// deterministic: the same seed and roster always produce the same
// positions, stats, and initiative order.
func (e *Executor) InitializeGame(sessionID string) error {
	s, exists := e.registry.Get(sessionID)
	if !exists {
		return models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()

	chars := make([]*models.Character, 0, len(s.Players))
	for _, userID := range sortedUserIDs(s.Players) {
		p := s.Players[userID]
		c, err := e.db.LoadCharacter(p.CharacterID)
		if err != nil {
			s.Unlock()
			return models.NewGameError(models.CodeCharacterNotFound, "character "+p.CharacterID+" missing at start")
		}
		chars = append(chars, c)
	}

	seed := s.Config.MapSeed
	gameMap := e.engine.GenerateMap(seed, defaultMapWidth, defaultMapHeight)
	units := e.engine.GenerateUnits(seed, gameMap, chars, s.Config.PlayerMoveRange)

	// unitId 在此一次性分配，之后不可变
	for i := range units {
		if p, ok := s.Players[units[i].OwnerUserID]; ok && p.UnitID == "" {
			p.UnitID = units[i].ID
		}
	}

	npcs := e.engine.GenerateNPCs(seed, gameMap, s.Config.NPCClasses, npcCount(&s.Config, seed), units)
	units = append(units, npcs...)

	monsters := e.engine.GenerateMonsters(seed, gameMap, monsterCount(&s.Config, len(s.Players)), units)
	units = append(units, monsters...)

	state := &models.GameState{
		Map:    gameMap,
		Units:  units,
		Combat: models.CombatState{Phase: models.PhaseSetup},
	}
	events := e.engine.StartCombat(state, seed)

	s.State = state
	s.StateVersion = 1
	s.EventLog = append([]models.GameEvent(nil), events...)

	if err := e.db.SaveSession(s); err != nil {
		s.Unlock()
		return err
	}
	for _, p := range s.Players {
		if err := e.db.SaveSessionPlayer(p); err != nil {
			logger.Log.Errorf("Session %s: failed to persist unit assignment for user %d: %v", s.ID, p.UserID, err)
		}
	}
	if err := e.db.AppendEvents(s.ID, 1, events); err != nil {
		logger.Log.Errorf("Session %s: failed to append initial events: %v", s.ID, err)
	}

	// 每个玩家收到个性化的全量快照
	for _, p := range s.Players {
		e.broadcaster.SendToUser(p.UserID, network.MsgTypeFullState, network.FullState{
			Version:    s.StateVersion,
			GameState:  s.State,
			YourUnitID: p.UnitID,
		})
	}
	e.broadcaster.SendToUser(s.DMUserID, network.MsgTypeFullState, network.FullState{
		Version:   s.StateVersion,
		GameState: s.State,
	})
	e.broadcaster.BroadcastToGame(s.ID, network.MsgTypeEvents, network.EventsMessage{Version: 1, Events: events})

	post := e.handleTurnChangeLocked(s)
	s.Unlock()
	post()

	logger.Log.Infof("Session %s initialized: %d units, seed %d", s.ID, len(units), seed)
	return nil
}

// FullStateFor builds the personalized snapshot for request_sync.
func (e *Executor) FullStateFor(sessionID string, userID int64) (*network.FullState, error) {
	s, exists := e.registry.Get(sessionID)
	if !exists {
		return nil, models.NewGameError(models.CodeSessionNotFound, "session not found")
	}

	s.Lock()
	defer s.Unlock()
	if s.State == nil {
		return nil, models.NewGameError(models.CodeGameStateNotInitialized, "game not initialized")
	}

	full := &network.FullState{
		Version:   s.StateVersion,
		GameState: s.State.Clone(),
	}
	if p, ok := s.Players[userID]; ok {
		full.YourUnitID = p.UnitID
	}
	return full, nil
}

// monsterCount applies the DM override, else base[difficulty] plus one
// per two players.
func monsterCount(cfg *models.SessionConfig, playerCount int) int {
	if cfg.MonsterCount > 0 {
		return cfg.MonsterCount
	}
	base, ok := monsterBaseByDifficulty[cfg.Difficulty]
	if !ok {
		base = monsterBaseByDifficulty["normal"]
	}
	return base + playerCount/2
}

// npcCount is only consulted when no explicit class list is configured;
// the random draw stays tied to the map seed.
func npcCount(cfg *models.SessionConfig, seed int64) int {
	if len(cfg.NPCClasses) > 0 {
		return len(cfg.NPCClasses)
	}
	if cfg.NPCCount > 0 {
		if cfg.NPCCount > maxNPCCount {
			return maxNPCCount
		}
		return cfg.NPCCount
	}
	return rand.New(rand.NewSource(seed + 7)).Intn(maxNPCCount) + 1
}

// sortedUserIDs keeps per-player iteration deterministic where order
// leaks into generated content.
func sortedUserIDs(players map[int64]*models.SessionPlayer) []int64 {
	ids := make([]int64, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
