// sim/engine.go
package sim

import (
	"github.com/wfunc/rpgserver/models"
)

// Engine 是战斗模拟引擎边界。所有方法给定种子后必须是确定性的；
// ExecuteAction 是纯函数：不修改传入状态，失败时不产生任何副作用。
type Engine interface {
	GenerateMap(seed int64, width, height int) *models.GameMap
	GenerateUnits(seed int64, m *models.GameMap, chars []*models.Character, moveRangeOverride int) []models.Unit
	GenerateNPCs(seed int64, m *models.GameMap, classes []string, count int, taken []models.Unit) []models.Unit
	GenerateMonsters(seed int64, m *models.GameMap, count int, taken []models.Unit) []models.Unit
	StartCombat(state *models.GameState, seed int64) []models.GameEvent
	ExecuteAction(action models.GameAction, state *models.GameState) (*models.GameState, []models.GameEvent, error)
	FindPath(m *models.GameMap, from, to models.Position, blocked func(models.Position) bool) []models.Position
	HasLineOfSight(m *models.GameMap, from, to models.Position) bool
}
