// sim/tactical.go
package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/wfunc/rpgserver/models"
)

// TacticalEngine 是默认的确定性模拟实现。相同种子下，地图、单位、
// 先攻顺序与动作结果完全一致。
type TacticalEngine struct{}

func NewTacticalEngine() *TacticalEngine {
	return &TacticalEngine{}
}

type classTemplate struct {
	hp, attack, defense, initiative, moveRange, attackRange int
}

var classTemplates = map[string]classTemplate{
	"warrior": {hp: 30, attack: 8, defense: 6, initiative: 4, moveRange: 4, attackRange: 1},
	"ranger":  {hp: 22, attack: 7, defense: 4, initiative: 7, moveRange: 5, attackRange: 4},
	"mage":    {hp: 16, attack: 9, defense: 2, initiative: 6, moveRange: 4, attackRange: 5},
	"cleric":  {hp: 20, attack: 5, defense: 5, initiative: 5, moveRange: 4, attackRange: 3},
}

var npcClassPool = []string{"warrior", "ranger", "mage", "cleric"}

type monsterTemplate struct {
	name                                                    string
	hp, attack, defense, initiative, moveRange, attackRange int
}

var monsterTemplates = []monsterTemplate{
	{name: "goblin", hp: 12, attack: 5, defense: 2, initiative: 6, moveRange: 5, attackRange: 1},
	{name: "orc", hp: 18, attack: 7, defense: 4, initiative: 4, moveRange: 4, attackRange: 1},
	{name: "troll", hp: 26, attack: 9, defense: 5, initiative: 2, moveRange: 3, attackRange: 1},
}

func classStats(class string, level int) models.Stats {
	tpl, ok := classTemplates[class]
	if !ok {
		tpl = classTemplates["warrior"]
	}
	hp := tpl.hp + 2*(level-1)
	return models.Stats{
		HP:          hp,
		MaxHP:       hp,
		Attack:      tpl.attack + (level - 1),
		Defense:     tpl.defense,
		Initiative:  tpl.initiative,
		MoveRange:   tpl.moveRange,
		AttackRange: tpl.attackRange,
	}
}

// GenerateMap builds a seeded arena. Spawn bands on the left (players,
// NPCs) and right (monsters) edges stay clear of walls.
func (e *TacticalEngine) GenerateMap(seed int64, width, height int) *models.GameMap {
	rng := rand.New(rand.NewSource(seed))
	m := &models.GameMap{
		Width:  width,
		Height: height,
		Seed:   seed,
		Tiles:  make([]models.TileType, width*height),
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < 4 || x >= width-4 {
				continue // spawn bands
			}
			// 奇数格打散墙体，避免封死通道
			if rng.Float64() < 0.12 && y%2 == 1 {
				m.Tiles[y*width+x] = models.TileWall
			}
		}
	}
	return m
}

// GenerateUnits spawns player units at fixed slots along the left edge,
// ordered by character id so repeated runs place the same roster
// identically.
func (e *TacticalEngine) GenerateUnits(seed int64, m *models.GameMap, chars []*models.Character, moveRangeOverride int) []models.Unit {
	sorted := append([]*models.Character(nil), chars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	units := make([]models.Unit, 0, len(sorted))
	for i, c := range sorted {
		stats := classStats(c.Class, c.Level)
		if moveRangeOverride > 0 {
			stats.MoveRange = moveRangeOverride
		}
		units = append(units, models.Unit{
			ID:          fmt.Sprintf("unit-%s", c.ID),
			Type:        models.UnitPlayer,
			Name:        c.Name,
			Class:       c.Class,
			Level:       c.Level,
			OwnerUserID: c.UserID,
			Position:    models.Position{X: 1, Y: 1 + i*2},
			Stats:       stats,
		})
	}
	return units
}

// GenerateNPCs spawns allied companions next to the player band. An
// explicit class list wins; otherwise count random classes are drawn.
func (e *TacticalEngine) GenerateNPCs(seed int64, m *models.GameMap, classes []string, count int, taken []models.Unit) []models.Unit {
	rng := rand.New(rand.NewSource(seed + 1))
	if len(classes) == 0 {
		for i := 0; i < count; i++ {
			classes = append(classes, npcClassPool[rng.Intn(len(npcClassPool))])
		}
	}

	occupied := occupiedSet(taken)
	units := make([]models.Unit, 0, len(classes))
	for i, class := range classes {
		pos := e.firstFreeTile(m, occupied, 2, i*2)
		stats := classStats(class, 1)
		u := models.Unit{
			ID:       fmt.Sprintf("npc-%d", i+1),
			Type:     models.UnitNPC,
			Name:     fmt.Sprintf("%s companion", class),
			Class:    class,
			Level:    1,
			Position: pos,
			Stats:    stats,
		}
		occupied[pos] = true
		units = append(units, u)
	}
	return units
}

// GenerateMonsters spawns hostiles along the right edge.
func (e *TacticalEngine) GenerateMonsters(seed int64, m *models.GameMap, count int, taken []models.Unit) []models.Unit {
	rng := rand.New(rand.NewSource(seed + 2))
	occupied := occupiedSet(taken)
	units := make([]models.Unit, 0, count)
	for i := 0; i < count; i++ {
		tpl := monsterTemplates[rng.Intn(len(monsterTemplates))]
		pos := e.firstFreeTile(m, occupied, m.Width-2, i*2)
		u := models.Unit{
			ID:       fmt.Sprintf("monster-%d", i+1),
			Type:     models.UnitMonster,
			Name:     tpl.name,
			Position: pos,
			Stats: models.Stats{
				HP:          tpl.hp,
				MaxHP:       tpl.hp,
				Attack:      tpl.attack,
				Defense:     tpl.defense,
				Initiative:  tpl.initiative,
				MoveRange:   tpl.moveRange,
				AttackRange: tpl.attackRange,
			},
		}
		occupied[pos] = true
		units = append(units, u)
	}
	return units
}

func occupiedSet(units []models.Unit) map[models.Position]bool {
	occupied := make(map[models.Position]bool, len(units))
	for _, u := range units {
		occupied[u.Position] = true
	}
	return occupied
}

// firstFreeTile scans column-major from the given column for a walkable,
// unoccupied tile. Deterministic by construction.
func (e *TacticalEngine) firstFreeTile(m *models.GameMap, occupied map[models.Position]bool, col, rowHint int) models.Position {
	for dx := 0; dx < m.Width; dx++ {
		for dy := 0; dy < m.Height; dy++ {
			x := col - dx
			if x < 0 {
				x = col + dx
			}
			if x < 0 || x >= m.Width {
				continue
			}
			y := (1 + rowHint + dy) % m.Height
			p := models.Position{X: x, Y: y}
			if m.Walkable(p) && !occupied[p] {
				return p
			}
		}
	}
	return models.Position{X: col, Y: 1}
}

// StartCombat rolls initiative for every unit and opens round 1. Ties
// break on unit id to keep the order stable across runs.
func (e *TacticalEngine) StartCombat(state *models.GameState, seed int64) []models.GameEvent {
	rng := rand.New(rand.NewSource(seed + 3))

	type roll struct {
		id    string
		total int
	}
	rolls := make([]roll, 0, len(state.Units))
	for i := range state.Units {
		u := &state.Units[i]
		rolls = append(rolls, roll{id: u.ID, total: u.Stats.Initiative + rng.Intn(20) + 1})
	}
	sort.Slice(rolls, func(i, j int) bool {
		if rolls[i].total != rolls[j].total {
			return rolls[i].total > rolls[j].total
		}
		return rolls[i].id < rolls[j].id
	})

	order := make([]string, len(rolls))
	for i, r := range rolls {
		order[i] = r.id
	}

	state.Combat = models.CombatState{
		Phase:            models.PhaseActive,
		Round:            1,
		InitiativeOrder:  order,
		CurrentTurnIndex: 0,
	}
	first := state.UnitByID(order[0])
	state.Combat.TurnState = models.TurnState{
		UnitID:       first.ID,
		MovementLeft: first.Stats.MoveRange,
	}

	return []models.GameEvent{
		{Type: models.EventCombatStarted},
		{Type: models.EventRoundStarted, Round: 1},
		{Type: models.EventTurnStarted, UnitID: first.ID, Round: 1},
	}
}
