package sim

import (
	"testing"

	"github.com/wfunc/rpgserver/models"
)

func testCharacters() []*models.Character {
	return []*models.Character{
		{ID: "char-b", UserID: 2, Name: "Mira", Class: "ranger", Level: 2},
		{ID: "char-a", UserID: 1, Name: "Borin", Class: "warrior", Level: 1},
	}
}

func TestGenerateMap_Deterministic(t *testing.T) {
	engine := NewTacticalEngine()

	first := engine.GenerateMap(42, 24, 16)
	second := engine.GenerateMap(42, 24, 16)

	if len(first.Tiles) != len(second.Tiles) {
		t.Fatal("Maps from the same seed differ in size")
	}
	for i := range first.Tiles {
		if first.Tiles[i] != second.Tiles[i] {
			t.Fatalf("Tile %d differs between runs of the same seed", i)
		}
	}

	other := engine.GenerateMap(43, 24, 16)
	same := true
	for i := range first.Tiles {
		if first.Tiles[i] != other.Tiles[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("Different seeds should produce different maps")
	}
}

func TestGenerateMap_SpawnBandsClear(t *testing.T) {
	engine := NewTacticalEngine()
	m := engine.GenerateMap(7, 24, 16)

	for y := 0; y < m.Height; y++ {
		for x := 0; x < 4; x++ {
			if !m.Walkable(models.Position{X: x, Y: y}) {
				t.Fatalf("Left spawn band tile (%d,%d) is blocked", x, y)
			}
		}
		for x := m.Width - 4; x < m.Width; x++ {
			if !m.Walkable(models.Position{X: x, Y: y}) {
				t.Fatalf("Right spawn band tile (%d,%d) is blocked", x, y)
			}
		}
	}
}

func TestGenerateUnits_SortedByCharacterID(t *testing.T) {
	engine := NewTacticalEngine()
	m := engine.GenerateMap(1, 24, 16)

	units := engine.GenerateUnits(1, m, testCharacters(), 0)

	if len(units) != 2 {
		t.Fatalf("Expected 2 units, got %d", len(units))
	}
	if units[0].ID != "unit-char-a" || units[1].ID != "unit-char-b" {
		t.Errorf("Units should be ordered by character id, got %s, %s", units[0].ID, units[1].ID)
	}
	if units[0].OwnerUserID != 1 {
		t.Errorf("unit-char-a should belong to user 1, got %d", units[0].OwnerUserID)
	}
	if units[0].Stats.HP != 30 {
		t.Errorf("Level 1 warrior should have 30 hp, got %d", units[0].Stats.HP)
	}
	if units[1].Stats.HP != 24 {
		t.Errorf("Level 2 ranger should have 24 hp, got %d", units[1].Stats.HP)
	}
}

func TestGenerateUnits_MoveRangeOverride(t *testing.T) {
	engine := NewTacticalEngine()
	m := engine.GenerateMap(1, 24, 16)

	units := engine.GenerateUnits(1, m, testCharacters(), 9)
	for _, u := range units {
		if u.Stats.MoveRange != 9 {
			t.Errorf("Unit %s should have overridden move range 9, got %d", u.ID, u.Stats.MoveRange)
		}
	}
}

func TestGenerateNPCsAndMonsters_NoOverlap(t *testing.T) {
	engine := NewTacticalEngine()
	m := engine.GenerateMap(5, 24, 16)

	players := engine.GenerateUnits(5, m, testCharacters(), 0)
	npcs := engine.GenerateNPCs(5, m, nil, 3, players)
	all := append(append([]models.Unit(nil), players...), npcs...)
	monsters := engine.GenerateMonsters(5, m, 4, all)
	all = append(all, monsters...)

	if len(npcs) != 3 {
		t.Fatalf("Expected 3 npcs, got %d", len(npcs))
	}
	if len(monsters) != 4 {
		t.Fatalf("Expected 4 monsters, got %d", len(monsters))
	}

	seen := make(map[models.Position]string)
	for _, u := range all {
		if prior, taken := seen[u.Position]; taken {
			t.Fatalf("Units %s and %s share tile %v", prior, u.ID, u.Position)
		}
		seen[u.Position] = u.ID
		if !m.Walkable(u.Position) {
			t.Fatalf("Unit %s spawned on a wall at %v", u.ID, u.Position)
		}
	}
}

func TestGenerateNPCs_ExplicitClasses(t *testing.T) {
	engine := NewTacticalEngine()
	m := engine.GenerateMap(5, 24, 16)

	npcs := engine.GenerateNPCs(5, m, []string{"cleric", "mage"}, 7, nil)
	if len(npcs) != 2 {
		t.Fatalf("Explicit class list should win over count, got %d npcs", len(npcs))
	}
	if npcs[0].Class != "cleric" || npcs[1].Class != "mage" {
		t.Errorf("Classes should follow the explicit list, got %s, %s", npcs[0].Class, npcs[1].Class)
	}
}

func newCombatState(t *testing.T, seed int64) *models.GameState {
	t.Helper()
	engine := NewTacticalEngine()
	m := engine.GenerateMap(seed, 24, 16)
	players := engine.GenerateUnits(seed, m, testCharacters(), 0)
	monsters := engine.GenerateMonsters(seed, m, 2, players)
	state := &models.GameState{
		Map:   m,
		Units: append(players, monsters...),
	}
	engine.StartCombat(state, seed)
	return state
}

func TestStartCombat_Deterministic(t *testing.T) {
	first := newCombatState(t, 11)
	second := newCombatState(t, 11)

	if len(first.Combat.InitiativeOrder) != len(second.Combat.InitiativeOrder) {
		t.Fatal("Initiative order length differs between runs")
	}
	for i := range first.Combat.InitiativeOrder {
		if first.Combat.InitiativeOrder[i] != second.Combat.InitiativeOrder[i] {
			t.Fatalf("Initiative order differs at %d: %s vs %s",
				i, first.Combat.InitiativeOrder[i], second.Combat.InitiativeOrder[i])
		}
	}
	if first.Combat.Phase != models.PhaseActive || first.Combat.Round != 1 {
		t.Errorf("StartCombat should open round 1 active, got %s round %d", first.Combat.Phase, first.Combat.Round)
	}
	active := first.ActiveUnit()
	if active == nil {
		t.Fatal("StartCombat must set an active unit")
	}
	if first.Combat.TurnState.MovementLeft != active.Stats.MoveRange {
		t.Errorf("First turn should start with full movement %d, got %d",
			active.Stats.MoveRange, first.Combat.TurnState.MovementLeft)
	}
}

func TestExecuteAction_RejectsWrongUnit(t *testing.T) {
	engine := NewTacticalEngine()
	state := newCombatState(t, 11)

	var idle string
	for _, id := range state.Combat.InitiativeOrder {
		if id != state.Combat.TurnState.UnitID {
			idle = id
			break
		}
	}

	_, _, err := engine.ExecuteAction(models.GameAction{Kind: models.ActionEndTurn, UnitID: idle}, state)
	if err != ErrNotActiveUnit {
		t.Errorf("Expected ErrNotActiveUnit, got %v", err)
	}
}

func TestExecuteAction_InputStateUntouched(t *testing.T) {
	engine := NewTacticalEngine()
	state := newCombatState(t, 11)
	activeID := state.Combat.TurnState.UnitID
	historyLen := len(state.TurnHistory)

	next, _, err := engine.ExecuteAction(models.GameAction{Kind: models.ActionEndTurn, UnitID: activeID}, state)
	if err != nil {
		t.Fatalf("end_turn failed: %v", err)
	}
	if state.Combat.TurnState.UnitID != activeID {
		t.Error("Input state was mutated by ExecuteAction")
	}
	if len(state.TurnHistory) != historyLen {
		t.Error("Input turn history was mutated by ExecuteAction")
	}
	if next.Combat.TurnState.UnitID == activeID && len(state.Combat.InitiativeOrder) > 1 {
		t.Error("end_turn should advance to the next unit")
	}
}

func TestExecuteAction_Move(t *testing.T) {
	engine := NewTacticalEngine()
	state := newCombatState(t, 11)
	actor := state.ActiveUnit()
	dest := models.Position{X: actor.Position.X, Y: actor.Position.Y + 1}
	if !state.Map.Walkable(dest) {
		t.Skip("destination blocked for this seed")
	}

	next, events, err := engine.ExecuteAction(models.GameAction{
		Kind:   models.ActionMove,
		UnitID: actor.ID,
		Path:   []models.Position{dest},
	}, state)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	moved := next.UnitByID(actor.ID)
	if moved.Position != dest {
		t.Errorf("Unit should stand at %v, got %v", dest, moved.Position)
	}
	if next.Combat.TurnState.MovementLeft != actor.Stats.MoveRange-1 {
		t.Errorf("One step should cost one movement, left %d", next.Combat.TurnState.MovementLeft)
	}
	if len(events) != 1 || events[0].Type != models.EventUnitMoved {
		t.Errorf("Expected a single unit_moved event, got %+v", events)
	}
}

func TestExecuteAction_MoveBeyondMovementRejected(t *testing.T) {
	engine := NewTacticalEngine()
	state := newCombatState(t, 11)
	actor := state.ActiveUnit()

	path := make([]models.Position, 0, actor.Stats.MoveRange+1)
	pos := actor.Position
	for i := 0; i <= actor.Stats.MoveRange; i++ {
		pos = models.Position{X: pos.X, Y: pos.Y + 1}
		path = append(path, pos)
	}

	_, _, err := engine.ExecuteAction(models.GameAction{
		Kind:   models.ActionMove,
		UnitID: actor.ID,
		Path:   path,
	}, state)
	if err == nil {
		t.Error("A path longer than remaining movement must be rejected")
	}
}

// duel sets up a two-unit standoff with deterministic stats.
func duel(t *testing.T) (*TacticalEngine, *models.GameState) {
	t.Helper()
	engine := NewTacticalEngine()
	m := openMap(8, 8)
	state := &models.GameState{
		Map: m,
		Units: []models.Unit{
			{ID: "unit-hero", Type: models.UnitPlayer, Position: models.Position{X: 1, Y: 1},
				Stats: models.Stats{HP: 20, MaxHP: 20, Attack: 10, Defense: 3, MoveRange: 4, AttackRange: 2}},
			{ID: "monster-1", Type: models.UnitMonster, Position: models.Position{X: 2, Y: 1},
				Stats: models.Stats{HP: 6, MaxHP: 12, Attack: 5, Defense: 2, MoveRange: 5, AttackRange: 1}},
		},
		Combat: models.CombatState{
			Phase:           models.PhaseActive,
			Round:           1,
			InitiativeOrder: []string{"unit-hero", "monster-1"},
			TurnState:       models.TurnState{UnitID: "unit-hero", MovementLeft: 4},
		},
	}
	return engine, state
}

func TestExecuteAction_AttackKillsAndDropsLoot(t *testing.T) {
	engine, state := duel(t)

	next, events, err := engine.ExecuteAction(models.GameAction{
		Kind:     models.ActionAttack,
		UnitID:   "unit-hero",
		TargetID: "monster-1",
	}, state)
	if err != nil {
		t.Fatalf("attack failed: %v", err)
	}

	// 10 attack - 2 defense = 8 damage kills the 6 hp monster
	dead := next.UnitByID("monster-1")
	if dead.Stats.HP != 0 {
		t.Errorf("Dead unit hp should clamp to 0, got %d", dead.Stats.HP)
	}
	if len(next.Combat.InitiativeOrder) != 1 || next.Combat.InitiativeOrder[0] != "unit-hero" {
		t.Errorf("Dead unit must leave initiative, got %v", next.Combat.InitiativeOrder)
	}
	if next.Combat.Phase != models.PhaseVictory {
		t.Errorf("Last monster death should flip phase to victory, got %s", next.Combat.Phase)
	}
	if len(next.LootDrops) != 1 {
		t.Fatalf("Monster death should drop loot, got %d drops", len(next.LootDrops))
	}
	if next.LootDrops[0].Items[0].Amount != 11 { // 5 + 12/2
		t.Errorf("Expected 11 gold in the drop, got %d", next.LootDrops[0].Items[0].Amount)
	}

	types := make([]models.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []models.EventType{
		models.EventUnitAttacked, models.EventUnitDied,
		models.EventLootDropped, models.EventCombatEnded,
	}
	if len(types) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("Event %d should be %s, got %s", i, want[i], types[i])
		}
	}
}

func TestExecuteAction_AttackTwiceRejected(t *testing.T) {
	engine, state := duel(t)
	state.Units[1].Stats.HP = 100 // survives the first hit

	next, _, err := engine.ExecuteAction(models.GameAction{
		Kind: models.ActionAttack, UnitID: "unit-hero", TargetID: "monster-1",
	}, state)
	if err != nil {
		t.Fatalf("first attack failed: %v", err)
	}
	_, _, err = engine.ExecuteAction(models.GameAction{
		Kind: models.ActionAttack, UnitID: "unit-hero", TargetID: "monster-1",
	}, next)
	if err == nil {
		t.Error("Second attack in one turn must be rejected")
	}
}

func TestExecuteAction_AttackOutOfRangeRejected(t *testing.T) {
	engine, state := duel(t)
	state.Units[1].Position = models.Position{X: 6, Y: 6}

	_, _, err := engine.ExecuteAction(models.GameAction{
		Kind: models.ActionAttack, UnitID: "unit-hero", TargetID: "monster-1",
	}, state)
	if err == nil {
		t.Error("Attack beyond range must be rejected")
	}
}

func TestExecuteAction_CollectLoot(t *testing.T) {
	engine, state := duel(t)
	state.LootDrops = []models.LootDrop{{
		ID:       "loot-1",
		Position: models.Position{X: 1, Y: 1},
		Items: []models.LootItem{
			{Type: models.LootGold, Amount: 11},
			{Type: models.LootWeapon, Name: "rusty sword"},
		},
	}}

	next, events, err := engine.ExecuteAction(models.GameAction{
		Kind: models.ActionCollectLoot, UnitID: "unit-hero", LootID: "loot-1",
	}, state)
	if err != nil {
		t.Fatalf("collect_loot failed: %v", err)
	}
	if next.PlayerInventory.Gold != 11 {
		t.Errorf("Shared inventory should hold 11 gold, got %d", next.PlayerInventory.Gold)
	}
	if len(next.PlayerInventory.Items) != 1 || next.PlayerInventory.Items[0] != "rusty sword" {
		t.Errorf("Shared inventory should hold the weapon, got %v", next.PlayerInventory.Items)
	}
	if len(next.LootDrops) != 0 {
		t.Errorf("Collected drop should disappear, got %v", next.LootDrops)
	}
	if len(events) != 1 || events[0].Type != models.EventLootCollected {
		t.Errorf("Expected loot_collected, got %+v", events)
	}
}

func TestExecuteAction_CollectLootWrongTileRejected(t *testing.T) {
	engine, state := duel(t)
	state.LootDrops = []models.LootDrop{{
		ID:       "loot-1",
		Position: models.Position{X: 5, Y: 5},
		Items:    []models.LootItem{{Type: models.LootGold, Amount: 3}},
	}}

	_, _, err := engine.ExecuteAction(models.GameAction{
		Kind: models.ActionCollectLoot, UnitID: "unit-hero", LootID: "loot-1",
	}, state)
	if err == nil {
		t.Error("Collecting loot from another tile must be rejected")
	}
}

func TestExecuteAction_EndTurnRoundWrap(t *testing.T) {
	engine, state := duel(t)

	next, _, err := engine.ExecuteAction(models.GameAction{Kind: models.ActionEndTurn, UnitID: "unit-hero"}, state)
	if err != nil {
		t.Fatalf("end_turn failed: %v", err)
	}
	if next.Combat.TurnState.UnitID != "monster-1" {
		t.Fatalf("Turn should pass to monster-1, got %s", next.Combat.TurnState.UnitID)
	}
	if next.Combat.Round != 1 {
		t.Errorf("Round should not advance mid-rotation, got %d", next.Combat.Round)
	}

	final, events, err := engine.ExecuteAction(models.GameAction{Kind: models.ActionEndTurn, UnitID: "monster-1"}, next)
	if err != nil {
		t.Fatalf("second end_turn failed: %v", err)
	}
	if final.Combat.Round != 2 {
		t.Errorf("Completing the rotation should start round 2, got %d", final.Combat.Round)
	}
	if final.Combat.TurnState.UnitID != "unit-hero" {
		t.Errorf("Round 2 should start with unit-hero, got %s", final.Combat.TurnState.UnitID)
	}
	if final.Combat.TurnState.MovementLeft != 4 || final.Combat.TurnState.ActionUsed {
		t.Errorf("New turn should reset movement and action, got %+v", final.Combat.TurnState)
	}

	sawRound := false
	for _, ev := range events {
		if ev.Type == models.EventRoundStarted && ev.Round == 2 {
			sawRound = true
		}
	}
	if !sawRound {
		t.Error("Round wrap should emit round_started for round 2")
	}
	if len(final.TurnHistory) != 2 {
		t.Errorf("Two end_turns should leave two history records, got %d", len(final.TurnHistory))
	}
}
