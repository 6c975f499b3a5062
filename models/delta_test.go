package models

import (
	"reflect"
	"testing"
)

func testState() *GameState {
	m := &GameMap{Width: 6, Height: 6, Tiles: make([]TileType, 36)}
	return &GameState{
		Map: m,
		Units: []Unit{
			{ID: "unit-a", Type: UnitPlayer, Position: Position{X: 1, Y: 1}, Stats: Stats{HP: 20, MaxHP: 20, Attack: 6, Defense: 3, MoveRange: 4, AttackRange: 1}},
			{ID: "monster-1", Type: UnitMonster, Position: Position{X: 4, Y: 1}, Stats: Stats{HP: 12, MaxHP: 12, Attack: 5, Defense: 2, MoveRange: 5, AttackRange: 1}},
		},
		Combat: CombatState{
			Phase:           PhaseActive,
			Round:           1,
			InitiativeOrder: []string{"unit-a", "monster-1"},
			TurnState:       TurnState{UnitID: "unit-a", MovementLeft: 4},
		},
	}
}

func TestComputeDelta_UnitChange(t *testing.T) {
	before := testState()
	after := before.Clone()
	after.UnitByID("monster-1").Stats.HP = 8

	delta := ComputeDelta(before, after, 3, 4)

	if delta.FromVersion != 3 || delta.ToVersion != 4 {
		t.Errorf("Expected versions 3->4, got %d->%d", delta.FromVersion, delta.ToVersion)
	}
	if len(delta.Diff.Units) != 1 {
		t.Fatalf("Expected one changed unit, got %d", len(delta.Diff.Units))
	}
	if delta.Diff.Units[0].ID != "monster-1" || delta.Diff.Units[0].Stats.HP != 8 {
		t.Errorf("Changed unit should be monster-1 at 8 hp, got %+v", delta.Diff.Units[0])
	}
	if delta.Diff.Combat != nil {
		t.Error("Combat state did not change and should not appear in the diff")
	}
}

func TestComputeDelta_NoChange(t *testing.T) {
	before := testState()
	after := before.Clone()

	delta := ComputeDelta(before, after, 1, 2)

	if len(delta.Diff.Units) != 0 || len(delta.Diff.RemovedUnits) != 0 ||
		delta.Diff.Combat != nil || delta.Diff.Inventory != nil {
		t.Errorf("Identical states should produce an empty diff, got %+v", delta.Diff)
	}
}

func TestStateDelta_Apply_ReproducesSnapshot(t *testing.T) {
	before := testState()
	after := before.Clone()

	// kill the monster: removed from initiative, loot dropped, turn state advanced
	after.UnitByID("monster-1").Stats.HP = 0
	after.Combat.InitiativeOrder = []string{"unit-a"}
	after.Combat.TurnState = TurnState{UnitID: "unit-a", MovementLeft: 4, ActionUsed: true}
	after.LootDrops = append(after.LootDrops, LootDrop{
		ID:       "loot-monster-1",
		Position: Position{X: 4, Y: 1},
		Items:    []LootItem{{Type: LootGold, Amount: 11}},
	})
	after.TurnHistory = append(after.TurnHistory, TurnRecord{Round: 1, UnitID: "unit-a"})

	delta := ComputeDelta(before, after, 5, 6)
	rebuilt := delta.Apply(before)

	if !reflect.DeepEqual(rebuilt.Units, after.Units) {
		t.Errorf("Rebuilt units differ:\n got %+v\nwant %+v", rebuilt.Units, after.Units)
	}
	if !reflect.DeepEqual(rebuilt.Combat, after.Combat) {
		t.Errorf("Rebuilt combat differs:\n got %+v\nwant %+v", rebuilt.Combat, after.Combat)
	}
	if !reflect.DeepEqual(rebuilt.LootDrops, after.LootDrops) {
		t.Errorf("Rebuilt loot differs:\n got %+v\nwant %+v", rebuilt.LootDrops, after.LootDrops)
	}
	if !reflect.DeepEqual(rebuilt.TurnHistory, after.TurnHistory) {
		t.Errorf("Rebuilt turn history differs:\n got %+v\nwant %+v", rebuilt.TurnHistory, after.TurnHistory)
	}
}

func TestStateDelta_Apply_UnitRemovalAndInventory(t *testing.T) {
	before := testState()
	before.LootDrops = []LootDrop{{ID: "loot-1", Position: Position{X: 2, Y: 2}, Items: []LootItem{{Type: LootGold, Amount: 7}}}}

	after := before.Clone()
	after.Units = after.Units[:1] // monster gone entirely
	after.LootDrops = nil
	after.PlayerInventory.Gold = 7

	delta := ComputeDelta(before, after, 9, 10)

	if len(delta.Diff.RemovedUnits) != 1 || delta.Diff.RemovedUnits[0] != "monster-1" {
		t.Fatalf("Expected monster-1 removal, got %v", delta.Diff.RemovedUnits)
	}
	if len(delta.Diff.RemovedLoot) != 1 || delta.Diff.RemovedLoot[0] != "loot-1" {
		t.Fatalf("Expected loot-1 removal, got %v", delta.Diff.RemovedLoot)
	}
	if delta.Diff.Inventory == nil || delta.Diff.Inventory.Gold != 7 {
		t.Fatalf("Expected inventory diff with 7 gold, got %+v", delta.Diff.Inventory)
	}

	rebuilt := delta.Apply(before)
	if len(rebuilt.Units) != 1 || rebuilt.Units[0].ID != "unit-a" {
		t.Errorf("Rebuilt state should only contain unit-a, got %+v", rebuilt.Units)
	}
	if len(rebuilt.LootDrops) != 0 {
		t.Errorf("Rebuilt state should have no loot, got %+v", rebuilt.LootDrops)
	}
	if rebuilt.PlayerInventory.Gold != 7 {
		t.Errorf("Rebuilt inventory should hold 7 gold, got %d", rebuilt.PlayerInventory.Gold)
	}
}

func TestStateDelta_Apply_DoesNotModifyInput(t *testing.T) {
	before := testState()
	after := before.Clone()
	after.UnitByID("unit-a").Position = Position{X: 2, Y: 1}

	delta := ComputeDelta(before, after, 1, 2)
	delta.Apply(before)

	if before.UnitByID("unit-a").Position != (Position{X: 1, Y: 1}) {
		t.Error("Apply must not modify the input snapshot")
	}
}
