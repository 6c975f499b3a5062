// models/delta.go
package models

// StateDiff 按"整单位"粒度的状态差异。地图在开局后不可变，不参与差异。
type StateDiff struct {
	Units        []Unit       `json:"units,omitempty"`        // added or changed, whole unit
	RemovedUnits []string     `json:"removedUnits,omitempty"` // unit ids
	Combat       *CombatState `json:"combat,omitempty"`
	LootDrops    []LootDrop   `json:"lootDrops,omitempty"` // added or changed
	RemovedLoot  []string     `json:"removedLoot,omitempty"`
	Inventory    *Inventory   `json:"inventory,omitempty"`
	TurnHistory  []TurnRecord `json:"turnHistory,omitempty"` // appended records
}

// StateDelta is broadcast after every successful mutation. Applying Diff
// to the snapshot at FromVersion must reproduce the snapshot at ToVersion
// exactly; a client holding any other version discards it and requests a
// full sync instead.
type StateDelta struct {
	FromVersion int64     `json:"fromVersion"`
	ToVersion   int64     `json:"toVersion"`
	Diff        StateDiff `json:"diff"`
}

func combatEqual(a, b *CombatState) bool {
	if a.Phase != b.Phase || a.Round != b.Round ||
		a.CurrentTurnIndex != b.CurrentTurnIndex || a.TurnState != b.TurnState {
		return false
	}
	if len(a.InitiativeOrder) != len(b.InitiativeOrder) {
		return false
	}
	for i := range a.InitiativeOrder {
		if a.InitiativeOrder[i] != b.InitiativeOrder[i] {
			return false
		}
	}
	return true
}

func lootEqual(a, b *LootDrop) bool {
	if a.ID != b.ID || a.Position != b.Position || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}

func inventoryEqual(a, b *Inventory) bool {
	if a.Gold != b.Gold || len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if a.Items[i] != b.Items[i] {
			return false
		}
	}
	return true
}

// ComputeDelta diffs two state snapshots taken at consecutive versions.
func ComputeDelta(before, after *GameState, fromVersion, toVersion int64) *StateDelta {
	delta := &StateDelta{FromVersion: fromVersion, ToVersion: toVersion}

	prev := make(map[string]Unit, len(before.Units))
	for _, u := range before.Units {
		prev[u.ID] = u
	}
	seen := make(map[string]bool, len(after.Units))
	for _, u := range after.Units {
		seen[u.ID] = true
		if old, ok := prev[u.ID]; !ok || old != u {
			delta.Diff.Units = append(delta.Diff.Units, u)
		}
	}
	for _, u := range before.Units {
		if !seen[u.ID] {
			delta.Diff.RemovedUnits = append(delta.Diff.RemovedUnits, u.ID)
		}
	}

	if !combatEqual(&before.Combat, &after.Combat) {
		combat := after.Combat
		combat.InitiativeOrder = append([]string(nil), after.Combat.InitiativeOrder...)
		delta.Diff.Combat = &combat
	}

	prevLoot := make(map[string]LootDrop, len(before.LootDrops))
	for _, d := range before.LootDrops {
		prevLoot[d.ID] = d
	}
	seenLoot := make(map[string]bool, len(after.LootDrops))
	for _, d := range after.LootDrops {
		seenLoot[d.ID] = true
		if old, ok := prevLoot[d.ID]; !ok || !lootEqual(&old, &d) {
			delta.Diff.LootDrops = append(delta.Diff.LootDrops, d)
		}
	}
	for _, d := range before.LootDrops {
		if !seenLoot[d.ID] {
			delta.Diff.RemovedLoot = append(delta.Diff.RemovedLoot, d.ID)
		}
	}

	if !inventoryEqual(&before.PlayerInventory, &after.PlayerInventory) {
		inv := after.PlayerInventory
		inv.Items = append([]string(nil), after.PlayerInventory.Items...)
		delta.Diff.Inventory = &inv
	}

	if n := len(after.TurnHistory) - len(before.TurnHistory); n > 0 {
		delta.Diff.TurnHistory = append([]TurnRecord(nil), after.TurnHistory[len(before.TurnHistory):]...)
	}

	return delta
}

// Apply rebuilds the ToVersion snapshot from a FromVersion snapshot.
// The input is not modified. This is the client-side reconciliation
// contract; it is exercised server-side only by tests.
func (d *StateDelta) Apply(snapshot *GameState) *GameState {
	next := snapshot.Clone()

	for _, u := range d.Diff.Units {
		if existing := next.UnitByID(u.ID); existing != nil {
			*existing = u
		} else {
			next.Units = append(next.Units, u)
		}
	}
	for _, id := range d.Diff.RemovedUnits {
		for i := range next.Units {
			if next.Units[i].ID == id {
				next.Units = append(next.Units[:i], next.Units[i+1:]...)
				break
			}
		}
	}

	if d.Diff.Combat != nil {
		next.Combat = *d.Diff.Combat
		next.Combat.InitiativeOrder = append([]string(nil), d.Diff.Combat.InitiativeOrder...)
	}

	for _, drop := range d.Diff.LootDrops {
		replaced := false
		for i := range next.LootDrops {
			if next.LootDrops[i].ID == drop.ID {
				next.LootDrops[i] = drop
				replaced = true
				break
			}
		}
		if !replaced {
			next.LootDrops = append(next.LootDrops, drop)
		}
	}
	for _, id := range d.Diff.RemovedLoot {
		for i := range next.LootDrops {
			if next.LootDrops[i].ID == id {
				next.LootDrops = append(next.LootDrops[:i], next.LootDrops[i+1:]...)
				break
			}
		}
	}

	if d.Diff.Inventory != nil {
		next.PlayerInventory = *d.Diff.Inventory
		next.PlayerInventory.Items = append([]string(nil), d.Diff.Inventory.Items...)
	}

	next.TurnHistory = append(next.TurnHistory, d.Diff.TurnHistory...)

	return next
}
