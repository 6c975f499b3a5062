// sim/pathfinding.go
package sim

import (
	"github.com/wfunc/rpgserver/models"
)

// 邻接顺序固定为 北/东/南/西，保证寻路结果确定
var neighborOffsets = [4]models.Position{
	{X: 0, Y: -1},
	{X: 1, Y: 0},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
}

// FindPath returns the shortest walkable path from from to to, excluding
// the start tile. blocked marks tiles that cannot be entered (occupied by
// a living unit); the destination itself may be blocked only if it equals
// from. Returns nil when unreachable.
func (e *TacticalEngine) FindPath(m *models.GameMap, from, to models.Position, blocked func(models.Position) bool) []models.Position {
	if from == to {
		return []models.Position{}
	}
	if !m.Walkable(to) || (blocked != nil && blocked(to)) {
		return nil
	}

	type node struct {
		pos  models.Position
		prev int
	}

	visited := make(map[models.Position]bool, m.Width*m.Height)
	visited[from] = true
	queue := []node{{pos: from, prev: -1}}

	for head := 0; head < len(queue); head++ {
		current := queue[head]
		for _, off := range neighborOffsets {
			next := models.Position{X: current.pos.X + off.X, Y: current.pos.Y + off.Y}
			if visited[next] || !m.Walkable(next) {
				continue
			}
			if blocked != nil && blocked(next) && next != to {
				continue
			}
			if next == to {
				// 反向回溯重建路径
				path := []models.Position{to}
				for i := head; i >= 0; i = queue[i].prev {
					if queue[i].prev < 0 {
						break
					}
					path = append(path, queue[i].pos)
				}
				for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
					path[l], path[r] = path[r], path[l]
				}
				return path
			}
			visited[next] = true
			queue = append(queue, node{pos: next, prev: head})
		}
	}
	return nil
}

// HasLineOfSight traces the Bresenham line between tile centers and
// reports whether it crosses a wall.
func (e *TacticalEngine) HasLineOfSight(m *models.GameMap, from, to models.Position) bool {
	x0, y0 := from.X, from.Y
	x1, y1 := to.X, to.Y

	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		p := models.Position{X: x0, Y: y0}
		if p != from && p != to && !m.Walkable(p) {
			return false
		}
		if x0 == x1 && y0 == y1 {
			return true
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Distance 曼哈顿距离，用于射程与最近目标判断
func Distance(a, b models.Position) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}
