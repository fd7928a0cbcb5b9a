package roadtrip

import "github.com/wricardo/gamecore/game/engine"

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to Position) int {
	dx := from.X - to.X
	if dx < 0 {
		dx = -dx
	}
	dy := from.Y - to.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// PositionOf reads an entity's grid position
func PositionOf(e *engine.Entity) Position {
	return Position{X: int(e.Int(AttrX)), Y: int(e.Int(AttrY))}
}

// FindNearestCharger finds the closest charging station and returns its position, distance and type
func FindNearestCharger(grid Grid, from Position) (Position, int, CellType, bool) {
	minDistance := -1
	var nearestPos Position
	var chargerType CellType
	found := false

	for y := range grid {
		for x := range grid[y] {
			if !IsCharger(grid[y][x]) {
				continue
			}
			pos := Position{X: x, Y: y}
			distance := ManhattanDistance(from, pos)
			if minDistance == -1 || distance < minDistance {
				minDistance = distance
				nearestPos = pos
				chargerType = grid[y][x]
				found = true
			}
		}
	}

	return nearestPos, minDistance, chargerType, found
}

// FindNearestUnvisitedPark finds the closest park nobody has visited yet
func FindNearestUnvisitedPark(s *engine.State, from Position) (engine.EntityID, int, bool) {
	minDistance := -1
	var nearest engine.EntityID
	for _, park := range s.EntitiesOfType(TypePark) {
		if _, visited := park.Attr(AttrVisitedBy); visited {
			continue
		}
		distance := ManhattanDistance(from, PositionOf(park))
		if minDistance == -1 || distance < minDistance {
			minDistance = distance
			nearest = park.ID
		}
	}
	return nearest, minDistance, nearest != ""
}

// AnalyzeBatteryRisk assesses battery danger level based on current battery and distance to nearest charger
func AnalyzeBatteryRisk(grid Grid, car *engine.Entity) string {
	battery := int(car.Int(AttrBattery))
	if battery <= 0 {
		return "CRITICAL: Battery empty!"
	}

	_, chargerDistance, _, chargerFound := FindNearestCharger(grid, PositionOf(car))
	if !chargerFound {
		return "WARNING: No chargers available!"
	}

	if battery <= chargerDistance {
		return "DANGER: Insufficient battery to reach nearest charger!"
	} else if battery <= chargerDistance+2 {
		return "CAUTION: Low battery, prioritize charging"
	} else if battery <= int(car.Int(AttrMaxBattery))/3 {
		return "LOW: Consider charging soon"
	}

	return "SAFE: Battery sufficient"
}
