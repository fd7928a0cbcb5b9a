package roadtrip

import (
	"fmt"

	"github.com/wricardo/gamecore/game/engine"
)

// Constraint names reported by road trip rules
const (
	ConstraintNotACar      = "not_a_car"
	ConstraintBadDirection = "unknown_direction"
	ConstraintBlocked      = "blocked"
	ConstraintOutOfBattery = "out_of_battery"
	ConstraintCarOutOfTrip = "car_out_of_trip"
)

var directions = map[string]Position{
	"up":    {X: 0, Y: -1},
	"down":  {X: 0, Y: 1},
	"left":  {X: -1, Y: 0},
	"right": {X: 1, Y: 0},
}

type board struct {
	config *Config
	grid   Grid
}

func (b *board) car(s *engine.State, id engine.EntityID) (*engine.Entity, error) {
	car := s.Entity(id)
	if car == nil || car.Type != TypeCar {
		return nil, engine.Violation(ConstraintNotACar, "%q is not a car", id)
	}
	if car.Attrs[AttrCrashed].Bool() {
		return nil, engine.Violation(ConstraintCarOutOfTrip, "car %q has crashed", id)
	}
	return car, nil
}

// canMove is the legality predicate for move actions. Running into an
// obstacle is legal when crashes end the game; the effect records the crash.
func (b *board) canMove(s *engine.State, a engine.Action) error {
	car, err := b.car(s, a.Actor)
	if err != nil {
		return err
	}
	direction := a.Params[ParamDirection].Str()
	delta, ok := directions[direction]
	if !ok {
		return engine.Violation(ConstraintBadDirection, "unknown direction %q", direction)
	}

	from := PositionOf(car)
	to := Position{X: from.X + delta.X, Y: from.Y + delta.Y}
	if !b.grid.CanMoveTo(to) && !b.config.WallCrashEndsGame {
		obstacleType := "boundary"
		if b.grid.InBounds(to) {
			obstacleType = string(b.grid.At(to))
		}
		return engine.Violation(ConstraintBlocked, "can't move %s: %s at (%d,%d)", direction, obstacleType, to.X, to.Y)
	}
	if car.Int(AttrBattery) <= 0 {
		return engine.Violation(ConstraintOutOfBattery, "%s", b.config.Messages.OutOfBattery)
	}
	return nil
}

// move drives the acting car one cell, consuming battery
func (b *board) move(next *engine.State, a engine.Action) error {
	car := next.Entity(a.Actor)
	direction := a.Params[ParamDirection].Str()
	delta := directions[direction]
	from := PositionOf(car)
	to := Position{X: from.X + delta.X, Y: from.Y + delta.Y}
	msgs := b.config.Messages

	// Check wall collision BEFORE battery is spent
	if !b.grid.CanMoveTo(to) {
		obstacleType := "boundary"
		if b.grid.InBounds(to) {
			obstacleType = string(b.grid.At(to))
		}
		car.Set(AttrCrashed, engine.BoolValue(true))
		next.Meta[MetaMessage] = msgs.HitWall + fmt.Sprintf(" [Hit: %s at (%d,%d)]", obstacleType, to.X, to.Y)
		return nil
	}

	battery := car.Int(AttrBattery) - 1
	car.Set(AttrX, engine.IntValue(int64(to.X)))
	car.Set(AttrY, engine.IntValue(int64(to.Y)))

	switch b.grid.At(to) {
	case Home:
		battery = car.Int(AttrMaxBattery)
		next.Meta[MetaMessage] = msgs.HomeCharge

	case Supercharger:
		battery = car.Int(AttrMaxBattery)
		next.Meta[MetaMessage] = msgs.SuperchargerCharge

	case Park:
		park := parkAt(next, to)
		if park == nil {
			return fmt.Errorf("no park entity at (%d,%d)", to.X, to.Y)
		}
		if _, visited := park.Attr(AttrVisitedBy); visited {
			next.Meta[MetaMessage] = msgs.ParkAlreadyVisited
			break
		}
		park.Set(AttrVisitedBy, engine.RefValue(car.ID))
		score := car.Int(AttrScore) + 1
		car.Set(AttrScore, engine.IntValue(score))
		next.Meta[MetaMessage] = fmt.Sprintf(msgs.ParkVisited, score)
		if total := len(next.EntitiesOfType(TypePark)); allParksVisited(next) {
			next.Meta[MetaMessage] = fmt.Sprintf(msgs.Victory, total)
		}

	default:
		if msgs.BatteryStatus != "" {
			next.Meta[MetaMessage] = fmt.Sprintf(msgs.BatteryStatus, battery, car.Int(AttrMaxBattery))
		}
	}

	car.Set(AttrBattery, engine.IntValue(battery))
	if battery == 0 && !IsCharger(b.grid.At(to)) && !allParksVisited(next) {
		next.Meta[MetaMessage] = msgs.Stranded
	}
	next.Meta[MetaBatteryRisk] = AnalyzeBatteryRisk(b.grid, car)
	return nil
}

// canWait lets a car sit out its turn
func (b *board) canWait(s *engine.State, a engine.Action) error {
	_, err := b.car(s, a.Actor)
	return err
}

// wait leaves the car in place and points it at the nearest open park
func (b *board) wait(next *engine.State, a engine.Action) error {
	car := next.Entity(a.Actor)
	if park, distance, ok := FindNearestUnvisitedPark(next, PositionOf(car)); ok {
		next.Meta[MetaMessage] = fmt.Sprintf("%s waits. Nearest park: %s (%d moves)", car.ID, park, distance)
	} else {
		next.Meta[MetaMessage] = fmt.Sprintf("%s waits", car.ID)
	}
	next.Meta[MetaBatteryRisk] = AnalyzeBatteryRisk(b.grid, car)
	return nil
}

func parkAt(s *engine.State, p Position) *engine.Entity {
	for _, park := range s.EntitiesOfType(TypePark) {
		if PositionOf(park) == p {
			return park
		}
	}
	return nil
}

func allParksVisited(s *engine.State) bool {
	for _, park := range s.EntitiesOfType(TypePark) {
		if _, visited := park.Attr(AttrVisitedBy); !visited {
			return false
		}
	}
	return true
}
