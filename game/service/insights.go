package service

import (
	"github.com/wricardo/gamecore/game/config"
	"github.com/wricardo/gamecore/game/engine"
	"github.com/wricardo/gamecore/game/rules/roadtrip"
)

// CarInsight is a decision aid for one car in a road trip session
type CarInsight struct {
	Car             engine.EntityID    `json:"car"`
	Position        roadtrip.Position  `json:"position"`
	Battery         int                `json:"battery"`
	BatteryRisk     string             `json:"battery_risk"`
	NearestCharger  *roadtrip.Position `json:"nearest_charger,omitempty"`
	ChargerDistance int                `json:"charger_distance,omitempty"`
	NearestPark     engine.EntityID    `json:"nearest_park,omitempty"`
	ParkDistance    int                `json:"park_distance,omitempty"`
}

func roadTripInsights(def *config.Definition, s *engine.State) []CarInsight {
	if def.RoadTrip == nil || s == nil {
		return nil
	}
	grid, err := roadtrip.ParseGrid(def.RoadTrip.Layout)
	if err != nil {
		return nil
	}

	var out []CarInsight
	for _, car := range s.EntitiesOfType(roadtrip.TypeCar) {
		pos := roadtrip.PositionOf(car)
		in := CarInsight{
			Car:         car.ID,
			Position:    pos,
			Battery:     int(car.Int(roadtrip.AttrBattery)),
			BatteryRisk: roadtrip.AnalyzeBatteryRisk(grid, car),
		}
		if charger, dist, _, ok := roadtrip.FindNearestCharger(grid, pos); ok {
			in.NearestCharger = &charger
			in.ChargerDistance = dist
		}
		if park, dist, ok := roadtrip.FindNearestUnvisitedPark(s, pos); ok {
			in.NearestPark = park
			in.ParkDistance = dist
		}
		out = append(out, in)
	}
	return out
}
