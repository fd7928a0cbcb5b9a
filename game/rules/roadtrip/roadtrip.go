package roadtrip

import (
	"fmt"

	"github.com/wricardo/gamecore/game/engine"
)

// Schema is the entity schema shared by every road trip board
var Schema = engine.Schema{
	TypeCar: {
		AttrX:          engine.KindInt,
		AttrY:          engine.KindInt,
		AttrBattery:    engine.KindInt,
		AttrMaxBattery: engine.KindInt,
		AttrScore:      engine.KindInt,
		AttrCrashed:    engine.KindBool,
	},
	TypePark: {
		AttrX:         engine.KindInt,
		AttrY:         engine.KindInt,
		AttrVisitedBy: engine.KindRef,
	},
}

// New builds a road trip ruleset for the board described by config
func New(name string, config *Config) (*engine.Ruleset, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	grid, err := ParseGrid(config.Layout)
	if err != nil {
		return nil, err
	}
	b := &board{config: config, grid: grid}

	rs := &engine.Ruleset{
		Name:   name,
		Schema: Schema,
		Turns:  engine.RoundRobin{},
		Rules: engine.Rules{
			Move: engine.Rule{
				Shape:  engine.Shape{Params: map[string]engine.ValueKind{ParamDirection: engine.KindString}},
				Legal:  b.canMove,
				Effect: b.move,
			},
			Pass: engine.Rule{
				Legal:  b.canWait,
				Effect: b.wait,
			},
		},
		End: engine.EndConditions{
			Win:  []engine.Condition{b.allVisited},
			Loss: []engine.Condition{b.crashed, b.stranded},
			Draw: []engine.Condition{b.outOfTurns},
		},
		Setup: b.layout,
	}
	return rs, nil
}

// layout places one car per home cell (wrapping when there are more cars than
// homes) and a park entity on every park cell
func (b *board) layout() (engine.Layout, error) {
	homes := b.grid.Find(Home)
	if len(homes) == 0 {
		return engine.Layout{}, fmt.Errorf("board has no home cell")
	}
	cars := b.config.Cars
	if cars == 0 {
		cars = 1
	}

	var layout engine.Layout
	for i := 0; i < cars; i++ {
		home := homes[i%len(homes)]
		id := engine.EntityID(fmt.Sprintf("car_%d", i+1))
		layout.Entities = append(layout.Entities, &engine.Entity{
			ID:   id,
			Type: TypeCar,
			Attrs: map[string]engine.Value{
				AttrX:          engine.IntValue(int64(home.X)),
				AttrY:          engine.IntValue(int64(home.Y)),
				AttrBattery:    engine.IntValue(int64(b.config.StartingBattery)),
				AttrMaxBattery: engine.IntValue(int64(b.config.MaxBattery)),
				AttrScore:      engine.IntValue(0),
			},
		})
		layout.Order = append(layout.Order, id)
	}
	for i, p := range b.grid.Find(Park) {
		layout.Entities = append(layout.Entities, &engine.Entity{
			ID:   engine.EntityID(fmt.Sprintf("park_%d", i)),
			Type: TypePark,
			Attrs: map[string]engine.Value{
				AttrX: engine.IntValue(int64(p.X)),
				AttrY: engine.IntValue(int64(p.Y)),
			},
		})
	}
	layout.Meta = map[string]string{MetaMessage: b.config.Messages.Welcome}
	return layout, nil
}

// allVisited wins the game for the car with the highest score once every park
// has been visited. Ties go to the car earliest in turn order.
func (b *board) allVisited(s *engine.State) (bool, engine.EntityID) {
	if len(s.EntitiesOfType(TypePark)) == 0 || !allParksVisited(s) {
		return false, ""
	}
	var winner engine.EntityID
	best := int64(-1)
	for _, id := range s.Order {
		if car := s.Entity(id); car != nil && car.Int(AttrScore) > best {
			best = car.Int(AttrScore)
			winner = id
		}
	}
	return true, winner
}

func (b *board) crashed(s *engine.State) (bool, engine.EntityID) {
	for _, car := range s.EntitiesOfType(TypeCar) {
		if car.Attrs[AttrCrashed].Bool() {
			return true, ""
		}
	}
	return false, ""
}

// stranded ends the game when a car has no battery left away from a charger
func (b *board) stranded(s *engine.State) (bool, engine.EntityID) {
	for _, car := range s.EntitiesOfType(TypeCar) {
		if car.Int(AttrBattery) <= 0 && !IsCharger(b.grid.At(PositionOf(car))) {
			return true, ""
		}
	}
	return false, ""
}

func (b *board) outOfTurns(s *engine.State) (bool, engine.EntityID) {
	return b.config.MaxTurns > 0 && s.Turn >= b.config.MaxTurns, ""
}
